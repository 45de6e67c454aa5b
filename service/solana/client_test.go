package solana

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockRPCClient implements RPCClient for testing.
// It's behavior-focused: we set what it should return, not verify call sequences.
type mockRPCClient struct {
	balance        uint64
	accountInfos   map[string]*rpc.GetAccountInfoResult
	tokenAccounts  []*rpc.TokenAccount
	blockhash      solana.Hash
	lastValid      uint64
	blockHeight    uint64
	rentMinimum    uint64
	sendSig        solana.Signature
	sigStatuses    []*rpc.SignatureStatusesResult
	signatures     []*rpc.TransactionSignature
	err            error

	getBalanceFn func() (*rpc.GetBalanceResult, error)
}

func (m *mockRPCClient) GetBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetBalanceResult, error) {
	if m.getBalanceFn != nil {
		return m.getBalanceFn()
	}
	if m.err != nil {
		return nil, m.err
	}
	return &rpc.GetBalanceResult{Value: m.balance}, nil
}

func (m *mockRPCClient) GetAccountInfoWithOpts(ctx context.Context, account solana.PublicKey, opts *rpc.GetAccountInfoOpts) (*rpc.GetAccountInfoResult, error) {
	if m.err != nil {
		return nil, m.err
	}
	res, ok := m.accountInfos[account.String()]
	if !ok {
		return nil, rpc.ErrNotFound
	}
	return res, nil
}

func (m *mockRPCClient) GetTokenAccountsByOwner(ctx context.Context, owner solana.PublicKey, conf *rpc.GetTokenAccountsConfig, opts *rpc.GetTokenAccountsOpts) (*rpc.GetTokenAccountsResult, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &rpc.GetTokenAccountsResult{Value: m.tokenAccounts}, nil
}

func (m *mockRPCClient) GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &rpc.GetLatestBlockhashResult{
		Value: &rpc.LatestBlockhashResult{
			Blockhash:            m.blockhash,
			LastValidBlockHeight: m.lastValid,
		},
	}, nil
}

func (m *mockRPCClient) GetBlockHeight(ctx context.Context, commitment rpc.CommitmentType) (uint64, error) {
	if m.err != nil {
		return 0, m.err
	}
	return m.blockHeight, nil
}

func (m *mockRPCClient) GetMinimumBalanceForRentExemption(ctx context.Context, dataSize uint64, commitment rpc.CommitmentType) (uint64, error) {
	if m.err != nil {
		return 0, m.err
	}
	return m.rentMinimum, nil
}

func (m *mockRPCClient) SendTransactionWithOpts(ctx context.Context, tx *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error) {
	if m.err != nil {
		return solana.Signature{}, m.err
	}
	return m.sendSig, nil
}

func (m *mockRPCClient) GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, signatures ...solana.Signature) (*rpc.GetSignatureStatusesResult, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &rpc.GetSignatureStatusesResult{Value: m.sigStatuses}, nil
}

func (m *mockRPCClient) GetSignaturesForAddress(ctx context.Context, address solana.PublicKey, opts *rpc.GetSignaturesForAddressOpts) ([]*rpc.TransactionSignature, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.signatures, nil
}

func (m *mockRPCClient) RequestAirdrop(ctx context.Context, account solana.PublicKey, lamports uint64, commitment rpc.CommitmentType) (solana.Signature, error) {
	if m.err != nil {
		return solana.Signature{}, m.err
	}
	return m.sendSig, nil
}

func newTestClient(mock *mockRPCClient) *Client {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewClient(mock, "test", nil, logger)
}

// encodeTokenAccount builds the 165-byte SPL token account layout by hand so
// the test does not depend on the library's encoder being symmetric with its
// decoder.
func encodeTokenAccount(mint, owner solana.PublicKey, amount uint64) []byte {
	var buf bytes.Buffer
	buf.Write(mint[:])
	buf.Write(owner[:])
	binary.Write(&buf, binary.LittleEndian, amount)
	buf.Write(make([]byte, 36)) // delegate COption: none
	buf.WriteByte(1)            // state: initialized
	buf.Write(make([]byte, 12)) // isNative COption<u64>: none
	buf.Write(make([]byte, 8))  // delegatedAmount
	buf.Write(make([]byte, 36)) // closeAuthority COption: none
	return buf.Bytes()
}

// encodeMint builds the 82-byte SPL mint layout by hand.
func encodeMint(authority solana.PublicKey, supply uint64, decimals uint8) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, uint32(1)) // mintAuthority COption: some
	buf.Write(authority[:])
	binary.Write(&buf, binary.LittleEndian, supply)
	buf.WriteByte(decimals)
	buf.WriteByte(1)            // isInitialized
	buf.Write(make([]byte, 36)) // freezeAuthority COption: none
	return buf.Bytes()
}

// accountDataFromBytes wraps raw bytes the way the RPC layer delivers them.
func accountDataFromBytes(t *testing.T, raw []byte) *rpc.DataBytesOrJSON {
	t.Helper()
	encoded := base64.StdEncoding.EncodeToString(raw)
	data := &rpc.DataBytesOrJSON{}
	err := json.Unmarshal([]byte(fmt.Sprintf(`["%s","base64"]`, encoded)), data)
	require.NoError(t, err)
	return data
}

func TestGetNativeBalance(t *testing.T) {
	ctx := context.Background()

	mock := &mockRPCClient{balance: 5_000_000_000}
	client := newTestClient(mock)
	owner := solana.MustPublicKeyFromBase58("11111111111111111111111111111111")

	balance, err := client.GetNativeBalance(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, uint64(5_000_000_000), balance)
}

func TestGetNativeBalance_RPCError(t *testing.T) {
	ctx := context.Background()

	mock := &mockRPCClient{err: assert.AnError}
	client := newTestClient(mock)
	owner := solana.MustPublicKeyFromBase58("11111111111111111111111111111111")

	_, err := client.GetNativeBalance(ctx, owner)
	require.Error(t, err)
}

func TestGetNativeBalance_RetriesRateLimit(t *testing.T) {
	ctx := context.Background()

	calls := 0
	mock := &mockRPCClient{
		getBalanceFn: func() (*rpc.GetBalanceResult, error) {
			calls++
			if calls < 3 {
				return nil, fmt.Errorf("429 Too Many Requests")
			}
			return &rpc.GetBalanceResult{Value: 777}, nil
		},
	}
	client := newTestClient(mock)
	client.rateLimitBackoff = time.Millisecond
	owner := solana.MustPublicKeyFromBase58("11111111111111111111111111111111")

	balance, err := client.GetNativeBalance(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, uint64(777), balance)
	assert.Equal(t, 3, calls)
}

func TestGetNativeBalance_NonRateLimitErrorNotRetried(t *testing.T) {
	ctx := context.Background()

	calls := 0
	mock := &mockRPCClient{
		getBalanceFn: func() (*rpc.GetBalanceResult, error) {
			calls++
			return nil, fmt.Errorf("connection reset")
		},
	}
	client := newTestClient(mock)
	client.rateLimitBackoff = time.Millisecond
	owner := solana.MustPublicKeyFromBase58("11111111111111111111111111111111")

	_, err := client.GetNativeBalance(ctx, owner)
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestGetTokenBalances(t *testing.T) {
	ctx := context.Background()

	owner := solana.NewWallet().PublicKey()
	mintA := solana.NewWallet().PublicKey()
	mintB := solana.NewWallet().PublicKey()
	acctA := solana.NewWallet().PublicKey()
	acctB := solana.NewWallet().PublicKey()

	mock := &mockRPCClient{
		tokenAccounts: []*rpc.TokenAccount{
			{
				Pubkey: acctA,
				Account: rpc.Account{
					Data: accountDataFromBytes(t, encodeTokenAccount(mintA, owner, 1000)),
				},
			},
			{
				Pubkey: acctB,
				Account: rpc.Account{
					Data: accountDataFromBytes(t, encodeTokenAccount(mintB, owner, 42)),
				},
			},
		},
	}

	client := newTestClient(mock)

	balances, err := client.GetTokenBalances(ctx, owner)
	require.NoError(t, err)
	require.Len(t, balances, 2)

	assert.Equal(t, mintA, balances[0].Mint)
	assert.Equal(t, uint64(1000), balances[0].Raw)
	assert.Equal(t, acctA, balances[0].TokenAccount)
	assert.Equal(t, mintB, balances[1].Mint)
	assert.Equal(t, uint64(42), balances[1].Raw)
}

func TestGetTokenBalances_SkipsUndecodable(t *testing.T) {
	ctx := context.Background()

	owner := solana.NewWallet().PublicKey()
	mintA := solana.NewWallet().PublicKey()
	acctA := solana.NewWallet().PublicKey()
	acctBad := solana.NewWallet().PublicKey()

	mock := &mockRPCClient{
		tokenAccounts: []*rpc.TokenAccount{
			{
				Pubkey: acctBad,
				Account: rpc.Account{
					Data: accountDataFromBytes(t, []byte{0x01, 0x02}), // truncated
				},
			},
			{
				Pubkey: acctA,
				Account: rpc.Account{
					Data: accountDataFromBytes(t, encodeTokenAccount(mintA, owner, 7)),
				},
			},
		},
	}

	client := newTestClient(mock)

	balances, err := client.GetTokenBalances(ctx, owner)
	require.NoError(t, err)
	require.Len(t, balances, 1)
	assert.Equal(t, mintA, balances[0].Mint)
	assert.Equal(t, uint64(7), balances[0].Raw)
}

func TestGetMint(t *testing.T) {
	ctx := context.Background()

	mint := solana.NewWallet().PublicKey()
	authority := solana.NewWallet().PublicKey()

	mock := &mockRPCClient{
		accountInfos: map[string]*rpc.GetAccountInfoResult{
			mint.String(): {
				Value: &rpc.Account{
					Data: accountDataFromBytes(t, encodeMint(authority, 123456, 2)),
				},
			},
		},
	}

	client := newTestClient(mock)

	info, err := client.GetMint(ctx, mint)
	require.NoError(t, err)
	assert.Equal(t, mint, info.Address)
	assert.Equal(t, uint8(2), info.Decimals)
	assert.Equal(t, uint64(123456), info.Supply)
	require.NotNil(t, info.MintAuthority)
	assert.Equal(t, authority, *info.MintAuthority)
}

func TestGetMint_NotFound(t *testing.T) {
	ctx := context.Background()

	mock := &mockRPCClient{accountInfos: map[string]*rpc.GetAccountInfoResult{}}
	client := newTestClient(mock)

	_, err := client.GetMint(ctx, solana.NewWallet().PublicKey())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")
}

func TestAccountExists(t *testing.T) {
	ctx := context.Background()

	existing := solana.NewWallet().PublicKey()
	missing := solana.NewWallet().PublicKey()

	mock := &mockRPCClient{
		accountInfos: map[string]*rpc.GetAccountInfoResult{
			existing.String(): {
				Value: &rpc.Account{
					Data: accountDataFromBytes(t, []byte{0x00}),
				},
			},
		},
	}

	client := newTestClient(mock)

	exists, err := client.AccountExists(ctx, existing)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = client.AccountExists(ctx, missing)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestLatestBlockhash(t *testing.T) {
	ctx := context.Background()

	hash := solana.HashFromBytes(bytes.Repeat([]byte{0xAB}, 32))
	mock := &mockRPCClient{blockhash: hash, lastValid: 5000}
	client := newTestClient(mock)

	got, lastValid, err := client.LatestBlockhash(ctx)
	require.NoError(t, err)
	assert.Equal(t, hash, got)
	assert.Equal(t, uint64(5000), lastValid)
}

func TestRecentSignatures(t *testing.T) {
	ctx := context.Background()

	sig1 := solana.MustSignatureFromBase58("5j7s6NiJS3JAkvgkoc18WVAsiSaci2pxB2A6ueCJP4tprA2TFg9wSyTLeYouxPBJEMzJinENTkpA52YStRW5Dia7")
	sig2 := solana.MustSignatureFromBase58("2TgM4N8qCMqLvfR8dxqTQgKygPNzT5KQkN5b5sT7eZPEkdxyLTXGnNQB3j7KG4DPFg5Qez5yNJBQRQ5r7DDnFfjG")

	now := solana.UnixTimeSeconds(time.Now().Unix())
	past := solana.UnixTimeSeconds(time.Now().Unix() - 10)

	mock := &mockRPCClient{
		signatures: []*rpc.TransactionSignature{
			{
				Signature:          sig1,
				Slot:               100,
				BlockTime:          &now,
				ConfirmationStatus: rpc.ConfirmationStatusFinalized,
			},
			{
				Signature:          sig2,
				Slot:               99,
				BlockTime:          &past,
				ConfirmationStatus: rpc.ConfirmationStatusConfirmed,
				Err:                map[string]interface{}{"InstructionError": []interface{}{0, "Custom error"}},
			},
		},
	}

	client := newTestClient(mock)
	owner := solana.MustPublicKeyFromBase58("11111111111111111111111111111111")

	summaries, err := client.RecentSignatures(ctx, owner, 10)
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	assert.Equal(t, sig1.String(), summaries[0].Signature)
	assert.Equal(t, uint64(100), summaries[0].Slot)
	assert.Equal(t, "finalized", summaries[0].Status)
	assert.Nil(t, summaries[0].Err)

	assert.Equal(t, sig2.String(), summaries[1].Signature)
	assert.Equal(t, "confirmed", summaries[1].Status)
	assert.NotNil(t, summaries[1].Err)
}

func TestSignatureStatus_Unknown(t *testing.T) {
	ctx := context.Background()

	mock := &mockRPCClient{sigStatuses: []*rpc.SignatureStatusesResult{}}
	client := newTestClient(mock)

	status, err := client.SignatureStatus(ctx, solana.Signature{})
	require.NoError(t, err)
	assert.Nil(t, status)
}
