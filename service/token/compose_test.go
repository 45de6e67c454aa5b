package token

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"testing"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brojonat/tokenmill/service/solana"
)

// mockChainReader implements ChainReader for testing.
type mockChainReader struct {
	mints       map[string]*solana.MintInfo
	existing    map[string]bool
	rentMinimum uint64
	err         error
}

func (m *mockChainReader) GetMint(ctx context.Context, mint solanago.PublicKey) (*solana.MintInfo, error) {
	if m.err != nil {
		return nil, m.err
	}
	info, ok := m.mints[mint.String()]
	if !ok {
		return nil, fmt.Errorf("mint %s does not exist", mint)
	}
	return info, nil
}

func (m *mockChainReader) AccountExists(ctx context.Context, account solanago.PublicKey) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	return m.existing[account.String()], nil
}

func (m *mockChainReader) MinimumRentExemptBalance(ctx context.Context, dataSize uint64) (uint64, error) {
	if m.err != nil {
		return 0, m.err
	}
	return m.rentMinimum, nil
}

func newTestComposer(chain *mockChainReader) *Composer {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewComposer(chain, logger)
}

// SPL token program instruction discriminators (single byte).
const (
	tokenIxInitializeMint = 0
	tokenIxTransfer       = 3
	tokenIxMintTo         = 7
)

func instructionData(t *testing.T, ix solanago.Instruction) []byte {
	t.Helper()
	data, err := ix.Data()
	require.NoError(t, err)
	return data
}

func TestComposeCreateMint(t *testing.T) {
	ctx := context.Background()
	owner := solanago.NewWallet().PublicKey()

	chain := &mockChainReader{rentMinimum: 1_461_600}
	composer := newTestComposer(chain)

	plan, err := composer.ComposeCreateMint(ctx, owner, 2)
	require.NoError(t, err)
	require.NotNil(t, plan.Mint)
	require.Len(t, plan.Instructions, 2)

	// First: system program allocates and funds the mint account.
	createIx := plan.Instructions[0]
	assert.Equal(t, solanago.SystemProgramID, createIx.ProgramID())
	createData := instructionData(t, createIx)
	assert.Equal(t, uint32(0), binary.LittleEndian.Uint32(createData[0:4])) // CreateAccount
	assert.Equal(t, uint64(1_461_600), binary.LittleEndian.Uint64(createData[4:12]))
	assert.Equal(t, uint64(MintAccountSize), binary.LittleEndian.Uint64(createData[12:20]))

	// Second: token program initializes it as a mint with the requested decimals.
	initIx := plan.Instructions[1]
	assert.Equal(t, solanago.TokenProgramID, initIx.ProgramID())
	initData := instructionData(t, initIx)
	assert.Equal(t, byte(tokenIxInitializeMint), initData[0])
	assert.Equal(t, byte(2), initData[1])
}

func TestComposeCreateMint_FreshKeypairPerPlan(t *testing.T) {
	ctx := context.Background()
	owner := solanago.NewWallet().PublicKey()

	chain := &mockChainReader{rentMinimum: 1_461_600}
	composer := newTestComposer(chain)

	first, err := composer.ComposeCreateMint(ctx, owner, 9)
	require.NoError(t, err)
	second, err := composer.ComposeCreateMint(ctx, owner, 9)
	require.NoError(t, err)

	assert.NotEqual(t, first.Mint.PublicKey(), second.Mint.PublicKey())
}

func TestComposeCreateMint_InvalidDecimals(t *testing.T) {
	ctx := context.Background()
	owner := solanago.NewWallet().PublicKey()

	composer := newTestComposer(&mockChainReader{})

	_, err := composer.ComposeCreateMint(ctx, owner, 10)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestComposeMintTo_ExistingDestination(t *testing.T) {
	ctx := context.Background()
	authority := solanago.NewWallet().PublicKey()
	mint := solanago.NewWallet().PublicKey()

	dest, err := ResolveAssociatedAccount(authority, mint)
	require.NoError(t, err)

	chain := &mockChainReader{
		mints: map[string]*solana.MintInfo{
			mint.String(): {Address: mint, Decimals: 2, MintAuthority: &authority},
		},
		existing: map[string]bool{dest.String(): true},
	}
	composer := newTestComposer(chain)

	plan, err := composer.ComposeMintTo(ctx, authority, mint, "10.00")
	require.NoError(t, err)
	require.Len(t, plan.Instructions, 1)
	assert.False(t, plan.CreatedDestination)
	assert.Equal(t, dest, plan.Destination)
	assert.Equal(t, uint64(1000), plan.RawAmount)

	mintData := instructionData(t, plan.Instructions[0])
	assert.Equal(t, byte(tokenIxMintTo), mintData[0])
	assert.Equal(t, uint64(1000), binary.LittleEndian.Uint64(mintData[1:9]))
}

func TestComposeMintTo_MissingDestinationPrependsCreate(t *testing.T) {
	ctx := context.Background()
	authority := solanago.NewWallet().PublicKey()
	mint := solanago.NewWallet().PublicKey()

	chain := &mockChainReader{
		mints: map[string]*solana.MintInfo{
			mint.String(): {Address: mint, Decimals: 6, MintAuthority: &authority},
		},
		existing: map[string]bool{},
	}
	composer := newTestComposer(chain)

	plan, err := composer.ComposeMintTo(ctx, authority, mint, "3")
	require.NoError(t, err)
	require.Len(t, plan.Instructions, 2)
	assert.True(t, plan.CreatedDestination)

	// Account creation must precede the mint so the tokens can land.
	assert.Equal(t, solanago.SPLAssociatedTokenAccountProgramID, plan.Instructions[0].ProgramID())
	mintData := instructionData(t, plan.Instructions[1])
	assert.Equal(t, byte(tokenIxMintTo), mintData[0])
	assert.Equal(t, uint64(3_000_000), binary.LittleEndian.Uint64(mintData[1:9]))
}

func TestComposeMintTo_NotMintAuthority(t *testing.T) {
	ctx := context.Background()
	authority := solanago.NewWallet().PublicKey()
	other := solanago.NewWallet().PublicKey()
	mint := solanago.NewWallet().PublicKey()

	chain := &mockChainReader{
		mints: map[string]*solana.MintInfo{
			mint.String(): {Address: mint, Decimals: 2, MintAuthority: &other},
		},
	}
	composer := newTestComposer(chain)

	_, err := composer.ComposeMintTo(ctx, authority, mint, "1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestComposeTransfer_MissingDestinationPrependsCreate(t *testing.T) {
	ctx := context.Background()
	owner := solanago.NewWallet().PublicKey()
	recipient := solanago.NewWallet().PublicKey()
	mint := solanago.NewWallet().PublicKey()

	source, err := ResolveAssociatedAccount(owner, mint)
	require.NoError(t, err)
	dest, err := ResolveAssociatedAccount(recipient, mint)
	require.NoError(t, err)

	chain := &mockChainReader{
		mints: map[string]*solana.MintInfo{
			mint.String(): {Address: mint, Decimals: 2},
		},
		existing: map[string]bool{source.String(): true},
	}
	composer := newTestComposer(chain)

	plan, err := composer.ComposeTransfer(ctx, owner, recipient, mint, "4.00")
	require.NoError(t, err)
	require.Len(t, plan.Instructions, 2)
	assert.True(t, plan.CreatedDestination)
	assert.Equal(t, source, plan.Source)
	assert.Equal(t, dest, plan.Destination)
	assert.Equal(t, uint64(400), plan.RawAmount)

	// Creation of the recipient's account first, then the transfer.
	assert.Equal(t, solanago.SPLAssociatedTokenAccountProgramID, plan.Instructions[0].ProgramID())
	transferData := instructionData(t, plan.Instructions[1])
	assert.Equal(t, byte(tokenIxTransfer), transferData[0])
	assert.Equal(t, uint64(400), binary.LittleEndian.Uint64(transferData[1:9]))
}

func TestComposeTransfer_ExistingDestination(t *testing.T) {
	ctx := context.Background()
	owner := solanago.NewWallet().PublicKey()
	recipient := solanago.NewWallet().PublicKey()
	mint := solanago.NewWallet().PublicKey()

	source, err := ResolveAssociatedAccount(owner, mint)
	require.NoError(t, err)
	dest, err := ResolveAssociatedAccount(recipient, mint)
	require.NoError(t, err)

	chain := &mockChainReader{
		mints: map[string]*solana.MintInfo{
			// Non-default precision: the conversion must use the live value.
			mint.String(): {Address: mint, Decimals: 6},
		},
		existing: map[string]bool{
			source.String(): true,
			dest.String():   true,
		},
	}
	composer := newTestComposer(chain)

	plan, err := composer.ComposeTransfer(ctx, owner, recipient, mint, "1.5")
	require.NoError(t, err)
	require.Len(t, plan.Instructions, 1)
	assert.False(t, plan.CreatedDestination)

	transferData := instructionData(t, plan.Instructions[0])
	assert.Equal(t, byte(tokenIxTransfer), transferData[0])
	assert.Equal(t, uint64(1_500_000), binary.LittleEndian.Uint64(transferData[1:9]))
}

func TestComposeTransfer_InvalidAmount(t *testing.T) {
	ctx := context.Background()
	owner := solanago.NewWallet().PublicKey()
	recipient := solanago.NewWallet().PublicKey()
	mint := solanago.NewWallet().PublicKey()

	chain := &mockChainReader{
		mints: map[string]*solana.MintInfo{
			mint.String(): {Address: mint, Decimals: 2},
		},
	}
	composer := newTestComposer(chain)

	for _, amount := range []string{"0", "-1", "1.234", "abc"} {
		_, err := composer.ComposeTransfer(ctx, owner, recipient, mint, amount)
		require.Error(t, err, "amount %q should be rejected", amount)
		assert.ErrorIs(t, err, ErrInvalidArgument)
	}
}

func TestComposeTransfer_SelfTransfer(t *testing.T) {
	ctx := context.Background()
	owner := solanago.NewWallet().PublicKey()
	mint := solanago.NewWallet().PublicKey()

	composer := newTestComposer(&mockChainReader{})

	_, err := composer.ComposeTransfer(ctx, owner, owner, mint, "1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}
