package solana

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/brojonat/tokenmill/service/metrics"
	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"
)

// RPCClient is an interface for the Solana RPC operations we need.
// This allows us to mock the RPC layer in tests without hitting real Solana nodes.
type RPCClient interface {
	GetBalance(
		ctx context.Context,
		account solana.PublicKey,
		commitment rpc.CommitmentType,
	) (*rpc.GetBalanceResult, error)

	GetAccountInfoWithOpts(
		ctx context.Context,
		account solana.PublicKey,
		opts *rpc.GetAccountInfoOpts,
	) (*rpc.GetAccountInfoResult, error)

	GetTokenAccountsByOwner(
		ctx context.Context,
		owner solana.PublicKey,
		conf *rpc.GetTokenAccountsConfig,
		opts *rpc.GetTokenAccountsOpts,
	) (*rpc.GetTokenAccountsResult, error)

	GetLatestBlockhash(
		ctx context.Context,
		commitment rpc.CommitmentType,
	) (*rpc.GetLatestBlockhashResult, error)

	GetBlockHeight(
		ctx context.Context,
		commitment rpc.CommitmentType,
	) (uint64, error)

	GetMinimumBalanceForRentExemption(
		ctx context.Context,
		dataSize uint64,
		commitment rpc.CommitmentType,
	) (uint64, error)

	SendTransactionWithOpts(
		ctx context.Context,
		tx *solana.Transaction,
		opts rpc.TransactionOpts,
	) (solana.Signature, error)

	GetSignatureStatuses(
		ctx context.Context,
		searchTransactionHistory bool,
		signatures ...solana.Signature,
	) (*rpc.GetSignatureStatusesResult, error)

	GetSignaturesForAddress(
		ctx context.Context,
		address solana.PublicKey,
		opts *rpc.GetSignaturesForAddressOpts,
	) ([]*rpc.TransactionSignature, error)

	RequestAirdrop(
		ctx context.Context,
		account solana.PublicKey,
		lamports uint64,
		commitment rpc.CommitmentType,
	) (solana.Signature, error)
}

// Client wraps the RPC client with the domain reads and writes the rest of
// the service needs. It is stateless and safe for concurrent use; all mutable
// state lives with the callers.
type Client struct {
	rpc      RPCClient
	logger   *slog.Logger
	metrics  *metrics.Metrics
	endpoint string // RPC endpoint identifier for metrics (e.g., "mainnet", "devnet", rpc host)

	// rateLimitBackoff is the base delay after a 429; doubled per attempt.
	rateLimitBackoff time.Duration
}

// NewClient creates a new Solana client.
// The endpoint parameter is used for metrics labeling (e.g., "mainnet", "devnet", or RPC hostname).
// If metrics is nil, no metrics will be recorded.
func NewClient(rpcClient RPCClient, endpoint string, m *metrics.Metrics, logger *slog.Logger) *Client {
	return &Client{
		rpc:      rpcClient,
		logger:   logger,
		metrics:  m,
		endpoint: endpoint,

		// Public mainnet rate limits are aggressive; premium endpoints can
		// tolerate a smaller base.
		rateLimitBackoff: 2 * time.Second,
	}
}

// recordRPC records metrics for a single RPC call.
func (c *Client) recordRPC(method string, start time.Time, err error) {
	if c.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	c.metrics.RecordRPCCall(method, status, c.endpoint, time.Since(start).Seconds())
}

// withRateLimitRetry retries a read when the node answers 429 Too Many
// Requests, with exponential backoff. Only the reconciliation reads go
// through here; submission retries belong to the orchestrator.
// Public mainnet: very conservative (1-2 RPS max)
// Helius/Premium: retry count can be increased
func (c *Client) withRateLimitRetry(ctx context.Context, method string, fn func() error) error {
	const maxAttempts = 3
	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err = fn()
		if err == nil || !strings.Contains(err.Error(), "429") {
			return err
		}

		backoff := c.rateLimitBackoff << uint(attempt) // 2s, 4s, 8s
		c.logger.WarnContext(ctx, "rate limited, sleeping before retry",
			"method", method,
			"attempt", attempt+1,
			"backoff_seconds", backoff.Seconds(),
		)
		if c.metrics != nil {
			c.metrics.RecordRateLimitHit(c.endpoint)
			c.metrics.RecordRPCRetry(method, "rate_limit")
		}

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

// GetNativeBalance returns the owner's native SOL balance in lamports.
func (c *Client) GetNativeBalance(ctx context.Context, owner solana.PublicKey) (uint64, error) {
	var out *rpc.GetBalanceResult
	err := c.withRateLimitRetry(ctx, "GetBalance", func() error {
		start := time.Now()
		var err error
		out, err = c.rpc.GetBalance(ctx, owner, rpc.CommitmentConfirmed)
		c.recordRPC("GetBalance", start, err)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to get balance for %s: %w", owner, err)
	}
	return out.Value, nil
}

// GetTokenBalances enumerates all token accounts owned by the given address,
// filtered by the SPL token program, and decodes each raw balance.
func (c *Client) GetTokenBalances(ctx context.Context, owner solana.PublicKey) ([]TokenBalance, error) {
	programID := solana.TokenProgramID

	var out *rpc.GetTokenAccountsResult
	err := c.withRateLimitRetry(ctx, "GetTokenAccountsByOwner", func() error {
		start := time.Now()
		var err error
		out, err = c.rpc.GetTokenAccountsByOwner(ctx, owner,
			&rpc.GetTokenAccountsConfig{ProgramId: &programID},
			&rpc.GetTokenAccountsOpts{
				Commitment: rpc.CommitmentConfirmed,
				Encoding:   solana.EncodingBase64,
			},
		)
		c.recordRPC("GetTokenAccountsByOwner", start, err)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get token accounts for %s: %w", owner, err)
	}

	balances := make([]TokenBalance, 0, len(out.Value))
	for _, ta := range out.Value {
		var acct token.Account
		if err := bin.NewBinDecoder(ta.Account.Data.GetBinary()).Decode(&acct); err != nil {
			// A non-decodable account under the token program is unexpected;
			// skip it rather than failing the whole enumeration.
			c.logger.WarnContext(ctx, "failed to decode token account, skipping",
				"token_account", ta.Pubkey.String(),
				"error", err,
			)
			continue
		}
		balances = append(balances, TokenBalance{
			TokenAccount: ta.Pubkey,
			Mint:         acct.Mint,
			Raw:          acct.Amount,
		})
	}

	c.logger.DebugContext(ctx, "fetched token balances",
		"owner", owner.String(),
		"count", len(balances),
	)

	return balances, nil
}

// GetMint reads and decodes the on-chain state of a token mint.
// Decimals must always be read from here, never assumed: mints are created
// with arbitrary precision and a wrong scale silently corrupts amounts.
func (c *Client) GetMint(ctx context.Context, mint solana.PublicKey) (*MintInfo, error) {
	start := time.Now()
	out, err := c.rpc.GetAccountInfoWithOpts(ctx, mint, &rpc.GetAccountInfoOpts{
		Commitment: rpc.CommitmentConfirmed,
		Encoding:   solana.EncodingBase64,
	})
	c.recordRPC("GetAccountInfo", start, err)
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return nil, fmt.Errorf("mint %s does not exist: %w", mint, err)
		}
		return nil, fmt.Errorf("failed to get mint account %s: %w", mint, err)
	}

	var m token.Mint
	if err := bin.NewBinDecoder(out.Value.Data.GetBinary()).Decode(&m); err != nil {
		return nil, fmt.Errorf("failed to decode mint account %s: %w", mint, err)
	}
	if !m.IsInitialized {
		return nil, fmt.Errorf("account %s is not an initialized mint", mint)
	}

	return &MintInfo{
		Address:       mint,
		Decimals:      m.Decimals,
		Supply:        m.Supply,
		MintAuthority: m.MintAuthority,
	}, nil
}

// AccountExists reports whether the given account exists on-chain.
func (c *Client) AccountExists(ctx context.Context, account solana.PublicKey) (bool, error) {
	start := time.Now()
	_, err := c.rpc.GetAccountInfoWithOpts(ctx, account, &rpc.GetAccountInfoOpts{
		Commitment: rpc.CommitmentConfirmed,
		Encoding:   solana.EncodingBase64,
	})
	c.recordRPC("GetAccountInfo", start, err)
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check account %s: %w", account, err)
	}
	return true, nil
}

// LatestBlockhash fetches a fresh blockhash and its last valid block height
// at finalized commitment.
func (c *Client) LatestBlockhash(ctx context.Context) (solana.Hash, uint64, error) {
	start := time.Now()
	out, err := c.rpc.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	c.recordRPC("GetLatestBlockhash", start, err)
	if err != nil {
		return solana.Hash{}, 0, fmt.Errorf("failed to get latest blockhash: %w", err)
	}
	return out.Value.Blockhash, out.Value.LastValidBlockHeight, nil
}

// BlockHeight returns the current block height at confirmed commitment.
// This is the clock used to judge blockhash lease expiry; the network's
// validity window is height-based, not wall-clock based.
func (c *Client) BlockHeight(ctx context.Context) (uint64, error) {
	start := time.Now()
	height, err := c.rpc.GetBlockHeight(ctx, rpc.CommitmentConfirmed)
	c.recordRPC("GetBlockHeight", start, err)
	if err != nil {
		return 0, fmt.Errorf("failed to get block height: %w", err)
	}
	return height, nil
}

// MinimumRentExemptBalance returns the lamports required to make an account
// of the given size rent-exempt.
func (c *Client) MinimumRentExemptBalance(ctx context.Context, dataSize uint64) (uint64, error) {
	start := time.Now()
	lamports, err := c.rpc.GetMinimumBalanceForRentExemption(ctx, dataSize, rpc.CommitmentFinalized)
	c.recordRPC("GetMinimumBalanceForRentExemption", start, err)
	if err != nil {
		return 0, fmt.Errorf("failed to get rent-exempt minimum: %w", err)
	}
	return lamports, nil
}

// SendTransaction submits a fully signed transaction with preflight
// simulation enabled at processed commitment. Preflight failures surface as
// RPC errors; the orchestrator classifies them.
func (c *Client) SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	start := time.Now()
	sig, err := c.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       false,
		PreflightCommitment: rpc.CommitmentProcessed,
	})
	c.recordRPC("SendTransaction", start, err)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to send transaction: %w", err)
	}

	c.logger.DebugContext(ctx, "sent transaction", "signature", sig.String())
	return sig, nil
}

// SignatureStatus returns the confirmation status for a submitted signature,
// or nil if the network does not know the signature (yet).
func (c *Client) SignatureStatus(ctx context.Context, sig solana.Signature) (*rpc.SignatureStatusesResult, error) {
	start := time.Now()
	out, err := c.rpc.GetSignatureStatuses(ctx, false, sig)
	c.recordRPC("GetSignatureStatuses", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to get signature status: %w", err)
	}
	if len(out.Value) == 0 {
		return nil, nil
	}
	return out.Value[0], nil
}

// RecentSignatures fetches up to limit recent transaction signatures for the
// given address, newest first, with status and block time.
func (c *Client) RecentSignatures(ctx context.Context, address solana.PublicKey, limit int) ([]TransactionSummary, error) {
	var sigs []*rpc.TransactionSignature
	err := c.withRateLimitRetry(ctx, "GetSignaturesForAddress", func() error {
		start := time.Now()
		var err error
		sigs, err = c.rpc.GetSignaturesForAddress(ctx, address, &rpc.GetSignaturesForAddressOpts{
			Limit:      &limit,
			Commitment: rpc.CommitmentConfirmed,
		})
		c.recordRPC("GetSignaturesForAddress", start, err)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get signatures for %s: %w", address, err)
	}

	summaries := make([]TransactionSummary, 0, len(sigs))
	for _, sig := range sigs {
		summaries = append(summaries, signatureToSummary(sig))
	}

	c.logger.DebugContext(ctx, "fetched recent signatures",
		"address", address.String(),
		"count", len(summaries),
	)

	return summaries, nil
}

// RequestAirdrop requests lamports from the devnet faucet. Only meaningful on
// devnet; mainnet nodes reject the call.
func (c *Client) RequestAirdrop(ctx context.Context, account solana.PublicKey, lamports uint64) (solana.Signature, error) {
	start := time.Now()
	sig, err := c.rpc.RequestAirdrop(ctx, account, lamports, rpc.CommitmentConfirmed)
	c.recordRPC("RequestAirdrop", start, err)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("airdrop request failed: %w", err)
	}
	return sig, nil
}

// signatureToSummary converts an RPC signature result to our domain summary.
func signatureToSummary(sig *rpc.TransactionSignature) TransactionSummary {
	summary := TransactionSummary{
		Signature: sig.Signature.String(),
		Slot:      sig.Slot,
		Status:    string(sig.ConfirmationStatus),
	}
	if sig.BlockTime != nil {
		summary.BlockTime = sig.BlockTime.Time()
	}
	if sig.Err != nil {
		errStr := fmt.Sprintf("%v", sig.Err)
		summary.Err = &errStr
	}
	return summary
}
