package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	solanago "github.com/gagliardetto/solana-go"

	"github.com/brojonat/tokenmill/service/metrics"
)

// BlockhashLease is a short-lived validity token for one transaction: the
// blockhash it must reference and the last block height at which the network
// will still accept it. A lease is obtained fresh immediately before signing
// and is never reused across intents.
type BlockhashLease struct {
	Blockhash       solanago.Hash
	LastValidHeight uint64
	ObtainedAt      time.Time
}

// LeaseChain is the read surface the lease manager needs.
type LeaseChain interface {
	LatestBlockhash(ctx context.Context) (solanago.Hash, uint64, error)
	BlockHeight(ctx context.Context) (uint64, error)
}

// LeaseManager hands out blockhash leases and judges their expiry against
// the live block height. Expiry is height-based, not wall-clock based,
// matching the network's own validity model.
type LeaseManager struct {
	chain        LeaseChain
	logger       *slog.Logger
	metrics      *metrics.Metrics
	signingGrace time.Duration
}

// NewLeaseManager creates a lease manager. signingGrace bounds how long a
// lease is trusted after it was obtained without re-checking the chain; the
// signer round-trip is a human approval step and can outlive any lease.
func NewLeaseManager(chain LeaseChain, signingGrace time.Duration, m *metrics.Metrics, logger *slog.Logger) *LeaseManager {
	return &LeaseManager{
		chain:        chain,
		logger:       logger,
		metrics:      m,
		signingGrace: signingGrace,
	}
}

// Lease fetches a fresh blockhash lease. reason labels why a lease was
// needed (initial composition vs. a restart after expiry).
func (lm *LeaseManager) Lease(ctx context.Context, reason string) (*BlockhashLease, error) {
	hash, lastValid, err := lm.chain.LatestBlockhash(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to lease blockhash: %w", err)
	}
	if lm.metrics != nil {
		lm.metrics.RecordLeaseRenewal(reason)
	}
	lm.logger.DebugContext(ctx, "leased blockhash",
		"blockhash", hash.String(),
		"last_valid_height", lastValid,
		"reason", reason,
	)
	return &BlockhashLease{
		Blockhash:       hash,
		LastValidHeight: lastValid,
		ObtainedAt:      time.Now(),
	}, nil
}

// Expired reports whether the lease's validity window has closed, judged
// against the live block height.
func (lm *LeaseManager) Expired(ctx context.Context, lease *BlockhashLease) (bool, error) {
	height, err := lm.chain.BlockHeight(ctx)
	if err != nil {
		return false, err
	}
	return height > lease.LastValidHeight, nil
}

// NeedsRecheck reports whether enough time has passed since the lease was
// obtained that it must be re-verified against the chain before submission.
func (lm *LeaseManager) NeedsRecheck(lease *BlockhashLease, now time.Time) bool {
	return now.Sub(lease.ObtainedAt) > lm.signingGrace
}
