package snapshot

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	solanago "github.com/gagliardetto/solana-go"

	"github.com/brojonat/tokenmill/service/metrics"
	"github.com/brojonat/tokenmill/service/solana"
	"github.com/brojonat/tokenmill/service/token"
)

// ChainReader is the read surface the poller needs.
type ChainReader interface {
	GetNativeBalance(ctx context.Context, owner solanago.PublicKey) (uint64, error)
	GetTokenBalances(ctx context.Context, owner solanago.PublicKey) ([]solana.TokenBalance, error)
	GetMint(ctx context.Context, mint solanago.PublicKey) (*solana.MintInfo, error)
	RecentSignatures(ctx context.Context, address solanago.PublicKey, limit int) ([]solana.TransactionSummary, error)
}

// Publisher receives each freshly published snapshot.
type Publisher interface {
	PublishSnapshot(ctx context.Context, snap *AccountSnapshot) error
}

// Poller reconciles the local view of one owner's account against the chain
// on a fixed cadence, and immediately after every confirmed mutation via
// Kick. Each pass rebuilds the snapshot wholesale and swaps it in
// atomically; sub-reads are isolated, so one failed read degrades only its
// part of the snapshot (the prior value is kept) and self-heals next cycle.
type Poller struct {
	owner        solanago.PublicKey
	chain        ChainReader
	publisher    Publisher
	metrics      *metrics.Metrics
	logger       *slog.Logger
	interval     time.Duration
	historyLimit int

	current atomic.Pointer[AccountSnapshot]
	kick    chan struct{}

	// Mint decimals are fixed at creation, so they are cached forever.
	decimalsMu sync.Mutex
	decimals   map[solanago.PublicKey]uint8
}

// NewPoller creates a reconciliation poller for the given owner. publisher
// and m may be nil.
func NewPoller(owner solanago.PublicKey, chain ChainReader, publisher Publisher, interval time.Duration, historyLimit int, m *metrics.Metrics, logger *slog.Logger) *Poller {
	return &Poller{
		owner:        owner,
		chain:        chain,
		publisher:    publisher,
		metrics:      m,
		logger:       logger,
		interval:     interval,
		historyLimit: historyLimit,
		kick:         make(chan struct{}, 1),
		decimals:     make(map[solanago.PublicKey]uint8),
	}
}

// Current returns the most recently published snapshot, or nil before the
// first refresh completes.
func (p *Poller) Current() *AccountSnapshot {
	return p.current.Load()
}

// Kick schedules an immediate refresh. Coalesces when one is already queued.
func (p *Poller) Kick() {
	select {
	case p.kick <- struct{}{}:
	default:
	}
}

// Run refreshes once immediately, then on the fixed cadence and on every
// kick, until the context is cancelled.
func (p *Poller) Run(ctx context.Context) {
	p.Refresh(ctx, "initial")

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Refresh(ctx, "interval")
		case <-p.kick:
			p.Refresh(ctx, "mutation")
		}
	}
}

// Refresh rebuilds the snapshot from the chain and publishes it. Refreshes
// may race (timer vs. post-mutation kick); last writer wins, and a later
// poll corrects any transient inconsistency.
func (p *Poller) Refresh(ctx context.Context, trigger string) *AccountSnapshot {
	start := time.Now()
	prev := p.current.Load()
	status := "success"

	snap := &AccountSnapshot{
		Owner:     p.owner,
		Timestamp: time.Now(),
	}

	lamports, err := p.chain.GetNativeBalance(ctx, p.owner)
	if err != nil {
		status = "partial"
		p.degrade(ctx, "balance", err)
		if prev != nil {
			snap.Lamports = prev.Lamports
		}
	} else {
		snap.Lamports = lamports
	}

	tokens, err := p.buildTokenViews(ctx, prev)
	if err != nil {
		status = "partial"
		p.degrade(ctx, "tokens", err)
		if prev != nil {
			snap.Tokens = prev.Tokens
		}
	} else {
		snap.Tokens = tokens
	}

	history, err := p.chain.RecentSignatures(ctx, p.owner, p.historyLimit)
	if err != nil {
		status = "partial"
		p.degrade(ctx, "history", err)
		if prev != nil {
			snap.Transactions = prev.Transactions
		}
	} else {
		snap.Transactions = history
	}

	p.current.Store(snap)

	if p.metrics != nil {
		p.metrics.RecordSnapshotRefresh(status, trigger, time.Since(start).Seconds())
	}
	p.logger.DebugContext(ctx, "published account snapshot",
		"owner", p.owner.String(),
		"trigger", trigger,
		"status", status,
		"tokens", len(snap.Tokens),
	)

	if p.publisher != nil {
		if err := p.publisher.PublishSnapshot(ctx, snap); err != nil {
			p.logger.WarnContext(ctx, "failed to publish snapshot",
				"owner", p.owner.String(),
				"error", err,
			)
		}
	}
	return snap
}

// buildTokenViews enumerates the owner's token accounts and computes display
// balances from each mint's decimals. A failed decimals read falls back to
// the previous view for that account rather than failing the whole pass.
func (p *Poller) buildTokenViews(ctx context.Context, prev *AccountSnapshot) ([]TokenAccountView, error) {
	balances, err := p.chain.GetTokenBalances(ctx, p.owner)
	if err != nil {
		return nil, err
	}

	views := make([]TokenAccountView, 0, len(balances))
	for _, b := range balances {
		decimals, err := p.mintDecimals(ctx, b.Mint)
		if err != nil {
			p.degrade(ctx, "mint_decimals", err)
			if old, ok := previousView(prev, b.TokenAccount); ok {
				old.Raw = b.Raw
				old.Display = token.RawToDisplay(b.Raw, old.Decimals)
				views = append(views, old)
			}
			continue
		}
		views = append(views, TokenAccountView{
			TokenAccount: b.TokenAccount,
			Mint:         b.Mint,
			Raw:          b.Raw,
			Decimals:     decimals,
			Display:      token.RawToDisplay(b.Raw, decimals),
		})
	}

	sort.Slice(views, func(i, j int) bool {
		return views[i].Mint.String() < views[j].Mint.String()
	})
	return views, nil
}

func (p *Poller) mintDecimals(ctx context.Context, mint solanago.PublicKey) (uint8, error) {
	p.decimalsMu.Lock()
	d, ok := p.decimals[mint]
	p.decimalsMu.Unlock()
	if ok {
		return d, nil
	}

	info, err := p.chain.GetMint(ctx, mint)
	if err != nil {
		return 0, err
	}

	p.decimalsMu.Lock()
	p.decimals[mint] = info.Decimals
	p.decimalsMu.Unlock()
	return info.Decimals, nil
}

func (p *Poller) degrade(ctx context.Context, part string, err error) {
	if p.metrics != nil {
		p.metrics.RecordSnapshotPartial(part)
	}
	p.logger.WarnContext(ctx, "snapshot sub-read failed, keeping prior value",
		"owner", p.owner.String(),
		"part", part,
		"error", err,
	)
}

func previousView(prev *AccountSnapshot, tokenAccount solanago.PublicKey) (TokenAccountView, bool) {
	if prev == nil {
		return TokenAccountView{}, false
	}
	for _, v := range prev.Tokens {
		if v.TokenAccount.Equals(tokenAccount) {
			return v, true
		}
	}
	return TokenAccountView{}, false
}
