package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	solanago "github.com/gagliardetto/solana-go"

	"github.com/brojonat/tokenmill/service/metrics"
	"github.com/brojonat/tokenmill/service/nats"
	"github.com/brojonat/tokenmill/service/orchestrator"
	"github.com/brojonat/tokenmill/service/signer"
	"github.com/brojonat/tokenmill/service/snapshot"
	"github.com/brojonat/tokenmill/service/token"
)

// Chain is the full ledger surface a session needs: composition reads,
// snapshot reads, and transaction submission.
type Chain interface {
	token.ChainReader
	snapshot.ChainReader
	orchestrator.Chain
}

// Config bounds each session's polling and orchestration behavior.
type Config struct {
	PollInterval time.Duration
	HistoryLimit int
	Orchestrator orchestrator.Config
}

// Manager owns the session lifecycle. A session exists from Connect to
// Disconnect; between sessions no state is kept, truth is always re-derived
// from the ledger.
type Manager struct {
	chain     Chain
	publisher nats.Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
	cfg       Config

	mu       sync.Mutex
	sessions map[solanago.PublicKey]*Session
}

// NewManager creates a session manager. publisher and m may be nil.
func NewManager(chain Chain, publisher nats.Publisher, cfg Config, m *metrics.Metrics, logger *slog.Logger) *Manager {
	return &Manager{
		chain:     chain,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
		cfg:       cfg,
		sessions:  make(map[solanago.PublicKey]*Session),
	}
}

// Session is one owner's live connection: an orchestrator for mutating
// intents and a poller keeping the account snapshot current.
type Session struct {
	owner  solanago.PublicKey
	orch   *orchestrator.Orchestrator
	poller *snapshot.Poller
	cancel context.CancelFunc
}

// Connect creates a session for the signer's owner and starts its
// reconciliation poller. Connecting an already-connected owner returns the
// existing session.
func (m *Manager) Connect(sgn signer.Signer) (*Session, error) {
	owner := sgn.Owner()
	if owner.IsZero() {
		return nil, fmt.Errorf("signer has no owner address")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.sessions[owner]; ok {
		return existing, nil
	}

	composer := token.NewComposer(m.chain, m.logger)

	var snapPub snapshot.Publisher
	if m.publisher != nil {
		snapPub = m.publisher
	}
	poller := snapshot.NewPoller(owner, m.chain, snapPub, m.cfg.PollInterval, m.cfg.HistoryLimit, m.metrics, m.logger)

	onTerminal := func(out orchestrator.Outcome) {
		if m.publisher != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := m.publisher.PublishIntent(ctx, out); err != nil {
				m.logger.WarnContext(ctx, "failed to publish intent outcome",
					"intent", out.Intent,
					"error", err,
				)
			}
		}
		if out.State == orchestrator.StateConfirmed {
			poller.Kick()
		}
	}

	orch := orchestrator.New(composer, m.chain, sgn, m.cfg.Orchestrator, onTerminal, m.metrics, m.logger)

	ctx, cancel := context.WithCancel(context.Background())
	go poller.Run(ctx)

	session := &Session{
		owner:  owner,
		orch:   orch,
		poller: poller,
		cancel: cancel,
	}
	m.sessions[owner] = session

	m.logger.Info("session connected", "owner", owner.String())
	return session, nil
}

// Disconnect tears the owner's session down: intents still awaiting their
// signature are abandoned as failed, and the poller stops.
func (m *Manager) Disconnect(owner solanago.PublicKey) error {
	m.mu.Lock()
	session, ok := m.sessions[owner]
	if ok {
		delete(m.sessions, owner)
	}
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("no session for %s", owner)
	}

	session.orch.Abandon()
	session.cancel()
	m.logger.Info("session disconnected", "owner", owner.String())
	return nil
}

// Get returns the owner's live session, if connected.
func (m *Manager) Get(owner solanago.PublicKey) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[owner]
	return session, ok
}

// Owner returns the wallet address this session belongs to.
func (s *Session) Owner() solanago.PublicKey {
	return s.owner
}

// CreateToken creates a new mint with the owner as mint authority.
func (s *Session) CreateToken(ctx context.Context, decimals uint8) (*orchestrator.Outcome, error) {
	return s.orch.CreateToken(ctx, decimals)
}

// MintTo mints supply to the owner's associated token account.
func (s *Session) MintTo(ctx context.Context, mint solanago.PublicKey, displayAmount string) (*orchestrator.Outcome, error) {
	return s.orch.MintTo(ctx, mint, displayAmount)
}

// Transfer sends tokens to the recipient.
func (s *Session) Transfer(ctx context.Context, recipient, mint solanago.PublicKey, displayAmount string) (*orchestrator.Outcome, error) {
	return s.orch.Transfer(ctx, recipient, mint, displayAmount)
}

// Snapshot returns the latest account snapshot, or nil before the first
// refresh completes.
func (s *Session) Snapshot() *snapshot.AccountSnapshot {
	return s.poller.Current()
}

// Refresh forces an immediate snapshot rebuild and returns it.
func (s *Session) Refresh(ctx context.Context) *snapshot.AccountSnapshot {
	return s.poller.Refresh(ctx, "manual")
}
