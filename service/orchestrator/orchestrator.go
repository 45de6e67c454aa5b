package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/brojonat/tokenmill/service/metrics"
	"github.com/brojonat/tokenmill/service/signer"
	"github.com/brojonat/tokenmill/service/token"
)

// Composer translates user intents into instruction plans.
type Composer interface {
	ComposeCreateMint(ctx context.Context, owner solanago.PublicKey, decimals uint8) (*token.CreateMintPlan, error)
	ComposeMintTo(ctx context.Context, authority, mint solanago.PublicKey, displayAmount string) (*token.MintToPlan, error)
	ComposeTransfer(ctx context.Context, owner, recipient, mint solanago.PublicKey, displayAmount string) (*token.TransferPlan, error)
}

// Chain is the ledger surface the orchestrator needs.
type Chain interface {
	LeaseChain
	SendTransaction(ctx context.Context, tx *solanago.Transaction) (solanago.Signature, error)
	SignatureStatus(ctx context.Context, sig solanago.Signature) (*rpc.SignatureStatusesResult, error)
}

// Config bounds the orchestrator's retry and polling behavior.
type Config struct {
	// SendRetryLimit is the number of retries after the first send attempt
	// on transient network failure.
	SendRetryLimit int
	// LeaseRetryLimit is how many times an expired lease restarts the whole
	// compose, sign, submit cycle before the intent fails as Expired.
	LeaseRetryLimit int
	// SigningGrace bounds how long a signed lease is trusted without
	// re-checking the chain before submission.
	SigningGrace time.Duration
	// ConfirmPollInterval is the cadence of signature status polls while an
	// intent is Pending.
	ConfirmPollInterval time.Duration
	// SendRetryBaseDelay is the initial backoff between send retries; it
	// doubles per attempt.
	SendRetryBaseDelay time.Duration
}

func (c Config) withDefaults() Config {
	if c.ConfirmPollInterval <= 0 {
		c.ConfirmPollInterval = 2 * time.Second
	}
	if c.SendRetryBaseDelay <= 0 {
		c.SendRetryBaseDelay = 500 * time.Millisecond
	}
	return c
}

// Orchestrator drives transaction intents for a single owner through
// compose, sign, submit, and confirm. Concurrent intents are independent:
// each owns its lease and signer round-trip and never blocks another.
type Orchestrator struct {
	owner      solanago.PublicKey
	composer   Composer
	chain      Chain
	signer     signer.Signer
	leases     *LeaseManager
	onTerminal TerminalFunc
	metrics    *metrics.Metrics
	logger     *slog.Logger
	cfg        Config

	mu           sync.Mutex
	cancels      map[*TransactionIntent]context.CancelFunc
	disconnected bool
}

// New creates an orchestrator for the signer's owner. onTerminal may be nil.
func New(composer Composer, chain Chain, sgn signer.Signer, cfg Config, onTerminal TerminalFunc, m *metrics.Metrics, logger *slog.Logger) *Orchestrator {
	cfg = cfg.withDefaults()
	return &Orchestrator{
		owner:      sgn.Owner(),
		composer:   composer,
		chain:      chain,
		signer:     sgn,
		leases:     NewLeaseManager(chain, cfg.SigningGrace, m, logger),
		onTerminal: onTerminal,
		metrics:    m,
		logger:     logger,
		cfg:        cfg,
		cancels:    make(map[*TransactionIntent]context.CancelFunc),
	}
}

// Owner returns the wallet address this orchestrator acts for.
func (o *Orchestrator) Owner() solanago.PublicKey {
	return o.owner
}

// attemptPlan is one cycle's composed instructions plus the local co-signers
// that must sign before the external agent does.
type attemptPlan struct {
	instructions []solanago.Instruction
	coSigners    []solanago.PrivateKey
	mint         solanago.PublicKey
}

// CreateToken creates a new mint with the given decimal precision and the
// owner as mint authority. The mint keypair is generated per attempt and
// co-signs locally; its private key never leaves the process.
func (o *Orchestrator) CreateToken(ctx context.Context, decimals uint8) (*Outcome, error) {
	intent := newIntent(KindCreate, o.owner)
	return o.run(ctx, intent, func(ctx context.Context) (*attemptPlan, error) {
		plan, err := o.composer.ComposeCreateMint(ctx, o.owner, decimals)
		if err != nil {
			return nil, err
		}
		return &attemptPlan{
			instructions: plan.Instructions,
			coSigners:    []solanago.PrivateKey{plan.Mint.PrivateKey},
			mint:         plan.Mint.PublicKey(),
		}, nil
	})
}

// MintTo mints displayAmount of the given mint to the owner's associated
// token account.
func (o *Orchestrator) MintTo(ctx context.Context, mint solanago.PublicKey, displayAmount string) (*Outcome, error) {
	intent := newIntent(KindMint, o.owner)
	return o.run(ctx, intent, func(ctx context.Context) (*attemptPlan, error) {
		plan, err := o.composer.ComposeMintTo(ctx, o.owner, mint, displayAmount)
		if err != nil {
			return nil, err
		}
		return &attemptPlan{instructions: plan.Instructions, mint: mint}, nil
	})
}

// Transfer sends displayAmount of the given mint to the recipient.
func (o *Orchestrator) Transfer(ctx context.Context, recipient, mint solanago.PublicKey, displayAmount string) (*Outcome, error) {
	intent := newIntent(KindTransfer, o.owner)
	return o.run(ctx, intent, func(ctx context.Context) (*attemptPlan, error) {
		plan, err := o.composer.ComposeTransfer(ctx, o.owner, recipient, mint, displayAmount)
		if err != nil {
			return nil, err
		}
		return &attemptPlan{instructions: plan.Instructions, mint: mint}, nil
	})
}

// Abandon marks the session disconnected and cancels every intent that has
// not yet been submitted. Intents already on the wire keep confirming; the
// transaction is out regardless.
func (o *Orchestrator) Abandon() {
	o.mu.Lock()
	o.disconnected = true
	var cancels []context.CancelFunc
	for intent, cancel := range o.cancels {
		if intent.State() < StateSubmitting {
			cancels = append(cancels, cancel)
		}
	}
	o.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
}

func (o *Orchestrator) register(intent *TransactionIntent, cancel context.CancelFunc) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.disconnected {
		return fmt.Errorf("%w: cannot start intent", ErrDisconnected)
	}
	o.cancels[intent] = cancel
	return nil
}

func (o *Orchestrator) unregister(intent *TransactionIntent) {
	o.mu.Lock()
	delete(o.cancels, intent)
	o.mu.Unlock()
}

func (o *Orchestrator) isDisconnected() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.disconnected
}

// run drives one intent to its terminal state, restarting the whole cycle on
// lease expiry up to the configured bound.
func (o *Orchestrator) run(ctx context.Context, intent *TransactionIntent, compose func(context.Context) (*attemptPlan, error)) (*Outcome, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := o.register(intent, cancel); err != nil {
		out := o.finish(intent, nil, solanago.Signature{}, err)
		return out, err
	}
	defer o.unregister(intent)

	if o.metrics != nil {
		o.metrics.RecordIntentInFlightChange(string(intent.Kind), 1)
		defer o.metrics.RecordIntentInFlightChange(string(intent.Kind), -1)
	}

	var lastErr error
	for attempt := 0; attempt <= o.cfg.LeaseRetryLimit; attempt++ {
		reason := "intent"
		if attempt > 0 {
			reason = "expired"
		}
		sig, plan, err := o.attempt(ctx, intent, compose, reason)
		if err == nil {
			out := o.finish(intent, plan, sig, nil)
			return out, nil
		}
		if errors.Is(err, context.Canceled) && o.isDisconnected() {
			err = fmt.Errorf("%w: abandoned while awaiting signature", ErrDisconnected)
		}
		if errors.Is(err, ErrLeaseExpired) {
			lastErr = err
			o.logger.InfoContext(ctx, "blockhash lease expired, restarting cycle",
				"intent", intent.ID,
				"attempt", attempt+1,
			)
			continue
		}
		out := o.finish(intent, plan, sig, err)
		return out, err
	}

	err := fmt.Errorf("%w: lease retry budget exhausted: %v", ErrExpired, lastErr)
	out := o.finish(intent, nil, solanago.Signature{}, err)
	return out, err
}

// attempt runs one full compose, sign, submit, confirm cycle under a single
// blockhash lease. The lease is obtained immediately before signing and is
// never swapped afterward; swapping the blockhash under an applied signature
// would invalidate it. A stale lease restarts the cycle instead.
func (o *Orchestrator) attempt(ctx context.Context, intent *TransactionIntent, compose func(context.Context) (*attemptPlan, error), leaseReason string) (solanago.Signature, *attemptPlan, error) {
	intent.setState(StateComposing)
	plan, err := compose(ctx)
	if err != nil {
		return solanago.Signature{}, nil, err
	}

	lease, err := o.leases.Lease(ctx, leaseReason)
	if err != nil {
		return solanago.Signature{}, plan, fmt.Errorf("%w: %v", ErrTransientNetwork, err)
	}

	tx, err := solanago.NewTransaction(
		plan.instructions,
		lease.Blockhash,
		solanago.TransactionPayer(o.owner),
	)
	if err != nil {
		return solanago.Signature{}, plan, fmt.Errorf("failed to build transaction: %w", err)
	}

	if len(plan.coSigners) > 0 {
		_, err = tx.PartialSign(func(key solanago.PublicKey) *solanago.PrivateKey {
			for i := range plan.coSigners {
				if key.Equals(plan.coSigners[i].PublicKey()) {
					return &plan.coSigners[i]
				}
			}
			return nil
		})
		if err != nil {
			return solanago.Signature{}, plan, fmt.Errorf("failed to apply local co-signatures: %w", err)
		}
	}

	intent.setState(StateAwaitingSignature)

	if sender, ok := o.signer.(signer.Sender); ok {
		// Agent-driven path: the agent signs and submits in one step.
		sig, err := sender.SignAndSend(ctx, tx)
		if err != nil {
			if errors.Is(err, signer.ErrUserRejected) || errors.Is(err, signer.ErrUnavailable) {
				return solanago.Signature{}, plan, err
			}
			return solanago.Signature{}, plan, classifySendError(err)
		}
		intent.setState(StatePending)
		return sig, plan, o.confirm(ctx, intent, sig, lease)
	}

	if err := o.signer.SignTransaction(ctx, tx); err != nil {
		return solanago.Signature{}, plan, err
	}

	// The signer round-trip is a human approval step and can outlive the
	// lease. Check expiry against the live height before submitting; an
	// expired lease restarts the cycle rather than sending a transaction
	// the network is guaranteed to drop.
	if o.leases.NeedsRecheck(lease, time.Now()) {
		expired, err := o.leases.Expired(ctx, lease)
		if err != nil {
			// Can't judge expiry; let preflight catch a stale blockhash.
			o.logger.WarnContext(ctx, "failed to check lease expiry before submission",
				"intent", intent.ID,
				"error", err,
			)
		} else if expired {
			return solanago.Signature{}, plan, fmt.Errorf("%w: expired during signing", ErrLeaseExpired)
		}
	}

	intent.setState(StateSubmitting)
	sig, err := o.send(ctx, tx)
	if err != nil {
		return solanago.Signature{}, plan, err
	}

	intent.setState(StatePending)
	return sig, plan, o.confirm(ctx, intent, sig, lease)
}

// send submits the signed transaction, retrying transient network failures
// with doubling backoff up to the configured bound. Node-side rejections are
// never retried.
func (o *Orchestrator) send(ctx context.Context, tx *solanago.Transaction) (solanago.Signature, error) {
	var lastErr error
	delay := o.cfg.SendRetryBaseDelay
	for i := 0; i <= o.cfg.SendRetryLimit; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return solanago.Signature{}, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}

		sig, err := o.chain.SendTransaction(ctx, tx)
		if err == nil {
			o.recordSend("success")
			return sig, nil
		}

		classified := classifySendError(err)
		switch {
		case errors.Is(classified, ErrLeaseExpired):
			o.recordSend("blockhash_expired")
			return solanago.Signature{}, classified
		case errors.Is(classified, ErrSimulationRejected):
			o.recordSend("simulation_rejected")
			return solanago.Signature{}, classified
		default:
			o.recordSend("transient_error")
			lastErr = classified
			o.logger.WarnContext(ctx, "transient send failure",
				"attempt", i+1,
				"error", err,
			)
		}
	}
	return solanago.Signature{}, fmt.Errorf("send retry budget exhausted: %w", lastErr)
}

func (o *Orchestrator) recordSend(status string) {
	if o.metrics != nil {
		o.metrics.RecordSendAttempt(status)
	}
}

// confirm polls the signature's status until it finalizes, fails on-chain,
// or the lease's last-valid height is exceeded without finalization. The
// last case is explicitly ambiguous: the transaction may still have landed.
func (o *Orchestrator) confirm(ctx context.Context, intent *TransactionIntent, sig solanago.Signature, lease *BlockhashLease) error {
	ticker := time.NewTicker(o.cfg.ConfirmPollInterval)
	defer ticker.Stop()

	for {
		status, err := o.chain.SignatureStatus(ctx, sig)
		if err != nil {
			o.logger.WarnContext(ctx, "failed to poll signature status",
				"intent", intent.ID,
				"signature", sig.String(),
				"error", err,
			)
		} else if status != nil {
			if status.Err != nil {
				return fmt.Errorf("%w: %v", ErrTransactionFailed, status.Err)
			}
			if status.ConfirmationStatus == rpc.ConfirmationStatusFinalized {
				return nil
			}
		}

		height, herr := o.chain.BlockHeight(ctx)
		if herr == nil && height > lease.LastValidHeight {
			return fmt.Errorf("%w: signature %s not finalized by height %d", ErrExpired, sig, lease.LastValidHeight)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// finish moves the intent to its terminal state and delivers the outcome
// exactly once, regardless of how many paths race to report it.
func (o *Orchestrator) finish(intent *TransactionIntent, plan *attemptPlan, sig solanago.Signature, err error) *Outcome {
	out := &Outcome{
		Intent:    intent.ID,
		Kind:      intent.Kind,
		Owner:     intent.Owner,
		Signature: sig,
		Err:       err,
	}
	if plan != nil {
		out.Mint = plan.mint
	}
	if err == nil {
		out.State = StateConfirmed
		out.Message = successMessage(intent.Kind, out)
		out.Severity = "success"
	} else {
		out.State = StateFailed
		out.Message, out.Severity = failureMessage(err)
	}

	intent.once.Do(func() {
		intent.setState(out.State)
		if o.metrics != nil {
			o.metrics.RecordIntentTerminal(string(intent.Kind), terminalLabel(err), time.Since(intent.createdAt).Seconds())
		}
		o.logger.InfoContext(context.Background(), "intent reached terminal state",
			"intent", intent.ID,
			"kind", string(intent.Kind),
			"state", out.State.String(),
			"signature", sig.String(),
			"error", err,
		)
		if o.onTerminal != nil {
			o.onTerminal(*out)
		}
	})
	return out
}

func successMessage(kind IntentKind, out *Outcome) string {
	switch kind {
	case KindCreate:
		return fmt.Sprintf("Token %s created", out.Mint)
	case KindMint:
		return "Tokens minted"
	case KindTransfer:
		return "Transfer confirmed"
	default:
		return "Transaction confirmed"
	}
}

// failureMessage maps a terminal error to a human-readable message and a
// severity tag. A deliberate user cancel is informational, not an error.
func failureMessage(err error) (string, string) {
	switch {
	case errors.Is(err, signer.ErrUserRejected):
		return "Transaction cancelled", "info"
	case errors.Is(err, signer.ErrUnavailable):
		return "Wallet is not connected", "error"
	case errors.Is(err, ErrDisconnected):
		return "Wallet disconnected before signing", "info"
	case errors.Is(err, ErrExpired):
		return "Transaction validity window passed; verify on-chain state before retrying", "error"
	case errors.Is(err, ErrSimulationRejected):
		return fmt.Sprintf("Transaction rejected: %v", err), "error"
	case errors.Is(err, ErrTransactionFailed):
		return fmt.Sprintf("Transaction failed: %v", err), "error"
	case errors.Is(err, token.ErrInvalidArgument):
		return fmt.Sprintf("Invalid request: %v", err), "error"
	default:
		return fmt.Sprintf("Transaction failed: %v", err), "error"
	}
}

func terminalLabel(err error) string {
	switch {
	case err == nil:
		return "confirmed"
	case errors.Is(err, signer.ErrUserRejected):
		return "user_rejected"
	case errors.Is(err, signer.ErrUnavailable):
		return "signer_unavailable"
	case errors.Is(err, ErrDisconnected):
		return "disconnected"
	case errors.Is(err, ErrExpired):
		return "expired"
	case errors.Is(err, ErrSimulationRejected):
		return "simulation_rejected"
	case errors.Is(err, ErrTransactionFailed):
		return "failed_on_chain"
	case errors.Is(err, ErrTransientNetwork):
		return "transient_network"
	case errors.Is(err, token.ErrInvalidArgument):
		return "invalid_argument"
	default:
		return "failed"
	}
}
