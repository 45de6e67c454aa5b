package orchestrator

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	solanago "github.com/gagliardetto/solana-go"
)

// IntentKind identifies the mutating operation an intent performs.
type IntentKind string

const (
	KindCreate   IntentKind = "create"
	KindMint     IntentKind = "mint"
	KindTransfer IntentKind = "transfer"
)

// IntentState is the lifecycle state of a transaction intent.
type IntentState int32

const (
	StateComposing IntentState = iota
	StateAwaitingSignature
	StateSubmitting
	StatePending
	StateConfirmed
	StateFailed
)

func (s IntentState) String() string {
	switch s {
	case StateComposing:
		return "composing"
	case StateAwaitingSignature:
		return "awaiting_signature"
	case StateSubmitting:
		return "submitting"
	case StatePending:
		return "pending"
	case StateConfirmed:
		return "confirmed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

var intentSeq atomic.Uint64

// TransactionIntent is one in-flight mutating request. It owns its blockhash
// lease exclusively, moves through the lifecycle states exactly once, and is
// discarded after reaching a terminal state.
type TransactionIntent struct {
	ID        string
	Kind      IntentKind
	Owner     solanago.PublicKey
	createdAt time.Time

	state atomic.Int32
	once  sync.Once
}

func newIntent(kind IntentKind, owner solanago.PublicKey) *TransactionIntent {
	return &TransactionIntent{
		ID:        fmt.Sprintf("%s-%d", kind, intentSeq.Add(1)),
		Kind:      kind,
		Owner:     owner,
		createdAt: time.Now(),
	}
}

// State returns the intent's current lifecycle state.
func (i *TransactionIntent) State() IntentState {
	return IntentState(i.state.Load())
}

func (i *TransactionIntent) setState(s IntentState) {
	i.state.Store(int32(s))
}

// Outcome is the single terminal report for an intent. It is delivered
// exactly once to the terminal callback and returned to the caller.
type Outcome struct {
	Intent    string
	Kind      IntentKind
	Owner     solanago.PublicKey
	State     IntentState
	Signature solanago.Signature
	Mint      solanago.PublicKey
	Err       error
	Message   string
	Severity  string
}

// TerminalFunc receives each intent's terminal outcome. Implementations must
// not block; they run on the intent's goroutine.
type TerminalFunc func(Outcome)
