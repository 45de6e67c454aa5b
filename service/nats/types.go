package nats

import (
	"time"

	"github.com/brojonat/tokenmill/service/orchestrator"
	"github.com/brojonat/tokenmill/service/snapshot"
	"github.com/brojonat/tokenmill/service/solana"
)

// SnapshotEvent is an account snapshot published to "accounts.{owner}".
type SnapshotEvent struct {
	Owner        string                      `json:"owner"`
	Lamports     uint64                      `json:"lamports"`
	Tokens       []snapshot.TokenAccountView `json:"tokens"`
	Transactions []solana.TransactionSummary `json:"transactions"`
	Timestamp    time.Time                   `json:"timestamp"`
	PublishedAt  time.Time                   `json:"published_at"`
}

// FromSnapshot converts an account snapshot to its published event.
func FromSnapshot(snap *snapshot.AccountSnapshot) *SnapshotEvent {
	return &SnapshotEvent{
		Owner:        snap.Owner.String(),
		Lamports:     snap.Lamports,
		Tokens:       snap.Tokens,
		Transactions: snap.Transactions,
		Timestamp:    snap.Timestamp,
		PublishedAt:  time.Now().UTC(),
	}
}

// IntentEvent is a transaction intent's terminal outcome published to
// "intents.{owner}". Message and Severity are presentation-ready: severity is
// one of success, error, info.
type IntentEvent struct {
	Intent      string    `json:"intent"`
	Kind        string    `json:"kind"`
	Owner       string    `json:"owner"`
	State       string    `json:"state"`
	Signature   string    `json:"signature,omitempty"`
	Mint        string    `json:"mint,omitempty"`
	Message     string    `json:"message"`
	Severity    string    `json:"severity"`
	Error       string    `json:"error,omitempty"`
	PublishedAt time.Time `json:"published_at"`
}

// FromOutcome converts an intent's terminal outcome to its published event.
func FromOutcome(out orchestrator.Outcome) *IntentEvent {
	event := &IntentEvent{
		Intent:      out.Intent,
		Kind:        string(out.Kind),
		Owner:       out.Owner.String(),
		State:       out.State.String(),
		Message:     out.Message,
		Severity:    out.Severity,
		PublishedAt: time.Now().UTC(),
	}
	if !out.Signature.IsZero() {
		event.Signature = out.Signature.String()
	}
	if !out.Mint.IsZero() {
		event.Mint = out.Mint.String()
	}
	if out.Err != nil {
		event.Error = out.Err.Error()
	}
	return event
}
