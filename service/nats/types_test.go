package nats

import (
	"errors"
	"testing"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"

	"github.com/brojonat/tokenmill/service/orchestrator"
	"github.com/brojonat/tokenmill/service/snapshot"
)

func TestFromSnapshot(t *testing.T) {
	owner := solanago.NewWallet().PublicKey()
	snap := &snapshot.AccountSnapshot{
		Owner:    owner,
		Lamports: 42,
		Tokens: []snapshot.TokenAccountView{
			{Raw: 1000, Decimals: 2, Display: "10"},
		},
		Timestamp: time.Now(),
	}

	event := FromSnapshot(snap)
	assert.Equal(t, owner.String(), event.Owner)
	assert.Equal(t, uint64(42), event.Lamports)
	assert.Len(t, event.Tokens, 1)
	assert.False(t, event.PublishedAt.IsZero())
}

func TestFromOutcome_Confirmed(t *testing.T) {
	owner := solanago.NewWallet().PublicKey()
	mint := solanago.NewWallet().PublicKey()
	out := orchestrator.Outcome{
		Intent:   "create-1",
		Kind:     orchestrator.KindCreate,
		Owner:    owner,
		State:    orchestrator.StateConfirmed,
		Mint:     mint,
		Message:  "Token created",
		Severity: "success",
	}

	event := FromOutcome(out)
	assert.Equal(t, "create", event.Kind)
	assert.Equal(t, "confirmed", event.State)
	assert.Equal(t, mint.String(), event.Mint)
	assert.Empty(t, event.Signature)
	assert.Empty(t, event.Error)
}

func TestFromOutcome_Failed(t *testing.T) {
	out := orchestrator.Outcome{
		Intent:   "transfer-2",
		Kind:     orchestrator.KindTransfer,
		Owner:    solanago.NewWallet().PublicKey(),
		State:    orchestrator.StateFailed,
		Err:      errors.New("transaction cancelled"),
		Message:  "Transaction cancelled",
		Severity: "info",
	}

	event := FromOutcome(out)
	assert.Equal(t, "failed", event.State)
	assert.Equal(t, "info", event.Severity)
	assert.Equal(t, "transaction cancelled", event.Error)
	assert.Empty(t, event.Mint)
}

func TestSubjects(t *testing.T) {
	assert.Equal(t, "accounts.abc", SnapshotSubject("abc"))
	assert.Equal(t, "intents.abc", IntentSubject("abc"))
}
