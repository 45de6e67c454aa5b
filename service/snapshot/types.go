package snapshot

import (
	"time"

	solanago "github.com/gagliardetto/solana-go"

	"github.com/brojonat/tokenmill/service/solana"
)

// TokenAccountView is the local projection of one owned token balance. It is
// recomputed wholesale on every reconciliation pass, never patched in place.
type TokenAccountView struct {
	TokenAccount solanago.PublicKey `json:"token_account"`
	Mint         solanago.PublicKey `json:"mint"`
	Raw          uint64             `json:"raw"`
	Decimals     uint8              `json:"decimals"`
	Display      string             `json:"display"`
}

// AccountSnapshot is the aggregate view of an owner's on-chain state: native
// balance, owned token accounts, and recent transaction history. Snapshots
// are immutable once published; consumers never observe a partial update.
type AccountSnapshot struct {
	Owner        solanago.PublicKey          `json:"owner"`
	Lamports     uint64                      `json:"lamports"`
	Tokens       []TokenAccountView          `json:"tokens"`
	Transactions []solana.TransactionSummary `json:"transactions"`
	Timestamp    time.Time                   `json:"timestamp"`
}
