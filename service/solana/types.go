package solana

import (
	"time"

	"github.com/gagliardetto/solana-go"
)

// TokenBalance is the raw balance of one token account owned by a wallet.
// This is our domain model, independent of the RPC response format.
// Decimals are not stored in the token account on-chain; callers that need
// display amounts must read the owning mint (see MintInfo).
type TokenBalance struct {
	TokenAccount solana.PublicKey
	Mint         solana.PublicKey
	Raw          uint64
}

// MintInfo is the decoded on-chain state of a token mint.
type MintInfo struct {
	Address       solana.PublicKey
	Decimals      uint8
	Supply        uint64
	MintAuthority *solana.PublicKey // nil if the mint authority has been revoked
}

// TransactionSummary is one entry of an address's recent transaction history.
type TransactionSummary struct {
	Signature string    `json:"signature"`
	Slot      uint64    `json:"slot"`
	BlockTime time.Time `json:"block_time"`
	Status    string    `json:"status"` // "processed", "confirmed", or "finalized"
	Err       *string   `json:"err,omitempty"` // nil if the transaction succeeded
}
