package signer

import (
	"context"
	"errors"

	solanago "github.com/gagliardetto/solana-go"
)

var (
	// ErrUserRejected is returned when the signing agent explicitly declines
	// to sign. It is a terminal outcome: the caller must not retry.
	ErrUserRejected = errors.New("signing rejected")

	// ErrUnavailable is returned when the signing agent cannot be reached or
	// is no longer connected.
	ErrUnavailable = errors.New("signer unavailable")
)

// Signer is a signing agent for a single wallet. Implementations hold the
// private key material (or proxy to whatever does); callers never see it.
//
// SignTransaction adds the agent's signature in place. The transaction may
// already carry partial signatures from other required signers, and those
// must be preserved. The context bounds how long the caller is willing to
// wait for a signature.
type Signer interface {
	Owner() solanago.PublicKey
	SignTransaction(ctx context.Context, tx *solanago.Transaction) error
}

// Sender is an optional extension for agents that submit transactions
// themselves instead of returning a signature. When a Signer also implements
// Sender, the caller delegates submission and receives the signature of the
// already-sent transaction.
type Sender interface {
	SignAndSend(ctx context.Context, tx *solanago.Transaction) (solanago.Signature, error)
}
