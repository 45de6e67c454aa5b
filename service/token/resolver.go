package token

import (
	"fmt"

	solanago "github.com/gagliardetto/solana-go"
)

// ResolveAssociatedAccount computes the canonical associated token account
// address for an (owner, mint) pair. Pure and deterministic: no network call.
//
// This must agree bit-for-bit with the on-chain derivation. A divergence here
// sends funds to an address the recipient cannot see, which is the most
// severe class of bug in this service, so the derivation is delegated to the
// library and covered by an independent-derivation test.
func ResolveAssociatedAccount(owner, mint solanago.PublicKey) (solanago.PublicKey, error) {
	if owner.IsZero() {
		return solanago.PublicKey{}, fmt.Errorf("%w: owner address is empty", ErrInvalidArgument)
	}
	if mint.IsZero() {
		return solanago.PublicKey{}, fmt.Errorf("%w: mint address is empty", ErrInvalidArgument)
	}

	ata, _, err := solanago.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return solanago.PublicKey{}, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	return ata, nil
}
