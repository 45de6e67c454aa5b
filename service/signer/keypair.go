package signer

import (
	"context"
	"fmt"

	solanago "github.com/gagliardetto/solana-go"
)

// Keypair is a Signer backed by a local private key. It is used by the
// service wallet and by the CLI; interactive wallets connect through their
// own agents instead.
type Keypair struct {
	key solanago.PrivateKey
}

// NewKeypair creates a signer from an existing private key.
func NewKeypair(key solanago.PrivateKey) (*Keypair, error) {
	if len(key) == 0 {
		return nil, fmt.Errorf("private key is empty")
	}
	return &Keypair{key: key}, nil
}

// NewKeypairFromFile loads a signer from a solana-keygen JSON keypair file.
func NewKeypairFromFile(path string) (*Keypair, error) {
	key, err := solanago.PrivateKeyFromSolanaKeygenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load keypair from %s: %w", path, err)
	}
	return &Keypair{key: key}, nil
}

// Owner returns the public key this signer signs for.
func (k *Keypair) Owner() solanago.PublicKey {
	return k.key.PublicKey()
}

// SignTransaction signs for the keypair's own key, leaving any signatures
// already applied by other signers intact.
func (k *Keypair) SignTransaction(ctx context.Context, tx *solanago.Transaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := tx.PartialSign(func(key solanago.PublicKey) *solanago.PrivateKey {
		if key.Equals(k.key.PublicKey()) {
			return &k.key
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to sign transaction: %w", err)
	}
	return nil
}
