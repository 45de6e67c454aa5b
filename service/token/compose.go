package token

import (
	"context"
	"fmt"
	"log/slog"

	solanago "github.com/gagliardetto/solana-go"
	ata "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/programs/system"
	tokenprog "github.com/gagliardetto/solana-go/programs/token"

	"github.com/brojonat/tokenmill/service/solana"
)

// MintAccountSize is the serialized size of an SPL mint account in bytes.
const MintAccountSize = 82

// ChainReader is the narrow read surface the composer needs. The composer
// performs no I/O beyond these reads: mint decimals, destination existence,
// and the rent-exempt minimum for a new mint account.
type ChainReader interface {
	GetMint(ctx context.Context, mint solanago.PublicKey) (*solana.MintInfo, error)
	AccountExists(ctx context.Context, account solanago.PublicKey) (bool, error)
	MinimumRentExemptBalance(ctx context.Context, dataSize uint64) (uint64, error)
}

// Composer translates user intents into ordered, minimal instruction
// sequences. It never signs and never submits.
type Composer struct {
	chain  ChainReader
	logger *slog.Logger
}

// NewComposer creates a new instruction composer.
func NewComposer(chain ChainReader, logger *slog.Logger) *Composer {
	return &Composer{
		chain:  chain,
		logger: logger,
	}
}

// CreateMintPlan is the composed instruction sequence for creating a new
// token mint. The Mint keypair is generated locally and is required as a
// co-signer; its private key never leaves the process.
type CreateMintPlan struct {
	Instructions []solanago.Instruction
	Mint         *solanago.Wallet
	Decimals     uint8
}

// MintToPlan is the composed instruction sequence for minting supply to the
// authority's associated token account.
type MintToPlan struct {
	Instructions       []solanago.Instruction
	Destination        solanago.PublicKey
	RawAmount          uint64
	Decimals           uint8
	CreatedDestination bool
}

// TransferPlan is the composed instruction sequence for transferring tokens
// to a recipient's associated token account.
type TransferPlan struct {
	Instructions       []solanago.Instruction
	Source             solanago.PublicKey
	Destination        solanago.PublicKey
	RawAmount          uint64
	Decimals           uint8
	CreatedDestination bool
}

// ComposeCreateMint builds the two-instruction sequence that allocates a
// rent-exempt account sized for mint metadata and initializes it as a mint
// with the requested decimal precision and the owner as mint authority.
func (c *Composer) ComposeCreateMint(ctx context.Context, owner solanago.PublicKey, decimals uint8) (*CreateMintPlan, error) {
	if owner.IsZero() {
		return nil, fmt.Errorf("%w: owner address is empty", ErrInvalidArgument)
	}
	if decimals > MaxDecimals {
		return nil, fmt.Errorf("%w: decimals %d exceeds maximum %d", ErrInvalidArgument, decimals, MaxDecimals)
	}

	rent, err := c.chain.MinimumRentExemptBalance(ctx, MintAccountSize)
	if err != nil {
		return nil, fmt.Errorf("failed to get rent-exempt minimum for mint: %w", err)
	}

	mint := solanago.NewWallet()

	createIx := system.NewCreateAccountInstruction(
		rent,
		MintAccountSize,
		solanago.TokenProgramID,
		owner,
		mint.PublicKey(),
	).Build()

	initIx := tokenprog.NewInitializeMintInstructionBuilder().
		SetDecimals(decimals).
		SetMintAuthority(owner).
		SetMintAccount(mint.PublicKey()).
		SetSysVarRentPubkeyAccount(solanago.SysVarRentPubkey).
		Build()

	c.logger.DebugContext(ctx, "composed create-mint instructions",
		"owner", owner.String(),
		"mint", mint.PublicKey().String(),
		"decimals", decimals,
		"rent_lamports", rent,
	)

	return &CreateMintPlan{
		Instructions: []solanago.Instruction{createIx, initIx},
		Mint:         mint,
		Decimals:     decimals,
	}, nil
}

// ComposeMintTo builds the instruction sequence that mints displayAmount of
// the given mint to the authority's associated token account. If that
// account does not exist yet, its creation is prepended so the same
// transaction atomically creates-and-credits; there is no partial-failure
// window where minted tokens cannot land.
//
// The amount is converted with the mint's live on-chain decimals, never an
// assumed constant.
func (c *Composer) ComposeMintTo(ctx context.Context, authority, mint solanago.PublicKey, displayAmount string) (*MintToPlan, error) {
	if authority.IsZero() {
		return nil, fmt.Errorf("%w: authority address is empty", ErrInvalidArgument)
	}
	if mint.IsZero() {
		return nil, fmt.Errorf("%w: mint address is empty", ErrInvalidArgument)
	}

	mintInfo, err := c.chain.GetMint(ctx, mint)
	if err != nil {
		return nil, fmt.Errorf("failed to read mint %s: %w", mint, err)
	}
	if mintInfo.MintAuthority == nil {
		return nil, fmt.Errorf("%w: mint %s has no mint authority (supply is fixed)", ErrInvalidArgument, mint)
	}
	if !mintInfo.MintAuthority.Equals(authority) {
		return nil, fmt.Errorf("%w: %s is not the mint authority of %s", ErrInvalidArgument, authority, mint)
	}

	raw, err := DisplayToRaw(displayAmount, mintInfo.Decimals)
	if err != nil {
		return nil, err
	}

	dest, err := ResolveAssociatedAccount(authority, mint)
	if err != nil {
		return nil, err
	}

	exists, err := c.chain.AccountExists(ctx, dest)
	if err != nil {
		return nil, fmt.Errorf("failed to check destination account %s: %w", dest, err)
	}

	var instrs []solanago.Instruction
	if !exists {
		instrs = append(instrs, ata.NewCreateInstruction(authority, authority, mint).Build())
	}
	instrs = append(instrs, tokenprog.NewMintToInstruction(raw, mint, dest, authority, nil).Build())

	c.logger.DebugContext(ctx, "composed mint-to instructions",
		"mint", mint.String(),
		"destination", dest.String(),
		"raw_amount", raw,
		"decimals", mintInfo.Decimals,
		"created_destination", !exists,
	)

	return &MintToPlan{
		Instructions:       instrs,
		Destination:        dest,
		RawAmount:          raw,
		Decimals:           mintInfo.Decimals,
		CreatedDestination: !exists,
	}, nil
}

// ComposeTransfer builds the instruction sequence that transfers
// displayAmount of the given mint from the owner to the recipient. If the
// recipient's associated token account does not exist, its creation (funded
// by the sender) is prepended so the transaction atomically
// creates-and-credits.
//
// The amount is converted with the mint's live on-chain decimals, never an
// assumed constant: mints are created with arbitrary precision.
func (c *Composer) ComposeTransfer(ctx context.Context, owner, recipient, mint solanago.PublicKey, displayAmount string) (*TransferPlan, error) {
	if owner.IsZero() {
		return nil, fmt.Errorf("%w: owner address is empty", ErrInvalidArgument)
	}
	if recipient.IsZero() {
		return nil, fmt.Errorf("%w: recipient address is empty", ErrInvalidArgument)
	}
	if mint.IsZero() {
		return nil, fmt.Errorf("%w: mint address is empty", ErrInvalidArgument)
	}
	if recipient.Equals(owner) {
		return nil, fmt.Errorf("%w: recipient is the sender", ErrInvalidArgument)
	}

	mintInfo, err := c.chain.GetMint(ctx, mint)
	if err != nil {
		return nil, fmt.Errorf("failed to read mint %s: %w", mint, err)
	}

	raw, err := DisplayToRaw(displayAmount, mintInfo.Decimals)
	if err != nil {
		return nil, err
	}

	source, err := ResolveAssociatedAccount(owner, mint)
	if err != nil {
		return nil, err
	}
	dest, err := ResolveAssociatedAccount(recipient, mint)
	if err != nil {
		return nil, err
	}

	exists, err := c.chain.AccountExists(ctx, dest)
	if err != nil {
		return nil, fmt.Errorf("failed to check destination account %s: %w", dest, err)
	}

	var instrs []solanago.Instruction
	if !exists {
		// Sender pays for the recipient's associated account.
		instrs = append(instrs, ata.NewCreateInstruction(owner, recipient, mint).Build())
	}
	instrs = append(instrs, tokenprog.NewTransferInstruction(raw, source, dest, owner, nil).Build())

	c.logger.DebugContext(ctx, "composed transfer instructions",
		"mint", mint.String(),
		"source", source.String(),
		"destination", dest.String(),
		"raw_amount", raw,
		"decimals", mintInfo.Decimals,
		"created_destination", !exists,
	)

	return &TransferPlan{
		Instructions:       instrs,
		Source:             source,
		Destination:        dest,
		RawAmount:          raw,
		Decimals:           mintInfo.Decimals,
		CreatedDestination: !exists,
	}, nil
}
