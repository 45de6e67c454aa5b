package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/brojonat/tokenmill/client"
)

// intentTimeout bounds a full compose/sign/submit/confirm cycle, including
// lease renewals on the server side.
const intentTimeout = 3 * time.Minute

func newServiceClient(c *cli.Context) *client.Client {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError, // Only errors to stderr
	}))
	return client.NewClient(c.String("server-url"), nil, logger)
}

func createTokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "create",
		Usage: "Create a new token mint with the signing wallet as authority",
		Flags: append([]cli.Flag{
			&cli.UintFlag{
				Name:    "decimals",
				Aliases: []string{"d"},
				Usage:   "Number of decimal places (0-9)",
				Value:   9,
			},
		}, directFlags()...),
		Action: func(c *cli.Context) error {
			decimals := c.Uint("decimals")
			if decimals > 9 {
				return fmt.Errorf("decimals must be between 0 and 9")
			}

			ctx, cancel := context.WithTimeout(context.Background(), intentTimeout)
			defer cancel()

			if directMode(c) {
				orch, err := newDirectOrchestrator(c)
				if err != nil {
					return err
				}
				out, err := orch.CreateToken(ctx, uint8(decimals))
				return printIntentResult(c, outcomeToResult(out), err)
			}

			cl := newServiceClient(c)
			result, err := cl.CreateToken(ctx, uint8(decimals))
			return printIntentResult(c, result, err)
		},
	}
}

func mintCommand() *cli.Command {
	return &cli.Command{
		Name:      "mint",
		Usage:     "Mint token supply into the signing wallet",
		ArgsUsage: "MINT_ADDRESS AMOUNT",
		Flags:     directFlags(),
		Action: func(c *cli.Context) error {
			if c.NArg() < 2 {
				return fmt.Errorf("mint address and amount are required")
			}
			mint := c.Args().Get(0)
			amount := c.Args().Get(1)

			ctx, cancel := context.WithTimeout(context.Background(), intentTimeout)
			defer cancel()

			if directMode(c) {
				orch, err := newDirectOrchestrator(c)
				if err != nil {
					return err
				}
				mintKey, err := parsePublicKey("mint", mint)
				if err != nil {
					return err
				}
				out, err := orch.MintTo(ctx, mintKey, amount)
				return printIntentResult(c, outcomeToResult(out), err)
			}

			cl := newServiceClient(c)
			result, err := cl.MintTo(ctx, mint, amount)
			return printIntentResult(c, result, err)
		},
	}
}

func transferCommand() *cli.Command {
	return &cli.Command{
		Name:      "transfer",
		Usage:     "Transfer tokens from the signing wallet to a recipient",
		ArgsUsage: "RECIPIENT_ADDRESS MINT_ADDRESS AMOUNT",
		Flags:     directFlags(),
		Action: func(c *cli.Context) error {
			if c.NArg() < 3 {
				return fmt.Errorf("recipient, mint address, and amount are required")
			}
			recipient := c.Args().Get(0)
			mint := c.Args().Get(1)
			amount := c.Args().Get(2)

			ctx, cancel := context.WithTimeout(context.Background(), intentTimeout)
			defer cancel()

			if directMode(c) {
				orch, err := newDirectOrchestrator(c)
				if err != nil {
					return err
				}
				recipientKey, err := parsePublicKey("recipient", recipient)
				if err != nil {
					return err
				}
				mintKey, err := parsePublicKey("mint", mint)
				if err != nil {
					return err
				}
				out, err := orch.Transfer(ctx, recipientKey, mintKey, amount)
				return printIntentResult(c, outcomeToResult(out), err)
			}

			cl := newServiceClient(c)
			result, err := cl.Transfer(ctx, recipient, mint, amount)
			return printIntentResult(c, result, err)
		},
	}
}

// printIntentResult renders a terminal intent outcome. A failed intent still
// carries an outcome body worth showing before the error is surfaced.
func printIntentResult(c *cli.Context, result *client.IntentResult, err error) error {
	if result == nil {
		return err
	}

	if c.Bool("json") {
		data, merr := json.MarshalIndent(result, "", "  ")
		if merr != nil {
			return fmt.Errorf("failed to marshal result: %w", merr)
		}
		fmt.Println(string(data))
		return err
	}

	marker := "✓"
	if result.State != "confirmed" {
		marker = "✗"
	}
	fmt.Printf("%s %s\n", marker, result.Message)
	fmt.Printf("  Intent:    %s\n", result.Intent)
	fmt.Printf("  State:     %s\n", result.State)
	if result.Mint != "" {
		fmt.Printf("  Mint:      %s\n", result.Mint)
	}
	if result.Signature != "" {
		fmt.Printf("  Signature: %s\n", result.Signature)
	}
	if result.Error != "" {
		fmt.Printf("  Error:     %s\n", result.Error)
	}
	return err
}
