package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"
)

func snapshotCommand() *cli.Command {
	return &cli.Command{
		Name:  "snapshot",
		Usage: "Show the service wallet's current account snapshot",
		Action: func(c *cli.Context) error {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			cl := newServiceClient(c)
			snap, err := cl.Snapshot(ctx)
			if err != nil {
				return fmt.Errorf("failed to get snapshot: %w", err)
			}

			if c.Bool("json") {
				data, err := json.MarshalIndent(snap, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to marshal snapshot: %w", err)
				}
				fmt.Println(string(data))
				return nil
			}

			fmt.Printf("Owner:    %s\n", snap.Owner)
			fmt.Printf("Balance:  %.9f SOL (%d lamports)\n", float64(snap.Lamports)/1e9, snap.Lamports)
			fmt.Printf("As of:    %s\n", snap.Timestamp.Format(time.RFC3339))

			if len(snap.Tokens) == 0 {
				fmt.Println("\nNo token holdings.")
			} else {
				fmt.Printf("\nTokens (%d):\n", len(snap.Tokens))
				for _, tok := range snap.Tokens {
					fmt.Printf("  %s  %s (raw %d, %d decimals)\n", tok.Mint, tok.Display, tok.Raw, tok.Decimals)
				}
			}

			if len(snap.Transactions) > 0 {
				fmt.Printf("\nRecent transactions (%d):\n", len(snap.Transactions))
				for _, txn := range snap.Transactions {
					printTransactionLine(txn.Signature, txn.Status, txn.Slot, txn.Err)
				}
			}
			return nil
		},
	}
}

func historyCommand() *cli.Command {
	return &cli.Command{
		Name:    "history",
		Aliases: []string{"txns", "tx"},
		Usage:   "List recent transactions for the service wallet",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"l"},
				Usage:   "Maximum number of transactions to return (1-100)",
				Value:   10,
			},
		},
		Action: func(c *cli.Context) error {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			cl := newServiceClient(c)
			history, err := cl.History(ctx, c.Int("limit"))
			if err != nil {
				return fmt.Errorf("failed to get history: %w", err)
			}

			if c.Bool("json") {
				data, err := json.MarshalIndent(history, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to marshal history: %w", err)
				}
				fmt.Println(string(data))
				return nil
			}

			if len(history) == 0 {
				fmt.Println("No transactions found.")
				return nil
			}
			for _, txn := range history {
				printTransactionLine(txn.Signature, txn.Status, txn.Slot, txn.Err)
			}
			return nil
		},
	}
}

func airdropCommand() *cli.Command {
	return &cli.Command{
		Name:  "airdrop",
		Usage: "Request SOL from the devnet faucet for the service wallet",
		Flags: []cli.Flag{
			&cli.Uint64Flag{
				Name:  "lamports",
				Usage: "Amount to request in lamports (default: 1 SOL)",
			},
		},
		Action: func(c *cli.Context) error {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			cl := newServiceClient(c)
			sig, err := cl.Airdrop(ctx, c.Uint64("lamports"))
			if err != nil {
				return fmt.Errorf("airdrop failed: %w", err)
			}

			fmt.Printf("✓ Airdrop requested\n")
			fmt.Printf("  Signature: %s\n", sig)
			return nil
		},
	}
}

func printTransactionLine(signature, status string, slot uint64, txErr *string) {
	line := fmt.Sprintf("  %s  slot=%d  %s", signature, slot, status)
	if txErr != nil {
		line += fmt.Sprintf("  err=%s", *txErr)
	}
	fmt.Println(line)
}
