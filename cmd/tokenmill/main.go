package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"
)

var (
	// Version information (set via ldflags during build)
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	app := &cli.App{
		Name:  "tokenmill",
		Usage: "Solana SPL token orchestration service CLI",
		Description: `A command-line tool for driving and debugging the tokenmill service.

Use this CLI to create tokens, mint and transfer supply, inspect the
service wallet, and watch live snapshot and intent events.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Commands: []*cli.Command{
			// Token lifecycle commands (HTTP API)
			{
				Name:  "token",
				Usage: "Token lifecycle commands",
				Subcommands: []*cli.Command{
					createTokenCommand(),
					mintCommand(),
					transferCommand(),
				},
			},
			// Service wallet inspection commands (HTTP API)
			{
				Name:  "wallet",
				Usage: "Service wallet inspection commands",
				Subcommands: []*cli.Command{
					snapshotCommand(),
					historyCommand(),
					airdropCommand(),
				},
			},
			// Live event streaming
			watchCommand(),
			// Server utility commands
			{
				Name:  "server",
				Usage: "Server utility commands",
				Subcommands: []*cli.Command{
					healthCommand(),
					versionCommand(),
				},
			},
		},
		// Global flags available to all commands
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server-url",
				Usage:   "tokenmill server URL",
				EnvVars: []string{"TOKENMILL_SERVER_URL"},
				Value:   "http://localhost:8080",
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output in JSON format",
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
