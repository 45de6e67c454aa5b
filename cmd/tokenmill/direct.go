package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/urfave/cli/v2"

	"github.com/brojonat/tokenmill/client"
	"github.com/brojonat/tokenmill/service/orchestrator"
	"github.com/brojonat/tokenmill/service/signer"
	"github.com/brojonat/tokenmill/service/solana"
	"github.com/brojonat/tokenmill/service/token"
)

// directFlags enable running a token command against the RPC endpoint
// directly with a local keypair, bypassing the service API.
func directFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "keypair",
			Usage:   "Path to a JSON keypair file; sign and submit directly instead of calling the service",
			EnvVars: []string{"TOKENMILL_KEYPAIR"},
		},
		&cli.StringFlag{
			Name:    "rpc-url",
			Usage:   "Solana RPC endpoint for direct mode",
			EnvVars: []string{"SOLANA_RPC_URL"},
		},
	}
}

func directMode(c *cli.Context) bool {
	return c.String("keypair") != ""
}

// newDirectOrchestrator wires a standalone compose/sign/submit pipeline from
// the keypair and RPC flags.
func newDirectOrchestrator(c *cli.Context) (*orchestrator.Orchestrator, error) {
	rpcURL := c.String("rpc-url")
	if rpcURL == "" {
		return nil, fmt.Errorf("rpc-url is required in direct mode (set SOLANA_RPC_URL or use --rpc-url)")
	}

	sgn, err := signer.NewKeypairFromFile(c.String("keypair"))
	if err != nil {
		return nil, fmt.Errorf("failed to load keypair: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))

	chain := solana.NewClient(solana.NewRPCClient(rpcURL), rpcURL, nil, logger)
	composer := token.NewComposer(chain, logger)
	orch := orchestrator.New(composer, chain, sgn, orchestrator.Config{
		SendRetryLimit:  3,
		LeaseRetryLimit: 3,
		SigningGrace:    30 * time.Second,
	}, nil, nil, logger)

	return orch, nil
}

// outcomeToResult adapts a local orchestrator outcome to the wire shape the
// output helpers expect.
func outcomeToResult(out *orchestrator.Outcome) *client.IntentResult {
	if out == nil {
		return nil
	}
	result := &client.IntentResult{
		Intent:   out.Intent,
		Kind:     string(out.Kind),
		State:    out.State.String(),
		Message:  out.Message,
		Severity: out.Severity,
	}
	if !out.Signature.IsZero() {
		result.Signature = out.Signature.String()
	}
	if !out.Mint.IsZero() {
		result.Mint = out.Mint.String()
	}
	if out.Err != nil {
		result.Error = out.Err.Error()
	}
	return result
}

func parsePublicKey(name, value string) (solanago.PublicKey, error) {
	key, err := solanago.PublicKeyFromBase58(value)
	if err != nil {
		return solanago.PublicKey{}, fmt.Errorf("invalid %s address %q: %w", name, value, err)
	}
	return key, nil
}
