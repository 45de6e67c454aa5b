package orchestrator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
)

var (
	// ErrLeaseExpired means the blockhash lease went stale before submission.
	// Recoverable: the compose, sign, submit cycle restarts with a fresh lease.
	ErrLeaseExpired = errors.New("blockhash lease expired")

	// ErrExpired means the transaction's validity window was exceeded on-chain
	// without the signature reaching finalization. The transaction may or may
	// not have landed; the caller must re-check on-chain state rather than
	// assume failure.
	ErrExpired = errors.New("transaction validity window exceeded")

	// ErrSimulationRejected means the network's preflight simulation rejected
	// the transaction (insufficient funds, account already initialized, ...).
	// Terminal, never retried; the simulation's reason is attached.
	ErrSimulationRejected = errors.New("preflight simulation rejected")

	// ErrTransactionFailed means the transaction landed on-chain and failed.
	ErrTransactionFailed = errors.New("transaction failed on-chain")

	// ErrTransientNetwork covers RPC timeouts and connection failures during
	// submission. Retried with backoff up to the configured bound.
	ErrTransientNetwork = errors.New("transient network error")

	// ErrDisconnected means the owning session disconnected while the intent
	// was still awaiting its signature. The intent is abandoned.
	ErrDisconnected = errors.New("session disconnected")
)

// classifySendError maps a raw send failure onto the retry taxonomy. A
// structured RPC error is a node-side verdict: blockhash staleness restarts
// the cycle, anything else is a preflight rejection and terminal. Everything
// else (timeouts, resets) is transient and retryable.
func classifySendError(err error) error {
	var rpcErr *jsonrpc.RPCError
	if errors.As(err, &rpcErr) {
		if strings.Contains(rpcErr.Message, "Blockhash not found") {
			return fmt.Errorf("%w: %s", ErrLeaseExpired, rpcErr.Message)
		}
		return fmt.Errorf("%w: %s", ErrSimulationRejected, rpcErr.Message)
	}
	return fmt.Errorf("%w: %v", ErrTransientNetwork, err)
}
