package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"

	solanago "github.com/gagliardetto/solana-go"

	"github.com/brojonat/tokenmill/service/orchestrator"
	"github.com/brojonat/tokenmill/service/signer"
	"github.com/brojonat/tokenmill/service/token"
)

const (
	maxRequestBodySize = 1 << 20 // 1MB
	maxAddressLength   = 100     // Solana addresses are 44 chars, give buffer
	maxHistoryLimit    = 100

	// defaultAirdropLamports is one SOL, the devnet faucet's usual grant.
	defaultAirdropLamports = 1_000_000_000
)

// Valid Solana address characters: base58 (no 0, O, I, l)
var validAddressRegex = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]+$`)

type createTokenRequest struct {
	Decimals uint8 `json:"decimals"`
}

type mintRequest struct {
	Amount string `json:"amount"`
}

type transferRequest struct {
	Recipient string `json:"recipient"`
	Mint      string `json:"mint"`
	Amount    string `json:"amount"`
}

type airdropRequest struct {
	Lamports uint64 `json:"lamports"`
}

// intentResponse is the wire form of a terminal intent outcome.
type intentResponse struct {
	Intent    string `json:"intent"`
	Kind      string `json:"kind"`
	State     string `json:"state"`
	Signature string `json:"signature,omitempty"`
	Mint      string `json:"mint,omitempty"`
	Message   string `json:"message"`
	Severity  string `json:"severity"`
	Error     string `json:"error,omitempty"`
}

func outcomeToResponse(out *orchestrator.Outcome) intentResponse {
	resp := intentResponse{
		Intent:   out.Intent,
		Kind:     string(out.Kind),
		State:    out.State.String(),
		Message:  out.Message,
		Severity: out.Severity,
	}
	if !out.Signature.IsZero() {
		resp.Signature = out.Signature.String()
	}
	if !out.Mint.IsZero() {
		resp.Mint = out.Mint.String()
	}
	if out.Err != nil {
		resp.Error = out.Err.Error()
	}
	return resp
}

// outcomeStatus maps a terminal outcome to an HTTP status. A user cancel is
// a conflict rather than a server fault; an ambiguous expiry is a gateway
// timeout so the caller knows to re-check rather than assume failure.
func outcomeStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, token.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, signer.ErrUserRejected):
		return http.StatusConflict
	case errors.Is(err, signer.ErrUnavailable), errors.Is(err, orchestrator.ErrDisconnected):
		return http.StatusServiceUnavailable
	case errors.Is(err, orchestrator.ErrExpired):
		return http.StatusGatewayTimeout
	case errors.Is(err, orchestrator.ErrSimulationRejected), errors.Is(err, orchestrator.ErrTransactionFailed):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadGateway
	}
}

// handleCreateToken creates a new token mint.
// POST /api/v1/tokens
func handleCreateToken(sess SessionAPI, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req createTokenRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		out, err := sess.CreateToken(r.Context(), req.Decimals)
		if err != nil {
			logger.Debug("create token failed", "decimals", req.Decimals, "error", err)
		} else {
			logger.Info("token created", "mint", out.Mint.String(), "decimals", req.Decimals)
		}
		writeJSON(w, outcomeToResponse(out), outcomeStatus(err))
	})
}

// handleMintTo mints supply to the service wallet's associated account.
// POST /api/v1/tokens/{mint}/mint
func handleMintTo(sess SessionAPI, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mint, err := parseAddress(r.PathValue("mint"))
		if err != nil {
			writeError(w, fmt.Sprintf("invalid mint: %v", err), http.StatusBadRequest)
			return
		}

		var req mintRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.Amount == "" {
			writeError(w, "amount is required", http.StatusBadRequest)
			return
		}

		out, err := sess.MintTo(r.Context(), mint, req.Amount)
		if err != nil {
			logger.Debug("mint failed", "mint", mint.String(), "amount", req.Amount, "error", err)
		} else {
			logger.Info("tokens minted", "mint", mint.String(), "amount", req.Amount, "signature", out.Signature.String())
		}
		writeJSON(w, outcomeToResponse(out), outcomeStatus(err))
	})
}

// handleTransfer transfers tokens from the service wallet to a recipient.
// POST /api/v1/transfers
func handleTransfer(sess SessionAPI, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req transferRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		recipient, err := parseAddress(req.Recipient)
		if err != nil {
			writeError(w, fmt.Sprintf("invalid recipient: %v", err), http.StatusBadRequest)
			return
		}
		mint, err := parseAddress(req.Mint)
		if err != nil {
			writeError(w, fmt.Sprintf("invalid mint: %v", err), http.StatusBadRequest)
			return
		}
		if req.Amount == "" {
			writeError(w, "amount is required", http.StatusBadRequest)
			return
		}

		out, err := sess.Transfer(r.Context(), recipient, mint, req.Amount)
		if err != nil {
			logger.Debug("transfer failed",
				"recipient", recipient.String(),
				"mint", mint.String(),
				"amount", req.Amount,
				"error", err,
			)
		} else {
			logger.Info("transfer confirmed",
				"recipient", recipient.String(),
				"mint", mint.String(),
				"amount", req.Amount,
				"signature", out.Signature.String(),
			)
		}
		writeJSON(w, outcomeToResponse(out), outcomeStatus(err))
	})
}

// handleGetSnapshot returns the latest account snapshot, forcing an initial
// refresh when none has been published yet.
// GET /api/v1/snapshot
func handleGetSnapshot(sess SessionAPI, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		snap := sess.Snapshot()
		if snap == nil {
			snap = sess.Refresh(r.Context())
		}
		writeJSON(w, snap, http.StatusOK)
	})
}

// handleGetHistory returns recent transaction signatures for the service
// wallet.
// GET /api/v1/history?limit={n}
func handleGetHistory(sess SessionAPI, chain ChainAPI, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limit := 10
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 || n > maxHistoryLimit {
				writeError(w, fmt.Sprintf("limit must be between 1 and %d", maxHistoryLimit), http.StatusBadRequest)
				return
			}
			limit = n
		}

		history, err := chain.RecentSignatures(r.Context(), sess.Owner(), limit)
		if err != nil {
			logger.Error("failed to get transaction history", "error", err)
			writeError(w, "failed to get transaction history", http.StatusBadGateway)
			return
		}
		writeJSON(w, history, http.StatusOK)
	})
}

// handleAirdrop requests lamports from the devnet faucet for the service
// wallet.
// POST /api/v1/airdrop
func handleAirdrop(sess SessionAPI, chain ChainAPI, network string, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if network != "devnet" {
			writeError(w, "airdrops are only available on devnet", http.StatusBadRequest)
			return
		}

		var req airdropRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		lamports := req.Lamports
		if lamports == 0 {
			lamports = defaultAirdropLamports
		}

		sig, err := chain.RequestAirdrop(r.Context(), sess.Owner(), lamports)
		if err != nil {
			logger.Error("airdrop request failed", "lamports", lamports, "error", err)
			writeError(w, "airdrop request failed", http.StatusBadGateway)
			return
		}

		logger.Info("airdrop requested", "lamports", lamports, "signature", sig.String())
		writeJSON(w, map[string]string{"signature": sig.String()}, http.StatusOK)
	})
}

// decodeJSON decodes a bounded JSON request body. An empty body decodes to
// the zero request so optional-field endpoints accept it.
func decodeJSON(r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(nil, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// parseAddress validates and parses a base58 account address.
func parseAddress(address string) (solanago.PublicKey, error) {
	if address == "" {
		return solanago.PublicKey{}, fmt.Errorf("address is required")
	}
	if len(address) > maxAddressLength {
		return solanago.PublicKey{}, fmt.Errorf("address too long: maximum length is %d characters", maxAddressLength)
	}
	if !validAddressRegex.MatchString(address) {
		return solanago.PublicKey{}, fmt.Errorf("address is not valid base58")
	}
	key, err := solanago.PublicKeyFromBase58(address)
	if err != nil {
		return solanago.PublicKey{}, fmt.Errorf("invalid address: %w", err)
	}
	return key, nil
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}
