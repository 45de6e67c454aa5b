package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateToken_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "/api/v1/tokens", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, float64(2), body["decimals"])

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(IntentResult{
			Intent:    "create-1",
			Kind:      "create",
			State:     "confirmed",
			Signature: "sig123",
			Mint:      "mint123",
			Message:   "Token mint123 created",
			Severity:  "success",
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	result, err := client.CreateToken(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, "confirmed", result.State)
	assert.Equal(t, "mint123", result.Mint)
	assert.Equal(t, "sig123", result.Signature)
}

func TestMintTo_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "/api/v1/tokens/mint123/mint", r.URL.Path)

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "10.00", body["amount"])

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(IntentResult{
			Intent:   "mint-1",
			Kind:     "mint",
			State:    "confirmed",
			Severity: "success",
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	result, err := client.MintTo(context.Background(), "mint123", "10.00")
	require.NoError(t, err)
	assert.Equal(t, "confirmed", result.State)
}

func TestTransfer_FailedIntentReturnsOutcome(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(IntentResult{
			Intent:   "transfer-1",
			Kind:     "transfer",
			State:    "failed",
			Message:  "Transaction cancelled",
			Severity: "info",
			Error:    "signing rejected",
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	result, err := client.Transfer(context.Background(), "recipient123", "mint123", "1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "signing rejected")
	require.NotNil(t, result)
	assert.Equal(t, "failed", result.State)
	assert.Equal(t, "info", result.Severity)
}

func TestTransfer_PlainErrorResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{
			"error": "invalid recipient: address is not valid base58",
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	result, err := client.Transfer(context.Background(), "not-base58!", "mint123", "1")
	require.Error(t, err)
	assert.Nil(t, result)
	assert.Contains(t, err.Error(), "not valid base58")
}

func TestSnapshot_Success(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "GET", r.Method)
		assert.Equal(t, "/api/v1/snapshot", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(AccountSnapshot{
			Owner:    "owner123",
			Lamports: 5000,
			Tokens: []TokenBalance{
				{TokenAccount: "acct1", Mint: "mint123", Raw: 1000, Decimals: 2, Display: "10"},
			},
			Timestamp: now,
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	snap, err := client.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "owner123", snap.Owner)
	assert.Equal(t, uint64(5000), snap.Lamports)
	require.Len(t, snap.Tokens, 1)
	assert.Equal(t, "10", snap.Tokens[0].Display)
	assert.Equal(t, now, snap.Timestamp.UTC())
}

func TestHistory_PassesLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "GET", r.Method)
		assert.Equal(t, "/api/v1/history", r.URL.Path)
		assert.Equal(t, "5", r.URL.Query().Get("limit"))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]TransactionSummary{
			{Signature: "sig1", Slot: 100, Status: "finalized"},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	history, err := client.History(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "sig1", history[0].Signature)
}

func TestAirdrop_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "/api/v1/airdrop", r.URL.Path)

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, float64(2_000_000_000), body["lamports"])

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"signature": "airdrop-sig"})
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	sig, err := client.Airdrop(context.Background(), 2_000_000_000)
	require.NoError(t, err)
	assert.Equal(t, "airdrop-sig", sig)
}

func TestAirdrop_MainnetRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{
			"error": "airdrops are only available on devnet",
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	_, err := client.Airdrop(context.Background(), 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "only available on devnet")
}

func TestHealth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	assert.NoError(t, client.Health(context.Background()))
}

func TestStreamEvents(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/stream/events", r.URL.Path)

		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)

		fmt.Fprintf(w, "event: connected\ndata: {\"owner\":\"owner123\"}\n\n")
		fmt.Fprintf(w, ": keepalive\n\n")
		fmt.Fprintf(w, "event: snapshot\ndata: {\"lamports\":42}\n\n")
		flusher.Flush()
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client := NewClient(server.URL, nil, nil)
	events, err := client.StreamEvents(ctx)
	require.NoError(t, err)

	var got []Event
	for ev := range events {
		got = append(got, ev)
	}
	require.Len(t, got, 2)
	assert.Equal(t, "connected", got[0].Type)
	assert.Equal(t, "snapshot", got[1].Type)
	assert.JSONEq(t, `{"lamports":42}`, string(got[1].Data))
}
