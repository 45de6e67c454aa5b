package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// IntentResult is the terminal outcome of a submitted transaction intent.
type IntentResult struct {
	Intent    string `json:"intent"`
	Kind      string `json:"kind"`
	State     string `json:"state"`
	Signature string `json:"signature,omitempty"`
	Mint      string `json:"mint,omitempty"`
	Message   string `json:"message"`
	Severity  string `json:"severity"`
	Error     string `json:"error,omitempty"`
}

// TokenBalance is one token holding within a snapshot.
type TokenBalance struct {
	TokenAccount string `json:"token_account"`
	Mint         string `json:"mint"`
	Raw          uint64 `json:"raw"`
	Decimals     uint8  `json:"decimals"`
	Display      string `json:"display"`
}

// TransactionSummary is one entry of the wallet's recent history.
type TransactionSummary struct {
	Signature string    `json:"signature"`
	Slot      uint64    `json:"slot"`
	BlockTime time.Time `json:"block_time"`
	Status    string    `json:"status"`
	Err       *string   `json:"err,omitempty"`
}

// AccountSnapshot is the server's consolidated view of the service wallet.
type AccountSnapshot struct {
	Owner        string               `json:"owner"`
	Lamports     uint64               `json:"lamports"`
	Tokens       []TokenBalance       `json:"tokens"`
	Transactions []TransactionSummary `json:"transactions"`
	Timestamp    time.Time            `json:"timestamp"`
}

// Event is one server-sent event from the streaming endpoint. Data holds the
// raw JSON payload of a snapshot or intent event.
type Event struct {
	Type string
	Data json.RawMessage
}

// Client is the HTTP client for the tokenmill service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new token service client.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 120 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}
}

// CreateToken asks the server to create a new token mint with the given
// number of decimal places.
func (c *Client) CreateToken(ctx context.Context, decimals uint8) (*IntentResult, error) {
	body := map[string]interface{}{"decimals": decimals}
	result, err := c.postIntent(ctx, c.baseURL+"/api/v1/tokens", body)
	if err != nil {
		return result, err
	}
	c.logger.Debug("token created", "mint", result.Mint, "signature", result.Signature)
	return result, nil
}

// MintTo asks the server to mint the given display amount of a token into
// the service wallet's associated account.
func (c *Client) MintTo(ctx context.Context, mint, amount string) (*IntentResult, error) {
	u := fmt.Sprintf("%s/api/v1/tokens/%s/mint", c.baseURL, url.PathEscape(mint))
	body := map[string]interface{}{"amount": amount}
	result, err := c.postIntent(ctx, u, body)
	if err != nil {
		return result, err
	}
	c.logger.Debug("tokens minted", "mint", mint, "amount", amount, "signature", result.Signature)
	return result, nil
}

// Transfer asks the server to transfer the given display amount of a token
// from the service wallet to the recipient.
func (c *Client) Transfer(ctx context.Context, recipient, mint, amount string) (*IntentResult, error) {
	body := map[string]interface{}{
		"recipient": recipient,
		"mint":      mint,
		"amount":    amount,
	}
	result, err := c.postIntent(ctx, c.baseURL+"/api/v1/transfers", body)
	if err != nil {
		return result, err
	}
	c.logger.Debug("transfer confirmed", "recipient", recipient, "mint", mint, "amount", amount)
	return result, nil
}

// Snapshot retrieves the latest account snapshot.
func (c *Client) Snapshot(ctx context.Context) (*AccountSnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/api/v1/snapshot", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	var snap AccountSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &snap, nil
}

// History retrieves recent transaction signatures for the service wallet.
// A limit of zero uses the server default.
func (c *Client) History(ctx context.Context, limit int) ([]TransactionSummary, error) {
	u := c.baseURL + "/api/v1/history"
	if limit > 0 {
		u = fmt.Sprintf("%s?limit=%d", u, limit)
	}
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	var history []TransactionSummary
	if err := json.NewDecoder(resp.Body).Decode(&history); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return history, nil
}

// Airdrop requests lamports from the devnet faucet for the service wallet.
// A lamports value of zero uses the server default of one SOL.
func (c *Client) Airdrop(ctx context.Context, lamports uint64) (string, error) {
	reqBody := map[string]interface{}{}
	if lamports > 0 {
		reqBody["lamports"] = lamports
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/v1/airdrop", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", c.parseErrorResponse(resp)
	}

	var response struct {
		Signature string `json:"signature"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	return response.Signature, nil
}

// Health checks that the server is reachable.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// StreamEvents subscribes to the server's SSE endpoint and delivers events
// on the returned channel until the context is cancelled or the stream ends.
func (c *Client) StreamEvents(ctx context.Context) (<-chan Event, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/api/v1/stream/events", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	// The stream is long-lived, so bypass the client-wide request timeout.
	streamClient := &http.Client{Transport: c.httpClient.Transport}
	resp, err := streamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, c.parseErrorResponse(resp)
	}

	events := make(chan Event)
	go func() {
		defer close(events)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		var eventType string
		var data strings.Builder
		for scanner.Scan() {
			line := scanner.Text()
			switch {
			case line == "":
				if eventType != "" || data.Len() > 0 {
					select {
					case events <- Event{Type: eventType, Data: json.RawMessage(data.String())}:
					case <-ctx.Done():
						return
					}
				}
				eventType = ""
				data.Reset()
			case strings.HasPrefix(line, "event:"):
				eventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			case strings.HasPrefix(line, "data:"):
				data.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
			case strings.HasPrefix(line, ":"):
				// Keepalive comment.
			}
		}
		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			c.logger.Debug("event stream closed", "error", err)
		}
	}()

	return events, nil
}

// postIntent submits an intent request and decodes the terminal outcome. The
// server reports failed intents with a non-2xx status but still returns the
// outcome body, so both the result and an error may be non-nil.
func (c *Client) postIntent(ctx context.Context, u string, reqBody map[string]interface{}) (*IntentResult, error) {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", u, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var result IntentResult
	if err := json.Unmarshal(raw, &result); err != nil || result.State == "" {
		if resp.StatusCode != http.StatusOK {
			return nil, c.parseErrorBody(resp.StatusCode, raw)
		}
		return nil, fmt.Errorf("failed to decode response: %s", string(raw))
	}

	if resp.StatusCode != http.StatusOK {
		reason := result.Error
		if reason == "" {
			reason = result.Message
		}
		return &result, fmt.Errorf("intent %s failed: %s", result.Intent, reason)
	}
	return &result, nil
}

// parseErrorResponse attempts to parse an error response from the server.
func (c *Client) parseErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	return c.parseErrorBody(resp.StatusCode, body)
}

func (c *Client) parseErrorBody(statusCode int, body []byte) error {
	var errResp struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		return fmt.Errorf("request failed with status %d: %s", statusCode, string(body))
	}
	return fmt.Errorf("request failed: %s", errResp.Error)
}
