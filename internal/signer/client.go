package signer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

// Client talks to the transaction signer service. Generated strategy code
// calls the same endpoints over curl; this client exists for the wallet
// sensor (address discovery) and for health checks.
type Client struct {
	baseURL string
	agentID string
	client  *http.Client
}

// Quote is a swap price estimate from the signer
type Quote struct {
	TokenIn   string          `json:"token_in"`
	TokenOut  string          `json:"token_out"`
	AmountIn  decimal.Decimal `json:"amount_in"`
	AmountOut decimal.Decimal `json:"amount_out"`
}

// SwapResult reports a submitted swap
type SwapResult struct {
	TxHash string `json:"transaction_hash"`
	Status string `json:"status"`
}

// New creates new signer client bound to an agent identity
func New(baseURL, agentID string) *Client {
	return &Client{
		baseURL: baseURL,
		agentID: agentID,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// Addresses returns the wallet addresses managed for this agent
func (c *Client) Addresses(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/api/v1/addresses", http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("x-superior-agent-id", c.agentID)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("signer error %d: %s", resp.StatusCode, string(raw))
	}

	// The signer reports one managed address per chain, currently only EVM.
	// Older deployments returned a flat list; accept both shapes.
	var out struct {
		EVM       string   `json:"evm"`
		Addresses []string `json:"addresses"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if out.EVM != "" {
		return []string{out.EVM}, nil
	}
	return out.Addresses, nil
}

// GetQuote asks the signer for a swap estimate
func (c *Client) GetQuote(ctx context.Context, tokenIn, tokenOut string, amountIn decimal.Decimal) (*Quote, error) {
	body := map[string]any{
		"token_in":  tokenIn,
		"token_out": tokenOut,
		"amount_in": amountIn.String(),
	}

	var quote Quote
	if err := c.post(ctx, "/api/v1/quote", body, &quote); err != nil {
		return nil, fmt.Errorf("failed to get quote: %w", err)
	}
	return &quote, nil
}

// Swap submits a swap for signing and broadcast. Slippage is a percentage,
// e.g. 0.5 for half a percent.
func (c *Client) Swap(ctx context.Context, tokenIn, tokenOut string, amountIn decimal.Decimal, slippage float64) (*SwapResult, error) {
	body := map[string]any{
		"token_in":  tokenIn,
		"token_out": tokenOut,
		"amount_in": amountIn.String(),
		"slippage":  slippage,
	}

	var result SwapResult
	if err := c.post(ctx, "/api/v1/swap", body, &result); err != nil {
		return nil, fmt.Errorf("failed to submit swap: %w", err)
	}
	return &result, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+path, bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-superior-agent-id", c.agentID)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("signer error %d: %s", resp.StatusCode, string(raw))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
