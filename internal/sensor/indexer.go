package sensor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TokenHolding is one aggregated ERC-20 position
type TokenHolding struct {
	Symbol  string
	Balance decimal.Decimal
}

// TokenIndexer resolves an address's ERC-20 holdings, keyed by lowercase
// contract address
type TokenIndexer interface {
	TokenBalances(ctx context.Context, address string) (map[string]TokenHolding, error)
}

// EtherscanIndexer derives token holdings from the transfer history served
// by an Etherscan-compatible API. Balances are net in minus out per symbol,
// which is close enough for prompt context; exact accounting is the
// signer's job.
type EtherscanIndexer struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewEtherscanIndexer creates new Etherscan-compatible token indexer
func NewEtherscanIndexer(baseURL, apiKey string) *EtherscanIndexer {
	return &EtherscanIndexer{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// TokenBalances aggregates the address's ERC-20 transfers into per-contract
// net balances. Dust below 1e-9 is dropped.
func (es *EtherscanIndexer) TokenBalances(ctx context.Context, address string) (map[string]TokenHolding, error) {
	url := fmt.Sprintf("%s?module=account&action=tokentx&address=%s&sort=asc&apikey=%s",
		es.baseURL, address, es.apiKey)

	req, err := http.NewRequestWithContext(ctx, "GET", url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := es.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API error %d: %s", resp.StatusCode, string(body))
	}

	var result struct {
		Status  string `json:"status"`
		Message string `json:"message"`
		Result  []struct {
			From            string `json:"from"`
			To              string `json:"to"`
			Value           string `json:"value"`
			ContractAddress string `json:"contractAddress"`
			TokenSymbol     string `json:"tokenSymbol"`
			TokenDecimal    string `json:"tokenDecimal"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	// Status "0" with message "No transactions found" is an empty wallet
	if result.Status != "1" && !strings.Contains(result.Message, "No transactions") {
		return nil, fmt.Errorf("API returned error: %s", result.Message)
	}

	addrLower := strings.ToLower(address)
	balances := make(map[string]TokenHolding)

	for _, tx := range result.Result {
		raw, err := decimal.NewFromString(tx.Value)
		if err != nil {
			continue
		}
		decimals, err := decimal.NewFromString(tx.TokenDecimal)
		if err != nil {
			continue
		}
		amount := raw.Shift(int32(-decimals.IntPart()))

		contract := strings.ToLower(tx.ContractAddress)
		holding := balances[contract]
		holding.Symbol = tx.TokenSymbol

		switch {
		case strings.ToLower(tx.To) == addrLower:
			holding.Balance = holding.Balance.Add(amount)
		case strings.ToLower(tx.From) == addrLower:
			holding.Balance = holding.Balance.Sub(amount)
		}
		balances[contract] = holding
	}

	dust := decimal.New(1, -9)
	for contract, holding := range balances {
		if holding.Balance.LessThan(dust) {
			delete(balances, contract)
		}
	}

	return balances, nil
}
