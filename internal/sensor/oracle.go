package sensor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// PriceOracle resolves token symbols to USD prices
type PriceOracle interface {
	GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// CoinGeckoOracle implements PriceOracle over the CoinGecko simple-price API
// (free tier, no key). Prices are cached in memory for five minutes.
type CoinGeckoOracle struct {
	baseURL string
	client  *http.Client

	mu    sync.Mutex
	cache map[string]cachedPrice
}

type cachedPrice struct {
	timestamp time.Time
	price     decimal.Decimal
}

// NewCoinGeckoOracle creates new CoinGecko price oracle
func NewCoinGeckoOracle(baseURL string) *CoinGeckoOracle {
	return &CoinGeckoOracle{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
		cache:   make(map[string]cachedPrice),
	}
}

// GetPrice returns the current USD price for the symbol
func (cg *CoinGeckoOracle) GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	cg.mu.Lock()
	if cached, ok := cg.cache[symbol]; ok && time.Since(cached.timestamp) < 5*time.Minute {
		cg.mu.Unlock()
		return cached.price, nil
	}
	cg.mu.Unlock()

	coinID := mapSymbolToCoinID(symbol)
	url := fmt.Sprintf("%s/simple/price?ids=%s&vs_currencies=usd", cg.baseURL, coinID)

	req, err := http.NewRequestWithContext(ctx, "GET", url, http.NoBody)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := cg.client.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return decimal.Zero, fmt.Errorf("API error %d: %s", resp.StatusCode, string(body))
	}

	var result map[string]struct {
		USD float64 `json:"usd"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return decimal.Zero, fmt.Errorf("failed to decode response: %w", err)
	}

	priceData, ok := result[coinID]
	if !ok {
		return decimal.Zero, fmt.Errorf("price not found for %s", symbol)
	}

	price := decimal.NewFromFloat(priceData.USD)

	cg.mu.Lock()
	cg.cache[symbol] = cachedPrice{price: price, timestamp: time.Now()}
	cg.mu.Unlock()

	return price, nil
}

// mapSymbolToCoinID maps token symbols to CoinGecko ids
func mapSymbolToCoinID(symbol string) string {
	symbolMap := map[string]string{
		"BTC":  "bitcoin",
		"ETH":  "ethereum",
		"WETH": "weth",
		"USDT": "tether",
		"USDC": "usd-coin",
		"DAI":  "dai",
		"SOL":  "solana",
		"LINK": "chainlink",
	}

	if id, ok := symbolMap[symbol]; ok {
		return id
	}
	return strings.ToLower(symbol)
}
