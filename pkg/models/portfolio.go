package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// TokenBalance is one ERC-20 position inside a portfolio snapshot
type TokenBalance struct {
	Symbol   string           `json:"symbol"`
	Balance  decimal.Decimal  `json:"balance"`
	PriceUSD *decimal.Decimal `json:"price_usd,omitempty"`
}

// PortfolioSnapshot is the wallet sensor's scalar state for one cycle.
// EthBalanceReserved is held back for gas and never reported as available.
// Tokens is keyed by lowercase contract address.
type PortfolioSnapshot struct {
	EthBalance          decimal.Decimal         `json:"eth_balance"`
	EthBalanceReserved  decimal.Decimal         `json:"eth_balance_reserved"`
	EthBalanceAvailable decimal.Decimal         `json:"eth_balance_available"`
	EthPriceUSD         decimal.Decimal         `json:"eth_price_usd"`
	Tokens              map[string]TokenBalance `json:"tokens"`
	TotalValueUSD       decimal.Decimal         `json:"total_value_usd"`
	Timestamp           time.Time               `json:"timestamp"`
}

// String renders the snapshot as compact JSON for prompt interpolation
func (p *PortfolioSnapshot) String() string {
	raw, err := json.Marshal(p)
	if err != nil {
		return "{}"
	}
	return string(raw)
}
