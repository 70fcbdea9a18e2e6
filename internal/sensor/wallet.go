package sensor

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/selivandex/superagent/internal/signer"
	"github.com/selivandex/superagent/pkg/logger"
	"github.com/selivandex/superagent/pkg/models"
)

// ethReserved is held back for gas on every snapshot
var ethReserved = decimal.NewFromFloat(0.01)

// WalletSensor reads the agent's portfolio: managed address from the signer,
// native balance over JSON-RPC, token holdings from the indexer, prices from
// the oracle. Any failure along the way degrades to a fixed mock snapshot.
type WalletSensor struct {
	signer  *signer.Client
	eth     *ethclient.Client
	indexer TokenIndexer
	oracle  PriceOracle
}

// NewWalletSensor creates the trading metric sensor. eth may be nil when no
// RPC node is configured; the sensor then always reports the mock snapshot.
func NewWalletSensor(sg *signer.Client, eth *ethclient.Client, indexer TokenIndexer, oracle PriceOracle) *WalletSensor {
	return &WalletSensor{
		signer:  sg,
		eth:     eth,
		indexer: indexer,
		oracle:  oracle,
	}
}

// MetricName returns the trading metric identifier
func (w *WalletSensor) MetricName() string {
	return "wallet"
}

// MetricState returns the portfolio snapshot rendered as compact JSON
func (w *WalletSensor) MetricState(ctx context.Context) string {
	snapshot, err := w.Snapshot(ctx)
	if err != nil {
		logger.Warn("wallet sensor degraded to mock snapshot", zap.Error(err))
		snapshot = mockSnapshot()
	}
	return snapshot.String()
}

// Snapshot assembles the live portfolio
func (w *WalletSensor) Snapshot(ctx context.Context) (*models.PortfolioSnapshot, error) {
	if w.eth == nil {
		return nil, fmt.Errorf("no chain RPC configured")
	}

	addresses, err := w.signer.Addresses(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch managed address: %w", err)
	}
	if len(addresses) == 0 {
		return nil, fmt.Errorf("signer returned no addresses")
	}
	address := addresses[0]

	wei, err := w.eth.BalanceAt(ctx, common.HexToAddress(address), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to read native balance: %w", err)
	}
	ethBalance := decimal.NewFromBigInt(wei, -18)

	ethPrice, err := w.oracle.GetPrice(ctx, "ETH")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch ETH price: %w", err)
	}

	total := ethBalance.Mul(ethPrice)
	tokens := make(map[string]models.TokenBalance)

	balances, err := w.indexer.TokenBalances(ctx, address)
	if err != nil {
		// Token enumeration is best effort, the native position still counts
		logger.Warn("token balance enumeration failed", zap.Error(err))
	}
	for contract, holding := range balances {
		tb := models.TokenBalance{Symbol: holding.Symbol, Balance: holding.Balance}
		if price, err := w.oracle.GetPrice(ctx, holding.Symbol); err == nil {
			tb.PriceUSD = &price
			total = total.Add(holding.Balance.Mul(price))
		}
		tokens[contract] = tb
	}

	available := ethBalance.Sub(ethReserved)
	if available.IsNegative() {
		available = decimal.Zero
	}

	snapshot := &models.PortfolioSnapshot{
		EthBalance:          ethBalance,
		EthBalanceReserved:  ethReserved,
		EthBalanceAvailable: available,
		EthPriceUSD:         ethPrice,
		Tokens:              tokens,
		TotalValueUSD:       total,
		Timestamp:           time.Now().UTC(),
	}

	logger.Debug("portfolio snapshot assembled",
		zap.String("address", address),
		zap.String("total_value_usd", total.StringFixed(2)),
		zap.Int("tokens", len(tokens)),
	)

	return snapshot, nil
}

// mockSnapshot is the documented degraded reading: half an ETH at a round
// price, no tokens
func mockSnapshot() *models.PortfolioSnapshot {
	ethBalance := decimal.NewFromFloat(0.5)
	ethPrice := decimal.NewFromInt(3000)
	return &models.PortfolioSnapshot{
		EthBalance:          ethBalance,
		EthBalanceReserved:  ethReserved,
		EthBalanceAvailable: ethBalance.Sub(ethReserved),
		EthPriceUSD:         ethPrice,
		Tokens:              map[string]models.TokenBalance{},
		TotalValueUSD:       ethBalance.Mul(ethPrice),
		Timestamp:           time.Now().UTC(),
	}
}
