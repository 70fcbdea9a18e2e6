package sensor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
)

const (
	wethContract = "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2"
	usdcContract = "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"
	dustContract = "0x1111111111111111111111111111111111111111"
)

func TestEtherscanIndexerTokenBalances(t *testing.T) {
	wallet := "0xAbCd000000000000000000000000000000001234"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("action"); got != "tokentx" {
			t.Errorf("action = %q", got)
		}
		w.Write([]byte(`{
			"status": "1",
			"message": "OK",
			"result": [
				{"from": "0x0000000000000000000000000000000000000001", "to": "` + wallet + `",
				 "value": "2000000000000000000", "contractAddress": "` + wethContract + `",
				 "tokenSymbol": "WETH", "tokenDecimal": "18"},
				{"from": "` + wallet + `", "to": "0x0000000000000000000000000000000000000002",
				 "value": "500000000000000000", "contractAddress": "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2",
				 "tokenSymbol": "WETH", "tokenDecimal": "18"},
				{"from": "0x0000000000000000000000000000000000000003", "to": "` + wallet + `",
				 "value": "250000000", "contractAddress": "` + usdcContract + `",
				 "tokenSymbol": "USDC", "tokenDecimal": "6"},
				{"from": "0x0000000000000000000000000000000000000004", "to": "` + wallet + `",
				 "value": "1", "contractAddress": "` + dustContract + `",
				 "tokenSymbol": "DUST", "tokenDecimal": "18"}
			]
		}`))
	}))
	defer srv.Close()

	indexer := NewEtherscanIndexer(srv.URL, "test-key")
	balances, err := indexer.TokenBalances(context.Background(), wallet)
	if err != nil {
		t.Fatalf("TokenBalances error: %v", err)
	}

	if len(balances) != 2 {
		t.Fatalf("got %d holdings, want 2: %v", len(balances), balances)
	}

	weth, ok := balances[wethContract]
	if !ok {
		t.Fatalf("no holding keyed by WETH contract address: %v", balances)
	}
	if weth.Symbol != "WETH" {
		t.Errorf("weth symbol = %q", weth.Symbol)
	}
	if !weth.Balance.Equal(decimal.RequireFromString("1.5")) {
		t.Errorf("weth balance = %s, want 1.5", weth.Balance)
	}

	usdc, ok := balances[usdcContract]
	if !ok {
		t.Fatalf("no holding keyed by USDC contract address: %v", balances)
	}
	if usdc.Symbol != "USDC" || !usdc.Balance.Equal(decimal.NewFromInt(250)) {
		t.Errorf("usdc holding = %+v", usdc)
	}

	if _, ok := balances[dustContract]; ok {
		t.Error("dust position should have been dropped")
	}
}

func TestEtherscanIndexerEmptyWallet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status": "0", "message": "No transactions found", "result": []}`))
	}))
	defer srv.Close()

	balances, err := NewEtherscanIndexer(srv.URL, "").TokenBalances(context.Background(), "0xabc")
	if err != nil {
		t.Fatalf("TokenBalances error: %v", err)
	}
	if len(balances) != 0 {
		t.Errorf("got %d holdings, want 0", len(balances))
	}
}
