package signer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
)

func TestAddresses(t *testing.T) {
	ctx := context.Background()

	t.Run("evm shape", func(t *testing.T) {
		var gotAgent string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/api/v1/addresses" {
				t.Errorf("path = %q", r.URL.Path)
			}
			gotAgent = r.Header.Get("x-superior-agent-id")
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"evm": "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"}`))
		}))
		defer srv.Close()

		client := New(srv.URL, "agent_007")
		addrs, err := client.Addresses(ctx)
		if err != nil {
			t.Fatalf("Addresses error: %v", err)
		}
		if len(addrs) != 1 || addrs[0] != "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2" {
			t.Errorf("addresses = %v", addrs)
		}
		if gotAgent != "agent_007" {
			t.Errorf("agent header = %q", gotAgent)
		}
	})

	t.Run("legacy list shape", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"addresses": ["0xabc", "0xdef"]}`))
		}))
		defer srv.Close()

		addrs, err := New(srv.URL, "agent_007").Addresses(ctx)
		if err != nil {
			t.Fatalf("Addresses error: %v", err)
		}
		if len(addrs) != 2 || addrs[0] != "0xabc" {
			t.Errorf("addresses = %v", addrs)
		}
	})

	t.Run("server error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}))
		defer srv.Close()

		if _, err := New(srv.URL, "agent_007").Addresses(ctx); err == nil {
			t.Error("expected error on 500")
		}
	})
}

func TestSwap(t *testing.T) {
	ctx := context.Background()

	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/swap" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.Write([]byte(`{"transaction_hash": "0xfeed", "status": "confirmed"}`))
	}))
	defer srv.Close()

	client := New(srv.URL, "agent_007")
	result, err := client.Swap(ctx, "0xweth", "0xusdc", decimal.NewFromInt(1000), 0.5)
	if err != nil {
		t.Fatalf("Swap error: %v", err)
	}

	if gotBody["token_in"] != "0xweth" || gotBody["token_out"] != "0xusdc" {
		t.Errorf("tokens = %v -> %v", gotBody["token_in"], gotBody["token_out"])
	}
	if gotBody["amount_in"] != "1000" {
		t.Errorf("amount_in = %v", gotBody["amount_in"])
	}
	if gotBody["slippage"] != 0.5 {
		t.Errorf("slippage = %v", gotBody["slippage"])
	}

	if result.TxHash != "0xfeed" {
		t.Errorf("tx hash = %q", result.TxHash)
	}
	if result.Status != "confirmed" {
		t.Errorf("status = %q", result.Status)
	}
}

func TestGetQuote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/quote" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Write([]byte(`{"token_in": "0xweth", "token_out": "0xusdc", "amount_in": "1", "amount_out": "3000"}`))
	}))
	defer srv.Close()

	quote, err := New(srv.URL, "agent_007").GetQuote(context.Background(), "0xweth", "0xusdc", decimal.NewFromInt(1))
	if err != nil {
		t.Fatalf("GetQuote error: %v", err)
	}
	if !quote.AmountOut.Equal(decimal.NewFromInt(3000)) {
		t.Errorf("amount_out = %s", quote.AmountOut)
	}
}
