package pricefeed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"
)

func TestHTTPClientResolvesNestedEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ids, _ := url.QueryUnescape(r.URL.Query().Get("ids"))
		if ids == "" {
			t.Fatalf("expected ids query param")
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{
				"So11111111111111111111111111111111111111": map[string]any{"usd_price": 145.5},
			},
		})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, time.Second)
	prices, err := c.GetPrices(context.Background(), []string{"So11111111111111111111111111111111111111"})
	if err != nil {
		t.Fatalf("GetPrices: %v", err)
	}
	if prices["So11111111111111111111111111111111111111"] != 145.5 {
		t.Fatalf("expected 145.5, got %v", prices)
	}
}

func TestHTTPClientEmptyIDsShortCircuits(t *testing.T) {
	c := NewHTTPClient("http://unused.invalid", time.Second)
	prices, err := c.GetPrices(context.Background(), nil)
	if err != nil {
		t.Fatalf("GetPrices: %v", err)
	}
	if len(prices) != 0 {
		t.Fatalf("expected empty map, got %v", prices)
	}
}

func TestHTTPClientNonOKStatusReturnsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, time.Second)
	c.http.SetRetryCount(0)
	_, err := c.GetPrices(context.Background(), []string{"SOL"})
	if err == nil {
		t.Fatalf("expected error on 500 status")
	}
}
