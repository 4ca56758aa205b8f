package pricefeed

import (
	"context"
	"sync"
)

// Fake is an in-memory Feed for tests: prices are set directly and never
// touch the network.
type Fake struct {
	mu     sync.Mutex
	prices map[string]float64
}

// NewFake constructs an empty Fake feed.
func NewFake() *Fake {
	return &Fake{prices: make(map[string]float64)}
}

// Set assigns the USD price for mint.
func (f *Fake) Set(mint string, usd float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prices[mint] = usd
}

// GetPrices implements Feed.
func (f *Fake) GetPrices(ctx context.Context, ids []string) (map[string]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]float64, len(ids))
	for _, id := range ids {
		if v, ok := f.prices[id]; ok {
			out[id] = v
		}
	}
	return out, nil
}
