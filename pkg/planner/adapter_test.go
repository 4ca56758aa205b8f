package planner

import (
	"context"
	"testing"
	"time"

	"nof0-agent/internal/statestore"
	"nof0-agent/pkg/bigamount"
	"nof0-agent/pkg/safety"
)

const testMint = "So11111111111111111111111111111111111111"

func newState(cash int64) *statestore.AgentState {
	amount, err := bigamount.FromInt64(cash)
	if err != nil {
		panic(err)
	}
	st := statestore.New(amount)
	return st
}

func fixedPrices(prices map[string]float64) priceLookup {
	return func(mint string) (float64, bool) {
		v, ok := prices[mint]
		return v, ok
	}
}

type stubBackend struct {
	out BackendOutput
	err error
}

func (s *stubBackend) Propose(ctx context.Context, input Input) (BackendOutput, error) {
	return s.out, s.err
}

func TestAdapterBuyDefaultsAmountToMaxTradeClampedByCash(t *testing.T) {
	st := newState(2_000_000_000) // 2 SOL cash
	backend := &stubBackend{out: BackendOutput{Intents: []Decision{{Signal: "buy", Mint: testMint}}}}
	cfg := Config{
		Timeout:            time.Second,
		MaxIntentsPerCycle: 5,
		MaxOpenPositions:   3,
		MinTradeNative:     0.1,
		MaxTradeNative:     5, // 5 SOL worth, exceeds cash
		IntentSlippageBps:  50,
		MaxSlippageBps:     500,
		MinTradeValueUSD:   1,
	}
	gate := safety.New(safety.Config{MinIntentGapMs: 0})
	a := New(cfg, backend, gate)

	intents := a.Propose(context.Background(), st, []Universe{{Mint: testMint, Symbol: "SOL"}}, fixedPrices(map[string]float64{testMint: 100}), time.Now())
	if len(intents) != 1 {
		t.Fatalf("expected 1 intent, got %d", len(intents))
	}
	if intents[0].AmountLamports != "2000000000" {
		t.Fatalf("expected amount clamped to available cash 2000000000, got %s", intents[0].AmountLamports)
	}
}

func TestAdapterBuySkippedWhenBelowMinTradeFloor(t *testing.T) {
	st := newState(1000) // dust cash, far under min_trade_native
	backend := &stubBackend{out: BackendOutput{Intents: []Decision{{Signal: "buy", Mint: testMint}}}}
	cfg := Config{
		Timeout:            time.Second,
		MaxIntentsPerCycle: 5,
		MaxOpenPositions:   3,
		MinTradeNative:     1,
		MaxTradeNative:     5,
		IntentSlippageBps:  50,
		MaxSlippageBps:     500,
		MinTradeValueUSD:   1,
	}
	gate := safety.New(safety.Config{MinIntentGapMs: 0})
	a := New(cfg, backend, gate)

	intents := a.Propose(context.Background(), st, []Universe{{Mint: testMint, Symbol: "SOL"}}, fixedPrices(map[string]float64{testMint: 100}), time.Now())
	if len(intents) != 0 {
		t.Fatalf("expected 0 intents when cash is below the min trade floor, got %d", len(intents))
	}
}

func TestAdapterSellSkippedBelowMinTradeValueUSD(t *testing.T) {
	st := newState(1_000_000_000)
	rawAmount, _ := bigamount.FromInt64(1000) // tiny dust position
	cost, _ := bigamount.FromInt64(1000)
	st.Positions[testMint] = &statestore.Position{
		Symbol:       "SOL",
		RawAmount:    rawAmount,
		CostLamports: cost,
		OpenedAt:     time.Now().Add(-time.Hour),
	}
	backend := &stubBackend{out: BackendOutput{Intents: []Decision{{Signal: "sell", Mint: testMint}}}}
	cfg := Config{
		Timeout:            time.Second,
		MaxIntentsPerCycle: 5,
		MaxOpenPositions:   3,
		MinTradeValueUSD:   1,
		IntentSlippageBps:  50,
		MaxSlippageBps:     500,
	}
	gate := safety.New(safety.Config{MinIntentGapMs: 0})
	a := New(cfg, backend, gate)

	intents := a.Propose(context.Background(), st, []Universe{{Mint: testMint, Symbol: "SOL"}}, fixedPrices(map[string]float64{testMint: 100}), time.Now())
	if len(intents) != 0 {
		t.Fatalf("expected dust sell to be skipped, got %d intents", len(intents))
	}
}

func TestAdapterRespectsMaxIntentsPerCycle(t *testing.T) {
	st := newState(10_000_000_000)
	mint2 := "So22222222222222222222222222222222222222"
	backend := &stubBackend{out: BackendOutput{Intents: []Decision{
		{Signal: "buy", Mint: testMint},
		{Signal: "buy", Mint: mint2},
	}}}
	cfg := Config{
		Timeout:            time.Second,
		MaxIntentsPerCycle: 1,
		MaxOpenPositions:   5,
		MinTradeNative:     0.1,
		MaxTradeNative:     1,
		IntentSlippageBps:  50,
		MaxSlippageBps:     500,
		MinTradeValueUSD:   1,
	}
	gate := safety.New(safety.Config{MinIntentGapMs: 0})
	a := New(cfg, backend, gate)

	intents := a.Propose(context.Background(), st, []Universe{{Mint: testMint, Symbol: "SOL"}, {Mint: mint2, Symbol: "FOO"}},
		fixedPrices(map[string]float64{testMint: 100, mint2: 50}), time.Now())
	if len(intents) != 1 {
		t.Fatalf("expected max_intents_per_cycle to cap output at 1, got %d", len(intents))
	}
}

func TestAdapterFallsThroughOnBackendError(t *testing.T) {
	st := newState(1_000_000_000)
	backend := &stubBackend{err: context.DeadlineExceeded}
	cfg := Config{Timeout: time.Millisecond, MaxIntentsPerCycle: 5, MaxOpenPositions: 3}
	gate := safety.New(safety.Config{MinIntentGapMs: 0})
	a := New(cfg, backend, gate)

	intents := a.Propose(context.Background(), st, nil, fixedPrices(nil), time.Now())
	if intents != nil {
		t.Fatalf("expected nil intents on backend error, got %v", intents)
	}
}
