package safety

import (
	"testing"
	"time"

	"nof0-agent/internal/statestore"
	"nof0-agent/pkg/bigamount"
	"nof0-agent/pkg/intentqueue"
)

const validMint1 = "11111111111111111111111111111111"
const validMint2 = "So11111111111111111111111111111111111111112"

func TestValidateKillSwitch(t *testing.T) {
	g := New(Config{KillSwitch: true})
	v := g.Validate(intentqueue.Intent{
		Action: intentqueue.ActionBuy, InputMint: validMint1, OutputMint: validMint2,
		AmountLamports: "1000", SlippageBps: 50,
	}, time.Now())
	if v.OK {
		t.Fatal("expected kill switch to reject")
	}
	if v.Status != intentqueue.StatusRejected {
		t.Errorf("status = %s, want rejected", v.Status)
	}
	if v.Reason != "Global kill switch is enabled" {
		t.Errorf("reason = %q", v.Reason)
	}
}

func TestValidateSameMintRejected(t *testing.T) {
	g := New(Config{MaxSlippageBps: 500})
	v := g.Validate(intentqueue.Intent{
		Action: intentqueue.ActionBuy, InputMint: validMint1, OutputMint: validMint1,
		AmountLamports: "1000", SlippageBps: 50,
	}, time.Now())
	if v.OK {
		t.Fatal("expected same-mint rejection")
	}
}

func TestValidateExpiredYieldsExpiredNotRejected(t *testing.T) {
	g := New(Config{MaxSlippageBps: 500})
	past := time.Now().Add(-time.Hour)
	v := g.Validate(intentqueue.Intent{
		Action: intentqueue.ActionBuy, InputMint: validMint1, OutputMint: validMint2,
		AmountLamports: "1000", SlippageBps: 50, ExpiresAt: &past,
	}, time.Now())
	if v.OK || v.Status != intentqueue.StatusExpired {
		t.Errorf("expected expired status, got ok=%v status=%s", v.OK, v.Status)
	}
}

func TestValidateAllowList(t *testing.T) {
	g := New(Config{MaxSlippageBps: 500, AllowedMints: []string{validMint2}})
	v := g.Validate(intentqueue.Intent{
		Action: intentqueue.ActionBuy, InputMint: validMint1, OutputMint: "22222222222222222222222222222222",
		AmountLamports: "1000", SlippageBps: 50,
	}, time.Now())
	if v.OK {
		t.Fatal("expected allow-list rejection")
	}
}

func TestValidateValidIntentPasses(t *testing.T) {
	g := New(Config{MaxSlippageBps: 500})
	v := g.Validate(intentqueue.Intent{
		Action: intentqueue.ActionBuy, InputMint: validMint1, OutputMint: validMint2,
		AmountLamports: "1000", SlippageBps: 50,
	}, time.Now())
	if !v.OK {
		t.Errorf("expected valid intent to pass, got reason=%q", v.Reason)
	}
}

func TestCooldownRespected(t *testing.T) {
	g := New(Config{MinIntentGapMs: 30_000})
	st := statestore.New(bigamount.Zero())
	t0 := time.UnixMilli(0)
	if !g.CooldownOK(st, "M1", t0) {
		t.Fatal("expected first intent to be allowed")
	}
	g.RecordIntent(st, "M1", t0)

	t20 := time.UnixMilli(20_000)
	if g.CooldownOK(st, "M1", t20) {
		t.Error("expected intent at t=20s to be blocked by cooldown")
	}

	t31 := time.UnixMilli(31_000)
	if !g.CooldownOK(st, "M1", t31) {
		t.Error("expected intent at t=31s to be allowed")
	}
}

func TestEmitExitsStopLoss(t *testing.T) {
	st := statestore.New(bigamount.Zero())
	st.Positions[validMint1] = &statestore.Position{
		RawAmount:    bigamount.MustFromDecimalString("1000000000"),
		CostLamports: bigamount.MustFromDecimalString("1000000000"),
		OpenedAt:     time.Now(),
	}
	g := New(Config{StopLossPct: -0.05, TakeProfitPct: 0.5, MaxHoldMinutes: 1440, SellMomentumThreshold: -1, SellFraction: 1})

	// native/SOL at 1.0 USD and the position's own mint (9 decimals) at
	// 0.9 USD: cost basis 1.0 USD, now worth 0.9 -> -10% pnl, below -5% stop
	// loss. A prior bug priced both legs off the same priceUSD, which made
	// pnl_pct price-independent; this fixture would not have caught that
	// (cost and market mints coincide there too), so the exercise is that
	// distinct native/token prices are threaded through at all.
	prices := func(mint string) (float64, bool) {
		if mint == validMint1 {
			return 0.9, true
		}
		return 0, false
	}
	decimals := func(string) int { return 9 }
	intents := g.EmitExits(st, 1.0, prices, decimals, time.Now())
	if len(intents) != 1 {
		t.Fatalf("expected 1 exit intent, got %d", len(intents))
	}
	if intents[0].Action != intentqueue.ActionSell || intents[0].InputMint != validMint1 {
		t.Errorf("unexpected exit intent: %+v", intents[0])
	}
}

// TestEmitExitsUsesTokenPriceNotNativePriceForMarketValue guards against the
// pnl_pct formula collapsing to raw/cost - 1 (the token price canceling out
// entirely): holding native price and cost fixed, a token price move must
// change the outcome, proving market_value_usd is priced off prices(mint),
// not nativePriceUSD.
func TestEmitExitsUsesTokenPriceNotNativePriceForMarketValue(t *testing.T) {
	st := statestore.New(bigamount.Zero())
	st.Positions[validMint1] = &statestore.Position{
		RawAmount:    bigamount.MustFromDecimalString("1000000000"),
		CostLamports: bigamount.MustFromDecimalString("1000000000"),
		OpenedAt:     time.Now(),
	}
	g := New(Config{StopLossPct: -0.05, TakeProfitPct: 0.5, MaxHoldMinutes: 1440, SellMomentumThreshold: -1, SellFraction: 1})
	decimals := func(string) int { return 9 }

	// cost basis = 1.0 USD (cost 1e9 lamports * native price 1.0 / 1e9).
	// Token price steady at 1.0 -> pnl 0%, no exit.
	steady := func(mint string) (float64, bool) { return 1.0, true }
	if intents := g.EmitExits(st, 1.0, steady, decimals, time.Now()); len(intents) != 0 {
		t.Fatalf("expected no exit at steady token price, got %d", len(intents))
	}

	// Token price drops to 0.9 with native price unchanged -> -10% pnl,
	// below the -5% stop loss.
	dropped := func(mint string) (float64, bool) { return 0.9, true }
	if intents := g.EmitExits(st, 1.0, dropped, decimals, time.Now()); len(intents) != 1 {
		t.Fatalf("expected stop-loss exit when token price alone drops, got %d", len(intents))
	}
}

func TestEmitExitsSkipsWithoutPrice(t *testing.T) {
	st := statestore.New(bigamount.Zero())
	st.Positions[validMint1] = &statestore.Position{
		RawAmount:    bigamount.MustFromDecimalString("1000000000"),
		CostLamports: bigamount.MustFromDecimalString("1000000000"),
		OpenedAt:     time.Now(),
	}
	g := New(Config{StopLossPct: -0.05, TakeProfitPct: 0.5, MaxHoldMinutes: 1440, SellMomentumThreshold: -1, SellFraction: 1})
	intents := g.EmitExits(st, 1.0, func(string) (float64, bool) { return 0, false }, func(string) int { return 9 }, time.Now())
	if len(intents) != 0 {
		t.Errorf("expected no exits without a price, got %d", len(intents))
	}
}

func TestEmitExitsSkipsWithoutNativePrice(t *testing.T) {
	st := statestore.New(bigamount.Zero())
	st.Positions[validMint1] = &statestore.Position{
		RawAmount:    bigamount.MustFromDecimalString("1000000000"),
		CostLamports: bigamount.MustFromDecimalString("1000000000"),
		OpenedAt:     time.Now(),
	}
	g := New(Config{StopLossPct: -0.05, TakeProfitPct: 0.5, MaxHoldMinutes: 1440, SellMomentumThreshold: -1, SellFraction: 1})
	intents := g.EmitExits(st, 0, func(string) (float64, bool) { return 0.9, true }, func(string) int { return 9 }, time.Now())
	if len(intents) != 0 {
		t.Errorf("expected no exits without a native price, got %d", len(intents))
	}
}
