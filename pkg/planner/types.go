// Package planner implements the Planner Adapter (spec §4.7): it collects
// per-mint token context, invokes a rule or LLM backend under a timeout,
// and normalizes whatever the backend returns into validated intents
// against a simulated, decrementing view of cash and open positions. It
// generalizes the teacher's pkg/executor package (BasicExecutor +
// decisionContract + ValidateDecisions) from the teacher's leveraged-perp
// decision shape to the core's buy/sell ExecutionIntent vocabulary; the
// execution-shape half of the teacher's validator (position caps, margin,
// leverage) was absorbed into pkg/safety instead, since that is a gate the
// spec applies uniformly to both planner output and safety-gate exits.
package planner

import (
	"time"

	"nof0-agent/internal/statestore"
)

// TokenContext is what the adapter assembles per candidate mint before
// calling a backend (spec §4.7 step 1).
type TokenContext struct {
	Mint                string  `json:"mint"`
	Symbol              string  `json:"symbol"`
	PriceUSD            float64 `json:"price_usd"`
	MomentumScore       float64 `json:"momentum_score"`
	HasPosition         bool    `json:"has_position"`
	PnlPct              float64 `json:"pnl_pct,omitempty"`
	HoldMinutes         float64 `json:"hold_minutes,omitempty"`
	CooldownRemainingMs int64   `json:"cooldown_remaining_ms"`
}

// Decision is one element of a backend's canonical `intents` array. Every
// field is optional and defensively parsed (spec §9: "Parse defensively:
// every field is optional; unknown fields are ignored. Never trust the
// planner for size discipline — always re-clamp.").
type Decision struct {
	Signal         string  `json:"signal"` // "buy" | "sell" | "hold"
	Mint           string  `json:"mint,omitempty"`
	Symbol         string  `json:"symbol,omitempty"`
	AmountLamports string  `json:"amount_lamports,omitempty"`
	SlippageBps    int     `json:"slippage_bps,omitempty"`
	Reasoning      string  `json:"reasoning,omitempty"`
}

// BackendOutput is the canonical JSON shape every backend kind returns
// (spec §4.7's opening line).
type BackendOutput struct {
	Notes   []string   `json:"notes"`
	Intents []Decision `json:"intents"`
}

// Input is everything a Backend needs to propose decisions for one cycle.
type Input struct {
	TokenContexts []TokenContext
	Now           time.Time
}

// snapshotFromState builds the per-mint context the adapter hands to a
// backend, deriving pnl/hold/cooldown figures from live AgentState and the
// cycle's fresh prices.
func snapshotFromState(st *statestore.AgentState, mint, symbol string, priceUSD, momentumScore float64, now time.Time, minIntentGapMs int64) TokenContext {
	tc := TokenContext{
		Mint:          mint,
		Symbol:        symbol,
		PriceUSD:      priceUSD,
		MomentumScore: momentumScore,
	}
	if pos, ok := st.Positions[mint]; ok {
		tc.HasPosition = true
		tc.HoldMinutes = now.Sub(pos.OpenedAt).Minutes()
		costUSD := costBasisUSD(pos, priceUSD)
		if costUSD > 0 {
			tc.PnlPct = marketValueUSD(pos, priceUSD)/costUSD - 1
		}
	}
	if last, ok := st.LastIntentAt[mint]; ok {
		remaining := minIntentGapMs - (now.UnixMilli() - last)
		if remaining > 0 {
			tc.CooldownRemainingMs = remaining
		}
	}
	return tc
}
