package planner

import "context"

// Backend produces a BackendOutput from an Input, under a caller-supplied
// timeout (spec §4.7 step 2: "enforcing a per-invocation timeout").
type Backend interface {
	Propose(ctx context.Context, input Input) (BackendOutput, error)
}

// RuleBackend is the pure momentum-threshold backend, grounded on the
// teacher's backtest.ThresholdStrategy.Decide: it needs no network access
// and is the fallback target in hybrid mode.
type RuleBackend struct {
	BuyMomentumThreshold  float64
	SellMomentumThreshold float64
}

// Propose implements Backend.
func (r *RuleBackend) Propose(ctx context.Context, input Input) (BackendOutput, error) {
	out := BackendOutput{}
	for _, tc := range input.TokenContexts {
		if tc.CooldownRemainingMs > 0 {
			continue
		}
		switch {
		case !tc.HasPosition && tc.MomentumScore >= r.BuyMomentumThreshold:
			out.Intents = append(out.Intents, Decision{
				Signal: "buy",
				Mint:   tc.Mint,
				Symbol: tc.Symbol,
				Reasoning: "momentum score above buy threshold",
			})
		case tc.HasPosition && tc.MomentumScore <= r.SellMomentumThreshold:
			out.Intents = append(out.Intents, Decision{
				Signal: "sell",
				Mint:   tc.Mint,
				Symbol: tc.Symbol,
				Reasoning: "momentum score below sell threshold",
			})
		}
	}
	return out, nil
}
