package improve

import (
	"nof0-agent/internal/statestore"
	"nof0-agent/pkg/backtest"
	"nof0-agent/pkg/momentum"
)

// replayResult summarizes a single-position replay of one policy across
// every mint's stored market_history.
type replayResult struct {
	pnlPct         float64
	sharpe         float64
	maxDrawdownPct float64
	passRate       float64
}

// replayAll runs replayOne for every mint with at least minSamples points
// and averages the resulting metrics; mints with too little history are
// skipped (spec is silent on multi-mint aggregation, so this takes the
// straightforward mean across covered mints — recorded as an Open
// Question resolution).
func replayAll(p Policy, history map[string][]statestore.PricePoint, minSamples int) replayResult {
	var sum replayResult
	n := 0
	for _, points := range history {
		if len(points) < minSamples {
			continue
		}
		r := replayOne(p, points)
		sum.pnlPct += r.pnlPct
		sum.sharpe += r.sharpe
		sum.maxDrawdownPct += r.maxDrawdownPct
		sum.passRate += r.passRate
		n++
	}
	if n == 0 {
		return replayResult{}
	}
	return replayResult{
		pnlPct:         sum.pnlPct / float64(n),
		sharpe:         sum.sharpe / float64(n),
		maxDrawdownPct: sum.maxDrawdownPct / float64(n),
		passRate:       sum.passRate / float64(n),
	}
}

// replayOne simulates a single position against one mint's price history:
// enter when momentum score >= BuyMomentumThreshold, exit on take-profit,
// stop-loss, or momentum-reversal (spec §4.9's replay rule), sized at
// MaxTradeNative whole units of notional per entry.
func replayOne(p Policy, points []statestore.PricePoint) replayResult {
	const initialEquity = 100000.0
	equity := initialEquity
	equityCurve := []float64{equity}

	var inPosition bool
	var entryPrice float64
	var trades, wins int

	for i, pt := range points {
		window := pointsUpTo(points, i)
		score := momentum.Score(window)

		if !inPosition {
			if score >= p.BuyMomentumThreshold {
				inPosition = true
				entryPrice = pt.PriceUSD
			}
			equityCurve = append(equityCurve, equity)
			continue
		}

		pnlPct := pt.PriceUSD/entryPrice - 1
		exit := pnlPct <= p.StopLossPct || pnlPct >= p.TakeProfitPct || score <= p.SellMomentumThreshold
		if exit {
			notional := p.MaxTradeNative * entryPrice
			realized := notional * pnlPct
			equity += realized
			trades++
			if realized > 0 {
				wins++
			}
			inPosition = false
		}
		equityCurve = append(equityCurve, equity)
	}

	result := replayResult{
		pnlPct:         (equity - initialEquity) / initialEquity * 100,
		sharpe:         backtest.Sharpe(equityCurve),
		maxDrawdownPct: backtest.MaxDrawdownPct(equityCurve),
	}
	if trades > 0 {
		result.passRate = float64(wins) / float64(trades)
	} else {
		result.passRate = 1 // no trades taken, nothing failed
	}
	return result
}

// pointsUpTo converts statestore price points into the window
// momentum.Score expects: everything observed through index i, inclusive.
func pointsUpTo(points []statestore.PricePoint, i int) []statestore.PricePoint {
	return points[:i+1]
}
