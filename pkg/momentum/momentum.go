// Package momentum computes the dimensionless return-based signal the
// Safety Gate and Planner Adapter both use to decide exits and entries. It
// sits alongside the teacher's pkg/market/indicators (EMA/MACD/RSI) as a
// much smaller, purpose-built signal: spec's Glossary defines momentum
// score as 0.7*r1 + 0.3*r5, not any of the teacher's existing indicators.
package momentum

import "nof0-agent/internal/statestore"

// Score computes 0.7*r1 + 0.3*r5 where r1/r5 are the fractional returns
// over the last 1-minute and 5-minute windows of history, looking
// backwards from the most recent sample. History shorter than the
// requested window falls back to the oldest available sample. Returns 0
// when fewer than two points exist.
func Score(history []statestore.PricePoint) float64 {
	n := len(history)
	if n < 2 {
		return 0
	}
	latest := history[n-1]
	r1 := returnOverMinutes(history, latest, 1)
	r5 := returnOverMinutes(history, latest, 5)
	return 0.7*r1 + 0.3*r5
}

func returnOverMinutes(history []statestore.PricePoint, latest statestore.PricePoint, minutes int64) float64 {
	cutoff := latest.TS - minutes*60_000
	// Walk backwards to find the first sample at or before the cutoff;
	// fall back to the oldest sample if history doesn't reach that far.
	ref := history[0]
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].TS <= cutoff {
			ref = history[i]
			break
		}
	}
	if ref.PriceUSD == 0 {
		return 0
	}
	return (latest.PriceUSD - ref.PriceUSD) / ref.PriceUSD
}
