package planner

import (
	"math/big"

	"nof0-agent/internal/statestore"
	"nof0-agent/pkg/bigamount"
)

// amountToFloat64 converts an Amount to float64 for threshold/context math
// only (spec §9: never fed back into ledger arithmetic). Mirrors the same
// helper in pkg/safety; kept local to avoid a cross-package dependency for
// one float conversion.
func amountToFloat64(a bigamount.Amount) float64 {
	f := new(big.Float).SetInt(a.Int())
	v, _ := f.Float64()
	return v
}

func costBasisUSD(pos *statestore.Position, priceUSD float64) float64 {
	return (amountToFloat64(pos.CostLamports) / 1e9) * priceUSD
}

func marketValueUSD(pos *statestore.Position, priceUSD float64) float64 {
	return amountToFloat64(pos.RawAmount) * priceUSD / 1e9
}
