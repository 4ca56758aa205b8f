// Package portfolio implements the weighted-average cost-basis ledger that
// applies ExecutionResults to an AgentState. It generalizes the teacher's
// backtest.portfolio float64 buy/sell merge logic to bigamount.Amount so
// that cash and cost tracking is exact integer arithmetic, never floating
// point, per spec §4.4 and the design note in §9 ("weighted-average, not
// FIFO — merged buys share one cost_lamports field").
package portfolio

import (
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"nof0-agent/internal/statestore"
	"nof0-agent/pkg/bigamount"
	"nof0-agent/pkg/intentqueue"
)

// DefaultDustThresholdPPM is the 1% convention spec §9 chooses over the
// historical 0.5% variant: a remaining raw_amount at or below this fraction
// of the holdings just before the sell auto-closes the position.
const DefaultDustThresholdPPM = 10_000 // 1% in parts-per-million terms (10_000/1_000_000)

// Ledger applies execution outcomes to an AgentState in place. It holds no
// state of its own; AgentState is the single owner, consistent with the
// "cyclic references" design note in spec §9.
type Ledger struct {
	dustThresholdPPM int64
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithDustThresholdPPM overrides DefaultDustThresholdPPM.
func WithDustThresholdPPM(ppm int64) Option {
	return func(l *Ledger) {
		if ppm > 0 {
			l.dustThresholdPPM = ppm
		}
	}
}

// New constructs a Ledger.
func New(opts ...Option) *Ledger {
	l := &Ledger{dustThresholdPPM: DefaultDustThresholdPPM}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// ApplyResult dispatches an ExecutionResult against st, per spec §4.4's
// apply_result algorithm: non-filled results only touch counters, filled
// results mutate positions and cash via ApplyBuy/ApplySell.
func (l *Ledger) ApplyResult(st *statestore.AgentState, intent intentqueue.Intent, result intentqueue.Result) error {
	if result.Status != intentqueue.StatusFilled {
		st.FailedCount++
		return nil
	}
	st.FilledCount++

	inputAmt, err := bigamount.FromDecimalString(result.InputAmount)
	if err != nil {
		return err
	}
	outputAmt, err := bigamount.FromDecimalString(result.OutputAmount)
	if err != nil {
		return err
	}

	switch intent.Action {
	case intentqueue.ActionBuy:
		return l.ApplyBuy(st, intent, inputAmt, outputAmt)
	case intentqueue.ActionSell:
		return l.ApplySell(st, intent, inputAmt, outputAmt)
	default:
		logx.Errorf("portfolio: unknown intent action %q, ignoring result", intent.Action)
		return nil
	}
}

// ApplyBuy merges a filled buy into the position for intent.OutputMint,
// opening it on first fill. inputAmount is native spent, outputAmount is
// raw token units received.
func (l *Ledger) ApplyBuy(st *statestore.AgentState, intent intentqueue.Intent, inputAmount, outputAmount bigamount.Amount) error {
	if inputAmount.IsZero() || outputAmount.IsZero() {
		return errInvalidResult("apply_buy: zero amount")
	}
	now := time.Now().UTC()
	mint := intent.OutputMint

	pos, ok := st.Positions[mint]
	if !ok {
		pos = &statestore.Position{
			Symbol:   symbolFromMetadata(intent, mint),
			OpenedAt: now,
		}
		st.Positions[mint] = pos
	}
	pos.RawAmount = pos.RawAmount.Add(outputAmount)
	pos.CostLamports = pos.CostLamports.Add(inputAmount)
	pos.UpdatedAt = now

	if inputAmount.Cmp(st.CashLamports) > 0 {
		logx.Errorf("portfolio: buy %s spent %s but only %s cash was held; flooring at zero", mint, inputAmount, st.CashLamports)
	}
	st.CashLamports = st.CashLamports.SubSaturating(inputAmount)
	return nil
}

// ApplySell reduces (or closes) the position for intent.InputMint using
// weighted-average cost allocation. If no matching position exists, the
// proceeds are credited to cash and a phantom-sell event is logged, per
// spec §4.4.
func (l *Ledger) ApplySell(st *statestore.AgentState, intent intentqueue.Intent, requestedRaw, outputAmount bigamount.Amount) error {
	mint := intent.InputMint
	pos, ok := st.Positions[mint]
	if !ok || pos.RawAmount.IsZero() {
		st.CashLamports = st.CashLamports.Add(outputAmount)
		logx.Errorf("portfolio: phantom sell for %s, no open position; crediting %s to cash", mint, outputAmount)
		return nil
	}

	preSellRaw := pos.RawAmount
	sold := requestedRaw.Min(pos.RawAmount) // clamp: a sell exceeding holdings never overdrafts

	allocatedCost := bigamount.Zero()
	if !pos.RawAmount.IsZero() {
		allocatedCost = pos.CostLamports.MulDivAmounts(sold, pos.RawAmount)
	}

	pnl := bigamount.SignedDiff(outputAmount, allocatedCost)
	st.RealizedPnlLamports = st.RealizedPnlLamports.AddSigned(pnl)
	st.CashLamports = st.CashLamports.Add(outputAmount)
	st.ClosedTradeCount++

	pos.RawAmount = pos.RawAmount.SubSaturating(sold)
	pos.CostLamports = pos.CostLamports.SubSaturating(allocatedCost)
	pos.UpdatedAt = time.Now().UTC()

	if l.isDust(pos, preSellRaw) {
		delete(st.Positions, mint)
	}
	return nil
}

// isDust reports whether a position's remaining raw amount is at or below
// the dust threshold relative to preSellRaw, the holdings as they stood
// before this sell. Spec §4.4: dust_threshold = initial_raw/100 — a sell
// that leaves 0.5% behind (e.g. sell_fraction=0.999 routing slippage, per
// spec §9 "Full-balance sells") must still close the position.
func (l *Ledger) isDust(pos *statestore.Position, preSellRaw bigamount.Amount) bool {
	if pos.RawAmount.IsZero() {
		return true
	}
	threshold := preSellRaw.MulFracPPM(l.dustThresholdPPM)
	return pos.RawAmount.Cmp(threshold) <= 0
}

// errInvalidResult builds a *ledgerError of kind "InvalidResult"; the kind is
// carried in the message text rather than in a typed error hierarchy
// (spec §7: "error kinds are contract-level, not type names").
func errInvalidResult(msg string) error {
	return &ledgerError{kind: "InvalidResult", msg: msg}
}

type ledgerError struct {
	kind string
	msg  string
}

func (e *ledgerError) Error() string { return e.kind + ": " + e.msg }

func symbolFromMetadata(intent intentqueue.Intent, fallback string) string {
	if sym, ok := intent.Metadata["output_symbol"].(string); ok && sym != "" {
		return sym
	}
	return fallback
}

// PerpFeeRatePPM is the open-fee rate applied to notional (collateral *
// leverage) when a perpetual position is opened.
const PerpFeeRatePPM = 500 // 5 bps

// PerpCloseFeeRatePPM is the close-fee rate applied to notional at close.
const PerpCloseFeeRatePPM = 500

// ApplyPerpOpen opens an auxiliary perpetual position, replacing any
// existing position for market, per spec §4.4's perp subsystem. Collateral
// plus the open fee are deducted from the separate perp balance; liquidation
// price is a pure arithmetic projection from the entry price, no
// counterparty is modeled.
func (l *Ledger) ApplyPerpOpen(st *statestore.AgentState, market, side string, leverage int, collateralUSD, entryPriceUSD float64) error {
	if leverage <= 0 {
		return &ledgerError{kind: "InvalidIntent", msg: "perp_open: leverage must be positive"}
	}
	notional := collateralUSD * float64(leverage)
	openFee := notional * float64(PerpFeeRatePPM) / 1_000_000
	debit, err := bigamount.FromInt64(int64(collateralUSD + openFee))
	if err != nil {
		return err
	}
	st.PerpBalanceLamports = st.PerpBalanceLamports.Sub(debit)

	var liq float64
	if side == "short" {
		liq = entryPriceUSD * (1 + 1/float64(leverage))
	} else {
		liq = entryPriceUSD * (1 - 1/float64(leverage))
	}

	sizeNative, err := bigamount.FromInt64(int64(notional / entryPriceUSD))
	if err != nil {
		sizeNative = bigamount.Zero()
	}
	if st.PerpPositions == nil {
		st.PerpPositions = make(map[string]*statestore.PerpPosition)
	}
	st.PerpPositions[market] = &statestore.PerpPosition{
		Market:         market,
		Side:           side,
		Leverage:       leverage,
		CollateralUSD:  collateralUSD,
		EntryPriceUSD:  entryPriceUSD,
		LiquidationUSD: liq,
		SizeNative:     sizeNative,
		OpenedAt:       time.Now().UTC(),
	}
	return nil
}

// ApplyPerpClose realizes PnL for market at closePrice and removes the
// position, crediting the result into PerpRealizedPnlLamports.
func (l *Ledger) ApplyPerpClose(st *statestore.AgentState, market string, closePrice, borrowFeeUSD, closeFeeUSD float64) error {
	pos, ok := st.PerpPositions[market]
	if !ok {
		logx.Errorf("portfolio: perp close for unknown market %s", market)
		return nil
	}
	sign := 1.0
	if pos.Side == "short" {
		sign = -1.0
	}
	sizeUSD := pos.CollateralUSD * float64(pos.Leverage)
	priceChangePct := (closePrice - pos.EntryPriceUSD) / pos.EntryPriceUSD
	pnlUSD := sizeUSD*priceChangePct*sign - borrowFeeUSD - closeFeeUSD

	pnlLamports := bigamount.SignedFromInt64(int64(pnlUSD))
	st.PerpRealizedPnlLamports = st.PerpRealizedPnlLamports.AddSigned(pnlLamports)

	returned := pos.CollateralUSD + pnlUSD
	if returned < 0 {
		returned = 0
	}
	refund, _ := bigamount.FromInt64(int64(returned))
	st.PerpBalanceLamports = st.PerpBalanceLamports.Add(refund)
	delete(st.PerpPositions, market)
	return nil
}
