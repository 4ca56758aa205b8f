// Package statestore owns the single on-disk AgentState file: the cycle
// engine's sole writer, loaded once per process and persisted atomically at
// the end of every cycle.
package statestore

import (
	"time"

	"nof0-agent/pkg/bigamount"
)

// PricePoint is one sampled price observation kept in a mint's rolling
// market history.
type PricePoint struct {
	TS       int64   `json:"ts"`
	PriceUSD float64 `json:"price_usd"`
}

// Position is a single open holding, keyed by mint in AgentState.Positions.
// Invariant P1: a mint is only present here while RawAmount > 0; invariant
// P2: CostLamports is the total cost of the currently held RawAmount and is
// reduced proportionally on partial sells (see pkg/portfolio).
type Position struct {
	Symbol       string          `json:"symbol"`
	Decimals     int             `json:"decimals"`
	RawAmount    bigamount.Amount `json:"raw_amount"`
	CostLamports bigamount.Amount `json:"cost_lamports"`
	OpenedAt     time.Time       `json:"opened_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// PerpPosition is the auxiliary per-market perpetual-futures position
// tracked separately from spot Positions (spec §4.4, perp subsystem).
type PerpPosition struct {
	Market          string           `json:"market"`
	Side            string           `json:"side"` // "long" | "short"
	Leverage        int              `json:"leverage"`
	CollateralUSD   float64          `json:"collateral_usd"`
	EntryPriceUSD   float64          `json:"entry_price_usd"`
	LiquidationUSD  float64          `json:"liquidation_price_usd"`
	SizeNative      bigamount.Amount `json:"size_native"`
	OpenedAt        time.Time        `json:"opened_at"`
}

// AgentState is the complete persisted state of the trading agent. Field
// names and JSON tags are bit-exact with spec §6's state.json format.
type AgentState struct {
	Cycle               int64                   `json:"cycle"`
	CashLamports        bigamount.Amount        `json:"cash_lamports"`
	InitialCashLamports bigamount.Amount        `json:"initial_cash_lamports"`
	RealizedPnlLamports bigamount.Signed        `json:"realized_pnl_lamports"`
	Positions           map[string]*Position    `json:"positions"`
	LastIntentAt        map[string]int64        `json:"last_intent_at"`
	MarketHistory       map[string][]PricePoint `json:"market_history"`
	FilledCount         int64                   `json:"filled_count"`
	FailedCount         int64                   `json:"failed_count"`
	// ClosedTradeCount counts realized sells only (SPEC_FULL §4.8/§4.9
	// addition), distinct from FilledCount which also counts buys: the
	// improvement gate's min_closed_trades_for_gate threshold is about
	// trades with a realized outcome, not fills in general.
	ClosedTradeCount int64     `json:"closed_trade_count"`
	UpdatedAt        time.Time `json:"updated_at"`

	// Perpetual subsystem, gated off by default (SPEC_FULL §3/§9): zero
	// valued and untouched unless the engine is configured with perps on.
	PerpBalanceLamports     bigamount.Signed         `json:"perp_balance_lamports"`
	PerpRealizedPnlLamports bigamount.Signed         `json:"perp_realized_pnl_lamports"`
	PerpPositions           map[string]*PerpPosition `json:"perp_positions,omitempty"`
}

// New returns a freshly initialized state with the given starting cash.
func New(initialCashLamports bigamount.Amount) *AgentState {
	return &AgentState{
		Cycle:               0,
		CashLamports:        initialCashLamports,
		InitialCashLamports: initialCashLamports,
		RealizedPnlLamports: bigamount.ZeroSigned(),
		Positions:           make(map[string]*Position),
		LastIntentAt:        make(map[string]int64),
		MarketHistory:       make(map[string][]PricePoint),
		PerpBalanceLamports: bigamount.ZeroSigned(),
		PerpRealizedPnlLamports: bigamount.ZeroSigned(),
		PerpPositions:       make(map[string]*PerpPosition),
		UpdatedAt:           time.Now().UTC(),
	}
}
