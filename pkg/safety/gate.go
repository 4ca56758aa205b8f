// Package safety implements the Safety Gate (spec §4.5): validating
// intents before they reach the WalletExecutor, and emitting exit intents
// (stop-loss/take-profit/timeout/momentum-reversal) by scanning open
// positions against current prices every cycle. It generalizes the
// teacher's pkg/executor/validator.go rejection-reason style — one
// function returning a reason string per failed check — to the queue's
// ExecutionIntent/ExecutionResult vocabulary instead of the teacher's
// leveraged-perp decision contract.
package safety

import (
	"fmt"
	"math"
	"math/big"
	"strings"
	"time"

	"nof0-agent/internal/statestore"
	"nof0-agent/pkg/bigamount"
	"nof0-agent/pkg/intentqueue"
	"nof0-agent/pkg/momentum"
)

// Config holds the hard limits and policy thresholds the gate enforces.
// Hot-reload is intentionally not supported: per spec §9's "Global
// configuration" note, this is built once at startup and passed down.
type Config struct {
	KillSwitch       bool
	MaxAmountLamports bigamount.Amount
	MaxSlippageBps   int
	AllowedMints     []string // empty means no allow-list restriction
	MinIntentGapMs   int64

	StopLossPct           float64 // e.g. -0.08
	TakeProfitPct         float64 // e.g. 0.15
	MaxHoldMinutes        float64
	SellMomentumThreshold float64
	SellFraction          float64 // e.g. 1.0; clamped to 0.995 per spec §9
}

// Gate is the stateless (config-only) policy enforcement point shared by
// the cycle engine and the planner adapter for cooldown bookkeeping.
type Gate struct {
	cfg Config
}

// New constructs a Gate.
func New(cfg Config) *Gate {
	return &Gate{cfg: cfg}
}

// Validation is the outcome of Validate: either the intent may proceed
// (OK), or it must surface directly as a Result without reaching the
// executor.
type Validation struct {
	OK     bool
	Status intentqueue.ResultStatus // only meaningful when !OK
	Reason string
}

func ok() Validation { return Validation{OK: true} }

func rejected(reason string) Validation {
	return Validation{OK: false, Status: intentqueue.StatusRejected, Reason: reason}
}

func expired(reason string) Validation {
	return Validation{OK: false, Status: intentqueue.StatusExpired, Reason: reason}
}

// Validate runs the (a) half of spec §4.5: pre-execution checks. Order
// matches the spec's listing; the first failing check wins.
func (g *Gate) Validate(intent intentqueue.Intent, now time.Time) Validation {
	if g.cfg.KillSwitch {
		return rejected("Global kill switch is enabled")
	}
	if intent.InputMint == intent.OutputMint {
		return rejected("input_mint and output_mint must differ")
	}
	mint := intent.OutputMint
	if intent.Action == intentqueue.ActionSell {
		mint = intent.InputMint
	}
	if !looksLikeMint(mint) {
		return rejected(fmt.Sprintf("mint %q fails format check", mint))
	}

	amount, err := bigamount.FromDecimalString(intent.AmountLamports)
	if err != nil || amount.IsZero() {
		return rejected("amount_lamports must be a positive integer")
	}
	if !g.cfg.MaxAmountLamports.IsZero() && amount.Cmp(g.cfg.MaxAmountLamports) > 0 {
		return rejected("amount_lamports exceeds max_amount_lamports")
	}

	if intent.SlippageBps < 1 || (g.cfg.MaxSlippageBps > 0 && intent.SlippageBps > g.cfg.MaxSlippageBps) {
		return rejected("slippage_bps out of range")
	}

	if len(g.cfg.AllowedMints) > 0 && !containsFold(g.cfg.AllowedMints, mint) {
		return rejected(fmt.Sprintf("mint %q is not in the allow-list", mint))
	}

	if intent.IsExpired(now) {
		return expired("intent expired before validation")
	}

	return ok()
}

// looksLikeMint applies the base58 32-44 char check spec §4.5 names. It
// does not verify the mint actually exists on-chain (that is the
// WalletExecutor's job) — only that it is shaped like one.
func looksLikeMint(mint string) bool {
	if len(mint) < 32 || len(mint) > 44 {
		return false
	}
	const alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"
	for _, r := range mint {
		if !strings.ContainsRune(alphabet, r) {
			return false
		}
	}
	return true
}

func containsFold(list []string, v string) bool {
	for _, item := range list {
		if strings.EqualFold(item, v) {
			return true
		}
	}
	return false
}

// CooldownOK reports whether key (a mint or perp market) is clear of the
// shared per-key cooldown as of now.
func (g *Gate) CooldownOK(st *statestore.AgentState, key string, now time.Time) bool {
	last, ok := st.LastIntentAt[key]
	if !ok {
		return true
	}
	return now.UnixMilli()-last >= g.cfg.MinIntentGapMs
}

// RecordIntent stamps key's cooldown timer to now. Safety Gate exits and
// Planner Adapter intents share this bookkeeping (spec §4.5).
func (g *Gate) RecordIntent(st *statestore.AgentState, key string, now time.Time) {
	if st.LastIntentAt == nil {
		st.LastIntentAt = make(map[string]int64)
	}
	st.LastIntentAt[key] = now.UnixMilli()
}

// PriceLookup resolves the current USD price for a mint, supplied by the
// cycle engine from its PriceFeed refresh this cycle.
type PriceLookup func(mint string) (float64, bool)

// DecimalsLookup resolves a mint's on-chain decimal scale, supplied by the
// cycle engine from its configured universe.
type DecimalsLookup func(mint string) int

// EmitExits runs the (b) half of spec §4.5: scanning open positions for
// stop-loss/take-profit/timeout/momentum-reversal conditions and producing
// sell intents that bypass the planner entirely. Exit intents are still
// subject to the shared cooldown. nativePriceUSD prices cost_lamports (always
// native/SOL, 9 decimals); prices/decimals resolve each position's own mint,
// per spec §4.5(b): cost_basis_usd and market_value_usd must not share one
// price or the token price cancels out of pnl_pct entirely.
func (g *Gate) EmitExits(st *statestore.AgentState, nativePriceUSD float64, prices PriceLookup, decimals DecimalsLookup, now time.Time) []intentqueue.Intent {
	if nativePriceUSD <= 0 {
		return nil // PriceFeedUnavailable: no exits can be priced without the native mint
	}
	var intents []intentqueue.Intent

	for mint, pos := range st.Positions {
		if !g.CooldownOK(st, mint, now) {
			continue
		}
		priceUSD, have := prices(mint)
		if !have || priceUSD <= 0 {
			continue // PriceFeedUnavailable: exits needing a fresh price are skipped this cycle
		}

		costBasisUSD := (amountToFloat64(pos.CostLamports) / 1e9) * nativePriceUSD
		marketValueUSD := amountToFloat64(pos.RawAmount) / tokenScale(decimals, mint) * priceUSD

		var pnlPct float64
		if costBasisUSD > 0 {
			pnlPct = marketValueUSD/costBasisUSD - 1
		}
		holdMinutes := now.Sub(pos.OpenedAt).Minutes()
		score := momentum.Score(st.MarketHistory[mint])

		exit := pnlPct <= g.cfg.StopLossPct ||
			pnlPct >= g.cfg.TakeProfitPct ||
			holdMinutes >= g.cfg.MaxHoldMinutes ||
			score <= g.cfg.SellMomentumThreshold
		if !exit {
			continue
		}

		fraction := g.cfg.SellFraction
		if fraction <= 0 {
			fraction = 1
		}
		if fraction >= 0.999 {
			fraction = 0.995 // leave routing dust, avoid route-simulation failures (spec §9)
		}
		sellAmount := pos.RawAmount.MulFracPPM(int64(fraction * 1_000_000))
		if sellAmount.IsZero() {
			continue
		}

		intents = append(intents, intentqueue.Intent{
			Action:         intentqueue.ActionSell,
			InputMint:      mint,
			OutputMint:     "SOL",
			AmountLamports: sellAmount.ToDecimalString(),
			SlippageBps:    defaultExitSlippageBps,
			Metadata: map[string]any{
				"exit_reason": exitReason(pnlPct, holdMinutes, score, g.cfg),
			},
		})
		g.RecordIntent(st, mint, now)
	}
	return intents
}

const defaultExitSlippageBps = 100

func exitReason(pnlPct, holdMinutes, score float64, cfg Config) string {
	switch {
	case pnlPct <= cfg.StopLossPct:
		return "stop_loss"
	case pnlPct >= cfg.TakeProfitPct:
		return "take_profit"
	case holdMinutes >= cfg.MaxHoldMinutes:
		return "timeout"
	default:
		return "momentum_reversal"
	}
}

// tokenScale resolves 10^decimals for mint, defaulting to 9 (SOL's own
// scale) when the lookup is nil or doesn't know the mint.
func tokenScale(decimals DecimalsLookup, mint string) float64 {
	d := 9
	if decimals != nil {
		if v := decimals(mint); v > 0 {
			d = v
		}
	}
	return math.Pow10(d)
}

// amountToFloat64 converts an Amount to a float64 for threshold comparisons
// only (spec §9: "pnl_pct is a floating decimal for threshold comparisons
// only, never fed back into ledger arithmetic"). Precision loss here is
// acceptable and bounded to display/decisioning, never to cash movement.
func amountToFloat64(a bigamount.Amount) float64 {
	f := new(big.Float).SetInt(a.Int())
	v, _ := f.Float64()
	return v
}
