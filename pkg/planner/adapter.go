package planner

import (
	"context"
	"strings"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"nof0-agent/internal/statestore"
	"nof0-agent/pkg/bigamount"
	"nof0-agent/pkg/intentqueue"
	"nof0-agent/pkg/momentum"
	"nof0-agent/pkg/safety"
)

// Universe is a candidate token known to the adapter.
type Universe struct {
	Mint     string
	Symbol   string
	Decimals int
}

// Config holds the Planner Adapter's tunables (spec §4.7 step 3).
type Config struct {
	Timeout            time.Duration
	MaxIntentsPerCycle int
	MaxOpenPositions   int
	MinTradeNative     float64 // whole-unit native token amount
	MaxTradeNative     float64
	IntentSlippageBps  int
	MaxSlippageBps     int
	MinTradeValueUSD   float64
	MinIntentGapMs     int64
}

// Adapter implements spec §4.7: it assembles token context, invokes a
// Backend under a timeout, and normalizes the result into validated
// intents against a simulated decrementing view of state. It generalizes
// the teacher's pkg/executor.BasicExecutor's clamp-and-validate shape away
// from a single leveraged position toward a per-mint intent list.
type Adapter struct {
	cfg     Config
	backend Backend
	gate    *safety.Gate
}

// New constructs an Adapter. gate supplies the shared cooldown bookkeeping
// (spec §4.5's "Safety Gate and the Planner Adapter share last_intent_at").
func New(cfg Config, backend Backend, gate *safety.Gate) *Adapter {
	return &Adapter{cfg: cfg, backend: backend, gate: gate}
}

// priceLookup mirrors safety.PriceLookup to avoid an import cycle; the
// cycle engine supplies the same closure to both collaborators.
type priceLookup func(mint string) (float64, bool)

// Propose runs the full adapter algorithm for one cycle and returns the
// validated intents to enqueue (spec §4.7 steps 1-4).
func (a *Adapter) Propose(ctx context.Context, st *statestore.AgentState, universe []Universe, prices priceLookup, now time.Time) []intentqueue.Intent {
	input := Input{Now: now}
	priceByMint := make(map[string]float64, len(universe))
	for _, u := range universe {
		priceUSD, have := prices(u.Mint)
		if !have || priceUSD <= 0 {
			continue // PriceFeedUnavailable: this mint is skipped for the cycle
		}
		priceByMint[u.Mint] = priceUSD
		score := momentum.Score(st.MarketHistory[u.Mint])
		input.TokenContexts = append(input.TokenContexts, snapshotFromState(st, u.Mint, u.Symbol, priceUSD, score, now, a.cfg.MinIntentGapMs))
	}

	cctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()
	out, err := a.backend.Propose(cctx, input)
	if err != nil {
		logx.Errorf("planner: adapter backend failed: %v", err)
		return nil
	}

	return a.normalize(st, universe, priceByMint, out, now)
}

// normalize implements spec §4.7 step 3-4 against a simulated decrementing
// view of cash and open position count, so several intents in one cycle
// still respect the caps.
func (a *Adapter) normalize(st *statestore.AgentState, universe []Universe, priceByMint map[string]float64, out BackendOutput, now time.Time) []intentqueue.Intent {
	symbolToMint := make(map[string]string, len(universe))
	for _, u := range universe {
		symbolToMint[strings.ToLower(u.Symbol)] = u.Mint
	}

	simCash := st.CashLamports
	openPositions := len(st.Positions)
	emitted := 0

	var intents []intentqueue.Intent
	for _, d := range out.Intents {
		if emitted >= a.cfg.MaxIntentsPerCycle {
			break
		}
		mint := a.resolveMint(d, symbolToMint)
		if mint == "" {
			continue
		}
		priceUSD, havePrice := priceByMint[mint]
		if !havePrice {
			continue
		}
		if a.gate != nil && !a.gate.CooldownOK(st, mint, now) {
			continue
		}

		switch strings.ToLower(d.Signal) {
		case "buy":
			if openPositions >= a.cfg.MaxOpenPositions {
				if _, has := st.Positions[mint]; !has {
					continue
				}
			}
			amount := a.coerceBuyAmount(d, simCash)
			if amount.IsZero() {
				continue
			}
			intents = append(intents, intentqueue.Intent{
				Action:         intentqueue.ActionBuy,
				InputMint:      "SOL",
				OutputMint:     mint,
				AmountLamports: amount.ToDecimalString(),
				SlippageBps:    a.coerceSlippage(d),
				Metadata:       map[string]any{"reasoning": d.Reasoning},
			})
			simCash = simCash.SubSaturating(amount)
			if _, has := st.Positions[mint]; !has {
				openPositions++
			}
		case "sell":
			pos, has := st.Positions[mint]
			if !has {
				continue
			}
			marketValueUSD := marketValueUSD(pos, priceUSD)
			if marketValueUSD < a.cfg.MinTradeValueUSD {
				continue // dust sell, fees would exceed proceeds
			}
			intents = append(intents, intentqueue.Intent{
				Action:         intentqueue.ActionSell,
				InputMint:      mint,
				OutputMint:     "SOL",
				AmountLamports: pos.RawAmount.ToDecimalString(),
				SlippageBps:    a.coerceSlippage(d),
				Metadata:       map[string]any{"reasoning": d.Reasoning},
			})
			openPositions--
		default:
			continue // "hold" or unrecognized signal: no intent
		}

		if a.gate != nil {
			a.gate.RecordIntent(st, mint, now)
		}
		emitted++
	}
	return intents
}

func (a *Adapter) resolveMint(d Decision, symbolToMint map[string]string) string {
	if d.Mint != "" {
		return d.Mint
	}
	if d.Symbol != "" {
		return symbolToMint[strings.ToLower(d.Symbol)]
	}
	return ""
}

// coerceBuyAmount implements spec §4.7 step 3's amount_lamports coercion
// for buys: default to min(max_trade_native, simulated_cash) when missing
// or invalid, then clamp to [min_trade_native, max_trade_native] and to
// simulated cash; zero if the floor cannot be met.
func (a *Adapter) coerceBuyAmount(d Decision, simCash bigamount.Amount) bigamount.Amount {
	maxTradeLamports := bigamount.MustFromDecimalString(nativeToLamports(a.cfg.MaxTradeNative))
	minTradeLamports := bigamount.MustFromDecimalString(nativeToLamports(a.cfg.MinTradeNative))

	amount, err := bigamount.FromDecimalString(d.AmountLamports)
	if err != nil || amount.IsZero() {
		amount = maxTradeLamports.Min(simCash)
	}
	if amount.Cmp(maxTradeLamports) > 0 {
		amount = maxTradeLamports
	}
	if amount.Cmp(simCash) > 0 {
		amount = simCash
	}
	if amount.Cmp(minTradeLamports) < 0 {
		return bigamount.Zero()
	}
	return amount
}

func (a *Adapter) coerceSlippage(d Decision) int {
	bps := d.SlippageBps
	if bps < 1 {
		bps = a.cfg.IntentSlippageBps
	}
	if a.cfg.MaxSlippageBps > 0 && bps > a.cfg.MaxSlippageBps {
		bps = a.cfg.MaxSlippageBps
	}
	return bps
}

// nativeToLamports renders a whole-unit float as an integer lamport
// decimal string at 1e9 scale, matching spec §4.7's "* 10^9" note. Inputs
// here originate from operator-supplied config, not from chain data, so
// float64 precision is acceptable (spec §9 threshold-math carve-out).
func nativeToLamports(native float64) string {
	lamports := int64(native * 1e9)
	if lamports < 0 {
		lamports = 0
	}
	amount, err := bigamount.FromInt64(lamports)
	if err != nil {
		return "0"
	}
	return amount.ToDecimalString()
}
