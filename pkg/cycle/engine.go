// Package cycle implements the Cycle Engine (spec §4.8): the single
// per-process orchestration loop tying together the PriceFeed, Safety
// Gate, Planner Adapter, Intent Queue, WalletExecutor, portfolio Ledger,
// and State Store into one cooperative, non-overlapping iteration. It
// generalizes the teacher's manager.Manager.RunTradingLoop ticker-and-fan-
// out shape down to a single agent with a single cash account, driven by
// pkg/clock instead of a raw time.Ticker so --once and cancellable-sleep
// semantics fall out of the same scheduler the tests exercise.
package cycle

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"nof0-agent/internal/statestore"
	"nof0-agent/pkg/improve"
	"nof0-agent/pkg/intentqueue"
	"nof0-agent/pkg/journal"
	"nof0-agent/pkg/planner"
	"nof0-agent/pkg/portfolio"
	"nof0-agent/pkg/pricefeed"
	"nof0-agent/pkg/safety"
	"nof0-agent/pkg/wallet"
)

// Config holds the engine's tunables orthogonal to its collaborators'
// own configs (spec §4.8 step 6, §5 timeouts).
type Config struct {
	NativeMint            string // "SOL" — always fetched alongside the universe
	ProposalEveryCycles   int64
	MinClosedTradesForGate int
	WalletExecutorTimeout  time.Duration
	PriceFeedTimeout       time.Duration
}

// Engine wires every collaborator required to run one cycle (spec §4.8).
type Engine struct {
	cfg      Config
	store    *statestore.Store
	queue    *intentqueue.Queue
	ledger   *portfolio.Ledger
	gate     *safety.Gate
	adapter  *planner.Adapter
	executor wallet.Executor
	feed     pricefeed.Feed
	improver *improve.Gate
	journal  *journal.Writer
	universe []planner.Universe
}

// New constructs an Engine. improver and journal may be nil to disable
// those optional steps.
func New(cfg Config, store *statestore.Store, queue *intentqueue.Queue, ledger *portfolio.Ledger, gate *safety.Gate, adapter *planner.Adapter, executor wallet.Executor, feed pricefeed.Feed, improver *improve.Gate, jw *journal.Writer, universe []planner.Universe) *Engine {
	return &Engine{
		cfg: cfg, store: store, queue: queue, ledger: ledger, gate: gate,
		adapter: adapter, executor: executor, feed: feed, improver: improver,
		journal: jw, universe: universe,
	}
}

// RunCycle executes the 8-step algorithm of spec §4.8 exactly once. It
// never returns an error for a step failure (fail-open); only state-store
// persistence errors propagate, since an unpersisted cycle must not be
// mistaken for a completed one by the caller.
func (e *Engine) RunCycle(ctx context.Context, st *statestore.AgentState) error {
	now := time.Now().UTC()
	rec := &journal.CycleRecord{Cycle: st.Cycle + 1}

	// Step 1: increment cycle counter.
	st.Cycle++
	rec.Cycle = st.Cycle
	cyclesTotal.Inc()

	// Step 2: fetch latest USD prices, append to market_history.
	prices := e.fetchPrices(ctx, st, now)
	rec.PricesFetched = len(prices)
	priceLookup := func(mint string) (float64, bool) {
		v, ok := prices[mint]
		return v, ok
	}
	decimalsLookup := func(mint string) int {
		for _, u := range e.universe {
			if u.Mint == mint {
				return u.Decimals
			}
		}
		return 0
	}

	// Step 3: Safety Gate exits, produced even if the planner is down.
	nativePriceUSD := prices[e.cfg.NativeMint]
	exitIntents := e.gate.EmitExits(st, nativePriceUSD, safety.PriceLookup(priceLookup), safety.DecimalsLookup(decimalsLookup), now)
	rec.ExitIntents = len(exitIntents)

	// Step 4: Planner Adapter intents.
	plannerIntents := e.adapter.Propose(ctx, st, e.universe, priceLookup, now)
	rec.PlannerIntents = len(plannerIntents)

	allIntents := append(exitIntents, plannerIntents...)
	if data, err := json.Marshal(allIntents); err == nil {
		rec.IntentsJSON = string(data)
	}

	// Step 5: validate, execute, apply, publish — sequentially, in order.
	for _, intent := range allIntents {
		action := e.processIntent(ctx, st, intent, now)
		rec.Actions = append(rec.Actions, action)
	}

	// Step 6: optionally emit an improvement proposal.
	if e.improver != nil && e.cfg.ProposalEveryCycles > 0 && st.Cycle%e.cfg.ProposalEveryCycles == 0 {
		closedTrades := int(st.ClosedTradeCount)
		if closedTrades >= e.cfg.MinClosedTradesForGate {
			if decision, err := e.improver.ProposeAndJudge(ctx, st); err != nil {
				logx.Errorf("cycle: improvement gate failed: %v", err)
			} else {
				rec.ProposalEmitted = true
				proposalsTotal.WithLabelValues(string(decision)).Inc()
			}
		}
	}

	if cash, err := strconv.ParseFloat(st.CashLamports.ToDecimalString(), 64); err == nil {
		cashLamports.Set(cash)
	}
	openPositions.Set(float64(len(st.Positions)))

	// Step 7: persist.
	if err := e.store.Save(st); err != nil {
		rec.Success = false
		rec.ErrorMessage = err.Error()
		e.writeJournal(rec)
		return err
	}
	rec.Success = true
	e.writeJournal(rec)
	return nil
}

func (e *Engine) fetchPrices(ctx context.Context, st *statestore.AgentState, now time.Time) map[string]float64 {
	ids := make([]string, 0, len(e.universe)+len(st.Positions)+1)
	if e.cfg.NativeMint != "" {
		ids = append(ids, e.cfg.NativeMint)
	}
	seen := make(map[string]bool)
	for _, u := range e.universe {
		if !seen[u.Mint] {
			ids = append(ids, u.Mint)
			seen[u.Mint] = true
		}
	}
	for mint := range st.Positions {
		if !seen[mint] {
			ids = append(ids, mint)
			seen[mint] = true
		}
	}

	pctx, cancel := context.WithTimeout(ctx, e.feedTimeout())
	defer cancel()
	prices, err := e.feed.GetPrices(pctx, ids)
	if err != nil {
		logx.Errorf("cycle: price feed failed: %v", err)
		return nil
	}

	if st.MarketHistory == nil {
		st.MarketHistory = make(map[string][]statestore.PricePoint)
	}
	for mint, usd := range prices {
		st.MarketHistory[mint] = append(st.MarketHistory[mint], statestore.PricePoint{TS: now.UnixMilli(), PriceUSD: usd})
	}
	return prices
}

func (e *Engine) feedTimeout() time.Duration {
	if e.cfg.PriceFeedTimeout > 0 {
		return e.cfg.PriceFeedTimeout
	}
	return pricefeed.DefaultTimeout * time.Second
}

func (e *Engine) walletTimeout() time.Duration {
	if e.cfg.WalletExecutorTimeout > 0 {
		return e.cfg.WalletExecutorTimeout
	}
	return wallet.DefaultTimeout
}

// processIntent implements spec §4.8 step 5 for one intent: validate,
// execute, publish result, apply to the ledger. Every outcome is
// published so the intent queue's at-most-once guarantee holds even for
// rejected/expired intents that never reach the executor.
func (e *Engine) processIntent(ctx context.Context, st *statestore.AgentState, intent intentqueue.Intent, now time.Time) map[string]any {
	action := map[string]any{
		"action":      intent.Action,
		"input_mint":  intent.InputMint,
		"output_mint": intent.OutputMint,
	}

	v := e.gate.Validate(intent, now)
	var result intentqueue.Result
	if !v.OK {
		result = intentqueue.Result{
			IntentID:  intent.ID,
			CreatedAt: now,
			Status:    v.Status,
			Reason:    v.Reason,
		}
		action["result"] = string(v.Status)
		action["reason"] = v.Reason
	} else {
		ectx, cancel := context.WithTimeout(ctx, e.walletTimeout())
		execResult, err := e.executor.Execute(ectx, intent)
		cancel()
		if err != nil {
			result = intentqueue.Result{
				IntentID:  intent.ID,
				CreatedAt: now,
				Status:    intentqueue.StatusFailed,
				Error:     err.Error(),
			}
			action["result"] = "failed"
			action["error"] = err.Error()
		} else {
			result = execResult
			action["result"] = string(result.Status)
		}
	}

	intentsTotal.WithLabelValues(string(intent.Action), string(result.Status)).Inc()

	if err := e.queue.PublishResult(result); err != nil {
		logx.Errorf("cycle: publish result failed for intent %s: %v", intent.ID, err)
	}
	if err := e.ledger.ApplyResult(st, intent, result); err != nil {
		logx.Errorf("cycle: apply result failed for intent %s: %v", intent.ID, err)
	}
	return action
}

func (e *Engine) writeJournal(rec *journal.CycleRecord) {
	if e.journal == nil {
		return
	}
	if _, err := e.journal.WriteCycle(rec); err != nil {
		logx.Errorf("cycle: journal write failed: %v", err)
	}
}
