// Package improve implements the Improvement Gate (spec §4.9): mutating
// the live policy, replaying both the current and candidate policy over
// stored market_history with a single-position momentum strategy, and
// judging the candidate against four quantitative thresholds before it
// may ever replace the live policy. The replay arithmetic is grounded on
// and reuses pkg/backtest.Sharpe / pkg/backtest.MaxDrawdownPct — the same
// equity-curve metrics the teacher's backtest.Engine reports — rather
// than reimplementing them, since backtest.Engine's own Feeder/Strategy/
// exchange.Provider abstraction does not fit a pure in-process price
// series replay.
package improve

import (
	"context"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/zeromicro/go-zero/core/logx"

	"nof0-agent/internal/statestore"
	"nof0-agent/pkg/backtest"
	"nof0-agent/pkg/intentqueue"
)

// Policy is the mutable subset of live tunables the gate may propose a
// candidate for — the momentum thresholds and trade-size bounds that
// govern the rule backend (pkg/planner.RuleBackend) and the Safety Gate's
// exit scan (pkg/safety.Gate).
type Policy struct {
	BuyMomentumThreshold  float64
	SellMomentumThreshold float64
	MinTradeNative        float64
	MaxTradeNative        float64
	StopLossPct           float64
	TakeProfitPct         float64
}

// Config holds the mutation scale and acceptance thresholds (spec §4.9).
type Config struct {
	MutationScale   float64 // s in v' = v * (1 + U(-s, +s))
	Thresholds      intentqueue.GateThresholds
	MinReplaySamples int // mints with fewer history points than this are left out of the replay
}

// Gate proposes and judges policy candidates every proposal_every_cycles
// (spec §4.8 step 6).
type Gate struct {
	cfg    Config
	queue  *intentqueue.Queue
	policy Policy // P0, replaced in place on accept
	rng    *rand.Rand
}

// New constructs a Gate starting from the live policy P0.
func New(cfg Config, queue *intentqueue.Queue, initial Policy, seed int64) *Gate {
	return &Gate{cfg: cfg, queue: queue, policy: initial, rng: rand.New(rand.NewSource(seed))}
}

// Policy returns the gate's current live policy (P0).
func (g *Gate) Policy() Policy { return g.policy }

// ProposeAndJudge mutates the live policy into a candidate, replays both
// against st.MarketHistory, emits a Proposal, judges it with the Verdict
// Judge, and — on accept — replaces the live policy (spec §4.9's "accepted
// candidates replace P0 after the verdict is observed via the queue").
func (g *Gate) ProposeAndJudge(ctx context.Context, st *statestore.AgentState) (intentqueue.VerdictDecision, error) {
	candidate := g.mutate(g.policy)

	baseline := replayAll(g.policy, st.MarketHistory, g.cfg.MinReplaySamples)
	challenger := replayAll(candidate, st.MarketHistory, g.cfg.MinReplaySamples)

	metrics := intentqueue.ProposalMetrics{
		PnlDeltaPct:         challenger.pnlPct - baseline.pnlPct,
		SharpeDelta:         challenger.sharpe - baseline.sharpe,
		MaxDrawdownDeltaPct: challenger.maxDrawdownPct - baseline.maxDrawdownPct,
		TestPassRate:        challenger.passRate,
	}

	proposalID := uuid.NewString()
	now := time.Now().UTC()
	proposal := intentqueue.Proposal{
		Type:        "improvement-proposal",
		ID:          proposalID,
		CreatedAt:   now,
		CandidateID: proposalID,
		Metrics:     metrics,
		Notes:       []string{"single-position momentum replay over stored market_history"},
	}
	if err := g.queue.PublishProposal(proposal); err != nil {
		return "", err
	}

	verdict := g.judge(proposalID, metrics)
	if err := g.queue.PublishVerdict(verdict); err != nil {
		return "", err
	}
	observed, err := g.queue.ReadVerdict(proposalID)
	if err != nil {
		return "", err
	}

	if observed.Decision == intentqueue.DecisionAccept {
		logx.Infof("improve: candidate %s accepted, replacing live policy", proposalID)
		g.policy = candidate
	} else {
		logx.Infof("improve: candidate %s rejected: %s", proposalID, observed.Reason)
	}
	return observed.Decision, nil
}

// judge implements the Verdict Judge (spec §4.9): accept iff all four
// thresholds hold. A rejection's reason lists every threshold that failed.
func (g *Gate) judge(proposalID string, m intentqueue.ProposalMetrics) intentqueue.Verdict {
	gate := g.cfg.Thresholds
	reasons := []string{}
	if m.PnlDeltaPct < gate.MinPnlDeltaPct {
		reasons = append(reasons, "pnl_delta_pct below min_pnl_delta_pct")
	}
	if m.SharpeDelta < gate.MinSharpeDelta {
		reasons = append(reasons, "sharpe_delta below min_sharpe_delta")
	}
	if m.MaxDrawdownDeltaPct > gate.MaxDrawdownDeltaPct {
		reasons = append(reasons, "max_drawdown_delta_pct above max_drawdown_delta_pct")
	}
	if m.TestPassRate < gate.MinTestPassRate {
		reasons = append(reasons, "test_pass_rate below min_test_pass_rate")
	}

	decision := intentqueue.DecisionAccept
	reason := "all thresholds satisfied"
	if len(reasons) > 0 {
		decision = intentqueue.DecisionReject
		reason = strings.Join(reasons, "; ")
	}
	return intentqueue.Verdict{
		Type:        "improvement-verdict",
		ProposalID:  proposalID,
		CandidateID: proposalID,
		CreatedAt:   time.Now().UTC(),
		Decision:    decision,
		Reason:      reason,
		Metrics:     m,
		Gate:        gate,
	}
}

// Policy clamp ranges, spec §3's "hard-coded clamp ranges" table.
const (
	minBuyMomentumThreshold  = 0.001
	maxBuyMomentumThreshold  = 0.03
	minSellMomentumThreshold = -0.03
	maxSellMomentumThreshold = -0.0005
	minStopLossPct           = -0.25
	maxStopLossPct           = -0.01
	minTakeProfitPct         = 0.01
	maxTakeProfitPct         = 0.25
	minTradeNativeFloor      = 0.01
)

// mutate applies spec §4.9's per-field multiplicative mutation, clamped to
// each field's valid range from spec §3's Policy clamp table, and the
// max_trade < min_trade correction.
func (g *Gate) mutate(p Policy) Policy {
	s := g.cfg.MutationScale
	c := Policy{
		BuyMomentumThreshold:  clamp(g.jitter(p.BuyMomentumThreshold, s), minBuyMomentumThreshold, maxBuyMomentumThreshold),
		SellMomentumThreshold: clamp(g.jitter(p.SellMomentumThreshold, s), minSellMomentumThreshold, maxSellMomentumThreshold),
		MinTradeNative:        clampMin(g.jitter(p.MinTradeNative, s), minTradeNativeFloor),
		MaxTradeNative:        clampMin(g.jitter(p.MaxTradeNative, s), minTradeNativeFloor),
		StopLossPct:           clamp(g.jitter(p.StopLossPct, s), minStopLossPct, maxStopLossPct),
		TakeProfitPct:         clamp(g.jitter(p.TakeProfitPct, s), minTakeProfitPct, maxTakeProfitPct),
	}
	if c.MaxTradeNative < c.MinTradeNative {
		c.MaxTradeNative = c.MinTradeNative
	}
	return c
}

func (g *Gate) jitter(v, scale float64) float64 {
	if scale <= 0 {
		return v
	}
	u := g.rng.Float64()*2*scale - scale // U(-s, +s)
	return v * (1 + u)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampMin(v, lo float64) float64 {
	if v < lo {
		return lo
	}
	return v
}
