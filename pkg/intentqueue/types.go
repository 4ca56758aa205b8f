// Package intentqueue implements the filesystem-backed, at-most-once
// intent/result/proposal/verdict exchange between the cycle engine and
// out-of-process producers/consumers (spec §4.6). File formats are bit
// exact with spec §6.
package intentqueue

import "time"

// Action is the kind of trade an ExecutionIntent requests.
type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
)

// ResultStatus is the outcome of attempting to execute an intent.
type ResultStatus string

const (
	StatusFilled   ResultStatus = "filled"
	StatusFailed   ResultStatus = "failed"
	StatusRejected ResultStatus = "rejected"
	StatusExpired  ResultStatus = "expired"
)

// Intent is the on-disk shape of an `*.intent.json` file. The `metadata`
// object round-trips through Metadata; unknown top-level fields are dropped
// when a file is parsed into an Intent, while the queue archives the
// original file bytes unchanged.
type Intent struct {
	Type           string         `json:"type"`
	ID             string         `json:"id"`
	CreatedAt      time.Time      `json:"created_at"`
	ExpiresAt      *time.Time     `json:"expires_at,omitempty"`
	Action         Action         `json:"action"`
	InputMint      string         `json:"input_mint"`
	OutputMint     string         `json:"output_mint"`
	AmountLamports string         `json:"amount_lamports"`
	SlippageBps    int            `json:"slippage_bps"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// IsExpired reports whether ExpiresAt has passed as of now.
func (i Intent) IsExpired(now time.Time) bool {
	return i.ExpiresAt != nil && i.ExpiresAt.Before(now)
}

// CooldownKey returns the key last_intent_at / cooldown tracking uses for
// this intent: the mint being acted on, or a perp market id from metadata.
func (i Intent) CooldownKey() string {
	if market, ok := i.Metadata["market"].(string); ok && market != "" {
		return market
	}
	if i.Action == ActionSell {
		return i.InputMint
	}
	return i.OutputMint
}

// Result is the on-disk shape of an `*.result.json` file.
type Result struct {
	Type         string       `json:"type"`
	IntentID     string       `json:"intent_id"`
	CreatedAt    time.Time    `json:"created_at"`
	Status       ResultStatus `json:"status"`
	TxHash       string       `json:"tx_hash,omitempty"`
	InputAmount  string       `json:"input_amount"`
	OutputAmount string       `json:"output_amount"`
	Error        string       `json:"error,omitempty"`
	Reason       string       `json:"reason,omitempty"`
}

// ProposalMetrics are the quantitative deltas an ImprovementProposal is
// judged against (spec §4.9).
type ProposalMetrics struct {
	PnlDeltaPct        float64 `json:"pnl_delta_pct"`
	SharpeDelta        float64 `json:"sharpe_delta"`
	MaxDrawdownDeltaPct float64 `json:"max_drawdown_delta_pct"`
	TestPassRate       float64 `json:"test_pass_rate"`
}

// Proposal is the on-disk shape of an `*.proposal.json` file.
type Proposal struct {
	Type        string          `json:"type"`
	ID          string          `json:"id"`
	CreatedAt   time.Time       `json:"created_at"`
	CandidateID string          `json:"candidate_id"`
	Metrics     ProposalMetrics `json:"metrics"`
	Artifacts   map[string]any  `json:"artifacts,omitempty"`
	Notes       []string        `json:"notes,omitempty"`
}

// GateThresholds are the minimum/maximum bounds a Verdict was judged
// against.
type GateThresholds struct {
	MinPnlDeltaPct        float64 `json:"min_pnl_delta_pct"`
	MinSharpeDelta        float64 `json:"min_sharpe_delta"`
	MaxDrawdownDeltaPct   float64 `json:"max_drawdown_delta_pct"`
	MinTestPassRate       float64 `json:"min_test_pass_rate"`
}

// VerdictDecision is the outcome of judging a Proposal.
type VerdictDecision string

const (
	DecisionAccept VerdictDecision = "accept"
	DecisionReject VerdictDecision = "reject"
)

// Verdict is the on-disk shape of an `*.verdict.json` file.
type Verdict struct {
	Type        string          `json:"type"`
	ProposalID  string          `json:"proposal_id"`
	CandidateID string          `json:"candidate_id"`
	CreatedAt   time.Time       `json:"created_at"`
	Decision    VerdictDecision `json:"decision"`
	Reason      string          `json:"reason"`
	Metrics     ProposalMetrics `json:"metrics"`
	Gate        GateThresholds  `json:"gate"`
}
