// Package sim is a paper-trading WalletExecutor adapted from the teacher's
// pkg/exchange/sim in-memory simulator: it fills orders synchronously
// against a settable mark price with configurable slippage and never
// touches a real network, matching the teacher's IOC-style
// resolveMarkPriceLocked/applyOrderLocked pattern but speaking the core's
// ExecutionIntent/ExecutionResult vocabulary instead of the teacher's
// leveraged-perp order type.
package sim

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"nof0-agent/pkg/bigamount"
	"nof0-agent/pkg/intentqueue"
)

const defaultSlippageFraction = 0.002

// Executor is an in-memory WalletExecutor for tests and the "sim" wallet mode.
// Prices are lamports of native currency per whole unit of the mint (i.e.
// per 10^decimals raw units), set via SetPrice.
type Executor struct {
	mu sync.Mutex

	decimals map[string]int
	prices   map[string]float64 // lamports per whole token unit
	fail     map[string]string  // mint -> forced failure reason, for tests
}

// New constructs a simulated wallet executor.
func New() *Executor {
	return &Executor{
		decimals: make(map[string]int),
		prices:   make(map[string]float64),
		fail:     make(map[string]string),
	}
}

func canonical(mint string) string { return strings.TrimSpace(mint) }

// SetPrice sets the lamports-per-whole-unit price for mint, and its decimal
// scale (used to convert whole-unit price into raw-unit arithmetic).
func (e *Executor) SetPrice(mint string, decimals int, lamportsPerWholeUnit float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.decimals[canonical(mint)] = decimals
	e.prices[canonical(mint)] = lamportsPerWholeUnit
}

// ForceFailure makes every intent touching mint fail with reason, until
// cleared with ClearFailure. Used to exercise ExecutorTransport/
// ExecutorRejected paths in tests.
func (e *Executor) ForceFailure(mint, reason string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fail[canonical(mint)] = reason
}

// ClearFailure removes a forced failure for mint.
func (e *Executor) ClearFailure(mint string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.fail, canonical(mint))
}

// Execute implements wallet.Executor.
func (e *Executor) Execute(ctx context.Context, intent intentqueue.Intent) (intentqueue.Result, error) {
	if err := ctx.Err(); err != nil {
		return intentqueue.Result{}, err
	}

	mint := intent.OutputMint
	if intent.Action == intentqueue.ActionSell {
		mint = intent.InputMint
	}

	e.mu.Lock()
	reason, forced := e.fail[canonical(mint)]
	price, havePrice := e.prices[canonical(mint)]
	decimals := e.decimals[canonical(mint)]
	e.mu.Unlock()

	base := intentqueue.Result{
		IntentID:  intent.ID,
		CreatedAt: time.Now().UTC(),
	}

	if forced {
		base.Status = intentqueue.StatusFailed
		base.Error = reason
		return base, nil
	}
	if !havePrice || price <= 0 {
		base.Status = intentqueue.StatusFailed
		base.Error = fmt.Sprintf("sim: no mark price set for mint %s", mint)
		return base, nil
	}

	amount, err := bigamount.FromDecimalString(intent.AmountLamports)
	if err != nil || amount.IsZero() {
		base.Status = intentqueue.StatusFailed
		base.Error = "sim: invalid amount_lamports"
		return base, nil
	}

	scale := math.Pow10(decimals)
	slippage := defaultSlippageFraction

	switch intent.Action {
	case intentqueue.ActionBuy:
		// amount_lamports is native spent; apply adverse slippage (pay more).
		effectivePrice := price * (1 + slippage)
		wholeUnits := lamportsToFloat(amount) / effectivePrice
		rawUnits := int64(wholeUnits * scale)
		if rawUnits <= 0 {
			base.Status = intentqueue.StatusFailed
			base.Error = "sim: fill size rounds to zero"
			return base, nil
		}
		base.Status = intentqueue.StatusFilled
		base.InputAmount = amount.ToDecimalString()
		base.OutputAmount = fmt.Sprintf("%d", rawUnits)
	case intentqueue.ActionSell:
		// amount_lamports (field reused) is raw token units sold; apply
		// adverse slippage (receive less).
		effectivePrice := price * (1 - slippage)
		rawF := float64(amount.Int().Int64())
		wholeUnits := rawF / scale
		proceeds := int64(wholeUnits * effectivePrice)
		if proceeds <= 0 {
			base.Status = intentqueue.StatusFailed
			base.Error = "sim: proceeds round to zero"
			return base, nil
		}
		base.Status = intentqueue.StatusFilled
		base.InputAmount = amount.ToDecimalString()
		base.OutputAmount = fmt.Sprintf("%d", proceeds)
	default:
		base.Status = intentqueue.StatusRejected
		base.Reason = fmt.Sprintf("sim: unsupported action %q", intent.Action)
	}
	return base, nil
}

func lamportsToFloat(a bigamount.Amount) float64 {
	return float64(a.Int().Int64())
}
