// Package wallet defines the Executor collaborator the cycle engine calls
// to settle validated intents (spec §4.8 step 5). The production
// implementation is out of scope per spec §1 — it speaks Content-Length
// framed JSON-RPC 2.0 over a child process's stdio, methods
// {initialize, tools/call} with tool names in
// {wallet_get_balance, wallet_get_quote, wallet_execute_swap,
// wallet_sign_and_send, wallet_get_tx, wallet_get_policy} — and is
// documented here only so a real adapter can be dropped in behind this
// interface. pkg/wallet/sim provides an in-memory paper-trading
// implementation for tests and the "sim" wallet mode, adapted from the
// teacher's pkg/exchange/sim simulator.
package wallet

import (
	"context"
	"time"

	"nof0-agent/pkg/intentqueue"
)

// DefaultTimeout is the spec §5 default: wallet_executor_timeout = 45s.
const DefaultTimeout = 45 * time.Second

// Executor settles one validated ExecutionIntent and returns its result.
// Implementations must respect ctx's deadline; a deadline-exceeded error is
// treated by the cycle engine as a failed step, not fatal (spec §7,
// ExecutorTransport).
type Executor interface {
	Execute(ctx context.Context, intent intentqueue.Intent) (intentqueue.Result, error)
}

// BalanceReader is an optional capability a real WalletExecutor exposes
// (wallet_get_balance) that the cycle engine may use to cross-check cash
// accounting; not required for the core cycle.
type BalanceReader interface {
	GetBalance(ctx context.Context, mint string) (string, error)
}
