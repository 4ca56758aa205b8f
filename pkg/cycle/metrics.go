package cycle

import "github.com/prometheus/client_golang/prometheus"

// Metrics exposed on /metrics, grounded on the teacher-adjacent
// chidi150c-coinbase bot's metrics.go registration pattern: package-level
// vecs registered once in init(), updated inline by the cycle engine.
var (
	cyclesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "agent_cycles_total",
		Help: "Total cycle engine iterations completed.",
	})

	intentsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agent_intents_total",
		Help: "Intents processed, by action and result status.",
	}, []string{"action", "status"})

	cashLamports = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "agent_cash_lamports",
		Help: "Current simulated cash balance in lamports.",
	})

	openPositions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "agent_open_positions",
		Help: "Current number of open spot positions.",
	})

	proposalsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agent_improvement_proposals_total",
		Help: "Improvement proposals emitted, by verdict decision.",
	}, []string{"decision"})
)

func init() {
	prometheus.MustRegister(cyclesTotal, intentsTotal, cashLamports, openPositions, proposalsTotal)
}
