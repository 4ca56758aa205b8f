// Command agent runs the core trading agent's Cycle Engine: load
// configuration and state, wire collaborators, then loop RunCycle on an
// interval until signalled to stop. Flag handling, signal-driven
// shutdown, and the fatalf/logx.MustSetup startup sequence are grounded
// on the teacher's cmd/llm/main.go; the REST server, exchange/market
// provider wiring and persistence hydration are gone, replaced by the
// Cycle Engine's own collaborator set.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/zeromicro/go-zero/core/logx"

	appconfig "nof0-agent/internal/config"
	"nof0-agent/internal/statestore"
	"nof0-agent/pkg/bigamount"
	"nof0-agent/pkg/clock"
	"nof0-agent/pkg/cycle"
	"nof0-agent/pkg/improve"
	"nof0-agent/pkg/intentqueue"
	"nof0-agent/pkg/journal"
	"nof0-agent/pkg/llm"
	"nof0-agent/pkg/planner"
	"nof0-agent/pkg/portfolio"
	"nof0-agent/pkg/pricefeed"
	"nof0-agent/pkg/safety"
	"nof0-agent/pkg/wallet"
	"nof0-agent/pkg/wallet/sim"
)

func fatalf(format string, args ...any) {
	logx.Errorf(format, args...)
	os.Exit(1)
}

func main() {
	once := flag.Bool("once", false, "run a single cycle and exit, instead of looping")
	flag.Parse()

	logx.MustSetup(logx.LogConf{})
	logx.DisableStat()

	cfg, err := appconfig.Load(appconfig.ConfigFile())
	if err != nil {
		fatalf("load config: %v", err)
	}

	initialCash, err := bigamount.FromDecimalString(cfg.InitialCashLamports)
	if err != nil {
		fatalf("parse initialCashLamports: %v", err)
	}

	store, err := statestore.New(cfg.StatePath)
	if err != nil {
		fatalf("open state store: %v", err)
	}
	st := store.Load(initialCash)

	queue, err := intentqueue.Open(cfg.QueueDir)
	if err != nil {
		fatalf("open intent queue: %v", err)
	}

	ledger := portfolio.New()

	gateCfg := safety.Config{
		KillSwitch:            cfg.Safety.KillSwitch,
		MaxSlippageBps:        cfg.Safety.MaxSlippageBps,
		AllowedMints:          cfg.Safety.AllowedMints,
		MinIntentGapMs:        cfg.Safety.MinIntentGapMs,
		StopLossPct:           cfg.Safety.StopLossPct,
		TakeProfitPct:         cfg.Safety.TakeProfitPct,
		MaxHoldMinutes:        cfg.Safety.MaxHoldMinutes,
		SellMomentumThreshold: cfg.Safety.SellMomentumThreshold,
		SellFraction:          cfg.Safety.SellFraction,
	}
	if maxAmt, err := bigamount.FromDecimalString(cfg.Safety.MaxAmountLamports); err == nil {
		gateCfg.MaxAmountLamports = maxAmt
	}
	gate := safety.New(gateCfg)

	backend := buildBackend(cfg)
	adapterCfg := planner.Config{
		Timeout:            cfg.Planner.Timeout,
		MaxIntentsPerCycle: cfg.Planner.MaxIntentsPerCycle,
		MaxOpenPositions:   cfg.Planner.MaxOpenPositions,
		MinTradeNative:     cfg.Planner.MinTradeNative,
		MaxTradeNative:     cfg.Planner.MaxTradeNative,
		IntentSlippageBps:  cfg.Planner.IntentSlippageBps,
		MaxSlippageBps:     cfg.Planner.MaxSlippageBps,
		MinTradeValueUSD:   cfg.Planner.MinTradeValueUSD,
		MinIntentGapMs:     cfg.Safety.MinIntentGapMs,
	}
	adapter := planner.New(adapterCfg, backend, gate)

	executor := buildWalletExecutor(cfg)
	feed := buildPriceFeed(cfg)

	var improver *improve.Gate
	if cfg.Improve.Enabled {
		improver = improve.New(improve.Config{
			MutationScale: cfg.Improve.MutationScale,
			Thresholds: intentqueue.GateThresholds{
				MinPnlDeltaPct:      cfg.Improve.MinPnlDeltaPct,
				MinSharpeDelta:      cfg.Improve.MinSharpeDelta,
				MaxDrawdownDeltaPct: cfg.Improve.MaxDrawdownDeltaPct,
				MinTestPassRate:     cfg.Improve.MinTestPassRate,
			},
			MinReplaySamples: cfg.Improve.MinReplaySamples,
		}, queue, improve.Policy{
			BuyMomentumThreshold:  cfg.Planner.BuyMomentumThreshold,
			SellMomentumThreshold: cfg.Planner.SellMomentumThreshold,
			MinTradeNative:        cfg.Planner.MinTradeNative,
			MaxTradeNative:        cfg.Planner.MaxTradeNative,
			StopLossPct:           cfg.Safety.StopLossPct,
			TakeProfitPct:         cfg.Safety.TakeProfitPct,
		}, time.Now().UnixNano())
	}

	var jw *journal.Writer
	if cfg.JournalDir != "" {
		jw = journal.NewWriter(cfg.JournalDir)
	}

	universe := make([]planner.Universe, 0, len(cfg.Universe))
	for _, t := range cfg.Universe {
		universe = append(universe, planner.Universe{Mint: t.Mint, Symbol: t.Symbol, Decimals: t.Decimals})
	}

	engineCfg := cycle.Config{
		NativeMint:             cfg.NativeMint,
		ProposalEveryCycles:    cfg.Improve.ProposalEveryCycles,
		MinClosedTradesForGate: cfg.Improve.MinClosedTrades,
		WalletExecutorTimeout:  wallet.DefaultTimeout,
		PriceFeedTimeout:       pricefeed.DefaultTimeout * time.Second,
	}
	engine := cycle.New(engineCfg, store, queue, ledger, gate, adapter, executor, feed, improver, jw, universe)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logx.Infof("received signal %s, finishing current cycle before shutdown", sig)
		cancel()
	}()

	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr)
	}

	clk := clock.NewSystem()
	interval := time.Duration(cfg.IntervalSeconds) * time.Second

	logx.Infof("starting cycle engine: interval=%s universe=%d state=%s", interval, len(universe), cfg.StatePath)

	if *once {
		if err := clock.RunOnce(ctx, func(cctx context.Context) error {
			return engine.RunCycle(cctx, st)
		}); err != nil {
			fatalf("cycle run failed: %v", err)
		}
		return
	}

	clock.RunLoop(ctx, clk, interval, func(cctx context.Context) error {
		return engine.RunCycle(cctx, st)
	}, func(err error) {
		logx.Errorf("cycle engine: %v", err)
	})
	logx.Info("cycle engine stopped")
}

// serveMetrics runs the Prometheus /metrics endpoint, grounded on the
// chidi150c-coinbase bot's mux.Handle("/metrics", promhttp.Handler())
// pattern. Runs for the process lifetime; a listener failure is logged,
// not fatal, since metrics scraping is not load-bearing for trading.
func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logx.Errorf("metrics server: %v", err)
	}
}

func buildBackend(cfg *appconfig.Config) planner.Backend {
	rule := &planner.RuleBackend{
		BuyMomentumThreshold:  cfg.Planner.BuyMomentumThreshold,
		SellMomentumThreshold: cfg.Planner.SellMomentumThreshold,
	}
	switch cfg.Planner.Backend {
	case "rule", "":
		return rule
	case "llm", "hybrid":
		if cfg.LLM.Value == nil {
			logx.Errorf("planner backend %q requested but llm config was not hydrated, falling back to rule", cfg.Planner.Backend)
			return rule
		}
		client, err := llm.NewClient(cfg.LLM.Value)
		if err != nil {
			logx.Errorf("build llm client: %v, falling back to rule backend", err)
			return rule
		}
		llmBackend := planner.NewLLMBackend(client, cfg.Planner.LLMModel, cfg.Planner.Strategy)
		if cfg.Planner.Backend == "llm" {
			return llmBackend
		}
		return &planner.HybridBackend{Primary: llmBackend, Fallback: rule}
	default:
		return rule
	}
}

func buildWalletExecutor(cfg *appconfig.Config) wallet.Executor {
	switch cfg.Wallet.Mode {
	case "sim", "":
		exec := sim.New()
		for _, t := range cfg.Universe {
			exec.SetPrice(t.Mint, t.Decimals, 1e9) // placeholder mark price for the simulated executor
		}
		return exec
	default:
		logx.Errorf("wallet mode %q not implemented in this build, falling back to sim", cfg.Wallet.Mode)
		return sim.New()
	}
}

func buildPriceFeed(cfg *appconfig.Config) pricefeed.Feed {
	switch cfg.PriceFeed.Mode {
	case "http":
		return pricefeed.NewHTTPClient(cfg.PriceFeed.BaseURL, pricefeed.DefaultTimeout*time.Second)
	case "fake", "":
		return pricefeed.NewFake()
	default:
		fmt.Fprintf(os.Stderr, "unknown price feed mode %q\n", cfg.PriceFeed.Mode)
		return pricefeed.NewFake()
	}
}
