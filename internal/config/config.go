// Package config loads the agent's single YAML configuration file,
// generalizing the teacher's internal/config.Config: the rest.RestConf/
// Postgres/Cache/TTL fields (REST server and analytics store, both
// explicit Non-goals) are gone, replaced by the cycle engine's own
// tunables, but the config-file discovery machinery (ConfigFile/
// resolveConfigPath/searchUpwards) and the confkit.Section[T] hydration
// pattern for the LLM sub-config are kept exactly as the teacher built
// them.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/zeromicro/go-zero/core/conf"

	"nof0-agent/pkg/confkit"
	llmpkg "nof0-agent/pkg/llm"
)

// TokenConfig names one candidate mint in the trading universe.
type TokenConfig struct {
	Mint     string
	Symbol   string
	Decimals int `json:",default=9"`
}

// SafetyConfig mirrors pkg/safety.Config for YAML hydration.
type SafetyConfig struct {
	KillSwitch            bool     `json:",default=false"`
	MaxAmountLamports     string   `json:",default=0"` // "0" means unlimited
	MaxSlippageBps        int      `json:",default=300"`
	AllowedMints          []string `json:",optional"`
	MinIntentGapMs        int64    `json:",default=60000"`
	StopLossPct           float64  `json:",default=-0.08"`
	TakeProfitPct         float64  `json:",default=0.15"`
	MaxHoldMinutes        float64  `json:",default=1440"`
	SellMomentumThreshold float64  `json:",default=-0.05"`
	SellFraction          float64  `json:",default=1.0"`
}

// PlannerConfig mirrors pkg/planner.Config for YAML hydration, plus the
// backend-selection fields the adapter's collaborators need.
type PlannerConfig struct {
	Backend               string        `json:",default=rule,options=rule|llm|hybrid"`
	Timeout               time.Duration `json:",default=60s"`
	MaxIntentsPerCycle    int           `json:",default=3"`
	MaxOpenPositions      int           `json:",default=5"`
	MinTradeNative        float64       `json:",default=0.05"`
	MaxTradeNative        float64       `json:",default=1.0"`
	IntentSlippageBps     int           `json:",default=100"`
	MaxSlippageBps        int           `json:",default=300"`
	MinTradeValueUSD      float64       `json:",default=5"`
	BuyMomentumThreshold  float64       `json:",default=0.02"`
	SellMomentumThreshold float64       `json:",default=-0.02"`
	LLMModel              string        `json:",optional"`
	Strategy              string        `json:",optional"`
}

// ImproveConfig mirrors pkg/improve.Config for YAML hydration.
type ImproveConfig struct {
	Enabled              bool    `json:",default=false"`
	ProposalEveryCycles  int64   `json:",default=50"`
	MinClosedTrades      int     `json:",default=10"`
	MutationScale         float64 `json:",default=0.1"`
	MinReplaySamples      int     `json:",default=10"`
	MinPnlDeltaPct        float64 `json:",default=0.1"`
	MinSharpeDelta        float64 `json:",default=0.05"`
	MaxDrawdownDeltaPct   float64 `json:",default=2.0"`
	MinTestPassRate       float64 `json:",default=0.6"`
}

// WalletConfig selects the WalletExecutor implementation.
type WalletConfig struct {
	Mode    string `json:",default=sim,options=sim|rpc"`
	RPCPath string `json:",optional"` // path to the subprocess binary, rpc mode only
}

// PriceFeedConfig selects the PriceFeed implementation.
type PriceFeedConfig struct {
	Mode    string `json:",default=http,options=http|fake"`
	BaseURL string `json:",optional"`
}

// Config is the agent's single top-level configuration object, loaded
// from etc/agent.yaml by default.
type Config struct {
	Env                 string `json:",default=test"`
	StatePath           string `json:",default=var/state.json"`
	QueueDir            string `json:",default=var/queue"`
	JournalDir          string `json:",optional"`
	NativeMint          string `json:",default=So11111111111111111111111111111111111111"`
	IntervalSeconds     int    `json:",default=30"`
	InitialCashLamports string `json:",default=10000000000"`
	MetricsAddr         string `json:",default=:9090"` // empty disables the /metrics listener

	Universe []TokenConfig `json:",optional"`

	Safety    SafetyConfig    `json:",optional"`
	Planner   PlannerConfig   `json:",optional"`
	Improve   ImproveConfig   `json:",optional"`
	Wallet    WalletConfig    `json:",optional"`
	PriceFeed PriceFeedConfig `json:",optional"`

	LLM confkit.Section[llmpkg.Config] `json:",optional"`

	mainPath string
	baseDir  string
}

const defaultConfigRelativePath = "etc/agent.yaml"

var configFileFlag = flag.String("f", defaultConfigRelativePath, "the config file")

func init() {
	confkit.LoadDotenvOnce()
}

// ConfigFile resolves the -f flag to a config file path, searching upward
// from the working directory and the executable's directory when a
// relative path doesn't exist where it sits.
func ConfigFile() string {
	candidate := defaultConfigRelativePath
	if configFileFlag != nil {
		if trimmed := strings.TrimSpace(*configFileFlag); trimmed != "" {
			candidate = trimmed
		}
	}
	if resolved, ok := resolveConfigPath(candidate); ok {
		return resolved
	}
	return candidate
}

func resolveConfigPath(path string) (string, bool) {
	if path == "" {
		return "", false
	}
	if filepath.IsAbs(path) {
		if fileExists(path) {
			return path, true
		}
		return "", false
	}

	startDirs := make([]string, 0, 2)
	if cwd, err := os.Getwd(); err == nil {
		startDirs = append(startDirs, cwd)
	}
	if exePath, err := os.Executable(); err == nil {
		startDirs = append(startDirs, filepath.Dir(exePath))
	}

	seen := make(map[string]struct{}, len(startDirs))
	for _, dir := range startDirs {
		dir = filepath.Clean(dir)
		if dir == "" {
			continue
		}
		if _, ok := seen[dir]; ok {
			continue
		}
		seen[dir] = struct{}{}
		if resolved, ok := searchUpwards(dir, path); ok {
			return resolved, true
		}
	}
	return "", false
}

func searchUpwards(start, rel string) (string, bool) {
	dir := filepath.Clean(start)
	for {
		candidate := filepath.Join(dir, rel)
		if fileExists(candidate) {
			return candidate, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// MustLoad loads the config resolved by ConfigFile or panics.
func MustLoad() *Config {
	path := ConfigFile()
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads and validates the config file at path.
func Load(path string) (*Config, error) {
	confkit.LoadDotenvOnce()

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path %s: %w", path, err)
	}

	var cfg Config
	if err := conf.Load(absPath, &cfg, conf.UseEnv()); err != nil {
		return nil, fmt.Errorf("load config %s: %w", absPath, err)
	}

	cfg.mainPath = absPath
	cfg.baseDir = filepath.Dir(absPath)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.hydrateSections(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks invariants that go-zero's struct tags can't express.
func (c *Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Env)) {
	case "", "test", "dev", "prod":
		if strings.TrimSpace(c.Env) == "" {
			c.Env = "test"
		}
	default:
		return errors.New("config: env must be one of test|dev|prod")
	}
	if len(c.Universe) == 0 {
		return errors.New("config: universe must name at least one token")
	}
	if c.IntervalSeconds <= 0 {
		return errors.New("config: intervalSeconds must be positive")
	}
	return nil
}

func (c *Config) hydrateSections() error {
	if c.Planner.Backend == "llm" || c.Planner.Backend == "hybrid" {
		if err := c.LLM.Hydrate(c.baseDir, llmpkg.LoadConfig); err != nil {
			return fmt.Errorf("load llm config: %w", err)
		}
	}
	return nil
}

// MainPath returns the absolute path of the loaded config file.
func (c *Config) MainPath() string { return c.mainPath }

// BaseDir returns the directory containing the loaded config file.
func (c *Config) BaseDir() string { return c.baseDir }
