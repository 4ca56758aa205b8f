package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "agent.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
universe:
  - mint: So11111111111111111111111111111111111111
    symbol: SOL
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.IntervalSeconds != 30 {
		t.Fatalf("expected default intervalSeconds=30, got %d", cfg.IntervalSeconds)
	}
	if cfg.Planner.Backend != "rule" {
		t.Fatalf("expected default planner.backend=rule, got %q", cfg.Planner.Backend)
	}
	if cfg.Safety.MaxSlippageBps != 300 {
		t.Fatalf("expected default safety.maxSlippageBps=300, got %d", cfg.Safety.MaxSlippageBps)
	}
	if cfg.Improve.Enabled {
		t.Fatalf("expected improve.enabled=false by default")
	}
}

func TestLoadRejectsEmptyUniverse(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `intervalSeconds: 30`)

	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for empty universe")
	}
}

func TestLoadRejectsUnknownEnv(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
env: staging
universe:
  - mint: So11111111111111111111111111111111111111
    symbol: SOL
`)

	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for env=staging")
	}
}

func TestLoadOnlyHydratesLLMSectionForLLMBackends(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
universe:
  - mint: So11111111111111111111111111111111111111
    symbol: SOL
planner:
  backend: rule
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.Value != nil {
		t.Fatalf("expected llm section left unhydrated for rule backend")
	}
}
