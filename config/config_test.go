package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadCreatesDefaultConfigWhenMissing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.NodeKey == "" {
		t.Fatalf("expected a generated node key")
	}
	if cfg.Consensus.MaxRecoveryAttempts != 3 {
		t.Fatalf("expected default max recovery attempts 3, got %d", cfg.Consensus.MaxRecoveryAttempts)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected config file to be written: %v", err)
	}
}

func TestLoadReusesExistingNodeKey(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	first, err := Load(path)
	if err != nil {
		t.Fatalf("first load: %v", err)
	}

	second, err := Load(path)
	if err != nil {
		t.Fatalf("second load: %v", err)
	}
	if first.NodeKey != second.NodeKey {
		t.Fatalf("expected node key to persist across loads, got %s then %s", first.NodeKey, second.NodeKey)
	}
}

func TestDefaultMatchesDocumentedSLOTargets(t *testing.T) {
	cfg := Default()
	if cfg.SLO.P95Millis != 150 || cfg.SLO.P99Millis != 200 {
		t.Fatalf("expected documented p95/p99 targets, got %+v", cfg.SLO)
	}
	if cfg.SLO.ErrorBudget != 0.001 {
		t.Fatalf("expected default error budget 0.001, got %f", cfg.SLO.ErrorBudget)
	}
}
