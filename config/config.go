package config

import (
	"encoding/hex"
	"os"
	"time"

	"qinfinity/crypto"

	"github.com/BurntSushi/toml"
)

// Config is the Q∞ control plane's single TOML-backed settings object,
// grounded on the teacher's load-or-generate-defaults pattern (missing file
// on disk gets a freshly generated one written back, including a generated
// key) but retargeted from node networking settings to the demo
// orchestrator's cross-package tolerances.
type Config struct {
	DataDir string `toml:"DataDir"`
	NodeKey string `toml:"NodeKey"`

	// SandboxMode gates ports/sandbox.IdentityPort's mock-signature
	// bypass; must be false in any non-demo deployment.
	SandboxMode bool `toml:"SandboxMode"`

	Replay    ReplayConfig    `toml:"Replay"`
	Gossip    GossipConfig    `toml:"Gossip"`
	Stress    StressConfig    `toml:"Stress"`
	Consensus ConsensusConfig `toml:"Consensus"`
	SLO       SLOConfig       `toml:"SLO"`
	Timers    TimersConfig    `toml:"Timers"`
}

// ReplayConfig bounds how strictly a replayed execution must match its
// recorded ledger entry.
type ReplayConfig struct {
	// ToleranceMillis allows replayed step timestamps to diverge from the
	// recorded ones by up to this many milliseconds before a replay is
	// flagged as diverged.
	ToleranceMillis int64 `toml:"ToleranceMillis"`
}

// GossipConfig bounds the fair-scheduling distributor's reannounce backoff.
type GossipConfig struct {
	MaxBackoffLevel int           `toml:"MaxBackoffLevel"`
	BaseBackoff     time.Duration `toml:"BaseBackoff"`
}

// StressConfig bounds the stress-test harness's pass/fail criteria.
type StressConfig struct {
	MaxErrorRate float64 `toml:"MaxErrorRate"`
}

// ConsensusConfig carries the quorum coordinator's retry budget and base
// backoff.
type ConsensusConfig struct {
	MaxRecoveryAttempts int           `toml:"MaxRecoveryAttempts"`
	BaseBackoff         time.Duration `toml:"BaseBackoff"`
	ConfidenceFloor     float64       `toml:"ConfidenceFloor"`
}

// SLOConfig carries the observability core's latency/error-budget targets.
type SLOConfig struct {
	P50Millis   int64   `toml:"P50Millis"`
	P95Millis   int64   `toml:"P95Millis"`
	P99Millis   int64   `toml:"P99Millis"`
	ErrorBudget float64 `toml:"ErrorBudget"`
	MinRps      float64 `toml:"MinRps"`
}

// TimersConfig carries the background sweep intervals used across packages.
type TimersConfig struct {
	PaymentExpirySweep     time.Duration `toml:"PaymentExpirySweep"`
	DependencyPollInterval time.Duration `toml:"DependencyPollInterval"`
}

// Load loads the configuration from path, writing and returning a freshly
// generated default configuration if path does not yet exist.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}

	if cfg.NodeKey == "" {
		key, err := crypto.GeneratePrivateKey()
		if err != nil {
			return nil, err
		}
		cfg.NodeKey = hex.EncodeToString(key.Bytes())

		f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, os.ModePerm)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		if err := toml.NewEncoder(f).Encode(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// Default returns the documented Q∞ defaults without touching disk, for
// tests and the demo orchestrator's in-memory wiring.
func Default() Config {
	return Config{
		DataDir:     "./qinfinity-data",
		SandboxMode: true,
		Replay: ReplayConfig{
			ToleranceMillis: 50,
		},
		Gossip: GossipConfig{
			MaxBackoffLevel: 3,
			BaseBackoff:     time.Second,
		},
		Stress: StressConfig{
			MaxErrorRate: 0.05,
		},
		Consensus: ConsensusConfig{
			MaxRecoveryAttempts: 3,
			BaseBackoff:         100 * time.Millisecond,
			ConfidenceFloor:     0.8,
		},
		SLO: SLOConfig{
			P50Millis:   50,
			P95Millis:   150,
			P99Millis:   200,
			ErrorBudget: 0.001,
			MinRps:      10,
		},
		Timers: TimersConfig{
			PaymentExpirySweep:     5 * time.Minute,
			DependencyPollInterval: 30 * time.Second,
		},
	}
}

// createDefault creates and saves a default configuration file, generating
// a fresh node key.
func createDefault(path string) (*Config, error) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}

	cfg := Default()
	cfg.NodeKey = hex.EncodeToString(key.Bytes())

	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
