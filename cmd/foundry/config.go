package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"foundry/pkg/engine"

	"github.com/pelletier/go-toml/v2"
)

// DaemonConfig is the on-disk daemon configuration, loaded from config.toml.
type DaemonConfig struct {
	// Engine tuning.
	MaxConcurrentAgents int  `toml:"max_concurrent_agents"`
	AgentTimeoutSecs    int  `toml:"agent_timeout_seconds"`
	StopGraceSecs       int  `toml:"stop_grace_seconds"`
	ShutdownTimeoutSecs int  `toml:"shutdown_timeout_seconds"`
	BlockingSpawn       bool `toml:"blocking_spawn"`

	// Collaborators.
	TrackerBin   string   `toml:"tracker_bin"`
	AgentCommand []string `toml:"agent_command"`

	// Dispatch loop.
	PollSecs         int `toml:"poll_seconds"`
	FallbackPollSecs int `toml:"fallback_poll_seconds"`

	// Optional YAML file overriding per-stage rule documents.
	StageDocsPath string `toml:"stage_docs_path"`
}

// DefaultDaemonConfig returns the configuration written by `foundry init`.
func DefaultDaemonConfig() DaemonConfig {
	return DaemonConfig{
		MaxConcurrentAgents: 5,
		AgentTimeoutSecs:    3600,
		StopGraceSecs:       10,
		ShutdownTimeoutSecs: 30,
		TrackerBin:          "trk",
		AgentCommand:        []string{"foundry-agent"},
		PollSecs:            10,
		FallbackPollSecs:    60,
	}
}

// LoadDaemonConfig reads config.toml from path. A missing file yields the
// defaults; a malformed file is an error.
func LoadDaemonConfig(path string) (DaemonConfig, error) {
	cfg := DefaultDaemonConfig()

	data, err := os.ReadFile(path) //nolint:gosec // config path is controlled by the application
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.MaxConcurrentAgents < 1 {
		return cfg, fmt.Errorf("config %s: max_concurrent_agents must be at least 1", path)
	}
	if len(cfg.AgentCommand) == 0 {
		return cfg, fmt.Errorf("config %s: agent_command must not be empty", path)
	}
	return cfg, nil
}

// WriteDaemonConfig marshals cfg to path.
func WriteDaemonConfig(path string, cfg DaemonConfig) error {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil { //nolint:gosec // config is not secret
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}

// EngineConfig translates the daemon config into engine settings.
func (c DaemonConfig) EngineConfig() engine.Config {
	return engine.Config{
		MaxConcurrentAgents: c.MaxConcurrentAgents,
		AgentTimeout:        time.Duration(c.AgentTimeoutSecs) * time.Second,
		StopGracePeriod:     time.Duration(c.StopGraceSecs) * time.Second,
		ShutdownTimeout:     time.Duration(c.ShutdownTimeoutSecs) * time.Second,
		Blocking:            c.BlockingSpawn,
	}
}

// PollInterval returns the ready-work poll interval.
func (c DaemonConfig) PollInterval() time.Duration {
	if c.PollSecs < 1 {
		return 10 * time.Second
	}
	return time.Duration(c.PollSecs) * time.Second
}

// FallbackPollInterval returns the recovery watcher's safety-net interval.
func (c DaemonConfig) FallbackPollInterval() time.Duration {
	if c.FallbackPollSecs < 1 {
		return 60 * time.Second
	}
	return time.Duration(c.FallbackPollSecs) * time.Second
}
