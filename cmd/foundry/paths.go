package main

import (
	"fmt"
	"os"
	"path/filepath"
)

// foundryDir is the per-user state directory name under $HOME.
const foundryDir = ".foundry"

// Paths holds all resolved foundry state file paths.
// Use ResolvePaths() to populate this struct with defaults + env overrides.
type Paths struct {
	FoundryHome  string // ~/.foundry or FOUNDRY_HOME
	PIDPath      string // foundry.pid or FOUNDRY_PID_PATH
	ConfigPath   string // config.toml or FOUNDRY_CONFIG
	RegistryPath string // registry.json or FOUNDRY_REGISTRY_PATH
	QueuePath    string // notifications.json or FOUNDRY_QUEUE_PATH
	EventDBPath  string // events.db or FOUNDRY_DB_PATH
	SignalPath   string // restart.signal (respects FOUNDRY_HOME)
}

// ResolvePaths returns all foundry paths, respecting env var overrides.
// Environment variables:
//   - FOUNDRY_HOME: base directory for all foundry state (default: ~/.foundry)
//   - FOUNDRY_PID_PATH: daemon PID file (default: $FOUNDRY_HOME/foundry.pid)
//   - FOUNDRY_CONFIG: daemon config file (default: $FOUNDRY_HOME/config.toml)
//   - FOUNDRY_REGISTRY_PATH: project registry snapshot (default: $FOUNDRY_HOME/registry.json)
//   - FOUNDRY_QUEUE_PATH: notification queue snapshot (default: $FOUNDRY_HOME/notifications.json)
//   - FOUNDRY_DB_PATH: event log database (default: $FOUNDRY_HOME/events.db)
//
// If FOUNDRY_HOME is set, it becomes the base for all default paths. Specific
// env vars override both the default and the FOUNDRY_HOME base.
func ResolvePaths() (*Paths, error) {
	home, err := resolveFoundryHome()
	if err != nil {
		return nil, err
	}

	paths := &Paths{
		FoundryHome:  home,
		PIDPath:      resolvePathWithEnv("FOUNDRY_PID_PATH", home, "foundry.pid"),
		ConfigPath:   resolvePathWithEnv("FOUNDRY_CONFIG", home, "config.toml"),
		RegistryPath: resolvePathWithEnv("FOUNDRY_REGISTRY_PATH", home, "registry.json"),
		QueuePath:    resolvePathWithEnv("FOUNDRY_QUEUE_PATH", home, "notifications.json"),
		EventDBPath:  resolvePathWithEnv("FOUNDRY_DB_PATH", home, "events.db"),
		SignalPath:   filepath.Join(home, "restart.signal"),
	}

	return paths, nil
}

// resolveFoundryHome returns the state directory from FOUNDRY_HOME or ~/.foundry.
func resolveFoundryHome() (string, error) {
	if v := os.Getenv("FOUNDRY_HOME"); v != "" {
		return v, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, foundryDir), nil
}

// resolvePathWithEnv returns the path from envKey if set, otherwise joins base + suffix.
func resolvePathWithEnv(envKey, base, suffix string) string {
	if v := os.Getenv(envKey); v != "" {
		return v
	}
	return filepath.Join(base, suffix)
}
