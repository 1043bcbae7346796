package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDaemonConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadDaemonConfig(filepath.Join(t.TempDir(), "config.toml"))
	if err != nil {
		t.Fatalf("LoadDaemonConfig: %v", err)
	}
	if cfg.MaxConcurrentAgents != 5 {
		t.Errorf("MaxConcurrentAgents = %d, want 5", cfg.MaxConcurrentAgents)
	}
	if cfg.TrackerBin != "trk" {
		t.Errorf("TrackerBin = %q", cfg.TrackerBin)
	}
	if cfg.EngineConfig().AgentTimeout != time.Hour {
		t.Errorf("AgentTimeout = %s, want 1h", cfg.EngineConfig().AgentTimeout)
	}
}

func TestDaemonConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg := DefaultDaemonConfig()
	cfg.MaxConcurrentAgents = 2
	cfg.BlockingSpawn = true
	cfg.AgentCommand = []string{"claude", "--dangerously-skip-permissions"}

	if err := WriteDaemonConfig(path, cfg); err != nil {
		t.Fatalf("WriteDaemonConfig: %v", err)
	}
	loaded, err := LoadDaemonConfig(path)
	if err != nil {
		t.Fatalf("LoadDaemonConfig: %v", err)
	}
	if loaded.MaxConcurrentAgents != 2 || !loaded.BlockingSpawn {
		t.Errorf("loaded = %+v", loaded)
	}
	if len(loaded.AgentCommand) != 2 || loaded.AgentCommand[0] != "claude" {
		t.Errorf("AgentCommand = %v", loaded.AgentCommand)
	}
}

func TestLoadDaemonConfigPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("max_concurrent_agents = 3\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadDaemonConfig(path)
	if err != nil {
		t.Fatalf("LoadDaemonConfig: %v", err)
	}
	if cfg.MaxConcurrentAgents != 3 {
		t.Errorf("MaxConcurrentAgents = %d, want 3", cfg.MaxConcurrentAgents)
	}
	if cfg.PollSecs != 10 {
		t.Errorf("PollSecs = %d, want default 10", cfg.PollSecs)
	}
}

func TestLoadDaemonConfigRejectsBadValues(t *testing.T) {
	dir := t.TempDir()

	cases := map[string]string{
		"zero-agents": "max_concurrent_agents = 0\n",
		"no-command":  "agent_command = []\n",
		"not-toml":    "max_concurrent_agents = {{{\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name+".toml")
			if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
				t.Fatal(err)
			}
			if _, err := LoadDaemonConfig(path); err == nil {
				t.Error("expected error")
			}
		})
	}
}
