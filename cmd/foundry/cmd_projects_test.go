package main

import (
	"bytes"
	"strings"
	"testing"

	"foundry/pkg/registry"
)

// runFoundry executes the root command with args and returns its output.
func runFoundry(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(&out)
	err := root.Execute()
	return out.String(), err
}

func TestProjectsCreateAndList(t *testing.T) {
	t.Setenv("FOUNDRY_HOME", t.TempDir())

	out, err := runFoundry(t, "projects", "create", "atlas", "--name", "Atlas", "--workspace", "/work/atlas")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !strings.Contains(out, "created project atlas (active)") {
		t.Errorf("create output = %q", out)
	}

	out, err = runFoundry(t, "projects", "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, "atlas") || !strings.Contains(out, "/work/atlas") {
		t.Errorf("list output = %q", out)
	}
}

func TestProjectsDuplicateCreateFails(t *testing.T) {
	t.Setenv("FOUNDRY_HOME", t.TempDir())

	if _, err := runFoundry(t, "projects", "create", "atlas", "--workspace", "/w"); err != nil {
		t.Fatal(err)
	}
	_, err := runFoundry(t, "projects", "create", "atlas", "--workspace", "/w")
	if err == nil {
		t.Fatal("duplicate create succeeded")
	}
	if !strings.Contains(err.Error(), "already exists") {
		t.Errorf("error = %v", err)
	}
}

func TestProjectsLifecycleTransitions(t *testing.T) {
	home := t.TempDir()
	t.Setenv("FOUNDRY_HOME", home)

	if _, err := runFoundry(t, "projects", "create", "atlas", "--workspace", "/w"); err != nil {
		t.Fatal(err)
	}

	out, err := runFoundry(t, "projects", "pause", "atlas")
	if err != nil {
		t.Fatalf("pause: %v", err)
	}
	if !strings.Contains(out, "paused") {
		t.Errorf("pause output = %q", out)
	}

	if _, err := runFoundry(t, "projects", "resume", "atlas"); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if _, err := runFoundry(t, "projects", "complete", "atlas"); err != nil {
		t.Fatalf("complete: %v", err)
	}

	// Completed is terminal: pause must fail with a transition error.
	_, err = runFoundry(t, "projects", "pause", "atlas")
	if err == nil {
		t.Fatal("pause of completed project succeeded")
	}
	if !strings.Contains(err.Error(), "illegal transition") {
		t.Errorf("error = %v", err)
	}

	// The state survived each CLI invocation via the snapshot.
	paths, _ := ResolvePaths()
	reg, _ := registry.Open(paths.RegistryPath)
	p, ok := reg.Get("atlas")
	if !ok || p.Status != registry.StatusCompleted {
		t.Errorf("final state = %+v", p)
	}
}
