package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestPIDFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "foundry.pid")

	if err := WritePIDFile(path, 12345); err != nil {
		t.Fatalf("WritePIDFile: %v", err)
	}
	pid, err := ReadPIDFile(path)
	if err != nil {
		t.Fatalf("ReadPIDFile: %v", err)
	}
	if pid != 12345 {
		t.Errorf("pid = %d, want 12345", pid)
	}
}

func TestReadPIDFileGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "foundry.pid")
	if err := os.WriteFile(path, []byte("not a pid"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadPIDFile(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestRemovePIDFileIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "foundry.pid")
	if err := WritePIDFile(path, 1); err != nil {
		t.Fatal(err)
	}
	if err := RemovePIDFile(path); err != nil {
		t.Fatalf("first remove: %v", err)
	}
	if err := RemovePIDFile(path); err != nil {
		t.Errorf("second remove: %v", err)
	}
}

func TestDaemonStatusStopped(t *testing.T) {
	status, pid, err := DaemonStatus(filepath.Join(t.TempDir(), "foundry.pid"))
	if err != nil {
		t.Fatalf("DaemonStatus: %v", err)
	}
	if status != DaemonStopped || pid != 0 {
		t.Errorf("status = %s pid = %d, want stopped/0", status, pid)
	}
}

func TestDaemonStatusRunning(t *testing.T) {
	path := filepath.Join(t.TempDir(), "foundry.pid")
	// Our own process is certainly alive.
	if err := WritePIDFile(path, os.Getpid()); err != nil {
		t.Fatal(err)
	}

	status, pid, err := DaemonStatus(path)
	if err != nil {
		t.Fatalf("DaemonStatus: %v", err)
	}
	if status != DaemonRunning || pid != os.Getpid() {
		t.Errorf("status = %s pid = %d", status, pid)
	}
}

func TestDaemonStatusStale(t *testing.T) {
	path := filepath.Join(t.TempDir(), "foundry.pid")
	// PID 1 is init and not signalable by an unprivileged test process, but
	// to be robust use an implausibly large PID instead.
	if err := WritePIDFile(path, 1<<30); err != nil {
		t.Fatal(err)
	}

	status, _, err := DaemonStatus(path)
	if err != nil {
		t.Fatalf("DaemonStatus: %v", err)
	}
	if status != DaemonStale {
		t.Errorf("status = %s, want stale", status)
	}
}
