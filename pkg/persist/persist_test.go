package persist_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"foundry/pkg/persist"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.json")
	want := []byte(`{"projects":[]}`)

	if err := persist.Save(path, want); err != nil {
		t.Fatalf("Save error: %v", err)
	}
	got, err := persist.Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if string(got) != string(want) {
		t.Errorf("Load = %q, want %q", got, want)
	}
}

func TestSaveOverwritesAtomically(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "queue.json")

	if err := persist.Save(path, []byte("v1")); err != nil {
		t.Fatal(err)
	}
	if err := persist.Save(path, []byte("v2")); err != nil {
		t.Fatal(err)
	}

	got, err := persist.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "v2" {
		t.Errorf("Load = %q, want v2", got)
	}

	// No temp files may remain after a successful save.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp-") {
			t.Errorf("stray temp file left behind: %s", e.Name())
		}
	}
}

func TestSaveMissingDirectoryFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope", "deep", "file.json")
	err := persist.Save(path, []byte("x"))
	var perr *persist.PersistenceError
	if !errors.As(err, &perr) {
		t.Fatalf("expected PersistenceError, got %v", err)
	}
	if perr.Path != path {
		t.Errorf("Path = %q, want %q", perr.Path, path)
	}
}

func TestLoadMissingFileReportsNotExist(t *testing.T) {
	_, err := persist.Load(filepath.Join(t.TempDir(), "absent.json"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected os.ErrNotExist, got %v", err)
	}
}
