package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestSaveCreatesParentDir(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "nested", "deep", "frontbuild.yaml")

	if err := Save(DefaultConfig(), path, false); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("Config file was not created: %v", err)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "frontbuild.yaml")

	cfg := DefaultConfig()
	cfg.Output = "dist"
	cfg.Lint.Mode = LintFail
	cfg.Watch.Debounce = 750 * time.Millisecond
	cfg.Styles.Targets = []string{"chrome >= 100"}

	if err := Save(cfg, path, false); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load("", path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !reflect.DeepEqual(cfg, loaded) {
		t.Errorf("round trip mismatch:\n saved  %+v\n loaded %+v", cfg, loaded)
	}
}

func TestSaveRefusesToOverwrite(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "frontbuild.yaml")
	if err := os.WriteFile(path, []byte("output: mine\n"), 0644); err != nil {
		t.Fatal(err)
	}

	err := Save(DefaultConfig(), path, false)
	if !errors.Is(err, ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "output: mine\n" {
		t.Errorf("existing file was modified: %q", data)
	}

	if err := Save(DefaultConfig(), path, true); err != nil {
		t.Fatalf("forced Save failed: %v", err)
	}
	loaded, err := Load("", path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Output != "www" {
		t.Errorf("output = %q, want www after forced overwrite", loaded.Output)
	}
}
