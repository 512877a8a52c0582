package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfig = `scripts:
  type_check: false
lint:
  mode: "off"
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRun_BuildAndHistory(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "frontbuild.yaml"), testConfig)
	writeFile(t, filepath.Join(root, "src", "index.html"), "<html></html>\n")
	writeFile(t, filepath.Join(root, "src", "app", "main.ts"), "export const n: number = 1;\n")

	code, stdout, stderr := runCLI(t, "--root", root, "build")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "build")

	assert.FileExists(t, filepath.Join(root, "www", "index.html"))
	assert.FileExists(t, filepath.Join(root, "www", "app", "main.js"))
	assert.FileExists(t, filepath.Join(root, "www", "app", "main.js.map"))

	code, stdout, stderr = runCLI(t, "--root", root, "history")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "build")
	assert.Contains(t, stdout, "succeeded")
}

func TestRun_BuildFailureExitsNonZero(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "frontbuild.yaml"), testConfig)
	writeFile(t, filepath.Join(root, "src", "index.html"), "<html></html>\n")
	writeFile(t, filepath.Join(root, "src", "app", "broken.ts"), "export const = ;\n")

	code, _, stderr := runCLI(t, "--root", root, "build")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "app/broken.ts")
	assert.Contains(t, stderr, "scripts/transpile")

	assert.FileExists(t, filepath.Join(root, "www", "index.html"), "independent classes still build")
}

func TestRun_BuildCleanRemovesStaleFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "frontbuild.yaml"), testConfig)
	writeFile(t, filepath.Join(root, "src", "index.html"), "<html></html>\n")
	writeFile(t, filepath.Join(root, "www", "old.html"), "stale\n")

	code, _, stderr := runCLI(t, "--root", root, "build-clean")
	require.Equal(t, 0, code, stderr)
	assert.NoFileExists(t, filepath.Join(root, "www", "old.html"))
	assert.FileExists(t, filepath.Join(root, "www", "index.html"))

	code, _, stderr = runCLI(t, "--root", root, "clean")
	require.Equal(t, 0, code, stderr)
	assert.NoDirExists(t, filepath.Join(root, "www"))
}

func TestRun_Init(t *testing.T) {
	root := t.TempDir()

	code, stdout, stderr := runCLI(t, "--root", root, "init")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "frontbuild.yaml")
	assert.FileExists(t, filepath.Join(root, "frontbuild.yaml"))

	code, _, stderr = runCLI(t, "--root", root, "init")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "--force")

	code, _, stderr = runCLI(t, "--root", root, "init", "--force")
	assert.Equal(t, 0, code, stderr)
}

func TestRun_InvalidConfig(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "frontbuild.yaml"), "lint:\n  mode: loud\n")

	code, _, stderr := runCLI(t, "--root", root, "build")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "load config")
}

func TestRun_UnknownCommand(t *testing.T) {
	code, _, stderr := runCLI(t, "deploy")
	assert.Equal(t, 1, code)
	assert.NotEmpty(t, stderr)
}

func TestRun_HistoryWithoutRuns(t *testing.T) {
	root := t.TempDir()
	code, stdout, stderr := runCLI(t, "--root", root, "history")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "No builds recorded yet.")
}

func TestRun_WatchStopsOnCancel(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "frontbuild.yaml"), testConfig)
	writeFile(t, filepath.Join(root, "src", "index.html"), "<html></html>\n")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan int, 1)
	var stdout, stderr bytes.Buffer
	go func() {
		done <- run(ctx, []string{"--root", root, "watch", "--build"}, &stdout, &stderr)
	}()

	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(root, "www", "index.html"))
		return err == nil
	}, 5*time.Second, 20*time.Millisecond, "initial build ran")

	cancel()
	select {
	case code := <-done:
		assert.Equal(t, 0, code)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop after cancellation")
	}
}

// TestSignalContextCancellation verifies that signal.NotifyContext produces
// a context that cancels correctly when a signal is received.
func TestSignalContextCancellation(t *testing.T) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGUSR1)
	defer stop()

	if err := syscall.Kill(os.Getpid(), syscall.SIGUSR1); err != nil {
		t.Fatalf("Failed to send SIGUSR1: %v", err)
	}

	select {
	case <-ctx.Done():
	case <-time.After(1 * time.Second):
		t.Fatal("Context did not cancel after SIGUSR1")
	}

	if err := ctx.Err(); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}
