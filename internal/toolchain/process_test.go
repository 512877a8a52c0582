package toolchain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/sony/gobreaker"
)

// TestExecuteCommand_BasicExecution verifies basic command execution
func TestExecuteCommand_BasicExecution(t *testing.T) {
	ctx := context.Background()
	cmd := newCommand(ctx, "echo", "hello")

	out, err := executeCommand(cmd, nil)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !strings.Contains(string(out.Stdout), "hello") {
		t.Errorf("Expected stdout to contain 'hello', got: %s", out.Stdout)
	}
	if out.ExitCode != 0 {
		t.Errorf("Expected exit code 0, got %d", out.ExitCode)
	}
}

// TestExecuteCommand_LargeOutput verifies no deadlock when output exceeds the pipe buffer
func TestExecuteCommand_LargeOutput(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cmd := newCommand(ctx, "sh", "-c", "i=0; while [ $i -lt 20000 ]; do echo line-$i; echo err-$i >&2; i=$((i+1)); done")
	out, err := executeCommand(cmd, nil)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(out.Stdout)), "\n")
	if len(lines) != 20000 {
		t.Errorf("Expected 20000 stdout lines, got %d", len(lines))
	}
	if !strings.Contains(string(out.Stderr), "err-19999") {
		t.Error("Expected stderr to be fully captured")
	}
}

// TestExecuteCommand_NonZeroExitCode verifies a failing tool is an outcome, not an error
func TestExecuteCommand_NonZeroExitCode(t *testing.T) {
	cmd := newCommand(context.Background(), "sh", "-c", "echo 'Error: expected \"}\"' >&2; exit 65")
	out, err := executeCommand(cmd, nil)
	if err != nil {
		t.Fatalf("Expected no error for non-zero exit, got: %v", err)
	}
	if out.ExitCode != 65 {
		t.Errorf("Expected exit code 65, got %d", out.ExitCode)
	}
	if !strings.Contains(string(out.Stderr), "expected") {
		t.Errorf("Expected stderr captured, got %q", out.Stderr)
	}
}

// TestExecuteCommand_MissingBinary verifies start failures are typed and permanent
func TestExecuteCommand_MissingBinary(t *testing.T) {
	cmd := newCommand(context.Background(), "frontbuild-no-such-tool")
	_, err := executeCommand(cmd, nil)
	var se *StartError
	if !errors.As(err, &se) {
		t.Fatalf("Expected StartError, got %v", err)
	}
	if transient(err) {
		t.Error("Missing binary must not be retried")
	}
}

// TestProcessManager_TrackAndKillAll verifies tracked processes are killed
func TestProcessManager_TrackAndKillAll(t *testing.T) {
	pm := NewProcessManager()
	ctx := context.Background()

	done := make(chan error, 1)
	cmd := newCommand(ctx, "sleep", "30")
	go func() {
		_, err := executeCommand(cmd, pm)
		done <- err
	}()

	deadline := time.Now().Add(5 * time.Second)
	for pm.Count() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("process was never tracked")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if err := pm.KillAll(); err != nil {
		t.Fatalf("KillAll failed: %v", err)
	}

	select {
	case err := <-done:
		var sig *SignalError
		if !errors.As(err, &sig) {
			t.Errorf("Expected SignalError after kill, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("killed process did not exit")
	}
	if pm.Count() != 0 {
		t.Errorf("Expected 0 tracked processes, got %d", pm.Count())
	}
}

type scriptedExec struct {
	mu      sync.Mutex
	results []any // Outcome or error
	calls   int
}

func (s *scriptedExec) run(ctx context.Context, inv Invocation) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calls >= len(s.results) {
		return Outcome{}, fmt.Errorf("unexpected call %d", s.calls+1)
	}
	r := s.results[s.calls]
	s.calls++
	switch v := r.(type) {
	case Outcome:
		return v, nil
	case error:
		return Outcome{}, v
	}
	return Outcome{}, fmt.Errorf("invalid result %T", r)
}

func testRunner(s *scriptedExec) *Runner {
	r := NewRunner(NewProcessManager(), nil)
	r.Retry = RetryConfig{
		InitialInterval:     time.Millisecond,
		MaxInterval:         5 * time.Millisecond,
		MaxElapsedTime:      time.Second,
		Multiplier:          1.5,
		RandomizationFactor: 0,
	}
	r.exec = s.run
	return r
}

// TestRunner_TransientThenSuccess verifies transient failures are retried.
func TestRunner_TransientThenSuccess(t *testing.T) {
	s := &scriptedExec{results: []any{
		&SignalError{Name: "sass", Err: errors.New("killed")},
		&StartError{Name: "sass", Err: fmt.Errorf("fork: %w", syscall.EAGAIN)},
		Outcome{Stdout: []byte("ok")},
	}}
	out, err := testRunner(s).Run(context.Background(), Invocation{Tool: "sass", Name: "sass"})
	if err != nil {
		t.Fatalf("Expected success, got %v", err)
	}
	if string(out.Stdout) != "ok" {
		t.Errorf("Expected stdout 'ok', got %q", out.Stdout)
	}
	if s.calls != 3 {
		t.Errorf("Expected 3 calls, got %d", s.calls)
	}
}

// TestRunner_NonZeroExitNotRetried verifies compile failures are returned as outcomes.
func TestRunner_NonZeroExitNotRetried(t *testing.T) {
	s := &scriptedExec{results: []any{Outcome{ExitCode: 65, Stderr: []byte("Error: bad")}}}
	out, err := testRunner(s).Run(context.Background(), Invocation{Tool: "sass", Name: "sass"})
	if err != nil {
		t.Fatalf("Expected nil error, got %v", err)
	}
	if out.ExitCode != 65 || s.calls != 1 {
		t.Errorf("Expected one call with exit 65, got %d calls exit %d", s.calls, out.ExitCode)
	}
}

// TestRunner_PermanentFailure_CircuitOpens verifies repeated launch failures trip the breaker.
func TestRunner_PermanentFailure_CircuitOpens(t *testing.T) {
	results := make([]any, 0, 5)
	for i := 0; i < 5; i++ {
		results = append(results, &StartError{Name: "tsc", Err: errors.New("permission denied")})
	}
	s := &scriptedExec{results: results}
	r := testRunner(s)

	for i := 0; i < 5; i++ {
		if _, err := r.Run(context.Background(), Invocation{Tool: "tsc", Name: "tsc"}); err == nil {
			t.Fatalf("call %d: expected error", i)
		}
	}
	_, err := r.Run(context.Background(), Invocation{Tool: "tsc", Name: "tsc"})
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("Expected open circuit, got %v", err)
	}
	if s.calls != 5 {
		t.Errorf("Expected breaker to block the 6th call, got %d calls", s.calls)
	}

	// Other tools are unaffected.
	if r.Breakers.Get("sass").State() != gobreaker.StateClosed {
		t.Error("Expected sass breaker closed")
	}
}

// TestRunner_ContextCancelled_StopsRetry verifies cancellation stops retrying.
func TestRunner_ContextCancelled_StopsRetry(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := &scriptedExec{results: []any{Outcome{}}}
	_, err := testRunner(s).Run(ctx, Invocation{Tool: "sass", Name: "sass"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	if s.calls != 0 {
		t.Errorf("Expected no calls, got %d", s.calls)
	}
}
