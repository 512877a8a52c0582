package toolchain

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"syscall"
)

// newCommand creates an exec.Cmd in its own process group so that the whole
// subprocess tree can be terminated together.
func newCommand(ctx context.Context, name string, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
	cmd.Cancel = func() error {
		return killProcessGroup(cmd)
	}
	return cmd
}

// Invocation describes one external tool run.
type Invocation struct {
	Tool  string // breaker and log key, e.g. "sass"
	Name  string // executable
	Args  []string
	Dir   string
	Stdin []byte
	Env   []string
}

// Outcome is what a finished process produced. A non-zero ExitCode is not an
// error by itself: compilers and linters report findings that way.
type Outcome struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// executeCommand runs cmd and returns its output. Both pipes are drained
// concurrently before cmd.Wait so large outputs cannot deadlock. The process
// is registered with pm while it runs.
func executeCommand(cmd *exec.Cmd, pm *ProcessManager) (Outcome, error) {
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return Outcome{}, &StartError{Name: cmd.Path, Err: err}
	}
	if pm != nil {
		pm.Track(cmd)
		defer pm.Untrack(cmd)
	}

	var wg sync.WaitGroup
	var stdoutBuf, stderrBuf bytes.Buffer
	wg.Add(2)
	go func() {
		defer wg.Done()
		io.Copy(&stdoutBuf, stdoutPipe)
	}()
	go func() {
		defer wg.Done()
		io.Copy(&stderrBuf, stderrPipe)
	}()
	wg.Wait()

	waitErr := cmd.Wait()
	out := Outcome{Stdout: stdoutBuf.Bytes(), Stderr: stderrBuf.Bytes()}
	if waitErr == nil {
		return out, nil
	}

	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		out.ExitCode = exitErr.ExitCode()
		if out.ExitCode >= 0 {
			return out, nil
		}
		// Terminated by a signal.
		return out, &SignalError{Name: cmd.Path, Err: waitErr}
	}
	return out, fmt.Errorf("command failed: %w", waitErr)
}

// StartError means the executable could not be launched.
type StartError struct {
	Name string
	Err  error
}

func (e *StartError) Error() string { return fmt.Sprintf("starting %s: %v", e.Name, e.Err) }
func (e *StartError) Unwrap() error { return e.Err }

// SignalError means the process was killed before it could exit.
type SignalError struct {
	Name string
	Err  error
}

func (e *SignalError) Error() string { return fmt.Sprintf("%s terminated: %v", e.Name, e.Err) }
func (e *SignalError) Unwrap() error { return e.Err }

// transient reports whether retrying the invocation may succeed.
func transient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.ETXTBSY) || errors.Is(err, syscall.EMFILE) {
		return true
	}
	var sig *SignalError
	return errors.As(err, &sig)
}

// killProcessGroup kills the entire process group of cmd.
func killProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return fmt.Errorf("process not started")
	}
	if err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL); err != nil {
		return fmt.Errorf("failed to kill process group: %w", err)
	}
	return nil
}

// ProcessManager tracks running tool processes so they can all be killed
// on shutdown, e.g. when watch mode is interrupted mid-compile.
type ProcessManager struct {
	mu    sync.Mutex
	procs map[int]*exec.Cmd
}

// NewProcessManager creates a new ProcessManager.
func NewProcessManager() *ProcessManager {
	return &ProcessManager{
		procs: make(map[int]*exec.Cmd),
	}
}

// Track registers a started subprocess.
func (pm *ProcessManager) Track(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.procs[cmd.Process.Pid] = cmd
}

// Untrack removes a subprocess after it has been waited on.
func (pm *ProcessManager) Untrack(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	pm.mu.Lock()
	defer pm.mu.Unlock()
	delete(pm.procs, cmd.Process.Pid)
}

// KillAll terminates all tracked subprocesses.
func (pm *ProcessManager) KillAll() error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	var errs []error
	for pid, cmd := range pm.procs {
		if err := killProcessGroup(cmd); err != nil {
			errs = append(errs, fmt.Errorf("failed to kill process %d: %w", pid, err))
		}
	}
	return errors.Join(errs...)
}

// Count returns the number of currently tracked processes.
func (pm *ProcessManager) Count() int {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return len(pm.procs)
}
