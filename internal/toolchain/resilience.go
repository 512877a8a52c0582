package toolchain

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
)

// RetryConfig configures exponential backoff for transient tool failures.
type RetryConfig struct {
	InitialInterval     time.Duration // Initial retry interval (default 100ms)
	MaxInterval         time.Duration // Maximum retry interval (default 2s)
	MaxElapsedTime      time.Duration // Maximum total retry time (default 10s)
	Multiplier          float64       // Backoff multiplier (default 2.0)
	RandomizationFactor float64       // Jitter factor (default 0.5)
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		InitialInterval:     100 * time.Millisecond,
		MaxInterval:         2 * time.Second,
		MaxElapsedTime:      10 * time.Second,
		Multiplier:          2.0,
		RandomizationFactor: 0.5,
	}
}

// BreakerRegistry manages one circuit breaker per tool.
type BreakerRegistry struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
	logger   *slog.Logger
}

// NewBreakerRegistry creates a new circuit breaker registry.
func NewBreakerRegistry(logger *slog.Logger) *BreakerRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &BreakerRegistry{
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		logger:   logger,
	}
}

// Get returns the circuit breaker for tool, creating it on first use.
func (r *BreakerRegistry) Get(tool string) *gobreaker.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[tool]; ok {
		return cb
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        tool,
		MaxRequests: 1,
		Interval:    0,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			r.logger.Warn("tool circuit breaker changed state", "tool", name, "from", from.String(), "to", to.String())
		},
		// Only failures to run the tool count. Compile errors and user
		// cancellation are normal outcomes.
		IsSuccessful: func(err error) bool {
			return err == nil || !transient(err) && !isStartFailure(err)
		},
	})

	r.breakers[tool] = cb
	return cb
}

func isStartFailure(err error) bool {
	var se *StartError
	return errors.As(err, &se)
}

// Runner executes tool invocations with process tracking, retry of transient
// failures, and a per-tool circuit breaker.
type Runner struct {
	Processes *ProcessManager
	Breakers  *BreakerRegistry
	Retry     RetryConfig
	Logger    *slog.Logger

	// exec is replaced in tests.
	exec func(ctx context.Context, inv Invocation) (Outcome, error)
}

// NewRunner returns a Runner with default retry settings.
func NewRunner(pm *ProcessManager, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		Processes: pm,
		Breakers:  NewBreakerRegistry(logger),
		Retry:     DefaultRetryConfig(),
		Logger:    logger,
	}
}

// Run executes inv. It retries only transient failures; a tool that exits
// non-zero returns its Outcome and a nil error.
func (r *Runner) Run(ctx context.Context, inv Invocation) (Outcome, error) {
	var out Outcome
	cb := r.Breakers.Get(inv.Tool)

	operation := func() error {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}

		result, err := cb.Execute(func() (interface{}, error) {
			return r.execute(ctx, inv)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(err)
			}
			if ctx.Err() != nil || !transient(err) {
				return backoff.Permanent(err)
			}
			r.Logger.Debug("retrying tool", "tool", inv.Tool, "error", err)
			return err
		}

		out = result.(Outcome)
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = r.Retry.InitialInterval
	policy.MaxInterval = r.Retry.MaxInterval
	policy.MaxElapsedTime = r.Retry.MaxElapsedTime
	policy.Multiplier = r.Retry.Multiplier
	policy.RandomizationFactor = r.Retry.RandomizationFactor

	err := backoff.Retry(operation, backoff.WithContext(policy, ctx))
	return out, err
}

func (r *Runner) execute(ctx context.Context, inv Invocation) (Outcome, error) {
	if r.exec != nil {
		return r.exec(ctx, inv)
	}
	cmd := newCommand(ctx, inv.Name, inv.Args...)
	cmd.Dir = inv.Dir
	if len(inv.Env) > 0 {
		cmd.Env = append(os.Environ(), inv.Env...)
	}
	if inv.Stdin != nil {
		cmd.Stdin = bytes.NewReader(inv.Stdin)
	}
	return executeCommand(cmd, r.Processes)
}
