package watch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aristath/frontbuild/internal/events"
)

// DefaultDebounce is the quiet period before a run starts.
const DefaultDebounce = 300 * time.Millisecond

// RunFunc performs one rebuild.
type RunFunc func(ctx context.Context) error

// Trigger turns bursts of notifications into runs of one pipeline.
//
// Notifications within the debounce window of each other coalesce into one
// run. Runs never overlap: a request that arrives while a run is in progress
// queues exactly one follow-up run, however many notifications it stands for.
// A run in progress is never cancelled by new changes.
type Trigger struct {
	name     string
	debounce time.Duration
	run      RunFunc
	bus      *events.EventBus
	logger   *slog.Logger

	requests chan struct{}

	mu      sync.Mutex
	timer   *time.Timer
	running bool
	queued  bool
	runs    int
}

// TriggerOption configures a Trigger.
type TriggerOption func(*Trigger)

// WithEventBus publishes RunQueuedEvent when a run is queued behind another.
func WithEventBus(bus *events.EventBus) TriggerOption {
	return func(t *Trigger) { t.bus = bus }
}

// WithLogger sets the logger for run failures.
func WithLogger(logger *slog.Logger) TriggerOption {
	return func(t *Trigger) { t.logger = logger }
}

// NewTrigger creates a trigger for the named pipeline. A non-positive
// debounce uses DefaultDebounce.
func NewTrigger(name string, debounce time.Duration, run RunFunc, opts ...TriggerOption) *Trigger {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	t := &Trigger{
		name:     name,
		debounce: debounce,
		run:      run,
		requests: make(chan struct{}, 1),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Name returns the pipeline name.
func (t *Trigger) Name() string { return t.name }

// Notify records a change. The run starts once no further notification has
// arrived for the debounce window.
func (t *Trigger) Notify() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = time.AfterFunc(t.debounce, t.request)
}

func (t *Trigger) request() {
	t.mu.Lock()
	if t.running && !t.queued {
		t.queued = true
		t.bus.Publish(events.TopicWatch, events.RunQueuedEvent{Pipeline: t.name, Timestamp: time.Now()})
	}
	t.mu.Unlock()

	select {
	case t.requests <- struct{}{}:
	default:
		// A run is already pending.
	}
}

// Start runs the worker until ctx is done. Run errors are logged and never
// stop the worker.
func (t *Trigger) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				t.stopTimer()
				return
			case <-t.requests:
				t.mu.Lock()
				t.running = true
				t.queued = false
				t.mu.Unlock()

				err := t.run(ctx)

				t.mu.Lock()
				t.running = false
				t.runs++
				t.mu.Unlock()

				if err != nil && ctx.Err() == nil {
					t.logger.Error("rebuild failed", "pipeline", t.name, "error", err)
				}
			}
		}
	}()
}

// Runs returns how many runs have completed.
func (t *Trigger) Runs() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.runs
}

func (t *Trigger) stopTimer() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
	}
}
