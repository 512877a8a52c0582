package watch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aristath/frontbuild/internal/events"
)

// Matcher selects paths, e.g. pipeline.GlobSet.
type Matcher interface {
	MatchPath(abs string) bool
}

type subscription struct {
	name     string
	matchers []Matcher
	onChange func(ChangeEvent)
}

// Watcher pulls events from a Source and routes each one to every
// subscription whose patterns match it.
type Watcher struct {
	source Source
	bus    *events.EventBus
	logger *slog.Logger

	mu   sync.RWMutex
	subs []subscription
}

// NewWatcher creates a dispatcher over source.
func NewWatcher(source Source, bus *events.EventBus, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{source: source, bus: bus, logger: logger}
}

// Subscribe registers onChange for paths matched by any of matchers. name
// identifies the owning pipeline in events and logs.
func (w *Watcher) Subscribe(name string, onChange func(ChangeEvent), matchers ...Matcher) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.subs = append(w.subs, subscription{name: name, matchers: matchers, onChange: onChange})
}

// Run dispatches events until ctx is done or the source closes. Source
// errors are logged and never stop dispatching.
func (w *Watcher) Run(ctx context.Context) error {
	events := w.source.Events()
	errs := w.source.Errors()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			w.dispatch(ev)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			w.logger.Warn("watch error", "error", err)
		}
	}
}

func (w *Watcher) dispatch(ev ChangeEvent) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	for _, sub := range w.subs {
		if !matchesAny(sub.matchers, ev.Path) {
			continue
		}
		w.logger.Debug("file changed", "pipeline", sub.name, "path", ev.Path, "op", ev.Op.String())
		w.bus.Publish(events.TopicWatch, events.FileChangedEvent{
			Path:      ev.Path,
			Op:        ev.Op.String(),
			Pipeline:  sub.name,
			Timestamp: time.Now(),
		})
		sub.onChange(ev)
	}
}

func matchesAny(matchers []Matcher, path string) bool {
	for _, m := range matchers {
		if m.MatchPath(path) {
			return true
		}
	}
	return false
}
