package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aristath/frontbuild/internal/builderrors"
	"github.com/aristath/frontbuild/internal/events"
)

// recorder logs start and finish markers for every task action.
type recorder struct {
	mu       sync.Mutex
	started  map[string]time.Time
	finished map[string]time.Time
	log      []string
	runs     map[string]int
}

func newRecorder() *recorder {
	return &recorder{
		started:  make(map[string]time.Time),
		finished: make(map[string]time.Time),
		runs:     make(map[string]int),
	}
}

func (r *recorder) action(name string, delay time.Duration, err error) Action {
	return func(ctx context.Context) error {
		r.mu.Lock()
		r.started[name] = time.Now()
		r.log = append(r.log, "start:"+name)
		r.runs[name]++
		r.mu.Unlock()

		time.Sleep(delay)

		r.mu.Lock()
		r.finished[name] = time.Now()
		r.log = append(r.log, "end:"+name)
		r.mu.Unlock()
		return err
	}
}

func TestRun_DependenciesCompleteBeforeDependents(t *testing.T) {
	rec := newRecorder()
	g := NewGraph()
	_ = g.Register("scripts", nil, rec.action("scripts", 20*time.Millisecond, nil))
	_ = g.Register("styles", nil, rec.action("styles", 5*time.Millisecond, nil))
	_ = g.Register("html", nil, rec.action("html", 1*time.Millisecond, nil))
	_ = g.Register("libs", nil, rec.action("libs", 10*time.Millisecond, nil))
	_ = g.Register("build", []string{"scripts", "styles", "html", "libs"}, rec.action("build", 0, nil))

	exec, err := g.Run(context.Background(), "build")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	for _, dep := range []string{"scripts", "styles", "html", "libs"} {
		if !rec.finished[dep].Before(rec.started["build"]) && !rec.finished[dep].Equal(rec.started["build"]) {
			t.Errorf("%s finished after build started", dep)
		}
		if exec.Status(dep) != TaskCompleted {
			t.Errorf("%s status = %s, want done", dep, exec.Status(dep))
		}
	}
	if exec.Status("build") != TaskCompleted {
		t.Errorf("build status = %s", exec.Status("build"))
	}
}

func TestRun_IndependentTasksRunConcurrently(t *testing.T) {
	var current, peak atomic.Int32
	action := func(ctx context.Context) error {
		n := current.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		current.Add(-1)
		return nil
	}

	g := NewGraph()
	_ = g.Register("a", nil, action)
	_ = g.Register("b", nil, action)
	_ = g.Register("c", nil, action)
	_ = g.Register("all", []string{"a", "b", "c"}, nil)

	if _, err := g.Run(context.Background(), "all"); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if peak.Load() < 2 {
		t.Errorf("expected concurrent execution, peak concurrency = %d", peak.Load())
	}
}

func TestRun_ConcurrencyLimit(t *testing.T) {
	var current, peak atomic.Int32
	action := func(ctx context.Context) error {
		n := current.Add(1)
		if n > peak.Load() {
			peak.Store(n)
		}
		time.Sleep(10 * time.Millisecond)
		current.Add(-1)
		return nil
	}

	g := NewGraph()
	g.SetConcurrencyLimit(1)
	for i := 0; i < 4; i++ {
		_ = g.Register(fmt.Sprintf("t%d", i), nil, action)
	}
	_ = g.Register("all", []string{"t0", "t1", "t2", "t3"}, nil)

	if _, err := g.Run(context.Background(), "all"); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if peak.Load() != 1 {
		t.Errorf("peak concurrency = %d, want 1", peak.Load())
	}
}

// TestRun_RandomAcyclicGraphs checks the ordering property over many shapes.
func TestRun_RandomAcyclicGraphs(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for iter := 0; iter < 25; iter++ {
		rec := newRecorder()
		g := NewGraph()
		n := 3 + rng.Intn(8)
		for i := 0; i < n; i++ {
			var deps []string
			for j := 0; j < i; j++ {
				if rng.Intn(3) == 0 {
					deps = append(deps, fmt.Sprintf("n%d", j))
				}
			}
			name := fmt.Sprintf("n%d", i)
			_ = g.Register(name, deps, rec.action(name, time.Duration(rng.Intn(3))*time.Millisecond, nil))
		}

		for i := 0; i < n; i++ {
			target := fmt.Sprintf("n%d", i)
			rec = newRecorder()
			g2 := NewGraph()
			for _, task := range g.Tasks() {
				_ = g2.Register(task.Name, task.DependsOn, rec.action(task.Name, 0, nil))
			}
			closure, _ := g2.Closure(target)
			if _, err := g2.Run(context.Background(), target); err != nil {
				t.Fatalf("iter %d: Run(%s) failed: %v", iter, target, err)
			}
			for _, name := range closure {
				if rec.runs[name] != 1 {
					t.Errorf("iter %d: %s ran %d times, want 1", iter, name, rec.runs[name])
				}
				task, _ := g2.Get(name)
				for _, dep := range task.DependsOn {
					if rec.finished[dep].After(rec.started[name]) {
						t.Errorf("iter %d: %s started before dependency %s finished", iter, name, dep)
					}
				}
			}
		}
	}
}

func TestRun_CycleExecutesNothing(t *testing.T) {
	var ran atomic.Int32
	action := func(ctx context.Context) error {
		ran.Add(1)
		return nil
	}

	g := NewGraph()
	_ = g.Register("leaf", nil, action)
	_ = g.Register("a", []string{"leaf", "b"}, action)
	_ = g.Register("b", []string{"a"}, action)
	_ = g.Register("top", []string{"a"}, action)

	exec, err := g.Run(context.Background(), "top")
	var gerr *builderrors.GraphError
	if !errors.As(err, &gerr) {
		t.Fatalf("expected GraphError, got %v", err)
	}
	if exec != nil {
		t.Error("expected no execution for invalid graph")
	}
	if ran.Load() != 0 {
		t.Errorf("expected zero actions executed, got %d", ran.Load())
	}
}

func TestRun_MissingDependencyExecutesNothing(t *testing.T) {
	var ran atomic.Int32
	g := NewGraph()
	_ = g.Register("a", nil, func(ctx context.Context) error { ran.Add(1); return nil })
	_ = g.Register("build", []string{"a", "ghost"}, nil)

	_, err := g.Run(context.Background(), "build")
	var gerr *builderrors.GraphError
	if !errors.As(err, &gerr) || gerr.Kind != "missing" || gerr.Dep != "ghost" {
		t.Fatalf("expected missing GraphError for ghost, got %v", err)
	}
	if ran.Load() != 0 {
		t.Errorf("expected zero actions, got %d", ran.Load())
	}
}

func TestRun_FailureSkipsDependentsOnly(t *testing.T) {
	rec := newRecorder()
	styleErr := errors.New("styles broke")

	g := NewGraph()
	_ = g.Register("styles", nil, rec.action("styles", 0, styleErr))
	_ = g.Register("scripts", nil, rec.action("scripts", 10*time.Millisecond, nil))
	_ = g.Register("build", []string{"styles", "scripts"}, rec.action("build", 0, nil))

	exec, err := g.Run(context.Background(), "build")
	if !errors.Is(err, styleErr) {
		t.Fatalf("expected styles error, got %v", err)
	}
	if exec.Status("styles") != TaskFailed {
		t.Errorf("styles = %s, want failed", exec.Status("styles"))
	}
	if exec.Status("scripts") != TaskCompleted {
		t.Errorf("scripts = %s, want done", exec.Status("scripts"))
	}
	if exec.Status("build") != TaskSkipped {
		t.Errorf("build = %s, want skipped", exec.Status("build"))
	}
	if rec.runs["build"] != 0 {
		t.Error("build action ran despite failed dependency")
	}
	if failed := exec.Failed(); len(failed) != 1 || failed[0] != "styles" {
		t.Errorf("Failed() = %v", failed)
	}

	task, _ := g.Get("styles")
	if task.Status != TaskFailed || !errors.Is(task.Error, styleErr) {
		t.Errorf("graph did not record styles outcome: %v %v", task.Status, task.Error)
	}
}

func TestRun_PanicBecomesFailure(t *testing.T) {
	g := NewGraph()
	_ = g.Register("boom", nil, func(ctx context.Context) error { panic("kaboom") })

	exec, err := g.Run(context.Background(), "boom")
	if err == nil {
		t.Fatal("expected error from panicking task")
	}
	if exec.Status("boom") != TaskFailed {
		t.Errorf("status = %s, want failed", exec.Status("boom"))
	}
}

func TestRun_EachInvocationRunsTasksOnce(t *testing.T) {
	rec := newRecorder()
	g := NewGraph()
	_ = g.Register("shared", nil, rec.action("shared", 0, nil))
	_ = g.Register("a", []string{"shared"}, rec.action("a", 0, nil))
	_ = g.Register("b", []string{"shared"}, rec.action("b", 0, nil))
	_ = g.Register("top", []string{"a", "b"}, rec.action("top", 0, nil))

	for i := 1; i <= 2; i++ {
		if _, err := g.Run(context.Background(), "top"); err != nil {
			t.Fatalf("run %d failed: %v", i, err)
		}
		if rec.runs["shared"] != i {
			t.Errorf("after run %d shared ran %d times", i, rec.runs["shared"])
		}
	}
}

func TestRun_PublishesEvents(t *testing.T) {
	bus := events.NewEventBus()
	defer bus.Close()
	sub := bus.Subscribe(events.TopicTask, 64)

	g := NewGraph()
	g.SetEventBus(bus)
	_ = g.Register("a", nil, nil)
	_ = g.Register("b", []string{"a"}, func(ctx context.Context) error { return errors.New("no") })
	_ = g.Register("c", []string{"b"}, nil)

	_, _ = g.Run(context.Background(), "c")

	seen := map[string]int{}
	timeout := time.After(200 * time.Millisecond)
	for done := false; !done; {
		select {
		case ev := <-sub:
			seen[ev.EventType()]++
		case <-timeout:
			done = true
		}
	}

	if seen[events.EventTypeTaskStarted] != 2 {
		t.Errorf("started events = %d, want 2", seen[events.EventTypeTaskStarted])
	}
	if seen[events.EventTypeTaskCompleted] != 1 || seen[events.EventTypeTaskFailed] != 1 {
		t.Errorf("completed/failed = %d/%d", seen[events.EventTypeTaskCompleted], seen[events.EventTypeTaskFailed])
	}
	if seen[events.EventTypeTaskSkipped] != 1 {
		t.Errorf("skipped events = %d, want 1", seen[events.EventTypeTaskSkipped])
	}
	if seen[events.EventTypeGraphProgress] != 2 {
		t.Errorf("progress events = %d, want 2", seen[events.EventTypeGraphProgress])
	}
}

func TestRunSequence_StrictOrdering(t *testing.T) {
	rec := newRecorder()
	g := NewGraph()
	_ = g.Register("clean", nil, rec.action("clean", 25*time.Millisecond, nil))
	_ = g.Register("scripts", nil, rec.action("scripts", 0, nil))
	_ = g.Register("build", []string{"scripts"}, rec.action("build", 0, nil))

	execs, err := g.RunSequence(context.Background(), "clean", "build")
	if err != nil {
		t.Fatalf("RunSequence failed: %v", err)
	}
	if len(execs) != 2 {
		t.Fatalf("expected 2 executions, got %d", len(execs))
	}

	want := []string{"start:clean", "end:clean", "start:scripts", "end:scripts", "start:build", "end:build"}
	if len(rec.log) != len(want) {
		t.Fatalf("log = %v, want %v", rec.log, want)
	}
	for i := range want {
		if rec.log[i] != want[i] {
			t.Errorf("log[%d] = %q, want %q (log %v)", i, rec.log[i], want[i], rec.log)
		}
	}
}

func TestRunSequence_StopsAtFirstFailure(t *testing.T) {
	rec := newRecorder()
	g := NewGraph()
	_ = g.Register("clean", nil, rec.action("clean", 0, errors.New("rm failed")))
	_ = g.Register("build", nil, rec.action("build", 0, nil))

	_, err := g.RunSequence(context.Background(), "clean", "build")
	if err == nil {
		t.Fatal("expected failure")
	}
	if rec.runs["build"] != 0 {
		t.Error("build ran after clean failed")
	}
}

func TestRunSequence_ValidatesAllNamesFirst(t *testing.T) {
	rec := newRecorder()
	g := NewGraph()
	_ = g.Register("clean", nil, rec.action("clean", 0, nil))

	_, err := g.RunSequence(context.Background(), "clean", "nope")
	if err == nil {
		t.Fatal("expected error for unknown task")
	}
	if rec.runs["clean"] != 0 {
		t.Error("clean ran although the sequence was invalid")
	}
}
