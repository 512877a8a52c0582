package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/aristath/frontbuild/internal/events"
)

// Execution is the record of one Run invocation: which tasks it covered, the
// order they started in, and how each one ended.
type Execution struct {
	ID     string
	Target string

	mu       sync.Mutex
	members  []string
	tasks    map[string]*Task
	started  []string
	firstErr error
}

func newExecution(target string, order []string, graph map[string]*Task) *Execution {
	e := &Execution{
		ID:      uuid.NewString(),
		Target:  target,
		members: order,
		tasks:   make(map[string]*Task, len(order)),
	}
	for _, name := range order {
		cp := cloneTask(graph[name])
		cp.Status = TaskPending
		cp.Error = nil
		cp.Duration = 0
		e.tasks[name] = cp
	}
	return e
}

// Status returns the status of a task in this execution.
func (e *Execution) Status(name string) TaskStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	if t, ok := e.tasks[name]; ok {
		return t.Status
	}
	return TaskPending
}

// Err returns the error a task failed with in this execution, if any.
func (e *Execution) Err(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if t, ok := e.tasks[name]; ok {
		return t.Error
	}
	return nil
}

// Started returns task names in the order their actions began.
func (e *Execution) Started() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.started...)
}

// Failed returns the names of failed tasks in execution order.
func (e *Execution) Failed() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	var failed []string
	for _, name := range e.members {
		if e.tasks[name].Status == TaskFailed {
			failed = append(failed, name)
		}
	}
	return failed
}

// FirstErr returns the first task failure observed, or nil.
func (e *Execution) FirstErr() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.firstErr
}

// Tasks returns copies of the per-task outcomes in execution order.
func (e *Execution) Tasks() []*Task {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*Task, 0, len(e.members))
	for _, name := range e.members {
		out = append(out, cloneTask(e.tasks[name]))
	}
	return out
}

type taskResult struct {
	name     string
	err      error
	duration time.Duration
}

// Run executes the dependency closure of name. Tasks whose dependencies have
// all completed run concurrently; a task starts only after every dependency
// has completed. When a task fails its dependents are skipped, independent
// branches keep running, and Run returns the first failure.
//
// The closure is validated before anything runs: a cycle or an unregistered
// dependency returns a GraphError with zero actions executed.
func (g *Graph) Run(ctx context.Context, name string) (*Execution, error) {
	g.mu.RLock()
	order, err := g.closureLocked(name)
	if err != nil {
		g.mu.RUnlock()
		return nil, err
	}
	exec := newExecution(name, order, g.tasks)
	bus, limit := g.bus, g.limit
	g.mu.RUnlock()

	results := make(chan taskResult, len(order))
	var wg errgroup.Group
	if limit > 0 {
		wg.SetLimit(limit)
	}

	running := 0
	launch := func() {
		for _, taskName := range exec.readyLocked() {
			taskName := taskName
			task := exec.tasks[taskName]
			task.Status = TaskRunning
			exec.started = append(exec.started, taskName)
			running++

			bus.Publish(events.TopicTask, events.TaskStartedEvent{RunID: exec.ID, Task: taskName, Timestamp: time.Now()})
			action := task.Action
			wg.Go(func() error {
				start := time.Now()
				err := runAction(ctx, taskName, action)
				results <- taskResult{name: taskName, err: err, duration: time.Since(start)}
				return nil
			})
		}
	}

	exec.mu.Lock()
	launch()
	exec.mu.Unlock()

	for running > 0 {
		res := <-results
		running--

		exec.mu.Lock()
		task := exec.tasks[res.name]
		task.Duration = res.duration
		if res.err != nil {
			task.Status = TaskFailed
			task.Error = res.err
			if exec.firstErr == nil {
				exec.firstErr = fmt.Errorf("task %s: %w", res.name, res.err)
			}
			bus.Publish(events.TopicTask, events.TaskFailedEvent{RunID: exec.ID, Task: res.name, Err: res.err, Duration: res.duration, Timestamp: time.Now()})
			exec.skipDependentsLocked(res.name, bus)
		} else {
			task.Status = TaskCompleted
			bus.Publish(events.TopicTask, events.TaskCompletedEvent{RunID: exec.ID, Task: res.name, Duration: res.duration, Timestamp: time.Now()})
		}
		bus.Publish(events.TopicTask, exec.progressLocked())
		launch()
		exec.mu.Unlock()
	}

	_ = wg.Wait()

	for _, task := range exec.Tasks() {
		g.record(task)
	}

	return exec, exec.FirstErr()
}

// RunSequence runs each named task's closure to completion, strictly one
// after another, regardless of how the tasks relate in the graph. Every name
// is checked before the first one starts. Stops at the first failure.
func (g *Graph) RunSequence(ctx context.Context, names ...string) ([]*Execution, error) {
	for _, name := range names {
		if _, err := g.Closure(name); err != nil {
			return nil, err
		}
	}

	var execs []*Execution
	for _, name := range names {
		exec, err := g.Run(ctx, name)
		if exec != nil {
			execs = append(execs, exec)
		}
		if err != nil {
			return execs, err
		}
	}
	return execs, nil
}

// runAction runs a task action, converting a panic into an error so a single
// misbehaving task cannot take the scheduler down.
func runAction(ctx context.Context, name string, action Action) (err error) {
	if action == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Error("task panicked", "task", name, "panic", r)
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return action(ctx)
}

// readyLocked returns pending tasks whose dependencies have all completed,
// in execution order.
func (e *Execution) readyLocked() []string {
	var ready []string
	for _, name := range e.members {
		task := e.tasks[name]
		if task.Status != TaskPending {
			continue
		}
		allDone := true
		for _, dep := range task.DependsOn {
			if e.tasks[dep].Status != TaskCompleted {
				allDone = false
				break
			}
		}
		if allDone {
			ready = append(ready, name)
		}
	}
	return ready
}

// skipDependentsLocked marks every pending task that transitively depends on
// failed as skipped.
func (e *Execution) skipDependentsLocked(failed string, bus *events.EventBus) {
	changed := true
	blocked := map[string]bool{failed: true}
	for changed {
		changed = false
		for _, name := range e.members {
			task := e.tasks[name]
			if task.Status != TaskPending {
				continue
			}
			for _, dep := range task.DependsOn {
				if blocked[dep] {
					task.Status = TaskSkipped
					blocked[name] = true
					changed = true
					bus.Publish(events.TopicTask, events.TaskSkippedEvent{RunID: e.ID, Task: name, Cause: failed, Timestamp: time.Now()})
					break
				}
			}
		}
	}
}

func (e *Execution) progressLocked() events.GraphProgressEvent {
	ev := events.GraphProgressEvent{RunID: e.ID, Target: e.Target, Total: len(e.members), Timestamp: time.Now()}
	for _, name := range e.members {
		switch e.tasks[name].Status {
		case TaskCompleted:
			ev.Completed++
		case TaskRunning:
			ev.Running++
		case TaskFailed:
			ev.Failed++
		case TaskSkipped:
			ev.Skipped++
		default:
			ev.Pending++
		}
	}
	return ev
}
