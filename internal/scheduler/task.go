package scheduler

import (
	"context"
	"time"
)

// TaskStatus represents the current state of a task within one run.
type TaskStatus int

const (
	TaskPending   TaskStatus = iota // Waiting for dependencies
	TaskRunning                     // Action executing
	TaskCompleted                   // Action returned nil
	TaskFailed                      // Action returned an error
	TaskSkipped                     // Not run because a dependency failed
)

func (s TaskStatus) String() string {
	switch s {
	case TaskPending:
		return "pending"
	case TaskRunning:
		return "running"
	case TaskCompleted:
		return "done"
	case TaskFailed:
		return "failed"
	case TaskSkipped:
		return "skipped"
	}
	return "unknown"
}

// Settled reports whether the status is terminal.
func (s TaskStatus) Settled() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskSkipped
}

// Action is the work a task performs. A nil Action is a pure aggregation point.
type Action func(ctx context.Context) error

// Task represents a named unit of build work in the graph.
type Task struct {
	Name      string   // Unique identifier
	DependsOn []string // Task names this task depends on
	Action    Action

	// Outcome of the most recent run that included this task.
	Status   TaskStatus
	Error    error
	Duration time.Duration
}

func cloneTask(task *Task) *Task {
	if task == nil {
		return nil
	}

	cp := *task
	if task.DependsOn != nil {
		cp.DependsOn = append([]string(nil), task.DependsOn...)
	}
	return &cp
}
