package events

import (
	"time"
)

// Event is the base interface for all events.
type Event interface {
	EventType() string
	// Subject names what the event is about: a task, a pipeline, or a file path.
	Subject() string
}

// Topic constants
const (
	TopicTask     = "task"
	TopicPipeline = "pipeline"
	TopicWatch    = "watch"
)

// Event type constants
const (
	EventTypeTaskStarted      = "task.started"
	EventTypeTaskCompleted    = "task.completed"
	EventTypeTaskFailed       = "task.failed"
	EventTypeTaskSkipped      = "task.skipped"
	EventTypeGraphProgress    = "graph.progress"
	EventTypePipelineStarted  = "pipeline.started"
	EventTypePipelineFinished = "pipeline.finished"
	EventTypeRecordFailed     = "pipeline.record_failed"
	EventTypeFileChanged      = "watch.file_changed"
	EventTypeRunQueued        = "watch.run_queued"
)

// TaskStartedEvent is published when a task action begins.
type TaskStartedEvent struct {
	RunID     string
	Task      string
	Timestamp time.Time
}

func (e TaskStartedEvent) EventType() string { return EventTypeTaskStarted }
func (e TaskStartedEvent) Subject() string   { return e.Task }

// TaskCompletedEvent is published when a task action returns nil.
type TaskCompletedEvent struct {
	RunID     string
	Task      string
	Duration  time.Duration
	Timestamp time.Time
}

func (e TaskCompletedEvent) EventType() string { return EventTypeTaskCompleted }
func (e TaskCompletedEvent) Subject() string   { return e.Task }

// TaskFailedEvent is published when a task action returns an error.
type TaskFailedEvent struct {
	RunID     string
	Task      string
	Err       error
	Duration  time.Duration
	Timestamp time.Time
}

func (e TaskFailedEvent) EventType() string { return EventTypeTaskFailed }
func (e TaskFailedEvent) Subject() string   { return e.Task }

// TaskSkippedEvent is published when a task is not run because a dependency failed.
type TaskSkippedEvent struct {
	RunID     string
	Task      string
	Cause     string // the failed dependency
	Timestamp time.Time
}

func (e TaskSkippedEvent) EventType() string { return EventTypeTaskSkipped }
func (e TaskSkippedEvent) Subject() string   { return e.Task }

// GraphProgressEvent is published whenever a task in a run settles.
type GraphProgressEvent struct {
	RunID     string
	Target    string
	Total     int
	Completed int
	Running   int
	Failed    int
	Skipped   int
	Pending   int
	Timestamp time.Time
}

func (e GraphProgressEvent) EventType() string { return EventTypeGraphProgress }
func (e GraphProgressEvent) Subject() string   { return e.Target }

// PipelineStartedEvent is published when an asset pipeline begins a run.
type PipelineStartedEvent struct {
	Pipeline  string
	Files     int
	Timestamp time.Time
}

func (e PipelineStartedEvent) EventType() string { return EventTypePipelineStarted }
func (e PipelineStartedEvent) Subject() string   { return e.Pipeline }

// PipelineFinishedEvent is published when an asset pipeline run ends.
type PipelineFinishedEvent struct {
	Pipeline  string
	Written   int
	Failed    int
	Warnings  int
	Err       error
	Duration  time.Duration
	Timestamp time.Time
}

func (e PipelineFinishedEvent) EventType() string { return EventTypePipelineFinished }
func (e PipelineFinishedEvent) Subject() string   { return e.Pipeline }

// RecordFailedEvent is published when one file fails inside a pipeline.
type RecordFailedEvent struct {
	Pipeline  string
	Path      string
	Stage     string
	Err       error
	Timestamp time.Time
}

func (e RecordFailedEvent) EventType() string { return EventTypeRecordFailed }
func (e RecordFailedEvent) Subject() string   { return e.Path }

// FileChangedEvent is published by the watcher for every relevant change.
type FileChangedEvent struct {
	Path      string
	Op        string
	Pipeline  string
	Timestamp time.Time
}

func (e FileChangedEvent) EventType() string { return EventTypeFileChanged }
func (e FileChangedEvent) Subject() string   { return e.Path }

// RunQueuedEvent is published when a change arrives during an in-progress run.
type RunQueuedEvent struct {
	Pipeline  string
	Timestamp time.Time
}

func (e RunQueuedEvent) EventType() string { return EventTypeRunQueued }
func (e RunQueuedEvent) Subject() string   { return e.Pipeline }
