// Package metrics exposes build and watch metrics.
package metrics

import "time"

// ResultLabel enumerates task result categories for counters.
type ResultLabel string

const (
	ResultSuccess ResultLabel = "success"
	ResultFailed  ResultLabel = "failed"
	ResultSkipped ResultLabel = "skipped"
)

// Recorder defines observability hooks for tasks, pipelines, and the
// watcher. Implementations may forward to Prometheus; NoopRecorder is the
// default when metrics are not configured.
type Recorder interface {
	ObserveTaskDuration(task string, d time.Duration)
	IncTaskResult(task string, result ResultLabel)
	ObservePipelineDuration(pipeline string, d time.Duration)
	AddFilesWritten(pipeline string, n int)
	IncFileFailure(pipeline, stage string)
	IncFileChange(pipeline string)
	IncRunQueued(pipeline string)
	IncBuildOutcome(command string, success bool)
}

// NoopRecorder is a Recorder that does nothing.
type NoopRecorder struct{}

func (NoopRecorder) ObserveTaskDuration(string, time.Duration)     {}
func (NoopRecorder) IncTaskResult(string, ResultLabel)             {}
func (NoopRecorder) ObservePipelineDuration(string, time.Duration) {}
func (NoopRecorder) AddFilesWritten(string, int)                   {}
func (NoopRecorder) IncFileFailure(string, string)                 {}
func (NoopRecorder) IncFileChange(string)                          {}
func (NoopRecorder) IncRunQueued(string)                           {}
func (NoopRecorder) IncBuildOutcome(string, bool)                  {}
