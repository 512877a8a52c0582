package metrics

import (
	"context"

	"github.com/aristath/frontbuild/internal/events"
)

// Consume records metrics for every event received on ch until ctx is done
// or ch is closed.
func Consume(ctx context.Context, ch <-chan events.Event, r Recorder) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			Record(r, ev)
		}
	}
}

// Record translates one event into metric updates.
func Record(r Recorder, ev events.Event) {
	switch e := ev.(type) {
	case events.TaskCompletedEvent:
		r.ObserveTaskDuration(e.Task, e.Duration)
		r.IncTaskResult(e.Task, ResultSuccess)
	case events.TaskFailedEvent:
		r.ObserveTaskDuration(e.Task, e.Duration)
		r.IncTaskResult(e.Task, ResultFailed)
	case events.TaskSkippedEvent:
		r.IncTaskResult(e.Task, ResultSkipped)
	case events.PipelineFinishedEvent:
		r.ObservePipelineDuration(e.Pipeline, e.Duration)
		r.AddFilesWritten(e.Pipeline, e.Written)
	case events.RecordFailedEvent:
		r.IncFileFailure(e.Pipeline, e.Stage)
	case events.FileChangedEvent:
		r.IncFileChange(e.Pipeline)
	case events.RunQueuedEvent:
		r.IncRunQueued(e.Pipeline)
	}
}
