package orchestrator

import (
	"context"
	"time"

	"github.com/aristath/frontbuild/internal/persistence"
)

// historyTimeout bounds each history write. Write failures are logged only.
const historyTimeout = 5 * time.Second

func (c *Context) startHistory(ctx context.Context, rep *Report, start time.Time) {
	if c.Store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), historyTimeout)
	defer cancel()

	run := &persistence.Run{ID: rep.RunID, Command: rep.Command, StartedAt: start}
	if err := c.Store.StartRun(ctx, run); err != nil {
		c.Logger.Warn("failed to record run", "run", rep.RunID, "error", err)
	}
}

func (c *Context) finishHistory(ctx context.Context, rep *Report) {
	if c.Store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), historyTimeout)
	defer cancel()

	if tasks := rep.Tasks(); len(tasks) > 0 {
		if err := c.Store.SaveTaskResults(ctx, rep.RunID, persistence.TaskResultsFrom(tasks)); err != nil {
			c.Logger.Warn("failed to record task results", "run", rep.RunID, "error", err)
		}
	}

	failures := make([]persistence.FileFailure, 0, len(rep.Failures))
	for _, f := range rep.Failures {
		failures = append(failures, persistence.FileFailure{
			Pipeline: f.Pipeline,
			Path:     c.rel(f.Path),
			Stage:    f.Stage,
			Error:    f.Err.Error(),
		})
	}
	if err := c.Store.SaveFileFailures(ctx, rep.RunID, failures); err != nil {
		c.Logger.Warn("failed to record file failures", "run", rep.RunID, "error", err)
	}

	status := persistence.RunSucceeded
	if rep.Err != nil {
		status = persistence.RunFailed
	}
	if err := c.Store.FinishRun(ctx, rep.RunID, status, rep.Err, time.Now()); err != nil {
		c.Logger.Warn("failed to finish run", "run", rep.RunID, "error", err)
	}
}
