package orchestrator

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/aristath/frontbuild/internal/scheduler"
)

// Failure is one file that did not build.
type Failure struct {
	Pipeline string
	Path     string
	Stage    string
	Err      error
}

// Report summarizes one command invocation.
type Report struct {
	RunID      string
	Command    string
	Executions []*scheduler.Execution
	Failures   []Failure
	Err        error
	Duration   time.Duration
}

// Tasks returns the outcome of every task the command ran, in execution order.
func (r *Report) Tasks() []*scheduler.Task {
	var tasks []*scheduler.Task
	for _, exec := range r.Executions {
		tasks = append(tasks, exec.Tasks()...)
	}
	return tasks
}

// Clean removes the output directory.
func (c *Context) Clean(ctx context.Context) *Report {
	return c.runCommand(ctx, "clean", TaskClean)
}

// Build runs every asset class concurrently, then the build task. The first
// task failure becomes the report's error.
func (c *Context) Build(ctx context.Context) *Report {
	return c.runCommand(ctx, "build", TaskBuild)
}

// BuildClean runs clean to completion before build starts.
func (c *Context) BuildClean(ctx context.Context) *Report {
	return c.runCommand(ctx, "build-clean", TaskClean, TaskBuild)
}

// runCommand runs the named tasks in sequence and records the outcome.
func (c *Context) runCommand(ctx context.Context, command string, tasks ...string) *Report {
	start := time.Now()
	rep := &Report{RunID: uuid.NewString(), Command: command}
	logger := c.Logger.With("run", rep.RunID)

	c.startHistory(ctx, rep, start)

	execs, err := c.Graph.RunSequence(ctx, tasks...)
	rep.Executions = execs
	rep.Err = err
	rep.Duration = time.Since(start)
	rep.Failures = c.failures(execs)

	c.Recorder.IncBuildOutcome(command, err == nil)
	c.finishHistory(ctx, rep)

	if err != nil {
		logger.Error("command failed", "command", command, "duration", rep.Duration, "error", err)
	} else {
		logger.Info("command finished", "command", command, "duration", rep.Duration.Round(time.Millisecond))
	}
	return rep
}

// failures collects the file failures of every class that ran in execs.
func (c *Context) failures(execs []*scheduler.Execution) []Failure {
	var out []Failure
	for _, exec := range execs {
		for _, name := range exec.Started() {
			res, ok := c.Result(name)
			if !ok || res == nil {
				continue
			}
			for _, f := range res.Failures {
				out = append(out, Failure{Pipeline: name, Path: f.Path, Stage: f.Stage, Err: f.Err})
			}
		}
	}
	return out
}
