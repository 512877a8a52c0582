package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aristath/frontbuild/internal/builderrors"
	"github.com/aristath/frontbuild/internal/events"
)

// AssetPipeline discovers the files of one asset class and runs each through
// an ordered list of stages.
type AssetPipeline struct {
	Name    string
	Sources []GlobSet
	Stages  []Stage

	// Concurrency bounds how many records run a stateless segment at once
	// (default 4).
	Concurrency int

	Bus    *events.EventBus
	Logger *slog.Logger
}

// Failure is one record that did not make it through the pipeline.
type Failure struct {
	Path  string
	Stage string
	Err   error
}

// Result summarizes one pipeline run.
type Result struct {
	Pipeline string
	Files    int
	Outputs  []Output
	Failures []Failure
	Findings []builderrors.Finding
	Duration time.Duration
}

// Err joins all record failures, or returns nil if every record succeeded.
func (r *Result) Err() error {
	if len(r.Failures) == 0 {
		return nil
	}
	errs := make([]error, 0, len(r.Failures))
	for _, f := range r.Failures {
		errs = append(errs, f.Err)
	}
	return fmt.Errorf("%s: %d of %d files failed: %w", r.Pipeline, len(r.Failures), r.Files, errors.Join(errs...))
}

// Written returns the number of files actually written.
func (r *Result) Written() int {
	n := 0
	for _, o := range r.Outputs {
		if !o.Skipped {
			n++
		}
	}
	return n
}

type slot struct {
	rec *Record
	err error
}

// Run processes every discovered file. A failing record does not stop its
// siblings; the returned error is the joined record failures. A fatal error
// (see builderrors.IsFatal) stops scheduling further records and is returned
// as soon as in-flight records settle.
func (p *AssetPipeline) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	logger := p.logger()
	res := &Result{Pipeline: p.Name}

	records, failures, err := p.load()
	if err != nil {
		return res, err
	}
	res.Files = len(records) + len(failures)
	res.Failures = append(res.Failures, failures...)

	p.Bus.Publish(events.TopicPipeline, events.PipelineStartedEvent{
		Pipeline:  p.Name,
		Files:     res.Files,
		Timestamp: time.Now(),
	})
	logger.Debug("pipeline started", "pipeline", p.Name, "files", res.Files)

	fatal := p.execute(ctx, records, res)

	res.Duration = time.Since(start)
	sort.Slice(res.Outputs, func(i, j int) bool { return res.Outputs[i].Rel < res.Outputs[j].Rel })
	sort.Slice(res.Failures, func(i, j int) bool { return res.Failures[i].Path < res.Failures[j].Path })

	runErr := fatal
	if runErr == nil {
		runErr = res.Err()
	}
	p.Bus.Publish(events.TopicPipeline, events.PipelineFinishedEvent{
		Pipeline:  p.Name,
		Written:   res.Written(),
		Failed:    len(res.Failures),
		Warnings:  len(res.Findings),
		Err:       runErr,
		Duration:  res.Duration,
		Timestamp: time.Now(),
	})
	logger.Debug("pipeline finished", "pipeline", p.Name, "written", res.Written(),
		"failed", len(res.Failures), "duration", res.Duration)
	return res, runErr
}

// load discovers and reads all sources. Read failures are record failures.
func (p *AssetPipeline) load() ([]*Record, []Failure, error) {
	var records []*Record
	var failures []Failure
	seen := make(map[string]struct{})
	for _, set := range p.Sources {
		rels, err := set.Discover()
		if err != nil {
			return nil, nil, &builderrors.IOError{Op: "discover", Path: set.Base, Err: err}
		}
		for _, rel := range rels {
			abs := filepath.Join(set.Base, filepath.FromSlash(rel))
			if _, dup := seen[abs]; dup {
				continue
			}
			seen[abs] = struct{}{}
			content, err := os.ReadFile(abs)
			if err != nil {
				failures = append(failures, Failure{Path: abs, Stage: "read",
					Err: &builderrors.IOError{Op: "read", Path: abs, Err: err}})
				continue
			}
			rec, err := NewRecord(set.Base, abs, content)
			if err != nil {
				failures = append(failures, Failure{Path: abs, Stage: "read", Err: err})
				continue
			}
			records = append(records, rec)
		}
	}
	sort.SliceStable(records, func(i, j int) bool { return records[i].Rel < records[j].Rel })
	return records, failures, nil
}

// execute runs the stage list as alternating segments: consecutive stateless
// stages run per record concurrently, stateful stages see all survivors.
func (p *AssetPipeline) execute(ctx context.Context, records []*Record, res *Result) error {
	stages := p.Stages
	for len(stages) > 0 && len(records) > 0 {
		if stages[0].Stateful() {
			var fatal error
			records, fatal = p.runStateful(ctx, stages[0], records, res)
			if fatal != nil {
				return fatal
			}
			stages = stages[1:]
			continue
		}
		n := 1
		for n < len(stages) && !stages[n].Stateful() {
			n++
		}
		var fatal error
		records, fatal = p.runStateless(ctx, stages[:n], records, res)
		if fatal != nil {
			return fatal
		}
		stages = stages[n:]
	}
	for _, r := range records {
		res.Outputs = append(res.Outputs, r.Outputs...)
		res.Findings = append(res.Findings, r.Findings...)
	}
	return nil
}

func (p *AssetPipeline) runStateless(ctx context.Context, stages []Stage, records []*Record, res *Result) ([]*Record, error) {
	concurrency := p.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	slots := make([]slot, len(records))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, rec := range records {
		// Stop scheduling once a fatal error cancelled the group.
		if gctx.Err() != nil {
			break
		}
		i, rec := i, rec
		g.Go(func() error {
			cur := rec
			for _, s := range stages {
				next, err := applyStage(gctx, s, cur)
				if err != nil {
					slots[i] = slot{err: err}
					if builderrors.IsFatal(err) {
						return err
					}
					return nil
				}
				if next == nil {
					return nil
				}
				cur = next
			}
			slots[i] = slot{rec: cur}
			return nil
		})
	}
	fatal := g.Wait()

	var survivors []*Record
	for i, s := range slots {
		if s.err != nil {
			p.fail(res, records[i], s.err)
			continue
		}
		if s.rec != nil {
			survivors = append(survivors, s.rec)
		}
	}
	if fatal != nil {
		return nil, fatal
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return survivors, nil
}

func (p *AssetPipeline) runStateful(ctx context.Context, s Stage, records []*Record, res *Result) ([]*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	batch, ok := s.(StatefulStage)
	if !ok {
		return nil, fmt.Errorf("stage %s is stateful but has no ApplyAll", s.Name())
	}
	out, errs := batch.ApplyAll(ctx, records)

	var survivors []*Record
	var fatal error
	for i, rec := range records {
		var err error
		if i < len(errs) {
			err = errs[i]
		}
		if err != nil {
			if !errors.As(err, new(*StageError)) {
				err = &StageError{Stage: s.Name(), Path: rec.Path, Err: err}
			}
			p.fail(res, rec, err)
			if fatal == nil && builderrors.IsFatal(err) {
				fatal = err
			}
			continue
		}
		if i < len(out) && out[i] != nil {
			if err := checkMapChain(rec, out[i]); err != nil {
				p.fail(res, rec, &StageError{Stage: s.Name(), Path: rec.Path, Err: err})
				continue
			}
			survivors = append(survivors, out[i])
		}
	}
	return survivors, fatal
}

func (p *AssetPipeline) fail(res *Result, rec *Record, err error) {
	stage := ""
	var se *StageError
	if errors.As(err, &se) {
		stage = se.Stage
	}
	res.Failures = append(res.Failures, Failure{Path: rec.Path, Stage: stage, Err: err})
	p.Bus.Publish(events.TopicPipeline, events.RecordFailedEvent{
		Pipeline:  p.Name,
		Path:      rec.Path,
		Stage:     stage,
		Err:       err,
		Timestamp: time.Now(),
	})
	p.logger().Error("file failed", "pipeline", p.Name, "path", rec.Path, "stage", stage, "error", err)
}

func (p *AssetPipeline) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}
