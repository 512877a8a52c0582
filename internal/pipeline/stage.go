package pipeline

import (
	"context"
	"errors"
	"fmt"
)

// Stage is one transform step. Apply returns the transformed record, or nil
// to drop the record from the run without error. An error fails the record
// and short-circuits the remaining stages for it.
type Stage interface {
	Name() string
	Stateful() bool
	Apply(ctx context.Context, r *Record) (*Record, error)
}

// StatefulStage needs every record of a run at once, e.g. a whole-project
// type check. Records arrive sorted by Rel; the returned slices are aligned
// with the input.
type StatefulStage interface {
	Stage
	ApplyAll(ctx context.Context, records []*Record) ([]*Record, []error)
}

type funcStage struct {
	name string
	fn   func(ctx context.Context, r *Record) (*Record, error)
}

// StageFunc adapts a function to a stateless Stage.
func StageFunc(name string, fn func(ctx context.Context, r *Record) (*Record, error)) Stage {
	return funcStage{name: name, fn: fn}
}

func (s funcStage) Name() string   { return s.name }
func (s funcStage) Stateful() bool { return false }

func (s funcStage) Apply(ctx context.Context, r *Record) (*Record, error) {
	return s.fn(ctx, r)
}

// Filter drops records for which keep returns false.
func Filter(name string, keep func(r *Record) bool) Stage {
	return StageFunc(name, func(_ context.Context, r *Record) (*Record, error) {
		if !keep(r) {
			return nil, nil
		}
		return r, nil
	})
}

type chainStage struct {
	name   string
	stages []Stage
}

// Chain composes stateless stages left to right into a single stage.
func Chain(name string, stages ...Stage) Stage {
	return chainStage{name: name, stages: stages}
}

func (c chainStage) Name() string   { return c.name }
func (c chainStage) Stateful() bool { return false }

func (c chainStage) Apply(ctx context.Context, r *Record) (*Record, error) {
	for _, s := range c.stages {
		next, err := applyStage(ctx, s, r)
		if err != nil {
			return nil, err
		}
		if next == nil {
			return nil, nil
		}
		r = next
	}
	return r, nil
}

// StageError names the stage a record failed in.
type StageError struct {
	Stage string
	Path  string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Path, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// applyStage runs one stage and enforces that a started sourcemap chain
// survives it.
func applyStage(ctx context.Context, s Stage, r *Record) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	next, err := s.Apply(ctx, r)
	if err != nil {
		var se *StageError
		if errors.As(err, &se) {
			return nil, err
		}
		return nil, &StageError{Stage: s.Name(), Path: r.Path, Err: err}
	}
	if next == nil {
		return nil, nil
	}
	if err := checkMapChain(r, next); err != nil {
		return nil, &StageError{Stage: s.Name(), Path: r.Path, Err: err}
	}
	return next, nil
}

func checkMapChain(before, after *Record) error {
	if before.TrackMaps && !after.TrackMaps {
		return errors.New("sourcemap tracking stopped")
	}
	if len(after.Maps) < len(before.Maps) {
		return fmt.Errorf("sourcemap chain shortened from %d to %d", len(before.Maps), len(after.Maps))
	}
	return nil
}
