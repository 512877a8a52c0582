package assets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/aristath/frontbuild/internal/pipeline"
	"github.com/aristath/frontbuild/internal/toolchain"
)

// Scripts builds the TypeScript pipeline:
// lint, type check, transpile, write maps, emit.
func Scripts(env Env) (*pipeline.AssetPipeline, error) {
	cfg := env.Config
	src, err := pipeline.ParseGlobs(env.SourceDir(), cfg.Scripts.Globs...)
	if err != nil {
		return nil, err
	}

	stages := []pipeline.Stage{
		Lint(cfg.Lint.Mode, env.Root, env.Tools.ScriptLinter, env.logger()),
	}
	if env.Tools.TypeChecker != nil {
		stages = append(stages, TypeCheck(env.Tools.TypeChecker, env.Root, env.logger()))
	}
	stages = append(stages,
		pipeline.InitSourceMaps(),
		CompileScripts(env.Tools.Scripts, env.logger()),
		pipeline.WriteSourceMaps(cfg.SourceRoot),
		pipeline.Emit(env.OutputDir()),
	)
	return env.newPipeline(ClassScripts, []pipeline.GlobSet{src}, stages), nil
}

// CompileScripts transpiles each file to JavaScript.
func CompileScripts(c toolchain.ScriptCompiler, logger *slog.Logger) pipeline.Stage {
	return pipeline.StageFunc("transpile", func(ctx context.Context, r *pipeline.Record) (*pipeline.Record, error) {
		out, err := c.CompileScript(ctx, toolchain.ScriptInput{Path: r.Path, Rel: r.Rel, Content: r.Content})
		if err != nil {
			return nil, err
		}
		for _, w := range out.Warnings {
			logger.Warn("transpile warning", "path", r.Path, "message", w)
		}
		if out.Map != nil {
			out.Map.File = pipeline.ReplaceExt(r.DestRel, ".js")
		}
		return r.WithExt(".js").Rewrite(out.JS, out.Map), nil
	})
}

type typeCheckStage struct {
	checker toolchain.TypeChecker
	root    string
	logger  *slog.Logger
}

// TypeCheck checks all scripts of a run together. A file with diagnostics
// fails; diagnostics in files outside the run are logged.
func TypeCheck(checker toolchain.TypeChecker, root string, logger *slog.Logger) pipeline.Stage {
	return &typeCheckStage{checker: checker, root: root, logger: logger}
}

func (s *typeCheckStage) Name() string   { return "typecheck" }
func (s *typeCheckStage) Stateful() bool { return true }

func (s *typeCheckStage) Apply(ctx context.Context, r *pipeline.Record) (*pipeline.Record, error) {
	out, errs := s.ApplyAll(ctx, []*pipeline.Record{r})
	return out[0], errs[0]
}

func (s *typeCheckStage) ApplyAll(ctx context.Context, records []*pipeline.Record) ([]*pipeline.Record, []error) {
	out := make([]*pipeline.Record, len(records))
	errs := make([]error, len(records))
	copy(out, records)
	if len(records) == 0 {
		return out, errs
	}

	files := make([]string, len(records))
	for i, r := range records {
		files[i] = r.Path
	}
	diags, err := s.checker.Check(ctx, s.root, files)
	if err != nil {
		for i := range errs {
			errs[i] = fmt.Errorf("type check: %w", err)
		}
		return nil, errs
	}

	seen := make(map[string]bool, len(records))
	for i, r := range records {
		seen[r.Path] = true
		found := diags[r.Path]
		if len(found) == 0 {
			continue
		}
		joined := make([]error, len(found))
		for j, d := range found {
			joined[j] = d
		}
		out[i] = nil
		if len(joined) == 1 {
			errs[i] = joined[0]
		} else {
			errs[i] = errors.Join(joined...)
		}
	}

	var outside []string
	for p := range diags {
		if !seen[p] {
			outside = append(outside, p)
		}
	}
	sort.Strings(outside)
	for _, p := range outside {
		for _, d := range diags[p] {
			s.logger.Error("type error outside build inputs", "path", p, "error", d)
		}
	}
	return out, errs
}
