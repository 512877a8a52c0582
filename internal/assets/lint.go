package assets

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aristath/frontbuild/internal/builderrors"
	"github.com/aristath/frontbuild/internal/config"
	"github.com/aristath/frontbuild/internal/pipeline"
	"github.com/aristath/frontbuild/internal/toolchain"
)

// lintStage hands every record of a run to the linter in one invocation.
// Its effect depends on the mode: off passes records through, warn logs
// findings, fail turns a file's findings into a LintError.
type lintStage struct {
	mode   string
	root   string
	linter toolchain.Linter
	logger *slog.Logger
}

// Lint returns the lint stage for a class. A nil linter behaves like mode off.
func Lint(mode, root string, linter toolchain.Linter, logger *slog.Logger) pipeline.Stage {
	if logger == nil {
		logger = slog.Default()
	}
	return &lintStage{mode: mode, root: root, linter: linter, logger: logger}
}

func (s *lintStage) Name() string   { return "lint" }
func (s *lintStage) Stateful() bool { return true }

func (s *lintStage) Apply(ctx context.Context, r *pipeline.Record) (*pipeline.Record, error) {
	out, errs := s.ApplyAll(ctx, []*pipeline.Record{r})
	return out[0], errs[0]
}

func (s *lintStage) ApplyAll(ctx context.Context, records []*pipeline.Record) ([]*pipeline.Record, []error) {
	out := make([]*pipeline.Record, len(records))
	errs := make([]error, len(records))
	copy(out, records)
	if s.mode == config.LintOff || s.linter == nil || len(records) == 0 {
		return out, errs
	}

	files := make([]string, len(records))
	for i, r := range records {
		files[i] = r.Path
	}
	findings, err := s.linter.Lint(ctx, s.root, files)
	if err != nil {
		if s.mode == config.LintFail {
			for i := range errs {
				errs[i] = fmt.Errorf("%s: %w", s.linter.Name(), err)
			}
			return nil, errs
		}
		s.logger.Warn("linter did not run", "linter", s.linter.Name(), "error", err)
		return out, errs
	}

	byPath := make(map[string][]builderrors.Finding)
	for _, f := range findings {
		byPath[f.Path] = append(byPath[f.Path], f)
	}
	for i, r := range records {
		found := byPath[r.Path]
		if len(found) == 0 {
			continue
		}
		if s.mode == config.LintFail {
			errs[i] = &builderrors.LintError{Path: r.Path, Findings: found, Fatal: true}
			out[i] = nil
			continue
		}
		for _, f := range found {
			s.logger.Warn("lint", "linter", s.linter.Name(), "path", f.Path, "line", f.Line, "rule", f.Rule, "message", f.Message)
		}
		cp := r.Clone()
		cp.Findings = append(cp.Findings, found...)
		out[i] = cp
	}
	return out, errs
}
