package assets

import (
	"context"
	"path"
	"strings"

	"github.com/aristath/frontbuild/internal/pipeline"
	"github.com/aristath/frontbuild/internal/toolchain"
)

// Styles builds the stylesheet pipeline:
// lint, skip partials, compile, post-process, write maps, emit.
func Styles(env Env) (*pipeline.AssetPipeline, error) {
	cfg := env.Config
	src, err := pipeline.ParseGlobs(env.SourceDir(), cfg.Styles.Globs...)
	if err != nil {
		return nil, err
	}

	stages := []pipeline.Stage{
		Lint(cfg.Lint.Mode, env.Root, env.Tools.StyleLinter, env.logger()),
		pipeline.Filter("partials", func(r *pipeline.Record) bool {
			return !IsPartial(r.Rel)
		}),
		pipeline.InitSourceMaps(),
		CompileStyles(env.Tools.Styles),
	}
	for _, post := range env.Tools.StylePost {
		stages = append(stages, PostProcess(post))
	}
	stages = append(stages,
		pipeline.WriteSourceMaps(cfg.SourceRoot),
		pipeline.Emit(env.OutputDir()),
	)
	return env.newPipeline(ClassStyles, []pipeline.GlobSet{src}, stages), nil
}

// IsPartial reports whether a stylesheet is only meant to be imported.
func IsPartial(rel string) bool {
	return strings.HasPrefix(path.Base(rel), "_")
}

// CompileStyles compiles each stylesheet root to CSS. The compiler's map
// becomes the first link of the record's chain.
func CompileStyles(c toolchain.StyleCompiler) pipeline.Stage {
	return pipeline.StageFunc("sass", func(ctx context.Context, r *pipeline.Record) (*pipeline.Record, error) {
		out, err := c.CompileStyle(ctx, toolchain.StyleInput{Path: r.Path, Base: r.Base, Content: r.Content})
		if err != nil {
			return nil, err
		}
		next := r.WithExt(".css")
		if out.Map != nil {
			out.Map.File = next.DestRel
		}
		return next.Rewrite(out.CSS, out.Map), nil
	})
}

// PostProcess runs compiled CSS through p and extends the map chain.
func PostProcess(p toolchain.PostProcessor) pipeline.Stage {
	return pipeline.StageFunc(p.Name(), func(ctx context.Context, r *pipeline.Record) (*pipeline.Record, error) {
		out, err := p.Process(ctx, toolchain.PostInput{Name: r.DestRel, Content: r.Content})
		if err != nil {
			return nil, err
		}
		return r.Rewrite(out.CSS, out.Map), nil
	})
}
