package assets

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aristath/frontbuild/internal/pipeline"
)

// compiledExts maps an output extension to the source extensions that
// compile to it.
var compiledExts = map[string][]string{
	".js":      {".ts"},
	".js.map":  {".ts"},
	".css":     {".scss"},
	".css.map": {".scss"},
}

// Static builds the resource copy pipeline. Sources of the compiled classes
// are excluded by the configured globs; a resource that would overwrite a
// compiled output (app.js next to app.ts) and anything under the vendor
// destination are dropped.
func Static(env Env) (*pipeline.AssetPipeline, error) {
	cfg := env.Config
	patterns := append([]string(nil), cfg.Static.Globs...)
	patterns = append(patterns, "!"+path.Clean(cfg.Vendor.Dest)+"/**")
	src, err := pipeline.ParseGlobs(env.SourceDir(), patterns...)
	if err != nil {
		return nil, err
	}

	stages := []pipeline.Stage{
		pipeline.Filter("compiled-outputs", func(r *pipeline.Record) bool {
			return !shadowsCompiledOutput(r)
		}),
		pipeline.Emit(env.OutputDir()),
	}
	return env.newPipeline(ClassStatic, []pipeline.GlobSet{src}, stages), nil
}

func shadowsCompiledOutput(r *pipeline.Record) bool {
	for ext, sources := range compiledExts {
		stem, ok := strings.CutSuffix(r.Rel, ext)
		if !ok || stem == "" {
			continue
		}
		for _, srcExt := range sources {
			if _, err := os.Stat(filepath.Join(r.Base, filepath.FromSlash(stem+srcExt))); err == nil {
				return true
			}
		}
	}
	return false
}

// Vendor builds the library copy pipeline. The globs are resolved under
// every dependency root and written below the vendor destination with their
// root-relative paths preserved.
func Vendor(env Env) (*pipeline.AssetPipeline, error) {
	cfg := env.Config
	var sources []pipeline.GlobSet
	for _, root := range cfg.Vendor.Roots {
		set, err := pipeline.ParseGlobs(resolve(env.Root, root), cfg.Vendor.Globs...)
		if err != nil {
			return nil, err
		}
		sources = append(sources, set)
	}

	dest := path.Clean(filepath.ToSlash(cfg.Vendor.Dest))
	stages := []pipeline.Stage{
		pipeline.StageFunc("vendor-dest", func(_ context.Context, r *pipeline.Record) (*pipeline.Record, error) {
			cp := r.Clone()
			cp.DestRel = path.Join(dest, r.Rel)
			return cp, nil
		}),
		pipeline.Emit(env.OutputDir()),
	}
	return env.newPipeline(ClassLibs, sources, stages), nil
}
