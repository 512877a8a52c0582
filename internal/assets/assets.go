// Package assets assembles the pipelines for each asset class of a project:
// stylesheets, scripts, static resources, and vendored libraries.
package assets

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/aristath/frontbuild/internal/config"
	"github.com/aristath/frontbuild/internal/events"
	"github.com/aristath/frontbuild/internal/pipeline"
)

// Asset class names. They double as task names in the build graph.
const (
	ClassScripts = "scripts"
	ClassStyles  = "styles"
	ClassStatic  = "static"
	ClassLibs    = "libs"
)

// Env is everything a pipeline builder needs.
type Env struct {
	Root   string // absolute project root
	Config *config.Config
	Tools  Tools
	Bus    *events.EventBus
	Logger *slog.Logger
}

// SourceDir returns the absolute source directory.
func (e Env) SourceDir() string { return resolve(e.Root, e.Config.Source) }

// OutputDir returns the absolute output directory.
func (e Env) OutputDir() string { return resolve(e.Root, e.Config.Output) }

func (e Env) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

func (e Env) newPipeline(name string, sources []pipeline.GlobSet, stages []pipeline.Stage) *pipeline.AssetPipeline {
	return &pipeline.AssetPipeline{
		Name:        name,
		Sources:     sources,
		Stages:      stages,
		Concurrency: e.Config.Concurrency,
		Bus:         e.Bus,
		Logger:      e.logger().With("pipeline", name),
	}
}

func resolve(root, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(root, p)
}

// Class is one asset class and its pipeline.
type Class struct {
	Name     string
	Pipeline *pipeline.AssetPipeline

	// Watched classes are rebuilt on change; label and verb form the
	// change log line.
	Watched bool
	label   string
	verb    string
}

// ChangeMessage is the line logged when a watched file of this class changes.
func (c *Class) ChangeMessage(path string) string {
	return fmt.Sprintf("%s file %s has been changed. %s.", c.label, path, c.verb)
}

// Sources returns the globs that feed the class.
func (c *Class) Sources() []pipeline.GlobSet { return c.Pipeline.Sources }

// Classes builds every asset class in build order: scripts, styles, static,
// libs.
func Classes(env Env) ([]*Class, error) {
	builders := []struct {
		name    string
		label   string
		verb    string
		watched bool
		build   func(Env) (*pipeline.AssetPipeline, error)
	}{
		{ClassScripts, "TypeScript", "Compiling", true, Scripts},
		{ClassStyles, "SASS", "Compiling", true, Styles},
		{ClassStatic, "Resource", "Updating", true, Static},
		{ClassLibs, "Library", "Copying", false, Vendor},
	}

	classes := make([]*Class, 0, len(builders))
	for _, b := range builders {
		p, err := b.build(env)
		if err != nil {
			return nil, fmt.Errorf("building %s pipeline: %w", b.name, err)
		}
		classes = append(classes, &Class{
			Name:     b.name,
			Pipeline: p,
			Watched:  b.watched,
			label:    b.label,
			verb:     b.verb,
		})
	}
	return classes, nil
}
