// Package orchestrator wires the asset pipelines into the build task graph
// and implements the clean, build, build-clean and watch commands.
package orchestrator

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/aristath/frontbuild/internal/assets"
	"github.com/aristath/frontbuild/internal/config"
	"github.com/aristath/frontbuild/internal/events"
	"github.com/aristath/frontbuild/internal/metrics"
	"github.com/aristath/frontbuild/internal/persistence"
	"github.com/aristath/frontbuild/internal/pipeline"
	"github.com/aristath/frontbuild/internal/scheduler"
)

// Options configures a Context.
type Options struct {
	Root   string // project root; must be absolute
	Config *config.Config
	Tools  assets.Tools

	Bus      *events.EventBus  // optional
	Recorder metrics.Recorder  // optional, defaults to NoopRecorder
	Store    persistence.Store // optional, nil disables history
	Logger   *slog.Logger      // optional
}

// Context is constructed once per invocation and shared by every command.
type Context struct {
	Root     string
	OutDir   string
	Config   *config.Config
	Bus      *events.EventBus
	Recorder metrics.Recorder
	Store    persistence.Store
	Logger   *slog.Logger

	Classes []*assets.Class
	Graph   *scheduler.Graph

	mu      sync.Mutex
	results map[string]*pipeline.Result // latest result per class
}

// New builds the asset classes and compiles the task graph.
func New(opts Options) (*Context, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("orchestrator: config is required")
	}
	if !filepath.IsAbs(opts.Root) {
		return nil, fmt.Errorf("orchestrator: root %q is not absolute", opts.Root)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Recorder == nil {
		opts.Recorder = metrics.NoopRecorder{}
	}

	env := assets.Env{
		Root:   opts.Root,
		Config: opts.Config,
		Tools:  opts.Tools,
		Bus:    opts.Bus,
		Logger: opts.Logger,
	}
	classes, err := assets.Classes(env)
	if err != nil {
		return nil, err
	}

	c := &Context{
		Root:     opts.Root,
		OutDir:   env.OutputDir(),
		Config:   opts.Config,
		Bus:      opts.Bus,
		Recorder: opts.Recorder,
		Store:    opts.Store,
		Logger:   opts.Logger,
		Classes:  classes,
		results:  make(map[string]*pipeline.Result),
	}

	graph, err := scheduler.Compile(c.taskDefs())
	if err != nil {
		return nil, err
	}
	graph.SetEventBus(opts.Bus)
	c.Graph = graph
	return c, nil
}

// Class returns the asset class with the given name.
func (c *Context) Class(name string) (*assets.Class, bool) {
	for _, cls := range c.Classes {
		if cls.Name == name {
			return cls, true
		}
	}
	return nil, false
}

// Result returns the latest pipeline result of a class.
func (c *Context) Result(name string) (*pipeline.Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	res, ok := c.results[name]
	return res, ok
}

func (c *Context) setResult(name string, res *pipeline.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results[name] = res
}

func (c *Context) rel(path string) string { return relPath(c.Root, path) }

// relPath shortens path for display; paths outside root stay absolute.
func relPath(root, path string) string {
	if root == "" {
		return path
	}
	r, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(r, "..") {
		return path
	}
	return filepath.ToSlash(r)
}
