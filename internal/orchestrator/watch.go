package orchestrator

import (
	"context"
	"sort"

	"github.com/aristath/frontbuild/internal/assets"
	"github.com/aristath/frontbuild/internal/watch"
)

// WatchOptions configures Watch.
type WatchOptions struct {
	// InitialBuild runs a full build before watching starts.
	InitialBuild bool
}

// WatchRoots returns the directories the watched classes read from.
func (c *Context) WatchRoots() []string {
	seen := make(map[string]bool)
	var roots []string
	for _, cls := range c.Classes {
		cls := cls
		if !cls.Watched {
			continue
		}
		for _, g := range cls.Sources() {
			if !seen[g.Base] {
				seen[g.Base] = true
				roots = append(roots, g.Base)
			}
		}
	}
	sort.Strings(roots)
	return roots
}

// Watch rebuilds each watched class when one of its files changes, until ctx
// is done or source closes. Build failures are logged and never end the
// watch.
func (c *Context) Watch(ctx context.Context, source watch.Source, opts WatchOptions) error {
	if opts.InitialBuild {
		if rep := c.Build(ctx); rep.Err != nil {
			c.Logger.Warn("initial build failed, watching anyway", "failures", len(rep.Failures))
		}
	}

	w := watch.NewWatcher(source, c.Bus, c.Logger)
	for _, cls := range c.Classes {
		if !cls.Watched {
			continue
		}
		trigger := watch.NewTrigger(cls.Name, c.Config.Watch.Debounce, c.rebuild(cls),
			watch.WithEventBus(c.Bus),
			watch.WithLogger(c.Logger),
		)
		trigger.Start(ctx)

		matchers := make([]watch.Matcher, 0, len(cls.Sources()))
		for _, g := range cls.Sources() {
			matchers = append(matchers, g)
		}
		w.Subscribe(cls.Name, func(ev watch.ChangeEvent) {
			c.Logger.Info(cls.ChangeMessage(c.rel(ev.Path)))
			trigger.Notify()
		}, matchers...)
	}

	c.Logger.Info("watching for changes", "roots", c.WatchRoots())
	err := w.Run(ctx)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// rebuild runs one class through the graph so it is reported and recorded
// like any other command.
func (c *Context) rebuild(cls *assets.Class) watch.RunFunc {
	return func(ctx context.Context) error {
		return c.runCommand(ctx, "watch:"+cls.Name, cls.Name).Err
	}
}
