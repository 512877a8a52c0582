package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/aristath/frontbuild/internal/assets"
	"github.com/aristath/frontbuild/internal/config"
	"github.com/aristath/frontbuild/internal/events"
	"github.com/aristath/frontbuild/internal/metrics"
	"github.com/aristath/frontbuild/internal/orchestrator"
	"github.com/aristath/frontbuild/internal/persistence"
	"github.com/aristath/frontbuild/internal/toolchain"
)

// projectOptions are the per-command extras for openProject.
type projectOptions struct {
	Bus      *events.EventBus
	Recorder metrics.Recorder
	Logger   *slog.Logger
}

// openProject loads the configuration under the root and assembles the
// orchestrator. The returned close func releases the history store.
func openProject(ctx context.Context, g *Global, cli *CLI, opts projectOptions) (*orchestrator.Context, func(), error) {
	root, err := filepath.Abs(cli.Root)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve root: %w", err)
	}
	cfg, err := config.LoadDefault(root, cli.Config)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = g.Logger
	}

	runner := toolchain.NewRunner(g.Processes, logger)
	tools, err := assets.NewTools(cfg, root, runner)
	if err != nil {
		return nil, nil, fmt.Errorf("configure toolchain: %w", err)
	}

	store := openHistory(ctx, cfg, root, logger)
	closeFn := func() {
		if store != nil {
			if err := store.Close(); err != nil {
				logger.Warn("failed to close history", "error", err)
			}
		}
	}

	o := orchestrator.Options{
		Root:     root,
		Config:   cfg,
		Tools:    tools,
		Bus:      opts.Bus,
		Recorder: opts.Recorder,
		Logger:   logger,
	}
	if store != nil { // keep a nil *SQLiteStore out of the interface
		o.Store = store
	}
	oc, err := orchestrator.New(o)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return oc, closeFn, nil
}

// openHistory opens the history database, or returns nil when history is
// disabled or unavailable. History never blocks a build.
func openHistory(ctx context.Context, cfg *config.Config, root string, logger *slog.Logger) *persistence.SQLiteStore {
	if !cfg.History.Enabled || cfg.History.Path == "" {
		return nil
	}
	store, err := persistence.NewSQLiteStore(ctx, historyPath(cfg, root))
	if err != nil {
		logger.Warn("build history disabled", "error", err)
		return nil
	}
	return store
}

func historyPath(cfg *config.Config, root string) string {
	if filepath.IsAbs(cfg.History.Path) {
		return cfg.History.Path
	}
	return filepath.Join(root, cfg.History.Path)
}

// finish prints the report and maps a failed command to errReported.
func finish(g *Global, oc *orchestrator.Context, rep *orchestrator.Report) error {
	if rep.Err != nil {
		fmt.Fprint(g.Stderr, rep.Render(oc.Root))
		return errReported
	}
	fmt.Fprint(g.Stdout, rep.Render(oc.Root))
	return nil
}
