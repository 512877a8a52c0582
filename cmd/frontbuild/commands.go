package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/aristath/frontbuild/internal/config"
	"github.com/aristath/frontbuild/internal/events"
	"github.com/aristath/frontbuild/internal/metrics"
	"github.com/aristath/frontbuild/internal/orchestrator"
	"github.com/aristath/frontbuild/internal/persistence"
	"github.com/aristath/frontbuild/internal/tui"
	"github.com/aristath/frontbuild/internal/watch"
)

// CleanCmd implements the 'clean' command.
type CleanCmd struct{}

func (c *CleanCmd) Run(ctx context.Context, g *Global, cli *CLI) error {
	oc, closeFn, err := openProject(ctx, g, cli, projectOptions{})
	if err != nil {
		return err
	}
	defer closeFn()
	return finish(g, oc, oc.Clean(ctx))
}

// BuildCmd implements the 'build' command.
type BuildCmd struct{}

func (b *BuildCmd) Run(ctx context.Context, g *Global, cli *CLI) error {
	oc, closeFn, err := openProject(ctx, g, cli, projectOptions{})
	if err != nil {
		return err
	}
	defer closeFn()
	return finish(g, oc, oc.Build(ctx))
}

// BuildCleanCmd implements the 'build-clean' command.
type BuildCleanCmd struct{}

func (b *BuildCleanCmd) Run(ctx context.Context, g *Global, cli *CLI) error {
	oc, closeFn, err := openProject(ctx, g, cli, projectOptions{})
	if err != nil {
		return err
	}
	defer closeFn()
	return finish(g, oc, oc.BuildClean(ctx))
}

// WatchCmd implements the 'watch' command.
type WatchCmd struct {
	Build       bool   `help:"Run a full build before watching"`
	TUI         bool   `name:"tui" help:"Show a live dashboard instead of log output"`
	MetricsAddr string `name:"metrics-addr" help:"Serve Prometheus metrics on this address (overrides watch.metrics_addr)"`
}

func (w *WatchCmd) Run(ctx context.Context, g *Global, cli *CLI) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	bus := events.NewEventBus()
	defer bus.Close()

	logger := g.Logger
	if w.TUI {
		// The dashboard owns the terminal; logs go to a file next to the history.
		f, err := openWatchLog(cli)
		if err != nil {
			return err
		}
		defer f.Close()
		logger = slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	reg := prom.NewRegistry()
	recorder := metrics.NewPrometheusRecorder(reg)

	oc, closeFn, err := openProject(ctx, g, cli, projectOptions{Bus: bus, Recorder: recorder, Logger: logger})
	if err != nil {
		return err
	}
	defer closeFn()

	addr := w.MetricsAddr
	if addr == "" {
		addr = oc.Config.Watch.MetricsAddr
	}
	if addr != "" {
		bound, err := metrics.Serve(ctx, addr, reg, logger)
		if err != nil {
			return fmt.Errorf("metrics server: %w", err)
		}
		go metrics.Consume(ctx, bus.SubscribeAll(1024), recorder)
		logger.Info("serving metrics", "addr", bound.String())
	}

	source, err := watch.NewFSSource(oc.WatchRoots(), watch.SourceOptions{Logger: logger})
	if err != nil {
		return err
	}
	defer source.Close()

	opts := orchestrator.WatchOptions{InitialBuild: w.Build}
	if !w.TUI {
		return oc.Watch(ctx, source, opts)
	}
	return runDashboard(ctx, cancel, oc, source, opts)
}

// runDashboard runs the watch loop behind the Bubble Tea dashboard. Quitting
// the dashboard stops the watch; a watch error quits the dashboard.
func runDashboard(ctx context.Context, cancel context.CancelFunc, oc *orchestrator.Context, source watch.Source, opts orchestrator.WatchOptions) error {
	names := make([]string, 0, len(oc.Classes))
	for _, cls := range oc.Classes {
		names = append(names, cls.Name)
	}
	model := tui.New(oc.Bus, "frontbuild watch  "+oc.Root, oc.Root, names...)
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	watchErr := make(chan error, 1)
	go func() {
		watchErr <- oc.Watch(ctx, source, opts)
		p.Quit()
	}()

	_, err := p.Run()
	cancel()
	werr := <-watchErr
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("dashboard: %w", err)
	}
	return werr
}

func openWatchLog(cli *CLI) (*os.File, error) {
	root, err := filepath.Abs(cli.Root)
	if err != nil {
		return nil, err
	}
	path := filepath.Join(root, ".frontbuild", "watch.log")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

// InitCmd implements the 'init' command.
type InitCmd struct {
	Force bool `help:"Overwrite existing configuration file"`
}

func (i *InitCmd) Run(g *Global, cli *CLI) error {
	path := cli.Config
	if path == "" {
		root, err := filepath.Abs(cli.Root)
		if err != nil {
			return err
		}
		path = filepath.Join(root, "frontbuild.yaml")
	}
	if err := config.Save(config.DefaultConfig(), path, i.Force); err != nil {
		if errors.Is(err, config.ErrExists) {
			return fmt.Errorf("%w (use --force to overwrite)", err)
		}
		return err
	}
	fmt.Fprintf(g.Stdout, "Wrote configuration to %s\n", path)
	return nil
}

// HistoryCmd implements the 'history' command.
type HistoryCmd struct {
	Limit int `short:"n" help:"Number of runs to show (0 for all)" default:"10"`
}

func (h *HistoryCmd) Run(ctx context.Context, g *Global, cli *CLI) error {
	root, err := filepath.Abs(cli.Root)
	if err != nil {
		return err
	}
	cfg, err := config.LoadDefault(root, cli.Config)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if !cfg.History.Enabled {
		return fmt.Errorf("build history is disabled (history.enabled: false)")
	}
	if _, err := os.Stat(historyPath(cfg, root)); errors.Is(err, os.ErrNotExist) {
		fmt.Fprintln(g.Stdout, "No builds recorded yet.")
		return nil
	}

	store, err := persistence.NewSQLiteStore(ctx, historyPath(cfg, root))
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.ListRuns(ctx, h.Limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(g.Stdout, "No builds recorded yet.")
		return nil
	}
	fmt.Fprintln(g.Stdout, renderRuns(runs))
	return nil
}

var (
	historyHeader    = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	historyCell      = lipgloss.NewStyle().Padding(0, 1)
	historySucceeded = historyCell.Foreground(lipgloss.Color("42"))
	historyFailed    = historyCell.Foreground(lipgloss.Color("196"))
)

func renderRuns(runs []*persistence.Run) string {
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		duration := "-"
		if d := r.Duration(); d > 0 {
			duration = d.Round(time.Millisecond).String()
		}
		msg, _, _ := strings.Cut(r.Error, "\n")
		if len(msg) > 60 {
			msg = msg[:57] + "..."
		}
		rows = append(rows, []string{
			r.ID[:min(8, len(r.ID))],
			r.Command,
			r.Status,
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			duration,
			msg,
		})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("RUN", "COMMAND", "STATUS", "STARTED", "DURATION", "ERROR").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return historyHeader
			}
			if col == 2 && row >= 0 && row < len(runs) {
				switch runs[row].Status {
				case persistence.RunSucceeded:
					return historySucceeded
				case persistence.RunFailed:
					return historyFailed
				}
			}
			return historyCell
		})
	return t.String()
}
