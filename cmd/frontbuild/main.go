package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/aristath/frontbuild/internal/toolchain"
)

var version = "dev"

// errReported means the failure was already printed as a build report.
var errReported = errors.New("build failed")

// Global is shared state bound into every command.
type Global struct {
	Logger    *slog.Logger
	Processes *toolchain.ProcessManager
	Stdout    io.Writer
	Stderr    io.Writer
}

// CLI definition & global flags.
type CLI struct {
	Config  string           `short:"c" help:"Project configuration file (default: <root>/frontbuild.yaml)" type:"path"`
	Root    string           `short:"r" help:"Project root directory" default:"." type:"path"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Clean      CleanCmd      `cmd:"" help:"Remove the output directory"`
	Build      BuildCmd      `cmd:"" help:"Compile scripts and styles, copy resources and libraries"`
	BuildClean BuildCleanCmd `cmd:"" name:"build-clean" help:"Clean, then build"`
	Watch      WatchCmd      `cmd:"" help:"Rebuild asset classes as their sources change"`
	Init       InitCmd       `cmd:"" help:"Write the default configuration file"`
	History    HistoryCmd    `cmd:"" help:"List recent build runs"`
}

// AfterApply runs after flag parsing; setup logging once.
func (c *CLI) AfterApply(g *Global) error {
	level := slog.LevelInfo
	if c.Verbose {
		level = slog.LevelDebug
	}
	g.Logger = slog.New(slog.NewTextHandler(g.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(g.Logger)
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run parses args, executes the selected command, and returns the exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	var cli CLI
	g := &Global{
		Logger:    slog.Default(),
		Processes: toolchain.NewProcessManager(),
		Stdout:    stdout,
		Stderr:    stderr,
	}

	parser, err := kong.New(&cli,
		kong.Name("frontbuild"),
		kong.Description("Front-end build orchestrator: TypeScript, SCSS, resources and vendored libraries."),
		kong.UsageOnError(),
		kong.Writers(stdout, stderr),
		kong.Vars{"version": version},
		kong.Bind(g),
		kong.BindTo(ctx, (*context.Context)(nil)),
	)
	if err != nil {
		fmt.Fprintf(stderr, "frontbuild: %v\n", err)
		return 1
	}

	kctx, err := parser.Parse(args)
	if err != nil {
		fmt.Fprintf(stderr, "frontbuild: %v\n", err)
		return 1
	}

	err = kctx.Run(&cli)

	// Tools still running after an interrupt are killed with their process groups.
	if killErr := g.Processes.KillAll(); killErr != nil {
		g.Logger.Warn("failed to stop tool processes", "error", killErr)
	}

	if err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintf(stderr, "frontbuild: %v\n", err)
		}
		return 1
	}
	return 0
}
