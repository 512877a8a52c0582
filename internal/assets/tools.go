package assets

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/aristath/frontbuild/internal/config"
	"github.com/aristath/frontbuild/internal/toolchain"
)

// Tools are the collaborators the pipelines call out to. A nil TypeChecker
// or linter disables that step.
type Tools struct {
	Styles       toolchain.StyleCompiler
	Scripts      toolchain.ScriptCompiler
	TypeChecker  toolchain.TypeChecker
	StyleLinter  toolchain.Linter
	ScriptLinter toolchain.Linter
	StylePost    []toolchain.PostProcessor
}

// NewTools wires the default toolchain for cfg: sass for stylesheets, esbuild
// for scripts and CSS post-processing, tsc for type checking, and the
// configured lint commands.
func NewTools(cfg *config.Config, root string, runner *toolchain.Runner) (Tools, error) {
	var t Tools

	loadPaths := make([]string, 0, len(cfg.Styles.LoadPaths))
	for _, p := range cfg.Styles.LoadPaths {
		loadPaths = append(loadPaths, resolve(root, p))
	}
	t.Styles = &toolchain.SassCLI{Runner: runner, Command: cfg.Tools.Sass, LoadPaths: loadPaths}

	tsconfig, err := readOptional(resolve(root, cfg.Scripts.Tsconfig), cfg.Scripts.Tsconfig != "")
	if err != nil {
		return Tools{}, err
	}
	scripts, err := toolchain.NewEsbuildScripts(toolchain.ScriptOptions{
		Target:      cfg.Scripts.Target,
		Format:      cfg.Scripts.Format,
		Minify:      cfg.Scripts.Minify,
		TsconfigRaw: string(tsconfig),
	})
	if err != nil {
		return Tools{}, err
	}
	t.Scripts = scripts

	if cfg.Scripts.TypeCheck {
		checker := &toolchain.TscChecker{Runner: runner, Command: cfg.Tools.Tsc}
		if tsconfig != nil {
			checker.Project = resolve(root, cfg.Scripts.Tsconfig)
		}
		t.TypeChecker = checker
	}

	prefix, err := toolchain.NewEsbuildCSS(toolchain.CSSOptions{Name: "prefix", Targets: cfg.Styles.Targets})
	if err != nil {
		return Tools{}, fmt.Errorf("style targets: %w", err)
	}
	t.StylePost = append(t.StylePost, prefix)
	if cfg.Styles.Minify {
		minify, err := toolchain.NewEsbuildCSS(toolchain.CSSOptions{Name: "minify", Targets: cfg.Styles.Targets, Minify: true})
		if err != nil {
			return Tools{}, err
		}
		t.StylePost = append(t.StylePost, minify)
	}

	if cfg.Lint.Mode != config.LintOff {
		t.StyleLinter = newLinter("sass-lint", cfg.Lint.Styles, root, runner)
		t.ScriptLinter = newLinter("tslint", cfg.Lint.Scripts, root, runner)
	}
	return t, nil
}

func newLinter(tool string, lc config.LinterConfig, root string, runner *toolchain.Runner) toolchain.Linter {
	if lc.Command == "" {
		return nil
	}
	cfgFile := ""
	if lc.Config != "" {
		cfgFile = resolve(root, lc.Config)
	}
	return &toolchain.CommandLinter{
		Tool:       tool,
		Runner:     runner,
		Command:    lc.Command,
		Args:       lc.Args,
		ConfigFile: cfgFile,
		Format:     lc.Format,
	}
}

// readOptional returns nil when want is false or the file does not exist.
func readOptional(path string, want bool) ([]byte, error) {
	if !want {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return data, nil
}
