// Package toolchain wraps the external programs and libraries that do the
// actual compiling, checking, and linting. Pipelines depend only on the
// interfaces declared here.
package toolchain

import (
	"context"

	"github.com/aristath/frontbuild/internal/builderrors"
	"github.com/aristath/frontbuild/internal/sourcemap"
)

// StyleInput is one stylesheet compile root.
type StyleInput struct {
	Path    string // absolute path of the .scss file
	Base    string // source root; map sources are made relative to it
	Content []byte
}

// StyleOutput is compiled CSS plus the map back to the stylesheet sources.
type StyleOutput struct {
	CSS []byte
	Map *sourcemap.Map
}

// StyleCompiler compiles SCSS to CSS. Syntax errors are returned as
// *builderrors.CompileError.
type StyleCompiler interface {
	CompileStyle(ctx context.Context, in StyleInput) (StyleOutput, error)
}

// ScriptInput is one TypeScript source file.
type ScriptInput struct {
	Path    string
	Rel     string // name recorded in the map
	Content []byte
}

// ScriptOutput is transpiled JavaScript plus its map.
type ScriptOutput struct {
	JS       []byte
	Map      *sourcemap.Map
	Warnings []string
}

// ScriptCompiler transpiles one TypeScript file. Syntax errors are returned
// as *builderrors.CompileError.
type ScriptCompiler interface {
	CompileScript(ctx context.Context, in ScriptInput) (ScriptOutput, error)
}

// TypeChecker checks a whole project at once and returns diagnostics keyed
// by absolute file path. An error means the checker itself could not run.
type TypeChecker interface {
	Check(ctx context.Context, root string, files []string) (map[string][]*builderrors.CompileError, error)
}

// Linter checks files against a rule set.
type Linter interface {
	Name() string
	Lint(ctx context.Context, root string, files []string) ([]builderrors.Finding, error)
}

// PostInput is CSS handed to a post-processor.
type PostInput struct {
	Name    string // file name recorded as the map source
	Content []byte
}

// PostOutput is processed CSS and a map back to the input.
type PostOutput struct {
	CSS []byte
	Map *sourcemap.Map
}

// PostProcessor rewrites compiled CSS, e.g. prefixing or minifying.
type PostProcessor interface {
	Name() string
	Process(ctx context.Context, in PostInput) (PostOutput, error)
}
