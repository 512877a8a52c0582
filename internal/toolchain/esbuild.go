package toolchain

import (
	"context"
	"fmt"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/aristath/frontbuild/internal/builderrors"
	"github.com/aristath/frontbuild/internal/sourcemap"
)

// ScriptOptions configures TypeScript transpilation.
type ScriptOptions struct {
	Target      string // es2015 ... es2024, esnext
	Format      string // esm (default), cjs, iife
	Minify      bool
	TsconfigRaw string // JSON passed through to esbuild
}

// EsbuildScripts transpiles TypeScript one file at a time with esbuild.
// It performs no type checking; see TscChecker.
type EsbuildScripts struct {
	Options ScriptOptions
}

// NewEsbuildScripts validates opts and returns a compiler.
func NewEsbuildScripts(opts ScriptOptions) (*EsbuildScripts, error) {
	if _, err := parseTarget(opts.Target); err != nil {
		return nil, err
	}
	if _, err := parseFormat(opts.Format); err != nil {
		return nil, err
	}
	return &EsbuildScripts{Options: opts}, nil
}

// CompileScript implements ScriptCompiler.
func (e *EsbuildScripts) CompileScript(ctx context.Context, in ScriptInput) (ScriptOutput, error) {
	if err := ctx.Err(); err != nil {
		return ScriptOutput{}, err
	}
	target, _ := parseTarget(e.Options.Target)
	format, _ := parseFormat(e.Options.Format)

	result := api.Transform(string(in.Content), api.TransformOptions{
		Loader:            api.LoaderTS,
		Sourcefile:        in.Rel,
		Sourcemap:         api.SourceMapExternal,
		SourcesContent:    api.SourcesContentInclude,
		Target:            target,
		Format:            format,
		MinifyWhitespace:  e.Options.Minify,
		MinifySyntax:      e.Options.Minify,
		MinifyIdentifiers: e.Options.Minify,
		TsconfigRaw:       e.Options.TsconfigRaw,
	})
	if len(result.Errors) > 0 {
		return ScriptOutput{}, esbuildError("esbuild", in.Path, result.Errors[0])
	}

	m, err := sourcemap.Parse(result.Map)
	if err != nil {
		return ScriptOutput{}, fmt.Errorf("esbuild map: %w", err)
	}
	out := ScriptOutput{JS: result.Code, Map: m}
	for _, w := range result.Warnings {
		out.Warnings = append(out.Warnings, formatMessage(w))
	}
	return out, nil
}

// CSSOptions configures an esbuild CSS pass.
type CSSOptions struct {
	Name    string
	Targets []string // browserslist-style queries, e.g. "ie >= 9"
	Minify  bool
}

// EsbuildCSS lowers and prefixes CSS for the configured browser targets and
// optionally minifies it. Minification also merges duplicate rules.
type EsbuildCSS struct {
	name    string
	engines []api.Engine
	minify  bool
}

// NewEsbuildCSS builds a post-processor from opts.
func NewEsbuildCSS(opts CSSOptions) (*EsbuildCSS, error) {
	engines, err := ParseBrowserTargets(opts.Targets)
	if err != nil {
		return nil, err
	}
	name := opts.Name
	if name == "" {
		name = "css"
	}
	return &EsbuildCSS{name: name, engines: engines, minify: opts.Minify}, nil
}

func (e *EsbuildCSS) Name() string { return e.name }

// Process implements PostProcessor.
func (e *EsbuildCSS) Process(ctx context.Context, in PostInput) (PostOutput, error) {
	if err := ctx.Err(); err != nil {
		return PostOutput{}, err
	}
	result := api.Transform(string(in.Content), api.TransformOptions{
		Loader:           api.LoaderCSS,
		Sourcefile:       in.Name,
		Sourcemap:        api.SourceMapExternal,
		SourcesContent:   api.SourcesContentExclude,
		Engines:          e.engines,
		MinifyWhitespace: e.minify,
		MinifySyntax:     e.minify,
	})
	if len(result.Errors) > 0 {
		return PostOutput{}, esbuildError(e.name, in.Name, result.Errors[0])
	}
	m, err := sourcemap.Parse(result.Map)
	if err != nil {
		return PostOutput{}, fmt.Errorf("%s map: %w", e.name, err)
	}
	m.File = in.Name
	return PostOutput{CSS: result.Code, Map: m}, nil
}

func esbuildError(tool, path string, msg api.Message) *builderrors.CompileError {
	ce := &builderrors.CompileError{Tool: tool, Path: path, Message: msg.Text}
	if msg.Location != nil {
		ce.Line = msg.Location.Line
		ce.Column = msg.Location.Column + 1
	}
	return ce
}

func formatMessage(msg api.Message) string {
	if msg.Location == nil {
		return msg.Text
	}
	return fmt.Sprintf("%s:%d:%d: %s", msg.Location.File, msg.Location.Line, msg.Location.Column+1, msg.Text)
}

var targets = map[string]api.Target{
	"":       api.ES2015,
	"es2015": api.ES2015,
	"es2016": api.ES2016,
	"es2017": api.ES2017,
	"es2018": api.ES2018,
	"es2019": api.ES2019,
	"es2020": api.ES2020,
	"es2021": api.ES2021,
	"es2022": api.ES2022,
	"es2023": api.ES2023,
	"es2024": api.ES2024,
	"esnext": api.ESNext,
}

func parseTarget(s string) (api.Target, error) {
	t, ok := targets[strings.ToLower(s)]
	if !ok {
		return 0, fmt.Errorf("unsupported script target %q", s)
	}
	return t, nil
}

func parseFormat(s string) (api.Format, error) {
	switch strings.ToLower(s) {
	case "", "esm":
		return api.FormatESModule, nil
	case "cjs":
		return api.FormatCommonJS, nil
	case "iife":
		return api.FormatIIFE, nil
	}
	return 0, fmt.Errorf("unsupported script format %q", s)
}

var browserEngines = map[string]api.EngineName{
	"chrome":  api.EngineChrome,
	"edge":    api.EngineEdge,
	"ff":      api.EngineFirefox,
	"firefox": api.EngineFirefox,
	"ie":      api.EngineIE,
	"ios":     api.EngineIOS,
	"ios_saf": api.EngineIOS,
	"opera":   api.EngineOpera,
	"safari":  api.EngineSafari,
}

// unmapped browsers have no esbuild engine; their queries are accepted and
// ignored.
var unmappedBrowsers = map[string]bool{
	"android": true,
	"and_chr": true,
	"bb":      true,
	"ie_mob":  true,
	"op_mini": true,
	"samsung": true,
}

// ParseBrowserTargets converts queries of the form "<browser> >= <version>"
// into esbuild engines. Multiple queries for one engine keep the lowest
// version.
func ParseBrowserTargets(queries []string) ([]api.Engine, error) {
	lowest := map[api.EngineName]string{}
	var order []api.EngineName
	for _, q := range queries {
		name, version, ok := strings.Cut(q, ">=")
		if !ok {
			return nil, fmt.Errorf("browser target %q: expected \"<browser> >= <version>\"", q)
		}
		name = strings.ToLower(strings.TrimSpace(name))
		version = strings.TrimSpace(version)
		if version == "" {
			return nil, fmt.Errorf("browser target %q: missing version", q)
		}
		engine, known := browserEngines[name]
		if !known {
			if unmappedBrowsers[name] {
				continue
			}
			return nil, fmt.Errorf("browser target %q: unknown browser %q", q, name)
		}
		prev, seen := lowest[engine]
		if !seen {
			order = append(order, engine)
		}
		if !seen || versionLess(version, prev) {
			lowest[engine] = version
		}
	}
	engines := make([]api.Engine, 0, len(order))
	for _, name := range order {
		engines = append(engines, api.Engine{Name: name, Version: lowest[name]})
	}
	return engines, nil
}

// versionLess compares dotted numeric versions.
func versionLess(a, b string) bool {
	as, bs := strings.Split(a, "."), strings.Split(b, ".")
	for i := 0; i < len(as) || i < len(bs); i++ {
		var x, y int
		if i < len(as) {
			fmt.Sscanf(as[i], "%d", &x)
		}
		if i < len(bs) {
			fmt.Sscanf(bs[i], "%d", &y)
		}
		if x != y {
			return x < y
		}
	}
	return false
}
