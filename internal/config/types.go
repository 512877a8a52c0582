package config

import "time"

// Lint modes.
const (
	LintOff  = "off"  // lint stage passes records through untouched
	LintWarn = "warn" // findings are logged, the build continues
	LintFail = "fail" // any finding fails the file
)

// LinterConfig describes an external lint command.
type LinterConfig struct {
	Command string `yaml:"command"`
	// Args precede the file list; "{config}" expands to Config.
	Args []string `yaml:"args,omitempty"`
	// Config is the rule file, relative to the project root.
	Config string `yaml:"config,omitempty"`
	Format string `yaml:"format" validate:"omitempty,oneof=unix compact prose"`
}

// LintConfig selects the lint mode and the linter per asset class.
type LintConfig struct {
	Mode    string       `yaml:"mode" validate:"oneof=off warn fail"`
	Styles  LinterConfig `yaml:"styles"`
	Scripts LinterConfig `yaml:"scripts"`
}

// StylesConfig configures SCSS compilation.
type StylesConfig struct {
	Globs     []string `yaml:"globs" validate:"min=1"`
	Targets   []string `yaml:"targets"`    // browser queries, e.g. "ie >= 9"
	LoadPaths []string `yaml:"load_paths"` // extra sass --load-path entries
	Minify    bool     `yaml:"minify"`
}

// ScriptsConfig configures TypeScript compilation.
type ScriptsConfig struct {
	Globs     []string `yaml:"globs" validate:"min=1"`
	Target    string   `yaml:"target" validate:"oneof=es2015 es2016 es2017 es2018 es2019 es2020 es2021 es2022 es2023 es2024 esnext"`
	Format    string   `yaml:"format" validate:"oneof=esm cjs iife"`
	Minify    bool     `yaml:"minify"`
	TypeCheck bool     `yaml:"type_check"`
	Tsconfig  string   `yaml:"tsconfig,omitempty"` // passed to tsc -p
}

// StaticConfig selects resources copied verbatim.
type StaticConfig struct {
	Globs []string `yaml:"globs" validate:"min=1"`
}

// VendorConfig selects runtime libraries copied from dependency roots.
type VendorConfig struct {
	Roots []string `yaml:"roots" validate:"min=1,dive,required"`
	Globs []string `yaml:"globs"`
	Dest  string   `yaml:"dest" validate:"required"` // subdirectory of the output
}

// WatchConfig configures incremental rebuilds.
type WatchConfig struct {
	Debounce    time.Duration `yaml:"debounce" validate:"min=0"`
	MetricsAddr string        `yaml:"metrics_addr,omitempty"`
}

// ToolsConfig overrides external tool executables.
type ToolsConfig struct {
	Sass string `yaml:"sass"`
	Tsc  string `yaml:"tsc"`
}

// HistoryConfig configures the build history database.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"` // relative to the project root
}

// Config is the top-level configuration.
type Config struct {
	Source      string        `yaml:"source" validate:"required"`
	Output      string        `yaml:"output" validate:"required"`
	SourceRoot  string        `yaml:"source_root"` // sourceRoot recorded in written maps
	Concurrency int           `yaml:"concurrency" validate:"min=1,max=256"`
	Styles      StylesConfig  `yaml:"styles"`
	Scripts     ScriptsConfig `yaml:"scripts"`
	Static      StaticConfig  `yaml:"static"`
	Vendor      VendorConfig  `yaml:"vendor"`
	Lint        LintConfig    `yaml:"lint"`
	Watch       WatchConfig   `yaml:"watch"`
	Tools       ToolsConfig   `yaml:"tools"`
	History     HistoryConfig `yaml:"history"`
}
