package config

import "time"

// DefaultConfig returns the configuration of the original project layout:
// sources in src/, output in www/, vendored libraries in www/lib/.
func DefaultConfig() *Config {
	return &Config{
		Source:      "src",
		Output:      "www",
		SourceRoot:  "/src",
		Concurrency: 4,
		Styles: StylesConfig{
			Globs: []string{"**/*.scss"},
			Targets: []string{
				"ie >= 9",
				"ie_mob >= 10",
				"ff >= 30",
				"chrome >= 34",
				"safari >= 7",
				"opera >= 23",
				"ios >= 7",
				"android >= 4.4",
				"bb >= 10",
			},
			Minify: true,
		},
		Scripts: ScriptsConfig{
			Globs:     []string{"**/*.ts", "!**/*.d.ts"},
			Target:    "es2015",
			Format:    "esm",
			TypeCheck: true,
			Tsconfig:  "tsconfig.json",
		},
		Static: StaticConfig{
			Globs: []string{"**/*", "!**/*.ts", "!**/*.scss", "!scss/**"},
		},
		Vendor: VendorConfig{
			Roots: []string{"node_modules"},
			Globs: []string{
				"core-js/client/shim.min.js",
				"systemjs/dist/system-polyfills.js",
				"systemjs/dist/system.src.js",
				"reflect-metadata/Reflect.js",
				"rxjs/**/*.js",
				"zone.js/dist/**",
				"@angular/**/bundles/**",
			},
			Dest: "lib",
		},
		Lint: LintConfig{
			Mode: LintWarn,
			Styles: LinterConfig{
				Command: "sass-lint",
				Args:    []string{"--config", "{config}", "--format", "compact", "--verbose", "--no-exit"},
				Config:  ".sass-lint.yml",
				Format:  "compact",
			},
			Scripts: LinterConfig{
				Command: "tslint",
				Args:    []string{"--config", "{config}", "--format", "prose"},
				Config:  "tslint.json",
				Format:  "prose",
			},
		},
		Watch: WatchConfig{
			Debounce: 300 * time.Millisecond,
		},
		Tools: ToolsConfig{
			Sass: "sass",
			Tsc:  "tsc",
		},
		History: HistoryConfig{
			Enabled: true,
			Path:    ".frontbuild/history.db",
		},
	}
}
