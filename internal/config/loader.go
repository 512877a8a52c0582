package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "FRONTBUILD_"

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads and merges configuration from global and project paths.
// Order of precedence (highest to lowest): project config, global config, defaults.
// Each file is decoded over the result of the previous layer, so it only
// needs to name the keys it changes; lists replace rather than append.
// Missing files are not errors; malformed YAML and unknown keys are.
func Load(globalPath, projectPath string) (*Config, error) {
	cfg := DefaultConfig()

	if globalPath != "" {
		if err := mergeConfigFile(cfg, globalPath); err != nil {
			return nil, fmt.Errorf("loading global config: %w", err)
		}
	}

	if projectPath != "" {
		if err := mergeConfigFile(cfg, projectPath); err != nil {
			return nil, fmt.Errorf("loading project config: %w", err)
		}
	}

	return cfg, nil
}

// LoadDefault loads configuration from conventional paths, applies
// environment overrides from the process and from root/.env, and validates
// the result.
//
// Global: ~/.frontbuild/config.yaml
// Project: <root>/frontbuild.yaml, or projectPath when set
func LoadDefault(root, projectPath string) (*Config, error) {
	globalPath := ""
	if home, err := os.UserHomeDir(); err == nil {
		globalPath = filepath.Join(home, ".frontbuild", "config.yaml")
	}
	if projectPath == "" {
		projectPath = filepath.Join(root, "frontbuild.yaml")
	}

	cfg, err := Load(globalPath, projectPath)
	if err != nil {
		return nil, err
	}

	env, err := readEnv(filepath.Join(root, ".env"))
	if err != nil {
		return nil, err
	}
	if err := ApplyEnv(cfg, env); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// mergeConfigFile decodes a YAML file over base. Missing files are skipped.
func mergeConfigFile(base *Config, path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(base); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// readEnv returns the variables from a dotenv file merged under the process
// environment. A missing file contributes nothing.
func readEnv(path string) (map[string]string, error) {
	env := map[string]string{}
	fileEnv, err := godotenv.Read(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	for k, v := range fileEnv {
		env[k] = v
	}
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok && strings.HasPrefix(k, EnvPrefix) {
			env[k] = v
		}
	}
	return env, nil
}

// ApplyEnv applies FRONTBUILD_* overrides to cfg.
func ApplyEnv(cfg *Config, env map[string]string) error {
	for key, value := range env {
		if !strings.HasPrefix(key, EnvPrefix) {
			continue
		}
		switch strings.TrimPrefix(key, EnvPrefix) {
		case "SOURCE":
			cfg.Source = value
		case "OUTPUT":
			cfg.Output = value
		case "LINT_MODE":
			cfg.Lint.Mode = strings.ToLower(value)
		case "CONCURRENCY":
			n, err := strconv.Atoi(value)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			cfg.Concurrency = n
		case "DEBOUNCE":
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			cfg.Watch.Debounce = d
		case "SASS":
			cfg.Tools.Sass = value
		case "TSC":
			cfg.Tools.Tsc = value
		case "TYPE_CHECK":
			b, err := strconv.ParseBool(value)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			cfg.Scripts.TypeCheck = b
		case "METRICS_ADDR":
			cfg.Watch.MetricsAddr = value
		}
	}
	return nil
}

// Validate checks field constraints and that the output tree cannot
// overwrite sources.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}

	src := filepath.Clean(c.Source)
	out := filepath.Clean(c.Output)
	if src == out || within(out, src) || within(src, out) {
		return fmt.Errorf("invalid config: output %q and source %q must not contain each other", c.Output, c.Source)
	}
	if strings.Contains(c.Vendor.Dest, "..") || filepath.IsAbs(c.Vendor.Dest) {
		return fmt.Errorf("invalid config: vendor dest %q must stay inside the output", c.Vendor.Dest)
	}
	return nil
}

func within(child, parent string) bool {
	rel, err := filepath.Rel(parent, child)
	return err == nil && rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
