package toolchain

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/aristath/frontbuild/internal/builderrors"
	"github.com/aristath/frontbuild/internal/sourcemap"
)

// SassCLI compiles stylesheets with the dart-sass command line tool.
type SassCLI struct {
	Runner    *Runner
	Command   string   // default "sass"
	LoadPaths []string // extra --load-path entries
	TempDir   string   // scratch directory for outputs; default os.TempDir()
	ExtraArgs []string
}

func (s *SassCLI) command() string {
	if s.Command == "" {
		return "sass"
	}
	return s.Command
}

// CompileStyle runs sass on in.Path and reads back the CSS and its map.
func (s *SassCLI) CompileStyle(ctx context.Context, in StyleInput) (StyleOutput, error) {
	dir, err := os.MkdirTemp(s.TempDir, "frontbuild-sass-")
	if err != nil {
		return StyleOutput{}, &builderrors.IOError{Op: "mkdir", Path: s.TempDir, Err: err}
	}
	defer os.RemoveAll(dir)

	outFile := filepath.Join(dir, strings.TrimSuffix(filepath.Base(in.Path), filepath.Ext(in.Path))+".css")
	args := []string{
		"--no-color",
		"--embed-sources",
		"--source-map-urls=absolute",
		"--load-path=" + filepath.Dir(in.Path),
	}
	for _, p := range s.LoadPaths {
		args = append(args, "--load-path="+p)
	}
	args = append(args, s.ExtraArgs...)
	args = append(args, in.Path, outFile)

	res, err := s.Runner.Run(ctx, Invocation{Tool: "sass", Name: s.command(), Args: args, Dir: in.Base})
	if err != nil {
		return StyleOutput{}, fmt.Errorf("running sass: %w", err)
	}
	if res.ExitCode != 0 {
		return StyleOutput{}, parseSassError(in.Path, in.Base, res.Stderr)
	}

	css, err := os.ReadFile(outFile)
	if err != nil {
		return StyleOutput{}, &builderrors.IOError{Op: "read", Path: outFile, Err: err}
	}
	raw, err := os.ReadFile(outFile + ".map")
	if err != nil {
		return StyleOutput{}, &builderrors.IOError{Op: "read", Path: outFile + ".map", Err: err}
	}
	m, err := sourcemap.Parse(raw)
	if err != nil {
		return StyleOutput{}, err
	}
	m.RelativizeSources(in.Base)
	return StyleOutput{CSS: css, Map: m}, nil
}

// sass prints the failing location as "  path line:col  context".
var sassLocation = regexp.MustCompile(`^\s+(\S.*?)\s+(\d+):(\d+)\s`)

// parseSassError turns sass stderr into a CompileError. The first
// "Error: " line is the message; the first location line names the file,
// which may be a partial rather than the compiled root. Relative locations
// are resolved against dir, the directory sass ran in.
func parseSassError(path, dir string, stderr []byte) *builderrors.CompileError {
	ce := &builderrors.CompileError{Tool: "sass", Path: path}
	for _, line := range strings.Split(string(stderr), "\n") {
		if ce.Message == "" && strings.HasPrefix(line, "Error: ") {
			ce.Message = strings.TrimPrefix(line, "Error: ")
			continue
		}
		if ce.Line == 0 {
			if m := sassLocation.FindStringSubmatch(line + " "); m != nil {
				ce.Line, _ = strconv.Atoi(m[2])
				ce.Column, _ = strconv.Atoi(m[3])
				if file := m[1]; file != "-" {
					if !filepath.IsAbs(file) {
						file = filepath.Join(dir, file)
					}
					ce.Path = file
				}
			}
		}
	}
	if ce.Message == "" {
		ce.Message = strings.TrimSpace(string(stderr))
	}
	if ce.Message == "" {
		ce.Message = "sass failed without output"
	}
	return ce
}
