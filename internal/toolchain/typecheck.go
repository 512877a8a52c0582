package toolchain

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/aristath/frontbuild/internal/builderrors"
)

// TscChecker type-checks a project with "tsc --noEmit".
type TscChecker struct {
	Runner   *Runner
	Command  string // default "tsc"
	Project  string // tsconfig path; when empty the files are passed directly
	ExtraArg []string
}

func (c *TscChecker) command() string {
	if c.Command == "" {
		return "tsc"
	}
	return c.Command
}

// Check implements TypeChecker.
func (c *TscChecker) Check(ctx context.Context, root string, files []string) (map[string][]*builderrors.CompileError, error) {
	args := []string{"--noEmit", "--pretty", "false"}
	if c.Project != "" {
		args = append(args, "-p", c.Project)
	}
	args = append(args, c.ExtraArg...)
	if c.Project == "" {
		args = append(args, files...)
	}

	res, err := c.Runner.Run(ctx, Invocation{Tool: "tsc", Name: c.command(), Args: args, Dir: root})
	if err != nil {
		return nil, fmt.Errorf("running tsc: %w", err)
	}

	diags := parseTscOutput(root, res.Stdout)
	if res.ExitCode != 0 && len(diags) == 0 {
		msg := strings.TrimSpace(string(res.Stderr))
		if msg == "" {
			msg = strings.TrimSpace(string(res.Stdout))
		}
		return nil, fmt.Errorf("tsc exited with status %d: %s", res.ExitCode, msg)
	}
	return diags, nil
}

// tsc --pretty false prints "file(line,col): error TSnnnn: message".
var tscDiagnostic = regexp.MustCompile(`^(.+)\((\d+),(\d+)\): error (TS\d+): (.*)$`)

func parseTscOutput(root string, out []byte) map[string][]*builderrors.CompileError {
	diags := make(map[string][]*builderrors.CompileError)
	var last *builderrors.CompileError
	sc := bufio.NewScanner(bytes.NewReader(out))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		m := tscDiagnostic.FindStringSubmatch(line)
		if m == nil {
			// Continuation lines are indented elaborations of the last diagnostic.
			if last != nil && strings.HasPrefix(line, "  ") {
				last.Message += "\n" + strings.TrimSpace(line)
			}
			continue
		}
		path := m[1]
		if !filepath.IsAbs(path) {
			path = filepath.Join(root, path)
		}
		ln, _ := strconv.Atoi(m[2])
		col, _ := strconv.Atoi(m[3])
		last = &builderrors.CompileError{
			Tool:    "tsc",
			Path:    path,
			Line:    ln,
			Column:  col,
			Message: m[4] + ": " + m[5],
		}
		diags[path] = append(diags[path], last)
	}
	return diags
}
