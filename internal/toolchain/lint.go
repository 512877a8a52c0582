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

// Lint output formats understood by CommandLinter.
const (
	FormatUnix    = "unix"    // path:line:col: message [rule]
	FormatCompact = "compact" // path: line L, col C, Severity - message (rule)
	FormatProse   = "prose"   // ERROR: (rule) path[L, C]: message
)

// CommandLinter runs an external lint command and parses its report.
// The files to lint are appended to Args; "{config}" in Args is replaced by
// ConfigFile.
type CommandLinter struct {
	Tool       string
	Runner     *Runner
	Command    string
	Args       []string
	ConfigFile string
	Format     string
}

func (l *CommandLinter) Name() string { return l.Tool }

// Lint implements Linter. A non-zero exit with parsed findings is a normal
// result; a non-zero exit without any is reported as an error.
func (l *CommandLinter) Lint(ctx context.Context, root string, files []string) ([]builderrors.Finding, error) {
	if len(files) == 0 {
		return nil, nil
	}
	args := make([]string, 0, len(l.Args)+len(files))
	for _, a := range l.Args {
		args = append(args, strings.ReplaceAll(a, "{config}", l.ConfigFile))
	}
	args = append(args, files...)

	res, err := l.Runner.Run(ctx, Invocation{Tool: l.Tool, Name: l.Command, Args: args, Dir: root})
	if err != nil {
		return nil, fmt.Errorf("running %s: %w", l.Tool, err)
	}

	findings, err := ParseLintOutput(l.Format, root, append(res.Stdout, res.Stderr...))
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 && len(findings) == 0 {
		return nil, fmt.Errorf("%s exited with status %d: %s", l.Tool, res.ExitCode, strings.TrimSpace(string(res.Stderr)))
	}
	return findings, nil
}

var (
	unixLine    = regexp.MustCompile(`^(.+?):(\d+):(\d+):\s*(.*?)(?:\s+\[(?:\w+/)?([^\]]+)\])?$`)
	compactLine = regexp.MustCompile(`^(.+?): line (\d+), col (\d+), \w+ - (.*?)(?:\s+\(([^)]+)\))?$`)
	proseLine   = regexp.MustCompile(`^(?:ERROR|WARNING): (?:\(([^)]+)\) )?(.+?)\[(\d+), (\d+)\]: (.*)$`)
)

// ParseLintOutput extracts findings from a lint report. Relative paths are
// resolved against root. Lines that do not match the format are ignored.
func ParseLintOutput(format, root string, out []byte) ([]builderrors.Finding, error) {
	var parse func(line string) (builderrors.Finding, bool)
	switch format {
	case "", FormatUnix:
		parse = func(line string) (builderrors.Finding, bool) {
			m := unixLine.FindStringSubmatch(line)
			if m == nil {
				return builderrors.Finding{}, false
			}
			return finding(m[1], m[2], m[3], m[5], m[4]), true
		}
	case FormatCompact:
		parse = func(line string) (builderrors.Finding, bool) {
			m := compactLine.FindStringSubmatch(line)
			if m == nil {
				return builderrors.Finding{}, false
			}
			return finding(m[1], m[2], m[3], m[5], m[4]), true
		}
	case FormatProse:
		parse = func(line string) (builderrors.Finding, bool) {
			m := proseLine.FindStringSubmatch(line)
			if m == nil {
				return builderrors.Finding{}, false
			}
			return finding(m[2], m[3], m[4], m[1], m[5]), true
		}
	default:
		return nil, fmt.Errorf("unknown lint format %q", format)
	}

	var findings []builderrors.Finding
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		f, ok := parse(strings.TrimRight(sc.Text(), "\r"))
		if !ok {
			continue
		}
		if !filepath.IsAbs(f.Path) {
			f.Path = filepath.Join(root, f.Path)
		}
		findings = append(findings, f)
	}
	return findings, nil
}

func finding(path, line, col, rule, msg string) builderrors.Finding {
	l, _ := strconv.Atoi(line)
	c, _ := strconv.Atoi(col)
	return builderrors.Finding{Path: path, Line: l, Column: c, Rule: rule, Message: strings.TrimSpace(msg)}
}
