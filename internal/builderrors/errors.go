// Package builderrors defines the classified error types surfaced by the build.
//
// Every error carries a Category (which part of the build produced it) and a
// Severity (whether it stops the owning pipeline, the whole command, or nothing).
// Callers branch on these with errors.As instead of matching message text.
package builderrors

import (
	"errors"
	"fmt"
	"strings"
)

// Category is the broad origin of an error, used for routing and reporting.
type Category string

const (
	CategoryGraph   Category = "graph"
	CategoryCompile Category = "compile"
	CategoryLint    Category = "lint"
	CategoryIO      Category = "io"
	CategoryWatch   Category = "watch"
	CategoryConfig  Category = "config"
)

// Severity indicates the impact of an error.
type Severity string

const (
	SeverityFatal   Severity = "fatal"   // aborts the command before or during execution
	SeverityError   Severity = "error"   // fails the owning task
	SeverityWarning Severity = "warning" // logged, build continues
)

// Classified is implemented by every error type in this package.
type Classified interface {
	error
	Category() Category
	Severity() Severity
}

// Classify walks the error chain and returns the category and severity of the
// first classified error. Unclassified errors report as internal task errors.
func Classify(err error) (Category, Severity, bool) {
	var c Classified
	if errors.As(err, &c) {
		return c.Category(), c.Severity(), true
	}
	return "", SeverityError, false
}

// GraphError reports a structural problem with the task graph. It is always
// raised before any task action runs.
type GraphError struct {
	Kind string // "cycle", "missing", "duplicate", "unknown"
	Task string
	Dep  string
	Err  error
}

func (e *GraphError) Error() string {
	switch e.Kind {
	case "missing":
		return fmt.Sprintf("graph: task %q depends on unregistered task %q", e.Task, e.Dep)
	case "duplicate":
		return fmt.Sprintf("graph: task %q already registered", e.Task)
	case "unknown":
		return fmt.Sprintf("graph: no task named %q", e.Task)
	case "cycle":
		if e.Err != nil {
			return fmt.Sprintf("graph: dependency cycle: %v", e.Err)
		}
		return "graph: dependency cycle"
	}
	if e.Err != nil {
		return fmt.Sprintf("graph: %v", e.Err)
	}
	return "graph: invalid task graph"
}

func (e *GraphError) Unwrap() error      { return e.Err }
func (e *GraphError) Category() Category { return CategoryGraph }
func (e *GraphError) Severity() Severity { return SeverityFatal }

// CompileError is a syntax or type error reported by a compiler for one file.
// Line and Column are 1-based; zero means unknown.
type CompileError struct {
	Tool    string
	Path    string
	Line    int
	Column  int
	Message string
}

func (e *CompileError) Error() string {
	var b strings.Builder
	b.WriteString(e.Path)
	if e.Line > 0 {
		fmt.Fprintf(&b, ":%d", e.Line)
		if e.Column > 0 {
			fmt.Fprintf(&b, ":%d", e.Column)
		}
	}
	b.WriteString(": ")
	if e.Tool != "" {
		b.WriteString(e.Tool)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	return b.String()
}

func (e *CompileError) Category() Category { return CategoryCompile }
func (e *CompileError) Severity() Severity { return SeverityError }

// Finding is one lint diagnostic.
type Finding struct {
	Path    string
	Line    int
	Column  int
	Rule    string
	Message string
}

func (f Finding) String() string {
	loc := f.Path
	if f.Line > 0 {
		loc = fmt.Sprintf("%s:%d:%d", f.Path, f.Line, f.Column)
	}
	if f.Rule != "" {
		return fmt.Sprintf("%s: %s (%s)", loc, f.Message, f.Rule)
	}
	return fmt.Sprintf("%s: %s", loc, f.Message)
}

// LintError groups the findings for one file. Fatal is decided by the lint mode.
type LintError struct {
	Path     string
	Findings []Finding
	Fatal    bool
}

func (e *LintError) Error() string {
	if len(e.Findings) == 1 {
		return "lint: " + e.Findings[0].String()
	}
	return fmt.Sprintf("lint: %s: %d findings", e.Path, len(e.Findings))
}

func (e *LintError) Category() Category { return CategoryLint }

func (e *LintError) Severity() Severity {
	if e.Fatal {
		return SeverityError
	}
	return SeverityWarning
}

// IOError is a filesystem failure while reading sources or writing outputs.
// Destination write failures stop the owning pipeline.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error      { return e.Err }
func (e *IOError) Category() Category { return CategoryIO }
func (e *IOError) Severity() Severity { return SeverityFatal }

// WatchEventError is a problem delivering a change notification. Never fatal.
type WatchEventError struct {
	Path string
	Err  error
}

func (e *WatchEventError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("watch: %v", e.Err)
	}
	return fmt.Sprintf("watch %s: %v", e.Path, e.Err)
}

func (e *WatchEventError) Unwrap() error      { return e.Err }
func (e *WatchEventError) Category() Category { return CategoryWatch }
func (e *WatchEventError) Severity() Severity { return SeverityWarning }

// IsFatal reports whether err must stop the current pipeline immediately.
func IsFatal(err error) bool {
	_, sev, ok := Classify(err)
	return ok && sev == SeverityFatal
}

// IsWarning reports whether err is informational only.
func IsWarning(err error) bool {
	_, sev, ok := Classify(err)
	return ok && sev == SeverityWarning
}
