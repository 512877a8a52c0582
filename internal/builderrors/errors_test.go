package builderrors

import (
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantCat Category
		wantSev Severity
		wantOK  bool
	}{
		{"graph", &GraphError{Kind: "cycle"}, CategoryGraph, SeverityFatal, true},
		{"compile", &CompileError{Path: "a.scss"}, CategoryCompile, SeverityError, true},
		{"lint fatal", &LintError{Fatal: true}, CategoryLint, SeverityError, true},
		{"lint warn", &LintError{}, CategoryLint, SeverityWarning, true},
		{"io", &IOError{Op: "write", Path: "x", Err: os.ErrPermission}, CategoryIO, SeverityFatal, true},
		{"watch", &WatchEventError{Err: errors.New("overflow")}, CategoryWatch, SeverityWarning, true},
		{"wrapped", fmt.Errorf("styles: %w", &CompileError{Path: "b.scss"}), CategoryCompile, SeverityError, true},
		{"plain", errors.New("boom"), "", SeverityError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cat, sev, ok := Classify(tt.err)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantCat, cat)
			assert.Equal(t, tt.wantSev, sev)
		})
	}
}

func TestCompileErrorMessage(t *testing.T) {
	err := &CompileError{Tool: "sass", Path: "src/app.scss", Line: 3, Column: 7, Message: "expected \";\""}
	assert.Equal(t, `src/app.scss:3:7: sass: expected ";"`, err.Error())

	noPos := &CompileError{Path: "src/app.ts", Message: "bad"}
	assert.Equal(t, "src/app.ts: bad", noPos.Error())
}

func TestIOErrorUnwrap(t *testing.T) {
	err := fmt.Errorf("emit: %w", &IOError{Op: "write", Path: "www/a.js", Err: os.ErrPermission})
	require.ErrorIs(t, err, os.ErrPermission)
	assert.True(t, IsFatal(err))
	assert.False(t, IsWarning(err))
}

func TestLintErrorMessage(t *testing.T) {
	one := &LintError{Path: "a.ts", Findings: []Finding{{Path: "a.ts", Line: 1, Column: 2, Rule: "semicolon", Message: "missing semicolon"}}}
	assert.Equal(t, "lint: a.ts:1:2: missing semicolon (semicolon)", one.Error())

	many := &LintError{Path: "a.ts", Findings: make([]Finding, 3)}
	assert.Equal(t, "lint: a.ts: 3 findings", many.Error())
}
