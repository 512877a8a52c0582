package pipeline

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/aristath/frontbuild/internal/builderrors"
)

type emitStage struct {
	dest string
}

// Emit writes each record's content, and its rendered map if any, under dest.
// Files whose current content is already identical are left untouched so
// repeated builds are idempotent. Write failures are IOErrors and stop the
// pipeline.
func Emit(dest string) Stage {
	return emitStage{dest: dest}
}

func (emitStage) Name() string   { return "emit" }
func (emitStage) Stateful() bool { return false }

func (e emitStage) Apply(_ context.Context, r *Record) (*Record, error) {
	target, err := e.resolve(r.DestRel)
	if err != nil {
		return nil, err
	}
	out := Output{Path: target, Rel: r.DestRel, Source: r.Path, Bytes: len(r.Content)}
	if out.Skipped, err = writeIfChanged(target, r.Content); err != nil {
		return nil, err
	}

	if r.MapRel != "" {
		mapTarget, err := e.resolve(r.MapRel)
		if err != nil {
			return nil, err
		}
		if _, err := writeIfChanged(mapTarget, r.MapContent); err != nil {
			return nil, err
		}
		out.Map = mapTarget
	}

	cp := r.Clone()
	cp.Outputs = append(cp.Outputs, out)
	return cp, nil
}

// resolve joins rel onto dest, refusing paths that escape it.
func (e emitStage) resolve(rel string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(rel))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", &builderrors.IOError{Op: "write", Path: rel, Err: errors.New("destination escapes output directory")}
	}
	return filepath.Join(e.dest, clean), nil
}

func writeIfChanged(path string, content []byte) (bool, error) {
	existing, err := os.ReadFile(path)
	if err == nil && bytes.Equal(existing, content) {
		return true, nil
	}
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return false, &builderrors.IOError{Op: "read", Path: path, Err: err}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, &builderrors.IOError{Op: "mkdir", Path: filepath.Dir(path), Err: err}
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return false, &builderrors.IOError{Op: "write", Path: path, Err: err}
	}
	return false, nil
}
