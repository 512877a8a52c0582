// Package pipeline runs source files through ordered chains of transform
// stages and writes the results into the output tree.
package pipeline

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/aristath/frontbuild/internal/builderrors"
	"github.com/aristath/frontbuild/internal/sourcemap"
)

// Record is one source file moving through a pipeline.
type Record struct {
	Path    string // absolute source path
	Base    string // directory the source was discovered under
	Rel     string // slash-separated path of the source relative to Base
	Content []byte

	// DestRel is the slash-separated output path relative to the pipeline's
	// destination. Stages rewrite it, e.g. app.scss -> app.css.
	DestRel string

	// Maps is the sourcemap chain, oldest first. Once TrackMaps is set every
	// stage that rewrites Content appends a map; the chain is never shortened.
	TrackMaps bool
	Maps      []*sourcemap.Map

	// MapRel and MapContent are set when the composed map has been rendered.
	MapRel     string
	MapContent []byte

	Findings []builderrors.Finding
	Outputs  []Output
}

// Output is one file written to the destination tree.
type Output struct {
	Path    string // absolute destination path
	Rel     string // destination-relative path
	Source  string // source record path
	Bytes   int
	Map     string // absolute path of the companion map, if any
	Skipped bool   // existing file already had identical content
}

// NewRecord builds a record for a file under base.
func NewRecord(base, absPath string, content []byte) (*Record, error) {
	rel, err := filepath.Rel(base, absPath)
	if err != nil {
		return nil, fmt.Errorf("record %s: %w", absPath, err)
	}
	rel = filepath.ToSlash(rel)
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return nil, fmt.Errorf("record %s: outside base %s", absPath, base)
	}
	return &Record{
		Path:    absPath,
		Base:    base,
		Rel:     rel,
		Content: content,
		DestRel: rel,
	}, nil
}

// Clone returns a copy that can be modified without affecting r. Content and
// individual maps are shared; stages replace rather than mutate them.
func (r *Record) Clone() *Record {
	cp := *r
	cp.Maps = append([]*sourcemap.Map(nil), r.Maps...)
	cp.Findings = append([]builderrors.Finding(nil), r.Findings...)
	cp.Outputs = append([]Output(nil), r.Outputs...)
	return &cp
}

// Rewrite replaces the content produced by a transform. The map, when given,
// maps the new content back to the previous one and is appended to the chain.
func (r *Record) Rewrite(content []byte, m *sourcemap.Map) *Record {
	cp := r.Clone()
	cp.Content = content
	if m != nil && cp.TrackMaps {
		cp.Maps = append(cp.Maps, m)
	}
	return cp
}

// WithExt returns a copy whose destination path uses ext.
func (r *Record) WithExt(ext string) *Record {
	cp := r.Clone()
	cp.DestRel = ReplaceExt(cp.DestRel, ext)
	return cp
}

// ReplaceExt swaps the extension of a slash-separated path.
func ReplaceExt(p, ext string) string {
	return strings.TrimSuffix(p, path.Ext(p)) + ext
}
