package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"regexp"

	"github.com/aristath/frontbuild/internal/sourcemap"
)

type initMapsStage struct{}

// InitSourceMaps starts sourcemap tracking. Every later stage that rewrites
// the content must extend the chain.
func InitSourceMaps() Stage { return initMapsStage{} }

func (initMapsStage) Name() string   { return "sourcemaps.init" }
func (initMapsStage) Stateful() bool { return false }

func (initMapsStage) Apply(_ context.Context, r *Record) (*Record, error) {
	cp := r.Clone()
	cp.TrackMaps = true
	return cp, nil
}

var mappingURLComment = regexp.MustCompile(`(?m)^\s*(?://[#@] sourceMappingURL=.*|/\*[#@] sourceMappingURL=.*?\*/)\s*$\n?`)

type writeMapsStage struct {
	sourceRoot string
}

// WriteSourceMaps composes the record's map chain, renders it next to the
// output as "<dest>.map" and appends a sourceMappingURL comment to the
// content. sourceRoot is recorded in the map; the original build uses "/src".
func WriteSourceMaps(sourceRoot string) Stage {
	return writeMapsStage{sourceRoot: sourceRoot}
}

func (writeMapsStage) Name() string   { return "sourcemaps.write" }
func (writeMapsStage) Stateful() bool { return false }

func (w writeMapsStage) Apply(_ context.Context, r *Record) (*Record, error) {
	if !r.TrackMaps {
		return r, nil
	}

	var m *sourcemap.Map
	if len(r.Maps) == 0 {
		m = sourcemap.Identity(r.Rel, r.Content)
	} else {
		composed, err := sourcemap.Compose(r.Maps...)
		if err != nil {
			return nil, fmt.Errorf("composing sourcemap: %w", err)
		}
		m = composed
	}
	m.File = path.Base(r.DestRel)
	m.SourceRoot = w.sourceRoot

	data, err := m.Bytes()
	if err != nil {
		return nil, fmt.Errorf("encoding sourcemap: %w", err)
	}

	cp := r.Clone()
	cp.MapRel = r.DestRel + ".map"
	cp.MapContent = data
	cp.Content = appendMappingURL(r.Content, path.Base(cp.MapRel), path.Ext(r.DestRel) == ".css")
	return cp, nil
}

func appendMappingURL(content []byte, mapName string, css bool) []byte {
	out := bytes.TrimRight(mappingURLComment.ReplaceAll(content, nil), "\n")
	out = append([]byte(nil), out...)
	if css {
		return append(out, fmt.Sprintf("\n/*# sourceMappingURL=%s */\n", mapName)...)
	}
	return append(out, fmt.Sprintf("\n//# sourceMappingURL=%s\n", mapName)...)
}
