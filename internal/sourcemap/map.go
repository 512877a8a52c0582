// Package sourcemap reads, writes, and composes source map v3 documents.
//
// Each transform that rewrites a file produces a map from its output back to
// its input. A record keeps those maps as a chain; Compose folds the chain
// into one map from the final output back to the original sources.
package sourcemap

import (
	"encoding/json"
	"fmt"
	"net/url"
	"path/filepath"
	"sort"
	"strings"
)

// Map is a source map v3 document.
type Map struct {
	Version        int      `json:"version"`
	File           string   `json:"file,omitempty"`
	SourceRoot     string   `json:"sourceRoot,omitempty"`
	Sources        []string `json:"sources"`
	SourcesContent []string `json:"sourcesContent,omitempty"`
	Names          []string `json:"names"`
	Mappings       string   `json:"mappings"`
}

// Segment is one decoded mapping. Lines and columns are 0-based and absolute.
type Segment struct {
	GenLine   int
	GenColumn int
	HasSource bool
	Source    int
	Line      int
	Column    int
	HasName   bool
	Name      int
}

// Parse decodes a JSON source map.
func Parse(data []byte) (*Map, error) {
	var m Map
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing source map: %w", err)
	}
	if m.Version != 3 {
		return nil, fmt.Errorf("unsupported source map version %d", m.Version)
	}
	if m.Names == nil {
		m.Names = []string{}
	}
	return &m, nil
}

// Bytes encodes the map as JSON.
func (m *Map) Bytes() ([]byte, error) {
	cp := *m
	if cp.Sources == nil {
		cp.Sources = []string{}
	}
	if cp.Names == nil {
		cp.Names = []string{}
	}
	return json.Marshal(&cp)
}

// Identity returns a line-granular map of content onto itself, attributed to source.
func Identity(source string, content []byte) *Map {
	lines := strings.Count(string(content), "\n") + 1
	segs := make([]Segment, 0, lines)
	for i := 0; i < lines; i++ {
		segs = append(segs, Segment{GenLine: i, HasSource: true, Line: i})
	}
	return &Map{
		Version:        3,
		Sources:        []string{source},
		SourcesContent: []string{string(content)},
		Names:          []string{},
		Mappings:       EncodeMappings(segs),
	}
}

// Segments decodes the mappings string.
func (m *Map) Segments() ([]Segment, error) {
	var segs []Segment
	var src, srcLine, srcCol, name int
	line := 0
	s := m.Mappings
	for i := 0; i < len(s); {
		switch s[i] {
		case ';':
			line++
			i++
			continue
		case ',':
			i++
			continue
		}

		var fields [5]int
		n := 0
		for i < len(s) && s[i] != ',' && s[i] != ';' {
			if n == 5 {
				return nil, fmt.Errorf("segment at line %d has more than 5 fields", line)
			}
			v, next, err := readVLQ(s, i)
			if err != nil {
				return nil, err
			}
			fields[n] = v
			n++
			i = next
		}

		seg := Segment{GenLine: line}
		// Generated column resets every line.
		if len(segs) > 0 && segs[len(segs)-1].GenLine == line {
			seg.GenColumn = segs[len(segs)-1].GenColumn + fields[0]
		} else {
			seg.GenColumn = fields[0]
		}
		switch n {
		case 1:
		case 4, 5:
			src += fields[1]
			srcLine += fields[2]
			srcCol += fields[3]
			seg.HasSource, seg.Source, seg.Line, seg.Column = true, src, srcLine, srcCol
			if n == 5 {
				name += fields[4]
				seg.HasName, seg.Name = true, name
			}
		default:
			return nil, fmt.Errorf("segment at line %d has %d fields", line, n)
		}
		segs = append(segs, seg)
	}
	return segs, nil
}

// EncodeMappings encodes segments into a mappings string. Segments are sorted
// by generated position first.
func EncodeMappings(segs []Segment) string {
	sorted := append([]Segment(nil), segs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].GenLine != sorted[j].GenLine {
			return sorted[i].GenLine < sorted[j].GenLine
		}
		return sorted[i].GenColumn < sorted[j].GenColumn
	})

	var b strings.Builder
	var src, srcLine, srcCol, name int
	line, prevCol := 0, 0
	first := true
	for _, seg := range sorted {
		for line < seg.GenLine {
			b.WriteByte(';')
			line++
			prevCol = 0
			first = true
		}
		if !first {
			b.WriteByte(',')
		}
		first = false

		writeVLQ(&b, seg.GenColumn-prevCol)
		prevCol = seg.GenColumn
		if !seg.HasSource {
			continue
		}
		writeVLQ(&b, seg.Source-src)
		writeVLQ(&b, seg.Line-srcLine)
		writeVLQ(&b, seg.Column-srcCol)
		src, srcLine, srcCol = seg.Source, seg.Line, seg.Column
		if seg.HasName {
			writeVLQ(&b, seg.Name-name)
			name = seg.Name
		}
	}
	return b.String()
}

// RelativizeSources rewrites file URLs and absolute source paths relative to
// baseDir using forward slashes. Other entries are left unchanged.
func (m *Map) RelativizeSources(baseDir string) {
	for i, src := range m.Sources {
		p := src
		if strings.HasPrefix(p, "file://") {
			if u, err := url.Parse(p); err == nil {
				p = u.Path
			}
		}
		if !filepath.IsAbs(p) {
			continue
		}
		if rel, err := filepath.Rel(baseDir, p); err == nil && !strings.HasPrefix(rel, "..") {
			m.Sources[i] = filepath.ToSlash(rel)
		}
	}
}
