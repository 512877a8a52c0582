package sourcemap

import (
	"errors"
	"fmt"
	"slices"

	gosourcemap "github.com/go-sourcemap/sourcemap"
)

// Compose folds a chain of maps, oldest first, into a single map from the
// output of the last transform back to the sources of the first one.
//
// Each map is applied to the segments of its successor that point at the
// map's generated file (its File, or the successor's only source when File
// is empty or not listed). Segments pointing elsewhere, such as stylesheet partials pulled
// in by the first transform, pass through unchanged.
func Compose(chain ...*Map) (*Map, error) {
	if len(chain) == 0 {
		return nil, errors.New("compose: empty chain")
	}

	result := chain[len(chain)-1]
	for i := len(chain) - 2; i >= 0; i-- {
		next, err := composePair(result, chain[i])
		if err != nil {
			return nil, fmt.Errorf("compose step %d: %w", i, err)
		}
		result = next
	}

	cp := *result
	cp.Sources = append([]string(nil), result.Sources...)
	cp.SourcesContent = append([]string(nil), result.SourcesContent...)
	cp.Names = append([]string{}, result.Names...)
	return &cp, nil
}

type mapBuilder struct {
	out       *Map
	sourceIdx map[string]int
	nameIdx   map[string]int
	content   map[string]string
	segs      []Segment
}

func (b *mapBuilder) source(name, text string, hasText bool) int {
	if idx, ok := b.sourceIdx[name]; ok {
		return idx
	}
	idx := len(b.out.Sources)
	b.sourceIdx[name] = idx
	b.out.Sources = append(b.out.Sources, name)
	if hasText {
		b.content[name] = text
	}
	return idx
}

func (b *mapBuilder) name(n string) int {
	if idx, ok := b.nameIdx[n]; ok {
		return idx
	}
	idx := len(b.out.Names)
	b.nameIdx[n] = idx
	b.out.Names = append(b.out.Names, n)
	return idx
}

func (b *mapBuilder) finish() *Map {
	b.out.Mappings = EncodeMappings(b.segs)
	contents := make([]string, len(b.out.Sources))
	for i, src := range b.out.Sources {
		text, ok := b.content[src]
		if !ok {
			return b.out
		}
		contents[i] = text
	}
	if len(contents) > 0 {
		b.out.SourcesContent = contents
	}
	return b.out
}

func sourceText(m *Map, idx int) (string, bool) {
	if idx < len(m.SourcesContent) {
		return m.SourcesContent[idx], true
	}
	return "", false
}

// composePair maps the segments of outer that refer to inner's generated file
// through inner. Segments inner cannot resolve are dropped.
func composePair(outer, inner *Map) (*Map, error) {
	// Lookups must return sources exactly as inner lists them.
	bare := *inner
	bare.SourceRoot = ""
	innerJSON, err := bare.Bytes()
	if err != nil {
		return nil, err
	}
	consumer, err := gosourcemap.Parse("", innerJSON)
	if err != nil {
		return nil, fmt.Errorf("reading inner map: %w", err)
	}

	segs, err := outer.Segments()
	if err != nil {
		return nil, fmt.Errorf("reading outer map: %w", err)
	}

	target := inner.File
	if len(outer.Sources) == 1 && (target == "" || !slices.Contains(outer.Sources, target)) {
		target = outer.Sources[0]
	}

	innerIdx := make(map[string]int, len(inner.Sources))
	for i, src := range inner.Sources {
		innerIdx[src] = i
	}

	b := &mapBuilder{
		out:       &Map{Version: 3, File: outer.File, Names: []string{}},
		sourceIdx: map[string]int{},
		nameIdx:   map[string]int{},
		content:   map[string]string{},
	}

	for _, seg := range segs {
		if !seg.HasSource || seg.Source >= len(outer.Sources) {
			continue
		}
		outerName := ""
		if seg.HasName && seg.Name < len(outer.Names) {
			outerName = outer.Names[seg.Name]
		}

		c := Segment{GenLine: seg.GenLine, GenColumn: seg.GenColumn, HasSource: true}
		name := outerName
		if src := outer.Sources[seg.Source]; src != target {
			text, ok := sourceText(outer, seg.Source)
			c.Source = b.source(src, text, ok)
			c.Line, c.Column = seg.Line, seg.Column
		} else {
			source, innerName, line, column, ok := consumer.Source(seg.Line+1, seg.Column)
			if !ok {
				continue
			}
			text, hasText := "", false
			if i, known := innerIdx[source]; known {
				text, hasText = sourceText(inner, i)
			}
			c.Source = b.source(source, text, hasText)
			c.Line, c.Column = line-1, column
			if innerName != "" {
				name = innerName
			}
		}
		if name != "" {
			c.HasName, c.Name = true, b.name(name)
		}
		b.segs = append(b.segs, c)
	}

	return b.finish(), nil
}
