package pipeline

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// GlobSet selects files under Base. A path matches when it matches at least
// one Include pattern and no Exclude pattern. Patterns are slash-separated,
// relative to Base, and support "**".
type GlobSet struct {
	Base    string
	Include []string
	Exclude []string
}

// ParseGlobs builds a GlobSet from patterns where a leading "!" marks an
// exclusion.
func ParseGlobs(base string, patterns ...string) (GlobSet, error) {
	g := GlobSet{Base: base}
	for _, p := range patterns {
		exclude := strings.HasPrefix(p, "!")
		p = strings.TrimPrefix(p, "!")
		if !doublestar.ValidatePattern(p) {
			return GlobSet{}, fmt.Errorf("invalid glob pattern %q", p)
		}
		if exclude {
			g.Exclude = append(g.Exclude, p)
		} else {
			g.Include = append(g.Include, p)
		}
	}
	return g, nil
}

// Match reports whether the base-relative path rel is selected.
func (g GlobSet) Match(rel string) bool {
	rel = filepath.ToSlash(rel)
	included := false
	for _, p := range g.Include {
		if ok, _ := doublestar.Match(p, rel); ok {
			included = true
			break
		}
	}
	if !included {
		return false
	}
	for _, p := range g.Exclude {
		if ok, _ := doublestar.Match(p, rel); ok {
			return false
		}
	}
	return true
}

// MatchPath reports whether the absolute path abs lies under Base and is selected.
func (g GlobSet) MatchPath(abs string) bool {
	rel, err := filepath.Rel(g.Base, abs)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return false
	}
	return g.Match(rel)
}

// Discover returns the sorted base-relative paths of all selected regular
// files. A missing Base yields no files.
func (g GlobSet) Discover() ([]string, error) {
	info, err := os.Stat(g.Base)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("glob base %s is not a directory", g.Base)
	}

	fsys := os.DirFS(g.Base)
	seen := make(map[string]struct{})
	var out []string
	for _, p := range g.Include {
		matches, err := doublestar.Glob(fsys, p, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("glob %q: %w", p, err)
		}
		for _, m := range matches {
			if _, dup := seen[m]; dup || !g.Match(m) {
				continue
			}
			seen[m] = struct{}{}
			out = append(out, m)
		}
	}
	sort.Strings(out)
	return out, nil
}
