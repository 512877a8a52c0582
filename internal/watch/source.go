// Package watch turns filesystem changes into debounced, non-overlapping
// pipeline runs.
package watch

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/aristath/frontbuild/internal/builderrors"
)

// Op is the kind of change.
type Op int

const (
	OpCreate Op = iota
	OpWrite
	OpRemove
	OpRename
)

func (op Op) String() string {
	switch op {
	case OpCreate:
		return "create"
	case OpWrite:
		return "write"
	case OpRemove:
		return "remove"
	case OpRename:
		return "rename"
	default:
		return "unknown"
	}
}

// ChangeEvent is one file change.
type ChangeEvent struct {
	Path string // absolute
	Op   Op
	Time time.Time
}

// Source produces change events until it is closed. Errors are delivered
// separately and never end the stream.
type Source interface {
	Events() <-chan ChangeEvent
	Errors() <-chan error
	Close() error
}

// FSSource is a Source backed by fsnotify. Directories under the roots are
// watched recursively, including ones created later.
type FSSource struct {
	watcher    *fsnotify.Watcher
	events     chan ChangeEvent
	errors     chan error
	ignoreDirs map[string]bool
	logger     *slog.Logger

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// SourceOptions configures an FSSource.
type SourceOptions struct {
	// IgnoreDirs are directory base names never descended into.
	IgnoreDirs []string
	Logger     *slog.Logger
}

// NewFSSource starts watching roots. Missing roots are an error.
func NewFSSource(roots []string, opts SourceOptions) (*FSSource, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &FSSource{
		watcher:    watcher,
		events:     make(chan ChangeEvent, 256),
		errors:     make(chan error, 16),
		ignoreDirs: map[string]bool{".git": true, "node_modules": true},
		logger:     logger,
		done:       make(chan struct{}),
	}
	for _, d := range opts.IgnoreDirs {
		s.ignoreDirs[d] = true
	}

	for _, root := range roots {
		abs, err := filepath.Abs(root)
		if err != nil {
			watcher.Close()
			return nil, err
		}
		if _, err := s.addRecursive(abs, false); err != nil {
			watcher.Close()
			return nil, err
		}
	}

	s.wg.Add(1)
	go s.loop()
	return s, nil
}

func (s *FSSource) Events() <-chan ChangeEvent { return s.events }
func (s *FSSource) Errors() <-chan error       { return s.errors }

// Close stops watching and closes both channels.
func (s *FSSource) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.watcher.Close()
		s.wg.Wait()
		close(s.events)
		close(s.errors)
	})
	return err
}

func (s *FSSource) loop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			s.handle(ev)
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.sendErr(&builderrors.WatchEventError{Err: err})
		}
	}
}

func (s *FSSource) handle(ev fsnotify.Event) {
	if ev.Op == fsnotify.Chmod || IsTempFile(ev.Name) {
		return
	}

	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if s.ignoreDirs[filepath.Base(ev.Name)] {
				return
			}
			// Files can land in a new directory before it is watched.
			files, err := s.addRecursive(ev.Name, true)
			if err != nil {
				s.sendErr(&builderrors.WatchEventError{Path: ev.Name, Err: err})
			}
			for _, f := range files {
				s.send(ChangeEvent{Path: f, Op: OpCreate, Time: time.Now()})
			}
			return
		}
	}

	s.send(ChangeEvent{Path: ev.Name, Op: convertOp(ev.Op), Time: time.Now()})
}

func (s *FSSource) send(ev ChangeEvent) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

func (s *FSSource) sendErr(err error) {
	select {
	case s.errors <- err:
	default:
		s.logger.Warn("dropping watch error", "error", err)
	}
}

// addRecursive watches root and every directory below it. When collect is
// set it returns the files found on the way.
func (s *FSSource) addRecursive(root string, collect bool) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if d.IsDir() {
			if path != root && s.ignoreDirs[d.Name()] {
				return filepath.SkipDir
			}
			if err := s.watcher.Add(path); err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return filepath.SkipDir
				}
				return err
			}
			return nil
		}
		if collect && !IsTempFile(path) {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

func convertOp(op fsnotify.Op) Op {
	switch {
	case op.Has(fsnotify.Create):
		return OpCreate
	case op.Has(fsnotify.Write):
		return OpWrite
	case op.Has(fsnotify.Remove):
		return OpRemove
	case op.Has(fsnotify.Rename):
		return OpRename
	default:
		return OpWrite
	}
}

// IsTempFile reports editor swap, backup, and lock files.
func IsTempFile(path string) bool {
	base := filepath.Base(path)
	switch {
	case base == "4913", base == ".DS_Store":
		return true
	case strings.HasSuffix(base, "~"),
		strings.HasSuffix(base, ".swp"),
		strings.HasSuffix(base, ".swx"),
		strings.HasSuffix(base, ".swo"),
		strings.HasSuffix(base, ".tmp"),
		strings.HasPrefix(base, ".#"):
		return true
	case strings.HasPrefix(base, "#") && strings.HasSuffix(base, "#"):
		return true
	}
	return false
}
