package tui

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/aristath/frontbuild/internal/events"
)

func update(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	model, ok := next.(Model)
	if !ok {
		t.Fatalf("Update returned %T, want Model", next)
	}
	return model
}

func TestPipelineLifecycle(t *testing.T) {
	bus := events.NewEventBus()
	defer bus.Close()

	m := New(bus, "frontbuild watch", "/proj", "scripts", "styles")
	m = update(t, m, tea.WindowSizeMsg{Width: 120, Height: 30})

	if got := m.Pipeline("styles").Status; got != StatusIdle {
		t.Fatalf("initial status = %q, want %q", got, StatusIdle)
	}

	m = update(t, m, events.FileChangedEvent{Path: "/proj/src/css/app.scss", Op: "write", Pipeline: "styles"})
	m = update(t, m, events.PipelineStartedEvent{Pipeline: "styles", Files: 2})
	if got := m.Pipeline("styles").Status; got != StatusRunning {
		t.Errorf("status after start = %q, want %q", got, StatusRunning)
	}

	m = update(t, m, events.RunQueuedEvent{Pipeline: "styles"})
	if !m.Pipeline("styles").Queued {
		t.Error("expected styles to be marked queued")
	}

	m = update(t, m, events.RecordFailedEvent{Pipeline: "styles", Path: "/proj/src/css/app.scss", Stage: "sass", Err: errors.New("expected \"}\"")})
	m = update(t, m, events.PipelineFinishedEvent{Pipeline: "styles", Written: 1, Failed: 1, Duration: 20 * time.Millisecond, Err: errors.New("1 file failed")})

	st := m.Pipeline("styles")
	if st.Status != StatusFailed {
		t.Errorf("status after failure = %q, want %q", st.Status, StatusFailed)
	}
	if st.Runs != 1 || st.Written != 1 || st.Failed != 1 {
		t.Errorf("counters = runs %d written %d failed %d", st.Runs, st.Written, st.Failed)
	}
	log := strings.Join(st.Log, "\n")
	for _, want := range []string{"write src/css/app.scss", "rebuild queued", "src/css/app.scss [sass]"} {
		if !strings.Contains(log, want) {
			t.Errorf("log missing %q:\n%s", want, log)
		}
	}

	if got := m.Pipeline("scripts").Status; got != StatusIdle {
		t.Errorf("scripts status = %q, want untouched", got)
	}
}

func TestUnknownPipelineIsAdded(t *testing.T) {
	bus := events.NewEventBus()
	defer bus.Close()

	m := New(bus, "frontbuild", "")
	m = update(t, m, events.PipelineFinishedEvent{Pipeline: "libs", Written: 3})
	st := m.Pipeline("libs")
	if st == nil {
		t.Fatal("expected libs to be tracked")
	}
	if st.Status != StatusOK {
		t.Errorf("status = %q, want %q", st.Status, StatusOK)
	}
}

func TestGraphProgressView(t *testing.T) {
	bus := events.NewEventBus()
	defer bus.Close()

	m := New(bus, "frontbuild", "")
	m = update(t, m, tea.WindowSizeMsg{Width: 120, Height: 30})
	m = update(t, m, events.GraphProgressEvent{Target: "build", Total: 5, Completed: 3, Failed: 1, Skipped: 1})

	view := m.View()
	if !strings.Contains(view, "Tasks: build") {
		t.Errorf("view missing graph target:\n%s", view)
	}
	if !strings.Contains(view, "3/5") {
		t.Errorf("view missing progress count:\n%s", view)
	}
}

func TestFocusCycle(t *testing.T) {
	bus := events.NewEventBus()
	defer bus.Close()

	m := New(bus, "frontbuild", "")
	m = update(t, m, tea.KeyMsg{Type: tea.KeyTab})
	if m.focusedPane != PaneGraph {
		t.Errorf("focus after tab = %d, want %d", m.focusedPane, PaneGraph)
	}
	m = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("1")})
	if m.focusedPane != PanePipelines {
		t.Errorf("focus after 1 = %d, want %d", m.focusedPane, PanePipelines)
	}
}

func TestQuit(t *testing.T) {
	bus := events.NewEventBus()
	defer bus.Close()

	m := New(bus, "frontbuild", "")
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if got := next.View(); got != "Goodbye!\n" {
		t.Errorf("view after quit = %q", got)
	}
}

func TestWaitForEventOnClosedBus(t *testing.T) {
	bus := events.NewEventBus()
	sub := bus.SubscribeAll(1)
	bus.Close()
	if msg := waitForEvent(sub)(); msg != nil {
		t.Errorf("expected nil message on closed bus, got %T", msg)
	}
}
