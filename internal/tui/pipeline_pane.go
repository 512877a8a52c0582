package tui

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/frontbuild/internal/events"
)

// Pipeline statuses shown in the list.
const (
	StatusIdle    = "idle"
	StatusRunning = "running"
	StatusOK      = "ok"
	StatusFailed  = "failed"
)

// maxLogLines bounds the log kept per pipeline.
const maxLogLines = 500

// PipelineState is what the dashboard knows about one asset pipeline.
type PipelineState struct {
	Name     string
	Status   string
	Queued   bool
	Runs     int
	Written  int
	Failed   int
	Duration time.Duration
	Log      []string
}

// PipelinePaneModel lists the pipelines and shows the log of the selected one.
type PipelinePaneModel struct {
	pipelines   map[string]*PipelineState
	order       []string
	selectedIdx int
	viewport    viewport.Model
	width       int
	height      int
	focused     bool
	updateTag   int
	root        string
}

// NewPipelinePaneModel creates the pane with the given pipelines listed in
// order. Paths in the log are shown relative to root.
func NewPipelinePaneModel(root string, names ...string) PipelinePaneModel {
	m := PipelinePaneModel{
		pipelines: make(map[string]*PipelineState),
		viewport:  viewport.New(0, 0),
		root:      root,
	}
	for _, n := range names {
		m.ensure(n)
	}
	return m
}

// tickMsg debounces viewport refreshes.
type tickMsg struct {
	tag int
}

func (m *PipelinePaneModel) ensure(name string) *PipelineState {
	if p, ok := m.pipelines[name]; ok {
		return p
	}
	p := &PipelineState{Name: name, Status: StatusIdle}
	m.pipelines[name] = p
	m.order = append(m.order, name)
	return p
}

// State returns the state of a pipeline, or nil if it is unknown.
func (m PipelinePaneModel) State(name string) *PipelineState {
	return m.pipelines[name]
}

// Update handles messages for the pipeline pane.
func (m PipelinePaneModel) Update(msg tea.Msg) (PipelinePaneModel, tea.Cmd) {
	var cmd tea.Cmd
	var touched string

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if !m.focused {
			break
		}
		switch msg.String() {
		case KeyJ, KeyDown:
			if m.selectedIdx < len(m.order)-1 {
				m.selectedIdx++
				m.updateViewportContent()
			}
		case KeyK, KeyUp:
			if m.selectedIdx > 0 {
				m.selectedIdx--
				m.updateViewportContent()
			}
		default:
			m.viewport, cmd = m.viewport.Update(msg)
		}

	case events.PipelineStartedEvent:
		p := m.ensure(msg.Pipeline)
		p.Status = StatusRunning
		p.Queued = false
		m.appendLog(p, msg.Timestamp, fmt.Sprintf("started: %d files", msg.Files))
		touched = p.Name

	case events.PipelineFinishedEvent:
		p := m.ensure(msg.Pipeline)
		p.Runs++
		p.Written = msg.Written
		p.Failed = msg.Failed
		p.Duration = msg.Duration
		if msg.Err != nil {
			p.Status = StatusFailed
		} else {
			p.Status = StatusOK
		}
		m.appendLog(p, msg.Timestamp, fmt.Sprintf("finished in %v: %d written, %d failed, %d warnings",
			msg.Duration.Round(time.Millisecond), msg.Written, msg.Failed, msg.Warnings))
		touched = p.Name

	case events.RecordFailedEvent:
		p := m.ensure(msg.Pipeline)
		m.appendLog(p, msg.Timestamp, fmt.Sprintf("%s [%s]: %v", m.rel(msg.Path), msg.Stage, msg.Err))
		touched = p.Name

	case events.FileChangedEvent:
		p := m.ensure(msg.Pipeline)
		m.appendLog(p, msg.Timestamp, fmt.Sprintf("%s %s", msg.Op, m.rel(msg.Path)))
		touched = p.Name

	case events.RunQueuedEvent:
		p := m.ensure(msg.Pipeline)
		p.Queued = true
		m.appendLog(p, msg.Timestamp, "rebuild queued")
		touched = p.Name

	case tickMsg:
		if msg.tag == m.updateTag {
			m.updateViewportContent()
		}
	}

	if touched != "" && touched == m.selectedName() {
		m.updateTag++
		tag := m.updateTag
		return m, tea.Tick(50*time.Millisecond, func(time.Time) tea.Msg {
			return tickMsg{tag: tag}
		})
	}
	return m, cmd
}

func (m *PipelinePaneModel) appendLog(p *PipelineState, at time.Time, line string) {
	if at.IsZero() {
		at = time.Now()
	}
	p.Log = append(p.Log, at.Format("15:04:05")+" "+line)
	if len(p.Log) > maxLogLines {
		p.Log = p.Log[len(p.Log)-maxLogLines:]
	}
}

func (m PipelinePaneModel) rel(path string) string {
	if m.root == "" {
		return path
	}
	if r, err := filepath.Rel(m.root, path); err == nil && !strings.HasPrefix(r, "..") {
		return r
	}
	return path
}

// View renders the pipeline pane.
func (m PipelinePaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	listWidth := 28
	viewportWidth := m.width - listWidth - 4

	content := lipgloss.JoinHorizontal(
		lipgloss.Top,
		m.renderList(listWidth),
		lipgloss.NewStyle().
			Width(viewportWidth).
			Height(m.height-2).
			Render(m.viewport.View()),
	)

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}
	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(content)
}

func (m PipelinePaneModel) renderList(width int) string {
	var b strings.Builder

	title := StyleTitle.Render("Pipelines")
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", min(width, lipgloss.Width(title))))
	b.WriteString("\n\n")

	for i, name := range m.order {
		p := m.pipelines[name]
		line := fmt.Sprintf("%s %-8s", StatusIcon(p.Status), p.Name)
		if p.Runs > 0 {
			line += fmt.Sprintf(" %v", p.Duration.Round(time.Millisecond))
		}
		if p.Queued {
			line += " +1"
		}
		if i == m.selectedIdx {
			line = StyleSelected.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	return lipgloss.NewStyle().
		Width(width).
		Height(m.height - 2).
		Render(b.String())
}

// StatusIcon returns a styled status indicator.
func StatusIcon(status string) string {
	switch status {
	case StatusRunning:
		return StyleStatusRunning.Render("●")
	case StatusOK:
		return StyleStatusComplete.Render("✓")
	case StatusFailed:
		return StyleStatusFailed.Render("✗")
	default:
		return StyleStatusPending.Render("○")
	}
}

func (m PipelinePaneModel) selectedName() string {
	if m.selectedIdx >= 0 && m.selectedIdx < len(m.order) {
		return m.order[m.selectedIdx]
	}
	return ""
}

func (m *PipelinePaneModel) updateViewportContent() {
	p, ok := m.pipelines[m.selectedName()]
	if !ok || len(p.Log) == 0 {
		m.viewport.SetContent("Waiting for changes...")
		return
	}
	m.viewport.SetContent(strings.Join(p.Log, "\n"))
	m.viewport.GotoBottom()
}

func (m *PipelinePaneModel) resizeViewport() {
	listWidth := 28
	m.viewport.Width = max(m.width-listWidth-4, 10)
	m.viewport.Height = max(m.height-4, 5)
}

// SetSize updates the pane dimensions.
func (m *PipelinePaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.resizeViewport()
	m.updateViewportContent()
}

// SetFocused updates the focus state.
func (m *PipelinePaneModel) SetFocused(focused bool) {
	m.focused = focused
}
