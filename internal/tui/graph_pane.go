package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/frontbuild/internal/events"
)

// GraphPaneModel shows the progress of the most recent task graph run.
type GraphPaneModel struct {
	target    string
	total     int
	completed int
	running   int
	failed    int
	skipped   int
	pending   int
	width     int
	height    int
	focused   bool
}

// NewGraphPaneModel creates a new graph pane model.
func NewGraphPaneModel() GraphPaneModel {
	return GraphPaneModel{}
}

// Update handles messages for the graph pane.
func (m GraphPaneModel) Update(msg tea.Msg) (GraphPaneModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case events.GraphProgressEvent:
		m.target = msg.Target
		m.total = msg.Total
		m.completed = msg.Completed
		m.running = msg.Running
		m.failed = msg.Failed
		m.skipped = msg.Skipped
		m.pending = msg.Pending
	}

	return m, nil
}

// View renders the graph pane.
func (m GraphPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	var b strings.Builder

	heading := "Tasks"
	if m.target != "" {
		heading += ": " + m.target
	}
	title := StyleTitle.Render(heading)
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", lipgloss.Width(title)))
	b.WriteString("\n\n")

	b.WriteString(fmt.Sprintf("Total:     %d\n", m.total))
	b.WriteString(fmt.Sprintf("Done:      %s\n", StyleStatusComplete.Render(fmt.Sprintf("%d", m.completed))))
	b.WriteString(fmt.Sprintf("Running:   %s\n", StyleStatusRunning.Render(fmt.Sprintf("%d", m.running))))
	b.WriteString(fmt.Sprintf("Failed:    %s\n", StyleStatusFailed.Render(fmt.Sprintf("%d", m.failed))))
	b.WriteString(fmt.Sprintf("Skipped:   %s\n", StyleStatusPending.Render(fmt.Sprintf("%d", m.skipped))))
	b.WriteString(fmt.Sprintf("Pending:   %s\n", StyleStatusPending.Render(fmt.Sprintf("%d", m.pending))))

	b.WriteString("\n")

	if m.total > 0 {
		barWidth := max(min(m.width-16, 40), 10)
		completedWidth := (m.completed * barWidth) / m.total
		failedWidth := ((m.failed + m.skipped) * barWidth) / m.total
		runningWidth := (m.running * barWidth) / m.total
		pendingWidth := barWidth - completedWidth - failedWidth - runningWidth

		bar := StyleStatusComplete.Render(strings.Repeat("=", max(0, completedWidth)))
		bar += StyleStatusFailed.Render(strings.Repeat("!", max(0, failedWidth)))
		bar += StyleStatusRunning.Render(strings.Repeat("-", max(0, runningWidth)))
		bar += StyleStatusPending.Render(strings.Repeat(".", max(0, pendingWidth)))

		b.WriteString(fmt.Sprintf("[%s]  %d/%d\n", bar, m.completed, m.total))
	}

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}

	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(b.String())
}

// SetSize updates the pane dimensions.
func (m *GraphPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
}

// SetFocused updates the focus state.
func (m *GraphPaneModel) SetFocused(focused bool) {
	m.focused = focused
}
