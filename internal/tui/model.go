package tui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/frontbuild/internal/events"
)

// PaneID identifies which pane is focused.
type PaneID int

const (
	PanePipelines PaneID = iota
	PaneGraph
)

const paneCount = 2

// Model is the root Bubble Tea model for the watch dashboard.
type Model struct {
	title        string
	pipelinePane PipelinePaneModel
	graphPane    GraphPaneModel
	focusedPane  PaneID
	eventSub     <-chan events.Event
	width        int
	height       int
	quitting     bool
}

// New creates a new dashboard model listing the given pipelines.
// It subscribes to all events from the event bus using SubscribeAll.
func New(eventBus *events.EventBus, title, root string, pipelines ...string) Model {
	m := Model{
		title:        title,
		pipelinePane: NewPipelinePaneModel(root, pipelines...),
		graphPane:    NewGraphPaneModel(),
		focusedPane:  PanePipelines,
		eventSub:     eventBus.SubscribeAll(256),
	}
	m.updateFocusStates()
	return m
}

// Init initializes the model and returns the initial command.
func (m Model) Init() tea.Cmd {
	return waitForEvent(m.eventSub)
}

// waitForEvent returns a command that waits for the next event from the event bus.
func waitForEvent(sub <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-sub
		if !ok {
			return nil // bus closed
		}
		return event
	}
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case KeyQuit, KeyCtrlC:
			m.quitting = true
			return m, tea.Quit

		case KeyTab, KeyShiftTab:
			m.focusedPane = (m.focusedPane + 1) % paneCount
			m.updateFocusStates()

		case KeyPane1:
			m.focusedPane = PanePipelines
			m.updateFocusStates()

		case KeyPane2:
			m.focusedPane = PaneGraph
			m.updateFocusStates()

		default:
			var cmd tea.Cmd
			switch m.focusedPane {
			case PanePipelines:
				m.pipelinePane, cmd = m.pipelinePane.Update(msg)
			case PaneGraph:
				m.graphPane, cmd = m.graphPane.Update(msg)
			}
			cmds = append(cmds, cmd)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.computeLayout()

	case tickMsg:
		var cmd tea.Cmd
		m.pipelinePane, cmd = m.pipelinePane.Update(msg)
		cmds = append(cmds, cmd)

	case events.GraphProgressEvent:
		var cmd tea.Cmd
		m.graphPane, cmd = m.graphPane.Update(msg)
		cmds = append(cmds, cmd, waitForEvent(m.eventSub))

	case events.Event:
		var cmd tea.Cmd
		m.pipelinePane, cmd = m.pipelinePane.Update(msg)
		cmds = append(cmds, cmd, waitForEvent(m.eventSub))
	}

	return m, tea.Batch(cmds...)
}

// View renders the dashboard.
func (m Model) View() string {
	if m.quitting {
		return "Goodbye!\n"
	}

	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	header := StyleTitle.Render(m.title)
	mainContent := lipgloss.JoinHorizontal(lipgloss.Top, m.pipelinePane.View(), m.graphPane.View())
	return lipgloss.JoinVertical(lipgloss.Left, header, mainContent, HelpView())
}

// computeLayout calculates pane dimensions and updates all child models.
func (m *Model) computeLayout() {
	leftWidth := (m.width * 65) / 100
	rightWidth := m.width - leftWidth
	availableHeight := m.height - 2 // title and help bar

	m.pipelinePane.SetSize(leftWidth, availableHeight)
	m.graphPane.SetSize(rightWidth, availableHeight)

	m.updateFocusStates()
}

// updateFocusStates updates the focus state of all panes.
func (m *Model) updateFocusStates() {
	m.pipelinePane.SetFocused(m.focusedPane == PanePipelines)
	m.graphPane.SetFocused(m.focusedPane == PaneGraph)
}

// Pipeline returns the dashboard state of a pipeline, or nil.
func (m Model) Pipeline(name string) *PipelineState {
	return m.pipelinePane.State(name)
}
