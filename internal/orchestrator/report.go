package orchestrator

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/frontbuild/internal/builderrors"
	"github.com/aristath/frontbuild/internal/scheduler"
)

var (
	styleOK      = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	styleFailed  = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	styleSkipped = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	styleLabel   = lipgloss.NewStyle().Foreground(lipgloss.Color("62")).Bold(true)
	styleDetail  = lipgloss.NewStyle().PaddingLeft(4)
)

// Render formats the report for a terminal. Paths are shown relative to root.
func (r *Report) Render(root string) string {
	var b strings.Builder

	if r.Err == nil {
		b.WriteString(styleOK.Render("✓ " + r.Command))
		fmt.Fprintf(&b, " finished in %v\n", r.Duration.Round(time.Millisecond))
		return b.String()
	}

	b.WriteString(styleFailed.Render("✗ " + r.Command))
	fmt.Fprintf(&b, " failed after %v\n", r.Duration.Round(time.Millisecond))

	if tasks := r.Tasks(); len(tasks) > 0 {
		b.WriteString("\n")
		b.WriteString(styleLabel.Render("Tasks"))
		b.WriteString("\n")
		for _, t := range tasks {
			b.WriteString("  ")
			b.WriteString(taskLine(t))
			b.WriteString("\n")
		}
	}

	if len(r.Failures) > 0 {
		b.WriteString("\n")
		b.WriteString(styleLabel.Render(fmt.Sprintf("Files (%d)", len(r.Failures))))
		b.WriteString("\n")
		for _, f := range r.Failures {
			category, _, _ := builderrors.Classify(f.Err)
			if category == "" {
				category = "error"
			}
			fmt.Fprintf(&b, "  %s %s [%s/%s]\n", styleFailed.Render("✗"), relPath(root, f.Path), f.Pipeline, f.Stage)
			for _, line := range strings.Split(f.Err.Error(), "\n") {
				b.WriteString(styleDetail.Render(fmt.Sprintf("%s: %s", category, line)))
				b.WriteString("\n")
			}
		}
	} else {
		b.WriteString("\n")
		b.WriteString(styleDetail.Render(r.Err.Error()))
		b.WriteString("\n")
	}
	return b.String()
}

func taskLine(t *scheduler.Task) string {
	switch t.Status {
	case scheduler.TaskCompleted:
		return fmt.Sprintf("%s %s %v", styleOK.Render("✓"), t.Name, t.Duration.Round(time.Millisecond))
	case scheduler.TaskFailed:
		return fmt.Sprintf("%s %s %v", styleFailed.Render("✗"), t.Name, t.Duration.Round(time.Millisecond))
	default:
		return styleSkipped.Render(fmt.Sprintf("- %s %s", t.Name, t.Status))
	}
}

