package cli

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/raphaelgruber/council-go/internal/models"
)

// Theme holds the color scheme for run status output.
type Theme struct {
	Active  lipgloss.Color
	Waiting lipgloss.Color
	Success lipgloss.Color
	Error   lipgloss.Color
	Hint    lipgloss.Color
}

// defaultTheme provides default colors.
var defaultTheme = Theme{
	Active:  lipgloss.Color("#5FAFD7"), // light blue
	Waiting: lipgloss.Color("#FFAF00"), // amber
	Success: lipgloss.Color("#00D787"), // green
	Error:   lipgloss.Color("#FF005F"), // red
	Hint:    lipgloss.Color("#6C6C6C"), // dim gray
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

// styledStatus renders a run status in its lifecycle color.
func styledStatus(status models.RunStatus) string {
	var color lipgloss.Color
	switch status {
	case models.RunStatusCreated, models.RunStatusRunning, models.RunStatusCommitting:
		color = defaultTheme.Active
	case models.RunStatusWaitingHuman, models.RunStatusClaimed:
		color = defaultTheme.Waiting
	case models.RunStatusCommitted:
		color = defaultTheme.Success
	case models.RunStatusFailed, models.RunStatusCommitFailed, models.RunStatusRejected:
		color = defaultTheme.Error
	default:
		return string(status)
	}
	return lipgloss.NewStyle().Foreground(color).Bold(true).Render(string(status))
}
