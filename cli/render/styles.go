package render

import "github.com/charmbracelet/lipgloss"

// Color palette.
var (
	primaryColor = lipgloss.Color("#7C3AED") // Purple
	successColor = lipgloss.Color("#10B981") // Green
	warningColor = lipgloss.Color("#F59E0B") // Amber
	errorColor   = lipgloss.Color("#EF4444") // Red
	mutedColor   = lipgloss.Color("#6B7280") // Gray
)

type styles struct {
	title   lipgloss.Style
	header  lipgloss.Style
	label   lipgloss.Style
	plain   lipgloss.Style
	success lipgloss.Style
	warning lipgloss.Style
	failure lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) styles {
	return styles{
		title:   r.NewStyle().Bold(true).Foreground(primaryColor),
		header:  r.NewStyle().Bold(true).Underline(true),
		label:   r.NewStyle().Foreground(mutedColor),
		plain:   r.NewStyle(),
		success: r.NewStyle().Foreground(successColor),
		warning: r.NewStyle().Foreground(warningColor),
		failure: r.NewStyle().Foreground(errorColor),
	}
}

// cell picks a style for a table value. Run states and outcomes are colored.
func (s styles) cell(value string) lipgloss.Style {
	switch value {
	case "succeeded", "COMPLETE":
		return s.success
	case "cancelled", "RATE_LIMITED", "PENDING":
		return s.warning
	case "failed", "INCOMPLETE":
		return s.failure
	default:
		return s.plain
	}
}
