package tui

import "github.com/charmbracelet/lipgloss"

var (
	// Base palette
	blueColor   = lipgloss.Color("39")
	greenColor  = lipgloss.Color("42")
	yellowColor = lipgloss.Color("220")
	redColor    = lipgloss.Color("196")
	mutedColor  = lipgloss.Color("241")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(blueColor)

	promptStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Italic(true)

	stageStyle = lipgloss.NewStyle().
			Foreground(blueColor).
			Bold(true)

	completedStyle = lipgloss.NewStyle().
			Foreground(greenColor).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(redColor).
			Bold(true)

	pendingStyle = lipgloss.NewStyle().
			Foreground(yellowColor)

	fileStyle = lipgloss.NewStyle().
			Foreground(greenColor)

	eventStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	helpStyle = lipgloss.NewStyle().
			Foreground(mutedColor)
)

// statusStyle returns the style for a session status label.
func statusStyle(status string) lipgloss.Style {
	switch status {
	case "completed":
		return completedStyle
	case "error":
		return errorStyle
	case "running":
		return stageStyle
	default:
		return pendingStyle
	}
}
