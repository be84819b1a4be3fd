// Package styles holds the lipgloss palette shared by duo's terminal output.
package styles

import "github.com/charmbracelet/lipgloss"

var (
	// Colors - all colors meet WCAG AA contrast (4.5:1) on both black and dark surfaces
	PrimaryColor   = lipgloss.Color("#A78BFA") // Purple
	SecondaryColor = lipgloss.Color("#10B981") // Green
	WarningColor   = lipgloss.Color("#F59E0B") // Amber
	ErrorColor     = lipgloss.Color("#F87171") // Red
	MutedColor     = lipgloss.Color("#9CA3AF") // Gray
	TextColor      = lipgloss.Color("#F9FAFB") // Light text
	BorderColor    = lipgloss.Color("#6B7280") // Gray
	BlueColor      = lipgloss.Color("#60A5FA") // Blue

	// Convenience styles for colors
	Primary   = lipgloss.NewStyle().Foreground(PrimaryColor)
	Secondary = lipgloss.NewStyle().Foreground(SecondaryColor)
	Warning   = lipgloss.NewStyle().Foreground(WarningColor)
	Error     = lipgloss.NewStyle().Foreground(ErrorColor)
	Muted     = lipgloss.NewStyle().Foreground(MutedColor)

	// Base styles
	Title = lipgloss.NewStyle().
		Bold(true).
		Foreground(PrimaryColor)

	Subtitle = lipgloss.NewStyle().
			Foreground(MutedColor).
			Italic(true)

	// Status badge styles
	StatusBadge = lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1)

	// Exchange block, one per exchange in a session view
	ExchangeBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(BorderColor).
			Padding(0, 1)

	ExchangeHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(TextColor)

	FileItem = lipgloss.NewStyle().
			Foreground(BlueColor)

	// Help bar
	HelpBar = lipgloss.NewStyle().
		Foreground(MutedColor).
		MarginTop(1)

	HelpKey = lipgloss.NewStyle().
		Foreground(PrimaryColor).
		Bold(true)
)

// StatusColor returns the color for a session status.
func StatusColor(status string) lipgloss.Color {
	switch status {
	case "created":
		return MutedColor
	case "awaiting_review":
		return WarningColor
	case "reviewed":
		return BlueColor
	case "approved":
		return SecondaryColor
	case "rejected":
		return ErrorColor
	default:
		return MutedColor
	}
}

// StatusIcon returns an icon for a session status.
func StatusIcon(status string) string {
	switch status {
	case "created":
		return "○"
	case "awaiting_review":
		return "●"
	case "reviewed":
		return "↻"
	case "approved":
		return "✓"
	case "rejected":
		return "✗"
	default:
		return "●"
	}
}

// VerdictColor returns the color for a review verdict.
func VerdictColor(verdict string) lipgloss.Color {
	switch verdict {
	case "approved":
		return SecondaryColor
	case "rejected":
		return ErrorColor
	case "changes_requested":
		return WarningColor
	case "needs_clarification":
		return BlueColor
	default:
		return MutedColor
	}
}

// Badge renders status as an icon and label in its status color.
func Badge(status string) string {
	return StatusBadge.Foreground(StatusColor(status)).Render(StatusIcon(status) + " " + status)
}
