package tui

import (
	"github.com/charmbracelet/lipgloss"

	"imgscraper/internal/gallery"
)

var (
	// Cyberpunk color palette
	neonCyan    = lipgloss.Color("#00FFFF")
	neonMagenta = lipgloss.Color("#FF00FF")
	neonGreen   = lipgloss.Color("#39FF14")
	neonYellow  = lipgloss.Color("#FFFF00")
	neonOrange  = lipgloss.Color("#FF6700")
	errorRed    = lipgloss.Color("#FF0000")
	darkBg      = lipgloss.Color("#0A0E27")
	dimWhite    = lipgloss.Color("#B0B0B0")
	dimGray     = lipgloss.Color("#444444")

	titleStyle = lipgloss.NewStyle().
			Background(neonMagenta).
			Foreground(darkBg).
			Bold(true).
			Padding(0, 1)

	urlStyle = lipgloss.NewStyle().
			Foreground(neonCyan)

	statsLabelStyle = lipgloss.NewStyle().
			Foreground(neonCyan).
			Bold(true)

	statsValueStyle = lipgloss.NewStyle().
			Foreground(neonYellow)

	successStyle = lipgloss.NewStyle().
			Foreground(neonGreen).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(errorRed).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(neonOrange).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(dimWhite).
			Faint(true)

	// Card boxes
	cardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(dimGray).
			Padding(0, 1)

	cardCursorStyle = cardStyle.
			BorderForeground(neonCyan)

	cardSelectedStyle = cardStyle.
				BorderForeground(neonMagenta)

	cardCursorSelectedStyle = cardStyle.
				BorderForeground(neonMagenta).
				BorderStyle(lipgloss.ThickBorder())

	logTimestampStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#666666"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262")).
			PaddingLeft(1)
)

// cardBoxStyle picks the border for a card
func cardBoxStyle(cursor, selected bool) lipgloss.Style {
	switch {
	case cursor && selected:
		return cardCursorSelectedStyle
	case cursor:
		return cardCursorStyle
	case selected:
		return cardSelectedStyle
	default:
		return cardStyle
	}
}

// stateGlyph renders a card state as one styled rune
func stateGlyph(s gallery.State) string {
	switch s {
	case gallery.StatePending:
		return warningStyle.Render("…")
	case gallery.StateLoading:
		return statsValueStyle.Render("◌")
	case gallery.StateLoaded:
		return successStyle.Render("✓")
	case gallery.StateFailed:
		return errorStyle.Render("✗")
	default:
		return dimStyle.Render("·")
	}
}

// GlowText renders text bold in color
func GlowText(text string, color lipgloss.Color) string {
	return lipgloss.NewStyle().
		Foreground(color).
		Bold(true).
		Render(text)
}
