package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"imgscraper/internal/gallery"
)

// View renders the entire TUI
func (m *Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	sections := []string{
		m.renderTitle(),
		m.renderStatus(),
		m.renderProgress(),
		m.renderGrid(),
		m.renderLog(),
		helpStyle.Render(m.help.View(m.keys)),
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m *Model) renderTitle() string {
	title := titleStyle.Render("IMGSCRAPER")
	mode := dimStyle.Render(string(m.mode))
	url := truncate(m.pageURL, m.width-lipgloss.Width(title)-len(m.mode)-4)
	return fmt.Sprintf("%s %s %s", title, urlStyle.Render(url), mode)
}

func (m *Model) renderStatus() string {
	switch m.status {
	case statusIdle:
		return dimStyle.Render("No page to browse")
	case statusScraping:
		return m.spinner.View() + " " + statsValueStyle.Render("Scraping...")
	case statusFailed:
		return errorStyle.Render("✗ ") + truncate(errorText(m.err), m.width-2)
	}

	s := m.session.Summary()
	parts := []string{
		stat("revealed", fmt.Sprintf("%d/%d", s.Revealed, s.Total)),
		stat("loaded", fmt.Sprint(s.Loaded)),
		stat("loading", fmt.Sprint(s.Loading)),
		stat("queued", fmt.Sprint(s.Pending)),
	}
	if s.Failed > 0 {
		parts = append(parts, errorStyle.Render(fmt.Sprintf("failed %d", s.Failed)))
	}
	if s.Selected > 0 {
		parts = append(parts, GlowText(fmt.Sprintf("selected %d", s.Selected), neonMagenta))
	}
	parts = append(parts, stat("K", fmt.Sprint(m.session.Scheduler().Concurrency())))

	line := strings.Join(parts, dimStyle.Render(" • "))
	if s.Loading > 0 || s.Pending > 0 {
		line = m.spinner.View() + " " + line
	}
	if m.downloading {
		line += " " + warningStyle.Render("downloading")
	}
	return line
}

func stat(label, value string) string {
	return statsLabelStyle.Render(label) + " " + statsValueStyle.Render(value)
}

func (m *Model) renderProgress() string {
	if m.session == nil {
		return ""
	}
	s := m.session.Summary()
	pct := 0.0
	if s.Attached > 0 {
		pct = float64(s.Loaded+s.Failed) / float64(s.Attached)
	}
	bar := m.progress.ViewAs(pct)
	if m.more {
		bar += " " + dimStyle.Render(fmt.Sprintf("m: reveal %d more", min(s.Total-s.Revealed, m.session.Gallery().BatchSize())))
	}
	return bar
}

func (m *Model) renderGrid() string {
	rows := m.visibleRows()
	height := rows * cardLines
	if m.session == nil {
		return lipgloss.NewStyle().Height(height).Render("")
	}

	cards := m.session.Gallery().Cards()
	if len(cards) == 0 {
		return lipgloss.NewStyle().Height(height).Render(dimStyle.Render("No images"))
	}

	cols := m.columns()
	cellWidth := m.width/cols - 2
	if cellWidth < 8 {
		cellWidth = 8
	}

	var lines []string
	for r := m.topRow; r < m.topRow+rows; r++ {
		start := r * cols
		if start >= len(cards) {
			break
		}
		end := min(start+cols, len(cards))

		boxes := make([]string, 0, cols)
		for i := start; i < end; i++ {
			boxes = append(boxes, m.renderCard(cards[i], i == m.cursor, cellWidth))
		}
		lines = append(lines, lipgloss.JoinHorizontal(lipgloss.Top, boxes...))
	}
	return lipgloss.NewStyle().Height(height).Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func (m *Model) renderCard(c *gallery.Card, cursor bool, width int) string {
	inner := width - 2
	state := c.State()
	desc := c.Descriptor()

	head := fmt.Sprintf("#%d %s", c.Index()+1, stateGlyph(state))
	if c.Selected() {
		head += " " + GlowText("●", neonMagenta)
	}

	var body string
	switch state {
	case gallery.StateLoaded:
		w, h := c.Dimensions()
		dims := fmt.Sprintf(" %dx%d", w, h)
		body = truncate(desc.DisplayAlt(), inner-len(dims)) + dimStyle.Render(dims)
	case gallery.StateFailed:
		body = errorStyle.Render(truncate(errorText(c.Err()), inner))
	default:
		body = dimStyle.Render(truncate(desc.DisplayAlt(), inner))
	}

	return cardBoxStyle(cursor, c.Selected()).Width(width).Render(head + "\n" + body)
}

func (m *Model) renderLog() string {
	if len(m.logMessages) == 0 {
		return " "
	}
	msg := m.logMessages[len(m.logMessages)-1]
	ts := logTimestampStyle.Render(msg.Time.Format("15:04:05"))
	text := lipgloss.NewStyle().Foreground(msg.Color).Render(truncate(msg.Message, m.width-10))
	return ts + " " + text
}

func errorText(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if n < 4 {
		n = 4
	}
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
