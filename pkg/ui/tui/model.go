package tui

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"imgscraper/internal/export"
	"imgscraper/internal/gallery"
	"imgscraper/internal/session"
	"imgscraper/internal/viewport"
	"imgscraper/pkg/checkpoint"
	"imgscraper/pkg/logger"
	"imgscraper/pkg/models"
)

// Screen layout in terminal lines. Every card box is a bordered two line box.
const (
	headerLines = 3
	cardLines   = 4
	maxLogLines = 50
)

type status int

const (
	statusIdle status = iota
	statusScraping
	statusReady
	statusFailed
)

// Downloader saves images picked in the browser
type Downloader interface {
	Selected(ctx context.Context, src export.Source, descs []models.ImageDescriptor) (*export.Result, error)
	Single(ctx context.Context, src export.Source, desc models.ImageDescriptor) (*export.Result, error)
}

// Options configures the browser model
type Options struct {
	PageURL string
	Mode    models.ScrapeMode
	// Restore, when set, rebuilds that session instead of scraping PageURL
	Restore    *checkpoint.Snapshot
	Layout     gallery.Layout
	Downloader Downloader
	Logger     logger.Logger
}

// LogMessage is a line in the browser's activity log
type LogMessage struct {
	Time    time.Time
	Level   string
	Message string
	Color   lipgloss.Color
}

// Model is the gallery browser
type Model struct {
	ctx        context.Context
	manager    *session.Manager
	session    *session.Session
	downloader Downloader
	logger     logger.Logger

	pageURL string
	mode    models.ScrapeMode
	restore *checkpoint.Snapshot
	layout  gallery.Layout

	status      status
	err         error
	more        bool
	downloading bool
	// seq tags scrape commands so a stale result cannot replace a newer one
	seq int

	spinner  spinner.Model
	progress progress.Model
	help     help.Model
	keys     keyMap

	width       int
	height      int
	cursor      int
	topRow      int
	logMessages []LogMessage
}

// NewModel creates the browser. Sessions are created through manager.
func NewModel(ctx context.Context, manager *session.Manager, opts Options) *Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(neonCyan)

	p := progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage())
	p.Width = 30

	if opts.Layout.Columns < 1 || opts.Layout.RowHeight < 1 {
		opts.Layout = gallery.DefaultLayout
	}
	if opts.Mode == "" {
		opts.Mode = models.ScrapeModeFast
	}
	if opts.Restore != nil && opts.PageURL == "" {
		opts.PageURL = opts.Restore.PageURL
	}

	return &Model{
		ctx:        ctx,
		manager:    manager,
		downloader: opts.Downloader,
		logger:     logger.OrGlobal(opts.Logger).WithField("component", "tui"),
		pageURL:    opts.PageURL,
		mode:       opts.Mode,
		restore:    opts.Restore,
		layout:     opts.Layout,
		spinner:    s,
		progress:   p,
		help:       help.New(),
		keys:       newKeyMap(),
	}
}

// Init starts the spinner and the first scrape or restore
func (m *Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.spinner.Tick, tickCmd()}
	switch {
	case m.restore != nil:
		cmds = append(cmds, m.restoreCmd())
	case m.pageURL != "":
		cmds = append(cmds, m.scrapeCmd())
	}
	return tea.Batch(cmds...)
}

// Session returns the session being browsed, or nil
func (m *Model) Session() *session.Session {
	return m.session
}

// AddLogMessage appends a line to the activity log
func (m *Model) AddLogMessage(level, message string) {
	color := dimWhite
	switch level {
	case "ERROR":
		color = errorRed
	case "WARN":
		color = neonOrange
	case "SUCCESS":
		color = neonGreen
	case "INFO":
		color = neonCyan
	}

	m.logMessages = append(m.logMessages, LogMessage{
		Time:    time.Now(),
		Level:   level,
		Message: message,
		Color:   color,
	})
	if len(m.logMessages) > maxLogLines {
		m.logMessages = m.logMessages[len(m.logMessages)-maxLogLines:]
	}
}

func (m *Model) columns() int {
	if m.session != nil {
		return m.session.Gallery().Layout().Columns
	}
	return m.layout.Columns
}

func (m *Model) rowHeight() int {
	if m.session != nil {
		return m.session.Gallery().Layout().RowHeight
	}
	return m.layout.RowHeight
}

func (m *Model) footerLines() int {
	return 1 + lipgloss.Height(m.help.View(m.keys))
}

// visibleRows is how many card rows fit between header and footer
func (m *Model) visibleRows() int {
	rows := (m.height - headerLines - m.footerLines()) / cardLines
	if rows < 1 {
		return 1
	}
	return rows
}

// viewportRect maps the rows on screen to the gallery's pixel space
func (m *Model) viewportRect() viewport.Rect {
	rh := m.rowHeight()
	return viewport.Rect{Top: m.topRow * rh, Height: m.visibleRows() * rh}
}

// syncViewport tells the session which rows are on screen. New sessions
// start with the same viewport.
func (m *Model) syncViewport() {
	if m.height == 0 {
		return
	}
	vp := m.viewportRect()
	m.manager.SetViewport(vp)
	if m.session != nil {
		m.session.Scroll(vp)
	}
}

func (m *Model) cardCount() int {
	if m.session == nil {
		return 0
	}
	return m.session.Gallery().Len()
}

func (m *Model) currentCard() (*gallery.Card, bool) {
	if m.session == nil {
		return nil, false
	}
	return m.session.Gallery().CardAt(m.cursor)
}

// moveCursor clamps the cursor to the attached cards and scrolls so it
// stays on screen
func (m *Model) moveCursor(to int) {
	n := m.cardCount()
	if to >= n {
		to = n - 1
	}
	if to < 0 {
		to = 0
	}
	m.cursor = to

	cols := m.columns()
	row := m.cursor / cols
	rows := m.visibleRows()
	switch {
	case row < m.topRow:
		m.topRow = row
	case row >= m.topRow+rows:
		m.topRow = row - rows + 1
	}

	lastRow := 0
	if n > 0 {
		lastRow = (n - 1) / cols
	}
	if m.topRow > lastRow {
		m.topRow = lastRow
	}
	if m.topRow < 0 {
		m.topRow = 0
	}
	m.syncViewport()
}

func (m *Model) source() export.Source {
	if m.session == nil {
		return export.Source{PageURL: m.pageURL, Mode: m.mode}
	}
	return export.Source{
		PageURL:   m.session.PageURL(),
		Mode:      m.session.Mode(),
		SessionID: m.session.ID(),
	}
}
