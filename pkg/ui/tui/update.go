package tui

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"imgscraper/internal/export"
	"imgscraper/internal/gallery"
	"imgscraper/internal/session"
	"imgscraper/pkg/config"
)

// ScrapeCompletedMsg is sent when the backend returned the page's images
type ScrapeCompletedMsg struct {
	Count int
}

// ScrapeFailedMsg is sent when a scrape failed
type ScrapeFailedMsg struct {
	Err error
}

// BatchRevealedMsg is sent when placeholder cards were added
type BatchRevealedMsg struct {
	Cards []*gallery.Card
	More  bool
}

// CardStateMsg is sent when a card changed state
type CardStateMsg struct {
	Card *gallery.Card
	From gallery.State
	To   gallery.State
}

// TickMsg is sent periodically to redraw card states
type TickMsg time.Time

type sessionReadyMsg struct {
	seq     int
	session *session.Session
	err     error
}

type downloadDoneMsg struct {
	count  int
	result *export.Result
	err    error
}

const tickInterval = 250 * time.Millisecond

func tickCmd() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// Update handles all messages and updates the model
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.moveCursor(m.cursor)
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case TickMsg:
		return m, tickCmd()

	case sessionReadyMsg:
		return m.handleSessionReady(msg)

	case ScrapeCompletedMsg:
		m.AddLogMessage("SUCCESS", fmt.Sprintf("Found %d images", msg.Count))
		return m, nil

	case ScrapeFailedMsg:
		m.status = statusFailed
		m.err = msg.Err
		m.AddLogMessage("ERROR", msg.Err.Error())
		return m, nil

	case BatchRevealedMsg:
		m.more = msg.More
		m.AddLogMessage("INFO", fmt.Sprintf("Revealed %d cards", len(msg.Cards)))
		return m, nil

	case CardStateMsg:
		if msg.To == gallery.StateFailed {
			m.AddLogMessage("WARN", fmt.Sprintf("#%d failed: %v", msg.Card.Index()+1, msg.Card.Err()))
		}
		return m, nil

	case downloadDoneMsg:
		m.downloading = false
		if msg.err != nil {
			m.AddLogMessage("ERROR", "Download failed: "+msg.err.Error())
			return m, nil
		}
		if len(msg.result.Files) > 0 {
			m.AddLogMessage("SUCCESS", fmt.Sprintf("Saved %d images to %s", msg.count, filepath.Base(msg.result.Files[0])))
		}
		return m, nil
	}

	return m, nil
}

func (m *Model) handleSessionReady(msg sessionReadyMsg) (tea.Model, tea.Cmd) {
	if msg.seq != m.seq || errors.Is(msg.err, session.ErrSuperseded) {
		return m, nil
	}
	if msg.err != nil {
		m.status = statusFailed
		m.err = msg.err
		return m, nil
	}

	m.session = msg.session
	m.status = statusReady
	m.err = nil
	m.pageURL = msg.session.PageURL()
	m.mode = msg.session.Mode()
	m.more = msg.session.HasMore()
	m.moveCursor(0)
	return m, nil
}

func (m *Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		m.moveCursor(m.cursor)
		return m, nil

	case key.Matches(msg, m.keys.Rescrape):
		if m.pageURL == "" || m.status == statusScraping {
			return m, nil
		}
		return m, m.scrapeCmd()
	}

	if m.session == nil {
		return m, nil
	}
	cols := m.columns()

	switch {
	case key.Matches(msg, m.keys.Up):
		m.moveCursor(m.cursor - cols)
	case key.Matches(msg, m.keys.Down):
		m.moveCursor(m.cursor + cols)
	case key.Matches(msg, m.keys.Left):
		m.moveCursor(m.cursor - 1)
	case key.Matches(msg, m.keys.Right):
		m.moveCursor(m.cursor + 1)
	case key.Matches(msg, m.keys.PageUp):
		m.moveCursor(m.cursor - cols*m.visibleRows())
	case key.Matches(msg, m.keys.PageDown):
		m.moveCursor(m.cursor + cols*m.visibleRows())
	case key.Matches(msg, m.keys.Home):
		m.moveCursor(0)
	case key.Matches(msg, m.keys.End):
		m.moveCursor(m.cardCount() - 1)

	case key.Matches(msg, m.keys.More):
		cards, more := m.session.RevealNext()
		m.more = more
		if len(cards) == 0 {
			m.AddLogMessage("INFO", "No more images")
		}

	case key.Matches(msg, m.keys.Select):
		if c, ok := m.currentCard(); ok {
			c.ToggleSelected()
		}
	case key.Matches(msg, m.keys.SelectAll):
		m.session.Gallery().SelectAll()
	case key.Matches(msg, m.keys.SelectNone):
		m.session.Gallery().DeselectAll()

	case key.Matches(msg, m.keys.Delete):
		if c, ok := m.currentCard(); ok && m.session.Remove(c) {
			m.moveCursor(m.cursor)
		}
	case key.Matches(msg, m.keys.DeleteSel):
		if n := m.session.RemoveSelected(); n > 0 {
			m.AddLogMessage("INFO", fmt.Sprintf("Deleted %d cards", n))
			m.moveCursor(m.cursor)
		}

	case key.Matches(msg, m.keys.Download):
		return m, m.downloadSelectedCmd()
	case key.Matches(msg, m.keys.DownloadOne):
		return m, m.downloadCurrentCmd()

	case key.Matches(msg, m.keys.Faster):
		m.changeConcurrency(1)
	case key.Matches(msg, m.keys.Slower):
		m.changeConcurrency(-1)
	}
	return m, nil
}

func (m *Model) changeConcurrency(delta int) {
	k := m.session.Scheduler().Concurrency() + delta
	if k > config.MaxConcurrency {
		m.AddLogMessage("WARN", fmt.Sprintf("Concurrency is capped at %d", config.MaxConcurrency))
		return
	}
	if err := m.session.SetConcurrency(k); err != nil {
		m.AddLogMessage("WARN", fmt.Sprintf("Concurrency must be at least 1 (%v)", err))
		return
	}
	m.AddLogMessage("INFO", fmt.Sprintf("Loading %d images at a time", k))
}

// scrapeCmd replaces the current session with a fresh scrape of pageURL
func (m *Model) scrapeCmd() tea.Cmd {
	m.seq++
	m.status = statusScraping
	m.err = nil
	m.session = nil
	m.cursor, m.topRow = 0, 0
	m.AddLogMessage("INFO", "Scraping "+m.pageURL)

	ctx, mgr, seq, url, mode := m.ctx, m.manager, m.seq, m.pageURL, m.mode
	return func() tea.Msg {
		s, err := mgr.Start(ctx, url, mode)
		return sessionReadyMsg{seq: seq, session: s, err: err}
	}
}

// restoreCmd rebuilds the snapshot's session without scraping
func (m *Model) restoreCmd() tea.Cmd {
	m.seq++
	m.status = statusScraping
	m.AddLogMessage("INFO", "Restoring session for "+m.restore.PageURL)

	mgr, seq, snap := m.manager, m.seq, m.restore
	m.restore = nil
	return func() tea.Msg {
		s, err := mgr.Restore(snap)
		return sessionReadyMsg{seq: seq, session: s, err: err}
	}
}

func (m *Model) downloadSelectedCmd() tea.Cmd {
	if m.downloader == nil || m.downloading {
		return nil
	}
	descs := m.session.Selection()
	if len(descs) == 0 {
		m.AddLogMessage("WARN", "No images selected")
		return nil
	}

	m.downloading = true
	m.AddLogMessage("INFO", fmt.Sprintf("Downloading %d images", len(descs)))
	ctx, dl, src := m.ctx, m.downloader, m.source()
	return func() tea.Msg {
		res, err := dl.Selected(ctx, src, descs)
		return downloadDoneMsg{count: len(descs), result: res, err: err}
	}
}

func (m *Model) downloadCurrentCmd() tea.Cmd {
	if m.downloader == nil || m.downloading {
		return nil
	}
	c, ok := m.currentCard()
	if !ok {
		return nil
	}

	m.downloading = true
	desc := c.Descriptor()
	ctx, dl, src := m.ctx, m.downloader, m.source()
	return func() tea.Msg {
		res, err := dl.Single(ctx, src, desc)
		return downloadDoneMsg{count: 1, result: res, err: err}
	}
}
