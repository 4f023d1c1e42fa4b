package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imgscraper/internal/export"
	"imgscraper/internal/gallery"
	"imgscraper/internal/materializer"
	"imgscraper/internal/session"
	"imgscraper/pkg/checkpoint"
	"imgscraper/pkg/config"
	"imgscraper/pkg/logger"
	"imgscraper/pkg/models"
)

type fakeScraper struct {
	descs []models.ImageDescriptor
	err   error
}

func (f *fakeScraper) Scrape(ctx context.Context, pageURL string, mode models.ScrapeMode) ([]models.ImageDescriptor, error) {
	return f.descs, f.err
}

type stubRenderer struct{}

func (stubRenderer) Render(models.ImageData) (int, int, error) { return 64, 48, nil }

type fakeDownloader struct {
	mu       sync.Mutex
	selected [][]models.ImageDescriptor
	single   []models.ImageDescriptor
}

func (f *fakeDownloader) Selected(ctx context.Context, src export.Source, descs []models.ImageDescriptor) (*export.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.selected = append(f.selected, descs)
	return &export.Result{Files: []string{"/tmp/images.zip"}}, nil
}

func (f *fakeDownloader) Single(ctx context.Context, src export.Source, desc models.ImageDescriptor) (*export.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.single = append(f.single, desc)
	return &export.Result{Files: []string{"/tmp/" + desc.AltText + ".png"}}, nil
}

var testLayout = gallery.Layout{Columns: 3, RowHeight: 100}

func descriptors(n int) []models.ImageDescriptor {
	out := make([]models.ImageDescriptor, n)
	for i := range out {
		out[i] = models.ImageDescriptor{SourceURL: fmt.Sprintf("https://x.test/%d.png", i), AltText: fmt.Sprintf("img%d", i)}
	}
	return out
}

func newTestModel(t *testing.T, scraper session.Scraper, dl Downloader) *Model {
	t.Helper()
	fetch := materializer.FetcherFunc(func(ctx context.Context, url string) (models.ImageData, error) {
		if strings.Contains(url, "/5.png") {
			return models.ImageData{}, errors.New("proxy returned 502")
		}
		return models.ImageData{Data: []byte("png"), ContentType: "image/png"}, nil
	})
	mgr := session.NewManager(scraper, fetch, session.Options{
		BatchSize:   6,
		Concurrency: 2,
		Layout:      testLayout,
		Renderer:    stubRenderer{},
		Logger:      logger.NewNopLogger(),
	})
	t.Cleanup(mgr.Clear)

	return NewModel(context.Background(), mgr, Options{
		PageURL:    "https://x.test/page",
		Layout:     testLayout,
		Downloader: dl,
		Logger:     logger.NewNopLogger(),
	})
}

// height leaves exactly rows card rows on screen
func resize(m *Model, rows int) {
	m.Update(tea.WindowSizeMsg{Width: 90, Height: headerLines + m.footerLines() + rows*cardLines})
}

func scrape(t *testing.T, m *Model) {
	t.Helper()
	cmd := m.scrapeCmd()
	require.NotNil(t, cmd)
	m.Update(cmd())
	require.NotNil(t, m.Session())
}

func settle(t *testing.T, m *Model) gallery.Summary {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, m.Session().Wait(ctx))
	return m.Session().Summary()
}

func press(m *Model, keys ...string) tea.Cmd {
	var cmd tea.Cmd
	for _, k := range keys {
		var msg tea.KeyMsg
		switch k {
		case "space":
			msg = tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
		case "down":
			msg = tea.KeyMsg{Type: tea.KeyDown}
		default:
			msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
		}
		_, cmd = m.Update(msg)
	}
	return cmd
}

func TestScrapeLoadsOnlyVisibleRows(t *testing.T) {
	m := newTestModel(t, &fakeScraper{descs: descriptors(20)}, nil)
	resize(m, 1)
	scrape(t, m)

	assert.Equal(t, statusReady, m.status)
	assert.True(t, m.more)

	s := settle(t, m)
	assert.Equal(t, 6, s.Revealed)
	assert.Equal(t, 3, s.Loaded)
	assert.Equal(t, 3, s.Placeholder)

	press(m, "j")
	assert.Equal(t, 3, m.cursor)
	assert.Equal(t, 1, m.topRow)

	s = settle(t, m)
	assert.Equal(t, 5, s.Loaded)
	assert.Equal(t, 1, s.Failed)
	assert.Zero(t, s.Placeholder)
}

func TestRevealMore(t *testing.T) {
	m := newTestModel(t, &fakeScraper{descs: descriptors(8)}, nil)
	resize(m, 4)
	scrape(t, m)

	press(m, "m")
	s := settle(t, m)
	assert.Equal(t, 8, s.Revealed)
	assert.False(t, m.more)

	press(m, "m")
	assert.Equal(t, "No more images", m.logMessages[len(m.logMessages)-1].Message)
	assert.Equal(t, 8, m.Session().Summary().Revealed)
}

func TestSelectionAndDelete(t *testing.T) {
	m := newTestModel(t, &fakeScraper{descs: descriptors(6)}, nil)
	resize(m, 2)
	scrape(t, m)
	g := m.Session().Gallery()

	press(m, "l", "space")
	c, ok := g.CardAt(1)
	require.True(t, ok)
	assert.True(t, c.Selected())

	press(m, "a")
	assert.Equal(t, 6, g.Summary().Selected)
	press(m, "n")
	assert.Zero(t, g.Summary().Selected)

	press(m, "x")
	assert.Equal(t, 5, g.Len())
	assert.False(t, c.Attached())

	press(m, "G")
	assert.Equal(t, 4, m.cursor)
	press(m, "x")
	assert.Equal(t, 3, m.cursor)

	first, _ := g.CardAt(0)
	first.SetSelected(true)
	press(m, "X")
	assert.Equal(t, 3, g.Len())
}

func TestDownloads(t *testing.T) {
	dl := &fakeDownloader{}
	m := newTestModel(t, &fakeScraper{descs: descriptors(6)}, dl)
	resize(m, 2)
	scrape(t, m)

	assert.Nil(t, press(m, "d"))
	assert.Equal(t, "No images selected", m.logMessages[len(m.logMessages)-1].Message)

	press(m, "space", "l", "space")
	cmd := press(m, "d")
	require.NotNil(t, cmd)
	assert.True(t, m.downloading)
	assert.Nil(t, press(m, "D"), "one download at a time")

	m.Update(cmd())
	assert.False(t, m.downloading)
	require.Len(t, dl.selected, 1)
	assert.Equal(t, []string{"img0", "img1"}, []string{dl.selected[0][0].AltText, dl.selected[0][1].AltText})

	cmd = press(m, "D")
	require.NotNil(t, cmd)
	m.Update(cmd())
	require.Len(t, dl.single, 1)
	assert.Equal(t, "img1", dl.single[0].AltText)
	assert.Contains(t, m.logMessages[len(m.logMessages)-1].Message, "img1.png")
}

func TestConcurrencyKeys(t *testing.T) {
	m := newTestModel(t, &fakeScraper{descs: descriptors(3)}, nil)
	resize(m, 2)
	scrape(t, m)
	sched := m.Session().Scheduler()

	press(m, "+")
	assert.Equal(t, 3, sched.Concurrency())
	press(m, "-", "-")
	assert.Equal(t, 1, sched.Concurrency())
	press(m, "-")
	assert.Equal(t, 1, sched.Concurrency())
	assert.Equal(t, "WARN", m.logMessages[len(m.logMessages)-1].Level)
}

func TestConcurrencyKeyStopsAtConfiguredMaximum(t *testing.T) {
	m := newTestModel(t, &fakeScraper{descs: descriptors(3)}, nil)
	resize(m, 2)
	scrape(t, m)
	sched := m.Session().Scheduler()

	for i := 0; i < config.MaxConcurrency+5; i++ {
		press(m, "+")
	}
	assert.Equal(t, config.MaxConcurrency, sched.Concurrency())
	last := m.logMessages[len(m.logMessages)-1]
	assert.Equal(t, "WARN", last.Level)
	assert.Contains(t, last.Message, "capped at")
}

func TestScrapeFailure(t *testing.T) {
	m := newTestModel(t, &fakeScraper{err: errors.New("backend down")}, nil)
	resize(m, 2)

	cmd := m.scrapeCmd()
	m.Update(cmd())
	assert.Equal(t, statusFailed, m.status)
	assert.Nil(t, m.Session())
	assert.Contains(t, m.View(), "backend down")
}

func TestStaleScrapeResultIgnored(t *testing.T) {
	m := newTestModel(t, &fakeScraper{descs: descriptors(3)}, nil)
	resize(m, 2)

	stale := m.scrapeCmd()
	fresh := m.scrapeCmd()
	staleMsg := stale()
	m.Update(fresh())
	current := m.Session()
	require.NotNil(t, current)

	m.Update(staleMsg)
	assert.Same(t, current, m.Session())
}

func TestRestoreSkipsScrape(t *testing.T) {
	scraper := &fakeScraper{err: errors.New("must not scrape")}
	m := newTestModel(t, scraper, nil)
	m.restore = &checkpoint.Snapshot{
		PageURL:     "https://x.test/old",
		Mode:        models.ScrapeModeDeep,
		Descriptors: descriptors(9),
		Revealed:    9,
		Removed:     []int{0},
	}
	resize(m, 3)

	m.Update(m.restoreCmd()())
	require.NotNil(t, m.Session())
	assert.Equal(t, "https://x.test/old", m.pageURL)
	assert.Equal(t, models.ScrapeModeDeep, m.mode)
	assert.Equal(t, 8, m.Session().Gallery().Len())
}

func TestViewRendersCards(t *testing.T) {
	m := newTestModel(t, &fakeScraper{descs: descriptors(6)}, nil)
	assert.Equal(t, "Initializing...", m.View())

	resize(m, 2)
	scrape(t, m)
	settle(t, m)
	m.Update(TickMsg(time.Now()))

	out := m.View()
	assert.Contains(t, out, "IMGSCRAPER")
	assert.Contains(t, out, "https://x.test/page")
	assert.Contains(t, out, "#1")
	assert.Contains(t, out, "64x48")
	assert.Contains(t, out, "proxy returned 502")
}

func TestBridgeNeverBlocks(t *testing.T) {
	b := NewBridge()
	b.ScrapeCompleted(3)
	msg := <-b.msgs
	assert.Equal(t, ScrapeCompletedMsg{Count: 3}, msg)

	done := make(chan struct{})
	go func() {
		for i := 0; i < bridgeBuffer+10; i++ {
			b.ScrapeFailed(errors.New("x"))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("bridge blocked on a full buffer")
	}
	assert.Equal(t, 10, b.Dropped())

	b.Close()
	b.Close()
	b.BatchRevealed(nil, false)
	assert.Equal(t, 10, b.Dropped())
}

func TestBridgeMessagesUpdateModel(t *testing.T) {
	m := newTestModel(t, &fakeScraper{descs: descriptors(3)}, nil)
	m.Update(ScrapeCompletedMsg{Count: 3})
	assert.Equal(t, "Found 3 images", m.logMessages[len(m.logMessages)-1].Message)

	m.Update(ScrapeFailedMsg{Err: errors.New("timeout")})
	assert.Equal(t, statusFailed, m.status)
	assert.Equal(t, "ERROR", m.logMessages[len(m.logMessages)-1].Level)
}
