package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imgscraper/internal/gallery"
	"imgscraper/internal/materializer"
	"imgscraper/internal/viewport"
	apperrors "imgscraper/pkg/errors"
	"imgscraper/pkg/logger"
	"imgscraper/pkg/models"
)

type fakeScraper struct {
	descs   []models.ImageDescriptor
	err     error
	calls   int32
	gate    chan struct{}
	entered chan struct{}
}

func (f *fakeScraper) Scrape(ctx context.Context, pageURL string, mode models.ScrapeMode) ([]models.ImageDescriptor, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.entered != nil {
		close(f.entered)
	}
	if f.gate != nil {
		<-f.gate
	}
	return f.descs, f.err
}

type recordingListener struct {
	mu          sync.Mutex
	completed   []int
	failed      []error
	batches     []int
	transitions map[string]int
}

func newRecordingListener() *recordingListener {
	return &recordingListener{transitions: make(map[string]int)}
}

func (r *recordingListener) ScrapeCompleted(n int) {
	r.mu.Lock()
	r.completed = append(r.completed, n)
	r.mu.Unlock()
}

func (r *recordingListener) ScrapeFailed(err error) {
	r.mu.Lock()
	r.failed = append(r.failed, err)
	r.mu.Unlock()
}

func (r *recordingListener) BatchRevealed(cards []*gallery.Card, more bool) {
	r.mu.Lock()
	r.batches = append(r.batches, len(cards))
	r.mu.Unlock()
}

func (r *recordingListener) CardStateChanged(c *gallery.Card, from, to gallery.State) {
	r.mu.Lock()
	r.transitions[to.String()]++
	r.mu.Unlock()
}

func (r *recordingListener) count(state string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.transitions[state]
}

func descs(n int) []models.ImageDescriptor {
	out := make([]models.ImageDescriptor, n)
	for i := range out {
		out[i] = models.ImageDescriptor{SourceURL: fmt.Sprintf("https://example.com/%d.png", i), AltText: fmt.Sprint(i)}
	}
	return out
}

func pngFetcher(t *testing.T) materializer.Fetcher {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 5, 5))))
	data := buf.Bytes()
	return materializer.FetcherFunc(func(ctx context.Context, url string) (models.ImageData, error) {
		return models.ImageData{Data: data, ContentType: "image/png"}, nil
	})
}

func testOptions(l Listener) Options {
	return Options{
		BatchSize:     50,
		Concurrency:   3,
		PreloadMargin: 0,
		Layout:        gallery.Layout{Columns: 4, RowHeight: 100},
		Listener:      l,
		Logger:        logger.NewNopLogger(),
	}
}

func waitSettled(t *testing.T, s *Session) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Wait(ctx))
}

func TestStartRevealsFirstBatch(t *testing.T) {
	rec := newRecordingListener()
	m := NewManager(&fakeScraper{descs: descs(120)}, pngFetcher(t), testOptions(rec))

	s, err := m.Start(context.Background(), " https://example.com/page ", models.ScrapeModeFast)
	require.NoError(t, err)
	require.NotNil(t, s)

	assert.Same(t, s, m.Current())
	assert.Equal(t, "https://example.com/page", s.PageURL())
	assert.Equal(t, []int{120}, rec.completed)
	assert.Equal(t, []int{50}, rec.batches)
	assert.True(t, s.HasMore())

	_, more := s.RevealNext()
	assert.True(t, more)
	_, more = s.RevealNext()
	assert.False(t, more)
	assert.Equal(t, []int{50, 50, 20}, rec.batches)

	cards, more := s.RevealNext()
	assert.Empty(t, cards)
	assert.False(t, more)
	assert.Equal(t, []int{50, 50, 20}, rec.batches)
}

func TestRevealToAndRevealAll(t *testing.T) {
	rec := newRecordingListener()
	m := NewManager(&fakeScraper{descs: descs(120)}, pngFetcher(t), testOptions(rec))
	s, err := m.Start(context.Background(), "https://example.com", models.ScrapeModeFast)
	require.NoError(t, err)

	assert.Empty(t, s.RevealTo(30), "already past the target")
	assert.Equal(t, 50, s.Gallery().Revealed())

	cards := s.RevealTo(60)
	assert.Len(t, cards, 50, "whole batches only")
	assert.Equal(t, 100, s.Gallery().Revealed())
	assert.True(t, s.HasMore())

	cards = s.RevealAll()
	assert.Len(t, cards, 20)
	assert.Equal(t, 120, s.Gallery().Revealed())
	assert.False(t, s.HasMore())
	assert.Empty(t, s.RevealAll())
	assert.Equal(t, []int{50, 50, 20}, rec.batches)
}

func TestNegativePreloadMarginUsesDefault(t *testing.T) {
	opts := testOptions(nil)
	opts.PreloadMargin = -1
	m := NewManager(&fakeScraper{descs: descs(1)}, pngFetcher(t), opts)
	s, err := m.Start(context.Background(), "https://example.com", models.ScrapeModeFast)
	require.NoError(t, err)
	assert.Equal(t, viewport.DefaultMargin, s.observer.Margin())

	opts.PreloadMargin = 0
	m = NewManager(&fakeScraper{descs: descs(1)}, pngFetcher(t), opts)
	s, err = m.Start(context.Background(), "https://example.com", models.ScrapeModeFast)
	require.NoError(t, err)
	assert.Equal(t, 0, s.observer.Margin())
}

func TestNothingLoadsUntilVisible(t *testing.T) {
	rec := newRecordingListener()
	m := NewManager(&fakeScraper{descs: descs(20)}, pngFetcher(t), testOptions(rec))
	s, err := m.Start(context.Background(), "https://example.com", models.ScrapeModeFast)
	require.NoError(t, err)

	waitSettled(t, s)
	assert.Equal(t, 20, s.Summary().Placeholder)

	// Two rows of four on screen
	s.Scroll(viewport.Rect{Top: 0, Height: 200})
	waitSettled(t, s)
	sum := s.Summary()
	assert.Equal(t, 8, sum.Loaded)
	assert.Equal(t, 12, sum.Placeholder)

	s.Scroll(viewport.Rect{Top: 400, Height: 100})
	waitSettled(t, s)
	assert.Equal(t, 12, s.Summary().Loaded)

	// Scrolling back does not fetch again
	s.Scroll(viewport.Rect{Top: 0, Height: 500})
	waitSettled(t, s)
	assert.Equal(t, 20, s.Summary().Loaded)
	assert.Equal(t, 20, rec.count("loaded"))
	assert.Equal(t, 20, rec.count("pending"))
	assert.Equal(t, 0, s.Handles().Live())
}

func TestInitialViewportLoadsFirstScreen(t *testing.T) {
	opts := testOptions(nil)
	opts.Viewport = viewport.Rect{Top: 0, Height: 100}
	opts.PreloadMargin = 100
	m := NewManager(&fakeScraper{descs: descs(30)}, pngFetcher(t), opts)

	s, err := m.Start(context.Background(), "https://example.com", models.ScrapeModeDeep)
	require.NoError(t, err)
	waitSettled(t, s)

	// Rows 0 and 1 fall inside [-100, 200)
	assert.Equal(t, 8, s.Summary().Loaded)
	assert.Equal(t, models.ScrapeModeDeep, s.Mode())
}

func TestConcurrencyCapWithinSession(t *testing.T) {
	var current, peak int32
	release := make(chan struct{})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 1, 1))))
	fetcher := materializer.FetcherFunc(func(ctx context.Context, url string) (models.ImageData, error) {
		n := atomic.AddInt32(&current, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		<-release
		atomic.AddInt32(&current, -1)
		return models.ImageData{Data: buf.Bytes()}, nil
	})

	m := NewManager(&fakeScraper{descs: descs(10)}, fetcher, testOptions(nil))
	s, err := m.Start(context.Background(), "https://example.com", models.ScrapeModeFast)
	require.NoError(t, err)

	s.Scroll(viewport.Rect{Top: 0, Height: 1000})
	assert.Eventually(t, func() bool { return s.Summary().Loading == 3 }, time.Second, time.Millisecond)
	assert.Equal(t, 7, s.Summary().Pending)

	close(release)
	waitSettled(t, s)
	assert.Equal(t, int32(3), atomic.LoadInt32(&peak))
	assert.Equal(t, 10, s.Summary().Loaded)
}

func TestScrapeFailureLeavesNoSession(t *testing.T) {
	rec := newRecordingListener()
	m := NewManager(&fakeScraper{err: errors.New("connection refused")}, pngFetcher(t), testOptions(rec))

	s, err := m.Start(context.Background(), "https://example.com", models.ScrapeModeFast)
	require.Error(t, err)
	assert.Nil(t, s)
	assert.Nil(t, m.Current())
	assert.True(t, apperrors.Is(err, apperrors.ErrorTypeScrape))
	assert.Len(t, rec.failed, 1)
	assert.Empty(t, rec.completed)
	assert.Empty(t, rec.batches)
}

func TestEmptyURLRejected(t *testing.T) {
	scraper := &fakeScraper{descs: descs(1)}
	rec := newRecordingListener()
	m := NewManager(scraper, pngFetcher(t), testOptions(rec))

	_, err := m.Start(context.Background(), "   ", models.ScrapeModeFast)
	assert.True(t, apperrors.Is(err, apperrors.ErrorTypeInvalid))
	assert.Equal(t, int32(0), atomic.LoadInt32(&scraper.calls))
	assert.Len(t, rec.failed, 1)
}

func TestNewScrapeDisposesPreviousSession(t *testing.T) {
	rec := newRecordingListener()
	release := make(chan struct{})
	fetching := make(chan struct{}, 10)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 1, 1))))
	fetcher := materializer.FetcherFunc(func(ctx context.Context, url string) (models.ImageData, error) {
		select {
		case fetching <- struct{}{}:
		default:
		}
		select {
		case <-release:
		case <-ctx.Done():
			// Ignore cancellation to simulate a late response
			<-release
		}
		return models.ImageData{Data: buf.Bytes()}, nil
	})

	m := NewManager(&fakeScraper{descs: descs(10)}, fetcher, testOptions(rec))
	first, err := m.Start(context.Background(), "https://example.com/one", models.ScrapeModeFast)
	require.NoError(t, err)
	first.Scroll(viewport.Rect{Top: 0, Height: 1000})
	for i := 0; i < 3; i++ {
		<-fetching
	}
	oldCards := first.Gallery().Cards()
	loadedBefore := rec.count("loaded")

	second, err := m.Start(context.Background(), "https://example.com/two", models.ScrapeModeFast)
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.True(t, first.Disposed())
	assert.True(t, first.Scheduler().Closed())
	assert.Equal(t, 0, first.Gallery().Len())
	for _, c := range oldCards {
		assert.False(t, c.Attached())
	}

	// Late responses for the old session change nothing
	close(release)
	waitSettled(t, first)
	assert.Equal(t, loadedBefore, rec.count("loaded"))
	assert.Equal(t, 0, first.Handles().Live())
	assert.Equal(t, 0, first.Summary().Attached)

	// Old session ignores further interaction
	first.Scroll(viewport.Rect{Top: 0, Height: 1000})
	cards, more := first.RevealNext()
	assert.Empty(t, cards)
	assert.False(t, more)

	second.Scroll(viewport.Rect{Top: 0, Height: 1000})
	waitSettled(t, second)
	assert.Equal(t, 10, second.Summary().Loaded)
}

func TestDeleteBeforeFetchResolves(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 1, 1))))
	fetcher := materializer.FetcherFunc(func(ctx context.Context, url string) (models.ImageData, error) {
		once.Do(func() { close(started) })
		<-release
		return models.ImageData{Data: buf.Bytes()}, nil
	})

	opts := testOptions(nil)
	opts.Concurrency = 1
	m := NewManager(&fakeScraper{descs: descs(4)}, fetcher, opts)
	s, err := m.Start(context.Background(), "https://example.com", models.ScrapeModeFast)
	require.NoError(t, err)

	s.Scroll(viewport.Rect{Top: 0, Height: 100})
	<-started

	cards := s.Gallery().Cards()
	require.True(t, s.Remove(cards[0]))
	require.True(t, s.Remove(cards[3]), "queued card")
	close(release)
	waitSettled(t, s)

	assert.False(t, cards[0].Attached())
	assert.Equal(t, 2, s.Summary().Loaded)
	assert.Equal(t, 0, s.Handles().Live())
}

func TestRemoveSelectedAndSelection(t *testing.T) {
	m := NewManager(&fakeScraper{descs: descs(6)}, pngFetcher(t), testOptions(nil))
	s, err := m.Start(context.Background(), "https://example.com", models.ScrapeModeFast)
	require.NoError(t, err)

	cards := s.Gallery().Cards()
	cards[1].SetSelected(true)
	cards[4].SetSelected(true)
	assert.Equal(t, []models.ImageDescriptor{cards[1].Descriptor(), cards[4].Descriptor()}, s.Selection())

	assert.Equal(t, 2, s.RemoveSelected())
	assert.Equal(t, 4, s.Gallery().Len())
	assert.Empty(t, s.Selection())
	assert.Equal(t, 0, s.RemoveSelected())
}

func TestSnapshotAndRestore(t *testing.T) {
	rec := newRecordingListener()
	opts := testOptions(rec)
	opts.BatchSize = 5
	m := NewManager(&fakeScraper{descs: descs(12)}, pngFetcher(t), opts)

	s, err := m.Start(context.Background(), "https://example.com", models.ScrapeModeDeep)
	require.NoError(t, err)
	s.RevealNext()
	cards := s.Gallery().Cards()
	s.Remove(cards[2])
	cards[7].SetSelected(true)

	snap := s.Snapshot()
	assert.Equal(t, 10, snap.Revealed)
	assert.Equal(t, []int{2}, snap.Removed)
	assert.Equal(t, []int{7}, snap.Selected)
	assert.Len(t, snap.Descriptors, 12)

	m.Clear()
	assert.Nil(t, m.Current())
	assert.True(t, s.Disposed())

	restored, err := m.Restore(snap)
	require.NoError(t, err)
	assert.Same(t, restored, m.Current())
	assert.Equal(t, s.ID(), restored.ID())
	assert.Equal(t, "https://example.com", restored.PageURL())
	assert.Equal(t, models.ScrapeModeDeep, restored.Mode())
	assert.Equal(t, 10, restored.Gallery().Revealed())
	assert.Equal(t, 9, restored.Gallery().Len())
	assert.Equal(t, []models.ImageDescriptor{descs(12)[7]}, restored.Selection())
	assert.True(t, restored.HasMore())

	_, err = m.Restore(nil)
	assert.Error(t, err)
}

func TestClearSupersedesInFlightScrape(t *testing.T) {
	scraper := &fakeScraper{descs: descs(3), gate: make(chan struct{}), entered: make(chan struct{})}
	rec := newRecordingListener()
	m := NewManager(scraper, pngFetcher(t), testOptions(rec))

	errCh := make(chan error, 1)
	go func() {
		_, err := m.Start(context.Background(), "https://example.com", models.ScrapeModeFast)
		errCh <- err
	}()

	<-scraper.entered
	m.Clear()
	close(scraper.gate)

	assert.ErrorIs(t, <-errCh, ErrSuperseded)
	assert.Nil(t, m.Current())
	assert.Empty(t, rec.completed)
}

func TestRuntimeTuning(t *testing.T) {
	m := NewManager(&fakeScraper{descs: descs(1)}, pngFetcher(t), testOptions(nil))
	s, err := m.Start(context.Background(), "https://example.com", models.ScrapeModeFast)
	require.NoError(t, err)

	require.NoError(t, s.SetConcurrency(5))
	assert.Equal(t, 5, s.Scheduler().Concurrency())
	assert.Error(t, s.SetConcurrency(0))

	s.SetMinStartInterval(200 * time.Millisecond)
	assert.Equal(t, 200*time.Millisecond, s.Scheduler().MinStartInterval())
}

func TestListenersFanOut(t *testing.T) {
	a, b := newRecordingListener(), newRecordingListener()
	ls := Listeners{a, b, NopListener{}}
	ls.ScrapeCompleted(3)
	ls.ScrapeFailed(errors.New("x"))
	ls.BatchRevealed(nil, false)
	assert.Equal(t, []int{3}, a.completed)
	assert.Equal(t, []int{3}, b.completed)
	assert.Len(t, b.failed, 1)
	assert.Len(t, a.batches, 1)
}
