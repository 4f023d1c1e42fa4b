package materializer

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imgscraper/internal/gallery"
	"imgscraper/internal/scheduler"
	"imgscraper/pkg/errors"
	"imgscraper/pkg/logger"
	"imgscraper/pkg/models"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// mockFetcher serves a fixed PNG and fails for listed URLs
type mockFetcher struct {
	data  []byte
	fail  map[string]bool
	calls int32
}

func (f *mockFetcher) Fetch(ctx context.Context, url string) (models.ImageData, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.fail[url] {
		return models.ImageData{}, errors.New(errors.ErrorTypeProxyFetch, 502, "upstream returned 502")
	}
	return models.ImageData{Data: f.data, ContentType: "image/png"}, nil
}

func newCards(t *testing.T, n int) (*gallery.Gallery, []*gallery.Card) {
	t.Helper()
	descs := make([]models.ImageDescriptor, n)
	for i := range descs {
		descs[i] = models.ImageDescriptor{SourceURL: fmt.Sprintf("https://example.com/%d.png", i)}
	}
	g := gallery.New(descs, gallery.Options{BatchSize: n, Logger: logger.NewNopLogger()})
	cards, _ := g.RevealNext()
	return g, cards
}

func TestMaterializeSuccess(t *testing.T) {
	f := &mockFetcher{data: pngBytes(t, 32, 16)}
	m := New(f, nil, nil, logger.NewNopLogger())
	_, cards := newCards(t, 1)

	m.Materialize(context.Background(), cards[0])

	assert.Equal(t, gallery.StateLoaded, cards[0].State())
	w, h := cards[0].Dimensions()
	assert.Equal(t, 32, w)
	assert.Equal(t, 16, h)
	assert.Equal(t, 0, m.Handles().Live(), "handle revoked after decode")
	assert.Equal(t, 1, m.Handles().Created())
}

func TestMaterializeRunsOncePerCard(t *testing.T) {
	f := &mockFetcher{data: pngBytes(t, 1, 1)}
	m := New(f, nil, nil, logger.NewNopLogger())
	_, cards := newCards(t, 1)

	m.Materialize(context.Background(), cards[0])
	m.Materialize(context.Background(), cards[0])
	assert.Equal(t, int32(1), atomic.LoadInt32(&f.calls))
}

func TestOneOfTenFails(t *testing.T) {
	f := &mockFetcher{
		data: pngBytes(t, 4, 4),
		fail: map[string]bool{"https://example.com/6.png": true},
	}
	m := New(f, nil, nil, logger.NewNopLogger())
	g, cards := newCards(t, 10)

	s := scheduler.New(scheduler.Options{Concurrency: 3, Logger: logger.NewNopLogger()})
	for _, c := range cards {
		c := c
		require.True(t, c.MarkPending())
		require.NoError(t, s.Submit(c.Key(), func(ctx context.Context) { m.Materialize(ctx, c) }))
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Wait(ctx))

	summary := g.Summary()
	assert.Equal(t, 9, summary.Loaded)
	assert.Equal(t, 1, summary.Failed)
	assert.True(t, summary.Settled())

	assert.Equal(t, gallery.StateFailed, cards[6].State())
	assert.True(t, errors.Is(cards[6].Err(), errors.ErrorTypeProxyFetch))
	assert.Equal(t, 0, m.Handles().Live())
}

func TestDetachedCardIsNoop(t *testing.T) {
	f := &mockFetcher{data: pngBytes(t, 1, 1)}
	m := New(f, nil, nil, logger.NewNopLogger())
	g, cards := newCards(t, 1)
	g.Remove(cards[0])

	m.Materialize(context.Background(), cards[0])
	assert.Equal(t, int32(0), atomic.LoadInt32(&f.calls))
	assert.Equal(t, gallery.StatePlaceholder, cards[0].State())
}

func TestDeleteWhileFetching(t *testing.T) {
	release := make(chan struct{})
	fetching := make(chan struct{})
	data := pngBytes(t, 2, 2)
	f := FetcherFunc(func(ctx context.Context, url string) (models.ImageData, error) {
		close(fetching)
		<-release
		return models.ImageData{Data: data, ContentType: "image/png"}, nil
	})
	m := New(f, nil, nil, logger.NewNopLogger())
	g, cards := newCards(t, 1)

	done := make(chan struct{})
	go func() {
		m.Materialize(context.Background(), cards[0])
		close(done)
	}()

	<-fetching
	require.True(t, g.Remove(cards[0]))
	close(release)
	<-done

	assert.False(t, cards[0].Attached())
	assert.Equal(t, gallery.StateLoading, cards[0].State(), "detached card keeps its last state")
	assert.Equal(t, 0, m.Handles().Live(), "handle not leaked")
}

// removingRenderer deletes the card between swap and decode
type removingRenderer struct {
	g    *gallery.Gallery
	card *gallery.Card
}

func (r removingRenderer) Render(data models.ImageData) (int, int, error) {
	r.g.Remove(r.card)
	return ImageRenderer{}.Render(data)
}

func TestDeleteBeforeDecodeRevokesHandle(t *testing.T) {
	f := &mockFetcher{data: pngBytes(t, 3, 3)}
	g, cards := newCards(t, 1)
	m := New(f, nil, removingRenderer{g: g, card: cards[0]}, logger.NewNopLogger())

	m.Materialize(context.Background(), cards[0])

	assert.False(t, cards[0].Attached())
	assert.NotEqual(t, gallery.StateLoaded, cards[0].State())
	assert.Equal(t, 0, m.Handles().Live())
}

func TestDecodeFailure(t *testing.T) {
	f := &mockFetcher{data: []byte("<html>not an image</html>")}
	m := New(f, nil, nil, logger.NewNopLogger())
	_, cards := newCards(t, 1)

	m.Materialize(context.Background(), cards[0])

	assert.Equal(t, gallery.StateFailed, cards[0].State())
	assert.True(t, errors.Is(cards[0].Err(), errors.ErrorTypeDecode))
	assert.Equal(t, 0, m.Handles().Live())
}

func TestCancelledContextFailsCard(t *testing.T) {
	f := FetcherFunc(func(ctx context.Context, url string) (models.ImageData, error) {
		return models.ImageData{}, ctx.Err()
	})
	m := New(f, nil, nil, logger.NewNopLogger())
	_, cards := newCards(t, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m.Materialize(ctx, cards[0])
	assert.Equal(t, gallery.StateFailed, cards[0].State())
}

func TestHandleStore(t *testing.T) {
	s := NewHandleStore()
	a := s.Create(models.ImageData{Data: []byte("a")})
	b := s.Create(models.ImageData{Data: []byte("b")})

	assert.NotEqual(t, a, b)
	assert.Contains(t, a, "blob:")
	assert.Equal(t, 2, s.Live())

	data, ok := s.Open(a)
	require.True(t, ok)
	assert.Equal(t, []byte("a"), data.Data)

	s.Revoke(a)
	s.Revoke(a)
	s.Revoke("blob:unknown")
	assert.Equal(t, 1, s.Live())
	_, ok = s.Open(a)
	assert.False(t, ok)

	assert.Equal(t, 1, s.RevokeAll())
	assert.Equal(t, 0, s.Live())
	assert.Equal(t, 2, s.Created())
}

func TestImageRenderer(t *testing.T) {
	w, h, err := ImageRenderer{}.Render(models.ImageData{Data: pngBytes(t, 7, 9)})
	require.NoError(t, err)
	assert.Equal(t, 7, w)
	assert.Equal(t, 9, h)

	_, _, err = ImageRenderer{}.Render(models.ImageData{Data: nil})
	assert.True(t, errors.Is(err, errors.ErrorTypeDecode))
}

func TestCachingFetcher(t *testing.T) {
	f := &mockFetcher{
		data: []byte("bytes"),
		fail: map[string]bool{"https://example.com/bad.png": true},
	}
	cached, err := NewCachingFetcher(f, 2)
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := cached.Fetch(ctx, "https://example.com/a.png")
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&f.calls))

	for i := 0; i < 2; i++ {
		_, err := cached.Fetch(ctx, "https://example.com/bad.png")
		assert.Error(t, err)
	}
	assert.Equal(t, int32(3), atomic.LoadInt32(&f.calls), "failures are not cached")

	// Evict a.png by filling the cache
	cached.Fetch(ctx, "https://example.com/b.png")
	cached.Fetch(ctx, "https://example.com/c.png")
	cached.Fetch(ctx, "https://example.com/a.png")
	assert.Equal(t, int32(6), atomic.LoadInt32(&f.calls))

	cf := cached.(*CachingFetcher)
	assert.Equal(t, 2, cf.Len())
	cf.Purge()
	assert.Equal(t, 0, cf.Len())
}

func TestCachingFetcherDisabled(t *testing.T) {
	f := &mockFetcher{}
	got, err := NewCachingFetcher(f, 0)
	require.NoError(t, err)
	assert.Same(t, f, got.(*mockFetcher))
}

func TestConcurrentMaterializeSharedStore(t *testing.T) {
	f := &mockFetcher{data: pngBytes(t, 2, 2)}
	m := New(f, nil, nil, logger.NewNopLogger())
	_, cards := newCards(t, 25)

	var wg sync.WaitGroup
	for _, c := range cards {
		wg.Add(1)
		go func(c *gallery.Card) {
			defer wg.Done()
			m.Materialize(context.Background(), c)
		}(c)
	}
	wg.Wait()

	for _, c := range cards {
		assert.Equal(t, gallery.StateLoaded, c.State())
	}
	assert.Equal(t, 0, m.Handles().Live())
}
