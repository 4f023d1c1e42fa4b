package ui

import (
	"bytes"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imgscraper/internal/gallery"
	"imgscraper/pkg/models"
)

func init() {
	SetColor(false)
}

func revealed(t *testing.T, n int) []*gallery.Card {
	t.Helper()
	descs := make([]models.ImageDescriptor, n)
	for i := range descs {
		descs[i] = models.ImageDescriptor{SourceURL: "https://x.test/" + string(rune('a'+i)) + ".jpg", AltText: "img"}
	}
	cards, _ := gallery.New(descs, gallery.Options{}).RevealNext()
	require.Len(t, cards, n)
	return cards
}

func TestRenderBar(t *testing.T) {
	assert.Equal(t, "[░░░░] 0/0", RenderBar(0, 0, 4))
	assert.Equal(t, "[██░░] 2/4", RenderBar(2, 4, 4))
	assert.Equal(t, "[████] 5/4", RenderBar(5, 4, 4))
}

func TestStatusTracker(t *testing.T) {
	st := NewStatusTracker(3)
	assert.False(t, st.Done())
	st.Loaded()
	st.Failed()
	assert.Equal(t, 2, st.Settled())
	st.Loaded()
	assert.True(t, st.Done())

	loaded, failed, total := st.Counts()
	assert.Equal(t, 2, loaded)
	assert.Equal(t, 1, failed)
	assert.Equal(t, 3, total)
}

func TestFormatHelpers(t *testing.T) {
	assert.Equal(t, "512 B", FormatBytes(512))
	assert.Equal(t, "1.5 KB", FormatBytes(1536))
	assert.Equal(t, "2.0 MB", FormatBytes(2*1024*1024))
	assert.Equal(t, "42s", FormatDuration(42*time.Second))
	assert.Equal(t, "2m5s", FormatDuration(125*time.Second))
	assert.Equal(t, "1h30m", FormatDuration(90*time.Minute))
}

func TestProgressDisplayPerCard(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgressDisplay(&buf, "https://x.test", true)
	cards := revealed(t, 2)

	p.ScrapeCompleted(2)
	p.BatchRevealed(cards, false)
	p.CardStateChanged(cards[0], gallery.StatePending, gallery.StateLoading)
	assert.False(t, p.Tracker().Done(), "done before any card settled")

	p.CardStateChanged(cards[0], gallery.StateLoading, gallery.StateLoaded)
	p.CardStateChanged(cards[1], gallery.StateLoading, gallery.StateFailed)

	assert.True(t, p.Tracker().Done(), "expected done after every card settled")

	p.Complete()
	out := buf.String()
	assert.Contains(t, out, "found 2 images")
	assert.Contains(t, out, "revealed 2 cards")
	assert.Contains(t, out, "✓ #1 img")
	assert.Contains(t, out, "✗ #2 img")
	assert.Contains(t, out, "1/2 images loaded")
	assert.Contains(t, out, "1 images failed")
}

func TestProgressDisplayScrapeFailed(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgressDisplay(&buf, "https://x.test", false)
	p.ScrapeFailed(errors.New("backend down"))
	p.ScrapeFailed(errors.New("again"))

	assert.Contains(t, buf.String(), "scrape failed: backend down")
}

func TestProgressDisplayEmptyScrape(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgressDisplay(&buf, "https://x.test", false)
	p.ScrapeCompleted(0)
	assert.True(t, p.Tracker().Done())
	assert.Contains(t, buf.String(), "found 0 images")
}

func TestProgressDisplayProgressLine(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgressDisplay(&buf, "https://x.test", false)
	cards := revealed(t, 4)
	p.BatchRevealed(cards, true)
	p.CardStateChanged(cards[0], gallery.StateLoading, gallery.StateLoaded)

	out := buf.String()
	assert.Contains(t, out, "[█████░░░░░░░░░░░░░░░] 1/4")
	assert.NotContains(t, out, "revealed")

	p.Complete()
	assert.Contains(t, buf.String(), "3 images never loaded")
}

type recordingSender struct {
	titles []string
}

func (r *recordingSender) Send(title, message string) error {
	r.titles = append(r.titles, title)
	return nil
}

func TestNotifier(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stdout)

	sender := &recordingSender{}
	n := NewNotifierWithSender(sender)
	n.SendSuccess("Done", "12 images")
	n.SendError("Failed", "backend down")
	NewNotifier(false).SendNotification("Info", "no desktop")

	assert.Equal(t, []string{"Done", "Failed"}, sender.titles)
	assert.Contains(t, buf.String(), "Done: 12 images")
	assert.Contains(t, buf.String(), "Info: no desktop")
}

func TestPrintHelpersWithoutColor(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stdout)

	PrintInfo("Backend", "http://localhost:5001")
	PrintError("scrape failed", errors.New("boom"))
	PrintWarning("careful")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Equal(t, []string{"Backend: http://localhost:5001", "scrape failed: boom", "careful"}, lines)
}
