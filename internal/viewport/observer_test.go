package viewport

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

type box struct {
	key string
	mu  sync.Mutex
	r   Rect
}

func (b *box) Key() string { return b.key }

func (b *box) Bounds() Rect {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.r
}

func (b *box) move(top int) {
	b.mu.Lock()
	b.r.Top = top
	b.mu.Unlock()
}

type recorder struct {
	mu   sync.Mutex
	keys []string
}

func (r *recorder) record(el Element) {
	r.mu.Lock()
	r.keys = append(r.keys, el.Key())
	r.mu.Unlock()
}

func (r *recorder) fired() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.keys...)
}

// column lays out n boxes of height h stacked from y=0
func column(n, h int) []*box {
	boxes := make([]*box, n)
	for i := range boxes {
		boxes[i] = &box{key: fmt.Sprintf("card-%d", i), r: Rect{Top: i * h, Height: h}}
	}
	return boxes
}

func TestRectIntersects(t *testing.T) {
	area := Rect{Top: 100, Height: 100}

	tests := []struct {
		name string
		r    Rect
		want bool
	}{
		{"inside", Rect{Top: 120, Height: 20}, true},
		{"overlaps top", Rect{Top: 50, Height: 60}, true},
		{"touches top edge", Rect{Top: 50, Height: 50}, false},
		{"starts at bottom edge", Rect{Top: 200, Height: 10}, false},
		{"spans whole area", Rect{Top: 0, Height: 500}, true},
		{"zero height inside", Rect{Top: 150}, true},
		{"zero height at bottom", Rect{Top: 200}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.r.Intersects(area))
		})
	}
}

func TestNothingFiresWithoutViewport(t *testing.T) {
	rec := &recorder{}
	o := NewObserver(rec.record)
	for _, b := range column(5, 100) {
		o.Observe(b)
	}
	assert.Empty(t, rec.fired())
	assert.Equal(t, 5, o.Observed())
}

func TestMarginPreloadsBelowTheFold(t *testing.T) {
	rec := &recorder{}
	o := NewObserver(rec.record)
	assert.Equal(t, DefaultMargin, o.Margin())

	for _, b := range column(10, 100) {
		o.Observe(b)
	}

	// Visible 0..300, extended to 500 with the default margin
	o.SetViewport(Rect{Top: 0, Height: 300})
	assert.Equal(t, []string{"card-0", "card-1", "card-2", "card-3", "card-4"}, rec.fired())
	assert.Equal(t, 5, o.Observed())
}

func TestFiresOnceInObserveOrder(t *testing.T) {
	rec := &recorder{}
	o := NewObserver(rec.record, WithMargin(0))

	boxes := column(6, 100)
	// Observe in reverse to check order follows Observe, not position
	for i := len(boxes) - 1; i >= 0; i-- {
		o.Observe(boxes[i])
	}

	o.SetViewport(Rect{Top: 0, Height: 600})
	o.SetViewport(Rect{Top: 0, Height: 600})
	o.SetViewport(Rect{Top: 100, Height: 200})

	assert.Equal(t, []string{"card-5", "card-4", "card-3", "card-2", "card-1", "card-0"}, rec.fired())
	assert.Equal(t, 0, o.Observed())

	// Re-observing a fired element does nothing
	o.Observe(boxes[0])
	o.SetViewport(Rect{Top: 0, Height: 600})
	assert.Len(t, rec.fired(), 6)
}

func TestScrollingRevealsProgressively(t *testing.T) {
	rec := &recorder{}
	o := NewObserver(rec.record, WithMargin(0))
	for _, b := range column(10, 100) {
		o.Observe(b)
	}

	o.SetViewport(Rect{Top: 0, Height: 200})
	assert.Len(t, rec.fired(), 2)

	o.SetViewport(Rect{Top: 500, Height: 200})
	assert.Equal(t, []string{"card-0", "card-1", "card-5", "card-6"}, rec.fired())

	o.SetViewport(Rect{Top: 150, Height: 100})
	assert.Equal(t, []string{"card-0", "card-1", "card-5", "card-6", "card-2"}, rec.fired())
}

func TestObserveWithKnownViewportFiresImmediately(t *testing.T) {
	rec := &recorder{}
	o := NewObserver(rec.record, WithMargin(0))
	o.SetViewport(Rect{Top: 0, Height: 300})

	boxes := column(5, 100)
	for _, b := range boxes {
		o.Observe(b)
	}
	assert.Equal(t, []string{"card-0", "card-1", "card-2"}, rec.fired())
	assert.Equal(t, 2, o.Observed())
}

func TestCheckAfterLayoutShift(t *testing.T) {
	rec := &recorder{}
	o := NewObserver(rec.record, WithMargin(0))
	boxes := column(4, 100)
	for _, b := range boxes {
		o.Observe(b)
	}
	o.SetViewport(Rect{Top: 0, Height: 200})
	assert.Len(t, rec.fired(), 2)

	// A card above was removed; the rest move up
	boxes[2].move(100)
	o.Check()
	assert.Equal(t, []string{"card-0", "card-1", "card-2"}, rec.fired())
}

func TestUnobserve(t *testing.T) {
	rec := &recorder{}
	o := NewObserver(rec.record, WithMargin(0))
	boxes := column(3, 100)
	for _, b := range boxes {
		o.Observe(b)
	}
	o.Unobserve(boxes[1])
	o.Unobserve(boxes[1])

	o.SetViewport(Rect{Top: 0, Height: 300})
	assert.Equal(t, []string{"card-0", "card-2"}, rec.fired())
}

func TestDisconnect(t *testing.T) {
	rec := &recorder{}
	o := NewObserver(rec.record)
	boxes := column(3, 100)
	for _, b := range boxes {
		o.Observe(b)
	}

	o.Disconnect()
	assert.False(t, o.Connected())
	assert.Equal(t, 0, o.Observed())

	o.Observe(&box{key: "late", r: Rect{Top: 0, Height: 10}})
	o.SetViewport(Rect{Top: 0, Height: 1000})
	o.Check()
	assert.Empty(t, rec.fired())
}

func TestCallbackMayObserveMore(t *testing.T) {
	var o *Observer
	rec := &recorder{}
	extra := &box{key: "extra", r: Rect{Top: 50, Height: 10}}
	o = NewObserver(func(el Element) {
		rec.record(el)
		if el.Key() == "card-0" {
			o.Observe(extra)
		}
	}, WithMargin(0))

	o.Observe(column(1, 100)[0])
	o.SetViewport(Rect{Top: 0, Height: 100})
	assert.Equal(t, []string{"card-0", "extra"}, rec.fired())
}
