package ui

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

const (
	ProgressBar   = "█"
	ProgressEmpty = "░"
)

// StatusTracker counts gallery cards as they settle
type StatusTracker struct {
	mu        sync.Mutex
	total     int
	loaded    int
	failed    int
	startTime time.Time
}

// NewStatusTracker creates a tracker expecting total cards
func NewStatusTracker(total int) *StatusTracker {
	return &StatusTracker{total: total, startTime: time.Now()}
}

// SetTotal changes the number of expected cards
func (st *StatusTracker) SetTotal(total int) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.total = total
}

// Loaded records a card that finished loading
func (st *StatusTracker) Loaded() {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.loaded++
}

// Failed records a card that failed
func (st *StatusTracker) Failed() {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.failed++
}

// Counts returns loaded, failed and total
func (st *StatusTracker) Counts() (loaded, failed, total int) {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.loaded, st.failed, st.total
}

// Settled returns how many cards reached a terminal state
func (st *StatusTracker) Settled() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.loaded + st.failed
}

// Done reports whether every expected card settled
func (st *StatusTracker) Done() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.loaded+st.failed >= st.total
}

// ProgressBar renders a bar of the given width for settled/total
func (st *StatusTracker) ProgressBar(width int) string {
	st.mu.Lock()
	settled, total := st.loaded+st.failed, st.total
	st.mu.Unlock()
	return RenderBar(settled, total, width)
}

// RenderBar renders "[███░░] n/total"
func RenderBar(n, total, width int) string {
	filled := 0
	if total > 0 {
		filled = n * width / total
	}
	if filled > width {
		filled = width
	}
	bar := strings.Repeat(ProgressBar, filled) + strings.Repeat(ProgressEmpty, width-filled)
	return fmt.Sprintf("[%s] %d/%d", bar, n, total)
}

// Elapsed returns the time since tracking started
func (st *StatusTracker) Elapsed() time.Duration {
	return time.Since(st.startTime)
}

// Rate returns settled cards per second
func (st *StatusTracker) Rate() float64 {
	elapsed := st.Elapsed().Seconds()
	if elapsed == 0 {
		return 0
	}
	return float64(st.Settled()) / elapsed
}

// FormatDuration formats a duration in a human-readable way
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	}
}

// FormatBytes formats bytes in a human-readable way
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}

	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}

	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
