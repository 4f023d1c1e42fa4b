// Package ratelimit provides the pacing primitives used by imgscraper.
//
// Token Bucket and Sliding Window budget outgoing requests to the scrape
// backend (see FromConfig). Spacer, built on golang.org/x/time/rate, spaces
// consecutive task starts in the gallery scheduler.
//
// Token Bucket and Sliding Window implement Limiter:
//
//	limiter := ratelimit.NewTokenBucket(20, 2*time.Second)
//	if err := limiter.Wait(ctx); err != nil {
//	    return err // ctx cancelled
//	}
//
// Spacer hands out ordered reservations instead, so a caller can book its
// start time under its own lock and sleep outside it:
//
//	spacer := ratelimit.NewSpacer(500 * time.Millisecond)
//	delay := spacer.Reserve() // 0, then 500ms, then 1s...
package ratelimit
