// Package backend is the HTTP client for the scrape backend.
//
// The backend exposes five endpoints:
//   - POST /scrape            page URL and mode in, image descriptors out
//   - GET  /proxy?url=        raw image bytes, used to materialize gallery cards
//   - POST /download-image    one image as an attachment
//   - POST /download-selected a zip archive of the selection
//   - GET  /                  health
//
// Every request waits on the configured ratelimit.Limiter first. Failures come
// back as *errors.Error typed by operation (scrape, proxy_fetch, download).
// They are final unless WithRetry is set, and proxy fetches are final always.
//
// Example usage:
//
//	client := backend.NewClient("http://localhost:5001", 30*time.Second, log,
//		backend.WithToken(token),
//		backend.WithLimiter(ratelimit.FromConfig(cfg.RateLimit)))
//
//	images, err := client.Scrape(ctx, "https://example.com", models.ScrapeModeFast)
package backend
