// Package checkpoint saves and restores browse sessions.
//
// A snapshot records the scraped page, the discovered images, how far the
// gallery was revealed and which cards were deleted or selected, so
// `imgscraper browse --resume` can rebuild the gallery without scraping again.
//
// Snapshots live under the platform data directory unless
// output.snapshot_directory is set:
//   - Linux: $XDG_DATA_HOME/imgscraper/sessions/ or ~/.local/share/imgscraper/sessions/
//   - macOS: ~/Library/Application Support/imgscraper/sessions/
//   - Windows: %APPDATA%/imgscraper/sessions/
//
// Files are written to a temporary path and renamed into place.
package checkpoint
