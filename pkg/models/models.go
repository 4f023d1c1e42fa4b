package models

import "strings"

// ScrapeMode selects how the backend renders the page before collecting images.
type ScrapeMode string

const (
	// ScrapeModeFast fetches the static HTML only.
	ScrapeModeFast ScrapeMode = "fast"
	// ScrapeModeDeep renders the page in a headless browser and scrolls it first.
	ScrapeModeDeep ScrapeMode = "deep"
)

// ParseScrapeMode maps user input to a ScrapeMode, defaulting to fast.
func ParseScrapeMode(s string) ScrapeMode {
	if strings.EqualFold(strings.TrimSpace(s), string(ScrapeModeDeep)) {
		return ScrapeModeDeep
	}
	return ScrapeModeFast
}

// ImageDescriptor is one image discovered on a scraped page.
type ImageDescriptor struct {
	SourceURL string `json:"src" yaml:"src"`
	AltText   string `json:"alt" yaml:"alt"`
}

// DisplayAlt returns the alt text, or a fallback when the page provided none.
func (d ImageDescriptor) DisplayAlt() string {
	if strings.TrimSpace(d.AltText) == "" {
		return "No alt text"
	}
	return d.AltText
}

// ScrapeRequest is the body of POST /scrape.
type ScrapeRequest struct {
	URL  string     `json:"url"`
	Mode ScrapeMode `json:"mode"`
}

// DownloadImageRequest is the body of POST /download-image.
type DownloadImageRequest struct {
	URL string `json:"url"`
	Alt string `json:"alt"`
}

// DownloadSelectedRequest is the body of POST /download-selected.
type DownloadSelectedRequest struct {
	Images []ImageDescriptor `json:"images"`
}

// ErrorResponse is the JSON error body returned by the backend.
type ErrorResponse struct {
	Error string `json:"error"`
	Type  string `json:"type,omitempty"`
}

// ImageData is the raw payload returned by the proxy endpoint.
type ImageData struct {
	Data        []byte
	ContentType string
}

// Download is a file returned by one of the download endpoints.
type Download struct {
	Filename    string
	ContentType string
	Data        []byte
}
