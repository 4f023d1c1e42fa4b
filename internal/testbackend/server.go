// Package testbackend runs an in-process scrape backend for tests.
package testbackend

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"imgscraper/pkg/models"
)

// Server simulates the scrape backend endpoints with configurable failures
type Server struct {
	server *httptest.Server

	mu          sync.RWMutex
	pages       map[string][]models.ImageDescriptor
	images      map[string][]byte
	failImages  map[string]int
	errors      map[string]int
	delays      map[string]time.Duration
	token       string
	scrapeFails int32

	requestCount int32
	proxyCalls   int32
	inFlight     int32
	peakInFlight int32
}

// New starts a backend with no pages
func New() *Server {
	s := &Server{
		pages:      make(map[string][]models.ImageDescriptor),
		images:     make(map[string][]byte),
		failImages: make(map[string]int),
		errors:     make(map[string]int),
		delays:     make(map[string]time.Duration),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/scrape", s.handleScrape)
	mux.HandleFunc("/proxy", s.handleProxy)
	mux.HandleFunc("/download-image", s.handleDownloadImage)
	mux.HandleFunc("/download-selected", s.handleDownloadSelected)

	s.server = httptest.NewServer(s.middleware(mux))
	return s
}

// URL returns the backend root
func (s *Server) URL() string {
	return s.server.URL
}

// Close shuts the backend down
func (s *Server) Close() {
	s.server.Close()
}

// AddPage registers n images on pageURL, each served as a small PNG.
// Image i lives at <pageURL>/img/<i>.png with alt text "image <i>".
func (s *Server) AddPage(pageURL string, n int) []models.ImageDescriptor {
	descs := make([]models.ImageDescriptor, n)
	for i := range descs {
		descs[i] = models.ImageDescriptor{
			SourceURL: fmt.Sprintf("%s/img/%d.png", strings.TrimRight(pageURL, "/"), i),
			AltText:   fmt.Sprintf("image %d", i),
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages[pageURL] = descs
	for i, d := range descs {
		s.images[d.SourceURL] = Pixel(4+i%4, 3+i%3)
	}
	return descs
}

// FailImage makes the proxy answer code for src
func (s *Server) FailImage(src string, code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failImages[src] = code
}

// SetErrorResponse makes every request to path answer code
func (s *Server) SetErrorResponse(path string, code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors[path] = code
}

// ClearErrorResponse removes a configured error
func (s *Server) ClearErrorResponse(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.errors, path)
}

// FailScrapes makes the next n scrape requests answer 503
func (s *Server) FailScrapes(n int) {
	atomic.StoreInt32(&s.scrapeFails, int32(n))
}

// SetDelay holds every request to path for d
func (s *Server) SetDelay(path string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays[path] = d
}

// RequireToken rejects requests without this bearer token
func (s *Server) RequireToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

// RequestCount returns how many requests reached the backend
func (s *Server) RequestCount() int {
	return int(atomic.LoadInt32(&s.requestCount))
}

// ProxyCalls returns how many proxy requests reached the backend
func (s *Server) ProxyCalls() int {
	return int(atomic.LoadInt32(&s.proxyCalls))
}

// PeakProxyInFlight returns the most proxy requests served at once
func (s *Server) PeakProxyInFlight() int {
	return int(atomic.LoadInt32(&s.peakInFlight))
}

// ResetCounters zeroes the request counters
func (s *Server) ResetCounters() {
	atomic.StoreInt32(&s.requestCount, 0)
	atomic.StoreInt32(&s.proxyCalls, 0)
	atomic.StoreInt32(&s.peakInFlight, 0)
}

func (s *Server) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&s.requestCount, 1)

		s.mu.RLock()
		token := s.token
		code := s.errors[r.URL.Path]
		delay := s.delays[r.URL.Path]
		s.mu.RUnlock()

		if token != "" && r.Header.Get("Authorization") != "Bearer "+token {
			s.sendError(w, http.StatusUnauthorized, "missing or invalid token")
			return
		}
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}
		if code > 0 {
			s.sendError(w, code, http.StatusText(code))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	_, _ = w.Write([]byte("Backend is running."))
}

func (s *Server) handleScrape(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	if atomic.AddInt32(&s.scrapeFails, -1) >= 0 {
		s.sendError(w, http.StatusServiceUnavailable, "browser pool exhausted")
		return
	}

	var req models.ScrapeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		s.sendError(w, http.StatusBadRequest, "URL is required")
		return
	}

	s.mu.RLock()
	descs, ok := s.pages[req.URL]
	s.mu.RUnlock()
	if !ok {
		s.sendError(w, http.StatusInternalServerError, "failed to fetch "+req.URL)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(descs)
}

func (s *Server) handleProxy(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt32(&s.proxyCalls, 1)
	cur := atomic.AddInt32(&s.inFlight, 1)
	defer atomic.AddInt32(&s.inFlight, -1)
	for {
		peak := atomic.LoadInt32(&s.peakInFlight)
		if cur <= peak || atomic.CompareAndSwapInt32(&s.peakInFlight, peak, cur) {
			break
		}
	}

	src := r.URL.Query().Get("url")
	s.mu.RLock()
	code := s.failImages[src]
	data, ok := s.images[src]
	s.mu.RUnlock()

	switch {
	case code > 0:
		http.Error(w, "upstream fetch failed", code)
	case !ok:
		http.Error(w, "image not found", http.StatusNotFound)
	default:
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(data)
	}
}

func (s *Server) handleDownloadImage(w http.ResponseWriter, r *http.Request) {
	var req models.DownloadImageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		s.sendError(w, http.StatusBadRequest, "URL is required")
		return
	}

	data, ok := s.lookup(req.URL)
	if !ok {
		s.sendError(w, http.StatusNotFound, "image not found")
		return
	}

	name := strings.ReplaceAll(req.Alt, " ", "_")
	if name == "" {
		name = "image"
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name+".png"))
	_, _ = w.Write(data)
}

func (s *Server) handleDownloadSelected(w http.ResponseWriter, r *http.Request) {
	var req models.DownloadSelectedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Images) == 0 {
		http.Error(w, "No images selected for download.", http.StatusBadRequest)
		return
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for i, d := range req.Images {
		data, ok := s.lookup(d.SourceURL)
		if !ok {
			continue
		}
		f, err := zw.Create(fmt.Sprintf("image_%d.png", i+1))
		if err != nil {
			s.sendError(w, http.StatusInternalServerError, err.Error())
			return
		}
		_, _ = f.Write(data)
	}
	if err := zw.Close(); err != nil {
		s.sendError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="images.zip"`)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) lookup(src string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failImages[src] > 0 {
		return nil, false
	}
	data, ok := s.images[src]
	return data, ok
}

func (s *Server) sendError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(models.ErrorResponse{Error: msg})
}

// Pixel encodes a w x h PNG
func Pixel(w, h int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(40 * x), G: uint8(60 * y), B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return buf.Bytes()
}
