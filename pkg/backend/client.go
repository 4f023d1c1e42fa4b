package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "imgscraper/pkg/errors"
	"imgscraper/pkg/logger"
	"imgscraper/pkg/models"
	"imgscraper/pkg/ratelimit"
	"imgscraper/pkg/retry"
)

const (
	// DefaultBaseURL is where the backend listens when run locally
	DefaultBaseURL = "http://localhost:5001"

	// BatchArchiveName is the file name the backend gives the selection archive
	BatchArchiveName = "images.zip"

	maxErrorBody = 4096
)

// Client talks to the scrape backend
type Client struct {
	httpClient *http.Client
	headers    map[string]string
	baseURL    string
	token      string
	limiter    ratelimit.Limiter
	retry      *retry.Config
	logger     logger.Logger
}

// Option customizes a Client
type Option func(*Client)

// WithToken sends token as a bearer credential on every request
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = strings.TrimSpace(token)
	}
}

// WithLimiter makes every request wait on l first
func WithLimiter(l ratelimit.Limiter) Option {
	return func(c *Client) {
		if l != nil {
			c.limiter = l
		}
	}
}

// WithRetry retries scrape, download and health calls up to attempts times
// in total when they fail with a network error, 429 or 5xx. Proxy fetches
// are never retried; a failed card is retried by the user.
func WithRetry(attempts int, backoff retry.BackoffStrategy) Option {
	return func(c *Client) {
		if attempts <= 1 {
			c.retry = nil
			return
		}
		c.retry = &retry.Config{
			MaxAttempts: attempts,
			Backoff:     backoff,
			RetryIf:     retry.DefaultRetryIf,
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithUserAgent overrides the User-Agent header
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.headers["User-Agent"] = ua
		}
	}
}

// NewClient creates a backend client for baseURL
func NewClient(baseURL string, timeout time.Duration, log logger.Logger, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		headers: map[string]string{
			"User-Agent": "imgscraper/1.0",
			"Accept":     "*/*",
		},
		baseURL: strings.TrimRight(baseURL, "/"),
		limiter: ratelimit.Unlimited{},
		logger:  logger.OrGlobal(log).WithField("component", "backend"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.retry != nil {
		c.retry.Logger = c.logger
	}
	return c
}

// BaseURL returns the backend root
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) retrying(ctx context.Context, op retry.Operation) error {
	if c.retry == nil {
		return op(ctx)
	}
	return retry.Do(ctx, op, c.retry)
}

// retryingWithResult is retrying for calls that produce a value
func retryingWithResult[T any](ctx context.Context, c *Client, op func(ctx context.Context) (T, error)) (T, error) {
	if c.retry == nil {
		return op(ctx)
	}
	return retry.DoWithResult(ctx, op, c.retry)
}

// rawResponse is a successful response body and its status
type rawResponse struct {
	body   []byte
	status int
}

func (c *Client) endpoint(path string) string {
	return c.baseURL + path
}

func (c *Client) newRequest(ctx context.Context, method, target string, body interface{}) (*http.Request, error) {
	var rdr io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrorTypeInvalid, err, "failed to encode request")
		}
		rdr = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, rdr)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrorTypeInvalid, err, "failed to create request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// doRequest performs an HTTP request with the configured headers
func (c *Client) doRequest(req *http.Request) (*http.Response, error) {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrorTypeNetwork, err, "rate limiter wait aborted")
	}

	for key, value := range c.headers {
		req.Header.Set(key, value)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	c.logger.DebugWithFields("sending HTTP request", map[string]interface{}{
		"method": req.Method,
		"url":    req.URL.String(),
	})

	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)
	if err != nil {
		c.logger.ErrorWithFields("HTTP request failed", map[string]interface{}{
			"method":   req.Method,
			"url":      req.URL.String(),
			"error":    err.Error(),
			"duration": duration,
		})
		return nil, apperrors.Wrap(apperrors.ErrorTypeNetwork, err, "network error")
	}

	logger.LogRequest(c.logger, req.Method, req.URL.String(), resp.StatusCode, duration)
	return resp, nil
}

// checkResponseStatus turns a non-2xx response into a typed error. The
// backend answers failures with either a JSON {"error"} body or plain text.
func (c *Client) checkResponseStatus(resp *http.Response, t apperrors.ErrorType) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := strings.TrimSpace(string(raw))
	var body models.ErrorResponse
	if json.Unmarshal(raw, &body) == nil && body.Error != "" {
		msg = body.Error
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}

	fields := map[string]interface{}{
		"status": resp.StatusCode,
		"url":    resp.Request.URL.String(),
		"error":  msg,
	}
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		c.logger.WarnWithFields("backend rejected credentials", fields)
	case resp.StatusCode >= 500:
		c.logger.ErrorWithFields("backend server error", fields)
	default:
		c.logger.WarnWithFields("backend request rejected", fields)
	}

	return apperrors.New(t, resp.StatusCode, msg)
}

func (c *Client) readBody(resp *http.Response, t apperrors.ErrorType) ([]byte, error) {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		e := apperrors.Wrap(t, err, "failed to read response body")
		e.Code = resp.StatusCode
		return nil, e
	}
	return data, nil
}

// Scrape asks the backend for every image on pageURL
func (c *Client) Scrape(ctx context.Context, pageURL string, mode models.ScrapeMode) ([]models.ImageDescriptor, error) {
	if strings.TrimSpace(pageURL) == "" {
		return nil, apperrors.New(apperrors.ErrorTypeInvalid, http.StatusBadRequest, "URL is required")
	}
	if mode == "" {
		mode = models.ScrapeModeFast
	}

	c.logger.DebugWithFields("scraping page", map[string]interface{}{
		"page_url": pageURL,
		"mode":     string(mode),
	})

	raw, err := retryingWithResult(ctx, c, func(ctx context.Context) (rawResponse, error) {
		req, err := c.newRequest(ctx, http.MethodPost, c.endpoint("/scrape"), models.ScrapeRequest{URL: pageURL, Mode: mode})
		if err != nil {
			return rawResponse{}, err
		}
		resp, err := c.doRequest(req)
		if err != nil {
			return rawResponse{}, apperrors.Wrap(apperrors.ErrorTypeScrape, err, "scrape failed")
		}
		defer resp.Body.Close()

		if err := c.checkResponseStatus(resp, apperrors.ErrorTypeScrape); err != nil {
			return rawResponse{}, err
		}
		body, err := c.readBody(resp, apperrors.ErrorTypeScrape)
		return rawResponse{body: body, status: resp.StatusCode}, err
	})
	if err != nil {
		return nil, err
	}
	body := raw.body

	var images []models.ImageDescriptor
	if err := json.Unmarshal(body, &images); err != nil {
		preview := string(body)
		if len(preview) > 200 {
			preview = preview[:200] + "..."
		}
		c.logger.ErrorWithFields("failed to parse scrape response", map[string]interface{}{
			"page_url":     pageURL,
			"error":        err.Error(),
			"body_preview": preview,
		})
		e := apperrors.Wrap(apperrors.ErrorTypeScrape, err, "failed to parse scrape response")
		e.Code = raw.status
		return nil, e
	}

	c.logger.InfoWithFields("scrape completed", map[string]interface{}{
		"page_url": pageURL,
		"mode":     string(mode),
		"images":   len(images),
	})
	return images, nil
}

// Fetch retrieves an image's bytes through the backend proxy
func (c *Client) Fetch(ctx context.Context, imageURL string) (models.ImageData, error) {
	target := c.endpoint("/proxy") + "?url=" + url.QueryEscape(imageURL)
	req, err := c.newRequest(ctx, http.MethodGet, target, nil)
	if err != nil {
		return models.ImageData{}, err
	}
	resp, err := c.doRequest(req)
	if err != nil {
		return models.ImageData{}, apperrors.Wrap(apperrors.ErrorTypeProxyFetch, err, "proxy fetch failed")
	}
	defer resp.Body.Close()

	if err := c.checkResponseStatus(resp, apperrors.ErrorTypeProxyFetch); err != nil {
		return models.ImageData{}, err
	}

	data, err := c.readBody(resp, apperrors.ErrorTypeProxyFetch)
	if err != nil {
		return models.ImageData{}, err
	}
	return models.ImageData{Data: data, ContentType: resp.Header.Get("Content-Type")}, nil
}

// DownloadImage asks the backend to download a single image
func (c *Client) DownloadImage(ctx context.Context, desc models.ImageDescriptor) (*models.Download, error) {
	return c.download(ctx, c.endpoint("/download-image"),
		models.DownloadImageRequest{URL: desc.SourceURL, Alt: desc.AltText}, "")
}

// DownloadSelected asks the backend for a zip archive of descs
func (c *Client) DownloadSelected(ctx context.Context, descs []models.ImageDescriptor) (*models.Download, error) {
	if len(descs) == 0 {
		return nil, apperrors.New(apperrors.ErrorTypeInvalid, http.StatusBadRequest, "no images selected for download")
	}
	return c.download(ctx, c.endpoint("/download-selected"),
		models.DownloadSelectedRequest{Images: descs}, BatchArchiveName)
}

func (c *Client) download(ctx context.Context, target string, payload interface{}, fallbackName string) (*models.Download, error) {
	dl, err := retryingWithResult(ctx, c, func(ctx context.Context) (*models.Download, error) {
		req, err := c.newRequest(ctx, http.MethodPost, target, payload)
		if err != nil {
			return nil, err
		}
		resp, err := c.doRequest(req)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrorTypeDownload, err, "download failed")
		}
		defer resp.Body.Close()

		if err := c.checkResponseStatus(resp, apperrors.ErrorTypeDownload); err != nil {
			return nil, err
		}

		data, err := c.readBody(resp, apperrors.ErrorTypeDownload)
		if err != nil {
			return nil, err
		}

		name := filenameFromDisposition(resp.Header.Get("Content-Disposition"))
		if name == "" {
			name = fallbackName
		}
		return &models.Download{
			Filename:    name,
			ContentType: resp.Header.Get("Content-Type"),
			Data:        data,
		}, nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.DebugWithFields("download completed", map[string]interface{}{
		"url":      target,
		"filename": dl.Filename,
		"bytes":    len(dl.Data),
	})
	return dl, nil
}

// Health reports whether the backend answers on its root path
func (c *Client) Health(ctx context.Context) error {
	return c.retrying(ctx, func(ctx context.Context) error {
		req, err := c.newRequest(ctx, http.MethodGet, c.endpoint("/"), nil)
		if err != nil {
			return err
		}
		resp, err := c.doRequest(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))

		if resp.StatusCode != http.StatusOK {
			return apperrors.New(apperrors.ErrorTypeNetwork, resp.StatusCode,
				fmt.Sprintf("backend unhealthy: %s", http.StatusText(resp.StatusCode)))
		}
		return nil
	})
}

func filenameFromDisposition(header string) string {
	if header == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(header)
	if err != nil {
		return ""
	}
	return params["filename"]
}
