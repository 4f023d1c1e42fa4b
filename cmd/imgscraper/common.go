package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"imgscraper/internal/export"
	"imgscraper/internal/gallery"
	"imgscraper/internal/materializer"
	"imgscraper/internal/session"
	"imgscraper/pkg/auth"
	"imgscraper/pkg/backend"
	"imgscraper/pkg/config"
	"imgscraper/pkg/logger"
	"imgscraper/pkg/metadata"
	"imgscraper/pkg/ratelimit"
	"imgscraper/pkg/retry"
	"imgscraper/pkg/storage"
	"imgscraper/pkg/ui"
)

// snapshotName is the checkpoint written by browse and scrape
const snapshotName = "last"

// galleryFlags are shared by browse and scrape
type galleryFlags struct {
	deep        bool
	concurrency int
	batchSize   int
	delay       time.Duration
	output      string
}

func (f *galleryFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.deep, "deep", false, "render the page in a headless browser before collecting images")
	cmd.Flags().IntVarP(&f.concurrency, "concurrency", "k", 0, "simultaneous image loads (default 3)")
	cmd.Flags().IntVarP(&f.batchSize, "batch-size", "b", 0, "images revealed per batch (default 50)")
	cmd.Flags().DurationVar(&f.delay, "delay", 0, "minimum time between two image loads starting")
	cmd.Flags().StringVarP(&f.output, "output", "o", "", "download directory (default ./downloads)")
}

// loadConfig merges the flags the user set into the layered configuration
func loadConfig(cmd *cobra.Command, gf *galleryFlags) (*config.Config, error) {
	flags := make(map[string]interface{})
	changed := cmd.Flags().Changed

	if changed("backend") {
		flags["backend"] = backendURL
	}
	if changed("log-level") {
		flags["log-level"] = logLevel
	}
	if noColor {
		flags["no-color"] = true
	}
	if gf != nil {
		if changed("deep") {
			flags["deep"] = gf.deep
		}
		if changed("concurrency") {
			flags["concurrency"] = gf.concurrency
		}
		if changed("batch-size") {
			flags["batch-size"] = gf.batchSize
		}
		if changed("delay") {
			flags["delay"] = gf.delay
		}
		if changed("output") {
			flags["output"] = gf.output
		}
	}

	cfg, err := config.Load(configFile, flags)
	if err != nil {
		return nil, err
	}
	if cfg.UI.NoColor {
		ui.SetColor(false)
	}
	return cfg, nil
}

// backendOptions turns the request budget and retry policy into client options
func backendOptions(cfg *config.Config) []backend.Option {
	return []backend.Option{
		backend.WithLimiter(ratelimit.FromConfig(cfg.RateLimit)),
		backend.WithUserAgent(cfg.Backend.UserAgent),
		backend.WithRetry(cfg.Backend.Retries+1, &retry.ExponentialBackoff{
			BaseDelay:    cfg.Backend.RetryDelay,
			MaxDelay:     10 * time.Second,
			Multiplier:   2.0,
			JitterFactor: 0.1,
		}),
	}
}

// newBackend builds the backend client with the stored token, if any
func newBackend(cfg *config.Config, log logger.Logger) *backend.Client {
	opts := backendOptions(cfg)

	if creds, err := auth.NewManager(); err == nil {
		if token := creds.Token(cfg.Backend.BaseURL); token != "" {
			opts = append(opts, backend.WithToken(token))
		}
	} else {
		log.WithError(err).Debug("Credential stores unavailable, continuing without token")
	}

	return backend.NewClient(cfg.Backend.BaseURL, cfg.Backend.Timeout, log, opts...)
}

// newSessionManager wires the client into a session manager
func newSessionManager(cfg *config.Config, client *backend.Client, listener session.Listener, log logger.Logger) (*session.Manager, error) {
	fetcher, err := materializer.NewCachingFetcher(client, cfg.Cache.Size)
	if err != nil {
		return nil, fmt.Errorf("failed to create proxy cache: %w", err)
	}

	return session.NewManager(client, fetcher, session.Options{
		BatchSize:        cfg.Gallery.BatchSize,
		Concurrency:      cfg.Gallery.Concurrency,
		MinStartInterval: cfg.Gallery.MinStartInterval,
		PreloadMargin:    cfg.Gallery.PreloadMargin,
		Layout:           layoutFor(cfg),
		Listener:         listener,
		Logger:           log,
	}), nil
}

func layoutFor(cfg *config.Config) gallery.Layout {
	return gallery.Layout{Columns: cfg.Gallery.Columns, RowHeight: cfg.Gallery.RowHeight}
}

// newExporter writes downloads into the configured output directory
func newExporter(cfg *config.Config, client *backend.Client, log logger.Logger) (*export.Exporter, error) {
	store, err := storage.NewManager(cfg.Output.BaseDirectory, cfg.Output.OverwriteExisting)
	if err != nil {
		return nil, err
	}
	return export.New(client, store, export.Options{
		WriteManifest:  cfg.Output.WriteManifest,
		ManifestFormat: metadata.ParseFormat(cfg.Output.ManifestFormat),
		Logger:         log,
	}), nil
}
