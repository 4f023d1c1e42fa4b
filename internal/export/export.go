// Package export saves single images and selection archives fetched through
// the backend's download endpoints, with an optional manifest beside them.
package export

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"imgscraper/pkg/logger"
	"imgscraper/pkg/metadata"
	"imgscraper/pkg/models"
	"imgscraper/pkg/storage"
)

// DefaultParallel bounds concurrent single-image downloads
const DefaultParallel = 2

// Backend is the part of the backend client used for downloads
type Backend interface {
	DownloadImage(ctx context.Context, desc models.ImageDescriptor) (*models.Download, error)
	DownloadSelected(ctx context.Context, descs []models.ImageDescriptor) (*models.Download, error)
}

// Source describes where the exported images were scraped from
type Source struct {
	PageURL   string
	Mode      models.ScrapeMode
	SessionID string
}

// Options configures an Exporter
type Options struct {
	WriteManifest  bool
	ManifestFormat metadata.Format
	// Parallel bounds Each; values below 1 use DefaultParallel
	Parallel int
	Logger   logger.Logger
}

// Result is what an export wrote
type Result struct {
	Files    []string
	Manifest string
	Failed   int
}

// Exporter writes downloads into a storage.Manager
type Exporter struct {
	backend Backend
	store   *storage.Manager
	opts    Options
	logger  logger.Logger
}

// New creates an Exporter
func New(backend Backend, store *storage.Manager, opts Options) *Exporter {
	if opts.Parallel < 1 {
		opts.Parallel = DefaultParallel
	}
	if opts.ManifestFormat == "" {
		opts.ManifestFormat = metadata.FormatJSON
	}
	return &Exporter{
		backend: backend,
		store:   store,
		opts:    opts,
		logger:  logger.OrGlobal(opts.Logger).WithField("component", "export"),
	}
}

// OutputDir is where files are written
func (e *Exporter) OutputDir() string {
	return e.store.OutputDir()
}

// Selected downloads descs as one zip archive
func (e *Exporter) Selected(ctx context.Context, src Source, descs []models.ImageDescriptor) (*Result, error) {
	dl, err := e.backend.DownloadSelected(ctx, descs)
	if err != nil {
		return nil, err
	}
	path, err := e.store.SaveDownload(dl)
	if err != nil {
		return nil, fmt.Errorf("failed to save archive: %w", err)
	}

	res := &Result{Files: []string{path}}
	if e.opts.WriteManifest {
		m := metadata.FromDescriptors(src.PageURL, src.Mode, descs)
		m.SessionID = src.SessionID
		m.Archive = dl.Filename
		if res.Manifest, err = m.Save(path, e.opts.ManifestFormat); err != nil {
			return res, err
		}
	}

	e.logger.InfoWithFields("Archive saved", map[string]interface{}{
		"path":   path,
		"images": len(descs),
		"bytes":  len(dl.Data),
	})
	return res, nil
}

// Single downloads one image
func (e *Exporter) Single(ctx context.Context, src Source, desc models.ImageDescriptor) (*Result, error) {
	path, err := e.single(ctx, desc)
	if err != nil {
		return nil, err
	}

	res := &Result{Files: []string{path}}
	if e.opts.WriteManifest {
		m := metadata.FromDescriptors(src.PageURL, src.Mode, nil)
		m.SessionID = src.SessionID
		m.Add(desc, filepath.Base(path))
		if res.Manifest, err = m.Save(path, e.opts.ManifestFormat); err != nil {
			return res, err
		}
	}
	return res, nil
}

func (e *Exporter) single(ctx context.Context, desc models.ImageDescriptor) (string, error) {
	dl, err := e.backend.DownloadImage(ctx, desc)
	if err != nil {
		return "", err
	}
	if dl.Filename == "" {
		dl.Filename = storage.FilenameFor(desc, dl.ContentType)
	}
	path, err := e.store.SaveDownload(dl)
	if err != nil {
		return "", fmt.Errorf("failed to save %s: %w", desc.SourceURL, err)
	}
	return path, nil
}

// Each downloads every image separately, a few at a time. One failed image
// does not stop the others; the manifest lists the ones that were saved.
// The returned error is the first failure, if any.
func (e *Exporter) Each(ctx context.Context, src Source, descs []models.ImageDescriptor, manifestName string) (*Result, error) {
	var (
		mu       sync.Mutex
		files    = make([]string, len(descs))
		failed   int
		firstErr error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Parallel)
	for i, desc := range descs {
		g.Go(func() error {
			path, err := e.single(gctx, desc)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				if firstErr == nil {
					firstErr = err
				}
				e.logger.WithError(err).WarnWithFields("Image download failed", map[string]interface{}{
					"src": desc.SourceURL,
				})
				return nil
			}
			files[i] = path
			return nil
		})
	}
	_ = g.Wait()

	res := &Result{Failed: failed}
	m := metadata.FromDescriptors(src.PageURL, src.Mode, nil)
	m.SessionID = src.SessionID
	for i, path := range files {
		if path == "" {
			continue
		}
		res.Files = append(res.Files, path)
		m.Add(descs[i], filepath.Base(path))
	}

	if e.opts.WriteManifest && len(res.Files) > 0 {
		if manifestName == "" {
			manifestName = "images"
		}
		var err error
		target := filepath.Join(e.store.OutputDir(), storage.SanitizeFilename(manifestName))
		if res.Manifest, err = m.Save(target, e.opts.ManifestFormat); err != nil {
			return res, err
		}
	}
	return res, firstErr
}
