package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"imgscraper/internal/export"
	"imgscraper/internal/gallery"
	"imgscraper/internal/session"
	"imgscraper/internal/viewport"
	"imgscraper/pkg/backend"
	"imgscraper/pkg/checkpoint"
	"imgscraper/pkg/config"
	"imgscraper/pkg/logger"
	"imgscraper/pkg/models"
	"imgscraper/pkg/ui"
)

var (
	scrapeFlags  galleryFlags
	download     bool
	downloadEach bool
	perCard      bool
	sweepRows    int
)

// scrapeCmd represents the scrape command
var scrapeCmd = &cobra.Command{
	Use:   "scrape <url>",
	Short: "Scrape a page and load every image without the browser",
	Long: `Scrape a web page and load every discovered image through the backend
proxy, the same way the browser does when scrolled to the end.

All batches are revealed, then a viewport window sweeps the grid from top to
bottom so images are queued in discovery order. Loaded images can be saved as
one zip archive (--download) or one file each (--download-each).`,
	Example: `  # Check which images on a page load
  imgscraper scrape https://example.com/gallery -v

  # Save every loadable image as a zip next to a manifest
  imgscraper scrape https://example.com --download -o ./photos

  # Save each image as its own file, two downloads at a time
  imgscraper scrape https://example.com --download-each`,
	Args: cobra.ExactArgs(1),
	RunE: runScrape,
}

func init() {
	rootCmd.AddCommand(scrapeCmd)
	scrapeFlags.register(scrapeCmd)
	scrapeCmd.Flags().BoolVar(&download, "download", false, "download the loaded images as a zip archive")
	scrapeCmd.Flags().BoolVar(&downloadEach, "download-each", false, "download the loaded images one file each")
	scrapeCmd.Flags().BoolVarP(&perCard, "verbose", "v", false, "print a line per image instead of a progress bar")
	scrapeCmd.Flags().IntVar(&sweepRows, "sweep-rows", 4, "grid rows covered by each sweep step")
}

func runScrape(cmd *cobra.Command, args []string) error {
	if download && downloadEach {
		return errors.New("--download and --download-each are mutually exclusive")
	}

	cfg, err := loadConfig(cmd, &scrapeFlags)
	if err != nil {
		return err
	}
	if err := logger.Initialize(&cfg.Logging); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	log := logger.GetLogger()

	pageURL := args[0]
	mode := models.ParseScrapeMode(cfg.Backend.Mode)
	notifier := ui.NewNotifier(notify)

	ui.PrintInfo("Backend", cfg.Backend.BaseURL)
	ui.PrintInfo("Page", pageURL)
	ui.PrintInfo("Mode", string(mode))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := newBackend(cfg, log)
	display := ui.NewProgressDisplay(os.Stdout, pageURL, perCard)
	manager, err := newSessionManager(cfg, client, display, log)
	if err != nil {
		return err
	}
	defer manager.Clear()

	sess, err := manager.Start(ctx, pageURL, mode)
	if err != nil {
		notifier.SendError("Scrape failed", err.Error())
		return err
	}

	if err := loadAll(ctx, sess, cfg.Gallery.RowHeight*max(sweepRows, 1)); err != nil {
		return err
	}
	display.Complete()

	if snapshots, err := checkpoint.NewManagerInDir(cfg.Output.SnapshotDirectory, snapshotName); err == nil {
		if err := snapshots.Save(sess.Snapshot()); err != nil {
			log.WithError(err).Warn("Failed to save session")
		}
	}

	summary := sess.Summary()
	if (download || downloadEach) && summary.Loaded > 0 {
		if err := downloadLoaded(ctx, cfg, client, sess, log); err != nil {
			notifier.SendError("Download failed", err.Error())
			return err
		}
	}

	loaded, _, total := display.Tracker().Counts()
	notifier.SendSuccess("Scrape complete", fmt.Sprintf("%d/%d images loaded", loaded, total))
	return nil
}

// loadAll reveals every batch and sweeps a window of height step over the
// grid, then waits for every queued load
func loadAll(ctx context.Context, sess *session.Session, step int) error {
	sess.RevealAll()

	height := sess.Gallery().ContentHeight()
	for top := 0; top < height; top += step {
		if err := ctx.Err(); err != nil {
			return err
		}
		sess.Scroll(viewport.Rect{Top: top, Height: step})
	}
	return sess.Wait(ctx)
}

// downloadLoaded selects every loaded card and saves the selection
func downloadLoaded(ctx context.Context, cfg *config.Config, client *backend.Client, sess *session.Session, log logger.Logger) error {
	exporter, err := newExporter(cfg, client, log)
	if err != nil {
		return err
	}

	for _, c := range sess.Gallery().Cards() {
		c.SetSelected(c.State() == gallery.StateLoaded)
	}
	descs := sess.Selection()
	src := export.Source{PageURL: sess.PageURL(), Mode: sess.Mode(), SessionID: sess.ID()}

	var res *export.Result
	if downloadEach {
		res, err = exporter.Each(ctx, src, descs, manifestName(sess.PageURL()))
	} else {
		res, err = exporter.Selected(ctx, src, descs)
	}
	if res != nil {
		for _, f := range res.Files {
			log.DebugWithFields("Saved", map[string]interface{}{"file": f})
		}
		ui.PrintSuccess(fmt.Sprintf("Saved %d files to %s", len(res.Files), exporter.OutputDir()))
		if res.Manifest != "" {
			ui.PrintInfo("Manifest", res.Manifest)
		}
		if res.Failed > 0 {
			ui.PrintWarning(fmt.Sprintf("%d images could not be downloaded", res.Failed))
		}
	}
	return err
}

// manifestName names a per-image manifest after the page host
func manifestName(pageURL string) string {
	if u, err := url.Parse(pageURL); err == nil && u.Host != "" {
		return u.Host
	}
	return "images"
}
