package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"imgscraper/pkg/checkpoint"
	"imgscraper/pkg/logger"
	"imgscraper/pkg/models"
	"imgscraper/pkg/ui"
	"imgscraper/pkg/ui/tui"
)

var (
	browseFlags galleryFlags
	resume      bool
)

// browseCmd represents the browse command
var browseCmd = &cobra.Command{
	Use:   "browse [url]",
	Short: "Scrape a page and browse its images in the terminal",
	Long: `Scrape a web page through the backend and browse the images as a grid.

Only the cards on screen, plus a small margin, are loaded. Press m to reveal
the next batch, space to select, d to download the selection as a zip and
+/- to change how many images load at once. The session is saved on exit so
it can be reopened with --resume.`,
	Example: `  # Browse a page
  imgscraper browse https://example.com/gallery

  # Render JavaScript first and load 6 images at a time
  imgscraper browse https://example.com --deep -k 6

  # Reopen the last session without scraping again
  imgscraper browse --resume`,
	Args: cobra.MaximumNArgs(1),
	RunE: runBrowse,
}

func init() {
	rootCmd.AddCommand(browseCmd)
	browseFlags.register(browseCmd)
	browseCmd.Flags().BoolVarP(&resume, "resume", "r", false, "reopen the last saved session")
}

func runBrowse(cmd *cobra.Command, args []string) error {
	if len(args) == 0 && !resume {
		return errors.New("a page URL is required unless --resume is set")
	}

	cfg, err := loadConfig(cmd, &browseFlags)
	if err != nil {
		return err
	}

	// Log lines would tear the alternate screen, so they only go to a file
	if cfg.Logging.File != "" {
		if err := logger.Initialize(&cfg.Logging); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
	} else {
		logger.SetLogger(logger.NewNopLogger())
	}
	log := logger.GetLogger()

	snapshots, err := checkpoint.NewManagerInDir(cfg.Output.SnapshotDirectory, snapshotName)
	if err != nil {
		return err
	}

	var snap *checkpoint.Snapshot
	if resume {
		if snap, err = snapshots.Load(); err != nil {
			return err
		}
		if snap == nil {
			return errors.New("no saved session to resume")
		}
	}

	client := newBackend(cfg, log)
	bridge := tui.NewBridge()
	manager, err := newSessionManager(cfg, client, bridge, log)
	if err != nil {
		return err
	}
	exporter, err := newExporter(cfg, client, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := tui.Options{
		Mode:       models.ParseScrapeMode(cfg.Backend.Mode),
		Restore:    snap,
		Layout:     layoutFor(cfg),
		Downloader: exporter,
		Logger:     log,
	}
	if len(args) > 0 {
		opts.PageURL = args[0]
		opts.Restore = nil
	}

	model := tui.NewModel(ctx, manager, opts)
	runErr := tui.Run(ctx, model, bridge)

	if s := model.Session(); s != nil && !s.Disposed() {
		if err := snapshots.Save(s.Snapshot()); err != nil {
			log.WithError(err).Warn("Failed to save session")
		}
	}
	manager.Clear()

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	if notify {
		ui.NewNotifier(true).SendSuccess("imgscraper", "Session saved to "+snapshots.Path())
	}
	return nil
}
