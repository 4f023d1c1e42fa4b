package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"imgscraper/pkg/ui"
)

var (
	// Version information
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile string
	backendURL string
	logLevel   string
	noColor    bool
	notify     bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "imgscraper",
	Short: "Browse and download the images on any web page",
	Long: `imgscraper asks a scrape backend for every image on a web page and lets
you browse the result as a lazily loaded gallery in the terminal.

Features:
  - Paginated gallery that only loads the images you scroll to
  - Bounded, adjustable number of simultaneous image loads
  - Select, delete and download images, one by one or as a zip
  - Headless mode for scripts with progress output
  - Resume the last browse session without scraping again
  - Backend API tokens kept in the system keychain`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if noColor {
			ui.SetColor(false)
		}

		// The browser owns the screen
		if cmd.Name() != "browse" && cmd.Name() != "help" && cmd.Name() != "version" {
			ui.PrintLogo()
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		ui.PrintError("Error", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is ~/.config/imgscraper/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&backendURL, "backend", "", "scrape backend base URL (default http://localhost:5001)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().BoolVar(&notify, "notify", false, "send a desktop notification when done")

	rootCmd.SetVersionTemplate(`imgscraper {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
