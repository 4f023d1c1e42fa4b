package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"imgscraper/pkg/auth"
	"imgscraper/pkg/config"
	"imgscraper/pkg/ui"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage imgscraper configuration files.

Configuration can be loaded from:
  - Command line flags (highest priority)
  - Environment variables (IMGSCRAPER_*, also read from .env)
  - Configuration file
  - Default values (lowest priority)`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file with the default values",
	Long: `Write a configuration file holding every option at its default value.

The file is written to ~/.config/imgscraper/config.yaml unless a different
path is given with --config.`,
	RunE: runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	RunE:  runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration",
	Long: `Load the configuration from every source and check it.

This command checks:
  - YAML syntax
  - Value types and ranges
  - That the output and log directories can be created`,
	RunE: runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := configFile
	if path == "" {
		path = config.DefaultConfigPath()
	}

	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("configuration file already exists: %s", path)
	}

	if err := config.DefaultConfig().Save(path); err != nil {
		return err
	}

	ui.PrintSuccess("Configuration file created: " + path)
	fmt.Println("\nNext steps:")
	fmt.Println("1. Point backend.base_url at your scrape backend")
	fmt.Println("2. Run 'imgscraper config validate' to check the configuration")
	fmt.Println("3. Start browsing with 'imgscraper browse <url>'")
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to format configuration: %w", err)
	}

	ui.PrintHighlight("Current Configuration")
	fmt.Println()
	fmt.Print(string(data))

	token := "(none)"
	if creds, err := auth.NewManager(); err == nil {
		if cred, err := creds.Retrieve(auth.ProfileName(cfg.Backend.BaseURL)); err == nil {
			token = auth.SanitizeCredential(cred).Token
		}
	}
	fmt.Printf("\nBackend token: %s\n", token)

	fmt.Println("\nConfiguration sources (in order of priority):")
	fmt.Println("1. Command line flags")
	fmt.Println("2. Environment variables (IMGSCRAPER_*)")
	if configFile != "" {
		fmt.Printf("3. Configuration file: %s\n", configFile)
	} else {
		fmt.Println("3. Configuration file: (default locations)")
	}
	fmt.Println("4. Default values")
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	if configFile != "" {
		ui.PrintInfo("Validating configuration", configFile)
	}

	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		ui.PrintError("Configuration has errors")
		return err
	}

	var problems []string
	if err := os.MkdirAll(cfg.Output.BaseDirectory, 0755); err != nil {
		problems = append(problems, fmt.Sprintf("cannot create output directory: %v", err))
	}
	if cfg.Logging.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Logging.File), 0755); err != nil {
			problems = append(problems, fmt.Sprintf("cannot create log directory: %v", err))
		}
	}
	if len(problems) > 0 {
		ui.PrintError("Configuration has errors")
		for _, p := range problems {
			fmt.Printf("  - %s\n", p)
		}
		return fmt.Errorf("%d configuration problems", len(problems))
	}

	if cfg.Gallery.Concurrency > 8 {
		ui.PrintWarning("High concurrency may overload the backend proxy", cfg.Gallery.Concurrency)
	}

	ui.PrintSuccess("Configuration is valid")

	fmt.Println("\nConfiguration summary:")
	fmt.Printf("  Backend: %s (%s mode, %s timeout)\n", cfg.Backend.BaseURL, cfg.Backend.Mode, cfg.Backend.Timeout)
	fmt.Printf("  Batch size: %d\n", cfg.Gallery.BatchSize)
	fmt.Printf("  Concurrent loads: %d\n", cfg.Gallery.Concurrency)
	if cfg.RateLimit.Enabled {
		fmt.Printf("  Rate limit: %d requests/minute (%s)\n", cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Strategy)
	}
	fmt.Printf("  Output directory: %s\n", cfg.Output.BaseDirectory)
	fmt.Printf("  Log level: %s\n", cfg.Logging.Level)
	return nil
}
