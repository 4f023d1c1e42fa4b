package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"imgscraper/pkg/auth"
	"imgscraper/pkg/logger"
	"imgscraper/pkg/ui"
)

var logoutAll bool

// authCmd represents the auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage backend API tokens",
	Long: `Manage API tokens for scrape backends that require one.

Tokens are stored using:
  - System keychain (when available)
  - Encrypted file with PBKDF2 key derivation
  - The IMGSCRAPER_API_TOKEN environment variable (read only)

Tokens are keyed by backend host, so several backends can be used side by side.`,
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store an API token for the backend",
	Example: `  # Store a token for the configured backend
  imgscraper auth login

  # Store a token for another backend
  imgscraper auth login --backend https://scraper.example.com`,
	Args: cobra.NoArgs,
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove the stored token for the backend",
	Args:  cobra.NoArgs,
	RunE:  runLogout,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "List stored tokens and check the backend is reachable",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(loginCmd)
	authCmd.AddCommand(logoutCmd)
	authCmd.AddCommand(statusCmd)
	logoutCmd.Flags().BoolVar(&logoutAll, "all", false, "remove the tokens of every backend")
}

func runLogin(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		return err
	}
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	profile := auth.ProfileName(cfg.Backend.BaseURL)
	reader := bufio.NewReader(os.Stdin)

	auth.ShowTokenGuide(os.Stdout)
	fmt.Println()
	ui.PrintInfo("Backend", cfg.Backend.BaseURL)

	if existing, _ := manager.Retrieve(profile); existing != nil {
		fmt.Printf("\n⚠️  A token for '%s' is already stored. Replace it? (y/N): ", profile)
		input, _ := reader.ReadString('\n')
		if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(input)), "y") {
			return nil
		}
	}

	fmt.Print("\n🔐 API token (hidden): ")
	token, err := readPassword(reader)
	if err != nil {
		return fmt.Errorf("failed to read token: %w", err)
	}
	if token == "" {
		return fmt.Errorf("%w: token is empty", auth.ErrInvalidCredentials)
	}

	fmt.Print("📝 Note (optional): ")
	note, _ := reader.ReadString('\n')

	cred := &auth.Credential{
		Backend: profile,
		Token:   token,
		Note:    strings.TrimSpace(note),
	}
	if err := manager.Store(cred); err != nil {
		return err
	}

	ui.PrintSuccess(fmt.Sprintf("Token saved for %s (%s)", profile, auth.SanitizeCredential(cred).Token))
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	if logoutAll {
		if err := manager.DeleteAll(); err != nil {
			return err
		}
		ui.PrintSuccess("All tokens removed")
		return nil
	}

	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		return err
	}
	profile := auth.ProfileName(cfg.Backend.BaseURL)
	if err := manager.Delete(profile); err != nil {
		return err
	}
	ui.PrintSuccess("Token removed for " + profile)
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		return err
	}
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	creds, err := manager.List()
	if err != nil {
		return err
	}
	if len(creds) == 0 {
		ui.PrintInfo("No stored tokens", "Use 'imgscraper auth login' to add one")
	} else {
		ui.PrintHighlight("Stored Tokens")
		for i, cred := range creds {
			masked := auth.SanitizeCredential(cred)
			fmt.Printf("%d. Backend: %s\n", i+1, masked.Backend)
			fmt.Printf("   Token: %s\n", masked.Token)
			if masked.Note != "" {
				fmt.Printf("   Note: %s\n", masked.Note)
			}
			if !masked.LastModified.IsZero() {
				fmt.Printf("   Last Modified: %s\n", masked.LastModified.Format("2006-01-02 15:04:05"))
			}
		}
	}

	fmt.Println()
	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	client := newBackend(cfg, logger.NewNopLogger())
	if err := client.Health(ctx); err != nil {
		ui.PrintError("Backend unreachable", err)
		return err
	}
	ui.PrintSuccess("Backend reachable: " + client.BaseURL())
	return nil
}

// readPassword reads a secret from stdin without echo when stdin is a terminal
func readPassword(reader *bufio.Reader) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		secret, err := term.ReadPassword(fd)
		fmt.Println()
		if err == nil {
			return strings.TrimSpace(string(secret)), nil
		}
	}

	input, err := reader.ReadString('\n')
	if err != nil && input == "" {
		return "", err
	}
	return strings.TrimSpace(input), nil
}
