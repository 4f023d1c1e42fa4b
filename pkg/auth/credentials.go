package auth

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"
)

// Credential is an API token for one backend
type Credential struct {
	// Backend is the profile key, normally the backend host
	Backend      string    `json:"backend"`
	Token        string    `json:"token"`
	Note         string    `json:"note,omitempty"`
	LastModified time.Time `json:"last_modified"`
}

// CredentialStore is the interface for storing and retrieving credentials
type CredentialStore interface {
	// Store saves the credential for its backend
	Store(cred *Credential) error

	// Retrieve gets the credential for a backend
	Retrieve(backend string) (*Credential, error)

	// List returns all stored credentials
	List() ([]*Credential, error)

	// Delete removes the credential for a backend
	Delete(backend string) error

	// Exists checks if a credential exists for a backend
	Exists(backend string) bool
}

// ProfileName derives the profile key for a backend base URL: its host and
// port, lower-cased. Anything unparsable is used as is.
func ProfileName(baseURL string) string {
	baseURL = strings.TrimSpace(baseURL)
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return strings.ToLower(baseURL)
	}
	return strings.ToLower(u.Host)
}

// Manager handles credential storage with fallback mechanisms
type Manager struct {
	stores []CredentialStore
}

// NewManager creates a credential manager backed by the system keyring, an
// encrypted file and the environment, in that order
func NewManager() (*Manager, error) {
	var stores []CredentialStore

	keyringStore, err := NewKeyringStore()
	if err == nil {
		stores = append(stores, keyringStore)
	}

	configDir, err := getConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config directory: %w", err)
	}

	encryptedStore, err := NewEncryptedFileStore(filepath.Join(configDir, "credentials.enc"))
	if err != nil {
		return nil, fmt.Errorf("failed to create encrypted store: %w", err)
	}
	stores = append(stores, encryptedStore)

	stores = append(stores, NewEnvironmentStore())

	return &Manager{stores: stores}, nil
}

// NewManagerWithStores creates a Manager over explicit stores, tried in order
func NewManagerWithStores(stores ...CredentialStore) *Manager {
	return &Manager{stores: stores}
}

// Store saves the credential using the first store that accepts it
func (m *Manager) Store(cred *Credential) error {
	if cred == nil || strings.TrimSpace(cred.Backend) == "" {
		return errors.New("backend is required")
	}
	if strings.TrimSpace(cred.Token) == "" {
		return errors.New("token is required")
	}

	cred.Token = strings.TrimSpace(cred.Token)
	cred.LastModified = time.Now()

	var lastErr error
	for _, store := range m.stores {
		err := store.Store(cred)
		if err == nil {
			return nil
		}
		lastErr = err
	}

	if lastErr != nil {
		return fmt.Errorf("failed to store credentials: %w", lastErr)
	}
	return errors.New("no available credential stores")
}

// Retrieve gets the credential for backend from the first store that has it
func (m *Manager) Retrieve(backend string) (*Credential, error) {
	for _, store := range m.stores {
		if cred, err := store.Retrieve(backend); err == nil && cred != nil {
			return cred, nil
		}
	}
	return nil, fmt.Errorf("%w for backend: %s", ErrCredentialsNotFound, backend)
}

// Token returns the API token for a backend base URL, or "" when none is
// stored
func (m *Manager) Token(baseURL string) string {
	cred, err := m.Retrieve(ProfileName(baseURL))
	if err != nil {
		return ""
	}
	return cred.Token
}

// List returns all stored credentials from all stores, sorted by backend
func (m *Manager) List() ([]*Credential, error) {
	byBackend := make(map[string]*Credential)

	for _, store := range m.stores {
		creds, err := store.List()
		if err != nil {
			continue
		}
		for _, cred := range creds {
			// Use the most recently modified version
			if existing, ok := byBackend[cred.Backend]; !ok || cred.LastModified.After(existing.LastModified) {
				byBackend[cred.Backend] = cred
			}
		}
	}

	result := make([]*Credential, 0, len(byBackend))
	for _, cred := range byBackend {
		result = append(result, cred)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Backend < result[j].Backend })

	return result, nil
}

// Delete removes the credential for backend from all stores
func (m *Manager) Delete(backend string) error {
	var deleted bool
	var lastErr error

	for _, store := range m.stores {
		if err := store.Delete(backend); err == nil {
			deleted = true
		} else {
			lastErr = err
		}
	}

	if !deleted && lastErr != nil {
		return fmt.Errorf("failed to delete credentials: %w", lastErr)
	}
	if !deleted {
		return fmt.Errorf("%w for backend: %s", ErrCredentialsNotFound, backend)
	}

	return nil
}

// DeleteAll removes all stored credentials
func (m *Manager) DeleteAll() error {
	creds, err := m.List()
	if err != nil {
		return err
	}

	for _, cred := range creds {
		_ = m.Delete(cred.Backend)
	}

	return nil
}

// getConfigDir returns the configuration directory path
func getConfigDir() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(home, "Library", "Application Support", "imgscraper")
	case "windows":
		configDir = filepath.Join(os.Getenv("APPDATA"), "imgscraper")
	default:
		if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
			configDir = filepath.Join(xdgConfig, "imgscraper")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			configDir = filepath.Join(home, ".config", "imgscraper")
		}
	}

	if err := os.MkdirAll(configDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	return configDir, nil
}

// SanitizeCredential creates a copy of the credential with the token masked
func SanitizeCredential(cred *Credential) *Credential {
	if cred == nil {
		return nil
	}

	return &Credential{
		Backend:      cred.Backend,
		Token:        maskString(cred.Token),
		Note:         cred.Note,
		LastModified: cred.LastModified,
	}
}

// maskString masks all but the first 4 and last 4 characters of a string
func maskString(s string) string {
	if len(s) <= 8 {
		return "********"
	}
	return s[:4] + "..." + s[len(s)-4:]
}

// Errors
var (
	ErrCredentialsNotFound = errors.New("credentials not found")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrStoreUnavailable    = errors.New("credential store unavailable")
)
