package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"imgscraper/pkg/logger"
	"imgscraper/pkg/models"
)

// SnapshotVersion is bumped when the on-disk layout changes
const SnapshotVersion = 1

// Snapshot is the resumable state of a browse session
type Snapshot struct {
	SessionID   string                   `json:"session_id"`
	PageURL     string                   `json:"page_url"`
	Mode        models.ScrapeMode        `json:"mode"`
	Descriptors []models.ImageDescriptor `json:"descriptors"`
	Revealed    int                      `json:"revealed"`
	Removed     []int                    `json:"removed,omitempty"`  // discovery indexes deleted by the user
	Selected    []int                    `json:"selected,omitempty"` // discovery indexes selected by the user
	CreatedAt   time.Time                `json:"created_at"`
	UpdatedAt   time.Time                `json:"updated_at"`
	Version     int                      `json:"version"`
}

// Manager handles snapshot persistence
type Manager struct {
	path   string
	logger logger.Logger
}

// NewManager creates a manager for the named snapshot in the platform data directory
func NewManager(name string) (*Manager, error) {
	return NewManagerInDir("", name)
}

// NewManagerInDir creates a manager rooted at dir, or the platform data
// directory when dir is empty
func NewManagerInDir(dir, name string) (*Manager, error) {
	if dir == "" {
		dataDir, err := getDataDirectory()
		if err != nil {
			return nil, fmt.Errorf("failed to get data directory: %w", err)
		}
		dir = dataDir
	}

	sessionsDir := filepath.Join(dir, "sessions")
	if err := os.MkdirAll(sessionsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create sessions directory: %w", err)
	}

	return &Manager{
		path:   filepath.Join(sessionsDir, fmt.Sprintf("%s.session.json", name)),
		logger: logger.GetLogger(),
	}, nil
}

// Path is the snapshot file location
func (m *Manager) Path() string {
	return m.path
}

// Load reads the snapshot. It returns nil, nil when none exists.
func (m *Manager) Load() (*Snapshot, error) {
	file, err := os.Open(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open snapshot file: %w", err)
	}
	defer file.Close()

	var snap Snapshot
	if err := json.NewDecoder(file).Decode(&snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	if snap.Version > SnapshotVersion {
		return nil, fmt.Errorf("snapshot version %d is newer than supported version %d", snap.Version, SnapshotVersion)
	}
	if snap.Revealed > len(snap.Descriptors) {
		snap.Revealed = len(snap.Descriptors)
	}

	m.logger.InfoWithFields("Snapshot loaded", map[string]interface{}{
		"page":       snap.PageURL,
		"images":     len(snap.Descriptors),
		"revealed":   snap.Revealed,
		"updated_at": snap.UpdatedAt,
	})

	return &snap, nil
}

// Save writes the snapshot atomically
func (m *Manager) Save(snap *Snapshot) error {
	now := time.Now()
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = now
	}
	snap.UpdatedAt = now
	snap.Version = SnapshotVersion

	tempPath := m.path + ".tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create temporary snapshot file: %w", err)
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(snap); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync snapshot file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close snapshot file: %w", err)
	}

	if err := os.Rename(tempPath, m.path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace snapshot file: %w", err)
	}

	m.logger.DebugWithFields("Snapshot saved", map[string]interface{}{
		"page":     snap.PageURL,
		"revealed": snap.Revealed,
		"removed":  len(snap.Removed),
	})
	return nil
}

// Delete removes the snapshot file
func (m *Manager) Delete() error {
	if err := os.Remove(m.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	m.logger.Debug("Snapshot deleted")
	return nil
}

// Exists checks if a snapshot file exists
func (m *Manager) Exists() bool {
	_, err := os.Stat(m.path)
	return err == nil
}

// Info summarises the stored snapshot, or returns nil when there is none
func (m *Manager) Info() (map[string]interface{}, error) {
	snap, err := m.Load()
	if err != nil || snap == nil {
		return nil, err
	}

	return map[string]interface{}{
		"page":       snap.PageURL,
		"mode":       string(snap.Mode),
		"images":     len(snap.Descriptors),
		"revealed":   snap.Revealed,
		"updated_at": snap.UpdatedAt,
		"age":        time.Since(snap.UpdatedAt),
	}, nil
}

// getDataDirectory returns the appropriate data directory for the current OS
func getDataDirectory() (string, error) {
	var dataDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dataDir = filepath.Join(home, "Library", "Application Support", "imgscraper")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return "", fmt.Errorf("APPDATA environment variable not set")
		}
		dataDir = filepath.Join(appData, "imgscraper")
	default:
		if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
			dataDir = filepath.Join(xdg, "imgscraper")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			dataDir = filepath.Join(home, ".local", "share", "imgscraper")
		}
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}
	return dataDir, nil
}
