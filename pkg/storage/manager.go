package storage

import (
	"bytes"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"imgscraper/pkg/models"
)

// MaxFilenameLength bounds a sanitized name, extension excluded
const MaxFilenameLength = 200

var unsafeChars = strings.NewReplacer(
	"\r", "", "\n", "",
	`\`, "", "/", "", "*", "", "?", "", ":", "", `"`, "", "<", "", ">", "", "|", "",
	"_", " ",
)

// SanitizeFilename strips characters that are unsafe in file names, turns
// underscores into spaces and caps the length
func SanitizeFilename(name string) string {
	name = strings.TrimSpace(unsafeChars.Replace(name))
	if r := []rune(name); len(r) > MaxFilenameLength {
		name = strings.TrimSpace(string(r[:MaxFilenameLength]))
	}
	return name
}

// FilenameFor builds a file name for desc from its alt text and the
// extension of its URL, falling back to contentType
func FilenameFor(desc models.ImageDescriptor, contentType string) string {
	base := SanitizeFilename(desc.AltText)
	if base == "" {
		base = "image"
	}

	ext := ""
	if u, err := url.Parse(desc.SourceURL); err == nil {
		ext = path.Ext(u.Path)
	}
	if ext == "" || len(ext) > 6 {
		switch {
		case strings.Contains(contentType, "png"):
			ext = ".png"
		case strings.Contains(contentType, "gif"):
			ext = ".gif"
		case strings.Contains(contentType, "webp"):
			ext = ".webp"
		default:
			ext = ".jpg"
		}
	}
	return base + ext
}

// Manager writes downloads into one output directory
type Manager struct {
	outputDir string
	overwrite bool
	saved     map[string]bool
	mu        sync.RWMutex
}

// NewManager creates a storage manager, creating outputDir if needed. With
// overwrite set, a name that already exists is replaced instead of numbered.
func NewManager(outputDir string, overwrite bool) (*Manager, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	manager := &Manager{
		outputDir: outputDir,
		overwrite: overwrite,
		saved:     make(map[string]bool),
	}

	if err := manager.scanExistingFiles(); err != nil {
		return nil, fmt.Errorf("failed to scan existing files: %w", err)
	}

	return manager, nil
}

// scanExistingFiles records what is already in the output directory
func (m *Manager) scanExistingFiles() error {
	entries, err := os.ReadDir(m.outputDir)
	if err != nil {
		return fmt.Errorf("failed to read directory: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() && !strings.HasSuffix(entry.Name(), ".tmp") {
			m.saved[entry.Name()] = true
		}
	}

	return nil
}

// Exists reports whether name is already present in the output directory
func (m *Manager) Exists(name string) bool {
	m.mu.RLock()
	known := m.saved[name]
	m.mu.RUnlock()
	if known {
		return true
	}

	if _, err := os.Stat(filepath.Join(m.outputDir, name)); err == nil {
		m.mu.Lock()
		m.saved[name] = true
		m.mu.Unlock()
		return true
	}
	return false
}

// uniqueNameLocked returns name, or "name (n).ext" for the first free n
func (m *Manager) uniqueNameLocked(name string) string {
	if m.overwrite {
		return name
	}
	taken := func(n string) bool {
		if m.saved[n] {
			return true
		}
		_, err := os.Stat(filepath.Join(m.outputDir, n))
		return err == nil
	}
	if !taken(name) {
		return name
	}
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s (%d)%s", stem, i, ext)
		if !taken(candidate) {
			return candidate
		}
	}
}

// SaveFile writes r under a sanitized, unique version of name and returns
// the final path
func (m *Manager) SaveFile(r io.Reader, name string) (string, error) {
	ext := filepath.Ext(name)
	stem := SanitizeFilename(strings.TrimSuffix(name, ext))
	if stem == "" {
		stem = "image"
	}
	name = stem + SanitizeFilename(ext)

	// The name is reserved before writing so concurrent saves of the same
	// name get distinct files.
	m.mu.Lock()
	name = m.uniqueNameLocked(name)
	m.saved[name] = true
	m.mu.Unlock()

	filename := filepath.Join(m.outputDir, name)
	if err := writeAtomic(filename, r); err != nil {
		m.mu.Lock()
		delete(m.saved, name)
		m.mu.Unlock()
		return "", err
	}
	return filename, nil
}

// SaveDownload writes a download returned by the backend
func (m *Manager) SaveDownload(dl *models.Download) (string, error) {
	if dl == nil {
		return "", fmt.Errorf("nil download")
	}
	return m.SaveFile(bytes.NewReader(dl.Data), dl.Filename)
}

func writeAtomic(filename string, r io.Reader) error {
	tempFile := filename + ".tmp"
	out, err := os.Create(tempFile)
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}

	_, err = io.Copy(out, r)
	closeErr := out.Close()

	if err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to save file data: %w", err)
	}

	if closeErr != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to close file: %w", closeErr)
	}

	if err := os.Rename(tempFile, filename); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}
	return nil
}

// OutputDir returns the output directory path
func (m *Manager) OutputDir() string {
	return m.outputDir
}

// SavedCount returns the number of files known in the output directory
func (m *Manager) SavedCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.saved)
}
