package metadata

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"imgscraper/pkg/models"
)

// Format is the encoding of a manifest file
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat maps a config value to a Format, defaulting to JSON
func ParseFormat(s string) Format {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yaml", "yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Entry describes one downloaded image
type Entry struct {
	SourceURL string `json:"src" yaml:"src"`
	AltText   string `json:"alt,omitempty" yaml:"alt,omitempty"`
	// File is the saved file name, empty when the image went into an archive
	File string `json:"file,omitempty" yaml:"file,omitempty"`
}

// Manifest records what a download contained and where it came from
type Manifest struct {
	PageURL      string    `json:"page_url" yaml:"page_url"`
	Mode         string    `json:"mode" yaml:"mode"`
	SessionID    string    `json:"session_id,omitempty" yaml:"session_id,omitempty"`
	Archive      string    `json:"archive,omitempty" yaml:"archive,omitempty"`
	DownloadedAt time.Time `json:"downloaded_at" yaml:"downloaded_at"`
	Images       []Entry   `json:"images" yaml:"images"`
}

// FromDescriptors builds a manifest for descs scraped from pageURL
func FromDescriptors(pageURL string, mode models.ScrapeMode, descs []models.ImageDescriptor) *Manifest {
	m := &Manifest{
		PageURL:      pageURL,
		Mode:         string(mode),
		DownloadedAt: time.Now(),
		Images:       make([]Entry, 0, len(descs)),
	}
	for _, d := range descs {
		m.Images = append(m.Images, Entry{SourceURL: d.SourceURL, AltText: d.AltText})
	}
	return m
}

// Add appends one saved image
func (m *Manifest) Add(desc models.ImageDescriptor, file string) {
	m.Images = append(m.Images, Entry{SourceURL: desc.SourceURL, AltText: desc.AltText, File: file})
}

// Path returns where the manifest for filePath lives
func Path(filePath string, format Format) string {
	if format == FormatYAML {
		return filePath + ".manifest.yaml"
	}
	return filePath + ".manifest.json"
}

// Save writes the manifest next to filePath and returns its path
func (m *Manifest) Save(filePath string, format Format) (string, error) {
	var (
		data []byte
		err  error
	)
	switch format {
	case FormatYAML:
		data, err = yaml.Marshal(m)
	default:
		format = FormatJSON
		data, err = json.MarshalIndent(m, "", "  ")
	}
	if err != nil {
		return "", fmt.Errorf("failed to marshal manifest: %w", err)
	}

	manifestPath := Path(filePath, format)
	if err := os.WriteFile(manifestPath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write manifest file: %w", err)
	}
	return manifestPath, nil
}

// Load reads the manifest stored next to filePath, trying JSON then YAML
func Load(filePath string) (*Manifest, error) {
	for _, format := range []Format{FormatJSON, FormatYAML} {
		data, err := os.ReadFile(Path(filePath, format))
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read manifest file: %w", err)
		}

		var m Manifest
		if format == FormatYAML {
			err = yaml.Unmarshal(data, &m)
		} else {
			err = json.Unmarshal(data, &m)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal manifest: %w", err)
		}
		return &m, nil
	}
	return nil, fmt.Errorf("no manifest found for %s", filePath)
}

// Exists checks if a manifest exists for filePath in either format
func Exists(filePath string) bool {
	for _, format := range []Format{FormatJSON, FormatYAML} {
		if _, err := os.Stat(Path(filePath, format)); err == nil {
			return true
		}
	}
	return false
}

// CleanOrphaned removes manifests whose file no longer exists
func CleanOrphaned(directory string) (int, error) {
	removed := 0
	err := filepath.Walk(directory, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		var target string
		switch {
		case strings.HasSuffix(path, ".manifest.json"):
			target = strings.TrimSuffix(path, ".manifest.json")
		case strings.HasSuffix(path, ".manifest.yaml"):
			target = strings.TrimSuffix(path, ".manifest.yaml")
		default:
			return nil
		}

		if _, err := os.Stat(target); os.IsNotExist(err) {
			if err := os.Remove(path); err != nil {
				return fmt.Errorf("failed to remove orphaned manifest %s: %w", path, err)
			}
			removed++
		}
		return nil
	})
	return removed, err
}
