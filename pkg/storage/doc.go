// Package storage saves downloaded images and archives to the output
// directory.
//
// File names come from the backend's Content-Disposition header or from the
// image's alt text, and are sanitized the same way the backend does: CR/LF and
// the characters \ / * ? : " < > | are dropped, underscores become spaces and
// the name is trimmed and capped at 200 characters. A name that already exists
// gets a " (n)" suffix unless overwriting is enabled.
//
// Every write goes to a temporary file first and is renamed into place.
//
// Usage:
//
//	manager, err := storage.NewManager(cfg.Output.BaseDirectory, cfg.Output.OverwriteExisting)
//	if err != nil {
//	    return err
//	}
//
//	path, err := manager.SaveDownload(dl)
package storage
