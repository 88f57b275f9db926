// SPDX-License-Identifier: MPL-2.0

package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

const (
	// FileName is the manifest file every command package carries at its root.
	FileName = "package.json"

	// maxManifestBytes bounds how much of a manifest is read into memory.
	maxManifestBytes = 4 << 20
)

// Manifest is the subset of package.json that pkgrun consumes.
type Manifest struct {
	Name         string            `json:"name"`
	Version      string            `json:"version"`
	Description  string            `json:"description,omitempty"`
	Main         string            `json:"main,omitempty"`
	Dependencies map[string]string `json:"dependencies,omitempty"`

	// Dir is the absolute directory the manifest was loaded from.
	Dir string `json:"-"`
}

// Load reads and decodes the manifest in dir.
// A missing manifest is reported with an error wrapping fs.ErrNotExist.
func Load(dir string) (*Manifest, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving manifest directory: %w", err)
	}

	path := filepath.Join(absDir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) > maxManifestBytes {
		return nil, fmt.Errorf("%s: manifest exceeds %d bytes", path, maxManifestBytes)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%s: invalid manifest: %w", path, err)
	}
	m.Dir = absDir
	return &m, nil
}

// FindDir walks upward from start (inclusive) and returns the first directory
// containing a manifest. It returns "" when the filesystem root is reached
// without finding one; start itself does not need to exist.
func FindDir(start string) (string, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", start, err)
	}

	for {
		// Stat errors (missing file, a path segment that is a regular file,
		// unreadable directory) all mean "no manifest here".
		if info, statErr := os.Stat(filepath.Join(dir, FileName)); statErr == nil && !info.IsDir() {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

// ReadInstalledVersion returns the version declared by the manifest in dir,
// or "" when dir holds no manifest.
func ReadInstalledVersion(dir string) (string, error) {
	m, err := Load(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", err
	}
	return m.Version, nil
}
