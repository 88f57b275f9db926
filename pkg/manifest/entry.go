// SPDX-License-Identifier: MPL-2.0

package manifest

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ResolveRootFile locates the nearest manifest at or above startPath and
// returns the absolute path of its declared entry point, using "/" as the
// separator on every platform.
//
// It returns "" (and no error) when no manifest exists or the manifest has no
// "main" field: that means "nothing to execute", not a failure. No default
// entry such as index.js is guessed.
func ResolveRootFile(startPath string) (string, error) {
	dir, err := FindDir(startPath)
	if err != nil {
		return "", err
	}
	if dir == "" {
		return "", nil
	}

	m, err := Load(dir)
	if err != nil {
		return "", err
	}
	return m.EntryPath()
}

// EntryPath resolves Main against the manifest directory.
func (m *Manifest) EntryPath() (string, error) {
	main := strings.TrimSpace(m.Main)
	if main == "" {
		return "", nil
	}

	// Manifests authored on Windows may use backslashes.
	main = strings.ReplaceAll(main, `\`, "/")
	if strings.HasPrefix(main, "/") || filepath.IsAbs(filepath.FromSlash(main)) {
		return "", fmt.Errorf("%s: main %q must be relative to the package root", m.Name, m.Main)
	}

	abs, err := filepath.Abs(filepath.Join(m.Dir, filepath.FromSlash(main)))
	if err != nil {
		return "", fmt.Errorf("resolving entry %q: %w", m.Main, err)
	}
	return filepath.ToSlash(abs), nil
}
