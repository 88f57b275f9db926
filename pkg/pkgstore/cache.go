// SPDX-License-Identifier: MPL-2.0

package pkgstore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkgrun/pkgrun/pkg/manifest"
)

// Entry is one materialized version found in a store directory.
type Entry struct {
	Name    string
	Version string
	Path    string
	// Current is set when the installed link points at this version.
	Current bool
}

// List returns every cached package version under storeDir, sorted by name
// then version. A missing store directory yields no entries.
func List(storeDir string) ([]Entry, error) {
	dirs, err := os.ReadDir(storeDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var entries []Entry
	for _, d := range dirs {
		if d.IsDir() && strings.HasPrefix(d.Name(), "_") {
			entries = append(entries, keyDirEntries(storeDir, d.Name())...)
		}
	}

	sort.Slice(entries, func(a, b int) bool {
		if entries[a].Name != entries[b].Name {
			return entries[a].Name < entries[b].Name
		}
		return entries[a].Version < entries[b].Version
	})
	return entries, nil
}

// keyDirEntries decodes a top-level key directory. Unscoped keys look like
// "_demo@1.0.0@demo"; scoped keys split across two levels,
// "_@acme_tool@1.0.0@@acme/tool", so the scope directory is scanned.
func keyDirEntries(storeDir, dirName string) []Entry {
	body := strings.TrimPrefix(dirName[1:], "@")
	_, rest, ok := strings.Cut(body, "@")
	if !ok {
		return nil
	}
	version, tail, ok := strings.Cut(rest, "@")
	if !ok || version == "" || tail == "" {
		return nil
	}

	var candidates []string
	if strings.HasPrefix(tail, "@") {
		subdirs, err := os.ReadDir(filepath.Join(storeDir, dirName))
		if err != nil {
			return nil
		}
		for _, sd := range subdirs {
			if sd.IsDir() {
				candidates = append(candidates, tail+"/"+sd.Name())
			}
		}
	} else {
		candidates = []string{tail}
	}

	var entries []Entry
	for _, name := range candidates {
		key := CacheKey(name, version)
		if !strings.HasPrefix(key, dirName) {
			continue
		}
		path := cachePath(storeDir, name, version)
		if ok, _ := hasManifest(path); !ok {
			continue
		}
		current, _ := manifest.ReadInstalledVersion(filepath.Join(storeDir, filepath.FromSlash(name)))
		entries = append(entries, Entry{Name: name, Version: version, Path: path, Current: current == version})
	}
	return entries
}

// Remove deletes every cached version of name together with its installed
// link and returns how many versions were removed. An empty name clears the
// whole store.
func Remove(storeDir, name string) (int, error) {
	if name == "" {
		entries, err := List(storeDir)
		if err != nil {
			return 0, err
		}
		if err := os.RemoveAll(storeDir); err != nil {
			return 0, fmt.Errorf("removing store: %w", err)
		}
		return len(entries), nil
	}

	if err := ValidateName(name); err != nil {
		return 0, err
	}
	entries, err := List(storeDir)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, e := range entries {
		if e.Name != name {
			continue
		}
		top, _, _ := strings.Cut(CacheKey(e.Name, e.Version), "/")
		keyDir := filepath.Join(storeDir, top)
		if err := os.RemoveAll(keyDir); err != nil {
			return removed, fmt.Errorf("removing %s@%s: %w", e.Name, e.Version, err)
		}
		removed++
	}
	if err := os.RemoveAll(filepath.Join(storeDir, filepath.FromSlash(name))); err != nil {
		return removed, fmt.Errorf("removing link for %s: %w", name, err)
	}
	return removed, nil
}
