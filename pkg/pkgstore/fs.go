// SPDX-License-Identifier: MPL-2.0

package pkgstore

import (
	"fmt"
	"os"
	"path/filepath"
)

// linkDir points link at target, replacing whatever link currently holds.
// A relative symlink is preferred; when the platform refuses symlinks (e.g.
// Windows without developer mode) the directory is copied instead.
func linkDir(target, link string) error {
	if err := os.MkdirAll(filepath.Dir(link), 0o755); err != nil {
		return err
	}

	rel, err := filepath.Rel(filepath.Dir(link), target)
	if err != nil {
		rel = target
	}

	if info, err := os.Lstat(link); err == nil {
		if info.Mode()&os.ModeSymlink != 0 {
			if current, readErr := os.Readlink(link); readErr == nil && current == rel {
				return nil
			}
			if err := os.Remove(link); err != nil {
				return fmt.Errorf("removing stale link: %w", err)
			}
		} else if err := os.RemoveAll(link); err != nil {
			return fmt.Errorf("removing stale copy: %w", err)
		}
	}

	if err := os.Symlink(rel, link); err == nil {
		return nil
	}
	return copyDir(target, link)
}

// copyDir recursively copies a directory, skipping symlinks so a copied
// package cannot reach outside the store.
func copyDir(src, dst string) error {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dst, srcInfo.Mode().Perm()); err != nil {
		return err
	}

	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		srcPath := filepath.Join(src, entry.Name())
		dstPath := filepath.Join(dst, entry.Name())

		if entry.Type()&os.ModeSymlink != 0 {
			continue
		}

		if entry.IsDir() {
			if err := copyDir(srcPath, dstPath); err != nil {
				return err
			}
			continue
		}
		if err := copyFile(srcPath, dstPath); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, info.Mode().Perm())
}
