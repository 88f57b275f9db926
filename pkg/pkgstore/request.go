// SPDX-License-Identifier: MPL-2.0

package pkgstore

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/pkgrun/pkgrun/pkg/platform"
)

// maxNameLength is the registry limit on package name length.
const maxNameLength = 214

var (
	// ErrInvalidPackageName is the sentinel wrapped by InvalidPackageNameError.
	ErrInvalidPackageName = errors.New("invalid package name")

	// ErrInvalidVersion indicates a version that cannot safely name a directory.
	ErrInvalidVersion = errors.New("invalid package version")
)

type (
	// PackageRequest identifies one package to dispatch. PackageVersion is a
	// hint ("latest", a dist-tag, a floor version or a range) that Prepare
	// resolves to a concrete version. An empty StoreDir means TargetPath is an
	// explicit local package and the registry is never consulted.
	PackageRequest struct {
		TargetPath     string
		StoreDir       string
		PackageName    string
		PackageVersion string
	}

	// InvalidPackageNameError reports why a package name was rejected.
	InvalidPackageNameError struct {
		Name   string
		Reason string
	}
)

func (e *InvalidPackageNameError) Error() string {
	return fmt.Sprintf("invalid package name %q: %s", e.Name, e.Reason)
}

// Unwrap returns ErrInvalidPackageName for errors.Is checks.
func (e *InvalidPackageNameError) Unwrap() error { return ErrInvalidPackageName }

// Local reports whether the request points at an explicit local package.
func (r PackageRequest) Local() bool { return r.StoreDir == "" }

// CacheKey returns the store-relative location of name at version:
// "_<safeName>@<version>@<name>", where safeName replaces "/" with "_".
// Scoped names therefore produce a nested path ending in the scope directory.
func CacheKey(name, version string) string {
	return "_" + strings.ReplaceAll(name, "/", "_") + "@" + version + "@" + name
}

// cachePath joins a cache key to storeDir using host separators.
func cachePath(storeDir, name, version string) string {
	return filepath.Join(storeDir, filepath.FromSlash(CacheKey(name, version)))
}

// ValidateName checks name against registry naming rules: at most 214
// characters, lowercase, URL-safe, an optional "@scope/" prefix, no leading
// "." or "_", and no segment that Windows reserves as a device name.
func ValidateName(name string) error {
	invalid := func(reason string) error {
		return &InvalidPackageNameError{Name: name, Reason: reason}
	}

	switch {
	case strings.TrimSpace(name) == "":
		return invalid("name is empty")
	case len(name) > maxNameLength:
		return invalid(fmt.Sprintf("name exceeds %d characters", maxNameLength))
	case strings.ToLower(name) != name:
		return invalid("name must be lowercase")
	}

	segments := []string{name}
	if strings.HasPrefix(name, "@") {
		scope, pkg, ok := strings.Cut(name[1:], "/")
		if !ok || scope == "" || pkg == "" || strings.Contains(pkg, "/") {
			return invalid(`scoped names take the form "@scope/name"`)
		}
		segments = []string{scope, pkg}
	} else if strings.Contains(name, "/") {
		return invalid(`only scoped names ("@scope/name") may contain "/"`)
	}

	for _, seg := range segments {
		if strings.HasPrefix(seg, ".") || strings.HasPrefix(seg, "_") {
			return invalid(`name cannot start with "." or "_"`)
		}
		if url.PathEscape(seg) != seg || strings.ContainsAny(seg, "~'!()*") {
			return invalid("name contains characters that are not URL-safe")
		}
		if platform.IsWindowsReservedName(seg) {
			return invalid("name is a reserved device name on Windows")
		}
	}
	return nil
}

// validateVersion rejects resolved versions that are not semantic versions,
// since they become part of an on-disk path.
func validateVersion(v string) error {
	if strings.ContainsAny(v, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidVersion, v)
	}
	if _, err := semver.NewVersion(v); err != nil {
		return fmt.Errorf("%w: %q: %w", ErrInvalidVersion, v, err)
	}
	return nil
}

func isPrerelease(version string) bool {
	v, err := semver.NewVersion(version)
	return err == nil && v.Prerelease() != ""
}
