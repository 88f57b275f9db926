// SPDX-License-Identifier: MPL-2.0

// Package pkgstore materializes command packages on disk.
//
// Every installed version lives under the store directory at a path derived
// from its cache key (see CacheKey), so equal (name, version) pairs always map
// to the same location across runs. A per-package pointer at
// <storeDir>/<name> tracks which version is currently installed; Update reads
// it to decide whether a newer version must be fetched.
//
// The Store drives the prepare / exists / install / update lifecycle and
// delegates the actual download to an Installer. TarballInstaller is the
// registry-backed implementation: it verifies tarball integrity, extracts into
// a staging directory and renames into place, then installs the dependency
// closure and links each dependency into the package's node_modules.
package pkgstore
