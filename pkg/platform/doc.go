// SPDX-License-Identifier: MPL-2.0

// Package platform holds the small set of host-OS rules pkgrun needs: OS name
// constants for runtime.GOOS comparisons, Windows reserved file names (which
// cannot appear as a path segment of a cache directory), and the launcher
// extensions that Windows only runs through a cmd.exe wrapper.
package platform
