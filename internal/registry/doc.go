// SPDX-License-Identifier: MPL-2.0

// Package registry is a small client for npm-compatible package registries.
//
// It covers what pkgrun needs to run a command package:
//   - client.go: HTTP access to packuments and tarballs (auth, size limits, 404 handling)
//   - packument.go: wire types and scoped-name escaping
//   - resolve.go: version selection ("latest", dist-tags, floors, semver ranges)
//   - integrity.go: Subresource Integrity and legacy shasum verification of tarballs
//
// A registry that has no record of a package is not an error for
// [Client.ResolveLatestVersion]: it returns an empty version. Transport and
// protocol failures are reported as [*RegistryError] so callers can tell
// "does not exist" apart from "could not check".
package registry
