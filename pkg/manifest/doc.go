// SPDX-License-Identifier: MPL-2.0

// Package manifest reads package.json manifests of installed command packages
// and resolves their entry point.
//
// An installed package is not tracked by any long-lived object: it is
// discovered by walking upward from a directory (usually a cache-key path
// inside the store) to the nearest package.json. [ResolveRootFile] then turns
// the manifest's "main" field into an absolute path that always uses forward
// slashes, whatever the host OS.
package manifest
