// SPDX-License-Identifier: MPL-2.0

package registry

import (
	"net/url"
	"strings"
)

type (
	// Packument is the registry document describing every published version
	// of a package.
	Packument struct {
		Name        string                 `json:"name"`
		Description string                 `json:"description,omitempty"`
		DistTags    map[string]string      `json:"dist-tags"`
		Versions    map[string]VersionMeta `json:"versions"`
		Readme      string                 `json:"readme,omitempty"`
		Time        map[string]string      `json:"time,omitempty"`
	}

	// VersionMeta is the per-version manifest as served by the registry.
	VersionMeta struct {
		Name         string            `json:"name"`
		Version      string            `json:"version"`
		Description  string            `json:"description,omitempty"`
		Dependencies map[string]string `json:"dependencies,omitempty"`
		Deprecated   string            `json:"deprecated,omitempty"`
		Dist         Dist              `json:"dist"`
	}

	// Dist locates the tarball of a version and carries its checksums.
	Dist struct {
		Tarball   string `json:"tarball"`
		Shasum    string `json:"shasum,omitempty"`
		Integrity string `json:"integrity,omitempty"`
	}
)

// Version returns the metadata of version v, if published.
func (p *Packument) Version(v string) (VersionMeta, bool) {
	meta, ok := p.Versions[v]
	return meta, ok
}

// EscapeName converts a package name into its registry URL path segment.
// Scoped names keep the leading "@" but encode the scope separator, which is
// how npm registries address "@scope/name".
func EscapeName(name string) string {
	if scope, rest, ok := strings.Cut(name, "/"); ok && strings.HasPrefix(scope, "@") {
		return "@" + url.PathEscape(strings.TrimPrefix(scope, "@")) + "%2f" + url.PathEscape(rest)
	}
	return url.PathEscape(name)
}
