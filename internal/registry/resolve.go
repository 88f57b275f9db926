// SPDX-License-Identifier: MPL-2.0

package registry

import (
	"context"
	"errors"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// LatestTag is the dist-tag npm registries maintain for the newest stable release.
const LatestTag = "latest"

// ResolveLatestVersion returns the newest version of name known to the
// registry, bounded below by floor.
//
// floor may be empty or "latest" (the latest dist-tag), another dist-tag,
// a concrete version (the highest stable version >= floor) or a semver
// range (the highest version satisfying it). It returns "" with a nil error
// when the registry has no record of name or no published version qualifies.
// Any other failure is returned as an error so callers can tell
// "not found" from "could not check".
func (c *Client) ResolveLatestVersion(ctx context.Context, name, floor string) (string, error) {
	doc, err := c.Packument(ctx, name, false)
	if err != nil {
		if errors.Is(err, ErrPackageNotFound) {
			return "", nil
		}
		return "", err
	}
	return SelectVersion(doc, floor), nil
}

// SelectVersion applies the ResolveLatestVersion rules to a fetched packument.
func SelectVersion(doc *Packument, floor string) string {
	floor = strings.TrimSpace(floor)

	if floor == "" || floor == LatestTag {
		if v := taggedVersion(doc, LatestTag); v != "" {
			return v
		}
		return highest(doc, func(v *semver.Version) bool { return v.Prerelease() == "" })
	}

	if lower, err := semver.StrictNewVersion(strings.TrimPrefix(floor, "v")); err == nil {
		allowPre := lower.Prerelease() != ""
		return highest(doc, func(v *semver.Version) bool {
			if v.Prerelease() != "" && !allowPre {
				return false
			}
			return !v.LessThan(lower)
		})
	}

	if c, err := semver.NewConstraint(floor); err == nil {
		return highest(doc, c.Check)
	}

	return taggedVersion(doc, floor)
}

// ResolveRange picks the version a dependency declaration refers to. Unlike
// SelectVersion, a concrete version is an exact pin rather than a floor.
// It returns "" when nothing published satisfies declared.
func ResolveRange(doc *Packument, declared string) string {
	declared = strings.TrimSpace(declared)

	switch declared {
	case "", "*", "x", LatestTag:
		return SelectVersion(doc, LatestTag)
	}

	if exact, err := semver.StrictNewVersion(strings.TrimPrefix(declared, "v")); err == nil {
		if _, ok := doc.Versions[exact.Original()]; ok {
			return exact.Original()
		}
		return highest(doc, exact.Equal)
	}

	if c, err := semver.NewConstraint(declared); err == nil {
		return highest(doc, c.Check)
	}

	return taggedVersion(doc, declared)
}

// taggedVersion returns the version behind a dist-tag if it is published.
func taggedVersion(doc *Packument, tag string) string {
	v, ok := doc.DistTags[tag]
	if !ok {
		return ""
	}
	if _, published := doc.Versions[v]; !published && len(doc.Versions) > 0 {
		return ""
	}
	if _, err := semver.NewVersion(v); err != nil {
		return ""
	}
	return v
}

// highest returns the greatest published version accepted by keep.
// Unparseable version keys are ignored. Keys of equal precedence, such as
// build metadata variants, are ordered by their raw text so the result does
// not depend on map iteration order.
func highest(doc *Packument, keep func(*semver.Version) bool) string {
	var (
		best    *semver.Version
		bestRaw string
	)
	for raw := range doc.Versions {
		v, err := semver.NewVersion(raw)
		if err != nil || !keep(v) {
			continue
		}
		if best == nil || v.GreaterThan(best) || (v.Equal(best) && raw > bestRaw) {
			best, bestRaw = v, raw
		}
	}
	return bestRaw
}
