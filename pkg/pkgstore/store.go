// SPDX-License-Identifier: MPL-2.0

package pkgstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/pkgrun/pkgrun/pkg/manifest"
)

// LatestTag is the version hint used when none is given.
const LatestTag = "latest"

var (
	// ErrPackageNotFound indicates the registry has no version matching the request.
	ErrPackageNotFound = errors.New("package not found")

	// errNotPrepared is returned when a registry-backed path is needed before
	// the version was resolved.
	errNotPrepared = errors.New("package version has not been resolved")
)

type (
	// VersionResolver looks up the newest published version of a package.
	// It returns "" and a nil error when nothing qualifies.
	VersionResolver interface {
		ResolveLatestVersion(ctx context.Context, name, floor string) (string, error)
	}

	// Installer materializes name@version and its dependency closure under
	// storeDir at the location given by CacheKey.
	Installer interface {
		Install(ctx context.Context, storeDir, name, version string) error
	}

	// Store owns one PackageRequest and the version it resolves to. It is not
	// safe for concurrent use; each dispatch builds its own.
	Store struct {
		req       PackageRequest
		resolved  string
		resolver  VersionResolver
		installer Installer
		logger    *log.Logger
	}

	// Option configures a Store.
	Option func(*Store)
)

// WithLogger sets the logger used for lifecycle messages.
func WithLogger(l *log.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewStore validates req and returns a Store for it. resolver and installer
// may be nil for local requests.
func NewStore(req PackageRequest, resolver VersionResolver, installer Installer, opts ...Option) (*Store, error) {
	if err := ValidateName(req.PackageName); err != nil {
		return nil, err
	}
	if req.TargetPath == "" {
		return nil, errors.New("target path is required")
	}
	if !req.Local() && (resolver == nil || installer == nil) {
		return nil, errors.New("registry-backed store requires a resolver and an installer")
	}
	if req.PackageVersion == "" {
		req.PackageVersion = LatestTag
	}

	s := &Store{
		req:       req,
		resolver:  resolver,
		installer: installer,
		logger:    log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Request returns the request the store was built from.
func (s *Store) Request() PackageRequest { return s.req }

// ResolvedVersion returns the version chosen by the last Prepare or Update.
func (s *Store) ResolvedVersion() string { return s.resolved }

// CachePath returns the cache-key directory for the resolved version.
func (s *Store) CachePath() string {
	if s.resolved == "" {
		return ""
	}
	return cachePath(s.req.StoreDir, s.req.PackageName, s.resolved)
}

// LinkPath returns the pointer to the currently installed version.
func (s *Store) LinkPath() string {
	return filepath.Join(s.req.StoreDir, filepath.FromSlash(s.req.PackageName))
}

// Prepare creates the target and store directories and resolves the version
// hint against the registry. It may be called repeatedly; each call re-checks
// the registry.
func (s *Store) Prepare(ctx context.Context) error {
	if err := os.MkdirAll(s.req.TargetPath, 0o755); err != nil {
		return fmt.Errorf("creating target directory: %w", err)
	}
	if s.req.Local() {
		return nil
	}
	if err := os.MkdirAll(s.req.StoreDir, 0o755); err != nil {
		return fmt.Errorf("creating store directory: %w", err)
	}

	version, err := s.resolver.ResolveLatestVersion(ctx, s.req.PackageName, s.req.PackageVersion)
	if err != nil {
		return fmt.Errorf("resolving %s@%s: %w", s.req.PackageName, s.req.PackageVersion, err)
	}
	if version == "" {
		return fmt.Errorf("%s@%s: %w", s.req.PackageName, s.req.PackageVersion, ErrPackageNotFound)
	}
	if err := validateVersion(version); err != nil {
		return err
	}

	if version != s.resolved {
		s.logger.Debug("resolved package version", "package", s.req.PackageName, "hint", s.req.PackageVersion, "version", version)
	}
	s.resolved = version
	return nil
}

// Exists prepares the store and reports whether the resolved version is
// already materialized.
func (s *Store) Exists(ctx context.Context) (bool, error) {
	if err := s.Prepare(ctx); err != nil {
		return false, err
	}

	dir := s.req.TargetPath
	if !s.req.Local() {
		dir = s.CachePath()
	}
	return hasManifest(dir)
}

// Install prepares the store and installs the resolved version and its
// dependencies, then points the installed link at it.
func (s *Store) Install(ctx context.Context) error {
	if err := s.Prepare(ctx); err != nil {
		return err
	}
	if s.req.Local() {
		return nil
	}
	return s.installResolved(ctx)
}

// Update installs a newer version when the registry has one.
//
// When no installed version can be determined, Update performs a fresh
// install. With the default "latest" hint a stable installed version is used
// as the floor for the registry lookup; any other hint installs whatever Prepare
// resolves it to when that differs from the installed version.
// Update is a no-op when the installed version is already current.
func (s *Store) Update(ctx context.Context) error {
	if s.req.Local() {
		return nil
	}

	installed, err := s.InstalledVersion()
	if err != nil {
		return err
	}
	if installed == "" {
		s.logger.Debug("no installed version found, installing", "package", s.req.PackageName)
		return s.Install(ctx)
	}

	if err := s.Prepare(ctx); err != nil {
		return err
	}

	// A prerelease installed through an explicit tag or floor is not used as
	// the floor for a plain run, which follows the latest tag again.
	if s.req.PackageVersion == LatestTag && !isPrerelease(installed) {
		newer, err := s.resolver.ResolveLatestVersion(ctx, s.req.PackageName, installed)
		if err != nil {
			return fmt.Errorf("checking for updates to %s: %w", s.req.PackageName, err)
		}
		if newer == "" || newer == installed {
			s.resolved = installed
		} else {
			if err := validateVersion(newer); err != nil {
				return err
			}
			s.resolved = newer
		}
	}

	if s.resolved == installed {
		if ok, err := hasManifest(s.CachePath()); err != nil || ok {
			s.logger.Debug("package is up to date", "package", s.req.PackageName, "version", installed)
			return err
		}
	}

	s.logger.Info("updating package", "package", s.req.PackageName, "from", installed, "to", s.resolved)
	return s.installResolved(ctx)
}

// InstalledVersion reads the version behind the installed link, or "" when
// the package has never been installed.
func (s *Store) InstalledVersion() (string, error) {
	if s.req.Local() {
		return manifest.ReadInstalledVersion(s.req.TargetPath)
	}
	v, err := manifest.ReadInstalledVersion(s.LinkPath())
	if err != nil {
		return "", fmt.Errorf("reading installed version of %s: %w", s.req.PackageName, err)
	}
	return v, nil
}

// RootFilePath returns the entry point of the package, or "" when its
// manifest is missing or declares no entry. Local requests resolve directly
// from TargetPath.
func (s *Store) RootFilePath() (string, error) {
	if s.req.Local() {
		return manifest.ResolveRootFile(s.req.TargetPath)
	}
	if s.resolved == "" {
		return "", errNotPrepared
	}
	return manifest.ResolveRootFile(s.CachePath())
}

// Evict removes the cached copy of the resolved version so the next Install
// downloads it again.
func (s *Store) Evict() error {
	if s.req.Local() {
		return nil
	}
	if s.resolved == "" {
		return errNotPrepared
	}
	top, _, _ := strings.Cut(CacheKey(s.req.PackageName, s.resolved), "/")
	if err := os.RemoveAll(filepath.Join(s.req.StoreDir, top)); err != nil {
		return fmt.Errorf("evicting %s@%s: %w", s.req.PackageName, s.resolved, err)
	}
	return nil
}

func (s *Store) installResolved(ctx context.Context) error {
	s.logger.Info("installing package", "package", s.req.PackageName, "version", s.resolved)

	if err := s.installer.Install(ctx, s.req.StoreDir, s.req.PackageName, s.resolved); err != nil {
		return fmt.Errorf("installing %s@%s: %w", s.req.PackageName, s.resolved, err)
	}
	if err := linkDir(s.CachePath(), s.LinkPath()); err != nil {
		return fmt.Errorf("linking %s: %w", s.req.PackageName, err)
	}
	return nil
}

// hasManifest reports whether dir directly contains a package manifest.
func hasManifest(dir string) (bool, error) {
	info, err := os.Stat(filepath.Join(dir, manifest.FileName))
	switch {
	case err == nil:
		return !info.IsDir(), nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}
