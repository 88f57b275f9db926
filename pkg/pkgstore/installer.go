// SPDX-License-Identifier: MPL-2.0

package pkgstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/pkgrun/pkgrun/internal/registry"
	"github.com/pkgrun/pkgrun/pkg/manifest"
)

const (
	// DefaultConcurrency is the number of sibling dependencies installed at once.
	DefaultConcurrency = 4

	// maxTarballBytes bounds a single compressed download.
	maxTarballBytes = 256 << 20

	// fetchTimeout bounds downloading and extracting one tarball.
	fetchTimeout = 10 * time.Minute

	// nodeModulesDir holds a package's links to its dependencies.
	nodeModulesDir = "node_modules"
)

// ErrVersionNotPublished indicates the registry does not list the requested version.
var ErrVersionNotPublished = errors.New("version not published")

type (
	// PackageSource is the registry surface the installer needs.
	PackageSource interface {
		Packument(ctx context.Context, name string, full bool) (*registry.Packument, error)
		Download(ctx context.Context, tarballURL string) (io.ReadCloser, error)
	}

	// TarballInstaller installs packages from registry tarballs.
	TarballInstaller struct {
		source      PackageSource
		logger      *log.Logger
		concurrency int
		extracts    singleflight.Group
	}

	// InstallerOption configures a TarballInstaller.
	InstallerOption func(*TarballInstaller)

	// installRun tracks the keys visited while installing one closure so that
	// dependency cycles terminate.
	installRun struct {
		*TarballInstaller
		storeDir string

		mu      sync.Mutex
		visited map[string]bool
	}
)

// WithInstallerLogger sets the installer's logger.
func WithInstallerLogger(l *log.Logger) InstallerOption {
	return func(i *TarballInstaller) {
		if l != nil {
			i.logger = l
		}
	}
}

// WithConcurrency bounds how many sibling dependencies install in parallel.
// Values below 1 keep the default.
func WithConcurrency(n int) InstallerOption {
	return func(i *TarballInstaller) {
		if n > 0 {
			i.concurrency = n
		}
	}
}

// NewTarballInstaller returns an installer fetching from source.
func NewTarballInstaller(source PackageSource, opts ...InstallerOption) *TarballInstaller {
	i := &TarballInstaller{
		source:      source,
		logger:      log.New(io.Discard),
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Install materializes name@version and its dependency closure in storeDir.
// Versions already present are not downloaded again.
func (i *TarballInstaller) Install(ctx context.Context, storeDir, name, version string) error {
	run := &installRun{TarballInstaller: i, storeDir: storeDir, visited: make(map[string]bool)}
	return run.install(ctx, name, version)
}

func (r *installRun) markVisited(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.visited[key] {
		return false
	}
	r.visited[key] = true
	return true
}

func (r *installRun) install(ctx context.Context, name, version string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !r.markVisited(CacheKey(name, version)) {
		return nil
	}

	dest := cachePath(r.storeDir, name, version)
	present, err := hasManifest(dest)
	if err != nil {
		return err
	}

	var deps map[string]string
	if present {
		m, err := manifest.Load(dest)
		if err != nil {
			return err
		}
		deps = m.Dependencies
	} else {
		doc, err := r.source.Packument(ctx, name, false)
		if err != nil {
			return err
		}
		meta, ok := doc.Version(version)
		if !ok {
			return fmt.Errorf("%s@%s: %w", name, version, ErrVersionNotPublished)
		}
		if err := r.extractOnce(ctx, name, version, meta.Dist, dest); err != nil {
			return err
		}
		deps = meta.Dependencies
	}

	return r.installDeps(ctx, dest, deps)
}

// installDeps installs each dependency under its own key and links it into
// pkgDir/node_modules.
func (r *installRun) installDeps(ctx context.Context, pkgDir string, deps map[string]string) error {
	if len(deps) == 0 {
		return nil
	}

	names := make([]string, 0, len(deps))
	for dep := range deps {
		names = append(names, dep)
	}
	sort.Strings(names)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for _, dep := range names {
		rangeSpec := deps[dep]
		g.Go(func() error {
			if err := ValidateName(dep); err != nil {
				return err
			}
			doc, err := r.source.Packument(gctx, dep, false)
			if err != nil {
				return fmt.Errorf("dependency %s: %w", dep, err)
			}
			version := registry.ResolveRange(doc, rangeSpec)
			if version == "" {
				return fmt.Errorf("dependency %s@%s: %w", dep, rangeSpec, ErrPackageNotFound)
			}
			if err := validateVersion(version); err != nil {
				return err
			}
			if err := r.install(gctx, dep, version); err != nil {
				return fmt.Errorf("dependency %s@%s: %w", dep, version, err)
			}

			link := filepath.Join(pkgDir, nodeModulesDir, filepath.FromSlash(dep))
			r.logger.Debug("linking dependency", "dependency", dep, "version", version)
			return linkDir(cachePath(r.storeDir, dep, version), link)
		})
	}
	return g.Wait()
}

// extractOnce downloads and extracts one version, sharing the work with any
// concurrent install of the same key. The shared work is detached from ctx
// and bounded by fetchTimeout; a caller whose ctx ends stops waiting for it.
func (r *installRun) extractOnce(ctx context.Context, name, version string, dist registry.Dist, dest string) error {
	ch := r.extracts.DoChan(dest, func() (any, error) {
		if ok, err := hasManifest(dest); err != nil || ok {
			return nil, err
		}
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fetchTimeout)
		defer cancel()
		return nil, r.fetch(fetchCtx, name+"@"+version, dist, dest)
	})

	select {
	case <-ctx.Done():
		return fmt.Errorf("installing %s@%s: %w", name, version, ctx.Err())
	case res := <-ch:
		return res.Err
	}
}

// fetch downloads a tarball to a temporary file while hashing it, verifies
// its integrity, extracts it into a staging directory and renames the
// staging directory to dest.
func (r *installRun) fetch(ctx context.Context, resource string, dist registry.Dist, dest string) error {
	verifier, err := registry.NewVerifier(dist)
	switch {
	case errors.Is(err, registry.ErrNoIntegrity):
		r.logger.Warn("registry published no integrity metadata", "package", resource)
		verifier = nil
	case err != nil:
		return fmt.Errorf("%s: %w", resource, err)
	}

	r.logger.Debug("downloading tarball", "package", resource)
	body, err := r.source.Download(ctx, dist.Tarball)
	if err != nil {
		return err
	}
	defer func() { _ = body.Close() }() // read-only response body

	tmp, err := os.CreateTemp(r.storeDir, ".download-*.tgz")
	if err != nil {
		return fmt.Errorf("creating download file: %w", err)
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()

	var sink io.Writer = tmp
	if verifier != nil {
		sink = io.MultiWriter(tmp, verifier)
	}
	n, err := io.Copy(sink, io.LimitReader(body, maxTarballBytes+1))
	if err != nil {
		return fmt.Errorf("downloading %s: %w", resource, err)
	}
	if n > maxTarballBytes {
		return fmt.Errorf("%s: tarball exceeds %d bytes", resource, maxTarballBytes)
	}
	if verifier != nil {
		if err := verifier.Verify(resource); err != nil {
			return err
		}
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return err
	}

	staging, err := os.MkdirTemp(r.storeDir, ".staging-*")
	if err != nil {
		return fmt.Errorf("creating staging directory: %w", err)
	}
	defer func() { _ = os.RemoveAll(staging) }()

	if err := extractTarball(tmp, staging); err != nil {
		return fmt.Errorf("extracting %s: %w", resource, err)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	if err := os.Rename(staging, dest); err != nil {
		// Another process may have finished the same install first.
		if ok, _ := hasManifest(dest); ok {
			return nil
		}
		return fmt.Errorf("moving %s into place: %w", resource, err)
	}
	return nil
}
