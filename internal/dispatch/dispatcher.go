// SPDX-License-Identifier: MPL-2.0

package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/charmbracelet/log"

	"github.com/pkgrun/pkgrun/internal/invoker"
	"github.com/pkgrun/pkgrun/pkg/pkgstore"
	"github.com/pkgrun/pkgrun/pkg/types"
)

const (
	// DependenciesDir is the default install root inside the pkgrun home.
	DependenciesDir = "dependencies"

	// StoreDirName is the store directory inside the install root.
	StoreDirName = "node_modules"
)

type (
	// Invoker runs a resolved entry point and reports its exit code.
	Invoker interface {
		Invoke(ctx context.Context, rootFile string, req invoker.ExecutionRequest) (types.ExitCode, error)
	}

	// Request describes one dispatch. A non-empty TargetPath names a local
	// package directory and bypasses the registry entirely.
	Request struct {
		PackageName    string
		PackageVersion string
		TargetPath     string
		// Command is the name the user invoked. Empty means PackageName.
		Command        string
		Args           []string
		Options        map[string]any
		Cwd            string
		Debug          bool
		// Force discards the cached copy of the resolved version first.
		Force          bool
	}

	// Dispatcher wires the store, resolver, installer and invoker together.
	Dispatcher struct {
		home      string
		resolver  pkgstore.VersionResolver
		installer pkgstore.Installer
		invoker   Invoker
		logger    *log.Logger
	}

	// Option configures a Dispatcher.
	Option func(*Dispatcher)
)

// WithLogger sets the logger passed down to the store.
func WithLogger(l *log.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// New returns a Dispatcher installing under <home>/dependencies.
func New(home string, resolver pkgstore.VersionResolver, installer pkgstore.Installer, inv Invoker, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		home:      home,
		resolver:  resolver,
		installer: installer,
		invoker:   inv,
		logger:    log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// TargetDir returns the default install root.
func (d *Dispatcher) TargetDir() string {
	return filepath.Join(d.home, DependenciesDir)
}

// StoreDir returns the default store directory.
func (d *Dispatcher) StoreDir() string {
	return filepath.Join(d.TargetDir(), StoreDirName)
}

// Dispatch installs the package if absent, updates it otherwise, resolves its
// entry point and runs it. The returned code is the child's exit code when
// err is nil and types.ExitCodeFailure otherwise.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (types.ExitCode, error) {
	store, err := d.newStore(req)
	if err != nil {
		return types.ExitCodeFailure, err
	}

	if !store.Request().Local() {
		if err := d.ensureInstalled(ctx, store, req.Force); err != nil {
			return types.ExitCodeFailure, err
		}
	}

	rootFile, err := store.RootFilePath()
	if err != nil {
		return types.ExitCodeFailure, fmt.Errorf("resolving entry of %s: %w", req.PackageName, err)
	}
	if rootFile == "" {
		path := req.TargetPath
		if path == "" {
			path = store.CachePath()
		}
		return types.ExitCodeFailure, &EntryNotFoundError{Name: req.PackageName, Path: path}
	}

	command := req.Command
	if command == "" {
		command = req.PackageName
	}
	execReq := invoker.NewExecutionRequest(command, req.Args, req.Options, req.Cwd, req.Debug)
	d.logger.Debug("dispatching", "package", req.PackageName, "version", store.ResolvedVersion(), "entry", rootFile)

	code, err := d.invoker.Invoke(ctx, rootFile, execReq)
	if err != nil {
		return types.ExitCodeFailure, err
	}
	return code, nil
}

func (d *Dispatcher) newStore(req Request) (*pkgstore.Store, error) {
	pkgReq := pkgstore.PackageRequest{
		PackageName:    req.PackageName,
		PackageVersion: req.PackageVersion,
	}
	if req.TargetPath != "" {
		pkgReq.TargetPath = req.TargetPath
		return pkgstore.NewStore(pkgReq, nil, nil, pkgstore.WithLogger(d.logger))
	}

	pkgReq.TargetPath = d.TargetDir()
	pkgReq.StoreDir = d.StoreDir()
	return pkgstore.NewStore(pkgReq, d.resolver, d.installer, pkgstore.WithLogger(d.logger))
}

// ensureInstalled installs the package when its resolved version is absent
// and updates it otherwise.
func (d *Dispatcher) ensureInstalled(ctx context.Context, store *pkgstore.Store, force bool) error {
	name := store.Request().PackageName

	exists, err := store.Exists(ctx)
	if err != nil {
		if errors.Is(err, pkgstore.ErrPackageNotFound) {
			return &PackageNotFoundError{Name: name, Version: store.Request().PackageVersion, Err: err}
		}
		return err
	}

	if exists && force {
		d.logger.Info("discarding cached package", "package", name, "version", store.ResolvedVersion())
		if err := store.Evict(); err != nil {
			return &InstallError{Name: name, Err: err}
		}
		exists = false
	}

	if exists {
		err = store.Update(ctx)
	} else {
		err = store.Install(ctx)
	}
	if err != nil {
		return &InstallError{Name: name, Err: err}
	}
	return nil
}
