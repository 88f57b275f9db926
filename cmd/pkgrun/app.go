// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkgrun/pkgrun/internal/config"
	"github.com/pkgrun/pkgrun/internal/dispatch"
	"github.com/pkgrun/pkgrun/internal/invoker"
	"github.com/pkgrun/pkgrun/internal/issue"
	"github.com/pkgrun/pkgrun/internal/registry"
	"github.com/pkgrun/pkgrun/pkg/pkgstore"
	"github.com/pkgrun/pkgrun/pkg/types"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

type (
	// globalFlags are the persistent flags every command accepts.
	globalFlags struct {
		debug      bool
		configFile string
		registry   string
		home       string
	}

	// App holds the state shared by all commands of one pkgrun run.
	App struct {
		Config     *config.Config
		ConfigPath string
		// Home is the resolved CLI home directory.
		Home   string
		Logger *log.Logger

		debug    bool
		exitCode types.ExitCode
	}
)

// newApp performs the startup sequence: user home check, ~/.env, configuration,
// logger and the root-user warning.
func newApp(ctx context.Context, provider config.Provider, flags globalFlags, stderr io.Writer) (*App, error) {
	if err := checkUserHome(); err != nil {
		return nil, err
	}
	if err := config.LoadDotenv(); err != nil {
		return nil, err
	}

	src, err := provider.Load(ctx, config.LoadOptions{ConfigFilePath: flags.configFile})
	if err != nil {
		return nil, err
	}
	cfg, cfgPath := src.Config, src.Path
	if flags.registry != "" {
		cfg.Registry = flags.registry
	}
	if flags.home != "" {
		cfg.Home = flags.home
	}

	home, err := config.ResolveHome(cfg.Home)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config:     cfg,
		ConfigPath: cfgPath,
		Home:       home,
		Logger:     newLogger(stderr, cfg.LogLevel, flags.debug),
		debug:      flags.debug,
	}
	if isRoot() {
		app.Logger.Warn("running as root; installed packages will be owned by root")
	}
	app.Logger.Debug("starting", "version", getVersionString(), "config", cfgPath, "home", home, "registry", cfg.Registry)
	return app, nil
}

func newLogger(w io.Writer, level config.LogLevel, debug bool) *log.Logger {
	logger := log.NewWithOptions(w, log.Options{Prefix: config.AppName})
	lvl, err := log.ParseLevel(string(level))
	if err != nil {
		lvl = log.InfoLevel
	}
	if debug {
		lvl = log.DebugLevel
	}
	logger.SetLevel(lvl)
	return logger
}

func checkUserHome() error {
	home, err := os.UserHomeDir()
	if err == nil {
		_, err = os.Stat(home)
	}
	if err != nil {
		return issue.NewErrorContext().
			WithOperation("locate user home directory").
			WithResource(home).
			WithSuggestion("Set HOME (or USERPROFILE on Windows) to an existing directory").
			WithIssue(issue.HomeDirMissingId).
			Wrap(err).
			BuildError()
	}
	return nil
}

// isRoot reports whether the process runs with euid 0. os.Geteuid returns -1 on Windows.
func isRoot() bool {
	return os.Geteuid() == 0
}

// registryResponseTimeout bounds the wait for a registry to start answering.
// Downloads themselves are not limited by it.
const registryResponseTimeout = 30 * time.Second

// newHTTPClient returns the HTTP client used for registry traffic.
func newHTTPClient() *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = registryResponseTimeout
	return &http.Client{Transport: transport}
}

// registryClient returns a client for the configured registry.
func (a *App) registryClient() *registry.Client {
	return registry.NewClient(
		registry.WithHTTPClient(newHTTPClient()),
		registry.WithURL(a.Config.Registry),
		registry.WithToken(a.Config.RegistryToken),
		registry.WithUserAgent(config.AppName+"/"+strings.TrimPrefix(Version, "v")),
	)
}

// storeDir returns the shared package store under the CLI home.
func (a *App) storeDir() string {
	return filepath.Join(a.Home, dispatch.DependenciesDir, dispatch.StoreDirName)
}

// dispatcher wires the registry client, installer and invoker for cmd. The
// child inherits cmd's stdio.
func (a *App) dispatcher(cmd *cobra.Command) (*dispatch.Dispatcher, error) {
	client := a.registryClient()
	installer := pkgstore.NewTarballInstaller(client,
		pkgstore.WithInstallerLogger(a.Logger),
		pkgstore.WithConcurrency(a.Config.Install.Concurrency),
	)
	inv, err := invoker.New(
		invoker.WithStdio(cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr()),
		invoker.WithLogger(a.Logger),
	)
	if err != nil {
		return nil, err
	}
	return dispatch.New(a.Home, client, installer, inv, dispatch.WithLogger(a.Logger)), nil
}

// runE adapts a handler so that its failures are presented here and its exit
// code is recorded for Execute instead of being printed by fang.
func (a *App) runE(fn func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := fn(cmd, args)
		if err == nil {
			return nil
		}
		exitErr := asExitError(err)
		if exitErr.Err != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), ErrorStyle.Render("Error:")+" "+dispatch.Present(exitErr.Err, a.debug))
		}
		a.exitCode = exitErr.Code.Normalize()
		return nil
	}
}

// ExitCode returns the exit code recorded by the last command.
func (a *App) ExitCode() types.ExitCode {
	return a.exitCode
}
