// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"slices"

	"github.com/pkgrun/pkgrun/internal/registry"
)

const (
	// LogLevelDebug enables debug output.
	LogLevelDebug LogLevel = "debug"
	// LogLevelInfo is the default level.
	LogLevelInfo LogLevel = "info"
	// LogLevelWarn shows warnings and errors only.
	LogLevelWarn LogLevel = "warn"
	// LogLevelError shows errors only.
	LogLevelError LogLevel = "error"

	// DefaultConcurrency is the default number of parallel dependency installs.
	DefaultConcurrency = 4
)

var (
	// ErrInvalidLogLevel is returned when a LogLevel value is not recognized.
	ErrInvalidLogLevel = errors.New("invalid log level")
	// ErrInvalidConfig is the sentinel error wrapped by InvalidConfigError.
	ErrInvalidConfig = errors.New("invalid config")
)

type (
	// LogLevel is the minimum level written by the CLI logger.
	LogLevel string

	// Config holds the application configuration.
	Config struct {
		// Registry is the base URL of the npm-compatible registry.
		Registry string `json:"registry" mapstructure:"registry" toml:"registry"`

		// RegistryToken is sent as a bearer token to the registry host.
		RegistryToken string `json:"registry_token,omitempty" mapstructure:"registry_token" toml:"registry_token,omitempty"`

		// Home is the CLI home directory. Empty means ~/.pkgrun.
		Home string `json:"home,omitempty" mapstructure:"home" toml:"home,omitempty"`

		LogLevel LogLevel `json:"log_level" mapstructure:"log_level" toml:"log_level"`

		Install InstallConfig `json:"install" mapstructure:"install" toml:"install"`

		// Commands maps top-level command names to the package they run.
		Commands map[string]CommandConfig `json:"commands" mapstructure:"commands" toml:"commands"`
	}

	// InstallConfig configures package installation.
	InstallConfig struct {
		Concurrency int `json:"concurrency" mapstructure:"concurrency" toml:"concurrency"`
	}

	// CommandConfig binds a command name to a package.
	CommandConfig struct {
		Package     string `json:"package" mapstructure:"package" toml:"package"`
		Version     string `json:"version,omitempty" mapstructure:"version" toml:"version,omitempty"`
		Description string `json:"description,omitempty" mapstructure:"description" toml:"description,omitempty"`
	}

	// InvalidConfigError is returned when a loaded configuration fails validation.
	InvalidConfigError struct {
		FieldErrors []error
	}
)

// String returns the string representation of the LogLevel.
func (l LogLevel) String() string { return string(l) }

// Validate returns nil if the LogLevel is one of the recognized levels.
func (l LogLevel) Validate() error {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return nil
	default:
		return fmt.Errorf("%w: %q (valid: debug, info, warn, error)", ErrInvalidLogLevel, l)
	}
}

// Error implements the error interface.
func (e *InvalidConfigError) Error() string {
	return fmt.Sprintf("invalid config: %d field error(s): %v", len(e.FieldErrors), errors.Join(e.FieldErrors...))
}

// Unwrap returns ErrInvalidConfig for errors.Is() compatibility.
func (e *InvalidConfigError) Unwrap() error { return ErrInvalidConfig }

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Registry: registry.DefaultURL,
		LogLevel: LogLevelInfo,
		Install:  InstallConfig{Concurrency: DefaultConcurrency},
		Commands: DefaultCommands(),
	}
}

// DefaultCommands returns the commands registered when the config file names none.
func DefaultCommands() map[string]CommandConfig {
	return map[string]CommandConfig{
		"init": {
			Package:     "@pkgrun/init",
			Description: "Initialize a new project from a template",
		},
		"add": {
			Package:     "@pkgrun/add",
			Description: "Add a component to the current project",
		},
		"publish": {
			Package:     "@pkgrun/publish",
			Description: "Publish the current project",
		},
	}
}

// Validate checks the fields CUE cannot express, such as the command
// package names against the registry naming rules.
func (c *Config) Validate() error {
	var errs []error
	if err := c.LogLevel.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Install.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("install.concurrency: must be at least 1, got %d", c.Install.Concurrency))
	}
	for _, name := range c.CommandNames() {
		if c.Commands[name].Package == "" {
			errs = append(errs, fmt.Errorf("commands.%s.package: must not be empty", name))
		}
	}
	if len(errs) > 0 {
		return &InvalidConfigError{FieldErrors: errs}
	}
	return nil
}

// CommandNames returns the registered command names in sorted order.
func (c *Config) CommandNames() []string {
	names := make([]string, 0, len(c.Commands))
	for name := range c.Commands {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
