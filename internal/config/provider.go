// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	"fmt"
	"maps"
)

type (
	// LoadOptions selects where configuration is read from.
	LoadOptions struct {
		// ConfigFilePath forces loading from a specific config file when set.
		ConfigFilePath string
		// ConfigDirPath overrides the config directory lookup when set.
		ConfigDirPath string
	}

	// Source is a loaded configuration and the file it was read from.
	Source struct {
		Config *Config
		// Path is empty when no config file was found.
		Path string
	}

	// Provider supplies the configuration for one pkgrun run.
	Provider interface {
		Load(ctx context.Context, opts LoadOptions) (*Source, error)
	}

	fileProvider struct{}

	staticProvider struct {
		cfg  Config
		path string
	}
)

// NewProvider returns the provider backed by config.cue and PKGRUN_*
// environment variables.
func NewProvider() Provider {
	return fileProvider{}
}

// NewStaticProvider returns a provider that serves a copy of cfg and never
// touches the file system or environment. path is reported as the source.
func NewStaticProvider(cfg *Config, path string) Provider {
	p := staticProvider{cfg: *cfg, path: path}
	p.cfg.Commands = maps.Clone(cfg.Commands)
	return p
}

func (fileProvider) Load(ctx context.Context, opts LoadOptions) (*Source, error) {
	cfg, path, err := Load(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &Source{Config: cfg, Path: path}, nil
}

func (p staticProvider) Load(ctx context.Context, _ LoadOptions) (*Source, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("load config canceled: %w", err)
	}

	cfg := p.cfg
	cfg.Commands = maps.Clone(p.cfg.Commands)
	if cfg.Commands == nil {
		cfg.Commands = DefaultCommands()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Source{Config: &cfg, Path: p.path}, nil
}
