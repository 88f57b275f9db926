// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/pkgrun/pkgrun/internal/config"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
)

func newConfigCommand(app *App) *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage pkgrun configuration",
		Long: `Manage pkgrun configuration.

Configuration is stored in:
  - Linux: ~/.config/pkgrun/config.cue
  - macOS: ~/Library/Application Support/pkgrun/config.cue
  - Windows: %APPDATA%\pkgrun\config.cue

PKGRUN_REGISTRY, PKGRUN_REGISTRY_TOKEN, PKGRUN_HOME, PKGRUN_LOG_LEVEL and
PKGRUN_INSTALL_CONCURRENCY override the file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	var format string
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: app.runE(func(cmd *cobra.Command, args []string) error {
			out, err := renderConfig(app.Config, format)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), out)
			return nil
		}),
	}
	showCmd.Flags().StringVar(&format, "format", "cue", "output format (cue, json, toml)")
	cfgCmd.AddCommand(showCmd)

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the configuration file path",
		Args:  cobra.NoArgs,
		RunE: app.runE(func(cmd *cobra.Command, args []string) error {
			path := app.ConfigPath
			if path == "" {
				var err error
				if path, err = config.ConfigFilePath(); err != nil {
					return err
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		}),
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Create the default configuration file",
		Args:  cobra.NoArgs,
		RunE: app.runE(func(cmd *cobra.Command, args []string) error {
			path, err := config.ConfigFilePath()
			if err != nil {
				return err
			}
			wrote, err := config.Init(path)
			if err != nil {
				return err
			}
			if !wrote {
				fmt.Fprintln(cmd.OutOrStdout(), WarningStyle.Render("Config already exists: ")+path)
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), SuccessStyle.Render("Created ")+path)
			return nil
		}),
	})

	return cfgCmd
}

// renderConfig serializes cfg without the registry token.
func renderConfig(cfg *config.Config, format string) (string, error) {
	redacted := *cfg
	redacted.RegistryToken = ""

	switch format {
	case "cue":
		return config.GenerateCUE(&redacted), nil
	case "json":
		data, err := json.MarshalIndent(&redacted, "", "  ")
		if err != nil {
			return "", err
		}
		return string(data) + "\n", nil
	case "toml":
		data, err := toml.Marshal(&redacted)
		if err != nil {
			return "", err
		}
		return string(data), nil
	default:
		return "", fmt.Errorf("unknown format %q (valid: cue, json, toml)", format)
	}
}
