// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkgrun/pkgrun/internal/config"
	"github.com/pkgrun/pkgrun/internal/dispatch"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const optionFlag = "option"

// dispatchFlags are the flags shared by exec and configured commands.
type dispatchFlags struct {
	version    string
	targetPath string
	force      bool
	options    map[string]string
}

func addDispatchFlags(cmd *cobra.Command, f *dispatchFlags, defaultVersion string) {
	fs := cmd.Flags()
	fs.StringVar(&f.version, "version", defaultVersion, `version floor, range or dist-tag to run (prefix "=" to pin)`)
	fs.StringVar(&f.targetPath, "target-path", "", "run the package in this local directory instead of installing it")
	fs.BoolVar(&f.force, "force", false, "discard the cached copy and reinstall")
	fs.StringToStringVarP(&f.options, optionFlag, "o", nil, "pass key=value options to the package (repeatable)")
}

func newExecCommand(app *App) *cobra.Command {
	var f dispatchFlags

	cmd := &cobra.Command{
		Use:   "exec <package> [args...]",
		Short: "Run a registry package by name",
		Long: `Run a registry package by name.

The package is installed under the pkgrun home on first use and updated to the
newest version matching --version on later runs. Arguments after the package
name are passed to its entry point; put them after "--" when they look like flags.`,
		Example: `  pkgrun exec demo-cmd hello
  pkgrun exec @acme/deploy --version ^2.0.0 -- --dry-run
  pkgrun exec demo-cmd --target-path ./demo-cmd -o region=eu`,
		Args: cobra.MinimumNArgs(1),
	}
	addDispatchFlags(cmd, &f, "")
	cmd.RunE = app.runE(func(cmd *cobra.Command, args []string) error {
		return app.runDispatch(cmd, args[0], args[0], args[1:], &f)
	})
	return cmd
}

// newPackageCommand creates a top-level command that dispatches the package
// bound to name in the configuration.
func newPackageCommand(app *App, name string, cc config.CommandConfig) *cobra.Command {
	var f dispatchFlags

	short := cc.Description
	if short == "" {
		short = "Run " + cc.Package
	}
	cmd := &cobra.Command{
		Use:   name + " [args...]",
		Short: short,
		Long:  fmt.Sprintf("%s\n\nRuns the %s package.", short, PkgStyle.Render(cc.Package)),
	}
	addDispatchFlags(cmd, &f, cc.Version)
	cmd.RunE = app.runE(func(cmd *cobra.Command, args []string) error {
		return app.runDispatch(cmd, name, cc.Package, args, &f)
	})
	return cmd
}

func (a *App) runDispatch(cmd *cobra.Command, command, pkg string, args []string, f *dispatchFlags) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}

	targetPath := f.targetPath
	if targetPath != "" && !filepath.IsAbs(targetPath) {
		targetPath = filepath.Join(cwd, targetPath)
	}

	d, err := a.dispatcher(cmd)
	if err != nil {
		return err
	}

	code, err := d.Dispatch(cmd.Context(), dispatch.Request{
		PackageName:    pkg,
		PackageVersion: f.version,
		TargetPath:     targetPath,
		Command:        command,
		Args:           args,
		Options:        collectOptions(cmd, f.options),
		Cwd:            cwd,
		Debug:          a.debug,
		Force:          f.force,
	})
	a.Logger.Debug("command finished", "command", command, "package", pkg, "code", code)
	return exitResult(code, err)
}

// collectOptions builds the request options from the command's own flags that
// the user set, keyed in camelCase, plus every --option pair.
func collectOptions(cmd *cobra.Command, extra map[string]string) map[string]any {
	opts := make(map[string]any)
	local := cmd.LocalNonPersistentFlags()
	cmd.Flags().Visit(func(fl *pflag.Flag) {
		if fl.Name == optionFlag || local.Lookup(fl.Name) == nil {
			return
		}
		opts[camelCase(fl.Name)] = flagValue(fl)
	})
	for k, v := range extra {
		opts[k] = v
	}
	return opts
}

func flagValue(fl *pflag.Flag) any {
	if fl.Value.Type() == "bool" {
		if b, err := strconv.ParseBool(fl.Value.String()); err == nil {
			return b
		}
	}
	return fl.Value.String()
}

// camelCase converts a dashed flag name such as "target-path" to "targetPath".
func camelCase(name string) string {
	parts := strings.Split(name, "-")
	for i := 1; i < len(parts); i++ {
		if parts[i] != "" {
			parts[i] = strings.ToUpper(parts[i][:1]) + parts[i][1:]
		}
	}
	return strings.Join(parts, "")
}
