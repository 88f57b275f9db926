// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"strings"

	"github.com/pkgrun/pkgrun/internal/config"
	"github.com/pkgrun/pkgrun/internal/dispatch"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"
)

// builtinCommands cannot be shadowed by configured commands.
var builtinCommands = map[string]bool{
	"exec":       true,
	"info":       true,
	"cache":      true,
	"config":     true,
	"internal":   true,
	"help":       true,
	"completion": true,
}

// newRootCommand builds the command tree for app. The global flags are
// declared here so cobra accepts them; their values were already read by
// scanGlobalFlags before configuration was loaded.
func newRootCommand(app *App) *cobra.Command {
	var flags globalFlags

	rootCmd := &cobra.Command{
		Use:   "pkgrun",
		Short: "Run commands published as registry packages",
		Long: TitleStyle.Render("pkgrun") + SubtitleStyle.Render(" - run commands published as registry packages") + `

Every pkgrun command is a package on an npm-compatible registry. On first use
the package is installed under the pkgrun home, later runs update it to the
newest matching version, then its entry point runs with your arguments.

` + SubtitleStyle.Render("Examples:") + `
  pkgrun init my-app               Run the configured 'init' command
  pkgrun exec demo-cmd -- --help   Run any package by name
  pkgrun info demo-cmd             Show a package's versions and README
  pkgrun cache list                List installed packages
  pkgrun config show               Show the effective configuration`,
		SilenceUsage: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.BoolVarP(&flags.debug, "debug", "d", false, "enable debug logging and detailed errors")
	pf.StringVar(&flags.configFile, "config", "", "config file (default is the platform config dir's pkgrun/config.cue)")
	pf.StringVar(&flags.registry, "registry", "", "registry URL (overrides config and PKGRUN_REGISTRY)")
	pf.StringVar(&flags.home, "home", "", "pkgrun home directory (overrides config and PKGRUN_HOME)")

	rootCmd.AddCommand(newExecCommand(app))
	rootCmd.AddCommand(newInfoCommand(app))
	rootCmd.AddCommand(newCacheCommand(app))
	rootCmd.AddCommand(newConfigCommand(app))
	rootCmd.AddCommand(newInternalCommand(app))

	for _, name := range app.Config.CommandNames() {
		if builtinCommands[name] {
			app.Logger.Warn("configured command shadows a built-in command; ignoring it", "command", name)
			continue
		}
		rootCmd.AddCommand(newPackageCommand(app, name, app.Config.Commands[name]))
	}

	return rootCmd
}

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version != "dev" {
		return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return "dev (built from source)"
}

// scanGlobalFlags extracts the global flags from args before cobra runs,
// because configured commands are only known once the config is loaded.
// Scanning stops at "--".
func scanGlobalFlags(args []string) globalFlags {
	var flags globalFlags
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			break
		}
		name, value, hasValue := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if !strings.HasPrefix(arg, "-") {
			continue
		}
		if arg == "-d" || (name == "debug" && strings.HasPrefix(arg, "--")) {
			flags.debug = !hasValue || value == "true" || value == "1"
			continue
		}
		if !strings.HasPrefix(arg, "--") {
			continue
		}
		var target *string
		switch name {
		case "config":
			target = &flags.configFile
		case "registry":
			target = &flags.registry
		case "home":
			target = &flags.home
		default:
			continue
		}
		if !hasValue && i+1 < len(args) {
			i++
			value = args[i]
		}
		*target = value
	}
	return flags
}

// Execute runs pkgrun with the process arguments and exits with the
// resulting code. It is called by main.main().
func Execute() {
	os.Exit(run(context.Background(), config.NewProvider(), os.Args[1:], os.Stdout, os.Stderr))
}

// run executes one pkgrun invocation with configuration from provider and
// returns the process exit code.
func run(ctx context.Context, provider config.Provider, args []string, stdout, stderr io.Writer) int {
	if isLoaderInvocation(args) {
		return runLoader(ctx, os.Stdin, stdout, stderr)
	}

	flags := scanGlobalFlags(args)

	app, err := newApp(ctx, provider, flags, stderr)
	if err != nil {
		fmt.Fprintln(stderr, ErrorStyle.Render("Error:")+" "+dispatch.Present(err, flags.debug))
		return 1
	}

	rootCmd := newRootCommand(app)
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	if err := fang.Execute(
		ctx,
		rootCmd,
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		return 1
	}
	return int(app.ExitCode())
}
