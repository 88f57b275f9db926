// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"

	"github.com/pkgrun/pkgrun/internal/dispatch"
	"github.com/pkgrun/pkgrun/internal/invoker"
	"github.com/pkgrun/pkgrun/internal/issue"

	"github.com/spf13/cobra"
)

// newInternalCommand returns the hidden parent of the subprocess helpers.
func newInternalCommand(app *App) *cobra.Command {
	loaderArgs := invoker.LoaderArgs()
	internalCmd := &cobra.Command{
		Use:    loaderArgs[0],
		Short:  "Internal commands (not for direct use)",
		Hidden: true,
	}
	internalCmd.AddCommand(&cobra.Command{
		Use:    loaderArgs[1],
		Short:  "Run the package entry described by " + invoker.EnvExecRequest + " (internal use only)",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: app.runE(func(cmd *cobra.Command, args []string) error {
			return exitResult(invoker.RunEntry(cmd.Context(), invoker.Stdio{
				In:  cmd.InOrStdin(),
				Out: cmd.OutOrStdout(),
				Err: cmd.ErrOrStderr(),
			}, os.Environ()))
		}),
	})
	internalCmd.AddCommand(newIssuesCommand(app))
	return internalCmd
}

// newIssuesCommand lists the troubleshooting catalog, or renders one page.
func newIssuesCommand(app *App) *cobra.Command {
	var style string
	cmd := &cobra.Command{
		Use:    "issues [id]",
		Short:  "Show the troubleshooting pages attached to errors",
		Hidden: true,
		Args:   cobra.MaximumNArgs(1),
		RunE: app.runE(func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			if len(args) == 0 {
				for _, page := range issue.Values() {
					fmt.Fprintf(w, "%3d  %s\n", page.Id(), page.Title())
				}
				return nil
			}

			id, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("issue id %q is not a number", args[0])
			}
			page := issue.Get(issue.Id(id))
			if page == nil {
				return fmt.Errorf("no issue with id %d", id)
			}
			out, err := page.Render(style)
			if err != nil {
				return fmt.Errorf("render issue %d: %w", id, err)
			}
			fmt.Fprint(w, out)
			return nil
		}),
	}
	cmd.Flags().StringVar(&style, "style", "auto", "rendering style (auto, dark, light, notty)")
	return cmd
}

// isLoaderInvocation reports whether args start the child-side loader.
func isLoaderInvocation(args []string) bool {
	return slices.Equal(args, invoker.LoaderArgs())
}

// runLoader is the fast path for the child process: it skips configuration
// and the command tree, which the parent already handled.
func runLoader(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer) int {
	code, err := invoker.RunEntry(ctx, invoker.Stdio{In: stdin, Out: stdout, Err: stderr}, os.Environ())
	if err != nil {
		fmt.Fprintln(stderr, ErrorStyle.Render("Error:")+" "+dispatch.Present(err, false))
		return int(code.Normalize())
	}
	return int(code)
}
