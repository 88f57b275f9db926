// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"

	"github.com/pkgrun/pkgrun/internal/issue"
	"github.com/pkgrun/pkgrun/pkg/pkgstore"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

func newCacheCommand(app *App) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and clean installed packages",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cacheCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List installed package versions",
		Args:  cobra.NoArgs,
		RunE: app.runE(func(cmd *cobra.Command, args []string) error {
			return listCache(cmd, app.storeDir())
		}),
	})

	var all bool
	cleanCmd := &cobra.Command{
		Use:   "clean [package]",
		Short: "Remove installed versions of a package, or everything with --all",
		Args:  cobra.MaximumNArgs(1),
		RunE: app.runE(func(cmd *cobra.Command, args []string) error {
			name := ""
			switch {
			case len(args) == 1:
				name = args[0]
				if err := pkgstore.ValidateName(name); err != nil {
					return err
				}
			case !all:
				return errors.New("name a package to remove or pass --all")
			}

			removed, err := pkgstore.Remove(app.storeDir(), name)
			if err != nil {
				return issue.WrapWithOperation(err, "clean cache")
			}
			app.Logger.Debug("cache cleaned", "package", name, "removed", removed)
			fmt.Fprintln(cmd.OutOrStdout(), SuccessStyle.Render(fmt.Sprintf("Removed %d cache entr%s", removed, plural(removed, "y", "ies"))))
			return nil
		}),
	}
	cleanCmd.Flags().BoolVar(&all, "all", false, "remove every installed package")
	cacheCmd.AddCommand(cleanCmd)

	return cacheCmd
}

func listCache(cmd *cobra.Command, storeDir string) error {
	entries, err := pkgstore.List(storeDir)
	if err != nil {
		return issue.WrapWithOperation(err, "list installed packages")
	}

	w := cmd.OutOrStdout()
	if len(entries) == 0 {
		fmt.Fprintln(w, SubtitleStyle.Render("No packages installed in "+storeDir))
		return nil
	}

	nameWidth := 0
	for _, e := range entries {
		nameWidth = max(nameWidth, lipgloss.Width(e.Name))
	}
	nameCol := lipgloss.NewStyle().Width(nameWidth + 2)
	versionCol := lipgloss.NewStyle().Width(14)

	fmt.Fprintln(w, TitleStyle.Render("Installed packages"))
	for _, e := range entries {
		marker := "  "
		if e.Current {
			marker = SuccessStyle.Render("* ")
		}
		fmt.Fprintln(w, marker+nameCol.Render(PkgStyle.Render(e.Name))+versionCol.Render(e.Version)+SubtitleStyle.Render(e.Path))
	}
	return nil
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
