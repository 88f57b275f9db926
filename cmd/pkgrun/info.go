// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/pkgrun/pkgrun/internal/dispatch"
	"github.com/pkgrun/pkgrun/internal/registry"
	"github.com/pkgrun/pkgrun/pkg/pkgstore"

	"github.com/Masterminds/semver/v3"
	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
)

const maxListedVersions = 10

func newInfoCommand(app *App) *cobra.Command {
	var (
		noReadme bool
		style    string
	)

	cmd := &cobra.Command{
		Use:   "info <package>",
		Short: "Show a package's registry metadata and README",
		Args:  cobra.ExactArgs(1),
	}
	cmd.Flags().BoolVar(&noReadme, "no-readme", false, "do not render the README")
	cmd.Flags().StringVar(&style, "style", "auto", "README style (auto, dark, light, notty)")

	cmd.RunE = app.runE(func(cmd *cobra.Command, args []string) error {
		name := args[0]
		if err := pkgstore.ValidateName(name); err != nil {
			return err
		}

		doc, err := app.registryClient().Packument(cmd.Context(), name, true)
		if err != nil {
			if errors.Is(err, registry.ErrPackageNotFound) {
				return &dispatch.PackageNotFoundError{Name: name, Version: registry.LatestTag, Err: err}
			}
			return err
		}

		w := cmd.OutOrStdout()
		renderInfo(w, doc)

		if noReadme || strings.TrimSpace(doc.Readme) == "" {
			return nil
		}
		rendered, err := glamour.Render(doc.Readme, style)
		if err != nil {
			return fmt.Errorf("render README: %w", err)
		}
		fmt.Fprint(w, "\n"+rendered)
		return nil
	})
	return cmd
}

func renderInfo(w io.Writer, doc *registry.Packument) {
	fmt.Fprintln(w, TitleStyle.Render(doc.Name))
	if doc.Description != "" {
		fmt.Fprintln(w, SubtitleStyle.Render(doc.Description))
	}
	fmt.Fprintln(w)

	latest := registry.SelectVersion(doc, "")
	if latest == "" {
		latest = "(none)"
	}
	fmt.Fprintln(w, keyStyle.Render("latest")+PkgStyle.Render(latest))
	if published, ok := doc.Time[latest]; ok {
		fmt.Fprintln(w, keyStyle.Render("published")+published)
	}

	tags := make([]string, 0, len(doc.DistTags))
	for tag, v := range doc.DistTags {
		tags = append(tags, tag+"="+v)
	}
	sort.Strings(tags)
	if len(tags) > 0 {
		fmt.Fprintln(w, keyStyle.Render("dist-tags")+strings.Join(tags, ", "))
	}

	versions := sortedVersions(doc)
	line := strings.Join(versions, ", ")
	if len(versions) > maxListedVersions {
		line = strings.Join(versions[:maxListedVersions], ", ") +
			SubtitleStyle.Render(fmt.Sprintf(" (+%d more)", len(versions)-maxListedVersions))
	}
	fmt.Fprintln(w, keyStyle.Render("versions")+line)

	if meta, ok := doc.Version(latest); ok && meta.Deprecated != "" {
		fmt.Fprintln(w, WarningStyle.Render("deprecated: "+meta.Deprecated))
	}
}

// sortedVersions returns the valid semver versions of doc, newest first.
func sortedVersions(doc *registry.Packument) []string {
	parsed := make(semver.Collection, 0, len(doc.Versions))
	for v := range doc.Versions {
		if sv, err := semver.NewVersion(v); err == nil {
			parsed = append(parsed, sv)
		}
	}
	sort.Sort(sort.Reverse(parsed))

	out := make([]string, len(parsed))
	for i, v := range parsed {
		out[i] = v.Original()
	}
	return out
}
