// SPDX-License-Identifier: MPL-2.0

package dispatch

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/pkgrun/pkgrun/internal/invoker"
	"github.com/pkgrun/pkgrun/internal/issue"
	"github.com/pkgrun/pkgrun/internal/registry"
	"github.com/pkgrun/pkgrun/pkg/pkgstore"
)

type (
	// PackageNotFoundError reports that no published version matches the request.
	PackageNotFoundError struct {
		Name    string
		Version string
		Err     error
	}

	// InstallError reports a failed install or update of a package.
	InstallError struct {
		Name string
		Err  error
	}

	// EntryNotFoundError reports a package with nothing to execute: no
	// manifest was found or it declares no main entry.
	EntryNotFoundError struct {
		Name string
		Path string
	}
)

func (e *PackageNotFoundError) Error() string {
	return fmt.Sprintf("package %s@%s not found: nothing to install", e.Name, e.Version)
}

// Unwrap returns the underlying lookup error.
func (e *PackageNotFoundError) Unwrap() error { return e.Err }

func (e *InstallError) Error() string {
	return e.Err.Error()
}

// Unwrap returns the install failure.
func (e *InstallError) Unwrap() error { return e.Err }

func (e *EntryNotFoundError) Error() string {
	return fmt.Sprintf("package %s has no entry point in %s: nothing to execute", e.Name, e.Path)
}

// Present renders err for the user. Terse output is the message plus
// suggestions; debug output adds the error chain and, when known, the
// rendered issue page.
func Present(err error, debug bool) string {
	ae := actionable(err)
	out := ae.Format(debug)
	if !debug || ae.Issue == 0 {
		return out
	}
	if page := issue.Get(ae.Issue); page != nil {
		if rendered, renderErr := page.Render("auto"); renderErr == nil {
			out += "\n" + rendered
		}
	}
	return out
}

// actionable classifies err into an ActionableError with suggestions.
func actionable(err error) *issue.ActionableError {
	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		return ae
	}

	var (
		notFound  *PackageNotFoundError
		noEntry   *EntryNotFoundError
		nameErr   *pkgstore.InvalidPackageNameError
		regErr    *registry.RegistryError
		spawnErr  *invoker.SpawnError
		integrity *registry.IntegrityError
		install   *InstallError
	)
	ctx := issue.NewErrorContext().Wrap(err)
	switch {
	case errors.As(err, &nameErr):
		ctx.WithOperation("validate package name").WithIssue(issue.InvalidPackageNameId).
			WithSuggestion(`Use a lowercase name, optionally scoped as "@scope/name"`)
	case errors.As(err, &notFound):
		ctx.WithOperation("find package").WithIssue(issue.PackageNotFoundId).
			WithSuggestion("Check the package name and version for typos")
	case errors.As(err, &noEntry):
		ctx.WithOperation("locate entry point").WithIssue(issue.EntryNotFoundId).
			WithSuggestion(`Declare "main" in the package's package.json`)
	case errors.As(err, &integrity):
		ctx.WithOperation("verify package").WithResource(integrity.Resource).WithIssue(issue.IntegrityMismatchId).
			WithSuggestion("Retry the command; the download was discarded")
	case errors.As(err, &regErr):
		ctx.WithOperation("query registry").WithIssue(issue.RegistryUnreachableId).
			WithSuggestion("Check your network connection or the configured registry URL")
	case errors.As(err, &spawnErr):
		ctx.WithOperation("start command").WithResource(spawnErr.Path).WithIssue(issue.SpawnFailedId)
	case errors.Is(err, fs.ErrPermission):
		ctx.WithOperation("access pkgrun home").WithIssue(issue.PermissionDeniedId).
			WithSuggestion("Check ownership of the pkgrun home directory, or pass --home")
	case errors.As(err, &install):
		ctx.WithOperation("install package").WithIssue(issue.InstallFailedId).
			WithSuggestion("Run 'pkgrun cache clean <package>' and try again")
	default:
		ctx.WithOperation("run command")
	}
	return ctx.Build()
}
