// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"strings"

	"github.com/charmbracelet/glamour"
	"golang.org/x/exp/slices"
)

// Id identifies a catalog page. The zero value means "no page".
type Id int

const (
	PackageNotFoundId Id = iota + 1
	RegistryUnreachableId
	InstallFailedId
	IntegrityMismatchId
	EntryNotFoundId
	SpawnFailedId
	InvalidPackageNameId
	ConfigLoadFailedId
	HomeDirMissingId
	PermissionDeniedId
)

type (
	// MarkdownMsg is the Markdown body of an issue page.
	MarkdownMsg string

	// Issue is one catalog page.
	Issue struct {
		id    Id
		mdMsg MarkdownMsg
	}
)

// Id returns the page identifier.
func (i *Issue) Id() Id { return i.id }

// MarkdownMsg returns the raw Markdown.
func (i *Issue) MarkdownMsg() MarkdownMsg { return i.mdMsg }

// Title returns the page heading without its Markdown marker and trailing "!".
func (i *Issue) Title() string {
	first, _, _ := strings.Cut(strings.TrimSpace(string(i.mdMsg)), "\n")
	return strings.TrimSuffix(strings.TrimPrefix(first, "# "), "!")
}

// Render renders the page for the terminal using the glamour style at
// stylePath ("auto", "dark", "light", "notty" or a JSON style file).
func (i *Issue) Render(stylePath string) (string, error) {
	return render(strings.TrimSpace(string(i.mdMsg)), stylePath)
}

var (
	render = glamour.Render

	packageNotFoundIssue = &Issue{
		id: PackageNotFoundId,
		mdMsg: `
# Package not found!

The registry has no published version matching your request.

## Things you can try:
- Check the package name for typos (names are lowercase)
- Drop the version hint to use the latest release:
~~~
$ pkgrun exec <package>
~~~
- Check which registry is configured:
~~~
$ pkgrun config show
~~~`,
	}

	registryUnreachableIssue = &Issue{
		id: RegistryUnreachableId,
		mdMsg: `
# Could not reach the registry!

pkgrun failed to look up the package. This is not the same as the package
missing: the registry could not be asked at all, or answered with an error.

## Things you can try:
- Check your network connection and proxy settings
- Point pkgrun at another registry:
~~~
$ PKGRUN_REGISTRY=https://registry.npmjs.org pkgrun exec <package>
~~~
- For private registries, set a token with ` + "`PKGRUN_REGISTRY_TOKEN`",
	}

	installFailedIssue = &Issue{
		id: InstallFailedId,
		mdMsg: `
# Package installation failed!

The package or one of its dependencies could not be downloaded or written to
the cache. Partially installed versions are never moved into place.

## Things you can try:
- Retry; transient network errors are common
- Clear the cached copy and install again:
~~~
$ pkgrun cache clean <package>
~~~
- Check free disk space and permissions of the pkgrun home directory`,
	}

	integrityMismatchIssue = &Issue{
		id: IntegrityMismatchId,
		mdMsg: `
# Integrity check failed!

A downloaded tarball does not match the digest published by the registry.
The download was discarded.

## Things you can try:
- Retry the command; a proxy may have served a truncated file
- If the error persists, report it to the package maintainer`,
	}

	entryNotFoundIssue = &Issue{
		id: EntryNotFoundId,
		mdMsg: `
# Nothing to execute!

The package was found but its ` + "`package.json`" + ` declares no ` + "`main`" + ` entry.

## Things you can try:
- Add an entry point to the package manifest:
~~~json
{ "name": "my-cmd", "version": "1.0.0", "main": "bin/run.sh" }
~~~
- Shell entries must define a ` + "`main`" + ` function:
~~~sh
main() {
  echo "hello $1"
}
~~~`,
	}

	spawnFailedIssue = &Issue{
		id: SpawnFailedId,
		mdMsg: `
# Could not start the command!

pkgrun could not launch the child process that runs the package entry.

## Things you can try:
- Make sure the pkgrun binary is still at the path it was started from
- For native entries, check the file is executable`,
	}

	invalidPackageNameIssue = &Issue{
		id: InvalidPackageNameId,
		mdMsg: `
# Invalid package name!

Package names are lowercase, URL-safe, at most 214 characters and may carry
an ` + "`@scope/`" + ` prefix. They cannot start with ` + "`.`" + ` or ` + "`_`" + `.`,
	}

	configLoadFailedIssue = &Issue{
		id: ConfigLoadFailedId,
		mdMsg: `
# Failed to load configuration!

The configuration file is not valid CUE or does not match the schema.

## Things you can try:
- Show where pkgrun looks for its configuration:
~~~
$ pkgrun config path
~~~
- Write a fresh default file:
~~~
$ pkgrun config init
~~~`,
	}

	homeDirMissingIssue = &Issue{
		id: HomeDirMissingId,
		mdMsg: `
# Home directory not found!

pkgrun keeps installed packages under your home directory and could not
find it.

## Things you can try:
- Set the ` + "`HOME`" + ` environment variable
- Or choose a location explicitly:
~~~
$ pkgrun --home /path/to/pkgrun-home exec <package>
~~~`,
	}

	permissionDeniedIssue = &Issue{
		id: PermissionDeniedId,
		mdMsg: `
# Permission denied!

## Things you can try:
- Check ownership of the pkgrun home directory
- Avoid running pkgrun as root; files it creates will belong to root`,
	}

	issues = map[Id]*Issue{
		packageNotFoundIssue.Id():     packageNotFoundIssue,
		registryUnreachableIssue.Id(): registryUnreachableIssue,
		installFailedIssue.Id():       installFailedIssue,
		integrityMismatchIssue.Id():   integrityMismatchIssue,
		entryNotFoundIssue.Id():       entryNotFoundIssue,
		spawnFailedIssue.Id():         spawnFailedIssue,
		invalidPackageNameIssue.Id():  invalidPackageNameIssue,
		configLoadFailedIssue.Id():    configLoadFailedIssue,
		homeDirMissingIssue.Id():      homeDirMissingIssue,
		permissionDeniedIssue.Id():    permissionDeniedIssue,
	}
)

// Values returns every catalog page ordered by Id.
func Values() []*Issue {
	out := make([]*Issue, 0, len(issues))
	for _, i := range issues {
		out = append(out, i)
	}
	slices.SortFunc(out, func(a, b *Issue) int { return int(a.id) - int(b.id) })
	return out
}

// Get returns the page for id, or nil.
func Get(id Id) *Issue {
	return issues[id]
}
