// SPDX-License-Identifier: MPL-2.0

// Package cmd contains the pkgrun command tree.
//
// Besides the built-in commands (exec, info, cache, config) every entry of the
// configured commands map becomes a top-level command that dispatches its
// package. The hidden "internal run-entry" command is the loader the Command
// Invoker re-executes to run a package entry point.
package cmd
