// SPDX-License-Identifier: MPL-2.0

// Package invoker runs a resolved package entry point in a child process.
//
// The parent side (Invoker) serializes an ExecutionRequest to JSON and passes
// it to a fresh copy of the pkgrun binary through the PKGRUN_EXEC_REQUEST
// environment variable. The child runs the fixed loader (RunEntry), which
// decodes the request and executes the entry: shell scripts are sourced by
// the embedded mvdan/sh interpreter and their main function is called with the
// request arguments; anything else is executed as a native program. Standard
// streams are inherited end to end and the child's exit status is returned to
// the parent unchanged.
package invoker
