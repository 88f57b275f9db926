// SPDX-License-Identifier: MPL-2.0

// Package issue provides actionable errors and the catalog of Markdown issue
// pages shown for them.
//
// An ActionableError names the failed operation, the resource involved and
// suggestions for the user. Its Format method renders the terse form, or the
// full error chain in verbose mode. When an error carries an issue Id, the
// CLI renders the matching page with glamour in verbose mode.
package issue
