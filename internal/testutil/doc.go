// SPDX-License-Identifier: MPL-2.0

// Package testutil provides test helpers that fail the test on error:
// environment management (MustSetenv, MustUnsetenv, SetHomeDir), directory
// changes (MustChdir) and package fixtures (WritePackage).
package testutil
