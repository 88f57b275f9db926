// SPDX-License-Identifier: MPL-2.0

// Package config handles pkgrun configuration using Viper with CUE as the file format.
//
// Configuration is loaded from ~/.config/pkgrun/config.cue (or the XDG equivalent on Linux,
// ~/Library/Application Support/pkgrun/config.cue on macOS, %APPDATA%\pkgrun\config.cue
// on Windows) and validated against the embedded config_schema.cue. Environment variables
// prefixed with PKGRUN_ override file values.
package config
