// SPDX-License-Identifier: MPL-2.0

package config

// configDirOverride replaces the platform config directory when set.
// os.UserHomeDir() does not reliably respect HOME on every platform (e.g. macOS in CI).
var configDirOverride string

// SetConfigDirOverride sets a custom config directory path. Tests use it to
// keep lookups away from the real user configuration.
func SetConfigDirOverride(dir string) {
	configDirOverride = dir
}
