// SPDX-License-Identifier: MPL-2.0

package cmd

import "testing"

func TestGetVersionString(t *testing.T) {
	// Not parallel: subtests mutate package-level Version/Commit/BuildDate vars.

	t.Run("ldflags version takes priority", func(t *testing.T) {
		origVersion, origCommit, origBuildDate := Version, Commit, BuildDate
		t.Cleanup(func() {
			Version, Commit, BuildDate = origVersion, origCommit, origBuildDate
		})

		Version = "v1.2.3"
		Commit = "abc1234"
		BuildDate = "2026-06-15T10:00:00Z"

		got := getVersionString()
		want := "v1.2.3 (commit: abc1234, built: 2026-06-15T10:00:00Z)"
		if got != want {
			t.Errorf("getVersionString() = %q, want %q", got, want)
		}
	})

	t.Run("fallback to dev when no build info", func(t *testing.T) {
		origVersion := Version
		t.Cleanup(func() { Version = origVersion })

		// Test binaries report Main.Version == "(devel)".
		Version = "dev"

		if got, want := getVersionString(), "dev (built from source)"; got != want {
			t.Errorf("getVersionString() = %q, want %q", got, want)
		}
	})
}

func TestScanGlobalFlags(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		args []string
		want globalFlags
	}{
		{name: "none", args: []string{"exec", "demo"}, want: globalFlags{}},
		{
			name: "separate values",
			args: []string{"--config", "/c.cue", "--registry", "http://r", "--home", "/h", "exec", "demo"},
			want: globalFlags{configFile: "/c.cue", registry: "http://r", home: "/h"},
		},
		{
			name: "inline values and short debug",
			args: []string{"-d", "exec", "--home=/h", "demo"},
			want: globalFlags{debug: true, home: "/h"},
		},
		{
			name: "explicit debug false",
			args: []string{"--debug=false", "exec", "demo"},
			want: globalFlags{},
		},
		{
			name: "stops at double dash",
			args: []string{"exec", "demo", "--", "--home", "/pkg-arg", "-d"},
			want: globalFlags{},
		},
		{
			name: "ignores other flags",
			args: []string{"exec", "--version", "1.0.0", "--target-path", "/t", "demo"},
			want: globalFlags{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := scanGlobalFlags(tt.args); got != tt.want {
				t.Errorf("scanGlobalFlags(%q) = %+v, want %+v", tt.args, got, tt.want)
			}
		})
	}
}
