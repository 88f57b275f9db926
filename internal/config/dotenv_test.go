// SPDX-License-Identifier: MPL-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkgrun/pkgrun/internal/testutil"
)

func TestParseEnvFile(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		want    map[string]string
		wantErr bool
	}{
		{
			name:    "plain and comments",
			content: "# comment\n\nA=1\nexport B=two\r\nC=three # trailing\n",
			want:    map[string]string{"A": "1", "B": "two", "C": "three"},
		},
		{
			name:    "quoted values",
			content: "D=\"line\\nnext \\\"q\\\"\"\nE='raw \\n'\nF=\n",
			want:    map[string]string{"D": "line\nnext \"q\"", "E": "raw \\n", "F": ""},
		},
		{name: "missing equals", content: "JUSTAKEY\n", wantErr: true},
		{name: "empty key", content: "=value\n", wantErr: true},
		{name: "unterminated quote", content: "G=\"open\n", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			env := map[string]string{}
			err := ParseEnvFile(env, []byte(tt.content), ".env")
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseEnvFile() expected error, got %v", env)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseEnvFile() error = %v", err)
			}
			for k, v := range tt.want {
				if env[k] != v {
					t.Errorf("env[%s] = %q, want %q", k, env[k], v)
				}
			}
			if len(env) != len(tt.want) {
				t.Errorf("got %d vars, want %d: %v", len(env), len(tt.want), env)
			}
		})
	}
}

func TestLoadDotenv_DoesNotOverride(t *testing.T) {
	home := t.TempDir()
	t.Cleanup(testutil.SetHomeDir(t, home))
	t.Cleanup(testutil.MustSetenv(t, "PKGRUN_DOTENV_KEEP", "from-shell"))
	t.Cleanup(testutil.MustUnsetenv(t, "PKGRUN_DOTENV_NEW"))

	testutil.MustWriteFile(t, filepath.Join(home, DotenvFileName),
		"PKGRUN_DOTENV_KEEP=from-file\nPKGRUN_DOTENV_NEW=added\n", 0o600)

	if err := LoadDotenv(); err != nil {
		t.Fatalf("LoadDotenv() error = %v", err)
	}
	if got := os.Getenv("PKGRUN_DOTENV_KEEP"); got != "from-shell" {
		t.Errorf("PKGRUN_DOTENV_KEEP = %q, want from-shell", got)
	}
	if got := os.Getenv("PKGRUN_DOTENV_NEW"); got != "added" {
		t.Errorf("PKGRUN_DOTENV_NEW = %q, want added", got)
	}
}

func TestLoadDotenv_MissingFile(t *testing.T) {
	t.Cleanup(testutil.SetHomeDir(t, t.TempDir()))

	if err := LoadDotenv(); err != nil {
		t.Errorf("LoadDotenv() without ~/.env = %v, want nil", err)
	}
}
