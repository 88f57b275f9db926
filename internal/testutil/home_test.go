// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func homeVar() string {
	if runtime.GOOS == "windows" {
		return "USERPROFILE"
	}
	return "HOME"
}

func TestSetHomeDir(t *testing.T) {
	tmpDir := t.TempDir()
	original := os.Getenv(homeVar())

	cleanup := SetHomeDir(t, tmpDir)
	if got := os.Getenv(homeVar()); got != tmpDir {
		t.Errorf("%s = %q, want %q", homeVar(), got, tmpDir)
	}

	cleanup()
	if got := os.Getenv(homeVar()); got != original {
		t.Errorf("After cleanup, %s = %q, want %q", homeVar(), got, original)
	}
}

func TestSetHomeDir_WithTCleanup(t *testing.T) {
	tmpDir := t.TempDir()
	original := os.Getenv(homeVar())

	t.Run("subtest", func(t *testing.T) {
		t.Cleanup(SetHomeDir(t, tmpDir))
		if got := os.Getenv(homeVar()); got != tmpDir {
			t.Errorf("%s = %q, want %q", homeVar(), got, tmpDir)
		}
	})

	if got := os.Getenv(homeVar()); got != original {
		t.Errorf("After subtest, %s = %q, want %q", homeVar(), got, original)
	}
}

func TestMustUnsetenv_Restores(t *testing.T) {
	const key = "PKGRUN_TESTUTIL_PROBE"
	t.Cleanup(MustSetenv(t, key, "before"))

	restore := MustUnsetenv(t, key)
	if _, ok := os.LookupEnv(key); ok {
		t.Fatalf("%s still set after MustUnsetenv", key)
	}
	restore()
	if got := os.Getenv(key); got != "before" {
		t.Errorf("%s = %q after restore, want %q", key, got, "before")
	}
}

func TestWritePackage(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	WritePackage(t, dir, "demo", "1.0.0", "bin/run.sh", map[string]string{
		"bin/run.sh": "main() { :; }\n",
	})

	data, err := os.ReadFile(filepath.Join(dir, "package.json"))
	if err != nil {
		t.Fatalf("read package.json: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("package.json is empty")
	}

	info, err := os.Stat(filepath.Join(dir, "bin", "run.sh"))
	if err != nil {
		t.Fatalf("stat script: %v", err)
	}
	if runtime.GOOS != "windows" && info.Mode().Perm()&0o100 == 0 {
		t.Errorf("script mode = %v, want executable", info.Mode().Perm())
	}
}
