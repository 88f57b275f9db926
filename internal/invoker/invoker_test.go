// SPDX-License-Identifier: MPL-2.0

package invoker

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"testing"

	"github.com/pkgrun/pkgrun/pkg/platform"
)

// envLoaderHelper makes the test binary act as the loader child.
const envLoaderHelper = "PKGRUN_TEST_LOADER_HELPER"

func TestMain(m *testing.M) {
	if os.Getenv(envLoaderHelper) == "1" {
		code, err := RunEntry(context.Background(), Stdio{In: os.Stdin, Out: os.Stdout, Err: os.Stderr}, os.Environ())
		if err != nil {
			_, _ = os.Stderr.WriteString(err.Error() + "\n")
		}
		os.Exit(int(code))
	}
	os.Exit(m.Run())
}

func newHelperInvoker(t *testing.T, stdout, stderr *bytes.Buffer) *Invoker {
	t.Helper()
	inv, err := New(
		WithExecutable(os.Args[0], "-test.run=^$"),
		WithStdio(strings.NewReader(""), stdout, stderr),
		WithEnviron(func() []string { return append(os.Environ(), envLoaderHelper+"=1") }),
	)
	if err != nil {
		t.Fatal(err)
	}
	return inv
}

func writeEntry(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o755); err != nil {
		t.Fatal(err)
	}
	return filepath.ToSlash(path)
}

func TestLaunchCommand(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		goos     string
		exe      string
		wantName string
		wantArgs []string
	}{
		{"linux direct", platform.Linux, "/usr/bin/pkgrun", "/usr/bin/pkgrun", []string{"a", "b"}},
		{"windows exe direct", platform.Windows, `C:\bin\pkgrun.exe`, `C:\bin\pkgrun.exe`, []string{"a", "b"}},
		{"windows cmd wrapped", platform.Windows, `C:\bin\tool.cmd`, "cmd.exe", []string{"/d", "/s", "/c", `C:\bin\tool.cmd`, "a", "b"}},
		{"windows bat wrapped", platform.Windows, `C:\bin\TOOL.BAT`, "cmd.exe", []string{"/d", "/s", "/c", `C:\bin\TOOL.BAT`, "a", "b"}},
		{"darwin cmd not wrapped", platform.Darwin, "/opt/tool.cmd", "/opt/tool.cmd", []string{"a", "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			name, args := LaunchCommand(tt.goos, tt.exe, []string{"a", "b"})
			if name != tt.wantName || !slices.Equal(args, tt.wantArgs) {
				t.Errorf("LaunchCommand() = %q %q, want %q %q", name, args, tt.wantName, tt.wantArgs)
			}
		})
	}
}

func TestInvoke_PropagatesExitCode(t *testing.T) {
	t.Parallel()

	entry := writeEntry(t, "run.sh", `main() { echo "hello $1"; echo "force=$PKGRUN_OPT_FORCE" >&2; return 7; }`)

	var stdout, stderr bytes.Buffer
	inv := newHelperInvoker(t, &stdout, &stderr)
	req := NewExecutionRequest("demo-cmd", []string{"world"}, map[string]any{"force": true, "_internal": "x"}, "", false)

	code, err := inv.Invoke(context.Background(), entry, req)
	if err != nil {
		t.Fatalf("Invoke() error: %v (stderr: %s)", err, stderr.String())
	}
	if code != 7 {
		t.Errorf("exit code = %d, want 7 (stderr: %s)", code, stderr.String())
	}
	if got := stdout.String(); got != "hello world\n" {
		t.Errorf("stdout = %q", got)
	}
	if !strings.Contains(stderr.String(), "force=true") {
		t.Errorf("stderr = %q, want option exposed", stderr.String())
	}
}

func TestInvoke_Success(t *testing.T) {
	t.Parallel()

	entry := writeEntry(t, "ok.sh", `main() { printf '%s|' "$@"; }`)

	var stdout, stderr bytes.Buffer
	code, err := newHelperInvoker(t, &stdout, &stderr).Invoke(context.Background(), entry,
		NewExecutionRequest("ok", []string{"-v", "--flag=x", "two words"}, nil, "", false))
	if err != nil || code != 0 {
		t.Fatalf("Invoke() = %d, %v (stderr: %s)", code, err, stderr.String())
	}
	if got := stdout.String(); got != "-v|--flag=x|two words|" {
		t.Errorf("stdout = %q", got)
	}
}

func TestInvoke_SpawnError(t *testing.T) {
	t.Parallel()

	inv, err := New(WithExecutable(filepath.Join(t.TempDir(), "missing-binary")))
	if err != nil {
		t.Fatal(err)
	}
	entry := writeEntry(t, "run.sh", "main() { :; }")

	code, err := inv.Invoke(context.Background(), entry, NewExecutionRequest("x", nil, nil, "", false))
	var spawnErr *SpawnError
	if !errors.As(err, &spawnErr) {
		t.Fatalf("Invoke() error = %v, want *SpawnError", err)
	}
	if code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
}

func TestInvoke_RejectsRelativeEntry(t *testing.T) {
	t.Parallel()

	inv, err := New(WithExecutable("/bin/true"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := inv.Invoke(context.Background(), "relative/run.sh", ExecutionRequest{}); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("Invoke() = %v, want ErrInvalidRequest", err)
	}
}

func TestInvoke_CanceledBeforeLaunch(t *testing.T) {
	t.Parallel()

	if runtime.GOOS == platform.Windows {
		t.Skip("uses a POSIX executable path")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	inv, err := New(WithExecutable("/bin/true"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := inv.Invoke(ctx, "/x/run.sh", ExecutionRequest{}); !errors.Is(err, context.Canceled) {
		t.Errorf("Invoke() = %v, want context.Canceled", err)
	}
}
