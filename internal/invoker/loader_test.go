// SPDX-License-Identifier: MPL-2.0

package invoker

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/pkgrun/pkgrun/pkg/platform"
)

func runLoader(t *testing.T, req ExecutionRequest) (int, string, string, error) {
	t.Helper()
	payload, err := req.Encode()
	if err != nil {
		t.Fatal(err)
	}
	var stdout, stderr bytes.Buffer
	env := []string{"PATH=" + os.Getenv("PATH"), EnvExecRequest + "=" + payload}
	code, err := RunEntry(context.Background(), Stdio{In: strings.NewReader(""), Out: &stdout, Err: &stderr}, env)
	return int(code), stdout.String(), stderr.String(), err
}

func TestRunEntry_Script(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		script   string
		args     []string
		wantCode int
		wantOut  string
	}{
		{
			name:    "main receives args",
			script:  "main() { echo \"$# $1 $2\"; }\n",
			args:    []string{"a", "b c"},
			wantOut: "2 a b c\n",
		},
		{
			name:     "main return status",
			script:   "main() { return 3; }\n",
			wantCode: 3,
		},
		{
			name:     "exit inside main",
			script:   "main() { echo before; exit 42; echo after; }\n",
			wantCode: 42,
			wantOut:  "before\n",
		},
		{
			name:     "exit while sourcing skips main",
			script:   "exit 9\nmain() { echo unreachable; }\n",
			wantCode: 9,
		},
		{
			name:    "failing top-level command still calls main",
			script:  "false\nmain() { echo ran; }\n",
			wantOut: "ran\n",
		},
		{
			name:    "request exposed",
			script:  "main() { echo \"$PKGRUN_PACKAGE\"; }\n",
			wantOut: "demo\n",
		},
		{
			name:    "loader variable hidden",
			script:  "main() { echo \"[${PKGRUN_EXEC_REQUEST:-}]\"; }\n",
			wantOut: "[]\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			entry := writeEntry(t, "index.sh", tt.script)
			req := NewExecutionRequest("demo", tt.args, nil, "", false)
			req.Entry = entry

			code, out, errOut, err := runLoader(t, req)
			if err != nil {
				t.Fatalf("RunEntry() error: %v (stderr: %s)", err, errOut)
			}
			if code != tt.wantCode {
				t.Errorf("exit code = %d, want %d", code, tt.wantCode)
			}
			if out != tt.wantOut {
				t.Errorf("stdout = %q, want %q", out, tt.wantOut)
			}
		})
	}
}

func TestRunEntry_WorkingDirectory(t *testing.T) {
	t.Parallel()

	cwd := t.TempDir()
	entry := writeEntry(t, "pwd.sh", "main() { pwd; }\n")
	req := NewExecutionRequest("demo", nil, nil, cwd, false)
	req.Entry = entry

	_, out, _, err := runLoader(t, req)
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out) != cwd {
		t.Errorf("pwd = %q, want %q", strings.TrimSpace(out), cwd)
	}
}

func TestRunEntry_NoMainFunction(t *testing.T) {
	t.Parallel()

	entry := writeEntry(t, "lib.sh", "helper() { :; }\n")
	req := NewExecutionRequest("demo", nil, nil, "", false)
	req.Entry = entry

	code, _, _, err := runLoader(t, req)
	if !errors.Is(err, ErrNoEntryFunction) {
		t.Fatalf("RunEntry() error = %v, want ErrNoEntryFunction", err)
	}
	if code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
}

func TestRunEntry_Errors(t *testing.T) {
	t.Parallel()

	var stdout bytes.Buffer
	if _, err := RunEntry(context.Background(), Stdio{Out: &stdout, Err: &stdout}, nil); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("missing request: err = %v", err)
	}

	req := NewExecutionRequest("demo", nil, nil, "", false)
	req.Entry = filepath.ToSlash(filepath.Join(t.TempDir(), "absent.sh"))
	if _, _, _, err := runLoader(t, req); err == nil {
		t.Error("missing entry file: expected error")
	}

	req.Entry = writeEntry(t, "broken.sh", "main() {\n")
	if _, _, _, err := runLoader(t, req); err == nil {
		t.Error("unparsable entry: expected error")
	}
}

func TestRunEntry_Native(t *testing.T) {
	t.Parallel()

	if runtime.GOOS == platform.Windows {
		t.Skip("native entry fixture is a POSIX script")
	}

	entry := writeEntry(t, "run", "#!/bin/sh\necho \"native $1 $PKGRUN_OPT_MODE\"\nexit 5\n")
	req := NewExecutionRequest("demo", []string{"arg"}, map[string]any{"mode": "fast"}, "", false)
	req.Entry = entry

	code, out, errOut, err := runLoader(t, req)
	if err != nil {
		t.Fatalf("RunEntry() error: %v (stderr: %s)", err, errOut)
	}
	if code != 5 {
		t.Errorf("exit code = %d, want 5", code)
	}
	if out != "native arg fast\n" {
		t.Errorf("stdout = %q", out)
	}
}
