// SPDX-License-Identifier: MPL-2.0

package invoker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/pkgrun/pkgrun/pkg/platform"
	"github.com/pkgrun/pkgrun/pkg/types"
)

// loaderArgs select the hidden loader command of the pkgrun binary.
var loaderArgs = []string{"internal", "run-entry"}

// LoaderArgs returns the arguments that make the pkgrun binary act as the loader.
func LoaderArgs() []string {
	return append([]string(nil), loaderArgs...)
}

type (
	// SpawnError reports that the child process could not be started. It is
	// distinct from the child exiting with a non-zero status.
	SpawnError struct {
		Path string
		Err  error
	}

	// Invoker launches the loader child process.
	Invoker struct {
		executable string
		args       []string
		environ    func() []string
		stdin      io.Reader
		stdout     io.Writer
		stderr     io.Writer
		logger     *log.Logger
	}

	// Option configures an Invoker.
	Option func(*Invoker)
)

func (e *SpawnError) Error() string {
	return fmt.Sprintf("starting %s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying spawn failure.
func (e *SpawnError) Unwrap() error { return e.Err }

// WithExecutable overrides the loader binary and the arguments selecting the
// loader inside it.
func WithExecutable(path string, args ...string) Option {
	return func(i *Invoker) {
		i.executable = path
		i.args = args
	}
}

// WithStdio replaces the streams handed to the child.
func WithStdio(stdin io.Reader, stdout, stderr io.Writer) Option {
	return func(i *Invoker) {
		i.stdin, i.stdout, i.stderr = stdin, stdout, stderr
	}
}

// WithEnviron replaces the base environment of the child.
func WithEnviron(environ func() []string) Option {
	return func(i *Invoker) { i.environ = environ }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(i *Invoker) {
		if l != nil {
			i.logger = l
		}
	}
}

// New returns an Invoker that re-executes the running binary as the loader.
func New(opts ...Option) (*Invoker, error) {
	i := &Invoker{
		args:    loaderArgs,
		environ: os.Environ,
		stdin:   os.Stdin,
		stdout:  os.Stdout,
		stderr:  os.Stderr,
		logger:  log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(i)
	}

	if i.executable == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("locating pkgrun executable: %w", err)
		}
		i.executable = exe
	}
	return i, nil
}

// LaunchCommand returns the program and argument vector that start exe with
// args on goos. Batch launchers on Windows run through "cmd /d /s /c"; every
// other executable is started directly.
func LaunchCommand(goos, exe string, args []string) (string, []string) {
	if platform.RequiresShellWrapper(goos, exe) {
		wrapped := make([]string, 0, len(args)+4)
		wrapped = append(wrapped, "/d", "/s", "/c", exe)
		wrapped = append(wrapped, args...)
		return "cmd.exe", wrapped
	}
	return exe, args
}

// Invoke runs rootFile in a loader child with req and returns the child's
// exit code. A non-nil error means the child never ran.
//
// The child is not tied to ctx: once started it runs until it exits or is
// terminated externally.
func (i *Invoker) Invoke(ctx context.Context, rootFile string, req ExecutionRequest) (types.ExitCode, error) {
	if err := ctx.Err(); err != nil {
		return types.ExitCodeFailure, err
	}

	req.Entry = rootFile
	if err := req.Validate(); err != nil {
		return types.ExitCodeFailure, err
	}
	payload, err := req.Encode()
	if err != nil {
		return types.ExitCodeFailure, err
	}

	name, args := LaunchCommand(runtime.GOOS, i.executable, i.args)
	cmd := exec.Command(name, args...) //nolint:gosec // name is the pkgrun binary or a resolved entry
	cmd.Env = append(withoutVar(i.environ(), EnvExecRequest), EnvExecRequest+"="+payload)
	cmd.Stdin = i.stdin
	cmd.Stdout = i.stdout
	cmd.Stderr = i.stderr
	if req.Cwd != "" {
		cmd.Dir = req.Cwd
	}

	i.logger.Debug("launching entry", "entry", rootFile, "command", req.Command, "args", len(req.Args))
	return runChild(cmd)
}

// runChild runs cmd and converts its outcome to an exit code. Exit statuses
// outside 0-255 (e.g. termination by signal) are reported as 1.
func runChild(cmd *exec.Cmd) (types.ExitCode, error) {
	err := cmd.Run()
	if err == nil {
		return 0, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return types.ExitCode(exitErr.ExitCode()).Normalize(), nil
	}
	return types.ExitCodeFailure, &SpawnError{Path: cmd.Path, Err: err}
}

// withoutVar drops every assignment of key from env.
func withoutVar(env []string, key string) []string {
	out := make([]string, 0, len(env))
	prefix := key + "="
	for _, kv := range env {
		if !strings.HasPrefix(kv, prefix) {
			out = append(out, kv)
		}
	}
	return out
}
