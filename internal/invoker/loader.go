// SPDX-License-Identifier: MPL-2.0

package invoker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"

	"github.com/pkgrun/pkgrun/pkg/types"
)

const (
	// entryFunction is the function a script entry must define.
	entryFunction = "main"

	// scriptExt marks entries run by the embedded shell interpreter.
	scriptExt = ".sh"
)

// ErrNoEntryFunction indicates a script entry that does not define main.
var ErrNoEntryFunction = errors.New("entry script does not define a main function")

// callEntry is the fixed statement the loader runs after sourcing a script.
// Arguments reach it through the positional parameters, never through the
// program text.
var callEntry = mustParse(entryFunction + ` "$@"`)

// Stdio groups the streams handed to an entry.
type Stdio struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer
}

func mustParse(src string) *syntax.File {
	f, err := syntax.NewParser().Parse(strings.NewReader(src), "pkgrun-loader")
	if err != nil {
		panic(err)
	}
	return f
}

// RunEntry is the child-side loader. It decodes the request from environ,
// runs the entry it names and returns the entry's exit code. A non-nil error
// means the entry could not be run at all.
func RunEntry(ctx context.Context, stdio Stdio, environ []string) (types.ExitCode, error) {
	payload, _ := lookupVar(environ, EnvExecRequest)
	req, err := DecodeRequest(payload)
	if err != nil {
		return types.ExitCodeFailure, err
	}

	env := append(withoutVar(environ, EnvExecRequest), req.entryEnv(payload)...)
	entry := filepath.FromSlash(req.Entry)

	if strings.EqualFold(filepath.Ext(entry), scriptExt) {
		return runScript(ctx, stdio, env, entry, req)
	}
	return runNative(stdio, env, entry, req)
}

// runScript sources entry in the embedded interpreter, then calls its main
// function with the request arguments.
func runScript(ctx context.Context, stdio Stdio, env []string, entry string, req ExecutionRequest) (types.ExitCode, error) {
	f, err := os.Open(entry)
	if err != nil {
		return types.ExitCodeFailure, fmt.Errorf("opening entry: %w", err)
	}
	defer func() { _ = f.Close() }()

	prog, err := syntax.NewParser().Parse(f, entry)
	if err != nil {
		return types.ExitCodeFailure, fmt.Errorf("parsing entry: %w", err)
	}

	opts := []interp.RunnerOption{
		interp.StdIO(stdio.In, stdio.Out, stdio.Err),
		interp.Env(expand.ListEnviron(env...)),
		// "--" keeps arguments such as "-v" from being read as shell options.
		interp.Params(append([]string{"--"}, req.Args...)...),
	}
	if req.Cwd != "" {
		opts = append(opts, interp.Dir(req.Cwd))
	}

	runner, err := interp.New(opts...)
	if err != nil {
		return types.ExitCodeFailure, fmt.Errorf("creating interpreter: %w", err)
	}

	// Sourcing may already exit, e.g. a guard that rejects the platform. A
	// non-zero status from the last top-level command is not an exit.
	err = runner.Run(ctx, prog)
	if runner.Exited() {
		return scriptStatus(err)
	}
	var status interp.ExitStatus
	if err != nil && !errors.As(err, &status) {
		return types.ExitCodeFailure, fmt.Errorf("sourcing entry: %w", err)
	}

	if _, ok := runner.Funcs[entryFunction]; !ok {
		return types.ExitCodeFailure, fmt.Errorf("%s: %w", req.Entry, ErrNoEntryFunction)
	}
	return scriptStatus(runner.Run(ctx, callEntry))
}

func scriptStatus(err error) (types.ExitCode, error) {
	if err == nil {
		return 0, nil
	}
	var status interp.ExitStatus
	if errors.As(err, &status) {
		return types.ExitCode(status).Normalize(), nil
	}
	return types.ExitCodeFailure, fmt.Errorf("running entry: %w", err)
}

// runNative executes entry directly with the request arguments.
func runNative(stdio Stdio, env []string, entry string, req ExecutionRequest) (types.ExitCode, error) {
	name, args := LaunchCommand(runtime.GOOS, entry, req.Args)
	cmd := exec.Command(name, args...) //nolint:gosec // entry comes from the installed package manifest
	cmd.Env = env
	cmd.Stdin = stdio.In
	cmd.Stdout = stdio.Out
	cmd.Stderr = stdio.Err
	if req.Cwd != "" {
		cmd.Dir = req.Cwd
	}
	return runChild(cmd)
}

func lookupVar(env []string, key string) (string, bool) {
	prefix := key + "="
	for i := len(env) - 1; i >= 0; i-- {
		if v, ok := strings.CutPrefix(env[i], prefix); ok {
			return v, true
		}
	}
	return "", false
}
