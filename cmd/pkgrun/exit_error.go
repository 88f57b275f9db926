// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"

	"github.com/pkgrun/pkgrun/pkg/types"
)

// ExitError carries a process exit code out of a RunE handler. Err is the
// failure to present to the user; it is nil when a dispatched package simply
// exited non-zero and already reported its own problem.
type ExitError struct {
	Code types.ExitCode
	Err  error
}

// Error returns the underlying message, or "exit status N" for a bare code.
func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("exit status %d", e.Code)
}

// Unwrap returns the underlying error, if any.
func (e *ExitError) Unwrap() error {
	return e.Err
}

// exitResult converts a (code, err) pair into the RunE return value.
// Success yields nil.
func exitResult(code types.ExitCode, err error) error {
	if err != nil {
		return &ExitError{Code: types.ExitCodeFailure, Err: err}
	}
	if !code.IsSuccess() {
		return &ExitError{Code: code}
	}
	return nil
}

// asExitError normalizes any handler error into an ExitError with code 1
// unless it already carries one.
func asExitError(err error) *ExitError {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr
	}
	return &ExitError{Code: types.ExitCodeFailure, Err: err}
}
