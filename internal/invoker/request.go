// SPDX-License-Identifier: MPL-2.0

package invoker

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

const (
	// EnvExecRequest carries the serialized request from the parent to the loader.
	EnvExecRequest = "PKGRUN_EXEC_REQUEST"

	// EnvRequest exposes the request JSON to the running entry.
	EnvRequest = "PKGRUN_REQUEST"

	// EnvEntry and EnvPackage expose the entry path and package name.
	EnvEntry   = "PKGRUN_ENTRY"
	EnvPackage = "PKGRUN_PACKAGE"

	// optionEnvPrefix prefixes each option exposed to the entry.
	optionEnvPrefix = "PKGRUN_OPT_"

	// privateOptionPrefix marks option keys internal to the CLI layer.
	privateOptionPrefix = "_"

	// parentOptionKey is the back-reference CLI frameworks keep to the parent command.
	parentOptionKey = "parent"
)

// ErrInvalidRequest is returned when a request cannot be executed.
var ErrInvalidRequest = errors.New("invalid execution request")

// ExecutionRequest is everything that crosses the process boundary. Options
// only ever holds values that survived SanitizeOptions.
type ExecutionRequest struct {
	Entry   string         `json:"entry"`
	Command string         `json:"command"`
	Args    []string       `json:"args"`
	Options map[string]any `json:"options,omitempty"`
	Cwd     string         `json:"cwd,omitempty"`
	Debug   bool           `json:"debug,omitempty"`
}

// NewExecutionRequest builds a request for command with its positional args
// and option bag. Internal and back-reference options are dropped.
func NewExecutionRequest(command string, args []string, options map[string]any, cwd string, debug bool) ExecutionRequest {
	if args == nil {
		args = []string{}
	}
	return ExecutionRequest{
		Command: command,
		Args:    args,
		Options: SanitizeOptions(options),
		Cwd:     cwd,
		Debug:   debug,
	}
}

// SanitizeOptions returns a copy of options without keys that start with "_"
// and without the "parent" key. It returns nil when nothing remains.
func SanitizeOptions(options map[string]any) map[string]any {
	out := make(map[string]any, len(options))
	for k, v := range options {
		if k == "" || k == parentOptionKey || strings.HasPrefix(k, privateOptionPrefix) {
			continue
		}
		out[k] = v
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Validate checks the request is complete enough to run.
func (r ExecutionRequest) Validate() error {
	if r.Entry == "" {
		return fmt.Errorf("%w: entry is empty", ErrInvalidRequest)
	}
	if !filepath.IsAbs(filepath.FromSlash(r.Entry)) {
		return fmt.Errorf("%w: entry %q is not absolute", ErrInvalidRequest, r.Entry)
	}
	return nil
}

// Encode serializes the request for the loader.
func (r ExecutionRequest) Encode() (string, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("encoding execution request: %w", err)
	}
	return string(data), nil
}

// DecodeRequest parses a request produced by Encode.
func DecodeRequest(payload string) (ExecutionRequest, error) {
	var r ExecutionRequest
	if strings.TrimSpace(payload) == "" {
		return r, fmt.Errorf("%w: %s is not set", ErrInvalidRequest, EnvExecRequest)
	}
	if err := json.Unmarshal([]byte(payload), &r); err != nil {
		return r, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return r, r.Validate()
}

// entryEnv returns the variables the entry sees on top of the inherited
// environment: the request itself, entry and package names, and one
// PKGRUN_OPT_<NAME> per option in key order.
func (r ExecutionRequest) entryEnv(payload string) []string {
	env := []string{
		EnvRequest + "=" + payload,
		EnvEntry + "=" + r.Entry,
		EnvPackage + "=" + r.Command,
	}

	keys := make([]string, 0, len(r.Options))
	for k := range r.Options {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, optionEnvPrefix+OptionEnvName(k)+"="+optionString(r.Options[k]))
	}
	return env
}

// OptionEnvName converts an option key such as "dry-run" or "outDir" to
// upper snake case ("DRY_RUN", "OUT_DIR").
func OptionEnvName(key string) string {
	var sb strings.Builder
	prevLower := false
	for _, c := range key {
		switch {
		case c >= 'a' && c <= 'z':
			sb.WriteRune(c - 'a' + 'A')
			prevLower = true
		case c >= 'A' && c <= 'Z':
			if prevLower {
				sb.WriteByte('_')
			}
			sb.WriteRune(c)
			prevLower = false
		case c >= '0' && c <= '9':
			sb.WriteRune(c)
			prevLower = true
		default:
			sb.WriteByte('_')
			prevLower = false
		}
	}
	return sb.String()
}

func optionString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool, float64, float32, int, int64, int32, uint, uint64, uint32:
		return fmt.Sprint(val)
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(data)
	}
}
