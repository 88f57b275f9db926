// SPDX-License-Identifier: MPL-2.0

package invoker

import (
	"encoding/json"
	"errors"
	"slices"
	"testing"
)

func TestSanitizeOptions_DropsPrivateAndParent(t *testing.T) {
	t.Parallel()

	in := map[string]any{
		"a":        1,
		"_private": 2,
		"parent":   map[string]any{"name": "root"},
		"b":        2,
	}
	req := NewExecutionRequest("demo-cmd", nil, in, "", false)

	payload, err := req.Encode()
	if err != nil {
		t.Fatal(err)
	}
	var decoded struct {
		Options map[string]any `json:"options"`
	}
	if err := json.Unmarshal([]byte(payload), &decoded); err != nil {
		t.Fatal(err)
	}

	want := map[string]any{"a": float64(1), "b": float64(2)}
	if len(decoded.Options) != len(want) {
		t.Fatalf("options = %v, want %v", decoded.Options, want)
	}
	for k, v := range want {
		if decoded.Options[k] != v {
			t.Errorf("options[%q] = %v, want %v", k, decoded.Options[k], v)
		}
	}
	if _, ok := in["_private"]; !ok {
		t.Error("SanitizeOptions must not mutate its input")
	}
}

func TestSanitizeOptions_Empty(t *testing.T) {
	t.Parallel()

	if got := SanitizeOptions(map[string]any{"_x": 1, "parent": nil}); got != nil {
		t.Errorf("SanitizeOptions() = %v, want nil", got)
	}
	if got := SanitizeOptions(nil); got != nil {
		t.Errorf("SanitizeOptions(nil) = %v, want nil", got)
	}
}

func TestExecutionRequest_RoundTrip(t *testing.T) {
	t.Parallel()

	req := NewExecutionRequest("demo-cmd", []string{"-v", "x y"}, map[string]any{"force": true}, "/work", true)
	req.Entry = "/store/_demo-cmd@2.1.0@demo-cmd/bin/run.sh"

	payload, err := req.Encode()
	if err != nil {
		t.Fatal(err)
	}
	got, err := DecodeRequest(payload)
	if err != nil {
		t.Fatalf("DecodeRequest() error: %v", err)
	}
	if got.Entry != req.Entry || got.Command != "demo-cmd" || !got.Debug || got.Cwd != "/work" {
		t.Errorf("decoded = %+v", got)
	}
	if !slices.Equal(got.Args, req.Args) {
		t.Errorf("args = %q, want %q", got.Args, req.Args)
	}
}

func TestDecodeRequest_Invalid(t *testing.T) {
	t.Parallel()

	for _, payload := range []string{"", "{", `{"entry":""}`, `{"entry":"relative/run.sh"}`} {
		if _, err := DecodeRequest(payload); !errors.Is(err, ErrInvalidRequest) {
			t.Errorf("DecodeRequest(%q) = %v, want ErrInvalidRequest", payload, err)
		}
	}
}

func TestOptionEnvName(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"dry-run":   "DRY_RUN",
		"outDir":    "OUT_DIR",
		"registry":  "REGISTRY",
		"tag.name":  "TAG_NAME",
		"v2Output":  "V2_OUTPUT",
		"HTTPProxy": "HTTPPROXY",
	}
	for in, want := range tests {
		if got := OptionEnvName(in); got != want {
			t.Errorf("OptionEnvName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestEntryEnv(t *testing.T) {
	t.Parallel()

	req := ExecutionRequest{
		Entry:   "/pkg/run.sh",
		Command: "demo",
		Options: map[string]any{"dry-run": true, "count": float64(3), "tags": []string{"a", "b"}},
	}
	env := req.entryEnv("{}")

	for _, want := range []string{
		"PKGRUN_REQUEST={}",
		"PKGRUN_ENTRY=/pkg/run.sh",
		"PKGRUN_PACKAGE=demo",
		"PKGRUN_OPT_COUNT=3",
		"PKGRUN_OPT_DRY_RUN=true",
		`PKGRUN_OPT_TAGS=["a","b"]`,
	} {
		if !slices.Contains(env, want) {
			t.Errorf("env missing %q: %v", want, env)
		}
	}
}
