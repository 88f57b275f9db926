// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkgrun/pkgrun/internal/issue"
	"github.com/pkgrun/pkgrun/internal/registry"
	"github.com/pkgrun/pkgrun/internal/testutil"
)

// isolateEnv clears every PKGRUN_* override the host environment might carry.
func isolateEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PKGRUN_REGISTRY",
		"PKGRUN_REGISTRY_TOKEN",
		"PKGRUN_HOME",
		"PKGRUN_LOG_LEVEL",
		"PKGRUN_INSTALL_CONCURRENCY",
		"PKGRUN_COMMANDS",
	} {
		t.Cleanup(testutil.MustUnsetenv(t, key))
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	testutil.MustWriteFile(t, filepath.Join(dir, ConfigFileName+"."+ConfigFileExt), content, 0o644)
	return dir
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()

	if cfg.Registry != registry.DefaultURL {
		t.Errorf("Registry = %q, want %q", cfg.Registry, registry.DefaultURL)
	}
	if cfg.LogLevel != LogLevelInfo {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, LogLevelInfo)
	}
	if cfg.Install.Concurrency != DefaultConcurrency {
		t.Errorf("Install.Concurrency = %d, want %d", cfg.Install.Concurrency, DefaultConcurrency)
	}
	if got := strings.Join(cfg.CommandNames(), ","); got != "add,init,publish" {
		t.Errorf("CommandNames() = %q, want %q", got, "add,init,publish")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("DefaultConfig().Validate() = %v", err)
	}
}

func TestLoad_NoFileUsesDefaults(t *testing.T) {
	isolateEnv(t)

	cfg, path, err := Load(context.Background(), LoadOptions{ConfigDirPath: t.TempDir()})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if path != "" {
		t.Errorf("path = %q, want empty", path)
	}
	if cfg.Registry != registry.DefaultURL {
		t.Errorf("Registry = %q, want default", cfg.Registry)
	}
	if cmd, ok := cfg.Commands["init"]; !ok || cmd.Package != "@pkgrun/init" {
		t.Errorf("Commands[init] = %+v, want default init command", cmd)
	}
}

func TestLoad_CUEFile(t *testing.T) {
	isolateEnv(t)

	dir := writeConfig(t, `
registry: "http://localhost:4873"
log_level: "debug"
install: concurrency: 8
commands: {
	deploy: {
		package: "@acme/deploy"
		version: "^2.0.0"
		description: "Deploy the app"
	}
}
`)

	cfg, path, err := Load(context.Background(), LoadOptions{ConfigDirPath: dir})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if want := filepath.Join(dir, "config.cue"); path != want {
		t.Errorf("path = %q, want %q", path, want)
	}
	if cfg.Registry != "http://localhost:4873" {
		t.Errorf("Registry = %q", cfg.Registry)
	}
	if cfg.LogLevel != LogLevelDebug {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
	if cfg.Install.Concurrency != 8 {
		t.Errorf("Install.Concurrency = %d, want 8", cfg.Install.Concurrency)
	}
	want := CommandConfig{Package: "@acme/deploy", Version: "^2.0.0", Description: "Deploy the app"}
	if got := cfg.Commands["deploy"]; got != want {
		t.Errorf("Commands[deploy] = %+v, want %+v", got, want)
	}
	if _, ok := cfg.Commands["init"]; ok {
		t.Error("configured commands should replace the defaults")
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	isolateEnv(t)
	dir := writeConfig(t, `registry: "http://from-file:4873"`+"\n")

	t.Cleanup(testutil.MustSetenv(t, "PKGRUN_REGISTRY", "http://from-env:4873"))
	t.Cleanup(testutil.MustSetenv(t, "PKGRUN_INSTALL_CONCURRENCY", "2"))
	t.Cleanup(testutil.MustSetenv(t, "PKGRUN_REGISTRY_TOKEN", "s3cret"))

	cfg, _, err := Load(context.Background(), LoadOptions{ConfigDirPath: dir})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Registry != "http://from-env:4873" {
		t.Errorf("Registry = %q, want env value", cfg.Registry)
	}
	if cfg.Install.Concurrency != 2 {
		t.Errorf("Install.Concurrency = %d, want 2", cfg.Install.Concurrency)
	}
	if cfg.RegistryToken != "s3cret" {
		t.Errorf("RegistryToken = %q, want env value", cfg.RegistryToken)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantMsg string
	}{
		{name: "syntax error", content: "registry: \n", wantMsg: "config.cue"},
		{name: "bad log level", content: `log_level: "loud"` + "\n", wantMsg: "log_level"},
		{name: "bad registry scheme", content: `registry: "ftp://mirror"` + "\n", wantMsg: "registry"},
		{name: "zero concurrency", content: "install: concurrency: 0\n", wantMsg: "concurrency"},
		{name: "unknown key", content: `colour: "red"` + "\n", wantMsg: "colour"},
		{name: "command without package", content: "commands: deploy: description: \"x\"\n", wantMsg: "package"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolateEnv(t)
			dir := writeConfig(t, tt.content)

			_, _, err := Load(context.Background(), LoadOptions{ConfigDirPath: dir})
			if err == nil {
				t.Fatal("Load() expected error")
			}
			var ae *issue.ActionableError
			if !errors.As(err, &ae) {
				t.Fatalf("error %T is not *issue.ActionableError", err)
			}
			if ae.Issue != issue.ConfigLoadFailedId {
				t.Errorf("Issue = %v, want ConfigLoadFailedId", ae.Issue)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error %q does not mention %q", err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestLoad_InvalidEnvLogLevel(t *testing.T) {
	isolateEnv(t)
	t.Cleanup(testutil.MustSetenv(t, "PKGRUN_LOG_LEVEL", "chatty"))

	_, _, err := Load(context.Background(), LoadOptions{ConfigDirPath: t.TempDir()})
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("Load() error = %v, want ErrInvalidConfig", err)
	}
}

func TestLoad_ExplicitPath(t *testing.T) {
	isolateEnv(t)

	dir := writeConfig(t, `log_level: "warn"`+"\n")
	path := filepath.Join(dir, "config.cue")

	cfg, got, err := Load(context.Background(), LoadOptions{ConfigFilePath: path})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got != path || cfg.LogLevel != LogLevelWarn {
		t.Errorf("Load() = (%q, %q), want (%q, warn)", got, cfg.LogLevel, path)
	}

	_, _, err = Load(context.Background(), LoadOptions{ConfigFilePath: filepath.Join(dir, "missing.cue")})
	if err == nil || !strings.Contains(err.Error(), "config file not found") {
		t.Errorf("missing explicit file error = %v", err)
	}
}

func TestLoad_Canceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := Load(ctx, LoadOptions{ConfigDirPath: t.TempDir()}); !errors.Is(err, context.Canceled) {
		t.Errorf("Load() error = %v, want context.Canceled", err)
	}
}

func TestInit_RoundTrip(t *testing.T) {
	isolateEnv(t)

	path := filepath.Join(t.TempDir(), "nested", "config.cue")
	wrote, err := Init(path)
	if err != nil || !wrote {
		t.Fatalf("Init() = (%v, %v), want (true, nil)", wrote, err)
	}
	wrote, err = Init(path)
	if err != nil || wrote {
		t.Fatalf("second Init() = (%v, %v), want (false, nil)", wrote, err)
	}

	cfg, _, err := Load(context.Background(), LoadOptions{ConfigFilePath: path})
	if err != nil {
		t.Fatalf("Load() of generated config error = %v", err)
	}
	want := DefaultConfig()
	if cfg.Registry != want.Registry || cfg.LogLevel != want.LogLevel || cfg.Install != want.Install {
		t.Errorf("generated config = %+v, want %+v", cfg, want)
	}
	for name, cmd := range want.Commands {
		if cfg.Commands[name] != cmd {
			t.Errorf("Commands[%s] = %+v, want %+v", name, cfg.Commands[name], cmd)
		}
	}
}

func TestProvider_Load(t *testing.T) {
	isolateEnv(t)

	dir := writeConfig(t, `log_level: "debug"`)

	src, err := NewProvider().Load(context.Background(), LoadOptions{ConfigDirPath: dir})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if src.Config.LogLevel != LogLevelDebug {
		t.Errorf("LogLevel = %q, want %q", src.Config.LogLevel, LogLevelDebug)
	}
	if want := filepath.Join(dir, "config.cue"); src.Path != want {
		t.Errorf("Path = %q, want %q", src.Path, want)
	}
}

func TestStaticProvider(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Commands = map[string]CommandConfig{"greet": {Package: "demo-cmd"}}

	src, err := NewStaticProvider(cfg, "inline").Load(context.Background(), LoadOptions{ConfigFilePath: "ignored.cue"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if src.Path != "inline" {
		t.Errorf("Path = %q, want inline", src.Path)
	}

	src.Config.Commands["other"] = CommandConfig{Package: "x"}
	again, err := NewStaticProvider(cfg, "").Load(context.Background(), LoadOptions{})
	if err != nil {
		t.Fatalf("second Load() error = %v", err)
	}
	if _, leaked := cfg.Commands["other"]; leaked {
		t.Error("mutating a loaded config changed the provider's source")
	}
	if len(again.Config.Commands) != 1 {
		t.Errorf("Commands = %v, want only greet", again.Config.Commands)
	}
}

func TestStaticProvider_Errors(t *testing.T) {
	t.Parallel()

	invalid := DefaultConfig()
	invalid.LogLevel = "loud"
	if _, err := NewStaticProvider(invalid, "").Load(context.Background(), LoadOptions{}); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Load(invalid) error = %v, want ErrInvalidConfig", err)
	}

	nilCommands := DefaultConfig()
	nilCommands.Commands = nil
	src, err := NewStaticProvider(nilCommands, "").Load(context.Background(), LoadOptions{})
	if err != nil || len(src.Config.Commands) != len(DefaultCommands()) {
		t.Errorf("Load(nil commands) = %v, %v; want default commands", src, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewStaticProvider(DefaultConfig(), "").Load(ctx, LoadOptions{}); !errors.Is(err, context.Canceled) {
		t.Errorf("Load(canceled) error = %v, want context.Canceled", err)
	}
}

func TestConfigDir_Override(t *testing.T) {
	dir := t.TempDir()
	prev := configDirOverride
	SetConfigDirOverride(dir)
	t.Cleanup(func() { SetConfigDirOverride(prev) })

	got, err := ConfigDir()
	if err != nil || got != dir {
		t.Errorf("ConfigDir() = (%q, %v), want %q", got, err, dir)
	}
	path, err := ConfigFilePath()
	if err != nil || path != filepath.Join(dir, "config.cue") {
		t.Errorf("ConfigFilePath() = (%q, %v)", path, err)
	}
}

func TestResolveHome(t *testing.T) {
	userHome := t.TempDir()
	t.Cleanup(testutil.SetHomeDir(t, userHome))
	abs := filepath.Join(t.TempDir(), "custom")

	tests := []struct {
		value string
		want  string
	}{
		{value: "", want: filepath.Join(userHome, ".pkgrun")},
		{value: ".tools", want: filepath.Join(userHome, ".tools")},
		{value: abs, want: abs},
	}

	for _, tt := range tests {
		got, err := ResolveHome(tt.value)
		if err != nil {
			t.Fatalf("ResolveHome(%q) error = %v", tt.value, err)
		}
		if got != tt.want {
			t.Errorf("ResolveHome(%q) = %q, want %q", tt.value, got, tt.want)
		}
	}
}

func TestLogLevel_Validate(t *testing.T) {
	t.Parallel()

	for _, l := range []LogLevel{LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError} {
		if err := l.Validate(); err != nil {
			t.Errorf("%q.Validate() = %v", l, err)
		}
	}
	if err := LogLevel("trace").Validate(); !errors.Is(err, ErrInvalidLogLevel) {
		t.Errorf("trace.Validate() = %v, want ErrInvalidLogLevel", err)
	}
}

func TestMain(m *testing.M) {
	// Config lookups must never reach the developer's real config directory.
	dir, err := os.MkdirTemp("", "pkgrun-config-*")
	if err != nil {
		panic(err)
	}
	SetConfigDirOverride(dir)
	code := m.Run()
	_ = os.RemoveAll(dir)
	os.Exit(code)
}
