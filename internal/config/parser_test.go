package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		content  string
		expected Format
	}{
		{"yaml extension", "Hatchfile.yaml", "", FormatYAML},
		{"yml extension", "Hatchfile.yml", "", FormatYAML},
		{"toml extension", "Hatchfile.toml", "", FormatTOML},
		{"json extension", "Hatchfile.json", "", FormatJSON},
		{"json content", "Hatchfile", `{"version": 1}`, FormatJSON},
		{"yaml content", "Hatchfile", `version: 1`, FormatYAML},
		{"toml content", "Hatchfile", `version = 1`, FormatTOML},
		{"toml table", "Hatchfile", "# settings\n[hooks]\n", FormatTOML},
		{"toml url value", "Hatchfile", `endpoints = "https://example.com/releases"`, FormatTOML},
		{"yaml with equals in value", "Hatchfile", `root_dir: /opt/a=b`, FormatYAML},
		{"unknown", "Hatchfile", "just words", FormatUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := detectFormat(tt.path, []byte(tt.content))
			if got != tt.expected {
				t.Errorf("detectFormat() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("TEST_VAR", "test_value")
	t.Setenv("EMPTY_VAR", "")

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"simple var", "${TEST_VAR}", "test_value"},
		{"var with default", "${MISSING_VAR:-default_value}", "default_value"},
		{"existing var ignores default", "${TEST_VAR:-default_value}", "test_value"},
		{"empty var uses default", "${EMPTY_VAR:-default_value}", "default_value"},
		{"no var", "plain text", "plain text"},
		{"mixed content", "prefix ${TEST_VAR} suffix", "prefix test_value suffix"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := string(ExpandEnvVars([]byte(tt.input)))
			if got != tt.expected {
				t.Errorf("ExpandEnvVars() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestParseTOML(t *testing.T) {
	content := []byte(`
version = 1
package_name = "myapp"
root_dir = "/opt/myapp"
endpoints = ["https://releases.example.com/myapp", "/mnt/share/myapp"]
ignore_delta = true
lock_timeout = "2s"
aware_executables = ["myapp.exe"]
log_level = "debug"
metrics_file = "/var/lib/node_exporter/hatch.prom"
`)

	h, err := parse(content, FormatTOML)
	if err != nil {
		t.Fatalf("parse() error = %v", err)
	}

	if h.Version != 1 || h.PackageName != "myapp" || h.RootDir != "/opt/myapp" {
		t.Errorf("parse() = %+v", h)
	}
	if strings.Join(h.Endpoints, ",") != "https://releases.example.com/myapp,/mnt/share/myapp" {
		t.Errorf("Endpoints = %v", h.Endpoints)
	}
	if !h.IgnoreDelta {
		t.Error("IgnoreDelta should be true")
	}
	if d, err := h.LockTimeoutDuration(); err != nil || d != 2*time.Second {
		t.Errorf("LockTimeoutDuration() = %v, %v", d, err)
	}
	if len(h.AwareExecutables) != 1 || h.AwareExecutables[0] != "myapp.exe" {
		t.Errorf("AwareExecutables = %v", h.AwareExecutables)
	}
	if h.LogLevel != "debug" || h.MetricsFile == "" {
		t.Errorf("LogLevel = %q, MetricsFile = %q", h.LogLevel, h.MetricsFile)
	}
}

func TestParseYAML(t *testing.T) {
	content := []byte(`
version: 1
root_dir: /opt/myapp
endpoints:
  - https://releases.example.com/myapp
  - url: https://mirror.example.com/myapp
hook_timeout: 15s
`)

	h, err := parse(content, FormatYAML)
	if err != nil {
		t.Fatalf("parse() error = %v", err)
	}

	want := []string{"https://releases.example.com/myapp", "https://mirror.example.com/myapp"}
	if strings.Join(h.Endpoints, ",") != strings.Join(want, ",") {
		t.Errorf("Endpoints = %v, want %v", h.Endpoints, want)
	}
	if d, err := h.HookTimeoutDuration(); err != nil || d != 15*time.Second {
		t.Errorf("HookTimeoutDuration() = %v, %v", d, err)
	}
}

func TestParseJSON(t *testing.T) {
	content := []byte(`{"version": 1, "root_dir": "/opt/myapp", "endpoints": "file:///mnt/share/myapp"}`)

	h, err := parse(content, FormatJSON)
	if err != nil {
		t.Fatalf("parse() error = %v", err)
	}
	if len(h.Endpoints) != 1 || h.Endpoints[0] != "file:///mnt/share/myapp" {
		t.Errorf("Endpoints = %v", h.Endpoints)
	}
}

func TestParseEndpointsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"number", `endpoints: 3`},
		{"object without url", "endpoints:\n  - path: /x\n"},
		{"nested list", "endpoints:\n  - [a, b]\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parse([]byte(tt.content), FormatYAML); err == nil {
				t.Error("parse() should fail")
			}
		})
	}
}

func TestParseWithEnvVars(t *testing.T) {
	t.Setenv("HATCH_TEST_ROOT", "/srv/app")

	h, err := parse([]byte("root_dir = \"${HATCH_TEST_ROOT}\"\nendpoints = \"${HATCH_TEST_ENDPOINT:-https://example.com}\"\n"), FormatTOML)
	if err != nil {
		t.Fatalf("parse() error = %v", err)
	}
	if h.RootDir != "/srv/app" || h.Endpoints[0] != "https://example.com" {
		t.Errorf("parse() = %+v", h)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Hatchfile")
	content := "root_dir = \"/opt/myapp\"\nendpoints = [\"https://releases.example.com\"]\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	h, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if h.LockTimeout != DefaultLockTimeout || h.HookTimeout != DefaultHookTimeout || h.LogLevel != DefaultLogLevel {
		t.Errorf("defaults not applied: %+v", h)
	}

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("root_dir: /x\n"), 0644); err != nil {
		t.Fatal(err)
	}
	_, err = Load(bad)
	if err == nil || !strings.Contains(err.Error(), "at least one endpoint") {
		t.Errorf("Load(no endpoints) error = %v", err)
	}
}

func TestFindHatchfile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Hatchfile.toml")
	if err := os.WriteFile(path, []byte("endpoints = \"/x\"\n"), 0644); err != nil {
		t.Fatal(err)
	}

	got, err := FindHatchfile(path)
	if err != nil || got != path {
		t.Errorf("FindHatchfile(explicit) = %s, %v", got, err)
	}
	if _, err := FindHatchfile(filepath.Join(dir, "missing")); err == nil {
		t.Error("FindHatchfile(missing) should fail")
	}

	t.Setenv("HATCHFILE", path)
	got, err = FindHatchfile("")
	if err != nil || got != path {
		t.Errorf("FindHatchfile(env) = %s, %v", got, err)
	}
}
