// Package config handles Hatchfile parsing and location resolution.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/juju/errors"
)

// Defaults applied to fields left empty in a Hatchfile.
const (
	DefaultLockTimeout = "5s"
	DefaultHookTimeout = "10s"
	DefaultLogLevel    = "info"
)

// Hatchfile represents the parsed configuration file.
type Hatchfile struct {
	Version     int    `yaml:"version" toml:"version" json:"version"`
	PackageName string `yaml:"package_name" toml:"package_name" json:"package_name"`
	RootDir     string `yaml:"root_dir" toml:"root_dir" json:"root_dir"`
	// Endpoints are tried in order: http(s) URLs or local directories.
	Endpoints        []string `yaml:"endpoints" toml:"endpoints" json:"endpoints"`
	IgnoreDelta      bool     `yaml:"ignore_delta,omitempty" toml:"ignore_delta,omitempty" json:"ignore_delta,omitempty"`
	LockTimeout      string   `yaml:"lock_timeout,omitempty" toml:"lock_timeout,omitempty" json:"lock_timeout,omitempty"`
	HookTimeout      string   `yaml:"hook_timeout,omitempty" toml:"hook_timeout,omitempty" json:"hook_timeout,omitempty"`
	AwareExecutables []string `yaml:"aware_executables,omitempty" toml:"aware_executables,omitempty" json:"aware_executables,omitempty"`
	LogLevel         string   `yaml:"log_level,omitempty" toml:"log_level,omitempty" json:"log_level,omitempty"`
	// MetricsFile receives endpoint health in the Prometheus text format.
	MetricsFile string `yaml:"metrics_file,omitempty" toml:"metrics_file,omitempty" json:"metrics_file,omitempty"`
}

// ApplyDefaults fills empty optional fields.
func (h *Hatchfile) ApplyDefaults() {
	if h.LockTimeout == "" {
		h.LockTimeout = DefaultLockTimeout
	}
	if h.HookTimeout == "" {
		h.HookTimeout = DefaultHookTimeout
	}
	if h.LogLevel == "" {
		h.LogLevel = DefaultLogLevel
	}
}

// LockTimeoutDuration returns the parsed lock timeout.
func (h *Hatchfile) LockTimeoutDuration() (time.Duration, error) {
	return parseDuration("lock_timeout", h.LockTimeout, DefaultLockTimeout)
}

// HookTimeoutDuration returns the parsed hook timeout.
func (h *Hatchfile) HookTimeoutDuration() (time.Duration, error) {
	return parseDuration("hook_timeout", h.HookTimeout, DefaultHookTimeout)
}

func parseDuration(field, value, fallback string) (time.Duration, error) {
	if value == "" {
		value = fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, ValidationError{Field: field, Message: err.Error()}
	}
	if d <= 0 {
		return 0, ValidationError{Field: field, Message: "must be positive"}
	}
	return d, nil
}

// fileNames are the Hatchfile spellings looked for in each search directory.
var fileNames = []string{
	"Hatchfile",
	"Hatchfile.toml",
	"Hatchfile.yaml",
	"Hatchfile.yml",
	"Hatchfile.json",
	".Hatchfile",
	".Hatchfile.toml",
	".Hatchfile.yaml",
	".Hatchfile.yml",
	".Hatchfile.json",
}

// FindHatchfile searches for a Hatchfile in the standard locations.
// Returns the path to the first Hatchfile found, or an error if none exists.
func FindHatchfile(explicitPath string) (string, error) {
	if explicitPath != "" {
		if _, err := os.Stat(explicitPath); err != nil {
			return "", errors.NotFoundf("specified Hatchfile %s", explicitPath)
		}
		return explicitPath, nil
	}

	// Check HATCHFILE environment variable
	if envPath := os.Getenv("HATCHFILE"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath, nil
		}
	}

	searchPaths := []string{"."}

	home, err := os.UserHomeDir()
	if err == nil {
		xdgConfig := os.Getenv("XDG_CONFIG_HOME")
		if xdgConfig == "" {
			xdgConfig = filepath.Join(home, ".config")
		}
		searchPaths = append(searchPaths, filepath.Join(xdgConfig, "hatch"), home)
	}

	for _, dir := range searchPaths {
		for _, name := range fileNames {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				return path, nil
			}
		}
	}

	return "", errors.NotFoundf("Hatchfile in standard locations")
}

// Load reads, parses and validates a Hatchfile from the given path.
func Load(path string) (*Hatchfile, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Annotate(err, "reading Hatchfile")
	}

	format := detectFormat(path, content)
	if format == FormatUnknown {
		return nil, errors.NotValidf("file format of %s", path)
	}

	hatchfile, err := parse(content, format)
	if err != nil {
		return nil, errors.Annotatef(err, "parsing %s", path)
	}
	hatchfile.ApplyDefaults()

	if err := Validate(hatchfile); err != nil {
		return nil, errors.Annotatef(err, "validating %s", path)
	}

	return hatchfile, nil
}
