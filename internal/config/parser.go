package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/juju/errors"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Format represents the file format of a Hatchfile.
type Format int

const (
	FormatUnknown Format = iota
	FormatYAML
	FormatTOML
	FormatJSON
)

// String returns the string representation of a Format.
func (f Format) String() string {
	switch f {
	case FormatYAML:
		return "yaml"
	case FormatTOML:
		return "toml"
	case FormatJSON:
		return "json"
	default:
		return "unknown"
	}
}

// detectFormat determines the file format based on extension or content.
func detectFormat(path string, content []byte) Format {
	ext := strings.ToLower(filepath.Ext(path))

	switch ext {
	case ".yaml", ".yml":
		return FormatYAML
	case ".toml":
		return FormatTOML
	case ".json":
		return FormatJSON
	}

	// Content sniffing for extensionless files
	return sniffFormat(content)
}

// sniffFormat attempts to detect format from content.
func sniffFormat(content []byte) Format {
	trimmed := strings.TrimSpace(string(content))

	if strings.HasPrefix(trimmed, "{") {
		return FormatJSON
	}

	// TOML uses key = value, YAML uses key: value. The first meaningful
	// line decides, by whichever separator comes first.
	for _, line := range strings.Split(trimmed, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "[") {
			return FormatTOML
		}
		eq, colon := strings.Index(line, "="), strings.Index(line, ":")
		switch {
		case eq >= 0 && (colon < 0 || eq < colon):
			return FormatTOML
		case colon >= 0:
			return FormatYAML
		}
		return FormatUnknown
	}

	return FormatUnknown
}

// rawHatchfile is an intermediate representation for parsing.
// It handles the flexible endpoints format (string or list).
type rawHatchfile struct {
	Version          int         `yaml:"version" toml:"version" json:"version"`
	PackageName      string      `yaml:"package_name" toml:"package_name" json:"package_name"`
	RootDir          string      `yaml:"root_dir" toml:"root_dir" json:"root_dir"`
	Endpoints        interface{} `yaml:"endpoints" toml:"endpoints" json:"endpoints"`
	IgnoreDelta      bool        `yaml:"ignore_delta" toml:"ignore_delta" json:"ignore_delta"`
	LockTimeout      string      `yaml:"lock_timeout" toml:"lock_timeout" json:"lock_timeout"`
	HookTimeout      string      `yaml:"hook_timeout" toml:"hook_timeout" json:"hook_timeout"`
	AwareExecutables []string    `yaml:"aware_executables" toml:"aware_executables" json:"aware_executables"`
	LogLevel         string      `yaml:"log_level" toml:"log_level" json:"log_level"`
	MetricsFile      string      `yaml:"metrics_file" toml:"metrics_file" json:"metrics_file"`
}

// parseEndpoints converts the flexible endpoint format to a list.
// Endpoints can be specified as:
//   - Simple string: "https://example.com/releases"
//   - List of strings
//   - List of objects with a "url" field
func parseEndpoints(raw interface{}) ([]string, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case string:
		return []string{v}, nil
	case []interface{}:
		endpoints := make([]string, 0, len(v))
		for i, item := range v {
			switch e := item.(type) {
			case string:
				endpoints = append(endpoints, e)
			case map[string]interface{}:
				url, ok := e["url"].(string)
				if !ok {
					return nil, errors.Errorf("endpoints[%d]: missing or invalid 'url' field", i)
				}
				endpoints = append(endpoints, url)
			default:
				return nil, errors.Errorf("endpoints[%d]: invalid format (expected string or object)", i)
			}
		}
		return endpoints, nil
	default:
		return nil, errors.Errorf("endpoints: invalid format (expected string or list)")
	}
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// ExpandEnvVars replaces ${VAR} and ${VAR:-default} patterns in content.
// An unset variable without a default expands to the empty string.
func ExpandEnvVars(content []byte) []byte {
	return envVarPattern.ReplaceAllFunc(content, func(match []byte) []byte {
		parts := envVarPattern.FindSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		value := os.Getenv(string(parts[1]))
		if value == "" && len(parts) >= 3 && len(parts[2]) > 0 {
			value = string(parts[2])
		}
		return []byte(value)
	})
}

// parse parses the content according to the specified format.
func parse(content []byte, format Format) (*Hatchfile, error) {
	content = ExpandEnvVars(content)

	var raw rawHatchfile

	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(content, &raw); err != nil {
			return nil, errors.Annotate(err, "YAML parse error")
		}
	case FormatTOML:
		if err := toml.Unmarshal(content, &raw); err != nil {
			return nil, errors.Annotate(err, "TOML parse error")
		}
	case FormatJSON:
		if err := json.Unmarshal(content, &raw); err != nil {
			return nil, errors.Annotate(err, "JSON parse error")
		}
	default:
		return nil, errors.NotValidf("file format %s", format)
	}

	endpoints, err := parseEndpoints(raw.Endpoints)
	if err != nil {
		return nil, errors.Trace(err)
	}

	return &Hatchfile{
		Version:          raw.Version,
		PackageName:      raw.PackageName,
		RootDir:          raw.RootDir,
		Endpoints:        endpoints,
		IgnoreDelta:      raw.IgnoreDelta,
		LockTimeout:      raw.LockTimeout,
		HookTimeout:      raw.HookTimeout,
		AwareExecutables: raw.AwareExecutables,
		LogLevel:         raw.LogLevel,
		MetricsFile:      raw.MetricsFile,
	}, nil
}
