// Package config handles Hatchfile parsing and location resolution.
//
// Synced validation rules:
//   - Endpoints: at least one, non-empty, unique; transport detected by
//     types.DetectTransport (validateEndpoints)
//   - Package name: letters, digits, dot, underscore, dash (validatePackageName)
//   - Timeouts: positive Go durations (validateTimeouts)
//   - Log level: a loggo level name (validateLogLevel)
package config

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/juju/loggo"

	"github.com/adamancini/hatch/internal/types"
)

// packageNamePattern matches package names as they appear in artifact file names.
var packageNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// ValidationError represents a Hatchfile validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors aggregates every problem found in one Hatchfile.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, 0, len(e))
	for _, v := range e {
		msgs = append(msgs, v.Error())
	}
	return fmt.Sprintf("validation errors:\n  - %s", strings.Join(msgs, "\n  - "))
}

// Validate checks the Hatchfile for required fields and valid values.
func Validate(h *Hatchfile) error {
	var errs ValidationErrors

	errs = append(errs, validatePackageName(h.PackageName)...)
	errs = append(errs, validateEndpoints(h.Endpoints)...)
	errs = append(errs, validateTimeouts(h)...)
	errs = append(errs, validateLogLevel(h.LogLevel)...)
	errs = append(errs, validateExecutables(h.AwareExecutables)...)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validatePackageName(name string) []ValidationError {
	// The package name is optional; it only scopes tooling commands.
	if name == "" || packageNamePattern.MatchString(name) {
		return nil
	}
	return []ValidationError{{
		Field:   "package_name",
		Message: fmt.Sprintf("invalid package name '%s'", name),
	}}
}

func validateEndpoints(endpoints []string) []ValidationError {
	if len(endpoints) == 0 {
		return []ValidationError{{Field: "endpoints", Message: "at least one endpoint is required"}}
	}

	var errs []ValidationError
	seen := make(map[string]bool, len(endpoints))
	for i, ep := range endpoints {
		field := fmt.Sprintf("endpoints[%d]", i)
		if strings.TrimSpace(ep) == "" {
			errs = append(errs, ValidationError{Field: field, Message: "endpoint cannot be empty"})
			continue
		}
		if seen[ep] {
			errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf("duplicate endpoint '%s'", ep)})
			continue
		}
		seen[ep] = true

		if types.DetectTransport(ep).IsHTTP() {
			if u, err := url.Parse(ep); err != nil || u.Host == "" {
				errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf("invalid URL '%s'", ep)})
			}
		}
	}
	return errs
}

func validateTimeouts(h *Hatchfile) []ValidationError {
	var errs []ValidationError
	if _, err := h.LockTimeoutDuration(); err != nil {
		errs = append(errs, asValidationError("lock_timeout", err))
	}
	if _, err := h.HookTimeoutDuration(); err != nil {
		errs = append(errs, asValidationError("hook_timeout", err))
	}
	return errs
}

func validateLogLevel(level string) []ValidationError {
	if level == "" {
		return nil
	}
	if _, ok := loggo.ParseLevel(level); !ok {
		return []ValidationError{{Field: "log_level", Message: fmt.Sprintf("unknown log level '%s'", level)}}
	}
	return nil
}

func validateExecutables(exes []string) []ValidationError {
	var errs []ValidationError
	for i, exe := range exes {
		field := fmt.Sprintf("aware_executables[%d]", i)
		clean := path.Clean(strings.ReplaceAll(exe, `\`, "/"))
		switch {
		case exe == "":
			errs = append(errs, ValidationError{Field: field, Message: "executable cannot be empty"})
		case path.IsAbs(clean) || hasDrive(clean) || clean == ".." || strings.HasPrefix(clean, "../"):
			errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf("'%s' must be relative to the version directory", exe)})
		}
	}
	return errs
}

func asValidationError(field string, err error) ValidationError {
	if v, ok := err.(ValidationError); ok {
		return v
	}
	return ValidationError{Field: field, Message: err.Error()}
}

func hasDrive(p string) bool {
	return len(p) >= 2 && p[1] == ':'
}
