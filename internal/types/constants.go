// Package types provides type-safe constants shared across the hatch packages.
//
// This package centralizes the enumerated types used by the update pipeline,
// replacing magic strings with typed constants that provide validation methods.
//
// SYNC REQUIREMENT: These types must stay in sync with:
//   - internal/config/validate.go (runtime validation)
//   - the on-disk layout documented in internal/deploy/layout.go
package types

import (
	"fmt"
	"strings"
)

// On-disk layout names below an install root.
const (
	// PackagesDirName holds downloaded artifacts and the local manifest.
	PackagesDirName = "packages"
	// ManifestFileName is the release manifest inside a packages directory or endpoint.
	ManifestFileName = "RELEASES"
	// StagingIDFileName holds the per-installation staged rollout identifier.
	StagingIDFileName = ".stagingId"
	// DeadMarkerFileName marks a version directory as no longer managed.
	DeadMarkerFileName = ".dead"
	// AppDirPrefix prefixes every version directory, e.g. "app-1.2.0".
	AppDirPrefix = "app-"
	// ContentRoot is the patchable directory inside a package archive.
	ContentRoot = "lib"
	// PackageExt is the extension of every release artifact.
	PackageExt = ".zip"
)

// ReleaseKind represents the role of an artifact in the catalog (full or delta).
type ReleaseKind string

const (
	// ReleaseKindFull indicates a self-contained package.
	ReleaseKindFull ReleaseKind = "full"
	// ReleaseKindDelta indicates a package of binary diffs against the previous version.
	ReleaseKindDelta ReleaseKind = "delta"
)

// Validate checks if the ReleaseKind is a valid value.
func (k ReleaseKind) Validate() error {
	switch k {
	case ReleaseKindFull, ReleaseKindDelta:
		return nil
	case "":
		return fmt.Errorf("release kind is required")
	default:
		return fmt.Errorf("invalid release kind '%s' (must be full or delta)", k)
	}
}

// String returns the string representation of the ReleaseKind.
func (k ReleaseKind) String() string {
	return string(k)
}

// ParseReleaseKind parses a string into a ReleaseKind.
// Returns an error if the string is not a valid release kind.
func ParseReleaseKind(s string) (ReleaseKind, error) {
	rk := ReleaseKind(strings.ToLower(s))
	if err := rk.Validate(); err != nil {
		return "", err
	}
	return rk, nil
}

// LifecycleEvent is passed to aware executables when the install tree changes.
type LifecycleEvent string

const (
	// EventInstall is sent once after the first install of an application.
	EventInstall LifecycleEvent = "install"
	// EventUpdated is sent to the new version after an update.
	EventUpdated LifecycleEvent = "updated"
	// EventObsolete is sent to a version directory about to be removed.
	EventObsolete LifecycleEvent = "obsolete"
	// EventUninstall is sent to the current version before a full uninstall.
	EventUninstall LifecycleEvent = "uninstall"
)

// String returns the string representation of the LifecycleEvent.
func (e LifecycleEvent) String() string {
	return string(e)
}

// Flag returns the command line flag an aware executable receives, e.g. "--hatch-install".
func (e LifecycleEvent) Flag() string {
	return "--hatch-" + string(e)
}

// Transport represents how an endpoint is reached (http or local).
type Transport string

const (
	// TransportHTTP indicates an http:// or https:// endpoint.
	TransportHTTP Transport = "http"
	// TransportLocal indicates a local filesystem directory.
	TransportLocal Transport = "local"
)

// String returns the string representation of the Transport.
func (t Transport) String() string {
	return string(t)
}

// IsHTTP returns true if the transport is HTTP.
func (t Transport) IsHTTP() bool {
	return t == TransportHTTP
}

// DetectTransport selects the transport purely from the endpoint syntax.
// Anything that is not an http(s) URL is treated as a filesystem path.
func DetectTransport(endpoint string) Transport {
	lower := strings.ToLower(strings.TrimSpace(endpoint))
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return TransportHTTP
	}
	return TransportLocal
}
