// Package updateerr defines the error taxonomy of the update pipeline and the
// propagation class of each error.
//
// Integrity and resolution errors are Fatal and abort the enclosing operation.
// Transport errors are Retryable. Failures of post-install work (manifest
// rewrite, hooks, cleanup) are BestEffortFailed and are logged, never returned.
package updateerr

import (
	"fmt"
	"strings"

	"github.com/juju/errors"
)

const (
	// ErrCorruptManifest is returned when a manifest has malformed lines or no entries.
	ErrCorruptManifest = errors.ConstError("corrupt release manifest")
	// ErrCorruptRemoteManifest is returned when the remote catalog is empty or unparseable.
	ErrCorruptRemoteManifest = errors.ConstError("corrupt remote release manifest")
	// ErrNoFullReleaseAvailable is returned when the remote catalog lists only deltas.
	ErrNoFullReleaseAvailable = errors.ConstError("no full release available")
	// ErrMixedReleaseKinds is returned when a release set mixes delta and full entries.
	ErrMixedReleaseKinds = errors.ConstError("release set mixes delta and full entries")
	// ErrTransientTransport marks a network failure that may succeed on retry.
	ErrTransientTransport = errors.ConstError("transient transport failure")
)

// Class is the propagation class of an error.
type Class int

const (
	// Fatal errors abort the enclosing operation and are surfaced to the caller.
	Fatal Class = iota
	// Retryable errors may succeed if the same operation is attempted again.
	Retryable
	// BestEffortFailed errors come from work that runs after the install is durable.
	BestEffortFailed
)

// String returns the string representation of a Class.
func (c Class) String() string {
	switch c {
	case Retryable:
		return "retryable"
	case BestEffortFailed:
		return "best-effort"
	default:
		return "fatal"
	}
}

// ChecksumMismatchError reports a downloaded artifact whose size or SHA1 differs
// from its manifest entry.
type ChecksumMismatchError struct {
	Filename     string
	Expected     string
	Actual       string
	ExpectedSize int64
	ActualSize   int64
}

func (e *ChecksumMismatchError) Error() string {
	if e.ExpectedSize != e.ActualSize {
		return fmt.Sprintf("checksum mismatch for %s: expected %d bytes, got %d", e.Filename, e.ExpectedSize, e.ActualSize)
	}
	return fmt.Sprintf("checksum mismatch for %s: expected sha1 %s, got %s", e.Filename, e.Expected, e.Actual)
}

// ChecksumFailedError reports a file produced by applying a patch that does not
// match its checksum sidecar.
type ChecksumFailedError struct {
	Filename string
}

func (e *ChecksumFailedError) Error() string {
	return fmt.Sprintf("patched file %s failed checksum verification", e.Filename)
}

// EndpointFailure records why one endpoint failed.
type EndpointFailure struct {
	Endpoint string
	Err      error
}

// AllEndpointsFailedError aggregates the per-endpoint causes when no endpoint succeeded.
type AllEndpointsFailedError struct {
	Failures []EndpointFailure
}

// Endpoints returns the failed endpoints in the order they were tried.
func (e *AllEndpointsFailedError) Endpoints() []string {
	out := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		out = append(out, f.Endpoint)
	}
	return out
}

func (e *AllEndpointsFailedError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s: %v", f.Endpoint, f.Err))
	}
	return fmt.Sprintf("all %d endpoints failed: %s", len(e.Failures), strings.Join(parts, "; "))
}

// Unwrap exposes every per-endpoint cause to errors.Is and errors.As.
func (e *AllEndpointsFailedError) Unwrap() []error {
	out := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		out = append(out, f.Err)
	}
	return out
}

// bestEffortError wraps a failure that must be logged but not propagated.
type bestEffortError struct {
	step string
	err  error
}

func (e *bestEffortError) Error() string {
	return fmt.Sprintf("%s (best effort): %v", e.step, e.err)
}

func (e *bestEffortError) Unwrap() error {
	return e.err
}

// BestEffort marks err as the failure of a best-effort step. A nil err stays nil.
func BestEffort(step string, err error) error {
	if err == nil {
		return nil
	}
	return &bestEffortError{step: step, err: err}
}

// ClassOf walks the error chain and returns the propagation class of err.
func ClassOf(err error) Class {
	var be *bestEffortError
	if errors.As(err, &be) {
		return BestEffortFailed
	}
	if errors.Is(err, ErrTransientTransport) {
		return Retryable
	}
	return Fatal
}

// IsRetryable reports whether err (or its unwrap chain) is a transient transport failure.
func IsRetryable(err error) bool {
	return ClassOf(err) == Retryable
}
