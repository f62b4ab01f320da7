// Package update checks for, downloads and applies application updates.
//
// A Manager runs the pipeline CheckForUpdate, DownloadReleases and
// ApplyReleases against one install root, holding the root's cross-process
// lock for the duration of each step.
package update

import (
	"context"
	"io"
	"time"

	"github.com/adamancini/hatch/internal/release"
)

// UpdateInfo describes what must be applied to bring an install root up to
// date. It is computed per check and never persisted.
type UpdateInfo struct {
	// CurrentlyInstalledVersion is the highest local full release, nil on first run.
	CurrentlyInstalledVersion *release.Entry
	// ReleasesToApply is ascending and either all deltas or a single full
	// release. It is empty iff the root is up to date.
	ReleasesToApply []release.Entry
	// FutureReleaseEntry is the highest entry in ReleasesToApply, or the
	// current release when there is nothing to apply.
	FutureReleaseEntry *release.Entry
	IsDelta            bool
	PackageDirectory   string

	// FreshInstall asks the deployer to run install hooks even when nothing
	// needs applying.
	FreshInstall bool

	FetchedAt time.Time
	StagingID string
}

// UpToDate reports whether there is nothing to apply.
func (u *UpdateInfo) UpToDate() bool {
	return len(u.ReleasesToApply) == 0
}

// ProgressFunc receives overall progress as a percentage in [0, 100]. Values
// never decrease within one operation.
type ProgressFunc func(percent int)

// ManifestQuery is sent along with a remote manifest request.
type ManifestQuery struct {
	StagingID    string
	LocalVersion string
	Arch         string
}

// Source is where releases come from: an HTTP(S) origin or a local directory.
type Source interface {
	// FetchManifest returns the raw text of the remote release manifest.
	FetchManifest(ctx context.Context, q ManifestQuery) (string, error)
	// Open returns the artifact for entry and its length, or -1 if unknown.
	Open(ctx context.Context, entry release.Entry) (io.ReadCloser, int64, error)
	// String returns the endpoint the source reads from.
	String() string
}
