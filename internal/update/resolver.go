package update

import (
	"sort"

	"github.com/juju/errors"
	"github.com/juju/loggo"

	"github.com/adamancini/hatch/internal/release"
	"github.com/adamancini/hatch/internal/updateerr"
)

// DetermineUpdateInfo decides what has to be applied to move from the local
// releases to the newest remote release: nothing, one full package, or a
// chain of deltas. A delta chain is chosen only when it leads without gaps to
// the newest remote version and its declared size is smaller than the newest
// full package.
func DetermineUpdateInfo(local, remote []release.Entry, ignoreDelta bool, packagesDir string, logger loggo.Logger) (*UpdateInfo, error) {
	if len(remote) == 0 {
		return nil, errors.Annotate(updateerr.ErrCorruptRemoteManifest, "no remote releases")
	}
	latestFull := release.CurrentFull(remote)
	if latestFull == nil {
		return nil, errors.Trace(updateerr.ErrNoFullReleaseAvailable)
	}

	current := release.CurrentFull(local)
	info := &UpdateInfo{
		CurrentlyInstalledVersion: current,
		PackageDirectory:          packagesDir,
	}

	if current == nil {
		logger.Infof("no local release, installing %s", latestFull.Filename)
		info.ReleasesToApply = []release.Entry{*latestFull}
		return finish(info)
	}

	target := release.Latest(remote)
	if !target.Version.IsGreaterThan(current.Version) {
		if current.Version.IsGreaterThan(target.Version) {
			logger.Warningf("local version %s is newer than remote %s, nothing to do", current.Version, target.Version)
		} else {
			logger.Debugf("already at %s", current.Version)
		}
		return finish(info)
	}

	if !ignoreDelta {
		if chain := deltaChain(current.Version, target.Version, remote); len(chain) > 0 {
			size := chainSize(chain)
			if size < latestFull.Filesize {
				logger.Infof("applying %d deltas (%d bytes) instead of %s (%d bytes)",
					len(chain), size, latestFull.Filename, latestFull.Filesize)
				info.ReleasesToApply = chain
				return finish(info)
			}
			logger.Debugf("delta chain of %d bytes is not smaller than %s", size, latestFull.Filename)
		}
	}

	if latestFull.Version.IsGreaterThan(current.Version) {
		info.ReleasesToApply = []release.Entry{*latestFull}
		return finish(info)
	}
	logger.Warningf("no usable path from %s to %s: delta chain incomplete and no newer full release",
		current.Version, target.Version)
	return finish(info)
}

// deltaChain returns the remote deltas that lead from current to target, in
// ascending order, or nil when some version in between has no delta.
func deltaChain(current, target release.Version, remote []release.Entry) []release.Entry {
	versions := make(map[release.Version]bool)
	deltas := make(map[release.Version]release.Entry)
	for _, e := range remote {
		if !e.Version.IsGreaterThan(current) || e.Version.IsGreaterThan(target) {
			continue
		}
		versions[e.Version] = true
		if !e.IsDelta {
			continue
		}
		if _, dup := deltas[e.Version]; dup {
			return nil
		}
		deltas[e.Version] = e
	}
	if _, ok := deltas[target]; !ok {
		return nil
	}

	chain := make([]release.Entry, 0, len(versions))
	for v := range versions {
		d, ok := deltas[v]
		if !ok {
			return nil
		}
		chain = append(chain, d)
	}
	sort.Slice(chain, func(i, j int) bool {
		return chain[i].Version.IsLessThan(chain[j].Version)
	})
	return chain
}

func chainSize(chain []release.Entry) int64 {
	var total int64
	for _, e := range chain {
		total += e.Filesize
	}
	return total
}

func finish(info *UpdateInfo) (*UpdateInfo, error) {
	if err := checkReleaseKinds(info.ReleasesToApply); err != nil {
		return nil, errors.Trace(err)
	}
	info.IsDelta = len(info.ReleasesToApply) > 0 && info.ReleasesToApply[0].IsDelta
	if n := len(info.ReleasesToApply); n > 0 {
		future := info.ReleasesToApply[n-1]
		info.FutureReleaseEntry = &future
	} else {
		info.FutureReleaseEntry = info.CurrentlyInstalledVersion
	}
	return info, nil
}

// checkReleaseKinds enforces that a release set is either all deltas or a
// single full release.
func checkReleaseKinds(entries []release.Entry) error {
	if len(entries) <= 1 {
		return nil
	}
	for _, e := range entries {
		if !e.IsDelta {
			return errors.Annotatef(updateerr.ErrMixedReleaseKinds, "%s in a set of %d", e.Filename, len(entries))
		}
	}
	return nil
}
