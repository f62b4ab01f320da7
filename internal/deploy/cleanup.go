package deploy

import (
	"context"

	"github.com/juju/errors"

	"github.com/adamancini/hatch/internal/types"
)

// CleanupResult contains information about what a cleanup pass did.
type CleanupResult struct {
	Deleted []string `json:"deleted,omitempty" yaml:"deleted,omitempty"`
	Marked  []string `json:"marked,omitempty" yaml:"marked,omitempty"`
	Skipped []string `json:"skipped,omitempty" yaml:"skipped,omitempty"`
}

// CleanDeadVersions removes every version directory except keep. Directories
// that still host a running process are skipped, directories already marked
// dead are left alone, and directories that cannot be deleted are marked dead.
func (d *Deployer) CleanDeadVersions(ctx context.Context, keep ...string) (*CleanupResult, error) {
	dirs, err := d.layout.AppDirs()
	if err != nil {
		return nil, errors.Trace(err)
	}
	kept := make(map[string]bool, len(keep))
	for _, k := range keep {
		kept[k] = true
	}

	var candidates []AppDirInfo
	for _, dir := range dirs {
		if kept[dir.Path] || dir.Dead {
			continue
		}
		candidates = append(candidates, dir)
	}
	result := &CleanupResult{}
	if len(candidates) == 0 {
		return result, nil
	}

	for _, dir := range candidates {
		exes, err := d.integration.AwareExecutables(dir.Path)
		if err != nil {
			d.bestEffort("obsolete hooks", err)
			continue
		}
		for _, exe := range exes {
			d.bestEffort("obsolete hook", d.notify(ctx, exe, types.EventObsolete, dir.Version))
		}
	}

	running, err := d.processes.RunningExecutables(ctx)
	if err != nil {
		// Without a process list nothing is provably safe to delete.
		for _, dir := range candidates {
			result.Skipped = append(result.Skipped, dir.Path)
		}
		return result, errors.Annotate(err, "cleanup skipped")
	}

	for _, dir := range candidates {
		if anyUnder(running, dir.Path) {
			d.logger.Infof("keeping %s, a process is still running from it", dir.Path)
			result.Skipped = append(result.Skipped, dir.Path)
			continue
		}
		if err := d.removeAll(dir.Path); err != nil {
			d.logger.Warningf("cannot delete %s, marking it dead: %v", dir.Path, err)
			if markErr := MarkDead(dir.Path); markErr != nil {
				d.bestEffort("dead marker", markErr)
			}
			result.Marked = append(result.Marked, dir.Path)
			continue
		}
		result.Deleted = append(result.Deleted, dir.Path)
	}
	return result, nil
}

func (d *Deployer) cleanDeadVersions(ctx context.Context, result *Result, keep []string) {
	cleanup, err := d.CleanDeadVersions(ctx, keep...)
	if cleanup != nil {
		for _, p := range cleanup.Deleted {
			result.record("version", p, "delete", nil)
		}
		for _, p := range cleanup.Marked {
			result.record("version", p, "mark-dead", nil)
		}
		for _, p := range cleanup.Skipped {
			result.record("version", p, "skip", nil)
		}
	}
	if err != nil {
		result.record("cleanup", d.layout.Root, "clean", err)
		d.bestEffort("cleanup", err)
	}
}
