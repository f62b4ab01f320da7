package deploy

import (
	"context"
	"os"

	"github.com/juju/errors"

	"github.com/adamancini/hatch/internal/release"
	"github.com/adamancini/hatch/internal/types"
)

// Uninstall notifies the current version, removes its shortcuts and deletes
// the install root. Version directories that cannot be deleted are marked
// dead and the removal error is returned.
func (d *Deployer) Uninstall(ctx context.Context, current *release.Entry) (*Result, error) {
	result := &Result{}
	if current != nil {
		appDir := d.layout.AppDir(current.Version)
		result.InstalledPath = appDir
		result.Version = current.Version
		d.runHooks(ctx, result, appDir, types.EventUninstall, current.Version)
		err := d.integration.RemoveShortcuts(appDir)
		result.record("shortcut", appDir, "remove", err)
		d.bestEffort("shortcut removal", err)
	}

	if err := os.RemoveAll(d.layout.Root); err != nil {
		dirs, _ := d.layout.AppDirs()
		for _, dir := range dirs {
			if markErr := MarkDead(dir.Path); markErr == nil {
				result.record("version", dir.Path, "mark-dead", nil)
			}
		}
		return result, errors.Annotatef(err, "removing %s", d.layout.Root)
	}
	d.logger.Infof("removed %s", d.layout.Root)
	return result, nil
}

// InstalledVersions lists the version directories of the install root.
func (d *Deployer) InstalledVersions() ([]AppDirInfo, error) {
	return d.layout.AppDirs()
}
