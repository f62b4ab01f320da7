package deploy

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/juju/errors"

	"github.com/adamancini/hatch/internal/release"
	"github.com/adamancini/hatch/internal/types"
)

// Layout is the directory tree of one install root:
//
//	root/packages/          downloaded artifacts, RELEASES, .stagingId
//	root/app-<version>/     one extracted install per version
type Layout struct {
	Root string
}

// PackagesDir returns the directory holding artifacts and the local manifest.
func (l Layout) PackagesDir() string {
	return filepath.Join(l.Root, types.PackagesDirName)
}

// ManifestPath returns the path of the local manifest.
func (l Layout) ManifestPath() string {
	return filepath.Join(l.PackagesDir(), types.ManifestFileName)
}

// StagingIDPath returns the path of the staging id file.
func (l Layout) StagingIDPath() string {
	return filepath.Join(l.PackagesDir(), types.StagingIDFileName)
}

// AppDir returns the install directory for v.
func (l Layout) AppDir(v release.Version) string {
	return filepath.Join(l.Root, types.AppDirPrefix+v.String())
}

// AppDirInfo describes one version directory.
type AppDirInfo struct {
	Path    string          `json:"path" yaml:"path"`
	Version release.Version `json:"-" yaml:"-"`
	Dead    bool            `json:"dead" yaml:"dead"`
}

// AppDirs lists the version directories under the root, oldest first.
// Directories whose suffix is not a version are ignored.
func (l Layout) AppDirs() ([]AppDirInfo, error) {
	entries, err := os.ReadDir(l.Root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Annotatef(err, "reading %s", l.Root)
	}

	var dirs []AppDirInfo
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), types.AppDirPrefix) {
			continue
		}
		v, err := release.ParseVersion(strings.TrimPrefix(e.Name(), types.AppDirPrefix))
		if err != nil {
			continue
		}
		path := filepath.Join(l.Root, e.Name())
		dirs = append(dirs, AppDirInfo{Path: path, Version: v, Dead: IsDead(path)})
	}
	sort.Slice(dirs, func(i, j int) bool {
		return dirs[i].Version.IsLessThan(dirs[j].Version)
	})
	return dirs, nil
}

// IsDead reports whether dir carries the dead marker.
func IsDead(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, types.DeadMarkerFileName))
	return err == nil
}

// MarkDead writes the dead marker into dir.
func MarkDead(dir string) error {
	return errors.Trace(os.WriteFile(filepath.Join(dir, types.DeadMarkerFileName), nil, 0644))
}
