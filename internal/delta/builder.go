package delta

import (
	"bytes"
	"os"
	"path/filepath"

	"github.com/juju/errors"
	"github.com/kr/binarydist"

	"github.com/adamancini/hatch/internal/archive"
	"github.com/adamancini/hatch/internal/release"
)

// CreateDelta writes to output a delta package that turns the full package at
// basePkg into the full package at newPkg.
func (e *Engine) CreateDelta(basePkg, newPkg, output string) error {
	work, err := os.MkdirTemp(e.tempDir, "hatch-mkdelta-")
	if err != nil {
		return errors.Trace(err)
	}
	defer func() { _ = os.RemoveAll(work) }()

	baseDir := filepath.Join(work, "base")
	newDir := filepath.Join(work, "new")
	outDir := filepath.Join(work, "out")
	if err := archive.Unpack(basePkg, baseDir); err != nil {
		return errors.Trace(err)
	}
	if err := archive.Unpack(newPkg, newDir); err != nil {
		return errors.Trace(err)
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return errors.Trace(err)
	}

	newFiles, err := archive.Files(newDir)
	if err != nil {
		return errors.Trace(err)
	}
	var patched, added int
	for _, rel := range newFiles {
		src := local(newDir, rel)
		if !inContentRoot(rel) {
			if err := archive.CopyFile(src, local(outDir, rel)); err != nil {
				return errors.Trace(err)
			}
			continue
		}

		old := local(baseDir, rel)
		if _, err := os.Stat(old); os.IsNotExist(err) {
			added++
			if err := archive.CopyFile(src, local(outDir, rel)); err != nil {
				return errors.Trace(err)
			}
			continue
		}
		patched++
		if err := e.diffFile(old, src, local(outDir, rel)); err != nil {
			return errors.Annotatef(err, "diffing %s", rel)
		}
	}
	e.logger.Infof("delta %s: %d patched, %d added", filepath.Base(output), patched, added)

	return errors.Trace(archive.Pack(outDir, output))
}

// diffFile writes dst.bsdiff and dst.shasum describing how to turn oldPath
// into newPath. Identical files get an empty patch.
func (e *Engine) diffFile(oldPath, newPath, dst string) error {
	//nolint:gosec // G304: paths inside our working directory
	oldData, err := os.ReadFile(oldPath)
	if err != nil {
		return errors.Trace(err)
	}
	//nolint:gosec // G304: paths inside our working directory
	newData, err := os.ReadFile(newPath)
	if err != nil {
		return errors.Trace(err)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return errors.Trace(err)
	}
	var patch bytes.Buffer
	if !bytes.Equal(oldData, newData) {
		if err := binarydist.Diff(bytes.NewReader(oldData), bytes.NewReader(newData), &patch); err != nil {
			return errors.Trace(err)
		}
	}
	if err := os.WriteFile(dst+bsdiffExt, patch.Bytes(), 0644); err != nil {
		return errors.Trace(err)
	}

	sum, size, err := release.FileSHA1(newPath)
	if err != nil {
		return errors.Trace(err)
	}
	return writeChecksum(dst+checksumExt, filepath.Base(dst), sum, size)
}
