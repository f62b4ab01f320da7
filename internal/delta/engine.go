// Package delta reconstructs full release packages from delta packages and
// builds delta packages from pairs of full packages.
//
// A delta package mirrors the lib/ content root of the version it produces.
// For every file that changed, it carries a patch (X.bsdiff, or X.diff for the
// platform patcher) and a checksum sidecar X.shasum describing the patched
// result. An empty patch means the file is unchanged. Files without a sidecar
// are new in this version and are copied verbatim. Base files the delta does
// not mention were removed in this version.
package delta

import (
	"bufio"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/juju/errors"
	"github.com/juju/loggo"

	"github.com/adamancini/hatch/internal/archive"
	"github.com/adamancini/hatch/internal/release"
	"github.com/adamancini/hatch/internal/types"
	"github.com/adamancini/hatch/internal/updateerr"
)

const (
	bsdiffExt   = ".bsdiff"
	diffExt     = ".diff"
	checksumExt = ".shasum"
)

// Engine applies and reduces delta packages.
type Engine struct {
	logger   loggo.Logger
	general  Patcher
	platform Patcher
	// tempDir holds the working directories; empty means os.TempDir.
	tempDir string
}

// NewEngine returns an Engine using the bsdiff patcher and, where available,
// the platform patcher. Working directories are created under tempDir.
func NewEngine(logger loggo.Logger, tempDir string) *Engine {
	return &Engine{
		logger:   logger,
		general:  BSDiff(),
		platform: Platform(),
		tempDir:  tempDir,
	}
}

// ApplyDelta applies the delta package at deltaPkg to the full package at
// basePkg and writes the reconstructed full package to output. Nothing is
// written to output unless every patched file verifies.
func (e *Engine) ApplyDelta(basePkg, deltaPkg, output string) error {
	work, err := os.MkdirTemp(e.tempDir, "hatch-delta-")
	if err != nil {
		return errors.Trace(err)
	}
	defer func() { _ = os.RemoveAll(work) }()

	baseDir := filepath.Join(work, "base")
	deltaDir := filepath.Join(work, "delta")
	if err := archive.Unpack(basePkg, baseDir); err != nil {
		return errors.Trace(err)
	}
	if err := archive.Unpack(deltaPkg, deltaDir); err != nil {
		return errors.Trace(err)
	}

	deltaFiles, err := archive.Files(deltaDir)
	if err != nil {
		return errors.Trace(err)
	}
	inDelta := make(map[string]bool, len(deltaFiles))
	for _, f := range deltaFiles {
		inDelta[f] = true
	}

	visited := make(map[string]bool)
	for _, rel := range deltaFiles {
		if !inContentRoot(rel) {
			continue
		}
		target, kind := classify(rel, inDelta)
		switch kind {
		case fileSidecar, fileSkipped:
			continue
		case fileNew:
			visited[rel] = true
			if err := archive.CopyFile(local(deltaDir, rel), local(baseDir, rel)); err != nil {
				return errors.Annotatef(err, "adding %s", rel)
			}
		default:
			visited[target] = true
			if err := e.patchFile(baseDir, deltaDir, target, rel, kind == filePlatformPatch, inDelta); err != nil {
				return errors.Trace(err)
			}
		}
	}

	baseFiles, err := archive.Files(baseDir)
	if err != nil {
		return errors.Trace(err)
	}
	for _, rel := range baseFiles {
		if inContentRoot(rel) && !visited[rel] {
			e.logger.Debugf("removing %s, dropped in %s", rel, filepath.Base(deltaPkg))
			if err := os.Remove(local(baseDir, rel)); err != nil {
				return errors.Trace(err)
			}
		}
	}

	for _, rel := range deltaFiles {
		if inContentRoot(rel) {
			continue
		}
		if err := archive.CopyFile(local(deltaDir, rel), local(baseDir, rel)); err != nil {
			return errors.Annotatef(err, "copying %s", rel)
		}
	}

	return errors.Trace(archive.Pack(baseDir, output))
}

type fileKind int

const (
	fileNew fileKind = iota
	fileSidecar
	fileSkipped
	fileBSDiffPatch
	filePlatformPatch
)

// classify decides how a content-root file of a delta package is applied and
// which base file it targets. Patch files only count as patches when they have
// a checksum sidecar.
func classify(rel string, inDelta map[string]bool) (string, fileKind) {
	switch {
	case strings.HasSuffix(rel, checksumExt):
		return "", fileSidecar
	case strings.HasSuffix(rel, diffExt):
		target := strings.TrimSuffix(rel, diffExt)
		if inDelta[target+checksumExt] {
			return target, filePlatformPatch
		}
	case strings.HasSuffix(rel, bsdiffExt):
		target := strings.TrimSuffix(rel, bsdiffExt)
		if inDelta[target+checksumExt] {
			// The .diff for the same target is preferred; this one is its fallback.
			if inDelta[target+diffExt] {
				return target, fileSkipped
			}
			return target, fileBSDiffPatch
		}
	}
	return rel, fileNew
}

func (e *Engine) patchFile(baseDir, deltaDir, target, patchRel string, preferPlatform bool, inDelta map[string]bool) error {
	patchPath := local(deltaDir, patchRel)
	info, err := os.Stat(patchPath)
	if err != nil {
		return errors.Trace(err)
	}
	basePath := local(baseDir, target)
	if info.Size() == 0 {
		if _, err := os.Stat(basePath); err != nil {
			return errors.Annotatef(err, "unchanged file %s missing from base", target)
		}
		return nil
	}

	expectedSum, expectedSize, err := readChecksum(local(deltaDir, target+checksumExt))
	if err != nil {
		return errors.Annotatef(err, "reading checksum for %s", target)
	}

	outPath := basePath + ".patched"
	defer func() { _ = os.Remove(outPath) }()

	if preferPlatform {
		err = errors.NotSupportedf("platform delta patcher")
		if e.platform != nil {
			err = applyPatch(e.platform, basePath, patchPath, outPath)
		}
		if err == nil {
			err = verify(outPath, target, expectedSum, expectedSize)
		}
		if err != nil {
			fallback := patchPath
			if alt := target + bsdiffExt; inDelta[alt] {
				fallback = local(deltaDir, alt)
			}
			e.logger.Debugf("platform patch for %s failed (%v), falling back to bsdiff", target, err)
			err = e.applyGeneral(basePath, fallback, outPath, target, expectedSum, expectedSize)
		}
	} else {
		err = e.applyGeneral(basePath, patchPath, outPath, target, expectedSum, expectedSize)
	}
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(os.Rename(outPath, basePath))
}

func (e *Engine) applyGeneral(basePath, patchPath, outPath, target, sum string, size int64) error {
	if err := applyPatch(e.general, basePath, patchPath, outPath); err != nil {
		return errors.Annotatef(err, "patching %s", target)
	}
	return verify(outPath, target, sum, size)
}

func applyPatch(p Patcher, basePath, patchPath, outPath string) error {
	//nolint:gosec // G304: paths inside our working directory
	old, err := os.Open(basePath)
	if err != nil {
		return errors.Trace(err)
	}
	defer func() { _ = old.Close() }()
	//nolint:gosec // G304: paths inside our working directory
	patch, err := os.Open(patchPath)
	if err != nil {
		return errors.Trace(err)
	}
	defer func() { _ = patch.Close() }()
	out, err := os.Create(outPath)
	if err != nil {
		return errors.Trace(err)
	}
	if err := p.Patch(old, out, patch); err != nil {
		_ = out.Close()
		return errors.Trace(err)
	}
	return errors.Trace(out.Close())
}

func verify(path, target, sum string, size int64) error {
	actual, actualSize, err := release.FileSHA1(path)
	if err != nil {
		return errors.Trace(err)
	}
	if actualSize != size || !strings.EqualFold(actual, sum) {
		return &updateerr.ChecksumFailedError{Filename: target}
	}
	return nil
}

// readChecksum parses a sidecar line "<sha1> <name> <size>".
func readChecksum(p string) (string, int64, error) {
	//nolint:gosec // G304: path inside our working directory
	f, err := os.Open(p)
	if err != nil {
		return "", 0, errors.Trace(err)
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return "", 0, errors.NotValidf("empty checksum file %s", filepath.Base(p))
	}
	fields := strings.Fields(scanner.Text())
	if len(fields) != 3 {
		return "", 0, errors.NotValidf("checksum line %q", scanner.Text())
	}
	size, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil || size < 0 {
		return "", 0, errors.NotValidf("checksum size %q", fields[2])
	}
	return fields[0], size, nil
}

func writeChecksum(p, name string, sum string, size int64) error {
	line := sum + " " + name + " " + strconv.FormatInt(size, 10) + "\n"
	return errors.Trace(os.WriteFile(p, []byte(line), 0644))
}

// ReduceChain collapses deltas, applied in order on top of basePkg, into a
// single full package in packagesDir and returns its path. An empty chain
// returns "" and nil. Intermediate packages are removed.
func (e *Engine) ReduceChain(basePkg string, deltas []release.Entry, packagesDir string) (string, error) {
	if len(deltas) == 0 {
		return "", nil
	}
	for _, d := range deltas {
		if !d.IsDelta {
			return "", errors.Annotatef(updateerr.ErrMixedReleaseKinds, "reducing %s", d.Filename)
		}
	}
	return e.reduce(basePkg, deltas, packagesDir, false)
}

func (e *Engine) reduce(basePkg string, deltas []release.Entry, packagesDir string, intermediate bool) (string, error) {
	d := deltas[0]
	name := release.EntryFilename(d.PackageName, d.Version, types.ReleaseKindFull)
	output := filepath.Join(packagesDir, name)
	if len(deltas) > 1 {
		output = filepath.Join(packagesDir, "."+name+".partial")
	}

	e.logger.Infof("applying %s", d.Filename)
	err := e.ApplyDelta(basePkg, filepath.Join(packagesDir, d.Filename), output)
	if intermediate {
		_ = os.Remove(basePkg)
	}
	if err != nil {
		return "", errors.Annotatef(err, "applying %s", d.Filename)
	}
	if len(deltas) == 1 {
		return output, nil
	}
	return e.reduce(output, deltas[1:], packagesDir, true)
}

func inContentRoot(rel string) bool {
	return strings.HasPrefix(rel, types.ContentRoot+"/")
}

func local(root, rel string) string {
	return filepath.Join(root, filepath.FromSlash(path.Clean(rel)))
}
