package update

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/juju/errors"
	"github.com/juju/loggo"

	"github.com/adamancini/hatch/internal/release"
	"github.com/adamancini/hatch/internal/updateerr"
)

// Downloader fetches release artifacts into a packages directory and verifies
// each against its manifest entry.
type Downloader struct {
	logger loggo.Logger
}

// NewDownloader creates a new Downloader.
func NewDownloader(logger loggo.Logger) *Downloader {
	return &Downloader{logger: logger}
}

// Download fetches entries from src into packagesDir, one at a time. An
// artifact already present and valid is not fetched again. The first failure
// aborts the batch; a file that fails verification is removed.
func (d *Downloader) Download(ctx context.Context, src Source, entries []release.Entry, packagesDir string, progress ProgressFunc) error {
	if err := os.MkdirAll(packagesDir, 0755); err != nil {
		return errors.Annotatef(err, "creating %s", packagesDir)
	}
	tracker := newBatchProgress(entries, progress)

	for i, entry := range entries {
		dst := filepath.Join(packagesDir, entry.Filename)
		if err := VerifyFile(dst, entry); err == nil {
			d.logger.Debugf("%s already downloaded", entry.Filename)
			tracker.done(i)
			continue
		}

		d.logger.Infof("downloading %s from %s", entry.Filename, src)
		if err := d.fetch(ctx, src, entry, dst, func(f float64) { tracker.update(i, f) }); err != nil {
			return errors.Trace(err)
		}
		tracker.done(i)
	}
	return nil
}

func (d *Downloader) fetch(ctx context.Context, src Source, entry release.Entry, dst string, notify func(float64)) error {
	rc, length, err := src.Open(ctx, entry)
	if err != nil {
		return errors.Trace(err)
	}
	defer func() { _ = rc.Close() }()

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+entry.Filename+".*.download")
	if err != nil {
		return errors.Trace(err)
	}
	tmpName := tmp.Name()
	keep := false
	defer func() {
		if !keep {
			_ = os.Remove(tmpName)
		}
	}()

	want := entry.Filesize
	if want <= 0 {
		want = length
	}
	r := &progressReader{r: rc, want: want, notify: notify}
	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		return errors.Annotatef(err, "downloading %s", entry.Filename)
	}
	if err := tmp.Close(); err != nil {
		return errors.Trace(err)
	}

	if err := VerifyFile(tmpName, entry); err != nil {
		return errors.Trace(err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		return errors.Annotatef(err, "saving %s", entry.Filename)
	}
	keep = true
	return nil
}

// VerifyFile checks the length and SHA1 of the file at path against entry.
func VerifyFile(path string, entry release.Entry) error {
	info, err := os.Stat(path)
	if err != nil {
		return errors.Trace(err)
	}
	if info.Size() != entry.Filesize {
		return &updateerr.ChecksumMismatchError{
			Filename:     entry.Filename,
			ExpectedSize: entry.Filesize,
			ActualSize:   info.Size(),
		}
	}
	sum, size, err := release.FileSHA1(path)
	if err != nil {
		return errors.Trace(err)
	}
	if !strings.EqualFold(sum, entry.SHA1) {
		return &updateerr.ChecksumMismatchError{
			Filename:     entry.Filename,
			Expected:     entry.SHA1,
			Actual:       sum,
			ExpectedSize: entry.Filesize,
			ActualSize:   size,
		}
	}
	return nil
}
