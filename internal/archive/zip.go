// Package archive packs and unpacks release packages, which are zip files
// holding a lib/ content root and sibling metadata files.
package archive

import (
	"archive/zip"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/juju/errors"
)

// Unpack extracts the zip at src into destDir, creating it if needed.
// Entries that would escape destDir are rejected.
func Unpack(src, destDir string) error {
	zr, err := zip.OpenReader(src)
	if err != nil {
		return errors.Annotatef(err, "opening %s", src)
	}
	defer func() { _ = zr.Close() }()

	root, err := filepath.Abs(destDir)
	if err != nil {
		return errors.Trace(err)
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return errors.Annotatef(err, "creating %s", root)
	}

	for _, f := range zr.File {
		target, err := safeJoin(root, f.Name)
		if err != nil {
			return errors.Annotatef(err, "unpacking %s", src)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return errors.Trace(err)
			}
			continue
		}
		if err := extractFile(f, target); err != nil {
			return errors.Annotatef(err, "extracting %s from %s", f.Name, src)
		}
	}
	return nil
}

func safeJoin(root, name string) (string, error) {
	name = strings.ReplaceAll(name, `\`, "/")
	if path.IsAbs(name) {
		return "", errors.NotValidf("absolute archive path %q", name)
	}
	target := filepath.Join(root, filepath.FromSlash(name))
	if target != root && !strings.HasPrefix(target, root+string(filepath.Separator)) {
		return "", errors.NotValidf("archive path %q", name)
	}
	return target, nil
}

func extractFile(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return errors.Trace(err)
	}
	rc, err := f.Open()
	if err != nil {
		return errors.Trace(err)
	}
	defer func() { _ = rc.Close() }()

	mode := f.Mode().Perm()
	if mode == 0 {
		mode = 0644
	}
	//nolint:gosec // G304: target is confined to the destination directory
	out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode)
	if err != nil {
		return errors.Trace(err)
	}
	//nolint:gosec // G110: release packages are verified by checksum before unpacking
	if _, err := io.Copy(out, rc); err != nil {
		_ = out.Close()
		return errors.Trace(err)
	}
	return errors.Trace(out.Close())
}

// Pack writes every regular file under srcDir into a zip at dest. Entries are
// stored in lexical order with slash-separated paths. The archive is written
// to a temporary file next to dest and renamed into place.
func Pack(srcDir, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return errors.Trace(err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*.tmp")
	if err != nil {
		return errors.Trace(err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := writeZip(tmp, srcDir); err != nil {
		_ = tmp.Close()
		return errors.Annotatef(err, "packing %s", srcDir)
	}
	if err := tmp.Close(); err != nil {
		return errors.Trace(err)
	}
	return errors.Annotatef(os.Rename(tmpName, dest), "writing %s", dest)
}

func writeZip(w io.Writer, srcDir string) error {
	zw := zip.NewWriter(w)
	err := filepath.WalkDir(srcDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(srcDir, p)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		hdr, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		hdr.Method = zip.Deflate
		fw, err := zw.CreateHeader(hdr)
		if err != nil {
			return err
		}
		//nolint:gosec // G304: walking a directory we own
		f, err := os.Open(p)
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()
		_, err = io.Copy(fw, f)
		return err
	})
	if err != nil {
		_ = zw.Close()
		return errors.Trace(err)
	}
	return errors.Trace(zw.Close())
}

// Files returns the slash-separated paths of the regular files under dir, in
// lexical order.
func Files(dir string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	return out, errors.Trace(err)
}

// CopyFile copies the regular file at src to dst, creating parent directories
// and keeping the permission bits.
func CopyFile(src, dst string) error {
	//nolint:gosec // G304: caller-controlled paths
	in, err := os.Open(src)
	if err != nil {
		return errors.Trace(err)
	}
	defer func() { _ = in.Close() }()

	info, err := in.Stat()
	if err != nil {
		return errors.Trace(err)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return errors.Trace(err)
	}
	//nolint:gosec // G304: caller-controlled paths
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode().Perm())
	if err != nil {
		return errors.Trace(err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return errors.Trace(err)
	}
	return errors.Trace(out.Close())
}
