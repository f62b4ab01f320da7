//go:build windows

package delta

import (
	"io"
	"os"
	"path/filepath"
	"unsafe"

	"github.com/juju/errors"
	"golang.org/x/sys/windows"
)

var (
	modmsdelta      = windows.NewLazySystemDLL("msdelta.dll")
	procApplyDeltaW = modmsdelta.NewProc("ApplyDeltaW")
)

// DELTA_APPLY_FLAG_ALLOW_PA19 lets msdelta read legacy PA19 deltas.
const deltaApplyFlagAllowPA19 = 0x00000001

func platformPatcher() Patcher {
	if err := procApplyDeltaW.Find(); err != nil {
		return nil
	}
	return msdeltaPatcher{}
}

// msdeltaPatcher applies deltas produced by the Windows msdelta API. The API is
// file based, so the inputs are staged in a temporary directory.
type msdeltaPatcher struct{}

func (msdeltaPatcher) Patch(old io.Reader, new io.Writer, patch io.Reader) error {
	dir, err := os.MkdirTemp("", "hatch-msdelta-")
	if err != nil {
		return errors.Trace(err)
	}
	defer func() { _ = os.RemoveAll(dir) }()

	source := filepath.Join(dir, "source")
	deltaFile := filepath.Join(dir, "delta")
	target := filepath.Join(dir, "target")
	if err := writeAll(source, old); err != nil {
		return errors.Trace(err)
	}
	if err := writeAll(deltaFile, patch); err != nil {
		return errors.Trace(err)
	}
	if err := applyDeltaW(source, deltaFile, target); err != nil {
		return errors.Trace(err)
	}

	f, err := os.Open(target)
	if err != nil {
		return errors.Trace(err)
	}
	defer func() { _ = f.Close() }()
	_, err = io.Copy(new, f)
	return errors.Trace(err)
}

func applyDeltaW(source, delta, target string) error {
	s, err := windows.UTF16PtrFromString(source)
	if err != nil {
		return errors.Trace(err)
	}
	d, err := windows.UTF16PtrFromString(delta)
	if err != nil {
		return errors.Trace(err)
	}
	t, err := windows.UTF16PtrFromString(target)
	if err != nil {
		return errors.Trace(err)
	}
	r, _, callErr := procApplyDeltaW.Call(
		uintptr(deltaApplyFlagAllowPA19),
		uintptr(unsafe.Pointer(s)),
		uintptr(unsafe.Pointer(d)),
		uintptr(unsafe.Pointer(t)),
	)
	if r == 0 {
		return errors.Annotate(callErr, "ApplyDeltaW")
	}
	return nil
}

func writeAll(path string, r io.Reader) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
