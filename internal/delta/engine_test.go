package delta

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"testing"

	"github.com/juju/errors"
	"github.com/juju/loggo"
	"github.com/kr/binarydist"

	"github.com/adamancini/hatch/internal/archive"
	"github.com/adamancini/hatch/internal/release"
	"github.com/adamancini/hatch/internal/updateerr"
)

var testLogger = loggo.GetLogger("hatch.delta.test")

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

func buildPackage(t *testing.T, dest string, files map[string]string) {
	t.Helper()
	src := t.TempDir()
	writeTree(t, src, files)
	if err := archive.Pack(src, dest); err != nil {
		t.Fatalf("Pack() error = %v", err)
	}
}

func readTree(t *testing.T, pkg string) map[string]string {
	t.Helper()
	dir := t.TempDir()
	if err := archive.Unpack(pkg, dir); err != nil {
		t.Fatalf("Unpack() error = %v", err)
	}
	names, err := archive.Files(dir)
	if err != nil {
		t.Fatal(err)
	}
	out := make(map[string]string, len(names))
	for _, n := range names {
		data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(n)))
		if err != nil {
			t.Fatal(err)
		}
		out[n] = string(data)
	}
	return out
}

var (
	v1Files = map[string]string{
		"lib/app.exe":  strings.Repeat("version one binary payload ", 40),
		"lib/keep.txt": "unchanged between versions",
		"lib/old.txt":  "removed in 1.1.0",
		"myapp.nuspec": "<version>1.0.0</version>",
	}
	v2Files = map[string]string{
		"lib/app.exe":  strings.Repeat("version two binary payload ", 40),
		"lib/keep.txt": "unchanged between versions",
		"lib/new.txt":  "added in 1.1.0",
		"myapp.nuspec": "<version>1.1.0</version>",
	}
	v3Files = map[string]string{
		"lib/app.exe":       strings.Repeat("version three binary payload! ", 40),
		"lib/keep.txt":      "unchanged between versions",
		"lib/new.txt":       "changed in 1.2.0",
		"lib/sub/extra.dat": "added in 1.2.0",
		"myapp.nuspec":      "<version>1.2.0</version>",
	}
)

func deltaEntry(version string) release.Entry {
	v := release.MustParseVersion(version)
	return release.Entry{
		PackageName: "myapp",
		Version:     v,
		Filename:    release.EntryFilename("myapp", v, "delta"),
		IsDelta:     true,
	}
}

func TestCreateAndApplyDelta(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "myapp-1.0.0-full.zip")
	next := filepath.Join(dir, "myapp-1.1.0-full.zip")
	buildPackage(t, base, v1Files)
	buildPackage(t, next, v2Files)

	e := NewEngine(testLogger, "")
	deltaPkg := filepath.Join(dir, "myapp-1.1.0-delta.zip")
	if err := e.CreateDelta(base, next, deltaPkg); err != nil {
		t.Fatalf("CreateDelta() error = %v", err)
	}

	contents := readTree(t, deltaPkg)
	for _, want := range []string{"lib/app.exe.bsdiff", "lib/app.exe.shasum", "lib/keep.txt.bsdiff", "lib/new.txt"} {
		if _, ok := contents[want]; !ok {
			t.Errorf("delta package is missing %s", want)
		}
	}
	if contents["lib/keep.txt.bsdiff"] != "" {
		t.Error("unchanged file should have an empty patch")
	}

	out := filepath.Join(dir, "rebuilt.zip")
	if err := e.ApplyDelta(base, deltaPkg, out); err != nil {
		t.Fatalf("ApplyDelta() error = %v", err)
	}
	if got := readTree(t, out); !reflect.DeepEqual(got, v2Files) {
		t.Errorf("ApplyDelta() produced %v, want %v", keys(got), keys(v2Files))
	}
}

func TestReduceChainMatchesFullPackage(t *testing.T) {
	packages := t.TempDir()
	ref := t.TempDir()
	e := NewEngine(testLogger, "")

	base := filepath.Join(packages, "myapp-1.0.0-full.zip")
	buildPackage(t, base, v1Files)
	full2 := filepath.Join(ref, "myapp-1.1.0-full.zip")
	full3 := filepath.Join(ref, "myapp-1.2.0-full.zip")
	buildPackage(t, full2, v2Files)
	buildPackage(t, full3, v3Files)

	d2, d3 := deltaEntry("1.1.0"), deltaEntry("1.2.0")
	if err := e.CreateDelta(base, full2, filepath.Join(packages, d2.Filename)); err != nil {
		t.Fatal(err)
	}
	if err := e.CreateDelta(full2, full3, filepath.Join(packages, d3.Filename)); err != nil {
		t.Fatal(err)
	}

	got, err := e.ReduceChain(base, []release.Entry{d2, d3}, packages)
	if err != nil {
		t.Fatalf("ReduceChain() error = %v", err)
	}
	if filepath.Base(got) != "myapp-1.2.0-full.zip" {
		t.Errorf("ReduceChain() = %s", got)
	}
	if !reflect.DeepEqual(readTree(t, got), readTree(t, full3)) {
		t.Error("reduced package differs from the full package built for 1.2.0")
	}

	entries, err := os.ReadDir(packages)
	if err != nil {
		t.Fatal(err)
	}
	for _, de := range entries {
		if strings.HasSuffix(de.Name(), ".partial") {
			t.Errorf("intermediate package %s left behind", de.Name())
		}
	}
	if _, err := os.Stat(base); err != nil {
		t.Errorf("base package should be kept: %v", err)
	}
}

func TestReduceChainEdgeCases(t *testing.T) {
	e := NewEngine(testLogger, "")

	got, err := e.ReduceChain("unused.zip", nil, t.TempDir())
	if err != nil || got != "" {
		t.Errorf("ReduceChain(empty) = %q, %v; want \"\", nil", got, err)
	}

	full := deltaEntry("1.1.0")
	full.IsDelta = false
	_, err = e.ReduceChain("unused.zip", []release.Entry{deltaEntry("1.1.0"), full}, t.TempDir())
	if !errors.Is(err, updateerr.ErrMixedReleaseKinds) {
		t.Errorf("ReduceChain(mixed) error = %v, want ErrMixedReleaseKinds", err)
	}
}

func TestApplyDeltaChecksumFailure(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "base.zip")
	buildPackage(t, base, v1Files)

	var patch bytes.Buffer
	if err := binarydist.Diff(strings.NewReader(v1Files["lib/app.exe"]), strings.NewReader(v2Files["lib/app.exe"]), &patch); err != nil {
		t.Fatal(err)
	}
	deltaPkg := filepath.Join(dir, "delta.zip")
	buildPackage(t, deltaPkg, map[string]string{
		"lib/app.exe.bsdiff": patch.String(),
		"lib/app.exe.shasum": strings.Repeat("0", 40) + " app.exe 1080\n",
		"myapp.nuspec":       "<version>1.1.0</version>",
	})

	out := filepath.Join(dir, "out.zip")
	err := NewEngine(testLogger, "").ApplyDelta(base, deltaPkg, out)
	var failed *updateerr.ChecksumFailedError
	if !errors.As(err, &failed) {
		t.Fatalf("ApplyDelta() error = %v, want ChecksumFailedError", err)
	}
	if failed.Filename != "lib/app.exe" {
		t.Errorf("Filename = %s", failed.Filename)
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Error("no output package should be written on checksum failure")
	}
}

type failingPatcher struct{ calls int }

func (p *failingPatcher) Patch(io.Reader, io.Writer, io.Reader) error {
	p.calls++
	return errors.New("unsupported delta format")
}

func TestPlatformPatchFallsBackToBSDiff(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "base.zip")
	buildPackage(t, base, v1Files)

	var patch bytes.Buffer
	if err := binarydist.Diff(strings.NewReader(v1Files["lib/app.exe"]), strings.NewReader(v2Files["lib/app.exe"]), &patch); err != nil {
		t.Fatal(err)
	}
	newApp := filepath.Join(dir, "app.exe")
	writeTree(t, dir, map[string]string{"app.exe": v2Files["lib/app.exe"]})
	sum, size, err := release.FileSHA1(newApp)
	if err != nil {
		t.Fatal(err)
	}

	deltaPkg := filepath.Join(dir, "delta.zip")
	buildPackage(t, deltaPkg, map[string]string{
		"lib/app.exe.diff":   patch.String(),
		"lib/app.exe.shasum": sum + " app.exe " + strconv.FormatInt(size, 10) + "\n",
		"lib/keep.txt":       v1Files["lib/keep.txt"],
		"myapp.nuspec":       "<version>1.1.0</version>",
	})

	platform := &failingPatcher{}
	e := NewEngine(testLogger, "")
	e.platform = platform

	out := filepath.Join(dir, "out.zip")
	if err := e.ApplyDelta(base, deltaPkg, out); err != nil {
		t.Fatalf("ApplyDelta() error = %v", err)
	}
	if platform.calls != 1 {
		t.Errorf("platform patcher called %d times, want 1", platform.calls)
	}
	got := readTree(t, out)
	if got["lib/app.exe"] != v2Files["lib/app.exe"] {
		t.Error("fallback patch produced wrong content")
	}
	if _, ok := got["lib/old.txt"]; ok {
		t.Error("file absent from the delta should be removed")
	}
}

func keys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
