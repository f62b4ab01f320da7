package archive

import (
	"archive/zip"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

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

func TestPackUnpack(t *testing.T) {
	src := t.TempDir()
	files := map[string]string{
		"lib/app.exe":        "binary",
		"lib/sub/data.txt":   "data",
		"myapp.nuspec":       "<package/>",
		"lib/sub/empty.conf": "",
	}
	writeTree(t, src, files)

	pkg := filepath.Join(t.TempDir(), "out", "myapp-1.0.0-full.zip")
	if err := Pack(src, pkg); err != nil {
		t.Fatalf("Pack() error = %v", err)
	}

	dest := filepath.Join(t.TempDir(), "unpacked")
	if err := Unpack(pkg, dest); err != nil {
		t.Fatalf("Unpack() error = %v", err)
	}

	got, err := Files(dest)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"lib/app.exe", "lib/sub/data.txt", "lib/sub/empty.conf", "myapp.nuspec"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Files() = %v, want %v", got, want)
	}
	for name, content := range files {
		data, err := os.ReadFile(filepath.Join(dest, filepath.FromSlash(name)))
		if err != nil {
			t.Fatal(err)
		}
		if string(data) != content {
			t.Errorf("%s = %q, want %q", name, data, content)
		}
	}
}

func TestUnpackRejectsTraversal(t *testing.T) {
	pkg := filepath.Join(t.TempDir(), "evil.zip")
	f, err := os.Create(pkg)
	if err != nil {
		t.Fatal(err)
	}
	zw := zip.NewWriter(f)
	w, err := zw.Create("../escape.txt")
	if err != nil {
		t.Fatal(err)
	}
	_, _ = w.Write([]byte("x"))
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	_ = f.Close()

	dest := filepath.Join(t.TempDir(), "dest")
	if err := Unpack(pkg, dest); err == nil {
		t.Fatal("Unpack() should reject paths outside the destination")
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(dest), "escape.txt")); !os.IsNotExist(err) {
		t.Error("escaped file was written")
	}
}

func TestCopyFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a")
	if err := os.WriteFile(src, []byte("hello"), 0600); err != nil {
		t.Fatal(err)
	}
	dst := filepath.Join(dir, "nested", "b")
	if err := CopyFile(src, dst); err != nil {
		t.Fatalf("CopyFile() error = %v", err)
	}
	data, err := os.ReadFile(dst)
	if err != nil || string(data) != "hello" {
		t.Errorf("copied content = %q, %v", data, err)
	}
}
