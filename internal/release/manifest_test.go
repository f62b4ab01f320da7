package release

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/juju/errors"

	"github.com/adamancini/hatch/internal/updateerr"
)

func TestParseRoundTrip(t *testing.T) {
	text := strings.Join([]string{
		sumA + " myapp-1.0.0-full.zip 100",
		sumA + " myapp-1.1.0-full.zip 101 -> https://mirror.example.com",
		sumB + " myapp-1.1.0-delta.zip 5",
		"# 50% " + sumB + " myapp-1.2.0-delta.zip 4?x=y",
	}, "\n") + "\n"

	entries, err := Parse(text)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(entries) != 4 {
		t.Fatalf("Parse() returned %d entries, want 4", len(entries))
	}
	if got := Format(entries); got != text {
		t.Errorf("Format(Parse(text)) =\n%s\nwant\n%s", got, text)
	}
}

func TestParseStableOrdering(t *testing.T) {
	shuffled := sumB + " myapp-1.1.0-delta.zip 5\n" +
		sumA + " myapp-1.0.0-full.zip 100\n" +
		sumA + " myapp-1.1.0-full.zip 101\n"
	sorted := sumA + " myapp-1.0.0-full.zip 100\n" +
		sumA + " myapp-1.1.0-full.zip 101\n" +
		sumB + " myapp-1.1.0-delta.zip 5\n"

	entries, err := Parse(shuffled)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if got := Format(entries); got != sorted {
		t.Errorf("Format() =\n%s\nwant\n%s", got, sorted)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"empty", ""},
		{"only comments", "# generated\n\n# nothing here\n"},
		{"one bad line", sumA + " myapp-1.0.0-full.zip 100\nnot a release line\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.text)
			if !errors.Is(err, updateerr.ErrCorruptManifest) {
				t.Errorf("Parse() error = %v, want ErrCorruptManifest", err)
			}
		})
	}
}

func TestParseSkipsComments(t *testing.T) {
	entries, err := Parse("# header\n\n" + sumA + " myapp-1.0.0-full.zip 100\r\n")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(entries) != 1 || entries[0].Filename != "myapp-1.0.0-full.zip" {
		t.Errorf("Parse() = %+v", entries)
	}
}

func TestLoadLocal(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing", func(t *testing.T) {
		entries, init := LoadLocal(filepath.Join(dir, "absent"))
		if entries != nil || !init {
			t.Errorf("LoadLocal() = %v, %v; want nil, true", entries, init)
		}
	})

	t.Run("corrupt", func(t *testing.T) {
		path := filepath.Join(dir, "corrupt")
		if err := os.WriteFile(path, []byte("garbage\n"), 0644); err != nil {
			t.Fatal(err)
		}
		entries, init := LoadLocal(path)
		if entries != nil || !init {
			t.Errorf("LoadLocal() = %v, %v; want nil, true", entries, init)
		}
	})

	t.Run("valid", func(t *testing.T) {
		path := filepath.Join(dir, "packages", "RELEASES")
		want := []Entry{{PackageName: "myapp", Version: MustParseVersion("1.0.0"),
			Filename: "myapp-1.0.0-full.zip", SHA1: sumA, Filesize: 3}}
		if err := WriteFile(path, want); err != nil {
			t.Fatalf("WriteFile() error = %v", err)
		}
		entries, init := LoadLocal(path)
		if init || len(entries) != 1 || entries[0] != want[0] {
			t.Errorf("LoadLocal() = %+v, %v", entries, init)
		}
	})
}

func TestBuildFromDirectory(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"myapp-1.0.0-full.zip":  "abc",
		"myapp-1.1.0-delta.zip": "de",
		"RELEASES":              "ignored",
		"notes.zip":             "ignored",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}

	entries, err := BuildFromDirectory(dir)
	if err != nil {
		t.Fatalf("BuildFromDirectory() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2: %+v", len(entries), entries)
	}
	// sha1("abc")
	if entries[0].SHA1 != "A9993E364706816ABA3E25717850C26C9CD0D89D" || entries[0].Filesize != 3 {
		t.Errorf("full entry = %+v", entries[0])
	}
	if !entries[1].IsDelta || entries[1].Version.String() != "1.1.0" {
		t.Errorf("delta entry = %+v", entries[1])
	}
}

func TestCurrentFullAndLatest(t *testing.T) {
	entries := []Entry{
		{Version: MustParseVersion("1.0.0"), Filename: "a-1.0.0-full.zip"},
		{Version: MustParseVersion("1.2.0"), Filename: "a-1.2.0-delta.zip", IsDelta: true},
		{Version: MustParseVersion("1.1.0"), Filename: "a-1.1.0-full.zip"},
	}

	if got := CurrentFull(entries); got == nil || got.Filename != "a-1.1.0-full.zip" {
		t.Errorf("CurrentFull() = %+v", got)
	}
	if got := Latest(entries); got == nil || got.Filename != "a-1.2.0-delta.zip" {
		t.Errorf("Latest() = %+v", got)
	}
	if CurrentFull(nil) != nil || Latest(nil) != nil {
		t.Error("expected nil for empty input")
	}
}

func TestParseTolerantInput(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"utf8 bom", "\ufeff" + sumA + " myapp-1.0.0-full.zip 100\n"},
		{"percent in comment", "# 50% of users get this\n" + sumA + " myapp-1.0.0-full.zip 100\n"},
		{"bare percent comment", "# 100%\n" + sumA + " myapp-1.0.0-full.zip 100\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := Parse(tt.text)
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if len(entries) != 1 || entries[0].Filename != "myapp-1.0.0-full.zip" || entries[0].StagingPercentage != nil {
				t.Errorf("Parse() = %+v", entries)
			}
		})
	}
}
