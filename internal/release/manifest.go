package release

import (
	"bufio"
	"crypto/sha1"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/juju/errors"
	"github.com/juju/utils/v4"

	"github.com/adamancini/hatch/internal/types"
	"github.com/adamancini/hatch/internal/updateerr"
)

// Parse parses manifest text into entries. Blank lines and comment lines are
// skipped; any malformed line fails the whole parse. A manifest without
// entries is ErrCorruptManifest.
func Parse(text string) ([]Entry, error) {
	text = strings.TrimPrefix(text, "\ufeff")
	var entries []Entry
	scanner := bufio.NewScanner(strings.NewReader(text))
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || isComment(line) {
			continue
		}
		entry, err := ParseLine(line)
		if err != nil {
			return nil, errors.Annotatef(updateerr.ErrCorruptManifest, "line %d: %v", lineNo, err)
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Annotate(updateerr.ErrCorruptManifest, err.Error())
	}
	if len(entries) == 0 {
		return nil, errors.Annotate(updateerr.ErrCorruptManifest, "no entries")
	}
	return entries, nil
}

func isComment(line string) bool {
	return strings.HasPrefix(line, "#") && !stagingRegex.MatchString(line)
}

// Sort orders entries by version, full before delta, then by filename.
func Sort(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if c := a.Version.Compare(b.Version); c != 0 {
			return c < 0
		}
		if a.IsDelta != b.IsDelta {
			return !a.IsDelta
		}
		return a.Filename < b.Filename
	})
}

// Write serializes entries in stable order, one line each.
func Write(w io.Writer, entries []Entry) error {
	sorted := append([]Entry(nil), entries...)
	Sort(sorted)
	bw := bufio.NewWriter(w)
	for _, e := range sorted {
		if _, err := bw.WriteString(e.String() + "\n"); err != nil {
			return errors.Trace(err)
		}
	}
	return errors.Trace(bw.Flush())
}

// Format returns the serialized manifest text for entries.
func Format(entries []Entry) string {
	var b strings.Builder
	_ = Write(&b, entries)
	return b.String()
}

// WriteFile atomically replaces the manifest at path.
func WriteFile(path string, entries []Entry) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Annotatef(err, "creating %s", filepath.Dir(path))
	}
	return errors.Annotatef(utils.AtomicWriteFile(path, []byte(Format(entries)), 0644), "writing %s", path)
}

// LoadLocal reads an install root's own manifest. When the file is absent,
// unreadable or corrupt it returns no entries and shouldInitialize=true so the
// caller treats the root as a first run.
func LoadLocal(path string) (entries []Entry, shouldInitialize bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, true
	}
	entries, err = Parse(string(data))
	if err != nil {
		return nil, true
	}
	return entries, false
}

// GenerateFromFile builds the manifest entry for an artifact on disk.
func GenerateFromFile(path string) (Entry, error) {
	name, version, isDelta, err := ParseFilename(filepath.Base(path))
	if err != nil {
		return Entry{}, errors.Trace(err)
	}
	sum, size, err := FileSHA1(path)
	if err != nil {
		return Entry{}, errors.Trace(err)
	}
	return Entry{
		PackageName: name,
		Version:     version,
		Filename:    filepath.Base(path),
		SHA1:        sum,
		Filesize:    size,
		IsDelta:     isDelta,
	}, nil
}

// BuildFromDirectory generates entries for every artifact in dir. Files that
// do not follow the artifact naming convention are ignored.
func BuildFromDirectory(dir string) ([]Entry, error) {
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Annotatef(err, "reading %s", dir)
	}
	var entries []Entry
	for _, de := range dirEntries {
		if de.IsDir() || filepath.Ext(de.Name()) != types.PackageExt {
			continue
		}
		if _, _, _, err := ParseFilename(de.Name()); err != nil {
			continue
		}
		entry, err := GenerateFromFile(filepath.Join(dir, de.Name()))
		if err != nil {
			return nil, errors.Trace(err)
		}
		entries = append(entries, entry)
	}
	Sort(entries)
	return entries, nil
}

// FileSHA1 returns the upper-case hex SHA1 and the length of the file at path.
func FileSHA1(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, errors.Trace(err)
	}
	defer func() { _ = f.Close() }()

	h := sha1.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, errors.Annotatef(err, "hashing %s", path)
	}
	return strings.ToUpper(hex.EncodeToString(h.Sum(nil))), n, nil
}

// CurrentFull returns the highest-version full entry, or nil if there is none.
func CurrentFull(entries []Entry) *Entry {
	var best *Entry
	for i := range entries {
		e := entries[i]
		if e.IsDelta {
			continue
		}
		if best == nil || e.Version.IsGreaterThan(best.Version) {
			best = &e
		}
	}
	return best
}

// Latest returns the highest-version entry of any kind, or nil if entries is empty.
// Among entries of equal version the full entry wins.
func Latest(entries []Entry) *Entry {
	var best *Entry
	for i := range entries {
		e := entries[i]
		if best == nil || e.Version.IsGreaterThan(best.Version) ||
			(e.Version.IsEqual(best.Version) && best.IsDelta && !e.IsDelta) {
			best = &e
		}
	}
	return best
}
