// Package release parses and writes the plain-text release manifest, and
// applies staged-rollout filtering to its entries.
//
// A manifest line has the form
//
//	[# <pct>% ]<sha1> <filename> <filesize>[ -> <baseUrl>][?query]
//
// where the optional "# <pct>%" prefix declares a staged rollout percentage,
// "-> <baseUrl>" overrides the origin the artifact is fetched from, and
// "?query" is appended to the artifact URL.
package release

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/juju/errors"

	"github.com/adamancini/hatch/internal/types"
)

// Entry is one row of a release manifest.
type Entry struct {
	PackageName string
	Version     Version
	Filename    string
	SHA1        string
	Filesize    int64
	IsDelta     bool
	// BaseURL, if set, overrides the endpoint the artifact is fetched from.
	BaseURL string
	// Query is appended to the artifact URL, including the leading '?'.
	Query string
	// StagingPercentage is the rollout share in percent; nil means everyone.
	StagingPercentage *int
}

var (
	filenameRegex = regexp.MustCompile(`^(.+?)-` + versionPattern + `(?:-(full|delta))?` + regexp.QuoteMeta(types.PackageExt) + `$`)
	sha1Regex     = regexp.MustCompile(`^[0-9a-fA-F]{40}$`)
	// A staging prefix must be followed by a sha1; "# 50% of users" stays a comment.
	stagingRegex = regexp.MustCompile(`^#\s*(\d{1,3})%\s+([0-9a-fA-F]{40}\s.*)$`)
)

// Kind returns the release kind of the entry.
func (e Entry) Kind() types.ReleaseKind {
	if e.IsDelta {
		return types.ReleaseKindDelta
	}
	return types.ReleaseKindFull
}

// String returns the entry serialized as a manifest line, without a newline.
func (e Entry) String() string {
	var b strings.Builder
	if e.StagingPercentage != nil {
		fmt.Fprintf(&b, "# %d%% ", *e.StagingPercentage)
	}
	fmt.Fprintf(&b, "%s %s %d", e.SHA1, e.Filename, e.Filesize)
	if e.BaseURL != "" {
		b.WriteString(" -> ")
		b.WriteString(e.BaseURL)
	}
	b.WriteString(e.Query)
	return b.String()
}

// EntryFilename builds the canonical artifact filename for a package version.
func EntryFilename(packageName string, v Version, kind types.ReleaseKind) string {
	return fmt.Sprintf("%s-%s-%s%s", packageName, v, kind, types.PackageExt)
}

// ParseFilename extracts the package name, version and kind from an artifact filename.
func ParseFilename(filename string) (string, Version, bool, error) {
	m := filenameRegex.FindStringSubmatch(filename)
	if m == nil {
		return "", Version{}, false, errors.NotValidf("release filename %q", filename)
	}
	v, err := versionFromMatches(m[2:6])
	if err != nil {
		return "", Version{}, false, errors.Annotatef(err, "release filename %q", filename)
	}
	kind := types.ReleaseKindFull
	if m[6] != "" {
		if kind, err = types.ParseReleaseKind(m[6]); err != nil {
			return "", Version{}, false, errors.Annotatef(err, "release filename %q", filename)
		}
	}
	return m[1], v, kind == types.ReleaseKindDelta, nil
}

// ParseLine parses a single manifest line. Comment lines are not accepted here;
// Parse filters them before calling ParseLine.
func ParseLine(line string) (Entry, error) {
	line = strings.TrimSpace(line)
	var entry Entry

	if m := stagingRegex.FindStringSubmatch(line); m != nil {
		pct, err := strconv.Atoi(m[1])
		if err != nil || pct < 0 || pct > 100 {
			return Entry{}, errors.NotValidf("staging percentage %q", m[1])
		}
		entry.StagingPercentage = &pct
		line = m[2]
	}

	// Split off the trailing "-> baseUrl" and "?query" before tokenizing.
	rest := line
	if idx := strings.Index(rest, " -> "); idx >= 0 {
		target := strings.TrimSpace(rest[idx+len(" -> "):])
		rest = rest[:idx]
		base, query := splitQuery(target)
		if base == "" {
			return Entry{}, errors.NotValidf("empty base url in %q", line)
		}
		entry.BaseURL, entry.Query = base, query
	} else {
		rest, entry.Query = splitQuery(rest)
	}

	fields := strings.Fields(rest)
	if len(fields) != 3 {
		return Entry{}, errors.NotValidf("manifest line %q", line)
	}
	if !sha1Regex.MatchString(fields[0]) {
		return Entry{}, errors.NotValidf("sha1 %q", fields[0])
	}
	size, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil || size < 0 {
		return Entry{}, errors.NotValidf("file size %q", fields[2])
	}
	name, version, isDelta, err := ParseFilename(fields[1])
	if err != nil {
		return Entry{}, errors.Trace(err)
	}

	entry.SHA1 = fields[0]
	entry.Filename = fields[1]
	entry.Filesize = size
	entry.PackageName = name
	entry.Version = version
	entry.IsDelta = isDelta
	return entry, nil
}

func splitQuery(s string) (string, string) {
	if idx := strings.Index(s, "?"); idx >= 0 {
		return s[:idx], s[idx:]
	}
	return s, ""
}
