package release

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/juju/errors"
)

// versionPattern is shared with the filename pattern, so prerelease tags may
// not contain '-': "1.0.0-rc.1" is valid, "1.0.0-rc-1" is not.
const versionPattern = `v?(\d+)\.(\d+)\.(\d+)(?:-([0-9A-Za-z]+(?:\.[0-9A-Za-z]+)*))?`

var versionRegex = regexp.MustCompile(`^` + versionPattern + `$`)

// Version represents a semantic version
type Version struct {
	Major      int
	Minor      int
	Patch      int
	Prerelease string
}

// ParseVersion parses a semantic version string
// Supports formats like "0.8.2", "v0.8.2", "0.9.0-rc.1"
func ParseVersion(s string) (Version, error) {
	matches := versionRegex.FindStringSubmatch(s)
	if matches == nil {
		return Version{}, errors.NotValidf("version %q", s)
	}
	return versionFromMatches(matches[1:5])
}

// MustParseVersion is like ParseVersion but panics on error. For tests and constants.
func MustParseVersion(s string) Version {
	v, err := ParseVersion(s)
	if err != nil {
		panic(err)
	}
	return v
}

func versionFromMatches(m []string) (Version, error) {
	major, err := strconv.Atoi(m[0])
	if err != nil {
		return Version{}, errors.Annotatef(err, "major version %q", m[0])
	}
	minor, err := strconv.Atoi(m[1])
	if err != nil {
		return Version{}, errors.Annotatef(err, "minor version %q", m[1])
	}
	patch, err := strconv.Atoi(m[2])
	if err != nil {
		return Version{}, errors.Annotatef(err, "patch version %q", m[2])
	}
	return Version{Major: major, Minor: minor, Patch: patch, Prerelease: m[3]}, nil
}

// String returns the string representation
func (v Version) String() string {
	s := fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
	if v.Prerelease != "" {
		s += "-" + v.Prerelease
	}
	return s
}

// Compare compares two versions
// Returns:
//   - 1 if v > other
//   - 0 if v == other
//   - -1 if v < other
func (v Version) Compare(other Version) int {
	if c := compareInt(v.Major, other.Major); c != 0 {
		return c
	}
	if c := compareInt(v.Minor, other.Minor); c != 0 {
		return c
	}
	if c := compareInt(v.Patch, other.Patch); c != 0 {
		return c
	}

	// Stable versions (no prerelease) are greater than prereleases
	if v.Prerelease == "" && other.Prerelease != "" {
		return 1
	}
	if v.Prerelease != "" && other.Prerelease == "" {
		return -1
	}
	return comparePrerelease(v.Prerelease, other.Prerelease)
}

// comparePrerelease compares dot-separated identifiers: numeric identifiers
// numerically, the rest lexically, numeric before alphanumeric.
func comparePrerelease(a, b string) int {
	if a == b {
		return 0
	}
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	for i := 0; i < len(as) && i < len(bs); i++ {
		an, aErr := strconv.Atoi(as[i])
		bn, bErr := strconv.Atoi(bs[i])
		switch {
		case aErr == nil && bErr == nil:
			if c := compareInt(an, bn); c != 0 {
				return c
			}
		case aErr == nil:
			return -1
		case bErr == nil:
			return 1
		default:
			if c := strings.Compare(as[i], bs[i]); c != 0 {
				return c
			}
		}
	}
	return compareInt(len(as), len(bs))
}

func compareInt(a, b int) int {
	switch {
	case a > b:
		return 1
	case a < b:
		return -1
	default:
		return 0
	}
}

// IsGreaterThan returns true if v > other
func (v Version) IsGreaterThan(other Version) bool {
	return v.Compare(other) > 0
}

// IsLessThan returns true if v < other
func (v Version) IsLessThan(other Version) bool {
	return v.Compare(other) < 0
}

// IsEqual returns true if v == other
func (v Version) IsEqual(other Version) bool {
	return v.Compare(other) == 0
}
