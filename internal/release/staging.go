package release

import (
	"crypto/sha1"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/juju/errors"
	"github.com/juju/utils/v4"
)

// LoadOrCreateStagingID returns the staging id stored at path, creating and
// persisting a fresh UUID when the file is absent or does not hold one.
func LoadOrCreateStagingID(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		id := strings.TrimSpace(string(data))
		if utils.IsValidUUIDString(id) {
			return id, nil
		}
	} else if !os.IsNotExist(err) {
		return "", errors.Annotatef(err, "reading staging id %s", path)
	}

	id := uuid.NewString()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", errors.Annotatef(err, "creating %s", filepath.Dir(path))
	}
	if err := utils.AtomicWriteFile(path, []byte(id+"\n"), 0644); err != nil {
		return "", errors.Annotatef(err, "writing staging id %s", path)
	}
	return id, nil
}

// ApplyStaging drops the entries whose staged rollout excludes stagingID.
// Entries without a staging percentage are always kept. The result depends
// only on stagingID and the entries.
func ApplyStaging(entries []Entry, stagingID string) []Entry {
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.StagingPercentage == nil || InRollout(stagingID, e) {
			out = append(out, e)
		}
	}
	return out
}

// InRollout reports whether the installation identified by stagingID falls
// inside the staged rollout of e.
func InRollout(stagingID string, e Entry) bool {
	if e.StagingPercentage == nil {
		return true
	}
	pct := *e.StagingPercentage
	switch {
	case pct <= 0:
		return false
	case pct >= 100:
		return true
	}
	return rolloutFraction(stagingID, e.Filename) < float64(pct)/100
}

// rolloutFraction maps stagingID and a release id onto [0, 1].
func rolloutFraction(stagingID, releaseID string) float64 {
	sum := sha1.Sum([]byte(strings.ToLower(stagingID) + ":" + releaseID))
	return float64(binary.BigEndian.Uint32(sum[:4])) / math.MaxUint32
}
