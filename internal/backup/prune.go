package backup

import (
	"github.com/juju/errors"
)

// DefaultKeepCount is the default number of backups to retain.
const DefaultKeepCount = 10

// PruneResult contains information about what was pruned.
type PruneResult struct {
	Deleted []BackupInfo
	Kept    int
}

// Prune removes old backups, keeping only the most recent keep.
func (m *Manager) Prune(keep int) (*PruneResult, error) {
	if keep < 0 {
		return nil, errors.NotValidf("negative keep count %d", keep)
	}
	backups, err := m.List()
	if err != nil {
		return nil, errors.Trace(err)
	}

	result := &PruneResult{Kept: len(backups)}
	if len(backups) <= keep {
		return result, nil
	}
	result.Kept = keep
	for _, b := range backups[keep:] {
		if err := m.Delete(b.ID); err != nil {
			return nil, errors.Trace(err)
		}
		result.Deleted = append(result.Deleted, b)
	}
	return result, nil
}
