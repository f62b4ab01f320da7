// Package backup keeps snapshots of a release directory's RELEASES manifest
// so a publish can be rolled back.
package backup

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/utils/v4"
)

// DirName is the history directory inside a release directory.
const DirName = ".hatch-history"

// idLayout sorts lexically in creation order.
const idLayout = "20060102-150405.000"

// Backup is one snapshot of a manifest.
type Backup struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	Note         string    `json:"note,omitempty"`
	HatchVersion string    `json:"hatch_version"`
	Manifest     string    `json:"manifest"`
}

// BackupInfo provides summary information about a backup for listing.
type BackupInfo struct {
	ID        string    `json:"id" yaml:"id"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	Note      string    `json:"note,omitempty" yaml:"note,omitempty"`
	Size      int64     `json:"size" yaml:"size"`
}

// Manager handles the snapshots of one release directory.
type Manager struct {
	backupDir    string
	hatchVersion string
	clock        clock.Clock
}

// NewManager returns a Manager storing snapshots under releasesDir.
func NewManager(releasesDir, version string, clk clock.Clock) *Manager {
	if clk == nil {
		clk = clock.WallClock
	}
	return &Manager{
		backupDir:    filepath.Join(releasesDir, DirName),
		hatchVersion: version,
		clock:        clk,
	}
}

// BackupDir returns the backup directory path.
func (m *Manager) BackupDir() string {
	return m.backupDir
}

// Create stores manifest as a new snapshot.
func (m *Manager) Create(manifest, note string) (*Backup, error) {
	if err := os.MkdirAll(m.backupDir, 0755); err != nil {
		return nil, errors.Annotate(err, "creating backup directory")
	}

	now := m.clock.Now().UTC()
	b := &Backup{
		ID:           now.Format(idLayout),
		CreatedAt:    now,
		Note:         note,
		HatchVersion: m.hatchVersion,
		Manifest:     manifest,
	}
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return nil, errors.Trace(err)
	}
	if err := utils.AtomicWriteFile(m.path(b.ID), data, 0644); err != nil {
		return nil, errors.Annotatef(err, "writing backup %s", b.ID)
	}
	return b, nil
}

// List returns all backups, newest first. Unreadable files are skipped.
func (m *Manager) List() ([]BackupInfo, error) {
	entries, err := os.ReadDir(m.backupDir)
	if os.IsNotExist(err) {
		return []BackupInfo{}, nil
	}
	if err != nil {
		return nil, errors.Annotate(err, "reading backup directory")
	}

	var backups []BackupInfo
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		b, err := m.load(filepath.Join(m.backupDir, entry.Name()))
		if err != nil {
			continue
		}
		backups = append(backups, BackupInfo{ID: b.ID, CreatedAt: b.CreatedAt, Note: b.Note, Size: info.Size()})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].CreatedAt.After(backups[j].CreatedAt)
	})
	return backups, nil
}

// Get retrieves a backup by ID. Use "latest" to get the most recent backup.
func (m *Manager) Get(id string) (*Backup, error) {
	if id == "latest" {
		backups, err := m.List()
		if err != nil {
			return nil, errors.Trace(err)
		}
		if len(backups) == 0 {
			return nil, errors.NotFoundf("backups in %s", m.backupDir)
		}
		id = backups[0].ID
	}
	if err := checkID(id); err != nil {
		return nil, errors.Trace(err)
	}
	return m.load(m.path(id))
}

// Delete removes a backup by ID.
func (m *Manager) Delete(id string) error {
	if err := checkID(id); err != nil {
		return errors.Trace(err)
	}
	err := os.Remove(m.path(id))
	if os.IsNotExist(err) {
		return errors.NotFoundf("backup %s", id)
	}
	return errors.Annotatef(err, "deleting backup %s", id)
}

func (m *Manager) path(id string) string {
	return filepath.Join(m.backupDir, id+".json")
}

func (m *Manager) load(path string) (*Backup, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, errors.NotFoundf("backup %s", strings.TrimSuffix(filepath.Base(path), ".json"))
	}
	if err != nil {
		return nil, errors.Annotate(err, "reading backup file")
	}
	var b Backup
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, errors.Annotatef(err, "parsing %s", path)
	}
	return &b, nil
}

// checkID rejects ids that would reach outside the backup directory.
func checkID(id string) error {
	if id == "" || strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return errors.NotValidf("backup id %q", id)
	}
	return nil
}
