package backup

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/juju/errors"
)

func newTestManager(t *testing.T) (*Manager, *testclock.Clock) {
	t.Helper()
	clk := testclock.NewClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	return NewManager(t.TempDir(), "1.2.3", clk), clk
}

func TestCreateAndGet(t *testing.T) {
	m, _ := newTestManager(t)

	b, err := m.Create("ABC myapp-1.0.0-full.zip 10\n", "before publish")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if b.ID != "20260301-120000.000" {
		t.Errorf("ID = %s", b.ID)
	}
	if _, err := os.Stat(filepath.Join(m.BackupDir(), b.ID+".json")); err != nil {
		t.Errorf("backup file missing: %v", err)
	}

	got, err := m.Get(b.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Manifest != b.Manifest || got.Note != "before publish" || got.HatchVersion != "1.2.3" {
		t.Errorf("Get() = %+v", got)
	}
}

func TestListNewestFirst(t *testing.T) {
	m, clk := newTestManager(t)
	for i := 0; i < 3; i++ {
		if _, err := m.Create("manifest", ""); err != nil {
			t.Fatal(err)
		}
		clk.Advance(time.Minute)
	}
	if err := os.WriteFile(filepath.Join(m.BackupDir(), "junk.json"), []byte("{"), 0644); err != nil {
		t.Fatal(err)
	}

	backups, err := m.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(backups) != 3 {
		t.Fatalf("List() returned %d backups, want 3", len(backups))
	}
	if backups[0].ID != "20260301-120200.000" || backups[2].ID != "20260301-120000.000" {
		t.Errorf("List() order = %s, %s, %s", backups[0].ID, backups[1].ID, backups[2].ID)
	}

	latest, err := m.Get("latest")
	if err != nil || latest.ID != backups[0].ID {
		t.Errorf("Get(latest) = %v, %v", latest, err)
	}
}

func TestListEmpty(t *testing.T) {
	m, _ := newTestManager(t)
	backups, err := m.List()
	if err != nil || len(backups) != 0 {
		t.Errorf("List() = %v, %v", backups, err)
	}
	if _, err := m.Get("latest"); !errors.Is(err, errors.NotFound) {
		t.Errorf("Get(latest) error = %v, want not found", err)
	}
}

func TestGetAndDeleteErrors(t *testing.T) {
	m, _ := newTestManager(t)
	tests := []struct {
		id   string
		want error
	}{
		{"20990101-000000.000", errors.NotFound},
		{"../RELEASES", errors.NotValid},
		{"", errors.NotValid},
	}
	for _, tt := range tests {
		if _, err := m.Get(tt.id); !errors.Is(err, tt.want) {
			t.Errorf("Get(%q) error = %v, want %v", tt.id, err, tt.want)
		}
		if err := m.Delete(tt.id); !errors.Is(err, tt.want) {
			t.Errorf("Delete(%q) error = %v, want %v", tt.id, err, tt.want)
		}
	}
}

func TestPrune(t *testing.T) {
	m, clk := newTestManager(t)
	for i := 0; i < 5; i++ {
		if _, err := m.Create("manifest", ""); err != nil {
			t.Fatal(err)
		}
		clk.Advance(time.Second)
	}

	result, err := m.Prune(2)
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if result.Kept != 2 || len(result.Deleted) != 3 {
		t.Errorf("Prune() = %+v", result)
	}
	backups, _ := m.List()
	if len(backups) != 2 || backups[0].ID != "20260301-120004.000" {
		t.Errorf("remaining = %+v", backups)
	}

	result, err = m.Prune(10)
	if err != nil || result.Kept != 2 || len(result.Deleted) != 0 {
		t.Errorf("Prune(10) = %+v, %v", result, err)
	}
	if _, err := m.Prune(-1); !errors.Is(err, errors.NotValid) {
		t.Errorf("Prune(-1) error = %v", err)
	}
}
