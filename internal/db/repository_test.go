package db

import (
	"path/filepath"
	"testing"
	"time"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewRepository(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("NewRepository() error = %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestNewRepository_CreatesSchema(t *testing.T) {
	repo := newTestRepository(t)

	for _, table := range []string{"events", "scan_cycles"} {
		var name string
		err := repo.DB.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}
}

func TestRecordCycle_Lifecycle(t *testing.T) {
	repo := newTestRepository(t)

	started := time.Now().UTC()
	if err := repo.RecordCycleStart("cycle-1", started); err != nil {
		t.Fatalf("RecordCycleStart() error = %v", err)
	}

	cycles, err := repo.RecentCycles(10)
	if err != nil {
		t.Fatalf("RecentCycles() error = %v", err)
	}
	if len(cycles) != 1 {
		t.Fatalf("got %d cycles, want 1", len(cycles))
	}
	if cycles[0].Status != CycleStatusRunning {
		t.Errorf("Status = %q, want running", cycles[0].Status)
	}
	if cycles[0].CompletedAt != nil {
		t.Error("CompletedAt should be nil for a running cycle")
	}

	if err := repo.RecordCycleEnd("cycle-1", CycleStatusCompleted, started.Add(2*time.Second), 10, 9, 1, ""); err != nil {
		t.Fatalf("RecordCycleEnd() error = %v", err)
	}

	cycles, err = repo.RecentCycles(10)
	if err != nil {
		t.Fatalf("RecentCycles() error = %v", err)
	}
	c := cycles[0]
	if c.Status != CycleStatusCompleted {
		t.Errorf("Status = %q, want completed", c.Status)
	}
	if c.Fetched != 10 || c.Scanned != 9 || c.Failed != 1 {
		t.Errorf("tallies = %d/%d/%d, want 10/9/1", c.Fetched, c.Scanned, c.Failed)
	}
	if c.CompletedAt == nil {
		t.Error("CompletedAt should be set after RecordCycleEnd")
	}
}

func TestRecentCycles_OrderAndLimit(t *testing.T) {
	repo := newTestRepository(t)

	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		id := string(rune('a' + i))
		if err := repo.RecordCycleStart(id, base.Add(time.Duration(i)*time.Minute)); err != nil {
			t.Fatalf("RecordCycleStart(%s) error = %v", id, err)
		}
	}

	cycles, err := repo.RecentCycles(3)
	if err != nil {
		t.Fatalf("RecentCycles() error = %v", err)
	}
	if len(cycles) != 3 {
		t.Fatalf("got %d cycles, want 3", len(cycles))
	}
	if cycles[0].ID != "e" || cycles[2].ID != "c" {
		t.Errorf("order wrong: %s, %s, %s (want e, d, c)", cycles[0].ID, cycles[1].ID, cycles[2].ID)
	}
}

func TestRunMaintenance_PrunesOldRows(t *testing.T) {
	repo := newTestRepository(t)

	old := time.Now().AddDate(0, 0, -120).UTC()
	recent := time.Now().UTC()

	if err := repo.RecordCycleStart("old", old); err != nil {
		t.Fatal(err)
	}
	if err := repo.RecordCycleEnd("old", CycleStatusCompleted, old.Add(time.Second), 1, 1, 0, ""); err != nil {
		t.Fatal(err)
	}
	if err := repo.RecordCycleStart("recent", recent); err != nil {
		t.Fatal(err)
	}

	if _, err := ExecWithRetry(repo.DB,
		"INSERT INTO events (aggregate_type, aggregate_id, event_type, event_data, created_at) VALUES (?, ?, ?, ?, ?)",
		"cycle", "old", "CycleCompleted", "{}", old); err != nil {
		t.Fatal(err)
	}

	if err := repo.RunMaintenance(90); err != nil {
		t.Fatalf("RunMaintenance() error = %v", err)
	}

	var cycleCount, eventCount int
	if err := repo.DB.QueryRow("SELECT COUNT(*) FROM scan_cycles").Scan(&cycleCount); err != nil {
		t.Fatal(err)
	}
	if err := repo.DB.QueryRow("SELECT COUNT(*) FROM events").Scan(&eventCount); err != nil {
		t.Fatal(err)
	}

	if cycleCount != 1 {
		t.Errorf("cycle count = %d, want 1 (old pruned, recent kept)", cycleCount)
	}
	if eventCount != 0 {
		t.Errorf("event count = %d, want 0", eventCount)
	}
}

func TestRunMaintenance_RetentionDisabled(t *testing.T) {
	repo := newTestRepository(t)

	old := time.Now().AddDate(0, 0, -120).UTC()
	if err := repo.RecordCycleStart("old", old); err != nil {
		t.Fatal(err)
	}
	if err := repo.RecordCycleEnd("old", CycleStatusCompleted, old, 0, 0, 0, ""); err != nil {
		t.Fatal(err)
	}

	if err := repo.RunMaintenance(0); err != nil {
		t.Fatalf("RunMaintenance() error = %v", err)
	}

	var count int
	if err := repo.DB.QueryRow("SELECT COUNT(*) FROM scan_cycles").Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("cycle count = %d, want 1 (pruning disabled)", count)
	}
}
