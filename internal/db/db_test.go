package db

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func openTest(t *testing.T) string {
	t.Helper()
	return "file:" + uuid.NewString() + "?mode=memory&cache=shared"
}

func TestOpen_AppliesMigrations(t *testing.T) {
	d, err := Open(openTest(t))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })

	migs, err := Status(d)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if len(migs) < 2 {
		t.Fatalf("expected at least 2 migrations, got %d", len(migs))
	}
	for _, m := range migs {
		if !m.Applied {
			t.Fatalf("migration %04d_%s not applied", m.Version, m.Name)
		}
	}
	for _, table := range []string{"drones", "missions", "mission_history"} {
		var n int
		if err := d.QueryRow(`SELECT count(*) FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&n); err != nil || n != 1 {
			t.Fatalf("table %s missing: n=%d err=%v", table, n, err)
		}
	}
}

func TestRollbackLast_RevertsNewestMigration(t *testing.T) {
	d, err := Open(openTest(t))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })

	v, err := RollbackLast(d)
	if err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if v != 2 {
		t.Fatalf("rolled back version = %d, want 2", v)
	}
	var n int
	_ = d.QueryRow(`SELECT count(*) FROM sqlite_master WHERE type='table' AND name='missions'`).Scan(&n)
	if n != 0 {
		t.Fatalf("missions table should be gone after rollback")
	}
	// Re-applying brings it back.
	if err := applyMigrations(d); err != nil {
		t.Fatalf("reapply: %v", err)
	}
	_ = d.QueryRow(`SELECT count(*) FROM sqlite_master WHERE type='table' AND name='missions'`).Scan(&n)
	if n != 1 {
		t.Fatalf("missions table should exist after reapply")
	}
}

func TestFormatParseTime_RoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 30, 45, 123456789, time.FixedZone("X", 3600))
	got, err := ParseTime(FormatTime(now))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !got.Equal(now) {
		t.Fatalf("round trip mismatch: %v vs %v", got, now)
	}
	if _, err := ParseTime("not a time"); err == nil {
		t.Fatalf("expected parse error")
	}
}
