package server

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/Yupick/mc-simple/internal/database"
)

func newTestRecorder(t *testing.T) *SQLRecorder {
	t.Helper()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "status.db"))
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return NewSQLRecorder(db.DB)
}

func TestSQLRecorderStatusUpsert(t *testing.T) {
	rec := newTestRecorder(t)
	ctx := context.Background()

	first := Status{State: StateRunning, Running: true, PID: 4242, MemoryBytes: 1 << 30, CPUPercent: 12.5, UptimeSeconds: 60, CheckedAt: time.Now()}
	if err := rec.RecordStatus(ctx, "survival", first, ""); err != nil {
		t.Fatalf("RecordStatus failed: %v", err)
	}
	second := Status{State: StateStopped, CheckedAt: time.Now()}
	if err := rec.RecordStatus(ctx, "survival", second, "exited"); err != nil {
		t.Fatalf("RecordStatus failed: %v", err)
	}

	got, errMsg, err := rec.LastStatus(ctx, "survival")
	if err != nil {
		t.Fatalf("LastStatus failed: %v", err)
	}
	if got.State != StateStopped || got.Running || got.PID != 0 || errMsg != "exited" {
		t.Errorf("expected the second snapshot to win, got %+v (%q)", got, errMsg)
	}
}

func TestSQLRecorderEvents(t *testing.T) {
	rec := newTestRecorder(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Minute)

	if err := rec.RecordStatus(ctx, "survival", Status{State: StateStopped, CheckedAt: base}, ""); err != nil {
		t.Fatalf("RecordStatus failed: %v", err)
	}

	events := []Event{
		{ID: "a", ServerID: "survival", Action: ActionStart, Success: true, Message: "Server started", State: StateRunning, CreatedAt: base},
		{ID: "b", ServerID: "survival", Action: ActionStop, Success: false, Message: "server is not running", State: StateStopped, CreatedAt: base.Add(time.Second)},
		{ID: "c", ServerID: "creative", Action: ActionStart, Success: true, State: StateRunning, CreatedAt: base.Add(2 * time.Second)},
	}
	for _, ev := range events {
		if err := rec.RecordEvent(ctx, ev); err != nil {
			t.Fatalf("RecordEvent %s failed: %v", ev.ID, err)
		}
	}

	listed, err := rec.ListEvents(ctx, "survival", 0)
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	if len(listed) != 2 {
		t.Fatalf("expected 2 events for survival, got %d", len(listed))
	}
	if listed[0].ID != "b" || listed[1].ID != "a" {
		t.Errorf("expected newest first, got %s, %s", listed[0].ID, listed[1].ID)
	}
	if listed[0].Action != ActionStop || listed[0].Success {
		t.Errorf("unexpected event %+v", listed[0])
	}

	var started, stopped sql.NullTime
	if err := rec.db.QueryRow(`SELECT last_started, last_stopped FROM server_status WHERE server_id = ?`, "survival").Scan(&started, &stopped); err != nil {
		t.Fatalf("failed to read timestamps: %v", err)
	}
	if !started.Valid {
		t.Error("expected last_started after a successful start")
	}
	if stopped.Valid {
		t.Error("a failed stop must not set last_stopped")
	}
}

func TestNilRecorderIsNoop(t *testing.T) {
	var rec *SQLRecorder
	if err := rec.RecordStatus(context.Background(), "x", Status{}, ""); err != nil {
		t.Errorf("expected nil recorder to ignore status, got %v", err)
	}
	if err := rec.RecordEvent(context.Background(), Event{}); err != nil {
		t.Errorf("expected nil recorder to ignore events, got %v", err)
	}
}
