package server

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Event records the outcome of one lifecycle operation.
type Event struct {
	ID         string    `json:"id"`
	ServerID   string    `json:"server_id"`
	Action     Action    `json:"action"`
	Success    bool      `json:"success"`
	Message    string    `json:"message"`
	State      State     `json:"state"`
	DurationMs int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// Recorder persists status snapshots and lifecycle events.
type Recorder interface {
	RecordStatus(ctx context.Context, serverID string, status Status, errorMsg string) error
	RecordEvent(ctx context.Context, event Event) error
}

// SQLRecorder writes to the server_status and lifecycle_events tables.
type SQLRecorder struct {
	db *sql.DB
}

func NewSQLRecorder(db *sql.DB) *SQLRecorder {
	return &SQLRecorder{db: db}
}

func (r *SQLRecorder) RecordStatus(ctx context.Context, serverID string, status Status, errorMsg string) error {
	if r == nil || r.db == nil {
		return nil
	}

	query := `
		INSERT INTO server_status (
			server_id, status, pid, memory_bytes, cpu_percent, uptime_seconds,
			error_message, last_checked, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(server_id) DO UPDATE SET
			status = excluded.status,
			pid = excluded.pid,
			memory_bytes = excluded.memory_bytes,
			cpu_percent = excluded.cpu_percent,
			uptime_seconds = excluded.uptime_seconds,
			error_message = excluded.error_message,
			last_checked = excluded.last_checked,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, query,
		serverID,
		string(status.State),
		status.PID,
		int64(status.MemoryBytes),
		status.CPUPercent,
		status.UptimeSeconds,
		errorMsg,
		status.CheckedAt,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to update server status: %w", err)
	}
	return nil
}

func (r *SQLRecorder) RecordEvent(ctx context.Context, event Event) error {
	if r == nil || r.db == nil {
		return nil
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO lifecycle_events (id, server_id, action, success, message, state, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, event.ID, event.ServerID, string(event.Action), event.Success, event.Message, string(event.State), event.DurationMs, event.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record lifecycle event: %w", err)
	}

	column := ""
	switch {
	case event.Success && event.Action == ActionStart, event.Success && event.Action == ActionRestart:
		column = "last_started"
	case event.Success && event.Action == ActionStop:
		column = "last_stopped"
	}
	if column != "" {
		if _, err := r.db.ExecContext(ctx, `UPDATE server_status SET `+column+` = ? WHERE server_id = ?`, event.CreatedAt, event.ServerID); err != nil {
			return fmt.Errorf("failed to update %s: %w", column, err)
		}
	}
	return nil
}

// ListEvents returns the most recent events, newest first.
func (r *SQLRecorder) ListEvents(ctx context.Context, serverID string, limit int) ([]Event, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("database not available")
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, server_id, action, success, message, state, duration_ms, created_at
		FROM lifecycle_events
		WHERE server_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, serverID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query lifecycle events: %w", err)
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		var ev Event
		var action, state string
		if err := rows.Scan(&ev.ID, &ev.ServerID, &action, &ev.Success, &ev.Message, &state, &ev.DurationMs, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan lifecycle event: %w", err)
		}
		ev.Action = Action(action)
		ev.State = State(state)
		events = append(events, ev)
	}
	return events, rows.Err()
}

// LastStatus returns the last recorded status and error message.
func (r *SQLRecorder) LastStatus(ctx context.Context, serverID string) (Status, string, error) {
	if r == nil || r.db == nil {
		return Status{}, "", fmt.Errorf("database not available")
	}

	var (
		st       Status
		state    string
		memory   int64
		errorMsg sql.NullString
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT status, pid, memory_bytes, cpu_percent, uptime_seconds, error_message, last_checked
		FROM server_status WHERE server_id = ?
	`, serverID).Scan(&state, &st.PID, &memory, &st.CPUPercent, &st.UptimeSeconds, &errorMsg, &st.CheckedAt)
	if err != nil {
		return Status{}, "", err
	}

	st.State = State(state)
	st.Running = st.State == StateRunning
	st.MemoryBytes = uint64(memory)
	return st, errorMsg.String, nil
}
