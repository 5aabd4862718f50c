package database

// Migration represents a database migration
type Migration struct {
	Version string
	Up      string
}

// migrations contains all database migrations in order
var migrations = []Migration{
	{
		Version: "001_server_status",
		Up: `
-- One row per supervised server, overwritten on every probe
CREATE TABLE server_status (
    server_id TEXT PRIMARY KEY,
    status TEXT NOT NULL DEFAULT 'unknown',
    pid INTEGER NOT NULL DEFAULT 0,
    memory_bytes INTEGER NOT NULL DEFAULT 0,
    cpu_percent REAL NOT NULL DEFAULT 0,
    uptime_seconds INTEGER NOT NULL DEFAULT 0,
    error_message TEXT,
    last_started DATETIME,
    last_stopped DATETIME,
    last_checked DATETIME NOT NULL,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
`,
	},
	{
		Version: "002_lifecycle_events",
		Up: `
CREATE TABLE lifecycle_events (
    id TEXT PRIMARY KEY,
    server_id TEXT NOT NULL,
    action TEXT NOT NULL,
    success BOOLEAN NOT NULL,
    message TEXT NOT NULL DEFAULT '',
    state TEXT NOT NULL DEFAULT 'unknown',
    duration_ms INTEGER NOT NULL DEFAULT 0,
    created_at DATETIME NOT NULL
);

CREATE INDEX idx_lifecycle_events_server ON lifecycle_events(server_id, created_at);
`,
	},
}
