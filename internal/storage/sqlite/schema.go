package sqlite

import "github.com/steveyegge/steward/internal/storage/migrations"

// schemaMigrations is the SQLite schema history. Append new versions; never
// edit an applied one.
var schemaMigrations = []migrations.Migration{
	{
		Version:     1,
		Description: "approval requests, audit events, tasks",
		Up: `
-- Approval requests are append-only; resolution happens outside the agent
CREATE TABLE IF NOT EXISTS approval_requests (
    id TEXT PRIMARY KEY,
    source_id TEXT NOT NULL,
    type TEXT NOT NULL,
    title TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    risk TEXT NOT NULL DEFAULT '',
    estimated_cost_usd REAL NOT NULL DEFAULT 0,
    estimated_tokens INTEGER NOT NULL DEFAULT 0,
    reversible INTEGER NOT NULL DEFAULT 1,
    reason TEXT NOT NULL DEFAULT '',
    metadata TEXT NOT NULL DEFAULT '{}',
    created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_approval_requests_created ON approval_requests(created_at);
CREATE INDEX IF NOT EXISTS idx_approval_requests_source ON approval_requests(source_id);

CREATE TABLE IF NOT EXISTS audit_events (
    id TEXT PRIMARY KEY,
    action TEXT NOT NULL,
    agent TEXT NOT NULL,
    trust_level TEXT NOT NULL,
    severity TEXT NOT NULL,
    details TEXT NOT NULL DEFAULT '{}',
    timestamp DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_events_timestamp ON audit_events(timestamp);
CREATE INDEX IF NOT EXISTS idx_audit_events_severity ON audit_events(severity, timestamp);

CREATE TABLE IF NOT EXISTS tasks (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    class TEXT NOT NULL,
    estimated_tokens INTEGER NOT NULL DEFAULT 0,
    payload TEXT NOT NULL DEFAULT '{}',
    status TEXT NOT NULL DEFAULT 'pending' CHECK(status IN ('pending', 'completed', 'failed')),
    failure_reason TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status, created_at);
`,
		Down: `
DROP TABLE IF EXISTS tasks;
DROP TABLE IF EXISTS audit_events;
DROP TABLE IF EXISTS approval_requests;
`,
	},
}
