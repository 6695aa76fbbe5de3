package store

// migration represents a single schema migration.
type migration struct {
	Version int
	Name    string
	SQL     string
}

// migrations is the ordered list of all schema migrations.
var migrations = []migration{
	{
		Version: 1,
		Name:    "create runs and event ledger",
		SQL: `
			CREATE TABLE runs (
				id           TEXT PRIMARY KEY,
				event_id     TEXT NOT NULL,
				agent_id     TEXT NOT NULL,
				event_type   TEXT NOT NULL,
				status       TEXT NOT NULL,
				error        TEXT NOT NULL DEFAULT '',
				attempts     TEXT NOT NULL DEFAULT '[]',
				outcomes     TEXT NOT NULL DEFAULT '{}',
				started_at   TEXT NOT NULL,
				finished_at  TEXT NOT NULL DEFAULT ''
			);

			CREATE INDEX idx_runs_agent ON runs (agent_id, started_at);
			CREATE INDEX idx_runs_event ON runs (event_id);

			CREATE TABLE events_seen (
				event_id     TEXT PRIMARY KEY,
				received_at  TEXT NOT NULL
			);
		`,
	},
	{
		Version: 2,
		Name:    "create usage and invoice lines",
		SQL: `
			CREATE TABLE usage (
				id            INTEGER PRIMARY KEY AUTOINCREMENT,
				agent_id      TEXT NOT NULL,
				event_id      TEXT NOT NULL,
				event_type    TEXT NOT NULL,
				duration_sec  INTEGER NOT NULL DEFAULT 0,
				credits       REAL NOT NULL DEFAULT 0,
				at            TEXT NOT NULL
			);

			CREATE INDEX idx_usage_agent ON usage (agent_id, at);

			CREATE TABLE invoice_lines (
				id        INTEGER PRIMARY KEY AUTOINCREMENT,
				agent_id  TEXT NOT NULL,
				event_id  TEXT NOT NULL,
				credits   REAL NOT NULL DEFAULT 0,
				amount    REAL NOT NULL DEFAULT 0,
				currency  TEXT NOT NULL DEFAULT 'USD',
				at        TEXT NOT NULL
			);

			CREATE INDEX idx_invoice_agent ON invoice_lines (agent_id, at);
		`,
	},
}
