package store

// Schema is the clonepages database schema. Every statement is
// idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id          TEXT PRIMARY KEY,
	url         TEXT NOT NULL DEFAULT '',
	state       TEXT NOT NULL DEFAULT 'IDLE',
	last_error  TEXT NOT NULL DEFAULT '',
	created_at  INTEGER NOT NULL,
	updated_at  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS update_journal (
	session_id  TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	seq         INTEGER NOT NULL,
	url         TEXT NOT NULL DEFAULT '',
	xpath       TEXT NOT NULL,
	type        TEXT NOT NULL,
	property    TEXT NOT NULL DEFAULT '',
	value       TEXT NOT NULL DEFAULT '',
	metadata    TEXT NOT NULL DEFAULT '{}',
	outcome     TEXT NOT NULL,
	detail      TEXT NOT NULL DEFAULT '',
	at          INTEGER NOT NULL,
	PRIMARY KEY (session_id, seq)
);

CREATE TABLE IF NOT EXISTS exports (
	session_id  TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	html_sha256 TEXT NOT NULL,
	size        INTEGER NOT NULL,
	at          INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_exports_session ON exports(session_id, at);
`
