package store

// schema creates the session, audit and reference tables. Phase events are
// append-only; sessions carry the only mutable columns.
const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id             TEXT PRIMARY KEY,
	user_id        TEXT NOT NULL,
	mode_id        TEXT NOT NULL,
	current_phase  TEXT NOT NULL,
	departure_icao TEXT NOT NULL,
	arrival_icao   TEXT NOT NULL DEFAULT '',
	active_icao    TEXT NOT NULL,
	squawk         TEXT NOT NULL DEFAULT '',
	scratch        TEXT NOT NULL DEFAULT '',
	completed      INTEGER NOT NULL DEFAULT 0,
	created_at     DATETIME NOT NULL,
	updated_at     DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id, completed);

CREATE TABLE IF NOT EXISTS phase_events (
	id         TEXT PRIMARY KEY,
	session_id TEXT NOT NULL REFERENCES sessions(id),
	from_phase TEXT NOT NULL,
	to_phase   TEXT NOT NULL,
	scratch    TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_phase_events_session ON phase_events(session_id, created_at);

CREATE TABLE IF NOT EXISTS transmissions (
	id         TEXT PRIMARY KEY,
	session_id TEXT NOT NULL REFERENCES sessions(id),
	speaker    TEXT NOT NULL,
	phase      TEXT NOT NULL,
	trigger_type TEXT NOT NULL DEFAULT '',
	message    TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transmissions_session ON transmissions(session_id, created_at);

CREATE TABLE IF NOT EXISTS airports (
	icao       TEXT PRIMARY KEY,
	data       TEXT NOT NULL,
	updated_at DATETIME NOT NULL
);
`
