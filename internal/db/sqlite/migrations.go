package sqlite

type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations. Version 1 mirrors the
// PostgreSQL alert tables; version 2 adds the application tables that a
// standalone database needs for the scope reads.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS alerts (
	id             TEXT PRIMARY KEY,
	kind           TEXT NOT NULL,
	status         TEXT NOT NULL CHECK (status IN ('pending', 'snoozed', 'dismissed')),
	student_id     TEXT NOT NULL,
	application_id TEXT,
	subject_key    TEXT NOT NULL,
	cause_key      TEXT NOT NULL,
	created_at     TEXT NOT NULL,
	last_sent_at   TEXT,
	snooze_until   TEXT,
	dismissed_at   TEXT,
	CHECK ((status = 'snoozed') = (snooze_until IS NOT NULL))
);

CREATE UNIQUE INDEX IF NOT EXISTS alerts_one_active_idx
	ON alerts (subject_key, kind)
	WHERE status IN ('pending', 'snoozed');

CREATE INDEX IF NOT EXISTS alerts_student_idx ON alerts (student_id);
CREATE INDEX IF NOT EXISTS alerts_cause_idx ON alerts (subject_key, kind, cause_key);

CREATE TABLE IF NOT EXISTS job_runs (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	job           TEXT NOT NULL,
	started_at    TEXT NOT NULL,
	finished_at   TEXT,
	status        TEXT NOT NULL,
	created_count INTEGER NOT NULL DEFAULT 0,
	sent_count    INTEGER NOT NULL DEFAULT 0,
	failure_count INTEGER NOT NULL DEFAULT 0,
	error         TEXT
);
`,
	},
	{
		version: 2,
		sql: `
CREATE TABLE IF NOT EXISTS students (
	id    TEXT PRIMARY KEY,
	email TEXT NOT NULL,
	name  TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS scholarships (
	id       TEXT PRIMARY KEY,
	name     TEXT NOT NULL,
	amount   TEXT NOT NULL DEFAULT '0',
	deadline TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS applications (
	id               TEXT PRIMARY KEY,
	student_id       TEXT NOT NULL REFERENCES students (id),
	scholarship_id   TEXT NOT NULL REFERENCES scholarships (id),
	status           TEXT NOT NULL,
	last_activity_at TEXT
);

CREATE TABLE IF NOT EXISTS recommendation_requests (
	id               TEXT PRIMARY KEY,
	application_id   TEXT NOT NULL REFERENCES applications (id),
	recommender_name TEXT NOT NULL,
	status           TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS funding_goals (
	id            TEXT PRIMARY KEY,
	student_id    TEXT NOT NULL REFERENCES students (id),
	target_amount TEXT NOT NULL,
	active        INTEGER NOT NULL DEFAULT 1,
	updated_at    TEXT NOT NULL
);
`,
	},
}
