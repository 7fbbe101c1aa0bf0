package backend

// migration holds a single schema migration with its target version and
// statements. Statements are executed one by one so the same list runs on
// SQLite and Postgres.
type migration struct {
	version int
	stmts   []string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	first_name    TEXT NOT NULL DEFAULT '',
	last_name     TEXT NOT NULL DEFAULT '',
	email         TEXT NOT NULL UNIQUE,
	role          TEXT NOT NULL,
	profile_image TEXT NOT NULL DEFAULT ''
)`,
			`CREATE TABLE IF NOT EXISTS notifications (
	id           TEXT PRIMARY KEY,
	recipient_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	sender_id    TEXT REFERENCES users(id) ON DELETE SET NULL,
	title        TEXT NOT NULL,
	message      TEXT NOT NULL DEFAULT '',
	type         TEXT NOT NULL DEFAULT 'info',
	is_read      BOOLEAN NOT NULL DEFAULT FALSE,
	meta         TEXT NOT NULL DEFAULT '{}',
	created_at   TIMESTAMP NOT NULL
)`,
			`CREATE INDEX IF NOT EXISTS idx_notifications_recipient
	ON notifications(recipient_id, created_at)`,
			`CREATE INDEX IF NOT EXISTS idx_users_role ON users(role)`,
		},
	},
	{
		version: 2,
		stmts: []string{
			`CREATE INDEX IF NOT EXISTS idx_notifications_unread
	ON notifications(recipient_id, is_read)`,
		},
	},
}
