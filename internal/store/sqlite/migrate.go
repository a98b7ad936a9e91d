package sqlite

import (
	"context"
	"fmt"
)

// schema holds the durable layout. Length and range checks mirror the
// invariants the application layer enforces so a bypassing writer cannot
// corrupt the ledger.
const schema = `
CREATE TABLE IF NOT EXISTS users (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	handle         TEXT NOT NULL UNIQUE CHECK (length(handle) BETWEEN 3 AND 20),
	password_hash  TEXT NOT NULL DEFAULT '',
	created_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	last_active_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS rooms (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	name       TEXT NOT NULL UNIQUE CHECK (length(name) BETWEEN 3 AND 50),
	creator_id INTEGER NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	deleted_at DATETIME,
	FOREIGN KEY (creator_id) REFERENCES users(id)
);

CREATE TABLE IF NOT EXISTS messages (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	room_id     INTEGER NOT NULL,
	sender_id   INTEGER NOT NULL,
	content     TEXT NOT NULL CHECK (length(content) BETWEEN 1 AND 2000),
	client_ts   INTEGER NOT NULL CHECK (client_ts > 0),
	status      TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'sent', 'failed')),
	retry_count INTEGER NOT NULL DEFAULT 0 CHECK (retry_count BETWEEN 0 AND 3),
	created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (room_id) REFERENCES rooms(id),
	FOREIGN KEY (sender_id) REFERENCES users(id)
);

CREATE INDEX IF NOT EXISTS idx_messages_room_ts ON messages(room_id, client_ts DESC);
CREATE INDEX IF NOT EXISTS idx_rooms_active ON rooms(created_at DESC) WHERE deleted_at IS NULL;
`

// Migrate applies the schema. Statements are idempotent so re-running a
// migration against a provisioned database is safe.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Schema returns the raw schema SQL, exposed for test setups.
func Schema() string {
	return schema
}
