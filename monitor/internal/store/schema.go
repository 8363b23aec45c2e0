package store

import "database/sql"

// Schema is the complete monitor schema.
const Schema = `
-- Content fingerprints: one row per change ever admitted.
-- The PRIMARY KEY makes duplicate admission a no-op under INSERT OR IGNORE.
CREATE TABLE IF NOT EXISTS fingerprints (
    change_id   TEXT PRIMARY KEY,
    source_id   TEXT NOT NULL,
    first_seen  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_fingerprints_source ON fingerprints(source_id, first_seen DESC);

-- Detected changes: the durable record behind every emitted event.
CREATE TABLE IF NOT EXISTS changes (
    change_id    TEXT PRIMARY KEY REFERENCES fingerprints(change_id),
    source_id    TEXT NOT NULL,
    source_name  TEXT NOT NULL DEFAULT '',
    title        TEXT NOT NULL,
    content_url  TEXT NOT NULL,
    description  TEXT NOT NULL DEFAULT '',
    impact       TEXT NOT NULL DEFAULT 'MEDIUM',
    published_at INTEGER,
    detected_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_changes_detected ON changes(detected_at DESC);
CREATE INDEX IF NOT EXISTS idx_changes_source ON changes(source_id, detected_at DESC);

-- Check log (observability): one row per completed source check.
CREATE TABLE IF NOT EXISTS check_log (
    id           TEXT PRIMARY KEY,
    source_id    TEXT NOT NULL,
    status       TEXT NOT NULL,
    status_code  INTEGER,
    error_kind   TEXT NOT NULL DEFAULT '',
    error_detail TEXT NOT NULL DEFAULT '',
    new_changes  INTEGER NOT NULL DEFAULT 0,
    duplicates   INTEGER NOT NULL DEFAULT 0,
    duration_ms  INTEGER NOT NULL DEFAULT 0,
    checked_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_check_log_source ON check_log(source_id, checked_at DESC);
CREATE INDEX IF NOT EXISTS idx_check_log_time ON check_log(checked_at DESC);
`

// ApplySchema creates all tables and indexes on the given database.
func ApplySchema(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}
