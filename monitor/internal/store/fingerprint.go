package store

import (
	"context"
	"database/sql"
	"time"
)

// RecordFingerprint registers a change ID as seen. Returns true when
// this call inserted the row, false when the ID was already present.
// INSERT OR IGNORE on the primary key makes this safe under concurrent
// admission of the same ID: exactly one caller gets true.
func (s *Store) RecordFingerprint(ctx context.Context, changeID, sourceID string) (bool, error) {
	res, err := s.DB.ExecContext(ctx,
		`INSERT OR IGNORE INTO fingerprints (change_id, source_id, first_seen)
		VALUES (?, ?, ?)`,
		changeID, sourceID, time.Now().UnixMilli())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ExistsFingerprint reports whether a change ID has been seen before.
func (s *Store) ExistsFingerprint(ctx context.Context, changeID string) (bool, error) {
	var one int
	err := s.DB.QueryRowContext(ctx,
		`SELECT 1 FROM fingerprints WHERE change_id = ?`, changeID).Scan(&one)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// CountFingerprints returns the total number of fingerprints, optionally
// scoped to one source (empty sourceID means all).
func (s *Store) CountFingerprints(ctx context.Context, sourceID string) (int, error) {
	var count int
	var err error
	if sourceID == "" {
		err = s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM fingerprints`).Scan(&count)
	} else {
		err = s.DB.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM fingerprints WHERE source_id = ?`, sourceID).Scan(&count)
	}
	return count, err
}
