package store

import (
	"context"
	"database/sql"
	"fmt"
)

// InsertCheckLog records one completed check.
func (s *Store) InsertCheckLog(ctx context.Context, e *CheckLogEntry) error {
	var statusCode any
	if e.StatusCode != 0 {
		statusCode = e.StatusCode
	}
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO check_log (id, source_id, status, status_code, error_kind,
		error_detail, new_changes, duplicates, duration_ms, checked_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.SourceID, e.Status, statusCode, e.ErrorKind,
		e.ErrorDetail, e.NewChanges, e.Duplicates, e.DurationMs, e.CheckedAt,
	)
	return err
}

// CheckHistory returns the newest check log entries first, optionally
// scoped to one source (empty sourceID means all).
func (s *Store) CheckHistory(ctx context.Context, sourceID string, limit int) ([]*CheckLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows *sql.Rows
	var err error
	if sourceID == "" {
		rows, err = s.DB.QueryContext(ctx,
			`SELECT id, source_id, status, status_code, error_kind, error_detail,
			new_changes, duplicates, duration_ms, checked_at
			FROM check_log ORDER BY checked_at DESC LIMIT ?`, limit)
	} else {
		rows, err = s.DB.QueryContext(ctx,
			`SELECT id, source_id, status, status_code, error_kind, error_detail,
			new_changes, duplicates, duration_ms, checked_at
			FROM check_log WHERE source_id = ?
			ORDER BY checked_at DESC LIMIT ?`, sourceID, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*CheckLogEntry
	for rows.Next() {
		var e CheckLogEntry
		var statusCode sql.NullInt64
		err := rows.Scan(
			&e.ID, &e.SourceID, &e.Status, &statusCode, &e.ErrorKind,
			&e.ErrorDetail, &e.NewChanges, &e.Duplicates, &e.DurationMs, &e.CheckedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan check log: %w", err)
		}
		if statusCode.Valid {
			e.StatusCode = int(statusCode.Int64)
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// PruneCheckLog deletes check log entries older than the cutoff
// (Unix ms). Returns the number of rows removed.
func (s *Store) PruneCheckLog(ctx context.Context, cutoff int64) (int64, error) {
	res, err := s.DB.ExecContext(ctx,
		`DELETE FROM check_log WHERE checked_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
