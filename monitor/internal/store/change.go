package store

import (
	"context"
	"database/sql"
	"fmt"
)

// InsertChange persists a detected change. The caller must have
// recorded the fingerprint first; the foreign key enforces it.
func (s *Store) InsertChange(ctx context.Context, c *ChangeRecord) error {
	var published any
	if c.PublishedAt != 0 {
		published = c.PublishedAt
	}
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO changes (change_id, source_id, source_name, title, content_url,
		description, impact, published_at, detected_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ChangeID, c.SourceID, c.SourceName, c.Title, c.ContentURL,
		c.Description, c.Impact, published, c.DetectedAt,
	)
	return err
}

// GetChange retrieves one change by ID, or nil when absent.
func (s *Store) GetChange(ctx context.Context, changeID string) (*ChangeRecord, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT change_id, source_id, source_name, title, content_url,
		description, impact, published_at, detected_at
		FROM changes WHERE change_id = ?`, changeID)
	c, err := scanChange(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return c, err
}

// RecentChanges returns the newest changes first, optionally scoped to
// one source (empty sourceID means all).
func (s *Store) RecentChanges(ctx context.Context, sourceID string, limit int) ([]*ChangeRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows *sql.Rows
	var err error
	if sourceID == "" {
		rows, err = s.DB.QueryContext(ctx,
			`SELECT change_id, source_id, source_name, title, content_url,
			description, impact, published_at, detected_at
			FROM changes ORDER BY detected_at DESC LIMIT ?`, limit)
	} else {
		rows, err = s.DB.QueryContext(ctx,
			`SELECT change_id, source_id, source_name, title, content_url,
			description, impact, published_at, detected_at
			FROM changes WHERE source_id = ?
			ORDER BY detected_at DESC LIMIT ?`, sourceID, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var changes []*ChangeRecord
	for rows.Next() {
		c, err := scanChange(rows.Scan)
		if err != nil {
			return nil, err
		}
		changes = append(changes, c)
	}
	return changes, rows.Err()
}

// DeleteChangesForSource removes all changes and fingerprints for a
// source. Used when a source is removed with purge.
func (s *Store) DeleteChangesForSource(ctx context.Context, sourceID string) error {
	if _, err := s.DB.ExecContext(ctx,
		`DELETE FROM changes WHERE source_id = ?`, sourceID); err != nil {
		return err
	}
	_, err := s.DB.ExecContext(ctx,
		`DELETE FROM fingerprints WHERE source_id = ?`, sourceID)
	return err
}

func scanChange(scan func(...any) error) (*ChangeRecord, error) {
	var c ChangeRecord
	var published sql.NullInt64
	err := scan(
		&c.ChangeID, &c.SourceID, &c.SourceName, &c.Title, &c.ContentURL,
		&c.Description, &c.Impact, &published, &c.DetectedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scan change: %w", err)
	}
	if published.Valid {
		c.PublishedAt = published.Int64
	}
	return &c, nil
}
