package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"pulsebot/internal/model"
)

const sourceCols = "id, url, name, paused, pause_reason, consecutive_failures, last_failure_at"

func scanSource(row interface{ Scan(...any) error }) (*model.Source, error) {
	var (
		src    model.Source
		paused int64
		lastMS sql.NullInt64
		reason string
	)
	err := row.Scan(&src.ID, &src.URL, &src.Name, &paused, &reason, &src.ConsecutiveFailures, &lastMS)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	src.Paused = paused != 0
	src.PauseReason = model.PauseReason(reason)
	src.LastFailureAt = millisToTime(lastMS)
	return &src, nil
}

// CreateSource inserts a source row for a normalized URL. If the URL already
// exists the existing row is returned.
func (s *Store) CreateSource(ctx context.Context, url, name string) (*model.Source, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sources(url, name, created_at) VALUES(?,?,?)
		 ON CONFLICT(url) DO NOTHING`,
		url, name, time.Now().UnixMilli(),
	)
	if err != nil {
		return nil, err
	}
	return s.SourceByURL(ctx, url)
}

func (s *Store) SourceByURL(ctx context.Context, url string) (*model.Source, error) {
	return scanSource(s.db.QueryRowContext(ctx, `SELECT `+sourceCols+` FROM sources WHERE url = ?`, url))
}

func (s *Store) SourceByID(ctx context.Context, id int64) (*model.Source, error) {
	return scanSource(s.db.QueryRowContext(ctx, `SELECT `+sourceCols+` FROM sources WHERE id = ?`, id))
}

// ListActiveSources returns every source not currently paused, in id order.
func (s *Store) ListActiveSources(ctx context.Context) ([]model.Source, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sourceCols+` FROM sources WHERE paused = 0 ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *src)
	}
	return out, rows.Err()
}

// UpdateSourceHealth persists the breaker-owned fields of a source.
func (s *Store) UpdateSourceHealth(ctx context.Context, src *model.Source) error {
	paused := 0
	if src.Paused {
		paused = 1
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE sources
		 SET paused = ?, pause_reason = ?, consecutive_failures = ?, last_failure_at = ?
		 WHERE id = ?`,
		paused, string(src.PauseReason), src.ConsecutiveFailures, nullMillis(src.LastFailureAt), src.ID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteSourceIfOrphaned removes a source that no subscription references
// anymore. Reports whether a row was deleted.
func (s *Store) DeleteSourceIfOrphaned(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM sources
		 WHERE id = ? AND NOT EXISTS (SELECT 1 FROM subscriptions WHERE source_id = ?)`,
		id, id,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
