package storage

import (
	"context"
	"fmt"

	"pulsebot/internal/model"
)

// maxCustomLinks bounds buttons per subscription to one keyboard row block.
const maxCustomLinks = 10

// CustomLinks returns a subscription's extra links in display order.
func (s *Store) CustomLinks(ctx context.Context, subscriptionID int64) ([]model.CustomLink, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, subscription_id, label, url, emoji, position
		 FROM custom_links WHERE subscription_id = ? ORDER BY position, id`,
		subscriptionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.CustomLink
	for rows.Next() {
		var l model.CustomLink
		if err := rows.Scan(&l.ID, &l.SubscriptionID, &l.Label, &l.URL, &l.Emoji, &l.Position); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// AddCustomLink appends a link at the end of the order. Emoji must already be
// validated by the caller.
func (s *Store) AddCustomLink(ctx context.Context, link *model.CustomLink) error {
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM custom_links WHERE subscription_id = ?`, link.SubscriptionID,
	).Scan(&n); err != nil {
		return err
	}
	if n >= maxCustomLinks {
		return fmt.Errorf("%w: at most %d custom links", ErrLimit, maxCustomLinks)
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO custom_links(subscription_id, label, url, emoji, position)
		 VALUES(?,?,?,?,?)`,
		link.SubscriptionID, link.Label, link.URL, link.Emoji, n,
	)
	if err != nil {
		return err
	}
	link.ID, err = res.LastInsertId()
	link.Position = n
	return err
}

func (s *Store) DeleteCustomLink(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM custom_links WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// MoveCustomLink swaps a link with its neighbor above (up) or below (down).
// Moving past either end is a no-op.
func (s *Store) MoveCustomLink(ctx context.Context, id int64, up bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var subID int64
	var pos int
	err = tx.QueryRowContext(ctx,
		`SELECT subscription_id, position FROM custom_links WHERE id = ?`, id,
	).Scan(&subID, &pos)
	if err != nil {
		return ErrNotFound
	}

	cmp, order := ">", "ASC"
	if up {
		cmp, order = "<", "DESC"
	}
	var otherID int64
	var otherPos int
	err = tx.QueryRowContext(ctx,
		`SELECT id, position FROM custom_links
		 WHERE subscription_id = ? AND position `+cmp+` ?
		 ORDER BY position `+order+` LIMIT 1`,
		subID, pos,
	).Scan(&otherID, &otherPos)
	if err != nil {
		return nil // already at the edge
	}

	if _, err := tx.ExecContext(ctx, `UPDATE custom_links SET position = ? WHERE id = ?`, otherPos, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE custom_links SET position = ? WHERE id = ?`, pos, otherID); err != nil {
		return err
	}
	return tx.Commit()
}
