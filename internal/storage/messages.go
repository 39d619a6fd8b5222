package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"pulsebot/internal/model"
)

// MessageRef looks up the live message handle for one logical content unit.
func (s *Store) MessageRef(ctx context.Context, subscriptionID int64, category model.Category, itemID string) (*model.MessageRef, error) {
	var ref model.MessageRef
	var cat string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, subscription_id, category, item_id, message_id
		 FROM messages WHERE subscription_id = ? AND category = ? AND item_id = ?`,
		subscriptionID, string(category), itemID,
	).Scan(&ref.ID, &ref.SubscriptionID, &cat, &ref.ItemID, &ref.MessageID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	ref.Category = model.Category(cat)
	return &ref, nil
}

// UpsertMessageRef records the delivered message for a content unit. A second
// insert for the same (subscription, category, item) replaces the handle
// instead of duplicating the row.
func (s *Store) UpsertMessageRef(ctx context.Context, ref *model.MessageRef) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages(subscription_id, category, item_id, message_id, created_at)
		 VALUES(?,?,?,?,?)
		 ON CONFLICT(subscription_id, category, item_id) DO UPDATE SET message_id = excluded.message_id`,
		ref.SubscriptionID, string(ref.Category), ref.ItemID, ref.MessageID, time.Now().UnixMilli(),
	)
	return err
}

// DeleteMessageRef drops a stale handle (self-healing after the platform
// reports the message gone).
func (s *Store) DeleteMessageRef(ctx context.Context, subscriptionID int64, category model.Category, itemID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM messages WHERE subscription_id = ? AND category = ? AND item_id = ?`,
		subscriptionID, string(category), itemID,
	)
	return err
}

// CountMessageRefs reports how many refs a subscription holds in a category.
func (s *Store) CountMessageRefs(ctx context.Context, subscriptionID int64, category model.Category) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE subscription_id = ? AND category = ?`,
		subscriptionID, string(category),
	).Scan(&n)
	return n, err
}

// PruneMessageRefs deletes non-STATUS refs recorded before cutoff. The live
// STATUS message is permanent and never pruned.
func (s *Store) PruneMessageRefs(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM messages WHERE category != ? AND created_at < ?`,
		string(model.CategoryStatus), cutoff.UnixMilli(),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
