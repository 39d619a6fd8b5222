package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"pulsebot/internal/model"
)

const subCols = "id, chat_id, source_id, locale, layout, want_status, want_news, created_at"

func scanSubscription(row interface{ Scan(...any) error }) (*model.Subscription, error) {
	var (
		sub                  model.Subscription
		layout               string
		wantStatus, wantNews int64
		createdMS            int64
	)
	err := row.Scan(&sub.ID, &sub.ChatID, &sub.SourceID, &sub.Locale, &layout, &wantStatus, &wantNews, &createdMS)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	sub.Layout = model.LayoutKey(layout)
	sub.Events = model.EventFilter{Status: wantStatus != 0, News: wantNews != 0}
	sub.CreatedAt = time.UnixMilli(createdMS)
	return &sub, nil
}

// CreateSubscription inserts a subscription. Returns ErrDuplicate when the
// chat already subscribes to the source in the same locale.
func (s *Store) CreateSubscription(ctx context.Context, sub *model.Subscription) (*model.Subscription, error) {
	wantStatus, wantNews := 0, 0
	if sub.Events.Status {
		wantStatus = 1
	}
	if sub.Events.News {
		wantNews = 1
	}
	layout := sub.Layout
	if layout == "" {
		layout = model.LayoutDetailed
	}
	locale := sub.Locale
	if locale == "" {
		locale = "en"
	}
	createdAt := sub.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO subscriptions(chat_id, source_id, locale, layout, want_status, want_news, created_at)
		 VALUES(?,?,?,?,?,?,?)`,
		sub.ChatID, sub.SourceID, locale, string(layout), wantStatus, wantNews, createdAt.UnixMilli(),
	)
	if isUniqueViolation(err) {
		return nil, ErrDuplicate
	}
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return s.SubscriptionByID(ctx, id)
}

func (s *Store) SubscriptionByID(ctx context.Context, id int64) (*model.Subscription, error) {
	return scanSubscription(s.db.QueryRowContext(ctx, `SELECT `+subCols+` FROM subscriptions WHERE id = ?`, id))
}

// SubscriptionsBySource returns all subscriptions of one source.
func (s *Store) SubscriptionsBySource(ctx context.Context, sourceID int64) ([]model.Subscription, error) {
	return s.listSubscriptions(ctx, `SELECT `+subCols+` FROM subscriptions WHERE source_id = ? ORDER BY id`, sourceID)
}

// SubscriptionsByChat returns all subscriptions held by one chat.
func (s *Store) SubscriptionsByChat(ctx context.Context, chatID int64) ([]model.Subscription, error) {
	return s.listSubscriptions(ctx, `SELECT `+subCols+` FROM subscriptions WHERE chat_id = ? ORDER BY id`, chatID)
}

func (s *Store) listSubscriptions(ctx context.Context, query string, arg int64) ([]model.Subscription, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sub)
	}
	return out, rows.Err()
}

// DeleteSubscription removes a subscription; message refs and custom links
// cascade. The owning source is dropped when this was its last subscriber.
func (s *Store) DeleteSubscription(ctx context.Context, id int64) error {
	sub, err := s.SubscriptionByID(ctx, id)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE id = ?`, id); err != nil {
		return err
	}
	if dropped, err := s.DeleteSourceIfOrphaned(ctx, sub.SourceID); err != nil {
		return err
	} else if dropped {
		s.log.Debug().Int64("source_id", sub.SourceID).Msg("dropped orphaned source")
	}
	return nil
}

// UpdateSubscriptionLayout switches the rendering layout.
func (s *Store) UpdateSubscriptionLayout(ctx context.Context, id int64, layout model.LayoutKey) error {
	res, err := s.db.ExecContext(ctx, `UPDATE subscriptions SET layout = ? WHERE id = ?`, string(layout), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateSubscriptionEvents switches the event filter.
func (s *Store) UpdateSubscriptionEvents(ctx context.Context, id int64, events model.EventFilter) error {
	wantStatus, wantNews := 0, 0
	if events.Status {
		wantStatus = 1
	}
	if events.News {
		wantNews = 1
	}
	res, err := s.db.ExecContext(ctx, `UPDATE subscriptions SET want_status = ?, want_news = ? WHERE id = ?`, wantStatus, wantNews, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
