// Package deliver reconciles rendered payloads against the live messages a
// subscription already holds: edit in place when a handle exists, create and
// record a new one otherwise.
package deliver

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"pulsebot/internal/chat"
	"pulsebot/internal/model"
	"pulsebot/internal/storage"
)

// NewsRetention is how long after its creation a news item is still worth
// delivering. Older items are never created, and already-delivered ones are
// left alone.
const NewsRetention = 3 * 24 * time.Hour

// Action reports what a delivery did, for batch-level accounting.
type Action string

const (
	ActionCreated Action = "created"
	ActionEdited  Action = "edited"
	ActionSkipped Action = "skipped"
)

// Store is the slice of the storage API delivery needs.
type Store interface {
	MessageRef(ctx context.Context, subscriptionID int64, category model.Category, itemID string) (*model.MessageRef, error)
	UpsertMessageRef(ctx context.Context, ref *model.MessageRef) error
	DeleteMessageRef(ctx context.Context, subscriptionID int64, category model.Category, itemID string) error
}

// Deliverer performs the edit-or-create reconciliation. One Deliver call
// makes at most one send-or-edit platform call and at most one store write.
type Deliverer struct {
	store     Store
	messenger chat.Messenger
	now       func() time.Time
	log       zerolog.Logger
}

func New(store Store, messenger chat.Messenger, log zerolog.Logger) *Deliverer {
	return &Deliverer{
		store:     store,
		messenger: messenger,
		now:       time.Now,
		log:       log.With().Str("component", "deliver").Logger(),
	}
}

// Deliver reconciles one content unit for one subscription. itemID is empty
// for STATUS. createdAt is the upstream item's creation time, used for the
// retention and backfill cutoffs; pass the zero time for STATUS, which has
// neither.
//
// Permanent destination failures (chat gone, forbidden) are returned to the
// caller, which owns subscription cleanup. A vanished single message is
// healed here: the stale handle is dropped and the message recreated.
func (d *Deliverer) Deliver(ctx context.Context, sub model.Subscription, category model.Category, itemID string, createdAt time.Time, msg chat.Message) (Action, error) {
	if category != model.CategoryStatus && !createdAt.IsZero() {
		if d.now().Sub(createdAt) > NewsRetention {
			return ActionSkipped, nil
		}
		if createdAt.Before(sub.CreatedAt) {
			return ActionSkipped, nil
		}
	}

	ref, err := d.store.MessageRef(ctx, sub.ID, category, itemID)
	switch {
	case err == nil:
		editErr := d.messenger.Edit(ctx, sub.ChatID, ref.MessageID, msg)
		if editErr == nil {
			return ActionEdited, nil
		}
		if !errors.Is(editErr, chat.ErrMessageGone) {
			return ActionSkipped, editErr
		}
		// The message was deleted in the chat. Drop the stale handle; the
		// next cycle recreates the message.
		d.log.Debug().Int64("subscription", sub.ID).Str("category", string(category)).Msg("stale message handle dropped")
		if err := d.store.DeleteMessageRef(ctx, sub.ID, category, itemID); err != nil {
			return ActionSkipped, err
		}
		return ActionSkipped, nil
	case errors.Is(err, storage.ErrNotFound):
		messageID, sendErr := d.messenger.Send(ctx, sub.ChatID, msg)
		if sendErr != nil {
			return ActionSkipped, sendErr
		}
		ref := &model.MessageRef{
			SubscriptionID: sub.ID,
			Category:       category,
			ItemID:         itemID,
			MessageID:      messageID,
		}
		if err := d.store.UpsertMessageRef(ctx, ref); err != nil {
			return ActionSkipped, err
		}
		return ActionCreated, nil
	default:
		return ActionSkipped, err
	}
}
