// Package chat abstracts the messaging platform to exactly what delivery
// needs: send a message, edit a message, and three typed failure modes.
package chat

import (
	"context"
	"errors"
)

var (
	// ErrMessageGone: the edit target no longer exists. The stale handle
	// should be dropped and the message recreated on a later cycle.
	ErrMessageGone = errors.New("chat: message gone")
	// ErrChatGone: the destination chat no longer exists.
	ErrChatGone = errors.New("chat: chat gone")
	// ErrForbidden: the bot was removed or blocked from the destination.
	ErrForbidden = errors.New("chat: forbidden")
)

// PermanentDestination reports whether err means the destination is
// permanently unusable and its subscriptions should be cleaned up.
func PermanentDestination(err error) bool {
	return errors.Is(err, ErrChatGone) || errors.Is(err, ErrForbidden)
}

// Button is an URL button attached below a message.
type Button struct {
	Label string
	URL   string
}

// Message is one renderable message unit: HTML text plus optional buttons.
type Message struct {
	Text           string
	Buttons        []Button
	DisablePreview bool
}

// Messenger sends and edits messages. Implementations normalize platform
// error codes into the sentinel errors above.
type Messenger interface {
	Send(ctx context.Context, chatID int64, msg Message) (messageID int, err error)
	Edit(ctx context.Context, chatID int64, messageID int, msg Message) error
}
