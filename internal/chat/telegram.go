package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"
)

// buttonsPerRow keeps link buttons readable on narrow clients.
const buttonsPerRow = 2

// Telegram is the telebot-backed Messenger. All outgoing calls share one
// rate limiter so status edits and news sends cannot trip the API flood
// limit together.
type Telegram struct {
	bot     *tele.Bot
	limiter *rate.Limiter
	log     zerolog.Logger
}

func NewTelegram(bot *tele.Bot, ratePerSec int, log zerolog.Logger) *Telegram {
	if ratePerSec <= 0 {
		ratePerSec = 25
	}
	return &Telegram{
		bot:     bot,
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec),
		log:     log,
	}
}

func (t *Telegram) Send(ctx context.Context, chatID int64, msg Message) (int, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	sent, err := t.bot.Send(&tele.Chat{ID: chatID}, msg.Text, sendOptions(msg))
	if err = t.retryFlood(ctx, err, func() error {
		sent, err = t.bot.Send(&tele.Chat{ID: chatID}, msg.Text, sendOptions(msg))
		return err
	}); err != nil {
		return 0, classify(err)
	}
	return sent.ID, nil
}

func (t *Telegram) Edit(ctx context.Context, chatID int64, messageID int, msg Message) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}
	target := &tele.Message{ID: messageID, Chat: &tele.Chat{ID: chatID}}
	_, err := t.bot.Edit(target, msg.Text, sendOptions(msg))
	err = t.retryFlood(ctx, err, func() error {
		_, err := t.bot.Edit(target, msg.Text, sendOptions(msg))
		return err
	})
	return classify(err)
}

// retryFlood waits out a single flood-limit response before giving up.
func (t *Telegram) retryFlood(ctx context.Context, err error, again func() error) error {
	var flood tele.FloodError
	if err == nil || !errors.As(err, &flood) {
		return err
	}
	wait := time.Duration(flood.RetryAfter) * time.Second
	t.log.Warn().Dur("retry_after", wait).Msg("telegram flood limit hit; backing off")
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
	}
	return again()
}

func sendOptions(msg Message) *tele.SendOptions {
	opt := &tele.SendOptions{
		ParseMode:             tele.ModeHTML,
		DisableWebPagePreview: msg.DisablePreview,
	}
	if len(msg.Buttons) > 0 {
		markup := &tele.ReplyMarkup{}
		var rows []tele.Row
		var row []tele.Btn
		for _, b := range msg.Buttons {
			row = append(row, markup.URL(b.Label, b.URL))
			if len(row) == buttonsPerRow {
				rows = append(rows, row)
				row = nil
			}
		}
		if len(row) > 0 {
			rows = append(rows, row)
		}
		markup.Inline(rows...)
		opt.ReplyMarkup = markup
	}
	return opt
}

// classify maps telebot errors onto the package sentinels. An edit that
// changed nothing is treated as success: the message already shows the
// desired content.
func classify(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, tele.ErrSameMessageContent):
		return nil
	case errors.Is(err, tele.ErrChatNotFound):
		return ErrChatGone
	case errors.Is(err, tele.ErrBlockedByUser):
		return ErrForbidden
	}
	var terr *tele.Error
	if errors.As(err, &terr) {
		desc := strings.ToLower(terr.Description)
		switch {
		case strings.Contains(desc, "message is not modified"):
			return nil
		case strings.Contains(desc, "message to edit not found"),
			strings.Contains(desc, "message can't be edited"):
			return ErrMessageGone
		case strings.Contains(desc, "chat not found"):
			return ErrChatGone
		case terr.Code == 403:
			return ErrForbidden
		}
	}
	return err
}
