package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"

	"pulsebot/internal/model"
	"pulsebot/internal/storage"
)

// Custom link commands. Links appear as extra buttons under the status
// message, in their configured order.

func (h *Handlers) Links(c tele.Context) error {
	ctx, cancel := commandContext()
	defer cancel()

	args := c.Args()
	if len(args) != 1 {
		return c.Send("Usage: /links <url>")
	}
	sub, src, err := h.findSubscription(ctx, c.Chat().ID, args[0])
	if errors.Is(err, storage.ErrNotFound) {
		return c.Send("This chat does not watch that page.")
	}
	if err != nil {
		return h.fail(c, err, "links")
	}

	links, err := h.store.CustomLinks(ctx, sub.ID)
	if err != nil {
		return h.fail(c, err, "links")
	}
	if len(links) == 0 {
		return c.Send("No custom links yet. Add one with /linkadd <url> <label> <target> [emoji].")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "<b>Links for %s</b>\n\n", esc(src.URL))
	for i, l := range links {
		fmt.Fprintf(&b, "%d. %s → %s\n", i+1, esc(l.Label), esc(l.URL))
	}
	return c.Send(b.String(), tele.ModeHTML)
}

func (h *Handlers) LinkAdd(c tele.Context) error {
	ctx, cancel := commandContext()
	defer cancel()

	args := c.Args()
	if len(args) != 3 && len(args) != 4 {
		return c.Send("Usage: /linkadd <url> <label> <target> [emoji]")
	}
	sub, _, err := h.findSubscription(ctx, c.Chat().ID, args[0])
	if errors.Is(err, storage.ErrNotFound) {
		return c.Send("This chat does not watch that page.")
	}
	if err != nil {
		return h.fail(c, err, "linkadd")
	}

	target, err := model.NormalizeURL(args[2])
	if err != nil {
		return c.Send("The link target is not a valid URL.")
	}
	link := &model.CustomLink{SubscriptionID: sub.ID, Label: args[1], URL: target}
	if len(args) == 4 {
		if model.ClassifyEmoji(args[3]) == model.EmojiInvalid {
			return c.Send("That emoji is not usable. Use a unicode emoji or leave it out.")
		}
		link.Emoji = args[3]
	}

	if err := h.store.AddCustomLink(ctx, link); err != nil {
		if errors.Is(err, storage.ErrLimit) {
			return c.Send("The link list is full.")
		}
		return h.fail(c, err, "linkadd")
	}
	return c.Send(fmt.Sprintf("Added %s. The button appears with the next update.", esc(link.Label)), tele.ModeHTML)
}

func (h *Handlers) LinkDel(c tele.Context) error {
	ctx, cancel := commandContext()
	defer cancel()

	args := c.Args()
	if len(args) != 2 {
		return c.Send("Usage: /linkdel <url> <number>")
	}
	link, err := h.linkByPosition(ctx, c, args[0], args[1])
	if err != nil || link == nil {
		return err
	}
	if err := h.store.DeleteCustomLink(ctx, link.ID); err != nil {
		return h.fail(c, err, "linkdel")
	}
	return c.Send(fmt.Sprintf("Removed %s.", esc(link.Label)), tele.ModeHTML)
}

func (h *Handlers) LinkMove(c tele.Context) error {
	ctx, cancel := commandContext()
	defer cancel()

	args := c.Args()
	if len(args) != 3 || (args[2] != "up" && args[2] != "down") {
		return c.Send("Usage: /linkmove <url> <number> <up|down>")
	}
	link, err := h.linkByPosition(ctx, c, args[0], args[1])
	if err != nil || link == nil {
		return err
	}
	if err := h.store.MoveCustomLink(ctx, link.ID, args[2] == "up"); err != nil {
		return h.fail(c, err, "linkmove")
	}
	return c.Send(fmt.Sprintf("Moved %s %s.", esc(link.Label), args[2]), tele.ModeHTML)
}

// linkByPosition resolves a 1-based list position from /links into a link.
// A nil link with nil error means the user was already answered.
func (h *Handlers) linkByPosition(ctx context.Context, c tele.Context, rawURL, rawPos string) (*model.CustomLink, error) {
	sub, _, err := h.findSubscription(ctx, c.Chat().ID, rawURL)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, c.Send("This chat does not watch that page.")
	}
	if err != nil {
		return nil, h.fail(c, err, "links")
	}
	links, err := h.store.CustomLinks(ctx, sub.ID)
	if err != nil {
		return nil, h.fail(c, err, "links")
	}
	pos, err := strconv.Atoi(rawPos)
	if err != nil || pos < 1 || pos > len(links) {
		return nil, c.Send("No link with that number; see /links.")
	}
	return &links[pos-1], nil
}
