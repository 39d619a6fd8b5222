// Package bot is the operator command surface: subscribing chats to status
// pages and managing existing subscriptions. Handlers only go through the
// storage API and the pause manager's validated resume path.
package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/rs/zerolog"
	tele "gopkg.in/telebot.v4"

	"pulsebot/internal/model"
	"pulsebot/internal/pause"
	"pulsebot/internal/storage"
)

// commandTimeout bounds the work behind a single command, including the
// compatibility probe on first subscription.
const commandTimeout = 15 * time.Second

// Store is the slice of the storage API the commands need.
type Store interface {
	CreateSource(ctx context.Context, url, name string) (*model.Source, error)
	SourceByURL(ctx context.Context, url string) (*model.Source, error)
	SourceByID(ctx context.Context, id int64) (*model.Source, error)
	CreateSubscription(ctx context.Context, sub *model.Subscription) (*model.Subscription, error)
	SubscriptionsByChat(ctx context.Context, chatID int64) ([]model.Subscription, error)
	DeleteSubscription(ctx context.Context, id int64) error
	UpdateSubscriptionLayout(ctx context.Context, id int64, layout model.LayoutKey) error
	UpdateSubscriptionEvents(ctx context.Context, id int64, events model.EventFilter) error
	CustomLinks(ctx context.Context, subscriptionID int64) ([]model.CustomLink, error)
	AddCustomLink(ctx context.Context, link *model.CustomLink) error
	DeleteCustomLink(ctx context.Context, id int64) error
	MoveCustomLink(ctx context.Context, id int64, up bool) error
}

// Resumer is the validated resume path.
type Resumer interface {
	Resume(ctx context.Context, src *model.Source, force bool) (pause.ResumeResult, error)
}

// Verifier probes whether a URL is a compatible status page.
type Verifier interface {
	VerifyCompatible(ctx context.Context, baseURL string) bool
}

// Handlers holds the command implementations.
type Handlers struct {
	store    Store
	resumer  Resumer
	verifier Verifier
	log      zerolog.Logger
}

func NewHandlers(store Store, resumer Resumer, verifier Verifier, log zerolog.Logger) *Handlers {
	return &Handlers{
		store:    store,
		resumer:  resumer,
		verifier: verifier,
		log:      log.With().Str("component", "bot").Logger(),
	}
}

// Register binds every command on the bot.
func Register(b *tele.Bot, h *Handlers) {
	b.Handle("/start", h.Start)
	b.Handle("/help", h.Start)
	b.Handle("/subscribe", h.Subscribe)
	b.Handle("/unsubscribe", h.Unsubscribe)
	b.Handle("/list", h.List)
	b.Handle("/resume", h.Resume)
	b.Handle("/layout", h.Layout)
	b.Handle("/events", h.Events)
	b.Handle("/links", h.Links)
	b.Handle("/linkadd", h.LinkAdd)
	b.Handle("/linkdel", h.LinkDel)
	b.Handle("/linkmove", h.LinkMove)
}

const helpText = `<b>Pulse status bot</b>

/subscribe &lt;url&gt; - watch a status page in this chat
/unsubscribe &lt;url&gt; - stop watching
/list - show this chat's subscriptions
/layout &lt;url&gt; &lt;DETAILED|COMPACT|OVERVIEW|LIST&gt; - change the status message layout
/events &lt;url&gt; &lt;status|news|all&gt; - choose which updates this chat receives
/resume &lt;url&gt; - resume a paused status page
/links &lt;url&gt; - list extra buttons under the status message
/linkadd &lt;url&gt; &lt;label&gt; &lt;target&gt; [emoji] - add a button
/linkdel &lt;url&gt; &lt;number&gt; - remove a button
/linkmove &lt;url&gt; &lt;number&gt; &lt;up|down&gt; - reorder buttons`

func (h *Handlers) Start(c tele.Context) error {
	return c.Send(helpText, tele.ModeHTML)
}

func (h *Handlers) Subscribe(c tele.Context) error {
	ctx, cancel := commandContext()
	defer cancel()

	url, err := urlArg(c)
	if err != nil {
		return c.Send("Usage: /subscribe <url>")
	}

	src, err := h.store.SourceByURL(ctx, url)
	if errors.Is(err, storage.ErrNotFound) {
		// First subscriber to this page: probe it before persisting anything.
		if !h.verifier.VerifyCompatible(ctx, url) {
			return c.Send("That URL does not look like a Pulse status page.")
		}
		src, err = h.store.CreateSource(ctx, url, displayName(url))
	}
	if err != nil {
		return h.fail(c, err, "subscribe")
	}

	sub := &model.Subscription{
		ChatID:   c.Chat().ID,
		SourceID: src.ID,
		Events:   model.EventFilter{Status: true, News: true},
	}
	if _, err := h.store.CreateSubscription(ctx, sub); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return c.Send("This chat already watches that page.")
		}
		return h.fail(c, err, "subscribe")
	}

	h.log.Info().Int64("chat", c.Chat().ID).Str("source", url).Msg("subscribed")
	return c.Send(fmt.Sprintf("Watching %s. The status message appears within the next update cycle.", esc(url)), tele.ModeHTML)
}

func (h *Handlers) Unsubscribe(c tele.Context) error {
	ctx, cancel := commandContext()
	defer cancel()

	url, err := urlArg(c)
	if err != nil {
		return c.Send("Usage: /unsubscribe <url>")
	}

	sub, _, err := h.findSubscription(ctx, c.Chat().ID, url)
	if errors.Is(err, storage.ErrNotFound) {
		return c.Send("This chat does not watch that page.")
	}
	if err != nil {
		return h.fail(c, err, "unsubscribe")
	}
	if err := h.store.DeleteSubscription(ctx, sub.ID); err != nil {
		return h.fail(c, err, "unsubscribe")
	}

	h.log.Info().Int64("chat", c.Chat().ID).Str("source", url).Msg("unsubscribed")
	return c.Send(fmt.Sprintf("Stopped watching %s.", esc(url)), tele.ModeHTML)
}

func (h *Handlers) List(c tele.Context) error {
	ctx, cancel := commandContext()
	defer cancel()

	subs, err := h.store.SubscriptionsByChat(ctx, c.Chat().ID)
	if err != nil {
		return h.fail(c, err, "list")
	}
	if len(subs) == 0 {
		return c.Send("This chat watches no status pages. Add one with /subscribe <url>.")
	}

	var lines []string
	for _, sub := range subs {
		src, err := h.store.SourceByID(ctx, sub.SourceID)
		if err != nil {
			continue
		}
		lines = append(lines, subscriptionLine(sub, src))
	}
	return c.Send("<b>Watched status pages</b>\n\n"+strings.Join(lines, "\n"), tele.ModeHTML)
}

func (h *Handlers) Resume(c tele.Context) error {
	ctx, cancel := commandContext()
	defer cancel()

	url, err := urlArg(c)
	if err != nil {
		return c.Send("Usage: /resume <url>")
	}

	src, err := h.store.SourceByURL(ctx, normalizeOrRaw(url))
	if errors.Is(err, storage.ErrNotFound) {
		return c.Send("Unknown status page.")
	}
	if err != nil {
		return h.fail(c, err, "resume")
	}
	if !src.Paused {
		return c.Send("That page is not paused.")
	}

	res, err := h.resumer.Resume(ctx, src, false)
	if err != nil {
		return h.fail(c, err, "resume")
	}
	switch res.Outcome {
	case pause.ResumeOK:
		return c.Send(fmt.Sprintf("Resumed %s. Updates continue with the next cycle.", esc(src.URL)), tele.ModeHTML)
	case pause.ResumeRateLimited:
		return c.Send("Resume skipped: " + res.Reason + ".")
	default:
		return c.Send("Resume failed: " + res.Reason)
	}
}

func (h *Handlers) Layout(c tele.Context) error {
	ctx, cancel := commandContext()
	defer cancel()

	args := c.Args()
	if len(args) != 2 {
		return c.Send("Usage: /layout <url> <DETAILED|COMPACT|OVERVIEW|LIST>")
	}
	key := model.LayoutKey(strings.ToUpper(args[1]))
	if !model.ValidLayout(key) {
		return c.Send("Unknown layout. Pick one of DETAILED, COMPACT, OVERVIEW, LIST.")
	}

	sub, _, err := h.findSubscription(ctx, c.Chat().ID, args[0])
	if errors.Is(err, storage.ErrNotFound) {
		return c.Send("This chat does not watch that page.")
	}
	if err != nil {
		return h.fail(c, err, "layout")
	}
	if err := h.store.UpdateSubscriptionLayout(ctx, sub.ID, key); err != nil {
		return h.fail(c, err, "layout")
	}
	return c.Send(fmt.Sprintf("Layout set to %s. The status message re-renders next cycle.", key))
}

func (h *Handlers) Events(c tele.Context) error {
	ctx, cancel := commandContext()
	defer cancel()

	args := c.Args()
	if len(args) != 2 {
		return c.Send("Usage: /events <url> <status|news|all>")
	}
	events, ok := parseEvents(args[1])
	if !ok {
		return c.Send("Unknown selection. Pick one of status, news, all.")
	}

	sub, _, err := h.findSubscription(ctx, c.Chat().ID, args[0])
	if errors.Is(err, storage.ErrNotFound) {
		return c.Send("This chat does not watch that page.")
	}
	if err != nil {
		return h.fail(c, err, "events")
	}
	if err := h.store.UpdateSubscriptionEvents(ctx, sub.ID, events); err != nil {
		return h.fail(c, err, "events")
	}
	return c.Send("Now delivering " + describeEvents(events) + " for this page.")
}

// parseEvents maps the /events argument onto an event filter.
func parseEvents(arg string) (model.EventFilter, bool) {
	switch strings.ToLower(arg) {
	case "status":
		return model.EventFilter{Status: true}, true
	case "news":
		return model.EventFilter{News: true}, true
	case "all":
		return model.EventFilter{Status: true, News: true}, true
	}
	return model.EventFilter{}, false
}

func describeEvents(events model.EventFilter) string {
	switch {
	case events.Status && events.News:
		return "status updates and news"
	case events.News:
		return "news only"
	default:
		return "status updates only"
	}
}

// findSubscription resolves this chat's subscription for a raw URL argument.
func (h *Handlers) findSubscription(ctx context.Context, chatID int64, rawURL string) (*model.Subscription, *model.Source, error) {
	url := normalizeOrRaw(rawURL)
	src, err := h.store.SourceByURL(ctx, url)
	if err != nil {
		return nil, nil, err
	}
	subs, err := h.store.SubscriptionsByChat(ctx, chatID)
	if err != nil {
		return nil, nil, err
	}
	for _, sub := range subs {
		if sub.SourceID == src.ID {
			return &sub, src, nil
		}
	}
	return nil, nil, storage.ErrNotFound
}

func (h *Handlers) fail(c tele.Context, err error, op string) error {
	h.log.Error().Err(err).Str("op", op).Int64("chat", c.Chat().ID).Msg("command failed")
	return c.Send("Something went wrong, please try again.")
}

func commandContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), commandTimeout)
}

func urlArg(c tele.Context) (string, error) {
	args := c.Args()
	if len(args) != 1 {
		return "", errors.New("bot: expected one argument")
	}
	url, err := model.NormalizeURL(args[0])
	if err != nil {
		return "", err
	}
	return url, nil
}

// normalizeOrRaw keeps lookups working even for arguments that fail strict
// normalization, matching whatever string the store holds.
func normalizeOrRaw(raw string) string {
	if url, err := model.NormalizeURL(raw); err == nil {
		return url
	}
	return raw
}

// displayName derives an initial source name from its URL host.
func displayName(url string) string {
	name := strings.TrimPrefix(strings.TrimPrefix(url, "https://"), "http://")
	if i := strings.IndexByte(name, '/'); i >= 0 {
		name = name[:i]
	}
	return name
}

func subscriptionLine(sub model.Subscription, src *model.Source) string {
	state := "active"
	if src.Paused {
		state = "paused (" + strings.ToLower(string(src.PauseReason)) + ")"
	}
	return fmt.Sprintf("• %s · %s, %s", esc(src.URL), strings.ToLower(string(sub.Layout)), state)
}

func esc(s string) string { return html.EscapeString(s) }
