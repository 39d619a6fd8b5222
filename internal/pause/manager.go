// Package pause implements the per-source circuit breaker: failure streak
// tracking, the automatic pause transition, and the validated resume path.
package pause

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"pulsebot/internal/chat"
	"pulsebot/internal/config"
	"pulsebot/internal/model"
	"pulsebot/internal/pulse"
	"pulsebot/internal/render"
)

// Store is the slice of the storage API the breaker needs.
type Store interface {
	UpdateSourceHealth(ctx context.Context, src *model.Source) error
	SubscriptionsBySource(ctx context.Context, sourceID int64) ([]model.Subscription, error)
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	LockExpiry(ctx context.Context, key string) (time.Time, bool, error)
}

// Fetcher is the slice of the source client the resume path needs.
type Fetcher interface {
	Snapshot(ctx context.Context, baseURL string) (*pulse.Snapshot, *pulse.FetchError)
	VerifyCompatible(ctx context.Context, baseURL string) bool
}

// ResumeOutcome discriminates the three resume results an operator can see.
type ResumeOutcome string

const (
	ResumeOK          ResumeOutcome = "OK"
	ResumeRateLimited ResumeOutcome = "RATE_LIMITED"
	ResumeRejected    ResumeOutcome = "REJECTED"
)

// ResumeResult reports how a resume attempt ended. Reason is a short
// human-readable explanation for rejected attempts.
type ResumeResult struct {
	Outcome ResumeOutcome
	Reason  string
}

// Manager owns the breaker state transitions for every source. All durable
// state lives in the store; Manager itself is stateless and safe for
// concurrent use.
type Manager struct {
	store     Store
	client    Fetcher
	messenger chat.Messenger
	cfg       config.BreakerConfig
	log       zerolog.Logger
}

func NewManager(store Store, client Fetcher, messenger chat.Messenger, cfg config.BreakerConfig, log zerolog.Logger) *Manager {
	return &Manager{
		store:     store,
		client:    client,
		messenger: messenger,
		cfg:       cfg,
		log:       log.With().Str("component", "breaker").Logger(),
	}
}

// RecordSuccess resets the failure streak after a successful poll. No-op
// when there is nothing to reset.
func (m *Manager) RecordSuccess(ctx context.Context, src *model.Source) error {
	if src.ConsecutiveFailures == 0 && src.LastFailureAt.IsZero() {
		return nil
	}
	src.ConsecutiveFailures = 0
	src.LastFailureAt = time.Time{}
	return m.store.UpdateSourceHealth(ctx, src)
}

// RecordFailure advances the failure streak for one failed poll. The streak
// only counts failures contiguous within the window: a gap longer than the
// window restarts it. Reaching the threshold pauses the source and notifies
// every subscriber once.
func (m *Manager) RecordFailure(ctx context.Context, src *model.Source, ferr *pulse.FetchError) error {
	now := time.Now()
	if !src.LastFailureAt.IsZero() && now.Sub(src.LastFailureAt) > m.cfg.Window {
		src.ConsecutiveFailures = 0
	}
	src.ConsecutiveFailures++
	src.LastFailureAt = now
	src.PauseReason = m.classifyReason(ctx, src, ferr)

	paused := false
	if src.ConsecutiveFailures >= m.cfg.Threshold {
		src.Paused = true
		paused = true
	}
	if err := m.store.UpdateSourceHealth(ctx, src); err != nil {
		return err
	}

	m.log.Warn().
		Str("source", src.URL).
		Str("kind", string(ferr.Kind)).
		Int("failures", src.ConsecutiveFailures).
		Bool("paused", paused).
		Msg("poll failed")

	if paused {
		m.notifyPaused(ctx, src)
	}
	return nil
}

// Resume takes a paused source back to active after revalidation. The
// cooldown gate fires before any network traffic: a second attempt within
// the cooldown is rejected as rate limited without revalidating. force
// bypasses the cooldown but never the validation itself. Failed validation
// leaves the source paused and untouched.
func (m *Manager) Resume(ctx context.Context, src *model.Source, force bool) (ResumeResult, error) {
	acquired, err := m.store.AcquireLock(ctx, resumeKey(src.ID), m.cfg.ResumeCooldown)
	if err != nil {
		return ResumeResult{}, err
	}
	if !acquired && !force {
		reason := "a resume was attempted recently, try again shortly"
		if until, live, err := m.store.LockExpiry(ctx, resumeKey(src.ID)); err == nil && live {
			reason = fmt.Sprintf("a resume was attempted recently, try again in %s", time.Until(until).Round(time.Second))
		}
		return ResumeResult{Outcome: ResumeRateLimited, Reason: reason}, nil
	}

	if !m.client.VerifyCompatible(ctx, src.URL) {
		return ResumeResult{
			Outcome: ResumeRejected,
			Reason:  "the page does not identify as a Pulse status page",
		}, nil
	}
	if _, ferr := m.client.Snapshot(ctx, src.URL); ferr != nil {
		return ResumeResult{
			Outcome: ResumeRejected,
			Reason:  "the page is still failing: " + ferr.Message,
		}, nil
	}

	src.Paused = false
	src.PauseReason = model.PauseNone
	src.ConsecutiveFailures = 0
	src.LastFailureAt = time.Time{}
	if err := m.store.UpdateSourceHealth(ctx, src); err != nil {
		return ResumeResult{}, err
	}
	m.log.Info().Str("source", src.URL).Msg("source resumed")
	return ResumeResult{Outcome: ResumeOK}, nil
}

// notifyPaused sends the one-time pause notice to every subscription of the
// source. Delivery failures here are logged and dropped: the pause itself is
// already durable.
func (m *Manager) notifyPaused(ctx context.Context, src *model.Source) {
	subs, err := m.store.SubscriptionsBySource(ctx, src.ID)
	if err != nil {
		m.log.Error().Err(err).Str("source", src.URL).Msg("list subscriptions for pause notice")
		return
	}
	for _, sub := range subs {
		prefs := render.Prefs{SourceName: src.Name, SourceURL: src.URL, Locale: sub.Locale}
		msg := render.PauseNotice(prefs, src.PauseReason, m.cfg.Threshold)
		if _, err := m.messenger.Send(ctx, sub.ChatID, msg); err != nil {
			m.log.Warn().Err(err).Int64("chat", sub.ChatID).Msg("pause notice not delivered")
		}
	}
}

// classifyReason folds the fetch error taxonomy into the two pause reasons:
// protocol mismatch stands alone, everything transient counts as timeout.
// A bad response is ambiguous: the page is answering, just not with our
// protocol, so the marker header decides which of the two it is.
func (m *Manager) classifyReason(ctx context.Context, src *model.Source, ferr *pulse.FetchError) model.PauseReason {
	if ferr == nil {
		return model.PauseTimeout
	}
	switch ferr.Kind {
	case pulse.ErrNotCompatible:
		return model.PauseNotCompatible
	case pulse.ErrBadResponse:
		if !m.client.VerifyCompatible(ctx, src.URL) {
			return model.PauseNotCompatible
		}
	}
	return model.PauseTimeout
}

func resumeKey(sourceID int64) string {
	return "resume:" + strconv.FormatInt(sourceID, 10)
}
