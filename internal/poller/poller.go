// Package poller runs the synchronization loop: every period it walks the
// active sources in batches, fetches each one under a short-lived advisory
// lock and reconciles every subscription's messages.
package poller

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"pulsebot/internal/chat"
	"pulsebot/internal/config"
	"pulsebot/internal/deliver"
	"pulsebot/internal/model"
	"pulsebot/internal/pulse"
	"pulsebot/internal/render"
)

// Store is the slice of the storage API the loop needs.
type Store interface {
	ListActiveSources(ctx context.Context) ([]model.Source, error)
	SubscriptionsBySource(ctx context.Context, sourceID int64) ([]model.Subscription, error)
	CustomLinks(ctx context.Context, subscriptionID int64) ([]model.CustomLink, error)
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	DeleteSubscription(ctx context.Context, id int64) error
}

// Breaker records fetch outcomes per source.
type Breaker interface {
	RecordSuccess(ctx context.Context, src *model.Source) error
	RecordFailure(ctx context.Context, src *model.Source, ferr *pulse.FetchError) error
}

// Fetcher fetches one source's snapshot.
type Fetcher interface {
	Snapshot(ctx context.Context, baseURL string) (*pulse.Snapshot, *pulse.FetchError)
}

// Deliverer reconciles one rendered payload.
type Deliverer interface {
	Deliver(ctx context.Context, sub model.Subscription, category model.Category, itemID string, createdAt time.Time, msg chat.Message) (deliver.Action, error)
}

// Poller drives the loop. Construct with New, then call Run once. cfg is a
// snapshot getter, typically config.Manager.Get: every tick re-reads it, so
// a reloaded config file takes effect without a restart.
type Poller struct {
	store     Store
	client    Fetcher
	breaker   Breaker
	deliverer Deliverer
	cfg       func() *config.Config
	log       zerolog.Logger
}

func New(store Store, client Fetcher, breaker Breaker, deliverer Deliverer, cfg func() *config.Config, log zerolog.Logger) *Poller {
	return &Poller{
		store:     store,
		client:    client,
		breaker:   breaker,
		deliverer: deliverer,
		cfg:       cfg,
		log:       log.With().Str("component", "poller").Logger(),
	}
}

// Run loops until ctx is cancelled. Ticks never overlap: the next tick is
// scheduled max(period - elapsed, 0) after the previous one began, so a slow
// tick rolls straight into the next.
func (p *Poller) Run(ctx context.Context) error {
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
		start := time.Now()
		p.Tick(ctx)
		wait := p.cfg().Poll.Period - time.Since(start)
		if wait < 0 {
			wait = 0
		}
		timer.Reset(wait)
	}
}

type tickStats struct {
	updated, skipped, failed, paused, removed atomic.Int64
}

// Tick runs one full pass over the active sources. The config snapshot is
// taken once per tick; all sources in the pass see the same settings.
func (p *Poller) Tick(ctx context.Context) {
	start := time.Now()
	cfg := p.cfg()
	sources, err := p.store.ListActiveSources(ctx)
	if err != nil {
		p.log.Error().Err(err).Msg("list sources")
		return
	}

	batch := cfg.Poll.BatchSize
	if batch <= 0 {
		batch = len(sources)
	}

	var stats tickStats
	for i := 0; i < len(sources); i += batch {
		end := i + batch
		if end > len(sources) {
			end = len(sources)
		}
		g, gctx := errgroup.WithContext(ctx)
		for _, src := range sources[i:end] {
			src := src
			g.Go(func() error {
				p.pollSource(gctx, cfg, &src, &stats)
				return nil
			})
		}
		_ = g.Wait()
		if ctx.Err() != nil {
			return
		}
	}

	p.log.Info().
		Int("sources", len(sources)).
		Int64("updated", stats.updated.Load()).
		Int64("skipped", stats.skipped.Load()).
		Int64("failed", stats.failed.Load()).
		Int64("paused", stats.paused.Load()).
		Int64("removed", stats.removed.Load()).
		Dur("elapsed", time.Since(start)).
		Msg("tick done")
}

// pollSource handles one source for one tick. The advisory lock doubles as
// an "updated recently" marker: when another worker or a still-running
// previous tick holds it, this tick skips the source.
func (p *Poller) pollSource(ctx context.Context, cfg *config.Config, src *model.Source, stats *tickStats) {
	acquired, err := p.store.AcquireLock(ctx, sourceKey(src.ID), cfg.Poll.LockTTL)
	if err != nil {
		p.log.Error().Err(err).Str("source", src.URL).Msg("acquire lock")
		stats.failed.Add(1)
		return
	}
	if !acquired {
		stats.skipped.Add(1)
		return
	}

	snap, ferr := p.client.Snapshot(ctx, src.URL)
	if ferr != nil {
		if err := p.breaker.RecordFailure(ctx, src, ferr); err != nil {
			p.log.Error().Err(err).Str("source", src.URL).Msg("record failure")
		}
		stats.failed.Add(1)
		if src.Paused {
			stats.paused.Add(1)
		}
		return
	}
	if err := p.breaker.RecordSuccess(ctx, src); err != nil {
		p.log.Error().Err(err).Str("source", src.URL).Msg("record success")
	}

	subs, err := p.store.SubscriptionsBySource(ctx, src.ID)
	if err != nil {
		p.log.Error().Err(err).Str("source", src.URL).Msg("list subscriptions")
		stats.failed.Add(1)
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, sub := range subs {
		sub := sub
		g.Go(func() error {
			p.syncSubscription(gctx, cfg, src, sub, snap, stats)
			return nil
		})
	}
	_ = g.Wait()
}

// syncSubscription reconciles every content unit one subscription wants.
func (p *Poller) syncSubscription(ctx context.Context, cfg *config.Config, src *model.Source, sub model.Subscription, snap *pulse.Snapshot, stats *tickStats) {
	links, err := p.store.CustomLinks(ctx, sub.ID)
	if err != nil {
		p.log.Error().Err(err).Int64("subscription", sub.ID).Msg("load custom links")
		stats.failed.Add(1)
		return
	}
	prefs := render.Prefs{
		SourceName: src.Name,
		SourceURL:  src.URL,
		Locale:     sub.Locale,
		MaxUnits:   cfg.Render.MaxUnits,
		MaxText:    cfg.Render.MaxText,
		Links:      links,
	}

	if sub.Events.Status {
		msg := render.Layout(sub.Layout)(snap, prefs)
		action, err := p.deliverer.Deliver(ctx, sub, model.CategoryStatus, "", time.Time{}, msg)
		if p.settle(ctx, sub, action, err, stats) {
			return
		}
	}
	if sub.Events.News {
		for _, alert := range snap.Alerts {
			msg := render.News(alert, prefs)
			itemID := strconv.FormatInt(alert.ID, 10)
			action, err := p.deliverer.Deliver(ctx, sub, model.CategoryNews, itemID, alert.CreatedAt, msg)
			if p.settle(ctx, sub, action, err, stats) {
				return
			}
		}
	}
}

// settle folds one delivery outcome into the stats. A permanent destination
// failure deletes the subscription; settle reports whether the caller should
// stop delivering to it.
func (p *Poller) settle(ctx context.Context, sub model.Subscription, action deliver.Action, err error, stats *tickStats) (stop bool) {
	if err == nil {
		switch action {
		case deliver.ActionCreated, deliver.ActionEdited:
			stats.updated.Add(1)
		default:
			stats.skipped.Add(1)
		}
		return false
	}
	if chat.PermanentDestination(err) {
		p.log.Info().Int64("subscription", sub.ID).Int64("chat", sub.ChatID).Msg("destination gone, removing subscription")
		if derr := p.store.DeleteSubscription(ctx, sub.ID); derr != nil {
			p.log.Error().Err(derr).Int64("subscription", sub.ID).Msg("delete subscription")
		}
		stats.removed.Add(1)
		return true
	}
	p.log.Warn().Err(err).Int64("subscription", sub.ID).Msg("delivery failed")
	stats.failed.Add(1)
	return false
}

func sourceKey(sourceID int64) string {
	return "source:" + strconv.FormatInt(sourceID, 10)
}
