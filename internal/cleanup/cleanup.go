// Package cleanup runs the periodic maintenance jobs that keep the store
// bounded: expired lock rows and stale news message records.
package cleanup

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"pulsebot/internal/deliver"
)

// retentionFactor sets the prune cutoff relative to the delivery retention
// horizon. Refs live twice as long as items are deliverable, so a delayed
// edit never misses its row.
const retentionFactor = 2

// Store is the slice of the storage API maintenance touches.
type Store interface {
	PruneLocks(ctx context.Context) (int64, error)
	PruneMessageRefs(ctx context.Context, cutoff time.Time) (int64, error)
}

// Jobs owns the cron runner. Construct with New, Start to begin, Stop to
// wait out a running job on shutdown.
type Jobs struct {
	store Store
	cron  *cron.Cron
	log   zerolog.Logger
}

func New(store Store, log zerolog.Logger) (*Jobs, error) {
	j := &Jobs{
		store: store,
		cron:  cron.New(),
		log:   log.With().Str("component", "cleanup").Logger(),
	}
	if _, err := j.cron.AddFunc("@every 10m", j.pruneLocks); err != nil {
		return nil, err
	}
	if _, err := j.cron.AddFunc("@hourly", j.pruneMessageRefs); err != nil {
		return nil, err
	}
	return j, nil
}

func (j *Jobs) Start() { j.cron.Start() }

// Stop halts scheduling and waits for an in-flight job to finish.
func (j *Jobs) Stop() {
	<-j.cron.Stop().Done()
}

func (j *Jobs) pruneLocks() {
	ctx, cancel := jobContext()
	defer cancel()
	n, err := j.store.PruneLocks(ctx)
	if err != nil {
		j.log.Error().Err(err).Msg("prune locks")
		return
	}
	if n > 0 {
		j.log.Debug().Int64("rows", n).Msg("expired locks pruned")
	}
}

func (j *Jobs) pruneMessageRefs() {
	ctx, cancel := jobContext()
	defer cancel()
	cutoff := time.Now().Add(-retentionFactor * deliver.NewsRetention)
	n, err := j.store.PruneMessageRefs(ctx, cutoff)
	if err != nil {
		j.log.Error().Err(err).Msg("prune message refs")
		return
	}
	if n > 0 {
		j.log.Info().Int64("rows", n).Msg("stale message refs pruned")
	}
}

func jobContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), time.Minute)
}
