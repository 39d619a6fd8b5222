package cleanup

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"pulsebot/internal/deliver"
)

type fakeStore struct {
	lockCalls int
	cutoff    time.Time
}

func (s *fakeStore) PruneLocks(ctx context.Context) (int64, error) {
	s.lockCalls++
	return 3, nil
}

func (s *fakeStore) PruneMessageRefs(ctx context.Context, cutoff time.Time) (int64, error) {
	s.cutoff = cutoff
	return 1, nil
}

func TestPruneJobs(t *testing.T) {
	store := &fakeStore{}
	jobs, err := New(store, zerolog.Nop())
	if err != nil {
		t.Fatalf("new jobs: %v", err)
	}

	jobs.pruneLocks()
	if store.lockCalls != 1 {
		t.Fatalf("lock prune calls = %d, want 1", store.lockCalls)
	}

	before := time.Now()
	jobs.pruneMessageRefs()
	want := before.Add(-retentionFactor * deliver.NewsRetention)
	if store.cutoff.Before(want.Add(-time.Minute)) || store.cutoff.After(time.Now()) {
		t.Fatalf("cutoff = %v, want about %v", store.cutoff, want)
	}
}
