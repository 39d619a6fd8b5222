package poller

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"pulsebot/internal/chat"
	"pulsebot/internal/config"
	"pulsebot/internal/deliver"
	"pulsebot/internal/model"
	"pulsebot/internal/pause"
	"pulsebot/internal/pulse"
	"pulsebot/internal/storage"
)

type fakeFetcher struct {
	mu    sync.Mutex
	snap  *pulse.Snapshot
	err   *pulse.FetchError
	calls int
}

func (f *fakeFetcher) Snapshot(ctx context.Context, baseURL string) (*pulse.Snapshot, *pulse.FetchError) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.snap, nil
}

func (f *fakeFetcher) VerifyCompatible(ctx context.Context, baseURL string) bool { return true }

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeMessenger struct {
	mu      sync.Mutex
	nextID  int
	sendErr error
	editErr error
	sends   int
	edits   int
	last    string
}

func (m *fakeMessenger) Send(ctx context.Context, chatID int64, msg chat.Message) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return 0, m.sendErr
	}
	m.sends++
	m.nextID++
	m.last = msg.Text
	return m.nextID, nil
}

func (m *fakeMessenger) Edit(ctx context.Context, chatID int64, messageID int, msg chat.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.editErr != nil {
		return m.editErr
	}
	m.edits++
	m.last = msg.Text
	return nil
}

func (m *fakeMessenger) counts() (sends, edits int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sends, m.edits
}

func (m *fakeMessenger) lastText() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

func degradedSnapshot() *pulse.Snapshot {
	return &pulse.Snapshot{Categories: []pulse.Category{
		{ID: 1, Name: "API", Monitors: []pulse.Monitor{{ID: 1, Name: "api", State: pulse.StateUp}}},
		{ID: 2, Name: "Web", Monitors: []pulse.Monitor{{ID: 2, Name: "web", State: pulse.StateDown}}},
	}}
}

type fixture struct {
	poller    *Poller
	store     *storage.Store
	fetcher   *fakeFetcher
	messenger *fakeMessenger

	cfgMu sync.Mutex
	cfg   *config.Config
}

func (f *fixture) config() *config.Config {
	f.cfgMu.Lock()
	defer f.cfgMu.Unlock()
	return f.cfg
}

func (f *fixture) swapConfig(cfg *config.Config) {
	f.cfgMu.Lock()
	defer f.cfgMu.Unlock()
	f.cfg = cfg
}

func newFixture(t *testing.T, lockTTL time.Duration) *fixture {
	t.Helper()
	store, err := storage.Open(config.StorageConfig{Path: filepath.Join(t.TempDir(), "test.db")}, zerolog.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	fetcher := &fakeFetcher{snap: degradedSnapshot()}
	messenger := &fakeMessenger{}
	breaker := pause.NewManager(store, fetcher, messenger,
		config.BreakerConfig{Threshold: 3, Window: 5 * time.Minute, ResumeCooldown: time.Minute}, zerolog.Nop())
	deliverer := deliver.New(store, messenger, zerolog.Nop())
	f := &fixture{
		store:     store,
		fetcher:   fetcher,
		messenger: messenger,
		cfg: &config.Config{
			Poll:   config.PollConfig{Period: 15 * time.Second, BatchSize: 100, LockTTL: lockTTL},
			Render: config.RenderConfig{MaxUnits: 10, MaxText: 500},
		},
	}
	f.poller = New(store, fetcher, breaker, deliverer, f.config, zerolog.Nop())
	return f
}

func (f *fixture) subscribe(t *testing.T, chatID int64, events model.EventFilter) model.Subscription {
	t.Helper()
	ctx := context.Background()
	src, err := f.store.CreateSource(ctx, "https://status.example.com", "Example")
	if err != nil {
		t.Fatalf("create source: %v", err)
	}
	sub, err := f.store.CreateSubscription(ctx, &model.Subscription{
		ChatID:    chatID,
		SourceID:  src.ID,
		Events:    events,
		CreatedAt: time.Now().Add(-time.Hour),
	})
	if err != nil {
		t.Fatalf("create subscription: %v", err)
	}
	return *sub
}

func TestTickCreatesThenEditsStatusMessage(t *testing.T) {
	f := newFixture(t, 50*time.Millisecond)
	ctx := context.Background()
	sub := f.subscribe(t, 7, model.EventFilter{Status: true})

	f.poller.Tick(ctx)
	if sends, edits := f.messenger.counts(); sends != 1 || edits != 0 {
		t.Fatalf("first tick: sends=%d edits=%d, want 1/0", sends, edits)
	}
	ref, err := f.store.MessageRef(ctx, sub.ID, model.CategoryStatus, "")
	if err != nil {
		t.Fatalf("message ref after first tick: %v", err)
	}

	time.Sleep(60 * time.Millisecond)
	f.poller.Tick(ctx)
	if sends, edits := f.messenger.counts(); sends != 1 || edits != 1 {
		t.Fatalf("second tick: sends=%d edits=%d, want 1/1", sends, edits)
	}
	ref2, err := f.store.MessageRef(ctx, sub.ID, model.CategoryStatus, "")
	if err != nil {
		t.Fatalf("message ref after second tick: %v", err)
	}
	if ref2.MessageID != ref.MessageID {
		t.Fatalf("message handle changed across ticks: %d -> %d", ref.MessageID, ref2.MessageID)
	}
}

func TestLockDebouncesWithinTTL(t *testing.T) {
	f := newFixture(t, time.Minute)
	ctx := context.Background()
	f.subscribe(t, 7, model.EventFilter{Status: true})

	f.poller.Tick(ctx)
	f.poller.Tick(ctx)
	if got := f.fetcher.callCount(); got != 1 {
		t.Fatalf("fetches = %d, want 1 (second tick must skip the locked source)", got)
	}
}

func TestFailingSourceIsPausedAndSkipped(t *testing.T) {
	f := newFixture(t, time.Millisecond)
	ctx := context.Background()
	sub := f.subscribe(t, 7, model.EventFilter{Status: true})

	f.fetcher.err = &pulse.FetchError{Kind: pulse.ErrTimeout, Message: "deadline exceeded"}
	for i := 0; i < 3; i++ {
		f.poller.Tick(ctx)
		time.Sleep(5 * time.Millisecond)
	}

	src, err := f.store.SourceByID(ctx, sub.SourceID)
	if err != nil {
		t.Fatalf("reload source: %v", err)
	}
	if !src.Paused || src.PauseReason != model.PauseTimeout {
		t.Fatalf("source not paused after 3 timeouts: %+v", src)
	}
	if sends, _ := f.messenger.counts(); sends != 1 {
		t.Fatalf("pause notices sent = %d, want 1", sends)
	}

	before := f.fetcher.callCount()
	f.poller.Tick(ctx)
	if got := f.fetcher.callCount(); got != before {
		t.Fatalf("paused source was fetched: %d -> %d", before, got)
	}
}

func TestGoneDestinationRemovesSubscription(t *testing.T) {
	f := newFixture(t, time.Millisecond)
	ctx := context.Background()
	sub := f.subscribe(t, 7, model.EventFilter{Status: true})

	f.messenger.sendErr = chat.ErrForbidden
	f.poller.Tick(ctx)

	if _, err := f.store.SubscriptionByID(ctx, sub.ID); err != storage.ErrNotFound {
		t.Fatalf("subscription not removed: %v", err)
	}
	if _, err := f.store.SourceByID(ctx, sub.SourceID); err != storage.ErrNotFound {
		t.Fatalf("orphaned source not removed: %v", err)
	}
}

func TestNewsDelivery(t *testing.T) {
	f := newFixture(t, time.Millisecond)
	ctx := context.Background()
	sub := f.subscribe(t, 7, model.EventFilter{News: true})

	f.fetcher.snap = &pulse.Snapshot{Alerts: []pulse.Alert{
		{ID: 10, Title: "Fresh incident", Severity: pulse.SeverityIncident, CreatedAt: time.Now().Add(-time.Minute)},
		{ID: 11, Title: "Ancient incident", Severity: pulse.SeverityIncident, CreatedAt: time.Now().Add(-4 * 24 * time.Hour)},
	}}
	f.poller.Tick(ctx)

	if sends, _ := f.messenger.counts(); sends != 1 {
		t.Fatalf("sends = %d, want 1 (only the fresh item)", sends)
	}
	if _, err := f.store.MessageRef(ctx, sub.ID, model.CategoryNews, "10"); err != nil {
		t.Fatalf("fresh news ref missing: %v", err)
	}
	if _, err := f.store.MessageRef(ctx, sub.ID, model.CategoryNews, "11"); err != storage.ErrNotFound {
		t.Fatalf("expired news ref exists: %v", err)
	}
}

func TestTickPicksUpSwappedConfig(t *testing.T) {
	f := newFixture(t, time.Millisecond)
	ctx := context.Background()
	f.subscribe(t, 7, model.EventFilter{News: true})

	body := strings.Repeat("x", 200)
	f.fetcher.snap = &pulse.Snapshot{Alerts: []pulse.Alert{
		{ID: 10, Title: "Incident", Severity: pulse.SeverityIncident, BodyHTML: body, CreatedAt: time.Now().Add(-time.Minute)},
	}}
	f.poller.Tick(ctx)
	if !strings.Contains(f.messenger.lastText(), body) {
		t.Fatal("first tick did not render the full body")
	}

	next := *f.config()
	next.Render.MaxText = 50
	f.swapConfig(&next)
	time.Sleep(5 * time.Millisecond)

	f.poller.Tick(ctx)
	got := f.messenger.lastText()
	if strings.Contains(got, body) {
		t.Fatal("second tick still renders the full body; config swap ignored")
	}
	if !strings.Contains(got, strings.Repeat("x", 50)+"…") {
		t.Fatalf("second tick not truncated to the new limit:\n%s", got)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	f := newFixture(t, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- f.poller.Run(ctx) }()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
