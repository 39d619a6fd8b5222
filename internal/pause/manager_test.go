package pause

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"pulsebot/internal/chat"
	"pulsebot/internal/config"
	"pulsebot/internal/model"
	"pulsebot/internal/pulse"
	"pulsebot/internal/storage"
)

type fakeFetcher struct {
	compatible  bool
	snapErr     *pulse.FetchError
	verifyCalls int
	snapCalls   int
}

func (f *fakeFetcher) Snapshot(ctx context.Context, baseURL string) (*pulse.Snapshot, *pulse.FetchError) {
	f.snapCalls++
	if f.snapErr != nil {
		return nil, f.snapErr
	}
	return &pulse.Snapshot{}, nil
}

func (f *fakeFetcher) VerifyCompatible(ctx context.Context, baseURL string) bool {
	f.verifyCalls++
	return f.compatible
}

type fakeMessenger struct {
	sent []int64
}

func (m *fakeMessenger) Send(ctx context.Context, chatID int64, msg chat.Message) (int, error) {
	m.sent = append(m.sent, chatID)
	return len(m.sent), nil
}

func (m *fakeMessenger) Edit(ctx context.Context, chatID int64, messageID int, msg chat.Message) error {
	return nil
}

func newTestManager(t *testing.T) (*Manager, *storage.Store, *fakeFetcher, *fakeMessenger) {
	t.Helper()
	store, err := storage.Open(config.StorageConfig{Path: filepath.Join(t.TempDir(), "test.db")}, zerolog.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	fetcher := &fakeFetcher{compatible: true}
	messenger := &fakeMessenger{}
	cfg := config.BreakerConfig{Threshold: 3, Window: 5 * time.Minute, ResumeCooldown: time.Minute}
	return NewManager(store, fetcher, messenger, cfg, zerolog.Nop()), store, fetcher, messenger
}

func mustSource(t *testing.T, store *storage.Store, subscribers ...int64) *model.Source {
	t.Helper()
	ctx := context.Background()
	src, err := store.CreateSource(ctx, "https://status.example.com", "Example")
	if err != nil {
		t.Fatalf("create source: %v", err)
	}
	for _, chatID := range subscribers {
		if _, err := store.CreateSubscription(ctx, &model.Subscription{ChatID: chatID, SourceID: src.ID}); err != nil {
			t.Fatalf("create subscription: %v", err)
		}
	}
	return src
}

func timeoutErr() *pulse.FetchError {
	return &pulse.FetchError{Kind: pulse.ErrTimeout, Message: "deadline exceeded"}
}

func TestFailureStreakPausesAtThreshold(t *testing.T) {
	m, store, _, messenger := newTestManager(t)
	ctx := context.Background()
	src := mustSource(t, store, 101, 102)

	for i := 0; i < 3; i++ {
		if err := m.RecordFailure(ctx, src, timeoutErr()); err != nil {
			t.Fatalf("record failure %d: %v", i+1, err)
		}
	}

	got, err := store.SourceByID(ctx, src.ID)
	if err != nil {
		t.Fatalf("reload source: %v", err)
	}
	if !got.Paused {
		t.Fatal("source not paused after threshold failures")
	}
	if got.PauseReason != model.PauseTimeout {
		t.Fatalf("pause reason = %q, want TIMEOUT", got.PauseReason)
	}
	if len(messenger.sent) != 2 {
		t.Fatalf("sent %d pause notices, want 2", len(messenger.sent))
	}
}

func TestSuccessResetsStreak(t *testing.T) {
	m, store, _, messenger := newTestManager(t)
	ctx := context.Background()
	src := mustSource(t, store, 101)

	for i := 0; i < 2; i++ {
		if err := m.RecordFailure(ctx, src, timeoutErr()); err != nil {
			t.Fatalf("record failure: %v", err)
		}
	}
	if err := m.RecordSuccess(ctx, src); err != nil {
		t.Fatalf("record success: %v", err)
	}

	got, err := store.SourceByID(ctx, src.ID)
	if err != nil {
		t.Fatalf("reload source: %v", err)
	}
	if got.Paused {
		t.Fatal("source paused after a success reset the streak")
	}
	if got.ConsecutiveFailures != 0 || !got.LastFailureAt.IsZero() {
		t.Fatalf("streak not cleared: failures=%d last=%v", got.ConsecutiveFailures, got.LastFailureAt)
	}
	if len(messenger.sent) != 0 {
		t.Fatalf("unexpected pause notices: %d", len(messenger.sent))
	}
}

func TestStaleStreakRestarts(t *testing.T) {
	m, store, _, _ := newTestManager(t)
	ctx := context.Background()
	src := mustSource(t, store, 101)

	src.ConsecutiveFailures = 2
	src.LastFailureAt = time.Now().Add(-10 * time.Minute)
	if err := m.RecordFailure(ctx, src, timeoutErr()); err != nil {
		t.Fatalf("record failure: %v", err)
	}

	if src.ConsecutiveFailures != 1 {
		t.Fatalf("failures = %d, want 1 after stale streak restart", src.ConsecutiveFailures)
	}
	if src.Paused {
		t.Fatal("source paused although the streak restarted")
	}
}

func TestNotCompatibleReason(t *testing.T) {
	m, store, _, _ := newTestManager(t)
	ctx := context.Background()
	src := mustSource(t, store, 101)

	ferr := &pulse.FetchError{Kind: pulse.ErrNotCompatible, Message: "missing marker header"}
	for i := 0; i < 3; i++ {
		if err := m.RecordFailure(ctx, src, ferr); err != nil {
			t.Fatalf("record failure: %v", err)
		}
	}

	got, err := store.SourceByID(ctx, src.ID)
	if err != nil {
		t.Fatalf("reload source: %v", err)
	}
	if got.PauseReason != model.PauseNotCompatible {
		t.Fatalf("pause reason = %q, want NOT_COMPATIBLE", got.PauseReason)
	}
}

func TestBadResponseProbesCompatibility(t *testing.T) {
	m, store, fetcher, _ := newTestManager(t)
	ctx := context.Background()
	src := mustSource(t, store, 101)

	// The page answers but no longer speaks our protocol.
	fetcher.compatible = false
	ferr := &pulse.FetchError{Kind: pulse.ErrBadResponse, Message: "unexpected payload"}
	for i := 0; i < 3; i++ {
		if err := m.RecordFailure(ctx, src, ferr); err != nil {
			t.Fatalf("record failure: %v", err)
		}
	}

	got, err := store.SourceByID(ctx, src.ID)
	if err != nil {
		t.Fatalf("reload source: %v", err)
	}
	if got.PauseReason != model.PauseNotCompatible {
		t.Fatalf("pause reason = %q, want NOT_COMPATIBLE", got.PauseReason)
	}
}

func TestBadResponseWithMarkerStaysTimeout(t *testing.T) {
	m, store, _, _ := newTestManager(t)
	ctx := context.Background()
	src := mustSource(t, store, 101)

	ferr := &pulse.FetchError{Kind: pulse.ErrBadResponse, Message: "truncated body"}
	if err := m.RecordFailure(ctx, src, ferr); err != nil {
		t.Fatalf("record failure: %v", err)
	}
	if src.PauseReason != model.PauseTimeout {
		t.Fatalf("pause reason = %q, want TIMEOUT while the marker header answers", src.PauseReason)
	}
}

func TestResumeRateLimited(t *testing.T) {
	m, store, fetcher, _ := newTestManager(t)
	ctx := context.Background()
	src := mustSource(t, store, 101)

	res, err := m.Resume(ctx, src, false)
	if err != nil {
		t.Fatalf("first resume: %v", err)
	}
	if res.Outcome != ResumeOK {
		t.Fatalf("first resume outcome = %v, want OK", res.Outcome)
	}

	res, err = m.Resume(ctx, src, false)
	if err != nil {
		t.Fatalf("second resume: %v", err)
	}
	if res.Outcome != ResumeRateLimited {
		t.Fatalf("second resume outcome = %v, want RATE_LIMITED", res.Outcome)
	}
	if !strings.Contains(res.Reason, "try again in") {
		t.Fatalf("rate-limited reason lacks the remaining cooldown: %q", res.Reason)
	}
	if fetcher.verifyCalls != 1 {
		t.Fatalf("verify called %d times, want 1 (rate-limited attempt must not revalidate)", fetcher.verifyCalls)
	}
}

func TestResumeRejectedLeavesStateUntouched(t *testing.T) {
	m, store, fetcher, _ := newTestManager(t)
	ctx := context.Background()
	src := mustSource(t, store, 101)

	src.Paused = true
	src.PauseReason = model.PauseTimeout
	src.ConsecutiveFailures = 3
	if err := store.UpdateSourceHealth(ctx, src); err != nil {
		t.Fatalf("seed paused source: %v", err)
	}

	fetcher.compatible = false
	res, err := m.Resume(ctx, src, false)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if res.Outcome != ResumeRejected || res.Reason == "" {
		t.Fatalf("resume = %+v, want REJECTED with a reason", res)
	}

	got, err := store.SourceByID(ctx, src.ID)
	if err != nil {
		t.Fatalf("reload source: %v", err)
	}
	if !got.Paused || got.ConsecutiveFailures != 3 {
		t.Fatalf("rejected resume mutated state: %+v", got)
	}
}

func TestResumeStillUnreachableRejected(t *testing.T) {
	m, store, fetcher, _ := newTestManager(t)
	ctx := context.Background()
	src := mustSource(t, store, 101)

	fetcher.snapErr = &pulse.FetchError{Kind: pulse.ErrUnreachable, Message: "connection refused"}
	res, err := m.Resume(ctx, src, false)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if res.Outcome != ResumeRejected {
		t.Fatalf("resume outcome = %v, want REJECTED", res.Outcome)
	}
}

func TestResumeClearsBreakerState(t *testing.T) {
	m, store, _, _ := newTestManager(t)
	ctx := context.Background()
	src := mustSource(t, store, 101)

	src.Paused = true
	src.PauseReason = model.PauseTimeout
	src.ConsecutiveFailures = 3
	src.LastFailureAt = time.Now()
	if err := store.UpdateSourceHealth(ctx, src); err != nil {
		t.Fatalf("seed paused source: %v", err)
	}

	res, err := m.Resume(ctx, src, false)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if res.Outcome != ResumeOK {
		t.Fatalf("resume outcome = %v, want OK", res.Outcome)
	}

	got, err := store.SourceByID(ctx, src.ID)
	if err != nil {
		t.Fatalf("reload source: %v", err)
	}
	if got.Paused || got.PauseReason != model.PauseNone || got.ConsecutiveFailures != 0 || !got.LastFailureAt.IsZero() {
		t.Fatalf("breaker state not cleared: %+v", got)
	}
}

func TestForceBypassesCooldown(t *testing.T) {
	m, store, fetcher, _ := newTestManager(t)
	ctx := context.Background()
	src := mustSource(t, store, 101)

	if _, err := m.Resume(ctx, src, false); err != nil {
		t.Fatalf("first resume: %v", err)
	}
	res, err := m.Resume(ctx, src, true)
	if err != nil {
		t.Fatalf("forced resume: %v", err)
	}
	if res.Outcome != ResumeOK {
		t.Fatalf("forced resume outcome = %v, want OK", res.Outcome)
	}
	if fetcher.verifyCalls != 2 {
		t.Fatalf("verify called %d times, want 2", fetcher.verifyCalls)
	}
}
