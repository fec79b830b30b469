package ledger

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestLedger(t *testing.T, store Store, clock *fakeClock) *Ledger {
	t.Helper()
	return New(context.Background(), store, Options{
		RecommendCooldown: 30 * time.Minute,
		Backend:           "test",
		Now:               clock.Now,
	}, zerolog.Nop())
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestScoreDeltas(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name   string
		record func(l *Ledger)
		want   float64
	}{
		{"played", func(l *Ledger) { l.RecordPlayed(ctx, "a") }, 0.15},
		{"skipped", func(l *Ledger) { l.RecordSkipped(ctx, "a") }, -0.25},
		{"completed", func(l *Ledger) { l.RecordCompleted(ctx, "a") }, 0.30},
		{"replayed", func(l *Ledger) { l.RecordReplayed(ctx, "a") }, 0.20},
		{"played then completed", func(l *Ledger) {
			l.RecordPlayed(ctx, "a")
			l.RecordCompleted(ctx, "a")
		}, 0.45},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newTestLedger(t, NewMemoryStore(), newFakeClock())
			tt.record(l)
			if got := l.Score("a"); !approx(got, tt.want) {
				t.Fatalf("score = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestScoresStayClamped(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t, NewMemoryStore(), newFakeClock())

	for i := 0; i < 20; i++ {
		l.RecordCompleted(ctx, "up")
		l.RecordSkipped(ctx, "down")
	}
	if got := l.Score("up"); got != 1 {
		t.Fatalf("expected score capped at 1, got %v", got)
	}
	if got := l.Score("down"); got != -1 {
		t.Fatalf("expected score floored at -1, got %v", got)
	}

	l.SetScore(ctx, "manual", 7)
	if got := l.Score("manual"); got != 1 {
		t.Fatalf("expected SetScore to clamp, got %v", got)
	}
	l.SetScore(ctx, "nan", math.NaN())
	if got := l.Score("nan"); got != 0 {
		t.Fatalf("expected NaN to be stored as 0, got %v", got)
	}
}

func TestHistoriesAreBounded(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t, NewMemoryStore(), newFakeClock())

	for i := 0; i < HistoryLimit+25; i++ {
		path := "track-" + string(rune('a'+i%26))
		l.RecordPlayed(ctx, path)
		l.RecordSkipped(ctx, path)
	}
	st := l.Stats()
	if st.PlayHistory != HistoryLimit || st.SkipHistory != HistoryLimit {
		t.Fatalf("expected histories capped at %d, got plays=%d skips=%d", HistoryLimit, st.PlayHistory, st.SkipHistory)
	}
}

func TestPlayClearsSkipHistoryAndStampsTime(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	l := newTestLedger(t, NewMemoryStore(), clock)

	l.RecordSkipped(ctx, "song")
	l.RecordSkipped(ctx, "other")
	if !l.WasRecentlySkipped("song") {
		t.Fatal("expected song to be recently skipped")
	}
	if !l.LastPlayedAt("song").IsZero() {
		t.Fatal("expected no play time before first play")
	}

	l.RecordPlayed(ctx, "song")
	if l.WasRecentlySkipped("song") {
		t.Fatal("expected play to remove song from skip history")
	}
	if !l.WasRecentlySkipped("other") {
		t.Fatal("expected other skips to survive")
	}
	if got := l.LastPlayedAt("song"); !got.Equal(clock.Now().Truncate(time.Millisecond)) {
		t.Fatalf("last played = %v, want %v", got, clock.Now())
	}
}

func TestRecentSkipWindow(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t, NewMemoryStore(), newFakeClock())

	l.RecordSkipped(ctx, "old")
	for i := 0; i < RecentSkipWindow; i++ {
		l.RecordSkipped(ctx, "filler")
	}
	if l.WasRecentlySkipped("old") {
		t.Fatal("expected skip outside the window to no longer count")
	}
	if !l.WasRecentlySkipped("filler") {
		t.Fatal("expected filler to be recently skipped")
	}
}

func TestRecordRecommendedPurgesOldStamps(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	l := newTestLedger(t, NewMemoryStore(), clock)

	l.RecordRecommended(ctx, "a", "b")
	if l.LastRecommendedAt("a").IsZero() {
		t.Fatal("expected recommendation stamp")
	}

	clock.Advance(4*30*time.Minute + time.Second)
	l.RecordRecommended(ctx, "c")

	if !l.LastRecommendedAt("a").IsZero() || !l.LastRecommendedAt("b").IsZero() {
		t.Fatal("expected stale stamps to be purged")
	}
	if l.LastRecommendedAt("c").IsZero() {
		t.Fatal("expected fresh stamp to remain")
	}
}

func TestFrequentlyPlayed(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t, NewMemoryStore(), newFakeClock())

	for _, p := range []string{"b", "a", "b", "c", "a", "b"} {
		l.RecordPlayed(ctx, p)
	}
	got := l.FrequentlyPlayed(2)
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	if got[0] != (PlayCount{Path: "b", Count: 3}) || got[1] != (PlayCount{Path: "a", Count: 2}) {
		t.Fatalf("unexpected ranking: %+v", got)
	}
}

func TestLearnMoodPreferences(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t, NewMemoryStore(), newFakeClock())

	if got := l.MoodPreference("hype"); got != DefaultMoodPreference {
		t.Fatalf("expected neutral default, got %v", got)
	}

	l.LearnMoodPreferences(ctx, map[string]int{"hype": 100, "bogus": 100}, true)
	want := 0.5 + (1.0-0.5)*0.05
	if got := l.MoodPreference("hype"); !approx(got, want) {
		t.Fatalf("liked hype = %v, want %v", got, want)
	}

	l.LearnMoodPreferences(ctx, map[string]int{"melodic": 0}, false)
	want = 0.5 + (0.0-0.5)*-0.05
	if got := l.MoodPreference("melodic"); !approx(got, want) {
		t.Fatalf("disliked melodic = %v, want %v", got, want)
	}

	adj := l.RecommendedMoodAdjustments()
	if len(adj) != 2 {
		t.Fatalf("expected two learned dimensions, got %v", adj)
	}
	if adj["hype"] != 53 {
		t.Fatalf("expected hype adjustment 53, got %d", adj["hype"])
	}
}

func TestMutationsPersistAndReload(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := NewMemoryStore()
	l := newTestLedger(t, store, clock)

	l.RecordPlayed(ctx, "x")
	l.RecordSkipped(ctx, "y")
	l.LearnMoodPreferences(ctx, map[string]int{"cinematic": 80}, true)
	if store.Saves() != 3 {
		t.Fatalf("expected a save per mutation, got %d", store.Saves())
	}

	reloaded := newTestLedger(t, store, clock)
	if !approx(reloaded.Score("x"), PlayedDelta) || !approx(reloaded.Score("y"), SkippedDelta) {
		t.Fatalf("scores not restored: x=%v y=%v", reloaded.Score("x"), reloaded.Score("y"))
	}
	if !reloaded.WasRecentlySkipped("y") {
		t.Fatal("skip history not restored")
	}
	if reloaded.LastPlayedAt("x").IsZero() {
		t.Fatal("play time not restored")
	}
	if reloaded.MoodPreference("cinematic") == DefaultMoodPreference {
		t.Fatal("mood preference not restored")
	}
}

func TestResetClearsState(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	l := newTestLedger(t, store, newFakeClock())

	l.RecordPlayed(ctx, "x")
	l.RecordRecommended(ctx, "x")
	l.Reset(ctx)

	if st := l.Stats(); st != (Stats{}) {
		t.Fatalf("expected empty stats after reset, got %+v", st)
	}
	snap, _ := store.Load(ctx)
	if !snap.IsEmpty() {
		t.Fatalf("expected reset to be persisted, got %+v", snap)
	}
}

type failingStore struct {
	loadErr error
	saveErr error
	mu      sync.Mutex
	calls   int
}

func (f *failingStore) Load(ctx context.Context) (Snapshot, error) {
	return EmptySnapshot(), f.loadErr
}

func (f *failingStore) Save(ctx context.Context, snap Snapshot) error {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.saveErr
}

func TestPersistFailureKeepsMemoryAuthoritative(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{
		loadErr: errors.New("disk on fire"),
		saveErr: errors.New("still on fire"),
	}
	l := newTestLedger(t, store, newFakeClock())

	l.RecordPlayed(ctx, "a")
	l.RecordCompleted(ctx, "a")

	if got := l.Score("a"); !approx(got, PlayedDelta+CompletedDelta) {
		t.Fatalf("expected in-memory score to survive save failures, got %v", got)
	}
	if store.calls != 2 {
		t.Fatalf("expected every mutation to attempt a save, got %d", store.calls)
	}
}

func TestCancelledContextStillPersists(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := NewMemoryStore()
	l := newTestLedger(t, store, newFakeClock())
	l.RecordPlayed(ctx, "a")

	snap, _ := store.Load(context.Background())
	if !approx(snap.Scores["a"], PlayedDelta) {
		t.Fatalf("expected save despite cancelled request context, got %v", snap.Scores)
	}
}

func TestConcurrentMutations(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t, NewMemoryStore(), newFakeClock())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				l.RecordPlayed(ctx, "shared")
				_ = l.Score("shared")
				_ = l.WasRecentlySkipped("shared")
			}
		}()
	}
	wg.Wait()

	if got := l.Stats().PlayHistory; got != 200 {
		t.Fatalf("expected 200 plays, got %d", got)
	}
	if got := l.Score("shared"); got != 1 {
		t.Fatalf("expected clamped score 1, got %v", got)
	}
}

func TestStatsString(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t, NewMemoryStore(), newFakeClock())
	l.RecordPlayed(ctx, "a")
	l.RecordSkipped(ctx, "b")

	out := l.Stats().String()
	for _, want := range []string{
		"Learning Stats:",
		"- Songs tracked: 2",
		"- Positive scores: 1",
		"- Negative scores: 1",
		"- Play history: 1 items",
		"- Skip history: 1 items",
		"- Mood preferences: 0 learned",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("stats output missing %q:\n%s", want, out)
		}
	}
}
