package presence

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Sagarika311/roomsync/internal/auth"
	"github.com/Sagarika311/roomsync/internal/bus"
	"github.com/Sagarika311/roomsync/internal/docstore"
	"github.com/Sagarika311/roomsync/internal/feed"
	"go.uber.org/zap"
)

// fakePresenceStore scripts the upsert dance and records calls.
type fakePresenceStore struct {
	mu          sync.Mutex
	touchErr    error
	createErr   error
	listDocs    []docstore.PresenceDoc
	touchCalls  int
	createCalls int
	removed     []string
}

func (f *fakePresenceStore) Touch(_ context.Context, _ string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touchCalls++
	return f.touchErr
}

func (f *fakePresenceStore) Create(_ context.Context, doc docstore.PresenceDoc, _ docstore.Permissions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	if f.createErr != nil {
		return f.createErr
	}
	f.listDocs = append(f.listDocs, doc)
	return nil
}

func (f *fakePresenceStore) List(_ context.Context) ([]docstore.PresenceDoc, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]docstore.PresenceDoc, len(f.listDocs))
	copy(out, f.listDocs)
	return out, nil
}

func (f *fakePresenceStore) Remove(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, userID)
	return nil
}

func (f *fakePresenceStore) counts() (touch, create int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.touchCalls, f.createCalls
}

type fakeTransport struct {
	mu  sync.Mutex
	fns map[string]func(feed.RawEvent)
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{fns: make(map[string]func(feed.RawEvent))}
}

func (f *fakeTransport) Subscribe(topic string, fn func(feed.RawEvent)) (func(), error) {
	f.mu.Lock()
	f.fns[topic] = fn
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		delete(f.fns, topic)
		f.mu.Unlock()
	}, nil
}

func (f *fakeTransport) emit(raw feed.RawEvent) {
	f.mu.Lock()
	fn := f.fns["presence"]
	f.mu.Unlock()
	if fn != nil {
		fn(raw)
	}
}

func newTestTracker(t *testing.T, store *fakePresenceStore) (*Tracker, *fakeTransport, *bus.Bus) {
	t.Helper()
	tr := newFakeTransport()
	b := bus.New()
	provider := auth.NewStaticProvider(auth.User{ID: "u1", DisplayName: "Alice"})
	tk := NewTracker(store, feed.NewAdapter(tr, zap.NewNop()), provider, b, zap.NewNop(), "presence")
	tk.SetInterval(time.Hour) // ticks driven manually in tests
	return tk, tr, b
}

func TestIsOnlineTTL(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	ttl := 5 * time.Minute

	tests := []struct {
		name string
		age  time.Duration
		want bool
	}{
		{"fresh", time.Second, true},
		{"just inside", 4*time.Minute + 59*time.Second, true},
		{"just outside", 5*time.Minute + time.Second, false},
		{"exactly ttl", 5 * time.Minute, false},
		{"ancient", time.Hour, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isOnline(now, now.Add(-tt.age), ttl); got != tt.want {
				t.Errorf("isOnline(age=%v) = %v, want %v", tt.age, got, tt.want)
			}
		})
	}
}

func TestStartUpsertsAndFetches(t *testing.T) {
	store := &fakePresenceStore{touchErr: docstore.ErrNotFound}
	tk, _, _ := newTestTracker(t, store)

	if err := tk.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer tk.Stop()

	if tk.State() != Heartbeating {
		t.Errorf("state = %s, want HEARTBEATING", tk.State())
	}
	touch, create := store.counts()
	if touch != 1 || create != 1 {
		t.Errorf("touch=%d create=%d, want 1 and 1 (update miss then create)", touch, create)
	}

	online := tk.Online()
	if len(online) != 1 || online[0].UserID != "u1" || online[0].Username != "Alice" {
		t.Errorf("online = %+v, want own fresh record", online)
	}
}

func TestUpsertRaceSwallowed(t *testing.T) {
	// Update misses, then the create loses the race: both callers succeed
	// and no error surfaces anywhere.
	store := &fakePresenceStore{touchErr: docstore.ErrNotFound, createErr: docstore.ErrAlreadyExists}
	tk, _, _ := newTestTracker(t, store)

	if err := tk.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v, want race swallowed", err)
	}
	defer tk.Stop()

	if tk.State() != Heartbeating {
		t.Errorf("state = %s, want HEARTBEATING", tk.State())
	}
}

func TestUnrelatedStoreErrorNonFatal(t *testing.T) {
	store := &fakePresenceStore{touchErr: context.DeadlineExceeded}
	tk, _, _ := newTestTracker(t, store)

	if err := tk.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v, presence must be best-effort", err)
	}
	tk.Stop()
}

func TestRefreshFiltersStale(t *testing.T) {
	now := time.Now()
	store := &fakePresenceStore{listDocs: []docstore.PresenceDoc{
		{UserID: "u1", Username: "Alice", LastActive: now.Add(-time.Minute)},
		{UserID: "u2", Username: "Bob", LastActive: now.Add(-4*time.Minute - 59*time.Second)},
		{UserID: "u3", Username: "Carol", LastActive: now.Add(-5*time.Minute - time.Second)},
	}}
	tk, _, _ := newTestTracker(t, store)

	if err := tk.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer tk.Stop()

	online := tk.Online()
	if len(online) != 2 {
		t.Fatalf("online = %d users, want 2 (stale filtered)", len(online))
	}
	for _, rec := range online {
		if rec.UserID == "u3" {
			t.Error("stale record u3 classified online")
		}
	}
}

func TestFeedEventTriggersRefetch(t *testing.T) {
	store := &fakePresenceStore{}
	tk, tr, b := newTestTracker(t, store)

	ch, unsub := b.Subscribe("presence.", 16)
	defer unsub()

	if err := tk.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer tk.Stop()
	<-ch // initial refresh

	// Another participant appears; the feed nudges a wholesale refetch.
	store.mu.Lock()
	store.listDocs = append(store.listDocs, docstore.PresenceDoc{UserID: "u2", Username: "Bob", LastActive: time.Now()})
	store.mu.Unlock()
	tr.emit(feed.RawEvent{Tags: []string{"update"}, Payload: []byte(`{}`)})

	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("no presence.changed after feed event")
	}

	online := tk.Online()
	if len(online) != 1 || online[0].UserID != "u2" {
		t.Errorf("online = %+v, want u2", online)
	}
}

func TestHeartbeatTicks(t *testing.T) {
	store := &fakePresenceStore{}
	tk, _, _ := newTestTracker(t, store)
	tk.SetInterval(10 * time.Millisecond)

	if err := tk.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if touch, _ := store.counts(); touch >= 3 {
			tk.Stop()
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	tk.Stop()
	t.Fatal("heartbeat never re-upserted")
}

func TestStopRemovesOwnRecordAndStopsTicker(t *testing.T) {
	store := &fakePresenceStore{}
	tk, tr, _ := newTestTracker(t, store)
	tk.SetInterval(10 * time.Millisecond)

	if err := tk.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	tk.Stop()

	if tk.State() != Disconnected {
		t.Errorf("state = %s, want DISCONNECTED", tk.State())
	}

	store.mu.Lock()
	removed := len(store.removed) == 1 && store.removed[0] == "u1"
	store.mu.Unlock()
	if !removed {
		t.Error("own record not removed on Stop (best-effort cleanup)")
	}

	// No further upserts after Stop.
	touchBefore, _ := store.counts()
	time.Sleep(50 * time.Millisecond)
	touchAfter, _ := store.counts()
	if touchAfter != touchBefore {
		t.Errorf("ticker still running after Stop: %d -> %d", touchBefore, touchAfter)
	}

	// Late feed dispatch after Stop must not mutate the roster.
	tr.emit(feed.RawEvent{Tags: []string{"update"}, Payload: []byte(`{}`)})
}

func TestStartIdempotent(t *testing.T) {
	store := &fakePresenceStore{}
	tk, _, _ := newTestTracker(t, store)

	if err := tk.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer tk.Stop()
	if err := tk.Start(context.Background()); err != nil {
		t.Errorf("second Start() error = %v, want nil no-op", err)
	}
}
