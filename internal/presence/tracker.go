// Package presence maintains the heartbeat-driven roster of active
// participants. Presence is best-effort: store failures are logged, never
// surfaced, and must not degrade chat functionality. Staleness is purely a
// read-time filter over heartbeat timestamps; no expiry job runs anywhere.
package presence

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Sagarika311/roomsync/internal/auth"
	"github.com/Sagarika311/roomsync/internal/bus"
	"github.com/Sagarika311/roomsync/internal/docstore"
	"github.com/Sagarika311/roomsync/internal/feed"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// State is the tracker's lifecycle state.
type State string

const (
	Disconnected State = "DISCONNECTED"
	Heartbeating State = "HEARTBEATING"
)

const (
	// DefaultInterval is the heartbeat tick.
	DefaultInterval = 60 * time.Second
	// DefaultTTL is the staleness threshold for the online filter.
	DefaultTTL = 5 * time.Minute
)

// Record is one online participant as published by the tracker.
type Record struct {
	UserID     string
	Username   string
	LastActive time.Time
}

// Tracker owns the presence roster. It runs its own feed subscription and
// heartbeat timer, independent of the message reconciler.
type Tracker struct {
	store    docstore.Presence
	feed     *feed.Adapter
	auth     auth.Provider
	bus      *bus.Bus
	logger   *zap.Logger
	topic    string
	interval time.Duration
	ttl      time.Duration
	now      func() time.Time

	mu     sync.Mutex
	online []Record
	state  State

	live   atomic.Bool
	cancel context.CancelFunc
	unsub  func()
}

// NewTracker creates a tracker with the default interval and TTL. topic is
// the feed topic of the presence collection.
func NewTracker(store docstore.Presence, fd *feed.Adapter, authp auth.Provider, b *bus.Bus, logger *zap.Logger, topic string) *Tracker {
	return &Tracker{
		store:    store,
		feed:     fd,
		auth:     authp,
		bus:      b,
		logger:   logger,
		topic:    topic,
		interval: DefaultInterval,
		ttl:      DefaultTTL,
		now:      time.Now,
		state:    Disconnected,
	}
}

// SetInterval overrides the heartbeat tick. Call before Start.
func (t *Tracker) SetInterval(d time.Duration) { t.interval = d }

// SetTTL overrides the staleness threshold. Call before Start.
func (t *Tracker) SetTTL(d time.Duration) { t.ttl = d }

// State returns the current lifecycle state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Start moves the tracker to Heartbeating: it immediately upserts the own
// record, fetches the full roster, subscribes to the roster's change feed
// and starts the heartbeat timer. Only a feed subscription failure is
// returned; store errors are logged and swallowed.
func (t *Tracker) Start(ctx context.Context) error {
	user, ok := t.auth.CurrentUser()
	if !ok {
		return errors.New("presence: no authenticated user bound")
	}

	t.mu.Lock()
	if t.state == Heartbeating {
		t.mu.Unlock()
		return nil
	}
	t.state = Heartbeating
	t.mu.Unlock()

	t.live.Store(true)
	ctx, t.cancel = context.WithCancel(ctx)

	t.upsert(ctx, user)
	t.refresh(ctx)

	unsub, err := t.feed.Subscribe(t.topic, func(feed.Event) {
		// Any roster change triggers a wholesale refetch; staleness is
		// evaluated at read time, so no incremental diff is needed.
		t.refresh(ctx)
	})
	if err != nil {
		t.mu.Lock()
		t.state = Disconnected
		t.mu.Unlock()
		t.teardown(false)
		return fmt.Errorf("subscribe presence feed: %w", err)
	}
	t.unsub = unsub

	go t.loop(ctx, user)
	return nil
}

// Stop moves the tracker back to Disconnected: the timer stops, the feed is
// unsubscribed and the own record is removed as best-effort courtesy
// cleanup. Late results of in-flight calls are discarded.
func (t *Tracker) Stop() {
	t.mu.Lock()
	if t.state == Disconnected {
		t.mu.Unlock()
		return
	}
	t.state = Disconnected
	t.mu.Unlock()

	t.teardown(true)
}

func (t *Tracker) teardown(removeOwn bool) {
	t.live.Store(false)
	if t.cancel != nil {
		t.cancel()
	}
	if t.unsub != nil {
		t.unsub()
		t.unsub = nil
	}
	if removeOwn {
		if user, ok := t.auth.CurrentUser(); ok {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := t.store.Remove(ctx, user.ID); err != nil {
				t.logger.Debug("presence cleanup failed", zap.Error(err))
			}
		}
	}
}

// Online returns the published roster snapshot, already filtered to records
// whose heartbeat is within the TTL.
func (t *Tracker) Online() []Record {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Record, len(t.online))
	copy(out, t.online)
	return out
}

func (t *Tracker) loop(ctx context.Context, user auth.User) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.upsert(ctx, user)
		case <-ctx.Done():
			return
		}
	}
}

// upsert refreshes the own record: update-by-id first; if the store reports
// not-found, create-by-id; if the create then reports already-exists
// (another upsert won the race), that is success. Anything else is logged
// and swallowed; presence never blocks chat.
func (t *Tracker) upsert(ctx context.Context, user auth.User) {
	err := t.store.Touch(ctx, user.ID, t.now())
	if err == nil {
		return
	}
	if !errors.Is(err, docstore.ErrNotFound) {
		t.logPresenceError("update", err)
		return
	}

	doc := docstore.PresenceDoc{
		UserID:     user.ID,
		Username:   user.Name(),
		LastActive: t.now(),
	}
	perms := docstore.Permissions{
		Read:   docstore.AudienceAny,
		Update: docstore.AudienceUser(user.ID),
		Delete: docstore.AudienceUser(user.ID),
	}
	if err := t.store.Create(ctx, doc, perms); err != nil && !errors.Is(err, docstore.ErrAlreadyExists) {
		t.logPresenceError("create", err)
	}
}

// refresh re-reads the entire roster and replaces the published view
// wholesale with the records still within the TTL.
func (t *Tracker) refresh(ctx context.Context) {
	docs, err := t.store.List(ctx)
	if err != nil {
		t.logPresenceError("list", err)
		return
	}
	if !t.live.Load() {
		return
	}

	now := t.now()
	active := lo.FilterMap(docs, func(d docstore.PresenceDoc, _ int) (Record, bool) {
		if !isOnline(now, d.LastActive, t.ttl) {
			return Record{}, false
		}
		return Record{UserID: d.UserID, Username: d.Username, LastActive: d.LastActive}, true
	})

	t.mu.Lock()
	t.online = active
	t.mu.Unlock()

	t.bus.Publish(bus.Event{Kind: "presence.changed", Payload: map[string]int{"online": len(active)}})
}

func (t *Tracker) logPresenceError(op string, err error) {
	if errors.Is(err, docstore.ErrUnauthorized) {
		// Cannot touch another user's record; not an error worth noise.
		t.logger.Debug("presence unauthorized", zap.String("op", op))
		return
	}
	t.logger.Warn("presence store error", zap.String("op", op), zap.Error(err))
}

// isOnline reports whether a heartbeat at lastActive still counts as online
// at instant now. Derived at read time, never stored.
func isOnline(now, lastActive time.Time, ttl time.Duration) bool {
	return now.Sub(lastActive) < ttl
}
