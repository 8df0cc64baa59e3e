// Package chat owns the shared message log: it merges locally-initiated
// optimistic mutations and remotely-pushed change events into one ordered
// view. The collection is never handed out for external mutation; observers
// listen on the bus and re-read List().
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"unicode/utf8"

	"github.com/Sagarika311/roomsync/internal/auth"
	"github.com/Sagarika311/roomsync/internal/bus"
	"github.com/Sagarika311/roomsync/internal/docstore"
	"github.com/Sagarika311/roomsync/internal/feed"
	"go.uber.org/zap"
)

// Reconciler owns the message collection and serializes all mutations to it.
// The mutex guards single merge steps only; store calls happen outside it so
// a slow call never stalls feed delivery.
type Reconciler struct {
	store        docstore.Messages
	feed         *feed.Adapter
	auth         auth.Provider
	bus          *bus.Bus
	logger       *zap.Logger
	topic        string
	historyLimit int

	mu   sync.Mutex
	byID map[string]Message

	sending atomic.Bool
	live    atomic.Bool
	unsub   func()
}

// NewReconciler creates a reconciler over the given store and feed adapter.
// topic is the feed topic of the message collection; historyLimit bounds the
// initial load.
func NewReconciler(store docstore.Messages, fd *feed.Adapter, authp auth.Provider, b *bus.Bus, logger *zap.Logger, topic string, historyLimit int) *Reconciler {
	return &Reconciler{
		store:        store,
		feed:         fd,
		auth:         authp,
		bus:          b,
		logger:       logger,
		topic:        topic,
		historyLimit: historyLimit,
		byID:         make(map[string]Message),
	}
}

// Start loads recent history and subscribes to the change feed. A failed
// history load is logged and recovered by feed delivery; a failed
// subscription is returned, since without it the view can never converge.
func (r *Reconciler) Start(ctx context.Context) error {
	r.live.Store(true)

	docs, err := r.store.List(ctx, r.historyLimit)
	if err != nil {
		r.logger.Error("initial message load failed", zap.Error(err))
		r.bus.Publish(bus.Event{Kind: "message.load_failed", Payload: map[string]string{"error": err.Error()}})
	} else {
		r.mu.Lock()
		for _, d := range docs {
			r.byID[d.ID] = fromDoc(d)
		}
		r.mu.Unlock()
	}

	unsub, err := r.feed.Subscribe(r.topic, r.apply)
	if err != nil {
		r.live.Store(false)
		return fmt.Errorf("subscribe message feed: %w", err)
	}
	r.unsub = unsub
	return nil
}

// Stop cancels the feed subscription. In-flight store calls may complete but
// their results are discarded.
func (r *Reconciler) Stop() {
	r.live.Store(false)
	if r.unsub != nil {
		r.unsub()
		r.unsub = nil
	}
}

// Sending reports whether a send is in flight. It clears when the store call
// resolves, independent of feed delivery.
func (r *Reconciler) Sending() bool {
	return r.sending.Load()
}

// Send issues a create for the trimmed text. No local placeholder is
// appended; the authoritative copy arrives via the feed. A send while another
// is in flight is silently ignored (single-flight). The store call runs in
// the background; its outcome is published as message.send_ok or
// message.send_failed.
func (r *Reconciler) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyContent
	}
	if utf8.RuneCountInString(text) > MaxContentRunes {
		return ErrContentTooLong
	}
	user, ok := r.auth.CurrentUser()
	if !ok {
		return ErrNotAuthenticated
	}
	if !r.sending.CompareAndSwap(false, true) {
		r.logger.Debug("send ignored, another send in flight")
		return nil
	}

	draft := docstore.MessageDraft{
		AuthorID:   user.ID,
		AuthorName: user.Name(),
		Content:    text,
	}
	perms := docstore.Permissions{
		Read:   docstore.AudienceUsers,
		Update: docstore.AudienceUser(user.ID),
		Delete: docstore.AudienceUser(user.ID),
	}

	go func() {
		defer r.sending.Store(false)
		doc, err := r.store.Create(ctx, draft, perms)
		if !r.live.Load() {
			return
		}
		if err != nil {
			terr := &TransportError{Op: "send", Err: err}
			r.logger.Error("send failed", zap.Error(err))
			r.bus.Publish(bus.Event{Kind: "message.send_failed", Payload: map[string]string{"error": terr.Error()}})
			return
		}
		r.bus.Publish(bus.Event{Kind: "message.send_ok", Payload: map[string]string{"id": doc.ID}})
	}()
	return nil
}

// Edit applies an optimistic local merge (content, edited flag and advisory
// editor fields) and issues the update in the background. If the store
// rejects the update, the pre-mutation document is re-applied and
// message.edit_failed is published. The feed echo for this id always wins,
// since it may carry fields mutated concurrently by others.
func (r *Reconciler) Edit(ctx context.Context, id, newText string, opts EditOptions) error {
	trimmed := strings.TrimSpace(newText)
	if trimmed == "" {
		return ErrEmptyContent
	}
	if utf8.RuneCountInString(trimmed) > MaxContentRunes {
		return ErrContentTooLong
	}

	edited := true
	patch := docstore.MessagePatch{
		Content:      &trimmed,
		Edited:       &edited,
		ClearEditing: opts.ClearEditing,
	}
	if !opts.ClearEditing {
		if opts.SetEditingBy != "" {
			patch.SetEditingBy = &opts.SetEditingBy
		}
		if opts.SetEditingByName != "" {
			patch.SetEditingByName = &opts.SetEditingByName
		}
	}

	r.mu.Lock()
	prev, present := r.byID[id]
	var next Message
	if present {
		next = prev
		next.Content = trimmed
		next.Edited = true
		if opts.ClearEditing {
			next.EditingBy = ""
			next.EditingByName = ""
		} else {
			if opts.SetEditingBy != "" {
				next.EditingBy = opts.SetEditingBy
			}
			if opts.SetEditingByName != "" {
				next.EditingByName = opts.SetEditingByName
			}
		}
		r.byID[id] = next
	}
	r.mu.Unlock()
	if present {
		r.bus.Publish(bus.Event{Kind: "message.changed", Payload: map[string]string{"id": id}})
	}

	go func() {
		err := r.store.Update(ctx, id, patch)
		if err == nil || !r.live.Load() {
			return
		}
		if present {
			// Roll back only while the collection still holds the optimistic
			// version. A feed echo that landed during the store call carries
			// fields mutated by others and wins over the pre-edit snapshot.
			r.mu.Lock()
			cur, held := r.byID[id]
			rolledBack := held && cur == next
			if rolledBack {
				r.byID[id] = prev
			}
			r.mu.Unlock()
			if rolledBack {
				r.bus.Publish(bus.Event{Kind: "message.changed", Payload: map[string]string{"id": id}})
			}
		}
		terr := &TransportError{Op: "edit", Err: err}
		r.logger.Error("edit failed", zap.String("id", id), zap.Error(err))
		r.bus.Publish(bus.Event{Kind: "message.edit_failed", Payload: map[string]string{"id": id, "error": terr.Error()}})
	}()
	return nil
}

// Delete removes the message locally and issues the delete in the
// background. A store-side not-found is success (already gone); any other
// failure re-inserts the document and publishes message.delete_failed.
func (r *Reconciler) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	prev, present := r.byID[id]
	delete(r.byID, id)
	r.mu.Unlock()
	if present {
		r.bus.Publish(bus.Event{Kind: "message.changed", Payload: map[string]string{"id": id}})
	}

	go func() {
		err := r.store.Delete(ctx, id)
		if err == nil || errors.Is(err, docstore.ErrNotFound) || !r.live.Load() {
			return
		}
		if present {
			// Restore only while the id is still absent. A feed update that
			// re-delivered the document during the store call wins over the
			// pre-delete snapshot.
			r.mu.Lock()
			_, held := r.byID[id]
			restored := !held
			if restored {
				r.byID[id] = prev
			}
			r.mu.Unlock()
			if restored {
				r.bus.Publish(bus.Event{Kind: "message.changed", Payload: map[string]string{"id": id}})
			}
		}
		terr := &TransportError{Op: "delete", Err: err}
		r.logger.Error("delete failed", zap.String("id", id), zap.Error(err))
		r.bus.Publish(bus.Event{Kind: "message.delete_failed", Payload: map[string]string{"id": id, "error": terr.Error()}})
	}()
	return nil
}

// List returns the current collection ordered by creation timestamp
// ascending, ties broken by id.
func (r *Reconciler) List() []Message {
	r.mu.Lock()
	msgs := make([]Message, 0, len(r.byID))
	for _, m := range r.byID {
		msgs = append(msgs, m)
	}
	r.mu.Unlock()

	sort.Slice(msgs, func(i, j int) bool {
		if !msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
			return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
		}
		return msgs[i].ID < msgs[j].ID
	})
	return msgs
}

// apply merges one feed event into the collection. Events for a given id are
// applied in receipt order; redelivered Created events dedupe against the
// id, an Updated racing ahead of its Created inserts, and Deleted for an
// absent id is a no-op.
func (r *Reconciler) apply(evt feed.Event) {
	if !r.live.Load() {
		return
	}

	var doc docstore.MessageDoc
	if err := json.Unmarshal(evt.Payload, &doc); err != nil {
		r.logger.Error("undecodable message event", zap.Stringer("kind", evt.Kind), zap.Error(err))
		return
	}
	if doc.ID == "" {
		return
	}

	r.mu.Lock()
	switch evt.Kind {
	case feed.Created:
		if _, exists := r.byID[doc.ID]; !exists {
			r.byID[doc.ID] = fromDoc(doc)
		}
	case feed.Updated:
		r.byID[doc.ID] = fromDoc(doc)
	case feed.Deleted:
		delete(r.byID, doc.ID)
	}
	r.mu.Unlock()

	r.bus.Publish(bus.Event{Kind: "message.changed", Payload: map[string]string{"id": doc.ID}})
}
