package remote

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/Sagarika311/roomsync/internal/feed"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Realtime implements feed.Transport over the store's realtime websocket.
// Topics map onto channel names; the server tags every pushed event with the
// channels it belongs to and the operation suffix the feed adapter classifies.
type Realtime struct {
	conn   *websocket.Conn
	logger *zap.Logger

	// wmu serializes frame writes; gorilla permits one concurrent writer. It
	// is separate from mu so a stalled write never blocks subscription
	// bookkeeping or event dispatch.
	wmu sync.Mutex

	mu     sync.Mutex
	subs   map[string]map[string]func(feed.RawEvent)
	closed bool
}

type wireFrame struct {
	Type     string          `json:"type"`
	Channels []string        `json:"channels,omitempty"`
	Events   []string        `json:"events,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// Dial connects to the realtime endpoint and starts the read loop. The
// project identifier rides the query string, matching the REST headers.
func Dial(endpoint, project string, logger *zap.Logger) (*Realtime, error) {
	url := fmt.Sprintf("%s?project=%s", endpoint, project)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial realtime endpoint: %w", err)
	}

	r := &Realtime{
		conn:   conn,
		logger: logger,
		subs:   make(map[string]map[string]func(feed.RawEvent)),
	}
	go r.readLoop()
	return r, nil
}

func (r *Realtime) readLoop() {
	for {
		var frame wireFrame
		if err := r.conn.ReadJSON(&frame); err != nil {
			r.mu.Lock()
			closed := r.closed
			r.mu.Unlock()
			if !closed {
				r.logger.Warn("realtime connection ended", zap.Error(err))
			}
			return
		}
		if frame.Type != "event" {
			continue
		}
		r.dispatch(frame)
	}
}

// dispatch fans one server frame out to every subscriber of the channels it
// names. Handlers run on the read loop, mirroring how change-stream events
// are delivered.
func (r *Realtime) dispatch(frame wireFrame) {
	r.mu.Lock()
	var fns []func(feed.RawEvent)
	for _, ch := range frame.Channels {
		for _, fn := range r.subs[ch] {
			fns = append(fns, fn)
		}
	}
	r.mu.Unlock()

	ev := feed.RawEvent{Tags: frame.Events, Payload: frame.Payload}
	for _, fn := range fns {
		fn(ev)
	}
}

func (r *Realtime) Subscribe(topic string, fn func(feed.RawEvent)) (func(), error) {
	id := uuid.NewString()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, fmt.Errorf("realtime connection closed")
	}
	first := len(r.subs[topic]) == 0
	if r.subs[topic] == nil {
		r.subs[topic] = make(map[string]func(feed.RawEvent))
	}
	r.subs[topic][id] = fn
	r.mu.Unlock()

	if first {
		if err := r.send(wireFrame{Type: "subscribe", Channels: []string{topic}}); err != nil {
			r.mu.Lock()
			delete(r.subs[topic], id)
			r.mu.Unlock()
			return nil, fmt.Errorf("subscribe %s: %w", topic, err)
		}
	}

	return func() {
		r.mu.Lock()
		delete(r.subs[topic], id)
		last := len(r.subs[topic]) == 0
		closed := r.closed
		r.mu.Unlock()
		if last && !closed {
			if err := r.send(wireFrame{Type: "unsubscribe", Channels: []string{topic}}); err != nil {
				r.logger.Debug("unsubscribe failed", zap.String("topic", topic), zap.Error(err))
			}
		}
	}, nil
}

func (r *Realtime) send(frame wireFrame) error {
	r.wmu.Lock()
	defer r.wmu.Unlock()
	return r.conn.WriteJSON(frame)
}

// Close tears down the connection. Subscriptions are not replayed; callers
// re-subscribe on reconnect.
func (r *Realtime) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()
	return r.conn.Close()
}
