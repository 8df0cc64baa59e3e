package remote

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Sagarika311/roomsync/internal/feed"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{}

// newWSServer runs handler on each upgraded connection and returns the ws URL.
func newWSServer(t *testing.T, handler func(*websocket.Conn)) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		c, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			return
		}
		defer c.Close()
		handler(c)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// drain keeps reading until the peer closes the connection.
func drain(c *websocket.Conn) {
	for {
		if _, _, err := c.NextReader(); err != nil {
			return
		}
	}
}

func TestRealtimeSubscribeDelivery(t *testing.T) {
	frames := make(chan wireFrame, 1)
	url := newWSServer(t, func(c *websocket.Conn) {
		var f wireFrame
		if err := c.ReadJSON(&f); err != nil {
			return
		}
		frames <- f
		_ = c.WriteJSON(wireFrame{
			Type:     "event",
			Channels: []string{"messages"},
			Events:   []string{"collections.messages.documents.m1.create"},
			Payload:  json.RawMessage(`{"id":"m1"}`),
		})
		drain(c)
	})

	r, err := Dial(url, "proj", zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = r.Close() })

	got := make(chan feed.RawEvent, 1)
	unsub, err := r.Subscribe("messages", func(ev feed.RawEvent) { got <- ev })
	if err != nil {
		t.Fatal(err)
	}
	defer unsub()

	select {
	case f := <-frames:
		if f.Type != "subscribe" || len(f.Channels) != 1 || f.Channels[0] != "messages" {
			t.Errorf("subscribe frame = %+v", f)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no subscribe frame reached the server")
	}

	select {
	case ev := <-got:
		if len(ev.Tags) != 1 || !strings.HasSuffix(ev.Tags[0], ".create") {
			t.Errorf("tags = %v", ev.Tags)
		}
		if string(ev.Payload) != `{"id":"m1"}` {
			t.Errorf("payload = %s", ev.Payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event never dispatched")
	}
}

func TestRealtimeStalledWriteDoesNotBlockDispatch(t *testing.T) {
	push := make(chan struct{})
	url := newWSServer(t, func(c *websocket.Conn) {
		var f wireFrame
		if err := c.ReadJSON(&f); err != nil {
			return
		}
		<-push
		_ = c.WriteJSON(wireFrame{
			Type:     "event",
			Channels: []string{"a"},
			Events:   []string{"update"},
			Payload:  json.RawMessage(`{}`),
		})
		drain(c)
	})

	r, err := Dial(url, "proj", zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = r.Close() })

	got := make(chan feed.RawEvent, 1)
	if _, err := r.Subscribe("a", func(ev feed.RawEvent) { got <- ev }); err != nil {
		t.Fatal(err)
	}

	// Hold the write path, as a stalled frame write would, and start a
	// subscribe that has to wait behind it.
	r.wmu.Lock()
	subscribed := make(chan struct{})
	go func() {
		if _, err := r.Subscribe("b", func(feed.RawEvent) {}); err != nil {
			t.Error(err)
		}
		close(subscribed)
	}()

	// Incoming events must still be dispatched.
	close(push)
	select {
	case <-got:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch blocked behind a stalled write")
	}

	r.wmu.Unlock()
	select {
	case <-subscribed:
	case <-time.After(2 * time.Second):
		t.Fatal("queued subscribe never completed")
	}
}
