package feed

import (
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		tags []string
		want ChangeKind
		ok   bool
	}{
		{"plain create", []string{"create"}, Created, true},
		{"plain update", []string{"update"}, Updated, true},
		{"plain delete", []string{"delete"}, Deleted, true},
		{"dotted path", []string{"databases.db.collections.messages.documents.m1.create"}, Created, true},
		{"create beats update", []string{"update", "create"}, Created, true},
		{"create beats delete", []string{"delete", "create"}, Created, true},
		{"delete beats update", []string{"update", "delete"}, Deleted, true},
		{"all three", []string{"update", "delete", "create"}, Created, true},
		{"no match", []string{"connect", "ping"}, 0, false},
		{"empty", nil, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Classify(tt.tags)
			if ok != tt.ok {
				t.Fatalf("Classify(%v) ok = %v, want %v", tt.tags, ok, tt.ok)
			}
			if ok && got != tt.want {
				t.Errorf("Classify(%v) = %v, want %v", tt.tags, got, tt.want)
			}
		})
	}
}

// fakeTransport records subscriptions and lets tests push raw events.
type fakeTransport struct {
	topics map[string]func(RawEvent)
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{topics: make(map[string]func(RawEvent))}
}

func (f *fakeTransport) Subscribe(topic string, fn func(RawEvent)) (func(), error) {
	f.topics[topic] = fn
	return func() { delete(f.topics, topic) }, nil
}

func (f *fakeTransport) emit(topic string, raw RawEvent) {
	if fn, ok := f.topics[topic]; ok {
		fn(raw)
	}
}

func TestAdapterNormalizes(t *testing.T) {
	tr := newFakeTransport()
	a := NewAdapter(tr, nil)

	var got []Event
	unsub, err := a.Subscribe("messages", func(evt Event) {
		got = append(got, evt)
	})
	if err != nil {
		t.Fatal(err)
	}
	defer unsub()

	tr.emit("messages", RawEvent{Tags: []string{"create"}, Payload: []byte(`{"id":"m1"}`)})
	tr.emit("messages", RawEvent{Tags: []string{"ping"}, Payload: []byte(`{}`)})
	tr.emit("messages", RawEvent{Tags: []string{"update", "delete"}, Payload: []byte(`{"id":"m1"}`)})

	if len(got) != 2 {
		t.Fatalf("delivered %d events, want 2 (unclassifiable dropped)", len(got))
	}
	if got[0].Kind != Created || got[1].Kind != Deleted {
		t.Errorf("kinds = %v, %v; want created, deleted", got[0].Kind, got[1].Kind)
	}
}

func TestAdapterCopiesPayload(t *testing.T) {
	tr := newFakeTransport()
	a := NewAdapter(tr, nil)

	var got Event
	unsub, err := a.Subscribe("messages", func(evt Event) { got = evt })
	if err != nil {
		t.Fatal(err)
	}
	defer unsub()

	raw := []byte(`{"id":"m1"}`)
	tr.emit("messages", RawEvent{Tags: []string{"create"}, Payload: raw})

	// Mutating the transport's buffer must not affect the delivered copy.
	raw[0] = 'X'
	if string(got.Payload) != `{"id":"m1"}` {
		t.Errorf("payload aliased transport buffer: %s", got.Payload)
	}
}

func TestAdapterUnsubscribeStopsDispatch(t *testing.T) {
	tr := newFakeTransport()
	a := NewAdapter(tr, nil)

	count := 0
	unsub, err := a.Subscribe("messages", func(Event) { count++ })
	if err != nil {
		t.Fatal(err)
	}
	unsub()

	tr.emit("messages", RawEvent{Tags: []string{"create"}})
	if count != 0 {
		t.Errorf("dispatched %d events after unsubscribe, want 0", count)
	}
}
