package mongostore

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/Sagarika311/roomsync/internal/docstore"
	"go.mongodb.org/mongo-driver/bson"
)

func marshalRaw(t *testing.T, v any) bson.Raw {
	t.Helper()
	b, err := bson.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return bson.Raw(b)
}

func TestNormalizeInsert(t *testing.T) {
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	ev := streamEvent{
		OperationType: "insert",
		FullDocument: marshalRaw(t, docstore.MessageDoc{
			ID: "m1", AuthorID: "u1", AuthorName: "Alice", Content: "hello", CreatedAt: at,
		}),
	}

	raw, ok := normalize(ev, MessageCodec())
	if !ok {
		t.Fatal("normalize rejected insert")
	}
	if len(raw.Tags) != 1 || raw.Tags[0] != "create" {
		t.Errorf("tags = %v, want [create]", raw.Tags)
	}

	var doc docstore.MessageDoc
	if err := json.Unmarshal(raw.Payload, &doc); err != nil {
		t.Fatalf("payload not consumer-decodable: %v", err)
	}
	if doc.ID != "m1" || doc.Content != "hello" || !doc.CreatedAt.Equal(at) {
		t.Errorf("decoded = %+v", doc)
	}
}

func TestNormalizeUpdateAndReplace(t *testing.T) {
	for _, op := range []string{"update", "replace"} {
		t.Run(op, func(t *testing.T) {
			ev := streamEvent{
				OperationType: op,
				FullDocument:  marshalRaw(t, docstore.MessageDoc{ID: "m1", Content: "x", CreatedAt: time.Now()}),
			}
			raw, ok := normalize(ev, MessageCodec())
			if !ok {
				t.Fatalf("normalize rejected %s", op)
			}
			if raw.Tags[0] != "update" {
				t.Errorf("tags = %v, want [update]", raw.Tags)
			}
		})
	}
}

func TestNormalizeDelete(t *testing.T) {
	ev := streamEvent{OperationType: "delete"}
	ev.DocumentKey.ID = "m9"

	raw, ok := normalize(ev, MessageCodec())
	if !ok {
		t.Fatal("normalize rejected delete")
	}
	if raw.Tags[0] != "delete" {
		t.Errorf("tags = %v, want [delete]", raw.Tags)
	}

	var doc docstore.MessageDoc
	if err := json.Unmarshal(raw.Payload, &doc); err != nil {
		t.Fatal(err)
	}
	if doc.ID != "m9" {
		t.Errorf("deletion payload id = %q, want m9", doc.ID)
	}
}

func TestNormalizePresenceDelete(t *testing.T) {
	ev := streamEvent{OperationType: "delete"}
	ev.DocumentKey.ID = "u1"

	raw, ok := normalize(ev, PresenceCodec())
	if !ok {
		t.Fatal("normalize rejected delete")
	}
	var doc docstore.PresenceDoc
	if err := json.Unmarshal(raw.Payload, &doc); err != nil {
		t.Fatal(err)
	}
	if doc.UserID != "u1" {
		t.Errorf("deletion payload userId = %q, want u1", doc.UserID)
	}
}

func TestNormalizeIgnoresOtherOps(t *testing.T) {
	for _, op := range []string{"invalidate", "drop", "rename"} {
		ev := streamEvent{OperationType: op}
		if _, ok := normalize(ev, MessageCodec()); ok {
			t.Errorf("normalize accepted %q", op)
		}
	}
}
