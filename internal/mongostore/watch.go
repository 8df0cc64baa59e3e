package mongostore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Sagarika311/roomsync/internal/docstore"
	"github.com/Sagarika311/roomsync/internal/feed"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// Codec turns change-stream documents of one collection into the JSON
// payloads feed consumers decode.
type Codec struct {
	// Decode renders a full BSON document as JSON.
	Decode func(raw bson.Raw) ([]byte, error)
	// Key renders the payload for deletions, where only the document key
	// survives.
	Key func(id string) []byte
}

// MessageCodec renders message documents.
func MessageCodec() Codec {
	return Codec{
		Decode: func(raw bson.Raw) ([]byte, error) {
			var d docstore.MessageDoc
			if err := bson.Unmarshal(raw, &d); err != nil {
				return nil, err
			}
			return json.Marshal(d)
		},
		Key: func(id string) []byte {
			b, _ := json.Marshal(map[string]string{"id": id})
			return b
		},
	}
}

// PresenceCodec renders presence documents.
func PresenceCodec() Codec {
	return Codec{
		Decode: func(raw bson.Raw) ([]byte, error) {
			var d docstore.PresenceDoc
			if err := bson.Unmarshal(raw, &d); err != nil {
				return nil, err
			}
			return json.Marshal(d)
		},
		Key: func(id string) []byte {
			b, _ := json.Marshal(map[string]string{"userId": id})
			return b
		},
	}
}

// Watch implements feed.Transport over MongoDB change streams. Topics are
// collection names; each subscription opens its own stream.
type Watch struct {
	store  *Store
	logger *zap.Logger
	codecs map[string]Codec
}

// NewWatch creates a change-stream transport.
func NewWatch(s *Store, logger *zap.Logger) *Watch {
	return &Watch{store: s, logger: logger, codecs: make(map[string]Codec)}
}

// Register binds a codec to a topic. Must happen before Subscribe.
func (w *Watch) Register(topic string, codec Codec) {
	w.codecs[topic] = codec
}

type streamEvent struct {
	OperationType string   `bson:"operationType"`
	FullDocument  bson.Raw `bson:"fullDocument"`
	DocumentKey   struct {
		ID string `bson:"_id"`
	} `bson:"documentKey"`
}

func (w *Watch) Subscribe(topic string, fn func(feed.RawEvent)) (func(), error) {
	codec, ok := w.codecs[topic]
	if !ok {
		return nil, fmt.Errorf("no codec registered for topic %q", topic)
	}

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := w.store.db.Collection(topic).Watch(ctx, mongo.Pipeline{},
		options.ChangeStream().SetFullDocument(options.UpdateLookup))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("watch %s: %w", topic, err)
	}

	go func() {
		defer stream.Close(context.Background())
		for stream.Next(ctx) {
			var ev streamEvent
			if err := stream.Decode(&ev); err != nil {
				w.logger.Error("undecodable change stream event", zap.String("topic", topic), zap.Error(err))
				continue
			}
			raw, ok := normalize(ev, codec)
			if !ok {
				continue
			}
			fn(raw)
		}
		if err := stream.Err(); err != nil && ctx.Err() == nil {
			w.logger.Warn("change stream ended", zap.String("topic", topic), zap.Error(err))
		}
	}()

	return cancel, nil
}

// normalize maps a change-stream event onto the upstream tag vocabulary the
// feed adapter classifies.
func normalize(ev streamEvent, codec Codec) (feed.RawEvent, bool) {
	switch ev.OperationType {
	case "insert":
		payload, err := codec.Decode(ev.FullDocument)
		if err != nil {
			return feed.RawEvent{}, false
		}
		return feed.RawEvent{Tags: []string{"create"}, Payload: payload}, true
	case "update", "replace":
		payload, err := codec.Decode(ev.FullDocument)
		if err != nil {
			return feed.RawEvent{}, false
		}
		return feed.RawEvent{Tags: []string{"update"}, Payload: payload}, true
	case "delete":
		return feed.RawEvent{Tags: []string{"delete"}, Payload: codec.Key(ev.DocumentKey.ID)}, true
	default:
		return feed.RawEvent{}, false
	}
}
