// Package feed normalizes the upstream push-event stream into typed change
// events. Transports deliver raw events tagged with one or more of
// create/update/delete per document; the adapter collapses those tags into
// exactly one ChangeKind and hands consumers their own copy of the payload.
package feed

import (
	"strings"

	"go.uber.org/zap"
)

// ChangeKind classifies a normalized change event.
type ChangeKind int

const (
	Created ChangeKind = iota + 1
	Updated
	Deleted
)

func (k ChangeKind) String() string {
	switch k {
	case Created:
		return "created"
	case Updated:
		return "updated"
	case Deleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// RawEvent is what a transport delivers: upstream tags (possibly several,
// e.g. for a bulk operation) and the affected document as JSON.
type RawEvent struct {
	Tags    []string
	Payload []byte
}

// Transport is the push channel the adapter subscribes to. Delivery is
// at-least-once; consumers must be idempotent. The returned function cancels
// the subscription and stops all further dispatch.
type Transport interface {
	Subscribe(topic string, fn func(RawEvent)) (func(), error)
}

// Event is a normalized change event. The payload is owned by the consumer;
// the adapter copies it out of the raw event before dispatch.
type Event struct {
	Kind    ChangeKind
	Payload []byte
}

// Classify collapses upstream event tags into one ChangeKind. Tags are
// matched on their final dot-segment, so both "create" and
// "…documents.abc.create" qualify. When tags conflict the priority is
// Created > Deleted > Updated, since the upstream does not guarantee
// mutual exclusivity. ok is false when no tag matches.
func Classify(tags []string) (kind ChangeKind, ok bool) {
	var created, updated, deleted bool
	for _, tag := range tags {
		switch tag[strings.LastIndex(tag, ".")+1:] {
		case "create":
			created = true
		case "update":
			updated = true
		case "delete":
			deleted = true
		}
	}
	switch {
	case created:
		return Created, true
	case deleted:
		return Deleted, true
	case updated:
		return Updated, true
	default:
		return 0, false
	}
}

// Adapter wraps a Transport and delivers normalized events.
type Adapter struct {
	transport Transport
	logger    *zap.Logger
}

// NewAdapter creates an adapter over the given transport.
func NewAdapter(t Transport, logger *zap.Logger) *Adapter {
	return &Adapter{transport: t, logger: logger}
}

// Subscribe registers fn for normalized change events on topic. Raw events
// whose tags classify to nothing are dropped with a debug log. Returns an
// unsubscribe function.
func (a *Adapter) Subscribe(topic string, fn func(Event)) (func(), error) {
	return a.transport.Subscribe(topic, func(raw RawEvent) {
		kind, ok := Classify(raw.Tags)
		if !ok {
			if a.logger != nil {
				a.logger.Debug("unclassifiable feed event dropped",
					zap.String("topic", topic),
					zap.Strings("tags", raw.Tags))
			}
			return
		}
		payload := make([]byte, len(raw.Payload))
		copy(payload, raw.Payload)
		fn(Event{Kind: kind, Payload: payload})
	})
}
