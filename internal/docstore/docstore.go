// Package docstore defines the boundary to the remote document store. The
// store itself is a pluggable collaborator; the daemon only depends on stable
// opaque document ids, store-assigned timestamps, and full-document updates.
package docstore

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors every binding maps its transport failures onto.
var (
	ErrNotFound      = errors.New("docstore: document not found")
	ErrAlreadyExists = errors.New("docstore: document already exists")
	ErrUnauthorized  = errors.New("docstore: unauthorized")
)

// Audience names who a permission applies to.
type Audience string

const (
	// AudienceAny grants to everyone, authenticated or not.
	AudienceAny Audience = "any"
	// AudienceUsers grants to all authenticated participants.
	AudienceUsers Audience = "users"
)

// AudienceUser grants to a single user id.
func AudienceUser(id string) Audience {
	return Audience("user:" + id)
}

// Permissions is the per-document permission specification passed on create.
// Enforcement is the store's job; this core only declares intent.
type Permissions struct {
	Read   Audience
	Update Audience
	Delete Audience
}

// MessageDoc is the authoritative message document as held by the store.
type MessageDoc struct {
	ID            string    `json:"id" bson:"_id"`
	AuthorID      string    `json:"userId" bson:"userId"`
	AuthorName    string    `json:"userName" bson:"userName"`
	Content       string    `json:"content" bson:"content"`
	Edited        bool      `json:"edited" bson:"edited"`
	EditingBy     string    `json:"editingBy,omitempty" bson:"editingBy,omitempty"`
	EditingByName string    `json:"editingByName,omitempty" bson:"editingByName,omitempty"`
	CreatedAt     time.Time `json:"createdAt" bson:"createdAt"`
}

// MessageDraft is the payload for a create call. The store assigns id and
// creation timestamp.
type MessageDraft struct {
	AuthorID   string
	AuthorName string
	Content    string
}

// MessagePatch is a partial update. Nil fields are left untouched; the store
// echoes the full updated document back over the change feed.
type MessagePatch struct {
	Content *string
	Edited  *bool

	// Advisory edit-lock fields. ClearEditing nulls both; otherwise the Set
	// fields are applied when non-nil.
	SetEditingBy     *string
	SetEditingByName *string
	ClearEditing     bool
}

// PresenceDoc is one participant's presence record, keyed by user id.
type PresenceDoc struct {
	UserID     string    `json:"userId" bson:"_id"`
	Username   string    `json:"username" bson:"username"`
	LastActive time.Time `json:"lastActive" bson:"lastActive"`
}

// Messages is the message collection contract.
type Messages interface {
	// Create inserts a new message and returns the stored document with its
	// store-assigned id and timestamp.
	Create(ctx context.Context, draft MessageDraft, perms Permissions) (*MessageDoc, error)
	// Update applies a patch to an existing document.
	Update(ctx context.Context, id string, patch MessagePatch) error
	// Delete removes a document. Deleting an absent id returns ErrNotFound.
	Delete(ctx context.Context, id string) error
	// List returns up to limit messages ordered by creation time ascending.
	List(ctx context.Context, limit int) ([]MessageDoc, error)
}

// Presence is the presence roster contract. Records are keyed by user id
// with upsert semantics layered on top by the tracker, not the store.
type Presence interface {
	// Touch updates lastActive for an existing record, ErrNotFound otherwise.
	Touch(ctx context.Context, userID string, lastActive time.Time) error
	// Create inserts a record keyed by its user id. ErrAlreadyExists when a
	// concurrent upsert won the race.
	Create(ctx context.Context, doc PresenceDoc, perms Permissions) error
	// List returns the entire roster; staleness filtering happens at read
	// time in the tracker.
	List(ctx context.Context) ([]PresenceDoc, error)
	// Remove deletes a record. Best-effort logout cleanup only.
	Remove(ctx context.Context, userID string) error
}
