// Package editlock signals "who is editing what" between participants. Locks
// are advisory: they ride on the same update path as content edits, with
// content left unchanged, and block nothing. Known limitation kept from the
// original design: because lock-set and content-edit share one update call,
// a participant's Begin can overwrite another's in-flight content save;
// last-writer-wins governs the outcome.
package editlock

import (
	"context"
	"errors"

	"github.com/Sagarika311/roomsync/internal/auth"
	"github.com/Sagarika311/roomsync/internal/chat"
)

// ErrNotAuthenticated is returned when no user is bound to mark edits with.
var ErrNotAuthenticated = errors.New("editlock: no authenticated user bound")

// Coordinator marks and clears advisory editor annotations.
type Coordinator struct {
	chat *chat.Reconciler
	auth auth.Provider
}

// NewCoordinator creates a coordinator over the reconciler's edit path.
func NewCoordinator(c *chat.Reconciler, authp auth.Provider) *Coordinator {
	return &Coordinator{chat: c, auth: authp}
}

// Begin announces that the current user started editing msg. Content is sent
// unchanged; only the advisory fields carry the signal.
func (c *Coordinator) Begin(ctx context.Context, msg chat.Message) error {
	user, ok := c.auth.CurrentUser()
	if !ok {
		return ErrNotAuthenticated
	}
	return c.chat.Edit(ctx, msg.ID, msg.Content, chat.EditOptions{
		SetEditingBy:     user.ID,
		SetEditingByName: user.Name(),
	})
}

// End clears the advisory mark after a save or cancel, again with content
// unchanged.
func (c *Coordinator) End(ctx context.Context, msg chat.Message) error {
	return c.chat.Edit(ctx, msg.ID, msg.Content, chat.EditOptions{
		ClearEditing: true,
	})
}

// EditorOf returns the display name of another participant currently marked
// as editing msg. ok is false when nobody, or only the caller, holds the
// mark.
func EditorOf(msg chat.Message, selfID string) (name string, ok bool) {
	if msg.EditingBy == "" || msg.EditingBy == selfID {
		return "", false
	}
	if msg.EditingByName != "" {
		return msg.EditingByName, true
	}
	return msg.EditingBy, true
}
