package chat

import (
	"time"

	"github.com/Sagarika311/roomsync/internal/docstore"
)

// MaxContentRunes bounds message content length, checked before any network
// call.
const MaxContentRunes = 500

// Message is the reconciler's view of one chat message.
type Message struct {
	ID         string
	AuthorID   string
	AuthorName string
	Content    string
	Edited     bool

	// Advisory editor mark. Non-empty EditingBy means some participant has
	// announced an edit in progress; it blocks nothing.
	EditingBy     string
	EditingByName string

	CreatedAt time.Time
}

// EditOptions carries the advisory edit-lock fields riding on an update.
type EditOptions struct {
	SetEditingBy     string
	SetEditingByName string
	ClearEditing     bool
}

func fromDoc(d docstore.MessageDoc) Message {
	return Message{
		ID:            d.ID,
		AuthorID:      d.AuthorID,
		AuthorName:    d.AuthorName,
		Content:       d.Content,
		Edited:        d.Edited,
		EditingBy:     d.EditingBy,
		EditingByName: d.EditingByName,
		CreatedAt:     d.CreatedAt,
	}
}
