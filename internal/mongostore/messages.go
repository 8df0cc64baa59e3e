package mongostore

import (
	"context"
	"fmt"
	"time"

	"github.com/Sagarika311/roomsync/internal/docstore"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Messages implements docstore.Messages on a MongoDB collection.
type Messages struct {
	coll *mongo.Collection
}

// NewMessages creates the message collection binding.
func NewMessages(s *Store, collection string) *Messages {
	return &Messages{coll: s.db.Collection(collection)}
}

type messageRecord struct {
	docstore.MessageDoc `bson:",inline"`
	Permissions         permissionsRecord `bson:"permissions"`
}

func (m *Messages) Create(ctx context.Context, draft docstore.MessageDraft, perms docstore.Permissions) (*docstore.MessageDoc, error) {
	doc := docstore.MessageDoc{
		ID:         uuid.NewString(),
		AuthorID:   draft.AuthorID,
		AuthorName: draft.AuthorName,
		Content:    draft.Content,
		CreatedAt:  time.Now().UTC(),
	}
	record := messageRecord{
		MessageDoc: doc,
		Permissions: permissionsRecord{
			Read:   string(perms.Read),
			Update: string(perms.Update),
			Delete: string(perms.Delete),
		},
	}
	if _, err := m.coll.InsertOne(ctx, record); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, docstore.ErrAlreadyExists
		}
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return &doc, nil
}

func (m *Messages) Update(ctx context.Context, id string, patch docstore.MessagePatch) error {
	set := bson.M{}
	if patch.Content != nil {
		set["content"] = *patch.Content
	}
	if patch.Edited != nil {
		set["edited"] = *patch.Edited
	}
	if patch.ClearEditing {
		set["editingBy"] = nil
		set["editingByName"] = nil
	} else {
		if patch.SetEditingBy != nil {
			set["editingBy"] = *patch.SetEditingBy
		}
		if patch.SetEditingByName != nil {
			set["editingByName"] = *patch.SetEditingByName
		}
	}

	res, err := m.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("update message: %w", err)
	}
	if res.MatchedCount == 0 {
		return docstore.ErrNotFound
	}
	return nil
}

func (m *Messages) Delete(ctx context.Context, id string) error {
	res, err := m.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	if res.DeletedCount == 0 {
		return docstore.ErrNotFound
	}
	return nil
}

func (m *Messages) List(ctx context.Context, limit int) ([]docstore.MessageDoc, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}).
		SetLimit(int64(limit))
	cursor, err := m.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []docstore.MessageDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}
	return docs, nil
}
