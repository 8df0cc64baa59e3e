package mongostore

import (
	"context"
	"fmt"
	"time"

	"github.com/Sagarika311/roomsync/internal/docstore"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// Presence implements docstore.Presence on a MongoDB collection. Records are
// keyed by user id; the _id uniqueness constraint is what resolves the
// double-create upsert race into ErrAlreadyExists.
type Presence struct {
	coll *mongo.Collection
}

// NewPresence creates the presence collection binding.
func NewPresence(s *Store, collection string) *Presence {
	return &Presence{coll: s.db.Collection(collection)}
}

type presenceRecord struct {
	docstore.PresenceDoc `bson:",inline"`
	Permissions          permissionsRecord `bson:"permissions"`
}

func (p *Presence) Touch(ctx context.Context, userID string, lastActive time.Time) error {
	res, err := p.coll.UpdateOne(ctx, bson.M{"_id": userID}, bson.M{"$set": bson.M{"lastActive": lastActive.UTC()}})
	if err != nil {
		return fmt.Errorf("touch presence: %w", err)
	}
	if res.MatchedCount == 0 {
		return docstore.ErrNotFound
	}
	return nil
}

func (p *Presence) Create(ctx context.Context, doc docstore.PresenceDoc, perms docstore.Permissions) error {
	record := presenceRecord{
		PresenceDoc: doc,
		Permissions: permissionsRecord{
			Read:   string(perms.Read),
			Update: string(perms.Update),
			Delete: string(perms.Delete),
		},
	}
	if _, err := p.coll.InsertOne(ctx, record); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return docstore.ErrAlreadyExists
		}
		return fmt.Errorf("create presence: %w", err)
	}
	return nil
}

func (p *Presence) List(ctx context.Context) ([]docstore.PresenceDoc, error) {
	cursor, err := p.coll.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("list presence: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []docstore.PresenceDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode presence: %w", err)
	}
	return docs, nil
}

func (p *Presence) Remove(ctx context.Context, userID string) error {
	res, err := p.coll.DeleteOne(ctx, bson.M{"_id": userID})
	if err != nil {
		return fmt.Errorf("remove presence: %w", err)
	}
	if res.DeletedCount == 0 {
		return docstore.ErrNotFound
	}
	return nil
}
