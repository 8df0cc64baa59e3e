// Package mongostore binds the docstore and feed contracts to MongoDB:
// plain CRUD on the message and presence collections, and change streams as
// the push-event transport.
package mongostore

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Store wraps one MongoDB connection.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// Open connects to the given URI and pings the deployment before returning.
func Open(uri, database string) (*Store, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}

	return &Store{client: client, db: client.Database(database)}, nil
}

// Close disconnects the underlying client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// permissionsRecord is the advisory permission spec stored alongside each
// document. Enforcement belongs to the deployment, not this binding.
type permissionsRecord struct {
	Read   string `bson:"read"`
	Update string `bson:"update"`
	Delete string `bson:"delete"`
}
