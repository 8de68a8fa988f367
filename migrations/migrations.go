package migrations

import (
	"context"

	"github.com/joeyave/event-registration/repository"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// EnsureIndexes creates the indexes the Mongo repositories depend on. The
// unique (eventId, userId) index is what rejects a second subscription.
func EnsureIndexes(ctx context.Context, client *mongo.Client, dbName string) error {
	db := client.Database(dbName)

	_, err := db.Collection(repository.UsersCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return err
	}

	_, err = db.Collection(repository.SubscriptionsCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "eventId", Value: 1}, {Key: "userId", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "userId", Value: 1}},
		},
	})
	if err != nil {
		return err
	}

	_, err = db.Collection(repository.EventsCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "startAt", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "organizerId", Value: 1}},
		},
	})
	if err != nil {
		return err
	}

	// Sessions are removed by the server once expiresAt has passed.
	_, err = db.Collection(repository.SessionsCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "expiresAt", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0),
		},
		{
			Keys: bson.D{{Key: "userId", Value: 1}},
		},
	})
	return err
}
