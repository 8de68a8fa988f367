package repository

import (
	"context"
	"errors"
	"time"

	"github.com/joeyave/event-registration/entity"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// SessionRepository relies on the TTL index from migrations.EnsureIndexes to
// drop expired sessions; DeleteExpired exists for callers that do not wait for it.
type SessionRepository struct {
	mongoClient *mongo.Client
	dbName      string
}

func NewSessionRepository(mongoClient *mongo.Client, dbName string) *SessionRepository {
	return &SessionRepository{
		mongoClient: mongoClient,
		dbName:      dbName,
	}
}

func (r *SessionRepository) Create(ctx context.Context, session *entity.Session) error {
	collection := r.mongoClient.Database(r.dbName).Collection(SessionsCollection)

	_, err := collection.InsertOne(ctx, session)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicate
	}
	return err
}

func (r *SessionRepository) FindOneByTokenHash(ctx context.Context, tokenHash string) (*entity.Session, error) {
	collection := r.mongoClient.Database(r.dbName).Collection(SessionsCollection)

	var session *entity.Session
	err := collection.FindOne(ctx, bson.M{"_id": tokenHash}).Decode(&session)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return session, nil
}

func (r *SessionRepository) DeleteOneByTokenHash(ctx context.Context, tokenHash string) error {
	collection := r.mongoClient.Database(r.dbName).Collection(SessionsCollection)

	_, err := collection.DeleteOne(ctx, bson.M{"_id": tokenHash})
	return err
}

func (r *SessionRepository) DeleteManyByUserID(ctx context.Context, userID bson.ObjectID) error {
	collection := r.mongoClient.Database(r.dbName).Collection(SessionsCollection)

	_, err := collection.DeleteMany(ctx, bson.M{"userId": userID})
	return err
}

func (r *SessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	collection := r.mongoClient.Database(r.dbName).Collection(SessionsCollection)

	res, err := collection.DeleteMany(ctx, bson.M{"expiresAt": bson.M{"$lte": now}})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
