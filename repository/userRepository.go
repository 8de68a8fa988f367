package repository

import (
	"context"
	"errors"

	"github.com/joeyave/event-registration/entity"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

type UserRepository struct {
	mongoClient *mongo.Client
	dbName      string
}

func NewUserRepository(mongoClient *mongo.Client, dbName string) *UserRepository {
	return &UserRepository{
		mongoClient: mongoClient,
		dbName:      dbName,
	}
}

func (r *UserRepository) Create(ctx context.Context, user *entity.User) (*entity.User, error) {
	if user.ID.IsZero() {
		user.ID = bson.NewObjectID()
	}

	collection := r.mongoClient.Database(r.dbName).Collection(UsersCollection)

	_, err := collection.InsertOne(ctx, user)
	if mongo.IsDuplicateKeyError(err) {
		return nil, ErrDuplicate
	}
	if err != nil {
		return nil, err
	}

	return user, nil
}

func (r *UserRepository) FindOneByID(ctx context.Context, ID bson.ObjectID) (*entity.User, error) {
	return r.findOne(ctx, bson.M{"_id": ID})
}

func (r *UserRepository) FindOneByEmail(ctx context.Context, email string) (*entity.User, error) {
	return r.findOne(ctx, bson.M{"email": email})
}

func (r *UserRepository) DeleteOneByID(ctx context.Context, ID bson.ObjectID) error {
	collection := r.mongoClient.Database(r.dbName).Collection(UsersCollection)

	res, err := collection.DeleteOne(ctx, bson.M{"_id": ID})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *UserRepository) findOne(ctx context.Context, m bson.M) (*entity.User, error) {
	collection := r.mongoClient.Database(r.dbName).Collection(UsersCollection)

	var user *entity.User
	err := collection.FindOne(ctx, m).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return user, nil
}
