package service

import (
	"context"
	"time"

	"github.com/joeyave/event-registration/entity"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// Both repository (MongoDB) and repository/sqlrepo satisfy these.

type UserRepository interface {
	Create(ctx context.Context, user *entity.User) (*entity.User, error)
	FindOneByID(ctx context.Context, ID bson.ObjectID) (*entity.User, error)
	FindOneByEmail(ctx context.Context, email string) (*entity.User, error)
	DeleteOneByID(ctx context.Context, ID bson.ObjectID) error
}

type SessionRepository interface {
	Create(ctx context.Context, session *entity.Session) error
	FindOneByTokenHash(ctx context.Context, tokenHash string) (*entity.Session, error)
	DeleteOneByTokenHash(ctx context.Context, tokenHash string) error
	DeleteManyByUserID(ctx context.Context, userID bson.ObjectID) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type EventRepository interface {
	Create(ctx context.Context, event *entity.Event) (*entity.Event, error)
	FindOneByID(ctx context.Context, ID bson.ObjectID) (*entity.Event, error)
	Find(ctx context.Context, filter entity.EventFilter) ([]*entity.Event, error)
	FindManyBySubscriber(ctx context.Context, userID bson.ObjectID) ([]*entity.Event, error)
	FindParticipants(ctx context.Context, eventID bson.ObjectID) ([]*entity.User, error)
	CountByOrganizer(ctx context.Context, organizerID bson.ObjectID) (int64, error)

	// Update returns repository.ErrConflict when the event is not active,
	// not owned by organizerID, or would drop below its participant count.
	Update(ctx context.Context, ID, organizerID bson.ObjectID, patch entity.EventPatch) (*entity.Event, error)
	// Cancel reports whether the event went from active to cancelled.
	Cancel(ctx context.Context, ID bson.ObjectID) (bool, error)

	IsSubscribed(ctx context.Context, eventID, userID bson.ObjectID) (bool, error)
	Subscribe(ctx context.Context, eventID, userID bson.ObjectID) (entity.SubscribeResult, error)
	Unsubscribe(ctx context.Context, eventID, userID bson.ObjectID) error
	ReconcileSlots(ctx context.Context) (int, error)
}

// Notifier is told about every event that was just cancelled. It must not
// block the caller and has no way to fail the cancellation.
type Notifier interface {
	NotifyCancelled(ctx context.Context, event *entity.Event)
}
