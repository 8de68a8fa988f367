package entity

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

type Subscription struct {
	ID        bson.ObjectID `bson:"_id,omitempty" json:"id"`
	EventID   bson.ObjectID `bson:"eventId" json:"event_id"`
	UserID    bson.ObjectID `bson:"userId" json:"user_id"`
	CreatedAt time.Time     `bson:"createdAt" json:"created_at"`
}

type SubscribeResult string

const (
	SubscribeSuccess           SubscribeResult = "success"
	SubscribeAlreadySubscribed SubscribeResult = "already_subscribed"
	SubscribeInactiveEvent     SubscribeResult = "inactive_event"
	SubscribeNoSlots           SubscribeResult = "no_slots"
)

func (r SubscribeResult) OK() bool {
	return r == SubscribeSuccess
}
