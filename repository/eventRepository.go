package repository

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/joeyave/event-registration/entity"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// EventRepository stores events and their subscriptions in MongoDB.
//
// Capacity is guarded by a conditional decrement on the event document
// (availableSlots > 0) and double subscription by the unique
// (eventId, userId) index on subscriptions, so no transaction is needed.
type EventRepository struct {
	mongoClient *mongo.Client
	dbName      string
}

func NewEventRepository(mongoClient *mongo.Client, dbName string) *EventRepository {
	return &EventRepository{
		mongoClient: mongoClient,
		dbName:      dbName,
	}
}

func (r *EventRepository) Create(ctx context.Context, event *entity.Event) (*entity.Event, error) {
	if event.ID.IsZero() {
		event.ID = bson.NewObjectID()
	}

	_, err := r.events().InsertOne(ctx, event)
	if err != nil {
		return nil, err
	}

	return event, nil
}

func (r *EventRepository) FindOneByID(ctx context.Context, ID bson.ObjectID) (*entity.Event, error) {
	events, err := r.find(ctx, bson.M{"_id": ID})
	if err != nil {
		return nil, err
	}

	return events[0], nil
}

func (r *EventRepository) Find(ctx context.Context, filter entity.EventFilter) ([]*entity.Event, error) {
	m := bson.M{}
	if !filter.IncludeCancelled {
		m["isActive"] = true
	}
	if !filter.Now.IsZero() {
		m["endAt"] = bson.M{"$gte": filter.Now}
	}
	if filter.Title != "" {
		m["title"] = bson.M{
			"$regex":   regexp.QuoteMeta(filter.Title),
			"$options": "i",
		}
	}
	if filter.OrganizerID != nil {
		m["organizerId"] = *filter.OrganizerID
	}
	if filter.DayFromUTC != nil && filter.DayToUTC != nil {
		m["startAt"] = bson.M{
			"$gte": *filter.DayFromUTC,
			"$lt":  *filter.DayToUTC,
		}
	}

	events, err := r.find(ctx, m,
		bson.M{
			"$sort": bson.D{
				{Key: "startAt", Value: 1},
				{Key: "_id", Value: 1},
			},
		},
	)
	if errors.Is(err, ErrNotFound) {
		return []*entity.Event{}, nil
	}
	return events, err
}

func (r *EventRepository) FindManyBySubscriber(ctx context.Context, userID bson.ObjectID) ([]*entity.Event, error) {
	pipeline := bson.A{
		bson.M{
			"$match": bson.M{"userId": userID},
		},
		bson.M{
			"$lookup": bson.M{
				"from":         EventsCollection,
				"localField":   "eventId",
				"foreignField": "_id",
				"as":           "event",
			},
		},
		bson.M{
			"$unwind": "$event",
		},
		bson.M{
			"$replaceRoot": bson.M{"newRoot": "$event"},
		},
		bson.M{
			"$sort": bson.D{
				{Key: "startAt", Value: 1},
				{Key: "_id", Value: 1},
			},
		},
	}

	cur, err := r.subscriptions().Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}

	events := []*entity.Event{}
	if err := cur.All(ctx, &events); err != nil {
		return nil, err
	}
	return events, nil
}

func (r *EventRepository) FindParticipants(ctx context.Context, eventID bson.ObjectID) ([]*entity.User, error) {
	pipeline := bson.A{
		bson.M{
			"$match": bson.M{"eventId": eventID},
		},
		bson.M{
			"$lookup": bson.M{
				"from":         UsersCollection,
				"localField":   "userId",
				"foreignField": "_id",
				"as":           "user",
			},
		},
		bson.M{
			"$unwind": "$user",
		},
		bson.M{
			"$replaceRoot": bson.M{"newRoot": "$user"},
		},
		bson.M{
			"$sort": bson.M{"name": 1},
		},
	}

	cur, err := r.subscriptions().Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}

	users := []*entity.User{}
	if err := cur.All(ctx, &users); err != nil {
		return nil, err
	}
	return users, nil
}

func (r *EventRepository) CountByOrganizer(ctx context.Context, organizerID bson.ObjectID) (int64, error) {
	return r.events().CountDocuments(ctx, bson.M{"organizerId": organizerID})
}

// Update applies the patch only while the event is active and owned by
// organizerID. A TotalSlots change shifts availableSlots by the same amount
// and is refused when fewer slots than current participants would remain.
func (r *EventRepository) Update(ctx context.Context, ID, organizerID bson.ObjectID, patch entity.EventPatch) (*entity.Event, error) {
	filter := bson.M{
		"_id":         ID,
		"organizerId": organizerID,
		"isActive":    true,
	}

	set := bson.M{"updatedAt": time.Now().UTC()}
	if patch.Title != nil {
		set["title"] = *patch.Title
	}
	if patch.Description != nil {
		set["description"] = *patch.Description
	}
	if patch.StartAt != nil {
		set["startAt"] = *patch.StartAt
	}
	if patch.EndAt != nil {
		set["endAt"] = *patch.EndAt
	}
	if patch.TotalSlots != nil {
		total := *patch.TotalSlots
		filter["$expr"] = bson.M{
			"$lte": bson.A{bson.M{"$subtract": bson.A{"$totalSlots", "$availableSlots"}}, total},
		}
		// Expressions in one $set stage all read the pre-update document.
		set["availableSlots"] = bson.M{
			"$add": bson.A{"$availableSlots", bson.M{"$subtract": bson.A{total, "$totalSlots"}}},
		}
		set["totalSlots"] = total
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var event *entity.Event
	err := r.events().FindOneAndUpdate(ctx, filter, bson.A{bson.M{"$set": set}}, opts).Decode(&event)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrConflict
	}
	if err != nil {
		return nil, err
	}
	return event, nil
}

// Cancel flips isActive to false. It reports false when the event was
// already cancelled, so only one caller ever observes the transition.
func (r *EventRepository) Cancel(ctx context.Context, ID bson.ObjectID) (bool, error) {
	res, err := r.events().UpdateOne(ctx,
		bson.M{"_id": ID, "isActive": true},
		bson.M{"$set": bson.M{"isActive": false, "updatedAt": time.Now().UTC()}},
	)
	if err != nil {
		return false, err
	}
	return res.ModifiedCount == 1, nil
}

func (r *EventRepository) IsSubscribed(ctx context.Context, eventID, userID bson.ObjectID) (bool, error) {
	count, err := r.subscriptions().CountDocuments(ctx,
		bson.M{"eventId": eventID, "userId": userID},
		options.Count().SetLimit(1),
	)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Subscribe inserts the subscription first, so the unique index turns away a
// second request from the same user before any slot is touched, and then
// takes a slot with a conditional decrement. A failed decrement removes the
// inserted row again.
func (r *EventRepository) Subscribe(ctx context.Context, eventID, userID bson.ObjectID) (entity.SubscribeResult, error) {
	now := time.Now().UTC()

	subscriptionID := bson.NewObjectID()
	_, err := r.subscriptions().InsertOne(ctx, entity.Subscription{
		ID:        subscriptionID,
		EventID:   eventID,
		UserID:    userID,
		CreatedAt: now,
	})
	if mongo.IsDuplicateKeyError(err) {
		return r.rejection(ctx, eventID, entity.SubscribeAlreadySubscribed)
	}
	if err != nil {
		return "", fmt.Errorf("insert subscription: %w", err)
	}

	res, err := r.events().UpdateOne(ctx,
		bson.M{
			"_id":            eventID,
			"isActive":       true,
			"availableSlots": bson.M{"$gt": 0},
		},
		bson.M{
			"$inc": bson.M{"availableSlots": -1},
			"$set": bson.M{"updatedAt": now},
		},
	)
	if err != nil || res.MatchedCount == 0 {
		if _, delErr := r.subscriptions().DeleteOne(ctx, bson.M{"_id": subscriptionID}); delErr != nil {
			return "", fmt.Errorf("remove subscription without slot: %w", delErr)
		}
	}
	if err != nil {
		return "", fmt.Errorf("take slot: %w", err)
	}
	if res.MatchedCount == 0 {
		return r.rejection(ctx, eventID, entity.SubscribeNoSlots)
	}

	return entity.SubscribeSuccess, nil
}

// rejection re-reads the event so a refused subscribe reports the first
// failing check: inactive, then no slots, then fallback.
func (r *EventRepository) rejection(ctx context.Context, eventID bson.ObjectID, fallback entity.SubscribeResult) (entity.SubscribeResult, error) {
	event, err := r.FindOneByID(ctx, eventID)
	if err != nil {
		return "", err
	}
	switch {
	case !event.IsActive:
		return entity.SubscribeInactiveEvent, nil
	case !event.HasAvailableSlots():
		return entity.SubscribeNoSlots, nil
	}
	return fallback, nil
}

func (r *EventRepository) Unsubscribe(ctx context.Context, eventID, userID bson.ObjectID) error {
	res, err := r.subscriptions().DeleteOne(ctx, bson.M{"eventId": eventID, "userId": userID})
	if err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotSubscribed
	}

	return r.releaseSlot(ctx, eventID)
}

// releaseSlot increments availableSlots, never past totalSlots.
func (r *EventRepository) releaseSlot(ctx context.Context, eventID bson.ObjectID) error {
	_, err := r.events().UpdateOne(ctx,
		bson.M{
			"_id":   eventID,
			"$expr": bson.M{"$lt": bson.A{"$availableSlots", "$totalSlots"}},
		},
		bson.M{
			"$inc": bson.M{"availableSlots": 1},
			"$set": bson.M{"updatedAt": time.Now().UTC()},
		},
	)
	return err
}

type slotCount struct {
	ID             bson.ObjectID `bson:"_id"`
	TotalSlots     int           `bson:"totalSlots"`
	AvailableSlots int           `bson:"availableSlots"`
	Subscribed     int           `bson:"subscribed"`
}

// ReconcileSlots recomputes availableSlots from the subscription count of
// every event. Each fix is conditional on the counter it read, so an event
// that changed meanwhile is left for the next run.
func (r *EventRepository) ReconcileSlots(ctx context.Context) (int, error) {
	pipeline := bson.A{
		bson.M{
			"$lookup": bson.M{
				"from":         SubscriptionsCollection,
				"localField":   "_id",
				"foreignField": "eventId",
				"as":           "subscriptions",
			},
		},
		bson.M{
			"$project": bson.M{
				"totalSlots":     1,
				"availableSlots": 1,
				"subscribed":     bson.M{"$size": "$subscriptions"},
			},
		},
	}

	cur, err := r.events().Aggregate(ctx, pipeline)
	if err != nil {
		return 0, err
	}

	var counts []slotCount
	if err := cur.All(ctx, &counts); err != nil {
		return 0, err
	}

	fixed := 0
	for _, c := range counts {
		want := max(c.TotalSlots-c.Subscribed, 0)
		if want == c.AvailableSlots {
			continue
		}

		res, err := r.events().UpdateOne(ctx,
			bson.M{"_id": c.ID, "availableSlots": c.AvailableSlots},
			bson.M{"$set": bson.M{"availableSlots": want, "updatedAt": time.Now().UTC()}},
		)
		if err != nil {
			return fixed, err
		}
		fixed += int(res.ModifiedCount)
	}

	return fixed, nil
}

func (r *EventRepository) find(ctx context.Context, m bson.M, opts ...bson.M) ([]*entity.Event, error) {
	pipeline := bson.A{
		bson.M{
			"$match": m,
		},
	}
	for _, o := range opts {
		pipeline = append(pipeline, o)
	}

	cur, err := r.events().Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}

	var events []*entity.Event
	err = cur.All(ctx, &events)
	if err != nil {
		return nil, err
	}

	if len(events) == 0 {
		return nil, ErrNotFound
	}

	return events, nil
}

func (r *EventRepository) events() *mongo.Collection {
	return r.mongoClient.Database(r.dbName).Collection(EventsCollection)
}

func (r *EventRepository) subscriptions() *mongo.Collection {
	return r.mongoClient.Database(r.dbName).Collection(SubscriptionsCollection)
}
