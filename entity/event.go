package entity

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

type Event struct {
	ID          bson.ObjectID `bson:"_id,omitempty" json:"id"`
	OrganizerID bson.ObjectID `bson:"organizerId" json:"organizer_id"`
	Title       string        `bson:"title" json:"title"`
	Description string        `bson:"description" json:"description"`
	StartAt     time.Time     `bson:"startAt" json:"start_at"`
	EndAt       time.Time     `bson:"endAt" json:"end_at"`

	TotalSlots int `bson:"totalSlots" json:"total_slots"`
	// AvailableSlots is TotalSlots minus the number of subscriptions.
	AvailableSlots int `bson:"availableSlots" json:"available_slots"`

	// IsActive goes false on cancellation and never back.
	IsActive bool `bson:"isActive" json:"is_active"`

	CreatedAt time.Time `bson:"createdAt" json:"created_at"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updated_at"`
}

func (e *Event) Participants() int {
	return e.TotalSlots - e.AvailableSlots
}

func (e *Event) OwnedBy(userID bson.ObjectID) bool {
	return e.OrganizerID == userID
}

func (e *Event) HasAvailableSlots() bool {
	return e.AvailableSlots > 0
}

// EventPatch holds the fields an organizer may change. Nil means unchanged.
type EventPatch struct {
	Title       *string
	Description *string
	StartAt     *time.Time
	EndAt       *time.Time
	TotalSlots  *int
}

func (p EventPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.StartAt == nil && p.EndAt == nil && p.TotalSlots == nil
}

// Apply returns a copy of e with the patch applied. Slot counters shift by the
// change in TotalSlots.
func (p EventPatch) Apply(e Event) Event {
	if p.Title != nil {
		e.Title = *p.Title
	}
	if p.Description != nil {
		e.Description = *p.Description
	}
	if p.StartAt != nil {
		e.StartAt = *p.StartAt
	}
	if p.EndAt != nil {
		e.EndAt = *p.EndAt
	}
	if p.TotalSlots != nil {
		e.AvailableSlots += *p.TotalSlots - e.TotalSlots
		e.TotalSlots = *p.TotalSlots
	}
	return e
}

// EventFilter selects events for listing. Zero values mean "no constraint",
// except that cancelled events and events that already ended are excluded
// unless IncludeCancelled / Now say otherwise.
type EventFilter struct {
	Title       string
	OrganizerID *bson.ObjectID
	// DayFromUTC and DayToUTC bound StartAt to a calendar day, [from, to).
	DayFromUTC *time.Time
	DayToUTC   *time.Time
	// Now excludes events with EndAt before it.
	Now              time.Time
	IncludeCancelled bool
}
