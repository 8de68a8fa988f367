// Package policy holds the authorization rules for events. Every function is
// a pure predicate over the acting user and the current state of the event;
// none of them touch storage.
package policy

import "github.com/joeyave/event-registration/entity"

// Reason explains why an action is denied. The empty Reason means allowed.
type Reason string

const (
	Allowed                 Reason = ""
	ReasonForbidden         Reason = "forbidden"
	ReasonInactiveEvent     Reason = "inactive_event"
	ReasonNoSlots           Reason = "no_slots"
	ReasonAlreadySubscribed Reason = "already_subscribed"
	ReasonNotSubscribed     Reason = "not_subscribed"
)

func CanViewAny(actor *entity.User) bool {
	return actor != nil
}

// CanView lets participants see every event and organizers only their own.
func CanView(actor *entity.User, event *entity.Event) bool {
	return actor.IsParticipant() || (actor.IsOrganizer() && event.OwnedBy(actor.ID))
}

func CanCreate(actor *entity.User) bool {
	return actor.IsOrganizer()
}

func CanUpdate(actor *entity.User, event *entity.Event) bool {
	return actor.IsOrganizer() && event.OwnedBy(actor.ID) && event.IsActive
}

func CanDelete(actor *entity.User, event *entity.Event) bool {
	return CanUpdate(actor, event)
}

// CanCancel is CanDelete without the active check, so that cancelling an
// already cancelled event can be reported as such to its owner.
func CanCancel(actor *entity.User, event *entity.Event) bool {
	return actor.IsOrganizer() && event.OwnedBy(actor.ID)
}

// CanSubscribe checks, in order: role, active state, free slots and an
// existing subscription.
func CanSubscribe(actor *entity.User, event *entity.Event, subscribed bool) Reason {
	switch {
	case !actor.IsParticipant():
		return ReasonForbidden
	case !event.IsActive:
		return ReasonInactiveEvent
	case !event.HasAvailableSlots():
		return ReasonNoSlots
	case subscribed:
		return ReasonAlreadySubscribed
	}
	return Allowed
}

func CanUnsubscribe(actor *entity.User, event *entity.Event, subscribed bool) Reason {
	switch {
	case !actor.IsParticipant():
		return ReasonForbidden
	case !event.IsActive:
		return ReasonInactiveEvent
	case !subscribed:
		return ReasonNotSubscribed
	}
	return Allowed
}

func CanViewMyEvents(actor *entity.User) bool {
	return actor.IsParticipant()
}

// SubscribeResult converts a subscribe denial into the outcome reported to
// the caller. ReasonForbidden has no outcome and must be handled first.
func SubscribeResult(r Reason) entity.SubscribeResult {
	switch r {
	case ReasonInactiveEvent:
		return entity.SubscribeInactiveEvent
	case ReasonNoSlots:
		return entity.SubscribeNoSlots
	case ReasonAlreadySubscribed:
		return entity.SubscribeAlreadySubscribed
	}
	return entity.SubscribeSuccess
}
