package repository

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrDuplicate     = errors.New("duplicate")
	ErrNotSubscribed = errors.New("not subscribed")
	// ErrConflict means a conditional write matched nothing because the
	// stored state no longer satisfies its precondition.
	ErrConflict = errors.New("conflict")
)

const (
	UsersCollection         = "users"
	EventsCollection        = "events"
	SubscriptionsCollection = "subscriptions"
	SessionsCollection      = "sessions"
)
