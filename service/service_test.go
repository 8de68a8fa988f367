package service

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/joeyave/event-registration/entity"
	"github.com/joeyave/event-registration/repository/sqlrepo"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []*entity.Event
}

func (n *recordingNotifier) NotifyCancelled(_ context.Context, event *entity.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.events)
}

type fixture struct {
	db       *sqlrepo.DB
	users    *sqlrepo.UserRepository
	events   *sqlrepo.EventRepository
	notifier *recordingNotifier

	userService  *UserService
	eventService *EventService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "events.db")
	db, err := sqlrepo.Open(context.Background(), sqlrepo.DriverSQLite, fmt.Sprintf("file:%s?mode=rwc", dbPath))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	f := &fixture{
		db:       db,
		users:    sqlrepo.NewUserRepository(db),
		events:   sqlrepo.NewEventRepository(db),
		notifier: &recordingNotifier{},
	}
	f.userService = NewUserService(f.users, sqlrepo.NewSessionRepository(db), f.events, time.Hour)
	f.eventService = NewEventService(f.events, f.notifier, time.UTC)
	return f
}

// user stores a user directly, skipping password hashing.
func (f *fixture) user(t *testing.T, name string, role entity.Role) *entity.User {
	t.Helper()

	user, err := f.users.Create(context.Background(), &entity.User{
		Name:         name,
		Email:        name + "@example.com",
		PasswordHash: "-",
		Role:         role,
		CreatedAt:    time.Now().UTC(),
	})
	require.NoError(t, err)
	return user
}

func (f *fixture) event(t *testing.T, organizer *entity.User, title string, slots int) *entity.Event {
	t.Helper()

	start := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Minute)
	event, err := f.eventService.Create(context.Background(), organizer, CreateEventInput{
		Title:       title,
		Description: "An event",
		StartAt:     start,
		EndAt:       start.Add(2 * time.Hour),
		TotalSlots:  slots,
	})
	require.NoError(t, err)
	return event
}
