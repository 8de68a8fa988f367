package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/joeyave/event-registration/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
)

func TestEventService_TwoSlotScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	organizer := f.user(t, "org", entity.RoleOrganizer)
	a := f.user(t, "a", entity.RoleParticipant)
	b := f.user(t, "b", entity.RoleParticipant)
	c := f.user(t, "c", entity.RoleParticipant)
	event := f.event(t, organizer, "Two seats", 2)

	res, err := f.eventService.Subscribe(ctx, a, event.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.SubscribeSuccess, res)

	res, err = f.eventService.Subscribe(ctx, b, event.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.SubscribeSuccess, res)

	res, err = f.eventService.Subscribe(ctx, c, event.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.SubscribeNoSlots, res)

	require.NoError(t, f.eventService.Unsubscribe(ctx, a, event.ID))

	res, err = f.eventService.Subscribe(ctx, c, event.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.SubscribeSuccess, res)

	stored, err := f.eventService.Get(ctx, b, event.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.AvailableSlots)

	participants, err := f.events.FindParticipants(ctx, event.ID)
	require.NoError(t, err)
	require.Len(t, participants, 2)
	assert.Equal(t, b.ID, participants[0].ID)
	assert.Equal(t, c.ID, participants[1].ID)
}

func TestEventService_SubscribeOutcomes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	organizer := f.user(t, "org", entity.RoleOrganizer)
	p := f.user(t, "p", entity.RoleParticipant)
	q := f.user(t, "q", entity.RoleParticipant)
	event := f.event(t, organizer, "One seat", 1)

	_, err := f.eventService.Subscribe(ctx, organizer, event.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.eventService.Subscribe(ctx, p, bson.NewObjectID())
	assert.ErrorIs(t, err, ErrNotFound)

	res, err := f.eventService.Subscribe(ctx, p, event.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.SubscribeSuccess, res)

	// Full beats already subscribed.
	res, err = f.eventService.Subscribe(ctx, p, event.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.SubscribeNoSlots, res)

	res, err = f.eventService.Subscribe(ctx, q, event.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.SubscribeNoSlots, res)

	stored, err := f.events.FindOneByID(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.AvailableSlots)

	roomy := f.event(t, organizer, "Roomy", 5)
	res, err = f.eventService.Subscribe(ctx, p, roomy.ID)
	require.NoError(t, err)
	require.Equal(t, entity.SubscribeSuccess, res)
	res, err = f.eventService.Subscribe(ctx, p, roomy.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.SubscribeAlreadySubscribed, res)

	require.NoError(t, f.eventService.Cancel(ctx, organizer, roomy.ID))
	res, err = f.eventService.Subscribe(ctx, q, roomy.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.SubscribeInactiveEvent, res)

	stored, err = f.events.FindOneByID(ctx, roomy.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, stored.AvailableSlots)
}

func TestEventService_ConcurrentSubscribe(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	const (
		participants = 30
		slots        = 4
	)

	organizer := f.user(t, "org", entity.RoleOrganizer)
	event := f.event(t, organizer, "Hot ticket", slots)

	users := make([]*entity.User, participants)
	for i := range users {
		users[i] = f.user(t, fmt.Sprintf("p%02d", i), entity.RoleParticipant)
	}

	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		noSlots   atomic.Int32
		other     atomic.Int32
	)
	for _, u := range users {
		wg.Add(1)
		go func(u *entity.User) {
			defer wg.Done()
			res, err := f.eventService.Subscribe(ctx, u, event.ID)
			switch {
			case err != nil:
				other.Add(1)
			case res == entity.SubscribeSuccess:
				successes.Add(1)
			case res == entity.SubscribeNoSlots:
				noSlots.Add(1)
			default:
				other.Add(1)
			}
		}(u)
	}
	wg.Wait()

	assert.EqualValues(t, slots, successes.Load())
	assert.EqualValues(t, participants-slots, noSlots.Load())
	assert.EqualValues(t, 0, other.Load())

	stored, err := f.events.FindOneByID(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.AvailableSlots)
}

func TestEventService_Unsubscribe(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	organizer := f.user(t, "org", entity.RoleOrganizer)
	p := f.user(t, "p", entity.RoleParticipant)
	event := f.event(t, organizer, "Leaving", 3)

	assert.ErrorIs(t, f.eventService.Unsubscribe(ctx, p, event.ID), ErrNotSubscribed)
	assert.ErrorIs(t, f.eventService.Unsubscribe(ctx, organizer, event.ID), ErrForbidden)

	_, err := f.eventService.Subscribe(ctx, p, event.ID)
	require.NoError(t, err)
	require.NoError(t, f.eventService.Unsubscribe(ctx, p, event.ID))

	stored, err := f.events.FindOneByID(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, stored.AvailableSlots)

	_, err = f.eventService.Subscribe(ctx, p, event.ID)
	require.NoError(t, err)
	require.NoError(t, f.eventService.Cancel(ctx, organizer, event.ID))
	assert.ErrorIs(t, f.eventService.Unsubscribe(ctx, p, event.ID), ErrEventInactive)
}

func TestEventService_CancelNotifiesOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	organizer := f.user(t, "org", entity.RoleOrganizer)
	stranger := f.user(t, "stranger", entity.RoleOrganizer)
	p := f.user(t, "p", entity.RoleParticipant)
	event := f.event(t, organizer, "Doomed", 3)

	assert.ErrorIs(t, f.eventService.Cancel(ctx, stranger, event.ID), ErrForbidden)
	assert.ErrorIs(t, f.eventService.Cancel(ctx, p, event.ID), ErrForbidden)
	assert.ErrorIs(t, f.eventService.Cancel(ctx, organizer, bson.NewObjectID()), ErrNotFound)

	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
		already   atomic.Int32
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			switch err := f.eventService.Cancel(ctx, organizer, event.ID); err {
			case nil:
				succeeded.Add(1)
			case ErrAlreadyCancelled:
				already.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, succeeded.Load())
	assert.EqualValues(t, 4, already.Load())
	require.Equal(t, 1, f.notifier.count())
	assert.Equal(t, event.ID, f.notifier.events[0].ID)
	assert.False(t, f.notifier.events[0].IsActive)

	assert.ErrorIs(t, f.eventService.Cancel(ctx, organizer, event.ID), ErrAlreadyCancelled)
	assert.Equal(t, 1, f.notifier.count())
}

func TestEventService_CreateValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	organizer := f.user(t, "org", entity.RoleOrganizer)
	p := f.user(t, "p", entity.RoleParticipant)

	_, err := f.eventService.Create(ctx, p, CreateEventInput{})
	assert.ErrorIs(t, err, ErrForbidden)

	past := time.Now().Add(-time.Hour)
	_, err = f.eventService.Create(ctx, organizer, CreateEventInput{
		StartAt:    past,
		EndAt:      past.Add(-time.Minute),
		TotalSlots: 0,
	})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "title")
	assert.Contains(t, verr.Fields, "description")
	assert.Contains(t, verr.Fields, "start_at")
	assert.Contains(t, verr.Fields, "end_at")
	assert.Contains(t, verr.Fields, "total_slots")
	assert.Equal(t, "title is a required field", verr.Fields["title"])

	event := f.event(t, organizer, "  Trimmed  ", 10)
	assert.Equal(t, "Trimmed", event.Title)
	assert.Equal(t, 10, event.AvailableSlots)
	assert.True(t, event.IsActive)
	assert.Equal(t, organizer.ID, event.OrganizerID)
}

func TestEventService_Update(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	organizer := f.user(t, "org", entity.RoleOrganizer)
	other := f.user(t, "other", entity.RoleOrganizer)
	p1 := f.user(t, "p1", entity.RoleParticipant)
	p2 := f.user(t, "p2", entity.RoleParticipant)
	event := f.event(t, organizer, "Meetup", 5)

	for _, p := range []*entity.User{p1, p2} {
		_, err := f.eventService.Subscribe(ctx, p, event.ID)
		require.NoError(t, err)
	}

	title := "Renamed"
	_, err := f.eventService.Update(ctx, other, event.ID, UpdateEventInput{Title: &title})
	assert.ErrorIs(t, err, ErrForbidden)

	total := 1
	_, err = f.eventService.Update(ctx, organizer, event.ID, UpdateEventInput{TotalSlots: &total})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "total_slots")

	end := event.StartAt.Add(-time.Hour)
	_, err = f.eventService.Update(ctx, organizer, event.ID, UpdateEventInput{EndAt: &end})
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "end_at")

	empty := ""
	_, err = f.eventService.Update(ctx, organizer, event.ID, UpdateEventInput{Title: &empty})
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "title")

	total = 8
	updated, err := f.eventService.Update(ctx, organizer, event.ID, UpdateEventInput{Title: &title, TotalSlots: &total})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Title)
	assert.Equal(t, 8, updated.TotalSlots)
	assert.Equal(t, 6, updated.AvailableSlots)
	assert.Equal(t, "An event", updated.Description)

	require.NoError(t, f.eventService.Cancel(ctx, organizer, event.ID))
	_, err = f.eventService.Update(ctx, organizer, event.ID, UpdateEventInput{Title: &title})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestEventService_GetAndMyEvents(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	organizer := f.user(t, "org", entity.RoleOrganizer)
	other := f.user(t, "other", entity.RoleOrganizer)
	p := f.user(t, "p", entity.RoleParticipant)
	event := f.event(t, organizer, "Visible", 5)
	f.event(t, organizer, "Skipped", 5)

	_, err := f.eventService.Get(ctx, organizer, event.ID)
	assert.NoError(t, err)
	_, err = f.eventService.Get(ctx, p, event.ID)
	assert.NoError(t, err)
	_, err = f.eventService.Get(ctx, other, event.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.eventService.Get(ctx, p, bson.NewObjectID())
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.eventService.MyEvents(ctx, organizer)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.eventService.Subscribe(ctx, p, event.ID)
	require.NoError(t, err)

	mine, err := f.eventService.MyEvents(ctx, p)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, event.ID, mine[0].ID)
}

func TestEventService_List(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	loc := time.FixedZone("UTC+3", 3*60*60)
	f.eventService = NewEventService(f.events, f.notifier, loc)

	org := f.user(t, "org", entity.RoleOrganizer)
	p := f.user(t, "p", entity.RoleParticipant)

	day := time.Now().In(loc).AddDate(0, 0, 5)
	midnight := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, loc)

	create := func(title string, start time.Time) *entity.Event {
		event, err := f.eventService.Create(ctx, org, CreateEventInput{
			Title:       title,
			Description: "d",
			StartAt:     start,
			EndAt:       start.Add(time.Hour),
			TotalSlots:  3,
		})
		require.NoError(t, err)
		return event
	}

	// 00:30 local is still the previous day in UTC.
	early := create("Early bird", midnight.Add(30*time.Minute))
	late := create("Late show", midnight.Add(23*time.Hour))
	create("Next day", midnight.Add(25*time.Hour))
	cancelled := create("Cancelled show", midnight.Add(12*time.Hour))
	require.NoError(t, f.eventService.Cancel(ctx, org, cancelled.ID))

	onDay, err := f.eventService.List(ctx, p, ListEventsQuery{Date: midnight.Format("2006-01-02")})
	require.NoError(t, err)
	require.Len(t, onDay, 2)
	assert.Equal(t, early.ID, onDay[0].ID)
	assert.Equal(t, late.ID, onDay[1].ID)

	shows, err := f.eventService.List(ctx, p, ListEventsQuery{Title: "SHOW"})
	require.NoError(t, err)
	require.Len(t, shows, 1)
	assert.Equal(t, late.ID, shows[0].ID)

	all, err := f.eventService.List(ctx, p, ListEventsQuery{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	withCancelled, err := f.eventService.List(ctx, org, ListEventsQuery{OrganizerID: org.ID.Hex(), IncludeCancelled: true})
	require.NoError(t, err)
	assert.Len(t, withCancelled, 4)

	ignored, err := f.eventService.List(ctx, p, ListEventsQuery{OrganizerID: org.ID.Hex(), IncludeCancelled: true})
	require.NoError(t, err)
	assert.Len(t, ignored, 3)

	var verr *ValidationError
	_, err = f.eventService.List(ctx, p, ListEventsQuery{Date: "tomorrow"})
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "date")

	_, err = f.eventService.List(ctx, p, ListEventsQuery{OrganizerID: "nope"})
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "organizer_id")

	_, err = f.eventService.List(ctx, nil, ListEventsQuery{})
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestEventService_ReconcileSlots(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	organizer := f.user(t, "org", entity.RoleOrganizer)
	event := f.event(t, organizer, "Drift", 3)

	_, err := f.db.ExecContext(ctx, `UPDATE events SET available_slots = 1 WHERE id = ?`, event.ID.Hex())
	require.NoError(t, err)

	fixed, err := f.eventService.ReconcileSlots(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, fixed)

	stored, err := f.events.FindOneByID(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, stored.AvailableSlots)
}
