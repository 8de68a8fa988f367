package sqlrepo

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/joeyave/event-registration/entity"
	"github.com/joeyave/event-registration/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
)

func TestEventRepository_SubscribeTwoSlots(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := NewEventRepository(db)

	organizer := createUser(t, db, "org", entity.RoleOrganizer)
	a := createUser(t, db, "a", entity.RoleParticipant)
	b := createUser(t, db, "b", entity.RoleParticipant)
	c := createUser(t, db, "c", entity.RoleParticipant)
	event := createEvent(t, db, organizer, "Go meetup", time.Now().Add(24*time.Hour), 2)

	res, err := repo.Subscribe(ctx, event.ID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.SubscribeSuccess, res)

	res, err = repo.Subscribe(ctx, event.ID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.SubscribeAlreadySubscribed, res)

	res, err = repo.Subscribe(ctx, event.ID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.SubscribeSuccess, res)

	res, err = repo.Subscribe(ctx, event.ID, c.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.SubscribeNoSlots, res)

	stored, err := repo.FindOneByID(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.AvailableSlots)

	require.NoError(t, repo.Unsubscribe(ctx, event.ID, a.ID))
	assert.ErrorIs(t, repo.Unsubscribe(ctx, event.ID, a.ID), repository.ErrNotSubscribed)

	res, err = repo.Subscribe(ctx, event.ID, c.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.SubscribeSuccess, res)

	participants, err := repo.FindParticipants(ctx, event.ID)
	require.NoError(t, err)
	require.Len(t, participants, 2)
	assert.Equal(t, "b", participants[0].Name)
	assert.Equal(t, "c", participants[1].Name)
}

func TestEventRepository_SubscribeInactiveAndMissing(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := NewEventRepository(db)

	organizer := createUser(t, db, "org", entity.RoleOrganizer)
	p := createUser(t, db, "p", entity.RoleParticipant)
	event := createEvent(t, db, organizer, "Cancelled", time.Now().Add(time.Hour), 3)

	cancelled, err := repo.Cancel(ctx, event.ID)
	require.NoError(t, err)
	assert.True(t, cancelled)

	cancelled, err = repo.Cancel(ctx, event.ID)
	require.NoError(t, err)
	assert.False(t, cancelled)

	res, err := repo.Subscribe(ctx, event.ID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.SubscribeInactiveEvent, res)

	stored, err := repo.FindOneByID(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, stored.AvailableSlots)
	assert.False(t, stored.IsActive)

	_, err = repo.Subscribe(ctx, bson.NewObjectID(), p.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestEventRepository_ConcurrentSubscribe(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := NewEventRepository(db)

	const (
		participants = 40
		slots        = 7
	)

	organizer := createUser(t, db, "org", entity.RoleOrganizer)
	event := createEvent(t, db, organizer, "Popular", time.Now().Add(time.Hour), slots)

	users := make([]*entity.User, participants)
	for i := range users {
		users[i] = createUser(t, db, fmt.Sprintf("user%02d", i), entity.RoleParticipant)
	}

	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		noSlots   atomic.Int32
		failures  atomic.Int32
	)
	for _, u := range users {
		wg.Add(1)
		go func(userID bson.ObjectID) {
			defer wg.Done()
			res, err := repo.Subscribe(ctx, event.ID, userID)
			switch {
			case err != nil:
				failures.Add(1)
			case res == entity.SubscribeSuccess:
				successes.Add(1)
			case res == entity.SubscribeNoSlots:
				noSlots.Add(1)
			}
		}(u.ID)
	}
	wg.Wait()

	assert.EqualValues(t, 0, failures.Load())
	assert.EqualValues(t, slots, successes.Load())
	assert.EqualValues(t, participants-slots, noSlots.Load())

	stored, err := repo.FindOneByID(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.AvailableSlots)

	list, err := repo.FindParticipants(ctx, event.ID)
	require.NoError(t, err)
	assert.Len(t, list, slots)
}

func TestEventRepository_Update(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := NewEventRepository(db)

	organizer := createUser(t, db, "org", entity.RoleOrganizer)
	other := createUser(t, db, "other", entity.RoleOrganizer)
	p1 := createUser(t, db, "p1", entity.RoleParticipant)
	p2 := createUser(t, db, "p2", entity.RoleParticipant)
	event := createEvent(t, db, organizer, "Workshop", time.Now().Add(time.Hour), 5)

	for _, p := range []*entity.User{p1, p2} {
		res, err := repo.Subscribe(ctx, event.ID, p.ID)
		require.NoError(t, err)
		require.Equal(t, entity.SubscribeSuccess, res)
	}

	title := "Advanced workshop"
	total := 3
	updated, err := repo.Update(ctx, event.ID, organizer.ID, entity.EventPatch{Title: &title, TotalSlots: &total})
	require.NoError(t, err)
	assert.Equal(t, title, updated.Title)
	assert.Equal(t, 3, updated.TotalSlots)
	assert.Equal(t, 1, updated.AvailableSlots)

	tooSmall := 1
	_, err = repo.Update(ctx, event.ID, organizer.ID, entity.EventPatch{TotalSlots: &tooSmall})
	assert.ErrorIs(t, err, repository.ErrConflict)

	_, err = repo.Update(ctx, event.ID, other.ID, entity.EventPatch{Title: &title})
	assert.ErrorIs(t, err, repository.ErrConflict)

	found, err := repo.Find(ctx, entity.EventFilter{Title: "ADVANCED"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, event.ID, found[0].ID)

	_, err = repo.Cancel(ctx, event.ID)
	require.NoError(t, err)
	_, err = repo.Update(ctx, event.ID, organizer.ID, entity.EventPatch{Title: &title})
	assert.ErrorIs(t, err, repository.ErrConflict)
}

func TestEventRepository_Find(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := NewEventRepository(db)

	org1 := createUser(t, db, "org1", entity.RoleOrganizer)
	org2 := createUser(t, db, "org2", entity.RoleOrganizer)

	now := time.Now().UTC()
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 3)

	later := createEvent(t, db, org1, "Rust night", day.Add(20*time.Hour), 10)
	earlier := createEvent(t, db, org2, "Go night", day.Add(9*time.Hour), 10)
	nextDay := createEvent(t, db, org1, "Go breakfast", day.Add(30*time.Hour), 10)
	cancelled := createEvent(t, db, org1, "Go cancelled", day.Add(10*time.Hour), 10)
	_, err := repo.Cancel(ctx, cancelled.ID)
	require.NoError(t, err)
	past := createEvent(t, db, org1, "Go past", now.Add(-48*time.Hour), 10)

	all, err := repo.Find(ctx, entity.EventFilter{Now: now})
	require.NoError(t, err)
	assert.Equal(t, []bson.ObjectID{earlier.ID, later.ID, nextDay.ID}, ids(all))

	byTitle, err := repo.Find(ctx, entity.EventFilter{Now: now, Title: "go"})
	require.NoError(t, err)
	assert.Equal(t, []bson.ObjectID{earlier.ID, nextDay.ID}, ids(byTitle))

	byOrganizer, err := repo.Find(ctx, entity.EventFilter{Now: now, OrganizerID: &org1.ID})
	require.NoError(t, err)
	assert.Equal(t, []bson.ObjectID{later.ID, nextDay.ID}, ids(byOrganizer))

	to := day.AddDate(0, 0, 1)
	byDay, err := repo.Find(ctx, entity.EventFilter{Now: now, DayFromUTC: &day, DayToUTC: &to})
	require.NoError(t, err)
	assert.Equal(t, []bson.ObjectID{earlier.ID, later.ID}, ids(byDay))

	withCancelled, err := repo.Find(ctx, entity.EventFilter{IncludeCancelled: true, OrganizerID: &org1.ID})
	require.NoError(t, err)
	assert.Equal(t, []bson.ObjectID{past.ID, cancelled.ID, later.ID, nextDay.ID}, ids(withCancelled))

	none, err := repo.Find(ctx, entity.EventFilter{Now: now, Title: "%"})
	require.NoError(t, err)
	assert.Empty(t, none)

	count, err := repo.CountByOrganizer(ctx, org1.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 4, count)
}

func TestEventRepository_FindManyBySubscriber(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := NewEventRepository(db)

	organizer := createUser(t, db, "org", entity.RoleOrganizer)
	p := createUser(t, db, "p", entity.RoleParticipant)
	second := createEvent(t, db, organizer, "Second", time.Now().Add(48*time.Hour), 2)
	first := createEvent(t, db, organizer, "First", time.Now().Add(24*time.Hour), 2)
	createEvent(t, db, organizer, "Not mine", time.Now().Add(12*time.Hour), 2)

	for _, e := range []*entity.Event{second, first} {
		_, err := repo.Subscribe(ctx, e.ID, p.ID)
		require.NoError(t, err)
	}

	events, err := repo.FindManyBySubscriber(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, []bson.ObjectID{first.ID, second.ID}, ids(events))

	subscribed, err := repo.IsSubscribed(ctx, first.ID, p.ID)
	require.NoError(t, err)
	assert.True(t, subscribed)
}

func TestEventRepository_ReconcileSlots(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := NewEventRepository(db)

	organizer := createUser(t, db, "org", entity.RoleOrganizer)
	p := createUser(t, db, "p", entity.RoleParticipant)
	drifted := createEvent(t, db, organizer, "Drifted", time.Now().Add(time.Hour), 4)
	healthy := createEvent(t, db, organizer, "Healthy", time.Now().Add(time.Hour), 4)

	_, err := repo.Subscribe(ctx, drifted.ID, p.ID)
	require.NoError(t, err)
	_, err = repo.Subscribe(ctx, healthy.ID, p.ID)
	require.NoError(t, err)

	_, err = db.ExecContext(ctx, `UPDATE events SET available_slots = 1 WHERE id = ?`, drifted.ID.Hex())
	require.NoError(t, err)

	fixed, err := repo.ReconcileSlots(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, fixed)

	stored, err := repo.FindOneByID(ctx, drifted.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, stored.AvailableSlots)

	fixed, err = repo.ReconcileSlots(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, fixed)
}

func ids(events []*entity.Event) []bson.ObjectID {
	out := make([]bson.ObjectID, 0, len(events))
	for _, e := range events {
		out = append(out, e.ID)
	}
	return out
}

func TestEventRepository_RepeatedSubscribeKeepsSlotForOthers(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := NewEventRepository(db)

	organizer := createUser(t, db, "org", entity.RoleOrganizer)
	a := createUser(t, db, "a", entity.RoleParticipant)
	c := createUser(t, db, "c", entity.RoleParticipant)
	event := createEvent(t, db, organizer, "Two seats", time.Now().UTC().Add(time.Hour), 2)

	const repeats = 10

	var (
		wg         sync.WaitGroup
		aSuccesses atomic.Int32
		failures   atomic.Int32
		cResult    entity.SubscribeResult
	)
	for i := 0; i < repeats; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := repo.Subscribe(ctx, event.ID, a.ID)
			if err != nil {
				failures.Add(1)
				return
			}
			if res == entity.SubscribeSuccess {
				aSuccesses.Add(1)
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		res, err := repo.Subscribe(ctx, event.ID, c.ID)
		if err != nil {
			failures.Add(1)
			return
		}
		cResult = res
	}()
	wg.Wait()

	assert.Zero(t, failures.Load())
	assert.EqualValues(t, 1, aSuccesses.Load())
	assert.Equal(t, entity.SubscribeSuccess, cResult)

	stored, err := repo.FindOneByID(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.AvailableSlots)
}
