package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joeyave/event-registration/entity"
	"github.com/joeyave/event-registration/helpers"
	"github.com/joeyave/event-registration/policy"
	"github.com/joeyave/event-registration/repository"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
)

type CreateEventInput struct {
	Title       string    `json:"title" validate:"required,max=255"`
	Description string    `json:"description" validate:"required"`
	StartAt     time.Time `json:"start_at" validate:"required,gt"`
	EndAt       time.Time `json:"end_at" validate:"required,gtfield=StartAt"`
	TotalSlots  int       `json:"total_slots" validate:"required,min=1"`
}

// UpdateEventInput carries only the fields being changed.
type UpdateEventInput struct {
	Title       *string    `json:"title" validate:"omitnil,min=1,max=255"`
	Description *string    `json:"description" validate:"omitnil,min=1"`
	StartAt     *time.Time `json:"start_at" validate:"omitnil,gt"`
	EndAt       *time.Time `json:"end_at"`
	TotalSlots  *int       `json:"total_slots" validate:"omitnil,min=1"`
}

func (in UpdateEventInput) patch() entity.EventPatch {
	return entity.EventPatch{
		Title:       in.Title,
		Description: in.Description,
		StartAt:     in.StartAt,
		EndAt:       in.EndAt,
		TotalSlots:  in.TotalSlots,
	}
}

// ListEventsQuery is the query string of the event listing.
type ListEventsQuery struct {
	Title       string `schema:"title"`
	OrganizerID string `schema:"organizer_id"`
	// Date is a calendar day, YYYY-MM-DD, in the service time zone.
	Date string `schema:"date"`
	// IncludeCancelled is honoured only for an organizer listing their own events.
	IncludeCancelled bool `schema:"include_cancelled"`
}

type EventService struct {
	eventRepository EventRepository
	notifier        Notifier
	validation      *validation
	loc             *time.Location
	now             func() time.Time
}

func NewEventService(eventRepository EventRepository, notifier Notifier, loc *time.Location) *EventService {
	if loc == nil {
		loc = time.UTC
	}
	return &EventService{
		eventRepository: eventRepository,
		notifier:        notifier,
		validation:      newValidation(),
		loc:             loc,
		now:             func() time.Time { return time.Now().UTC() },
	}
}

func (s *EventService) Create(ctx context.Context, actor *entity.User, in CreateEventInput) (*entity.Event, error) {
	if !policy.CanCreate(actor) {
		return nil, ErrForbidden
	}

	in.Title = strings.TrimSpace(in.Title)
	if err := s.validation.Struct(in); err != nil {
		return nil, err
	}

	now := s.now()
	return s.eventRepository.Create(ctx, &entity.Event{
		OrganizerID:    actor.ID,
		Title:          in.Title,
		Description:    in.Description,
		StartAt:        in.StartAt.UTC(),
		EndAt:          in.EndAt.UTC(),
		TotalSlots:     in.TotalSlots,
		AvailableSlots: in.TotalSlots,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
}

func (s *EventService) Get(ctx context.Context, actor *entity.User, ID bson.ObjectID) (*entity.Event, error) {
	event, err := s.findEvent(ctx, ID)
	if err != nil {
		return nil, err
	}

	if !policy.CanView(actor, event) {
		return nil, ErrForbidden
	}
	return event, nil
}

// List returns active events that have not ended yet, ordered by start time.
func (s *EventService) List(ctx context.Context, actor *entity.User, q ListEventsQuery) ([]*entity.Event, error) {
	if !policy.CanViewAny(actor) {
		return nil, ErrUnauthorized
	}

	filter := entity.EventFilter{
		Title: strings.TrimSpace(q.Title),
		Now:   s.now(),
	}

	if q.OrganizerID != "" {
		organizerID, err := bson.ObjectIDFromHex(q.OrganizerID)
		if err != nil {
			return nil, newValidationError("organizer_id", "organizer_id must be a valid id")
		}
		filter.OrganizerID = &organizerID

		if q.IncludeCancelled && actor.IsOrganizer() && organizerID == actor.ID {
			filter.IncludeCancelled = true
			filter.Now = time.Time{}
		}
	}

	if q.Date != "" {
		from, to, err := helpers.GetDayWindowInLocUTC(q.Date, s.loc)
		if err != nil {
			return nil, newValidationError("date", "date must be a valid date in YYYY-MM-DD format")
		}
		filter.DayFromUTC = &from
		filter.DayToUTC = &to
	}

	return s.eventRepository.Find(ctx, filter)
}

func (s *EventService) Update(ctx context.Context, actor *entity.User, ID bson.ObjectID, in UpdateEventInput) (*entity.Event, error) {
	event, err := s.findEvent(ctx, ID)
	if err != nil {
		return nil, err
	}

	if !policy.CanUpdate(actor, event) {
		return nil, ErrForbidden
	}

	if err := s.validation.Struct(in); err != nil {
		return nil, err
	}

	patch := in.patch()
	if patch.Empty() {
		return event, nil
	}

	merged := patch.Apply(*event)
	if !merged.EndAt.After(merged.StartAt) {
		return nil, newValidationError("end_at", "end_at must be greater than start_at")
	}
	if merged.AvailableSlots < 0 {
		return nil, newValidationError("total_slots",
			fmt.Sprintf("total_slots must be at least the current number of participants (%d)", event.Participants()))
	}

	updated, err := s.eventRepository.Update(ctx, event.ID, actor.ID, patch)
	if errors.Is(err, repository.ErrConflict) {
		return nil, s.explainUpdateConflict(ctx, event.ID, patch)
	}
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// explainUpdateConflict works out why a conditional update matched nothing
// after the event changed between the read and the write.
func (s *EventService) explainUpdateConflict(ctx context.Context, ID bson.ObjectID, patch entity.EventPatch) error {
	current, err := s.findEvent(ctx, ID)
	if err != nil {
		return err
	}
	if !current.IsActive {
		return ErrForbidden
	}
	if patch.TotalSlots != nil && *patch.TotalSlots < current.Participants() {
		return newValidationError("total_slots",
			fmt.Sprintf("total_slots must be at least the current number of participants (%d)", current.Participants()))
	}
	return fmt.Errorf("update event %s: %w", ID.Hex(), repository.ErrConflict)
}

// Cancel deactivates the event and hands it to the notifier. Only the call
// that actually flips the flag notifies, so participants hear about a
// cancellation once.
func (s *EventService) Cancel(ctx context.Context, actor *entity.User, ID bson.ObjectID) error {
	event, err := s.findEvent(ctx, ID)
	if err != nil {
		return err
	}

	if !policy.CanCancel(actor, event) {
		return ErrForbidden
	}
	if !event.IsActive {
		return ErrAlreadyCancelled
	}

	cancelled, err := s.eventRepository.Cancel(ctx, event.ID)
	if err != nil {
		return err
	}
	if !cancelled {
		return ErrAlreadyCancelled
	}

	event.IsActive = false
	event.UpdatedAt = s.now()

	if s.notifier != nil {
		s.notifier.NotifyCancelled(context.WithoutCancel(ctx), event)
	}

	log.Info().Str("eventID", event.ID.Hex()).Str("organizerID", actor.ID.Hex()).Msg("event cancelled")
	return nil
}

// Subscribe returns the outcome as data. Only the role check and a missing
// event are errors.
func (s *EventService) Subscribe(ctx context.Context, actor *entity.User, ID bson.ObjectID) (entity.SubscribeResult, error) {
	event, err := s.findEvent(ctx, ID)
	if err != nil {
		return "", err
	}

	if !actor.IsParticipant() {
		return "", ErrForbidden
	}

	subscribed, err := s.eventRepository.IsSubscribed(ctx, event.ID, actor.ID)
	if err != nil {
		return "", err
	}

	reason := policy.CanSubscribe(actor, event, subscribed)
	if reason == policy.ReasonForbidden {
		return "", ErrForbidden
	}
	if reason != policy.Allowed {
		return policy.SubscribeResult(reason), nil
	}

	// The snapshot above may be stale; the repository decides atomically.
	res, err := s.eventRepository.Subscribe(ctx, event.ID, actor.ID)
	if errors.Is(err, repository.ErrNotFound) {
		return "", ErrEventNotFound
	}
	return res, err
}

func (s *EventService) Unsubscribe(ctx context.Context, actor *entity.User, ID bson.ObjectID) error {
	event, err := s.findEvent(ctx, ID)
	if err != nil {
		return err
	}

	if !actor.IsParticipant() {
		return ErrForbidden
	}

	subscribed, err := s.eventRepository.IsSubscribed(ctx, event.ID, actor.ID)
	if err != nil {
		return err
	}

	switch policy.CanUnsubscribe(actor, event, subscribed) {
	case policy.ReasonForbidden:
		return ErrForbidden
	case policy.ReasonInactiveEvent:
		return ErrEventInactive
	case policy.ReasonNotSubscribed:
		return ErrNotSubscribed
	}

	err = s.eventRepository.Unsubscribe(ctx, event.ID, actor.ID)
	if errors.Is(err, repository.ErrNotSubscribed) {
		return ErrNotSubscribed
	}
	return err
}

func (s *EventService) MyEvents(ctx context.Context, actor *entity.User) ([]*entity.Event, error) {
	if !policy.CanViewMyEvents(actor) {
		return nil, ErrForbidden
	}
	return s.eventRepository.FindManyBySubscriber(ctx, actor.ID)
}

// ReconcileSlots recomputes every event's available slots from its
// subscriptions and returns how many events were corrected.
func (s *EventService) ReconcileSlots(ctx context.Context) (int, error) {
	fixed, err := s.eventRepository.ReconcileSlots(ctx)
	if err != nil {
		return fixed, err
	}
	if fixed > 0 {
		log.Warn().Int("events", fixed).Msg("available slots drifted and were reconciled")
	}
	return fixed, nil
}

func (s *EventService) findEvent(ctx context.Context, ID bson.ObjectID) (*entity.Event, error) {
	event, err := s.eventRepository.FindOneByID(ctx, ID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, err
	}
	return event, nil
}
