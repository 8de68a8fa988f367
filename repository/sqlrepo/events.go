package sqlrepo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joeyave/event-registration/entity"
	"github.com/joeyave/event-registration/repository"
	"go.mongodb.org/mongo-driver/v2/bson"
)

const eventColumns = `id, organizer_id, title, description, start_at, end_at,
	total_slots, available_slots, is_active, created_at, updated_at`

type EventRepository struct {
	db *DB
}

func NewEventRepository(db *DB) *EventRepository {
	return &EventRepository{db: db}
}

func (r *EventRepository) Create(ctx context.Context, event *entity.Event) (*entity.Event, error) {
	if event.ID.IsZero() {
		event.ID = bson.NewObjectID()
	}

	_, err := r.db.ExecContext(ctx, r.db.rebind(`
		INSERT INTO events (id, organizer_id, title, title_fold, description, start_at, end_at,
			total_slots, available_slots, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`),
		event.ID.Hex(), event.OrganizerID.Hex(), event.Title, fold(event.Title), event.Description,
		toMillis(event.StartAt), toMillis(event.EndAt),
		event.TotalSlots, event.AvailableSlots, event.IsActive,
		toMillis(event.CreatedAt), toMillis(event.UpdatedAt),
	)
	if err != nil {
		return nil, err
	}

	return event, nil
}

func (r *EventRepository) FindOneByID(ctx context.Context, ID bson.ObjectID) (*entity.Event, error) {
	row := r.db.QueryRowContext(ctx, r.db.rebind(`SELECT `+eventColumns+` FROM events WHERE id = ?`), ID.Hex())

	event, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return event, nil
}

func (r *EventRepository) Find(ctx context.Context, filter entity.EventFilter) ([]*entity.Event, error) {
	var (
		where []string
		args  []any
	)
	if !filter.IncludeCancelled {
		where = append(where, "is_active = TRUE")
	}
	if !filter.Now.IsZero() {
		where = append(where, "end_at >= ?")
		args = append(args, toMillis(filter.Now))
	}
	if filter.Title != "" {
		where = append(where, `title_fold LIKE ? ESCAPE '\'`)
		args = append(args, containsPattern(filter.Title))
	}
	if filter.OrganizerID != nil {
		where = append(where, "organizer_id = ?")
		args = append(args, filter.OrganizerID.Hex())
	}
	if filter.DayFromUTC != nil && filter.DayToUTC != nil {
		where = append(where, "start_at >= ? AND start_at < ?")
		args = append(args, toMillis(*filter.DayFromUTC), toMillis(*filter.DayToUTC))
	}

	query := `SELECT ` + eventColumns + ` FROM events`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY start_at, id`

	return r.query(ctx, query, args...)
}

func (r *EventRepository) FindManyBySubscriber(ctx context.Context, userID bson.ObjectID) ([]*entity.Event, error) {
	return r.query(ctx, `
		SELECT e.id, e.organizer_id, e.title, e.description, e.start_at, e.end_at,
			e.total_slots, e.available_slots, e.is_active, e.created_at, e.updated_at
		FROM events e
		JOIN subscriptions s ON s.event_id = e.id
		WHERE s.user_id = ?
		ORDER BY e.start_at, e.id
	`, userID.Hex())
}

func (r *EventRepository) FindParticipants(ctx context.Context, eventID bson.ObjectID) ([]*entity.User, error) {
	rows, err := r.db.QueryContext(ctx, r.db.rebind(`
		SELECT u.id, u.name, u.email, u.password_hash, u.role, u.created_at
		FROM users u
		JOIN subscriptions s ON s.user_id = u.id
		WHERE s.event_id = ?
		ORDER BY u.name, u.id
	`), eventID.Hex())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []*entity.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (r *EventRepository) CountByOrganizer(ctx context.Context, organizerID bson.ObjectID) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, r.db.rebind(`SELECT COUNT(*) FROM events WHERE organizer_id = ?`), organizerID.Hex()).Scan(&count)
	return count, err
}

// Update applies the patch only while the event is active and owned by
// organizerID. SET expressions read the old row, so available_slots moves by
// the same delta as total_slots.
func (r *EventRepository) Update(ctx context.Context, ID, organizerID bson.ObjectID, patch entity.EventPatch) (*entity.Event, error) {
	set := []string{"updated_at = ?"}
	args := []any{toMillis(time.Now().UTC())}

	if patch.Title != nil {
		set = append(set, "title = ?", "title_fold = ?")
		args = append(args, *patch.Title, fold(*patch.Title))
	}
	if patch.Description != nil {
		set = append(set, "description = ?")
		args = append(args, *patch.Description)
	}
	if patch.StartAt != nil {
		set = append(set, "start_at = ?")
		args = append(args, toMillis(*patch.StartAt))
	}
	if patch.EndAt != nil {
		set = append(set, "end_at = ?")
		args = append(args, toMillis(*patch.EndAt))
	}
	if patch.TotalSlots != nil {
		set = append(set, "available_slots = available_slots + (? - total_slots)", "total_slots = ?")
		args = append(args, *patch.TotalSlots, *patch.TotalSlots)
	}

	query := `UPDATE events SET ` + strings.Join(set, ", ") + ` WHERE id = ? AND organizer_id = ? AND is_active = TRUE`
	args = append(args, ID.Hex(), organizerID.Hex())
	if patch.TotalSlots != nil {
		query += ` AND total_slots - available_slots <= ?`
		args = append(args, *patch.TotalSlots)
	}

	res, err := r.db.ExecContext(ctx, r.db.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, repository.ErrConflict
	}

	return r.FindOneByID(ctx, ID)
}

// Cancel reports whether this call moved the event from active to cancelled.
func (r *EventRepository) Cancel(ctx context.Context, ID bson.ObjectID) (bool, error) {
	res, err := r.db.ExecContext(ctx, r.db.rebind(`
		UPDATE events SET is_active = FALSE, updated_at = ? WHERE id = ? AND is_active = TRUE
	`), toMillis(time.Now().UTC()), ID.Hex())
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *EventRepository) IsSubscribed(ctx context.Context, eventID, userID bson.ObjectID) (bool, error) {
	return isSubscribed(ctx, r.db, r.db.rebind, eventID, userID)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func isSubscribed(ctx context.Context, q queryRower, rebind func(string) string, eventID, userID bson.ObjectID) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx, rebind(`
		SELECT 1 FROM subscriptions WHERE event_id = ? AND user_id = ?
	`), eventID.Hex(), userID.Hex()).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Subscribe runs the checks and both writes in one transaction. The
// decrement is still guarded by available_slots > 0 and the insert by the
// unique (event_id, user_id) constraint, so a lost race rolls back instead
// of overselling.
func (r *EventRepository) Subscribe(ctx context.Context, eventID, userID bson.ObjectID) (entity.SubscribeResult, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	var (
		isActive  bool
		available int
	)
	err = tx.QueryRowContext(ctx, r.db.rebind(`
		SELECT is_active, available_slots FROM events WHERE id = ?`+r.db.forUpdate()),
		eventID.Hex(),
	).Scan(&isActive, &available)
	if errors.Is(err, sql.ErrNoRows) {
		return "", repository.ErrNotFound
	}
	if err != nil {
		return "", err
	}

	if !isActive {
		return entity.SubscribeInactiveEvent, nil
	}
	if available <= 0 {
		return entity.SubscribeNoSlots, nil
	}

	subscribed, err := isSubscribed(ctx, tx, r.db.rebind, eventID, userID)
	if err != nil {
		return "", err
	}
	if subscribed {
		return entity.SubscribeAlreadySubscribed, nil
	}

	now := time.Now().UTC()

	_, err = tx.ExecContext(ctx, r.db.rebind(`
		INSERT INTO subscriptions (id, event_id, user_id, created_at) VALUES (?, ?, ?, ?)
	`), bson.NewObjectID().Hex(), eventID.Hex(), userID.Hex(), toMillis(now))
	if isUniqueViolation(err) {
		return entity.SubscribeAlreadySubscribed, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to insert subscription: %w", err)
	}

	res, err := tx.ExecContext(ctx, r.db.rebind(`
		UPDATE events
		SET available_slots = available_slots - 1, updated_at = ?
		WHERE id = ? AND is_active = TRUE AND available_slots > 0
	`), toMillis(now), eventID.Hex())
	if err != nil {
		return "", fmt.Errorf("failed to update event capacity: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return "", err
	}
	if n == 0 {
		return entity.SubscribeNoSlots, nil
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit tx: %w", err)
	}

	return entity.SubscribeSuccess, nil
}

func (r *EventRepository) Unsubscribe(ctx context.Context, eventID, userID bson.ObjectID) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, r.db.rebind(`
		DELETE FROM subscriptions WHERE event_id = ? AND user_id = ?
	`), eventID.Hex(), userID.Hex())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return repository.ErrNotSubscribed
	}

	_, err = tx.ExecContext(ctx, r.db.rebind(`
		UPDATE events
		SET available_slots = available_slots + 1, updated_at = ?
		WHERE id = ? AND available_slots < total_slots
	`), toMillis(time.Now().UTC()), eventID.Hex())
	if err != nil {
		return err
	}

	return tx.Commit()
}

// ReconcileSlots recomputes available_slots from the subscription rows. Each
// fix is conditional on the value it read; an event that moved meanwhile is
// left for the next run.
func (r *EventRepository) ReconcileSlots(ctx context.Context) (int, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT e.id, e.total_slots, e.available_slots, COUNT(s.id)
		FROM events e
		LEFT JOIN subscriptions s ON s.event_id = e.id
		GROUP BY e.id, e.total_slots, e.available_slots
	`)
	if err != nil {
		return 0, err
	}

	type slotCount struct {
		id         string
		total      int
		available  int
		subscribed int
	}
	var counts []slotCount
	for rows.Next() {
		var c slotCount
		if err := rows.Scan(&c.id, &c.total, &c.available, &c.subscribed); err != nil {
			rows.Close()
			return 0, err
		}
		counts = append(counts, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	fixed := 0
	for _, c := range counts {
		want := max(c.total-c.subscribed, 0)
		if want == c.available {
			continue
		}

		res, err := r.db.ExecContext(ctx, r.db.rebind(`
			UPDATE events SET available_slots = ?, updated_at = ? WHERE id = ? AND available_slots = ?
		`), want, toMillis(time.Now().UTC()), c.id, c.available)
		if err != nil {
			return fixed, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fixed, err
		}
		fixed += int(n)
	}

	return fixed, nil
}

func (r *EventRepository) query(ctx context.Context, query string, args ...any) ([]*entity.Event, error) {
	rows, err := r.db.QueryContext(ctx, r.db.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []*entity.Event{}
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func scanEvent(s scanner) (*entity.Event, error) {
	var (
		event                entity.Event
		id, organizerID      string
		startAt, endAt       int64
		createdAt, updatedAt int64
	)
	err := s.Scan(
		&id, &organizerID, &event.Title, &event.Description, &startAt, &endAt,
		&event.TotalSlots, &event.AvailableSlots, &event.IsActive, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if event.ID, err = parseID(id); err != nil {
		return nil, err
	}
	if event.OrganizerID, err = parseID(organizerID); err != nil {
		return nil, err
	}
	event.StartAt = fromMillis(startAt)
	event.EndAt = fromMillis(endAt)
	event.CreatedAt = fromMillis(createdAt)
	event.UpdatedAt = fromMillis(updatedAt)

	return &event, nil
}
