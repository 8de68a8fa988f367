package sqlrepo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/joeyave/event-registration/entity"
	"github.com/joeyave/event-registration/repository"
	"go.mongodb.org/mongo-driver/v2/bson"
)

type UserRepository struct {
	db *DB
}

func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, user *entity.User) (*entity.User, error) {
	if user.ID.IsZero() {
		user.ID = bson.NewObjectID()
	}

	_, err := r.db.ExecContext(ctx, r.db.rebind(`
		INSERT INTO users (id, name, email, password_hash, role, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`), user.ID.Hex(), user.Name, user.Email, user.PasswordHash, string(user.Role), toMillis(user.CreatedAt))
	if isUniqueViolation(err) {
		return nil, repository.ErrDuplicate
	}
	if err != nil {
		return nil, err
	}

	return user, nil
}

func (r *UserRepository) FindOneByID(ctx context.Context, ID bson.ObjectID) (*entity.User, error) {
	return r.findOne(ctx, "id = ?", ID.Hex())
}

func (r *UserRepository) FindOneByEmail(ctx context.Context, email string) (*entity.User, error) {
	return r.findOne(ctx, "email = ?", email)
}

func (r *UserRepository) DeleteOneByID(ctx context.Context, ID bson.ObjectID) error {
	res, err := r.db.ExecContext(ctx, r.db.rebind(`DELETE FROM users WHERE id = ?`), ID.Hex())
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *UserRepository) findOne(ctx context.Context, where string, args ...any) (*entity.User, error) {
	row := r.db.QueryRowContext(ctx, r.db.rebind(`
		SELECT id, name, email, password_hash, role, created_at
		FROM users WHERE `+where), args...)

	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(s scanner) (*entity.User, error) {
	var (
		user      entity.User
		id        string
		role      string
		createdAt int64
	)
	if err := s.Scan(&id, &user.Name, &user.Email, &user.PasswordHash, &role, &createdAt); err != nil {
		return nil, err
	}

	var err error
	user.ID, err = parseID(id)
	if err != nil {
		return nil, err
	}
	user.Role = entity.Role(role)
	user.CreatedAt = fromMillis(createdAt)

	return &user, nil
}
