package sqlrepo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/joeyave/event-registration/entity"
	"github.com/joeyave/event-registration/repository"
	"go.mongodb.org/mongo-driver/v2/bson"
)

type SessionRepository struct {
	db *DB
}

func NewSessionRepository(db *DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(ctx context.Context, session *entity.Session) error {
	_, err := r.db.ExecContext(ctx, r.db.rebind(`
		INSERT INTO sessions (token_hash, user_id, created_at, expires_at)
		VALUES (?, ?, ?, ?)
	`), session.TokenHash, session.UserID.Hex(), toMillis(session.CreatedAt), toMillis(session.ExpiresAt))
	if isUniqueViolation(err) {
		return repository.ErrDuplicate
	}
	return err
}

func (r *SessionRepository) FindOneByTokenHash(ctx context.Context, tokenHash string) (*entity.Session, error) {
	var (
		session   = entity.Session{TokenHash: tokenHash}
		userID    string
		createdAt int64
		expiresAt int64
	)
	err := r.db.QueryRowContext(ctx, r.db.rebind(`
		SELECT user_id, created_at, expires_at FROM sessions WHERE token_hash = ?
	`), tokenHash).Scan(&userID, &createdAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	session.UserID, err = parseID(userID)
	if err != nil {
		return nil, err
	}
	session.CreatedAt = fromMillis(createdAt)
	session.ExpiresAt = fromMillis(expiresAt)

	return &session, nil
}

func (r *SessionRepository) DeleteOneByTokenHash(ctx context.Context, tokenHash string) error {
	_, err := r.db.ExecContext(ctx, r.db.rebind(`DELETE FROM sessions WHERE token_hash = ?`), tokenHash)
	return err
}

func (r *SessionRepository) DeleteManyByUserID(ctx context.Context, userID bson.ObjectID) error {
	_, err := r.db.ExecContext(ctx, r.db.rebind(`DELETE FROM sessions WHERE user_id = ?`), userID.Hex())
	return err
}

func (r *SessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, r.db.rebind(`DELETE FROM sessions WHERE expires_at <= ?`), toMillis(now))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
