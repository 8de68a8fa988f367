package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joeyave/event-registration/entity"
	"github.com/joeyave/event-registration/repository"
	"golang.org/x/crypto/bcrypt"
)

type RegisterInput struct {
	Name                 string      `json:"name" validate:"required,max=255"`
	Email                string      `json:"email" validate:"required,email,max=255"`
	Password             string      `json:"password" validate:"required,min=6"`
	PasswordConfirmation string      `json:"password_confirmation" validate:"required,eqfield=Password"`
	Role                 entity.Role `json:"role" validate:"omitempty,oneof=organizer participant"`
}

type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

const msgBadCredentials = "The provided credentials are incorrect."

type UserService struct {
	userRepository    UserRepository
	sessionRepository SessionRepository
	eventRepository   EventRepository
	validation        *validation
	sessionTTL        time.Duration
	now               func() time.Time
}

func NewUserService(userRepository UserRepository, sessionRepository SessionRepository, eventRepository EventRepository, sessionTTL time.Duration) *UserService {
	return &UserService{
		userRepository:    userRepository,
		sessionRepository: sessionRepository,
		eventRepository:   eventRepository,
		validation:        newValidation(),
		sessionTTL:        sessionTTL,
		now:               func() time.Time { return time.Now().UTC() },
	}
}

func (s *UserService) Register(ctx context.Context, in RegisterInput) (*entity.User, error) {
	in.Email = normalizeEmail(in.Email)
	in.Name = strings.TrimSpace(in.Name)
	if in.Role == "" {
		in.Role = entity.RoleParticipant
	}

	if err := s.validation.Struct(in); err != nil {
		return nil, err
	}

	_, err := s.userRepository.FindOneByEmail(ctx, in.Email)
	if err == nil {
		return nil, newValidationError("email", "The email has already been taken.")
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.userRepository.Create(ctx, &entity.User{
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: string(hash),
		Role:         in.Role,
		CreatedAt:    s.now(),
	})
	if errors.Is(err, repository.ErrDuplicate) {
		return nil, newValidationError("email", "The email has already been taken.")
	}
	if err != nil {
		return nil, err
	}

	return user, nil
}

// Login checks the credentials and issues a bearer token. Only the token's
// hash is stored.
func (s *UserService) Login(ctx context.Context, in LoginInput) (*entity.User, string, error) {
	in.Email = normalizeEmail(in.Email)
	if err := s.validation.Struct(in); err != nil {
		return nil, "", err
	}

	user, err := s.userRepository.FindOneByEmail(ctx, in.Email)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, "", newValidationError("email", msgBadCredentials)
	}
	if err != nil {
		return nil, "", err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(in.Password)); err != nil {
		return nil, "", newValidationError("email", msgBadCredentials)
	}

	token := uuid.NewString()
	now := s.now()
	err = s.sessionRepository.Create(ctx, &entity.Session{
		TokenHash: hashToken(token),
		UserID:    user.ID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.sessionTTL),
	})
	if err != nil {
		return nil, "", fmt.Errorf("create session: %w", err)
	}

	return user, token, nil
}

func (s *UserService) Logout(ctx context.Context, token string) error {
	return s.sessionRepository.DeleteOneByTokenHash(ctx, hashToken(token))
}

// Authenticate resolves a bearer token to its user. Unknown or expired
// tokens yield ErrUnauthorized.
func (s *UserService) Authenticate(ctx context.Context, token string) (*entity.User, error) {
	if token == "" {
		return nil, ErrUnauthorized
	}

	session, err := s.sessionRepository.FindOneByTokenHash(ctx, hashToken(token))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrUnauthorized
	}
	if err != nil {
		return nil, err
	}
	if session.Expired(s.now()) {
		return nil, ErrUnauthorized
	}

	user, err := s.userRepository.FindOneByID(ctx, session.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrUnauthorized
	}
	if err != nil {
		return nil, err
	}

	return user, nil
}

// Delete removes the actor's account. Subscriptions are released first so
// their slots go back to the events; organizers who own events are refused.
func (s *UserService) Delete(ctx context.Context, actor *entity.User) error {
	if actor == nil {
		return ErrUnauthorized
	}

	if actor.IsOrganizer() {
		count, err := s.eventRepository.CountByOrganizer(ctx, actor.ID)
		if err != nil {
			return err
		}
		if count > 0 {
			return ErrOrganizerHasEvents
		}
	}

	events, err := s.eventRepository.FindManyBySubscriber(ctx, actor.ID)
	if err != nil {
		return err
	}
	for _, event := range events {
		err := s.eventRepository.Unsubscribe(ctx, event.ID, actor.ID)
		if err != nil && !errors.Is(err, repository.ErrNotSubscribed) {
			return fmt.Errorf("unsubscribe from %s: %w", event.ID.Hex(), err)
		}
	}

	if err := s.sessionRepository.DeleteManyByUserID(ctx, actor.ID); err != nil {
		return err
	}

	err = s.userRepository.DeleteOneByID(ctx, actor.ID)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

func (s *UserService) PurgeExpiredSessions(ctx context.Context) (int64, error) {
	return s.sessionRepository.DeleteExpired(ctx, s.now())
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
