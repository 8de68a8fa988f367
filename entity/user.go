package entity

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

type User struct {
	ID           bson.ObjectID `bson:"_id,omitempty" json:"id"`
	Name         string        `bson:"name" json:"name"`
	Email        string        `bson:"email" json:"email"`
	PasswordHash string        `bson:"passwordHash" json:"-"`
	// Role is fixed at registration.
	Role      Role      `bson:"role" json:"role"`
	CreatedAt time.Time `bson:"createdAt" json:"created_at"`
}

func (u *User) IsOrganizer() bool {
	return u != nil && u.Role == RoleOrganizer
}

func (u *User) IsParticipant() bool {
	return u != nil && u.Role == RoleParticipant
}

// Session is a bearer token issued at login. Only the SHA-256 of the token is stored.
type Session struct {
	TokenHash string        `bson:"_id"`
	UserID    bson.ObjectID `bson:"userId"`
	CreatedAt time.Time     `bson:"createdAt"`
	ExpiresAt time.Time     `bson:"expiresAt"`
}

func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
