package whisperwall

import (
	"time"

	"github.com/google/uuid"
)

// User is the canonical account record. A record is created either by local
// registration or by the first OAuth login for an unseen provider subject.
// ID is assigned at creation and never changes.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name,omitempty"`

	// PasswordHash is the bcrypt credential, present only if the user ever
	// registered locally. Never the plaintext.
	PasswordHash string `json:"password_hash,omitempty"`

	// Provider-scoped subject ids. Each is looked up independently; a person
	// linking two providers with different subjects ends up as two records.
	GoogleID   string `json:"google_id,omitempty"`
	FacebookID string `json:"facebook_id,omitempty"`

	// Secret is the single protected payload owned by the user.
	// Last write wins, no history.
	Secret string `json:"secret,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SessionUser is the projection of a User that gets serialized into the
// session. No credential material, no secret.
type SessionUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name,omitempty"`
}

// SessionUser returns the minimal projection stored at login.
func (u *User) SessionUser() SessionUser {
	return SessionUser{ID: u.ID, Username: u.Username, Name: u.Name}
}

// NewUserID generates a new opaque user id.
func NewUserID() string {
	return uuid.NewString()
}
