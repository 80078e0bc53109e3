package whisperwall

// Provider names understood by the gateway.
const (
	ProviderLocal    = "local"
	ProviderGoogle   = "google"
	ProviderFacebook = "facebook"
)

// ProviderKey identifies a user by a provider-scoped subject id, e.g.
// {Provider: "google", Subject: "1098273..."}.
type ProviderKey struct {
	Provider string
	Subject  string
}

// UserStore persists canonical user records.
//
// Username uniqueness is enforced at creation time, first writer wins.
// OAuth-only records created without a seeded username (the Facebook path)
// carry an empty username, which is exempt from the uniqueness check.
type UserStore interface {
	// GetUserById retrieves a user by its opaque id.
	// Returns ErrUserNotFound on a miss.
	GetUserById(userId string) (*User, error)

	// GetUserByUsername retrieves a user by its unique username.
	// Returns ErrUserNotFound on a miss.
	GetUserByUsername(username string) (*User, error)

	// CreateUser persists a new record, assigning user.ID if empty.
	// Returns ErrDuplicateUsername when the username is already reserved.
	CreateUser(user *User) error

	// FindOrCreate returns the user matching the provider key, creating one
	// from seed if none exists. It is atomic with respect to concurrent
	// identical calls: exactly one record is created and every caller
	// resolves to it. The seed's provider id field must match key.
	FindOrCreate(key ProviderKey, seed *User) (user *User, created bool, err error)

	// SetSecret sets the user's secret payload, last write wins.
	SetSecret(userId string, secret string) error

	// UsersWithSecrets returns every user whose secret is set. It backs the
	// public secrets page.
	UsersWithSecrets() ([]*User, error)
}
