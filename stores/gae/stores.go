//go:build !wasm
// +build !wasm

// Package gae backs the UserStore contract with Google Cloud Datastore.
// FindOrCreate runs inside a Datastore transaction that touches the user
// entity plus small reservation entities for the username and the provider
// subject, which is what settles the create race for this backend.
package gae

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/datastore"
	"google.golang.org/api/iterator"

	ww "github.com/whisperwall/whisperwall"
)

// Kind constants for Datastore entities
const (
	KindUser        = "User"
	KindUsername    = "Username"
	KindProviderKey = "ProviderKey"
)

// UserEntity is the Datastore representation of a user record.
type UserEntity struct {
	Username     string    `datastore:"username"`
	Name         string    `datastore:"name,noindex"`
	PasswordHash string    `datastore:"password_hash,noindex"`
	GoogleID     string    `datastore:"google_id"`
	FacebookID   string    `datastore:"facebook_id"`
	Secret       string    `datastore:"secret"`
	CreatedAt    time.Time `datastore:"created_at,noindex"`
	UpdatedAt    time.Time `datastore:"updated_at,noindex"`
}

// reservation maps a reserved name (username or provider subject) to the
// owning user id.
type reservation struct {
	UserID string `datastore:"user_id"`
}

// UserStore implements whisperwall.UserStore using Cloud Datastore.
type UserStore struct {
	client    *datastore.Client
	namespace string
	ctx       context.Context
}

// NewUserStore creates a new Datastore-backed UserStore.
func NewUserStore(client *datastore.Client, namespace string) *UserStore {
	return &UserStore{
		client:    client,
		namespace: namespace,
		ctx:       context.Background(),
	}
}

// WithContext returns a copy of the store bound to the given context.
func (s *UserStore) WithContext(ctx context.Context) *UserStore {
	return &UserStore{client: s.client, namespace: s.namespace, ctx: ctx}
}

func (s *UserStore) namespacedKey(kind, name string) *datastore.Key {
	key := datastore.NameKey(kind, name, nil)
	key.Namespace = s.namespace
	return key
}

func (s *UserStore) usernameKey(username string) *datastore.Key {
	return s.namespacedKey(KindUsername, strings.ToLower(username))
}

func (s *UserStore) providerKey(key ww.ProviderKey) *datastore.Key {
	return s.namespacedKey(KindProviderKey, key.Provider+":"+key.Subject)
}

func (e *UserEntity) toUser(userId string) *ww.User {
	return &ww.User{
		ID:           userId,
		Username:     e.Username,
		Name:         e.Name,
		PasswordHash: e.PasswordHash,
		GoogleID:     e.GoogleID,
		FacebookID:   e.FacebookID,
		Secret:       e.Secret,
		CreatedAt:    e.CreatedAt,
		UpdatedAt:    e.UpdatedAt,
	}
}

func entityFromUser(u *ww.User) *UserEntity {
	return &UserEntity{
		Username:     u.Username,
		Name:         u.Name,
		PasswordHash: u.PasswordHash,
		GoogleID:     u.GoogleID,
		FacebookID:   u.FacebookID,
		Secret:       u.Secret,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func (s *UserStore) GetUserById(userId string) (*ww.User, error) {
	var entity UserEntity
	if err := s.client.Get(s.ctx, s.namespacedKey(KindUser, userId), &entity); err != nil {
		return nil, storeErr(err, userId)
	}
	return entity.toUser(userId), nil
}

func (s *UserStore) GetUserByUsername(username string) (*ww.User, error) {
	if username == "" {
		return nil, ww.ErrUserNotFound
	}
	var res reservation
	if err := s.client.Get(s.ctx, s.usernameKey(username), &res); err != nil {
		return nil, storeErr(err, username)
	}
	return s.GetUserById(res.UserID)
}

func (s *UserStore) CreateUser(user *ww.User) error {
	if user.ID == "" {
		user.ID = ww.NewUserID()
	}
	_, err := s.client.RunInTransaction(s.ctx, func(tx *datastore.Transaction) error {
		return s.createInTx(tx, user, ww.ProviderKey{})
	})
	return err
}

func (s *UserStore) FindOrCreate(key ww.ProviderKey, seed *ww.User) (*ww.User, bool, error) {
	var resolved *ww.User
	var created bool

	_, err := s.client.RunInTransaction(s.ctx, func(tx *datastore.Transaction) error {
		resolved, created = nil, false

		var res reservation
		err := tx.Get(s.providerKey(key), &res)
		if err == nil {
			var entity UserEntity
			if err := tx.Get(s.namespacedKey(KindUser, res.UserID), &entity); err != nil {
				return err
			}
			resolved = entity.toUser(res.UserID)
			return nil
		}
		if err != datastore.ErrNoSuchEntity {
			return err
		}

		user := &ww.User{
			ID:         ww.NewUserID(),
			Username:   seed.Username,
			Name:       seed.Name,
			GoogleID:   seed.GoogleID,
			FacebookID: seed.FacebookID,
		}
		if err := s.createInTx(tx, user, key); err != nil {
			return err
		}
		resolved, created = user, true
		return nil
	})
	if err != nil {
		if errors.Is(err, ww.ErrDuplicateUsername) {
			return nil, false, ww.ErrDuplicateUsername
		}
		return nil, false, fmt.Errorf("%w: %v", ww.ErrStoreUnavailable, err)
	}
	return resolved, created, nil
}

// createInTx writes the user entity plus its reservations. Callers run it
// inside a transaction.
func (s *UserStore) createInTx(tx *datastore.Transaction, user *ww.User, key ww.ProviderKey) error {
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	if user.Username != "" {
		var existing reservation
		err := tx.Get(s.usernameKey(user.Username), &existing)
		if err == nil {
			return ww.ErrDuplicateUsername
		}
		if err != datastore.ErrNoSuchEntity {
			return err
		}
		if _, err := tx.Put(s.usernameKey(user.Username), &reservation{UserID: user.ID}); err != nil {
			return err
		}
	}
	if key.Provider != "" {
		if _, err := tx.Put(s.providerKey(key), &reservation{UserID: user.ID}); err != nil {
			return err
		}
	}
	_, err := tx.Put(s.namespacedKey(KindUser, user.ID), entityFromUser(user))
	return err
}

func (s *UserStore) SetSecret(userId string, secret string) error {
	_, err := s.client.RunInTransaction(s.ctx, func(tx *datastore.Transaction) error {
		key := s.namespacedKey(KindUser, userId)
		var entity UserEntity
		if err := tx.Get(key, &entity); err != nil {
			return err
		}
		entity.Secret = secret
		entity.UpdatedAt = time.Now()
		_, err := tx.Put(key, &entity)
		return err
	})
	if err != nil {
		return storeErr(err, userId)
	}
	return nil
}

func (s *UserStore) UsersWithSecrets() ([]*ww.User, error) {
	query := datastore.NewQuery(KindUser).Namespace(s.namespace).FilterField("secret", ">", "")
	it := s.client.Run(s.ctx, query)

	var out []*ww.User
	for {
		var entity UserEntity
		key, err := it.Next(&entity)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ww.ErrStoreUnavailable, err)
		}
		out = append(out, entity.toUser(key.Name))
	}
	return out, nil
}

func storeErr(err error, subject string) error {
	if err == datastore.ErrNoSuchEntity {
		return fmt.Errorf("%w: %s", ww.ErrUserNotFound, subject)
	}
	return fmt.Errorf("%w: %v", ww.ErrStoreUnavailable, err)
}
