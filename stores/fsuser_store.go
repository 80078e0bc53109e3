// Package stores holds the file-backed UserStore, suitable for development
// and tests. Records are JSON files under users/, with small index files
// reserving usernames and provider subjects so lookups stay O(1) and
// uniqueness survives restarts.
package stores

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	ww "github.com/whisperwall/whisperwall"
)

// FSUserStore stores users as JSON files. A single store-level mutex
// serializes every write, which is what makes FindOrCreate atomic for this
// backend: concurrent identical calls enter the critical section one at a
// time and the loser finds the winner's index entry.
type FSUserStore struct {
	StoragePath string

	mu sync.Mutex
}

func NewFSUserStore(storagePath string) *FSUserStore {
	return &FSUserStore{StoragePath: storagePath}
}

func (s *FSUserStore) userPath(userId string) string {
	return filepath.Join(s.StoragePath, "users", userId+".json")
}

func (s *FSUserStore) usernamePath(username string) string {
	return filepath.Join(s.StoragePath, "usernames", sanitizeKey(strings.ToLower(username))+".json")
}

func (s *FSUserStore) providerPath(key ww.ProviderKey) string {
	return filepath.Join(s.StoragePath, "providers", sanitizeKey(key.Provider+"-"+key.Subject)+".json")
}

// sanitizeKey flattens path separators in request-supplied keys (usernames,
// provider subjects) so index files cannot escape the store directory.
func sanitizeKey(key string) string {
	key = strings.ReplaceAll(key, "/", "_")
	key = strings.ReplaceAll(key, "\\", "_")
	return filepath.Base(key)
}

// indexEntry maps an index file (username or provider subject) to a user id.
type indexEntry struct {
	UserID string `json:"user_id"`
}

func (s *FSUserStore) GetUserById(userId string) (*ww.User, error) {
	data, err := os.ReadFile(s.userPath(userId))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ww.ErrUserNotFound, userId)
		}
		return nil, fmt.Errorf("%w: %v", ww.ErrStoreUnavailable, err)
	}

	var user ww.User
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, fmt.Errorf("%w: %v", ww.ErrStoreUnavailable, err)
	}
	return &user, nil
}

func (s *FSUserStore) GetUserByUsername(username string) (*ww.User, error) {
	if username == "" {
		return nil, ww.ErrUserNotFound
	}
	entry, err := s.readIndex(s.usernamePath(username))
	if err != nil {
		return nil, err
	}
	return s.GetUserById(entry.UserID)
}

func (s *FSUserStore) CreateUser(user *ww.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createLocked(user, ww.ProviderKey{})
}

func (s *FSUserStore) FindOrCreate(key ww.ProviderKey, seed *ww.User) (*ww.User, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, err := s.readIndex(s.providerPath(key))
	if err == nil {
		user, err := s.GetUserById(entry.UserID)
		return user, false, err
	}
	if !errors.Is(err, ww.ErrUserNotFound) {
		return nil, false, err
	}

	created := &ww.User{
		ID:         ww.NewUserID(),
		Username:   seed.Username,
		Name:       seed.Name,
		GoogleID:   seed.GoogleID,
		FacebookID: seed.FacebookID,
	}
	if err := s.createLocked(created, key); err != nil {
		return nil, false, err
	}
	return created, true, nil
}

// createLocked persists a user plus its index entries. Callers hold s.mu.
func (s *FSUserStore) createLocked(user *ww.User, key ww.ProviderKey) error {
	if user.ID == "" {
		user.ID = ww.NewUserID()
	}
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	// Empty usernames (Facebook-created records) are exempt from the
	// uniqueness check; non-empty ones are first-writer-wins.
	if user.Username != "" {
		if _, err := os.Stat(s.usernamePath(user.Username)); err == nil {
			return ww.ErrDuplicateUsername
		}
	}

	if err := s.writeUser(user); err != nil {
		return err
	}
	if user.Username != "" {
		if err := s.writeIndex(s.usernamePath(user.Username), user.ID); err != nil {
			return err
		}
	}
	if key.Provider != "" {
		if err := s.writeIndex(s.providerPath(key), user.ID); err != nil {
			return err
		}
	}
	return nil
}

func (s *FSUserStore) SetSecret(userId string, secret string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, err := s.GetUserById(userId)
	if err != nil {
		return err
	}
	user.Secret = secret
	user.UpdatedAt = time.Now()
	return s.writeUser(user)
}

func (s *FSUserStore) UsersWithSecrets() ([]*ww.User, error) {
	dir := filepath.Join(s.StoragePath, "users")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ww.ErrStoreUnavailable, err)
	}

	var out []*ww.User
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		user, err := s.GetUserById(strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			continue
		}
		if user.Secret != "" {
			out = append(out, user)
		}
	}
	return out, nil
}

func (s *FSUserStore) readIndex(path string) (*indexEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ww.ErrUserNotFound
		}
		return nil, fmt.Errorf("%w: %v", ww.ErrStoreUnavailable, err)
	}
	var entry indexEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("%w: %v", ww.ErrStoreUnavailable, err)
	}
	return &entry, nil
}

func (s *FSUserStore) writeIndex(path string, userId string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("%w: %v", ww.ErrStoreUnavailable, err)
	}
	data, err := json.Marshal(&indexEntry{UserID: userId})
	if err != nil {
		return err
	}
	if err := writeAtomicFile(path, data); err != nil {
		return fmt.Errorf("%w: %v", ww.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *FSUserStore) writeUser(user *ww.User) error {
	path := s.userPath(user.ID)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("%w: %v", ww.ErrStoreUnavailable, err)
	}
	data, err := json.MarshalIndent(user, "", "  ")
	if err != nil {
		return err
	}
	if err := writeAtomicFile(path, data); err != nil {
		return fmt.Errorf("%w: %v", ww.ErrStoreUnavailable, err)
	}
	return nil
}
