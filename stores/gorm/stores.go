// Package gorm backs the UserStore contract with a relational database via
// GORM. This is the production store: the find-or-create race is settled by
// the unique indexes on username and the provider subject columns.
//
// Open the database with TranslateError enabled so duplicate-key violations
// surface as gorm.ErrDuplicatedKey:
//
//	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
package gorm

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	ww "github.com/whisperwall/whisperwall"
)

// AutoMigrate runs database migrations for the user table.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&UserModel{})
}

// UserStore implements whisperwall.UserStore using GORM.
type UserStore struct {
	db *gorm.DB
}

func NewUserStore(db *gorm.DB) *UserStore {
	return &UserStore{db: db}
}

func (s *UserStore) GetUserById(userId string) (*ww.User, error) {
	var model UserModel
	if err := s.db.First(&model, "id = ?", userId).Error; err != nil {
		return nil, storeErr(err)
	}
	return model.ToUser(), nil
}

func (s *UserStore) GetUserByUsername(username string) (*ww.User, error) {
	if username == "" {
		return nil, ww.ErrUserNotFound
	}
	var model UserModel
	if err := s.db.First(&model, "username = ?", username).Error; err != nil {
		return nil, storeErr(err)
	}
	return model.ToUser(), nil
}

func (s *UserStore) CreateUser(user *ww.User) error {
	if user.ID == "" {
		user.ID = ww.NewUserID()
	}
	model := UserToModel(user)
	if err := s.db.Create(model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ww.ErrDuplicateUsername
		}
		return storeErr(err)
	}
	*user = *model.ToUser()
	return nil
}

func (s *UserStore) FindOrCreate(key ww.ProviderKey, seed *ww.User) (*ww.User, bool, error) {
	column, err := providerColumn(key.Provider)
	if err != nil {
		return nil, false, err
	}

	var model UserModel
	findErr := s.db.First(&model, column+" = ?", key.Subject).Error
	if findErr == nil {
		return model.ToUser(), false, nil
	}
	if !errors.Is(findErr, gorm.ErrRecordNotFound) {
		return nil, false, storeErr(findErr)
	}

	created := UserToModel(&ww.User{
		ID:         ww.NewUserID(),
		Username:   seed.Username,
		Name:       seed.Name,
		GoogleID:   seed.GoogleID,
		FacebookID: seed.FacebookID,
	})
	if err := s.db.Create(created).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// Either we lost the race on the subject - resolve to the
			// winner's record - or the seeded username is already reserved.
			var winner UserModel
			if err2 := s.db.First(&winner, column+" = ?", key.Subject).Error; err2 == nil {
				return winner.ToUser(), false, nil
			}
			return nil, false, ww.ErrDuplicateUsername
		}
		return nil, false, storeErr(err)
	}
	return created.ToUser(), true, nil
}

func (s *UserStore) SetSecret(userId string, secret string) error {
	result := s.db.Model(&UserModel{}).Where("id = ?", userId).Update("secret", secret)
	if result.Error != nil {
		return storeErr(result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ww.ErrUserNotFound, userId)
	}
	return nil
}

func (s *UserStore) UsersWithSecrets() ([]*ww.User, error) {
	var models []UserModel
	if err := s.db.Where("secret <> ''").Find(&models).Error; err != nil {
		return nil, storeErr(err)
	}
	users := make([]*ww.User, len(models))
	for i, m := range models {
		users[i] = m.ToUser()
	}
	return users, nil
}

func providerColumn(provider string) (string, error) {
	switch provider {
	case ww.ProviderGoogle:
		return "google_id", nil
	case ww.ProviderFacebook:
		return "facebook_id", nil
	}
	return "", fmt.Errorf("unknown provider %q", provider)
}

func storeErr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ww.ErrUserNotFound
	}
	return fmt.Errorf("%w: %v", ww.ErrStoreUnavailable, err)
}
