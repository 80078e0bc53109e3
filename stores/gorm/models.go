package gorm

import (
	"time"

	ww "github.com/whisperwall/whisperwall"
)

// UserModel is the GORM model for users. Username and the provider subject
// columns are nullable so the unique indexes only bite on real values:
// Facebook-created records legitimately carry no username.
type UserModel struct {
	ID           string    `gorm:"primaryKey;size:64"`
	Username     *string   `gorm:"uniqueIndex;size:255"`
	Name         string    `gorm:"size:255"`
	PasswordHash string    `gorm:"size:128"`
	GoogleID     *string   `gorm:"uniqueIndex;size:128"`
	FacebookID   *string   `gorm:"uniqueIndex;size:128"`
	Secret       string    `gorm:"type:text"`
	CreatedAt    time.Time `gorm:"autoCreateTime"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime"`
}

func (UserModel) TableName() string {
	return "users"
}

func (m *UserModel) ToUser() *ww.User {
	return &ww.User{
		ID:           m.ID,
		Username:     deref(m.Username),
		Name:         m.Name,
		PasswordHash: m.PasswordHash,
		GoogleID:     deref(m.GoogleID),
		FacebookID:   deref(m.FacebookID),
		Secret:       m.Secret,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func UserToModel(u *ww.User) *UserModel {
	return &UserModel{
		ID:           u.ID,
		Username:     optional(u.Username),
		Name:         u.Name,
		PasswordHash: u.PasswordHash,
		GoogleID:     optional(u.GoogleID),
		FacebookID:   optional(u.FacebookID),
		Secret:       u.Secret,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
