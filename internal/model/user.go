package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is an account that can sign in and belong to organizations
type User struct {
	ID            uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey"`
	Email         string         `json:"email" gorm:"type:varchar(255);uniqueIndex;not null"`
	Password      string         `json:"-" gorm:"type:varchar(255);not null"`
	CreatedAt     time.Time      `json:"created_at"`
	Organizations []Organization `json:"organizations,omitempty" gorm:"many2many:organization_user;"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}
