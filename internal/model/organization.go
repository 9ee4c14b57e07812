package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DefaultOrganizationName is given to the organization created with every new user
const DefaultOrganizationName = "Default"

// Organization groups users and the projects they share
type Organization struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	Name      string    `json:"name" gorm:"type:varchar(255);not null"`
	CreatedAt time.Time `json:"created_at"`
	Users     []User    `json:"users,omitempty" gorm:"many2many:organization_user;"`
	Projects  []Project `json:"projects,omitempty" gorm:"constraint:OnDelete:CASCADE;"`
}

func (o *Organization) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}
