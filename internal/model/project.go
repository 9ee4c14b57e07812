package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Project belongs to an organization and owns uploaded files
type Project struct {
	ID             uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey"`
	Name           string         `json:"name" gorm:"type:varchar(255);not null"`
	Description    string         `json:"description" gorm:"type:text"`
	OrganizationID uuid.UUID      `json:"organization_id" gorm:"type:uuid;index;not null"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `json:"-" gorm:"index"`
	Files          []File         `json:"files,omitempty" gorm:"constraint:OnDelete:CASCADE;"`
}

func (p *Project) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
