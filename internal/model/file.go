package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// File is an object uploaded to storage under a project.
// Contents holds text extracted from the document once processing ran.
type File struct {
	ID               uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	Path             string     `json:"path" gorm:"type:varchar(1024);not null"`
	Size             int64      `json:"size" gorm:"not null"`
	MimeType         string     `json:"mime_type" gorm:"type:varchar(255);not null"`
	OriginalFilename string     `json:"original_filename" gorm:"type:varchar(1024);not null"`
	Contents         *string    `json:"-" gorm:"type:text"`
	ProcessedAt      *time.Time `json:"processed_at"`
	CreatedAt        time.Time  `json:"created_at"`
	ProjectID        uuid.UUID  `json:"project_id" gorm:"type:uuid;index;not null"`
}

func (f *File) BeforeCreate(tx *gorm.DB) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	return nil
}

// IsImage reports whether the stored MIME type is an image
func (f *File) IsImage() bool {
	return strings.HasPrefix(f.MimeType, "image/")
}
