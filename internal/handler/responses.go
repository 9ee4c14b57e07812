package handler

import (
	"time"

	"docvision-service/internal/model"

	"github.com/google/uuid"
)

type OrganizationBasic struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

type UserPublic struct {
	ID            uuid.UUID           `json:"id"`
	Email         string              `json:"email"`
	Organizations []OrganizationBasic `json:"organizations"`
}

type FilePublic struct {
	ID               uuid.UUID  `json:"id"`
	Path             string     `json:"path"`
	Size             int64      `json:"size"`
	MimeType         string     `json:"mime_type"`
	OriginalFilename string     `json:"original_filename"`
	CreatedAt        time.Time  `json:"created_at"`
	ProcessedAt      *time.Time `json:"processed_at,omitempty"`
	URL              string     `json:"url,omitempty"`
}

type ProjectPublic struct {
	ID             uuid.UUID    `json:"id"`
	Name           string       `json:"name"`
	Description    string       `json:"description"`
	OrganizationID uuid.UUID    `json:"organization_id"`
	CreatedAt      time.Time    `json:"created_at"`
	Files          []FilePublic `json:"files"`
}

type OrganizationPublic struct {
	ID       uuid.UUID       `json:"id"`
	Name     string          `json:"name"`
	Projects []ProjectPublic `json:"projects"`
}

type PreferencePublic struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toOrganizationBasic(org model.Organization) OrganizationBasic {
	return OrganizationBasic{ID: org.ID, Name: org.Name}
}

func toUserPublic(user model.User) UserPublic {
	orgs := make([]OrganizationBasic, 0, len(user.Organizations))
	for _, org := range user.Organizations {
		orgs = append(orgs, toOrganizationBasic(org))
	}
	return UserPublic{ID: user.ID, Email: user.Email, Organizations: orgs}
}

func toFilePublic(file model.File) FilePublic {
	return FilePublic{
		ID:               file.ID,
		Path:             file.Path,
		Size:             file.Size,
		MimeType:         file.MimeType,
		OriginalFilename: file.OriginalFilename,
		CreatedAt:        file.CreatedAt,
		ProcessedAt:      file.ProcessedAt,
	}
}

func toProjectPublic(project model.Project) ProjectPublic {
	files := make([]FilePublic, 0, len(project.Files))
	for _, f := range project.Files {
		files = append(files, toFilePublic(f))
	}
	return ProjectPublic{
		ID:             project.ID,
		Name:           project.Name,
		Description:    project.Description,
		OrganizationID: project.OrganizationID,
		CreatedAt:      project.CreatedAt,
		Files:          files,
	}
}

func toPreferencePublic(pref model.Preference) PreferencePublic {
	return PreferencePublic{Key: pref.Key, Value: pref.Value, CreatedAt: pref.CreatedAt, UpdatedAt: pref.UpdatedAt}
}
