package handler

import (
	"errors"
	"net/http"
	"time"

	"docvision-service/internal/middleware"
	"docvision-service/internal/model"
	"docvision-service/pkg/database"
	"docvision-service/pkg/logger"
	"docvision-service/prometheus"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func currentUser(c echo.Context) (*model.User, error) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return nil, newAPIError(http.StatusUnauthorized, "Could not validate credentials")
	}
	return user, nil
}

func parseIDParam(c echo.Context, name string, notFound *apiError) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		// A malformed id can never match a row
		return uuid.Nil, notFound
	}
	return id, nil
}

func isMember(orgID, userID uuid.UUID) (bool, error) {
	var count int64
	err := database.GetDB().Table("organization_user").
		Where("organization_id = ? AND user_id = ?", orgID, userID).
		Count(&count).Error
	return count > 0, err
}

// loadOrganization resolves :organization_id and checks that user belongs to it.
// Unknown organizations are 404, organizations of other users are 403.
func loadOrganization(c echo.Context, user *model.User) (*model.Organization, error) {
	log := logger.FromContext(c)

	orgID, err := parseIDParam(c, "organization_id", errOrganizationNotFound)
	if err != nil {
		return nil, err
	}

	defer prometheus.TrackDBOperation("query")(time.Now())

	var org model.Organization
	if err := database.GetDB().First(&org, "id = ?", orgID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errOrganizationNotFound
		}
		log.Error("Failed to load organization", zap.Error(err))
		return nil, errDatabase
	}

	member, err := isMember(org.ID, user.ID)
	if err != nil {
		log.Error("Failed to check membership", zap.Error(err))
		return nil, errDatabase
	}
	if !member {
		log.Warn("Organization access denied",
			zap.String("organization_id", org.ID.String()),
			zap.String("user_id", user.ID.String()))
		prometheus.RecordAuthError("organization_access_denied")
		return nil, errNotMember
	}

	return &org, nil
}

// loadProject resolves :project_id inside an organization the user can access
func loadProject(c echo.Context, user *model.User) (*model.Organization, *model.Project, error) {
	org, err := loadOrganization(c, user)
	if err != nil {
		return nil, nil, err
	}

	projectID, err := parseIDParam(c, "project_id", errProjectNotFound)
	if err != nil {
		return nil, nil, err
	}

	var project model.Project
	err = database.GetDB().
		Where("id = ? AND organization_id = ?", projectID, org.ID).
		First(&project).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, errProjectNotFound
		}
		logger.FromContext(c).Error("Failed to load project", zap.Error(err))
		return nil, nil, errDatabase
	}

	return org, &project, nil
}

// loadFile resolves :file_id inside a project the user can access
func loadFile(c echo.Context, user *model.User) (*model.Project, *model.File, error) {
	_, project, err := loadProject(c, user)
	if err != nil {
		return nil, nil, err
	}

	fileID, err := parseIDParam(c, "file_id", errFileNotFound)
	if err != nil {
		return nil, nil, err
	}

	var file model.File
	err = database.GetDB().
		Where("id = ? AND project_id = ?", fileID, project.ID).
		First(&file).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, errFileNotFound
		}
		logger.FromContext(c).Error("Failed to load file", zap.Error(err))
		return nil, nil, errDatabase
	}

	return project, &file, nil
}
