package handler

import (
	"errors"
	"net/http"
	"time"

	"docvision-service/internal/model"
	"docvision-service/pkg/database"
	"docvision-service/pkg/logger"
	"docvision-service/prometheus"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type OrganizationRequest struct {
	Name string `json:"name" validate:"required"`
}

type MemberRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// ListOrganizations returns the organizations the caller belongs to
func ListOrganizations(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return writeError(c, err)
	}

	defer prometheus.TrackDBOperation("query")(time.Now())

	var orgs []model.Organization
	if err := database.GetDB().Model(user).Order("name").Association("Organizations").Find(&orgs); err != nil {
		logger.FromContext(c).Error("Failed to list organizations", zap.Error(err))
		return writeError(c, errDatabase)
	}

	result := make([]OrganizationBasic, 0, len(orgs))
	for _, org := range orgs {
		result = append(result, toOrganizationBasic(org))
	}
	return c.JSON(http.StatusOK, echo.Map{"organizations": result})
}

// CreateOrganization creates an organization with the caller as its first member
func CreateOrganization(c echo.Context) error {
	log := logger.FromContext(c)

	user, err := currentUser(c)
	if err != nil {
		return writeError(c, err)
	}

	var req OrganizationRequest
	if err := bindAndValidate(c, &req); err != nil {
		return writeError(c, err)
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())

	org := model.Organization{Name: req.Name}
	err = database.GetDB().Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&org).Error; err != nil {
			return err
		}
		return tx.Model(&org).Association("Users").Append(user)
	})
	if err != nil {
		log.Error("Failed to create organization", zap.Error(err))
		return writeError(c, errDatabase)
	}

	log.Info("Organization created",
		zap.String("organization_id", org.ID.String()),
		zap.String("user_id", user.ID.String()))
	return c.JSON(http.StatusCreated, toOrganizationBasic(org))
}

// GetOrganization returns an organization with its projects and their files
func GetOrganization(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return writeError(c, err)
	}

	org, err := loadOrganization(c, user)
	if err != nil {
		return writeError(c, err)
	}

	var projects []model.Project
	err = database.GetDB().
		Preload("Files", func(db *gorm.DB) *gorm.DB { return db.Order("created_at") }).
		Where("organization_id = ?", org.ID).
		Order("created_at").
		Find(&projects).Error
	if err != nil {
		logger.FromContext(c).Error("Failed to load projects", zap.Error(err))
		return writeError(c, errDatabase)
	}

	result := OrganizationPublic{ID: org.ID, Name: org.Name, Projects: make([]ProjectPublic, 0, len(projects))}
	for _, p := range projects {
		result.Projects = append(result.Projects, toProjectPublic(p))
	}
	return c.JSON(http.StatusOK, result)
}

// AddMember adds an existing user to the organization by email
func AddMember(c echo.Context) error {
	log := logger.FromContext(c)

	user, err := currentUser(c)
	if err != nil {
		return writeError(c, err)
	}

	org, err := loadOrganization(c, user)
	if err != nil {
		return writeError(c, err)
	}

	var req MemberRequest
	if err := bindAndValidate(c, &req); err != nil {
		return writeError(c, err)
	}

	var member model.User
	if err := database.GetDB().Where("email = ?", normalizeEmail(req.Email)).First(&member).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "User not found."})
		}
		log.Error("Failed to load user", zap.Error(err))
		return writeError(c, errDatabase)
	}

	already, err := isMember(org.ID, member.ID)
	if err != nil {
		log.Error("Failed to check membership", zap.Error(err))
		return writeError(c, errDatabase)
	}

	status := http.StatusOK
	if !already {
		if err := database.GetDB().Model(org).Association("Users").Append(&member); err != nil {
			log.Error("Failed to add member", zap.Error(err))
			return writeError(c, errDatabase)
		}
		status = http.StatusCreated
		log.Info("Member added",
			zap.String("organization_id", org.ID.String()),
			zap.String("member_id", member.ID.String()))
	}

	var loaded model.User
	if err := database.GetDB().Preload("Organizations").First(&loaded, "id = ?", member.ID).Error; err != nil {
		log.Error("Failed to load member", zap.Error(err))
		return writeError(c, errDatabase)
	}
	return c.JSON(status, toUserPublic(loaded))
}

// RemoveMember removes a user from the organization, keeping at least one member
func RemoveMember(c echo.Context) error {
	log := logger.FromContext(c)

	user, err := currentUser(c)
	if err != nil {
		return writeError(c, err)
	}

	org, err := loadOrganization(c, user)
	if err != nil {
		return writeError(c, err)
	}

	memberID, err := parseIDParam(c, "user_id", newAPIError(http.StatusNotFound, "User not found."))
	if err != nil {
		return writeError(c, err)
	}

	defer prometheus.TrackDBOperation("delete")(time.Now())

	err = database.GetDB().Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Table("organization_user").Where("organization_id = ?", org.ID).Count(&count).Error; err != nil {
			return err
		}
		res := tx.Exec("DELETE FROM organization_user WHERE organization_id = ? AND user_id = ?", org.ID, memberID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return newAPIError(http.StatusNotFound, "User not found.")
		}
		if count <= 1 {
			return newAPIError(http.StatusBadRequest, "Cannot remove the last member of an organization.")
		}
		return nil
	})
	if err != nil {
		var apiErr *apiError
		if !errors.As(err, &apiErr) {
			log.Error("Failed to remove member", zap.Error(err))
			err = errDatabase
		}
		return writeError(c, err)
	}

	log.Info("Member removed",
		zap.String("organization_id", org.ID.String()),
		zap.String("member_id", memberID.String()))
	return c.NoContent(http.StatusNoContent)
}
