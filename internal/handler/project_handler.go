package handler

import (
	"context"
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

type ProjectRequest struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
}

// ListProjects returns the projects of an organization
func ListProjects(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return writeError(c, err)
	}

	org, err := loadOrganization(c, user)
	if err != nil {
		return writeError(c, err)
	}

	defer prometheus.TrackDBOperation("query")(time.Now())

	var projects []model.Project
	err = database.GetDB().
		Preload("Files", func(db *gorm.DB) *gorm.DB { return db.Order("created_at") }).
		Where("organization_id = ?", org.ID).
		Order("created_at").
		Find(&projects).Error
	if err != nil {
		logger.FromContext(c).Error("Failed to list projects", zap.Error(err))
		return writeError(c, errDatabase)
	}

	result := make([]ProjectPublic, 0, len(projects))
	for _, p := range projects {
		result = append(result, toProjectPublic(p))
	}
	return c.JSON(http.StatusOK, echo.Map{"projects": result})
}

func CreateProject(c echo.Context) error {
	log := logger.FromContext(c)

	user, err := currentUser(c)
	if err != nil {
		return writeError(c, err)
	}

	org, err := loadOrganization(c, user)
	if err != nil {
		return writeError(c, err)
	}

	var req ProjectRequest
	if err := bindAndValidate(c, &req); err != nil {
		return writeError(c, err)
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())

	project := model.Project{
		Name:           req.Name,
		Description:    req.Description,
		OrganizationID: org.ID,
	}
	if err := database.GetDB().Create(&project).Error; err != nil {
		log.Error("Failed to create project", zap.Error(err))
		return writeError(c, errDatabase)
	}

	log.Info("Project created",
		zap.String("project_id", project.ID.String()),
		zap.String("organization_id", org.ID.String()))
	return c.JSON(http.StatusCreated, toProjectPublic(project))
}

func GetProject(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return writeError(c, err)
	}

	_, project, err := loadProject(c, user)
	if err != nil {
		return writeError(c, err)
	}

	if err := database.GetDB().Where("project_id = ?", project.ID).Order("created_at").Find(&project.Files).Error; err != nil {
		logger.FromContext(c).Error("Failed to load files", zap.Error(err))
		return writeError(c, errDatabase)
	}

	return c.JSON(http.StatusOK, toProjectPublic(*project))
}

func UpdateProject(c echo.Context) error {
	log := logger.FromContext(c)

	user, err := currentUser(c)
	if err != nil {
		return writeError(c, err)
	}

	_, project, err := loadProject(c, user)
	if err != nil {
		return writeError(c, err)
	}

	var req ProjectRequest
	if err := bindAndValidate(c, &req); err != nil {
		return writeError(c, err)
	}

	defer prometheus.TrackDBOperation("update")(time.Now())

	project.Name = req.Name
	project.Description = req.Description
	err = database.GetDB().Model(project).Updates(map[string]any{
		"name":        req.Name,
		"description": req.Description,
	}).Error
	if err != nil {
		log.Error("Failed to update project", zap.Error(err))
		return writeError(c, errDatabase)
	}

	if err := database.GetDB().Where("project_id = ?", project.ID).Order("created_at").Find(&project.Files).Error; err != nil {
		log.Error("Failed to load files", zap.Error(err))
		return writeError(c, errDatabase)
	}

	log.Info("Project updated", zap.String("project_id", project.ID.String()))
	return c.JSON(http.StatusOK, toProjectPublic(*project))
}

// DeleteProject soft deletes the project, removes its file rows and then
// deletes the stored objects. Storage failures are logged only.
func DeleteProject(c echo.Context) error {
	log := logger.FromContext(c)

	user, err := currentUser(c)
	if err != nil {
		return writeError(c, err)
	}

	_, project, err := loadProject(c, user)
	if err != nil {
		return writeError(c, err)
	}

	defer prometheus.TrackDBOperation("delete")(time.Now())

	var files []model.File
	tx := database.GetDB().Begin()
	if tx.Error != nil {
		log.Error("Failed to begin transaction", zap.Error(tx.Error))
		return writeError(c, errDatabase)
	}
	defer tx.Rollback()

	if err := tx.Where("project_id = ?", project.ID).Find(&files).Error; err != nil {
		log.Error("Failed to load files", zap.Error(err))
		return writeError(c, errDatabase)
	}
	if err := tx.Where("project_id = ?", project.ID).Delete(&model.File{}).Error; err != nil {
		log.Error("Failed to delete files", zap.Error(err))
		return writeError(c, errDatabase)
	}
	if err := tx.Delete(project).Error; err != nil {
		log.Error("Failed to delete project", zap.Error(err))
		return writeError(c, errDatabase)
	}
	if err := tx.Commit().Error; err != nil {
		log.Error("Failed to commit transaction", zap.Error(err))
		return writeError(c, errDatabase)
	}

	removeObjects(c.Request().Context(), log, files)

	log.Info("Project deleted",
		zap.String("project_id", project.ID.String()),
		zap.Int("files", len(files)))
	return c.NoContent(http.StatusNoContent)
}

func removeObjects(ctx context.Context, log *zap.Logger, files []model.File) {
	if deps.Storage == nil {
		return
	}
	for _, f := range files {
		if err := deps.Storage.Delete(ctx, f.Path); err != nil {
			log.Warn("Failed to delete stored object", zap.String("key", f.Path), zap.Error(err))
		}
	}
}
