package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"docvision-service/internal/model"
	"docvision-service/pkg/database"
	"docvision-service/pkg/logger"
	"docvision-service/prometheus"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type UserRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

var errEmailExists = newAPIError(http.StatusConflict, "Email already exists")

func hashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CreateUser registers a user together with a Default organization
func CreateUser(c echo.Context) error {
	log := logger.FromContext(c)

	var req UserRequest
	if err := bindAndValidate(c, &req); err != nil {
		return writeError(c, err)
	}
	email := normalizeEmail(req.Email)

	hashed, err := hashPassword(req.Password)
	if err != nil {
		log.Error("Failed to hash password", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to process password"})
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())

	user := model.User{
		Email:         email,
		Password:      hashed,
		Organizations: []model.Organization{{Name: model.DefaultOrganizationName}},
	}

	err = database.GetDB().Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return errEmailExists
		}
		return tx.Create(&user).Error
	})
	if err != nil {
		if errors.Is(err, errEmailExists) || errors.Is(err, gorm.ErrDuplicatedKey) {
			log.Info("Registration with existing email", zap.String("email", email))
			return writeError(c, errEmailExists)
		}
		log.Error("Failed to create user", zap.Error(err))
		return writeError(c, errDatabase)
	}

	prometheus.RegisterCounter.Inc()
	log.Info("User created", zap.String("user_id", user.ID.String()), zap.String("email", user.Email))

	return c.JSON(http.StatusCreated, toUserPublic(user))
}

// GetCurrentUser returns the authenticated user with their organizations
func GetCurrentUser(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return writeError(c, err)
	}

	var loaded model.User
	if err := database.GetDB().Preload("Organizations").First(&loaded, "id = ?", user.ID).Error; err != nil {
		logger.FromContext(c).Error("Failed to load user", zap.Error(err))
		return writeError(c, errDatabase)
	}

	return c.JSON(http.StatusOK, toUserPublic(loaded))
}

// ListUsers returns the users that share at least one organization with the caller
func ListUsers(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return writeError(c, err)
	}

	defer prometheus.TrackDBOperation("query")(time.Now())

	shared := database.GetDB().Table("organization_user").
		Select("organization_id").
		Where("user_id = ?", user.ID)
	members := database.GetDB().Table("organization_user").
		Select("user_id").
		Where("organization_id IN (?)", shared)

	var users []model.User
	err = database.GetDB().
		Preload("Organizations").
		Where("id IN (?)", members).
		Order("email").
		Find(&users).Error
	if err != nil {
		logger.FromContext(c).Error("Failed to list users", zap.Error(err))
		return writeError(c, errDatabase)
	}

	result := make([]UserPublic, 0, len(users))
	for _, u := range users {
		result = append(result, toUserPublic(u))
	}
	return c.JSON(http.StatusOK, echo.Map{"users": result})
}

// UpdateUser changes the email and password of the caller
func UpdateUser(c echo.Context) error {
	log := logger.FromContext(c)

	user, err := currentUser(c)
	if err != nil {
		return writeError(c, err)
	}
	if !isSelf(c.Param("user_id"), user) {
		log.Warn("Attempt to update another user", zap.String("target", c.Param("user_id")))
		return writeError(c, errNotEnoughPermissions)
	}

	var req UserRequest
	if err := bindAndValidate(c, &req); err != nil {
		return writeError(c, err)
	}
	email := normalizeEmail(req.Email)

	hashed, err := hashPassword(req.Password)
	if err != nil {
		log.Error("Failed to hash password", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to process password"})
	}

	defer prometheus.TrackDBOperation("update")(time.Now())

	err = database.GetDB().Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.User{}).Where("email = ? AND id <> ?", email, user.ID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return errEmailExists
		}
		return tx.Model(&model.User{}).Where("id = ?", user.ID).Updates(map[string]any{
			"email":    email,
			"password": hashed,
		}).Error
	})
	if err != nil {
		if errors.Is(err, errEmailExists) || errors.Is(err, gorm.ErrDuplicatedKey) {
			return writeError(c, errEmailExists)
		}
		log.Error("Failed to update user", zap.Error(err))
		return writeError(c, errDatabase)
	}

	var updated model.User
	if err := database.GetDB().Preload("Organizations").First(&updated, "id = ?", user.ID).Error; err != nil {
		log.Error("Failed to reload user", zap.Error(err))
		return writeError(c, errDatabase)
	}

	log.Info("User updated", zap.String("user_id", user.ID.String()))
	return c.JSON(http.StatusOK, toUserPublic(updated))
}

// DeleteUser removes the caller and their memberships
func DeleteUser(c echo.Context) error {
	log := logger.FromContext(c)

	user, err := currentUser(c)
	if err != nil {
		return writeError(c, err)
	}
	if !isSelf(c.Param("user_id"), user) {
		log.Warn("Attempt to delete another user", zap.String("target", c.Param("user_id")))
		return writeError(c, errNotEnoughPermissions)
	}

	defer prometheus.TrackDBOperation("delete")(time.Now())

	err = database.GetDB().Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(user).Association("Organizations").Clear(); err != nil {
			return err
		}
		return tx.Delete(&model.User{}, "id = ?", user.ID).Error
	})
	if err != nil {
		log.Error("Failed to delete user", zap.Error(err))
		return writeError(c, errDatabase)
	}

	log.Info("User deleted", zap.String("user_id", user.ID.String()))
	return c.JSON(http.StatusOK, echo.Map{"message": "User deleted"})
}

// isSelf reports whether the path id names the caller, in any UUID spelling
func isSelf(param string, user *model.User) bool {
	id, err := uuid.Parse(param)
	return err == nil && id == user.ID
}
