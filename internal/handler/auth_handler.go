package handler

import (
	"errors"
	"net/http"
	"time"

	"docvision-service/internal/middleware"
	"docvision-service/internal/model"
	"docvision-service/pkg/database"
	"docvision-service/pkg/jwtutil"
	"docvision-service/pkg/logger"
	"docvision-service/prometheus"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// TokenRequest follows the OAuth2 password flow field names
type TokenRequest struct {
	Username string `json:"username" form:"username" validate:"required"`
	Password string `json:"password" form:"password" validate:"required"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" form:"refresh_token" validate:"required"`
}

// Login exchanges email and password for a token pair
func Login(c echo.Context) error {
	log := logger.FromContext(c)

	var req TokenRequest
	if err := bindAndValidate(c, &req); err != nil {
		prometheus.RecordAuthError("invalid_request")
		return writeError(c, err)
	}

	email := normalizeEmail(req.Username)

	defer prometheus.TrackDBOperation("query")(time.Now())

	var user model.User
	if err := database.GetDB().Where("email = ?", email).First(&user).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Error("Failed to load user", zap.Error(err))
			return writeError(c, errDatabase)
		}
		log.Info("Login failed: unknown email", zap.String("email", email))
		prometheus.RecordAuthError("login_failure")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Incorrect email or password"})
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		log.Info("Login failed: wrong password", zap.String("email", email))
		prometheus.RecordAuthError("login_failure")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Incorrect email or password"})
	}

	return issueTokens(c, user.Email)
}

// Refresh exchanges a refresh token from the body for a new token pair
func Refresh(c echo.Context) error {
	log := logger.FromContext(c)

	var req RefreshRequest
	if err := bindAndValidate(c, &req); err != nil {
		prometheus.RecordAuthError("invalid_request")
		return middleware.Unauthorized(c)
	}

	claims, err := jwtutil.ValidateToken(req.RefreshToken, jwtutil.TokenTypeRefresh)
	if err != nil {
		log.Warn("Invalid refresh token", zap.Error(err))
		prometheus.RecordAuthError("invalid_refresh_token")
		return middleware.Unauthorized(c)
	}

	var count int64
	if err := database.GetDB().Model(&model.User{}).Where("email = ?", claims.Subject).Count(&count).Error; err != nil {
		log.Error("Failed to load refresh token subject", zap.Error(err))
		return writeError(c, errDatabase)
	}
	if count == 0 {
		prometheus.RecordAuthError("unknown_user")
		return middleware.Unauthorized(c)
	}

	return issueTokens(c, claims.Subject)
}

// RefreshFromAccessToken renews the pair of an already authenticated user
func RefreshFromAccessToken(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return middleware.Unauthorized(c)
	}
	return issueTokens(c, user.Email)
}

func issueTokens(c echo.Context, email string) error {
	pair, err := jwtutil.GenerateTokenPair(email)
	if err != nil {
		logger.FromContext(c).Error("Failed to sign tokens", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not issue token"})
	}

	prometheus.LoginCounter.Inc()
	return c.JSON(http.StatusOK, pair)
}
