package middleware

import (
	"errors"
	"net/http"
	"strings"

	"docvision-service/internal/model"
	"docvision-service/pkg/database"
	"docvision-service/pkg/jwtutil"
	"docvision-service/pkg/logger"
	"docvision-service/prometheus"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	UserKey    = "user"
	UserIDKey  = "user_id"
	EmailKey   = "email"
	authScheme = "bearer"
)

// Unauthorized writes the 401 answer shared by every credential failure
func Unauthorized(c echo.Context) error {
	c.Response().Header().Set(echo.HeaderWWWAuthenticate, "Bearer")
	return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Could not validate credentials"})
}

// BearerToken extracts the token from an "Authorization: Bearer ..." header
func BearerToken(c echo.Context) (string, bool) {
	authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
	parts := strings.Fields(authHeader)
	if len(parts) != 2 || strings.ToLower(parts[0]) != authScheme {
		return "", false
	}
	return parts[1], true
}

// AuthMiddleware validates the access token and loads the current user
func AuthMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		log := logger.FromContext(c)

		tokenString, ok := BearerToken(c)
		if !ok {
			log.Debug("Missing or malformed Authorization header")
			prometheus.RecordAuthError("missing_token")
			return Unauthorized(c)
		}

		claims, err := jwtutil.ValidateToken(tokenString, jwtutil.TokenTypeAccess)
		if err != nil {
			log.Warn("Invalid JWT token", zap.Error(err))
			prometheus.RecordAuthError("invalid_token")
			return Unauthorized(c)
		}

		var user model.User
		if err := database.GetDB().Where("email = ?", claims.Subject).First(&user).Error; err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				log.Error("Failed to load token subject", zap.Error(err))
			}
			prometheus.RecordAuthError("unknown_user")
			return Unauthorized(c)
		}

		c.Set(UserKey, &user)
		c.Set(UserIDKey, user.ID)
		c.Set(EmailKey, user.Email)

		return next(c)
	}
}

// CurrentUser returns the user stored by AuthMiddleware
func CurrentUser(c echo.Context) (*model.User, bool) {
	user, ok := c.Get(UserKey).(*model.User)
	return user, ok && user != nil
}
