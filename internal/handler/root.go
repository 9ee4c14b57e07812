package handler

import (
	"net/http"

	"docvision-service/pkg/database"
	"docvision-service/pkg/logger"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const serviceName = "docvision-service"

func Root(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"message": "hello"})
}

// HealthCheck reports liveness; ?check=db also pings the database
func HealthCheck(c echo.Context) error {
	log := logger.FromContext(c)

	response := echo.Map{
		"status":  "healthy",
		"service": serviceName,
	}

	if c.QueryParam("check") == "db" {
		sqlDB, err := database.GetDB().DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request().Context())
		}
		if err != nil {
			log.Error("Database health check failed", zap.Error(err))
			response["status"] = "unhealthy"
			response["db_status"] = "error"
			return c.JSON(http.StatusServiceUnavailable, response)
		}
		response["db_status"] = "ok"
	}

	return c.JSON(http.StatusOK, response)
}
