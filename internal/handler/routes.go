package handler

import (
	"docvision-service/internal/middleware"
	"docvision-service/prometheus"

	"github.com/labstack/echo/v4"
)

// RegisterRoutes mounts every endpoint of the service on e
func RegisterRoutes(e *echo.Echo) {
	e.GET("/", Root)
	e.GET("/health", HealthCheck)
	e.GET("/metrics", echo.WrapHandler(prometheus.GetPrometheusHandler()))

	e.POST("/users", CreateUser)
	users := e.Group("/users", middleware.AuthMiddleware)
	users.GET("", ListUsers)
	users.GET("/me", GetCurrentUser)
	users.PUT("/:user_id", UpdateUser)
	users.DELETE("/:user_id", DeleteUser)

	e.POST("/auth/token", Login)
	e.POST("/auth/refresh", Refresh)
	e.POST("/auth/refresh_token", RefreshFromAccessToken, middleware.AuthMiddleware)

	orgs := e.Group("/organizations", middleware.AuthMiddleware)
	orgs.GET("", ListOrganizations)
	orgs.POST("", CreateOrganization)
	orgs.GET("/:organization_id", GetOrganization)
	orgs.POST("/:organization_id/members", AddMember)
	orgs.DELETE("/:organization_id/members/:user_id", RemoveMember)

	projects := orgs.Group("/:organization_id/projects")
	projects.GET("", ListProjects)
	projects.POST("", CreateProject)
	projects.GET("/:project_id", GetProject)
	projects.PUT("/:project_id", UpdateProject)
	projects.DELETE("/:project_id", DeleteProject)

	files := projects.Group("/:project_id/files")
	files.GET("", ListFiles)
	files.POST("", UploadFile)
	files.GET("/:file_id", GetFile)
	files.DELETE("/:file_id", DeleteFile)
	files.POST("/:file_id/extract", ExtractFile)
	files.POST("/:file_id/detections", DetectObjects)

	prefs := e.Group("/preferences", middleware.AuthMiddleware)
	prefs.GET("", ListPreferences)
	prefs.PUT("", UpsertPreferences)
}
