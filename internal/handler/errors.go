package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// apiError is returned by lookup helpers and rendered as {"error": message}
type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	return e.Message
}

func newAPIError(status int, message string) *apiError {
	return &apiError{Status: status, Message: message}
}

var (
	errOrganizationNotFound = newAPIError(http.StatusNotFound, "Organization not found.")
	errNotMember            = newAPIError(http.StatusForbidden, "Not a member of this organization.")
	errProjectNotFound      = newAPIError(http.StatusNotFound, "Project not found.")
	errFileNotFound         = newAPIError(http.StatusNotFound, "File not found.")
	errNotEnoughPermissions = newAPIError(http.StatusForbidden, "Not enough permissions")
	errDatabase             = newAPIError(http.StatusInternalServerError, "database error")
)

func writeError(c echo.Context, err error) error {
	var apiErr *apiError
	if errors.As(err, &apiErr) {
		return c.JSON(apiErr.Status, echo.Map{"error": apiErr.Message})
	}
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal server error"})
}
