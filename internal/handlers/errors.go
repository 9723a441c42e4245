package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/damacus/your-files/internal/logger"
	"github.com/damacus/your-files/internal/middleware"
	"github.com/damacus/your-files/internal/models"
	"github.com/damacus/your-files/internal/services"
	"github.com/damacus/your-files/internal/storage"
)

// StatusFor maps an error returned by the services or the store to an HTTP
// status and a message safe to show the user.
func StatusFor(err error) (int, string) {
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Code, fmt.Sprintf("%v", httpErr.Message)
	}

	switch {
	case errors.Is(err, services.ErrInvalidName):
		return http.StatusBadRequest, "Invalid folder name"
	case errors.Is(err, services.ErrOutsideRoot):
		return http.StatusForbidden, "That location is outside your files"
	case errors.Is(err, services.ErrProtectedPrefix):
		return http.StatusForbidden, "That folder cannot be deleted"
	case errors.Is(err, services.ErrFolderExists):
		return http.StatusConflict, "A folder with that name already exists"
	case errors.Is(err, services.ErrUsageUnsupported):
		return http.StatusNotFound, "Bucket usage is not available"
	case errors.Is(err, services.ErrCredentials):
		return http.StatusBadGateway, "Could not obtain storage credentials"
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, "Object not found"
	case errors.Is(err, storage.ErrBucketNotFound):
		return http.StatusNotFound, "Bucket not found"
	case errors.Is(err, storage.ErrAccessDenied):
		return http.StatusForbidden, "Access denied"
	case errors.Is(err, storage.ErrThrottled):
		return http.StatusServiceUnavailable, "Storage is busy, try again shortly"
	}

	var storageErr *storage.StorageError
	if errors.As(err, &storageErr) {
		return http.StatusBadGateway, "Storage request failed"
	}
	return http.StatusInternalServerError, "Internal server error"
}

// ErrorHandler writes errors as JSON for API routes and as the error dialog
// for pages.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code, message := StatusFor(err)
	requestID := middleware.GetRequestID(c)

	log := logger.Ctx(c.Request().Context())
	if code >= 500 {
		log.Error().Err(err).Int("status", code).Msg("request failed")
	} else {
		log.Debug().Err(err).Int("status", code).Msg("request rejected")
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(code)
	} else if wantsHTML(c) {
		err = c.Render(code, "error_dialog", models.ErrorDialog{
			Message:   message,
			RequestID: requestID,
		})
	} else {
		err = c.JSON(code, map[string]interface{}{
			"error":      message,
			"request_id": requestID,
		})
	}
	if err != nil {
		log.Error().Err(err).Msg("failed to write error response")
	}
}

func wantsHTML(c echo.Context) bool {
	if strings.HasPrefix(c.Request().URL.Path, "/api/") || c.Echo().Renderer == nil {
		return false
	}
	return strings.Contains(c.Request().Header.Get(echo.HeaderAccept), echo.MIMETextHTML)
}
