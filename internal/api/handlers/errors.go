package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/attendance/internal/models"
)

// errorStatus maps domain errors onto HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, models.ErrIdentityNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrNoFaceDetected), errors.Is(err, models.ErrInvalidIdentity):
		return http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrCameraUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	status := errorStatus(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
