package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/timmy/textrun/internal/api/middleware"
	"github.com/timmy/textrun/internal/repository"
	"github.com/timmy/textrun/internal/service"
)

// statusFor maps service and store errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, repository.ErrJobNotFound),
		errors.Is(err, repository.ErrRunNotFound),
		errors.Is(err, service.ErrNoActiveJob):
		return http.StatusNotFound
	case errors.Is(err, service.ErrJobAlreadyRunning),
		errors.Is(err, repository.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, service.ErrIndexDisabled),
		errors.Is(err, service.ErrStorageDisabled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		middleware.GetLogger(c).WithError(err).Error("Request failed")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
