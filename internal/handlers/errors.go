package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/parium/parium-api/internal/location"
	"github.com/parium/parium-api/internal/services"
	"github.com/parium/parium-api/internal/supabase"
)

// statusFor maps service sentinels onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrNotFound), errors.Is(err, location.ErrNotFound), supabase.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, services.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, services.ErrConflict), errors.Is(err, services.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, services.ErrInvalidInput), errors.Is(err, location.ErrInvalidPostalCode):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrLLMDisabled):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		msg = "internal error"
	}
	c.JSON(status, gin.H{"error": msg})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
}

// cached renders a cache.Result-like payload with its freshness.
func cached(c *gin.Context, data any, isCached, stale bool) {
	c.JSON(http.StatusOK, gin.H{"data": data, "cached": isCached, "stale": stale})
}
