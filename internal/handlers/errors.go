package handlers

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/ridefusion/booking-backend/internal/middleware"
	"github.com/ridefusion/booking-backend/internal/models"
	"github.com/ridefusion/booking-backend/internal/services"
	"github.com/sirupsen/logrus"
)

// respondError maps the booking error taxonomy onto an HTTP response
func respondError(c *gin.Context, logger *logrus.Logger, err error) {
	var capacityErr *models.CapacityExceededError
	var rateLimitErr *services.RateLimitError

	switch {
	case errors.As(err, &rateLimitErr):
		c.Header("Retry-After", strconv.Itoa(int(math.Ceil(rateLimitErr.RetryAfter.Seconds()))))
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":   "rate_limited",
			"message": rateLimitErr.Message,
			"code":    "RATE_LIMITED",
		})
	case errors.As(err, &capacityErr):
		c.JSON(http.StatusConflict, gin.H{
			"error":     "capacity_exceeded",
			"message":   capacityErr.Error(),
			"code":      "CAPACITY_EXCEEDED",
			"remaining": capacityErr.Remaining,
		})
	case errors.Is(err, models.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": err.Error(),
			"code":    "NOT_FOUND",
		})
	case errors.Is(err, models.ErrUnauthorized):
		c.JSON(http.StatusForbidden, gin.H{
			"error":   "forbidden",
			"message": err.Error(),
			"code":    "UNAUTHORIZED",
		})
	case errors.Is(err, models.ErrInvalidCode):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":   "invalid_code",
			"message": err.Error(),
			"code":    "INVALID_CODE",
		})
	case errors.Is(err, models.ErrInvalidSeatCount),
		errors.Is(err, models.ErrInvalidRide):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": err.Error(),
			"code":    "VALIDATION_ERROR",
		})
	case errors.Is(err, models.ErrInvalidTransition):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_transition",
			"message": err.Error(),
			"code":    "INVALID_TRANSITION",
		})
	case errors.Is(err, models.ErrConfirmationNotRequired):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "confirmation_not_required",
			"message": err.Error(),
			"code":    "CONFIRMATION_NOT_REQUIRED",
		})
	case errors.Is(err, models.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "conflict",
			"message": "The ride is busy. Please try again.",
			"code":    "CONFLICT",
		})
	default:
		logger.WithError(err).WithField("path", c.Request.URL.Path).Error("Booking request failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "unavailable",
			"message": "Booking service is temporarily unavailable",
			"code":    "UNAVAILABLE",
		})
	}
}

// currentUser returns the authenticated user or writes a 401
func currentUser(c *gin.Context) (uuid.UUID, bool) {
	userCtx, exists := middleware.GetUserContext(c)
	if !exists || userCtx.UserID == uuid.Nil {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   "unauthorized",
			"message": "Unable to identify current user",
			"code":    "MISSING_USER_CONTEXT",
		})
		return uuid.Nil, false
	}
	return userCtx.UserID, true
}

// uuidParam parses a path parameter or writes a 400
func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": "invalid " + name,
			"code":    "VALIDATION_ERROR",
		})
		return uuid.Nil, false
	}
	return id, true
}
