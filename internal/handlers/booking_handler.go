package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/ridefusion/booking-backend/internal/models"
	"github.com/ridefusion/booking-backend/internal/services"
	"github.com/ridefusion/booking-backend/internal/utils"
	"github.com/sirupsen/logrus"
)

// BookingHandler handles booking endpoints
type BookingHandler struct {
	bookingService *services.BookingOrchestratorService
	auditService   *services.AuditService
	rateLimiter    *services.RateLimitService
	logger         *logrus.Logger
}

// NewBookingHandler creates a new BookingHandler; auditService and
// rateLimiter may be nil
func NewBookingHandler(
	bookingService *services.BookingOrchestratorService,
	auditService *services.AuditService,
	rateLimiter *services.RateLimitService,
	logger *logrus.Logger,
) *BookingHandler {
	return &BookingHandler{
		bookingService: bookingService,
		auditService:   auditService,
		rateLimiter:    rateLimiter,
		logger:         logger,
	}
}

// ============================================================================
// CREATE BOOKING - POST /api/v1/rides/:ride_id/bookings
// ============================================================================

// CreateBooking books seats on a ride for the current passenger
// @Summary Book seats on a ride
// @Tags Bookings
// @Accept json
// @Produce json
// @Param Authorization header string true "Bearer token"
// @Param ride_id path string true "Ride ID"
// @Param request body models.CreateBookingRequest true "Seats to book"
// @Success 201 {object} models.CreateBookingResponse
// @Failure 400 {object} map[string]interface{} "Invalid seat count"
// @Failure 404 {object} map[string]interface{} "Ride not found"
// @Failure 409 {object} map[string]interface{} "Not enough seats or conflict"
// @Router /rides/{ride_id}/bookings [post]
func (h *BookingHandler) CreateBooking(c *gin.Context) {
	passengerID, ok := currentUser(c)
	if !ok {
		return
	}

	rideID, ok := uuidParam(c, "ride_id")
	if !ok {
		return
	}

	var req models.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": "invalid request: " + err.Error(),
			"code":    "VALIDATION_ERROR",
		})
		return
	}
	if err := req.Validate(); err != nil {
		respondError(c, h.logger, err)
		return
	}

	response, err := h.bookingService.CreateBooking(c.Request.Context(), rideID, passengerID, req.Seats)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.audit(c, passengerID, services.AuditBookingCreated, response.Booking)
	c.JSON(http.StatusCreated, response)
}

// ============================================================================
// TRANSITIONS - POST /api/v1/bookings/:booking_id/{confirm,cancel,approve,reject}
// ============================================================================

// ConfirmBooking verifies the one-time code and reserves the booking's seats
// @Summary Confirm a pending booking
// @Tags Bookings
// @Accept json
// @Produce json
// @Param Authorization header string true "Bearer token"
// @Param booking_id path string true "Booking ID"
// @Param request body models.ConfirmBookingRequest true "Confirmation code"
// @Success 200 {object} models.Booking
// @Failure 409 {object} map[string]interface{} "Not enough seats"
// @Failure 422 {object} map[string]interface{} "Invalid code"
// @Failure 429 {object} map[string]interface{} "Too many attempts"
// @Router /bookings/{booking_id}/confirm [post]
func (h *BookingHandler) ConfirmBooking(c *gin.Context) {
	passengerID, ok := currentUser(c)
	if !ok {
		return
	}

	bookingID, ok := uuidParam(c, "booking_id")
	if !ok {
		return
	}

	var req models.ConfirmBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": "invalid request: " + err.Error(),
			"code":    "VALIDATION_ERROR",
		})
		return
	}

	if h.rateLimiter != nil {
		if err := h.rateLimiter.AllowConfirmAttempt(bookingID.String(), passengerID.String(), utils.GetRealIP(c)); err != nil {
			respondError(c, h.logger, err)
			return
		}
	}

	booking, err := h.bookingService.ConfirmBooking(c.Request.Context(), bookingID, passengerID, req.Code)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.audit(c, passengerID, services.AuditBookingConfirmed, booking)
	c.JSON(http.StatusOK, booking)
}

// CancelBooking cancels the current passenger's booking
// @Summary Cancel a booking
// @Tags Bookings
// @Produce json
// @Param Authorization header string true "Bearer token"
// @Param booking_id path string true "Booking ID"
// @Success 200 {object} models.Booking
// @Router /bookings/{booking_id}/cancel [post]
func (h *BookingHandler) CancelBooking(c *gin.Context) {
	h.transition(c, services.AuditBookingCancelled, h.bookingService.CancelBooking)
}

// ApproveBooking lets the ride's driver confirm a booking
// @Summary Approve a booking (driver)
// @Tags Bookings
// @Produce json
// @Param Authorization header string true "Bearer token"
// @Param booking_id path string true "Booking ID"
// @Success 200 {object} models.Booking
// @Router /bookings/{booking_id}/approve [post]
func (h *BookingHandler) ApproveBooking(c *gin.Context) {
	h.transition(c, services.AuditBookingApproved, h.bookingService.ApproveBooking)
}

// RejectBooking lets the ride's driver cancel a booking
// @Summary Reject a booking (driver)
// @Tags Bookings
// @Produce json
// @Param Authorization header string true "Bearer token"
// @Param booking_id path string true "Booking ID"
// @Success 200 {object} models.Booking
// @Router /bookings/{booking_id}/reject [post]
func (h *BookingHandler) RejectBooking(c *gin.Context) {
	h.transition(c, services.AuditBookingRejected, h.bookingService.RejectBooking)
}

type transitionFunc func(ctx context.Context, bookingID, actorID uuid.UUID) (*models.Booking, error)

func (h *BookingHandler) transition(c *gin.Context, action string, apply transitionFunc) {
	actorID, ok := currentUser(c)
	if !ok {
		return
	}

	bookingID, ok := uuidParam(c, "booking_id")
	if !ok {
		return
	}

	booking, err := apply(c.Request.Context(), bookingID, actorID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.audit(c, actorID, action, booking)
	c.JSON(http.StatusOK, booking)
}

// ============================================================================
// LISTS
// ============================================================================

// ListMyBookings returns the current passenger's bookings, newest first
// @Summary List my bookings
// @Tags Bookings
// @Produce json
// @Param Authorization header string true "Bearer token"
// @Success 200 {object} map[string]interface{}
// @Router /bookings [get]
func (h *BookingHandler) ListMyBookings(c *gin.Context) {
	passengerID, ok := currentUser(c)
	if !ok {
		return
	}

	bookings, err := h.bookingService.ListPassengerBookings(c.Request.Context(), passengerID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"bookings": nonNil(bookings),
		"count":    len(bookings),
	})
}

// ListRideBookings returns a ride's bookings to its driver
// @Summary List bookings on my ride (driver)
// @Tags Bookings
// @Produce json
// @Param Authorization header string true "Bearer token"
// @Param ride_id path string true "Ride ID"
// @Success 200 {object} map[string]interface{}
// @Router /rides/{ride_id}/bookings [get]
func (h *BookingHandler) ListRideBookings(c *gin.Context) {
	driverID, ok := currentUser(c)
	if !ok {
		return
	}

	rideID, ok := uuidParam(c, "ride_id")
	if !ok {
		return
	}

	bookings, err := h.bookingService.ListRideBookings(c.Request.Context(), rideID, driverID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"bookings": nonNil(bookings),
		"count":    len(bookings),
	})
}

// audit records the event without failing the request
func (h *BookingHandler) audit(c *gin.Context, userID uuid.UUID, action string, booking *models.Booking) {
	if h.auditService == nil || booking == nil {
		return
	}
	err := h.auditService.LogBookingEvent(c.Request.Context(), userID, action, booking, utils.GetRealIP(c), utils.GetUserAgent(c))
	if err != nil {
		h.logger.WithError(err).WithField("audit_action", action).Warn("Failed to write audit log")
	}
}

func nonNil(bookings []models.Booking) []models.Booking {
	if bookings == nil {
		return []models.Booking{}
	}
	return bookings
}
