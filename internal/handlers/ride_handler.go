package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ridefusion/booking-backend/internal/models"
	"github.com/ridefusion/booking-backend/internal/services"
	"github.com/sirupsen/logrus"
)

// RideHandler handles ride endpoints
type RideHandler struct {
	rideService *services.RideService
	logger      *logrus.Logger
}

// NewRideHandler creates a new RideHandler
func NewRideHandler(rideService *services.RideService, logger *logrus.Logger) *RideHandler {
	return &RideHandler{
		rideService: rideService,
		logger:      logger,
	}
}

// CreateRide offers a new ride as the current driver
// @Summary Offer a ride (driver)
// @Tags Rides
// @Accept json
// @Produce json
// @Param Authorization header string true "Bearer token"
// @Param request body models.CreateRideRequest true "Ride details"
// @Success 201 {object} models.Ride
// @Failure 400 {object} map[string]interface{} "Validation error"
// @Router /rides [post]
func (h *RideHandler) CreateRide(c *gin.Context) {
	driverID, ok := currentUser(c)
	if !ok {
		return
	}

	var req models.CreateRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": "invalid request: " + err.Error(),
			"code":    "VALIDATION_ERROR",
		})
		return
	}

	ride, err := h.rideService.CreateRide(c.Request.Context(), driverID, &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, ride)
}

// GetRide returns a ride with its current availability
// @Summary Get a ride
// @Tags Rides
// @Produce json
// @Param ride_id path string true "Ride ID"
// @Success 200 {object} models.Ride
// @Failure 404 {object} map[string]interface{} "Ride not found"
// @Router /rides/{ride_id} [get]
func (h *RideHandler) GetRide(c *gin.Context) {
	rideID, ok := uuidParam(c, "ride_id")
	if !ok {
		return
	}

	ride, err := h.rideService.GetRide(c.Request.Context(), rideID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, ride)
}

// DeleteRide removes the current driver's ride and its bookings
// @Summary Delete a ride (driver)
// @Tags Rides
// @Produce json
// @Param Authorization header string true "Bearer token"
// @Param ride_id path string true "Ride ID"
// @Success 200 {object} map[string]interface{}
// @Router /rides/{ride_id} [delete]
func (h *RideHandler) DeleteRide(c *gin.Context) {
	driverID, ok := currentUser(c)
	if !ok {
		return
	}

	rideID, ok := uuidParam(c, "ride_id")
	if !ok {
		return
	}

	if err := h.rideService.DeleteRide(c.Request.Context(), rideID, driverID); err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Ride deleted"})
}
