package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/ridefusion/booking-backend/internal/middleware"
	"github.com/ridefusion/booking-backend/pkg/jwt"
	"github.com/sirupsen/logrus"
)

// RegisterRoutes mounts the ride and booking endpoints on group
func RegisterRoutes(group *gin.RouterGroup, rides *RideHandler, bookings *BookingHandler, jwtService *jwt.Service, logger *logrus.Logger) {
	auth := middleware.AuthMiddleware(jwtService, logger)
	driverOnly := middleware.RequireRole(jwt.RoleDriver)

	ridesGroup := group.Group("/rides", auth)
	{
		ridesGroup.POST("", driverOnly, rides.CreateRide)
		ridesGroup.GET("/:ride_id", rides.GetRide)
		ridesGroup.DELETE("/:ride_id", driverOnly, rides.DeleteRide)

		ridesGroup.POST("/:ride_id/bookings", bookings.CreateBooking)
		ridesGroup.GET("/:ride_id/bookings", driverOnly, bookings.ListRideBookings)
	}

	bookingsGroup := group.Group("/bookings", auth)
	{
		bookingsGroup.GET("", bookings.ListMyBookings)
		bookingsGroup.POST("/:booking_id/confirm", bookings.ConfirmBooking)
		bookingsGroup.POST("/:booking_id/cancel", bookings.CancelBooking)
		bookingsGroup.POST("/:booking_id/approve", driverOnly, bookings.ApproveBooking)
		bookingsGroup.POST("/:booking_id/reject", driverOnly, bookings.RejectBooking)
	}
}
