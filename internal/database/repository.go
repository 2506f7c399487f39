package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/ridefusion/booking-backend/internal/models"
)

// Repository is the full persistence contract for rides and bookings.
// SaveBooking is the compare-and-swap primitive: it succeeds only if the ride
// (when given) and the booking are unchanged since they were read.
type Repository interface {
	CreateRide(ctx context.Context, ride *models.Ride) error
	GetRide(ctx context.Context, rideID uuid.UUID) (*models.Ride, error)
	DeleteRide(ctx context.Context, rideID uuid.UUID) error
	GetBooking(ctx context.Context, bookingID uuid.UUID) (*models.Booking, error)
	GetBookingsByPassenger(ctx context.Context, passengerID uuid.UUID) ([]models.Booking, error)
	GetBookingsByRide(ctx context.Context, rideID uuid.UUID) ([]models.Booking, error)
	SaveBooking(ctx context.Context, ride *models.Ride, booking *models.Booking) error
	Ping(ctx context.Context) error
}

var (
	_ Repository = (*BookingRepository)(nil)
	_ Repository = (*MemoryBookingRepository)(nil)
	_ Repository = (*RedisBookingRepository)(nil)
)
