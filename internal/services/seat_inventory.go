package services

import (
	"fmt"

	"github.com/ridefusion/booking-backend/internal/models"
	"github.com/sirupsen/logrus"
)

// SeatInventory is the only component that mutates a ride's available seat
// counter. It works on an in-memory ride read inside the orchestrator's
// transaction; the version-checked write makes reserve-then-persist atomic.
type SeatInventory struct {
	logger *logrus.Logger
}

// NewSeatInventory creates a new seat inventory
func NewSeatInventory(logger *logrus.Logger) *SeatInventory {
	return &SeatInventory{logger: logger}
}

// Reserve takes seatCount seats from the ride.
// It returns a *models.CapacityExceededError carrying the seats left when
// not enough remain.
func (s *SeatInventory) Reserve(ride *models.Ride, seatCount int) error {
	if seatCount < models.MinSeatsPerBooking {
		return fmt.Errorf("%w: cannot reserve %d seats", models.ErrInvalidSeatCount, seatCount)
	}

	if ride.AvailableSeats < seatCount {
		return &models.CapacityExceededError{
			Requested: seatCount,
			Remaining: ride.AvailableSeats,
		}
	}

	ride.AvailableSeats -= seatCount
	return nil
}

// Release returns seatCount seats to the ride, never exceeding its capacity.
// Over-release means a booking's seats were released twice; it is capped and
// logged.
func (s *SeatInventory) Release(ride *models.Ride, seatCount int) {
	if seatCount <= 0 {
		return
	}

	released := ride.AvailableSeats + seatCount
	if released > ride.TotalSeats {
		s.logger.WithFields(logrus.Fields{
			"ride_id":         ride.ID,
			"available_seats": ride.AvailableSeats,
			"total_seats":     ride.TotalSeats,
			"release":         seatCount,
		}).Warn("Seat release exceeds ride capacity, capping")
		released = ride.TotalSeats
	}

	ride.AvailableSeats = released
}
