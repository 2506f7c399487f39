package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// MaxRideSeats is the largest capacity a driver may offer on one ride
	MaxRideSeats = 50

	// MaxPricePerSeat is the upper bound on the per-seat price
	MaxPricePerSeat = 999999

	maxLocationLength = 200
)

// Ride represents a driver-offered trip with finite seat capacity
type Ride struct {
	ID               uuid.UUID `json:"id" db:"id"`
	DriverID         uuid.UUID `json:"driver_id" db:"driver_id"`
	StartLocation    string    `json:"start_location" db:"start_location"`
	EndLocation      string    `json:"end_location" db:"end_location"`
	StartDateTime    time.Time `json:"start_datetime" db:"start_datetime"`
	TotalSeats       int       `json:"total_seats" db:"total_seats"`
	AvailableSeats   int       `json:"available_seats" db:"available_seats"`
	PricePerSeat     float64   `json:"price_per_seat" db:"price_per_seat"`
	DistanceKm       *float64  `json:"distance_km,omitempty" db:"distance_km"`
	EstimatedMinutes *int      `json:"estimated_minutes,omitempty" db:"estimated_minutes"`
	Version          int64     `json:"-" db:"version"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time `json:"updated_at" db:"updated_at"`
}

// BookedSeats returns the number of seats currently held by bookings
func (r *Ride) BookedSeats() int {
	return r.TotalSeats - r.AvailableSeats
}

// CreateRideRequest represents the request to offer a new ride
type CreateRideRequest struct {
	StartLocation    string    `json:"start_location" binding:"required"`
	EndLocation      string    `json:"end_location" binding:"required"`
	StartDateTime    time.Time `json:"start_datetime" binding:"required"`
	Seats            int       `json:"seats" binding:"required"`
	PricePerSeat     float64   `json:"price_per_seat"`
	DistanceKm       *float64  `json:"distance_km,omitempty"`
	EstimatedMinutes *int      `json:"estimated_minutes,omitempty"`
}

// Validate validates the create ride request against the given clock
func (r *CreateRideRequest) Validate(now time.Time) error {
	r.StartLocation = strings.TrimSpace(r.StartLocation)
	r.EndLocation = strings.TrimSpace(r.EndLocation)

	if r.StartLocation == "" || r.EndLocation == "" {
		return fmt.Errorf("%w: start_location and end_location are required", ErrInvalidRide)
	}
	if len(r.StartLocation) > maxLocationLength || len(r.EndLocation) > maxLocationLength {
		return fmt.Errorf("%w: locations must be at most 200 characters", ErrInvalidRide)
	}
	if !r.StartDateTime.After(now) {
		return fmt.Errorf("%w: start_datetime must be in the future", ErrInvalidRide)
	}
	if r.Seats < 1 || r.Seats > MaxRideSeats {
		return fmt.Errorf("%w: seats must be between 1 and 50", ErrInvalidRide)
	}
	if r.PricePerSeat < 0 || r.PricePerSeat > MaxPricePerSeat {
		return fmt.Errorf("%w: price_per_seat must be between 0 and 999999", ErrInvalidRide)
	}
	if r.DistanceKm != nil && *r.DistanceKm < 0 {
		return fmt.Errorf("%w: distance_km cannot be negative", ErrInvalidRide)
	}
	if r.EstimatedMinutes != nil && *r.EstimatedMinutes < 0 {
		return fmt.Errorf("%w: estimated_minutes cannot be negative", ErrInvalidRide)
	}

	return nil
}
