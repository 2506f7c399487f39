package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// BookingStatus represents the status of a booking
type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCancelled BookingStatus = "cancelled"
)

const (
	// MinSeatsPerBooking is the smallest seat count a single booking may claim
	MinSeatsPerBooking = 1

	// MaxSeatsPerBooking is the largest seat count a single booking may claim
	MaxSeatsPerBooking = 10
)

// Booking represents one passenger's claim on seats of a ride
type Booking struct {
	ID               uuid.UUID     `json:"id" db:"id"`
	RideID           uuid.UUID     `json:"ride_id" db:"ride_id"`
	PassengerID      uuid.UUID     `json:"passenger_id" db:"passenger_id"`
	SeatsBooked      int           `json:"seats_booked" db:"seats_booked"`
	Status           BookingStatus `json:"status" db:"status"`
	ConfirmationCode *string       `json:"-" db:"confirmation_code"`
	IsVerified       bool          `json:"is_verified" db:"is_verified"`
	// SeatsReserved is true while this booking's seats are counted against the ride
	SeatsReserved bool       `json:"seats_reserved" db:"seats_reserved"`
	Version       int64      `json:"-" db:"version"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
	ConfirmedAt   *time.Time `json:"confirmed_at,omitempty" db:"confirmed_at"`
	CancelledAt   *time.Time `json:"cancelled_at,omitempty" db:"cancelled_at"`
}

// IsTerminal reports whether the booking can no longer change state
func (b *Booking) IsTerminal() bool {
	return b.Status == BookingStatusCancelled
}

// IsNew reports whether the booking has never been persisted
func (b *Booking) IsNew() bool {
	return b.Version == 0
}

// CreateBookingRequest represents the request to book seats on a ride
type CreateBookingRequest struct {
	Seats int `json:"seats" binding:"required,min=1"`
}

// Validate validates the create booking request
func (r *CreateBookingRequest) Validate() error {
	return ValidateSeatCount(r.Seats, MaxSeatsPerBooking)
}

// ConfirmBookingRequest carries the one-time code shown to the passenger
type ConfirmBookingRequest struct {
	Code string `json:"code" binding:"required"`
}

// CreateBookingResponse is returned when a booking is created.
// ConfirmationCode is only set when the booking still needs confirmation.
type CreateBookingResponse struct {
	Booking          *Booking `json:"booking"`
	ConfirmationCode string   `json:"confirmation_code,omitempty"`
	Message          string   `json:"message"`
}

// ValidateSeatCount checks a requested seat count against the per-booking limits
func ValidateSeatCount(seats, max int) error {
	if seats < MinSeatsPerBooking {
		return fmt.Errorf("%w: at least %d seat must be booked", ErrInvalidSeatCount, MinSeatsPerBooking)
	}
	if seats > max {
		return fmt.Errorf("%w: maximum %d seats can be booked at once", ErrInvalidSeatCount, max)
	}
	return nil
}
