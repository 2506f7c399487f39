package models

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the ride or booking does not exist
	ErrNotFound = errors.New("not found")

	// ErrRideNotFound indicates the ride does not exist
	ErrRideNotFound = fmt.Errorf("ride %w", ErrNotFound)

	// ErrBookingNotFound indicates the booking does not exist
	ErrBookingNotFound = fmt.Errorf("booking %w", ErrNotFound)

	// ErrUnauthorized indicates the acting principal may not perform the transition
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidCode indicates the supplied confirmation code does not match
	ErrInvalidCode = errors.New("invalid confirmation code")

	// ErrCapacityExceeded is matched by every *CapacityExceededError
	ErrCapacityExceeded = errors.New("not enough seats available")

	// ErrConflict indicates the concurrency retry budget was exhausted
	ErrConflict = errors.New("booking conflict, please retry")

	// ErrUnavailable indicates a persistence fault unrelated to business rules
	ErrUnavailable = errors.New("booking store unavailable")

	// ErrInvalidSeatCount indicates a seat count outside the allowed range
	ErrInvalidSeatCount = errors.New("invalid seat count")

	// ErrInvalidTransition indicates the booking's current status forbids the transition
	ErrInvalidTransition = errors.New("invalid booking transition")

	// ErrInvalidRide indicates a ride offer failed validation
	ErrInvalidRide = errors.New("invalid ride")

	// ErrConfirmationNotRequired indicates ConfirmBooking was called on a direct-confirm engine
	ErrConfirmationNotRequired = errors.New("bookings do not require confirmation")
)

// CapacityExceededError reports a reservation that asked for more seats than remain
type CapacityExceededError struct {
	Requested int `json:"requested"`
	Remaining int `json:"remaining"`
}

func (e *CapacityExceededError) Error() string {
	return fmt.Sprintf("not enough seats available. Only %d seats left", e.Remaining)
}

// Is makes errors.Is(err, ErrCapacityExceeded) hold for any capacity error
func (e *CapacityExceededError) Is(target error) bool {
	return target == ErrCapacityExceeded
}
