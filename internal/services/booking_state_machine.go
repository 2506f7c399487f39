package services

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ridefusion/booking-backend/internal/models"
)

// LifecycleConfig selects the booking lifecycle variant
type LifecycleConfig struct {
	// RequiresConfirmation creates bookings as pending with a one-time code;
	// seats are reserved only when the code is verified. When false, seats are
	// reserved at creation and the booking starts confirmed.
	RequiresConfirmation bool
	MaxSeatsPerBooking   int
}

// Transition describes what a state change touched
type Transition struct {
	// BookingChanged means the booking must be persisted
	BookingChanged bool
	// SeatsChanged means the ride's seat counter must be persisted with it
	SeatsChanged bool
}

var noChange = Transition{}

// BookingStateMachine validates booking transitions and drives seat
// reservation and release as their side effect. It operates on values loaded
// by the caller and never touches persistence.
type BookingStateMachine struct {
	config    LifecycleConfig
	inventory *SeatInventory
	otp       *OTPService
	now       func() time.Time
}

// NewBookingStateMachine creates a state machine for the given lifecycle
func NewBookingStateMachine(config LifecycleConfig, inventory *SeatInventory, otp *OTPService) *BookingStateMachine {
	if config.MaxSeatsPerBooking <= 0 || config.MaxSeatsPerBooking > models.MaxSeatsPerBooking {
		config.MaxSeatsPerBooking = models.MaxSeatsPerBooking
	}
	return &BookingStateMachine{
		config:    config,
		inventory: inventory,
		otp:       otp,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// RequiresConfirmation reports which lifecycle variant is active
func (m *BookingStateMachine) RequiresConfirmation() bool {
	return m.config.RequiresConfirmation
}

// Create builds a new booking for passengerID on ride.
// Direct-confirm reserves seats immediately; the OTP variant only checks that
// enough seats are currently free and issues a confirmation code.
func (m *BookingStateMachine) Create(ride *models.Ride, passengerID uuid.UUID, seats int) (*models.Booking, Transition, error) {
	if passengerID == uuid.Nil {
		return nil, noChange, fmt.Errorf("%w: unable to identify current user", models.ErrUnauthorized)
	}
	if err := models.ValidateSeatCount(seats, m.config.MaxSeatsPerBooking); err != nil {
		return nil, noChange, err
	}

	now := m.now()
	booking := &models.Booking{
		ID:          uuid.New(),
		RideID:      ride.ID,
		PassengerID: passengerID,
		SeatsBooked: seats,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if !m.config.RequiresConfirmation {
		if err := m.inventory.Reserve(ride, seats); err != nil {
			return nil, noChange, err
		}
		booking.Status = models.BookingStatusConfirmed
		booking.SeatsReserved = true
		booking.ConfirmedAt = &now
		return booking, Transition{BookingChanged: true, SeatsChanged: true}, nil
	}

	if ride.AvailableSeats < seats {
		return nil, noChange, &models.CapacityExceededError{Requested: seats, Remaining: ride.AvailableSeats}
	}

	code, err := m.otp.Generate()
	if err != nil {
		return nil, noChange, err
	}
	booking.Status = models.BookingStatusPending
	booking.ConfirmationCode = &code
	return booking, Transition{BookingChanged: true}, nil
}

// Confirm verifies the passenger's code and reserves the booking's seats.
// On a mismatch or a capacity shortfall the booking is left pending.
func (m *BookingStateMachine) Confirm(ride *models.Ride, booking *models.Booking, passengerID uuid.UUID, code string) (Transition, error) {
	if !m.config.RequiresConfirmation {
		return noChange, models.ErrConfirmationNotRequired
	}
	if booking.PassengerID != passengerID {
		return noChange, fmt.Errorf("%w: booking belongs to another passenger", models.ErrUnauthorized)
	}

	switch booking.Status {
	case models.BookingStatusConfirmed:
		return noChange, nil
	case models.BookingStatusCancelled:
		return noChange, fmt.Errorf("%w: booking is cancelled", models.ErrInvalidTransition)
	}

	expected := ""
	if booking.ConfirmationCode != nil {
		expected = *booking.ConfirmationCode
	}
	if !m.otp.Verify(expected, code) {
		return noChange, models.ErrInvalidCode
	}

	if err := m.reserveFor(ride, booking); err != nil {
		return noChange, err
	}
	booking.IsVerified = true
	return Transition{BookingChanged: true, SeatsChanged: true}, nil
}

// Cancel moves the passenger's booking to cancelled, releasing its seats if
// they were reserved. Cancelling a cancelled booking changes nothing.
func (m *BookingStateMachine) Cancel(ride *models.Ride, booking *models.Booking, passengerID uuid.UUID) (Transition, error) {
	if booking.PassengerID != passengerID {
		return noChange, fmt.Errorf("%w: booking belongs to another passenger", models.ErrUnauthorized)
	}
	return m.cancel(ride, booking), nil
}

// Approve lets the ride's driver confirm a booking without a code
func (m *BookingStateMachine) Approve(ride *models.Ride, booking *models.Booking, driverID uuid.UUID) (Transition, error) {
	if ride.DriverID != driverID {
		return noChange, fmt.Errorf("%w: ride belongs to another driver", models.ErrUnauthorized)
	}

	switch booking.Status {
	case models.BookingStatusConfirmed:
		return noChange, nil
	case models.BookingStatusCancelled:
		return noChange, fmt.Errorf("%w: booking is cancelled", models.ErrInvalidTransition)
	}

	if err := m.reserveFor(ride, booking); err != nil {
		return noChange, err
	}
	return Transition{BookingChanged: true, SeatsChanged: true}, nil
}

// Reject lets the ride's driver cancel a booking
func (m *BookingStateMachine) Reject(ride *models.Ride, booking *models.Booking, driverID uuid.UUID) (Transition, error) {
	if ride.DriverID != driverID {
		return noChange, fmt.Errorf("%w: ride belongs to another driver", models.ErrUnauthorized)
	}
	return m.cancel(ride, booking), nil
}

func (m *BookingStateMachine) reserveFor(ride *models.Ride, booking *models.Booking) error {
	if !booking.SeatsReserved {
		if err := m.inventory.Reserve(ride, booking.SeatsBooked); err != nil {
			return err
		}
		booking.SeatsReserved = true
	}

	now := m.now()
	booking.Status = models.BookingStatusConfirmed
	booking.ConfirmedAt = &now
	return nil
}

func (m *BookingStateMachine) cancel(ride *models.Ride, booking *models.Booking) Transition {
	if booking.Status == models.BookingStatusCancelled {
		return noChange
	}

	result := Transition{BookingChanged: true}
	if booking.SeatsReserved {
		m.inventory.Release(ride, booking.SeatsBooked)
		booking.SeatsReserved = false
		result.SeatsChanged = true
	}

	now := m.now()
	booking.Status = models.BookingStatusCancelled
	booking.CancelledAt = &now
	return result
}
