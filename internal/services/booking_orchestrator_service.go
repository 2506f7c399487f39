package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ridefusion/booking-backend/internal/database"
	"github.com/ridefusion/booking-backend/internal/models"
	"github.com/sirupsen/logrus"
)

// BookingStore is the persistence the orchestrator needs
type BookingStore interface {
	GetRide(ctx context.Context, rideID uuid.UUID) (*models.Ride, error)
	GetBooking(ctx context.Context, bookingID uuid.UUID) (*models.Booking, error)
	GetBookingsByPassenger(ctx context.Context, passengerID uuid.UUID) ([]models.Booking, error)
	GetBookingsByRide(ctx context.Context, rideID uuid.UUID) ([]models.Booking, error)
	SaveBooking(ctx context.Context, ride *models.Ride, booking *models.Booking) error
}

// BookingOrchestratorConfig holds configuration for the orchestrator
type BookingOrchestratorConfig struct {
	MaxRetries   int           // Retries after a write conflict before giving up (default 3)
	RetryBackoff time.Duration // Base delay between attempts, multiplied by the attempt number (default 10ms)
}

// DefaultOrchestratorConfig returns default configuration
func DefaultOrchestratorConfig() BookingOrchestratorConfig {
	return BookingOrchestratorConfig{
		MaxRetries:   3,
		RetryBackoff: 10 * time.Millisecond,
	}
}

// BookingOrchestratorService is the transactional boundary around booking
// transitions. Every write runs read-modify-write against the store and is
// retried from a fresh read when the store reports a version conflict.
type BookingOrchestratorService struct {
	store   BookingStore
	machine *BookingStateMachine
	config  BookingOrchestratorConfig
	logger  *logrus.Logger
}

// NewBookingOrchestratorService creates a new orchestrator service
func NewBookingOrchestratorService(
	store BookingStore,
	machine *BookingStateMachine,
	config BookingOrchestratorConfig,
	logger *logrus.Logger,
) *BookingOrchestratorService {
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	return &BookingOrchestratorService{
		store:   store,
		machine: machine,
		config:  config,
		logger:  logger,
	}
}

// RequiresConfirmation reports whether new bookings wait for a one-time code
func (s *BookingOrchestratorService) RequiresConfirmation() bool {
	return s.machine.RequiresConfirmation()
}

// ============================================================================
// CREATE
// ============================================================================

// CreateBooking books seatCount seats on a ride for a passenger.
// In direct-confirm mode the seats are reserved and the booking persisted in
// one atomic write. In OTP mode a pending booking is stored without reserving
// seats and the confirmation code is returned to the caller.
func (s *BookingOrchestratorService) CreateBooking(
	ctx context.Context,
	rideID uuid.UUID,
	passengerID uuid.UUID,
	seatCount int,
) (*models.CreateBookingResponse, error) {
	fields := logrus.Fields{
		"ride_id":      rideID,
		"passenger_id": passengerID,
		"seats":        seatCount,
	}

	var booking *models.Booking
	err := s.withRetry(ctx, "create_booking", fields, func() error {
		ride, err := s.store.GetRide(ctx, rideID)
		if err != nil {
			return err
		}

		created, transition, err := s.machine.Create(ride, passengerID, seatCount)
		if err != nil {
			return err
		}

		if err := s.store.SaveBooking(ctx, touchedRide(ride, transition), created); err != nil {
			return err
		}
		booking = created
		return nil
	})
	if err != nil {
		s.logFailure(err, fields, "Failed to create booking")
		return nil, err
	}

	s.logger.WithFields(fields).WithFields(logrus.Fields{
		"booking_id": booking.ID,
		"status":     booking.Status,
	}).Info("Booking created successfully")

	response := &models.CreateBookingResponse{Booking: booking}
	if booking.Status == models.BookingStatusPending && booking.ConfirmationCode != nil {
		response.ConfirmationCode = *booking.ConfirmationCode
		response.Message = "Booking pending. Enter the confirmation code to reserve your seats."
	} else {
		response.Message = "Booking confirmed successfully!"
	}
	return response, nil
}

// ============================================================================
// TRANSITIONS
// ============================================================================

// ConfirmBooking verifies the code of a pending booking and reserves its seats.
// If the seats were taken since the booking was created, the booking stays
// pending and a capacity error is returned.
func (s *BookingOrchestratorService) ConfirmBooking(
	ctx context.Context,
	bookingID uuid.UUID,
	passengerID uuid.UUID,
	code string,
) (*models.Booking, error) {
	return s.transition(ctx, "confirm_booking", bookingID, passengerID,
		func(ride *models.Ride, booking *models.Booking) (Transition, error) {
			return s.machine.Confirm(ride, booking, passengerID, code)
		})
}

// CancelBooking cancels the passenger's booking, releasing its seats if they
// were reserved. Cancelling twice returns the same cancelled booking.
func (s *BookingOrchestratorService) CancelBooking(
	ctx context.Context,
	bookingID uuid.UUID,
	passengerID uuid.UUID,
) (*models.Booking, error) {
	return s.transition(ctx, "cancel_booking", bookingID, passengerID,
		func(ride *models.Ride, booking *models.Booking) (Transition, error) {
			return s.machine.Cancel(ride, booking, passengerID)
		})
}

// ApproveBooking lets the ride's driver confirm a booking
func (s *BookingOrchestratorService) ApproveBooking(
	ctx context.Context,
	bookingID uuid.UUID,
	driverID uuid.UUID,
) (*models.Booking, error) {
	return s.transition(ctx, "approve_booking", bookingID, driverID,
		func(ride *models.Ride, booking *models.Booking) (Transition, error) {
			return s.machine.Approve(ride, booking, driverID)
		})
}

// RejectBooking lets the ride's driver cancel a booking
func (s *BookingOrchestratorService) RejectBooking(
	ctx context.Context,
	bookingID uuid.UUID,
	driverID uuid.UUID,
) (*models.Booking, error) {
	return s.transition(ctx, "reject_booking", bookingID, driverID,
		func(ride *models.Ride, booking *models.Booking) (Transition, error) {
			return s.machine.Reject(ride, booking, driverID)
		})
}

// transition loads a booking and its ride, applies apply, and persists the
// result if anything changed
func (s *BookingOrchestratorService) transition(
	ctx context.Context,
	op string,
	bookingID uuid.UUID,
	actorID uuid.UUID,
	apply func(ride *models.Ride, booking *models.Booking) (Transition, error),
) (*models.Booking, error) {
	fields := logrus.Fields{
		"operation":  op,
		"booking_id": bookingID,
		"actor_id":   actorID,
	}

	var result *models.Booking
	var changed bool
	err := s.withRetry(ctx, op, fields, func() error {
		booking, err := s.store.GetBooking(ctx, bookingID)
		if err != nil {
			return err
		}
		ride, err := s.store.GetRide(ctx, booking.RideID)
		if err != nil {
			return err
		}

		t, err := apply(ride, booking)
		if err != nil {
			return err
		}

		if t.BookingChanged {
			if err := s.store.SaveBooking(ctx, touchedRide(ride, t), booking); err != nil {
				return err
			}
		}
		result = booking
		changed = t.BookingChanged
		return nil
	})
	if err != nil {
		s.logFailure(err, fields, "Booking transition rejected")
		return nil, err
	}

	if changed {
		s.logger.WithFields(fields).WithFields(logrus.Fields{
			"ride_id": result.RideID,
			"status":  result.Status,
			"seats":   result.SeatsBooked,
		}).Info("Booking transition applied")
	}
	return result, nil
}

// ============================================================================
// READS
// ============================================================================

// ListPassengerBookings returns a passenger's bookings, newest first
func (s *BookingOrchestratorService) ListPassengerBookings(ctx context.Context, passengerID uuid.UUID) ([]models.Booking, error) {
	bookings, err := s.store.GetBookingsByPassenger(ctx, passengerID)
	if err != nil {
		return nil, classify(err)
	}
	return bookings, nil
}

// ListRideBookings returns a ride's bookings, newest first, to its driver only
func (s *BookingOrchestratorService) ListRideBookings(ctx context.Context, rideID uuid.UUID, driverID uuid.UUID) ([]models.Booking, error) {
	ride, err := s.store.GetRide(ctx, rideID)
	if err != nil {
		return nil, classify(err)
	}
	if ride.DriverID != driverID {
		return nil, fmt.Errorf("%w: ride belongs to another driver", models.ErrUnauthorized)
	}

	bookings, err := s.store.GetBookingsByRide(ctx, rideID)
	if err != nil {
		return nil, classify(err)
	}
	return bookings, nil
}

// ============================================================================
// HELPERS
// ============================================================================

// withRetry runs fn until it succeeds, fails with a non-conflict error, or
// the retry budget is spent
func (s *BookingOrchestratorService) withRetry(ctx context.Context, op string, fields logrus.Fields, fn func() error) error {
	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if !errors.Is(err, database.ErrVersionConflict) {
			return classify(err)
		}

		if attempt > s.config.MaxRetries {
			s.logger.WithFields(fields).WithField("attempts", attempt).Warn("Booking write conflict, retry budget exhausted")
			return fmt.Errorf("%w: %s failed after %d attempts", models.ErrConflict, op, attempt)
		}

		s.logger.WithFields(fields).WithField("attempt", attempt).Debug("Booking write conflict, retrying")
		if err := s.backoff(ctx, attempt); err != nil {
			return fmt.Errorf("%w: %w", models.ErrUnavailable, err)
		}
	}
}

func (s *BookingOrchestratorService) backoff(ctx context.Context, attempt int) error {
	if s.config.RetryBackoff <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(s.config.RetryBackoff * time.Duration(attempt))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (s *BookingOrchestratorService) logFailure(err error, fields logrus.Fields, msg string) {
	entry := s.logger.WithFields(fields).WithError(err)
	switch {
	case errors.Is(err, models.ErrUnavailable):
		entry.Error(msg)
	case errors.Is(err, models.ErrCapacityExceeded), errors.Is(err, models.ErrConflict):
		entry.Warn(msg)
	default:
		entry.Info(msg)
	}
}

// touchedRide returns ride when the transition changed its seat counter
func touchedRide(ride *models.Ride, t Transition) *models.Ride {
	if t.SeatsChanged {
		return ride
	}
	return nil
}

// classify passes business errors through and wraps anything else as a
// persistence fault
func classify(err error) error {
	for _, known := range []error{
		models.ErrNotFound,
		models.ErrUnauthorized,
		models.ErrInvalidCode,
		models.ErrCapacityExceeded,
		models.ErrConflict,
		models.ErrUnavailable,
		models.ErrInvalidSeatCount,
		models.ErrInvalidTransition,
		models.ErrConfirmationNotRequired,
		models.ErrInvalidRide,
	} {
		if errors.Is(err, known) {
			return err
		}
	}
	if errors.Is(err, database.ErrVersionConflict) {
		return fmt.Errorf("%w: %w", models.ErrConflict, err)
	}
	return fmt.Errorf("%w: %w", models.ErrUnavailable, err)
}
