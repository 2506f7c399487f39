package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ridefusion/booking-backend/internal/models"
)

const rideColumns = `id, driver_id, start_location, end_location, start_datetime,
		total_seats, available_seats, price_per_seat, distance_km, estimated_minutes,
		version, created_at, updated_at`

const bookingColumns = `id, ride_id, passenger_id, seats_booked, status,
		confirmation_code, is_verified, seats_reserved, version,
		created_at, updated_at, confirmed_at, cancelled_at`

// BookingRepository handles ride and booking persistence in PostgreSQL
type BookingRepository struct {
	db DB
}

// NewBookingRepository creates a new BookingRepository
func NewBookingRepository(db DB) *BookingRepository {
	return &BookingRepository{db: db}
}

// CreateRide inserts a new ride at version 1
func (r *BookingRepository) CreateRide(ctx context.Context, ride *models.Ride) error {
	query := `
		INSERT INTO rides (
			id, driver_id, start_location, end_location, start_datetime,
			total_seats, available_seats, price_per_seat, distance_km, estimated_minutes,
			version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 1, $11, $11)
	`

	if ride.ID == uuid.Nil {
		ride.ID = uuid.New()
	}
	now := time.Now().UTC()

	_, err := r.db.ExecContext(ctx, query,
		ride.ID, ride.DriverID, ride.StartLocation, ride.EndLocation, ride.StartDateTime,
		ride.TotalSeats, ride.AvailableSeats, ride.PricePerSeat, ride.DistanceKm, ride.EstimatedMinutes,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create ride: %w", err)
	}

	ride.Version = 1
	ride.CreatedAt = now
	ride.UpdatedAt = now
	return nil
}

// GetRide retrieves a ride by ID
func (r *BookingRepository) GetRide(ctx context.Context, rideID uuid.UUID) (*models.Ride, error) {
	query := `SELECT ` + rideColumns + ` FROM rides WHERE id = $1`

	var ride models.Ride
	if err := r.db.GetContext(ctx, &ride, query, rideID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrRideNotFound
		}
		return nil, fmt.Errorf("failed to get ride: %w", err)
	}

	return &ride, nil
}

// DeleteRide removes a ride; its bookings go with it through ON DELETE CASCADE
func (r *BookingRepository) DeleteRide(ctx context.Context, rideID uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM rides WHERE id = $1`, rideID)
	if err != nil {
		return fmt.Errorf("failed to delete ride: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return models.ErrRideNotFound
	}

	return nil
}

// GetBooking retrieves a booking by ID
func (r *BookingRepository) GetBooking(ctx context.Context, bookingID uuid.UUID) (*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`

	var booking models.Booking
	if err := r.db.GetContext(ctx, &booking, query, bookingID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrBookingNotFound
		}
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}

	return &booking, nil
}

// GetBookingsByPassenger retrieves a passenger's bookings, newest first
func (r *BookingRepository) GetBookingsByPassenger(ctx context.Context, passengerID uuid.UUID) ([]models.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE passenger_id = $1
		ORDER BY created_at DESC
	`

	bookings := []models.Booking{}
	if err := r.db.SelectContext(ctx, &bookings, query, passengerID); err != nil {
		return nil, fmt.Errorf("failed to get passenger bookings: %w", err)
	}

	return bookings, nil
}

// GetBookingsByRide retrieves a ride's bookings, newest first
func (r *BookingRepository) GetBookingsByRide(ctx context.Context, rideID uuid.UUID) ([]models.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE ride_id = $1
		ORDER BY created_at DESC
	`

	bookings := []models.Booking{}
	if err := r.db.SelectContext(ctx, &bookings, query, rideID); err != nil {
		return nil, fmt.Errorf("failed to get ride bookings: %w", err)
	}

	return bookings, nil
}

// SaveBooking writes a booking and, when ride is non-nil, the ride's seat
// counter in one transaction. Both writes are compare-and-swap on version:
// if either row changed since it was read, nothing is written and
// ErrVersionConflict is returned. A booking with Version 0 is inserted.
func (r *BookingRepository) SaveBooking(ctx context.Context, ride *models.Ride, booking *models.Booking) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()

	if ride != nil {
		result, err := tx.ExecContext(ctx, `
			UPDATE rides
			SET available_seats = $1, version = version + 1, updated_at = $2
			WHERE id = $3 AND version = $4`,
			ride.AvailableSeats, now, ride.ID, ride.Version)
		if err != nil {
			return fmt.Errorf("failed to update ride seats: %w", err)
		}
		if err := expectOneRow(result); err != nil {
			return err
		}
	}

	if booking.IsNew() {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO bookings (
				id, ride_id, passenger_id, seats_booked, status,
				confirmation_code, is_verified, seats_reserved, version,
				created_at, updated_at, confirmed_at, cancelled_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 1, $9, $10, $11, $12)`,
			booking.ID, booking.RideID, booking.PassengerID, booking.SeatsBooked, booking.Status,
			booking.ConfirmationCode, booking.IsVerified, booking.SeatsReserved,
			booking.CreatedAt, now, booking.ConfirmedAt, booking.CancelledAt,
		)
		if err != nil {
			return fmt.Errorf("failed to create booking: %w", err)
		}
	} else {
		result, err := tx.ExecContext(ctx, `
			UPDATE bookings
			SET status = $1, confirmation_code = $2, is_verified = $3, seats_reserved = $4,
				confirmed_at = $5, cancelled_at = $6, updated_at = $7, version = version + 1
			WHERE id = $8 AND version = $9`,
			booking.Status, booking.ConfirmationCode, booking.IsVerified, booking.SeatsReserved,
			booking.ConfirmedAt, booking.CancelledAt, now, booking.ID, booking.Version,
		)
		if err != nil {
			return fmt.Errorf("failed to update booking: %w", err)
		}
		if err := expectOneRow(result); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit booking: %w", err)
	}

	if ride != nil {
		ride.Version++
		ride.UpdatedAt = now
	}
	booking.Version++
	booking.UpdatedAt = now
	return nil
}

// Ping checks that the database is reachable
func (r *BookingRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func expectOneRow(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrVersionConflict
	}
	return nil
}
