package database

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ridefusion/booking-backend/internal/models"
)

// MemoryBookingRepository keeps rides and bookings in process memory with the
// same version-checked write semantics as the PostgreSQL repository. Values
// are copied on every read and write so callers never share state.
type MemoryBookingRepository struct {
	mu       sync.RWMutex
	rides    map[uuid.UUID]models.Ride
	bookings map[uuid.UUID]models.Booking
}

// NewMemoryBookingRepository creates an empty in-memory repository
func NewMemoryBookingRepository() *MemoryBookingRepository {
	return &MemoryBookingRepository{
		rides:    make(map[uuid.UUID]models.Ride),
		bookings: make(map[uuid.UUID]models.Booking),
	}
}

// CreateRide stores a new ride at version 1
func (r *MemoryBookingRepository) CreateRide(ctx context.Context, ride *models.Ride) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ride.ID == uuid.Nil {
		ride.ID = uuid.New()
	}
	if _, exists := r.rides[ride.ID]; exists {
		return ErrVersionConflict
	}

	now := time.Now().UTC()
	ride.Version = 1
	ride.CreatedAt = now
	ride.UpdatedAt = now
	r.rides[ride.ID] = *ride
	return nil
}

// GetRide retrieves a ride by ID
func (r *MemoryBookingRepository) GetRide(ctx context.Context, rideID uuid.UUID) (*models.Ride, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ride, ok := r.rides[rideID]
	if !ok {
		return nil, models.ErrRideNotFound
	}
	return &ride, nil
}

// DeleteRide removes a ride and all of its bookings
func (r *MemoryBookingRepository) DeleteRide(ctx context.Context, rideID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rides[rideID]; !ok {
		return models.ErrRideNotFound
	}
	delete(r.rides, rideID)
	for id, booking := range r.bookings {
		if booking.RideID == rideID {
			delete(r.bookings, id)
		}
	}
	return nil
}

// GetBooking retrieves a booking by ID
func (r *MemoryBookingRepository) GetBooking(ctx context.Context, bookingID uuid.UUID) (*models.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	booking, ok := r.bookings[bookingID]
	if !ok {
		return nil, models.ErrBookingNotFound
	}
	return copyBooking(booking), nil
}

// GetBookingsByPassenger retrieves a passenger's bookings, newest first
func (r *MemoryBookingRepository) GetBookingsByPassenger(ctx context.Context, passengerID uuid.UUID) ([]models.Booking, error) {
	return r.filterBookings(func(b models.Booking) bool { return b.PassengerID == passengerID }), nil
}

// GetBookingsByRide retrieves a ride's bookings, newest first
func (r *MemoryBookingRepository) GetBookingsByRide(ctx context.Context, rideID uuid.UUID) ([]models.Booking, error) {
	return r.filterBookings(func(b models.Booking) bool { return b.RideID == rideID }), nil
}

// SaveBooking applies the ride and booking writes atomically if neither has
// changed since it was read
func (r *MemoryBookingRepository) SaveBooking(ctx context.Context, ride *models.Ride, booking *models.Booking) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if ride != nil {
		current, ok := r.rides[ride.ID]
		if !ok {
			return models.ErrRideNotFound
		}
		if current.Version != ride.Version {
			return ErrVersionConflict
		}
	}

	current, exists := r.bookings[booking.ID]
	if booking.IsNew() {
		if exists {
			return ErrVersionConflict
		}
		if _, ok := r.rides[booking.RideID]; !ok {
			return models.ErrRideNotFound
		}
	} else if !exists {
		return models.ErrBookingNotFound
	} else if current.Version != booking.Version {
		return ErrVersionConflict
	}

	now := time.Now().UTC()
	if ride != nil {
		ride.Version++
		ride.UpdatedAt = now
		r.rides[ride.ID] = *ride
	}
	booking.Version++
	booking.UpdatedAt = now
	r.bookings[booking.ID] = *copyBooking(*booking)
	return nil
}

// Ping always succeeds for the in-memory repository
func (r *MemoryBookingRepository) Ping(ctx context.Context) error {
	return nil
}

func (r *MemoryBookingRepository) filterBookings(keep func(models.Booking) bool) []models.Booking {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := []models.Booking{}
	for _, booking := range r.bookings {
		if keep(booking) {
			result = append(result, *copyBooking(booking))
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result
}

// copyBooking detaches the pointer fields of a booking
func copyBooking(b models.Booking) *models.Booking {
	if b.ConfirmationCode != nil {
		code := *b.ConfirmationCode
		b.ConfirmationCode = &code
	}
	if b.ConfirmedAt != nil {
		t := *b.ConfirmedAt
		b.ConfirmedAt = &t
	}
	if b.CancelledAt != nil {
		t := *b.CancelledAt
		b.CancelledAt = &t
	}
	return &b
}
