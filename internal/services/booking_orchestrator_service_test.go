package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ridefusion/booking-backend/internal/database"
	"github.com/ridefusion/booking-backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOrchestrator(t *testing.T, requiresConfirmation bool) (*BookingOrchestratorService, *database.MemoryBookingRepository) {
	t.Helper()
	store := database.NewMemoryBookingRepository()
	service := NewBookingOrchestratorService(
		store,
		newTestMachine(requiresConfirmation),
		BookingOrchestratorConfig{MaxRetries: 50, RetryBackoff: time.Millisecond},
		testLogger(),
	)
	return service, store
}

func seedTestRide(t *testing.T, store *database.MemoryBookingRepository, seats int) *models.Ride {
	t.Helper()
	ride := &models.Ride{
		DriverID:       uuid.New(),
		StartLocation:  "Colombo",
		EndLocation:    "Kandy",
		StartDateTime:  time.Now().Add(24 * time.Hour),
		TotalSeats:     seats,
		AvailableSeats: seats,
	}
	require.NoError(t, store.CreateRide(context.Background(), ride))
	return ride
}

func availableSeats(t *testing.T, store *database.MemoryBookingRepository, rideID uuid.UUID) int {
	t.Helper()
	ride, err := store.GetRide(context.Background(), rideID)
	require.NoError(t, err)
	return ride.AvailableSeats
}

// assertSeatBalance checks that free seats plus seats held by bookings equals capacity
func assertSeatBalance(t *testing.T, store *database.MemoryBookingRepository, rideID uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	ride, err := store.GetRide(ctx, rideID)
	require.NoError(t, err)
	bookings, err := store.GetBookingsByRide(ctx, rideID)
	require.NoError(t, err)

	held := 0
	for _, b := range bookings {
		if b.SeatsReserved {
			held += b.SeatsBooked
		}
	}
	assert.GreaterOrEqual(t, ride.AvailableSeats, 0)
	assert.Equal(t, ride.TotalSeats, ride.AvailableSeats+held)
}

func TestOrchestrator_CreateDirect(t *testing.T) {
	service, store := newTestOrchestrator(t, false)
	ride := seedTestRide(t, store, 3)
	ctx := context.Background()

	resp, err := service.CreateBooking(ctx, ride.ID, uuid.New(), 2)
	require.NoError(t, err)

	assert.Equal(t, models.BookingStatusConfirmed, resp.Booking.Status)
	assert.Empty(t, resp.ConfirmationCode)
	assert.Equal(t, "Booking confirmed successfully!", resp.Message)
	assert.Equal(t, 1, availableSeats(t, store, ride.ID))

	stored, err := store.GetBooking(ctx, resp.Booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusConfirmed, stored.Status)
	assertSeatBalance(t, store, ride.ID)
}

func TestOrchestrator_CreateErrors(t *testing.T) {
	service, store := newTestOrchestrator(t, false)
	ride := seedTestRide(t, store, 3)
	ctx := context.Background()

	_, err := service.CreateBooking(ctx, uuid.New(), uuid.New(), 1)
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = service.CreateBooking(ctx, ride.ID, uuid.New(), 0)
	assert.ErrorIs(t, err, models.ErrInvalidSeatCount)

	_, err = service.CreateBooking(ctx, ride.ID, uuid.New(), 4)
	var capacityErr *models.CapacityExceededError
	require.ErrorAs(t, err, &capacityErr)
	assert.Equal(t, 3, capacityErr.Remaining)

	assert.Equal(t, 3, availableSeats(t, store, ride.ID))
}

func TestOrchestrator_OTPLifecycle(t *testing.T) {
	service, store := newTestOrchestrator(t, true)
	ride := seedTestRide(t, store, 3)
	passengerID := uuid.New()
	ctx := context.Background()

	resp, err := service.CreateBooking(ctx, ride.ID, passengerID, 2)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusPending, resp.Booking.Status)
	assert.Len(t, resp.ConfirmationCode, OTPLength)
	assert.Equal(t, 3, availableSeats(t, store, ride.ID))

	_, err = service.ConfirmBooking(ctx, resp.Booking.ID, passengerID, "not-the-code")
	assert.ErrorIs(t, err, models.ErrInvalidCode)

	_, err = service.ConfirmBooking(ctx, resp.Booking.ID, uuid.New(), resp.ConfirmationCode)
	assert.ErrorIs(t, err, models.ErrUnauthorized)
	assert.Equal(t, 3, availableSeats(t, store, ride.ID))

	booking, err := service.ConfirmBooking(ctx, resp.Booking.ID, passengerID, resp.ConfirmationCode)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusConfirmed, booking.Status)
	assert.True(t, booking.IsVerified)
	assert.Equal(t, 1, availableSeats(t, store, ride.ID))

	again, err := service.ConfirmBooking(ctx, resp.Booking.ID, passengerID, resp.ConfirmationCode)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusConfirmed, again.Status)
	assert.Equal(t, 1, availableSeats(t, store, ride.ID))
	assertSeatBalance(t, store, ride.ID)
}

func TestOrchestrator_ConfirmAfterSeatsTaken(t *testing.T) {
	service, store := newTestOrchestrator(t, true)
	ride := seedTestRide(t, store, 3)
	ctx := context.Background()

	first, err := service.CreateBooking(ctx, ride.ID, uuid.New(), 2)
	require.NoError(t, err)
	second, err := service.CreateBooking(ctx, ride.ID, uuid.New(), 2)
	require.NoError(t, err)

	_, err = service.ConfirmBooking(ctx, first.Booking.ID, first.Booking.PassengerID, first.ConfirmationCode)
	require.NoError(t, err)

	_, err = service.ConfirmBooking(ctx, second.Booking.ID, second.Booking.PassengerID, second.ConfirmationCode)
	var capacityErr *models.CapacityExceededError
	require.ErrorAs(t, err, &capacityErr)
	assert.Equal(t, 1, capacityErr.Remaining)

	stored, err := store.GetBooking(ctx, second.Booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusPending, stored.Status)
	assertSeatBalance(t, store, ride.ID)
}

func TestOrchestrator_ConfirmDirectMode(t *testing.T) {
	service, store := newTestOrchestrator(t, false)
	ride := seedTestRide(t, store, 3)
	ctx := context.Background()

	resp, err := service.CreateBooking(ctx, ride.ID, uuid.New(), 1)
	require.NoError(t, err)

	_, err = service.ConfirmBooking(ctx, resp.Booking.ID, resp.Booking.PassengerID, "123456")
	assert.ErrorIs(t, err, models.ErrConfirmationNotRequired)
	assert.False(t, service.RequiresConfirmation())
}

func TestOrchestrator_Cancel(t *testing.T) {
	service, store := newTestOrchestrator(t, false)
	ride := seedTestRide(t, store, 3)
	ctx := context.Background()

	resp, err := service.CreateBooking(ctx, ride.ID, uuid.New(), 2)
	require.NoError(t, err)
	require.Equal(t, 1, availableSeats(t, store, ride.ID))

	_, err = service.CancelBooking(ctx, resp.Booking.ID, uuid.New())
	assert.ErrorIs(t, err, models.ErrUnauthorized)

	cancelled, err := service.CancelBooking(ctx, resp.Booking.ID, resp.Booking.PassengerID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusCancelled, cancelled.Status)
	assert.Equal(t, 3, availableSeats(t, store, ride.ID))

	again, err := service.CancelBooking(ctx, resp.Booking.ID, resp.Booking.PassengerID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusCancelled, again.Status)
	assert.Equal(t, 3, availableSeats(t, store, ride.ID), "second cancel must not release twice")

	_, err = service.CancelBooking(ctx, uuid.New(), resp.Booking.PassengerID)
	assert.ErrorIs(t, err, models.ErrNotFound)
	assertSeatBalance(t, store, ride.ID)
}

func TestOrchestrator_DriverActions(t *testing.T) {
	service, store := newTestOrchestrator(t, true)
	ride := seedTestRide(t, store, 3)
	ctx := context.Background()

	first, err := service.CreateBooking(ctx, ride.ID, uuid.New(), 2)
	require.NoError(t, err)
	second, err := service.CreateBooking(ctx, ride.ID, uuid.New(), 1)
	require.NoError(t, err)

	_, err = service.ApproveBooking(ctx, first.Booking.ID, uuid.New())
	assert.ErrorIs(t, err, models.ErrUnauthorized)

	approved, err := service.ApproveBooking(ctx, first.Booking.ID, ride.DriverID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusConfirmed, approved.Status)
	assert.Equal(t, 1, availableSeats(t, store, ride.ID))

	rejected, err := service.RejectBooking(ctx, second.Booking.ID, ride.DriverID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusCancelled, rejected.Status)
	assert.Equal(t, 1, availableSeats(t, store, ride.ID))

	_, err = service.ApproveBooking(ctx, second.Booking.ID, ride.DriverID)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
	assertSeatBalance(t, store, ride.ID)
}

func TestOrchestrator_ListBookings(t *testing.T) {
	service, store := newTestOrchestrator(t, false)
	ride := seedTestRide(t, store, 5)
	passengerID := uuid.New()
	ctx := context.Background()

	_, err := service.CreateBooking(ctx, ride.ID, passengerID, 1)
	require.NoError(t, err)
	_, err = service.CreateBooking(ctx, ride.ID, uuid.New(), 1)
	require.NoError(t, err)

	mine, err := service.ListPassengerBookings(ctx, passengerID)
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	none, err := service.ListPassengerBookings(ctx, uuid.New())
	require.NoError(t, err)
	assert.Empty(t, none)

	all, err := service.ListRideBookings(ctx, ride.ID, ride.DriverID)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = service.ListRideBookings(ctx, ride.ID, passengerID)
	assert.ErrorIs(t, err, models.ErrUnauthorized)

	_, err = service.ListRideBookings(ctx, uuid.New(), ride.DriverID)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestOrchestrator_ConcurrentLastSeats(t *testing.T) {
	service, store := newTestOrchestrator(t, false)
	ride := seedTestRide(t, store, 3)

	var wg sync.WaitGroup
	results := make([]error, 2)
	start := make(chan struct{})
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, results[i] = service.CreateBooking(context.Background(), ride.ID, uuid.New(), 2)
		}(i)
	}
	close(start)
	wg.Wait()

	succeeded, exceeded := 0, 0
	for _, err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, models.ErrCapacityExceeded):
			exceeded++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, exceeded)
	assert.Equal(t, 1, availableSeats(t, store, ride.ID))
	assertSeatBalance(t, store, ride.ID)
}

func TestOrchestrator_NoOversellUnderLoad(t *testing.T) {
	service, store := newTestOrchestrator(t, false)
	ride := seedTestRide(t, store, 10)

	var wg sync.WaitGroup
	var confirmed atomic.Int64
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func(seats int) {
			defer wg.Done()
			resp, err := service.CreateBooking(context.Background(), ride.ID, uuid.New(), seats)
			if err == nil {
				confirmed.Add(int64(resp.Booking.SeatsBooked))
				return
			}
			assert.True(t, errors.Is(err, models.ErrCapacityExceeded) || errors.Is(err, models.ErrConflict), "unexpected error: %v", err)
		}(i%3 + 1)
	}
	wg.Wait()

	assert.LessOrEqual(t, confirmed.Load(), int64(10))
	assert.Equal(t, 10-int(confirmed.Load()), availableSeats(t, store, ride.ID))
	assertSeatBalance(t, store, ride.ID)
}

func TestOrchestrator_ConcurrentCancelReleasesOnce(t *testing.T) {
	service, store := newTestOrchestrator(t, false)
	ride := seedTestRide(t, store, 4)
	ctx := context.Background()

	resp, err := service.CreateBooking(ctx, ride.ID, uuid.New(), 3)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := service.CancelBooking(ctx, resp.Booking.ID, resp.Booking.PassengerID)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 4, availableSeats(t, store, ride.ID))
	assertSeatBalance(t, store, ride.ID)
}

func TestOrchestrator_ConcurrentConfirmNoOversell(t *testing.T) {
	service, store := newTestOrchestrator(t, true)
	ride := seedTestRide(t, store, 3)
	ctx := context.Background()

	pending := make([]*models.CreateBookingResponse, 8)
	for i := range pending {
		resp, err := service.CreateBooking(ctx, ride.ID, uuid.New(), 1)
		require.NoError(t, err)
		pending[i] = resp
	}
	require.Equal(t, 3, availableSeats(t, store, ride.ID))

	var wg sync.WaitGroup
	var confirmed atomic.Int64
	start := make(chan struct{})
	for _, resp := range pending {
		wg.Add(1)
		go func(resp *models.CreateBookingResponse) {
			defer wg.Done()
			<-start
			_, err := service.ConfirmBooking(ctx, resp.Booking.ID, resp.Booking.PassengerID, resp.ConfirmationCode)
			if err == nil {
				confirmed.Add(int64(resp.Booking.SeatsBooked))
				return
			}
			assert.True(t, errors.Is(err, models.ErrCapacityExceeded) || errors.Is(err, models.ErrConflict), "unexpected error: %v", err)
		}(resp)
	}
	close(start)
	wg.Wait()

	assert.LessOrEqual(t, confirmed.Load(), int64(3))
	assert.Equal(t, 3-int(confirmed.Load()), availableSeats(t, store, ride.ID))
	assertSeatBalance(t, store, ride.ID)
}

func TestOrchestrator_ConcurrentConfirmSameBooking(t *testing.T) {
	service, store := newTestOrchestrator(t, true)
	ride := seedTestRide(t, store, 4)
	ctx := context.Background()

	resp, err := service.CreateBooking(ctx, ride.ID, uuid.New(), 3)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			booking, err := service.ConfirmBooking(ctx, resp.Booking.ID, resp.Booking.PassengerID, resp.ConfirmationCode)
			if assert.NoError(t, err) {
				assert.Equal(t, models.BookingStatusConfirmed, booking.Status)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, availableSeats(t, store, ride.ID))
	assertSeatBalance(t, store, ride.ID)
}

// conflictStore reports a version conflict on every write
type conflictStore struct {
	*database.MemoryBookingRepository
	saves atomic.Int64
}

func (s *conflictStore) SaveBooking(ctx context.Context, ride *models.Ride, booking *models.Booking) error {
	s.saves.Add(1)
	return database.ErrVersionConflict
}

func TestOrchestrator_RetryBudgetExhausted(t *testing.T) {
	store := &conflictStore{MemoryBookingRepository: database.NewMemoryBookingRepository()}
	ride := &models.Ride{DriverID: uuid.New(), TotalSeats: 3, AvailableSeats: 3}
	require.NoError(t, store.CreateRide(context.Background(), ride))

	service := NewBookingOrchestratorService(
		store,
		newTestMachine(false),
		BookingOrchestratorConfig{MaxRetries: 3},
		testLogger(),
	)

	_, err := service.CreateBooking(context.Background(), ride.ID, uuid.New(), 1)
	assert.ErrorIs(t, err, models.ErrConflict)
	assert.Equal(t, int64(4), store.saves.Load())
	assert.Equal(t, 3, availableSeats(t, store.MemoryBookingRepository, ride.ID))
}

func TestOrchestrator_RetryStopsOnCancelledContext(t *testing.T) {
	store := &conflictStore{MemoryBookingRepository: database.NewMemoryBookingRepository()}
	ride := &models.Ride{DriverID: uuid.New(), TotalSeats: 3, AvailableSeats: 3}
	require.NoError(t, store.CreateRide(context.Background(), ride))

	service := NewBookingOrchestratorService(
		store,
		newTestMachine(false),
		BookingOrchestratorConfig{MaxRetries: 10, RetryBackoff: time.Hour},
		testLogger(),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := service.CreateBooking(ctx, ride.ID, uuid.New(), 1)
	assert.ErrorIs(t, err, models.ErrUnavailable)
	assert.Equal(t, int64(1), store.saves.Load())
}

// failingStore fails every read with a driver error
type failingStore struct {
	*database.MemoryBookingRepository
}

func (failingStore) GetRide(ctx context.Context, rideID uuid.UUID) (*models.Ride, error) {
	return nil, errors.New("connection refused")
}

func TestOrchestrator_StoreFaultIsUnavailable(t *testing.T) {
	service := NewBookingOrchestratorService(
		failingStore{database.NewMemoryBookingRepository()},
		newTestMachine(false),
		DefaultOrchestratorConfig(),
		testLogger(),
	)

	_, err := service.CreateBooking(context.Background(), uuid.New(), uuid.New(), 1)
	assert.ErrorIs(t, err, models.ErrUnavailable)
	assert.NotErrorIs(t, err, models.ErrNotFound)
}

func TestClassify(t *testing.T) {
	assert.ErrorIs(t, classify(models.ErrBookingNotFound), models.ErrNotFound)
	assert.Equal(t, models.ErrInvalidCode, classify(models.ErrInvalidCode))
	assert.ErrorIs(t, classify(database.ErrVersionConflict), models.ErrConflict)
	assert.ErrorIs(t, classify(errors.New("disk full")), models.ErrUnavailable)

	capacity := &models.CapacityExceededError{Requested: 2, Remaining: 1}
	assert.Same(t, capacity, classify(capacity))
}

func TestOrchestrator_FullRideRejects(t *testing.T) {
	service, store := newTestOrchestrator(t, false)
	ride := seedTestRide(t, store, 2)
	ctx := context.Background()

	_, err := service.CreateBooking(ctx, ride.ID, uuid.New(), 2)
	require.NoError(t, err)
	require.Equal(t, 0, availableSeats(t, store, ride.ID))

	_, err = service.CreateBooking(ctx, ride.ID, uuid.New(), 1)
	var capacityErr *models.CapacityExceededError
	require.ErrorAs(t, err, &capacityErr)
	assert.Equal(t, 0, capacityErr.Remaining)
}
