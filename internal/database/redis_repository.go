package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/ridefusion/booking-backend/internal/models"
)

// RedisBookingRepository stores rides and bookings as JSON documents in Redis.
// Version-checked writes use WATCH/MULTI: a concurrent write to a watched key
// aborts the transaction with redis.TxFailedErr, reported as ErrVersionConflict.
type RedisBookingRepository struct {
	client *redis.Client
	prefix string
}

// NewRedisClient parses a redis:// URL and verifies the connection
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return client, nil
}

// NewRedisBookingRepository creates a repository whose keys all start with prefix
func NewRedisBookingRepository(client *redis.Client, prefix string) *RedisBookingRepository {
	if prefix == "" {
		prefix = "ridefusion"
	}
	return &RedisBookingRepository{client: client, prefix: prefix}
}

func (r *RedisBookingRepository) rideKey(id uuid.UUID) string {
	return fmt.Sprintf("%s:ride:%s", r.prefix, id)
}

func (r *RedisBookingRepository) bookingKey(id uuid.UUID) string {
	return fmt.Sprintf("%s:booking:%s", r.prefix, id)
}

func (r *RedisBookingRepository) rideBookingsKey(id uuid.UUID) string {
	return fmt.Sprintf("%s:ride:%s:bookings", r.prefix, id)
}

func (r *RedisBookingRepository) passengerBookingsKey(id uuid.UUID) string {
	return fmt.Sprintf("%s:passenger:%s:bookings", r.prefix, id)
}

// CreateRide stores a new ride at version 1
func (r *RedisBookingRepository) CreateRide(ctx context.Context, ride *models.Ride) error {
	if ride.ID == uuid.Nil {
		ride.ID = uuid.New()
	}

	stored := *ride
	now := time.Now().UTC()
	stored.Version = 1
	stored.CreatedAt = now
	stored.UpdatedAt = now

	data, err := json.Marshal(storedRide(stored))
	if err != nil {
		return fmt.Errorf("failed to encode ride: %w", err)
	}

	created, err := r.client.SetNX(ctx, r.rideKey(ride.ID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to create ride: %w", err)
	}
	if !created {
		return ErrVersionConflict
	}

	*ride = stored
	return nil
}

// GetRide retrieves a ride by ID
func (r *RedisBookingRepository) GetRide(ctx context.Context, rideID uuid.UUID) (*models.Ride, error) {
	return r.getRide(ctx, r.client, rideID)
}

// DeleteRide removes a ride, its bookings and their index entries
func (r *RedisBookingRepository) DeleteRide(ctx context.Context, rideID uuid.UUID) error {
	rideKey := r.rideKey(rideID)
	indexKey := r.rideBookingsKey(rideID)

	txf := func(tx *redis.Tx) error {
		if _, err := r.getRide(ctx, tx, rideID); err != nil {
			return err
		}

		ids, err := tx.ZRange(ctx, indexKey, 0, -1).Result()
		if err != nil {
			return fmt.Errorf("failed to list ride bookings: %w", err)
		}
		bookings, err := r.loadBookings(ctx, tx, ids)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, b := range bookings {
				pipe.Del(ctx, r.bookingKey(b.ID))
				pipe.ZRem(ctx, r.passengerBookingsKey(b.PassengerID), b.ID.String())
			}
			pipe.Del(ctx, indexKey, rideKey)
			return nil
		})
		return err
	}

	return r.watch(ctx, txf, rideKey, indexKey)
}

// GetBooking retrieves a booking by ID
func (r *RedisBookingRepository) GetBooking(ctx context.Context, bookingID uuid.UUID) (*models.Booking, error) {
	return r.getBooking(ctx, r.client, bookingID)
}

// GetBookingsByPassenger retrieves a passenger's bookings, newest first
func (r *RedisBookingRepository) GetBookingsByPassenger(ctx context.Context, passengerID uuid.UUID) ([]models.Booking, error) {
	return r.listIndex(ctx, r.passengerBookingsKey(passengerID))
}

// GetBookingsByRide retrieves a ride's bookings, newest first
func (r *RedisBookingRepository) GetBookingsByRide(ctx context.Context, rideID uuid.UUID) ([]models.Booking, error) {
	return r.listIndex(ctx, r.rideBookingsKey(rideID))
}

// SaveBooking writes the booking and optionally the ride in one MULTI block,
// provided both still carry the versions the caller read
func (r *RedisBookingRepository) SaveBooking(ctx context.Context, ride *models.Ride, booking *models.Booking) error {
	keys := []string{r.bookingKey(booking.ID)}
	if ride != nil {
		keys = append(keys, r.rideKey(ride.ID))
	}
	// A new booking needs its ride to exist until EXEC
	checkParent := booking.IsNew() && (ride == nil || ride.ID != booking.RideID)
	if checkParent {
		keys = append(keys, r.rideKey(booking.RideID))
	}

	now := time.Now().UTC()
	nextBooking := *booking
	nextBooking.Version++
	nextBooking.UpdatedAt = now

	var nextRide models.Ride
	if ride != nil {
		nextRide = *ride
		nextRide.Version++
		nextRide.UpdatedAt = now
	}

	txf := func(tx *redis.Tx) error {
		if ride != nil {
			current, err := r.getRide(ctx, tx, ride.ID)
			if err != nil {
				return err
			}
			if current.Version != ride.Version {
				return ErrVersionConflict
			}
		}

		if checkParent {
			n, err := tx.Exists(ctx, r.rideKey(booking.RideID)).Result()
			if err != nil {
				return fmt.Errorf("failed to check ride: %w", err)
			}
			if n == 0 {
				return models.ErrRideNotFound
			}
		}

		current, err := r.getBooking(ctx, tx, booking.ID)
		switch {
		case errors.Is(err, models.ErrBookingNotFound):
			if !booking.IsNew() {
				return err
			}
		case err != nil:
			return err
		case booking.IsNew() || current.Version != booking.Version:
			return ErrVersionConflict
		}

		bookingData, err := json.Marshal(storedBooking(nextBooking))
		if err != nil {
			return fmt.Errorf("failed to encode booking: %w", err)
		}
		var rideData []byte
		if ride != nil {
			if rideData, err = json.Marshal(storedRide(nextRide)); err != nil {
				return fmt.Errorf("failed to encode ride: %w", err)
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, r.bookingKey(booking.ID), bookingData, 0)
			if ride != nil {
				pipe.Set(ctx, r.rideKey(ride.ID), rideData, 0)
			}
			if booking.IsNew() {
				member := redis.Z{Score: bookingScore(booking.CreatedAt), Member: booking.ID.String()}
				pipe.ZAdd(ctx, r.rideBookingsKey(booking.RideID), member)
				pipe.ZAdd(ctx, r.passengerBookingsKey(booking.PassengerID), member)
			}
			return nil
		})
		return err
	}

	if err := r.watch(ctx, txf, keys...); err != nil {
		return err
	}

	*booking = nextBooking
	if ride != nil {
		*ride = nextRide
	}
	return nil
}

// bookingScore orders the booking indexes by creation time. Microseconds fit
// a float64 exactly and match the precision PostgreSQL keeps for created_at.
func bookingScore(createdAt time.Time) float64 {
	return float64(createdAt.UnixMicro())
}

// Ping checks that Redis is reachable
func (r *RedisBookingRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// watch runs txf under WATCH and maps an aborted EXEC to ErrVersionConflict
func (r *RedisBookingRepository) watch(ctx context.Context, txf func(tx *redis.Tx) error, keys ...string) error {
	err := r.client.Watch(ctx, txf, keys...)
	if errors.Is(err, redis.TxFailedErr) {
		return ErrVersionConflict
	}
	return err
}

func (r *RedisBookingRepository) getRide(ctx context.Context, c redis.StringCmdable, rideID uuid.UUID) (*models.Ride, error) {
	data, err := c.Get(ctx, r.rideKey(rideID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, models.ErrRideNotFound
		}
		return nil, fmt.Errorf("failed to get ride: %w", err)
	}

	var doc storedRide
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode ride: %w", err)
	}
	ride := models.Ride(doc)
	return &ride, nil
}

func (r *RedisBookingRepository) getBooking(ctx context.Context, c redis.StringCmdable, bookingID uuid.UUID) (*models.Booking, error) {
	data, err := c.Get(ctx, r.bookingKey(bookingID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, models.ErrBookingNotFound
		}
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}

	var doc storedBooking
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode booking: %w", err)
	}
	booking := models.Booking(doc)
	return &booking, nil
}

func (r *RedisBookingRepository) listIndex(ctx context.Context, indexKey string) ([]models.Booking, error) {
	ids, err := r.client.ZRevRange(ctx, indexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	return r.loadBookings(ctx, r.client, ids)
}

func (r *RedisBookingRepository) loadBookings(ctx context.Context, c redis.StringCmdable, ids []string) ([]models.Booking, error) {
	bookings := []models.Booking{}
	if len(ids) == 0 {
		return bookings, nil
	}

	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, fmt.Sprintf("%s:booking:%s", r.prefix, id))
	}

	values, err := c.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load bookings: %w", err)
	}

	for _, value := range values {
		raw, ok := value.(string)
		if !ok {
			continue
		}
		var doc storedBooking
		if err := json.Unmarshal([]byte(raw), &doc); err != nil {
			return nil, fmt.Errorf("failed to decode booking: %w", err)
		}
		bookings = append(bookings, models.Booking(doc))
	}

	return bookings, nil
}

// storedRide and storedBooking share the model layout but encode every field,
// including the ones hidden from API responses.
type storedRide struct {
	ID               uuid.UUID `json:"id"`
	DriverID         uuid.UUID `json:"driver_id"`
	StartLocation    string    `json:"start_location"`
	EndLocation      string    `json:"end_location"`
	StartDateTime    time.Time `json:"start_datetime"`
	TotalSeats       int       `json:"total_seats"`
	AvailableSeats   int       `json:"available_seats"`
	PricePerSeat     float64   `json:"price_per_seat"`
	DistanceKm       *float64  `json:"distance_km"`
	EstimatedMinutes *int      `json:"estimated_minutes"`
	Version          int64     `json:"version"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

type storedBooking struct {
	ID               uuid.UUID            `json:"id"`
	RideID           uuid.UUID            `json:"ride_id"`
	PassengerID      uuid.UUID            `json:"passenger_id"`
	SeatsBooked      int                  `json:"seats_booked"`
	Status           models.BookingStatus `json:"status"`
	ConfirmationCode *string              `json:"confirmation_code"`
	IsVerified       bool                 `json:"is_verified"`
	SeatsReserved    bool                 `json:"seats_reserved"`
	Version          int64                `json:"version"`
	CreatedAt        time.Time            `json:"created_at"`
	UpdatedAt        time.Time            `json:"updated_at"`
	ConfirmedAt      *time.Time           `json:"confirmed_at"`
	CancelledAt      *time.Time           `json:"cancelled_at"`
}
