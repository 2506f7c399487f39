package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ridefusion/booking-backend/internal/models"
	"github.com/sirupsen/logrus"
)

// RideStore is the persistence the ride service needs
type RideStore interface {
	CreateRide(ctx context.Context, ride *models.Ride) error
	GetRide(ctx context.Context, rideID uuid.UUID) (*models.Ride, error)
	DeleteRide(ctx context.Context, rideID uuid.UUID) error
}

// RideService handles the ride lifecycle around the booking engine: drivers
// offer rides and delete their own. Seat counters are never changed here
// after creation.
type RideService struct {
	store  RideStore
	logger *logrus.Logger
	now    func() time.Time
}

// NewRideService creates a new ride service
func NewRideService(store RideStore, logger *logrus.Logger) *RideService {
	return &RideService{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// CreateRide offers a new ride; its capacity is fixed at the requested seats
func (s *RideService) CreateRide(ctx context.Context, driverID uuid.UUID, req *models.CreateRideRequest) (*models.Ride, error) {
	if driverID == uuid.Nil {
		return nil, fmt.Errorf("%w: unable to identify current user", models.ErrUnauthorized)
	}
	if err := req.Validate(s.now()); err != nil {
		return nil, err
	}

	ride := &models.Ride{
		ID:               uuid.New(),
		DriverID:         driverID,
		StartLocation:    req.StartLocation,
		EndLocation:      req.EndLocation,
		StartDateTime:    req.StartDateTime.UTC(),
		TotalSeats:       req.Seats,
		AvailableSeats:   req.Seats,
		PricePerSeat:     req.PricePerSeat,
		DistanceKm:       req.DistanceKm,
		EstimatedMinutes: req.EstimatedMinutes,
	}

	if err := s.store.CreateRide(ctx, ride); err != nil {
		return nil, classify(err)
	}

	s.logger.WithFields(logrus.Fields{
		"ride_id":   ride.ID,
		"driver_id": driverID,
		"seats":     ride.TotalSeats,
	}).Info("Ride created successfully")

	return ride, nil
}

// GetRide retrieves a ride
func (s *RideService) GetRide(ctx context.Context, rideID uuid.UUID) (*models.Ride, error) {
	ride, err := s.store.GetRide(ctx, rideID)
	if err != nil {
		return nil, classify(err)
	}
	return ride, nil
}

// DeleteRide removes a ride owned by driverID together with its bookings
func (s *RideService) DeleteRide(ctx context.Context, rideID uuid.UUID, driverID uuid.UUID) error {
	ride, err := s.store.GetRide(ctx, rideID)
	if err != nil {
		return classify(err)
	}
	if ride.DriverID != driverID {
		return fmt.Errorf("%w: ride belongs to another driver", models.ErrUnauthorized)
	}

	if err := s.store.DeleteRide(ctx, rideID); err != nil {
		return classify(err)
	}

	s.logger.WithFields(logrus.Fields{
		"ride_id":   rideID,
		"driver_id": driverID,
	}).Info("Ride deleted")
	return nil
}
