package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ridefusion/booking-backend/internal/config"
	"github.com/ridefusion/booking-backend/internal/database"
	"github.com/ridefusion/booking-backend/internal/models"
	"github.com/ridefusion/booking-backend/internal/services"
	"github.com/sirupsen/logrus"
)

// Fires concurrent bookings at one ride on the configured store and checks
// that seats were never oversold.
func main() {
	seats := flag.Int("seats", 10, "capacity of the test ride")
	passengers := flag.Int("passengers", 40, "number of concurrent booking requests")
	perBooking := flag.Int("per-booking", 2, "seats requested by each passenger")
	keep := flag.Bool("keep", false, "keep the test ride instead of deleting it")
	flag.Parse()

	fmt.Println("🧪 RideFusion Booking Concurrency Check")
	fmt.Println()

	cfg := config.FromEnv()
	cfg.JWT.Secret = "unused"
	if err := cfg.Validate(); err != nil {
		log.Fatalf("❌ Invalid config: %v", err)
	}

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(logrus.WarnLevel)

	ctx := context.Background()
	store, err := database.OpenStore(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("❌ Failed to open %s store: %v", cfg.Store.Driver, err)
	}
	fmt.Printf("✅ Store: %s\n", store.Driver)

	machine := services.NewBookingStateMachine(services.LifecycleConfig{
		MaxSeatsPerBooking: cfg.Booking.MaxSeatsPerBooking,
	}, services.NewSeatInventory(logger), services.NewOTPService())
	bookings := services.NewBookingOrchestratorService(store, machine, services.BookingOrchestratorConfig{
		MaxRetries:   cfg.Booking.MaxRetries * 5,
		RetryBackoff: cfg.Booking.RetryBackoff,
	}, logger)
	rides := services.NewRideService(store, logger)

	_, code := execute(ctx, store, rides, bookings, checkOptions{
		Seats:      *seats,
		Passengers: *passengers,
		PerBooking: *perBooking,
		Keep:       *keep,
	})
	// os.Exit skips defers
	store.Close()
	os.Exit(code)
}

type checkOptions struct {
	Seats      int
	Passengers int
	PerBooking int
	Keep       bool
}

// execute creates the test ride, runs the check and removes the ride again
// unless Keep is set, whatever the outcome
func execute(ctx context.Context, store *database.Store, rides *services.RideService, bookings *services.BookingOrchestratorService, opts checkOptions) (uuid.UUID, int) {
	driverID := uuid.New()
	ride, err := rides.CreateRide(ctx, driverID, &models.CreateRideRequest{
		StartLocation: "Concurrency Check Origin",
		EndLocation:   "Concurrency Check Destination",
		StartDateTime: time.Now().Add(time.Hour),
		Seats:         opts.Seats,
	})
	if err != nil {
		fmt.Printf("❌ Failed to create ride: %v\n", err)
		return uuid.Nil, 1
	}
	fmt.Printf("✅ Ride %s created with %d seats\n", ride.ID, ride.TotalSeats)

	code := run(ctx, store, bookings, ride, driverID, opts.Passengers, opts.PerBooking)

	if !opts.Keep {
		if err := rides.DeleteRide(ctx, ride.ID, driverID); err != nil {
			fmt.Printf("⚠️  Failed to delete test ride %s: %v\n", ride.ID, err)
			code = 1
		}
	}
	return ride.ID, code
}

// run books the ride concurrently and returns the process exit code
func run(ctx context.Context, store *database.Store, bookings *services.BookingOrchestratorService, ride *models.Ride, driverID uuid.UUID, passengers, perBooking int) int {
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		confirmed int
		rejected  int
		conflicts int
		failures  []error
	)
	start := time.Now()
	for i := 0; i < passengers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := bookings.CreateBooking(ctx, ride.ID, uuid.New(), perBooking)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				confirmed++
			case errors.Is(err, models.ErrCapacityExceeded):
				rejected++
			case errors.Is(err, models.ErrConflict):
				conflicts++
			default:
				failures = append(failures, err)
			}
		}()
	}
	wg.Wait()
	elapsed := time.Since(start)

	final, err := store.GetRide(ctx, ride.ID)
	if err != nil {
		fmt.Printf("❌ Failed to reload ride: %v\n", err)
		return 1
	}
	held, err := bookings.ListRideBookings(ctx, ride.ID, driverID)
	if err != nil {
		fmt.Printf("❌ Failed to list bookings: %v\n", err)
		return 1
	}
	reserved := 0
	for _, b := range held {
		if b.SeatsReserved {
			reserved += b.SeatsBooked
		}
	}

	fmt.Println()
	fmt.Printf("Requests:   %d x %d seats in %s\n", passengers, perBooking, elapsed.Round(time.Millisecond))
	fmt.Printf("Confirmed:  %d\n", confirmed)
	fmt.Printf("Rejected:   %d (capacity)\n", rejected)
	fmt.Printf("Conflicts:  %d (retry budget exhausted)\n", conflicts)
	fmt.Printf("Failures:   %d\n", len(failures))
	fmt.Printf("Available:  %d of %d, reserved by bookings: %d\n", final.AvailableSeats, final.TotalSeats, reserved)
	for _, err := range failures {
		fmt.Printf("  - %v\n", err)
	}
	fmt.Println()

	if final.AvailableSeats < 0 || final.AvailableSeats+reserved != final.TotalSeats || confirmed*perBooking != reserved {
		fmt.Println("❌ Seat counts do not balance")
		return 1
	}
	fmt.Println("✅ No seats oversold")
	return 0
}
