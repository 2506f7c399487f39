package database

import (
	"context"
	"fmt"
	"time"

	"github.com/ridefusion/booking-backend/internal/config"
	"github.com/sirupsen/logrus"
)

// Store is an opened booking backend
type Store struct {
	Repository
	// SQL is the PostgreSQL handle when the driver is postgres, nil otherwise
	SQL    DB
	Driver string
	close  func() error
}

// Close releases the backend's connections
func (s *Store) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// OpenStore connects the backend selected by cfg.Store.Driver
func OpenStore(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*Store, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	switch cfg.Store.Driver {
	case config.StoreDriverPostgres:
		logger.Info("Connecting to database...")
		db, err := NewConnection(cfg.Database)
		if err != nil {
			return nil, err
		}
		logger.Info("Database connection established")

		if cfg.Database.AutoMigrate {
			if err := Migrate(ctx, db); err != nil {
				db.Close()
				return nil, err
			}
			logger.Info("Database schema is up to date")
		}
		return &Store{Repository: NewBookingRepository(db), SQL: db, Driver: cfg.Store.Driver, close: db.Close}, nil

	case config.StoreDriverRedis:
		logger.Info("Connecting to redis...")
		client, err := NewRedisClient(ctx, cfg.Redis.URL)
		if err != nil {
			return nil, err
		}
		logger.Info("Redis connection established")
		return &Store{Repository: NewRedisBookingRepository(client, cfg.Redis.KeyPrefix), Driver: cfg.Store.Driver, close: client.Close}, nil

	case config.StoreDriverMemory:
		logger.Warn("Using in-memory store; data is lost on restart")
		return &Store{Repository: NewMemoryBookingRepository(), Driver: cfg.Store.Driver}, nil

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}
