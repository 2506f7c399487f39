package database

import (
	"context"
	"io"
	"testing"

	"github.com/ridefusion/booking-backend/internal/config"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenStore(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	ctx := context.Background()

	t.Run("Memory", func(t *testing.T) {
		cfg := &config.Config{Store: config.StoreConfig{Driver: config.StoreDriverMemory}}

		store, err := OpenStore(ctx, cfg, logger)
		require.NoError(t, err)
		defer store.Close()

		assert.Nil(t, store.SQL)
		assert.Equal(t, config.StoreDriverMemory, store.Driver)
		assert.NoError(t, store.Ping(ctx))
		assert.IsType(t, &MemoryBookingRepository{}, store.Repository)
	})

	t.Run("Unknown Driver", func(t *testing.T) {
		cfg := &config.Config{Store: config.StoreConfig{Driver: "cassandra"}}

		_, err := OpenStore(ctx, cfg, logger)
		assert.Error(t, err)
	})

	t.Run("Postgres Without URL", func(t *testing.T) {
		cfg := &config.Config{Store: config.StoreConfig{Driver: config.StoreDriverPostgres}}

		_, err := OpenStore(ctx, cfg, logger)
		assert.ErrorContains(t, err, "database URL is required")
	})
}
