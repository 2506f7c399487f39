package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// schema creates the ride and booking tables. Bookings cascade with their ride;
// passenger references are owned by the identity service's schema.
const schema = `
CREATE TABLE IF NOT EXISTS rides (
	id                UUID PRIMARY KEY,
	driver_id         UUID NOT NULL,
	start_location    VARCHAR(200) NOT NULL,
	end_location      VARCHAR(200) NOT NULL,
	start_datetime    TIMESTAMPTZ NOT NULL,
	total_seats       INTEGER NOT NULL CHECK (total_seats BETWEEN 1 AND 50),
	available_seats   INTEGER NOT NULL,
	price_per_seat    NUMERIC(10, 2) NOT NULL DEFAULT 0,
	distance_km       DOUBLE PRECISION,
	estimated_minutes INTEGER,
	version           BIGINT NOT NULL DEFAULT 1,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	CONSTRAINT rides_available_seats_range CHECK (available_seats >= 0 AND available_seats <= total_seats)
);

CREATE INDEX IF NOT EXISTS idx_rides_driver_id ON rides (driver_id);

CREATE TABLE IF NOT EXISTS bookings (
	id                UUID PRIMARY KEY,
	ride_id           UUID NOT NULL REFERENCES rides (id) ON DELETE CASCADE,
	passenger_id      UUID NOT NULL,
	seats_booked      INTEGER NOT NULL CHECK (seats_booked BETWEEN 1 AND 10),
	status            VARCHAR(30) NOT NULL,
	confirmation_code VARCHAR(10),
	is_verified       BOOLEAN NOT NULL DEFAULT FALSE,
	seats_reserved    BOOLEAN NOT NULL DEFAULT FALSE,
	version           BIGINT NOT NULL DEFAULT 1,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	confirmed_at      TIMESTAMPTZ,
	cancelled_at      TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_bookings_ride_id ON bookings (ride_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_bookings_passenger_id ON bookings (passenger_id, created_at DESC);

CREATE TABLE IF NOT EXISTS booking_audit_logs (
	id          UUID PRIMARY KEY,
	user_id     UUID NOT NULL,
	action      VARCHAR(50) NOT NULL,
	booking_id  UUID NOT NULL,
	ride_id     UUID NOT NULL,
	ip_address  VARCHAR(64),
	user_agent  TEXT,
	details     JSONB,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// Migrate creates the booking schema if it does not already exist
func Migrate(ctx context.Context, db DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// TruncateAll empties tables and resets their identities
func TruncateAll(ctx context.Context, db DB, tables []string) error {
	if len(tables) == 0 {
		return nil
	}

	quoted := make([]string, len(tables))
	for i, t := range tables {
		quoted[i] = pq.QuoteIdentifier(t)
	}

	query := fmt.Sprintf("TRUNCATE TABLE %s RESTART IDENTITY CASCADE", strings.Join(quoted, ", "))
	if _, err := db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to truncate tables: %w", err)
	}
	return nil
}
