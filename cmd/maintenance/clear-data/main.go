package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/joho/godotenv"
	"github.com/ridefusion/booking-backend/internal/config"
	"github.com/ridefusion/booking-backend/internal/database"
)

// tables in truncation order; CASCADE covers the foreign keys regardless
var tables = []string{
	"booking_audit_logs",
	"bookings",
	"rides",
}

// Empties the booking tables of a PostgreSQL store. Intended for local and
// staging databases between load runs.
func main() {
	dbURL := flag.String("database-url", "", "PostgreSQL connection string (overrides DATABASE_URL)")
	migrate := flag.Bool("migrate", false, "apply the schema before clearing")
	yes := flag.Bool("yes", false, "confirm that all rides, bookings and audit rows may be deleted")
	flag.Parse()

	_ = godotenv.Load()
	dbCfg := config.FromEnv().Database
	if *dbURL != "" {
		dbCfg.URL = *dbURL
	}
	if dbCfg.URL == "" {
		log.Fatal("no database: set DATABASE_URL or pass -database-url")
	}
	if !*yes {
		log.Fatal("refusing to clear data without -yes")
	}
	dbCfg.MaxConnections, dbCfg.MaxIdleConnections = 2, 1

	db, err := database.NewConnection(dbCfg)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	if *migrate {
		if err := database.Migrate(ctx, db); err != nil {
			log.Fatalf("migrate: %v", err)
		}
		fmt.Println("Schema applied.")
	}

	fmt.Printf("Truncating %d booking tables...\n", len(tables))
	if err := database.TruncateAll(ctx, db, tables); err != nil {
		log.Fatalf("truncate: %v", err)
	}
	reportCounts(ctx, db)
}

func reportCounts(ctx context.Context, db database.DB) {
	fmt.Println("Rows remaining:")
	for _, table := range tables {
		var n int
		err := db.GetContext(ctx, &n, "SELECT COUNT(*) FROM "+table)
		if err != nil {
			fmt.Printf("  %-20s error: %v\n", table, err)
			continue
		}
		fmt.Printf("  %-20s %d\n", table, n)
	}
}
