package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/matcha-bookable/bookable-bot/internal/config"
	"github.com/matcha-bookable/bookable-bot/internal/database"
)

func main() {
	var dbURLFlag string
	var olderThanDays int
	flag.StringVar(&dbURLFlag, "database-url", "", "PostgreSQL connection string (overrides DATABASE_URL)")
	flag.IntVar(&olderThanDays, "older-than-days", 30, "delete audit entries older than this many days (0 deletes everything)")
	flag.Parse()

	// Try loading .env from current working directory (optional)
	_ = godotenv.Load()

	dbURL := dbURLFlag
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set and -database-url was not provided")
	}
	if olderThanDays < 0 {
		log.Fatal("-older-than-days must not be negative")
	}

	// Build minimal database config without loading full app config
	dbCfg := config.DatabaseConfig{
		URL:                dbURL,
		MaxConnections:     2,
		MaxIdleConnections: 1,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	db, err := database.NewConnection(ctx, dbCfg)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	repo := database.NewBookingAuditRepository(db)

	cutoff := time.Now().Add(time.Duration(-olderThanDays) * 24 * time.Hour)
	fmt.Printf("Connected to database. Deleting audit entries before %s...\n", cutoff.Format(time.RFC3339))

	deleted, err := repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		log.Fatalf("failed to purge audit entries: %v", err)
	}

	fmt.Printf("Deleted %d audit entries.\n", deleted)
}
