package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/matcha-bookable/bookable-bot/internal/config"
)

// DB is the subset of sqlx used by the audit trail
type DB interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	PingContext(ctx context.Context) error
	Close() error
}

// PostgresDB implements DB using sqlx
type PostgresDB struct {
	*sqlx.DB
}

// NewConnection opens the audit database. Booking state itself never lives
// here; the database only receives a write-only history of lifecycle events.
func NewConnection(ctx context.Context, cfg config.DatabaseConfig) (*PostgresDB, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	// Transaction poolers (Supavisor, pgbouncer) cannot hold named statements
	connectionURL := cfg.URL
	if !strings.Contains(connectionURL, "binary_parameters") {
		separator := "?"
		if strings.Contains(connectionURL, "?") {
			separator = "&"
		}
		connectionURL = connectionURL + separator + "binary_parameters=yes"
	}

	db, err := sqlx.ConnectContext(ctx, "postgres", connectionURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxIdleConnections)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxLifetime / 2)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresDB{DB: db}, nil
}

// EnsureAuditSchema creates the audit table when it does not exist yet
func EnsureAuditSchema(ctx context.Context, db DB) error {
	_, err := db.ExecContext(ctx, auditSchema)
	if err != nil {
		return fmt.Errorf("failed to create audit schema: %w", err)
	}
	return nil
}

const auditSchema = `
CREATE TABLE IF NOT EXISTS booking_audit_logs (
	id          UUID PRIMARY KEY,
	owner_id    TEXT NOT NULL,
	booking_id  BIGINT,
	action      TEXT NOT NULL,
	region      TEXT,
	status_code INTEGER,
	details     JSONB,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS booking_audit_logs_owner_idx ON booking_audit_logs (owner_id, created_at DESC);
`
