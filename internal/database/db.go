package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL URLs
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL URLs
)

// Sentinel errors returned by the store.
var (
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("database: not found")
	// ErrInvariant indicates an ownership or state invariant was violated,
	// e.g. a draft referencing a nonexistent thread. Unrecoverable.
	ErrInvariant = errors.New("database: invariant violation")
)

const (
	driverMySQL    = "mysql"
	driverPostgres = "postgres"
)

// New creates a new database connection (supports both MySQL and PostgreSQL)
func New(databaseURL string) (*sqlx.DB, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable not set")
	}

	db, err := sqlx.Open(DriverFor(databaseURL), databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool settings
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// DriverFor auto-detects the sqlx driver name from a database URL.
func DriverFor(databaseURL string) string {
	if strings.HasPrefix(databaseURL, driverPostgres) {
		return driverPostgres
	}
	return driverMySQL
}
