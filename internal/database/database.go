package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
	_ "github.com/mattn/go-sqlite3"
)

// DB wraps sql.DB and owns the per-resource claim locks.
type DB struct {
	*sql.DB
	log zerolog.Logger

	// resourceLocks serializes check-and-claim per resource so that
	// unrelated resources never block each other.
	resourceLocks sync.Map // map[int64]*sync.Mutex
}

// NewDB opens (or creates) the database at path and runs migrations.
func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// sqlite handles one writer at a time; a single pooled connection
	// avoids "database is locked" errors and keeps :memory: databases
	// stable across the pool.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if err := createTables(db); err != nil {
		return nil, fmt.Errorf("create tables: %w", err)
	}

	var log zerolog.Logger
	if logger != nil {
		log = logger.With().Str("component", "database").Logger()
	}
	log.Info().Str("path", path).Msg("database initialized")

	return &DB{DB: db, log: log}, nil
}

// lockResource returns the mutex guarding claim operations for one resource.
func (db *DB) lockResource(resourceID int64) *sync.Mutex {
	v, _ := db.resourceLocks.LoadOrStore(resourceID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS companies (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            name TEXT UNIQUE NOT NULL,
            fee_rate_bps INTEGER NOT NULL DEFAULT 0,
            min_advance_bps INTEGER NOT NULL DEFAULT 0,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
        )`,

		`CREATE TABLE IF NOT EXISTS resources (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            company_id INTEGER NOT NULL,
            name TEXT NOT NULL,
            description TEXT,
            kind TEXT NOT NULL,
            taxable BOOLEAN NOT NULL DEFAULT 1,
            total_quantity INTEGER NOT NULL DEFAULT 0,
            is_active BOOLEAN NOT NULL DEFAULT 1,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            FOREIGN KEY (company_id) REFERENCES companies(id)
        )`,

		`CREATE TABLE IF NOT EXISTS pricing_rules (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            resource_id INTEGER NOT NULL,
            amount_cents INTEGER NOT NULL,
            unit TEXT NOT NULL,
            is_default BOOLEAN NOT NULL DEFAULT 0,
            FOREIGN KEY (resource_id) REFERENCES resources(id)
        )`,

		`CREATE TABLE IF NOT EXISTS taxes (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            company_id INTEGER NOT NULL,
            name TEXT NOT NULL,
            rate_bps INTEGER NOT NULL,
            applies_to TEXT NOT NULL DEFAULT 'both',
            is_active BOOLEAN NOT NULL DEFAULT 1,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            UNIQUE (company_id, name),
            FOREIGN KEY (company_id) REFERENCES companies(id)
        )`,

		`CREATE TABLE IF NOT EXISTS bookings (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            reference TEXT UNIQUE NOT NULL,
            resource_id INTEGER NOT NULL,
            resource_name TEXT NOT NULL,
            user_id INTEGER NOT NULL,
            company_id INTEGER NOT NULL,
            start_time DATETIME,
            end_time DATETIME,
            quantity INTEGER NOT NULL DEFAULT 0,
            duration_units INTEGER NOT NULL DEFAULT 1,
            status TEXT NOT NULL DEFAULT 'pending',
            payment_status TEXT NOT NULL DEFAULT 'pending',
            total_cents INTEGER NOT NULL DEFAULT 0,
            currency TEXT NOT NULL DEFAULT 'USD',
            notes TEXT,
            deleted_at DATETIME,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            version INTEGER NOT NULL DEFAULT 1,
            FOREIGN KEY (resource_id) REFERENCES resources(id)
        )`,

		`CREATE TABLE IF NOT EXISTS booking_status_events (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            booking_id INTEGER NOT NULL,
            axis TEXT NOT NULL,
            from_value TEXT NOT NULL,
            to_value TEXT NOT NULL,
            actor TEXT NOT NULL,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            FOREIGN KEY (booking_id) REFERENCES bookings(id)
        )`,

		`CREATE TABLE IF NOT EXISTS pending_transactions (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            reference TEXT UNIQUE NOT NULL,
            user_id INTEGER NOT NULL,
            company_id INTEGER NOT NULL,
            booking_id INTEGER NOT NULL DEFAULT 0,
            type TEXT NOT NULL DEFAULT 'booking',
            amount_cents INTEGER NOT NULL,
            currency TEXT NOT NULL DEFAULT 'USD',
            method TEXT NOT NULL,
            timing_plan TEXT NOT NULL DEFAULT 'full',
            status TEXT NOT NULL DEFAULT 'pending',
            provider_ref TEXT,
            processed_by TEXT,
            rejection_reason TEXT,
            notes TEXT,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            version INTEGER NOT NULL DEFAULT 1
        )`,

		`CREATE TABLE IF NOT EXISTS webhook_events (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            provider TEXT NOT NULL,
            provider_event_id TEXT NOT NULL,
            provider_ref TEXT NOT NULL,
            provider_status TEXT NOT NULL,
            amount_cents INTEGER,
            payload TEXT,
            status TEXT NOT NULL DEFAULT 'pending',
            retry_count INTEGER NOT NULL DEFAULT 0,
            last_error TEXT,
            next_retry_at DATETIME,
            processed_at DATETIME,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            UNIQUE (provider, provider_event_id)
        )`,

		`CREATE INDEX IF NOT EXISTS idx_resources_company ON resources(company_id)`,
		`CREATE INDEX IF NOT EXISTS idx_pricing_rules_resource ON pricing_rules(resource_id)`,
		`CREATE INDEX IF NOT EXISTS idx_taxes_company ON taxes(company_id)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_resource_times ON bookings(resource_id, start_time, end_time)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_status ON bookings(status)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_user ON bookings(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_status_events_booking ON booking_status_events(booking_id)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_booking ON pending_transactions(booking_id)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_provider_ref ON pending_transactions(provider_ref)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_status ON pending_transactions(status)`,
		`CREATE INDEX IF NOT EXISTS idx_webhook_events_status ON webhook_events(status)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("exec migration: %w", err)
		}
	}
	return nil
}
