// Package store provides storage backends for IntakePipe.
//
// This file implements a PostgreSQL-backed lead archive.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/BTreeMap/IntakePipe/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore archives leads and dedup records in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{db: db}, nil
}

// SaveLead inserts a lead.
func (s *PostgresStore) SaveLead(ctx context.Context, lead models.Lead) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO leads (id, phone, coverage_type, plan, priority, elder_over_75, family_detail, personal_data, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		lead.ID, lead.Phone, lead.CoverageType, lead.Plan, lead.Priority, nullableBool(lead.ElderOver75),
		lead.FamilyDetail, lead.PersonalData, lead.CreatedAt.UTC(),
	)
	if err != nil {
		slog.Error("PostgresStore SaveLead failed", "error", err, "id", lead.ID)
		return fmt.Errorf("failed to insert lead %s: %w", lead.ID, err)
	}
	slog.Debug("PostgresStore SaveLead succeeded", "id", lead.ID, "plan", lead.Plan)
	return nil
}

// ListLeads returns every archived lead, oldest first.
func (s *PostgresStore) ListLeads(ctx context.Context) ([]models.Lead, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, phone, coverage_type, plan, priority, elder_over_75, family_detail, personal_data, created_at
		 FROM leads ORDER BY created_at, id`)
	if err != nil {
		slog.Error("PostgresStore ListLeads query failed", "error", err)
		return nil, fmt.Errorf("failed to query leads: %w", err)
	}
	defer rows.Close()
	return scanLeads(rows)
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing Postgres database connection")
	return s.db.Close()
}
