// Package store provides storage backends for IntakePipe.
//
// This file implements an SQLite-backed lead archive.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "embed"

	"github.com/BTreeMap/IntakePipe/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore archives leads and dedup records in a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	// SQLite allows a single writer; serialize through one connection.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		db.Close()
		return nil, err
	}

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully", "path", dsn)

	return &SQLiteStore{db: db}, nil
}

// SaveLead inserts a lead. Saving the same lead id twice is an error.
func (s *SQLiteStore) SaveLead(ctx context.Context, lead models.Lead) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO leads (id, phone, coverage_type, plan, priority, elder_over_75, family_detail, personal_data, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		lead.ID, lead.Phone, lead.CoverageType, lead.Plan, lead.Priority, nullableBool(lead.ElderOver75),
		lead.FamilyDetail, lead.PersonalData, lead.CreatedAt.UTC(),
	)
	if err != nil {
		slog.Error("SQLiteStore SaveLead failed", "error", err, "id", lead.ID)
		return fmt.Errorf("failed to insert lead %s: %w", lead.ID, err)
	}
	slog.Debug("SQLiteStore SaveLead succeeded", "id", lead.ID, "plan", lead.Plan)
	return nil
}

// ListLeads returns every archived lead, oldest first.
func (s *SQLiteStore) ListLeads(ctx context.Context) ([]models.Lead, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, phone, coverage_type, plan, priority, elder_over_75, family_detail, personal_data, created_at
		 FROM leads ORDER BY created_at, id`)
	if err != nil {
		slog.Error("SQLiteStore ListLeads query failed", "error", err)
		return nil, fmt.Errorf("failed to query leads: %w", err)
	}
	defer rows.Close()
	return scanLeads(rows)
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	return s.db.Close()
}

// nullableBool maps an unknown tri-state flag to SQL NULL.
func nullableBool(b *bool) interface{} {
	if b == nil {
		return nil
	}
	return *b
}

// scanLeads reads lead rows in the column order used by ListLeads.
func scanLeads(rows *sql.Rows) ([]models.Lead, error) {
	var leads []models.Lead
	for rows.Next() {
		var l models.Lead
		var elder sql.NullBool
		if err := rows.Scan(&l.ID, &l.Phone, &l.CoverageType, &l.Plan, &l.Priority, &elder,
			&l.FamilyDetail, &l.PersonalData, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan lead row: %w", err)
		}
		if elder.Valid {
			v := elder.Bool
			l.ElderOver75 = &v
		}
		leads = append(leads, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate lead rows: %w", err)
	}
	return leads, nil
}
