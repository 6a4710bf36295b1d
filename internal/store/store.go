// Package store provides storage backends for IntakePipe.
//
// Dialog sessions live in memory for the lifetime of the process. Completed leads and
// inbound message dedup records go to an in-memory, SQLite or PostgreSQL backend
// selected by DSN.
package store

import (
	"context"
	"log/slog"
	"strings"

	"github.com/BTreeMap/IntakePipe/internal/models"
)

// SessionStore maps contact identifiers to dialog sessions.
type SessionStore interface {
	// Get returns the contact's session, creating a START session on first access.
	// The returned pointer is stable for the contact until the session is evicted.
	Get(ctx context.Context, contactID string) (*models.Session, error)

	// Save stores the session under its ContactID.
	Save(ctx context.Context, s *models.Session) error
}

// LeadRepo archives completed leads.
type LeadRepo interface {
	SaveLead(ctx context.Context, lead models.Lead) error
	ListLeads(ctx context.Context) ([]models.Lead, error)
}

// Store is a lead archive with inbound dedup, backed by a single database.
type Store interface {
	LeadRepo
	DedupRepo
	Close() error
}

// Opts holds configuration for database-backed stores.
type Opts struct {
	DSN string // SQLite file path or PostgreSQL connection string
}

// Option configures a store.
type Option func(*Opts)

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType returns "postgres" for PostgreSQL URLs and key=value connection strings, "sqlite3" otherwise.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return "postgres"
	}
	// libpq key=value form, e.g. "host=localhost user=intake dbname=leads"
	if !strings.Contains(dsn, "?") && strings.Contains(dsn, "=") &&
		(strings.Contains(dsn, "host=") || strings.Contains(dsn, "user=") || strings.Contains(dsn, "dbname=")) {
		return "postgres"
	}
	return "sqlite3"
}

// New opens the backend selected by the configured DSN. Without a DSN it returns an InMemoryStore.
func New(opts ...Option) (Store, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		slog.Debug("store.New: no DSN configured, using in-memory store")
		return NewInMemoryStore(), nil
	}
	if DetectDSNType(cfg.DSN) == "postgres" {
		slog.Debug("store.New: using PostgreSQL store")
		return NewPostgresStore(WithPostgresDSN(cfg.DSN))
	}
	slog.Debug("store.New: using SQLite store", "path", cfg.DSN)
	return NewSQLiteStore(WithSQLiteDSN(cfg.DSN))
}
