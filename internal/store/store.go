package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/restq/internal/ir"
	"github.com/roach88/restq/internal/querysql"
)

// Schema version tracking (SQLite user_version):
// 0 - Empty database
// 1 - Model tables created from the schema
const currentSchemaVersion = 1

// Store provides record storage for the models of one schema.
type Store struct {
	db       *sql.DB
	dialect  querysql.Dialect
	schema   ir.Schema
	compiler *querysql.SQLCompiler
	ids      IDGenerator
	logger   *slog.Logger
}

// Compile-time check that Store implements Client.
var _ Client = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for query tracing.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithIDGenerator sets the generator for ids the database does not assign.
func WithIDGenerator(g IDGenerator) Option {
	return func(s *Store) {
		if g != nil {
			s.ids = g
		}
	}
}

// Open connects to a database, applies connection settings for its driver
// and creates any missing model tables.
//
// driver is a database/sql driver name ("sqlite3" or "postgres"). For
// SQLite the database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
//
// This function is idempotent - safe to call multiple times.
func Open(driver, dsn string, schema ir.Schema, opts ...Option) (*Store, error) {
	dialect, err := querysql.ParseDialect(driver)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	switch dialect {
	case querysql.SQLite:
		// SQLite only supports one writer at a time, so limit connections
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)

		if err := applyPragmas(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply pragmas: %w", err)
		}
	case querysql.Postgres:
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	s := New(db, dialect, schema, opts...)
	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return s, nil
}

// New wraps an open database. No tables are created; call Migrate for that.
func New(db *sql.DB, dialect querysql.Dialect, schema ir.Schema, opts ...Option) *Store {
	s := &Store{
		db:       db,
		dialect:  dialect,
		schema:   schema,
		compiler: querysql.NewSQLCompiler(dialect, schema),
		ids:      DefaultIDs{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB for direct queries.
// Use with caution - prefer using Store methods when available.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Dialect returns the SQL dialect the store compiles to.
func (s *Store) Dialect() querysql.Dialect {
	return s.dialect
}

// Schema returns the models the store serves.
func (s *Store) Schema() ir.Schema {
	return s.schema
}

// Model returns the client for one model.
func (s *Store) Model(name string) (ModelClient, error) {
	return s.root().Model(name)
}

// RunInTransaction begins a database transaction, calls fn with a client
// bound to it, and commits on success or rolls back on error.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Client) error) error {
	return s.root().RunInTransaction(ctx, fn)
}

func (s *Store) root() *client {
	return &client{s: s, exec: s.db}
}

// Migrate creates a table for every model that does not have one yet.
// Tables are created in model-name order inside one transaction.
func (s *Store) Migrate(ctx context.Context) error {
	if s.dialect == querysql.SQLite {
		var version int
		if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
			return fmt.Errorf("get user_version: %w", err)
		}
		if version > currentSchemaVersion {
			return fmt.Errorf("database schema version %d is newer than supported version %d", version, currentSchemaVersion)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("migrate: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	for _, name := range s.schema.Names() {
		ddl, err := s.compiler.CreateTable(name)
		if err != nil {
			return fmt.Errorf("migrate %s: %w", name, err)
		}
		s.logger.Debug("create table", "model", name, "sql", ddl)
		if _, err := tx.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("migrate %s: %w", name, err)
		}
	}

	if s.dialect == querysql.SQLite {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
			return fmt.Errorf("set user_version: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("migrate: commit: %w", err)
	}
	return nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}
