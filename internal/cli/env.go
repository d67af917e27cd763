package cli

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/restq/internal/config"
	"github.com/roach88/restq/internal/events"
	"github.com/roach88/restq/internal/ir"
	"github.com/roach88/restq/internal/service"
	"github.com/roach88/restq/internal/store"
)

// env is everything a resource command needs: the loaded config, the
// compiled schema, an open store and the event publisher.
type env struct {
	cfg    *config.Config
	schema ir.Schema
	store  *store.Store
	pub    events.Publisher
	logger *slog.Logger
}

// openEnv loads the config named by opts.Config, compiles its schema and
// opens the store. Failures are command errors (exit code 2).
func openEnv(opts *RootOptions) (*env, error) {
	logger := slog.Default()

	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, ErrCodeConfig, err)
	}

	loaded, err := LoadSchema(cfg.Schema)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "load schema", err)
	}
	logger.Debug("schema loaded", "path", cfg.Schema, "models", len(loaded.Schema))

	st, err := store.Open(cfg.Database.Driver, cfg.Database.DSN, loaded.Schema, store.WithLogger(logger))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "open database", err)
	}
	logger.Debug("database ready", "driver", cfg.Database.Driver)

	var pub events.Publisher = &events.NoopPublisher{}
	if cfg.NATS.URL != "" {
		np, err := events.NewNATSPublisher(cfg.NATS.URL)
		if err != nil {
			st.Close()
			return nil, WrapExitError(ExitCommandError, "connect NATS", err)
		}
		pub = np
		logger.Debug("publishing events", "url", cfg.NATS.URL, "prefix", cfg.NATS.Prefix)
	}

	return &env{
		cfg:    cfg,
		schema: loaded.Schema,
		store:  st,
		pub:    pub,
		logger: logger,
	}, nil
}

// resource builds the service for model with its configured options.
// Unknown models are reported by service.New.
func (e *env) resource(model string) (*service.Resource, error) {
	return service.New(e.cfg.Resource(model), e.store,
		service.WithLogger(e.logger),
		service.WithPublisher(e.pub),
		service.WithEventPrefix(e.cfg.NATS.Prefix),
	)
}

// idField returns the spec of the field r identifies records by.
func (e *env) idField(r *service.Resource) ir.FieldSpec {
	m, err := e.schema.Model(r.Model())
	if err != nil {
		return ir.FieldSpec{}
	}
	f, _ := m.Field(r.IDField())
	return f
}

// Close flushes pending events and closes the store.
func (e *env) Close() error {
	var errs []error
	if f, ok := e.pub.(interface{ Flush() error }); ok {
		if err := f.Flush(); err != nil {
			errs = append(errs, fmt.Errorf("flush events: %w", err))
		}
	}
	if err := e.pub.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close publisher: %w", err))
	}
	if err := e.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}
	return errors.Join(errs...)
}
