package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"

	"github.com/collectdesk/collectdesk/internal/adapter/auth"
	"github.com/collectdesk/collectdesk/internal/adapter/events"
	"github.com/collectdesk/collectdesk/internal/adapter/lock"
	"github.com/collectdesk/collectdesk/internal/adapter/memory"
	"github.com/collectdesk/collectdesk/internal/adapter/persistence"
	"github.com/collectdesk/collectdesk/internal/config"
	"github.com/collectdesk/collectdesk/internal/domain"
	"github.com/collectdesk/collectdesk/internal/logger"
	"github.com/collectdesk/collectdesk/internal/ports"
	"github.com/collectdesk/collectdesk/internal/usecase"
)

const ServiceName = "collectdesk"

// OfficerStore is an officer repository that can also upsert officers
type OfficerStore interface {
	ports.OfficerRepository
	Save(ctx context.Context, o *domain.Officer) error
}

// CustomerStore is a customer repository that can also upsert customers
type CustomerStore interface {
	ports.CustomerRepository
	Save(ctx context.Context, c *domain.Customer) error
}

// App holds the wired components shared by the binaries
type App struct {
	Config    *config.Config
	Logger    logger.Logger
	Officers  OfficerStore
	Customers CustomerStore
	Service   *usecase.AssignmentUseCase
	// Verifier is nil when authentication is disabled
	Verifier ports.TokenVerifier

	closers []io.Closer
}

// NewLogger builds the structured logger described by cfg. A nil out
// writes to stdout.
func NewLogger(cfg config.LoggingConfig, out io.Writer) logger.Logger {
	return logger.NewStructuredLogger(logger.LoggerConfig{
		Level:       cfg.Level,
		Format:      cfg.Format,
		ServiceName: ServiceName,
		Output:      out,
	})
}

// New wires the store, locker, event publisher and verifier selected by cfg
// into an assignment use case. Callers must Close the returned App.
func New(ctx context.Context, cfg *config.Config, log logger.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: log}

	if err := a.openStore(ctx); err != nil {
		a.Close()
		return nil, err
	}

	locker, err := lock.NewRedisLocker(cfg.Lock, log)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize locker: %w", err)
	}
	if c, ok := locker.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}

	publisher, err := events.NewRabbitPublisher(cfg.Events, log)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize event publisher: %w", err)
	}
	a.closers = append(a.closers, publisher)

	if cfg.Auth.Enabled {
		verifier, err := auth.NewJWTVerifier(cfg.Auth.JWTSecret)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to initialize token verifier: %w", err)
		}
		a.Verifier = verifier
	}

	a.Service = usecase.NewAssignmentUseCase(a.Officers, a.Customers, locker, publisher, log, usecase.Options{
		DefaultBatchLimit:  cfg.Assignment.DefaultBatchLimit,
		MaxBatchLimit:      cfg.Assignment.MaxBatchLimit,
		MirrorExternalLoad: cfg.Assignment.MirrorExternalLoad,
		OptimisticLocking:  cfg.Assignment.OptimisticLocking,
		SystemActor:        cfg.Assignment.SystemActor,
		LockTTL:            cfg.Lock.TTL,
	})

	log.Info(ctx, "Assignment engine initialized", map[string]interface{}{
		"store":                cfg.Store.Driver,
		"lock_enabled":         cfg.Lock.Enabled,
		"events_enabled":       cfg.Events.Enabled,
		"auth_enabled":         cfg.Auth.Enabled,
		"mirror_external_load": cfg.Assignment.MirrorExternalLoad,
		"optimistic_locking":   cfg.Assignment.OptimisticLocking,
	})
	return a, nil
}

func (a *App) openStore(ctx context.Context) error {
	switch a.Config.Store.Driver {
	case config.StoreDriverMemory:
		store := memory.NewStore()
		a.Officers = store.Officers()
		a.Customers = store.Customers()
		a.Logger.Warn(ctx, "Using in-memory store; data is lost on exit", nil)
		return nil
	case config.StoreDriverPostgres:
		db, err := persistence.Open(ctx, a.Config.Store)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		a.closers = append(a.closers, dbCloser{db})
		a.Officers = persistence.NewPostgresOfficerRepository(db)
		a.Customers = persistence.NewPostgresCustomerRepository(db)
		a.Logger.Info(ctx, "Database connection established", map[string]interface{}{
			"max_connections": a.Config.Store.MaxConnections,
		})
		return nil
	default:
		return config.ErrInvalidStoreDriver
	}
}

// Close releases every connection the App opened, in reverse order
func (a *App) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}

type dbCloser struct{ db *sql.DB }

func (c dbCloser) Close() error { return c.db.Close() }
