package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sync"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	pgxv5 "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	pkgerrors "github.com/agentstation/leadsync/pkg/errors"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationsFS embed.FS

var (
	migrationsCounter   metric.Int64Counter
	migrationsCounterMu sync.Once
)

// Migrate brings the schema to the latest version over a dedicated
// connection that is closed before returning.
func Migrate(ctx context.Context, cfg Config, logger *zerolog.Logger) error {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if cfg.Backend == "" {
		cfg.Backend = SQLite
	}
	driverName, dsn, err := driverFor(cfg)
	if err != nil {
		return err
	}

	conn, err := sql.Open(driverName, dsn)
	if err != nil {
		return pkgerrors.NewStorageError("migrate", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return pkgerrors.NewStorageError("migrate", fmt.Errorf("ping migrations database: %w", err))
	}

	var driver migratedb.Driver
	switch cfg.Backend {
	case SQLite:
		driver, err = migratesqlite.WithInstance(conn, &migratesqlite.Config{})
	case Postgres:
		driver, err = pgxv5.WithInstance(conn, &pgxv5.Config{})
	}
	if err != nil {
		_ = conn.Close()
		return pkgerrors.NewStorageError("migrate", fmt.Errorf("initialise %s migrate driver: %w", cfg.Backend, err))
	}

	sub, err := fs.Sub(migrationsFS, "migrations/"+string(cfg.Backend))
	if err != nil {
		_ = conn.Close()
		return pkgerrors.NewStorageError("migrate", err)
	}
	source, err := iofs.New(sub, ".")
	if err != nil {
		_ = conn.Close()
		return pkgerrors.NewStorageError("migrate", fmt.Errorf("create migration source: %w", err))
	}

	m, err := migrate.NewWithInstance("iofs", source, string(cfg.Backend), driver)
	if err != nil {
		_ = conn.Close()
		return pkgerrors.NewStorageError("migrate", fmt.Errorf("initialise migrate instance: %w", err))
	}
	defer func() {
		sourceErr, dbErr := m.Close()
		if sourceErr != nil {
			logger.Debug().Err(sourceErr).Msg("Migration source close failed")
		}
		if dbErr != nil {
			logger.Debug().Err(dbErr).Msg("Migration database close failed")
		}
	}()

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return pkgerrors.NewStorageError("migrate", fmt.Errorf("read migration version: %w", err))
	}
	if dirty {
		recordMigrationMetric(ctx, cfg.Backend, "dirty")
		return pkgerrors.NewStorageError("migrate", fmt.Errorf("database is in a dirty state at version %d", version))
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			recordMigrationMetric(ctx, cfg.Backend, "noop")
			logger.Debug().Uint("version", version).Msg("Database migrations up-to-date")
			return nil
		}
		recordMigrationMetric(ctx, cfg.Backend, "failed")
		return pkgerrors.NewStorageError("migrate", fmt.Errorf("apply migrations: %w", err))
	}

	newVersion, _, _ := m.Version()
	recordMigrationMetric(ctx, cfg.Backend, "applied")
	logger.Info().
		Str("backend", string(cfg.Backend)).
		Uint("from", version).
		Uint("to", newVersion).
		Msg("Database migrations applied")
	return nil
}

func recordMigrationMetric(ctx context.Context, backend Backend, result string) {
	migrationsCounterMu.Do(func() {
		meter := otel.Meter("leadsync.database")
		counter, err := meter.Int64Counter("leadsync_db_migrations_total",
			metric.WithDescription("Total migrations executed via golang-migrate"),
			metric.WithUnit("{migration}"))
		if err == nil {
			migrationsCounter = counter
		}
	})
	if migrationsCounter == nil {
		return
	}
	migrationsCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("backend", string(backend)),
		attribute.String("result", result),
	))
}
