package auth

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/sethvargo/go-retry"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// OpenDB opens a bun database for driver ("sqlite" or "postgres").
func OpenDB(driver, dsn string) (*bun.DB, error) {
	switch driver {
	case DriverSQLite, "sqlite3":
		sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to open sqlite database")
		}
		// sqlite allows a single writer, and each connection to an in-memory
		// database sees its own database.
		sqldb.SetMaxOpenConns(1)
		return bun.NewDB(sqldb, sqlitedialect.New()), nil
	case DriverPostgres, "pgx":
		sqldb, err := sql.Open("pgx", dsn)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to open postgres database")
		}
		return bun.NewDB(sqldb, pgdialect.New()), nil
	default:
		return nil, goerrors.New(fmt.Sprintf("unsupported database driver %q", driver), goerrors.CategoryBadInput)
	}
}

// PingDB waits for the database to answer, retrying with exponential
// backoff. Each attempt is bounded by timeout.
func PingDB(ctx context.Context, db *bun.DB, retries uint64, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	backoff := retry.WithMaxRetries(retries, retry.NewExponential(250*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		pingCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		if err := db.PingContext(pingCtx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "database is not reachable")
	}

	return nil
}

var gooseMu sync.Mutex

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// MigrateOption configures Migrate.
type MigrateOption func(*migrateOptions)

type migrateOptions struct {
	logger Logger
}

// WithMigrationLogger sends migration progress to logger.
func WithMigrationLogger(logger Logger) MigrateOption {
	return func(o *migrateOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// gooseLogger adapts Logger to goose.Logger.
type gooseLogger struct {
	logger Logger
}

func (l gooseLogger) Printf(format string, v ...any) {
	l.logger.Info(strings.TrimSuffix(format, "\n"), v...)
}

// Fatalf logs at error level. goose only calls it from its CLI helpers.
func (l gooseLogger) Fatalf(format string, v ...any) {
	l.logger.Error(strings.TrimSuffix(format, "\n"), v...)
}

// Migrate applies the embedded migrations matching the database dialect.
func Migrate(ctx context.Context, db *bun.DB, opts ...MigrateOption) error {
	options := &migrateOptions{logger: defLogger{}}
	for _, opt := range opts {
		opt(options)
	}

	var gooseDialect, dir string
	switch db.Dialect().Name() {
	case dialect.SQLite:
		gooseDialect, dir = "sqlite3", "data/sql/migrations/sqlite"
	case dialect.PG:
		gooseDialect, dir = "postgres", "data/sql/migrations/postgres"
	default:
		return goerrors.New("no migrations for database dialect", goerrors.CategoryInternal).
			WithMetadata(map[string]any{"dialect": db.Dialect().Name().String()})
	}

	// goose keeps its base FS and dialect in package state.
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrationsFS)
	defer goose.SetBaseFS(nil)

	goose.SetLogger(gooseLogger{logger: options.logger})

	if err := goose.SetDialect(gooseDialect); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to set migration dialect")
	}

	if err := gooseUpContext(ctx, db.DB, dir); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to apply migrations")
	}

	return nil
}
