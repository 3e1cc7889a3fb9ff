// Package history keeps extracted results, never the documents they came from.
package history

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/joseph-ayodele/statement-parser/internal/common"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

//go:embed migrations/*.sql
var migrations embed.FS

type Config struct {
	Driver          string
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	DialTimeout     time.Duration
}

// Open connects to the configured database and applies pending migrations.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DSN == "" {
		return nil, common.NewAppError(common.CodeConfig, "history DSN is empty", common.ErrConfig)
	}

	var (
		db      *sql.DB
		pool    *pgxpool.Pool
		dialect goose.Dialect
		err     error
	)
	logger.Info("history.db.connecting", "driver", cfg.Driver)
	switch strings.ToLower(cfg.Driver) {
	case "", DriverSQLite:
		db, err = sql.Open("sqlite", cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("%w: open sqlite: %v", common.ErrDatabase, err)
		}
		// one writer at a time
		db.SetMaxOpenConns(1)
		dialect = goose.DialectSQLite3
		cfg.Driver = DriverSQLite
	case DriverPostgres, "postgres":
		pool, err = openPool(ctx, cfg)
		if err != nil {
			logger.Error("history.db.connect_failed", "error", err)
			return nil, err
		}
		db = stdlib.OpenDBFromPool(pool)
		dialect = goose.DialectPostgres
		cfg.Driver = DriverPostgres
	default:
		return nil, common.NewAppError(common.CodeConfig, fmt.Sprintf("unsupported history driver %q", cfg.Driver), common.ErrConfig)
	}

	s := &Store{db: db, pool: pool, driver: cfg.Driver, logger: logger}
	if err := s.migrate(ctx, dialect); err != nil {
		s.Close()
		return nil, err
	}
	logger.Info("history.db.ready", "driver", cfg.Driver)
	return s, nil
}

func openPool(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("%w: parse dsn: %v", common.ErrDatabase, err)
	}
	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		pc.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		pc.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	pc.ConnConfig.RuntimeParams["application_name"] = "statement-parser"

	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("%w: connect: %v", common.ErrDatabase, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: ping: %v", common.ErrDatabase, err)
	}
	return pool, nil
}

func (s *Store) migrate(ctx context.Context, dialect goose.Dialect) error {
	dir, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("migrations fs: %w", err)
	}
	provider, err := goose.NewProvider(dialect, s.db, dir, goose.WithSlog(s.logger))
	if err != nil {
		return fmt.Errorf("%w: migrations: %v", common.ErrDatabase, err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("%w: apply migrations: %v", common.ErrDatabase, err)
	}
	s.logger.Debug("history.db.migrated", "applied", len(results))
	return nil
}

// Close releases the database handle and pool.
func (s *Store) Close() {
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("history.db.close_failed", "error", err)
		}
	}
	if s.pool != nil {
		s.pool.Close()
	}
}

// HealthCheck pings the database.
func (s *Store) HealthCheck(ctx context.Context, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return s.db.PingContext(ctx)
}

// rebind rewrites ? placeholders to $n for Postgres.
func (s *Store) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
