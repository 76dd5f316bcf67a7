package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"entgo.io/ent/dialect"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/joseph-ayodele/qcqueue/internal/common"
)

type Config struct {
	DSN             string
	MaxConns        int32
	MaxConnLifetime time.Duration
	DialTimeout     time.Duration
}

// DB is the ledger connection plus the SQL dialect its statements are built for.
type DB struct {
	*sql.DB
	Dialect string
	pool    *pgxpool.Pool
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS qc_job (
		id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL,
		job_index INTEGER NOT NULL,
		name TEXT NOT NULL,
		procedure_kind TEXT NOT NULL,
		status TEXT NOT NULL,
		chunk INTEGER,
		scheduler_id TEXT,
		energy DOUBLE PRECISION,
		run_time DOUBLE PRECISION,
		error_message TEXT,
		created_at BIGINT NOT NULL,
		finished_at BIGINT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_qc_job_run ON qc_job(run_id, job_index)`,
}

// Open connects to Postgres through a pgx pool for postgres:// DSNs and to
// SQLite otherwise, then makes sure the ledger table exists.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*DB, error) {
	if cfg.DSN == "" {
		return nil, common.NewAppError(common.CodeDatabase, "empty DSN", common.ErrInvalidInput)
	}
	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}

	var db *DB
	if strings.HasPrefix(cfg.DSN, "postgres://") || strings.HasPrefix(cfg.DSN, "postgresql://") {
		logger.Info("connecting to postgres ledger")
		pc, err := pgxpool.ParseConfig(cfg.DSN)
		if err != nil {
			logger.Error("failed to parse database DSN", "error", err)
			return nil, common.NewAppError(common.CodeDatabase, "parse dsn", err)
		}
		if cfg.MaxConns > 0 {
			pc.MaxConns = cfg.MaxConns
		}
		if cfg.MaxConnLifetime > 0 {
			pc.MaxConnLifetime = cfg.MaxConnLifetime
		}
		pc.ConnConfig.RuntimeParams["application_name"] = "qcqueue"
		pool, err := pgxpool.NewWithConfig(ctx, pc)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			return nil, common.NewAppError(common.CodeDatabase, "connect", err)
		}
		// Wrap pool as *sql.DB so both dialects share one code path
		db = &DB{DB: stdlib.OpenDBFromPool(pool), Dialect: dialect.Postgres, pool: pool}
	} else {
		path := strings.TrimPrefix(cfg.DSN, "sqlite://")
		logger.Info("opening sqlite ledger", "path", path)
		sqldb, err := sql.Open("sqlite", path)
		if err != nil {
			return nil, common.NewAppError(common.CodeDatabase, "open sqlite", err)
		}
		// a second connection to :memory: would see an empty database
		sqldb.SetMaxOpenConns(1)
		db = &DB{DB: sqldb, Dialect: dialect.SQLite}
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close(logger)
		return nil, common.NewAppError(common.CodeDatabase, "ping", err)
	}
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close(logger)
			return nil, common.NewAppError(common.CodeDatabase, fmt.Sprintf("migrate: %.40s", stmt), err)
		}
	}
	logger.Info("ledger ready", "dialect", db.Dialect)
	return db, nil
}

// Close closes the database connections gracefully
func (db *DB) Close(logger *slog.Logger) {
	if err := db.DB.Close(); err != nil {
		logger.Error("failed to close database", "error", err)
	}
	if db.pool != nil {
		db.pool.Close()
	}
	logger.Debug("database connections closed")
}

// HealthCheck pings the ledger and counts its rows to catch schema drift early.
func (db *DB) HealthCheck(ctx context.Context, timeout time.Duration, logger *slog.Logger) (int, error) {
	logger.Debug("pinging database")
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := db.PingContext(ctx); err != nil {
		return 0, common.NewAppError(common.CodeDatabase, "ping", err)
	}
	var n int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM qc_job").Scan(&n); err != nil {
		return 0, common.NewAppError(common.CodeDatabase, "count jobs", err)
	}
	logger.Debug("database ping successful", "jobs", n)
	return n, nil
}
