package database

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/wareflow/wareflow-backend/pkg/config"
	"github.com/wareflow/wareflow-backend/pkg/logger"
)

// DB wraps sqlx.DB with context-carried transactions
type DB struct {
	*sqlx.DB
	logger *logger.Logger
}

// Queryer is satisfied by both *sqlx.DB and *sqlx.Tx, so repositories can run
// unchanged inside or outside a transaction.
type Queryer interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

type txKey struct{}

// New connects with the pool settings from cfg
func New(cfg *config.DatabaseConfig, log *logger.Logger) (*DB, error) {
	db, err := connect(cfg.DSN(), log)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	db.logger.Info().Str("host", cfg.Host).Str("database", cfg.Database).Msg("connected to database")
	return db, nil
}

// NewWithDSN connects with driver defaults for the pool
func NewWithDSN(dsn string, log *logger.Logger) (*DB, error) {
	return connect(dsn, log)
}

func connect(dsn string, log *logger.Logger) (*DB, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return Wrap(db, log), nil
}

// Wrap adopts an existing sqlx handle (used with sqlmock in tests)
func Wrap(db *sqlx.DB, log *logger.Logger) *DB {
	return &DB{DB: db, logger: log.WithComponent("database")}
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}

// Health pings the database and reports pool usage
func (db *DB) Health(ctx context.Context) map[string]string {
	stats := db.Stats()
	status := map[string]string{
		"status":           "up",
		"open_connections": strconv.Itoa(stats.OpenConnections),
		"in_use":           strconv.Itoa(stats.InUse),
	}

	ctx, cancel := context.WithTimeout(ctx, 1*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		status["status"] = "down"
		status["error"] = err.Error()
	}

	return status
}

// Conn returns the transaction bound to ctx by RunInTx, or the pool otherwise
func (db *DB) Conn(ctx context.Context) Queryer {
	if tx, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return tx
	}
	return db.DB
}

// RunInTx runs fn in a transaction carried by the context passed to fn.
// Repositories reached through Conn(ctx) join it. A nested call reuses the
// outer transaction. The transaction is rolled back if fn returns an error
// or panics.
func (db *DB) RunInTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if _, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return fn(ctx)
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			db.rollback(tx)
			panic(p)
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		db.rollback(tx)
		return err
	}

	if err := tx.Commit(); err != nil {
		if mapped := MapPQError(err); mapped != nil {
			return mapped
		}
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (db *DB) rollback(tx *sqlx.Tx) {
	if err := tx.Rollback(); err != nil {
		db.logger.Error().Err(err).Msg("failed to rollback transaction")
	}
}
