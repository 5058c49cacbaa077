package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/medflow/pharmacy-backend/pkg/config"
	"github.com/medflow/pharmacy-backend/pkg/logger"
	_ "modernc.org/sqlite"
)

func init() {
	// sqlx only knows the cgo driver name "sqlite3"
	sqlx.BindDriver(config.DriverSQLite, sqlx.QUESTION)
}

// DB wraps sqlx.DB with additional functionality. Queries are written with
// '?' placeholders and rebound for the active driver. When the context
// carries a transaction opened by WithinTx, the query runs inside it.
type DB struct {
	*sqlx.DB
	driver string
	logger *logger.Logger
}

// New creates a new database connection
func New(cfg *config.DatabaseConfig, log *logger.Logger) (*DB, error) {
	db, err := sqlx.Connect(cfg.Driver, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if cfg.Driver == config.DriverSQLite {
		// SQLite has a single writer; one connection also keeps ":memory:"
		// stores alive for the lifetime of the pool.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	return &DB{
		DB:     db,
		driver: cfg.Driver,
		logger: log,
	}, nil
}

// NewWithDSN creates a new database connection with a DSN string
func NewWithDSN(driver, dsn string, log *logger.Logger) (*DB, error) {
	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if driver == config.DriverSQLite {
		db.SetMaxOpenConns(1)
	}

	return &DB{
		DB:     db,
		driver: driver,
		logger: log,
	}, nil
}

// Wrap adapts an existing sqlx handle (used with go-sqlmock in tests).
func Wrap(db *sqlx.DB, log *logger.Logger) *DB {
	return &DB{DB: db, driver: db.DriverName(), logger: log}
}

// Driver returns the driver name ("sqlite" or "postgres")
func (db *DB) Driver() string {
	return db.driver
}

// ForUpdate returns the row locking clause for the active driver. SQLite
// serializes writers at the database level and has no row locks.
func (db *DB) ForUpdate() string {
	if db.driver == config.DriverPostgres {
		return " FOR UPDATE"
	}
	return ""
}

// Ping checks the database connection
func (db *DB) Ping(ctx context.Context) error {
	return db.PingContext(ctx)
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}

// Health returns the health status of the database
func (db *DB) Health(ctx context.Context) map[string]string {
	status := map[string]string{
		"status": "up",
		"driver": db.driver,
	}

	ctx, cancel := context.WithTimeout(ctx, 1*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		status["status"] = "down"
		status["error"] = err.Error()
	}

	return status
}

// Transaction executes a function within a transaction
func (db *DB) Transaction(ctx context.Context, fn func(*sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			db.logger.Error().Err(rbErr).Msg("failed to rollback transaction")
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

type txKey struct{}

type txState struct {
	tx          *sqlx.Tx
	afterCommit []func()
}

// WithinTx runs fn inside a transaction carried by the context. If ctx
// already carries one, fn joins it and the outermost caller decides about
// commit or rollback.
func (db *DB) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if InTx(ctx) {
		return fn(ctx)
	}

	state := &txState{}
	err := db.Transaction(ctx, func(tx *sqlx.Tx) error {
		state.tx = tx
		return fn(context.WithValue(ctx, txKey{}, state))
	})
	if err != nil {
		return err
	}

	for _, hook := range state.afterCommit {
		hook()
	}
	return nil
}

// InTx reports whether ctx carries an open transaction
func InTx(ctx context.Context) bool {
	_, ok := ctx.Value(txKey{}).(*txState)
	return ok
}

// AfterCommit defers fn until the transaction carried by ctx has committed.
// Hooks of a rolled back transaction never run. Outside a transaction fn
// runs immediately.
func AfterCommit(ctx context.Context, fn func()) {
	if state, ok := ctx.Value(txKey{}).(*txState); ok {
		state.afterCommit = append(state.afterCommit, fn)
		return
	}
	fn()
}

func (db *DB) queryer(ctx context.Context) sqlx.ExtContext {
	if state, ok := ctx.Value(txKey{}).(*txState); ok {
		return state.tx
	}
	return db.DB
}

// GetContext runs a single-row query, inside the context transaction if any
func (db *DB) GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return sqlx.GetContext(ctx, db.queryer(ctx), dest, db.Rebind(query), args...)
}

// SelectContext runs a multi-row query, inside the context transaction if any
func (db *DB) SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return sqlx.SelectContext(ctx, db.queryer(ctx), dest, db.Rebind(query), args...)
}

// ExecContext runs a statement, inside the context transaction if any
func (db *DB) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return db.queryer(ctx).ExecContext(ctx, db.Rebind(query), args...)
}

// QueryRowxContext runs a single-row query, inside the context transaction if any
func (db *DB) QueryRowxContext(ctx context.Context, query string, args ...interface{}) *sqlx.Row {
	return db.queryer(ctx).QueryRowxContext(ctx, db.Rebind(query), args...)
}

// DateParam formats a calendar date for DATE columns. Both drivers accept
// the ISO form and it keeps SQLite comparisons lexicographic.
func DateParam(t time.Time) string {
	return t.Format("2006-01-02")
}

// TruncateDate returns the calendar day of t, read in t's own location, as
// midnight UTC. A local clock therefore yields the local day.
func TruncateDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
