package postgres

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	defaultMaxAttempts = 5
	defaultBackoffMin  = 10 * time.Millisecond
	defaultBackoffMax  = 50 * time.Millisecond
)

// DB wraps a pgx pool with the transaction retry policy shared by every
// repository. Deadlock and serialization failures are retried with a
// randomized backoff; all other errors surface to the caller unchanged.
type DB struct {
	pool        *pgxpool.Pool
	maxAttempts int
	backoffMin  time.Duration
	backoffMax  time.Duration
}

type DBOption func(*DB)

// WithMaxAttempts overrides the transaction attempt budget.
func WithMaxAttempts(n int) DBOption {
	return func(db *DB) {
		if n > 0 {
			db.maxAttempts = n
		}
	}
}

// WithBackoffWindow overrides the randomized deadlock backoff window.
func WithBackoffWindow(min, max time.Duration) DBOption {
	return func(db *DB) {
		if min > 0 && max >= min {
			db.backoffMin = min
			db.backoffMax = max
		}
	}
}

func NewDB(pool *pgxpool.Pool, opts ...DBOption) *DB {
	db := &DB{
		pool:        pool,
		maxAttempts: defaultMaxAttempts,
		backoffMin:  defaultBackoffMin,
		backoffMax:  defaultBackoffMax,
	}
	for _, opt := range opts {
		opt(db)
	}
	return db
}

func (db *DB) Pool() *pgxpool.Pool {
	return db.pool
}

type txKey struct{}

// WithTx runs fn inside a transaction, retrying deadlock-class failures up
// to the attempt budget. Calls are reentrant: when the context already
// carries a transaction, fn joins it and the outermost caller owns commit,
// rollback and retries.
func (db *DB) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if txFromContext(ctx) != nil {
		return fn(ctx)
	}

	var err error
	for attempt := 1; attempt <= db.maxAttempts; attempt++ {
		err = db.runTx(ctx, fn)
		if err == nil || !isRetryable(err) {
			return err
		}
		if attempt == db.maxAttempts {
			break
		}
		if serr := sleepJitter(ctx, db.backoffMin, db.backoffMax); serr != nil {
			return serr
		}
	}
	return err
}

func (db *DB) runTx(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := db.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}

	txCtx := context.WithValue(ctx, txKey{}, tx)
	if err := fn(txCtx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

func txFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(txKey{}).(pgx.Tx)
	return tx
}

func (db *DB) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return db.pool.Exec(ctx, sql, args...)
}

func (db *DB) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return db.pool.QueryRow(ctx, sql, args...)
}

func (db *DB) query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Query(ctx, sql, args...)
	}
	return db.pool.Query(ctx, sql, args...)
}

func sleepJitter(ctx context.Context, min, max time.Duration) error {
	d := min
	if max > min {
		d += time.Duration(rand.Int63n(int64(max - min)))
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// isRetryable reports deadlock-class failures: 40P01 (deadlock detected)
// and 40001 (serialization failure).
func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40P01" || pgErr.Code == "40001"
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isCheckViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23514"
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

func isInvalidUUID(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "22P02"
}
