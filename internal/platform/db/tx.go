package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgreSQL error codes the repositories care about.
const (
	CodeUniqueViolation      = "23505"
	CodeExclusionViolation   = "23P01"
	CodeSerializationFailure = "40001"
	CodeDeadlockDetected     = "40P01"
)

// Querier is the subset of pgx shared by *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type txKey struct{}

// TxFromContext returns the transaction stored by WithTx, or nil.
func TxFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(txKey{}).(pgx.Tx)
	return tx
}

// Conn returns the transaction carried by ctx if there is one, otherwise the pool.
func Conn(ctx context.Context, pool *pgxpool.Pool) Querier {
	if tx := TxFromContext(ctx); tx != nil {
		return tx
	}
	return pool
}

// WithTx runs fn inside a transaction. Nested calls reuse the outer
// transaction. The transaction commits when fn returns nil and rolls back
// otherwise.
func WithTx(ctx context.Context, pool *pgxpool.Pool, opts pgx.TxOptions, fn func(ctx context.Context) error) error {
	if TxFromContext(ctx) != nil {
		return fn(ctx)
	}

	tx, err := pool.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Serializable is the option set used for check-then-write operations.
var Serializable = pgx.TxOptions{IsoLevel: pgx.Serializable}

// DefaultTxAttempts bounds WithTxRetry for serializable check-then-write
// transactions.
const DefaultTxAttempts = 8

// ErrTxContended is returned by WithTxRetry when every attempt was aborted
// by a serialization failure or deadlock.
var ErrTxContended = errors.New("transaction aborted by concurrent writers")

// retryBackoff is the first pause between attempts; later pauses grow
// exponentially with jitter.
var retryBackoff = 5 * time.Millisecond

// WithTxRetry runs WithTx and starts over when PostgreSQL aborts the
// transaction with a serialization failure or deadlock. fn must be safe to
// run more than once. Inside an outer transaction fn runs once, since only
// the outermost transaction can be retried.
func WithTxRetry(ctx context.Context, pool *pgxpool.Pool, opts pgx.TxOptions, attempts int, fn func(ctx context.Context) error) error {
	if TxFromContext(ctx) != nil {
		return fn(ctx)
	}
	return retry(ctx, attempts, retryBackoff, func() error {
		return WithTx(ctx, pool, opts, fn)
	})
}

func retry(ctx context.Context, attempts int, initial time.Duration, op func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = initial
	policy.MaxElapsedTime = 0
	b := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(attempts-1)), ctx)

	err := backoff.Retry(func() error {
		err := op()
		if err != nil && !IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, b)
	if IsRetryable(err) {
		return fmt.Errorf("%w after %d attempts: %w", ErrTxContended, attempts, err)
	}
	return err
}

// ErrorCode returns the SQLSTATE of a PostgreSQL error, or "".
func ErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// IsWriteConflict reports whether err is a constraint rejecting the row
// because another row already holds its place: an exclusion or unique
// violation.
func IsWriteConflict(err error) bool {
	switch ErrorCode(err) {
	case CodeExclusionViolation, CodeUniqueViolation:
		return true
	}
	return false
}

// IsRetryable reports whether PostgreSQL aborted the transaction for
// concurrency reasons alone, so running it again may succeed.
func IsRetryable(err error) bool {
	switch ErrorCode(err) {
	case CodeSerializationFailure, CodeDeadlockDetected:
		return true
	}
	return false
}

// IsNotFound reports whether err is pgx's no-rows error.
func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
