package database

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	apperrors "github.com/Andre27031510/vynlo-taste-sub001/pkg/errors"
	"github.com/Andre27031510/vynlo-taste-sub001/pkg/retry"
)

// DBTX is satisfied by *pgxpool.Pool, pgx.Tx and pgxmock pools, so
// repositories can run against any of them.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// SQLSTATE codes the repositories react to.
const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
	codeAdminShutdown        = "57P01"
	codeTooManyConnections   = "53300"
)

// IsUniqueViolation reports whether err is a unique constraint violation.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation
}

// Classify tags a PostgreSQL error with its retry kind. Lock contention,
// serialization failures and server shutdowns are transient; every other
// server-reported error is permanent. Errors that did not come from the
// server (network, timeouts) are returned unchanged for the retry
// classifier to inspect.
func Classify(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable:
		return retry.WithKind(err, retry.KindTransient)
	case codeAdminShutdown, codeTooManyConnections:
		return retry.WithKind(err, retry.KindUnavailable)
	case codeUniqueViolation:
		return retry.WithKind(apperrors.Wrap(apperrors.ErrConflict, err.Error()), retry.KindConflict)
	}
	return retry.Permanent(err)
}
