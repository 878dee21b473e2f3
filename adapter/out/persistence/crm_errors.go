package persistence

import (
	"database/sql"
	"errors"

	"crm_server/pkg/apperr"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// Common persistence errors
var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate entry")
)

// uniqueViolation is the PostgreSQL error code for unique_violation.
const uniqueViolation = "23505"

// translate maps driver errors onto apperr errors for the API layer.
func translate(operation string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) || errors.Is(err, ErrNotFound) {
		return apperr.NotFound(operation).WithError(err)
	}
	if isUniqueViolation(err) {
		return apperr.Conflict(operation + ": " + ErrDuplicate.Error()).WithError(err)
	}
	return apperr.DatabaseError(operation, err)
}

// isUniqueViolation covers both drivers: pgx through database/sql and lib/pq.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == uniqueViolation
	}
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
