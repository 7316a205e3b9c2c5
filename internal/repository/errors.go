package repository

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/JustJay7/court-case-monitor/internal/apperr"
)

// PgErrUniqueViolation is the PostgreSQL unique_violation SQLSTATE.
const PgErrUniqueViolation = "23505"

// isDuplicate reports whether err is a unique-key violation on any of the
// supported drivers.
func isDuplicate(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == PgErrUniqueViolation {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// classify maps a gorm error onto the shared taxonomy.
func classify(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return apperr.Wrapf(apperr.KindNotFound, op, err, "record not found")
	case isDuplicate(err):
		return apperr.Wrapf(apperr.KindDuplicateConflict, op, err, "record already exists")
	default:
		return apperr.Wrap(apperr.KindInternal, op, err)
	}
}
