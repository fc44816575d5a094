package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ariefcatur/go-tour-booking/internal/booking"
)

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeCheckViolation      = "23514"
	codeSerialization       = "40001"
	codeDeadlock            = "40P01"
	codeLockNotAvailable    = "55P03"
	codeQueryCanceled       = "57014"
)

var numberConstraints = map[string]bool{
	"products_number_key": true,
	"orders_number_key":   true,
}

// mapError translates driver errors into the booking taxonomy. Errors that
// already carry a taxonomy sentinel pass through untouched.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %v", booking.ErrNotFound, err)
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case codeUniqueViolation:
		if numberConstraints[pgErr.ConstraintName] {
			return booking.ErrDuplicateNumber
		}
		return fmt.Errorf("%w: %s", booking.ErrConflict, pgErr.Message)
	case codeForeignKeyViolation:
		return fmt.Errorf("%w: %s", booking.ErrConflict, pgErr.Message)
	case codeCheckViolation:
		return fmt.Errorf("%w: %s", booking.ErrConflict, pgErr.Message)
	case codeSerialization, codeDeadlock, codeLockNotAvailable, codeQueryCanceled:
		return fmt.Errorf("%w: %s", booking.ErrBusy, pgErr.Message)
	}
	return err
}
