package database

import (
	"strings"

	"github.com/lib/pq"
	"github.com/medflow/pharmacy-backend/pkg/errors"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// MapError converts a driver constraint error to an AppError with a
// meaningful message. Returns nil if err is not a constraint violation.
func MapError(err error) *errors.AppError {
	if appErr := MapPQError(err); appErr != nil {
		return appErr
	}
	return MapSQLiteError(err)
}

// MapPQError converts a PostgreSQL error to an AppError with meaningful messages.
// Returns nil if the error is not a pq.Error.
func MapPQError(err error) *errors.AppError {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return nil
	}

	switch pqErr.Code {
	// Check constraint violation (23514)
	case "23514":
		return mapCheckConstraint(pqErr.Constraint)

	// Unique constraint violation (23505)
	case "23505":
		return errors.Conflict(formatConstraintMessage(pqErr.Constraint))

	// Foreign key violation (23503)
	case "23503":
		return errors.BadRequest("referenced record does not exist")

	// Not null violation (23502)
	case "23502":
		col := pqErr.Column
		if col == "" {
			col = "required field"
		}
		return errors.Validation(map[string]string{
			col: "must not be empty",
		})

	default:
		return nil
	}
}

// MapSQLiteError does the same for the embedded store. SQLite reports the
// offending constraint only in the message text.
func MapSQLiteError(err error) *errors.AppError {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return nil
	}

	msg := sqliteErr.Error()
	switch sqliteErr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_CHECK:
		return mapCheckConstraint(msg)
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return errors.Conflict(formatConstraintMessage(msg))
	case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
		return errors.BadRequest("referenced record does not exist")
	case sqlite3.SQLITE_CONSTRAINT_NOTNULL:
		return errors.Validation(map[string]string{
			"required field": "must not be empty",
		})
	default:
		return nil
	}
}

// mapCheckConstraint maps specific CHECK constraint names to user-friendly messages.
func mapCheckConstraint(constraint string) *errors.AppError {
	switch {
	case strings.Contains(constraint, "current_quantity"):
		return errors.Validation(map[string]string{
			"current_quantity": "must not be negative",
		})

	case strings.Contains(constraint, "quantity_added"):
		return errors.Validation(map[string]string{
			"quantity": "must be greater than zero",
		})

	case strings.Contains(constraint, "quantity_bought"):
		return errors.Validation(map[string]string{
			"quantity": "must be greater than zero",
		})

	case strings.Contains(constraint, "price"):
		return errors.Validation(map[string]string{
			"price": "must not be negative",
		})

	default:
		return errors.BadRequest("data validation failed: " + constraint)
	}
}

// formatConstraintMessage creates a user-friendly message for unique constraint violations.
func formatConstraintMessage(constraint string) string {
	switch {
	case strings.Contains(constraint, "prescription_items"):
		return "medicine is already on this prescription"
	case strings.Contains(constraint, "medicines"):
		return "a medicine with this name already exists"
	case strings.Contains(constraint, "suppliers"):
		return "a supplier with this name already exists"
	default:
		return "a record with these values already exists"
	}
}

// Classify turns a storage error into an AppError: constraint violations
// are mapped, anything else becomes a persistence error for op.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var appErr *errors.AppError
	if errors.As(err, &appErr) {
		return err
	}
	if mapped := MapError(err); mapped != nil {
		return mapped
	}
	return errors.Persistence(op, err)
}
