package database

import (
	"strings"

	"github.com/lib/pq"
	"github.com/wareflow/wareflow-backend/pkg/errors"
)

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
		return mapCheckConstraint(pqErr)

	// Unique constraint violation (23505)
	case "23505":
		return errors.Conflict(formatConstraintMessage(pqErr))

	// Foreign key violation (23503)
	case "23503":
		return errors.BadRequest("referenced product, warehouse, location or batch does not exist")

	// Not null violation (23502)
	case "23502":
		col := pqErr.Column
		if col == "" {
			col = "required field"
		}
		return errors.ValidationField(col, "must not be empty")

	default:
		return nil
	}
}

func mapCheckConstraint(pqErr *pq.Error) *errors.AppError {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "status_valid"):
		return errors.ValidationField("status", "must be one of: pending, processing, approved, rejected, completed")
	case strings.Contains(constraint, "quantity_positive"):
		return errors.ValidationField("quantity", "must be greater than zero")
	case strings.Contains(constraint, "boxes_positive"):
		return errors.ValidationField("total_boxes", "must be greater than zero")
	default:
		return errors.BadRequest("data validation failed: " + constraint)
	}
}

func formatConstraintMessage(pqErr *pq.Error) string {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "barcode"):
		return "a box with this barcode has already been issued"
	case strings.Contains(constraint, "run_sequence"):
		return "this batch was already recorded for the submission run"
	default:
		return "a record with these values already exists"
	}
}

// IsUniqueViolation reports whether err is a PostgreSQL unique constraint violation
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
