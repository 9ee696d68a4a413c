package database

import (
	stderrors "errors"
	"strings"

	"github.com/lib/pq"

	"github.com/brightdesk/crm-backend/pkg/errors"
)

// Postgres error codes raised when the live schema lags the code.
const (
	codeUndefinedColumn = "42703"
	codeUndefinedTable  = "42P01"
	codeUndefinedObject = "42704"
)

// IsSchemaDrift reports whether err says a column, table or type the query
// referenced does not exist yet.
func IsSchemaDrift(err error) bool {
	var pqErr *pq.Error
	if !stderrors.As(err, &pqErr) {
		return false
	}
	switch pqErr.Code {
	case codeUndefinedColumn, codeUndefinedTable, codeUndefinedObject:
		return true
	}
	return false
}

// MapPQError converts a PostgreSQL error to an AppError with meaningful messages.
// Returns nil if the error is not a pq.Error.
func MapPQError(err error) *errors.AppError {
	var pqErr *pq.Error
	if !stderrors.As(err, &pqErr) {
		return nil
	}

	switch pqErr.Code {
	case "23514":
		return mapCheckConstraint(pqErr)

	case "23505":
		return errors.Conflict(formatConstraintMessage(pqErr))

	case "23503":
		return errors.BadRequest("referenced record does not exist")

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

// mapCheckConstraint maps specific CHECK constraint names to user-friendly messages.
func mapCheckConstraint(pqErr *pq.Error) *errors.AppError {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "probability"):
		return errors.Validation(map[string]string{
			"probability": "must be between 0 and 1",
		})

	case strings.Contains(constraint, "stage_status"):
		return errors.Validation(map[string]string{
			"status": "must be one of: OPEN, WON, LOST",
		})

	case strings.Contains(constraint, "invoice_status"):
		return errors.Validation(map[string]string{
			"status": "must be one of: DRAFT, SENT, PAID, VOID",
		})

	case strings.Contains(constraint, "quantity"):
		return errors.Validation(map[string]string{
			"quantity": "must be at least 1",
		})

	default:
		return errors.BadRequest("data validation failed: " + constraint)
	}
}

// formatConstraintMessage creates a user-friendly message for unique constraint violations.
func formatConstraintMessage(pqErr *pq.Error) string {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "users_email"):
		return "a user with this email already exists"
	case strings.Contains(constraint, "stages_pipeline_position"):
		return "two stages of a pipeline cannot share a position"
	case strings.Contains(constraint, "products_sku"):
		return "a product with this SKU already exists"
	case strings.Contains(constraint, "invoices_number"):
		return "an invoice with this number already exists"
	default:
		return "a record with these values already exists"
	}
}
