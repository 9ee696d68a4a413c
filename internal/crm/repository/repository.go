// Package repository persists CRM entities. Every query is scoped by the
// caller's tenant, and optional columns are only referenced when the
// capability set says they exist.
package repository

import (
	"database/sql"
	stderrors "errors"

	"github.com/brightdesk/crm-backend/pkg/database"
	"github.com/brightdesk/crm-backend/pkg/errors"
)

// mapWriteErr turns constraint violations into AppErrors and passes
// everything else through unchanged.
func mapWriteErr(err error) error {
	if err == nil {
		return nil
	}
	if appErr := database.MapPQError(err); appErr != nil {
		return appErr
	}
	return err
}

// notFound maps sql.ErrNoRows to a NotFound for resource.
func notFound(err error, resource string) error {
	if stderrors.Is(err, sql.ErrNoRows) {
		return errors.NotFound(resource)
	}
	return err
}

// expectOne reports NotFound when an UPDATE or DELETE touched no row.
func expectOne(res sql.Result, resource string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.NotFound(resource)
	}
	return nil
}
