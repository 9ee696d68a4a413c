package database

import (
	"github.com/huandu/go-sqlbuilder"
)

// NewSelectBuilder returns a PostgreSQL-flavoured SELECT builder.
func NewSelectBuilder() *sqlbuilder.SelectBuilder {
	return sqlbuilder.PostgreSQL.NewSelectBuilder()
}

// NewInsertBuilder returns a PostgreSQL-flavoured INSERT builder.
func NewInsertBuilder() *sqlbuilder.InsertBuilder {
	return sqlbuilder.PostgreSQL.NewInsertBuilder()
}

// NewUpdateBuilder returns a PostgreSQL-flavoured UPDATE builder.
func NewUpdateBuilder() *sqlbuilder.UpdateBuilder {
	return sqlbuilder.PostgreSQL.NewUpdateBuilder()
}

// NewDeleteBuilder returns a PostgreSQL-flavoured DELETE builder.
func NewDeleteBuilder() *sqlbuilder.DeleteBuilder {
	return sqlbuilder.PostgreSQL.NewDeleteBuilder()
}

// TenantSelect starts a SELECT on table already restricted to tenantID.
// Every tenant-owned read goes through here or carries the same predicate.
func TenantSelect(table, tenantID string, cols ...string) *sqlbuilder.SelectBuilder {
	sb := NewSelectBuilder()
	sb.Select(cols...).From(table)
	sb.Where(sb.Equal("tenant_id", tenantID))
	return sb
}

// TenantUpdate starts an UPDATE on table restricted to (id, tenantID).
func TenantUpdate(table, id, tenantID string) *sqlbuilder.UpdateBuilder {
	ub := NewUpdateBuilder()
	ub.Update(table)
	ub.Where(ub.Equal("id", id), ub.Equal("tenant_id", tenantID))
	return ub
}

// TenantDelete starts a DELETE on table restricted to tenantID.
func TenantDelete(table, tenantID string) *sqlbuilder.DeleteBuilder {
	db := NewDeleteBuilder()
	db.DeleteFrom(table)
	db.Where(db.Equal("tenant_id", tenantID))
	return db
}

// Flatten spreads a typed slice into builder arguments.
func Flatten[T any](values []T) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
