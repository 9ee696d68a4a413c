package database

import (
	"context"

	"github.com/jmoiron/sqlx"
)

type txKey struct{}

// WithinTx runs fn inside a transaction that repositories pick up through Q.
// Nested calls join the outer transaction.
//
// Usage in services:
//
//	err := s.db.WithinTx(ctx, func(ctx context.Context) error {
//	    if err := s.deals.Insert(ctx, deal); err != nil { return err }
//	    return s.deals.InsertItems(ctx, items)
//	})
func (db *DB) WithinTx(ctx context.Context, fn func(context.Context) error) error {
	if db.getTx(ctx) != nil {
		return fn(ctx)
	}
	return db.Transaction(ctx, func(tx *sqlx.Tx) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

// Q returns the transaction bound to ctx, or the pool when there is none.
func (db *DB) Q(ctx context.Context) Querier {
	if tx := db.getTx(ctx); tx != nil {
		return tx
	}
	return db.DB
}

func (db *DB) getTx(ctx context.Context) *sqlx.Tx {
	if tx, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return tx
	}
	return nil
}
