// Package tx carries an open SQL transaction on the context so Postgres
// stores join it without taking a *sql.Tx parameter.
package tx

import (
	"context"
	"database/sql"
)

type txKey struct{}

// WithTx returns ctx unchanged when tx is nil.
func WithTx(ctx context.Context, tx *sql.Tx) context.Context {
	if tx == nil {
		return ctx
	}
	return context.WithValue(ctx, txKey{}, tx)
}

func From(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(*sql.Tx)
	return tx, ok
}
