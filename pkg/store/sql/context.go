package sql

import (
	"context"
	"database/sql"
)

// txContextKey carries the open transaction of an InTx call.
type txContextKey struct{}

// ContextWithTx returns a copy of ctx whose store calls run inside tx.
func ContextWithTx(ctx context.Context, tx *sql.Tx) context.Context {
	return context.WithValue(ctx, txContextKey{}, tx)
}

// TxFromContext reports the transaction opened by an enclosing InTx, if any.
func TxFromContext(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txContextKey{}).(*sql.Tx)
	return tx, ok && tx != nil
}
