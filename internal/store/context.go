package store

import (
	"context"
	"database/sql"

	"gorm.io/gorm"
)

// Context keys for store-scoped values
type contextKey string

const transactionDBKey contextKey = "condfilter_transaction_db"

// withTransaction attaches the active GORM transaction to the context for hook consumption.
func withTransaction(ctx context.Context, tx *gorm.DB) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, transactionDBKey, tx)
}

// gormTransactionFromContext returns the GORM transaction stored in ctx, if any.
func gormTransactionFromContext(ctx context.Context) (*gorm.DB, bool) {
	if ctx == nil {
		return nil, false
	}
	tx, ok := ctx.Value(transactionDBKey).(*gorm.DB)
	if !ok || tx == nil {
		return nil, false
	}
	return tx, true
}

// TransactionFromContext retrieves the *sql.Tx of the transaction a save hook runs in.
func TransactionFromContext(ctx context.Context) (*sql.Tx, bool) {
	gormTx, ok := gormTransactionFromContext(ctx)
	if !ok {
		return nil, false
	}
	if gormTx.Statement != nil && gormTx.Statement.ConnPool != nil {
		if tx, ok := gormTx.Statement.ConnPool.(*sql.Tx); ok {
			return tx, true
		}
	}
	return nil, false
}
