package condfilter

import (
	"context"
	"database/sql"

	"github.com/nlstn/go-condfilter/internal/store"
)

// TransactionFromContext returns the *sql.Tx a saved filter is being written in.
// Save hooks registered with SetSaveHook receive a context carrying it, so
// their own writes commit or roll back together with the filter.
func TransactionFromContext(ctx context.Context) (*sql.Tx, bool) {
	return store.TransactionFromContext(ctx)
}
