// Package tx abstracts transaction management so domain services do not
// depend on a concrete database driver.
package tx

import (
	"context"
)

// Manager runs functions inside a database transaction. The closing
// processors commit each period in its own transaction through this seam;
// the Postgres implementation lives in infrastructure/storage/postgres.
type Manager interface {
	// RunInTransaction executes fn within a transaction: rollback when fn
	// returns an error, commit otherwise. Nested calls reuse the transaction
	// already carried in ctx.
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
