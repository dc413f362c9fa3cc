package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mercadoandino/settlement-engine/internal/platform/persistence"
)

// txBeginner is the subset of pgxpool.Pool needed to open a transaction
type txBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

var _ txBeginner = (*pgxpool.Pool)(nil)

// runAtomic executes fn inside a transaction when the repository operates on
// the pool, so multi-statement writes (a status change plus its timeline
// event, a payment plus its initial events) commit or roll back together. A
// repository already scoped to a transaction via WithTx (inTx) keeps executing
// on it directly; the outer caller owns the commit. The explicit marker avoids
// interface sniffing: test doubles may satisfy pgx.Tx without being one.
func runAtomic(ctx context.Context, q persistence.Querier, inTx bool, fn func(q persistence.Querier) error) error {
	if inTx {
		return fn(q)
	}
	b, ok := q.(txBeginner)
	if !ok {
		return fn(q)
	}

	tx, err := b.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("tx err: %v, rb err: %v", err, rbErr)
		}
		return err
	}
	return tx.Commit(ctx)
}
