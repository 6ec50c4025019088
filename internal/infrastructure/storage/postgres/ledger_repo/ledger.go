// Package ledger_repo provides the PostgreSQL read model over the inventory
// transaction log.
package ledger_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"invclose/internal/core/apperror"
	"invclose/internal/core/id"
	"invclose/internal/domain/ledger"
	"invclose/internal/infrastructure/storage/postgres"
)

const ledgerTransactionsTable = "ledger_transactions"

// Compile-time check that Repo implements ledger.Reader.
var _ ledger.Reader = (*Repo)(nil)

// Repo implements ledger.Reader on PostgreSQL.
type Repo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
}

// New creates a new ledger reader.
func New(txm *postgres.TxManager) *Repo {
	return &Repo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// SumRange aggregates non-cancelled deltas with occurred_at in [from, to).
// Cancelled rows stay in the table but never count.
func (r *Repo) SumRange(ctx context.Context, entityID id.ID, facilityTypeCode string, from, to time.Time) (ledger.Totals, error) {
	q := r.builder.Select(
		"COALESCE(SUM(quantity) FILTER (WHERE direction = 'in'), 0) AS inbound",
		"COALESCE(SUM(quantity) FILTER (WHERE direction = 'out'), 0) AS outbound",
	).
		From(ledgerTransactionsTable).
		Where(squirrel.Eq{
			"entity_id":          entityID,
			"facility_type_code": facilityTypeCode,
			"cancelled_at":       nil,
		}).
		Where(squirrel.GtOrEq{"occurred_at": from}).
		Where(squirrel.Lt{"occurred_at": to})

	sql, args, err := q.ToSql()
	if err != nil {
		return ledger.Totals{}, fmt.Errorf("build query: %w", err)
	}

	var row struct {
		Inbound  int64 `db:"inbound"`
		Outbound int64 `db:"outbound"`
	}
	querier := r.txm.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &row, sql, args...); err != nil {
		return ledger.Totals{}, apperror.NewLedgerUnavailable(err)
	}
	return ledger.Totals{Inbound: row.Inbound, Outbound: row.Outbound}, nil
}

// ActiveFacilityTypes lists facility type codes with at least one
// non-cancelled transaction for the entity in [from, to).
func (r *Repo) ActiveFacilityTypes(ctx context.Context, entityID id.ID, from, to time.Time) ([]string, error) {
	q := r.builder.Select("DISTINCT facility_type_code").
		From(ledgerTransactionsTable).
		Where(squirrel.Eq{
			"entity_id":    entityID,
			"cancelled_at": nil,
		}).
		Where(squirrel.GtOrEq{"occurred_at": from}).
		Where(squirrel.Lt{"occurred_at": to}).
		OrderBy("facility_type_code ASC")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var codes []string
	querier := r.txm.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &codes, sql, args...); err != nil {
		return nil, apperror.NewLedgerUnavailable(err)
	}
	return codes, nil
}
