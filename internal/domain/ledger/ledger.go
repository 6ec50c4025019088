// Package ledger defines the read model over the durable inventory
// transaction log. The closing engine never writes to the ledger; it only
// aggregates quantity deltas per (entity, facility type) over time ranges.
package ledger

import (
	"context"
	"time"

	"invclose/internal/core/id"
)

// Direction of a ledger transaction.
type Direction string

const (
	DirectionInbound  Direction = "in"
	DirectionOutbound Direction = "out"
)

// Transaction is one inbound/outbound quantity delta.
// Cancelled transactions stay in the log but are excluded from every sum,
// which is what makes post-cancellation recalculation change the aggregates.
type Transaction struct {
	ID               id.ID      `db:"id"`
	EntityID         id.ID      `db:"entity_id"`
	FacilityTypeCode string     `db:"facility_type_code"`
	Direction        Direction  `db:"direction"`
	Quantity         int64      `db:"quantity"`
	OccurredAt       time.Time  `db:"occurred_at"`
	CancelledAt      *time.Time `db:"cancelled_at"`
}

// Totals holds aggregated deltas over a range.
type Totals struct {
	Inbound  int64
	Outbound int64
}

// Net returns inbound minus outbound.
func (t Totals) Net() int64 {
	return t.Inbound - t.Outbound
}

// Reader is the read-only contract against the Ledger Store.
// Implementations must surface upstream failures as
// apperror.CodeLedgerUnavailable so callers can retry.
type Reader interface {
	// SumRange aggregates non-cancelled deltas with occurred_at in [from, to).
	SumRange(ctx context.Context, entityID id.ID, facilityTypeCode string, from, to time.Time) (Totals, error)

	// ActiveFacilityTypes lists facility type codes with at least one
	// non-cancelled transaction for the entity in [from, to).
	ActiveFacilityTypes(ctx context.Context, entityID id.ID, from, to time.Time) ([]string, error)
}
