// Package closing implements the periodic inventory closing engine:
// daily and monthly snapshot processors, the forward-cascading
// recalculation coordinator, and read-only status projections.
package closing

import (
	"context"
	"fmt"
	"time"

	"invclose/internal/core/id"
	"invclose/internal/core/period"
	"invclose/internal/domain/ledger"
)

// Key uniquely identifies one closing chain: the business entity whose
// position is frozen and the facility type being counted.
type Key struct {
	EntityID         id.ID
	FacilityTypeCode string
}

// String renders the key for lock naming and logs.
func (k Key) String() string {
	return fmt.Sprintf("closing:%s:%s", k.EntityID, k.FacilityTypeCode)
}

// Validate checks the key is fully populated.
func (k Key) Validate() error {
	if id.IsNil(k.EntityID) {
		return fmt.Errorf("entity id is required")
	}
	if k.FacilityTypeCode == "" {
		return fmt.Errorf("facility type code is required")
	}
	return nil
}

// Record is one closing snapshot. One (key, granularity, period) maps to at
// most one record. Records are never deleted; corrections bump Version.
type Record struct {
	ID               id.ID              `db:"id" json:"id"`
	EntityID         id.ID              `db:"entity_id" json:"entityId"`
	FacilityTypeCode string             `db:"facility_type_code" json:"facilityTypeCode"`
	Granularity      period.Granularity `db:"granularity" json:"granularity"`

	// PeriodDate is the calendar day for DAY records and the first day of
	// the month for MONTH records, always UTC midnight.
	PeriodDate time.Time `db:"period_date" json:"periodDate"`

	PreviousQuantity int64 `db:"previous_qty" json:"previousQuantity"`
	InboundQuantity  int64 `db:"inbound_qty" json:"inboundQuantity"`
	OutboundQuantity int64 `db:"outbound_qty" json:"outboundQuantity"`
	ClosingQuantity  int64 `db:"closing_qty" json:"closingQuantity"`

	IsClosed bool       `db:"is_closed" json:"isClosed"`
	ClosedAt *time.Time `db:"closed_at" json:"closedAt,omitempty"`
	ClosedBy string     `db:"closed_by" json:"closedBy,omitempty"`

	// Version increments on every recalculation of this record.
	Version int `db:"version" json:"version"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// Key returns the closing key of the record.
func (r *Record) Key() Key {
	return Key{EntityID: r.EntityID, FacilityTypeCode: r.FacilityTypeCode}
}

// Period returns the closing period of the record.
func (r *Record) Period() period.Period {
	if r.Granularity == period.GranularityMonth {
		return period.MonthOf(r.PeriodDate)
	}
	return period.Day(r.PeriodDate)
}

// matchesInputs reports whether the stored aggregates equal a fresh
// computation. Used for idempotent re-close and recalculation skip detection.
func (r *Record) matchesInputs(previous int64, totals ledger.Totals) bool {
	return r.PreviousQuantity == previous &&
		r.InboundQuantity == totals.Inbound &&
		r.OutboundQuantity == totals.Outbound &&
		r.ClosingQuantity == previous+totals.Net()
}

// AuditEvent describes a closing mutation for the audit trail.
type AuditEvent struct {
	Action           string
	EntityID         id.ID
	FacilityTypeCode string
	ActorID          string
	Payload          any
}

// Audit actions recorded by the engine.
const (
	AuditActionCloseDay    = "closing.day.close"
	AuditActionCloseMonth  = "closing.month.close"
	AuditActionRecalculate = "closing.recalculate"
)

// AuditLog receives closing mutations. Implementations must not fail the
// business operation; errors are logged and swallowed by the callers.
type AuditLog interface {
	Record(ctx context.Context, event AuditEvent) error
}
