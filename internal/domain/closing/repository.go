package closing

import (
	"context"
	"time"

	"invclose/internal/core/id"
)

// Repository persists closing records. Implementations return
// apperror.CodeNotFound for single-record lookups that match nothing, and
// must make Save atomic per record (readers see pre- or post-state, never a
// half-written row).
type Repository interface {
	// GetDay returns the DAY record for the exact date.
	GetDay(ctx context.Context, key Key, date time.Time) (*Record, error)

	// GetMonth returns the MONTH record for year/month.
	GetMonth(ctx context.Context, key Key, year int, month time.Month) (*Record, error)

	// Save inserts the record or updates it in place, keyed by
	// (entity, facility type, granularity, period date). Updates bump
	// updated_at; the caller controls Version.
	Save(ctx context.Context, rec *Record) error

	// LatestClosedDay returns the most recent closed DAY record for the key.
	LatestClosedDay(ctx context.Context, key Key) (*Record, error)

	// LatestClosedDayBefore returns the most recent closed DAY record with
	// period date strictly before date.
	LatestClosedDayBefore(ctx context.Context, key Key, date time.Time) (*Record, error)

	// LatestClosedMonthBefore returns the most recent closed MONTH record
	// with period before the given year/month.
	LatestClosedMonthBefore(ctx context.Context, key Key, year int, month time.Month) (*Record, error)

	// HasClosedDayAfter reports whether any closed DAY record exists with
	// period date strictly after date.
	HasClosedDayAfter(ctx context.Context, key Key, date time.Time) (bool, error)

	// ListDaysFrom returns DAY records with period date >= from, ascending.
	ListDaysFrom(ctx context.Context, key Key, from time.Time) ([]Record, error)

	// ListMonthsFrom returns MONTH records with period >= the month of from,
	// ascending.
	ListMonthsFrom(ctx context.Context, key Key, from time.Time) ([]Record, error)

	// ListDaysInMonth returns DAY records for all facility types of the
	// entity within year/month, ordered by day then facility type.
	ListDaysInMonth(ctx context.Context, entityID id.ID, year int, month time.Month) ([]Record, error)

	// ListMonthsInYear returns MONTH records for all facility types of the
	// entity within year, ordered by month then facility type.
	ListMonthsInYear(ctx context.Context, entityID id.ID, year int) ([]Record, error)

	// FacilityTypesWithRecords lists facility type codes that have at least
	// one closing record for the entity.
	FacilityTypesWithRecords(ctx context.Context, entityID id.ID) ([]string, error)
}
