// Package closing_repo provides the PostgreSQL implementation of the
// closing record store.
package closing_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"invclose/internal/core/apperror"
	"invclose/internal/core/id"
	"invclose/internal/core/period"
	"invclose/internal/domain/closing"
	"invclose/internal/infrastructure/storage/postgres"
)

const closingRecordsTable = "closing_records"

var recordColumns = []string{
	"id", "entity_id", "facility_type_code", "granularity", "period_date",
	"previous_qty", "inbound_qty", "outbound_qty", "closing_qty",
	"is_closed", "closed_at", "closed_by", "version", "created_at", "updated_at",
}

// Compile-time check that Repo implements closing.Repository.
var _ closing.Repository = (*Repo)(nil)

// Repo implements closing.Repository on PostgreSQL.
type Repo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
}

// New creates a new closing record repository.
func New(txm *postgres.TxManager) *Repo {
	return &Repo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func (r *Repo) selectRecords() squirrel.SelectBuilder {
	return r.builder.Select(recordColumns...).From(closingRecordsTable)
}

func (r *Repo) getOne(ctx context.Context, q squirrel.SelectBuilder, what string, key any) (*closing.Record, error) {
	sql, args, err := q.Limit(1).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rec closing.Record
	querier := r.txm.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &rec, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound(what, key)
		}
		return nil, fmt.Errorf("get %s: %w", what, err)
	}
	return &rec, nil
}

func (r *Repo) list(ctx context.Context, q squirrel.SelectBuilder) ([]closing.Record, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var recs []closing.Record
	querier := r.txm.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &recs, sql, args...); err != nil {
		return nil, fmt.Errorf("select closing records: %w", err)
	}
	return recs, nil
}

// GetDay returns the DAY record for the exact date.
func (r *Repo) GetDay(ctx context.Context, key closing.Key, date time.Time) (*closing.Record, error) {
	q := r.selectRecords().Where(squirrel.Eq{
		"entity_id":          key.EntityID,
		"facility_type_code": key.FacilityTypeCode,
		"granularity":        period.GranularityDay,
		"period_date":        period.Truncate(date),
	})
	return r.getOne(ctx, q, "daily closing record", period.FormatDate(date))
}

// GetMonth returns the MONTH record for year/month.
func (r *Repo) GetMonth(ctx context.Context, key closing.Key, year int, month time.Month) (*closing.Record, error) {
	m := period.Month(year, month)
	q := r.selectRecords().Where(squirrel.Eq{
		"entity_id":          key.EntityID,
		"facility_type_code": key.FacilityTypeCode,
		"granularity":        period.GranularityMonth,
		"period_date":        m.Start(),
	})
	return r.getOne(ctx, q, "monthly closing record", m.String())
}

// Save inserts or updates the record keyed by its unique period identity.
// The upsert commits atomically, so readers see pre- or post-state only.
func (r *Repo) Save(ctx context.Context, rec *closing.Record) error {
	q := r.builder.Insert(closingRecordsTable).
		Columns(recordColumns...).
		Values(
			rec.ID, rec.EntityID, rec.FacilityTypeCode, rec.Granularity, rec.PeriodDate,
			rec.PreviousQuantity, rec.InboundQuantity, rec.OutboundQuantity, rec.ClosingQuantity,
			rec.IsClosed, rec.ClosedAt, rec.ClosedBy, rec.Version, rec.CreatedAt, rec.UpdatedAt,
		).
		Suffix(`ON CONFLICT (entity_id, facility_type_code, granularity, period_date) DO UPDATE SET
			previous_qty = EXCLUDED.previous_qty,
			inbound_qty = EXCLUDED.inbound_qty,
			outbound_qty = EXCLUDED.outbound_qty,
			closing_qty = EXCLUDED.closing_qty,
			is_closed = EXCLUDED.is_closed,
			closed_at = EXCLUDED.closed_at,
			closed_by = EXCLUDED.closed_by,
			version = EXCLUDED.version,
			updated_at = EXCLUDED.updated_at`)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build upsert: %w", err)
	}

	querier := r.txm.GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("save closing record: %w", err)
	}
	return nil
}

// LatestClosedDay returns the most recent closed DAY record for the key.
func (r *Repo) LatestClosedDay(ctx context.Context, key closing.Key) (*closing.Record, error) {
	q := r.selectRecords().
		Where(squirrel.Eq{
			"entity_id":          key.EntityID,
			"facility_type_code": key.FacilityTypeCode,
			"granularity":        period.GranularityDay,
			"is_closed":          true,
		}).
		OrderBy("period_date DESC")
	return r.getOne(ctx, q, "latest closed day", key.String())
}

// LatestClosedDayBefore returns the most recent closed DAY record strictly before date.
func (r *Repo) LatestClosedDayBefore(ctx context.Context, key closing.Key, date time.Time) (*closing.Record, error) {
	q := r.selectRecords().
		Where(squirrel.Eq{
			"entity_id":          key.EntityID,
			"facility_type_code": key.FacilityTypeCode,
			"granularity":        period.GranularityDay,
			"is_closed":          true,
		}).
		Where(squirrel.Lt{"period_date": period.Truncate(date)}).
		OrderBy("period_date DESC")
	return r.getOne(ctx, q, "closed day before", period.FormatDate(date))
}

// LatestClosedMonthBefore returns the most recent closed MONTH record before year/month.
func (r *Repo) LatestClosedMonthBefore(ctx context.Context, key closing.Key, year int, month time.Month) (*closing.Record, error) {
	m := period.Month(year, month)
	q := r.selectRecords().
		Where(squirrel.Eq{
			"entity_id":          key.EntityID,
			"facility_type_code": key.FacilityTypeCode,
			"granularity":        period.GranularityMonth,
			"is_closed":          true,
		}).
		Where(squirrel.Lt{"period_date": m.Start()}).
		OrderBy("period_date DESC")
	return r.getOne(ctx, q, "closed month before", m.String())
}

// HasClosedDayAfter reports whether a closed DAY record exists after date.
func (r *Repo) HasClosedDayAfter(ctx context.Context, key closing.Key, date time.Time) (bool, error) {
	q := r.builder.Select("1").From(closingRecordsTable).
		Where(squirrel.Eq{
			"entity_id":          key.EntityID,
			"facility_type_code": key.FacilityTypeCode,
			"granularity":        period.GranularityDay,
			"is_closed":          true,
		}).
		Where(squirrel.Gt{"period_date": period.Truncate(date)}).
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return false, fmt.Errorf("build query: %w", err)
	}

	var one int
	querier := r.txm.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &one, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("check later closed day: %w", err)
	}
	return true, nil
}

// ListDaysFrom returns DAY records with period date >= from, ascending.
func (r *Repo) ListDaysFrom(ctx context.Context, key closing.Key, from time.Time) ([]closing.Record, error) {
	q := r.selectRecords().
		Where(squirrel.Eq{
			"entity_id":          key.EntityID,
			"facility_type_code": key.FacilityTypeCode,
			"granularity":        period.GranularityDay,
		}).
		Where(squirrel.GtOrEq{"period_date": period.Truncate(from)}).
		OrderBy("period_date ASC")
	return r.list(ctx, q)
}

// ListMonthsFrom returns MONTH records from the month of from onward, ascending.
func (r *Repo) ListMonthsFrom(ctx context.Context, key closing.Key, from time.Time) ([]closing.Record, error) {
	q := r.selectRecords().
		Where(squirrel.Eq{
			"entity_id":          key.EntityID,
			"facility_type_code": key.FacilityTypeCode,
			"granularity":        period.GranularityMonth,
		}).
		Where(squirrel.GtOrEq{"period_date": period.MonthOf(from).Start()}).
		OrderBy("period_date ASC")
	return r.list(ctx, q)
}

// ListDaysInMonth returns the entity's DAY records within year/month.
func (r *Repo) ListDaysInMonth(ctx context.Context, entityID id.ID, year int, month time.Month) ([]closing.Record, error) {
	m := period.Month(year, month)
	q := r.selectRecords().
		Where(squirrel.Eq{
			"entity_id":   entityID,
			"granularity": period.GranularityDay,
		}).
		Where(squirrel.GtOrEq{"period_date": m.Start()}).
		Where(squirrel.Lt{"period_date": m.End()}).
		OrderBy("period_date ASC", "facility_type_code ASC")
	return r.list(ctx, q)
}

// ListMonthsInYear returns the entity's MONTH records within year.
func (r *Repo) ListMonthsInYear(ctx context.Context, entityID id.ID, year int) ([]closing.Record, error) {
	q := r.selectRecords().
		Where(squirrel.Eq{
			"entity_id":   entityID,
			"granularity": period.GranularityMonth,
		}).
		Where(squirrel.GtOrEq{"period_date": time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)}).
		Where(squirrel.Lt{"period_date": time.Date(year+1, 1, 1, 0, 0, 0, 0, time.UTC)}).
		OrderBy("period_date ASC", "facility_type_code ASC")
	return r.list(ctx, q)
}

// FacilityTypesWithRecords lists facility type codes with any record for the entity.
func (r *Repo) FacilityTypesWithRecords(ctx context.Context, entityID id.ID) ([]string, error) {
	q := r.builder.Select("DISTINCT facility_type_code").
		From(closingRecordsTable).
		Where(squirrel.Eq{"entity_id": entityID}).
		OrderBy("facility_type_code ASC")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var codes []string
	querier := r.txm.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &codes, sql, args...); err != nil {
		return nil, fmt.Errorf("select facility types: %w", err)
	}
	return codes, nil
}
