package closing

import (
	"context"
	"fmt"
	"time"

	"invclose/internal/core/apperror"
	appctx "invclose/internal/core/context"
	"invclose/internal/core/id"
	"invclose/internal/core/period"
	"invclose/internal/core/tx"
	"invclose/internal/domain/ledger"
	"invclose/internal/domain/lock"
	"invclose/pkg/logger"
)

// MonthlyProcessor computes and persists monthly closing snapshots.
// A month can only be closed once the daily record for its last calendar day
// is closed, which transitively guarantees every day of the month is closed.
type MonthlyProcessor struct {
	records Repository
	ledger  ledger.Reader
	locks   lock.Manager
	txm     tx.Manager
	audit   AuditLog
	now     func() time.Time
}

// NewMonthlyProcessor creates a monthly closing processor. audit may be nil.
func NewMonthlyProcessor(records Repository, ledgerReader ledger.Reader, locks lock.Manager, txm tx.Manager, audit AuditLog) *MonthlyProcessor {
	return &MonthlyProcessor{
		records: records,
		ledger:  ledgerReader,
		locks:   locks,
		txm:     txm,
		audit:   audit,
		now:     time.Now,
	}
}

// CloseMonth freezes the key's position for one calendar month.
func (p *MonthlyProcessor) CloseMonth(ctx context.Context, key Key, year int, month time.Month) (*CloseResult, error) {
	if err := key.Validate(); err != nil {
		return nil, apperror.NewValidation(err.Error())
	}
	if !period.ValidMonth(year, int(month)) {
		return nil, apperror.NewValidation("invalid year/month").
			WithDetail("year", year).WithDetail("month", int(month))
	}

	m := period.Month(year, month)
	if m.Start().After(period.Truncate(p.now())) {
		return nil, apperror.NewValidation("closing month must not be in the future").
			WithDetail("period", m.String())
	}

	release, err := p.locks.Acquire(ctx, key.String())
	if err != nil {
		return nil, err
	}
	defer release()

	lastDay := period.LastDayOfMonth(year, month)
	dayRec, err := p.records.GetDay(ctx, key, lastDay)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, apperror.NewLastDayNotClosed(lastDay)
		}
		return nil, err
	}
	if !dayRec.IsClosed {
		return nil, apperror.NewLastDayNotClosed(lastDay)
	}

	previous, err := p.previousMonthQuantity(ctx, key, m)
	if err != nil {
		return nil, err
	}

	totals, err := p.ledger.SumRange(ctx, key.EntityID, key.FacilityTypeCode, m.Start(), m.End())
	if err != nil {
		return nil, err
	}

	existing, err := p.records.GetMonth(ctx, key, year, month)
	if err != nil && !apperror.IsNotFound(err) {
		return nil, err
	}
	if existing != nil && existing.IsClosed {
		if existing.matchesInputs(previous, totals) {
			return &CloseResult{Record: existing, AlreadyClosed: true}, nil
		}
		return nil, apperror.NewAlreadyClosed(m.String())
	}

	closingQty := previous + totals.Net()
	if closingQty < 0 {
		return nil, apperror.NewNegativeClosing(m.String(), closingQty).
			WithDetail("previous_quantity", previous).
			WithDetail("inbound_quantity", totals.Inbound).
			WithDetail("outbound_quantity", totals.Outbound)
	}

	// With an intact daily chain the month total equals the last day's
	// position. A mismatch means ledger rows outside any closed day.
	if closingQty != dayRec.ClosingQuantity {
		logger.Warn(ctx, "monthly closing diverges from last daily closing",
			"period", m.String(),
			"month_closing", closingQty,
			"last_day_closing", dayRec.ClosingQuantity,
		)
	}

	now := p.now().UTC()
	rec := existing
	if rec == nil {
		rec = &Record{
			ID:               id.New(),
			EntityID:         key.EntityID,
			FacilityTypeCode: key.FacilityTypeCode,
			Granularity:      period.GranularityMonth,
			PeriodDate:       m.Start(),
			CreatedAt:        now,
		}
	}
	rec.PreviousQuantity = previous
	rec.InboundQuantity = totals.Inbound
	rec.OutboundQuantity = totals.Outbound
	rec.ClosingQuantity = closingQty
	rec.IsClosed = true
	rec.ClosedAt = &now
	rec.ClosedBy = appctx.GetActorID(ctx)
	rec.Version++
	rec.UpdatedAt = now

	err = p.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		return p.records.Save(ctx, rec)
	})
	if err != nil {
		return nil, fmt.Errorf("save monthly closing: %w", err)
	}

	if p.audit != nil {
		event := AuditEvent{
			Action:           AuditActionCloseMonth,
			EntityID:         key.EntityID,
			FacilityTypeCode: key.FacilityTypeCode,
			ActorID:          appctx.GetActorID(ctx),
			Payload:          rec,
		}
		if err := p.audit.Record(ctx, event); err != nil {
			logger.Warn(ctx, "audit record failed", "action", AuditActionCloseMonth, "error", err)
		}
	}

	logger.Info(ctx, "monthly closing completed",
		"entity_id", key.EntityID,
		"facility_type", key.FacilityTypeCode,
		"period", m.String(),
		"closing_quantity", closingQty,
		"version", rec.Version,
	)

	return &CloseResult{Record: rec}, nil
}

// IsMonthClosed reports whether the month containing txnDate is finalized
// for the key. The transaction-registration path consults this predicate
// before accepting a ledger write.
func (p *MonthlyProcessor) IsMonthClosed(ctx context.Context, key Key, txnDate time.Time) (bool, error) {
	rec, err := p.records.GetMonth(ctx, key, txnDate.UTC().Year(), txnDate.UTC().Month())
	if err != nil {
		if apperror.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return rec.IsClosed, nil
}

// previousMonthQuantity resolves the carried-forward position for month m.
// Months chain like days: the prior month's record must be closed, except
// before the very first closing ever recorded for the key.
func (p *MonthlyProcessor) previousMonthQuantity(ctx context.Context, key Key, m period.Period) (int64, error) {
	prev := m.Prev()

	rec, err := p.records.GetMonth(ctx, key, prev.Year(), prev.MonthValue())
	if err == nil {
		if !rec.IsClosed {
			return 0, apperror.NewPrerequisiteNotClosed(prev.Start()).
				WithDetail("period", prev.String())
		}
		return rec.ClosingQuantity, nil
	}
	if !apperror.IsNotFound(err) {
		return 0, err
	}

	// No prior month record. Only acceptable when no daily closing predates
	// this month; otherwise the earlier month must be closed first.
	_, err = p.records.LatestClosedDayBefore(ctx, key, m.Start())
	if err == nil {
		return 0, apperror.NewPrerequisiteNotClosed(prev.Start()).
			WithDetail("period", prev.String())
	}
	if !apperror.IsNotFound(err) {
		return 0, err
	}
	return 0, nil
}
