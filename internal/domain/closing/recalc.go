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

// RecalcEntry documents one recomputed period for audit and UI display.
type RecalcEntry struct {
	Period             string `json:"period"`
	OldClosingQuantity int64  `json:"oldClosingQuantity"`
	NewClosingQuantity int64  `json:"newClosingQuantity"`
	VersionBefore      int    `json:"versionBefore"`
	VersionAfter       int    `json:"versionAfter"`
	Changed            bool   `json:"changed"`
}

// RecalcReport lists every period touched by a recalculation sweep.
type RecalcReport struct {
	EntityID         id.ID         `json:"entityId"`
	FacilityTypeCode string        `json:"facilityTypeCode"`
	FromDate         time.Time     `json:"fromDate"`
	Days             []RecalcEntry `json:"days"`
	Months           []RecalcEntry `json:"months"`
	ChangedCount     int           `json:"changedCount"`
	Aborted          bool          `json:"aborted"`
	AbortedPeriod    string        `json:"abortedPeriod,omitempty"`
}

// Coordinator re-runs closing computations after a ledger correction and
// cascades the corrected position forward through every subsequent closed
// period. The sweep is strictly ordered per key; each day commits in its own
// transaction, so an interrupted run leaves a valid chain prefix and a retry
// skips the already-consistent days.
type Coordinator struct {
	records Repository
	ledger  ledger.Reader
	locks   lock.Manager
	txm     tx.Manager
	audit   AuditLog
	now     func() time.Time
}

// NewCoordinator creates a recalculation coordinator. audit may be nil.
func NewCoordinator(records Repository, ledgerReader ledger.Reader, locks lock.Manager, txm tx.Manager, audit AuditLog) *Coordinator {
	return &Coordinator{
		records: records,
		ledger:  ledgerReader,
		locks:   locks,
		txm:     txm,
		audit:   audit,
		now:     time.Now,
	}
}

// Recalculate recomputes the daily chain from fromDate forward, then
// re-aggregates every existing monthly record the sweep touched, in month
// order. Days before fromDate are never modified.
//
// If any recomputed day would go negative the whole run aborts at that day:
// nothing past the failure point is committed and the returned report shows
// exactly how far the sweep got. The report is returned together with the
// error in that case.
func (c *Coordinator) Recalculate(ctx context.Context, key Key, fromDate time.Time) (*RecalcReport, error) {
	if err := key.Validate(); err != nil {
		return nil, apperror.NewValidation(err.Error())
	}

	fromDate = period.Truncate(fromDate)
	if fromDate.After(period.Truncate(c.now())) {
		return nil, apperror.NewValidation("recalculation date must not be in the future").
			WithDetail("date", period.FormatDate(fromDate))
	}

	release, err := c.locks.Acquire(ctx, key.String())
	if err != nil {
		return nil, err
	}
	defer release()

	report := &RecalcReport{
		EntityID:         key.EntityID,
		FacilityTypeCode: key.FacilityTypeCode,
		FromDate:         fromDate,
	}

	days, err := c.records.ListDaysFrom(ctx, key, fromDate)
	if err != nil {
		return nil, err
	}
	if len(days) == 0 || !days[0].PeriodDate.Equal(fromDate) {
		return nil, apperror.NewNotFound("daily closing record", period.FormatDate(fromDate))
	}

	previous, err := c.startingQuantity(ctx, key, fromDate)
	if err != nil {
		return nil, err
	}

	report, err = c.sweepDays(ctx, key, days, previous, report)
	if err != nil {
		return report, err
	}

	report, err = c.sweepMonths(ctx, key, fromDate, report)
	if err != nil {
		return report, err
	}

	c.logAudit(ctx, key, report)

	logger.Info(ctx, "recalculation completed",
		"entity_id", key.EntityID,
		"facility_type", key.FacilityTypeCode,
		"from_date", period.FormatDate(fromDate),
		"days", len(report.Days),
		"months", len(report.Months),
		"changed", report.ChangedCount,
	)

	return report, nil
}

// sweepDays recomputes each daily record in date order, carrying the
// corrected position forward. Unchanged days are skipped without a version
// bump, which is what makes an interrupted run resumable.
func (c *Coordinator) sweepDays(ctx context.Context, key Key, days []Record, previous int64, report *RecalcReport) (*RecalcReport, error) {
	expected := days[0].PeriodDate

	for i := range days {
		rec := &days[i]
		day := period.Day(rec.PeriodDate)

		if !rec.PeriodDate.Equal(expected) {
			report.Aborted = true
			report.AbortedPeriod = period.FormatDate(expected)
			return report, apperror.NewConflict("daily closing chain has a gap").
				WithDetail("missing_date", period.FormatDate(expected))
		}
		expected = day.End()

		totals, err := c.ledger.SumRange(ctx, key.EntityID, key.FacilityTypeCode, day.Start(), day.End())
		if err != nil {
			report.Aborted = true
			report.AbortedPeriod = day.String()
			return report, err
		}

		newClosing := previous + totals.Net()
		if newClosing < 0 {
			report.Aborted = true
			report.AbortedPeriod = day.String()
			return report, apperror.NewNegativeClosing(day.String(), newClosing).
				WithDetail("previous_quantity", previous).
				WithDetail("inbound_quantity", totals.Inbound).
				WithDetail("outbound_quantity", totals.Outbound)
		}

		entry := RecalcEntry{
			Period:             day.String(),
			OldClosingQuantity: rec.ClosingQuantity,
			NewClosingQuantity: newClosing,
			VersionBefore:      rec.Version,
			VersionAfter:       rec.Version,
		}

		if !(rec.IsClosed && rec.matchesInputs(previous, totals)) {
			if err := c.overwrite(ctx, rec, previous, totals, newClosing); err != nil {
				report.Aborted = true
				report.AbortedPeriod = day.String()
				return report, fmt.Errorf("overwrite daily closing %s: %w", day, err)
			}
			entry.VersionAfter = rec.Version
			entry.Changed = true
			report.ChangedCount++
		}

		report.Days = append(report.Days, entry)
		previous = newClosing
	}

	return report, nil
}

// sweepMonths re-aggregates every existing monthly record from the month of
// fromDate forward, in month order. Monthly records whose last day was
// recalculated must reflect the corrected daily chain.
func (c *Coordinator) sweepMonths(ctx context.Context, key Key, fromDate time.Time, report *RecalcReport) (*RecalcReport, error) {
	months, err := c.records.ListMonthsFrom(ctx, key, fromDate)
	if err != nil {
		return report, err
	}

	for i := range months {
		rec := &months[i]
		m := period.MonthOf(rec.PeriodDate)

		previous, err := c.monthStartingQuantity(ctx, key, m)
		if err != nil {
			return report, err
		}

		totals, err := c.ledger.SumRange(ctx, key.EntityID, key.FacilityTypeCode, m.Start(), m.End())
		if err != nil {
			report.Aborted = true
			report.AbortedPeriod = m.String()
			return report, err
		}

		newClosing := previous + totals.Net()
		if newClosing < 0 {
			report.Aborted = true
			report.AbortedPeriod = m.String()
			return report, apperror.NewNegativeClosing(m.String(), newClosing)
		}

		entry := RecalcEntry{
			Period:             m.String(),
			OldClosingQuantity: rec.ClosingQuantity,
			NewClosingQuantity: newClosing,
			VersionBefore:      rec.Version,
			VersionAfter:       rec.Version,
		}

		if !(rec.IsClosed && rec.matchesInputs(previous, totals)) {
			if err := c.overwrite(ctx, rec, previous, totals, newClosing); err != nil {
				report.Aborted = true
				report.AbortedPeriod = m.String()
				return report, fmt.Errorf("overwrite monthly closing %s: %w", m, err)
			}
			entry.VersionAfter = rec.Version
			entry.Changed = true
			report.ChangedCount++
		}

		report.Months = append(report.Months, entry)
	}

	return report, nil
}

// overwrite commits one recomputed record in its own transaction.
func (c *Coordinator) overwrite(ctx context.Context, rec *Record, previous int64, totals ledger.Totals, closing int64) error {
	now := c.now().UTC()

	rec.PreviousQuantity = previous
	rec.InboundQuantity = totals.Inbound
	rec.OutboundQuantity = totals.Outbound
	rec.ClosingQuantity = closing
	rec.IsClosed = true
	rec.ClosedAt = &now
	rec.ClosedBy = appctx.GetActorID(ctx)
	rec.Version++
	rec.UpdatedAt = now

	return c.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		return c.records.Save(ctx, rec)
	})
}

// startingQuantity resolves the fixed carry-in for the sweep: the closing
// quantity of the closed day immediately before fromDate, or zero when
// fromDate is the first day ever closed for the key.
func (c *Coordinator) startingQuantity(ctx context.Context, key Key, fromDate time.Time) (int64, error) {
	prev, err := c.records.LatestClosedDayBefore(ctx, key, fromDate)
	if err != nil {
		if apperror.IsNotFound(err) {
			return 0, nil
		}
		return 0, err
	}
	if !prev.PeriodDate.Equal(fromDate.AddDate(0, 0, -1)) {
		return 0, apperror.NewConflict("daily closing chain has a gap before the recalculation date").
			WithDetail("latest_closed", period.FormatDate(prev.PeriodDate)).
			WithDetail("from_date", period.FormatDate(fromDate))
	}
	return prev.ClosingQuantity, nil
}

// monthStartingQuantity mirrors startingQuantity at month granularity,
// reading the possibly just-rewritten prior month record.
func (c *Coordinator) monthStartingQuantity(ctx context.Context, key Key, m period.Period) (int64, error) {
	prev := m.Prev()
	rec, err := c.records.GetMonth(ctx, key, prev.Year(), prev.MonthValue())
	if err != nil {
		if apperror.IsNotFound(err) {
			return 0, nil
		}
		return 0, err
	}
	return rec.ClosingQuantity, nil
}

func (c *Coordinator) logAudit(ctx context.Context, key Key, report *RecalcReport) {
	if c.audit == nil {
		return
	}
	event := AuditEvent{
		Action:           AuditActionRecalculate,
		EntityID:         key.EntityID,
		FacilityTypeCode: key.FacilityTypeCode,
		ActorID:          appctx.GetActorID(ctx),
		Payload:          report,
	}
	if err := c.audit.Record(ctx, event); err != nil {
		logger.Warn(ctx, "audit record failed", "action", AuditActionRecalculate, "error", err)
	}
}
