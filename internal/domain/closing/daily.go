package closing

import (
	"context"
	"fmt"
	"sort"
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

// CloseResult is the outcome of closing a single period.
type CloseResult struct {
	Record *Record
	// AlreadyClosed marks the idempotent no-op: the period was closed
	// before with identical ledger inputs and no work was done.
	AlreadyClosed bool
}

// FanOutStatus classifies one key's outcome inside an entity-wide daily close.
type FanOutStatus string

const (
	FanOutClosed        FanOutStatus = "closed"
	FanOutAlreadyClosed FanOutStatus = "already_closed"
	FanOutFailed        FanOutStatus = "failed"
)

// FanOutOutcome reports one key's result so callers can retry failed keys
// without reprocessing closed ones.
type FanOutOutcome struct {
	FacilityTypeCode string       `json:"facilityTypeCode"`
	Status           FanOutStatus `json:"status"`
	Record           *Record      `json:"record,omitempty"`
	ErrorCode        string       `json:"errorCode,omitempty"`
	ErrorMessage     string       `json:"errorMessage,omitempty"`
}

// FanOutReport is the per-key outcome of an entity-wide daily close.
type FanOutReport struct {
	EntityID      id.ID           `json:"entityId"`
	Date          time.Time       `json:"date"`
	Outcomes      []FanOutOutcome `json:"outcomes"`
	ClosedCount   int             `json:"closedCount"`
	AlreadyClosed int             `json:"alreadyClosedCount"`
	FailedCount   int             `json:"failedCount"`
}

// NothingToDo reports an empty fan-out (no keys active and none tracked).
func (r *FanOutReport) NothingToDo() bool {
	return len(r.Outcomes) == 0
}

// DailyProcessor computes and persists daily closing snapshots.
type DailyProcessor struct {
	records Repository
	ledger  ledger.Reader
	locks   lock.Manager
	txm     tx.Manager
	audit   AuditLog
	now     func() time.Time
}

// NewDailyProcessor creates a daily closing processor. audit may be nil.
func NewDailyProcessor(records Repository, ledgerReader ledger.Reader, locks lock.Manager, txm tx.Manager, audit AuditLog) *DailyProcessor {
	return &DailyProcessor{
		records: records,
		ledger:  ledgerReader,
		locks:   locks,
		txm:     txm,
		audit:   audit,
		now:     time.Now,
	}
}

// CloseDay freezes the key's position for one calendar day.
//
// The previous quantity is carried from the closed record of date-1; the very
// first day ever closed for a key starts from zero. Re-closing an already
// closed day with unchanged ledger inputs is a no-op returning the existing
// record; changed inputs are rejected and must go through recalculation.
func (p *DailyProcessor) CloseDay(ctx context.Context, key Key, date time.Time) (*CloseResult, error) {
	if err := key.Validate(); err != nil {
		return nil, apperror.NewValidation(err.Error())
	}

	date = period.Truncate(date)
	today := period.Truncate(p.now())
	if date.After(today) {
		return nil, apperror.NewValidation("closing date must not be in the future").
			WithDetail("date", period.FormatDate(date))
	}

	release, err := p.locks.Acquire(ctx, key.String())
	if err != nil {
		return nil, err
	}
	defer release()

	day := period.Day(date)

	existing, err := p.records.GetDay(ctx, key, date)
	if err != nil && !apperror.IsNotFound(err) {
		return nil, err
	}

	previous, err := p.previousDayQuantity(ctx, key, date)
	if err != nil {
		return nil, err
	}

	totals, err := p.ledger.SumRange(ctx, key.EntityID, key.FacilityTypeCode, day.Start(), day.End())
	if err != nil {
		return nil, err
	}

	if existing != nil && existing.IsClosed {
		if existing.matchesInputs(previous, totals) {
			return &CloseResult{Record: existing, AlreadyClosed: true}, nil
		}
		return nil, apperror.NewAlreadyClosed(day.String())
	}

	later, err := p.records.HasClosedDayAfter(ctx, key, date)
	if err != nil {
		return nil, err
	}
	if later {
		return nil, apperror.NewClosingOrder(date)
	}

	closingQty := previous + totals.Net()
	if closingQty < 0 {
		return nil, apperror.NewNegativeClosing(day.String(), closingQty).
			WithDetail("previous_quantity", previous).
			WithDetail("inbound_quantity", totals.Inbound).
			WithDetail("outbound_quantity", totals.Outbound)
	}

	now := p.now().UTC()
	rec := existing
	if rec == nil {
		rec = &Record{
			ID:               id.New(),
			EntityID:         key.EntityID,
			FacilityTypeCode: key.FacilityTypeCode,
			Granularity:      period.GranularityDay,
			PeriodDate:       date,
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
		return nil, fmt.Errorf("save daily closing: %w", err)
	}

	p.logAudit(ctx, AuditActionCloseDay, key, rec)

	logger.Info(ctx, "daily closing completed",
		"entity_id", key.EntityID,
		"facility_type", key.FacilityTypeCode,
		"date", day.String(),
		"closing_quantity", closingQty,
		"version", rec.Version,
	)

	return &CloseResult{Record: rec}, nil
}

// CloseDayForEntity fans out CloseDay over every facility type with ledger
// activity on the date, plus every facility type already under closing
// management for the entity (idle keys must keep their chains closable).
// Each key's closing is independent; per-key failures are reported, not
// propagated, so the caller can retry only the failed keys.
func (p *DailyProcessor) CloseDayForEntity(ctx context.Context, entityID id.ID, date time.Time) (*FanOutReport, error) {
	if id.IsNil(entityID) {
		return nil, apperror.NewValidation("entity id is required")
	}

	date = period.Truncate(date)
	day := period.Day(date)

	active, err := p.ledger.ActiveFacilityTypes(ctx, entityID, day.Start(), day.End())
	if err != nil {
		return nil, err
	}
	tracked, err := p.records.FacilityTypesWithRecords(ctx, entityID)
	if err != nil {
		return nil, err
	}

	codes := unionSorted(active, tracked)
	report := &FanOutReport{EntityID: entityID, Date: date}

	for _, code := range codes {
		key := Key{EntityID: entityID, FacilityTypeCode: code}

		res, err := p.CloseDay(ctx, key, date)
		if err != nil {
			outcome := FanOutOutcome{FacilityTypeCode: code, Status: FanOutFailed}
			if appErr, ok := apperror.AsAppError(err); ok {
				outcome.ErrorCode = appErr.Code
				outcome.ErrorMessage = appErr.Message
			} else {
				outcome.ErrorCode = apperror.CodeInternal
				outcome.ErrorMessage = err.Error()
			}
			report.Outcomes = append(report.Outcomes, outcome)
			report.FailedCount++

			logger.Warn(ctx, "daily closing failed for key",
				"entity_id", entityID,
				"facility_type", code,
				"date", day.String(),
				"error", err,
			)
			continue
		}

		status := FanOutClosed
		if res.AlreadyClosed {
			status = FanOutAlreadyClosed
			report.AlreadyClosed++
		} else {
			report.ClosedCount++
		}
		report.Outcomes = append(report.Outcomes, FanOutOutcome{
			FacilityTypeCode: code,
			Status:           status,
			Record:           res.Record,
		})
	}

	return report, nil
}

// previousDayQuantity resolves the carried-forward position for date.
// Chain rule: the record of date-1 must exist and be closed. The only
// exception is the very first day ever closed for the key, which starts at 0.
func (p *DailyProcessor) previousDayQuantity(ctx context.Context, key Key, date time.Time) (int64, error) {
	prevDate := date.AddDate(0, 0, -1)

	prev, err := p.records.GetDay(ctx, key, prevDate)
	if err == nil {
		if !prev.IsClosed {
			return 0, apperror.NewPrerequisiteNotClosed(prevDate)
		}
		return prev.ClosingQuantity, nil
	}
	if !apperror.IsNotFound(err) {
		return 0, err
	}

	// No record for date-1. Allowed only if nothing was ever closed before.
	_, err = p.records.LatestClosedDayBefore(ctx, key, date)
	if err == nil {
		return 0, apperror.NewPrerequisiteNotClosed(prevDate)
	}
	if !apperror.IsNotFound(err) {
		return 0, err
	}
	return 0, nil
}

func (p *DailyProcessor) logAudit(ctx context.Context, action string, key Key, payload any) {
	if p.audit == nil {
		return
	}
	event := AuditEvent{
		Action:           action,
		EntityID:         key.EntityID,
		FacilityTypeCode: key.FacilityTypeCode,
		ActorID:          appctx.GetActorID(ctx),
		Payload:          payload,
	}
	if err := p.audit.Record(ctx, event); err != nil {
		logger.Warn(ctx, "audit record failed", "action", action, "error", err)
	}
}

// unionSorted merges two code lists into a sorted, de-duplicated slice.
func unionSorted(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	for _, s := range a {
		seen[s] = struct{}{}
	}
	for _, s := range b {
		seen[s] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
