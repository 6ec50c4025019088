package closing

import (
	"context"
	"time"

	"invclose/internal/core/apperror"
	"invclose/internal/core/id"
	"invclose/internal/core/period"
	"invclose/internal/domain/ledger"
)

// CurrentPosition is the live, uncommitted projection of a key's position:
// the latest closed day plus ledger deltas registered since. It is never
// persisted and is recomputed on every call.
type CurrentPosition struct {
	EntityID          id.ID      `json:"entityId"`
	FacilityTypeCode  string     `json:"facilityTypeCode"`
	BaseQuantity      int64      `json:"baseQuantity"`
	RecentInbound     int64      `json:"recentInbound"`
	RecentOutbound    int64      `json:"recentOutbound"`
	CurrentQuantity   int64      `json:"currentQuantity"`
	LatestClosingDate *time.Time `json:"latestClosingDate,omitempty"`
}

// QueryService provides read-only closing projections. It takes no locks and
// reads committed state only.
type QueryService struct {
	records Repository
	ledger  ledger.Reader
	now     func() time.Time
}

// NewQueryService creates a closing query service.
func NewQueryService(records Repository, ledgerReader ledger.Reader) *QueryService {
	return &QueryService{
		records: records,
		ledger:  ledgerReader,
		now:     time.Now,
	}
}

// DailyStatusByMonth returns the entity's daily records within a month,
// across all facility types, sorted by day.
func (s *QueryService) DailyStatusByMonth(ctx context.Context, entityID id.ID, year int, month time.Month) ([]Record, error) {
	if id.IsNil(entityID) {
		return nil, apperror.NewValidation("entity id is required")
	}
	if !period.ValidMonth(year, int(month)) {
		return nil, apperror.NewValidation("invalid year/month")
	}
	return s.records.ListDaysInMonth(ctx, entityID, year, month)
}

// MonthlyStatusByYear returns the entity's monthly records within a year,
// across all facility types, sorted by month.
func (s *QueryService) MonthlyStatusByYear(ctx context.Context, entityID id.ID, year int) ([]Record, error) {
	if id.IsNil(entityID) {
		return nil, apperror.NewValidation("entity id is required")
	}
	if year < 1970 || year > 9999 {
		return nil, apperror.NewValidation("invalid year")
	}
	return s.records.ListMonthsInYear(ctx, entityID, year)
}

// GetDailyRecord returns one committed daily record.
func (s *QueryService) GetDailyRecord(ctx context.Context, key Key, date time.Time) (*Record, error) {
	if err := key.Validate(); err != nil {
		return nil, apperror.NewValidation(err.Error())
	}
	return s.records.GetDay(ctx, key, period.Truncate(date))
}

// GetMonthlyRecord returns one committed monthly record.
func (s *QueryService) GetMonthlyRecord(ctx context.Context, key Key, year int, month time.Month) (*Record, error) {
	if err := key.Validate(); err != nil {
		return nil, apperror.NewValidation(err.Error())
	}
	if !period.ValidMonth(year, int(month)) {
		return nil, apperror.NewValidation("invalid year/month")
	}
	return s.records.GetMonth(ctx, key, year, month)
}

// Position computes the live position: base quantity from the latest closed
// day, plus ledger deltas strictly after that day up to now. A key with no
// closings yet aggregates the whole ledger from the beginning.
func (s *QueryService) Position(ctx context.Context, key Key) (*CurrentPosition, error) {
	if err := key.Validate(); err != nil {
		return nil, apperror.NewValidation(err.Error())
	}

	pos := &CurrentPosition{
		EntityID:         key.EntityID,
		FacilityTypeCode: key.FacilityTypeCode,
	}

	var from time.Time // zero value: aggregate from the dawn of the ledger
	latest, err := s.records.LatestClosedDay(ctx, key)
	if err == nil {
		pos.BaseQuantity = latest.ClosingQuantity
		d := latest.PeriodDate
		pos.LatestClosingDate = &d
		from = period.Day(latest.PeriodDate).End()
	} else if !apperror.IsNotFound(err) {
		return nil, err
	}

	totals, err := s.ledger.SumRange(ctx, key.EntityID, key.FacilityTypeCode, from, s.now().UTC())
	if err != nil {
		return nil, err
	}

	pos.RecentInbound = totals.Inbound
	pos.RecentOutbound = totals.Outbound
	pos.CurrentQuantity = pos.BaseQuantity + totals.Net()

	return pos, nil
}
