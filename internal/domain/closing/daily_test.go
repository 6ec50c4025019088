package closing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invclose/internal/core/apperror"
	appctx "invclose/internal/core/context"
	"invclose/internal/core/id"
	"invclose/internal/core/period"
	"invclose/internal/domain/ledger"
)

func TestCloseDay_FirstDayStartsFromZero(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.ledger.add(f.key.EntityID, f.key.FacilityTypeCode, ledger.DirectionInbound, 100, at(2025, 3, 1))
	f.ledger.add(f.key.EntityID, f.key.FacilityTypeCode, ledger.DirectionOutbound, 30, at(2025, 3, 1))

	res, err := f.daily.CloseDay(ctx, f.key, date(2025, 3, 1))
	require.NoError(t, err)
	require.False(t, res.AlreadyClosed)

	rec := res.Record
	assert.Equal(t, int64(0), rec.PreviousQuantity)
	assert.Equal(t, int64(100), rec.InboundQuantity)
	assert.Equal(t, int64(30), rec.OutboundQuantity)
	assert.Equal(t, int64(70), rec.ClosingQuantity)
	assert.True(t, rec.IsClosed)
	assert.Equal(t, 1, rec.Version)
	require.NotNil(t, rec.ClosedAt)
}

func TestCloseDay_ChainCarriesClosingForward(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.ledger.add(f.key.EntityID, f.key.FacilityTypeCode, ledger.DirectionInbound, 50, at(2025, 3, 1))
	f.ledger.add(f.key.EntityID, f.key.FacilityTypeCode, ledger.DirectionOutbound, 20, at(2025, 3, 2))

	day1, err := f.daily.CloseDay(ctx, f.key, date(2025, 3, 1))
	require.NoError(t, err)

	day2, err := f.daily.CloseDay(ctx, f.key, date(2025, 3, 2))
	require.NoError(t, err)

	assert.Equal(t, day1.Record.ClosingQuantity, day2.Record.PreviousQuantity)
	assert.Equal(t, int64(30), day2.Record.ClosingQuantity)
}

func TestCloseDay_DayWithNoMovements(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.ledger.add(f.key.EntityID, f.key.FacilityTypeCode, ledger.DirectionInbound, 40, at(2025, 3, 1))
	_, err := f.daily.CloseDay(ctx, f.key, date(2025, 3, 1))
	require.NoError(t, err)

	// Day 2 has zero movements; position is carried unchanged.
	res, err := f.daily.CloseDay(ctx, f.key, date(2025, 3, 2))
	require.NoError(t, err)
	assert.Equal(t, int64(40), res.Record.PreviousQuantity)
	assert.Equal(t, int64(40), res.Record.ClosingQuantity)
	assert.Equal(t, int64(0), res.Record.InboundQuantity)
	assert.Equal(t, int64(0), res.Record.OutboundQuantity)
}

func TestCloseDay_PrerequisiteNotClosed(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.daily.CloseDay(ctx, f.key, date(2025, 3, 1))
	require.NoError(t, err)

	// Day 3 requires day 2 closed first.
	_, err = f.daily.CloseDay(ctx, f.key, date(2025, 3, 3))
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodePrerequisiteNotClosed))
}

func TestCloseDay_FutureDateRejected(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.daily.CloseDay(ctx, f.key, f.now.AddDate(0, 0, 1))
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation))
}

func TestCloseDay_NegativeClosingRejected(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.ledger.add(f.key.EntityID, f.key.FacilityTypeCode, ledger.DirectionInbound, 10, at(2025, 3, 1))
	f.ledger.add(f.key.EntityID, f.key.FacilityTypeCode, ledger.DirectionOutbound, 25, at(2025, 3, 1))

	_, err := f.daily.CloseDay(ctx, f.key, date(2025, 3, 1))
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeNegativeClosing))

	// Nothing was persisted.
	_, err = f.repo.GetDay(context.Background(), f.key, date(2025, 3, 1))
	assert.True(t, apperror.IsNotFound(err))
}

func TestCloseDay_IdempotentReclose(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.ledger.add(f.key.EntityID, f.key.FacilityTypeCode, ledger.DirectionInbound, 100, at(2025, 3, 1))

	first, err := f.daily.CloseDay(ctx, f.key, date(2025, 3, 1))
	require.NoError(t, err)

	second, err := f.daily.CloseDay(ctx, f.key, date(2025, 3, 1))
	require.NoError(t, err)
	assert.True(t, second.AlreadyClosed)
	assert.Equal(t, first.Record.Version, second.Record.Version)
	assert.Equal(t, first.Record.ClosingQuantity, second.Record.ClosingQuantity)
}

func TestCloseDay_RecloseWithChangedInputsConflicts(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.ledger.add(f.key.EntityID, f.key.FacilityTypeCode, ledger.DirectionInbound, 100, at(2025, 3, 1))
	_, err := f.daily.CloseDay(ctx, f.key, date(2025, 3, 1))
	require.NoError(t, err)

	// A late transaction lands inside the already closed day.
	f.ledger.add(f.key.EntityID, f.key.FacilityTypeCode, ledger.DirectionInbound, 5, at(2025, 3, 1))

	_, err = f.daily.CloseDay(ctx, f.key, date(2025, 3, 1))
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeAlreadyClosed))
}

func TestCloseDay_OrderViolation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	// Day 2 is closed but day 1 only has an open record.
	f.repo.put(&Record{
		ID: id.New(), EntityID: f.key.EntityID, FacilityTypeCode: f.key.FacilityTypeCode,
		Granularity: period.GranularityDay, PeriodDate: date(2025, 3, 1),
	})
	f.repo.put(&Record{
		ID: id.New(), EntityID: f.key.EntityID, FacilityTypeCode: f.key.FacilityTypeCode,
		Granularity: period.GranularityDay, PeriodDate: date(2025, 3, 2), IsClosed: true, Version: 1,
	})

	_, err := f.daily.CloseDay(ctx, f.key, date(2025, 3, 1))
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeClosingOrder))
}

func TestCloseDay_LockContention(t *testing.T) {
	f := newFixture()
	f.locks.contended = true
	ctx := context.Background()

	_, err := f.daily.CloseDay(ctx, f.key, date(2025, 3, 1))
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeClosingInProgress))
	assert.True(t, apperror.IsRetryable(err))
}

func TestCloseDay_StampsActorAndAudit(t *testing.T) {
	f := newFixture()
	ctx := appctx.WithActor(context.Background(), &appctx.ActorContext{ActorID: "op-7"})

	f.ledger.add(f.key.EntityID, f.key.FacilityTypeCode, ledger.DirectionInbound, 10, at(2025, 3, 1))

	res, err := f.daily.CloseDay(ctx, f.key, date(2025, 3, 1))
	require.NoError(t, err)
	assert.Equal(t, "op-7", res.Record.ClosedBy)

	require.Len(t, f.audit.events, 1)
	assert.Equal(t, AuditActionCloseDay, f.audit.events[0].Action)
	assert.Equal(t, "op-7", f.audit.events[0].ActorID)
}

func TestCloseDayForEntity_FanOut(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	entityID := f.key.EntityID

	// Two active facility types; COLD_STORAGE would close negative.
	f.ledger.add(entityID, "WAREHOUSE", ledger.DirectionInbound, 100, at(2025, 3, 1))
	f.ledger.add(entityID, "COLD_STORAGE", ledger.DirectionOutbound, 10, at(2025, 3, 1))

	report, err := f.daily.CloseDayForEntity(ctx, entityID, date(2025, 3, 1))
	require.NoError(t, err)
	require.Len(t, report.Outcomes, 2)

	assert.Equal(t, 1, report.ClosedCount)
	assert.Equal(t, 1, report.FailedCount)

	byCode := make(map[string]FanOutOutcome)
	for _, o := range report.Outcomes {
		byCode[o.FacilityTypeCode] = o
	}
	assert.Equal(t, FanOutClosed, byCode["WAREHOUSE"].Status)
	assert.Equal(t, FanOutFailed, byCode["COLD_STORAGE"].Status)
	assert.Equal(t, apperror.CodeNegativeClosing, byCode["COLD_STORAGE"].ErrorCode)
}

func TestCloseDayForEntity_IncludesIdleTrackedKeys(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	entityID := f.key.EntityID

	// Day 1: only WAREHOUSE moves; close it.
	f.ledger.add(entityID, "WAREHOUSE", ledger.DirectionInbound, 100, at(2025, 3, 1))
	_, err := f.daily.CloseDayForEntity(ctx, entityID, date(2025, 3, 1))
	require.NoError(t, err)

	// Day 2: no movement at all. The tracked key must still close
	// so its chain stays contiguous.
	report, err := f.daily.CloseDayForEntity(ctx, entityID, date(2025, 3, 2))
	require.NoError(t, err)
	require.Len(t, report.Outcomes, 1)
	assert.Equal(t, FanOutClosed, report.Outcomes[0].Status)
	assert.Equal(t, int64(100), report.Outcomes[0].Record.ClosingQuantity)

	// Day 3 can now close on top of day 2.
	report, err = f.daily.CloseDayForEntity(ctx, entityID, date(2025, 3, 3))
	require.NoError(t, err)
	assert.Equal(t, 1, report.ClosedCount)
}

func TestCloseDayForEntity_RetryClosesOnlyFailedKeys(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	entityID := f.key.EntityID

	f.ledger.add(entityID, "WAREHOUSE", ledger.DirectionInbound, 100, at(2025, 3, 1))
	coldOut := f.ledger.add(entityID, "COLD_STORAGE", ledger.DirectionOutbound, 10, at(2025, 3, 1))

	report, err := f.daily.CloseDayForEntity(ctx, entityID, date(2025, 3, 1))
	require.NoError(t, err)
	require.Equal(t, 1, report.FailedCount)

	// Operator cancels the bad issue and retries the whole entity.
	f.ledger.cancel(coldOut)

	report, err = f.daily.CloseDayForEntity(ctx, entityID, date(2025, 3, 1))
	require.NoError(t, err)
	assert.Equal(t, 1, report.AlreadyClosed)
	assert.Equal(t, 1, report.ClosedCount)
	assert.Equal(t, 0, report.FailedCount)
}

func TestCloseDayForEntity_EmptyFanOut(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	report, err := f.daily.CloseDayForEntity(ctx, f.key.EntityID, date(2025, 3, 1))
	require.NoError(t, err)
	assert.True(t, report.NothingToDo())
}

// closeDays closes every day in [from, to] for the fixture key.
func closeDays(t *testing.T, f *fixture, from, to time.Time) {
	t.Helper()
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		_, err := f.daily.CloseDay(context.Background(), f.key, d)
		require.NoError(t, err, "close day %s", d.Format("2006-01-02"))
	}
}
