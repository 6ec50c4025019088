package closing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invclose/internal/core/apperror"
	"invclose/internal/domain/ledger"
)

func TestCloseMonth_RequiresLastDayClosed(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.ledger.add(f.key.EntityID, f.key.FacilityTypeCode, ledger.DirectionInbound, 100, at(2025, 4, 1))
	closeDays(t, f, date(2025, 4, 1), date(2025, 4, 29))

	// April 30 is still open.
	_, err := f.monthly.CloseMonth(ctx, f.key, 2025, time.April)
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeLastDayNotClosed))
}

func TestCloseMonth_AggregatesWholeMonth(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.ledger.add(f.key.EntityID, f.key.FacilityTypeCode, ledger.DirectionInbound, 100, at(2025, 4, 3))
	f.ledger.add(f.key.EntityID, f.key.FacilityTypeCode, ledger.DirectionOutbound, 40, at(2025, 4, 20))
	closeDays(t, f, date(2025, 4, 1), date(2025, 4, 30))

	res, err := f.monthly.CloseMonth(ctx, f.key, 2025, time.April)
	require.NoError(t, err)

	rec := res.Record
	assert.Equal(t, int64(0), rec.PreviousQuantity)
	assert.Equal(t, int64(100), rec.InboundQuantity)
	assert.Equal(t, int64(40), rec.OutboundQuantity)
	assert.Equal(t, int64(60), rec.ClosingQuantity)
	assert.True(t, rec.IsClosed)

	// Month total equals the last day's position when the chain is intact.
	lastDay, err := f.repo.GetDay(ctx, f.key, date(2025, 4, 30))
	require.NoError(t, err)
	assert.Equal(t, lastDay.ClosingQuantity, rec.ClosingQuantity)
}

func TestCloseMonth_ChainsAcrossMonths(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.ledger.add(f.key.EntityID, f.key.FacilityTypeCode, ledger.DirectionInbound, 100, at(2025, 4, 10))
	f.ledger.add(f.key.EntityID, f.key.FacilityTypeCode, ledger.DirectionOutbound, 25, at(2025, 5, 10))
	closeDays(t, f, date(2025, 4, 1), date(2025, 5, 31))

	april, err := f.monthly.CloseMonth(ctx, f.key, 2025, time.April)
	require.NoError(t, err)

	may, err := f.monthly.CloseMonth(ctx, f.key, 2025, time.May)
	require.NoError(t, err)

	assert.Equal(t, april.Record.ClosingQuantity, may.Record.PreviousQuantity)
	assert.Equal(t, int64(75), may.Record.ClosingQuantity)
}

func TestCloseMonth_RequiresPriorMonthClosed(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.ledger.add(f.key.EntityID, f.key.FacilityTypeCode, ledger.DirectionInbound, 100, at(2025, 4, 10))
	closeDays(t, f, date(2025, 4, 1), date(2025, 5, 31))

	// May cannot close while April (which has closed days) is not finalized.
	_, err := f.monthly.CloseMonth(ctx, f.key, 2025, time.May)
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodePrerequisiteNotClosed))
}

func TestCloseMonth_IdempotentReclose(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.ledger.add(f.key.EntityID, f.key.FacilityTypeCode, ledger.DirectionInbound, 100, at(2025, 4, 10))
	closeDays(t, f, date(2025, 4, 1), date(2025, 4, 30))

	first, err := f.monthly.CloseMonth(ctx, f.key, 2025, time.April)
	require.NoError(t, err)

	second, err := f.monthly.CloseMonth(ctx, f.key, 2025, time.April)
	require.NoError(t, err)
	assert.True(t, second.AlreadyClosed)
	assert.Equal(t, first.Record.Version, second.Record.Version)
}

func TestCloseMonth_RecloseWithChangedInputsConflicts(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.ledger.add(f.key.EntityID, f.key.FacilityTypeCode, ledger.DirectionInbound, 100, at(2025, 4, 10))
	closeDays(t, f, date(2025, 4, 1), date(2025, 4, 30))

	_, err := f.monthly.CloseMonth(ctx, f.key, 2025, time.April)
	require.NoError(t, err)

	f.ledger.add(f.key.EntityID, f.key.FacilityTypeCode, ledger.DirectionInbound, 5, at(2025, 4, 12))

	_, err = f.monthly.CloseMonth(ctx, f.key, 2025, time.April)
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeAlreadyClosed))
}

func TestCloseMonth_FutureMonthRejected(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	// Fixture clock sits in June 2025.
	_, err := f.monthly.CloseMonth(ctx, f.key, 2025, time.July)
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation))
}

func TestIsMonthClosed(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	closed, err := f.monthly.IsMonthClosed(ctx, f.key, at(2025, 4, 15))
	require.NoError(t, err)
	assert.False(t, closed)

	f.ledger.add(f.key.EntityID, f.key.FacilityTypeCode, ledger.DirectionInbound, 100, at(2025, 4, 10))
	closeDays(t, f, date(2025, 4, 1), date(2025, 4, 30))
	_, err = f.monthly.CloseMonth(ctx, f.key, 2025, time.April)
	require.NoError(t, err)

	closed, err = f.monthly.IsMonthClosed(ctx, f.key, at(2025, 4, 15))
	require.NoError(t, err)
	assert.True(t, closed)
}

func TestGuard_BlocksWritesIntoClosedMonth(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.ledger.add(f.key.EntityID, f.key.FacilityTypeCode, ledger.DirectionInbound, 100, at(2025, 4, 10))
	closeDays(t, f, date(2025, 4, 1), date(2025, 4, 30))
	_, err := f.monthly.CloseMonth(ctx, f.key, 2025, time.April)
	require.NoError(t, err)

	err = f.guard.CanRegister(ctx, f.key, at(2025, 4, 20))
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeMonthClosed))

	// May is still open.
	assert.NoError(t, f.guard.CanRegister(ctx, f.key, at(2025, 5, 1)))
}
