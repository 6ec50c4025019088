package closing

import (
	"context"
	"time"

	"invclose/internal/core/apperror"
	"invclose/internal/core/period"
)

// Guard protects finalized months from new ledger writes. The external
// transaction-registration path must consult it before accepting a write:
// once a month is closed, no transaction dated inside it may be registered
// for the key.
type Guard struct {
	monthly *MonthlyProcessor
}

// NewGuard creates a month-closed write guard.
func NewGuard(monthly *MonthlyProcessor) *Guard {
	return &Guard{monthly: monthly}
}

// CanRegister returns nil when a ledger transaction dated txnDate may be
// registered for the key, or a MONTH_CLOSED error when the month is frozen.
func (g *Guard) CanRegister(ctx context.Context, key Key, txnDate time.Time) error {
	closed, err := g.monthly.IsMonthClosed(ctx, key, txnDate)
	if err != nil {
		return err
	}
	if closed {
		return apperror.NewMonthClosed(period.MonthOf(txnDate).String())
	}
	return nil
}
