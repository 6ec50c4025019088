package closing

import (
	"context"
	"sort"
	"sync"
	"time"

	"invclose/internal/core/apperror"
	"invclose/internal/core/id"
	"invclose/internal/core/period"
	"invclose/internal/domain/ledger"
	"invclose/internal/domain/lock"
)

// --- In-memory record repository ---

type recordKey struct {
	entityID    id.ID
	code        string
	granularity period.Granularity
	date        time.Time
}

type fakeRepo struct {
	mu      sync.Mutex
	records map[recordKey]*Record
	saveErr error
	saves   int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{records: make(map[recordKey]*Record)}
}

func (f *fakeRepo) keyFor(r *Record) recordKey {
	return recordKey{
		entityID:    r.EntityID,
		code:        r.FacilityTypeCode,
		granularity: r.Granularity,
		date:        r.PeriodDate,
	}
}

func (f *fakeRepo) put(r *Record) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *r
	f.records[f.keyFor(r)] = &cp
}

func (f *fakeRepo) GetDay(_ context.Context, key Key, date time.Time) (*Record, error) {
	return f.get(recordKey{key.EntityID, key.FacilityTypeCode, period.GranularityDay, period.Truncate(date)},
		"daily closing record", period.FormatDate(date))
}

func (f *fakeRepo) GetMonth(_ context.Context, key Key, year int, month time.Month) (*Record, error) {
	m := period.Month(year, month)
	return f.get(recordKey{key.EntityID, key.FacilityTypeCode, period.GranularityMonth, m.Start()},
		"monthly closing record", m.String())
}

func (f *fakeRepo) get(rk recordKey, what string, id any) (*Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.records[rk]; ok {
		cp := *r
		return &cp, nil
	}
	return nil, apperror.NewNotFound(what, id)
}

func (f *fakeRepo) Save(_ context.Context, rec *Record) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	cp := *rec
	f.records[f.keyFor(rec)] = &cp
	return nil
}

func (f *fakeRepo) sorted(filter func(*Record) bool) []Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Record
	for _, r := range f.records {
		if filter(r) {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].PeriodDate.Equal(out[j].PeriodDate) {
			return out[i].PeriodDate.Before(out[j].PeriodDate)
		}
		return out[i].FacilityTypeCode < out[j].FacilityTypeCode
	})
	return out
}

func (f *fakeRepo) LatestClosedDay(_ context.Context, key Key) (*Record, error) {
	days := f.sorted(func(r *Record) bool {
		return r.Key() == key && r.Granularity == period.GranularityDay && r.IsClosed
	})
	if len(days) == 0 {
		return nil, apperror.NewNotFound("latest closed day", key.String())
	}
	return &days[len(days)-1], nil
}

func (f *fakeRepo) LatestClosedDayBefore(_ context.Context, key Key, date time.Time) (*Record, error) {
	cutoff := period.Truncate(date)
	days := f.sorted(func(r *Record) bool {
		return r.Key() == key && r.Granularity == period.GranularityDay && r.IsClosed &&
			r.PeriodDate.Before(cutoff)
	})
	if len(days) == 0 {
		return nil, apperror.NewNotFound("closed day before", period.FormatDate(date))
	}
	return &days[len(days)-1], nil
}

func (f *fakeRepo) LatestClosedMonthBefore(_ context.Context, key Key, year int, month time.Month) (*Record, error) {
	cutoff := period.Month(year, month).Start()
	months := f.sorted(func(r *Record) bool {
		return r.Key() == key && r.Granularity == period.GranularityMonth && r.IsClosed &&
			r.PeriodDate.Before(cutoff)
	})
	if len(months) == 0 {
		return nil, apperror.NewNotFound("closed month before", period.Month(year, month).String())
	}
	return &months[len(months)-1], nil
}

func (f *fakeRepo) HasClosedDayAfter(_ context.Context, key Key, date time.Time) (bool, error) {
	cutoff := period.Truncate(date)
	days := f.sorted(func(r *Record) bool {
		return r.Key() == key && r.Granularity == period.GranularityDay && r.IsClosed &&
			r.PeriodDate.After(cutoff)
	})
	return len(days) > 0, nil
}

func (f *fakeRepo) ListDaysFrom(_ context.Context, key Key, from time.Time) ([]Record, error) {
	cutoff := period.Truncate(from)
	return f.sorted(func(r *Record) bool {
		return r.Key() == key && r.Granularity == period.GranularityDay &&
			!r.PeriodDate.Before(cutoff)
	}), nil
}

func (f *fakeRepo) ListMonthsFrom(_ context.Context, key Key, from time.Time) ([]Record, error) {
	cutoff := period.MonthOf(from).Start()
	return f.sorted(func(r *Record) bool {
		return r.Key() == key && r.Granularity == period.GranularityMonth &&
			!r.PeriodDate.Before(cutoff)
	}), nil
}

func (f *fakeRepo) ListDaysInMonth(_ context.Context, entityID id.ID, year int, month time.Month) ([]Record, error) {
	m := period.Month(year, month)
	return f.sorted(func(r *Record) bool {
		return r.EntityID == entityID && r.Granularity == period.GranularityDay &&
			!r.PeriodDate.Before(m.Start()) && r.PeriodDate.Before(m.End())
	}), nil
}

func (f *fakeRepo) ListMonthsInYear(_ context.Context, entityID id.ID, year int) ([]Record, error) {
	return f.sorted(func(r *Record) bool {
		return r.EntityID == entityID && r.Granularity == period.GranularityMonth &&
			r.PeriodDate.Year() == year
	}), nil
}

func (f *fakeRepo) FacilityTypesWithRecords(_ context.Context, entityID id.ID) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := make(map[string]struct{})
	for _, r := range f.records {
		if r.EntityID == entityID {
			seen[r.FacilityTypeCode] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for code := range seen {
		out = append(out, code)
	}
	sort.Strings(out)
	return out, nil
}

// --- In-memory ledger ---

type fakeLedger struct {
	mu     sync.Mutex
	txns   []ledger.Transaction
	sumErr error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{}
}

func (f *fakeLedger) add(entityID id.ID, code string, dir ledger.Direction, qty int64, at time.Time) id.ID {
	f.mu.Lock()
	defer f.mu.Unlock()
	txnID := id.New()
	f.txns = append(f.txns, ledger.Transaction{
		ID:               txnID,
		EntityID:         entityID,
		FacilityTypeCode: code,
		Direction:        dir,
		Quantity:         qty,
		OccurredAt:       at,
	})
	return txnID
}

func (f *fakeLedger) cancel(txnID id.ID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now().UTC()
	for i := range f.txns {
		if f.txns[i].ID == txnID {
			f.txns[i].CancelledAt = &now
		}
	}
}

func (f *fakeLedger) SumRange(_ context.Context, entityID id.ID, code string, from, to time.Time) (ledger.Totals, error) {
	if f.sumErr != nil {
		return ledger.Totals{}, f.sumErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var totals ledger.Totals
	for _, t := range f.txns {
		if t.EntityID != entityID || t.FacilityTypeCode != code || t.CancelledAt != nil {
			continue
		}
		if t.OccurredAt.Before(from) || !t.OccurredAt.Before(to) {
			continue
		}
		if t.Direction == ledger.DirectionInbound {
			totals.Inbound += t.Quantity
		} else {
			totals.Outbound += t.Quantity
		}
	}
	return totals, nil
}

func (f *fakeLedger) ActiveFacilityTypes(_ context.Context, entityID id.ID, from, to time.Time) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := make(map[string]struct{})
	for _, t := range f.txns {
		if t.EntityID != entityID || t.CancelledAt != nil {
			continue
		}
		if t.OccurredAt.Before(from) || !t.OccurredAt.Before(to) {
			continue
		}
		seen[t.FacilityTypeCode] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for code := range seen {
		out = append(out, code)
	}
	sort.Strings(out)
	return out, nil
}

// --- Lock manager ---

type fakeLocks struct {
	mu        sync.Mutex
	held      map[string]struct{}
	contended bool
	acquires  int
}

func newFakeLocks() *fakeLocks {
	return &fakeLocks{held: make(map[string]struct{})}
}

func (f *fakeLocks) Acquire(_ context.Context, key string) (lock.ReleaseFunc, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.contended {
		return nil, apperror.NewClosingInProgress(key)
	}
	if _, busy := f.held[key]; busy {
		return nil, apperror.NewClosingInProgress(key)
	}
	f.held[key] = struct{}{}
	f.acquires++
	return func() {
		f.mu.Lock()
		delete(f.held, key)
		f.mu.Unlock()
	}, nil
}

// --- Transaction manager ---

type fakeTxManager struct{}

func (fakeTxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// --- Audit log ---

type fakeAudit struct {
	mu     sync.Mutex
	events []AuditEvent
}

func (f *fakeAudit) Record(_ context.Context, event AuditEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

// --- Test fixture ---

type fixture struct {
	repo   *fakeRepo
	ledger *fakeLedger
	locks  *fakeLocks
	audit  *fakeAudit

	daily   *DailyProcessor
	monthly *MonthlyProcessor
	recalc  *Coordinator
	query   *QueryService
	guard   *Guard

	key Key
	now time.Time
}

// newFixture wires every service against shared fakes. Clock is pinned far
// past the test dates so nothing trips the future-date validation.
func newFixture() *fixture {
	f := &fixture{
		repo:   newFakeRepo(),
		ledger: newFakeLedger(),
		locks:  newFakeLocks(),
		audit:  &fakeAudit{},
		key: Key{
			EntityID:         id.MustParse("01933f00-0000-7000-8000-000000000001"),
			FacilityTypeCode: "WAREHOUSE",
		},
		now: time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC),
	}

	txm := fakeTxManager{}
	f.daily = NewDailyProcessor(f.repo, f.ledger, f.locks, txm, f.audit)
	f.daily.now = func() time.Time { return f.now }
	f.monthly = NewMonthlyProcessor(f.repo, f.ledger, f.locks, txm, f.audit)
	f.monthly.now = func() time.Time { return f.now }
	f.recalc = NewCoordinator(f.repo, f.ledger, f.locks, txm, f.audit)
	f.recalc.now = func() time.Time { return f.now }
	f.query = NewQueryService(f.repo, f.ledger)
	f.query.now = func() time.Time { return f.now }
	f.guard = NewGuard(f.monthly)

	return f
}

// date is shorthand for a UTC midnight day in tests.
func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// at places a timestamp at noon inside the given day.
func at(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 12, 0, 0, 0, time.UTC)
}
