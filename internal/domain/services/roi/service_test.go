package roi

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledger-service/ledger_service/internal/domain/entities"
	apperrors "github.com/ledger-service/ledger_service/internal/domain/errors"
	"github.com/ledger-service/ledger_service/pkg/logger"
)

type fakeInvestments struct {
	byID map[uuid.UUID]*entities.Investment
}

func newFakeInvestments() *fakeInvestments {
	return &fakeInvestments{byID: make(map[uuid.UUID]*entities.Investment)}
}

func (f *fakeInvestments) Create(ctx context.Context, inv *entities.Investment) error {
	c := *inv
	f.byID[inv.ID] = &c
	return nil
}

func (f *fakeInvestments) GetByID(ctx context.Context, id uuid.UUID) (*entities.Investment, error) {
	inv, ok := f.byID[id]
	if !ok {
		return nil, apperrors.NotFoundError("investment")
	}
	c := *inv
	return &c, nil
}

func (f *fakeInvestments) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*entities.Investment, error) {
	var out []*entities.Investment
	for _, inv := range f.byID {
		if inv.UserID == userID {
			c := *inv
			out = append(out, &c)
		}
	}
	return out, nil
}

func (f *fakeInvestments) ListDue(ctx context.Context, now time.Time, limit int) ([]*entities.Investment, error) {
	var out []*entities.Investment
	for _, inv := range f.byID {
		if inv.IsDue(now) {
			c := *inv
			out = append(out, &c)
		}
	}
	return out, nil
}

func (f *fakeInvestments) Update(ctx context.Context, inv *entities.Investment) error {
	if _, ok := f.byID[inv.ID]; !ok {
		return apperrors.NotFoundError("investment")
	}
	c := *inv
	f.byID[inv.ID] = &c
	return nil
}

// fakeLedger records submitted drafts and enforces reference uniqueness
type fakeLedger struct {
	entries []*entities.LedgerEntry
	seen    map[string]*entities.LedgerEntry
	failOn  map[string]error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{seen: make(map[string]*entities.LedgerEntry), failOn: make(map[string]error)}
}

func (f *fakeLedger) SubmitEvent(ctx context.Context, draft *entities.EntryDraft) (*entities.LedgerEntry, error) {
	if err, ok := f.failOn[draft.Reference]; ok {
		return nil, err
	}
	key := string(draft.Kind) + "|" + string(draft.Currency) + "|" + draft.Reference
	if prior, ok := f.seen[key]; ok {
		return prior, apperrors.DuplicateReferenceError(draft.Reference)
	}
	entry := draft.NewEntry(time.Now())
	f.seen[key] = entry
	f.entries = append(f.entries, entry)
	return entry, nil
}

type fakeCascade struct {
	events []*entities.PurchaseEvent
}

func (f *fakeCascade) OnInvestmentPurchased(ctx context.Context, event *entities.PurchaseEvent) error {
	f.events = append(f.events, event)
	return nil
}

func newTestService(invs *fakeInvestments, ledger *fakeLedger, cascade Cascader) *Service {
	return NewService(invs, ledger, cascade, nil, time.Minute, 100, logger.NewNop())
}

func TestPurchaseInvestment(t *testing.T) {
	invs := newFakeInvestments()
	ledger := newFakeLedger()
	cascade := &fakeCascade{}
	svc := newTestService(invs, ledger, cascade)
	userID := uuid.New()

	req := &PurchaseRequest{
		UserID:       userID,
		PlanRef:      "plan-gold",
		Principal:    decimal.RequireFromString("1000"),
		Currency:     entities.CurrencyINR,
		Cadence:      entities.CadenceDaily,
		Rate:         decimal.RequireFromString("1.5"),
		PeriodsTotal: 30,
		Reference:    "purchase-1",
	}

	inv, err := svc.PurchaseInvestment(context.Background(), req)
	require.NoError(t, err)

	t.Run("debits the principal", func(t *testing.T) {
		require.Len(t, ledger.entries, 1)
		debit := ledger.entries[0]
		assert.Equal(t, entities.EntryKindPlanPurchase, debit.Kind)
		assert.True(t, debit.Amount.Equal(decimal.RequireFromString("-1000")))
	})

	t.Run("schedules the first period", func(t *testing.T) {
		assert.Equal(t, entities.InvestmentStatusActive, inv.Status)
		assert.Equal(t, 0, inv.PeriodsPaid)
		assert.True(t, inv.NextDueAt.After(inv.StartAt))
	})

	t.Run("fires the cascade", func(t *testing.T) {
		require.Len(t, cascade.events, 1)
		assert.Equal(t, userID, cascade.events[0].UserID)
		assert.True(t, cascade.events[0].Amount.Equal(decimal.RequireFromString("1000")))
	})

	t.Run("replayed reference buys nothing twice", func(t *testing.T) {
		_, err := svc.PurchaseInvestment(context.Background(), req)
		require.Error(t, err)
		assert.True(t, apperrors.IsDuplicateReference(err))
		assert.Len(t, invs.byID, 1)
	})
}

func TestTickCreditsDuePeriods(t *testing.T) {
	invs := newFakeInvestments()
	ledger := newFakeLedger()
	svc := newTestService(invs, ledger, nil)
	now := time.Now()
	userID := uuid.New()

	inv := &entities.Investment{
		ID:           uuid.New(),
		UserID:       userID,
		PlanRef:      "plan-gold",
		Principal:    decimal.RequireFromString("1000"),
		Currency:     entities.CurrencyINR,
		Cadence:      entities.CadenceDaily,
		Rate:         decimal.RequireFromString("1.5"),
		Status:       entities.InvestmentStatusActive,
		StartAt:      now.AddDate(0, 0, -4),
		NextDueAt:    now.AddDate(0, 0, -3),
		PeriodsTotal: 30,
		Accrued:      decimal.Zero,
	}
	require.NoError(t, invs.Create(context.Background(), inv))

	// Three missed periods plus today's
	credited, err := svc.Tick(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 4, credited)

	t.Run("one entry per period at 1.5 percent", func(t *testing.T) {
		require.Len(t, ledger.entries, 4)
		refs := make(map[string]bool)
		for _, e := range ledger.entries {
			assert.Equal(t, entities.EntryKindROI, e.Kind)
			assert.True(t, e.Amount.Equal(decimal.RequireFromString("15")),
				"period amount %s", e.Amount)
			refs[e.Reference] = true
		}
		assert.Len(t, refs, 4, "each period carries its own reference")
	})

	t.Run("schedule advanced", func(t *testing.T) {
		stored, err := invs.GetByID(context.Background(), inv.ID)
		require.NoError(t, err)
		assert.Equal(t, 4, stored.PeriodsPaid)
		assert.True(t, stored.NextDueAt.After(now))
		assert.True(t, stored.Accrued.Equal(decimal.RequireFromString("60")))
	})

	t.Run("second tick credits nothing", func(t *testing.T) {
		credited, err := svc.Tick(context.Background(), now)
		require.NoError(t, err)
		assert.Equal(t, 0, credited)
		assert.Len(t, ledger.entries, 4)
	})
}

func TestTickIdempotentAfterCrash(t *testing.T) {
	invs := newFakeInvestments()
	ledger := newFakeLedger()
	svc := newTestService(invs, ledger, nil)
	now := time.Now()

	inv := &entities.Investment{
		ID:           uuid.New(),
		UserID:       uuid.New(),
		PlanRef:      "plan-basic",
		Principal:    decimal.RequireFromString("500"),
		Currency:     entities.CurrencyINR,
		Cadence:      entities.CadenceDaily,
		Rate:         decimal.RequireFromString("2"),
		Status:       entities.InvestmentStatusActive,
		StartAt:      now.AddDate(0, 0, -2),
		NextDueAt:    now.AddDate(0, 0, -1),
		PeriodsTotal: 10,
		Accrued:      decimal.Zero,
	}
	require.NoError(t, invs.Create(context.Background(), inv))

	// Simulate a prior run that credited period 1 but died before
	// advancing the schedule
	_, err := ledger.SubmitEvent(context.Background(), &entities.EntryDraft{
		UserID:    inv.UserID,
		Kind:      entities.EntryKindROI,
		Currency:  inv.Currency,
		Amount:    decimal.RequireFromString("10"),
		Reference: inv.PeriodReference(1),
	})
	require.NoError(t, err)

	credited, err := svc.Tick(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, credited, "period 1 replays, period 2 credits")
	assert.Len(t, ledger.entries, 2)

	stored, err := invs.GetByID(context.Background(), inv.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.PeriodsPaid, "schedule catches up past the replayed period")
}

func TestTickCompletesInvestment(t *testing.T) {
	invs := newFakeInvestments()
	ledger := newFakeLedger()
	svc := newTestService(invs, ledger, nil)
	now := time.Now()

	inv := &entities.Investment{
		ID:           uuid.New(),
		UserID:       uuid.New(),
		PlanRef:      "plan-short",
		Principal:    decimal.RequireFromString("100"),
		Currency:     entities.CurrencyUSDT,
		Cadence:      entities.CadenceDaily,
		Rate:         decimal.RequireFromString("1"),
		Status:       entities.InvestmentStatusActive,
		StartAt:      now.AddDate(0, 0, -10),
		NextDueAt:    now.AddDate(0, 0, -9),
		PeriodsTotal: 2,
		Accrued:      decimal.Zero,
	}
	require.NoError(t, invs.Create(context.Background(), inv))

	credited, err := svc.Tick(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 2, credited, "never more periods than the plan holds")

	stored, err := invs.GetByID(context.Background(), inv.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.InvestmentStatusCompleted, stored.Status)
	assert.Equal(t, 2, stored.PeriodsPaid)
}

func TestTickSkipsFailingInvestment(t *testing.T) {
	invs := newFakeInvestments()
	ledger := newFakeLedger()
	svc := newTestService(invs, ledger, nil)
	now := time.Now()

	bad := &entities.Investment{
		ID:           uuid.New(),
		UserID:       uuid.New(),
		PlanRef:      "plan-bad",
		Principal:    decimal.RequireFromString("100"),
		Currency:     entities.CurrencyINR,
		Cadence:      entities.CadenceDaily,
		Rate:         decimal.RequireFromString("1"),
		Status:       entities.InvestmentStatusActive,
		StartAt:      now.AddDate(0, 0, -2),
		NextDueAt:    now.AddDate(0, 0, -1),
		PeriodsTotal: 5,
		Accrued:      decimal.Zero,
	}
	good := &entities.Investment{
		ID:           uuid.New(),
		UserID:       uuid.New(),
		PlanRef:      "plan-good",
		Principal:    decimal.RequireFromString("200"),
		Currency:     entities.CurrencyINR,
		Cadence:      entities.CadenceDaily,
		Rate:         decimal.RequireFromString("1"),
		Status:       entities.InvestmentStatusActive,
		StartAt:      now.AddDate(0, 0, -2),
		NextDueAt:    now.AddDate(0, 0, -1),
		PeriodsTotal: 5,
		Accrued:      decimal.Zero,
	}
	require.NoError(t, invs.Create(context.Background(), bad))
	require.NoError(t, invs.Create(context.Background(), good))

	ledger.failOn[bad.PeriodReference(1)] = apperrors.InternalError("storage down", nil)

	credited, err := svc.Tick(context.Background(), now)
	require.NoError(t, err, "one failing investment does not sink the tick")
	assert.GreaterOrEqual(t, credited, 2, "the healthy investment still credits")
}
