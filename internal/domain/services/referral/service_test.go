package referral

import (
	"context"
	"sort"
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

type fakeReferralRepo struct {
	profiles map[uuid.UUID]*entities.ReferralProfile
	edges    []*entities.ReferralEdge
}

func newFakeReferralRepo() *fakeReferralRepo {
	return &fakeReferralRepo{profiles: make(map[uuid.UUID]*entities.ReferralProfile)}
}

func (f *fakeReferralRepo) CreateProfile(ctx context.Context, p *entities.ReferralProfile) error {
	if _, ok := f.profiles[p.UserID]; ok {
		return apperrors.AlreadyExistsError("referral profile")
	}
	c := *p
	f.profiles[p.UserID] = &c
	return nil
}

func (f *fakeReferralRepo) GetProfile(ctx context.Context, userID uuid.UUID) (*entities.ReferralProfile, error) {
	p, ok := f.profiles[userID]
	if !ok {
		return nil, apperrors.NotFoundError("referral profile")
	}
	c := *p
	return &c, nil
}

func (f *fakeReferralRepo) GetProfileByCode(ctx context.Context, code string) (*entities.ReferralProfile, error) {
	for _, p := range f.profiles {
		if p.Code == code {
			c := *p
			return &c, nil
		}
	}
	return nil, apperrors.NotFoundError("referral profile")
}

func (f *fakeReferralRepo) CreateEdge(ctx context.Context, e *entities.ReferralEdge) error {
	for _, existing := range f.edges {
		if existing.ReferredUserID == e.ReferredUserID && existing.Level == e.Level {
			return apperrors.AlreadyExistsError("referral edge")
		}
	}
	c := *e
	f.edges = append(f.edges, &c)
	return nil
}

func (f *fakeReferralRepo) AncestorEdges(ctx context.Context, referredUserID uuid.UUID, maxLevel int) ([]*entities.ReferralEdge, error) {
	var out []*entities.ReferralEdge
	for _, e := range f.edges {
		if e.ReferredUserID == referredUserID && e.Level <= maxLevel {
			c := *e
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Level < out[j].Level })
	return out, nil
}

func (f *fakeReferralRepo) CountActiveDirect(ctx context.Context, userID uuid.UUID) (int64, error) {
	var n int64
	for _, e := range f.edges {
		if e.UserID == userID && e.Level == 1 && e.State == entities.EdgeStateActive {
			n++
		}
	}
	return n, nil
}

func (f *fakeReferralRepo) InvalidateEdgesForUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	var n int64
	for _, e := range f.edges {
		if (e.UserID == userID || e.ReferredUserID == userID) && e.State == entities.EdgeStateActive {
			e.State = entities.EdgeStateInvalidated
			n++
		}
	}
	return n, nil
}

type fakeConfigRepo struct {
	config *entities.ReferralConfig
}

func (f *fakeConfigRepo) GetActive(ctx context.Context) (*entities.ReferralConfig, error) {
	if f.config == nil {
		return nil, apperrors.NotFoundError("referral config")
	}
	return f.config, nil
}

type fakeMilestoneRepo struct {
	milestones   []*entities.Milestone
	achievements map[string]bool
}

func newFakeMilestoneRepo() *fakeMilestoneRepo {
	return &fakeMilestoneRepo{achievements: make(map[string]bool)}
}

func (f *fakeMilestoneRepo) ListActive(ctx context.Context) ([]*entities.Milestone, error) {
	return f.milestones, nil
}

func (f *fakeMilestoneRepo) CreateAchievement(ctx context.Context, a *entities.MilestoneAchievement) error {
	key := a.UserID.String() + "/" + a.MilestoneID.String()
	if f.achievements[key] {
		return apperrors.AlreadyExistsError("milestone achievement")
	}
	f.achievements[key] = true
	return nil
}

// fakeLedger records submitted drafts and enforces reference uniqueness.
// It doubles as the read side for earnings sums.
type fakeLedger struct {
	entries []*entities.LedgerEntry
	seen    map[string]*entities.LedgerEntry
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{seen: make(map[string]*entities.LedgerEntry)}
}

func (f *fakeLedger) SubmitEvent(ctx context.Context, draft *entities.EntryDraft) (*entities.LedgerEntry, error) {
	key := string(draft.Kind) + "|" + string(draft.Currency) + "|" + draft.Reference
	if prior, ok := f.seen[key]; ok {
		return prior, apperrors.DuplicateReferenceError(draft.Reference)
	}
	entry := draft.NewEntry(time.Now())
	f.seen[key] = entry
	f.entries = append(f.entries, entry)
	return entry, nil
}

func (f *fakeLedger) GetByID(ctx context.Context, entryID uuid.UUID) (*entities.LedgerEntry, error) {
	return nil, apperrors.NotFoundError("ledger entry")
}

func (f *fakeLedger) GetByReference(ctx context.Context, kind entities.EntryKind, currency entities.Currency, reference string) (*entities.LedgerEntry, error) {
	return nil, nil
}

func (f *fakeLedger) List(ctx context.Context, userID uuid.UUID, filter *entities.LedgerFilter) ([]*entities.LedgerEntry, error) {
	return nil, nil
}

func (f *fakeLedger) ListPending(ctx context.Context, olderThan time.Time, limit int) ([]*entities.LedgerEntry, error) {
	return nil, nil
}

func (f *fakeLedger) SumSuccess(ctx context.Context, userID uuid.UUID, currency entities.Currency) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

func (f *fakeLedger) SumSuccessByKind(ctx context.Context, userID uuid.UUID, kind entities.EntryKind) (map[entities.Currency]decimal.Decimal, error) {
	sums := make(map[entities.Currency]decimal.Decimal)
	for _, e := range f.entries {
		if e.UserID == userID && e.Kind == kind && e.Status == entities.EntryStatusSuccess {
			sums[e.Currency] = sums[e.Currency].Add(e.Amount)
		}
	}
	return sums, nil
}

func pct(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func newTestService(repo *fakeReferralRepo, configs *fakeConfigRepo, milestones *fakeMilestoneRepo, ledger *fakeLedger) *Service {
	return NewService(repo, configs, milestones, ledger, ledger, logger.NewNop())
}

// registerChain registers users so that each refers the next:
// chain[0] <- chain[1] <- ... Returns their profiles.
func registerChain(t *testing.T, svc *Service, n int) []*entities.ReferralProfile {
	t.Helper()
	profiles := make([]*entities.ReferralProfile, n)
	code := ""
	for i := 0; i < n; i++ {
		p, err := svc.RegisterReferral(context.Background(), uuid.New(), code)
		require.NoError(t, err)
		profiles[i] = p
		code = p.Code
	}
	return profiles
}

func TestRegisterReferral(t *testing.T) {
	repo := newFakeReferralRepo()
	svc := newTestService(repo, &fakeConfigRepo{}, newFakeMilestoneRepo(), newFakeLedger())
	ctx := context.Background()

	t.Run("unreferred registration gets a code", func(t *testing.T) {
		p, err := svc.RegisterReferral(ctx, uuid.New(), "")
		require.NoError(t, err)
		assert.Len(t, p.Code, referralCodeLength)
		assert.Nil(t, p.ReferredBy)
	})

	t.Run("unknown code tolerated", func(t *testing.T) {
		p, err := svc.RegisterReferral(ctx, uuid.New(), "NOSUCHCODE")
		require.NoError(t, err)
		assert.Nil(t, p.ReferredBy)
	})

	t.Run("self-referral rejected", func(t *testing.T) {
		userID := uuid.New()
		p, err := svc.RegisterReferral(ctx, userID, "")
		require.NoError(t, err)

		// Same user cannot register again, but more to the point a
		// user's own code must be refused at signup time
		_, err = svc.RegisterReferral(ctx, userID, p.Code)
		assert.Error(t, err)
	})
}

func TestRegisterReferralBuildsChain(t *testing.T) {
	repo := newFakeReferralRepo()
	svc := newTestService(repo, &fakeConfigRepo{}, newFakeMilestoneRepo(), newFakeLedger())

	profiles := registerChain(t, svc, 4)
	newest := profiles[3]

	edges, err := repo.AncestorEdges(context.Background(), newest.UserID, entities.MaxReferralLevels)
	require.NoError(t, err)
	require.Len(t, edges, 3)

	assert.Equal(t, profiles[2].UserID, edges[0].UserID, "level 1 is the direct referrer")
	assert.Equal(t, 1, edges[0].Level)
	assert.Equal(t, profiles[1].UserID, edges[1].UserID)
	assert.Equal(t, 2, edges[1].Level)
	assert.Equal(t, profiles[0].UserID, edges[2].UserID)
	assert.Equal(t, 3, edges[2].Level)
}

func TestRegisterReferralChainCapped(t *testing.T) {
	repo := newFakeReferralRepo()
	svc := newTestService(repo, &fakeConfigRepo{}, newFakeMilestoneRepo(), newFakeLedger())

	profiles := registerChain(t, svc, 8)
	newest := profiles[7]

	edges, err := repo.AncestorEdges(context.Background(), newest.UserID, entities.MaxReferralLevels)
	require.NoError(t, err)
	assert.Len(t, edges, entities.MaxReferralLevels, "the chain stops at the level cap")
}

func TestRegisterReferralChainCappedByConfig(t *testing.T) {
	repo := newFakeReferralRepo()
	config := &entities.ReferralConfig{
		ID:               uuid.New(),
		MaxLevels:        2,
		LevelPercentages: [entities.MaxReferralLevels]*decimal.Decimal{pct("5"), pct("3"), nil, nil, nil},
		Active:           true,
	}
	svc := newTestService(repo, &fakeConfigRepo{config: config}, newFakeMilestoneRepo(), newFakeLedger())

	profiles := registerChain(t, svc, 4)
	newest := profiles[3]

	edges, err := repo.AncestorEdges(context.Background(), newest.UserID, entities.MaxReferralLevels)
	require.NoError(t, err)
	assert.Len(t, edges, 2, "the active config's max_levels caps the chain")
}

func cascadeConfig() *entities.ReferralConfig {
	return &entities.ReferralConfig{
		ID:               uuid.New(),
		MaxLevels:        3,
		LevelPercentages: [entities.MaxReferralLevels]*decimal.Decimal{pct("5"), pct("3"), pct("1"), nil, nil},
		Active:           true,
	}
}

func TestCascadePaysPerLevel(t *testing.T) {
	repo := newFakeReferralRepo()
	ledger := newFakeLedger()
	svc := newTestService(repo, &fakeConfigRepo{config: cascadeConfig()}, newFakeMilestoneRepo(), ledger)

	profiles := registerChain(t, svc, 4)
	buyer := profiles[3]

	event := &entities.PurchaseEvent{
		EntryID:    uuid.New(),
		UserID:     buyer.UserID,
		Amount:     decimal.RequireFromString("1000"),
		Currency:   entities.CurrencyUSDT,
		OccurredAt: time.Now(),
	}
	require.NoError(t, svc.OnInvestmentPurchased(context.Background(), event))

	require.Len(t, ledger.entries, 3)
	byUser := make(map[uuid.UUID]decimal.Decimal)
	for _, e := range ledger.entries {
		assert.Equal(t, entities.EntryKindReferralBonus, e.Kind)
		assert.Equal(t, entities.EntryStatusSuccess, e.Status)
		byUser[e.UserID] = e.Amount
	}

	assert.True(t, byUser[profiles[2].UserID].Equal(decimal.RequireFromString("50")), "level 1 gets 5%%")
	assert.True(t, byUser[profiles[1].UserID].Equal(decimal.RequireFromString("30")), "level 2 gets 3%%")
	assert.True(t, byUser[profiles[0].UserID].Equal(decimal.RequireFromString("10")), "level 3 gets 1%%")

	t.Run("replayed event pays nothing twice", func(t *testing.T) {
		require.NoError(t, svc.OnInvestmentPurchased(context.Background(), event))
		assert.Len(t, ledger.entries, 3)
	})
}

func TestCascadeSkipsInvalidatedEdge(t *testing.T) {
	repo := newFakeReferralRepo()
	ledger := newFakeLedger()
	svc := newTestService(repo, &fakeConfigRepo{config: cascadeConfig()}, newFakeMilestoneRepo(), ledger)

	profiles := registerChain(t, svc, 4)
	buyer := profiles[3]

	// The level-2 ancestor leaves the platform
	_, err := svc.InvalidateUser(context.Background(), profiles[1].UserID)
	require.NoError(t, err)

	event := &entities.PurchaseEvent{
		EntryID:    uuid.New(),
		UserID:     buyer.UserID,
		Amount:     decimal.RequireFromString("1000"),
		Currency:   entities.CurrencyUSDT,
		OccurredAt: time.Now(),
	}
	require.NoError(t, svc.OnInvestmentPurchased(context.Background(), event))

	// Level 2's share vanishes without redistribution; levels 1 and 3
	// still pay on their own active edges
	require.Len(t, ledger.entries, 2)
	byUser := make(map[uuid.UUID]decimal.Decimal)
	for _, e := range ledger.entries {
		byUser[e.UserID] = e.Amount
	}
	assert.True(t, byUser[profiles[2].UserID].Equal(decimal.RequireFromString("50")))
	assert.True(t, byUser[profiles[0].UserID].Equal(decimal.RequireFromString("10")))
	_, paid := byUser[profiles[1].UserID]
	assert.False(t, paid, "the invalidated level must receive nothing")
}

func TestCascadeWithoutConfig(t *testing.T) {
	repo := newFakeReferralRepo()
	ledger := newFakeLedger()
	svc := newTestService(repo, &fakeConfigRepo{}, newFakeMilestoneRepo(), ledger)

	profiles := registerChain(t, svc, 2)
	event := &entities.PurchaseEvent{
		EntryID:  uuid.New(),
		UserID:   profiles[1].UserID,
		Amount:   decimal.RequireFromString("1000"),
		Currency: entities.CurrencyINR,
	}
	require.NoError(t, svc.OnInvestmentPurchased(context.Background(), event))
	assert.Empty(t, ledger.entries)
}

func TestEvaluateMilestones(t *testing.T) {
	repo := newFakeReferralRepo()
	ledger := newFakeLedger()
	milestones := newFakeMilestoneRepo()
	svc := newTestService(repo, &fakeConfigRepo{}, milestones, ledger)
	ctx := context.Background()

	milestone := &entities.Milestone{
		ID:          uuid.New(),
		Name:        "ten direct referrals",
		Condition:   entities.MilestoneConditionReferralCount,
		Threshold:   decimal.NewFromInt(10),
		BonusAmount: decimal.RequireFromString("500"),
		Currency:    entities.CurrencyINR,
		Active:      true,
	}
	milestones.milestones = []*entities.Milestone{milestone}

	referrer, err := svc.RegisterReferral(ctx, uuid.New(), "")
	require.NoError(t, err)

	addDirects := func(n int) {
		for i := 0; i < n; i++ {
			_, err := svc.RegisterReferral(ctx, uuid.New(), referrer.Code)
			require.NoError(t, err)
		}
	}

	t.Run("below the threshold nothing fires", func(t *testing.T) {
		addDirects(9)
		require.NoError(t, svc.EvaluateMilestones(ctx, referrer.UserID))
		assert.Empty(t, ledger.entries)
	})

	t.Run("crossing the threshold fires once", func(t *testing.T) {
		// The tenth registration itself crosses the threshold.
		addDirects(1)
		require.Len(t, ledger.entries, 1)
		require.NoError(t, svc.EvaluateMilestones(ctx, referrer.UserID))
		require.Len(t, ledger.entries, 1)
		bonus := ledger.entries[0]
		assert.Equal(t, entities.EntryKindMilestoneBonus, bonus.Kind)
		assert.True(t, bonus.Amount.Equal(decimal.RequireFromString("500")))
	})

	t.Run("staying above the threshold never fires again", func(t *testing.T) {
		addDirects(1)
		require.NoError(t, svc.EvaluateMilestones(ctx, referrer.UserID))
		require.NoError(t, svc.EvaluateMilestones(ctx, referrer.UserID))
		assert.Len(t, ledger.entries, 1)
	})
}

func TestEvaluateEarningsMilestone(t *testing.T) {
	repo := newFakeReferralRepo()
	ledger := newFakeLedger()
	milestones := newFakeMilestoneRepo()
	svc := newTestService(repo, &fakeConfigRepo{config: cascadeConfig()}, milestones, ledger)
	ctx := context.Background()

	milestones.milestones = []*entities.Milestone{{
		ID:          uuid.New(),
		Name:        "forty INR earned",
		Condition:   entities.MilestoneConditionReferralEarnings,
		Threshold:   decimal.RequireFromString("40"),
		BonusAmount: decimal.RequireFromString("100"),
		Currency:    entities.CurrencyINR,
		Active:      true,
	}}

	profiles := registerChain(t, svc, 2)

	// One purchase by the referred user earns the referrer 5% of 1000 INR
	event := &entities.PurchaseEvent{
		EntryID:  uuid.New(),
		UserID:   profiles[1].UserID,
		Amount:   decimal.RequireFromString("1000"),
		Currency: entities.CurrencyINR,
	}
	require.NoError(t, svc.OnInvestmentPurchased(ctx, event))

	var bonusKinds []entities.EntryKind
	for _, e := range ledger.entries {
		bonusKinds = append(bonusKinds, e.Kind)
	}
	assert.Contains(t, bonusKinds, entities.EntryKindReferralBonus)
	assert.Contains(t, bonusKinds, entities.EntryKindMilestoneBonus,
		"the cascade evaluates milestones for each beneficiary")
}

func TestStats(t *testing.T) {
	repo := newFakeReferralRepo()
	ledger := newFakeLedger()
	svc := newTestService(repo, &fakeConfigRepo{config: cascadeConfig()}, newFakeMilestoneRepo(), ledger)
	ctx := context.Background()

	profiles := registerChain(t, svc, 2)
	referrer := profiles[0]

	event := &entities.PurchaseEvent{
		EntryID:  uuid.New(),
		UserID:   profiles[1].UserID,
		Amount:   decimal.RequireFromString("200"),
		Currency: entities.CurrencyUSDT,
	}
	require.NoError(t, svc.OnInvestmentPurchased(ctx, event))

	stats, err := svc.Stats(ctx, referrer.UserID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.DirectCount)
	assert.True(t, stats.Earnings(entities.CurrencyUSDT).Equal(decimal.RequireFromString("10")),
		"5%% of 200")
	assert.True(t, stats.Earnings(entities.CurrencyINR).IsZero())
}
