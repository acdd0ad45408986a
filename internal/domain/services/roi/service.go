package roi

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ledger-service/ledger_service/internal/domain/entities"
	apperrors "github.com/ledger-service/ledger_service/internal/domain/errors"
	"github.com/ledger-service/ledger_service/internal/domain/repositories"
	"github.com/ledger-service/ledger_service/pkg/logger"
	"github.com/ledger-service/ledger_service/pkg/metrics"
)

const tickLockKey = "roi:tick"

// Ledger is the slice of the settlement engine the scheduler needs
type Ledger interface {
	SubmitEvent(ctx context.Context, draft *entities.EntryDraft) (*entities.LedgerEntry, error)
}

// Cascader receives qualifying purchase events
type Cascader interface {
	OnInvestmentPurchased(ctx context.Context, event *entities.PurchaseEvent) error
}

// Service credits periodic returns on active investments. Every period
// of every investment maps to exactly one ledger entry, so ticks can
// overlap, crash and rerun without double-crediting.
type Service struct {
	investments repositories.InvestmentRepository
	ledger      Ledger
	cascade     Cascader
	locker      *redislock.Client
	lockTTL     time.Duration
	batchSize   int
	logger      *logger.Logger
}

// NewService creates a new ROI scheduler service. locker may be nil in
// single-instance deployments; ticks then rely on reference idempotency
// alone.
func NewService(
	investments repositories.InvestmentRepository,
	ledger Ledger,
	cascade Cascader,
	locker *redislock.Client,
	lockTTL time.Duration,
	batchSize int,
	log *logger.Logger,
) *Service {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Service{
		investments: investments,
		ledger:      ledger,
		cascade:     cascade,
		locker:      locker,
		lockTTL:     lockTTL,
		batchSize:   batchSize,
		logger:      log,
	}
}

// PurchaseRequest describes a plan purchase to settle and schedule
type PurchaseRequest struct {
	UserID       uuid.UUID
	PlanRef      string
	Principal    decimal.Decimal
	Currency     entities.Currency
	Cadence      entities.Cadence
	Rate         decimal.Decimal
	PeriodsTotal int
	Reference    string
}

// PurchaseInvestment debits the principal from the buyer's wallet,
// creates the investment schedule and fires the referral cascade. The
// debit settles first; an unpaid schedule must never exist.
func (s *Service) PurchaseInvestment(ctx context.Context, req *PurchaseRequest) (*entities.Investment, error) {
	draft := &entities.EntryDraft{
		UserID:    req.UserID,
		Kind:      entities.EntryKindPlanPurchase,
		Currency:  req.Currency,
		Amount:    req.Principal.Neg(),
		Reference: req.Reference,
		Metadata:  map[string]any{"plan_ref": req.PlanRef},
	}

	entry, err := s.ledger.SubmitEvent(ctx, draft)
	if err != nil {
		if apperrors.IsDuplicateReference(err) {
			return nil, err
		}
		return nil, fmt.Errorf("settle purchase: %w", err)
	}

	now := time.Now()
	investment := &entities.Investment{
		ID:           uuid.New(),
		UserID:       req.UserID,
		PlanRef:      req.PlanRef,
		Principal:    req.Principal,
		Currency:     req.Currency,
		Cadence:      req.Cadence,
		Rate:         req.Rate,
		Status:       entities.InvestmentStatusActive,
		StartAt:      now,
		NextDueAt:    req.Cadence.Next(now),
		PeriodsTotal: req.PeriodsTotal,
		Accrued:      decimal.Zero,
	}
	if err := s.investments.Create(ctx, investment); err != nil {
		return nil, fmt.Errorf("create investment: %w", err)
	}

	if s.cascade != nil {
		event := &entities.PurchaseEvent{
			EntryID:      entry.ID,
			InvestmentID: investment.ID,
			UserID:       req.UserID,
			Amount:       req.Principal,
			Currency:     req.Currency,
			OccurredAt:   now,
		}
		if err := s.cascade.OnInvestmentPurchased(ctx, event); err != nil {
			// The purchase stands regardless; bonuses replay safely on
			// a later attempt because their references derive from the
			// purchase entry.
			s.logger.Error("referral cascade failed",
				"entry_id", entry.ID, "error", err)
		}
	}

	s.logger.Info("investment purchased",
		"investment_id", investment.ID, "user_id", req.UserID,
		"principal", req.Principal.String(), "currency", req.Currency)
	return investment, nil
}

// Tick credits every due period on every due investment. A catch-up
// after downtime writes one entry per missed period, never a lump sum.
// Returns the number of periods credited.
func (s *Service) Tick(ctx context.Context, now time.Time) (int, error) {
	if s.locker != nil {
		lock, err := s.locker.Obtain(ctx, tickLockKey, s.lockTTL, nil)
		if err != nil {
			if errors.Is(err, redislock.ErrNotObtained) {
				s.logger.Debug("roi tick already running elsewhere")
				return 0, nil
			}
			return 0, fmt.Errorf("obtain tick lock: %w", err)
		}
		defer lock.Release(context.WithoutCancel(ctx))
	}

	due, err := s.investments.ListDue(ctx, now, s.batchSize)
	if err != nil {
		return 0, fmt.Errorf("list due investments: %w", err)
	}

	credited := 0
	for _, inv := range due {
		if err := ctx.Err(); err != nil {
			return credited, err
		}
		n, err := s.creditDuePeriods(ctx, inv, now)
		credited += n
		if err != nil {
			s.logger.Error("roi crediting failed",
				"investment_id", inv.ID, "error", err)
		}
	}

	if credited > 0 {
		metrics.ROIPeriodsCreditedTotal.Add(float64(credited))
		s.logger.Info("roi tick complete", "periods_credited", credited)
	}
	return credited, nil
}

// creditDuePeriods walks an investment forward one period at a time
// until it is no longer due. A duplicate reference means the period was
// credited by an earlier run that died before advancing the schedule;
// the schedule still advances.
func (s *Service) creditDuePeriods(ctx context.Context, inv *entities.Investment, now time.Time) (int, error) {
	credited := 0
	for inv.IsDue(now) {
		period := inv.PeriodsPaid + 1
		amount := inv.PeriodAmount()

		draft := &entities.EntryDraft{
			UserID:    inv.UserID,
			Kind:      entities.EntryKindROI,
			Currency:  inv.Currency,
			Amount:    amount,
			Reference: inv.PeriodReference(period),
			Metadata: map[string]any{
				"investment_id": inv.ID.String(),
				"period":        period,
			},
		}

		_, err := s.ledger.SubmitEvent(ctx, draft)
		if err != nil && !apperrors.IsDuplicateReference(err) {
			return credited, err
		}
		if err == nil {
			credited++
		}

		inv.PeriodsPaid = period
		inv.Accrued = inv.Accrued.Add(amount)
		inv.NextDueAt = inv.Cadence.Next(inv.NextDueAt)
		if inv.PeriodsPaid >= inv.PeriodsTotal {
			inv.Status = entities.InvestmentStatusCompleted
		}
		if err := s.investments.Update(ctx, inv); err != nil {
			return credited, fmt.Errorf("advance schedule: %w", err)
		}
	}
	return credited, nil
}

// GetInvestment returns one investment
func (s *Service) GetInvestment(ctx context.Context, id uuid.UUID) (*entities.Investment, error) {
	return s.investments.GetByID(ctx, id)
}

// ListInvestments returns a user's investments
func (s *Service) ListInvestments(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*entities.Investment, error) {
	return s.investments.ListByUser(ctx, userID, limit, offset)
}
