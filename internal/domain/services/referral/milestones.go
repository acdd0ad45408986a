package referral

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ledger-service/ledger_service/internal/domain/entities"
	apperrors "github.com/ledger-service/ledger_service/internal/domain/errors"
	"github.com/ledger-service/ledger_service/pkg/metrics"
)

// EvaluateMilestones checks a user's derived statistics against every
// active milestone and pays the bonus for each newly crossed threshold.
// The achievement record is written first; its uniqueness is what makes
// each bonus at-most-once, so two concurrent evaluations cannot both pay.
func (s *Service) EvaluateMilestones(ctx context.Context, userID uuid.UUID) error {
	milestones, err := s.milestones.ListActive(ctx)
	if err != nil {
		return err
	}
	if len(milestones) == 0 {
		return nil
	}

	stats, err := s.Stats(ctx, userID)
	if err != nil {
		return err
	}

	for _, m := range milestones {
		if !s.milestoneMet(m, stats) {
			continue
		}

		achievement := &entities.MilestoneAchievement{
			ID:          uuid.New(),
			UserID:      userID,
			MilestoneID: m.ID,
			AchievedAt:  time.Now(),
		}
		if err := s.milestones.CreateAchievement(ctx, achievement); err != nil {
			if apperrors.IsAlreadyExists(err) {
				continue
			}
			return err
		}

		draft := &entities.EntryDraft{
			UserID:    userID,
			Kind:      entities.EntryKindMilestoneBonus,
			Currency:  m.Currency,
			Amount:    m.Currency.Round(m.BonusAmount),
			Reference: m.BonusReference(userID),
			Metadata: map[string]any{
				"milestone_id":   m.ID.String(),
				"milestone_name": m.Name,
			},
		}
		if _, err := s.ledger.SubmitEvent(ctx, draft); err != nil {
			if apperrors.IsDuplicateReference(err) {
				continue
			}
			// The achievement stands even though the payout did not
			// land: at-most-once, never twice.
			s.logger.Error("milestone bonus failed",
				"user_id", userID, "milestone_id", m.ID, "error", err)
			continue
		}

		metrics.MilestonesFiredTotal.Inc()
		s.logger.Info("milestone bonus paid",
			"user_id", userID, "milestone", m.Name,
			"amount", m.BonusAmount.String(), "currency", m.Currency)
	}

	return nil
}

func (s *Service) milestoneMet(m *entities.Milestone, stats *entities.ReferralStats) bool {
	switch m.Condition {
	case entities.MilestoneConditionReferralCount:
		return decimal.NewFromInt(stats.DirectCount).GreaterThanOrEqual(m.Threshold)
	case entities.MilestoneConditionReferralEarnings:
		return stats.Earnings(m.Currency).GreaterThanOrEqual(m.Threshold)
	}
	return false
}
