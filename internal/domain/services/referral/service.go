package referral

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ledger-service/ledger_service/internal/domain/entities"
	apperrors "github.com/ledger-service/ledger_service/internal/domain/errors"
	"github.com/ledger-service/ledger_service/internal/domain/repositories"
	"github.com/ledger-service/ledger_service/pkg/logger"
	"github.com/ledger-service/ledger_service/pkg/metrics"
)

const (
	referralCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	referralCodeLength   = 8
)

var hundred = decimal.NewFromInt(100)

// Ledger is the slice of the settlement engine the cascade needs
type Ledger interface {
	SubmitEvent(ctx context.Context, draft *entities.EntryDraft) (*entities.LedgerEntry, error)
}

// Service maintains referral chains and pays commission cascades. The
// chain is materialized as edges at registration time; cascades walk
// the edges, they never re-traverse referrer pointers.
type Service struct {
	referrals  repositories.ReferralRepository
	configs    repositories.ReferralConfigRepository
	milestones repositories.MilestoneRepository
	ledgerRepo repositories.LedgerRepository
	ledger     Ledger
	logger     *logger.Logger
}

// NewService creates a new referral service
func NewService(
	referrals repositories.ReferralRepository,
	configs repositories.ReferralConfigRepository,
	milestones repositories.MilestoneRepository,
	ledgerRepo repositories.LedgerRepository,
	ledger Ledger,
	log *logger.Logger,
) *Service {
	return &Service{
		referrals:  referrals,
		configs:    configs,
		milestones: milestones,
		ledgerRepo: ledgerRepo,
		ledger:     ledger,
		logger:     log,
	}
}

func generateReferralCode() (string, error) {
	code := make([]byte, referralCodeLength)
	max := big.NewInt(int64(len(referralCodeAlphabet)))
	for i := range code {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate referral code: %w", err)
		}
		code[i] = referralCodeAlphabet[n.Int64()]
	}
	return string(code), nil
}

// RegisterReferral creates a user's referral profile and, when a valid
// referral code is supplied, materializes the full ancestor chain as
// edges. An unknown code is tolerated: the user registers unreferred.
func (s *Service) RegisterReferral(ctx context.Context, userID uuid.UUID, referralCode string) (*entities.ReferralProfile, error) {
	if userID == uuid.Nil {
		return nil, apperrors.ValidationError("user_id", "user ID is required")
	}

	var referrer *entities.ReferralProfile
	if referralCode != "" {
		p, err := s.referrals.GetProfileByCode(ctx, referralCode)
		if err != nil && !apperrors.IsNotFound(err) {
			return nil, err
		}
		if p == nil || apperrors.IsNotFound(err) {
			s.logger.Warn("unknown referral code ignored",
				"user_id", userID, "code", referralCode)
		} else if p.UserID == userID {
			return nil, apperrors.ValidationError("referral_code", "self-referral is not allowed")
		} else {
			referrer = p
		}
	}

	code, err := generateReferralCode()
	if err != nil {
		return nil, err
	}

	profile := &entities.ReferralProfile{
		UserID: userID,
		Code:   code,
	}
	if referrer != nil {
		profile.ReferredBy = &referrer.UserID
	}
	if err := s.referrals.CreateProfile(ctx, profile); err != nil {
		return nil, err
	}

	if referrer != nil {
		if err := s.buildChain(ctx, userID, referrer); err != nil {
			return nil, err
		}
		// A new direct referral can cross a referral-count threshold.
		if err := s.EvaluateMilestones(ctx, referrer.UserID); err != nil {
			s.logger.Error("milestone evaluation failed",
				"user_id", referrer.UserID, "error", err)
		}
	}

	s.logger.Info("referral profile created",
		"user_id", userID, "referred", referrer != nil)
	return profile, nil
}

// buildChain creates one edge per ancestor level, stopping at the top
// of the chain or at the level cap, whichever comes first. The active
// config's max_levels caps the chain; without a config the hard cap
// applies.
func (s *Service) buildChain(ctx context.Context, userID uuid.UUID, direct *entities.ReferralProfile) error {
	maxLevels := entities.MaxReferralLevels
	if config, err := s.configs.GetActive(ctx); err == nil &&
		config.MaxLevels > 0 && config.MaxLevels < maxLevels {
		maxLevels = config.MaxLevels
	} else if err != nil && !apperrors.IsNotFound(err) {
		return err
	}

	ancestor := direct
	for level := 1; level <= maxLevels; level++ {
		edge := &entities.ReferralEdge{
			ID:             uuid.New(),
			UserID:         ancestor.UserID,
			ReferredUserID: userID,
			Level:          level,
			State:          entities.EdgeStateActive,
		}
		if ancestor.ReferredBy != nil {
			edge.ReferrerID = ancestor.ReferredBy
		}
		if err := s.referrals.CreateEdge(ctx, edge); err != nil {
			if apperrors.IsAlreadyExists(err) {
				// Rebuilt chain after a partial failure; keep walking.
				s.logger.Warn("referral edge already exists",
					"user_id", userID, "level", level)
			} else {
				return fmt.Errorf("create edge at level %d: %w", level, err)
			}
		}

		if ancestor.ReferredBy == nil {
			break
		}
		next, err := s.referrals.GetProfile(ctx, *ancestor.ReferredBy)
		if err != nil {
			if apperrors.IsNotFound(err) {
				break
			}
			return err
		}
		ancestor = next
	}
	return nil
}

// OnInvestmentPurchased pays the commission cascade for a qualifying
// purchase. Levels pay independently; an invalidated edge is skipped
// without redistribution, and active edges above it still pay.
func (s *Service) OnInvestmentPurchased(ctx context.Context, event *entities.PurchaseEvent) error {
	config, err := s.configs.GetActive(ctx)
	if err != nil {
		if apperrors.IsNotFound(err) {
			s.logger.Debug("no active referral config, skipping cascade")
			return nil
		}
		return err
	}

	edges, err := s.referrals.AncestorEdges(ctx, event.UserID, config.MaxLevels)
	if err != nil {
		return err
	}
	if len(edges) == 0 {
		return nil
	}

	for _, edge := range edges {
		if !edge.IsActive() {
			// This level's share is simply not paid. No redistribution,
			// and the remaining edges are evaluated on their own merits.
			s.logger.Info("referral edge invalidated, level skipped",
				"referred_user_id", event.UserID, "level", edge.Level)
			continue
		}

		pct, ok := config.PercentageForLevel(edge.Level)
		if !ok {
			continue
		}

		bonus := event.Currency.Round(event.Amount.Mul(pct).Div(hundred))
		if !bonus.IsPositive() {
			continue
		}

		draft := &entities.EntryDraft{
			UserID:    edge.UserID,
			Kind:      entities.EntryKindReferralBonus,
			Currency:  event.Currency,
			Amount:    bonus,
			Reference: event.LevelReference(edge.Level),
			Metadata: map[string]any{
				"purchase_entry_id": event.EntryID.String(),
				"referred_user_id":  event.UserID.String(),
				"level":             edge.Level,
				"percentage":        pct.String(),
			},
		}

		_, err := s.ledger.SubmitEvent(ctx, draft)
		if err != nil {
			if apperrors.IsDuplicateReference(err) {
				continue
			}
			// One level failing must not sink the others.
			s.logger.Error("referral bonus failed",
				"beneficiary", edge.UserID, "level", edge.Level, "error", err)
			continue
		}

		metrics.ReferralBonusesTotal.WithLabelValues(fmt.Sprintf("%d", edge.Level)).Inc()
		s.logger.Info("referral bonus paid",
			"beneficiary", edge.UserID, "level", edge.Level,
			"amount", bonus.String(), "currency", event.Currency)

		if err := s.EvaluateMilestones(ctx, edge.UserID); err != nil {
			s.logger.Error("milestone evaluation failed",
				"user_id", edge.UserID, "error", err)
		}
	}

	return nil
}

// Stats derives a user's referral statistics from edges and settled
// ledger entries. Nothing is counted twice because nothing is counted
// incrementally.
func (s *Service) Stats(ctx context.Context, userID uuid.UUID) (*entities.ReferralStats, error) {
	count, err := s.referrals.CountActiveDirect(ctx, userID)
	if err != nil {
		return nil, err
	}

	earnings, err := s.ledgerRepo.SumSuccessByKind(ctx, userID, entities.EntryKindReferralBonus)
	if err != nil {
		return nil, err
	}

	return &entities.ReferralStats{
		UserID:        userID,
		DirectCount:   count,
		EarningsByCcy: earnings,
	}, nil
}

// GetProfile returns a user's referral profile
func (s *Service) GetProfile(ctx context.Context, userID uuid.UUID) (*entities.ReferralProfile, error) {
	return s.referrals.GetProfile(ctx, userID)
}

// InvalidateUser marks every edge touching a user as invalidated, which
// halts future cascades at that link. Already-paid bonuses stand.
func (s *Service) InvalidateUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	n, err := s.referrals.InvalidateEdgesForUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	s.logger.Info("referral edges invalidated", "user_id", userID, "count", n)
	return n, nil
}
