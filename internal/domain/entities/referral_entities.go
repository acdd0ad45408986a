package entities

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MaxReferralLevels caps how deep a commission cascade can reach
const MaxReferralLevels = 5

// EdgeState tags a referral edge rather than deleting it, so historical
// cascades stay explainable after an account is removed.
type EdgeState string

const (
	EdgeStateActive      EdgeState = "ACTIVE"
	EdgeStateInvalidated EdgeState = "INVALIDATED"
)

// ReferralEdge links an ancestor to a referred user at a fixed level.
// Level 1 is the direct referrer. Edges are created once at registration
// and never re-levelled.
type ReferralEdge struct {
	ID             uuid.UUID  `json:"id" db:"id"`
	UserID         uuid.UUID  `json:"user_id" db:"user_id"`
	ReferredUserID uuid.UUID  `json:"referred_user_id" db:"referred_user_id"`
	Level          int        `json:"level" db:"level"`
	ReferrerID     *uuid.UUID `json:"referrer_id,omitempty" db:"referrer_id"`
	State          EdgeState  `json:"state" db:"state"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
}

// Validate validates the referral edge
func (e *ReferralEdge) Validate() error {
	if e.UserID == uuid.Nil || e.ReferredUserID == uuid.Nil {
		return fmt.Errorf("edge user IDs are required")
	}
	if e.UserID == e.ReferredUserID {
		return fmt.Errorf("self-referral is not allowed")
	}
	if e.Level < 1 || e.Level > MaxReferralLevels {
		return fmt.Errorf("invalid edge level: %d", e.Level)
	}
	return nil
}

// IsActive reports whether the edge still participates in cascades
func (e *ReferralEdge) IsActive() bool {
	return e.State == EdgeStateActive
}

// ReferralProfile holds a user's referral code and their direct referrer
type ReferralProfile struct {
	UserID     uuid.UUID  `json:"user_id" db:"user_id"`
	Code       string     `json:"code" db:"code"`
	ReferredBy *uuid.UUID `json:"referred_by,omitempty" db:"referred_by"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
}

// ReferralConfig is the per-tenant cascade configuration. A cascade uses
// the snapshot active at the time of the qualifying event; later config
// edits never recalculate past bonuses.
type ReferralConfig struct {
	ID        uuid.UUID `json:"id" db:"id"`
	MaxLevels int       `json:"max_levels" db:"max_levels"`
	// Level percentages, 1-indexed externally. A nil slot disables
	// that level without redistributing its share.
	LevelPercentages [MaxReferralLevels]*decimal.Decimal `json:"level_percentages"`
	Active           bool                                `json:"active" db:"active"`
	CreatedAt        time.Time                           `json:"created_at" db:"created_at"`
}

// Validate validates the configuration
func (c *ReferralConfig) Validate() error {
	if c.MaxLevels < 1 || c.MaxLevels > MaxReferralLevels {
		return fmt.Errorf("max levels must be between 1 and %d", MaxReferralLevels)
	}
	for i, pct := range c.LevelPercentages {
		if pct == nil {
			continue
		}
		if pct.IsNegative() || pct.GreaterThan(decimal.NewFromInt(100)) {
			return fmt.Errorf("level %d percentage out of range: %s", i+1, pct.String())
		}
	}
	return nil
}

// PercentageForLevel returns the commission percentage for a level, with
// ok=false when the level is disabled or beyond max_levels.
func (c *ReferralConfig) PercentageForLevel(level int) (decimal.Decimal, bool) {
	if level < 1 || level > c.MaxLevels || level > MaxReferralLevels {
		return decimal.Zero, false
	}
	pct := c.LevelPercentages[level-1]
	if pct == nil || pct.IsZero() {
		return decimal.Zero, false
	}
	return *pct, true
}

// MilestoneCondition selects which cumulative statistic a milestone tracks
type MilestoneCondition string

const (
	MilestoneConditionReferralCount    MilestoneCondition = "referral_count"
	MilestoneConditionReferralEarnings MilestoneCondition = "referral_earnings"
)

// Validate checks if the condition type is valid
func (m MilestoneCondition) Validate() error {
	switch m {
	case MilestoneConditionReferralCount, MilestoneConditionReferralEarnings:
		return nil
	default:
		return fmt.Errorf("invalid milestone condition: %s", m)
	}
}

// Milestone is a one-time achievement bonus triggered by crossing a
// cumulative threshold.
type Milestone struct {
	ID          uuid.UUID          `json:"id" db:"id"`
	Name        string             `json:"name" db:"name"`
	Condition   MilestoneCondition `json:"condition" db:"condition"`
	Threshold   decimal.Decimal    `json:"threshold" db:"threshold"`
	BonusAmount decimal.Decimal    `json:"bonus_amount" db:"bonus_amount"`
	Currency    Currency           `json:"currency" db:"currency"`
	Active      bool               `json:"active" db:"active"`
	CreatedAt   time.Time          `json:"created_at" db:"created_at"`
}

// Validate validates the milestone
func (m *Milestone) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("milestone name is required")
	}
	if err := m.Condition.Validate(); err != nil {
		return err
	}
	if err := m.Currency.Validate(); err != nil {
		return err
	}
	if !m.Threshold.IsPositive() {
		return fmt.Errorf("threshold must be positive")
	}
	if !m.BonusAmount.IsPositive() {
		return fmt.Errorf("bonus amount must be positive")
	}
	return nil
}

// BonusReference derives the idempotency reference for a milestone payout
func (m *Milestone) BonusReference(userID uuid.UUID) string {
	return fmt.Sprintf("%s:%s", m.ID, userID)
}

// MilestoneAchievement records that a milestone fired for a user. The
// unique (user, milestone) pair is the sole guard against double payout.
type MilestoneAchievement struct {
	ID          uuid.UUID `json:"id" db:"id"`
	UserID      uuid.UUID `json:"user_id" db:"user_id"`
	MilestoneID uuid.UUID `json:"milestone_id" db:"milestone_id"`
	AchievedAt  time.Time `json:"achieved_at" db:"achieved_at"`
}

// ReferralStats is the cumulative statistic snapshot milestones evaluate
// against. Values are derived from edges and SUCCESS ledger entries, never
// from stored counters.
type ReferralStats struct {
	UserID        uuid.UUID                    `json:"user_id"`
	DirectCount   int64                        `json:"direct_count"`
	EarningsByCcy map[Currency]decimal.Decimal `json:"earnings_by_currency"`
}

// Earnings returns the cumulative referral earnings in a currency
func (s *ReferralStats) Earnings(c Currency) decimal.Decimal {
	if s.EarningsByCcy == nil {
		return decimal.Zero
	}
	if v, ok := s.EarningsByCcy[c]; ok {
		return v
	}
	return decimal.Zero
}

// PurchaseEvent is the qualifying event that triggers a cascade
type PurchaseEvent struct {
	EntryID      uuid.UUID       `json:"entry_id"`
	InvestmentID uuid.UUID       `json:"investment_id"`
	UserID       uuid.UUID       `json:"user_id"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     Currency        `json:"currency"`
	OccurredAt   time.Time       `json:"occurred_at"`
}

// LevelReference derives the idempotency reference for a level's bonus
func (p *PurchaseEvent) LevelReference(level int) string {
	return fmt.Sprintf("%s:L%d", p.EntryID, level)
}
