package repositories

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ledger-service/ledger_service/internal/domain/entities"
	apperrors "github.com/ledger-service/ledger_service/internal/domain/errors"
)

// MilestoneRepository handles milestones and their achievements
type MilestoneRepository struct {
	db *sqlx.DB
}

// NewMilestoneRepository creates a new milestone repository
func NewMilestoneRepository(db *sqlx.DB) *MilestoneRepository {
	return &MilestoneRepository{db: db}
}

// ListActive returns every active milestone
func (r *MilestoneRepository) ListActive(ctx context.Context) ([]*entities.Milestone, error) {
	query := `
		SELECT id, name, condition, threshold, bonus_amount, currency, active, created_at
		FROM milestones
		WHERE active = TRUE
		ORDER BY threshold ASC
	`

	var milestones []*entities.Milestone
	if err := r.db.SelectContext(ctx, &milestones, query); err != nil {
		return nil, fmt.Errorf("list active milestones: %w", err)
	}
	return milestones, nil
}

// CreateAchievement records that a milestone fired for a user. The unique
// (user, milestone) pair makes the bonus at-most-once: a duplicate insert
// surfaces as ErrAlreadyExists and the caller skips the payout.
func (r *MilestoneRepository) CreateAchievement(ctx context.Context, achievement *entities.MilestoneAchievement) error {
	query := `
		INSERT INTO milestone_achievements (id, user_id, milestone_id, achieved_at)
		VALUES ($1, $2, $3, $4)
	`

	_, err := r.db.ExecContext(
		ctx,
		query,
		achievement.ID,
		achievement.UserID,
		achievement.MilestoneID,
		achievement.AchievedAt,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == pqUniqueViolation {
			return apperrors.AlreadyExistsError("milestone achievement")
		}
		return fmt.Errorf("create achievement: %w", err)
	}
	return nil
}
