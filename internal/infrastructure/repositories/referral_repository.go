package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ledger-service/ledger_service/internal/domain/entities"
	apperrors "github.com/ledger-service/ledger_service/internal/domain/errors"
)

// ReferralRepository handles referral profiles and edges
type ReferralRepository struct {
	db *sqlx.DB
}

// NewReferralRepository creates a new referral repository
func NewReferralRepository(db *sqlx.DB) *ReferralRepository {
	return &ReferralRepository{db: db}
}

// CreateProfile persists a user's referral profile
func (r *ReferralRepository) CreateProfile(ctx context.Context, profile *entities.ReferralProfile) error {
	query := `
		INSERT INTO referral_profiles (user_id, code, referred_by)
		VALUES ($1, $2, $3)
		RETURNING created_at
	`

	err := r.db.QueryRowxContext(ctx, query, profile.UserID, profile.Code, profile.ReferredBy).
		Scan(&profile.CreatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == pqUniqueViolation {
			return apperrors.AlreadyExistsError("referral profile")
		}
		return fmt.Errorf("create referral profile: %w", err)
	}
	return nil
}

// GetProfile retrieves a profile by user ID
func (r *ReferralRepository) GetProfile(ctx context.Context, userID uuid.UUID) (*entities.ReferralProfile, error) {
	query := `
		SELECT user_id, code, referred_by, created_at
		FROM referral_profiles
		WHERE user_id = $1
	`

	var profile entities.ReferralProfile
	err := r.db.GetContext(ctx, &profile, query, userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.NotFoundError("referral profile")
		}
		return nil, fmt.Errorf("get referral profile: %w", err)
	}
	return &profile, nil
}

// GetProfileByCode retrieves a profile by its referral code
func (r *ReferralRepository) GetProfileByCode(ctx context.Context, code string) (*entities.ReferralProfile, error) {
	query := `
		SELECT user_id, code, referred_by, created_at
		FROM referral_profiles
		WHERE code = $1
	`

	var profile entities.ReferralProfile
	err := r.db.GetContext(ctx, &profile, query, code)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.NotFoundError("referral profile")
		}
		return nil, fmt.Errorf("get referral profile by code: %w", err)
	}
	return &profile, nil
}

// CreateEdge persists one level of a referral chain
func (r *ReferralRepository) CreateEdge(ctx context.Context, edge *entities.ReferralEdge) error {
	if err := edge.Validate(); err != nil {
		return fmt.Errorf("validate edge: %w", err)
	}

	query := `
		INSERT INTO referral_edges (id, user_id, referred_user_id, level, referrer_id, state)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`

	err := r.db.QueryRowxContext(
		ctx,
		query,
		edge.ID,
		edge.UserID,
		edge.ReferredUserID,
		edge.Level,
		edge.ReferrerID,
		edge.State,
	).Scan(&edge.CreatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == pqUniqueViolation {
			return apperrors.AlreadyExistsError("referral edge")
		}
		return fmt.Errorf("create referral edge: %w", err)
	}
	return nil
}

// AncestorEdges returns the edges pointing at a referred user, one per
// level, ordered by level ascending. Invalidated edges are included so
// the cascade can observe the break and stop.
func (r *ReferralRepository) AncestorEdges(ctx context.Context, referredUserID uuid.UUID, maxLevel int) ([]*entities.ReferralEdge, error) {
	query := `
		SELECT id, user_id, referred_user_id, level, referrer_id, state, created_at
		FROM referral_edges
		WHERE referred_user_id = $1 AND level <= $2
		ORDER BY level ASC
	`

	var edges []*entities.ReferralEdge
	if err := r.db.SelectContext(ctx, &edges, query, referredUserID, maxLevel); err != nil {
		return nil, fmt.Errorf("list ancestor edges: %w", err)
	}
	return edges, nil
}

// CountActiveDirect counts a user's active level-1 referrals
func (r *ReferralRepository) CountActiveDirect(ctx context.Context, userID uuid.UUID) (int64, error) {
	query := `
		SELECT COUNT(*)
		FROM referral_edges
		WHERE user_id = $1 AND level = 1 AND state = 'ACTIVE'
	`

	var count int64
	if err := r.db.GetContext(ctx, &count, query, userID); err != nil {
		return 0, fmt.Errorf("count direct referrals: %w", err)
	}
	return count, nil
}

// InvalidateEdgesForUser marks every edge touching a user as invalidated.
// Edges are never deleted; downstream cascades stop at the break.
func (r *ReferralRepository) InvalidateEdgesForUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	query := `
		UPDATE referral_edges
		SET state = 'INVALIDATED'
		WHERE (user_id = $1 OR referred_user_id = $1) AND state = 'ACTIVE'
	`

	result, err := r.db.ExecContext(ctx, query, userID)
	if err != nil {
		return 0, fmt.Errorf("invalidate edges: %w", err)
	}
	return result.RowsAffected()
}
