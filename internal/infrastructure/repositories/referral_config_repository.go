package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/ledger-service/ledger_service/internal/domain/entities"
	apperrors "github.com/ledger-service/ledger_service/internal/domain/errors"
)

// ReferralConfigRepository serves the active cascade configuration
type ReferralConfigRepository struct {
	db *sqlx.DB
}

// NewReferralConfigRepository creates a new referral config repository
func NewReferralConfigRepository(db *sqlx.DB) *ReferralConfigRepository {
	return &ReferralConfigRepository{db: db}
}

// GetActive returns the currently active cascade configuration. Exactly
// one row is active at a time; a NULL level column disables that level.
func (r *ReferralConfigRepository) GetActive(ctx context.Context) (*entities.ReferralConfig, error) {
	query := `
		SELECT id, max_levels,
			level_1_percentage, level_2_percentage, level_3_percentage,
			level_4_percentage, level_5_percentage,
			active, created_at
		FROM referral_configs
		WHERE active = TRUE
		ORDER BY created_at DESC
		LIMIT 1
	`

	var config entities.ReferralConfig
	var levels [entities.MaxReferralLevels]decimal.NullDecimal

	err := r.db.QueryRowxContext(ctx, query).Scan(
		&config.ID,
		&config.MaxLevels,
		&levels[0], &levels[1], &levels[2], &levels[3], &levels[4],
		&config.Active,
		&config.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.NotFoundError("referral config")
		}
		return nil, fmt.Errorf("get active referral config: %w", err)
	}

	for i, lvl := range levels {
		if lvl.Valid {
			pct := lvl.Decimal
			config.LevelPercentages[i] = &pct
		}
	}
	return &config, nil
}
