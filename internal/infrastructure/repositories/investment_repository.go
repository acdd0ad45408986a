package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ledger-service/ledger_service/internal/domain/entities"
	apperrors "github.com/ledger-service/ledger_service/internal/domain/errors"
)

const investmentColumns = `id, user_id, plan_ref, principal, currency, cadence, rate, status, start_at, next_due_at, periods_total, periods_paid, accrued, created_at, updated_at`

// InvestmentRepository handles investment persistence
type InvestmentRepository struct {
	db *sqlx.DB
}

// NewInvestmentRepository creates a new investment repository
func NewInvestmentRepository(db *sqlx.DB) *InvestmentRepository {
	return &InvestmentRepository{db: db}
}

// Create persists a new investment
func (r *InvestmentRepository) Create(ctx context.Context, investment *entities.Investment) error {
	if err := investment.Validate(); err != nil {
		return fmt.Errorf("validate investment: %w", err)
	}

	query := `
		INSERT INTO investments (
			id, user_id, plan_ref, principal, currency, cadence, rate,
			status, start_at, next_due_at, periods_total, periods_paid, accrued
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRowxContext(
		ctx,
		query,
		investment.ID,
		investment.UserID,
		investment.PlanRef,
		investment.Principal,
		investment.Currency,
		investment.Cadence,
		investment.Rate,
		investment.Status,
		investment.StartAt,
		investment.NextDueAt,
		investment.PeriodsTotal,
		investment.PeriodsPaid,
		investment.Accrued,
	).Scan(&investment.CreatedAt, &investment.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create investment: %w", err)
	}
	return nil
}

// GetByID retrieves an investment by its ID
func (r *InvestmentRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.Investment, error) {
	query := fmt.Sprintf(`SELECT %s FROM investments WHERE id = $1`, investmentColumns)

	var investment entities.Investment
	err := r.db.GetContext(ctx, &investment, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.NotFoundError("investment")
		}
		return nil, fmt.Errorf("get investment: %w", err)
	}
	return &investment, nil
}

// ListByUser returns a user's investments newest first
func (r *InvestmentRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*entities.Investment, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`
		SELECT %s FROM investments
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, investmentColumns)

	var investments []*entities.Investment
	if err := r.db.SelectContext(ctx, &investments, query, userID, limit, offset); err != nil {
		return nil, fmt.Errorf("list investments: %w", err)
	}
	return investments, nil
}

// ListDue returns ACTIVE investments whose next due date has passed,
// most overdue first.
func (r *InvestmentRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*entities.Investment, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM investments
		WHERE status = 'ACTIVE' AND next_due_at <= $1 AND periods_paid < periods_total
		ORDER BY next_due_at ASC
		LIMIT $2
	`, investmentColumns)

	var investments []*entities.Investment
	if err := r.db.SelectContext(ctx, &investments, query, now, limit); err != nil {
		return nil, fmt.Errorf("list due investments: %w", err)
	}
	return investments, nil
}

// Update persists scheduling progress on an investment
func (r *InvestmentRepository) Update(ctx context.Context, investment *entities.Investment) error {
	query := `
		UPDATE investments
		SET status = $1, next_due_at = $2, periods_paid = $3, accrued = $4, updated_at = NOW()
		WHERE id = $5
	`

	result, err := r.db.ExecContext(
		ctx,
		query,
		investment.Status,
		investment.NextDueAt,
		investment.PeriodsPaid,
		investment.Accrued,
		investment.ID,
	)
	if err != nil {
		return fmt.Errorf("update investment: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperrors.NotFoundError("investment")
	}
	return nil
}
