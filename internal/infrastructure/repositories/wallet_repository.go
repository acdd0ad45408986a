package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ledger-service/ledger_service/internal/domain/entities"
	apperrors "github.com/ledger-service/ledger_service/internal/domain/errors"
)

// WalletRepository is the read side of the balance projections
type WalletRepository struct {
	db *sqlx.DB
}

// NewWalletRepository creates a new wallet repository
func NewWalletRepository(db *sqlx.DB) *WalletRepository {
	return &WalletRepository{db: db}
}

// Get retrieves the balance projection for one (user, currency)
func (r *WalletRepository) Get(ctx context.Context, userID uuid.UUID, currency entities.Currency) (*entities.WalletBalance, error) {
	query := `
		SELECT user_id, currency, balance, version, last_applied_entry_id, updated_at
		FROM wallet_balances
		WHERE user_id = $1 AND currency = $2
	`

	var wallet entities.WalletBalance
	err := r.db.GetContext(ctx, &wallet, query, userID, currency)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.NotFoundError("wallet")
		}
		return nil, fmt.Errorf("get wallet: %w", err)
	}
	return &wallet, nil
}

// ListAll returns every balance projection. The reconciliation pass
// walks these against recomputed ledger sums.
func (r *WalletRepository) ListAll(ctx context.Context) ([]*entities.WalletBalance, error) {
	query := `
		SELECT user_id, currency, balance, version, last_applied_entry_id, updated_at
		FROM wallet_balances
		ORDER BY user_id, currency
	`

	var wallets []*entities.WalletBalance
	if err := r.db.SelectContext(ctx, &wallets, query); err != nil {
		return nil, fmt.Errorf("list wallets: %w", err)
	}
	return wallets, nil
}
