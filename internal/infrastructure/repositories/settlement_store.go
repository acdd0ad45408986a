package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ledger-service/ledger_service/internal/domain/entities"
	apperrors "github.com/ledger-service/ledger_service/internal/domain/errors"
	"github.com/ledger-service/ledger_service/internal/domain/repositories"
	"github.com/ledger-service/ledger_service/pkg/logger"
)

const (
	pqUniqueViolation   = "23505"
	pqLockNotAvailable  = "55P03"
	pqQueryCanceledCode = "57014"
)

// SettlementStore runs the append-then-apply sequence in one database
// transaction. It is the only component that mutates ledger entries and
// wallet balances.
type SettlementStore struct {
	db          *sqlx.DB
	lockTimeout time.Duration
	logger      *logger.Logger
}

// NewSettlementStore creates a new settlement store
func NewSettlementStore(db *sqlx.DB, lockTimeout time.Duration, logger *logger.Logger) *SettlementStore {
	return &SettlementStore{
		db:          db,
		lockTimeout: lockTimeout,
		logger:      logger,
	}
}

// InTx executes fn within a database transaction. Either all writes
// persist or none do.
func (s *SettlementStore) InTx(ctx context.Context, fn func(ctx context.Context, tx repositories.SettlementTx) error) error {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Bound the wait for wallet row locks; expiry surfaces as Busy.
	timeout := fmt.Sprintf("%d", s.lockTimeout.Milliseconds())
	if _, err := tx.ExecContext(ctx, "SET LOCAL lock_timeout = "+pq.QuoteLiteral(timeout)); err != nil {
		return fmt.Errorf("set lock timeout: %w", err)
	}

	stx := &settlementTx{tx: tx, logger: s.logger}
	if err := fn(ctx, stx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// settlementTx is the transaction-scoped mutator handed to the engine
type settlementTx struct {
	tx     *sqlx.Tx
	logger *logger.Logger
}

// LockWallet acquires exclusive access to one (user, currency) row,
// creating it at zero if absent. Two operations on different wallets
// never contend.
func (t *settlementTx) LockWallet(ctx context.Context, userID uuid.UUID, currency entities.Currency) (*entities.WalletBalance, error) {
	insert := `
		INSERT INTO wallet_balances (user_id, currency, balance, version, updated_at)
		VALUES ($1, $2, 0, 0, NOW())
		ON CONFLICT (user_id, currency) DO NOTHING
	`
	if _, err := t.tx.ExecContext(ctx, insert, userID, currency); err != nil {
		return nil, fmt.Errorf("ensure wallet row: %w", err)
	}

	query := `
		SELECT user_id, currency, balance, version, last_applied_entry_id, updated_at
		FROM wallet_balances
		WHERE user_id = $1 AND currency = $2
		FOR UPDATE
	`

	var wallet entities.WalletBalance
	err := t.tx.QueryRowxContext(ctx, query, userID, currency).Scan(
		&wallet.UserID,
		&wallet.Currency,
		&wallet.Balance,
		&wallet.Version,
		&wallet.LastAppliedEntryID,
		&wallet.UpdatedAt,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			if pqErr.Code == pqLockNotAvailable || pqErr.Code == pqQueryCanceledCode {
				return nil, apperrors.BusyError(userID.String(), string(currency))
			}
		}
		return nil, fmt.Errorf("lock wallet: %w", err)
	}

	return &wallet, nil
}

// InsertEntry appends a ledger entry. The partial unique index on
// (kind, currency, reference) excluding FAILED rows enforces the
// idempotency contract even under racing submissions.
func (t *settlementTx) InsertEntry(ctx context.Context, entry *entities.LedgerEntry) error {
	if err := entry.Validate(); err != nil {
		return fmt.Errorf("validate entry: %w", err)
	}

	metadataJSON, err := json.Marshal(entry.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	query := `
		INSERT INTO ledger_entries (
			id, user_id, kind, currency, amount, status,
			reference, metadata, created_at, settled_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at
	`

	err = t.tx.QueryRowxContext(
		ctx,
		query,
		entry.ID,
		entry.UserID,
		entry.Kind,
		entry.Currency,
		entry.Amount,
		entry.Status,
		entry.Reference,
		metadataJSON,
		entry.CreatedAt,
		entry.SettledAt,
	).Scan(&entry.CreatedAt)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == pqUniqueViolation {
			return apperrors.DuplicateReferenceError(entry.Reference)
		}
		return fmt.Errorf("insert entry: %w", err)
	}

	return nil
}

// UpdateEntryStatus transitions a PENDING entry to a terminal status.
// Terminal rows are guarded in SQL so a settled entry can never change.
func (t *settlementTx) UpdateEntryStatus(ctx context.Context, entryID uuid.UUID, status entities.EntryStatus, settledAt time.Time) error {
	query := `
		UPDATE ledger_entries
		SET status = $1, settled_at = $2
		WHERE id = $3 AND status = 'PENDING'
	`

	result, err := t.tx.ExecContext(ctx, query, status, settledAt, entryID)
	if err != nil {
		return fmt.Errorf("update entry status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("entry %s is not pending", entryID)
	}

	return nil
}

// UpdateWallet persists a mutated balance projection. The version check
// guards against lost updates should the row lock ever be bypassed.
func (t *settlementTx) UpdateWallet(ctx context.Context, wallet *entities.WalletBalance) error {
	query := `
		UPDATE wallet_balances
		SET balance = $1, version = version + 1, last_applied_entry_id = $2, updated_at = $3
		WHERE user_id = $4 AND currency = $5 AND version = $6
	`

	result, err := t.tx.ExecContext(
		ctx,
		query,
		wallet.Balance,
		wallet.LastAppliedEntryID,
		time.Now(),
		wallet.UserID,
		wallet.Currency,
		wallet.Version,
	)
	if err != nil {
		return fmt.Errorf("update wallet: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("wallet %s/%s version conflict", wallet.UserID, wallet.Currency)
	}

	wallet.Version++
	return nil
}
