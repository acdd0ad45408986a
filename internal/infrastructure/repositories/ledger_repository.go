package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/ledger-service/ledger_service/internal/domain/entities"
	apperrors "github.com/ledger-service/ledger_service/internal/domain/errors"
)

const ledgerEntryColumns = `id, user_id, kind, currency, amount, status, reference, metadata, created_at, settled_at`

// LedgerRepository is the read side of the ledger store. All writes go
// through the settlement store.
type LedgerRepository struct {
	db *sqlx.DB
}

// NewLedgerRepository creates a new ledger repository
func NewLedgerRepository(db *sqlx.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

func scanEntry(row interface {
	Scan(dest ...any) error
}) (*entities.LedgerEntry, error) {
	var entry entities.LedgerEntry
	var metadataJSON []byte

	err := row.Scan(
		&entry.ID,
		&entry.UserID,
		&entry.Kind,
		&entry.Currency,
		&entry.Amount,
		&entry.Status,
		&entry.Reference,
		&metadataJSON,
		&entry.CreatedAt,
		&entry.SettledAt,
	)
	if err != nil {
		return nil, err
	}

	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &entry.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}

	return &entry, nil
}

// GetByID retrieves a ledger entry by its ID
func (r *LedgerRepository) GetByID(ctx context.Context, entryID uuid.UUID) (*entities.LedgerEntry, error) {
	query := fmt.Sprintf(`SELECT %s FROM ledger_entries WHERE id = $1`, ledgerEntryColumns)

	entry, err := scanEntry(r.db.QueryRowxContext(ctx, query, entryID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.NotFoundError("ledger entry")
		}
		return nil, fmt.Errorf("get entry by id: %w", err)
	}
	return entry, nil
}

// GetByReference returns the live (non-FAILED) entry holding an
// idempotency reference, or nil when the reference is free.
func (r *LedgerRepository) GetByReference(ctx context.Context, kind entities.EntryKind, currency entities.Currency, reference string) (*entities.LedgerEntry, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM ledger_entries
		WHERE kind = $1 AND currency = $2 AND reference = $3 AND status <> 'FAILED'
	`, ledgerEntryColumns)

	entry, err := scanEntry(r.db.QueryRowxContext(ctx, query, kind, currency, reference))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get entry by reference: %w", err)
	}
	return entry, nil
}

// List returns a user's ledger entries newest first
func (r *LedgerRepository) List(ctx context.Context, userID uuid.UUID, filter *entities.LedgerFilter) ([]*entities.LedgerEntry, error) {
	if filter == nil {
		filter = &entities.LedgerFilter{}
	}
	filter.Normalize()

	var conditions []string
	var args []any

	conditions = append(conditions, fmt.Sprintf("user_id = $%d", len(args)+1))
	args = append(args, userID)

	if filter.Kind != nil {
		conditions = append(conditions, fmt.Sprintf("kind = $%d", len(args)+1))
		args = append(args, *filter.Kind)
	}
	if filter.Currency != nil {
		conditions = append(conditions, fmt.Sprintf("currency = $%d", len(args)+1))
		args = append(args, *filter.Currency)
	}
	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	if filter.From != nil {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", len(args)+1))
		args = append(args, *filter.From)
	}
	if filter.To != nil {
		conditions = append(conditions, fmt.Sprintf("created_at < $%d", len(args)+1))
		args = append(args, *filter.To)
	}

	query := fmt.Sprintf(`
		SELECT %s FROM ledger_entries
		WHERE %s
		ORDER BY created_at DESC, id DESC
		LIMIT $%d OFFSET $%d
	`, ledgerEntryColumns, strings.Join(conditions, " AND "), len(args)+1, len(args)+2)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	var entries []*entities.LedgerEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// ListPending returns PENDING entries created before the cutoff, oldest
// first. The recovery pass resumes these.
func (r *LedgerRepository) ListPending(ctx context.Context, olderThan time.Time, limit int) ([]*entities.LedgerEntry, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM ledger_entries
		WHERE status = 'PENDING' AND created_at < $1
		ORDER BY created_at ASC
		LIMIT $2
	`, ledgerEntryColumns)

	rows, err := r.db.QueryxContext(ctx, query, olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending entries: %w", err)
	}
	defer rows.Close()

	var entries []*entities.LedgerEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// SumSuccess recomputes a wallet balance from first principles
func (r *LedgerRepository) SumSuccess(ctx context.Context, userID uuid.UUID, currency entities.Currency) (decimal.Decimal, error) {
	query := `
		SELECT COALESCE(SUM(amount), 0)
		FROM ledger_entries
		WHERE user_id = $1 AND currency = $2 AND status = 'SUCCESS'
	`

	var sum decimal.Decimal
	if err := r.db.QueryRowxContext(ctx, query, userID, currency).Scan(&sum); err != nil {
		return decimal.Zero, fmt.Errorf("sum success entries: %w", err)
	}
	return sum, nil
}

// SumSuccessByKind totals a user's SUCCESS entries of one kind per currency
func (r *LedgerRepository) SumSuccessByKind(ctx context.Context, userID uuid.UUID, kind entities.EntryKind) (map[entities.Currency]decimal.Decimal, error) {
	query := `
		SELECT currency, COALESCE(SUM(amount), 0)
		FROM ledger_entries
		WHERE user_id = $1 AND kind = $2 AND status = 'SUCCESS'
		GROUP BY currency
	`

	rows, err := r.db.QueryxContext(ctx, query, userID, kind)
	if err != nil {
		return nil, fmt.Errorf("sum entries by kind: %w", err)
	}
	defer rows.Close()

	sums := make(map[entities.Currency]decimal.Decimal)
	for rows.Next() {
		var currency entities.Currency
		var sum decimal.Decimal
		if err := rows.Scan(&currency, &sum); err != nil {
			return nil, fmt.Errorf("scan sum: %w", err)
		}
		sums[currency] = sum
	}
	return sums, rows.Err()
}
