package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ledger-service/ledger_service/internal/domain/entities"
)

// SettlementTx is the transaction-scoped view the engine mutates through.
// Only the engine ever holds one; every other component submits drafts
// and reads results.
type SettlementTx interface {
	// LockWallet acquires exclusive access to the (user, currency) row,
	// creating it at zero if absent. Contention past the configured
	// lock timeout surfaces as ErrBusy.
	LockWallet(ctx context.Context, userID uuid.UUID, currency entities.Currency) (*entities.WalletBalance, error)

	// InsertEntry appends a new ledger entry. A live entry with the same
	// (kind, currency, reference) surfaces as ErrDuplicateReference.
	InsertEntry(ctx context.Context, entry *entities.LedgerEntry) error

	// UpdateEntryStatus transitions a PENDING entry to a terminal status
	UpdateEntryStatus(ctx context.Context, entryID uuid.UUID, status entities.EntryStatus, settledAt time.Time) error

	// UpdateWallet persists a mutated balance projection
	UpdateWallet(ctx context.Context, wallet *entities.WalletBalance) error
}

// SettlementStore runs the append-then-apply sequence atomically
type SettlementStore interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx SettlementTx) error) error
}

// LedgerRepository is the read side of the ledger store
type LedgerRepository interface {
	GetByID(ctx context.Context, entryID uuid.UUID) (*entities.LedgerEntry, error)
	// GetByReference returns the live (non-FAILED) entry for an
	// idempotency reference, or nil when none exists.
	GetByReference(ctx context.Context, kind entities.EntryKind, currency entities.Currency, reference string) (*entities.LedgerEntry, error)
	List(ctx context.Context, userID uuid.UUID, filter *entities.LedgerFilter) ([]*entities.LedgerEntry, error)
	ListPending(ctx context.Context, olderThan time.Time, limit int) ([]*entities.LedgerEntry, error)
	// SumSuccess recomputes a wallet balance from first principles
	SumSuccess(ctx context.Context, userID uuid.UUID, currency entities.Currency) (decimal.Decimal, error)
	// SumSuccessByKind totals a user's SUCCESS entries of one kind per currency
	SumSuccessByKind(ctx context.Context, userID uuid.UUID, kind entities.EntryKind) (map[entities.Currency]decimal.Decimal, error)
}

// WalletRepository is the read side of the balance projections
type WalletRepository interface {
	Get(ctx context.Context, userID uuid.UUID, currency entities.Currency) (*entities.WalletBalance, error)
	ListAll(ctx context.Context) ([]*entities.WalletBalance, error)
}

// InvestmentRepository handles investment persistence
type InvestmentRepository interface {
	Create(ctx context.Context, investment *entities.Investment) error
	GetByID(ctx context.Context, id uuid.UUID) (*entities.Investment, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*entities.Investment, error)
	// ListDue returns a batch of ACTIVE investments whose next due date
	// has passed. Crediting stays safe under concurrent ticks because
	// every period carries an idempotent reference.
	ListDue(ctx context.Context, now time.Time, limit int) ([]*entities.Investment, error)
	Update(ctx context.Context, investment *entities.Investment) error
}

// ReferralRepository handles referral profiles and edges
type ReferralRepository interface {
	CreateProfile(ctx context.Context, profile *entities.ReferralProfile) error
	GetProfile(ctx context.Context, userID uuid.UUID) (*entities.ReferralProfile, error)
	GetProfileByCode(ctx context.Context, code string) (*entities.ReferralProfile, error)
	CreateEdge(ctx context.Context, edge *entities.ReferralEdge) error
	// AncestorEdges returns the edges pointing at a referred user, one
	// per level, ordered by level ascending.
	AncestorEdges(ctx context.Context, referredUserID uuid.UUID, maxLevel int) ([]*entities.ReferralEdge, error)
	CountActiveDirect(ctx context.Context, userID uuid.UUID) (int64, error)
	InvalidateEdgesForUser(ctx context.Context, userID uuid.UUID) (int64, error)
}

// ReferralConfigRepository serves immutable cascade config snapshots
type ReferralConfigRepository interface {
	GetActive(ctx context.Context) (*entities.ReferralConfig, error)
}

// MilestoneRepository handles milestones and their achievements
type MilestoneRepository interface {
	ListActive(ctx context.Context) ([]*entities.Milestone, error)
	// CreateAchievement records the (user, milestone) pair; a duplicate
	// surfaces as ErrAlreadyExists and means the bonus was already paid.
	CreateAchievement(ctx context.Context, achievement *entities.MilestoneAchievement) error
}
