package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ledger-service/ledger_service/internal/domain/entities"
	apperrors "github.com/ledger-service/ledger_service/internal/domain/errors"
	"github.com/ledger-service/ledger_service/internal/domain/repositories"
	"github.com/ledger-service/ledger_service/internal/infrastructure/cache"
	"github.com/ledger-service/ledger_service/pkg/logger"
	"github.com/ledger-service/ledger_service/pkg/metrics"
)

// Service is the settlement engine. Every balance-affecting event flows
// through SubmitEvent; the ledger is the source of truth and wallet rows
// are projections maintained in the same transaction.
type Service struct {
	store      repositories.SettlementStore
	ledgerRepo repositories.LedgerRepository
	walletRepo repositories.WalletRepository
	cache      cache.RedisClient
	cacheTTL   time.Duration
	logger     *logger.Logger
}

// NewService creates a new settlement engine
func NewService(
	store repositories.SettlementStore,
	ledgerRepo repositories.LedgerRepository,
	walletRepo repositories.WalletRepository,
	cacheClient cache.RedisClient,
	cacheTTL time.Duration,
	log *logger.Logger,
) *Service {
	return &Service{
		store:      store,
		ledgerRepo: ledgerRepo,
		walletRepo: walletRepo,
		cache:      cacheClient,
		cacheTTL:   cacheTTL,
		logger:     log,
	}
}

func balanceCacheKey(userID uuid.UUID, currency entities.Currency) string {
	return fmt.Sprintf("balance:%s:%s", userID, currency)
}

// SubmitEvent validates a draft, appends it to the ledger and settles it
// against the wallet in one transaction. Resubmitting a reference whose
// entry is live returns that entry together with ErrDuplicateReference;
// the caller decides whether a replay is an error.
//
// An entry that fails the balance check is still persisted, as FAILED,
// so rejections stay auditable.
func (s *Service) SubmitEvent(ctx context.Context, draft *entities.EntryDraft) (*entities.LedgerEntry, error) {
	if err := draft.Validate(); err != nil {
		return nil, apperrors.InvalidAmountError(err.Error())
	}

	// Cheap replay check before taking any lock. The unique index still
	// backstops races between concurrent submitters.
	existing, err := s.ledgerRepo.GetByReference(ctx, draft.Kind, draft.Currency, draft.Reference)
	if err != nil {
		return nil, fmt.Errorf("check reference: %w", err)
	}
	if existing != nil {
		return existing, apperrors.DuplicateReferenceError(draft.Reference)
	}

	start := time.Now()
	entry := draft.NewEntry(start)

	err = s.store.InTx(ctx, func(ctx context.Context, tx repositories.SettlementTx) error {
		wallet, err := tx.LockWallet(ctx, entry.UserID, entry.Currency)
		if err != nil {
			if apperrors.IsBusy(err) {
				metrics.WalletLockBusyTotal.WithLabelValues(string(entry.Currency)).Inc()
			}
			return err
		}

		if err := tx.InsertEntry(ctx, entry); err != nil {
			return err
		}

		if entry.IsDebit() && !wallet.CanApply(entry.Amount) {
			// Settle the entry as FAILED and commit; the rejection
			// itself is part of the audit trail.
			now := time.Now()
			if err := tx.UpdateEntryStatus(ctx, entry.ID, entities.EntryStatusFailed, now); err != nil {
				return err
			}
			entry.Status = entities.EntryStatusFailed
			entry.SettledAt = &now
			return nil
		}

		return s.applyLocked(ctx, tx, entry, wallet)
	})
	if err != nil {
		if apperrors.IsDuplicateReference(err) {
			// Lost the race to a concurrent submitter; return theirs.
			winner, lookupErr := s.ledgerRepo.GetByReference(ctx, draft.Kind, draft.Currency, draft.Reference)
			if lookupErr == nil && winner != nil {
				return winner, apperrors.DuplicateReferenceError(draft.Reference)
			}
		}
		return nil, err
	}

	metrics.EntriesTotal.WithLabelValues(string(entry.Kind), string(entry.Status)).Inc()
	metrics.SettlementDuration.WithLabelValues(string(entry.Kind)).Observe(time.Since(start).Seconds())

	s.invalidateBalance(ctx, entry.UserID, entry.Currency)

	if entry.Status == entities.EntryStatusFailed {
		s.logger.Warn("entry rejected for insufficient balance",
			"entry_id", entry.ID, "user_id", entry.UserID,
			"kind", entry.Kind, "amount", entry.Amount.String())
		return entry, apperrors.InsufficientBalanceError("", entry.Amount.String())
	}

	s.logger.Info("entry settled",
		"entry_id", entry.ID, "user_id", entry.UserID, "kind", entry.Kind,
		"currency", entry.Currency, "amount", entry.Amount.String(),
		"status", entry.Status)
	return entry, nil
}

// applyLocked settles an entry against an already-locked wallet row.
// PENDING entries move to SUCCESS; internally derived credits arrive
// already SUCCESS and only need the balance applied.
func (s *Service) applyLocked(ctx context.Context, tx repositories.SettlementTx, entry *entities.LedgerEntry, wallet *entities.WalletBalance) error {
	if entry.Status == entities.EntryStatusPending {
		now := time.Now()
		if err := tx.UpdateEntryStatus(ctx, entry.ID, entities.EntryStatusSuccess, now); err != nil {
			return err
		}
		entry.Status = entities.EntryStatusSuccess
		entry.SettledAt = &now
	}

	wallet.Balance = wallet.Balance.Add(entry.Amount)
	wallet.LastAppliedEntryID = &entry.ID
	return tx.UpdateWallet(ctx, wallet)
}

// ApplyEntry resumes settlement of a PENDING entry, typically after a
// crash between append and apply. Terminal entries are left untouched,
// which makes the recovery pass safe to run repeatedly.
func (s *Service) ApplyEntry(ctx context.Context, entryID uuid.UUID) error {
	entry, err := s.ledgerRepo.GetByID(ctx, entryID)
	if err != nil {
		return err
	}
	if entry.Status.IsTerminal() {
		return nil
	}

	err = s.store.InTx(ctx, func(ctx context.Context, tx repositories.SettlementTx) error {
		wallet, err := tx.LockWallet(ctx, entry.UserID, entry.Currency)
		if err != nil {
			return err
		}

		if entry.IsDebit() && !wallet.CanApply(entry.Amount) {
			now := time.Now()
			if err := tx.UpdateEntryStatus(ctx, entry.ID, entities.EntryStatusFailed, now); err != nil {
				return err
			}
			entry.Status = entities.EntryStatusFailed
			return nil
		}

		return s.applyLocked(ctx, tx, entry, wallet)
	})
	if err != nil {
		return err
	}

	metrics.EntriesTotal.WithLabelValues(string(entry.Kind), string(entry.Status)).Inc()
	s.invalidateBalance(ctx, entry.UserID, entry.Currency)
	s.logger.Info("pending entry resumed",
		"entry_id", entry.ID, "status", entry.Status)
	return nil
}

// ReverseEntry appends a compensating entry for a settled one. The
// reversal carries a derived reference, so reversing twice is a replay.
func (s *Service) ReverseEntry(ctx context.Context, entryID uuid.UUID, reason string) (*entities.LedgerEntry, error) {
	original, err := s.ledgerRepo.GetByID(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if original.Status != entities.EntryStatusSuccess {
		return nil, apperrors.ValidationError("entry_id", "only settled entries can be reversed")
	}

	draft := &entities.EntryDraft{
		UserID:    original.UserID,
		Kind:      entities.EntryKindAdminAdjustment,
		Currency:  original.Currency,
		Amount:    original.Amount.Neg(),
		Reference: original.ReversalReference(),
		Metadata: map[string]any{
			"reversal_of": original.ID.String(),
			"reason":      reason,
		},
	}
	return s.SubmitEvent(ctx, draft)
}

// GetBalance returns the wallet projection, serving from cache when one
// is configured. A wallet no entry has touched reads as zero.
func (s *Service) GetBalance(ctx context.Context, userID uuid.UUID, currency entities.Currency) (*entities.WalletBalance, error) {
	if err := currency.Validate(); err != nil {
		return nil, apperrors.ValidationError("currency", err.Error())
	}

	key := balanceCacheKey(userID, currency)
	if s.cache != nil && s.cacheTTL > 0 {
		var cached entities.WalletBalance
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			return &cached, nil
		}
	}

	wallet, err := s.walletRepo.Get(ctx, userID, currency)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return &entities.WalletBalance{
				UserID:   userID,
				Currency: currency,
				Balance:  decimal.Zero,
			}, nil
		}
		return nil, err
	}

	if s.cache != nil && s.cacheTTL > 0 {
		if err := s.cache.Set(ctx, key, wallet, s.cacheTTL); err != nil {
			s.logger.Warn("balance cache write failed", "error", err)
		}
	}
	return wallet, nil
}

// GetLedger returns a page of a user's ledger entries
func (s *Service) GetLedger(ctx context.Context, userID uuid.UUID, filter *entities.LedgerFilter) ([]*entities.LedgerEntry, error) {
	return s.ledgerRepo.List(ctx, userID, filter)
}

// GetEntry returns a single ledger entry
func (s *Service) GetEntry(ctx context.Context, entryID uuid.UUID) (*entities.LedgerEntry, error) {
	return s.ledgerRepo.GetByID(ctx, entryID)
}

func (s *Service) invalidateBalance(ctx context.Context, userID uuid.UUID, currency entities.Currency) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, balanceCacheKey(userID, currency)); err != nil {
		s.logger.Warn("balance cache invalidation failed",
			"user_id", userID, "currency", currency, "error", err)
	}
}
