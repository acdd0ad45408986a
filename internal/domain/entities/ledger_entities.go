package entities

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Currency identifies a settlement currency and its minor-unit precision.
type Currency string

const (
	CurrencyINR  Currency = "INR"
	CurrencyUSDT Currency = "USDT"
)

// Validate checks if the currency is supported
func (c Currency) Validate() error {
	switch c {
	case CurrencyINR, CurrencyUSDT:
		return nil
	default:
		return fmt.Errorf("invalid currency: %s", c)
	}
}

// Exponent returns the number of fractional digits for the currency
func (c Currency) Exponent() int32 {
	if c == CurrencyUSDT {
		return 6
	}
	return 2
}

// Round rounds an amount to the currency's precision using banker's
// rounding (round half to even), the rule used for all derived credits.
func (c Currency) Round(amount decimal.Decimal) decimal.Decimal {
	return amount.RoundBank(c.Exponent())
}

// EntryKind classifies a balance-affecting event
type EntryKind string

const (
	EntryKindDeposit         EntryKind = "DEPOSIT"
	EntryKindWithdrawal      EntryKind = "WITHDRAWAL"
	EntryKindROI             EntryKind = "ROI"
	EntryKindReferralBonus   EntryKind = "REFERRAL_BONUS"
	EntryKindMilestoneBonus  EntryKind = "MILESTONE_BONUS"
	EntryKindAdminAdjustment EntryKind = "ADMIN_ADJUSTMENT"
	EntryKindPlanPurchase    EntryKind = "PLAN_PURCHASE"
	EntryKindBreakdownRefund EntryKind = "BREAKDOWN_REFUND"
)

// Validate checks if the entry kind is valid
func (k EntryKind) Validate() error {
	switch k {
	case EntryKindDeposit, EntryKindWithdrawal, EntryKindROI,
		EntryKindReferralBonus, EntryKindMilestoneBonus, EntryKindAdminAdjustment,
		EntryKindPlanPurchase, EntryKindBreakdownRefund:
		return nil
	default:
		return fmt.Errorf("invalid entry kind: %s", k)
	}
}

// IsInternalCredit returns true for credits the engine derives itself.
// These carry no external confirmation step and are written directly
// as SUCCESS.
func (k EntryKind) IsInternalCredit() bool {
	return k == EntryKindROI || k == EntryKindReferralBonus || k == EntryKindMilestoneBonus
}

// IsDebitKind returns true for kinds that must carry a negative amount
func (k EntryKind) IsDebitKind() bool {
	return k == EntryKindWithdrawal || k == EntryKindPlanPurchase
}

// IsCreditKind returns true for kinds that must carry a positive amount
func (k EntryKind) IsCreditKind() bool {
	switch k {
	case EntryKindDeposit, EntryKindROI, EntryKindReferralBonus,
		EntryKindMilestoneBonus, EntryKindBreakdownRefund:
		return true
	}
	return false
}

// EntryStatus represents the settlement state of a ledger entry
type EntryStatus string

const (
	EntryStatusPending EntryStatus = "PENDING"
	EntryStatusSuccess EntryStatus = "SUCCESS"
	EntryStatusFailed  EntryStatus = "FAILED"
)

// Validate checks if the status is valid
func (s EntryStatus) Validate() error {
	switch s {
	case EntryStatusPending, EntryStatusSuccess, EntryStatusFailed:
		return nil
	default:
		return fmt.Errorf("invalid entry status: %s", s)
	}
}

// IsTerminal returns true once the entry can never change again
func (s EntryStatus) IsTerminal() bool {
	return s == EntryStatusSuccess || s == EntryStatusFailed
}

// LedgerEntry is the immutable record of one balance-affecting event.
// Corrections are new entries, never edits.
type LedgerEntry struct {
	ID        uuid.UUID       `json:"id" db:"id"`
	UserID    uuid.UUID       `json:"user_id" db:"user_id"`
	Kind      EntryKind       `json:"kind" db:"kind"`
	Currency  Currency        `json:"currency" db:"currency"`
	Amount    decimal.Decimal `json:"amount" db:"amount"`
	Status    EntryStatus     `json:"status" db:"status"`
	Reference string          `json:"reference" db:"reference"`
	Metadata  map[string]any  `json:"metadata,omitempty" db:"metadata"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	SettledAt *time.Time      `json:"settled_at,omitempty" db:"settled_at"`
}

// Validate validates the ledger entry
func (e *LedgerEntry) Validate() error {
	if e.ID == uuid.Nil {
		return fmt.Errorf("entry ID is required")
	}
	if e.UserID == uuid.Nil {
		return fmt.Errorf("user ID is required")
	}
	if err := e.Kind.Validate(); err != nil {
		return err
	}
	if err := e.Currency.Validate(); err != nil {
		return err
	}
	if err := e.Status.Validate(); err != nil {
		return err
	}
	if e.Amount.IsZero() {
		return fmt.Errorf("entry amount cannot be zero")
	}
	if e.Reference == "" {
		return fmt.Errorf("entry reference is required")
	}
	return nil
}

// IsCredit returns true if this entry increases the wallet balance
func (e *LedgerEntry) IsCredit() bool {
	return e.Amount.IsPositive()
}

// IsDebit returns true if this entry decreases the wallet balance
func (e *LedgerEntry) IsDebit() bool {
	return e.Amount.IsNegative()
}

// ReversalReference derives the reference a reversal of this entry carries
func (e *LedgerEntry) ReversalReference() string {
	return e.Reference + ":reversal"
}

// EntryDraft is a request to append a new ledger entry
type EntryDraft struct {
	UserID    uuid.UUID
	Kind      EntryKind
	Currency  Currency
	Amount    decimal.Decimal
	Reference string
	Metadata  map[string]any
}

// Validate validates the draft before any write happens
func (d *EntryDraft) Validate() error {
	if d.UserID == uuid.Nil {
		return fmt.Errorf("user ID is required")
	}
	if err := d.Kind.Validate(); err != nil {
		return err
	}
	if err := d.Currency.Validate(); err != nil {
		return err
	}
	if d.Reference == "" {
		return fmt.Errorf("reference is required")
	}
	if d.Amount.IsZero() {
		return fmt.Errorf("amount cannot be zero")
	}
	if d.Kind.IsDebitKind() && d.Amount.IsPositive() {
		return fmt.Errorf("%s amount must be negative", d.Kind)
	}
	if d.Kind.IsCreditKind() && d.Amount.IsNegative() {
		return fmt.Errorf("%s amount must be positive", d.Kind)
	}
	if d.Amount.Exponent() < -d.Currency.Exponent() {
		return fmt.Errorf("amount %s exceeds %s precision", d.Amount.String(), d.Currency)
	}
	return nil
}

// NewEntry materializes a draft into a PENDING entry, or directly into
// SUCCESS for internally derived credits.
func (d *EntryDraft) NewEntry(now time.Time) *LedgerEntry {
	entry := &LedgerEntry{
		ID:        uuid.New(),
		UserID:    d.UserID,
		Kind:      d.Kind,
		Currency:  d.Currency,
		Amount:    d.Amount,
		Status:    EntryStatusPending,
		Reference: d.Reference,
		Metadata:  d.Metadata,
		CreatedAt: now,
	}
	if d.Kind.IsInternalCredit() {
		entry.Status = EntryStatusSuccess
		settled := now
		entry.SettledAt = &settled
	}
	return entry
}

// WalletBalance is the current-balance projection for one (user, currency).
// It equals the sum of all SUCCESS entries for that pair at all times.
type WalletBalance struct {
	UserID             uuid.UUID       `json:"user_id" db:"user_id"`
	Currency           Currency        `json:"currency" db:"currency"`
	Balance            decimal.Decimal `json:"balance" db:"balance"`
	Version            int64           `json:"version" db:"version"`
	LastAppliedEntryID *uuid.UUID      `json:"last_applied_entry_id,omitempty" db:"last_applied_entry_id"`
	UpdatedAt          time.Time       `json:"updated_at" db:"updated_at"`
}

// CanApply reports whether applying the delta keeps the balance non-negative
func (w *WalletBalance) CanApply(delta decimal.Decimal) bool {
	return !w.Balance.Add(delta).IsNegative()
}

// LedgerFilter narrows a ledger listing
type LedgerFilter struct {
	Kind     *EntryKind
	Currency *Currency
	Status   *EntryStatus
	From     *time.Time
	To       *time.Time
	Limit    int
	Offset   int
}

// Normalize clamps paging values to sane bounds
func (f *LedgerFilter) Normalize() {
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
}
