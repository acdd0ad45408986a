package entities

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Cadence is the periodic interval at which ROI falls due
type Cadence string

const (
	CadenceDaily   Cadence = "daily"
	CadenceWeekly  Cadence = "weekly"
	CadenceMonthly Cadence = "monthly"
)

// Validate checks if the cadence is valid
func (c Cadence) Validate() error {
	switch c {
	case CadenceDaily, CadenceWeekly, CadenceMonthly:
		return nil
	default:
		return fmt.Errorf("invalid cadence: %s", c)
	}
}

// Next returns the due date one cadence unit after t
func (c Cadence) Next(t time.Time) time.Time {
	switch c {
	case CadenceWeekly:
		return t.AddDate(0, 0, 7)
	case CadenceMonthly:
		return t.AddDate(0, 1, 0)
	default:
		return t.AddDate(0, 0, 1)
	}
}

// InvestmentStatus represents the lifecycle state of an investment
type InvestmentStatus string

const (
	InvestmentStatusActive    InvestmentStatus = "ACTIVE"
	InvestmentStatusCompleted InvestmentStatus = "COMPLETED"
	InvestmentStatusCancelled InvestmentStatus = "CANCELLED"
)

// Validate checks if the status is valid
func (s InvestmentStatus) Validate() error {
	switch s {
	case InvestmentStatusActive, InvestmentStatusCompleted, InvestmentStatusCancelled:
		return nil
	default:
		return fmt.Errorf("invalid investment status: %s", s)
	}
}

// Investment is a yield-bearing plan purchase. ROI credits are derived
// from it but live in the ledger as their own entries, one per period.
type Investment struct {
	ID           uuid.UUID        `json:"id" db:"id"`
	UserID       uuid.UUID        `json:"user_id" db:"user_id"`
	PlanRef      string           `json:"plan_ref" db:"plan_ref"`
	Principal    decimal.Decimal  `json:"principal" db:"principal"`
	Currency     Currency         `json:"currency" db:"currency"`
	Cadence      Cadence          `json:"cadence" db:"cadence"`
	Rate         decimal.Decimal  `json:"rate" db:"rate"`
	Status       InvestmentStatus `json:"status" db:"status"`
	StartAt      time.Time        `json:"start_at" db:"start_at"`
	NextDueAt    time.Time        `json:"next_due_at" db:"next_due_at"`
	PeriodsTotal int              `json:"periods_total" db:"periods_total"`
	PeriodsPaid  int              `json:"periods_paid" db:"periods_paid"`
	Accrued      decimal.Decimal  `json:"accrued" db:"accrued"`
	CreatedAt    time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at" db:"updated_at"`
}

// Validate validates the investment
func (i *Investment) Validate() error {
	if i.ID == uuid.Nil {
		return fmt.Errorf("investment ID is required")
	}
	if i.UserID == uuid.Nil {
		return fmt.Errorf("user ID is required")
	}
	if err := i.Currency.Validate(); err != nil {
		return err
	}
	if err := i.Cadence.Validate(); err != nil {
		return err
	}
	if err := i.Status.Validate(); err != nil {
		return err
	}
	if !i.Principal.IsPositive() {
		return fmt.Errorf("principal must be positive")
	}
	if !i.Rate.IsPositive() {
		return fmt.Errorf("rate must be positive")
	}
	if i.PeriodsTotal <= 0 {
		return fmt.Errorf("periods total must be positive")
	}
	return nil
}

// PeriodAmount computes the ROI due for one cadence period, rounded to
// the currency's precision. The rate is a percentage per period; there
// is no compounding.
func (i *Investment) PeriodAmount() decimal.Decimal {
	return i.Currency.Round(i.Principal.Mul(i.Rate).Div(decimal.NewFromInt(100)))
}

// PeriodReference derives the idempotency reference for a period's credit
func (i *Investment) PeriodReference(period int) string {
	return fmt.Sprintf("%s:%d", i.ID, period)
}

// IsDue reports whether at least one ROI period is payable at now
func (i *Investment) IsDue(now time.Time) bool {
	return i.Status == InvestmentStatusActive &&
		i.PeriodsPaid < i.PeriodsTotal &&
		!i.NextDueAt.After(now)
}
