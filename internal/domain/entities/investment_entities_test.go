package entities

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestCadenceNext(t *testing.T) {
	base := time.Date(2026, 1, 31, 9, 0, 0, 0, time.UTC)

	assert.Equal(t, base.AddDate(0, 0, 1), CadenceDaily.Next(base))
	assert.Equal(t, base.AddDate(0, 0, 7), CadenceWeekly.Next(base))
	// Jan 31 + 1 month normalizes to Mar 2/3 per time.AddDate; the
	// schedule accepts calendar arithmetic as-is
	assert.Equal(t, base.AddDate(0, 1, 0), CadenceMonthly.Next(base))
}

func TestInvestmentPeriodAmount(t *testing.T) {
	t.Run("percent of principal per period", func(t *testing.T) {
		inv := &Investment{
			Principal: decimal.RequireFromString("1000"),
			Currency:  CurrencyINR,
			Rate:      decimal.RequireFromString("1.5"),
		}
		assert.True(t, inv.PeriodAmount().Equal(decimal.RequireFromString("15")),
			"got %s", inv.PeriodAmount())
	})

	t.Run("rounds half-even at currency precision", func(t *testing.T) {
		inv := &Investment{
			Principal: decimal.RequireFromString("333.33"),
			Currency:  CurrencyINR,
			Rate:      decimal.RequireFromString("0.1"),
		}
		// 333.33 * 0.1% = 0.33333 -> 0.33
		assert.True(t, inv.PeriodAmount().Equal(decimal.RequireFromString("0.33")),
			"got %s", inv.PeriodAmount())
	})
}

func TestInvestmentIsDue(t *testing.T) {
	now := time.Now()

	inv := &Investment{
		Status:       InvestmentStatusActive,
		NextDueAt:    now.Add(-time.Hour),
		PeriodsTotal: 10,
		PeriodsPaid:  3,
	}
	assert.True(t, inv.IsDue(now))

	t.Run("not due in the future", func(t *testing.T) {
		i := *inv
		i.NextDueAt = now.Add(time.Hour)
		assert.False(t, i.IsDue(now))
	})

	t.Run("not due when exhausted", func(t *testing.T) {
		i := *inv
		i.PeriodsPaid = 10
		assert.False(t, i.IsDue(now))
	})

	t.Run("not due when completed", func(t *testing.T) {
		i := *inv
		i.Status = InvestmentStatusCompleted
		assert.False(t, i.IsDue(now))
	})
}

func TestInvestmentPeriodReference(t *testing.T) {
	id := uuid.New()
	inv := &Investment{ID: id}
	assert.Equal(t, id.String()+":3", inv.PeriodReference(3))
}
