package entities

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCurrencyRound(t *testing.T) {
	t.Run("INR rounds to two places half-even", func(t *testing.T) {
		cases := []struct {
			in   string
			want string
		}{
			{"15", "15"},
			{"33.335", "33.34"},  // 3 is odd, rounds up
			{"33.345", "33.34"},  // 4 is even, stays
			{"33.325", "33.32"},  // 2 is even, stays
			{"10.005", "10"},     // 0 is even, stays
			{"10.015", "10.02"},  // 1 is odd, rounds up
			{"99.999", "100"},
		}
		for _, tc := range cases {
			in := decimal.RequireFromString(tc.in)
			want := decimal.RequireFromString(tc.want)
			assert.True(t, CurrencyINR.Round(in).Equal(want),
				"Round(%s) = %s, want %s", tc.in, CurrencyINR.Round(in), tc.want)
		}
	})

	t.Run("USDT rounds to six places half-even", func(t *testing.T) {
		in := decimal.RequireFromString("0.00000015")
		got := CurrencyUSDT.Round(in)
		assert.True(t, got.Equal(decimal.RequireFromString("0")), "got %s", got)

		in = decimal.RequireFromString("1.0000005")
		got = CurrencyUSDT.Round(in)
		assert.True(t, got.Equal(decimal.RequireFromString("1")), "got %s", got)

		in = decimal.RequireFromString("1.0000015")
		got = CurrencyUSDT.Round(in)
		assert.True(t, got.Equal(decimal.RequireFromString("1.000002")), "got %s", got)
	})

	t.Run("exponents", func(t *testing.T) {
		assert.Equal(t, int32(2), CurrencyINR.Exponent())
		assert.Equal(t, int32(6), CurrencyUSDT.Exponent())
	})
}

func TestEntryKind(t *testing.T) {
	t.Run("internal credits", func(t *testing.T) {
		assert.True(t, EntryKindROI.IsInternalCredit())
		assert.True(t, EntryKindReferralBonus.IsInternalCredit())
		assert.True(t, EntryKindMilestoneBonus.IsInternalCredit())
		assert.False(t, EntryKindDeposit.IsInternalCredit())
		assert.False(t, EntryKindAdminAdjustment.IsInternalCredit())
	})

	t.Run("sign conventions", func(t *testing.T) {
		assert.True(t, EntryKindWithdrawal.IsDebitKind())
		assert.True(t, EntryKindPlanPurchase.IsDebitKind())
		assert.True(t, EntryKindDeposit.IsCreditKind())
		assert.True(t, EntryKindBreakdownRefund.IsCreditKind())
		// Adjustments go either way
		assert.False(t, EntryKindAdminAdjustment.IsDebitKind())
		assert.False(t, EntryKindAdminAdjustment.IsCreditKind())
	})

	t.Run("rejects unknown kind", func(t *testing.T) {
		assert.Error(t, EntryKind("TRANSFER").Validate())
	})
}

func TestEntryDraftValidate(t *testing.T) {
	valid := func() *EntryDraft {
		return &EntryDraft{
			UserID:    uuid.New(),
			Kind:      EntryKindDeposit,
			Currency:  CurrencyINR,
			Amount:    decimal.RequireFromString("100.50"),
			Reference: "dep-1",
		}
	}

	t.Run("accepts a valid deposit", func(t *testing.T) {
		assert.NoError(t, valid().Validate())
	})

	t.Run("rejects zero amount", func(t *testing.T) {
		d := valid()
		d.Amount = decimal.Zero
		assert.Error(t, d.Validate())
	})

	t.Run("rejects positive withdrawal", func(t *testing.T) {
		d := valid()
		d.Kind = EntryKindWithdrawal
		assert.Error(t, d.Validate())
	})

	t.Run("rejects negative deposit", func(t *testing.T) {
		d := valid()
		d.Amount = d.Amount.Neg()
		assert.Error(t, d.Validate())
	})

	t.Run("allows negative admin adjustment", func(t *testing.T) {
		d := valid()
		d.Kind = EntryKindAdminAdjustment
		d.Amount = decimal.RequireFromString("-5")
		assert.NoError(t, d.Validate())
	})

	t.Run("rejects sub-precision INR amount", func(t *testing.T) {
		d := valid()
		d.Amount = decimal.RequireFromString("10.005")
		assert.Error(t, d.Validate())
	})

	t.Run("allows six places for USDT", func(t *testing.T) {
		d := valid()
		d.Currency = CurrencyUSDT
		d.Amount = decimal.RequireFromString("0.000001")
		assert.NoError(t, d.Validate())
	})

	t.Run("rejects missing reference", func(t *testing.T) {
		d := valid()
		d.Reference = ""
		assert.Error(t, d.Validate())
	})
}

func TestEntryDraftNewEntry(t *testing.T) {
	now := time.Now()

	t.Run("external kinds start pending", func(t *testing.T) {
		d := &EntryDraft{
			UserID:    uuid.New(),
			Kind:      EntryKindDeposit,
			Currency:  CurrencyINR,
			Amount:    decimal.RequireFromString("10"),
			Reference: "dep-2",
		}
		entry := d.NewEntry(now)
		assert.Equal(t, EntryStatusPending, entry.Status)
		assert.Nil(t, entry.SettledAt)
		assert.NotEqual(t, uuid.Nil, entry.ID)
	})

	t.Run("internal credits land settled", func(t *testing.T) {
		d := &EntryDraft{
			UserID:    uuid.New(),
			Kind:      EntryKindROI,
			Currency:  CurrencyINR,
			Amount:    decimal.RequireFromString("15"),
			Reference: "inv:1",
		}
		entry := d.NewEntry(now)
		assert.Equal(t, EntryStatusSuccess, entry.Status)
		require.NotNil(t, entry.SettledAt)
		assert.Equal(t, now, *entry.SettledAt)
	})
}

func TestWalletBalanceCanApply(t *testing.T) {
	w := &WalletBalance{Balance: decimal.RequireFromString("100")}

	assert.True(t, w.CanApply(decimal.RequireFromString("-100")))
	assert.False(t, w.CanApply(decimal.RequireFromString("-100.01")))
	assert.True(t, w.CanApply(decimal.RequireFromString("50")))
}

func TestReversalReference(t *testing.T) {
	e := &LedgerEntry{Reference: "dep-7"}
	assert.Equal(t, "dep-7:reversal", e.ReversalReference())
}

func TestLedgerFilterNormalize(t *testing.T) {
	f := &LedgerFilter{Limit: -3, Offset: -1}
	f.Normalize()
	assert.Equal(t, 50, f.Limit)
	assert.Equal(t, 0, f.Offset)

	f = &LedgerFilter{Limit: 10000}
	f.Normalize()
	assert.Equal(t, 50, f.Limit)

	f = &LedgerFilter{Limit: 200, Offset: 20}
	f.Normalize()
	assert.Equal(t, 200, f.Limit)
	assert.Equal(t, 20, f.Offset)
}
