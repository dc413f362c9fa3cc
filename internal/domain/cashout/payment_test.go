package cashout

import (
	"errors"
	"testing"
	"time"

	"github.com/mercadoandino/settlement-engine/internal/domain/money"
	"github.com/mercadoandino/settlement-engine/internal/domain/shared"
	"github.com/mercadoandino/settlement-engine/internal/domain/timeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPayout(t *testing.T) *Payment {
	t.Helper()
	amount, err := money.NewFromString("1000.00", money.CurrencyPEN)
	require.NoError(t, err)
	commission, err := money.NewFromString("50.00", money.CurrencyPEN)
	require.NoError(t, err)
	p, err := New(
		"batch-7",
		amount,
		commission,
		Seller{ID: "seller-1", Name: "Andina Textiles", BankName: "BCP", AccountNumber: "19112345678901"},
		LiquidationPeriod{
			Start: time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
			End:   time.Date(2025, 5, 15, 0, 0, 0, 0, time.UTC),
		},
	)
	require.NoError(t, err)
	return p
}

func TestNew(t *testing.T) {
	t.Run("DerivesNetAmount", func(t *testing.T) {
		p := newPayout(t)

		expected, err := money.NewFromString("950.00", money.CurrencyPEN)
		require.NoError(t, err)
		assert.True(t, p.NetAmount.Equal(expected))
		assert.Equal(t, StatusScheduled, p.Status)
		require.Len(t, p.Timeline, 1)
		assert.NoError(t, p.CheckConservation())
	})

	t.Run("CommissionExceedingAmountFails", func(t *testing.T) {
		amount, _ := money.NewFromString("100.00", money.CurrencyPEN)
		commission, _ := money.NewFromString("150.00", money.CurrencyPEN)
		_, err := New("batch-1", amount, commission,
			Seller{ID: "s", AccountNumber: "191"},
			LiquidationPeriod{Start: time.Now(), End: time.Now().Add(time.Hour)},
		)
		require.Error(t, err)
		assert.True(t, errors.Is(err, shared.ValidationError{Field: "commission"}))
	})

	t.Run("CrossCurrencyCommissionFails", func(t *testing.T) {
		amount, _ := money.NewFromString("100.00", money.CurrencyPEN)
		commission, _ := money.NewFromString("5.00", money.CurrencyUSD)
		_, err := New("batch-1", amount, commission,
			Seller{ID: "s", AccountNumber: "191"},
			LiquidationPeriod{Start: time.Now(), End: time.Now().Add(time.Hour)},
		)
		require.Error(t, err)
	})

	t.Run("InvertedPeriodFails", func(t *testing.T) {
		amount, _ := money.NewFromString("100.00", money.CurrencyPEN)
		commission, _ := money.NewFromString("5.00", money.CurrencyPEN)
		end := time.Now()
		_, err := New("batch-1", amount, commission,
			Seller{ID: "s", AccountNumber: "191"},
			LiquidationPeriod{Start: end.Add(time.Hour), End: end},
		)
		require.Error(t, err)
		assert.True(t, errors.Is(err, shared.ValidationError{Field: "liquidation_period"}))
	})

	t.Run("SellerAccountRequired", func(t *testing.T) {
		amount, _ := money.NewFromString("100.00", money.CurrencyPEN)
		commission, _ := money.NewFromString("5.00", money.CurrencyPEN)
		_, err := New("batch-1", amount, commission,
			Seller{ID: "s"},
			LiquidationPeriod{Start: time.Now(), End: time.Now().Add(time.Hour)},
		)
		require.Error(t, err)
		assert.True(t, errors.Is(err, shared.ValidationError{Field: "seller"}))
	})
}

func TestCheckConservation(t *testing.T) {
	t.Run("BrokenNetAmountFailsClosed", func(t *testing.T) {
		p := newPayout(t)
		tampered, err := money.NewFromString("999.00", money.CurrencyPEN)
		require.NoError(t, err)
		p.NetAmount = tampered

		err = p.CheckConservation()
		require.Error(t, err)
		assert.True(t, errors.Is(err, shared.InvariantViolationError{RecordID: p.ID}))
	})
}

func TestApply(t *testing.T) {
	admin := timeline.Actor{ID: "admin-1", Name: "Maria", Role: timeline.RoleAdmin}

	t.Run("ScheduledThroughProcessingToPaid", func(t *testing.T) {
		p := newPayout(t)

		_, err := p.Apply(ActionProcess, admin, "")
		require.NoError(t, err)
		assert.Equal(t, StatusProcessing, p.Status)

		_, err = p.Apply(ActionPay, admin, "")
		require.NoError(t, err)
		assert.Equal(t, StatusPaid, p.Status)
		assert.Len(t, p.Timeline, 3)
		assert.NoError(t, p.Timeline.Validate())
	})

	t.Run("PayRechecksConservation", func(t *testing.T) {
		p := newPayout(t)
		tampered, err := money.NewFromString("1.00", money.CurrencyPEN)
		require.NoError(t, err)
		p.NetAmount = tampered

		_, err = p.Apply(ActionPay, admin, "")
		require.Error(t, err)
		assert.True(t, errors.Is(err, shared.InvariantViolationError{}))
		assert.Equal(t, StatusScheduled, p.Status, "failed conservation check must not transition")
	})

	t.Run("DisputeOnlyFromPaidAndNeedsReason", func(t *testing.T) {
		p := newPayout(t)
		_, err := p.Apply(ActionDispute, admin, "amount mismatch")
		require.Error(t, err, "SCHEDULED cannot be disputed")

		_, err = p.Apply(ActionPay, admin, "")
		require.NoError(t, err)

		_, err = p.Apply(ActionDispute, admin, "")
		require.Error(t, err)
		assert.True(t, errors.Is(err, shared.ValidationError{Field: "reason"}))

		_, err = p.Apply(ActionDispute, admin, "seller reports missing funds")
		require.NoError(t, err)
		assert.Equal(t, StatusDisputed, p.Status)
	})

	t.Run("DisputeResolvesToPaidOrFailed", func(t *testing.T) {
		p := newPayout(t)
		_, err := p.Apply(ActionPay, admin, "")
		require.NoError(t, err)
		_, err = p.Apply(ActionDispute, admin, "seller reports missing funds")
		require.NoError(t, err)

		_, err = p.Apply(ActionResolveFailed, admin, "transfer bounced")
		require.NoError(t, err)
		assert.Equal(t, StatusFailed, p.Status)
	})

	t.Run("RescheduleOnlyFromFailed", func(t *testing.T) {
		p := newPayout(t)
		_, err := p.Apply(ActionReschedule, admin, "")
		require.Error(t, err)
		assert.True(t, errors.Is(err, shared.InvalidTransitionError{}))

		_, err = p.Apply(ActionFail, admin, "bank rejected transfer")
		require.NoError(t, err)

		_, err = p.Apply(ActionReschedule, admin, "retrying next window")
		require.NoError(t, err)
		assert.Equal(t, StatusScheduled, p.Status)
	})
}

func TestReschedule(t *testing.T) {
	admin := timeline.Actor{ID: "admin-1", Name: "Maria", Role: timeline.RoleAdmin}

	t.Run("BuildsReplacementReferencingFailed", func(t *testing.T) {
		p := newPayout(t)
		_, err := p.Apply(ActionFail, admin, "bank rejected transfer")
		require.NoError(t, err)

		replacement, err := p.Reschedule(p.LiquidationPeriod, admin)
		require.NoError(t, err)

		assert.NotEqual(t, p.ID, replacement.ID)
		assert.Equal(t, p.ID, replacement.RescheduledFrom)
		assert.Equal(t, StatusScheduled, replacement.Status)
		assert.True(t, replacement.NetAmount.Equal(p.NetAmount))
		assert.Equal(t, StatusFailed, p.Status, "failed record stays FAILED for audit")
		require.Len(t, replacement.Timeline, 1)
		assert.Contains(t, replacement.Timeline[0].Reason, p.ID)
	})

	t.Run("OnlyLegalFromFailed", func(t *testing.T) {
		p := newPayout(t)
		_, err := p.Reschedule(p.LiquidationPeriod, admin)
		require.Error(t, err)
		assert.True(t, errors.Is(err, shared.InvalidTransitionError{RecordID: p.ID}))
	})
}
