package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/mercadoandino/settlement-engine/internal/domain/cashout"
	"github.com/mercadoandino/settlement-engine/internal/domain/money"
	"github.com/mercadoandino/settlement-engine/internal/domain/shared"
	"github.com/mercadoandino/settlement-engine/internal/domain/timeline"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCashOutPayment(t *testing.T) *cashout.Payment {
	t.Helper()
	amount, err := money.NewFromString("1000.00", money.CurrencyPEN)
	require.NoError(t, err)
	commission, err := money.NewFromString("50.00", money.CurrencyPEN)
	require.NoError(t, err)

	p, err := cashout.New(
		"ord-77",
		amount,
		commission,
		cashout.Seller{
			ID:            "sell-1",
			Name:          "Comercial Andina SAC",
			BankName:      "BCP",
			AccountNumber: "194-123456-0-11",
			CCI:           "00219400123456001199",
		},
		cashout.LiquidationPeriod{
			Start: time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
			End:   time.Date(2025, 5, 15, 0, 0, 0, 0, time.UTC),
		},
	)
	require.NoError(t, err)
	return p
}

const cashOutInsertQuery = `
		INSERT INTO cash_out_payments \(
			id, reference_id, amount, commission, net_amount, currency,
			seller_id, seller_name, seller_bank, seller_account, seller_cci,
			disbursement_voucher_url, period_start, period_end,
			rescheduled_from, status, created_at, updated_at
		\)
		VALUES \(\$1, \$2, \$3, \$4, \$5, \$6, \$7, \$8, \$9, \$10, \$11, \$12, \$13, \$14, \$15, \$16, \$17, \$18\)
	`

const cashOutEventInsertQuery = `
		INSERT INTO cash_out_events \(
			id, payment_id, occurred_at, previous_status, new_status,
			actor_id, actor_name, actor_role, reason
		\)
		VALUES \(\$1, \$2, \$3, \$4, \$5, \$6, \$7, \$8, \$9\)
	`

func expectCashOutEventInsert(mock pgxmock.PgxPoolIface, paymentID string, event timeline.Event) {
	mock.ExpectExec(cashOutEventInsertQuery).
		WithArgs(event.ID, paymentID, event.Timestamp, event.PreviousStatus, event.NewStatus,
			event.Actor.ID, event.Actor.Name, string(event.Actor.Role), event.Reason).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
}

func expectCashOutInsert(mock pgxmock.PgxPoolIface, p *cashout.Payment) *pgxmock.ExpectedExec {
	return mock.ExpectExec(cashOutInsertQuery).
		WithArgs(p.ID, p.ReferenceID,
			p.Amount.Amount.String(), p.Commission.Amount.String(), p.NetAmount.Amount.String(),
			string(p.Amount.Currency),
			p.Seller.ID, p.Seller.Name, p.Seller.BankName, p.Seller.AccountNumber, p.Seller.CCI,
			p.DisbursementVoucherURL, p.LiquidationPeriod.Start, p.LiquidationPeriod.End,
			p.RescheduledFrom, string(p.Status), p.CreatedAt, p.UpdatedAt)
}

func TestCashOutRepository_Create(t *testing.T) {
	ctx := context.Background()
	logger := newTestLogger()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &CashOutRepository{querier: mock, logger: logger}
	p := newCashOutPayment(t)

	t.Run("success", func(t *testing.T) {
		mock.ExpectBegin()
		expectCashOutInsert(mock, p).WillReturnResult(pgxmock.NewResult("INSERT", 1))
		expectCashOutEventInsert(mock, p.ID, p.Timeline[0])
		mock.ExpectCommit()

		err := repo.Create(ctx, p)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("failure rolls back", func(t *testing.T) {
		expectedErr := errors.New("db error")
		mock.ExpectBegin()
		expectCashOutInsert(mock, p).WillReturnError(expectedErr)
		mock.ExpectRollback()

		err := repo.Create(ctx, p)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to create cash-out payment")
		assert.ErrorIs(t, err, expectedErr)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestCashOutRepository_GetByID(t *testing.T) {
	ctx := context.Background()
	logger := newTestLogger()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &CashOutRepository{querier: mock, logger: logger}
	p := newCashOutPayment(t)
	event := p.Timeline[0]

	paymentQuery := `SELECT id, reference_id, amount::text, commission::text, net_amount::text, currency,
	       seller_id, seller_name, seller_bank, seller_account, seller_cci,
	       disbursement_voucher_url, period_start, period_end,
	       rescheduled_from, status, created_at, updated_at FROM cash_out_payments WHERE id = \$1`
	timelineQuery := `
		SELECT id, occurred_at, previous_status, new_status,
		       actor_id, actor_name, actor_role, reason
		FROM cash_out_events
		WHERE payment_id = \$1
		ORDER BY seq ASC
	`

	t.Run("success", func(t *testing.T) {
		paymentRows := pgxmock.NewRows([]string{
			"id", "reference_id", "amount", "commission", "net_amount", "currency",
			"seller_id", "seller_name", "seller_bank", "seller_account", "seller_cci",
			"disbursement_voucher_url", "period_start", "period_end",
			"rescheduled_from", "status", "created_at", "updated_at",
		}).AddRow(p.ID, p.ReferenceID, "1000.00", "50.00", "950.00", "PEN",
			p.Seller.ID, p.Seller.Name, p.Seller.BankName, p.Seller.AccountNumber, p.Seller.CCI,
			p.DisbursementVoucherURL, p.LiquidationPeriod.Start, p.LiquidationPeriod.End,
			p.RescheduledFrom, string(p.Status), p.CreatedAt, p.UpdatedAt)
		timelineRows := pgxmock.NewRows([]string{
			"id", "occurred_at", "previous_status", "new_status",
			"actor_id", "actor_name", "actor_role", "reason",
		}).AddRow(event.ID, event.Timestamp, event.PreviousStatus, event.NewStatus,
			event.Actor.ID, event.Actor.Name, string(event.Actor.Role), event.Reason)

		mock.ExpectQuery(paymentQuery).WithArgs(p.ID).WillReturnRows(paymentRows)
		mock.ExpectQuery(timelineQuery).WithArgs(p.ID).WillReturnRows(timelineRows)

		got, err := repo.GetByID(ctx, p.ID)
		assert.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, p.ID, got.ID)
		assert.True(t, p.Amount.Equal(got.Amount))
		assert.True(t, p.Commission.Equal(got.Commission))
		assert.True(t, p.NetAmount.Equal(got.NetAmount))
		assert.NoError(t, got.CheckConservation())
		assert.Equal(t, cashout.StatusScheduled, got.Status)
		require.Len(t, got.Timeline, 1)
		assert.Equal(t, event.ID, got.Timeline[0].ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery(paymentQuery).WithArgs("missing").WillReturnError(pgx.ErrNoRows)

		got, err := repo.GetByID(ctx, "missing")
		assert.Error(t, err)
		assert.Nil(t, got)
		var notFoundErr cashout.ErrPayoutNotFound
		assert.ErrorAs(t, err, &notFoundErr)
		assert.Equal(t, "missing", notFoundErr.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestCashOutRepository_Transition(t *testing.T) {
	ctx := context.Background()
	logger := newTestLogger()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &CashOutRepository{querier: mock, logger: logger}
	p := newCashOutPayment(t)
	event := timeline.NewEvent(string(cashout.StatusScheduled), string(cashout.StatusProcessing),
		timeline.SystemActor, "disbursement batch started")

	updateQuery := `
		UPDATE cash_out_payments
		SET status = \$1, updated_at = \$2
		WHERE id = \$3 AND status = \$4
	`
	existsQuery := `SELECT EXISTS \(SELECT 1 FROM cash_out_payments WHERE id = \$1\)`

	t.Run("success", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec(updateQuery).
			WithArgs(string(cashout.StatusProcessing), event.Timestamp, p.ID, string(cashout.StatusScheduled)).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		expectCashOutEventInsert(mock, p.ID, event)
		mock.ExpectCommit()

		err := repo.Transition(ctx, p.ID, cashout.StatusScheduled, cashout.StatusProcessing, event)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("event insert failure rolls back the status change", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec(updateQuery).
			WithArgs(string(cashout.StatusProcessing), event.Timestamp, p.ID, string(cashout.StatusScheduled)).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectExec(cashOutEventInsertQuery).
			WithArgs(event.ID, p.ID, event.Timestamp, event.PreviousStatus, event.NewStatus,
				event.Actor.ID, event.Actor.Name, string(event.Actor.Role), event.Reason).
			WillReturnError(errors.New("connection reset"))
		mock.ExpectRollback()

		err := repo.Transition(ctx, p.ID, cashout.StatusScheduled, cashout.StatusProcessing, event)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to insert cash-out event")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("lost race returns concurrent modification", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec(updateQuery).
			WithArgs(string(cashout.StatusProcessing), event.Timestamp, p.ID, string(cashout.StatusScheduled)).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		mock.ExpectQuery(existsQuery).WithArgs(p.ID).
			WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
		mock.ExpectRollback()

		err := repo.Transition(ctx, p.ID, cashout.StatusScheduled, cashout.StatusProcessing, event)
		var concurrentErr shared.ConcurrentModificationError
		assert.ErrorAs(t, err, &concurrentErr)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing payout returns not found", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec(updateQuery).
			WithArgs(string(cashout.StatusProcessing), event.Timestamp, "missing", string(cashout.StatusScheduled)).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		mock.ExpectQuery(existsQuery).WithArgs("missing").
			WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
		mock.ExpectRollback()

		err := repo.Transition(ctx, "missing", cashout.StatusScheduled, cashout.StatusProcessing, event)
		var notFoundErr cashout.ErrPayoutNotFound
		assert.ErrorAs(t, err, &notFoundErr)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestCashOutRepository_ListByStatus(t *testing.T) {
	ctx := context.Background()
	logger := newTestLogger()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &CashOutRepository{querier: mock, logger: logger}
	p := newCashOutPayment(t)

	listQuery := `SELECT id, reference_id, amount::text, commission::text, net_amount::text, currency,
	       seller_id, seller_name, seller_bank, seller_account, seller_cci,
	       disbursement_voucher_url, period_start, period_end,
	       rescheduled_from, status, created_at, updated_at
		FROM cash_out_payments
		WHERE status = \$1
		ORDER BY created_at ASC
		LIMIT \$2 OFFSET \$3`

	t.Run("success", func(t *testing.T) {
		rows := pgxmock.NewRows([]string{
			"id", "reference_id", "amount", "commission", "net_amount", "currency",
			"seller_id", "seller_name", "seller_bank", "seller_account", "seller_cci",
			"disbursement_voucher_url", "period_start", "period_end",
			"rescheduled_from", "status", "created_at", "updated_at",
		}).AddRow(p.ID, p.ReferenceID, "1000.00", "50.00", "950.00", "PEN",
			p.Seller.ID, p.Seller.Name, p.Seller.BankName, p.Seller.AccountNumber, p.Seller.CCI,
			p.DisbursementVoucherURL, p.LiquidationPeriod.Start, p.LiquidationPeriod.End,
			p.RescheduledFrom, string(cashout.StatusScheduled), p.CreatedAt, p.UpdatedAt)

		mock.ExpectQuery(listQuery).WithArgs(string(cashout.StatusScheduled), 10, 0).WillReturnRows(rows)

		payments, err := repo.ListByStatus(ctx, cashout.StatusScheduled, 10, 0)
		assert.NoError(t, err)
		require.Len(t, payments, 1)
		assert.Equal(t, p.ID, payments[0].ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("failure", func(t *testing.T) {
		mock.ExpectQuery(listQuery).WithArgs(string(cashout.StatusScheduled), 10, 0).
			WillReturnError(errors.New("db error"))

		payments, err := repo.ListByStatus(ctx, cashout.StatusScheduled, 10, 0)
		assert.Error(t, err)
		assert.Nil(t, payments)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestCashOutRepository_WithTx(t *testing.T) {
	logger := newTestLogger()

	repo := &CashOutRepository{querier: nil, logger: logger}

	mockTx := pgx.Tx(nil)
	txRepo := repo.WithTx(mockTx)

	assert.NotNil(t, txRepo)
	assert.IsType(t, &CashOutRepository{}, txRepo)

	cashOutRepo, ok := txRepo.(*CashOutRepository)
	assert.True(t, ok)
	assert.Equal(t, mockTx, cashOutRepo.querier)
}
