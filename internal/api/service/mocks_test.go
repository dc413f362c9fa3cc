package service

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/mercadoandino/settlement-engine/internal/domain/cashin"
	"github.com/mercadoandino/settlement-engine/internal/domain/cashout"
	"github.com/mercadoandino/settlement-engine/internal/domain/invoice"
	"github.com/mercadoandino/settlement-engine/internal/domain/outbox"
	"github.com/mercadoandino/settlement-engine/internal/domain/shared"
	"github.com/mercadoandino/settlement-engine/internal/domain/timeline"
	"github.com/mercadoandino/settlement-engine/internal/gateway/rapifac"
	"github.com/stretchr/testify/mock"
)

type MockInvoiceRepository struct {
	mock.Mock
}

func (m *MockInvoiceRepository) Create(ctx context.Context, inv *invoice.Invoice) error {
	args := m.Called(ctx, inv)
	return args.Error(0)
}

func (m *MockInvoiceRepository) GetByID(ctx context.Context, id string) (*invoice.Invoice, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*invoice.Invoice), args.Error(1)
}

func (m *MockInvoiceRepository) GetByOrderID(ctx context.Context, orderID string) (*invoice.Invoice, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*invoice.Invoice), args.Error(1)
}

func (m *MockInvoiceRepository) List(ctx context.Context, filter invoice.ListFilter) ([]*invoice.Invoice, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*invoice.Invoice), args.Error(1)
}

func (m *MockInvoiceRepository) Count(ctx context.Context, filter invoice.ListFilter) (int64, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockInvoiceRepository) UpdateStatus(ctx context.Context, id string, update invoice.StatusUpdate) error {
	args := m.Called(ctx, id, update)
	return args.Error(0)
}

func (m *MockInvoiceRepository) KPIs(ctx context.Context) (*invoice.KPIs, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*invoice.KPIs), args.Error(1)
}

type MockSubmitter struct {
	mock.Mock
}

func (m *MockSubmitter) Submit(ctx context.Context, payload *rapifac.SalesDocument) (*rapifac.ProviderResponse, error) {
	args := m.Called(ctx, payload)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*rapifac.ProviderResponse), args.Error(1)
}

type MockCashInRepository struct {
	mock.Mock
}

func (m *MockCashInRepository) Create(ctx context.Context, p *cashin.Payment) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *MockCashInRepository) GetByID(ctx context.Context, id string) (*cashin.Payment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cashin.Payment), args.Error(1)
}

func (m *MockCashInRepository) ListByStatus(ctx context.Context, status cashin.Status, limit, offset int) ([]*cashin.Payment, error) {
	args := m.Called(ctx, status, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*cashin.Payment), args.Error(1)
}

func (m *MockCashInRepository) CountByStatus(ctx context.Context, status cashin.Status) (int64, error) {
	args := m.Called(ctx, status)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockCashInRepository) Transition(ctx context.Context, id string, from, to cashin.Status, event timeline.Event) error {
	args := m.Called(ctx, id, from, to, event)
	return args.Error(0)
}

func (m *MockCashInRepository) WithTx(tx pgx.Tx) cashin.Repository {
	m.Called(tx)
	return m
}

type MockCashOutRepository struct {
	mock.Mock
}

func (m *MockCashOutRepository) Create(ctx context.Context, p *cashout.Payment) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *MockCashOutRepository) GetByID(ctx context.Context, id string) (*cashout.Payment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cashout.Payment), args.Error(1)
}

func (m *MockCashOutRepository) ListByStatus(ctx context.Context, status cashout.Status, limit, offset int) ([]*cashout.Payment, error) {
	args := m.Called(ctx, status, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*cashout.Payment), args.Error(1)
}

func (m *MockCashOutRepository) CountByStatus(ctx context.Context, status cashout.Status) (int64, error) {
	args := m.Called(ctx, status)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockCashOutRepository) Transition(ctx context.Context, id string, from, to cashout.Status, event timeline.Event) error {
	args := m.Called(ctx, id, from, to, event)
	return args.Error(0)
}

func (m *MockCashOutRepository) WithTx(tx pgx.Tx) cashout.Repository {
	m.Called(tx)
	return m
}

type MockOutboxRepository struct {
	mock.Mock
}

func (m *MockOutboxRepository) Create(ctx context.Context, message *outbox.Message) error {
	args := m.Called(ctx, message)
	return args.Error(0)
}

func (m *MockOutboxRepository) GetPending(ctx context.Context, limit int) ([]*outbox.Message, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*outbox.Message), args.Error(1)
}

func (m *MockOutboxRepository) UpdateStatus(ctx context.Context, id int64, status shared.OutboxStatus) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

func (m *MockOutboxRepository) IncrementAttempts(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockOutboxRepository) Delete(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockOutboxRepository) GetByPaymentID(ctx context.Context, paymentID string) (*outbox.Message, error) {
	args := m.Called(ctx, paymentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*outbox.Message), args.Error(1)
}

func (m *MockOutboxRepository) WithTx(tx pgx.Tx) outbox.Repository {
	m.Called(tx)
	return m
}

// MockTxRunner executes the transaction function directly with a nil tx
type MockTxRunner struct {
	mock.Mock
}

func (m *MockTxRunner) ExecuteTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	args := m.Called(ctx)
	if args.Error(0) != nil {
		return args.Error(0)
	}
	return fn(nil)
}

var _ invoice.Repository = (*MockInvoiceRepository)(nil)
var _ rapifac.Submitter = (*MockSubmitter)(nil)
var _ cashin.Repository = (*MockCashInRepository)(nil)
var _ cashout.Repository = (*MockCashOutRepository)(nil)
var _ outbox.Repository = (*MockOutboxRepository)(nil)
var _ TxRunner = (*MockTxRunner)(nil)
