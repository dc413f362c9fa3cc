// Package mongo provides the MongoDB implementation of the invoice ledger.
// Each invoice document carries its full timeline history inline, so a
// single read returns the complete audit trail.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mercadoandino/settlement-engine/internal/domain/invoice"
	"github.com/mercadoandino/settlement-engine/internal/domain/shared"
)

const (
	// InvoiceCollectionName is the name of the invoice ledger collection
	InvoiceCollectionName = "invoices"
)

// InvoiceRepository implements the invoice.Repository interface for MongoDB
type InvoiceRepository struct {
	db     *mongo.Database
	logger *slog.Logger
}

// NewInvoiceRepository creates a new MongoDB invoice repository
func NewInvoiceRepository(logger *slog.Logger, db *mongo.Database) invoice.Repository {
	return &InvoiceRepository{
		db:     db,
		logger: logger,
	}
}

// EnsureIndexes creates the seller and status indexes the scoped queries
// rely on. Safe to call on every startup.
func (r *InvoiceRepository) EnsureIndexes(ctx context.Context) error {
	collection := r.db.Collection(InvoiceCollectionName)
	_, err := collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "seller_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "order_id", Value: 1}, {Key: "created_at", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create invoice indexes: %w", err)
	}
	return nil
}

// Create stores a new invoice after checking for duplicates.
// Returns ErrDuplicate if an invoice with the same id exists.
func (r *InvoiceRepository) Create(ctx context.Context, inv *invoice.Invoice) error {
	collection := r.db.Collection(InvoiceCollectionName)

	existing, err := r.GetByID(ctx, inv.ID)
	if err != nil && !errors.Is(err, invoice.ErrNotFound{}) {
		r.logger.Error("Failed to check for existing invoice", "invoice_id", inv.ID, "error", err)
		return fmt.Errorf("failed to check for existing invoice: %w", err)
	}
	if existing != nil {
		return invoice.ErrDuplicate{ID: inv.ID}
	}

	if _, err := collection.InsertOne(ctx, inv); err != nil {
		r.logger.Error("Failed to create invoice", "invoice_id", inv.ID, "error", err)
		return fmt.Errorf("failed to create invoice: %w", err)
	}

	return nil
}

// GetByID retrieves an invoice by its id.
// Returns ErrNotFound if no invoice exists.
func (r *InvoiceRepository) GetByID(ctx context.Context, id string) (*invoice.Invoice, error) {
	collection := r.db.Collection(InvoiceCollectionName)

	var inv invoice.Invoice
	err := collection.FindOne(ctx, bson.M{"_id": id}).Decode(&inv)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, invoice.ErrNotFound{ID: id}
		}
		r.logger.Error("Failed to get invoice", "invoice_id", id, "error", err)
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}

	return &inv, nil
}

// GetByOrderID retrieves the most recent invoice emitted for an order.
// Returns ErrNotFound if the order has no invoice yet.
func (r *InvoiceRepository) GetByOrderID(ctx context.Context, orderID string) (*invoice.Invoice, error) {
	collection := r.db.Collection(InvoiceCollectionName)

	opts := options.FindOne().SetSort(bson.M{"created_at": -1})
	var inv invoice.Invoice
	err := collection.FindOne(ctx, bson.M{"order_id": orderID}, opts).Decode(&inv)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, invoice.ErrNotFound{}
		}
		r.logger.Error("Failed to get invoice by order", "order_id", orderID, "error", err)
		return nil, fmt.Errorf("failed to get invoice by order: %w", err)
	}

	return &inv, nil
}

// buildFilter translates a list filter into a Mongo query. Seller scope and
// admin scope read the same collection; ScopeAll just omits the seller
// predicate.
func buildFilter(filter invoice.ListFilter) bson.M {
	query := bson.M{}
	if filter.SellerID != "" && filter.SellerID != invoice.ScopeAll {
		query["seller_id"] = filter.SellerID
	}
	if filter.Search != "" {
		re := primitive.Regex{Pattern: filter.Search, Options: "i"}
		query["$or"] = bson.A{
			bson.M{"customer_name": re},
			bson.M{"series": re},
			bson.M{"number": re},
			bson.M{"customer_tax_id": re},
			bson.M{"order_id": re},
		}
	}
	return query
}

// List retrieves invoices matching the filter, newest first
func (r *InvoiceRepository) List(ctx context.Context, filter invoice.ListFilter) ([]*invoice.Invoice, error) {
	collection := r.db.Collection(InvoiceCollectionName)

	opts := options.Find().SetSort(bson.M{"created_at": -1})
	if filter.Limit > 0 {
		opts = opts.SetLimit(int64(filter.Limit)).SetSkip(int64(filter.Offset))
	}

	cursor, err := collection.Find(ctx, buildFilter(filter), opts)
	if err != nil {
		r.logger.Error("Failed to list invoices", "seller_id", filter.SellerID, "error", err)
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	defer cursor.Close(ctx)

	var invoices []*invoice.Invoice
	if err := cursor.All(ctx, &invoices); err != nil {
		r.logger.Error("Failed to decode invoices", "seller_id", filter.SellerID, "error", err)
		return nil, fmt.Errorf("failed to decode invoices: %w", err)
	}

	return invoices, nil
}

// Count returns the number of invoices matching the filter
func (r *InvoiceRepository) Count(ctx context.Context, filter invoice.ListFilter) (int64, error) {
	collection := r.db.Collection(InvoiceCollectionName)

	count, err := collection.CountDocuments(ctx, buildFilter(filter))
	if err != nil {
		r.logger.Error("Failed to count invoices", "seller_id", filter.SellerID, "error", err)
		return 0, fmt.Errorf("failed to count invoices: %w", err)
	}

	return count, nil
}

// UpdateStatus applies a transition with compare-and-swap semantics: the
// document must still be in update.From or nothing happens. The new status
// and the appended history event land in one atomic UpdateOne, so the
// invariant that the last event's new status equals the current status can
// never be observed broken.
func (r *InvoiceRepository) UpdateStatus(ctx context.Context, id string, update invoice.StatusUpdate) error {
	collection := r.db.Collection(InvoiceCollectionName)

	filter := bson.M{"_id": id, "status": update.From}
	set := bson.M{"status": update.To}
	if update.RapifacResponse != nil {
		set["rapifac_response"] = update.RapifacResponse
	}
	change := bson.M{
		"$set":  set,
		"$push": bson.M{"history": update.Event},
	}

	result, err := collection.UpdateOne(ctx, filter, change)
	if err != nil {
		r.logger.Error("Failed to update invoice status",
			"invoice_id", id,
			"from", string(update.From),
			"to", string(update.To),
			"error", err)
		return fmt.Errorf("failed to update invoice status: %w", err)
	}

	if result.MatchedCount == 0 {
		// Distinguish a missing record from a lost race
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return shared.ConcurrentModificationError{RecordID: id}
	}

	return nil
}

// KPIs computes the read-side invoice projections on demand: count by
// status via an aggregation pipeline, accepted totals summed as decimals in
// process so no precision is lost.
func (r *InvoiceRepository) KPIs(ctx context.Context) (*invoice.KPIs, error) {
	collection := r.db.Collection(InvoiceCollectionName)

	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.M{"_id": "$status", "count": bson.M{"$sum": 1}}}},
	}
	cursor, err := collection.Aggregate(ctx, pipeline)
	if err != nil {
		r.logger.Error("Failed to aggregate invoice counts", "error", err)
		return nil, fmt.Errorf("failed to aggregate invoice counts: %w", err)
	}
	defer cursor.Close(ctx)

	var groups []struct {
		Status invoice.Status `bson:"_id"`
		Count  int64          `bson:"count"`
	}
	if err := cursor.All(ctx, &groups); err != nil {
		return nil, fmt.Errorf("failed to decode invoice counts: %w", err)
	}

	kpis := &invoice.KPIs{
		AcceptedTotal: decimal.Zero,
		CountByStatus: make(map[invoice.Status]int64, len(groups)),
	}
	var total int64
	for _, g := range groups {
		kpis.CountByStatus[g.Status] = g.Count
		total += g.Count
	}

	acceptedCursor, err := collection.Find(ctx,
		bson.M{"status": invoice.StatusAccepted},
		options.Find().SetProjection(bson.M{"amount": 1}),
	)
	if err != nil {
		r.logger.Error("Failed to load accepted invoice amounts", "error", err)
		return nil, fmt.Errorf("failed to load accepted invoice amounts: %w", err)
	}
	defer acceptedCursor.Close(ctx)

	var accepted []struct {
		Amount struct {
			Amount string `bson:"amount"`
		} `bson:"amount"`
	}
	if err := acceptedCursor.All(ctx, &accepted); err != nil {
		return nil, fmt.Errorf("failed to decode accepted invoice amounts: %w", err)
	}
	for _, a := range accepted {
		d, err := decimal.NewFromString(a.Amount.Amount)
		if err != nil {
			return nil, fmt.Errorf("corrupted amount on accepted invoice: %w", err)
		}
		kpis.AcceptedTotal = kpis.AcceptedTotal.Add(d)
	}

	if total > 0 {
		kpis.SuccessRate = float64(kpis.CountByStatus[invoice.StatusAccepted]) / float64(total)
	}

	return kpis, nil
}
