package repository

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sagarkhandagre998/pdf-invoice-ai-tool/model"
)

const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100
)

// Pagination describes one page of a list response.
type Pagination struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
	Pages int   `json:"pages"`
}

// InvoiceRepository performs CRUD and text search over persisted invoices.
type InvoiceRepository struct {
	col *mongo.Collection
}

func NewInvoiceRepository(db *mongo.Database) *InvoiceRepository {
	return &InvoiceRepository{col: db.Collection("invoices")}
}

// EnsureIndexes creates the unique fileId index. Called once at startup.
func (r *InvoiceRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "fileId", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create invoice indexes: %w", err)
	}
	return nil
}

func (r *InvoiceRepository) Create(ctx context.Context, inv *model.Invoice) error {
	inv.CreatedAt = time.Now().UTC()
	inv.UpdatedAt = nil

	if _, err := r.col.InsertOne(ctx, inv); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert invoice: %w", err)
	}
	return nil
}

func (r *InvoiceRepository) GetByFileID(ctx context.Context, fileID string) (*model.Invoice, error) {
	var inv model.Invoice
	err := r.col.FindOne(ctx, bson.M{"fileId": fileID}).Decode(&inv)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch invoice: %w", err)
	}
	return &inv, nil
}

// List returns one page of invoices, optionally filtered by a
// case-insensitive substring match on vendor name or invoice number, newest
// first.
func (r *InvoiceRepository) List(ctx context.Context, query string, page, limit int) ([]model.Invoice, Pagination, error) {
	page, limit = clampPaging(page, limit)

	filter := searchFilter(query)

	total, err := r.col.CountDocuments(ctx, filter)
	if err != nil {
		return nil, Pagination{}, fmt.Errorf("failed to count invoices: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetSkip(int64((page - 1) * limit)).
		SetLimit(int64(limit))

	cursor, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, Pagination{}, fmt.Errorf("failed to list invoices: %w", err)
	}
	defer cursor.Close(ctx)

	invoices := []model.Invoice{}
	if err := cursor.All(ctx, &invoices); err != nil {
		return nil, Pagination{}, fmt.Errorf("failed to decode invoices: %w", err)
	}

	return invoices, Pagination{
		Page:  page,
		Limit: limit,
		Total: total,
		Pages: pageCount(total, limit),
	}, nil
}

// Update replaces the mutable fields of an existing invoice and stamps
// updatedAt. The fileId itself never changes.
func (r *InvoiceRepository) Update(ctx context.Context, fileID string, inv *model.Invoice) (*model.Invoice, error) {
	now := time.Now().UTC()
	update := bson.M{"$set": bson.M{
		"fileName":  inv.FileName,
		"vendor":    inv.Vendor,
		"invoice":   inv.Invoice,
		"updatedAt": now,
	}}

	result := r.col.FindOneAndUpdate(ctx, bson.M{"fileId": fileID}, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After))

	var updated model.Invoice
	err := result.Decode(&updated)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update invoice: %w", err)
	}
	return &updated, nil
}

func (r *InvoiceRepository) Delete(ctx context.Context, fileID string) error {
	result, err := r.col.DeleteOne(ctx, bson.M{"fileId": fileID})
	if err != nil {
		return fmt.Errorf("failed to delete invoice: %w", err)
	}
	if result.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// searchFilter builds the Mongo filter for a text query. The query string is
// quoted so user input can't inject regex syntax.
func searchFilter(query string) bson.M {
	if query == "" {
		return bson.M{}
	}
	pattern := regexp.QuoteMeta(query)
	return bson.M{"$or": []bson.M{
		{"vendor.name": bson.M{"$regex": pattern, "$options": "i"}},
		{"invoice.number": bson.M{"$regex": pattern, "$options": "i"}},
	}}
}

func clampPaging(page, limit int) (int, int) {
	if page < 1 {
		page = DefaultPage
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return page, limit
}

func pageCount(total int64, limit int) int {
	if total == 0 {
		return 0
	}
	pages := total / int64(limit)
	if total%int64(limit) != 0 {
		pages++
	}
	return int(pages)
}
