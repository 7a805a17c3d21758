package repository

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sagarkhandagre998/pdf-invoice-ai-tool/model"
)

// FileRepository is the fileId → storage location index. Every upload gets a
// record here so retrieval never scans a directory and never depends on the
// client re-presenting a URL.
type FileRepository struct {
	col *mongo.Collection
}

func NewFileRepository(db *mongo.Database) *FileRepository {
	return &FileRepository{col: db.Collection("files")}
}

func (r *FileRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "fileId", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create file indexes: %w", err)
	}
	return nil
}

func (r *FileRepository) Create(ctx context.Context, record *model.FileRecord) error {
	record.CreatedAt = time.Now().UTC()

	if _, err := r.col.InsertOne(ctx, record); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert file record: %w", err)
	}
	return nil
}

func (r *FileRepository) GetByFileID(ctx context.Context, fileID string) (*model.FileRecord, error) {
	var record model.FileRecord
	err := r.col.FindOne(ctx, bson.M{"fileId": fileID}).Decode(&record)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch file record: %w", err)
	}
	return &record, nil
}

func (r *FileRepository) Delete(ctx context.Context, fileID string) error {
	if _, err := r.col.DeleteOne(ctx, bson.M{"fileId": fileID}); err != nil {
		return fmt.Errorf("failed to delete file record: %w", err)
	}
	return nil
}
