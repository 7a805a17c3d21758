package service

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sagarkhandagre998/pdf-invoice-ai-tool/config"
	"github.com/sagarkhandagre998/pdf-invoice-ai-tool/model"
)

// FileStore persists uploaded PDF bytes and hands them back by record.
type FileStore interface {
	// Save writes the upload and returns its index record.
	Save(ctx context.Context, fileID, fileName, contentType string, size int64, r io.Reader) (*model.FileRecord, error)
	// Open returns a reader over the stored bytes for the given record.
	Open(ctx context.Context, record *model.FileRecord) (io.ReadCloser, error)
	// Delete removes the stored bytes.
	Delete(ctx context.Context, record *model.FileRecord) error
}

// LocalStore keeps uploads in a directory, one file per upload, named by the
// opaque fileId plus the original extension.
type LocalStore struct {
	dir     string
	baseURL string
}

// NewLocalStore creates the upload directory if needed. baseURL is the public
// address the server is reachable at; stored files are served under
// baseURL/uploads/.
func NewLocalStore(cfg *config.StorageConfig, baseURL string) (*LocalStore, error) {
	if err := os.MkdirAll(cfg.LocalDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	return &LocalStore{dir: cfg.LocalDir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (s *LocalStore) Save(ctx context.Context, fileID, fileName, contentType string, size int64, r io.Reader) (*model.FileRecord, error) {
	storageKey := fileID + filepath.Ext(fileName)
	path := filepath.Join(s.dir, storageKey)

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	written, err := io.Copy(f, r)
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("failed to write file: %w", err)
	}

	return &model.FileRecord{
		FileID:      fileID,
		FileName:    fileName,
		Backend:     "local",
		StorageKey:  storageKey,
		ContentType: contentType,
		Size:        written,
		URL:         s.baseURL + "/uploads/" + storageKey,
	}, nil
}

func (s *LocalStore) Open(ctx context.Context, record *model.FileRecord) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(s.dir, record.StorageKey))
	if err != nil {
		return nil, fmt.Errorf("failed to open stored file: %w", err)
	}
	return f, nil
}

func (s *LocalStore) Delete(ctx context.Context, record *model.FileRecord) error {
	if err := os.Remove(filepath.Join(s.dir, record.StorageKey)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete stored file: %w", err)
	}
	return nil
}
