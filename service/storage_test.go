package service

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sagarkhandagre998/pdf-invoice-ai-tool/config"
)

func newLocalTestStore(t *testing.T) *LocalStore {
	t.Helper()
	store, err := NewLocalStore(&config.StorageConfig{LocalDir: t.TempDir()}, "http://localhost:8080")
	if err != nil {
		t.Fatalf("Failed to create local store: %v", err)
	}
	return store
}

func TestLocalStoreSaveAndOpen(t *testing.T) {
	store := newLocalTestStore(t)
	content := "%PDF-1.4 fake pdf bytes"

	record, err := store.Save(context.Background(), "file-123", "invoice.pdf", "application/pdf", int64(len(content)), strings.NewReader(content))
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if record.FileID != "file-123" {
		t.Errorf("Expected fileId file-123, got %s", record.FileID)
	}
	if record.StorageKey != "file-123.pdf" {
		t.Errorf("Expected storage key file-123.pdf, got %s", record.StorageKey)
	}
	if record.Backend != "local" {
		t.Errorf("Expected backend local, got %s", record.Backend)
	}
	if record.Size != int64(len(content)) {
		t.Errorf("Expected size %d, got %d", len(content), record.Size)
	}
	if record.URL != "http://localhost:8080/uploads/file-123.pdf" {
		t.Errorf("Expected public URL under /uploads, got %s", record.URL)
	}

	rc, err := store.Open(context.Background(), record)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer rc.Close()

	data, _ := io.ReadAll(rc)
	if string(data) != content {
		t.Errorf("Expected stored bytes round-tripped, got %q", string(data))
	}
}

func TestLocalStoreDelete(t *testing.T) {
	store := newLocalTestStore(t)

	record, err := store.Save(context.Background(), "file-del", "x.pdf", "application/pdf", 4, strings.NewReader("data"))
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if err := store.Delete(context.Background(), record); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if _, err := store.Open(context.Background(), record); err == nil {
		t.Error("Expected open to fail after delete")
	}

	// Deleting again is not an error.
	if err := store.Delete(context.Background(), record); err != nil {
		t.Errorf("Expected idempotent delete, got %v", err)
	}
}

func TestLocalStoreCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "uploads")

	_, err := NewLocalStore(&config.StorageConfig{LocalDir: dir}, "http://localhost:8080")
	if err != nil {
		t.Fatalf("Expected directory created, got %v", err)
	}

	if _, err := os.Stat(dir); err != nil {
		t.Errorf("Expected upload directory to exist: %v", err)
	}
}
