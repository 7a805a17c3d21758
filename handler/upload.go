package handler

import (
	"context"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/sagarkhandagre998/pdf-invoice-ai-tool/model"
	"github.com/sagarkhandagre998/pdf-invoice-ai-tool/pkg/logger"
	"github.com/sagarkhandagre998/pdf-invoice-ai-tool/service"
)

// FileIndex is the persisted fileId → storage location mapping.
type FileIndex interface {
	Create(ctx context.Context, record *model.FileRecord) error
	GetByFileID(ctx context.Context, fileID string) (*model.FileRecord, error)
	Delete(ctx context.Context, fileID string) error
}

type UploadHandler struct {
	store    service.FileStore
	files    FileIndex
	maxBytes int64
}

func NewUploadHandler(store service.FileStore, files FileIndex, maxBytes int64) *UploadHandler {
	return &UploadHandler{
		store:    store,
		files:    files,
		maxBytes: maxBytes,
	}
}

// Upload accepts a single PDF in the multipart field "pdf", assigns it an
// opaque identifier, persists the bytes, and writes the file index record.
// Nothing is persisted unless the type and size checks pass.
func (h *UploadHandler) Upload(c *gin.Context) {
	file, header, err := c.Request.FormFile("pdf")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file uploaded. Use the multipart field 'pdf'."})
		return
	}
	defer file.Close()

	if header.Size > h.maxBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "File exceeds the 25 MiB upload limit"})
		return
	}

	if ext := strings.ToLower(filepath.Ext(header.Filename)); ext != ".pdf" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Only PDF files are allowed"})
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		// Sniff the first bytes when the client didn't declare a usable type.
		buffer := make([]byte, 512)
		n, err := file.Read(buffer)
		if err != nil && err != io.EOF {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read file"})
			return
		}
		file.Seek(0, io.SeekStart)

		detected := http.DetectContentType(buffer[:n])
		if !strings.Contains(detected, "pdf") {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Only PDF files are allowed"})
			return
		}
		contentType = "application/pdf"
	} else if !strings.Contains(contentType, "pdf") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Only PDF files are allowed"})
		return
	}

	fileID := uuid.New().String()

	record, err := h.store.Save(c.Request.Context(), fileID, header.Filename, contentType, header.Size, file)
	if err != nil {
		logger.Error(c.Request.Context(), "failed to persist upload", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store file"})
		return
	}

	if err := h.files.Create(c.Request.Context(), record); err != nil {
		// Keep storage and index consistent: drop the orphaned bytes.
		h.store.Delete(c.Request.Context(), record)
		logger.Error(c.Request.Context(), "failed to index upload", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store file"})
		return
	}

	logger.Info(c.Request.Context(), "file uploaded",
		"file_id", fileID,
		"file_name", header.Filename,
		"size", record.Size,
		"backend", record.Backend,
	)

	response := gin.H{
		"fileId":   record.FileID,
		"fileName": record.FileName,
	}
	if record.URL != "" {
		response["fileUrl"] = record.URL
	}
	c.JSON(http.StatusOK, response)
}
