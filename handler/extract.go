package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sagarkhandagre998/pdf-invoice-ai-tool/pkg/logger"
	"github.com/sagarkhandagre998/pdf-invoice-ai-tool/repository"
	"github.com/sagarkhandagre998/pdf-invoice-ai-tool/service"
)

type extractRequest struct {
	FileID  string `json:"fileId" binding:"required"`
	Model   string `json:"model" binding:"required"`
	FileURL string `json:"fileUrl"`
}

type ExtractHandler struct {
	extraction  *service.ExtractionService
	files       FileIndex
	store       service.FileStore
	usage       *service.UsageTracker
	httpClient  *http.Client
	extractText func(data []byte) (string, error)
}

func NewExtractHandler(extraction *service.ExtractionService, files FileIndex, store service.FileStore, usage *service.UsageTracker) *ExtractHandler {
	return &ExtractHandler{
		extraction:  extraction,
		files:       files,
		store:       store,
		usage:       usage,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		extractText: service.ExtractPDFText,
	}
}

// Extract runs the AI pipeline over a previously uploaded PDF: resolve the
// file, pull its text, and hand it to the named model backend.
func (h *ExtractHandler) Extract(c *gin.Context) {
	var req extractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "fileId and model are required"})
		return
	}

	if _, ok := h.extraction.Backend(req.Model); !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Unsupported model '%s'", req.Model)})
		return
	}

	data, err := h.readPDF(c, &req)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "File not found. Upload it first."})
			return
		}
		logger.Error(c.Request.Context(), "failed to read uploaded file", "file_id", req.FileID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read stored file"})
		return
	}

	text, err := h.extractText(data)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "File is not a readable PDF"})
		return
	}

	result, err := h.extraction.Extract(c.Request.Context(), req.Model, text)
	if err != nil {
		switch {
		case service.IsKind(err, service.KindQuotaExceeded):
			body := gin.H{
				"error":     "API quota exceeded",
				"message":   "The AI provider rejected the request because the daily free-tier quota is exhausted.",
				"quotaInfo": service.AdviseQuota(err),
			}
			// The pipeline still yields a placeholder record the client can
			// show alongside the quota advice.
			if result != nil {
				body["vendor"] = result.Vendor
				body["invoice"] = result.Invoice
			}
			c.JSON(http.StatusTooManyRequests, body)
		case service.IsKind(err, service.KindInvalidCredential):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Missing or invalid AI API credential"})
		default:
			var verr *service.ValidationError
			if errors.As(err, &verr) {
				c.JSON(http.StatusBadRequest, gin.H{
					"error":      "Extracted data failed validation",
					"violations": verr.Violations,
				})
				return
			}
			logger.Error(c.Request.Context(), "extraction failed", "file_id", req.FileID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Extraction failed"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"vendor":  result.Vendor,
		"invoice": result.Invoice,
	})
}

// readPDF resolves the upload through the file index; a fileUrl in the
// request is only used as a fallback when the index has no record.
func (h *ExtractHandler) readPDF(c *gin.Context, req *extractRequest) ([]byte, error) {
	record, err := h.files.GetByFileID(c.Request.Context(), req.FileID)
	if err == nil {
		rc, err := h.store.Open(c.Request.Context(), record)
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	if !errors.Is(err, repository.ErrNotFound) || req.FileURL == "" {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(c.Request.Context(), http.MethodGet, req.FileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid fileUrl: %w", err)
	}
	resp, err := h.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch fileUrl: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fileUrl returned status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// Quota reports the in-process daily usage counter alongside static
// free-tier guidance. The counter resets at UTC midnight and is not
// persisted across restarts.
func (h *ExtractHandler) Quota(c *gin.Context) {
	used, limit, remaining := h.usage.Usage()
	c.JSON(http.StatusOK, gin.H{
		"quota": gin.H{
			"used":      used,
			"limit":     limit,
			"remaining": remaining,
		},
		"info": gin.H{
			"freeTierLimit": fmt.Sprintf("%d requests per day", limit),
			"resetPeriod":   "daily (UTC)",
			"upgradeUrl":    service.UpgradeURL,
		},
	})
}
