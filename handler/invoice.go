package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/sagarkhandagre998/pdf-invoice-ai-tool/model"
	"github.com/sagarkhandagre998/pdf-invoice-ai-tool/pkg/logger"
	"github.com/sagarkhandagre998/pdf-invoice-ai-tool/repository"
)

// InvoiceStore is the persistence surface the invoice endpoints need.
type InvoiceStore interface {
	Create(ctx context.Context, inv *model.Invoice) error
	GetByFileID(ctx context.Context, fileID string) (*model.Invoice, error)
	List(ctx context.Context, query string, page, limit int) ([]model.Invoice, repository.Pagination, error)
	Update(ctx context.Context, fileID string, inv *model.Invoice) (*model.Invoice, error)
	Delete(ctx context.Context, fileID string) error
}

type InvoiceHandler struct {
	invoices InvoiceStore
}

func NewInvoiceHandler(invoices InvoiceStore) *InvoiceHandler {
	return &InvoiceHandler{invoices: invoices}
}

// List returns invoices newest first, optionally filtered by a search term
// matched against vendor name and invoice number.
func (h *InvoiceHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	query := c.Query("q")

	invoices, pagination, err := h.invoices.List(c.Request.Context(), query, page, limit)
	if err != nil {
		logger.Error(c.Request.Context(), "failed to list invoices", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list invoices"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"invoices":   invoices,
		"pagination": pagination,
	})
}

func (h *InvoiceHandler) Get(c *gin.Context) {
	inv, err := h.invoices.GetByFileID(c.Request.Context(), c.Param("fileId"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Invoice not found"})
			return
		}
		logger.Error(c.Request.Context(), "failed to get invoice", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get invoice"})
		return
	}
	c.JSON(http.StatusOK, inv)
}

func (h *InvoiceHandler) Create(c *gin.Context) {
	var inv model.Invoice
	if err := c.ShouldBindJSON(&inv); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid invoice payload"})
		return
	}

	if violations := inv.Validate(); len(violations) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":      "Invoice failed validation",
			"violations": violations,
		})
		return
	}
	inv.Normalize()

	if err := h.invoices.Create(c.Request.Context(), &inv); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			c.JSON(http.StatusConflict, gin.H{"error": "An invoice for this fileId already exists"})
			return
		}
		logger.Error(c.Request.Context(), "failed to create invoice", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save invoice"})
		return
	}

	logger.Info(c.Request.Context(), "invoice created", "file_id", inv.FileID)
	c.JSON(http.StatusCreated, inv)
}

// Update replaces the provided blocks of an existing invoice. Omitted blocks
// keep their stored values, so a client can send only the vendor edits.
func (h *InvoiceHandler) Update(c *gin.Context) {
	fileID := c.Param("fileId")

	existing, err := h.invoices.GetByFileID(c.Request.Context(), fileID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Invoice not found"})
			return
		}
		logger.Error(c.Request.Context(), "failed to get invoice", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update invoice"})
		return
	}

	var patch struct {
		FileName *string              `json:"fileName"`
		Vendor   *model.Vendor        `json:"vendor"`
		Invoice  *model.InvoiceDetail `json:"invoice"`
	}
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid invoice payload"})
		return
	}

	if patch.FileName != nil {
		existing.FileName = *patch.FileName
	}
	if patch.Vendor != nil {
		existing.Vendor = *patch.Vendor
	}
	if patch.Invoice != nil {
		existing.Invoice = *patch.Invoice
	}

	if violations := existing.Validate(); len(violations) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":      "Invoice failed validation",
			"violations": violations,
		})
		return
	}
	existing.Normalize()

	updated, err := h.invoices.Update(c.Request.Context(), fileID, existing)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Invoice not found"})
			return
		}
		logger.Error(c.Request.Context(), "failed to update invoice", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update invoice"})
		return
	}

	logger.Info(c.Request.Context(), "invoice updated", "file_id", fileID)
	c.JSON(http.StatusOK, updated)
}

func (h *InvoiceHandler) Delete(c *gin.Context) {
	fileID := c.Param("fileId")

	if err := h.invoices.Delete(c.Request.Context(), fileID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Invoice not found"})
			return
		}
		logger.Error(c.Request.Context(), "failed to delete invoice", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete invoice"})
		return
	}

	logger.Info(c.Request.Context(), "invoice deleted", "file_id", fileID)
	c.JSON(http.StatusOK, gin.H{"message": "Invoice deleted"})
}
