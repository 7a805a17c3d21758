package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/sagarkhandagre998/pdf-invoice-ai-tool/model"
	"github.com/sagarkhandagre998/pdf-invoice-ai-tool/pkg/logger"
)

// FallbackInvoiceNumber marks a record substituted on quota exhaustion.
const FallbackInvoiceNumber = "INV-QUOTA-EXCEEDED"

// ExtractionService sequences prompt building, the model call, response
// sanitization, and schema validation. Results are memoized by text hash;
// concurrent extractions of identical text share a single upstream call.
type ExtractionService struct {
	backends  map[string]ModelBackend
	cache     *ExtractionCache
	validator *ExtractionValidator
	usage     *UsageTracker
	group     singleflight.Group
}

func NewExtractionService(cache *ExtractionCache, usage *UsageTracker, backends ...ModelBackend) (*ExtractionService, error) {
	validator, err := NewExtractionValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to build extraction validator: %w", err)
	}

	byName := make(map[string]ModelBackend, len(backends))
	for _, b := range backends {
		byName[b.Name()] = b
	}

	return &ExtractionService{
		backends:  byName,
		cache:     cache,
		validator: validator,
		usage:     usage,
	}, nil
}

// Backend returns the named backend, or false if it is not registered.
func (s *ExtractionService) Backend(name string) (ModelBackend, bool) {
	b, ok := s.backends[name]
	return b, ok
}

// Extract runs the pipeline for pdfText against the named backend.
//
// On quota exhaustion it returns the fixed fallback record together with the
// tagged quota error so the HTTP layer can respond 429 while still handing
// the client a usable document. The fallback is cached under the same text
// hash; the cache TTL bounds how long it shadows a real extraction.
// Credential and validation failures are never cached.
func (s *ExtractionService) Extract(ctx context.Context, backendName, pdfText string) (*model.ExtractionResult, error) {
	backend, ok := s.backends[backendName]
	if !ok {
		return nil, fmt.Errorf("unsupported extraction model %q", backendName)
	}

	key := HashText(pdfText)
	if cached := s.cache.Get(key); cached != nil {
		logger.Debug(ctx, "extraction cache hit", "text_hash", key)
		return cached, nil
	}

	// Identical texts arriving concurrently share one upstream call.
	type outcome struct {
		result *model.ExtractionResult
		err    error
	}
	v, _, _ := s.group.Do(strconv.FormatUint(key, 16), func() (any, error) {
		result, err := s.extractUncached(ctx, backend, key, pdfText)
		return outcome{result: result, err: err}, nil
	})

	out := v.(outcome)
	return out.result, out.err
}

func (s *ExtractionService) extractUncached(ctx context.Context, backend ModelBackend, key uint64, pdfText string) (*model.ExtractionResult, error) {
	prompt := BuildExtractionPrompt(pdfText)

	raw, err := backend.GenerateContent(ctx, prompt)
	// Credential failures don't consume the daily quota: a missing key fails
	// before any network call, and a rejected key isn't billed upstream.
	if !IsKind(err, KindInvalidCredential) {
		s.usage.Record()
	}
	if err != nil {
		switch KindOf(err) {
		case KindQuotaExceeded:
			logger.Warn(ctx, "model quota exceeded, substituting fallback record",
				"backend", backend.Name(),
				"text_hash", key,
			)
			fallback := quotaFallbackRecord(time.Now())
			s.cache.Put(key, fallback)
			return fallback, err
		case KindInvalidCredential:
			return nil, err
		default:
			return nil, fmt.Errorf("extraction backend %s failed: %w", backend.Name(), err)
		}
	}

	sanitized := SanitizeModelResponse(raw, time.Now())

	result, err := s.validator.Validate(sanitized)
	if err != nil {
		logger.Warn(ctx, "model response failed validation",
			"backend", backend.Name(),
			"error", err,
		)
		return nil, err
	}

	s.cache.Put(key, result)
	logger.Info(ctx, "extraction completed",
		"backend", backend.Name(),
		"vendor", result.Vendor.Name,
		"invoice_number", result.Invoice.Number,
	)
	return result, nil
}

// quotaFallbackRecord is the fixed placeholder document substituted when the
// extraction backend cannot be reached due to quota exhaustion.
func quotaFallbackRecord(now time.Time) *model.ExtractionResult {
	taxPercent := 0.0
	return &model.ExtractionResult{
		Vendor: model.Vendor{
			Name: "Unknown Vendor (Quota Exceeded)",
		},
		Invoice: model.InvoiceDetail{
			Number:     FallbackInvoiceNumber,
			Date:       now.Format("2006-01-02"),
			Currency:   model.DefaultCurrency,
			TaxPercent: &taxPercent,
			LineItems: []model.LineItem{
				{
					Description: "Extraction unavailable: the AI quota was exceeded. Retry later or upgrade the plan.",
					UnitPrice:   0,
					Quantity:    0,
					Total:       0,
				},
			},
		},
	}
}
