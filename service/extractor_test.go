package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sagarkhandagre998/pdf-invoice-ai-tool/model"
)

// stubBackend counts upstream calls and returns a scripted response.
type stubBackend struct {
	mu       sync.Mutex
	calls    int
	response string
	err      error
}

func (s *stubBackend) Name() string { return "gemini" }

func (s *stubBackend) GenerateContent(ctx context.Context, prompt string) (string, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return s.response, s.err
}

func (s *stubBackend) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

const validResponse = `{
	"vendor": {"name": "Acme Corp"},
	"invoice": {
		"number": "INV-42",
		"date": "2024-03-15",
		"currency": "USD",
		"lineItems": [{"description": "Widget", "unitPrice": 5, "quantity": 2, "total": 10}]
	}
}`

func newTestService(t *testing.T, backend ModelBackend) *ExtractionService {
	t.Helper()
	svc, _ := newTestServiceWithUsage(t, backend)
	return svc
}

func newTestServiceWithUsage(t *testing.T, backend ModelBackend) (*ExtractionService, *UsageTracker) {
	t.Helper()
	usage := NewUsageTracker(50)
	svc, err := NewExtractionService(newTestCache(100, 60), usage, backend)
	if err != nil {
		t.Fatalf("Failed to build extraction service: %v", err)
	}
	return svc, usage
}

func TestExtractSuccess(t *testing.T) {
	backend := &stubBackend{response: validResponse}
	svc := newTestService(t, backend)

	result, err := svc.Extract(context.Background(), "gemini", "pdf text here")
	if err != nil {
		t.Fatalf("Expected success, got %v", err)
	}
	if result.Vendor.Name != "Acme Corp" {
		t.Errorf("Expected vendor Acme Corp, got %s", result.Vendor.Name)
	}
	if backend.callCount() != 1 {
		t.Errorf("Expected 1 upstream call, got %d", backend.callCount())
	}
}

func TestExtractSecondCallServedFromCache(t *testing.T) {
	// Property: identical text hashes return the cached result with no new
	// upstream call.
	backend := &stubBackend{response: validResponse}
	svc := newTestService(t, backend)

	first, err := svc.Extract(context.Background(), "gemini", "same pdf text")
	if err != nil {
		t.Fatalf("First extract failed: %v", err)
	}

	second, err := svc.Extract(context.Background(), "gemini", "same pdf text")
	if err != nil {
		t.Fatalf("Second extract failed: %v", err)
	}

	if backend.callCount() != 1 {
		t.Errorf("Expected exactly 1 upstream call, got %d", backend.callCount())
	}
	if first.Invoice.Number != second.Invoice.Number || first.Vendor.Name != second.Vendor.Name {
		t.Error("Expected identical results from cache")
	}
}

func TestExtractCachedResultIsolatedFromCallerMutation(t *testing.T) {
	backend := &stubBackend{response: validResponse}
	svc := newTestService(t, backend)

	first, err := svc.Extract(context.Background(), "gemini", "mutation test text")
	if err != nil {
		t.Fatalf("First extract failed: %v", err)
	}
	first.Invoice.LineItems[0].Description = "changed by caller"
	first.Vendor.Name = "changed by caller"

	second, err := svc.Extract(context.Background(), "gemini", "mutation test text")
	if err != nil {
		t.Fatalf("Second extract failed: %v", err)
	}
	if second.Invoice.LineItems[0].Description != "Widget" {
		t.Errorf("Expected cached line item isolated from caller mutation, got %q", second.Invoice.LineItems[0].Description)
	}
	if second.Vendor.Name != "Acme Corp" {
		t.Errorf("Expected cached vendor isolated from caller mutation, got %q", second.Vendor.Name)
	}
}

// blockingBackend holds every call open until released, so a test can pile up
// concurrent extractions against one in-flight upstream call.
type blockingBackend struct {
	mu      sync.Mutex
	calls   int
	started chan struct{}
	release chan struct{}
}

func (b *blockingBackend) Name() string { return "gemini" }

func (b *blockingBackend) GenerateContent(ctx context.Context, prompt string) (string, error) {
	b.mu.Lock()
	b.calls++
	b.mu.Unlock()

	select {
	case b.started <- struct{}{}:
	default:
	}
	<-b.release
	return validResponse, nil
}

func (b *blockingBackend) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

func TestExtractConcurrentIdenticalTextsShareOneCall(t *testing.T) {
	backend := &blockingBackend{
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	svc := newTestService(t, backend)

	const n = 5
	results := make([]*model.ExtractionResult, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.Extract(context.Background(), "gemini", "identical concurrent text")
		}(i)
	}

	// Wait for the first call to reach the backend, give the rest a moment
	// to join the in-flight group, then let the upstream call finish.
	<-backend.started
	time.Sleep(50 * time.Millisecond)
	close(backend.release)
	wg.Wait()

	if got := backend.callCount(); got != 1 {
		t.Errorf("Expected 1 upstream call for %d concurrent identical extractions, got %d", n, got)
	}
	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("Extraction %d failed: %v", i, errs[i])
		}
		if results[i].Vendor.Name != "Acme Corp" {
			t.Errorf("Extraction %d: expected shared result, got vendor %q", i, results[i].Vendor.Name)
		}
	}
}

func TestExtractDistinctTextsCallUpstream(t *testing.T) {
	backend := &stubBackend{response: validResponse}
	svc := newTestService(t, backend)

	svc.Extract(context.Background(), "gemini", "text one")
	svc.Extract(context.Background(), "gemini", "text two")

	if backend.callCount() != 2 {
		t.Errorf("Expected 2 upstream calls for distinct texts, got %d", backend.callCount())
	}
}

func TestExtractQuotaExceededReturnsFallback(t *testing.T) {
	backend := &stubBackend{
		err: NewExtractionError(KindQuotaExceeded, "429 Too Many Requests from Gemini API", nil),
	}
	svc := newTestService(t, backend)

	result, err := svc.Extract(context.Background(), "gemini", "some text")

	if !IsKind(err, KindQuotaExceeded) {
		t.Fatalf("Expected quota-exceeded error, got %v", err)
	}
	if result == nil {
		t.Fatal("Expected fallback record alongside the error")
	}
	if result.Invoice.Number != FallbackInvoiceNumber {
		t.Errorf("Expected fallback invoice number %s, got %s", FallbackInvoiceNumber, result.Invoice.Number)
	}
	if !strings.Contains(result.Vendor.Name, "(Quota Exceeded)") {
		t.Errorf("Expected vendor name flagged, got %s", result.Vendor.Name)
	}
	if len(result.Invoice.LineItems) != 1 {
		t.Errorf("Expected one explanatory line item, got %d", len(result.Invoice.LineItems))
	}
}

func TestExtractQuotaFallbackIsCached(t *testing.T) {
	backend := &stubBackend{
		err: NewExtractionError(KindQuotaExceeded, "429 Too Many Requests", nil),
	}
	svc := newTestService(t, backend)

	svc.Extract(context.Background(), "gemini", "poisoned text")
	result, err := svc.Extract(context.Background(), "gemini", "poisoned text")

	if err != nil {
		t.Fatalf("Expected cache hit without error, got %v", err)
	}
	if result.Invoice.Number != FallbackInvoiceNumber {
		t.Errorf("Expected cached fallback record, got %s", result.Invoice.Number)
	}
	if backend.callCount() != 1 {
		t.Errorf("Expected fallback to be served from cache, upstream called %d times", backend.callCount())
	}
}

func TestExtractMissingCredentialNotCached(t *testing.T) {
	backend := &stubBackend{
		err: NewExtractionError(KindInvalidCredential, "GEMINI_API_KEY is not configured", nil),
	}
	svc := newTestService(t, backend)

	_, err := svc.Extract(context.Background(), "gemini", "text")
	if !IsKind(err, KindInvalidCredential) {
		t.Fatalf("Expected credential error, got %v", err)
	}

	_, err = svc.Extract(context.Background(), "gemini", "text")
	if !IsKind(err, KindInvalidCredential) {
		t.Fatalf("Expected credential error again, got %v", err)
	}

	if backend.callCount() != 2 {
		t.Errorf("Expected credential failures never cached, got %d upstream calls", backend.callCount())
	}
}

func TestExtractUsageCounting(t *testing.T) {
	backend := &stubBackend{response: validResponse}
	svc, usage := newTestServiceWithUsage(t, backend)

	svc.Extract(context.Background(), "gemini", "counted text")
	if used, _, _ := usage.Usage(); used != 1 {
		t.Errorf("Expected 1 recorded call after an upstream extraction, got %d", used)
	}

	// A cache hit must not count.
	svc.Extract(context.Background(), "gemini", "counted text")
	if used, _, _ := usage.Usage(); used != 1 {
		t.Errorf("Expected cache hit not to record usage, got %d", used)
	}
}

func TestExtractCredentialFailureNotCounted(t *testing.T) {
	backend := &stubBackend{
		err: NewExtractionError(KindInvalidCredential, "GEMINI_API_KEY is not configured", nil),
	}
	svc, usage := newTestServiceWithUsage(t, backend)

	svc.Extract(context.Background(), "gemini", "no key text")

	if used, _, _ := usage.Usage(); used != 0 {
		t.Errorf("Expected credential failure not to record usage, got %d", used)
	}
}

func TestExtractQuotaFailureIsCounted(t *testing.T) {
	backend := &stubBackend{
		err: NewExtractionError(KindQuotaExceeded, "429 Too Many Requests", nil),
	}
	svc, usage := newTestServiceWithUsage(t, backend)

	svc.Extract(context.Background(), "gemini", "quota counted text")

	if used, _, _ := usage.Usage(); used != 1 {
		t.Errorf("Expected a 429'd call to record usage, got %d", used)
	}
}

func TestExtractValidationFailureIdentifiesField(t *testing.T) {
	// Property: missing vendor.name fails with a violation naming the field.
	backend := &stubBackend{
		response: `{"vendor": {}, "invoice": {"number": "INV-1", "date": "2024-03-15"}}`,
	}
	svc := newTestService(t, backend)

	_, err := svc.Extract(context.Background(), "gemini", "text")

	var valErr *ValidationError
	if !errors.As(err, &valErr) {
		t.Fatalf("Expected *ValidationError, got %T: %v", err, err)
	}
	found := false
	for _, violation := range valErr.Violations {
		if strings.Contains(violation, "name") {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected violation naming vendor.name, got %v", valErr.Violations)
	}
}

func TestExtractValidationFailureNotCached(t *testing.T) {
	backend := &stubBackend{response: `{"vendor": {}, "invoice": {}}`}
	svc := newTestService(t, backend)

	svc.Extract(context.Background(), "gemini", "text")
	svc.Extract(context.Background(), "gemini", "text")

	if backend.callCount() != 2 {
		t.Errorf("Expected validation failures never cached, got %d upstream calls", backend.callCount())
	}
}

func TestExtractOtherErrorsWrapped(t *testing.T) {
	cause := errors.New("connection reset by peer")
	backend := &stubBackend{err: NewExtractionError(KindUpstreamUnavailable, "failed to reach Gemini API", cause)}
	svc := newTestService(t, backend)

	_, err := svc.Extract(context.Background(), "gemini", "text")
	if err == nil {
		t.Fatal("Expected error")
	}
	if !errors.Is(err, cause) {
		t.Error("Expected original error preserved in the chain")
	}
	if !strings.Contains(err.Error(), "connection reset by peer") {
		t.Errorf("Expected original message attached, got %q", err.Error())
	}
}

func TestExtractUnknownBackend(t *testing.T) {
	svc := newTestService(t, &stubBackend{response: validResponse})

	_, err := svc.Extract(context.Background(), "gpt-9", "text")
	if err == nil {
		t.Fatal("Expected error for unsupported model")
	}
	if !strings.Contains(err.Error(), "gpt-9") {
		t.Errorf("Expected error naming the model, got %q", err.Error())
	}
}

func TestExtractEmptyResponseBecomesDefaultDocument(t *testing.T) {
	backend := &stubBackend{response: "```json\n{}\n```"}
	svc := newTestService(t, backend)

	result, err := svc.Extract(context.Background(), "gemini", "text with nothing extractable")
	if err != nil {
		t.Fatalf("Expected default document to validate, got %v", err)
	}
	if result.Vendor.Name != "Unknown Vendor" {
		t.Errorf("Expected Unknown Vendor, got %s", result.Vendor.Name)
	}
	if len(result.Invoice.LineItems) != 0 {
		t.Errorf("Expected empty line items, got %d", len(result.Invoice.LineItems))
	}
}
