package service

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/sagarkhandagre998/pdf-invoice-ai-tool/model"
)

// defaultDocument is the canned extraction substituted when the model returns
// nothing usable.
func defaultDocument(now time.Time) string {
	doc := map[string]any{
		"vendor": map[string]any{
			"name": "Unknown Vendor",
		},
		"invoice": map[string]any{
			"number":     "Unknown",
			"date":       now.Format("2006-01-02"),
			"currency":   model.DefaultCurrency,
			"taxPercent": 0,
			"lineItems":  []any{},
		},
	}
	out, _ := json.Marshal(doc)
	return string(out)
}

// SanitizeModelResponse normalizes a raw model reply into a string expected
// (but not guaranteed) to be valid JSON:
//  1. strip markdown code fences
//  2. trim whitespace
//  3. empty or "{}" replies become the canned default document
//  4. a parseable reply with an explicitly null invoice.currency gets the
//     default currency code and is re-serialized
//  5. an unparseable reply is returned trimmed, for the validator to reject
func SanitizeModelResponse(raw string, now time.Time) string {
	text := strings.ReplaceAll(raw, "```json", "")
	text = strings.ReplaceAll(text, "```", "")
	text = strings.TrimSpace(text)

	if text == "" || text == "{}" {
		return defaultDocument(now)
	}

	var doc map[string]any
	if err := json.Unmarshal([]byte(text), &doc); err != nil {
		return text
	}

	if invoice, ok := doc["invoice"].(map[string]any); ok {
		if cur, present := invoice["currency"]; present && cur == nil {
			invoice["currency"] = model.DefaultCurrency
		}
	}

	out, err := json.Marshal(doc)
	if err != nil {
		return text
	}
	return string(out)
}
