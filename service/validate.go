package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/sagarkhandagre998/pdf-invoice-ai-tool/model"
)

// buildExtractionSchema returns the JSON-Schema the sanitized model output
// must conform to. This is the one correctness gate between the model and the
// rest of the system.
func buildExtractionSchema() map[string]any {
	numberProp := map[string]any{"type": "number"}

	lineItem := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"description": map[string]any{"type": "string", "minLength": 1},
			"unitPrice":   numberProp,
			"quantity":    numberProp,
			"total":       numberProp,
		},
		"required": []string{"description", "unitPrice", "quantity", "total"},
	}

	vendor := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"name":    map[string]any{"type": "string", "minLength": 1},
			"address": map[string]any{"type": "string"},
			"taxId":   map[string]any{"type": "string"},
		},
		"required": []string{"name"},
	}

	invoice := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"number":     map[string]any{"type": "string", "minLength": 1},
			"date":       map[string]any{"type": "string", "minLength": 1},
			"currency":   map[string]any{"type": []string{"string", "null"}},
			"subtotal":   numberProp,
			"taxPercent": numberProp,
			"total":      numberProp,
			"poNumber":   map[string]any{"type": "string"},
			"poDate":     map[string]any{"type": "string"},
			"lineItems": map[string]any{
				"type":  "array",
				"items": lineItem,
			},
		},
		"required": []string{"number", "date"},
	}

	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"vendor":  vendor,
			"invoice": invoice,
		},
		"required": []string{"vendor", "invoice"},
	}
}

// ExtractionValidator validates sanitized model output against the invoice
// schema and coerces defaulted fields.
type ExtractionValidator struct {
	schema *jsonschema.Schema
}

// NewExtractionValidator compiles the extraction schema once at startup.
func NewExtractionValidator() (*ExtractionValidator, error) {
	b, err := json.Marshal(buildExtractionSchema())
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("invoice-extraction.json", bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("invoice-extraction.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	return &ExtractionValidator{schema: schema}, nil
}

// Validate checks the sanitized text against the schema. On success it
// returns the decoded result with currency defaulted; on failure a
// *ValidationError enumerating every violation.
func (v *ExtractionValidator) Validate(sanitized string) (*model.ExtractionResult, error) {
	var doc any
	if err := json.Unmarshal([]byte(sanitized), &doc); err != nil {
		return nil, &ValidationError{
			Violations: []string{"response is not valid JSON: " + err.Error()},
		}
	}

	if err := v.schema.Validate(doc); err != nil {
		var valErr *jsonschema.ValidationError
		if ok := asValidationError(err, &valErr); ok {
			return nil, &ValidationError{Violations: flattenViolations(valErr)}
		}
		return nil, &ValidationError{Violations: []string{err.Error()}}
	}

	var result model.ExtractionResult
	if err := json.Unmarshal([]byte(sanitized), &result); err != nil {
		return nil, &ValidationError{
			Violations: []string{"response does not decode into the invoice structure: " + err.Error()},
		}
	}

	if result.Invoice.Currency == "" {
		result.Invoice.Currency = model.DefaultCurrency
	}
	if result.Invoice.LineItems == nil {
		result.Invoice.LineItems = []model.LineItem{}
	}

	// When the model returns line items but omits the figures, compute them
	// server-side. Model-provided values are kept as-is.
	if len(result.Invoice.LineItems) > 0 && (result.Invoice.Subtotal == nil || result.Invoice.Total == nil) {
		subtotal, total := result.Invoice.ComputeTotals()
		if result.Invoice.Subtotal == nil {
			result.Invoice.Subtotal = &subtotal
		}
		if result.Invoice.Total == nil {
			result.Invoice.Total = &total
		}
	}

	return &result, nil
}

func asValidationError(err error, target **jsonschema.ValidationError) bool {
	ve, ok := err.(*jsonschema.ValidationError)
	if ok {
		*target = ve
	}
	return ok
}

// flattenViolations walks the validation error tree and collects the leaf
// causes, each prefixed with its instance location.
func flattenViolations(err *jsonschema.ValidationError) []string {
	var out []string
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			loc := e.InstanceLocation
			if loc == "" {
				loc = "/"
			}
			out = append(out, loc+": "+e.Message)
			return
		}
		for _, cause := range e.Causes {
			walk(cause)
		}
	}
	walk(err)
	sort.Strings(out)
	return out
}
