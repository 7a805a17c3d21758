package service

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sagarkhandagre998/pdf-invoice-ai-tool/model"
)

// extractionShape describes the JSON document the model must return. It is
// embedded verbatim in every prompt.
const extractionShape = `{
  "vendor": {
    "name": "string (required)",
    "address": "string or omit",
    "taxId": "string or omit"
  },
  "invoice": {
    "number": "string (required)",
    "date": "YYYY-MM-DD (required)",
    "currency": "3-letter ISO 4217 code",
    "subtotal": number,
    "taxPercent": number,
    "total": number,
    "poNumber": "string or omit",
    "poDate": "YYYY-MM-DD or omit",
    "lineItems": [
      {"description": "string", "unitPrice": number, "quantity": number, "total": number}
    ]
  }
}`

// BuildExtractionPrompt composes the instruction string for the model: the
// target JSON shape, extraction rules, and the raw PDF text verbatim. Pure
// function of its input.
func BuildExtractionPrompt(pdfText string) string {
	rules := []string{
		"Return ONLY JSON matching the structure below. No prose, no markdown, no code fences.",
		"Use ISO-8601 dates (YYYY-MM-DD).",
		"All monetary and quantity fields must be JSON numbers, not strings.",
		"If a tax rate appears (e.g. 'GST 18%', 'VAT @ 20%', 'Tax: 7.5%'), parse the percentage into taxPercent.",
		"Purchase order fields may appear as 'PO Number', 'P.O. #', 'PO No.', 'Purchase Order' — map any of them to poNumber and poDate.",
		"Map currency symbols to ISO codes: " + currencyRule() + ". Default to " + model.DefaultCurrency + " when no currency is visible.",
		"Omit optional fields you cannot find; never invent values.",
	}

	var b strings.Builder
	b.WriteString("Extract structured invoice data from the document text below.\n\n")
	b.WriteString("Rules:\n")
	for _, r := range rules {
		b.WriteString("- ")
		b.WriteString(r)
		b.WriteString("\n")
	}
	b.WriteString("\nTarget JSON structure:\n")
	b.WriteString(extractionShape)
	b.WriteString("\n\nDocument text:\n")
	b.WriteString(pdfText)

	return b.String()
}

func currencyRule() string {
	pairs := make([]string, 0, len(model.CurrencySymbols))
	for symbol, code := range model.CurrencySymbols {
		pairs = append(pairs, fmt.Sprintf("%s=%s", symbol, code))
	}
	sort.Strings(pairs)
	return strings.Join(pairs, ", ")
}
