package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultCurrency is the ISO 4217 code used whenever the extraction backend
// omits or nulls the currency field.
const DefaultCurrency = "USD"

// CurrencySymbols maps common currency symbols to ISO 4217 codes. The prompt
// builder embeds this mapping so the model normalizes symbols to codes.
var CurrencySymbols = map[string]string{
	"$": "USD",
	"€": "EUR",
	"£": "GBP",
	"₹": "INR",
	"¥": "JPY",
	"₩": "KRW",
	"R$": "BRL",
	"A$": "AUD",
	"C$": "CAD",
}

// Invoice is the persisted document: one per confirmed extraction.
type Invoice struct {
	FileID    string        `json:"fileId" bson:"fileId"`
	FileName  string        `json:"fileName" bson:"fileName"`
	Vendor    Vendor        `json:"vendor" bson:"vendor"`
	Invoice   InvoiceDetail `json:"invoice" bson:"invoice"`
	CreatedAt time.Time     `json:"createdAt" bson:"createdAt"`
	UpdatedAt *time.Time    `json:"updatedAt,omitempty" bson:"updatedAt,omitempty"`
}

// Vendor is the issuing party block embedded in an invoice.
type Vendor struct {
	Name    string `json:"name" bson:"name"`
	Address string `json:"address,omitempty" bson:"address,omitempty"`
	TaxID   string `json:"taxId,omitempty" bson:"taxId,omitempty"`
}

// InvoiceDetail holds the invoice header fields and line items.
type InvoiceDetail struct {
	Number     string     `json:"number" bson:"number"`
	Date       string     `json:"date" bson:"date"` // ISO date, YYYY-MM-DD
	Currency   string     `json:"currency,omitempty" bson:"currency,omitempty"`
	Subtotal   *float64   `json:"subtotal,omitempty" bson:"subtotal,omitempty"`
	TaxPercent *float64   `json:"taxPercent,omitempty" bson:"taxPercent,omitempty"`
	Total      *float64   `json:"total,omitempty" bson:"total,omitempty"`
	PONumber   string     `json:"poNumber,omitempty" bson:"poNumber,omitempty"`
	PODate     string     `json:"poDate,omitempty" bson:"poDate,omitempty"`
	LineItems  []LineItem `json:"lineItems" bson:"lineItems"`
}

// LineItem is a single row of an invoice. The API accepts any totals; no
// unitPrice*quantity invariant is enforced at the data layer.
type LineItem struct {
	Description string  `json:"description" bson:"description"`
	UnitPrice   float64 `json:"unitPrice" bson:"unitPrice"`
	Quantity    float64 `json:"quantity" bson:"quantity"`
	Total       float64 `json:"total" bson:"total"`
}

// ExtractionResult is the vendor/invoice pair returned by the extraction
// pipeline and cached by text hash.
type ExtractionResult struct {
	Vendor  Vendor        `json:"vendor"`
	Invoice InvoiceDetail `json:"invoice"`
}

// Clone returns a deep copy. A shallow struct copy still shares the line-item
// slice and the numeric pointers, so mutations through one copy would reach
// the other.
func (r *ExtractionResult) Clone() *ExtractionResult {
	out := *r
	out.Invoice = r.Invoice.clone()
	return &out
}

func (d InvoiceDetail) clone() InvoiceDetail {
	out := d
	out.Subtotal = copyFloat(d.Subtotal)
	out.TaxPercent = copyFloat(d.TaxPercent)
	out.Total = copyFloat(d.Total)
	if d.LineItems != nil {
		out.LineItems = append([]LineItem(nil), d.LineItems...)
	}
	return out
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// Validate checks the required structure for create/update requests and
// returns every violation found, not just the first.
func (inv *Invoice) Validate() []string {
	var violations []string

	if inv.FileID == "" {
		violations = append(violations, "fileId is required")
	}
	if inv.Vendor.Name == "" {
		violations = append(violations, "vendor.name is required")
	}
	if inv.Invoice.Number == "" {
		violations = append(violations, "invoice.number is required")
	}
	if inv.Invoice.Date == "" {
		violations = append(violations, "invoice.date is required")
	} else if _, err := time.Parse("2006-01-02", inv.Invoice.Date); err != nil {
		violations = append(violations, "invoice.date must be an ISO date (YYYY-MM-DD)")
	}
	for i, item := range inv.Invoice.LineItems {
		if item.Description == "" {
			violations = append(violations, fmt.Sprintf("invoice.lineItems[%d].description is required", i))
		}
	}

	return violations
}

// Normalize fills in defaulted fields before persistence. Subtotal and total
// are computed from the line items when the client omits them; values the
// client sent are kept untouched.
func (inv *Invoice) Normalize() {
	if inv.Invoice.Currency == "" {
		inv.Invoice.Currency = DefaultCurrency
	}
	if inv.Invoice.LineItems == nil {
		inv.Invoice.LineItems = []LineItem{}
	}
	if len(inv.Invoice.LineItems) > 0 && (inv.Invoice.Subtotal == nil || inv.Invoice.Total == nil) {
		subtotal, total := inv.Invoice.ComputeTotals()
		if inv.Invoice.Subtotal == nil {
			inv.Invoice.Subtotal = &subtotal
		}
		if inv.Invoice.Total == nil {
			inv.Invoice.Total = &total
		}
	}
}

// ComputeTotals recomputes subtotal and total from the line items and tax
// percent using decimal arithmetic. It is a convenience for callers that want
// server-side figures; stored documents keep whatever the client sent.
func (d *InvoiceDetail) ComputeTotals() (subtotal, total float64) {
	sub := decimal.Zero
	for _, item := range d.LineItems {
		sub = sub.Add(decimal.NewFromFloat(item.Total))
	}

	tax := decimal.Zero
	if d.TaxPercent != nil {
		tax = sub.Mul(decimal.NewFromFloat(*d.TaxPercent)).Div(decimal.NewFromInt(100))
	}

	subtotal, _ = sub.Round(2).Float64()
	total, _ = sub.Add(tax).Round(2).Float64()
	return subtotal, total
}
