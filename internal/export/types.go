// Package export renders invoice entities to PDF for download.
package export

import "errors"

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
var ErrPDFDependencyMissing = errors.New("export pdf dependency missing")

// Invoice is the loosely-typed view of an invoice entity used for
// rendering. Organization documents store invoices as opaque JSON, so
// every field here is optional; the template tolerates blanks.
type Invoice struct {
	ID         string     `json:"id"`
	Number     string     `json:"invoiceNumber"`
	ClientName string     `json:"clientName"`
	Status     string     `json:"status"`
	IssuedAt   string     `json:"issuedAt"`
	DueAt      string     `json:"dueAt"`
	Currency   string     `json:"currency"`
	Total      float64    `json:"total"`
	Notes      string     `json:"notes"`
	LineItems  []LineItem `json:"lineItems"`
}

// LineItem is one billed row on an invoice.
type LineItem struct {
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	Rate        float64 `json:"rate"`
	Amount      float64 `json:"amount"`
}
