package export

import (
	"encoding/json"
	"fmt"
	"time"

	"turnhub/api/internal/orgdoc"
)

// Service renders invoice entities to downloadable PDFs.
type Service struct{}

// NewService creates a new export service
func NewService() *Service {
	return &Service{}
}

// ExportInvoice renders the given invoice entity as a PDF. orgName is
// only used for display on the rendered page.
func (s *Service) ExportInvoice(entity orgdoc.Entity, orgName string) (*Result, error) {
	invoice, err := parseInvoice(entity)
	if err != nil {
		return nil, err
	}

	html, err := RenderInvoiceHTML(TemplateData{
		Invoice:  invoice,
		OrgName:  orgName,
		Exported: time.Now().Format("Jan 2, 2006"),
	})
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	title := "invoice"
	if invoice.Number != "" {
		title = "invoice-" + invoice.Number
	} else if invoice.ID != "" {
		title = "invoice-" + invoice.ID
	}
	return exportPDF(html, title)
}

// parseInvoice decodes the fields the template knows about. Unknown
// fields are ignored; a structurally invalid entity is an error.
func parseInvoice(entity orgdoc.Entity) (Invoice, error) {
	var invoice Invoice
	if err := json.Unmarshal(entity, &invoice); err != nil {
		return Invoice{}, fmt.Errorf("decode invoice entity: %w", err)
	}
	return invoice, nil
}
