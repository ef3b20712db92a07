package export

import (
	"bytes"
	"fmt"
	"html/template"
)

var invoiceTemplate = template.Must(template.New("invoice").Funcs(template.FuncMap{
	"money": func(amount float64) string {
		return fmt.Sprintf("%.2f", amount)
	},
}).Parse(invoiceTemplateHTML))

// TemplateData holds data for invoice template rendering
type TemplateData struct {
	Invoice  Invoice
	OrgName  string
	Exported string
}

// RenderInvoiceHTML renders the invoice template with provided data
func RenderInvoiceHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := invoiceTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const invoiceTemplateHTML = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>Invoice {{.Invoice.Number}}</title>
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.5; max-width: 800px; margin: 2rem auto; color: #222; }
    h1 { border-bottom: 2px solid #333; padding-bottom: 0.5rem; }
    .meta { color: #666; font-size: 0.9em; margin-bottom: 2rem; }
    table { width: 100%; border-collapse: collapse; margin: 1.5rem 0; }
    th, td { text-align: left; padding: 0.5rem; border-bottom: 1px solid #ddd; }
    th { background: #f5f5f5; }
    td.num, th.num { text-align: right; }
    .total { font-size: 1.2em; font-weight: bold; text-align: right; }
    .notes { background: #f5f5f5; padding: 1rem; margin-top: 2rem; border-left: 3px solid #333; }
  </style>
</head>
<body>
  <h1>Invoice{{if .Invoice.Number}} {{.Invoice.Number}}{{end}}</h1>
  <div class="meta">
    {{.OrgName}}{{if .Invoice.ClientName}} | Billed to {{.Invoice.ClientName}}{{end}}
    {{if .Invoice.IssuedAt}}| Issued {{.Invoice.IssuedAt}}{{end}}
    {{if .Invoice.DueAt}}| Due {{.Invoice.DueAt}}{{end}}
    {{if .Invoice.Status}}| {{.Invoice.Status}}{{end}}
  </div>
  {{if .Invoice.LineItems}}
  <table>
    <tr><th>Description</th><th class="num">Qty</th><th class="num">Rate</th><th class="num">Amount</th></tr>
    {{range .Invoice.LineItems}}
    <tr>
      <td>{{.Description}}</td>
      <td class="num">{{money .Quantity}}</td>
      <td class="num">{{money .Rate}}</td>
      <td class="num">{{money .Amount}}</td>
    </tr>
    {{end}}
  </table>
  {{end}}
  <p class="total">Total: {{.Invoice.Currency}} {{money .Invoice.Total}}</p>
  {{if .Invoice.Notes}}<div class="notes">{{.Invoice.Notes}}</div>{{end}}
  <div class="meta">Exported {{.Exported}}</div>
</body>
</html>`
