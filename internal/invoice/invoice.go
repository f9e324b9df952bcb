// Package invoice renders order invoices and receipts as HTML artifacts.
package invoice

import (
	"bytes"
	"context"
	"html/template"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-faster/errors"

	"github.com/PavaniPriya06/CLOUTH-AG/internal/domain/order"
	"github.com/PavaniPriya06/CLOUTH-AG/internal/domain/payment"
)

// Config carries where artifacts are written and how they are served.
type Config struct {
	// Dir is the directory invoice files are written to.
	Dir string
	// PublicBaseURL prefixes the stored invoice URL, e.g.
	// "https://shop.example.com/invoices".
	PublicBaseURL string
	// StoreName appears in the document header.
	StoreName string
}

var _ payment.InvoiceGenerator = (*Generator)(nil)

// Generator writes invoice artifacts to local disk.
type Generator struct {
	cfg  Config
	tmpl *template.Template
}

// NewGenerator returns a Generator. The output directory is created if
// absent.
func NewGenerator(cfg Config) (*Generator, error) {
	if cfg.StoreName == "" {
		cfg.StoreName = "CLOUTH"
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create invoice directory")
	}
	tmpl, err := template.New("invoice").Parse(invoiceTemplate)
	if err != nil {
		return nil, errors.Wrap(err, "parse invoice template")
	}
	return &Generator{cfg: cfg, tmpl: tmpl}, nil
}

// Generate renders the order's invoice to disk and returns the file path
// and the public URL it will be served under.
func (g *Generator) Generate(ctx context.Context, o *order.Order) (string, string, error) {
	name := "invoice_" + o.Number + ".html"
	path := filepath.Join(g.cfg.Dir, name)

	var buf bytes.Buffer
	if err := g.render(&buf, o, "Invoice"); err != nil {
		return "", "", err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return "", "", errors.Wrap(err, "write invoice file")
	}

	url := strings.TrimSuffix(g.cfg.PublicBaseURL, "/") + "/" + name
	return path, url, nil
}

// Receipt renders a receipt for the order directly to w, for the
// on-the-fly receipt endpoint. Nothing is written to disk.
func (g *Generator) Receipt(w io.Writer, o *order.Order) error {
	return g.render(w, o, "Receipt")
}

type invoiceData struct {
	Title string
	Store string
	Order *order.Order
}

func (g *Generator) render(w io.Writer, o *order.Order, title string) error {
	err := g.tmpl.Execute(w, invoiceData{Title: title, Store: g.cfg.StoreName, Order: o})
	if err != nil {
		return errors.Wrap(err, "render "+strings.ToLower(title))
	}
	return nil
}

const invoiceTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}} {{.Order.Number}}</title>
<style>
body { font-family: sans-serif; margin: 2rem; color: #222; }
h1 { font-size: 1.4rem; }
table { border-collapse: collapse; width: 100%; margin-top: 1rem; }
th, td { border: 1px solid #ccc; padding: 0.4rem 0.6rem; text-align: left; }
tfoot td { font-weight: bold; }
.meta { color: #666; font-size: 0.9rem; }
</style>
</head>
<body>
<h1>{{.Store}} {{.Title}} {{.Order.Number}}</h1>
<p class="meta">
Date: {{.Order.CreatedAt.Format "02 Jan 2006"}}<br>
Payment: {{.Order.PaymentMethod}} ({{.Order.PaymentStatus}})
{{if .Order.PaymentID}}<br>Payment ID: {{.Order.PaymentID}}{{end}}
</p>
<p>
{{with .Order.ShippingAddress}}
{{.FullName}}<br>
{{if .HouseNo}}{{.HouseNo}}, {{end}}{{.Street}}<br>
{{.City}} {{.Pincode}}<br>
{{.Phone}}
{{end}}
</p>
<table>
<thead><tr><th>Item</th><th>Qty</th><th>Price</th><th>Total</th></tr></thead>
<tbody>
{{range .Order.Items}}
<tr>
<td>{{.Name}}{{if .Size}} ({{.Size}}){{end}}</td>
<td>{{.Quantity}}</td>
<td>{{.Price}}</td>
<td>{{.LineTotal}}</td>
</tr>
{{end}}
</tbody>
<tfoot>
<tr><td colspan="3">Subtotal</td><td>{{.Order.Subtotal}}</td></tr>
<tr><td colspan="3">Shipping</td><td>{{.Order.ShippingCharge}}</td></tr>
<tr><td colspan="3">Total</td><td>{{.Order.TotalAmount}}</td></tr>
</tfoot>
</table>
</body>
</html>`
