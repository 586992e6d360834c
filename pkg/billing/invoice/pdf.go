// Package invoice renders subscription invoices as PDF documents.
package invoice

import (
	"bytes"
	"fmt"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/oklog/ulid/v2"

	"github.com/Abraxas-365/tenantry/pkg/billing"
	"github.com/Abraxas-365/tenantry/pkg/errx"
	"github.com/Abraxas-365/tenantry/pkg/kernel"
)

var (
	colorPrimary   = [3]int{30, 58, 95}
	colorTextDark  = [3]int{44, 62, 80}
	colorTextMuted = [3]int{127, 140, 141}
	colorTableAlt  = [3]int{241, 245, 249}
)

// NewNumber returns a unique, time-sortable invoice number.
func NewNumber() string {
	return "INV-" + ulid.Make().String()
}

// Path is where an invoice document is stored under dir.
func Path(dir string, tenantID kernel.TenantID, number string) string {
	return fmt.Sprintf("%s/%s/%s.pdf", dir, tenantID, number)
}

// Data is everything printed on one invoice.
type Data struct {
	Issuer      string
	TenantName  string
	TenantEmail string
	Billing     billing.SubscriptionBilling
	PeriodStart time.Time
	PeriodEnd   time.Time
	PlanName    string
}

type Generator struct {
	issuer string
}

func NewGenerator(issuer string) *Generator {
	return &Generator{issuer: issuer}
}

// Generate renders the invoice and returns the PDF bytes.
func (g *Generator) Generate(d Data) ([]byte, error) {
	if d.Issuer == "" {
		d.Issuer = g.issuer
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(20, 20, 20)
	pdf.SetAutoPageBreak(true, 25)
	pdf.SetTitle("Invoice "+d.Billing.InvoiceNumber, false)
	pdf.AddPage()

	g.writeHeader(pdf, d)
	g.writeLines(pdf, d.Billing)
	g.writeTotals(pdf, d.Billing)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, errx.Wrap(err, "failed to render invoice", errx.TypeInternal).
			WithDetail("invoice_number", d.Billing.InvoiceNumber)
	}
	return buf.Bytes(), nil
}

func (g *Generator) writeHeader(pdf *fpdf.Fpdf, d Data) {
	pdf.SetFont("Arial", "B", 22)
	pdf.SetTextColor(colorPrimary[0], colorPrimary[1], colorPrimary[2])
	pdf.CellFormat(0, 12, d.Issuer, "", 1, "L", false, 0, "")

	pdf.SetFont("Arial", "", 10)
	pdf.SetTextColor(colorTextMuted[0], colorTextMuted[1], colorTextMuted[2])
	pdf.CellFormat(0, 6, "Invoice "+d.Billing.InvoiceNumber, "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 6, "Date: "+d.Billing.BillingDate.Format("January 2, 2006"), "", 1, "L", false, 0, "")
	pdf.Ln(6)

	pdf.SetFont("Arial", "B", 11)
	pdf.SetTextColor(colorTextDark[0], colorTextDark[1], colorTextDark[2])
	pdf.CellFormat(0, 7, "Billed to", "", 1, "L", false, 0, "")
	pdf.SetFont("Arial", "", 11)
	pdf.CellFormat(0, 6, d.TenantName, "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 6, d.TenantEmail, "", 1, "L", false, 0, "")
	pdf.Ln(4)

	if d.PlanName != "" {
		period := fmt.Sprintf("%s: %s to %s", d.PlanName,
			d.PeriodStart.Format("Jan 2, 2006"), d.PeriodEnd.Format("Jan 2, 2006"))
		pdf.CellFormat(0, 6, period, "", 1, "L", false, 0, "")
		pdf.Ln(4)
	}
}

func (g *Generator) writeLines(pdf *fpdf.Fpdf, b billing.SubscriptionBilling) {
	pdf.SetFillColor(colorPrimary[0], colorPrimary[1], colorPrimary[2])
	pdf.SetTextColor(255, 255, 255)
	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(130, 8, "Description", "", 0, "L", true, 0, "")
	pdf.CellFormat(40, 8, "Amount ("+b.Currency+")", "", 1, "R", true, 0, "")

	pdf.SetFont("Arial", "", 10)
	pdf.SetTextColor(colorTextDark[0], colorTextDark[1], colorTextDark[2])
	pdf.SetFillColor(colorTableAlt[0], colorTableAlt[1], colorTableAlt[2])
	for i, line := range b.LineItems {
		fill := i%2 == 1
		pdf.CellFormat(130, 7, line.Description, "", 0, "L", fill, 0, "")
		pdf.CellFormat(40, 7, line.Amount.String(), "", 1, "R", fill, 0, "")
	}
	pdf.Ln(4)
}

func (g *Generator) writeTotals(pdf *fpdf.Fpdf, b billing.SubscriptionBilling) {
	row := func(label string, m kernel.Money, bold bool) {
		style := ""
		if bold {
			style = "B"
		}
		pdf.SetFont("Arial", style, 10)
		pdf.CellFormat(130, 7, label, "", 0, "R", false, 0, "")
		pdf.CellFormat(40, 7, m.String(), "", 1, "R", false, 0, "")
	}

	row("Subtotal", b.BaseAmount, false)
	if b.DiscountAmount > 0 {
		row("Discount", -b.DiscountAmount, false)
	}
	row("Tax", b.TaxAmount, false)
	row("Total ("+b.Currency+")", b.TotalAmount, true)

	pdf.Ln(6)
	pdf.SetFont("Arial", "", 9)
	pdf.SetTextColor(colorTextMuted[0], colorTextMuted[1], colorTextMuted[2])
	ref := "Payment status: " + b.PaymentStatus
	if b.PaymentReference != nil {
		ref += " (" + *b.PaymentReference + ")"
	}
	pdf.CellFormat(0, 6, ref, "", 1, "L", false, 0, "")
}
