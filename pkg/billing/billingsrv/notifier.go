package billingsrv

import (
	"context"
	"time"

	"github.com/Abraxas-365/tenantry/pkg/asyncx"
	"github.com/Abraxas-365/tenantry/pkg/billing"
	"github.com/Abraxas-365/tenantry/pkg/billing/invoice"
	"github.com/Abraxas-365/tenantry/pkg/config"
	"github.com/Abraxas-365/tenantry/pkg/fsx"
	"github.com/Abraxas-365/tenantry/pkg/logx"
	"github.com/Abraxas-365/tenantry/pkg/metrics"
	"github.com/Abraxas-365/tenantry/pkg/notifx"
)

const activatedTemplate = "subscription_activated"

const activatedHTML = `<p>Hello {{.TenantName}},</p>
<p>Your {{.PlanName}} subscription is active from {{.Start}} to {{.End}}.</p>
{{if .RootPassword}}<p>Sign in as <b>{{.RootUsername}}</b> with the one-time password <b>{{.RootPassword}}</b>. You will be asked to change it.</p>{{end}}
<table>
{{range .Lines}}<tr><td>{{.Description}}</td><td align="right">{{.Amount}}</td></tr>
{{end}}<tr><td><b>Total ({{.Currency}})</b></td><td align="right"><b>{{.Total}}</b></td></tr>
</table>
<p>Invoice {{.InvoiceNumber}} is attached.</p>`

// Notifier delivers the invoice and confirmation email of each committed
// activation. Delivery is detached from the caller and never fails the
// activation.
type Notifier struct {
	files    fsx.FileWriter
	mailer   *notifx.Client
	pdf      *invoice.Generator
	cfg      config.BillingConfig
	attempts int
	delay    time.Duration
	timeout  time.Duration
}

func NewNotifier(files fsx.FileWriter, mailer *notifx.Client, pdf *invoice.Generator, cfg config.BillingConfig) *Notifier {
	if cfg.InvoiceDir == "" {
		cfg.InvoiceDir = "invoices"
	}
	if err := mailer.RegisterTemplate(activatedTemplate, activatedHTML); err != nil {
		logx.WithError(err).Warn("Failed to register activation email template")
	}
	return &Notifier{
		files:    files,
		mailer:   mailer,
		pdf:      pdf,
		cfg:      cfg,
		attempts: 3,
		delay:    2 * time.Second,
		timeout:  2 * time.Minute,
	}
}

var _ billing.ActivationNotifier = (*Notifier)(nil)

// WithAttempts overrides how many times storage and mail are tried.
func (n *Notifier) WithAttempts(attempts int) *Notifier {
	if attempts > 0 {
		n.attempts = attempts
	}
	return n
}

func (n *Notifier) ActivationCompleted(ctx context.Context, res billing.ActivationResult) {
	asyncx.Detach(ctx, "billing.activation_notify", n.timeout, func(ctx context.Context) {
		if err := n.Deliver(ctx, res); err != nil {
			metrics.NotificationsTotal.WithLabelValues("failed").Inc()
			logx.WithFields(logx.Fields{
				"tenant_id":      res.Tenant.ID,
				"invoice_number": res.Billing.InvoiceNumber,
			}).WithContext(ctx).WithError(err).Error("Activation notification failed")
			return
		}
		metrics.NotificationsTotal.WithLabelValues("sent").Inc()
	})
}

// Deliver renders and stores the invoice, then emails it with retries.
func (n *Notifier) Deliver(ctx context.Context, res billing.ActivationResult) error {
	doc, err := n.pdf.Generate(invoice.Data{
		TenantName:  res.Tenant.TenantName,
		TenantEmail: res.Tenant.TenantEmail,
		Billing:     res.Billing,
		PeriodStart: res.Subscription.StartDate,
		PeriodEnd:   res.Subscription.EndDate,
		PlanName:    res.Order.Items.PlanName,
	})
	if err != nil {
		return err
	}

	path := invoice.Path(n.cfg.InvoiceDir, res.Tenant.ID, res.Billing.InvoiceNumber)
	_, err = asyncx.RetryWithBackoff(ctx, n.attempts, n.delay, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, n.files.WriteFile(ctx, path, doc)
	})
	if err != nil {
		return err
	}

	data := map[string]interface{}{
		"TenantName":    res.Tenant.TenantName,
		"PlanName":      res.Order.Items.PlanName,
		"Start":         res.Subscription.StartDate.Format("Jan 2, 2006"),
		"End":           res.Subscription.EndDate.Format("Jan 2, 2006"),
		"Lines":         res.Billing.LineItems,
		"Currency":      res.Billing.Currency,
		"Total":         res.Billing.TotalAmount.String(),
		"InvoiceNumber": res.Billing.InvoiceNumber,
		"RootUsername":  "",
		"RootPassword":  "",
	}
	if res.Root != nil {
		data["RootUsername"] = res.Root.User.Username
		data["RootPassword"] = res.Root.Password
	}
	msg := notifx.EmailMessage{
		To:       []string{res.Tenant.TenantEmail},
		Subject:  "Your subscription is active",
		TextBody: "Your " + res.Order.Items.PlanName + " subscription is active. Invoice " + res.Billing.InvoiceNumber + " is attached.",
		Attachments: []notifx.Attachment{{
			Filename:    res.Billing.InvoiceNumber + ".pdf",
			ContentType: "application/pdf",
			Data:        doc,
		}},
	}
	_, err = asyncx.RetryWithBackoff(ctx, n.attempts, n.delay, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, n.mailer.SendTemplatedEmail(ctx, activatedTemplate, data, msg)
	})
	return err
}
