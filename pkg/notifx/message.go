package notifx

// EmailMessage is one outbound email. From falls back to the client default.
type EmailMessage struct {
	From        string       `json:"from"`
	To          []string     `json:"to"`
	CC          []string     `json:"cc,omitempty"`
	BCC         []string     `json:"bcc,omitempty"`
	ReplyTo     string       `json:"reply_to,omitempty"`
	Subject     string       `json:"subject"`
	TextBody    string       `json:"text_body,omitempty"`
	HTMLBody    string       `json:"html_body,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Attachment is a file sent along with the message, e.g. an invoice PDF.
type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"-"`
}

func (m EmailMessage) validate() error {
	reason := ""
	switch {
	case len(m.To) == 0:
		reason = "no recipients"
	case m.Subject == "":
		reason = "empty subject"
	case m.TextBody == "" && m.HTMLBody == "":
		reason = "empty body"
	}
	for _, a := range m.Attachments {
		if a.Filename == "" || len(a.Data) == 0 {
			reason = "attachment without name or data"
		}
	}
	if reason != "" {
		return notifxErrors.New(ErrInvalidMessage).WithDetail("reason", reason)
	}
	return nil
}

// SendOptions are provider hints folded from Option values.
type SendOptions struct {
	Tags     map[string]string
	ConfigID string
}

type Option func(*SendOptions)

// WithTags attaches metadata the provider can report on (SES message tags).
func WithTags(tags map[string]string) Option {
	return func(o *SendOptions) { o.Tags = tags }
}

// WithConfigID selects a provider configuration set.
func WithConfigID(id string) Option {
	return func(o *SendOptions) { o.ConfigID = id }
}

func ApplySendOptions(opts []Option) SendOptions {
	var so SendOptions
	for _, o := range opts {
		o(&so)
	}
	return so
}
