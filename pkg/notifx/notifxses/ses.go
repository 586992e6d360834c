package notifxses

import (
	"context"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	"github.com/Abraxas-365/tenantry/pkg/notifx"
)

// API is the subset of *ses.Client used by the provider.
type API interface {
	SendEmail(ctx context.Context, in *ses.SendEmailInput, opts ...func(*ses.Options)) (*ses.SendEmailOutput, error)
	SendRawEmail(ctx context.Context, in *ses.SendRawEmailInput, opts ...func(*ses.Options)) (*ses.SendRawEmailOutput, error)
}

// SESProvider implements notifx.EmailSender using AWS SES. Messages with
// attachments go through SendRawEmail as MIME.
type SESProvider struct {
	client      API
	fromAddress string
}

func NewSESProvider(client API, fromAddress string) *SESProvider {
	return &SESProvider{
		client:      client,
		fromAddress: fromAddress,
	}
}

// SendEmail sends a single email via SES.
func (p *SESProvider) SendEmail(ctx context.Context, msg notifx.EmailMessage, opts ...notifx.Option) error {
	if msg.From == "" {
		msg.From = p.fromAddress
	}
	so := notifx.ApplySendOptions(opts)

	if len(msg.Attachments) > 0 {
		return p.sendRaw(ctx, msg, so)
	}

	body := &types.Body{}
	if msg.TextBody != "" {
		body.Text = &types.Content{Data: aws.String(msg.TextBody), Charset: aws.String("UTF-8")}
	}
	if msg.HTMLBody != "" {
		body.Html = &types.Content{Data: aws.String(msg.HTMLBody), Charset: aws.String("UTF-8")}
	}

	input := &ses.SendEmailInput{
		Source: aws.String(msg.From),
		Destination: &types.Destination{
			ToAddresses:  msg.To,
			CcAddresses:  msg.CC,
			BccAddresses: msg.BCC,
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
			Body:    body,
		},
		Tags: messageTags(so.Tags),
	}
	if msg.ReplyTo != "" {
		input.ReplyToAddresses = []string{msg.ReplyTo}
	}
	if so.ConfigID != "" {
		input.ConfigurationSetName = aws.String(so.ConfigID)
	}

	if _, err := p.client.SendEmail(ctx, input); err != nil {
		return sesErrors.NewWithCause(ErrSendFailed, err).
			WithDetail("to", msg.To).
			WithDetail("subject", msg.Subject)
	}
	return nil
}

func (p *SESProvider) sendRaw(ctx context.Context, msg notifx.EmailMessage, so notifx.SendOptions) error {
	raw, err := buildMIME(msg)
	if err != nil {
		return sesErrors.NewWithCause(ErrBuildMessage, err).WithDetail("subject", msg.Subject)
	}

	destinations := make([]string, 0, len(msg.To)+len(msg.CC)+len(msg.BCC))
	destinations = append(destinations, msg.To...)
	destinations = append(destinations, msg.CC...)
	destinations = append(destinations, msg.BCC...)

	input := &ses.SendRawEmailInput{
		Source:       aws.String(msg.From),
		Destinations: destinations,
		RawMessage:   &types.RawMessage{Data: raw},
		Tags:         messageTags(so.Tags),
	}
	if so.ConfigID != "" {
		input.ConfigurationSetName = aws.String(so.ConfigID)
	}

	if _, err := p.client.SendRawEmail(ctx, input); err != nil {
		return sesErrors.NewWithCause(ErrSendFailed, err).
			WithDetail("to", msg.To).
			WithDetail("subject", msg.Subject).
			WithDetail("attachments", len(msg.Attachments))
	}
	return nil
}

func messageTags(tags map[string]string) []types.MessageTag {
	if len(tags) == 0 {
		return nil
	}
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]types.MessageTag, 0, len(keys))
	for _, k := range keys {
		out = append(out, types.MessageTag{Name: aws.String(k), Value: aws.String(tags[k])})
	}
	return out
}
