// Package notifx sends transactional email through a pluggable provider,
// with named html/templates rendered into the message body.
package notifx

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"sync"
)

// EmailSender is implemented by each delivery backend.
type EmailSender interface {
	SendEmail(ctx context.Context, msg EmailMessage, opts ...Option) error
}

type Client struct {
	provider    EmailSender
	defaultFrom string

	mu        sync.RWMutex
	templates map[string]*template.Template
}

// NewClient formats the default sender as "Name <address>" when a name is given.
func NewClient(provider EmailSender, fromAddress, fromName string) *Client {
	from := fromAddress
	if fromName != "" && fromAddress != "" {
		from = fmt.Sprintf("%s <%s>", fromName, fromAddress)
	}
	return &Client{
		provider:    provider,
		defaultFrom: from,
		templates:   make(map[string]*template.Template),
	}
}

func (c *Client) SendEmail(ctx context.Context, msg EmailMessage, opts ...Option) error {
	if err := msg.validate(); err != nil {
		return err
	}
	if msg.From == "" {
		msg.From = c.defaultFrom
	}
	return c.provider.SendEmail(ctx, msg, opts...)
}

// RegisterTemplate parses an html/template. Re-registering a name replaces it.
func (c *Client) RegisterTemplate(name, body string) error {
	t, err := template.New(name).Parse(body)
	if err != nil {
		return notifxErrors.NewWithCause(ErrTemplateParse, err).WithDetail("template", name)
	}
	c.mu.Lock()
	c.templates[name] = t
	c.mu.Unlock()
	return nil
}

func (c *Client) render(name string, data interface{}) (string, error) {
	c.mu.RLock()
	t, ok := c.templates[name]
	c.mu.RUnlock()
	if !ok {
		return "", notifxErrors.New(ErrTemplateNotFound).WithDetail("template", name)
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", notifxErrors.NewWithCause(ErrTemplateRender, err).WithDetail("template", name)
	}
	return buf.String(), nil
}

// SendTemplatedEmail renders name into msg.HTMLBody and sends it.
func (c *Client) SendTemplatedEmail(ctx context.Context, name string, data interface{}, msg EmailMessage, opts ...Option) error {
	body, err := c.render(name, data)
	if err != nil {
		return err
	}
	msg.HTMLBody = body
	return c.SendEmail(ctx, msg, opts...)
}
