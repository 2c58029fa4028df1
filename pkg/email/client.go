package email

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/resend/resend-go/v2"

	pkgerrors "github.com/kofabeauty/storefront-backend/pkg/errors"
)

const defaultTimeout = 10 * time.Second

var (
	errAPIKeyRequired = errors.New("resend api key is required")
	errFromRequired   = errors.New("sender address is required")
)

// Message is a plain transactional email.
type Message struct {
	To      []string
	Subject string
	Text    string
	Tags    map[string]string
}

// Client sends transactional email through Resend.
type Client struct {
	resend *resend.Client
	from   string
}

type options struct {
	httpClient *http.Client
	baseURL    string
}

// Option configures optional client behavior.
type Option func(*options)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		if client != nil {
			o.httpClient = client
		}
	}
}

// WithBaseURL overrides the Resend API base URL.
func WithBaseURL(baseURL string) Option {
	return func(o *options) {
		o.baseURL = strings.TrimSpace(baseURL)
	}
}

// NewClient builds a Resend client.
func NewClient(apiKey, from string, opts ...Option) (*Client, error) {
	trimmedKey := strings.TrimSpace(apiKey)
	if trimmedKey == "" {
		return nil, errAPIKeyRequired
	}
	trimmedFrom := strings.TrimSpace(from)
	if trimmedFrom == "" {
		return nil, errFromRequired
	}

	cfg := options{httpClient: &http.Client{Timeout: defaultTimeout}}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	rc := resend.NewCustomClient(cfg.httpClient, trimmedKey)
	if cfg.baseURL != "" {
		base, err := url.Parse(strings.TrimRight(cfg.baseURL, "/") + "/")
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid resend base url")
		}
		rc.BaseURL = base
	}
	return &Client{resend: rc, from: trimmedFrom}, nil
}

// Send delivers msg and returns the provider's message id.
func (c *Client) Send(ctx context.Context, msg Message) (string, error) {
	if c == nil || c.resend == nil {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "email client not configured")
	}
	if len(msg.To) == 0 {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "recipient is required")
	}
	if strings.TrimSpace(msg.Subject) == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "subject is required")
	}

	req := &resend.SendEmailRequest{
		From:    c.from,
		To:      msg.To,
		Subject: msg.Subject,
		Text:    msg.Text,
	}
	names := make([]string, 0, len(msg.Tags))
	for name := range msg.Tags {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		req.Tags = append(req.Tags, resend.Tag{Name: name, Value: msg.Tags[name]})
	}

	sent, err := c.resend.Emails.SendWithContext(ctx, req)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "send email")
	}
	return sent.Id, nil
}
