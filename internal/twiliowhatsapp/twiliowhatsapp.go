// Package twiliowhatsapp wraps the Twilio API for WhatsApp delivery and inbound webhook validation.
package twiliowhatsapp

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/twilio/twilio-go"
	twilioclient "github.com/twilio/twilio-go/client"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// AddressPrefix marks WhatsApp addresses in Twilio From/To fields.
const AddressPrefix = "whatsapp:"

// SignatureHeader carries Twilio's request signature on webhook deliveries.
const SignatureHeader = "X-Twilio-Signature"

// Sender delivers text messages over Twilio WhatsApp.
type Sender interface {
	SendMessage(ctx context.Context, to string, body string) error
}

// Opts holds configuration options for the Twilio WhatsApp client.
type Opts struct {
	AccountSID string
	AuthToken  string
	FromWhats  string
}

// Option defines a configuration option for the Twilio WhatsApp client.
type Option func(*Opts)

// WithAccountSID sets the Twilio account SID.
func WithAccountSID(sid string) Option {
	return func(o *Opts) { o.AccountSID = sid }
}

// WithAuthToken sets the Twilio auth token, also used to validate webhook signatures.
func WithAuthToken(token string) Option {
	return func(o *Opts) { o.AuthToken = token }
}

// WithFromWhats sets the sending number, with or without the "whatsapp:" prefix.
func WithFromWhats(from string) Option {
	return func(o *Opts) { o.FromWhats = from }
}

// Client wraps Twilio REST API for WhatsApp.
type Client struct {
	client    *twilio.RestClient
	fromWhats string // "whatsapp:+1234567890"
}

var _ Sender = (*Client)(nil)

// NewClient builds a Client, falling back to TWILIO_* environment variables for unset options.
func NewClient(opts ...Option) (*Client, error) {
	cfg := resolve(opts)
	slog.Debug("Twilio client config loaded",
		"AccountSID_set", cfg.AccountSID != "",
		"AuthToken_set", cfg.AuthToken != "",
		"FromWhats_set", cfg.FromWhats != "")

	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("account SID and auth token must be provided")
	}
	if cfg.FromWhats == "" {
		return nil, fmt.Errorf("fromWhats number must be provided")
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return &Client{client: client, fromWhats: WithPrefix(cfg.FromWhats)}, nil
}

func resolve(opts []Option) Opts {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccountSID == "" {
		cfg.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	}
	if cfg.AuthToken == "" {
		cfg.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	}
	if cfg.FromWhats == "" {
		cfg.FromWhats = os.Getenv("TWILIO_FROM_NUMBER")
	}
	return cfg
}

// SendMessage sends a WhatsApp text to a bare E.164 number.
func (c *Client) SendMessage(ctx context.Context, to string, body string) error {
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(WithPrefix(to))
	params.SetFrom(c.fromWhats)
	params.SetBody(body)

	resp, err := c.client.Api.CreateMessage(params)
	if err != nil {
		slog.Error("Twilio SendMessage failed", "to", to, "error", err)
		return fmt.Errorf("failed to send message to %s: %w", to, err)
	}
	if resp != nil && resp.Sid != nil {
		slog.Debug("Twilio message sent", "to", to, "sid", *resp.Sid)
	}
	return nil
}

// WithPrefix adds the "whatsapp:" address prefix when missing.
func WithPrefix(number string) string {
	if strings.HasPrefix(number, AddressPrefix) {
		return number
	}
	return AddressPrefix + number
}

// StripPrefix removes the "whatsapp:" address prefix, leaving the E.164 number.
func StripPrefix(addr string) string {
	return strings.TrimPrefix(addr, AddressPrefix)
}

// Validator checks X-Twilio-Signature headers on inbound webhooks.
type Validator struct {
	rv twilioclient.RequestValidator
}

// NewValidator builds a Validator for the account's auth token.
func NewValidator(authToken string) *Validator {
	return &Validator{rv: twilioclient.NewRequestValidator(authToken)}
}

// Validate reports whether signature matches the full request URL and form parameters.
func (v *Validator) Validate(url string, params map[string]string, signature string) bool {
	if signature == "" {
		return false
	}
	return v.rv.Validate(url, params, signature)
}

// MockClient records sent messages.
type MockClient struct {
	SentMessages []SentMessage
	Err          error
}

// SentMessage is a message captured by MockClient.
type SentMessage struct {
	To   string
	Body string
}

var _ Sender = (*MockClient)(nil)

func NewMockClient() *MockClient {
	return &MockClient{SentMessages: []SentMessage{}}
}

func (m *MockClient) SendMessage(ctx context.Context, to string, body string) error {
	if m.Err != nil {
		return m.Err
	}
	m.SentMessages = append(m.SentMessages, SentMessage{To: to, Body: body})
	return nil
}
