// Package cloudapi sends text messages through the WhatsApp Business Cloud API.
package cloudapi

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultBaseURL is the Graph API host.
	DefaultBaseURL = "https://graph.facebook.com"
	// DefaultGraphVersion is the Graph API version used for /messages.
	DefaultGraphVersion = "v20.0"
	// DefaultTimeout bounds a single send.
	DefaultTimeout = 15 * time.Second
	// SignatureHeader carries the HMAC of webhook deliveries when an app secret is configured.
	SignatureHeader = "X-Hub-Signature-256"
)

// Sender sends a plain text message to a contact.
type Sender interface {
	SendText(ctx context.Context, to, body string) error
}

// Opts holds configuration for Client.
type Opts struct {
	Token         string
	PhoneNumberID string
	GraphVersion  string
	BaseURL       string
	HTTPClient    *http.Client
}

// Option configures a Client.
type Option func(*Opts)

// WithToken sets the bearer access token.
func WithToken(token string) Option {
	return func(o *Opts) { o.Token = token }
}

// WithPhoneNumberID sets the sending business phone number id.
func WithPhoneNumberID(id string) Option {
	return func(o *Opts) { o.PhoneNumberID = id }
}

// WithGraphVersion overrides the Graph API version.
func WithGraphVersion(v string) Option {
	return func(o *Opts) {
		if v != "" {
			o.GraphVersion = v
		}
	}
}

// WithBaseURL overrides the Graph API host, mainly for tests.
func WithBaseURL(u string) Option {
	return func(o *Opts) {
		if u != "" {
			o.BaseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *Opts) { o.HTTPClient = c }
}

// Client talks to the Cloud API /messages endpoint.
type Client struct {
	token    string
	endpoint string
	http     *http.Client
}

var _ Sender = (*Client)(nil)

// NewClient builds a Client. Token and phone number id are required.
func NewClient(opts ...Option) (*Client, error) {
	cfg := Opts{GraphVersion: DefaultGraphVersion, BaseURL: DefaultBaseURL}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Token == "" || cfg.PhoneNumberID == "" {
		return nil, fmt.Errorf("cloud API token and phone number id are required")
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: DefaultTimeout}
	}
	slog.Debug("cloudapi.NewClient: configured", "graph_version", cfg.GraphVersion, "phone_number_id", cfg.PhoneNumberID)
	return &Client{
		token:    cfg.Token,
		endpoint: fmt.Sprintf("%s/%s/%s/messages", cfg.BaseURL, cfg.GraphVersion, cfg.PhoneNumberID),
		http:     hc,
	}, nil
}

type textPayload struct {
	MessagingProduct string   `json:"messaging_product"`
	To               string   `json:"to"`
	Type             string   `json:"type"`
	Text             textBody `json:"text"`
}

type textBody struct {
	Body string `json:"body"`
}

// APIError is a non-2xx response from the Graph API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("cloud API returned status %d: %s", e.StatusCode, e.Body)
}

// SendText sends body to the contact identified by to.
func (c *Client) SendText(ctx context.Context, to, body string) error {
	if to == "" {
		return fmt.Errorf("recipient cannot be empty")
	}
	payload, err := json.Marshal(textPayload{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "text",
		Text:             textBody{Body: body},
	})
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		slog.Error("cloudapi.Client.SendText: request failed", "to", to, "error", err)
		return fmt.Errorf("failed to send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		slog.Error("cloudapi.Client.SendText: API error", "to", to, "status", resp.StatusCode)
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	io.Copy(io.Discard, resp.Body)
	slog.Debug("cloudapi.Client.SendText: sent", "to", to, "body_len", len(body))
	return nil
}

// VerifySignature checks a "sha256=<hex>" webhook signature against the raw body.
func VerifySignature(appSecret string, body []byte, header string) bool {
	const prefix = "sha256="
	if appSecret == "" || !strings.HasPrefix(header, prefix) {
		return false
	}
	got, err := hex.DecodeString(strings.TrimPrefix(header, prefix))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

// Sign returns the signature header value for body. Tests use it to build deliveries.
func Sign(appSecret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// MockSender records sent messages.
type MockSender struct {
	Sent []SentText
	Err  error
}

// SentText is a message captured by MockSender.
type SentText struct {
	To   string
	Body string
}

var _ Sender = (*MockSender)(nil)

func (m *MockSender) SendText(_ context.Context, to, body string) error {
	if m.Err != nil {
		return m.Err
	}
	m.Sent = append(m.Sent, SentText{To: to, Body: body})
	return nil
}
