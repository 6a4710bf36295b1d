// Package whatsapp wraps the whatsmeow client so IntakePipe can run as a linked WhatsApp device.
//
// It logs in (QR or numeric pairing code), sends plain text replies, and turns inbound
// text events into models.Response values for the dialog pipeline.
package whatsapp

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/BTreeMap/IntakePipe/internal/models"
	"github.com/BTreeMap/IntakePipe/internal/store"
	"github.com/mdp/qrterminal/v3"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
)

const (
	// DefaultSQLitePath is the default whatsmeow device store.
	DefaultSQLitePath = "/var/lib/intakepipe/whatsmeow.db"
	// JIDSuffix is the WhatsApp JID server for regular users.
	JIDSuffix = types.DefaultUserServer
)

// Sender sends a text message to a phone number (digits only).
type Sender interface {
	SendMessage(ctx context.Context, to string, body string) error
}

// Opts holds whatsmeow device store and login settings.
type Opts struct {
	DBDSN       string // whatsmeow database connection string
	QRPath      string // path to write login QR code
	NumericCode bool   // print the raw pairing code instead of a QR code
}

// Option defines a configuration option for the WhatsApp client.
type Option func(*Opts)

// WithDBDSN sets the whatsmeow database connection string.
func WithDBDSN(dsn string) Option {
	return func(o *Opts) {
		o.DBDSN = dsn
	}
}

// WithQRCodeOutput writes the login QR code to path instead of stdout.
func WithQRCodeOutput(path string) Option {
	return func(o *Opts) {
		o.QRPath = path
	}
}

// WithNumericCode prints the pairing code as text instead of rendering a QR code.
func WithNumericCode() Option {
	return func(o *Opts) {
		o.NumericCode = true
	}
}

// Client wraps a connected whatsmeow client.
type Client struct {
	waClient *whatsmeow.Client
}

var _ Sender = (*Client)(nil)

// resolveDriver picks the database/sql driver for the device store.
func resolveDriver(dsn string) string {
	if store.DetectDSNType(dsn) == "postgres" {
		return "postgres"
	}
	if !hasForeignKeys(dsn) {
		slog.Warn("WhatsApp SQLite store does not enable foreign keys; whatsmeow recommends '?_foreign_keys=on'",
			"dsn_example", "file:"+dsn+"?_foreign_keys=on")
	}
	return "sqlite3"
}

func hasForeignKeys(dsn string) bool {
	return strings.Contains(dsn, "foreign_keys")
}

// NewClient opens the device store, logs in when no device is paired, and connects.
func NewClient(ctx context.Context, opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	dbDSN := cfg.DBDSN
	if dbDSN == "" {
		dbDSN = DefaultSQLitePath
		slog.Debug("whatsapp.NewClient: no DSN provided, using default SQLite path", "path", dbDSN)
	}
	dbDriver := resolveDriver(dbDSN)

	container, err := sqlstore.New(ctx, dbDriver, dbDSN, waLog.Stdout("Database", "INFO", true))
	if err != nil {
		slog.Error("whatsapp.NewClient: failed to initialize device store", "error", err)
		return nil, fmt.Errorf("failed to initialize WhatsApp database store: %w", err)
	}
	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		slog.Error("whatsapp.NewClient: failed to get device", "error", err)
		return nil, fmt.Errorf("failed to get device from WhatsApp store: %w", err)
	}

	waClient := whatsmeow.NewClient(deviceStore, waLog.Stdout("Client", "INFO", true))
	if waClient.Store.ID == nil {
		if err := login(ctx, waClient, cfg); err != nil {
			return nil, err
		}
	} else if err := waClient.Connect(); err != nil {
		slog.Error("whatsapp.NewClient: connect failed", "error", err)
		return nil, fmt.Errorf("failed to connect to WhatsApp server: %w", err)
	}
	slog.Info("whatsapp.NewClient: connected", "driver", dbDriver)
	return &Client{waClient: waClient}, nil
}

func login(ctx context.Context, waClient *whatsmeow.Client, cfg Opts) error {
	slog.Info("whatsapp.login: pairing required, starting QR flow")
	qrChan, err := waClient.GetQRChannel(ctx)
	if err != nil {
		return fmt.Errorf("failed to open QR channel: %w", err)
	}
	if err := waClient.Connect(); err != nil {
		slog.Error("whatsapp.login: connect failed", "error", err)
		return fmt.Errorf("failed to connect to WhatsApp during login: %w", err)
	}

	writer := io.Writer(os.Stdout)
	if cfg.QRPath != "" {
		f, err := os.Create(cfg.QRPath)
		if err != nil {
			return fmt.Errorf("failed to create QR file: %w", err)
		}
		defer f.Close()
		writer = f
	}
	for evt := range qrChan {
		if evt.Event != "code" {
			slog.Info("whatsapp.login: event", "event", evt.Event)
			continue
		}
		if cfg.NumericCode {
			fmt.Fprintln(writer, evt.Code)
		} else {
			qrterminal.GenerateHalfBlock(evt.Code, qrterminal.L, writer)
		}
	}
	return nil
}

// SendMessage sends a plain text message.
func (c *Client) SendMessage(ctx context.Context, to string, body string) error {
	if c.waClient == nil || c.waClient.Store == nil {
		return fmt.Errorf("whatsapp client not initialized")
	}
	if to == "" {
		return models.ErrEmptyRecipient
	}
	if body == "" {
		return fmt.Errorf("message body cannot be empty")
	}

	jid := types.NewJID(to, JIDSuffix)
	if _, err := c.waClient.SendMessage(ctx, jid, &waE2E.Message{Conversation: &body}); err != nil {
		slog.Error("whatsapp.Client.SendMessage: failed", "error", err, "to", to)
		return fmt.Errorf("failed to send message to %s: %w", to, err)
	}
	slog.Debug("whatsapp.Client.SendMessage: sent", "to", to, "body_len", len(body))
	return nil
}

// OnInbound registers fn for every inbound one-to-one text message.
func (c *Client) OnInbound(fn func(models.Response)) {
	c.waClient.AddEventHandler(func(evt interface{}) {
		msg, ok := evt.(*events.Message)
		if !ok {
			return
		}
		if resp, ok := InboundFromEvent(msg); ok {
			fn(resp)
		}
	})
}

// Disconnect closes the websocket connection.
func (c *Client) Disconnect() {
	if c.waClient != nil {
		c.waClient.Disconnect()
	}
}

// InboundFromEvent converts a whatsmeow message event into a Response.
// Own messages, group chats and messages without text are skipped.
func InboundFromEvent(evt *events.Message) (models.Response, bool) {
	if evt == nil || evt.Message == nil || evt.Info.IsFromMe || evt.Info.IsGroup {
		return models.Response{}, false
	}
	text, ok := ExtractText(evt.Message)
	if !ok {
		slog.Debug("whatsapp.InboundFromEvent: ignoring non-text message", "from", evt.Info.Sender.User)
		return models.Response{}, false
	}
	return models.Response{
		ID:   string(evt.Info.ID),
		From: evt.Info.Sender.User,
		Body: text,
		Time: evt.Info.Timestamp.Unix(),
	}, true
}

// ExtractText returns the text of a plain or extended text message.
func ExtractText(msg *waE2E.Message) (string, bool) {
	switch {
	case msg.Conversation != nil:
		return msg.GetConversation(), true
	case msg.ExtendedTextMessage != nil && msg.ExtendedTextMessage.Text != nil:
		return msg.ExtendedTextMessage.GetText(), true
	}
	return "", false
}

// MockClient records sent messages without a WhatsApp connection.
type MockClient struct {
	Sent []SentMessage
	Err  error
}

// SentMessage is a message captured by MockClient.
type SentMessage struct {
	To   string
	Body string
}

var _ Sender = (*MockClient)(nil)

func NewMockClient() *MockClient {
	return &MockClient{}
}

func (m *MockClient) SendMessage(ctx context.Context, to string, body string) error {
	if m.Err != nil {
		return m.Err
	}
	m.Sent = append(m.Sent, SentMessage{To: to, Body: body})
	return nil
}
