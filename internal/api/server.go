// Package api exposes the provider webhooks and the small admin surface, and runs the
// IntakePipe process: HTTP server, session janitor and event loop under one errgroup.
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/BTreeMap/IntakePipe/internal/messaging"
	"github.com/BTreeMap/IntakePipe/internal/store"
	"github.com/BTreeMap/IntakePipe/internal/twiliowhatsapp"
)

const (
	// DefaultServerAddress matches the port the bot has always listened on.
	DefaultServerAddress = ":3000"
	// DefaultShutdownTimeout bounds graceful HTTP shutdown.
	DefaultShutdownTimeout = 10 * time.Second
	// maxWebhookBody caps inbound webhook payloads.
	maxWebhookBody = 1 << 20
)

// Opts holds HTTP server and webhook security settings.
type Opts struct {
	Addr            string
	VerifyToken     string
	AppSecret       string
	TwilioAuthToken string
	TwilioValidate  bool
	PublicBaseURL   string
	ShutdownTimeout time.Duration
}

// Option configures the server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithVerifyToken sets the secret expected in the GET /webhook handshake.
func WithVerifyToken(token string) Option {
	return func(o *Opts) { o.VerifyToken = token }
}

// WithAppSecret enables X-Hub-Signature-256 verification on POST /webhook.
func WithAppSecret(secret string) Option {
	return func(o *Opts) { o.AppSecret = secret }
}

// WithTwilioSignatureValidation checks X-Twilio-Signature on /twilio/webhook with authToken.
func WithTwilioSignatureValidation(authToken string) Option {
	return func(o *Opts) {
		o.TwilioAuthToken = authToken
		o.TwilioValidate = authToken != ""
	}
}

// WithPublicBaseURL sets the externally visible base URL Twilio signs, e.g. when behind a proxy.
func WithPublicBaseURL(u string) Option {
	return func(o *Opts) { o.PublicBaseURL = strings.TrimRight(u, "/") }
}

// WithShutdownTimeout bounds graceful shutdown.
func WithShutdownTimeout(d time.Duration) Option {
	return func(o *Opts) {
		if d > 0 {
			o.ShutdownTimeout = d
		}
	}
}

// Server serves the webhook and admin endpoints.
type Server struct {
	msgService      messaging.Service
	respHandler     *messaging.ResponseHandler
	leadRepo        store.LeadRepo
	verifyToken     string
	appSecret       string
	twilioValidator *twiliowhatsapp.Validator
	publicBaseURL   string
	startedAt       time.Time
}

// NewServer builds a Server. leadRepo may be nil, in which case GET /leads returns 503.
func NewServer(msgService messaging.Service, respHandler *messaging.ResponseHandler, leadRepo store.LeadRepo, opts ...Option) *Server {
	cfg := applyOpts(opts)
	s := &Server{
		msgService:    msgService,
		respHandler:   respHandler,
		leadRepo:      leadRepo,
		verifyToken:   cfg.VerifyToken,
		appSecret:     cfg.AppSecret,
		publicBaseURL: cfg.PublicBaseURL,
		startedAt:     time.Now(),
	}
	if cfg.TwilioValidate {
		s.twilioValidator = twiliowhatsapp.NewValidator(cfg.TwilioAuthToken)
	}
	return s
}

func applyOpts(opts []Option) Opts {
	cfg := Opts{Addr: DefaultServerAddress, ShutdownTimeout: DefaultShutdownTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultServerAddress
	}
	return cfg
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/webhook", s.webhookHandler)
	mux.HandleFunc("/twilio/webhook", s.twilioWebhookHandler)
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/leads", s.leadsHandler)
	return mux
}
