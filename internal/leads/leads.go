// Package leads delivers completed intake records to downstream sinks.
//
// Delivery is best-effort: a sink error is reported to the caller, which logs it
// and moves on. Nothing in this package retries.
package leads

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/BTreeMap/IntakePipe/internal/models"
	"github.com/BTreeMap/IntakePipe/internal/store"
)

// DefaultTimeout bounds a single HTTP delivery attempt.
const DefaultTimeout = 10 * time.Second

// Sink accepts completed leads.
type Sink interface {
	SubmitLead(ctx context.Context, lead models.Lead) error
}

// NopSink discards leads. It stands in when no sink is configured.
type NopSink struct{}

func (NopSink) SubmitLead(_ context.Context, lead models.Lead) error {
	slog.Debug("NopSink.SubmitLead: no sink configured, dropping lead", "id", lead.ID)
	return nil
}

// Opts holds configuration for HTTPSink.
type Opts struct {
	URL        string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Option configures an HTTPSink.
type Option func(*Opts)

// WithURL sets the endpoint leads are posted to.
func WithURL(url string) Option {
	return func(o *Opts) { o.URL = url }
}

// WithTimeout sets the per-request timeout. Zero keeps DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Opts) {
		if d > 0 {
			o.Timeout = d
		}
	}
}

// WithHTTPClient overrides the HTTP client, mainly for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(o *Opts) { o.HTTPClient = c }
}

// HTTPSink posts each lead as a JSON document to a spreadsheet webhook.
type HTTPSink struct {
	url     string
	timeout time.Duration
	client  *http.Client
}

var _ Sink = (*HTTPSink)(nil)

// NewHTTPSink builds an HTTPSink. A URL is required.
func NewHTTPSink(opts ...Option) (*HTTPSink, error) {
	cfg := Opts{Timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("lead sink URL not set")
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPSink{url: cfg.URL, timeout: cfg.Timeout, client: client}, nil
}

// SubmitLead posts the lead. Any non-2xx response is an error.
func (s *HTTPSink) SubmitLead(ctx context.Context, lead models.Lead) error {
	body, err := json.Marshal(lead)
	if err != nil {
		return fmt.Errorf("failed to encode lead: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build lead request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		slog.Error("HTTPSink.SubmitLead: request failed", "id", lead.ID, "error", err)
		return fmt.Errorf("failed to post lead: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		slog.Error("HTTPSink.SubmitLead: sink rejected lead", "id", lead.ID, "status", resp.StatusCode)
		return fmt.Errorf("lead sink returned status %d", resp.StatusCode)
	}
	slog.Info("HTTPSink.SubmitLead: lead delivered", "id", lead.ID, "plan", lead.Plan)
	return nil
}

// RepoSink archives leads in a store.LeadRepo.
type RepoSink struct {
	repo store.LeadRepo
}

var _ Sink = (*RepoSink)(nil)

// NewRepoSink wraps repo as a Sink.
func NewRepoSink(repo store.LeadRepo) *RepoSink {
	return &RepoSink{repo: repo}
}

func (s *RepoSink) SubmitLead(ctx context.Context, lead models.Lead) error {
	return s.repo.SaveLead(ctx, lead)
}

// MultiSink fans a lead out to every sink. All sinks are attempted; their errors are joined.
type MultiSink []Sink

var _ Sink = MultiSink(nil)

func (m MultiSink) SubmitLead(ctx context.Context, lead models.Lead) error {
	var errs []error
	for _, s := range m {
		if err := s.SubmitLead(ctx, lead); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
