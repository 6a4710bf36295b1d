package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/BTreeMap/IntakePipe/internal/flow"
	"github.com/BTreeMap/IntakePipe/internal/intent"
	"github.com/BTreeMap/IntakePipe/internal/leads"
	"github.com/BTreeMap/IntakePipe/internal/messaging"
	"github.com/BTreeMap/IntakePipe/internal/store"
	"golang.org/x/sync/errgroup"
)

// Modules is what Run wires together.
type Modules struct {
	Service         messaging.Service
	StoreOpts       []store.Option
	LeadSinkURL     string
	LeadSinkTimeout time.Duration
	SessionTTL      time.Duration
	UrgentTerms     []string
}

// Run starts the HTTP server, the session janitor and the provider event loop, and
// blocks until SIGINT/SIGTERM, ctx cancellation or the first fatal error.
func Run(ctx context.Context, m Modules, opts ...Option) error {
	if m.Service == nil {
		return fmt.Errorf("messaging service is required")
	}
	cfg := applyOpts(opts)

	st, err := store.New(m.StoreOpts...)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer st.Close()

	sink, err := buildLeadSink(st, m)
	if err != nil {
		return err
	}

	terms := m.UrgentTerms
	if len(terms) == 0 {
		terms = intent.DefaultUrgentTerms
	}
	engine := flow.NewEngine(intent.NewPatternClassifier(terms...))
	sessions := store.NewInMemorySessionStore(m.SessionTTL)
	respHandler := messaging.NewResponseHandler(m.Service, engine, sessions,
		messaging.WithDedup(st),
		messaging.WithLeadSink(sink),
	)
	server := NewServer(m.Service, respHandler, st, opts...)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := m.Service.Start(ctx); err != nil {
		return fmt.Errorf("failed to start messaging service: %w", err)
	}
	defer m.Service.Stop()

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("IntakePipe API listening", "addr", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		slog.Info("IntakePipe API shutting down")
		return httpServer.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		sessions.Run(gctx, 0)
		return nil
	})
	g.Go(func() error {
		return respHandler.Run(gctx)
	})

	return g.Wait()
}

// buildLeadSink archives every lead in st and, when configured, posts it to the sheet endpoint.
func buildLeadSink(st store.Store, m Modules) (leads.Sink, error) {
	sinks := leads.MultiSink{leads.NewRepoSink(st)}
	if m.LeadSinkURL == "" {
		slog.Info("No lead sink URL configured, leads are only archived")
		return sinks, nil
	}
	httpSink, err := leads.NewHTTPSink(leads.WithURL(m.LeadSinkURL), leads.WithTimeout(m.LeadSinkTimeout))
	if err != nil {
		return nil, fmt.Errorf("failed to configure lead sink: %w", err)
	}
	return append(sinks, httpSink), nil
}
