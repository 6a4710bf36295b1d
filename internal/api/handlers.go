package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/BTreeMap/IntakePipe/internal/cloudapi"
	"github.com/BTreeMap/IntakePipe/internal/models"
	"github.com/BTreeMap/IntakePipe/internal/twiliowhatsapp"
)

// webhookHandler serves the Cloud API subscription handshake (GET) and deliveries (POST).
func (s *Server) webhookHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.verifyWebhookHandler(w, r)
	case http.MethodPost:
		s.receiveWebhookHandler(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// verifyWebhookHandler echoes hub.challenge when the subscription token matches.
func (s *Server) verifyWebhookHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := q.Get("hub.mode")
	token := q.Get("hub.verify_token")
	challenge := q.Get("hub.challenge")

	if mode != "subscribe" || s.verifyToken == "" || token != s.verifyToken {
		slog.Warn("Server.verifyWebhookHandler: verification rejected", "mode", mode)
		w.WriteHeader(http.StatusForbidden)
		return
	}
	slog.Info("Server.verifyWebhookHandler: webhook verified")
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, challenge)
}

// receiveWebhookHandler processes one Cloud API delivery. It always answers 200.
func (s *Server) receiveWebhookHandler(w http.ResponseWriter, r *http.Request) {
	defer s.recoverAndAcknowledge(w, "receiveWebhookHandler")
	defer r.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		slog.Warn("Server.receiveWebhookHandler: failed to read body", "error", err)
		acknowledge(w)
		return
	}
	if s.appSecret != "" && !cloudapi.VerifySignature(s.appSecret, raw, r.Header.Get(cloudapi.SignatureHeader)) {
		slog.Warn("Server.receiveWebhookHandler: invalid signature, ignoring delivery")
		acknowledge(w)
		return
	}

	var env models.WebhookEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		slog.Debug("Server.receiveWebhookHandler: payload is not JSON, ignoring", "error", err)
		acknowledge(w)
		return
	}
	msg, ok := env.FirstMessage()
	if !ok {
		slog.Debug("Server.receiveWebhookHandler: no message in delivery", "object", env.Object)
		acknowledge(w)
		return
	}

	s.process(r.Context(), models.Response{
		ID:   msg.ID,
		From: msg.From,
		Body: msg.TextBody(),
		Time: parseUnix(msg.Timestamp),
	})
	acknowledge(w)
}

// twilioWebhookHandler processes a Twilio WhatsApp delivery. It always answers 200.
func (s *Server) twilioWebhookHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	defer s.recoverAndAcknowledge(w, "twilioWebhookHandler")

	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBody)
	if err := r.ParseForm(); err != nil {
		slog.Warn("Server.twilioWebhookHandler: failed to parse form", "error", err)
		acknowledge(w)
		return
	}

	if s.twilioValidator != nil {
		params := make(map[string]string, len(r.PostForm))
		for k := range r.PostForm {
			params[k] = r.PostForm.Get(k)
		}
		if !s.twilioValidator.Validate(s.requestURL(r), params, r.Header.Get(twiliowhatsapp.SignatureHeader)) {
			slog.Warn("Server.twilioWebhookHandler: invalid signature, ignoring delivery")
			acknowledge(w)
			return
		}
	}

	from := r.PostForm.Get("From")
	if from == "" {
		slog.Debug("Server.twilioWebhookHandler: delivery without sender, ignoring")
		acknowledge(w)
		return
	}
	s.process(r.Context(), models.Response{
		ID:   r.PostForm.Get("MessageSid"),
		From: twiliowhatsapp.StripPrefix(from),
		Body: r.PostForm.Get("Body"),
		Time: time.Now().Unix(),
	})
	acknowledge(w)
}

// process runs the dialog detached from the request context so a provider hang-up
// does not abort the reply or the lead delivery.
func (s *Server) process(ctx context.Context, resp models.Response) {
	if err := s.respHandler.ProcessResponse(context.WithoutCancel(ctx), resp); err != nil {
		slog.Error("Server.process: message not processed", "error", err, "from", resp.From)
	}
}

// recoverAndAcknowledge turns a handler panic into a logged 200.
func (s *Server) recoverAndAcknowledge(w http.ResponseWriter, handler string) {
	if rec := recover(); rec != nil {
		slog.Error("Server."+handler+": panic recovered", "panic", rec, "stack", string(debug.Stack()))
		acknowledge(w)
	}
}

// requestURL rebuilds the URL Twilio signed.
func (s *Server) requestURL(r *http.Request) string {
	if s.publicBaseURL != "" {
		return s.publicBaseURL + r.URL.RequestURI()
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if fwd := r.Header.Get("X-Forwarded-Proto"); fwd != "" {
		scheme = fwd
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}

func parseUnix(ts string) int64 {
	if v, err := strconv.ParseInt(ts, 10, 64); err == nil {
		return v
	}
	return time.Now().Unix()
}

// healthHandler reports liveness.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.startedAt).Round(time.Second).String(),
	}))
}

// leadsHandler lists archived leads.
func (s *Server) leadsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.leadRepo == nil {
		writeJSONResponse(w, http.StatusServiceUnavailable, models.Error("Lead archive not configured"))
		return
	}
	list, err := s.leadRepo.ListLeads(r.Context())
	if err != nil {
		slog.Error("Server.leadsHandler: failed to list leads", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list leads"))
		return
	}
	if list == nil {
		list = []models.Lead{}
	}
	writeJSONResponse(w, http.StatusOK, models.Success(list))
}
