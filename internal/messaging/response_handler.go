package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/BTreeMap/IntakePipe/internal/flow"
	"github.com/BTreeMap/IntakePipe/internal/leads"
	"github.com/BTreeMap/IntakePipe/internal/models"
	"github.com/BTreeMap/IntakePipe/internal/store"
)

// ResponseHandler runs one inbound message through the dialog: dedup, per-contact lock,
// session transition, lead delivery and the reply.
type ResponseHandler struct {
	msgService Service
	engine     *flow.Engine
	sessions   store.SessionStore
	locker     *store.ContactLocker
	dedup      store.DedupRepo
	sink       leads.Sink
}

// HandlerOption configures a ResponseHandler.
type HandlerOption func(*ResponseHandler)

// WithDedup drops redelivered provider message ids.
func WithDedup(repo store.DedupRepo) HandlerOption {
	return func(rh *ResponseHandler) { rh.dedup = repo }
}

// WithLeadSink sets where completed leads are delivered.
func WithLeadSink(sink leads.Sink) HandlerOption {
	return func(rh *ResponseHandler) {
		if sink != nil {
			rh.sink = sink
		}
	}
}

// WithLocker shares a ContactLocker with other handlers.
func WithLocker(l *store.ContactLocker) HandlerOption {
	return func(rh *ResponseHandler) {
		if l != nil {
			rh.locker = l
		}
	}
}

// NewResponseHandler wires a handler for msgService.
func NewResponseHandler(msgService Service, engine *flow.Engine, sessions store.SessionStore, opts ...HandlerOption) *ResponseHandler {
	rh := &ResponseHandler{
		msgService: msgService,
		engine:     engine,
		sessions:   sessions,
		locker:     store.NewContactLocker(),
		sink:       leads.NopSink{},
	}
	for _, opt := range opts {
		opt(rh)
	}
	return rh
}

// ProcessResponse handles one inbound message. Delivery and sink failures are logged and
// do not undo the transition; the returned error only reports failures before the
// transition was stored. Panics are recovered and reported as errors.
func (rh *ResponseHandler) ProcessResponse(ctx context.Context, response models.Response) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("ResponseHandler.ProcessResponse: panic recovered", "panic", r, "from", response.From, "stack", string(debug.Stack()))
			err = fmt.Errorf("panic while processing message from %s: %v", response.From, r)
		}
	}()

	contactID, err := rh.msgService.ValidateAndCanonicalizeRecipient(response.From)
	if err != nil {
		slog.Warn("ResponseHandler.ProcessResponse: invalid sender", "error", err, "from", response.From)
		return fmt.Errorf("invalid sender: %w", err)
	}

	// Redeliveries of one message share the contact lock, so the dedup check and
	// the transition it guards cannot interleave.
	unlock := rh.locker.Lock(contactID)
	defer unlock()

	if response.ID != "" && rh.dedup != nil {
		pending, derr := rh.dedup.RecordInbound(ctx, response.ID, contactID)
		if derr != nil {
			slog.Error("ResponseHandler.ProcessResponse: dedup lookup failed, processing anyway", "error", derr, "message_id", response.ID)
		} else if !pending {
			slog.Info("ResponseHandler.ProcessResponse: duplicate delivery ignored", "message_id", response.ID, "contact", contactID)
			return nil
		}
	}

	session, err := rh.sessions.Get(ctx, contactID)
	if err != nil {
		return fmt.Errorf("failed to load session for %s: %w", contactID, err)
	}
	from := session.Step
	out := rh.engine.Advance(*session, flow.NewInput(response.Body))
	if err := rh.sessions.Save(ctx, &out.Session); err != nil {
		return fmt.Errorf("failed to save session for %s: %w", contactID, err)
	}
	if response.ID != "" && rh.dedup != nil {
		if merr := rh.dedup.MarkProcessed(ctx, response.ID); merr != nil {
			slog.Warn("ResponseHandler.ProcessResponse: failed to mark message processed", "error", merr, "message_id", response.ID)
		}
	}
	slog.Info("ResponseHandler.ProcessResponse: step advanced", "contact", contactID, "from", from, "to", out.Session.Step, "urgent", out.Urgent)

	if out.Lead != nil {
		if serr := rh.sink.SubmitLead(ctx, *out.Lead); serr != nil {
			slog.Error("ResponseHandler.ProcessResponse: lead delivery failed", "error", serr, "contact", contactID, "lead", out.Lead.ID)
		} else {
			slog.Info("ResponseHandler.ProcessResponse: lead submitted", "contact", contactID, "lead", out.Lead.ID, "plan", out.Lead.Plan)
		}
	}

	if serr := rh.msgService.SendMessage(ctx, contactID, out.Reply); serr != nil {
		slog.Error("ResponseHandler.ProcessResponse: reply not delivered", "error", serr, "contact", contactID, "step", out.Session.Step)
	}
	return nil
}

// Run consumes the service's Responses channel until ctx is done or the channel closes.
func (rh *ResponseHandler) Run(ctx context.Context) error {
	slog.Info("ResponseHandler starting response processing")
	defer slog.Info("ResponseHandler stopped response processing")
	for {
		select {
		case response, ok := <-rh.msgService.Responses():
			if !ok {
				slog.Debug("ResponseHandler responses channel closed")
				return nil
			}
			if err := rh.ProcessResponse(ctx, response); err != nil {
				slog.Error("ResponseHandler failed to process response", "error", err, "from", response.From)
			}
		case <-ctx.Done():
			return nil
		}
	}
}
