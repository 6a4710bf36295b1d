package messaging

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/BTreeMap/IntakePipe/internal/flow"
	"github.com/BTreeMap/IntakePipe/internal/intent"
	"github.com/BTreeMap/IntakePipe/internal/leads"
	"github.com/BTreeMap/IntakePipe/internal/models"
	"github.com/BTreeMap/IntakePipe/internal/store"
	"github.com/BTreeMap/IntakePipe/internal/testutil"
	"github.com/BTreeMap/IntakePipe/internal/whatsapp"
)

// recordingService is a Service that records replies and can be made to fail.
type recordingService struct {
	mu      sync.Mutex
	sent    []whatsapp.SentMessage
	sendErr error
	*inbox
}

func newRecordingService() *recordingService {
	return &recordingService{inbox: newInbox()}
}

func (s *recordingService) ValidateAndCanonicalizeRecipient(r string) (string, error) {
	return canonicalizePhone(r)
}

func (s *recordingService) SendMessage(_ context.Context, to, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return s.sendErr
	}
	s.sent = append(s.sent, whatsapp.SentMessage{To: to, Body: body})
	return nil
}

func (s *recordingService) Start(context.Context) error      { return nil }
func (s *recordingService) Stop() error                      { s.close(); return nil }
func (s *recordingService) Responses() <-chan models.Response { return s.responses }

func (s *recordingService) replies() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.sent))
	for i, m := range s.sent {
		out[i] = m.Body
	}
	return out
}

type handlerFixture struct {
	svc      *recordingService
	sessions *store.InMemorySessionStore
	archive  *store.InMemoryStore
	handler  *ResponseHandler
}

func newHandlerFixture(t *testing.T, opts ...HandlerOption) *handlerFixture {
	t.Helper()
	f := &handlerFixture{
		svc:      newRecordingService(),
		sessions: store.NewInMemorySessionStore(0),
		archive:  store.NewInMemoryStore(),
	}
	engine := flow.NewEngine(intent.NewPatternClassifier(intent.DefaultUrgentTerms...))
	base := []HandlerOption{WithDedup(f.archive), WithLeadSink(leads.NewRepoSink(f.archive))}
	f.handler = NewResponseHandler(f.svc, engine, f.sessions, append(base, opts...)...)
	return f
}

func (f *handlerFixture) send(t *testing.T, from string, bodies ...string) {
	t.Helper()
	for _, body := range bodies {
		if err := f.handler.ProcessResponse(context.Background(), models.Response{From: from, Body: body}); err != nil {
			t.Fatalf("ProcessResponse(%q) failed: %v", body, err)
		}
	}
}

func (f *handlerFixture) step(t *testing.T, contact string) models.Step {
	t.Helper()
	s, err := f.sessions.Get(context.Background(), contact)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	return s.Step
}

func TestProcessResponse_IndividualConversation(t *testing.T) {
	f := newHandlerFixture(t)
	f.send(t, "5493515550001", "hola", "1", "1", "1", "Juan Pérez, DNI 12345678, 01/01/1990")

	replies := f.svc.replies()
	if len(replies) != 5 {
		t.Fatalf("expected 5 replies, got %d", len(replies))
	}
	if replies[0] != flow.MsgWelcomeMenu || replies[4] != flow.MsgClosing {
		t.Errorf("unexpected first/last replies: %q / %q", replies[0], replies[4])
	}
	if got := f.step(t, "5493515550001"); got != models.StepDone {
		t.Errorf("step = %s, want DONE", got)
	}

	archived, _ := f.archive.ListLeads(context.Background())
	if len(archived) != 1 {
		t.Fatalf("expected 1 archived lead, got %d", len(archived))
	}
	testutil.AssertLeadFields(t, models.Lead{
		Phone:        "5493515550001",
		CoverageType: models.CoverageIndividual,
		Plan:         models.PlanIndividual,
		Priority:     models.PriorityCosts,
		PersonalData: "Juan Pérez, DNI 12345678, 01/01/1990",
	}, archived[0], "individual lead")
}

func TestProcessResponse_CanonicalizesSender(t *testing.T) {
	f := newHandlerFixture(t)
	f.send(t, "+54 9 351 555 0001", "hola")
	if got := f.step(t, "5493515550001"); got != models.StepMenu {
		t.Errorf("step = %s, want MENU", got)
	}
	if f.svc.sent[0].To != "5493515550001" {
		t.Errorf("reply sent to %q", f.svc.sent[0].To)
	}
}

func TestProcessResponse_DuplicateDeliveryIgnored(t *testing.T) {
	f := newHandlerFixture(t)
	msg := models.Response{ID: "wamid.1", From: "5493515550001", Body: "hola"}

	for i := 0; i < 2; i++ {
		if err := f.handler.ProcessResponse(context.Background(), msg); err != nil {
			t.Fatalf("ProcessResponse failed: %v", err)
		}
	}
	if n := len(f.svc.replies()); n != 1 {
		t.Errorf("expected 1 reply for a redelivered message, got %d", n)
	}
	if got := f.step(t, "5493515550001"); got != models.StepMenu {
		t.Errorf("step = %s, want MENU", got)
	}
}

func TestProcessResponse_SendFailureKeepsTransition(t *testing.T) {
	f := newHandlerFixture(t)
	f.svc.sendErr = errors.New("graph api down")

	f.send(t, "5493515550001", "hola")
	if got := f.step(t, "5493515550001"); got != models.StepMenu {
		t.Errorf("step = %s, want MENU even though the reply failed", got)
	}
}

type failingSink struct{}

func (failingSink) SubmitLead(context.Context, models.Lead) error { return errors.New("sheet unreachable") }

func TestProcessResponse_SinkFailureStillReplies(t *testing.T) {
	f := newHandlerFixture(t, WithLeadSink(failingSink{}))
	f.send(t, "5493515550001", "hola", "1", "1", "2", "Ana")

	replies := f.svc.replies()
	if replies[len(replies)-1] != flow.MsgClosing {
		t.Errorf("last reply = %q, want closing message", replies[len(replies)-1])
	}
	if got := f.step(t, "5493515550001"); got != models.StepDone {
		t.Errorf("step = %s, want DONE", got)
	}
}

type panickingSessions struct{}

func (panickingSessions) Get(context.Context, string) (*models.Session, error) { panic("boom") }
func (panickingSessions) Save(context.Context, *models.Session) error        { return nil }

func TestProcessResponse_RecoversPanic(t *testing.T) {
	svc := newRecordingService()
	h := NewResponseHandler(svc, flow.NewEngine(nil), panickingSessions{})
	err := h.ProcessResponse(context.Background(), models.Response{From: "5493515550001", Body: "hola"})
	if err == nil {
		t.Fatal("expected error from recovered panic")
	}
	if len(svc.replies()) != 0 {
		t.Error("no reply should be sent after a panic")
	}
}

func TestProcessResponse_InvalidSender(t *testing.T) {
	f := newHandlerFixture(t)
	if err := f.handler.ProcessResponse(context.Background(), models.Response{From: "", Body: "hola"}); err == nil {
		t.Fatal("expected error for empty sender")
	}
	if f.sessions.Len() != 0 {
		t.Error("no session should be created for an invalid sender")
	}
}

func TestProcessResponse_ConcurrentSameContact(t *testing.T) {
	f := newHandlerFixture(t)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.handler.ProcessResponse(context.Background(), models.Response{From: "5493515550001", Body: "3"})
		}()
	}
	wg.Wait()

	// START -> MENU, then "3" at MENU -> HUMAN, then HUMAN falls back to MENU, alternating.
	if n := len(f.svc.replies()); n != 10 {
		t.Errorf("expected 10 replies, got %d", n)
	}
	if got := f.step(t, "5493515550001"); got != models.StepMenu && got != models.StepHuman {
		t.Errorf("unexpected final step %s", got)
	}
}

func TestResponseHandler_RunConsumesResponses(t *testing.T) {
	f := newHandlerFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- f.handler.Run(ctx) }()

	f.svc.emit(models.Response{ID: "A", From: "5493515550001", Body: "hola"})
	f.svc.emit(models.Response{ID: "B", From: "5493515550001", Body: "urgente"})

	deadline := time.After(2 * time.Second)
	for len(f.svc.replies()) < 2 {
		select {
		case <-deadline:
			t.Fatal("Run did not process queued responses")
		case <-time.After(5 * time.Millisecond):
		}
	}
	if got := f.step(t, "5493515550001"); got != models.StepUrgent {
		t.Errorf("step = %s, want URGENT", got)
	}

	f.svc.Stop()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after the channel closed")
	}
}

// flakySessions fails the first Save and delegates afterwards.
type flakySessions struct {
	*store.InMemorySessionStore
	failures int
}

func (s *flakySessions) Save(ctx context.Context, sess *models.Session) error {
	if s.failures > 0 {
		s.failures--
		return errors.New("session store unavailable")
	}
	return s.InMemorySessionStore.Save(ctx, sess)
}

func TestProcessResponse_RedeliveryAfterFailedSaveIsProcessed(t *testing.T) {
	sessions := &flakySessions{InMemorySessionStore: store.NewInMemorySessionStore(0), failures: 1}
	archive := store.NewInMemoryStore()
	svc := newRecordingService()
	h := NewResponseHandler(svc, flow.NewEngine(nil), sessions, WithDedup(archive))
	msg := models.Response{ID: "wamid.retry", From: "5493515550001", Body: "hola"}

	if err := h.ProcessResponse(context.Background(), msg); err == nil {
		t.Fatal("expected the failed save to be reported")
	}
	if n := len(svc.replies()); n != 0 {
		t.Fatalf("no reply expected after a failed save, got %d", n)
	}

	if err := h.ProcessResponse(context.Background(), msg); err != nil {
		t.Fatalf("redelivery failed: %v", err)
	}
	if replies := svc.replies(); len(replies) != 1 || replies[0] != flow.MsgWelcomeMenu {
		t.Errorf("redelivery replies = %q, want the welcome menu once", replies)
	}

	if err := h.ProcessResponse(context.Background(), msg); err != nil {
		t.Fatalf("third delivery failed: %v", err)
	}
	if n := len(svc.replies()); n != 1 {
		t.Errorf("processed message must not be replayed, got %d replies", n)
	}
}
