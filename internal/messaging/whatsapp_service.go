package messaging

import (
	"context"
	"log/slog"

	"github.com/BTreeMap/IntakePipe/internal/models"
	"github.com/BTreeMap/IntakePipe/internal/whatsapp"
)

// WhatsAppService runs the bot as a linked device through whatsmeow. Inbound messages
// are pushed onto Responses.
type WhatsAppService struct {
	client   whatsapp.Sender
	waClient *whatsapp.Client // nil for mocks
	*inbox
}

var _ Service = (*WhatsAppService)(nil)

// NewWhatsAppService wraps a whatsmeow client or a mock sender.
func NewWhatsAppService(client whatsapp.Sender) *WhatsAppService {
	s := &WhatsAppService{client: client, inbox: newInbox()}
	if waClient, ok := client.(*whatsapp.Client); ok {
		s.waClient = waClient
	} else {
		slog.Debug("WhatsAppService created without a live client, inbound events disabled")
	}
	return s
}

func (s *WhatsAppService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return canonicalizePhone(recipient)
}

// Start subscribes to inbound text events.
func (s *WhatsAppService) Start(ctx context.Context) error {
	if s.waClient == nil {
		return nil
	}
	s.waClient.OnInbound(s.Deliver)
	slog.Debug("WhatsAppService event handler registered")
	return nil
}

// Deliver queues an inbound message for the response loop.
func (s *WhatsAppService) Deliver(resp models.Response) {
	if s.emit(resp) {
		slog.Debug("WhatsAppService inbound message queued", "from", resp.From)
	}
}

func (s *WhatsAppService) Stop() error {
	s.close()
	if s.waClient != nil {
		s.waClient.Disconnect()
	}
	slog.Info("WhatsAppService stopped")
	return nil
}

func (s *WhatsAppService) SendMessage(ctx context.Context, to string, body string) error {
	if s.isStopped() {
		return ErrServiceStopped
	}
	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		return err
	}
	return s.client.SendMessage(ctx, canonicalTo, body)
}

func (s *WhatsAppService) Responses() <-chan models.Response { return s.responses }
