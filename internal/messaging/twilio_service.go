package messaging

import (
	"context"
	"log/slog"

	"github.com/BTreeMap/IntakePipe/internal/models"
	"github.com/BTreeMap/IntakePipe/internal/twiliowhatsapp"
)

// TwilioService sends through Twilio's WhatsApp API. Inbound traffic arrives on the
// /twilio/webhook endpoint.
type TwilioService struct {
	client twiliowhatsapp.Sender // real Twilio client or MockClient
	*inbox
}

var _ Service = (*TwilioService)(nil)

// NewTwilioService wraps a Twilio sender.
func NewTwilioService(client twiliowhatsapp.Sender) *TwilioService {
	return &TwilioService{client: client, inbox: newInbox()}
}

// ValidateAndCanonicalizeRecipient accepts "whatsapp:+549..." as well as bare numbers.
func (s *TwilioService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return canonicalizePhone(twiliowhatsapp.StripPrefix(recipient))
}

// SendMessage sends to the E.164 form of the contact id.
func (s *TwilioService) SendMessage(ctx context.Context, to string, body string) error {
	if s.isStopped() {
		return ErrServiceStopped
	}
	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Error("TwilioService.SendMessage: invalid recipient", "error", err, "to", to)
		return err
	}
	return s.client.SendMessage(ctx, "+"+canonicalTo, body)
}

func (s *TwilioService) Start(ctx context.Context) error { return nil }

func (s *TwilioService) Stop() error {
	s.close()
	slog.Info("TwilioService stopped")
	return nil
}

func (s *TwilioService) Responses() <-chan models.Response { return s.responses }
