package messaging

import (
	"context"
	"log/slog"

	"github.com/BTreeMap/IntakePipe/internal/cloudapi"
	"github.com/BTreeMap/IntakePipe/internal/models"
)

// CloudService sends through the WhatsApp Business Cloud API. Inbound traffic arrives on
// the HTTP webhook, so its Responses channel only closes on Stop.
type CloudService struct {
	sender cloudapi.Sender
	*inbox
}

var _ Service = (*CloudService)(nil)

// NewCloudService wraps a Cloud API sender.
func NewCloudService(sender cloudapi.Sender) *CloudService {
	return &CloudService{sender: sender, inbox: newInbox()}
}

func (s *CloudService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return canonicalizePhone(recipient)
}

func (s *CloudService) SendMessage(ctx context.Context, to string, body string) error {
	if s.isStopped() {
		return ErrServiceStopped
	}
	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		return err
	}
	if err := s.sender.SendText(ctx, canonicalTo, body); err != nil {
		return err
	}
	slog.Debug("CloudService.SendMessage: sent", "to", canonicalTo)
	return nil
}

func (s *CloudService) Start(ctx context.Context) error { return nil }

func (s *CloudService) Stop() error {
	s.close()
	slog.Info("CloudService stopped")
	return nil
}

func (s *CloudService) Responses() <-chan models.Response { return s.responses }
