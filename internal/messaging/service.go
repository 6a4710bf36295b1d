// Package messaging connects messaging providers to the intake dialog.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"github.com/BTreeMap/IntakePipe/internal/models"
)

const (
	// DefaultChannelBufferSize is the buffer of each service's Responses channel.
	DefaultChannelBufferSize = 100
	// DefaultChannelTimeout bounds how long an inbound message waits for buffer space.
	DefaultChannelTimeout = 1 * time.Second
	// minPhoneDigits rejects obviously truncated numbers.
	minPhoneDigits = 6
)

// ErrServiceStopped is returned when sending through a stopped service.
var ErrServiceStopped = errors.New("messaging service stopped")

var nonDigitRegex = regexp.MustCompile(`\D`)

// Service is a pluggable WhatsApp provider.
type Service interface {
	// ValidateAndCanonicalizeRecipient reduces a provider address to the digits-only contact id.
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)

	// SendMessage sends a text message to a contact id.
	SendMessage(ctx context.Context, to string, body string) error

	// Start begins background processing such as event subscriptions.
	Start(ctx context.Context) error

	// Stop ends background processing and closes Responses.
	Stop() error

	// Responses carries inbound messages for providers that push events instead of calling a webhook.
	Responses() <-chan models.Response
}

// canonicalizePhone strips everything but digits: "whatsapp:+54 9 351..." becomes "549351...".
func canonicalizePhone(recipient string) (string, error) {
	if recipient == "" {
		return "", models.ErrEmptyRecipient
	}
	canonical := nonDigitRegex.ReplaceAllString(recipient, "")
	if canonical == "" {
		return "", fmt.Errorf("invalid phone number: no digits found in recipient %q", recipient)
	}
	if len(canonical) < minPhoneDigits {
		return "", fmt.Errorf("invalid phone number: %q is too short (minimum %d digits required)", canonical, minPhoneDigits)
	}
	return canonical, nil
}

// inbox is the stoppable Responses channel shared by every Service.
type inbox struct {
	mu        sync.RWMutex
	stopped   bool
	responses chan models.Response
}

func newInbox() *inbox {
	return &inbox{responses: make(chan models.Response, DefaultChannelBufferSize)}
}

func (b *inbox) isStopped() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.stopped
}

// emit queues an inbound message, dropping it if the buffer stays full.
func (b *inbox) emit(resp models.Response) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.stopped {
		slog.Warn("messaging.inbox.emit: service stopped, dropping inbound message", "from", resp.From)
		return false
	}
	select {
	case b.responses <- resp:
		return true
	case <-time.After(DefaultChannelTimeout):
		slog.Warn("messaging.inbox.emit: responses channel blocked, dropping message", "from", resp.From, "timeout", DefaultChannelTimeout)
		return false
	}
}

// close marks the inbox stopped and closes the channel once.
func (b *inbox) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return
	}
	b.stopped = true
	close(b.responses)
}
