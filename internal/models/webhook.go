package models

// WebhookEnvelope is the subset of the WhatsApp Cloud API webhook payload the intake agent reads.
type WebhookEnvelope struct {
	Object string         `json:"object"`
	Entry  []WebhookEntry `json:"entry"`
}

// WebhookEntry groups the changes delivered for one business account.
type WebhookEntry struct {
	ID      string          `json:"id"`
	Changes []WebhookChange `json:"changes"`
}

// WebhookChange carries a single change notification.
type WebhookChange struct {
	Field string       `json:"field"`
	Value WebhookValue `json:"value"`
}

// WebhookValue holds inbound messages and delivery statuses.
type WebhookValue struct {
	MessagingProduct string           `json:"messaging_product"`
	Messages         []WebhookMessage `json:"messages"`
}

// WebhookMessage is one inbound message. Text is nil for non-text messages.
type WebhookMessage struct {
	ID        string       `json:"id"`
	From      string       `json:"from"`
	Timestamp string       `json:"timestamp"`
	Type      string       `json:"type"`
	Text      *WebhookText `json:"text,omitempty"`
}

// WebhookText is the body of a text message.
type WebhookText struct {
	Body string `json:"body"`
}

// FirstMessage returns the first message of the first change of the first entry, if any.
func (e *WebhookEnvelope) FirstMessage() (WebhookMessage, bool) {
	if e == nil || len(e.Entry) == 0 {
		return WebhookMessage{}, false
	}
	changes := e.Entry[0].Changes
	if len(changes) == 0 {
		return WebhookMessage{}, false
	}
	msgs := changes[0].Value.Messages
	if len(msgs) == 0 {
		return WebhookMessage{}, false
	}
	return msgs[0], true
}

// TextBody returns the message text, or "" for non-text messages.
func (m WebhookMessage) TextBody() string {
	if m.Text == nil {
		return ""
	}
	return m.Text.Body
}
