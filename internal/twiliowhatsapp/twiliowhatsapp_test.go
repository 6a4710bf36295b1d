package twiliowhatsapp

import (
	"context"
	"net/url"
	"testing"

	"github.com/BTreeMap/IntakePipe/internal/testutil"
)

func TestMockClient_SendMessage(t *testing.T) {
	ctx := context.Background()
	mock := NewMockClient()

	err := mock.SendMessage(ctx, "+5493515550001", "Hola")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(mock.SentMessages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(mock.SentMessages))
	}

	if mock.SentMessages[0].Body != "Hola" {
		t.Errorf("expected body %q, got %q", "Hola", mock.SentMessages[0].Body)
	}
}

func TestPrefixHelpers(t *testing.T) {
	if got := WithPrefix("+5493515550001"); got != "whatsapp:+5493515550001" {
		t.Errorf("WithPrefix = %q", got)
	}
	if got := WithPrefix("whatsapp:+1"); got != "whatsapp:+1" {
		t.Errorf("WithPrefix must not double the prefix, got %q", got)
	}
	if got := StripPrefix("whatsapp:+5493515550001"); got != "+5493515550001" {
		t.Errorf("StripPrefix = %q", got)
	}
}

func TestNewClient_MissingCredentials(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "")
	t.Setenv("TWILIO_AUTH_TOKEN", "")
	t.Setenv("TWILIO_FROM_NUMBER", "")
	if _, err := NewClient(WithAccountSID("AC123")); err == nil {
		t.Error("expected error without auth token")
	}
	if _, err := NewClient(WithAccountSID("AC123"), WithAuthToken("tok")); err == nil {
		t.Error("expected error without from number")
	}
	if _, err := NewClient(WithAccountSID("AC123"), WithAuthToken("tok"), WithFromWhats("+14155238886")); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidator(t *testing.T) {
	webhookURL := "https://intake.example.com/twilio/webhook"
	form := url.Values{
		"From":       {"whatsapp:+5493515550001"},
		"Body":       {"hola"},
		"MessageSid": {"SM123"},
	}
	params := map[string]string{}
	for k := range form {
		params[k] = form.Get(k)
	}
	v := NewValidator("secret-token")

	if !v.Validate(webhookURL, params, testutil.TwilioSignature("secret-token", webhookURL, form)) {
		t.Error("valid signature rejected")
	}
	if v.Validate(webhookURL, params, testutil.TwilioSignature("other-token", webhookURL, form)) {
		t.Error("signature with wrong token accepted")
	}
	if v.Validate(webhookURL, params, "") {
		t.Error("empty signature accepted")
	}
}
