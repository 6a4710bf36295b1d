// Package testutil provides shared test helpers for IntakePipe packages.
package testutil

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"net/url"
	"sort"
	"testing"

	"github.com/BTreeMap/IntakePipe/internal/models"
)

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t *testing.T, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// AssertJSONResponse decodes an APIResponse envelope and validates its status field.
func AssertJSONResponse(t *testing.T, rr *httptest.ResponseRecorder, expectedStatus models.APIStatus) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to decode JSON response: %v (body %q)", err, rr.Body.String())
	}
	if status, ok := response["status"].(string); !ok {
		t.Error("response missing or invalid 'status' field")
	} else if status != string(expectedStatus) {
		t.Errorf("expected status '%s', got '%s'", expectedStatus, status)
	}
	return response
}

// MustUnmarshalJSON unmarshals JSON data into target and fails test on error.
func MustUnmarshalJSON(t *testing.T, data []byte, target interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, target); err != nil {
		t.Fatalf("failed to unmarshal JSON: %v", err)
	}
}

// CloudWebhookPayload builds a Cloud API delivery carrying one text message.
func CloudWebhookPayload(t *testing.T, id, from, text string) []byte {
	t.Helper()
	env := models.WebhookEnvelope{
		Object: "whatsapp_business_account",
		Entry: []models.WebhookEntry{{
			ID: "WABA",
			Changes: []models.WebhookChange{{
				Field: "messages",
				Value: models.WebhookValue{
					MessagingProduct: "whatsapp",
					Messages: []models.WebhookMessage{{
						ID:        id,
						From:      from,
						Timestamp: "1700000000",
						Type:      "text",
						Text:      &models.WebhookText{Body: text},
					}},
				},
			}},
		}},
	}
	data, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("failed to marshal webhook payload: %v", err)
	}
	return data
}

// TwilioSignature computes X-Twilio-Signature for a form POST: base64 HMAC-SHA1 of the
// full URL followed by each sorted parameter name and value.
func TwilioSignature(authToken, fullURL string, params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	data := fullURL
	for _, k := range keys {
		data += k + params.Get(k)
	}
	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(data))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// AssertLeadFields compares the sink-relevant fields of two leads.
func AssertLeadFields(t *testing.T, expected, actual models.Lead, context string) {
	t.Helper()
	if actual.Phone != expected.Phone ||
		actual.CoverageType != expected.CoverageType ||
		actual.Plan != expected.Plan ||
		actual.Priority != expected.Priority ||
		actual.FamilyDetail != expected.FamilyDetail ||
		actual.PersonalData != expected.PersonalData {
		t.Errorf("%s: leads don't match\nexpected: %+v\nactual: %+v", context, expected, actual)
	}
	if fmt.Sprint(deref(expected.ElderOver75)) != fmt.Sprint(deref(actual.ElderOver75)) {
		t.Errorf("%s: elder flag mismatch: expected %v, got %v", context, deref(expected.ElderOver75), deref(actual.ElderOver75))
	}
}

func deref(b *bool) interface{} {
	if b == nil {
		return "unknown"
	}
	return *b
}
