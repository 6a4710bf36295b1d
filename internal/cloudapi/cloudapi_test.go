package cloudapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClient_SendText(t *testing.T) {
	var gotPath, gotAuth string
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"messages":[{"id":"wamid.out"}]}`))
	}))
	defer srv.Close()

	c, err := NewClient(WithToken("tok"), WithPhoneNumberID("12345"), WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if err := c.SendText(context.Background(), "5493515550001", "Hola"); err != nil {
		t.Fatalf("SendText failed: %v", err)
	}

	if gotPath != "/v20.0/12345/messages" {
		t.Errorf("path = %s", gotPath)
	}
	if gotAuth != "Bearer tok" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if got["messaging_product"] != "whatsapp" || got["to"] != "5493515550001" {
		t.Errorf("unexpected payload: %v", got)
	}
	text, _ := got["text"].(map[string]interface{})
	if text["body"] != "Hola" {
		t.Errorf("text.body = %v", text["body"])
	}
}

func TestClient_GraphVersion(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
	}))
	defer srv.Close()

	c, _ := NewClient(WithToken("tok"), WithPhoneNumberID("9"), WithBaseURL(srv.URL+"/"), WithGraphVersion("v21.0"))
	if err := c.SendText(context.Background(), "1", "x"); err != nil {
		t.Fatalf("SendText failed: %v", err)
	}
	if gotPath != "/v21.0/9/messages" {
		t.Errorf("path = %s", gotPath)
	}
}

func TestClient_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"Invalid OAuth access token"}}`))
	}))
	defer srv.Close()

	c, _ := NewClient(WithToken("bad"), WithPhoneNumberID("1"), WithBaseURL(srv.URL))
	err := c.SendText(context.Background(), "5493515550001", "Hola")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("StatusCode = %d", apiErr.StatusCode)
	}
}

func TestClient_EmptyRecipient(t *testing.T) {
	c, _ := NewClient(WithToken("tok"), WithPhoneNumberID("1"))
	if err := c.SendText(context.Background(), "", "Hola"); err == nil {
		t.Error("expected error for empty recipient")
	}
}

func TestNewClient_RequiresCredentials(t *testing.T) {
	if _, err := NewClient(WithToken("tok")); err == nil {
		t.Error("expected error without phone number id")
	}
	if _, err := NewClient(WithPhoneNumberID("1")); err == nil {
		t.Error("expected error without token")
	}
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"object":"whatsapp_business_account"}`)
	sig := Sign("secret", body)

	if !VerifySignature("secret", body, sig) {
		t.Error("valid signature rejected")
	}
	if VerifySignature("other", body, sig) {
		t.Error("signature with wrong secret accepted")
	}
	if VerifySignature("secret", []byte(`{}`), sig) {
		t.Error("signature over different body accepted")
	}
	if VerifySignature("secret", body, "sha1=abc") {
		t.Error("wrong prefix accepted")
	}
	if VerifySignature("secret", body, "sha256=zz") {
		t.Error("non-hex signature accepted")
	}
	if VerifySignature("", body, sig) {
		t.Error("empty secret must never verify")
	}
}
