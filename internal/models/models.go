// Package models defines the core data structures for IntakePipe.
//
// It includes the dialog session, the lead record produced by a completed dialog,
// inbound message envelopes and the JSON envelope returned by the admin API.
package models

import (
	"errors"
)

// Error variables shared across modules.
var (
	ErrEmptyRecipient = errors.New("recipient cannot be empty")
	ErrEmptyContactID = errors.New("contact id cannot be empty")
)

// Response is an inbound message from a contact, independent of the provider that delivered it.
type Response struct {
	ID   string `json:"id,omitempty"` // provider message id, used for redelivery dedup
	From string `json:"from"`
	Body string `json:"body"`
	Time int64  `json:"time"`
}

// APIStatus represents the status of an admin API response.
type APIStatus string

const (
	APIStatusOK    APIStatus = "ok"
	APIStatusError APIStatus = "error"
)

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`            // status of the API response
	Message string      `json:"message,omitempty"` // optional message for error responses or additional info
	Result  interface{} `json:"result,omitempty"`  // optional result data for successful responses
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Result: result}
}

// Error creates an error API response with the given message.
func Error(message string) APIResponse {
	return APIResponse{Status: string(APIStatusError), Message: message}
}
