package jobapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// DefaultErrorMessage is shown when neither the server nor the transport
// produced a usable message.
const DefaultErrorMessage = "unknown error"

// APIError is a non-success response from the backend.
type APIError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Op, e.StatusCode, e.Message)
}

// TransportError wraps failures that happened before a response was read.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ErrorMessage returns the text a user should see for err: the server-provided
// detail first, then the transport message, then DefaultErrorMessage.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && strings.TrimSpace(apiErr.Message) != "" {
		return apiErr.Message
	}
	var transportErr *TransportError
	if errors.As(err, &transportErr) && transportErr.Err != nil {
		if msg := strings.TrimSpace(transportErr.Err.Error()); msg != "" {
			return msg
		}
	}
	if msg := strings.TrimSpace(err.Error()); msg != "" {
		return msg
	}
	return DefaultErrorMessage
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

func newAPIError(op string, status int, body []byte) *APIError {
	msg := messageFromBody(body)
	if msg == "" {
		msg = fmt.Sprintf("request failed with status code %d", status)
	}
	return &APIError{Op: op, StatusCode: status, Message: msg}
}

// messageFromBody extracts a human message from an error payload. FastAPI
// reports "detail" as a string or, for validation failures, a list of objects
// carrying "msg".
func messageFromBody(body []byte) string {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	if raw, ok := payload["detail"]; ok {
		if msg := detailMessage(raw); msg != "" {
			return msg
		}
	}
	for _, key := range []string{"error", "message"} {
		var s string
		if err := json.Unmarshal(payload[key], &s); err == nil && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}

func detailMessage(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var list []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(raw, &list); err == nil {
		parts := make([]string, 0, len(list))
		for _, entry := range list {
			if entry.Msg != "" {
				parts = append(parts, entry.Msg)
			}
		}
		return strings.Join(parts, "; ")
	}
	return ""
}
