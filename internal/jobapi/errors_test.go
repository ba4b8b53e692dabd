package jobapi

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewAPIErrorMessages(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		body string
		want string
	}{
		{"detail string", `{"detail":"URL inválida"}`, "URL inválida"},
		{"detail list", `{"detail":[{"msg":"field required"},{"msg":"bad url"}]}`, "field required; bad url"},
		{"error key", `{"error":"boom"}`, "boom"},
		{"message key", `{"message":"nope"}`, "nope"},
		{"empty detail falls through", `{"detail":"","error":"fallback"}`, "fallback"},
		{"plain text", `Internal Server Error`, "request failed with status code 500"},
		{"empty body", ``, "request failed with status code 500"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := newAPIError("op", 500, []byte(tc.body))
			assert.Equal(t, tc.want, ErrorMessage(err))
		})
	}
}

func TestErrorMessageFallbacks(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "", ErrorMessage(nil))
	wrapped := fmt.Errorf("refresh: %w", &APIError{Op: "get_queue", StatusCode: 503, Message: "busy"})
	assert.Equal(t, "busy", ErrorMessage(wrapped))
	assert.Equal(t, "dial tcp: refused", ErrorMessage(&TransportError{Op: "x", Err: errors.New("dial tcp: refused")}))
	assert.Equal(t, "plain", ErrorMessage(errors.New("plain")))
	assert.Equal(t, DefaultErrorMessage, ErrorMessage(errors.New(" ")))
	assert.Equal(t, 0, StatusCode(errors.New("plain")))
}
