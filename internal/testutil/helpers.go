package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"clubing-chat/internal/domain"
	"clubing-chat/internal/security"

	"github.com/stretchr/testify/require"
)

// TestJWTSecret signs tokens in handler and websocket tests.
const TestJWTSecret = "test-secret-that-is-long-enough-for-hs256"

// IssueToken returns a signed access token for memberID.
func IssueToken(t *testing.T, memberID domain.MemberID) string {
	t.Helper()
	token, err := security.NewTokenVerifier(TestJWTSecret).Issue(domain.Identity{MemberID: memberID}, time.Hour)
	require.NoError(t, err)
	return token
}

// NewJSONRequest creates a new HTTP request with JSON body
func NewJSONRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err, "marshal request body")
		reader = strings.NewReader(string(data))
	}
	req := httptest.NewRequest(method, url, reader)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// DecodeJSON decodes JSON response body into the given struct
func DecodeJSON[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var result T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&result), "decode body: %s", w.Body.String())
	return result
}

// AssertJSONError fails unless the response has the status and an error body containing msg.
func AssertJSONError(t *testing.T, w *httptest.ResponseRecorder, status int, msg string) {
	t.Helper()
	require.Equal(t, status, w.Code, "body: %s", w.Body.String())
	require.Contains(t, w.Body.String(), `"error"`)
	require.Contains(t, w.Body.String(), msg)
}
