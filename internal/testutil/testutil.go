// Package testutil provides shared test helpers and fixtures.
package testutil

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/banshee-data/skylink/internal/telemetry"
)

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t testing.TB, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// NewTestRequest creates a test HTTP request with a loopback remote address,
// which the /debug/ routes require.
func NewTestRequest(method, path string) *http.Request {
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = "127.0.0.1:12345"
	return req
}

// NewTestRecorder creates a test response recorder.
func NewTestRecorder() *httptest.ResponseRecorder {
	return httptest.NewRecorder()
}

// SequentialRecord returns a record on s whose i-th value is base + i*step,
// so every field is distinct and its position is recoverable.
func SequentialRecord(s *telemetry.Schema, base, step float32) telemetry.Record {
	values := make([]float32, s.Len())
	for i := range values {
		values[i] = base + float32(i)*step
	}
	return telemetry.Record{Schema: s, Values: values}
}
