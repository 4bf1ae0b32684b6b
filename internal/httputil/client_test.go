package httputil

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestDoJSON_Success(t *testing.T) {
	m := NewMockHTTPClient().AddResponse(http.StatusOK, `{"Heartbeat_Status":"OK","Altitude":120.5}`)

	var out struct {
		Heartbeat_Status string
		Altitude         float64
	}
	if err := DoJSON(m, http.MethodGet, "http://ground/api/data", &out); err != nil {
		t.Fatal(err)
	}
	if out.Heartbeat_Status != "OK" || out.Altitude != 120.5 {
		t.Errorf("decoded %+v", out)
	}

	req := m.GetRequest(0)
	if req.Method != http.MethodGet || req.URL.Path != "/api/data" {
		t.Errorf("request = %s %s", req.Method, req.URL)
	}
	if req.Header.Get("Accept") != "application/json" {
		t.Error("Accept header not set")
	}
}

func TestDoJSON_StatusError(t *testing.T) {
	m := NewMockHTTPClient().AddResponse(http.StatusInternalServerError, `{"error":"Failed to send cutdown signal"}`)

	err := DoJSON(m, http.MethodPost, "http://ground/api/cutdown", nil)
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("got %v, want StatusError", err)
	}
	if se.StatusCode != 500 || se.Message != "Failed to send cutdown signal" {
		t.Errorf("got %+v", se)
	}
	if se.Error() != "http 500: Failed to send cutdown signal" {
		t.Errorf("Error() = %q", se.Error())
	}
}

func TestDoJSON_StatusErrorWithoutBody(t *testing.T) {
	m := NewMockHTTPClient().AddResponse(http.StatusBadGateway, "upstream down")
	err := DoJSON(m, http.MethodGet, "http://ground/api/data", nil)
	if err == nil || err.Error() != "http 502" {
		t.Errorf("got %v", err)
	}
}

func TestDoJSON_TransportAndDecodeErrors(t *testing.T) {
	m := NewMockHTTPClient().
		AddErrorResponse(errors.New("connection refused")).
		AddResponse(http.StatusOK, "not json")

	if err := DoJSON(m, http.MethodGet, "http://ground/api/data", nil); err == nil {
		t.Error("expected transport error")
	}
	var out map[string]interface{}
	if err := DoJSON(m, http.MethodGet, "http://ground/api/data", &out); err == nil {
		t.Error("expected decode error")
	}
	if m.RequestCount() != 2 {
		t.Errorf("RequestCount = %d", m.RequestCount())
	}
	if err := DoJSON(m, http.MethodGet, "://bad", nil); err == nil {
		t.Error("expected URL error")
	}
}

func TestMockHTTPClient_DefaultResponse(t *testing.T) {
	m := NewMockHTTPClient()
	if err := DoJSON(m, http.MethodGet, "http://x/", nil); err != nil {
		t.Errorf("default response should be an empty 200: %v", err)
	}
	if m.GetRequest(5) != nil {
		t.Error("out of range GetRequest should be nil")
	}
}

func TestStandardClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		WriteJSONOK(w, map[string]string{"method": r.Method})
	}))
	defer srv.Close()

	c := NewStandardClient(nil)
	if c.Client != http.DefaultClient {
		t.Error("nil client should use http.DefaultClient")
	}

	var out map[string]string
	if err := DoJSON(NewStandardClient(srv.Client()), http.MethodPost, srv.URL, &out); err != nil {
		t.Fatal(err)
	}
	if out["method"] != http.MethodPost {
		t.Errorf("got %v", out)
	}
}
