package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	WriteJSON(w, http.StatusCreated, map[string]int{"records": 3})

	if w.Code != http.StatusCreated {
		t.Errorf("status = %d, want %d", w.Code, http.StatusCreated)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	var got map[string]int
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got["records"] != 3 {
		t.Errorf("body = %v", got)
	}
}

func TestErrorHelpers(t *testing.T) {
	tests := []struct {
		name    string
		write   func(http.ResponseWriter)
		status  int
		message string
	}{
		{"method not allowed", MethodNotAllowed, http.StatusMethodNotAllowed, "method not allowed"},
		{"bad request", func(w http.ResponseWriter) { BadRequest(w, "bad limit") }, http.StatusBadRequest, "bad limit"},
		{"internal", func(w http.ResponseWriter) { InternalServerError(w, "boom") }, http.StatusInternalServerError, "boom"},
		{"unavailable", func(w http.ResponseWriter) { ServiceUnavailable(w, "no db") }, http.StatusServiceUnavailable, "no db"},
		{"custom", func(w http.ResponseWriter) { WriteJSONError(w, http.StatusConflict, "busy") }, http.StatusConflict, "busy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.write(w)
			if w.Code != tt.status {
				t.Errorf("status = %d, want %d", w.Code, tt.status)
			}
			var body ErrorBody
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatal(err)
			}
			if body.Error != tt.message {
				t.Errorf("error = %q, want %q", body.Error, tt.message)
			}
		})
	}
}

func TestWriteJSONOK(t *testing.T) {
	w := httptest.NewRecorder()
	WriteJSONOK(w, []string{"a"})
	if w.Code != http.StatusOK {
		t.Errorf("status = %d", w.Code)
	}
}
