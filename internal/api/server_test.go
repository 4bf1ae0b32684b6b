package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/skylink/internal/db"
	"github.com/banshee-data/skylink/internal/ground"
	"github.com/banshee-data/skylink/internal/link"
	"github.com/banshee-data/skylink/internal/telemetry"
	"github.com/banshee-data/skylink/internal/testutil"
	"github.com/banshee-data/skylink/internal/timeutil"
	"github.com/banshee-data/skylink/internal/version"
)

type fakeStation struct {
	snap     ground.Snapshot
	requests int
	err      error
}

func (f *fakeStation) Snapshot() ground.Snapshot { return f.snap }

func (f *fakeStation) RequestCutdown() (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.requests++
	return "req-1", nil
}

func zeroSnapshot() ground.Snapshot {
	values := make(map[string]float32)
	for _, name := range telemetry.DefaultSchema.Names() {
		values[name] = 0
	}
	return ground.Snapshot{Values: values, Status: link.StatusOK}
}

func decode(t *testing.T, body io.Reader) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(body).Decode(&out))
	return out
}

func serve(s *Server, method, target string) *httptest.ResponseRecorder {
	rec := testutil.NewTestRecorder()
	s.ServeMux().ServeHTTP(rec, testutil.NewTestRequest(method, target))
	return rec
}

func TestShowData_ZerosBeforeFirstRecord(t *testing.T) {
	s := NewServer(&fakeStation{snap: zeroSnapshot()}, nil, "", "")

	rec := serve(s, http.MethodGet, "/api/data")
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)

	body := decode(t, rec.Body)
	for _, name := range telemetry.DefaultSchema.Names() {
		assert.Equal(t, 0.0, body[name], name)
	}
	assert.Equal(t, "OK", body["Heartbeat_Status"])
}

func TestShowData_UnitConversion(t *testing.T) {
	snap := zeroSnapshot()
	snap.Values[telemetry.FieldSpeed] = 10
	snap.Values[telemetry.FieldAltitude] = 1000
	snap.Values[telemetry.FieldPressure] = 1013.25
	snap.Status = link.StatusTimeout
	snap.SinceHeartbeat = 7500 * time.Millisecond

	tests := []struct {
		name      string
		query     string
		wantSpeed float64
		wantAlt   float64
	}{
		{"defaults", "", 10, 1000},
		{"mph", "?units=mph", 22.3694, 1000},
		{"knots and feet", "?units=knots&alt_units=ft", 19.43844, 3280.84},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewServer(&fakeStation{snap: snap}, nil, "mps", "m")
			rec := serve(s, http.MethodGet, "/api/data"+tt.query)
			testutil.AssertStatusCode(t, rec.Code, http.StatusOK)

			body := decode(t, rec.Body)
			assert.InDelta(t, tt.wantSpeed, body[telemetry.FieldSpeed], 0.01)
			assert.InDelta(t, tt.wantAlt, body[telemetry.FieldAltitude], 0.01)
			assert.InDelta(t, 1013.25, body[telemetry.FieldPressure], 0.001)
			assert.Equal(t, "TIMEOUT", body["Heartbeat_Status"])
			assert.InDelta(t, 7.5, body["Seconds_Since_Heartbeat"], 0.001)
		})
	}
}

func TestShowData_ServerDefaultUnits(t *testing.T) {
	snap := zeroSnapshot()
	snap.Values[telemetry.FieldAltitude] = 0.3048
	s := NewServer(&fakeStation{snap: snap}, nil, "kmph", "ft")

	body := decode(t, serve(s, http.MethodGet, "/api/data").Body)
	assert.InDelta(t, 1.0, body[telemetry.FieldAltitude], 0.0001)
	assert.Equal(t, map[string]interface{}{"speed": "kmph", "altitude": "ft"}, body["Units"])
}

func TestShowData_BadParams(t *testing.T) {
	s := NewServer(&fakeStation{snap: zeroSnapshot()}, nil, "", "")

	for _, target := range []string{"/api/data?units=furlongs", "/api/data?alt_units=km"} {
		rec := serve(s, http.MethodGet, target)
		testutil.AssertStatusCode(t, rec.Code, http.StatusBadRequest)
	}
	rec := serve(s, http.MethodPost, "/api/data")
	testutil.AssertStatusCode(t, rec.Code, http.StatusMethodNotAllowed)
}

func TestSendCutdown(t *testing.T) {
	st := &fakeStation{snap: zeroSnapshot()}
	s := NewServer(st, nil, "", "")

	rec := serve(s, http.MethodPost, "/api/cutdown")
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	body := decode(t, rec.Body)
	assert.Equal(t, "Cutdown signal sent successfully", body["message"])
	assert.Equal(t, "req-1", body["request_id"])
	assert.Equal(t, 1, st.requests, "exactly one cutdown per request")

	rec = serve(s, http.MethodGet, "/api/cutdown")
	testutil.AssertStatusCode(t, rec.Code, http.StatusMethodNotAllowed)
	assert.Equal(t, 1, st.requests)
}

func TestSendCutdown_Error(t *testing.T) {
	s := NewServer(&fakeStation{err: errors.New("write failed")}, nil, "", "")

	rec := serve(s, http.MethodPost, "/api/cutdown")
	testutil.AssertStatusCode(t, rec.Code, http.StatusInternalServerError)
	assert.Equal(t, "Failed to send cutdown signal", decode(t, rec.Body)["error"])
}

func seedRecords(t *testing.T, store *db.DB, n int) {
	t.Helper()
	clock := timeutil.NewMockClock(time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC))
	store.SetClock(clock)
	for i := 0; i < n; i++ {
		store.RecordTelemetry(telemetry.DefaultSchema.Record(telemetry.Readings{
			telemetry.FieldTimestamp: telemetry.Some(float32(i * 5000)),
			telemetry.FieldAltitude:  telemetry.Some(float32(100 + 25*i)),
			telemetry.FieldSpeed:     telemetry.Some(2),
		}))
		clock.Advance(5 * time.Second)
	}
}

func TestListRecords(t *testing.T) {
	store := cloneAPITestDB(t)
	seedRecords(t, store, 5)
	s := NewServer(&fakeStation{}, store, "", "")

	rec := serve(s, http.MethodGet, "/api/records?limit=2&units=kmph")
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)

	var got []recordAPI
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	require.Len(t, got, 2)
	assert.Equal(t, 200.0, got[0].Values[telemetry.FieldAltitude])
	assert.InDelta(t, 7.2, got[0].Values[telemetry.FieldSpeed], 0.001)
	assert.Equal(t, "2026-04-01T12:00:20.000Z", got[0].ReceivedAt)
}

func TestListRecords_Errors(t *testing.T) {
	store := cloneAPITestDB(t)

	tests := []struct {
		name   string
		server *Server
		target string
		want   int
	}{
		{"no database", NewServer(&fakeStation{}, nil, "", ""), "/api/records", http.StatusServiceUnavailable},
		{"bad limit", NewServer(&fakeStation{}, store, "", ""), "/api/records?limit=0", http.StatusBadRequest},
		{"huge limit", NewServer(&fakeStation{}, store, "", ""), "/api/records?limit=99999", http.StatusBadRequest},
		{"bad units", NewServer(&fakeStation{}, store, "", ""), "/api/records?units=x", http.StatusBadRequest},
		{"empty table", NewServer(&fakeStation{}, store, "", ""), "/api/records", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(tt.server, http.MethodGet, tt.target)
			testutil.AssertStatusCode(t, rec.Code, tt.want)
		})
	}
}

func TestListEvents(t *testing.T) {
	store := cloneAPITestDB(t)
	require.NoError(t, store.RecordLinkEvent("OK", "TIMEOUT"))
	_, err := store.RecordCutdownEvent(db.CutdownEvent{Kind: db.CutdownRequested})
	require.NoError(t, err)

	s := NewServer(&fakeStation{}, store, "", "")
	rec := serve(s, http.MethodGet, "/api/events")
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)

	body := decode(t, rec.Body)
	assert.Len(t, body["link"], 1)
	assert.Len(t, body["cutdown"], 1)
}

func TestListEvents_Empty(t *testing.T) {
	s := NewServer(&fakeStation{}, cloneAPITestDB(t), "", "")
	body := decode(t, serve(s, http.MethodGet, "/api/events").Body)
	assert.Equal(t, []interface{}{}, body["link"])
	assert.Equal(t, []interface{}{}, body["cutdown"])
}

func TestPlotAltitude(t *testing.T) {
	store := cloneAPITestDB(t)
	seedRecords(t, store, 10)
	s := NewServer(&fakeStation{}, store, "", "")

	rec := serve(s, http.MethodGet, "/api/altitude.png?alt_units=ft")
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")))
}

func TestPlotAltitude_NoRecords(t *testing.T) {
	s := NewServer(&fakeStation{}, cloneAPITestDB(t), "", "")

	rec := serve(s, http.MethodGet, "/api/altitude.png")
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")))
}

func TestAltitudePoints(t *testing.T) {
	start := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	recs := []db.StoredRecord{
		{ReceivedAt: start.Add(2 * time.Minute), Values: map[string]float32{telemetry.FieldAltitude: 300}},
		{ReceivedAt: start.Add(time.Minute), Values: map[string]float32{}},
		{ReceivedAt: start, Values: map[string]float32{telemetry.FieldAltitude: 100}},
	}

	pts := altitudePoints(recs, "m")
	require.Len(t, pts, 2)
	assert.Equal(t, 0.0, pts[0].X)
	assert.Equal(t, 100.0, pts[0].Y)
	assert.Equal(t, 2.0, pts[1].X)
	assert.Equal(t, 300.0, pts[1].Y)

	assert.Empty(t, altitudePoints(nil, "m"))
}

func TestShowVersion(t *testing.T) {
	s := NewServer(&fakeStation{}, nil, "", "")
	body := decode(t, serve(s, http.MethodGet, "/api/version").Body)
	assert.Equal(t, version.Version, body["version"])
}

func TestLoggingMiddleware(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(io.Discard)

	s := NewServer(&fakeStation{snap: zeroSnapshot()}, nil, "", "")
	h := LoggingMiddleware(s.ServeMux())

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/data", nil))
	assert.Empty(t, buf.String(), "successful data polls are not logged")

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/cutdown", nil))
	assert.Contains(t, buf.String(), "/api/cutdown")

	buf.Reset()
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/data?units=x", nil))
	assert.Contains(t, buf.String(), "400")
}

func TestStatusCodeColor(t *testing.T) {
	assert.Contains(t, statusCodeColor(200), colorBoldGreen)
	assert.Contains(t, statusCodeColor(302), colorYellow)
	assert.Contains(t, statusCodeColor(404), colorBoldRed)
	assert.Contains(t, statusCodeColor(503), colorBoldRed)
	assert.Equal(t, "100", statusCodeColor(100))
}
