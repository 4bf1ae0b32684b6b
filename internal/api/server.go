// Package api serves the ground station HTTP API: the latest record and link
// status, the cutdown command, stored records and an altitude plot.
package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/banshee-data/skylink/internal/db"
	"github.com/banshee-data/skylink/internal/ground"
	"github.com/banshee-data/skylink/internal/httputil"
	"github.com/banshee-data/skylink/internal/telemetry"
	"github.com/banshee-data/skylink/internal/units"
	"github.com/banshee-data/skylink/internal/version"
)

// Station is the ground station as seen by the API.
type Station interface {
	Snapshot() ground.Snapshot
	RequestCutdown() (string, error)
}

const (
	defaultRecordLimit = 100
	maxRecordLimit     = 5000
)

type Server struct {
	station  Station
	db       *db.DB
	units    string
	altUnits string
}

// NewServer creates an API server. store may be nil, in which case the
// record endpoints answer 503. speedUnits and altUnits are the defaults when
// a request gives none.
func NewServer(station Station, store *db.DB, speedUnits, altUnits string) *Server {
	if !units.IsValid(speedUnits) {
		speedUnits = units.MPS
	}
	if !units.IsValidAltitude(altUnits) {
		altUnits = units.Metres
	}
	return &Server{station: station, db: store, units: speedUnits, altUnits: altUnits}
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/data", s.showData)
	mux.HandleFunc("/api/cutdown", s.sendCutdown)
	mux.HandleFunc("/api/records", s.listRecords)
	mux.HandleFunc("/api/events", s.listEvents)
	mux.HandleFunc("/api/altitude.png", s.plotAltitude)
	mux.HandleFunc("/api/version", s.showVersion)
	return mux
}

// unitsFor returns the speed and altitude units requested by r, or an error
// naming the bad parameter.
func (s *Server) unitsFor(r *http.Request) (speed, alt string, err error) {
	speed, alt = s.units, s.altUnits
	if u := r.URL.Query().Get("units"); u != "" {
		if !units.IsValid(u) {
			return "", "", fmt.Errorf("invalid 'units' parameter, must be one of: %s", units.GetValidUnitsString())
		}
		speed = u
	}
	if u := r.URL.Query().Get("alt_units"); u != "" {
		if !units.IsValidAltitude(u) {
			return "", "", fmt.Errorf("invalid 'alt_units' parameter, must be one of: %s", units.GetValidAltitudeUnitsString())
		}
		alt = u
	}
	return speed, alt, nil
}

func convertValues(values map[string]float32, speed, alt string) map[string]interface{} {
	out := make(map[string]interface{}, len(values)+4)
	for k, v := range values {
		switch k {
		case telemetry.FieldSpeed:
			out[k] = units.ConvertSpeed(float64(v), speed)
		case telemetry.FieldAltitude:
			out[k] = units.ConvertAltitude(float64(v), alt)
		default:
			out[k] = float64(v)
		}
	}
	return out
}

// showData returns every field of the latest record (0 before the first
// record) plus the link status.
func (s *Server) showData(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	speed, alt, err := s.unitsFor(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	snap := s.station.Snapshot()
	resp := convertValues(snap.Values, speed, alt)
	resp["Heartbeat_Status"] = snap.Status.String()
	resp["Seconds_Since_Heartbeat"] = snap.SinceHeartbeat.Seconds()
	resp["Records_Received"] = snap.Records
	resp["Pending_Packets"] = snap.Pending
	resp["Cutdowns_Sent"] = snap.CutdownsSent
	resp["Radio"] = snap.Radio
	resp["Units"] = map[string]string{"speed": speed, "altitude": alt}
	httputil.WriteJSONOK(w, resp)
}

func (s *Server) sendCutdown(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	id, err := s.station.RequestCutdown()
	if err != nil {
		httputil.InternalServerError(w, "Failed to send cutdown signal")
		return
	}
	httputil.WriteJSONOK(w, map[string]string{
		"message":    "Cutdown signal sent successfully",
		"request_id": id,
	})
}

func parseLimit(r *http.Request) (int, error) {
	limit := defaultRecordLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 1 || n > maxRecordLimit {
			return 0, fmt.Errorf("invalid 'limit' parameter, must be 1..%d", maxRecordLimit)
		}
		limit = n
	}
	return limit, nil
}

type recordAPI struct {
	ID         int64                  `json:"id"`
	ReceivedAt string                 `json:"received_at"`
	Values     map[string]interface{} `json:"values"`
}

func (s *Server) listRecords(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.db == nil {
		httputil.ServiceUnavailable(w, "no database configured")
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	speed, alt, err := s.unitsFor(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	recs, err := s.db.RecentTelemetry(limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve records: %v", err))
		return
	}
	out := make([]recordAPI, len(recs))
	for i, rec := range recs {
		out[i] = recordAPI{
			ID:         rec.ID,
			ReceivedAt: rec.ReceivedAt.Format("2006-01-02T15:04:05.000Z07:00"),
			Values:     convertValues(rec.Values, speed, alt),
		}
	}
	httputil.WriteJSONOK(w, out)
}

func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.db == nil {
		httputil.ServiceUnavailable(w, "no database configured")
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	links, err := s.db.LinkEvents(limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve link events: %v", err))
		return
	}
	cutdowns, err := s.db.CutdownEvents(limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve cutdown events: %v", err))
		return
	}
	if links == nil {
		links = []db.LinkEvent{}
	}
	if cutdowns == nil {
		cutdowns = []db.CutdownEvent{}
	}
	httputil.WriteJSONOK(w, map[string]interface{}{
		"link":    links,
		"cutdown": cutdowns,
	})
}

func (s *Server) showVersion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, map[string]string{
		"version":    version.Version,
		"git_sha":    version.GitSHA,
		"build_time": version.BuildTime,
	})
}
