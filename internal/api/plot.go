package api

import (
	"fmt"
	"log"
	"net/http"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/skylink/internal/db"
	"github.com/banshee-data/skylink/internal/httputil"
	"github.com/banshee-data/skylink/internal/telemetry"
	"github.com/banshee-data/skylink/internal/units"
)

// altitudePoints returns altitude against minutes since the oldest record.
// recs are newest first.
func altitudePoints(recs []db.StoredRecord, altUnits string) plotter.XYs {
	pts := make(plotter.XYs, 0, len(recs))
	if len(recs) == 0 {
		return pts
	}
	start := recs[len(recs)-1].ReceivedAt
	for i := len(recs) - 1; i >= 0; i-- {
		alt, ok := recs[i].Values[telemetry.FieldAltitude]
		if !ok {
			continue
		}
		pts = append(pts, plotter.XY{
			X: recs[i].ReceivedAt.Sub(start).Minutes(),
			Y: units.ConvertAltitude(float64(alt), altUnits),
		})
	}
	return pts
}

func (s *Server) plotAltitude(w http.ResponseWriter, r *http.Request) {
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
	_, alt, err := s.unitsFor(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	recs, err := s.db.RecentTelemetry(limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve records: %v", err))
		return
	}

	p := plot.New()
	p.Title.Text = "Altitude"
	p.X.Label.Text = "Minutes"
	p.Y.Label.Text = fmt.Sprintf("Altitude (%s)", alt)
	p.Add(plotter.NewGrid())

	if pts := altitudePoints(recs, alt); len(pts) > 0 {
		line, err := plotter.NewLine(pts)
		if err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("Failed to build plot: %v", err))
			return
		}
		line.Width = vg.Points(1)
		p.Add(line)
	}

	wt, err := p.WriterTo(10*vg.Inch, 5*vg.Inch, "png")
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to render plot: %v", err))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	if _, err := wt.WriteTo(w); err != nil {
		log.Printf("failed to write altitude plot: %v", err)
	}
}
