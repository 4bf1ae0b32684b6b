// Package db persists telemetry records, link status changes and cutdown
// events in sqlite.
package db

import (
	"compress/gzip"
	"database/sql"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"

	"github.com/banshee-data/skylink/internal/telemetry"
	"github.com/banshee-data/skylink/internal/timeutil"
)

// DefaultPath is the database file used when no path is given.
const DefaultPath = "skylink.db"

type DB struct {
	*sql.DB
	path  string
	clock timeutil.Clock
}

// NewDB opens (or creates) the database at path and applies any pending
// migrations.
func NewDB(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, err
	}
	db := &DB{DB: sqlDB, path: path, clock: timeutil.RealClock{}}
	if err := db.MigrateUp(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// SetClock replaces the clock used to stamp received_at and event times.
func (db *DB) SetClock(c timeutil.Clock) {
	db.clock = c
}

// columnName maps a schema field to its telemetry column.
func columnName(field string) string {
	return strings.ToLower(field)
}

var telemetryColumns = func() map[string]bool {
	cols := make(map[string]bool, telemetry.DefaultSchema.Len())
	for _, f := range telemetry.DefaultSchema.Fields {
		cols[columnName(f.Name)] = true
	}
	return cols
}()

// RecordTelemetry stores one completed record. It satisfies frame.Sink.
func (db *DB) RecordTelemetry(rec telemetry.Record) error {
	if rec.Schema == nil {
		return fmt.Errorf("record has no schema")
	}
	cols := []string{"received_at"}
	args := []interface{}{unixSeconds(db.clock.Now())}
	for i, f := range rec.Schema.Fields {
		col := columnName(f.Name)
		if !telemetryColumns[col] {
			return fmt.Errorf("no telemetry column for field %q", f.Name)
		}
		cols = append(cols, col)
		args = append(args, float64(rec.Values[i]))
	}
	q := fmt.Sprintf("INSERT INTO telemetry (%s) VALUES (?%s)",
		strings.Join(cols, ", "), strings.Repeat(", ?", len(cols)-1))
	if _, err := db.Exec(q, args...); err != nil {
		return fmt.Errorf("insert telemetry: %w", err)
	}
	return nil
}

// StoredRecord is a telemetry row with its receive time.
type StoredRecord struct {
	ID         int64              `json:"id"`
	ReceivedAt time.Time          `json:"received_at"`
	Values     map[string]float32 `json:"values"`
}

// Record converts the row back to a DefaultSchema record. Fields stored as
// NULL come back as zero.
func (s StoredRecord) Record() telemetry.Record {
	return telemetry.DefaultSchema.Record(readingsOf(s.Values))
}

func readingsOf(values map[string]float32) telemetry.Readings {
	r := make(telemetry.Readings, len(values))
	for k, v := range values {
		r[k] = telemetry.Some(v)
	}
	return r
}

func selectTelemetry() string {
	cols := []string{"id", "received_at"}
	for _, f := range telemetry.DefaultSchema.Fields {
		cols = append(cols, columnName(f.Name))
	}
	return "SELECT " + strings.Join(cols, ", ") + " FROM telemetry"
}

// RecentTelemetry returns up to limit rows, newest first.
func (db *DB) RecentTelemetry(limit int) ([]StoredRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(selectTelemetry()+" ORDER BY id DESC LIMIT ?", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StoredRecord
	for rows.Next() {
		rec, err := scanTelemetry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// LatestTelemetry returns the most recent row. ok is false when the table is
// empty.
func (db *DB) LatestTelemetry() (rec StoredRecord, ok bool, err error) {
	recs, err := db.RecentTelemetry(1)
	if err != nil || len(recs) == 0 {
		return StoredRecord{}, false, err
	}
	return recs[0], true, nil
}

// TelemetryCount returns the number of stored rows.
func (db *DB) TelemetryCount() (int64, error) {
	var n int64
	err := db.QueryRow("SELECT COUNT(*) FROM telemetry").Scan(&n)
	return n, err
}

func scanTelemetry(rows *sql.Rows) (StoredRecord, error) {
	fields := telemetry.DefaultSchema.Fields
	var (
		id         int64
		receivedAt float64
		values     = make([]sql.NullFloat64, len(fields))
	)
	dest := []interface{}{&id, &receivedAt}
	for i := range values {
		dest = append(dest, &values[i])
	}
	if err := rows.Scan(dest...); err != nil {
		return StoredRecord{}, err
	}
	rec := StoredRecord{
		ID:         id,
		ReceivedAt: fromUnixSeconds(receivedAt),
		Values:     make(map[string]float32, len(fields)),
	}
	for i, f := range fields {
		if values[i].Valid {
			rec.Values[f.Name] = float32(values[i].Float64)
		}
	}
	return rec, nil
}

// LinkEvent is one link status change seen by the ground station.
type LinkEvent struct {
	At   time.Time `json:"at"`
	From string    `json:"from"`
	To   string    `json:"to"`
}

// RecordLinkEvent stores a link status change.
func (db *DB) RecordLinkEvent(from, to string) error {
	_, err := db.Exec(`INSERT INTO link_events (at, from_status, to_status) VALUES (?, ?, ?)`,
		unixSeconds(db.clock.Now()), from, to)
	if err != nil {
		return fmt.Errorf("insert link event: %w", err)
	}
	return nil
}

// LinkEvents returns up to limit link events, newest first.
func (db *DB) LinkEvents(limit int) ([]LinkEvent, error) {
	rows, err := db.Query(`SELECT at, from_status, to_status FROM link_events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LinkEvent
	for rows.Next() {
		var (
			at float64
			ev LinkEvent
		)
		if err := rows.Scan(&at, &ev.From, &ev.To); err != nil {
			return nil, err
		}
		ev.At = fromUnixSeconds(at)
		out = append(out, ev)
	}
	return out, rows.Err()
}

// Cutdown event kinds.
const (
	CutdownRequested  = "request"
	CutdownTransition = "transition"
)

// CutdownEvent records an operator request on the ground or a state change
// on the payload.
type CutdownEvent struct {
	EventID   string    `json:"event_id"`
	MissionID string    `json:"mission_id,omitempty"`
	At        time.Time `json:"at"`
	Kind      string    `json:"kind"`
	State     string    `json:"state,omitempty"`
	Source    string    `json:"source,omitempty"`
	Detail    string    `json:"detail,omitempty"`
}

// RecordCutdownEvent stores ev, assigning an event ID and time when unset,
// and returns the event ID.
func (db *DB) RecordCutdownEvent(ev CutdownEvent) (string, error) {
	if ev.EventID == "" {
		ev.EventID = uuid.NewString()
	}
	if ev.At.IsZero() {
		ev.At = db.clock.Now()
	}
	_, err := db.Exec(`INSERT INTO cutdown_events (event_id, mission_id, at, kind, state, source, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ev.EventID, ev.MissionID, unixSeconds(ev.At), ev.Kind, ev.State, ev.Source, ev.Detail)
	if err != nil {
		return "", fmt.Errorf("insert cutdown event: %w", err)
	}
	return ev.EventID, nil
}

// CutdownEvents returns up to limit cutdown events, newest first.
func (db *DB) CutdownEvents(limit int) ([]CutdownEvent, error) {
	rows, err := db.Query(`SELECT event_id, mission_id, at, kind, state, source, detail
		FROM cutdown_events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CutdownEvent
	for rows.Next() {
		var (
			ev                             CutdownEvent
			at                             float64
			mission, state, source, detail sql.NullString
		)
		if err := rows.Scan(&ev.EventID, &mission, &at, &ev.Kind, &state, &source, &detail); err != nil {
			return nil, err
		}
		ev.At = fromUnixSeconds(at)
		ev.MissionID = mission.String
		ev.State = state.String
		ev.Source = source.String
		ev.Detail = detail.String
		out = append(out, ev)
	}
	return out, rows.Err()
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

// fromUnixSeconds rounds to the microsecond, the precision a float64 keeps
// for current dates.
func fromUnixSeconds(s float64) time.Time {
	return time.UnixMicro(int64(math.Round(s * 1e6))).UTC()
}

// AttachAdminRoutes mounts a tailsql console and a backup download under
// /debug/.
func (db *DB) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		log.Fatalf("failed to create tailsql server: %v", err)
	}
	tsql.SetDB("sqlite://"+filepath.Base(db.path), db.DB, &tailsql.DBOptions{
		Label: "Telemetry DB",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())
	debug.Handle("backup", "Create and download a backup of the database now", http.HandlerFunc(db.serveBackup))
}

func (db *DB) serveBackup(w http.ResponseWriter, r *http.Request) {
	name := fmt.Sprintf("backup-%d.db", db.clock.Now().Unix())
	backupPath := filepath.Join(os.TempDir(), name)
	if _, err := db.Exec("VACUUM INTO ?", backupPath); err != nil {
		http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
		return
	}
	defer func() {
		if err := os.Remove(backupPath); err != nil {
			log.Printf("Failed to remove backup file: %v", err)
		}
	}()

	backupFile, err := os.Open(backupPath)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
		return
	}
	defer backupFile.Close()

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.gz", name))
	w.Header().Set("Content-Type", "application/gzip")

	gz := gzip.NewWriter(w)
	defer gz.Close()
	if _, err := io.Copy(gz, backupFile); err != nil {
		log.Printf("backup copy failed: %v", err)
	}
}
