// internal/recorder/recorder.go

// Package recorder persists a sequence-of-events log to SQLite. It records
// transitions only: tag values that changed since the previous poll and
// session status changes. Steady-state polls produce no rows.
package recorder

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/tamzrod/modbus-probe/internal/poller"
	"github.com/tamzrod/modbus-probe/internal/status"
)

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id      INTEGER PRIMARY KEY AUTOINCREMENT,
	ts      TEXT NOT NULL,
	session TEXT NOT NULL,
	kind    TEXT NOT NULL,
	tag     TEXT NOT NULL DEFAULT '',
	value   REAL,
	status  TEXT NOT NULL DEFAULT '',
	error   TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS events_session_ts ON events (session, ts);
`

// Event kinds.
const (
	KindValue  = "value"
	KindStatus = "status"
)

// Event is one persisted row, as read back by Events.
type Event struct {
	Timestamp time.Time
	Session   string
	Kind      string
	Tag       string
	Value     float64
	Status    string
	Error     string
}

// Recorder is a poll-result subscriber writing change events to one SQLite
// file. Safe for a single writer; the scheduler publishes synchronously from
// one goroutine, the mutex guards against a concurrent manual Record.
type Recorder struct {
	db  *sql.DB
	log zerolog.Logger

	mu         sync.Mutex
	lastStatus map[string]status.Status
	lastValues map[string]map[string]float64
}

// Open creates or opens the event database at path.
func Open(path string, logger zerolog.Logger) (*Recorder, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("recorder: open %q: %w", path, err)
	}
	// One writer; the driver serializes, a pool would just fight over locks.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("recorder: init schema: %w", err)
	}

	return &Recorder{
		db:         db,
		log:        logger.With().Str("component", "recorder").Logger(),
		lastStatus: make(map[string]status.Status),
		lastValues: make(map[string]map[string]float64),
	}, nil
}

// Close flushes and closes the database.
func (r *Recorder) Close() error {
	return r.db.Close()
}

// Record ingests one poll result. Insert failures are logged and swallowed:
// the recorder must never stall the poll loop.
func (r *Recorder) Record(res poller.PollResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ts := res.Timestamp.UTC().Format(time.RFC3339Nano)

	if prev, seen := r.lastStatus[res.SessionName]; !seen || prev != res.Status {
		r.lastStatus[res.SessionName] = res.Status
		r.insert(ts, res.SessionName, KindStatus, "", 0, string(res.Status), res.ErrorMessage)
	}

	if res.Status != status.Ok {
		return
	}

	values := r.lastValues[res.SessionName]
	if values == nil {
		values = make(map[string]float64)
		r.lastValues[res.SessionName] = values
	}
	for _, v := range res.Values {
		if !v.FromTag {
			continue
		}
		if prev, seen := values[v.Name]; seen && prev == v.Scaled {
			continue
		}
		values[v.Name] = v.Scaled
		r.insert(ts, res.SessionName, KindValue, v.Name, v.Scaled, string(res.Status), "")
	}
}

func (r *Recorder) insert(ts, session, kind, tag string, value float64, st, errMsg string) {
	_, err := r.db.Exec(
		`INSERT INTO events (ts, session, kind, tag, value, status, error) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ts, session, kind, tag, value, st, errMsg,
	)
	if err != nil {
		r.log.Error().Err(err).Str("session", session).Msg("event insert failed")
	}
}

// Events returns up to limit most recent events for a session, oldest first.
// A limit of 0 returns everything.
func (r *Recorder) Events(session string, limit int) ([]Event, error) {
	q := `SELECT ts, session, kind, tag, value, status, error FROM events WHERE session = ? ORDER BY id`
	args := []any{session}
	if limit > 0 {
		q = `SELECT ts, session, kind, tag, value, status, error FROM (
			SELECT id, ts, session, kind, tag, value, status, error FROM events
			WHERE session = ? ORDER BY id DESC LIMIT ?
		) ORDER BY id`
		args = append(args, limit)
	}

	rows, err := r.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("recorder: query events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var ev Event
		var ts string
		if err := rows.Scan(&ts, &ev.Session, &ev.Kind, &ev.Tag, &ev.Value, &ev.Status, &ev.Error); err != nil {
			return nil, fmt.Errorf("recorder: scan event: %w", err)
		}
		ev.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		out = append(out, ev)
	}
	return out, rows.Err()
}
