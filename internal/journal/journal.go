// Package journal keeps the durable action history in SQLite. One row per
// terminal outcome, pending dispositions included, so the history endpoint
// survives restarts.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/chainclass/defisim/internal/orchestrator"
	"github.com/chainclass/defisim/internal/report"
)

var log = logrus.WithField("component", "journal")

// Entry is one recorded outcome.
type Entry struct {
	ID              int64              `json:"id"`
	Kind            string             `json:"kind"`
	Caller          string             `json:"caller"`
	ConfirmationRef string             `json:"confirmationRef,omitempty"`
	Sequence        uint64             `json:"sequence,omitempty"`
	Pending         bool               `json:"pending,omitempty"`
	Events          []report.WireEvent `json:"events,omitempty"`
	ReserveA        string             `json:"reserveA,omitempty"`
	ReserveB        string             `json:"reserveB,omitempty"`
	Price           string             `json:"price,omitempty"`
	RecordedAt      time.Time          `json:"recordedAt"`
}

// Journal is the SQLite-backed history store.
type Journal struct {
	db *sql.DB
}

// Open opens (and migrates) the journal at path. Use ":memory:" in tests.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite：单连接更稳定
	j := &Journal{db: db}
	if err := j.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

func (j *Journal) Close() error { return j.db.Close() }

func (j *Journal) migrate() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`
CREATE TABLE IF NOT EXISTS action_outcomes (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  kind TEXT NOT NULL,
  caller TEXT NOT NULL,
  confirmation_ref TEXT,
  sequence INTEGER,
  pending INTEGER NOT NULL DEFAULT 0,
  events_json TEXT,
  reserve_a TEXT,
  reserve_b TEXT,
  price TEXT,
  recorded_at TEXT NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS idx_action_outcomes_recorded ON action_outcomes(recorded_at DESC);`,
	}
	for _, stmt := range stmts {
		if _, err := j.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate journal: %w", err)
		}
	}
	return nil
}

// Record persists one outcome.
func (j *Journal) Record(ctx context.Context, out orchestrator.ActionOutcome) error {
	payload := report.NewPayload(out)
	eventsJSON, err := json.Marshal(payload.Events)
	if err != nil {
		return fmt.Errorf("encode events: %w", err)
	}
	_, err = j.db.ExecContext(ctx, `
INSERT INTO action_outcomes (kind, caller, confirmation_ref, sequence, pending, events_json, reserve_a, reserve_b, price, recorded_at)
VALUES (?,?,?,?,?,?,?,?,?,?)
`,
		payload.Kind,
		out.Caller.Hex(),
		payload.ConfirmationRef,
		payload.Sequence,
		boolToInt(out.Pending),
		string(eventsJSON),
		payload.Reserves.A,
		payload.Reserves.B,
		payload.Price,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	return err
}

// OnOutcome implements orchestrator.Observer. Write failures are logged,
// not propagated: the action itself already stands.
func (j *Journal) OnOutcome(out orchestrator.ActionOutcome) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := j.Record(ctx, out); err != nil {
		log.Errorf("record outcome: %v", err)
	}
}

// List returns the newest entries first, capped at limit (default 50).
func (j *Journal) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := j.db.QueryContext(ctx, `
SELECT id, kind, caller, confirmation_ref, sequence, pending, events_json, reserve_a, reserve_b, price, recorded_at
FROM action_outcomes
ORDER BY id DESC
LIMIT ?
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e          Entry
			ref        sql.NullString
			seq        sql.NullInt64
			pending    int
			eventsJSON sql.NullString
			ra, rb, pr sql.NullString
			recordedAt string
		)
		if err := rows.Scan(&e.ID, &e.Kind, &e.Caller, &ref, &seq, &pending, &eventsJSON, &ra, &rb, &pr, &recordedAt); err != nil {
			return nil, err
		}
		e.ConfirmationRef = ref.String
		if seq.Valid {
			e.Sequence = uint64(seq.Int64)
		}
		e.Pending = pending != 0
		if eventsJSON.Valid && eventsJSON.String != "" {
			if err := json.Unmarshal([]byte(eventsJSON.String), &e.Events); err != nil {
				return nil, fmt.Errorf("decode events for entry %d: %w", e.ID, err)
			}
		}
		e.ReserveA, e.ReserveB, e.Price = ra.String, rb.String, pr.String
		if t, err := time.Parse(time.RFC3339Nano, recordedAt); err == nil {
			e.RecordedAt = t
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
