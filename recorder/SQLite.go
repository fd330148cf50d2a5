package recorder

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id      TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	created_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS summaries (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id      TEXT NOT NULL,
	step        INTEGER NOT NULL,
	tag         TEXT NOT NULL,
	value       REAL NOT NULL,
	created_at  TEXT NOT NULL,
	FOREIGN KEY (run_id) REFERENCES runs(run_id)
);

CREATE INDEX IF NOT EXISTS summaries_run_tag ON summaries(run_id, tag, step);
`

// Point is a single recorded value of a tag
type Point struct {
	Step  int
	Value float64
}

// SQLite is a Recorder which stores summaries in a SQLite database.
// Each SQLite recorder creates a new run, identified by a UUID, and
// all summaries it records belong to that run.
type SQLite struct {
	db    *sql.DB
	runID string
}

// NewSQLite opens the SQLite database at path, creating the schema if
// needed, and registers a new run with the argument name. Use
// ":memory:" as the path for an in-memory database.
func NewSQLite(path, name string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("newSQLite: open db: %w", err)
	}

	// Each connection to an in-memory database sees a different
	// database
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("newSQLite: pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("newSQLite: migrate: %w", err)
	}

	runID := uuid.New().String()
	_, err = db.Exec(
		`INSERT INTO runs (run_id, name, created_at) VALUES (?, ?, ?)`,
		runID, name, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("newSQLite: insert run: %w", err)
	}

	return &SQLite{db: db, runID: runID}, nil
}

// RunID returns the identifier of the run the recorder records to
func (s *SQLite) RunID() string {
	return s.runID
}

// Record stores each value of the summary in a single transaction
func (s *SQLite) Record(step int, summary Summary) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("record: begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO summaries (run_id, step, tag, value, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("record: prepare: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, tag := range summary.Tags() {
		if _, err := stmt.Exec(s.runID, step, tag, summary[tag], now); err != nil {
			return fmt.Errorf("record: insert %s: %w", tag, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("record: commit: %w", err)
	}
	return nil
}

// Series returns all values recorded for tag in this run, ordered by
// step
func (s *SQLite) Series(tag string) ([]Point, error) {
	rows, err := s.db.Query(
		`SELECT step, value FROM summaries
		 WHERE run_id = ? AND tag = ?
		 ORDER BY step, id`,
		s.runID, tag,
	)
	if err != nil {
		return nil, fmt.Errorf("series: query: %w", err)
	}
	defer rows.Close()

	var points []Point
	for rows.Next() {
		var p Point
		if err := rows.Scan(&p.Step, &p.Value); err != nil {
			return nil, fmt.Errorf("series: scan: %w", err)
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// Last returns the summary recorded at the largest step of this run.
// If nothing has been recorded, the step is -1 and the summary is
// empty.
func (s *SQLite) Last() (int, Summary, error) {
	var step sql.NullInt64
	err := s.db.QueryRow(
		`SELECT MAX(step) FROM summaries WHERE run_id = ?`, s.runID,
	).Scan(&step)
	if err != nil {
		return -1, nil, fmt.Errorf("last: query step: %w", err)
	}
	if !step.Valid {
		return -1, Summary{}, nil
	}

	rows, err := s.db.Query(
		`SELECT tag, value FROM summaries WHERE run_id = ? AND step = ?`,
		s.runID, step.Int64,
	)
	if err != nil {
		return -1, nil, fmt.Errorf("last: query summary: %w", err)
	}
	defer rows.Close()

	summary := Summary{}
	for rows.Next() {
		var tag string
		var value float64
		if err := rows.Scan(&tag, &value); err != nil {
			return -1, nil, fmt.Errorf("last: scan: %w", err)
		}
		summary[tag] = value
	}
	return int(step.Int64), summary, rows.Err()
}

// Close closes the underlying database connection
func (s *SQLite) Close() error {
	return s.db.Close()
}
