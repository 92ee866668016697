// Package storage provides SQLite-based persistence for simulation runs:
// the runs themselves, the trips trains completed and the journal of every
// attempted topology change.
// Uses the pure-Go modernc.org/sqlite driver to avoid CGO dependencies.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/vovakirdan/railsim/internal/network"
	"github.com/vovakirdan/railsim/internal/sim"
	"github.com/vovakirdan/railsim/internal/traffic"
)

// Store manages the SQLite database connection.
type Store struct {
	db *sql.DB
}

// RunEntry is one simulation run.
type RunEntry struct {
	RunID      string
	ScenarioID string
	Ticks      uint64
	StartedAt  time.Time
	FinishedAt time.Time // zero while running or if the run was cut short
}

// TripEntry is one completed trip.
type TripEntry struct {
	ID          int64
	RunID       string
	ScenarioID  string
	TrainID     traffic.TrainID
	Origin      network.IntersectionID
	Destination network.IntersectionID
	Legs        int
	Distance    float64
	Ticks       uint64
	CreatedAt   time.Time
}

// JournalEntry is one attempted topology change.
type JournalEntry struct {
	ID        int64
	RunID     string
	Version   uint64
	Op        string
	Detail    string
	ErrorKind string // empty when the change was applied
	CreatedAt time.Time
}

// Open creates or opens a SQLite database at the given path.
// It creates the parent directories if needed and runs migrations.
func Open(dbPath string) (*Store, error) {
	// Expand ~ to home directory
	if dbPath != "" && dbPath[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("storage: cannot expand home directory: %w", err)
		}
		dbPath = filepath.Join(home, dbPath[1:])
	}

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: cannot create directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("storage: cannot open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: cannot connect to database: %w", err)
	}

	store := &Store{db: db}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: migration failed: %w", err)
	}

	return store, nil
}

// migrate creates the database schema if it doesn't exist.
func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			scenario_id TEXT NOT NULL,
			ticks INTEGER NOT NULL DEFAULT 0,
			started_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			finished_at DATETIME
		);
		CREATE INDEX IF NOT EXISTS idx_runs_scenario ON runs(scenario_id);

		CREATE TABLE IF NOT EXISTS trips (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL REFERENCES runs(run_id),
			scenario_id TEXT NOT NULL,
			train_id TEXT NOT NULL,
			origin INTEGER NOT NULL,
			destination INTEGER NOT NULL,
			legs INTEGER NOT NULL,
			distance REAL NOT NULL,
			ticks INTEGER NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_trips_run ON trips(run_id);
		CREATE INDEX IF NOT EXISTS idx_trips_scenario ON trips(scenario_id);

		CREATE TABLE IF NOT EXISTS journal (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL REFERENCES runs(run_id),
			version INTEGER NOT NULL,
			op TEXT NOT NULL,
			detail TEXT NOT NULL,
			error_kind TEXT NOT NULL DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_journal_run ON journal(run_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Run journals one simulation run. It implements sim.Recorder.
type Run struct {
	store    *Store
	id       string
	scenario string
}

var _ sim.Recorder = (*Run)(nil)

// StartRun records the start of a run of the given scenario.
func (s *Store) StartRun(scenarioID string) (*Run, error) {
	id := uuid.NewString()
	if _, err := s.db.Exec(
		"INSERT INTO runs (run_id, scenario_id) VALUES (?, ?)",
		id, scenarioID,
	); err != nil {
		return nil, fmt.Errorf("storage: cannot start run: %w", err)
	}
	return &Run{store: s, id: id, scenario: scenarioID}, nil
}

// ID returns the run id.
func (r *Run) ID() string {
	return r.id
}

// RecordMutation implements sim.Recorder.
func (r *Run) RecordMutation(m sim.MutationRecord) error {
	_, err := r.store.db.Exec(
		"INSERT INTO journal (run_id, version, op, detail, error_kind) VALUES (?, ?, ?, ?, ?)",
		r.id, int64(m.Version), m.Op, m.Detail, m.ErrorKind,
	)
	if err != nil {
		return fmt.Errorf("storage: cannot save journal entry: %w", err)
	}
	return nil
}

// RecordTrip implements sim.Recorder.
func (r *Run) RecordTrip(t sim.Trip) error {
	_, err := r.store.db.Exec(
		`INSERT INTO trips
		 (run_id, scenario_id, train_id, origin, destination, legs, distance, ticks)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.id,
		r.scenario,
		string(t.Train),
		int64(t.Origin),
		int64(t.Destination),
		t.Legs,
		t.Distance,
		int64(t.Ticks),
	)
	if err != nil {
		return fmt.Errorf("storage: cannot save trip: %w", err)
	}
	return nil
}

// Finish records how many ticks the run lasted.
func (r *Run) Finish(ticks uint64) error {
	_, err := r.store.db.Exec(
		"UPDATE runs SET ticks = ?, finished_at = CURRENT_TIMESTAMP WHERE run_id = ?",
		int64(ticks), r.id,
	)
	if err != nil {
		return fmt.Errorf("storage: cannot finish run: %w", err)
	}
	return nil
}

// RunByID retrieves a run. It returns nil if there is no such run.
func (s *Store) RunByID(runID string) (*RunEntry, error) {
	var (
		e                 RunEntry
		ticks             int64
		started, finished any
	)
	err := s.db.QueryRow(
		"SELECT run_id, scenario_id, ticks, started_at, finished_at FROM runs WHERE run_id = ?",
		runID,
	).Scan(&e.RunID, &e.ScenarioID, &ticks, &started, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: cannot query run: %w", err)
	}
	e.Ticks = uint64(ticks)
	e.StartedAt = parseTime(started)
	e.FinishedAt = parseTime(finished)
	return &e, nil
}

// RecentRuns retrieves the most recent runs, newest first.
func (s *Store) RecentRuns(limit int) ([]RunEntry, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.Query(
		`SELECT run_id, scenario_id, ticks, started_at, finished_at
		 FROM runs
		 ORDER BY started_at DESC, rowid DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: cannot query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunEntry
	for rows.Next() {
		var (
			e                 RunEntry
			ticks             int64
			started, finished any
		)
		if err := rows.Scan(&e.RunID, &e.ScenarioID, &ticks, &started, &finished); err != nil {
			return nil, fmt.Errorf("storage: cannot scan row: %w", err)
		}
		e.Ticks = uint64(ticks)
		e.StartedAt = parseTime(started)
		e.FinishedAt = parseTime(finished)
		runs = append(runs, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: row iteration error: %w", err)
	}

	return runs, nil
}

const tripColumns = `id, run_id, scenario_id, train_id, origin, destination, legs, distance, ticks, created_at`

// RecentTrips retrieves the most recent trips of a scenario, newest first.
// An empty scenario id matches every scenario.
func (s *Store) RecentTrips(scenarioID string, limit int) ([]TripEntry, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.Query(
		`SELECT `+tripColumns+`
		 FROM trips
		 WHERE ? = '' OR scenario_id = ?
		 ORDER BY id DESC
		 LIMIT ?`,
		scenarioID, scenarioID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: cannot query trips: %w", err)
	}
	return scanTrips(rows)
}

// TripsForRun retrieves the trips of one run in completion order.
func (s *Store) TripsForRun(runID string) ([]TripEntry, error) {
	rows, err := s.db.Query(
		`SELECT `+tripColumns+`
		 FROM trips
		 WHERE run_id = ?
		 ORDER BY id`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: cannot query trips: %w", err)
	}
	return scanTrips(rows)
}

func scanTrips(rows *sql.Rows) ([]TripEntry, error) {
	defer rows.Close()

	var trips []TripEntry
	for rows.Next() {
		var (
			e                   TripEntry
			train               string
			origin, dest, ticks int64
			createdAt           any
		)
		if err := rows.Scan(&e.ID, &e.RunID, &e.ScenarioID, &train, &origin, &dest, &e.Legs, &e.Distance, &ticks, &createdAt); err != nil {
			return nil, fmt.Errorf("storage: cannot scan row: %w", err)
		}
		e.TrainID = traffic.TrainID(train)
		e.Origin = network.IntersectionID(origin)
		e.Destination = network.IntersectionID(dest)
		e.Ticks = uint64(ticks)
		e.CreatedAt = parseTime(createdAt)
		trips = append(trips, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: row iteration error: %w", err)
	}

	return trips, nil
}

// Journal retrieves the journal of one run in the order it was written.
func (s *Store) Journal(runID string) ([]JournalEntry, error) {
	rows, err := s.db.Query(
		`SELECT id, run_id, version, op, detail, error_kind, created_at
		 FROM journal
		 WHERE run_id = ?
		 ORDER BY id`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: cannot query journal: %w", err)
	}
	defer rows.Close()

	var entries []JournalEntry
	for rows.Next() {
		var (
			e         JournalEntry
			version   int64
			createdAt any
		)
		if err := rows.Scan(&e.ID, &e.RunID, &version, &e.Op, &e.Detail, &e.ErrorKind, &createdAt); err != nil {
			return nil, fmt.Errorf("storage: cannot scan row: %w", err)
		}
		e.Version = uint64(version)
		e.CreatedAt = parseTime(createdAt)
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: row iteration error: %w", err)
	}

	return entries, nil
}

// ScenarioStats contains aggregated statistics for a scenario.
type ScenarioStats struct {
	ScenarioID  string
	Runs        int
	Trips       int
	AvgDistance float64
	AvgTicks    float64
	Rejected    int // journal entries with an error
	LastRun     time.Time
}

// ScenarioStats retrieves aggregated statistics for one scenario.
func (s *Store) ScenarioStats(scenarioID string) (*ScenarioStats, error) {
	stats := &ScenarioStats{ScenarioID: scenarioID}

	var lastRun any
	err := s.db.QueryRow(
		`SELECT COUNT(*), MAX(started_at) FROM runs WHERE scenario_id = ?`,
		scenarioID,
	).Scan(&stats.Runs, &lastRun)
	if err != nil {
		return nil, fmt.Errorf("storage: cannot get run stats: %w", err)
	}
	stats.LastRun = parseTime(lastRun)

	err = s.db.QueryRow(
		`SELECT COUNT(*), COALESCE(AVG(distance), 0), COALESCE(AVG(ticks), 0)
		 FROM trips WHERE scenario_id = ?`,
		scenarioID,
	).Scan(&stats.Trips, &stats.AvgDistance, &stats.AvgTicks)
	if err != nil {
		return nil, fmt.Errorf("storage: cannot get trip stats: %w", err)
	}

	err = s.db.QueryRow(
		`SELECT COUNT(*) FROM journal j JOIN runs r ON r.run_id = j.run_id
		 WHERE r.scenario_id = ? AND j.error_kind != ''`,
		scenarioID,
	).Scan(&stats.Rejected)
	if err != nil {
		return nil, fmt.Errorf("storage: cannot get journal stats: %w", err)
	}

	return stats, nil
}

// AllScenarioStats retrieves statistics for every scenario that has been
// run.
func (s *Store) AllScenarioStats() (map[string]*ScenarioStats, error) {
	rows, err := s.db.Query(`SELECT DISTINCT scenario_id FROM runs`)
	if err != nil {
		return nil, fmt.Errorf("storage: cannot list scenarios: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("storage: cannot scan row: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: row iteration error: %w", err)
	}

	stats := make(map[string]*ScenarioStats, len(ids))
	for _, id := range ids {
		st, err := s.ScenarioStats(id)
		if err != nil {
			return nil, err
		}
		stats[id] = st
	}
	return stats, nil
}

// parseTime handles both time.Time and the string form SQLite may return.
func parseTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case string:
		if parsed, err := time.Parse("2006-01-02 15:04:05", t); err == nil {
			return parsed
		}
	}
	return time.Time{}
}
