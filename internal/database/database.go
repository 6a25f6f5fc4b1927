package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Cycle outcomes
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeTimeout   = "timeout"
	OutcomeFaulted   = "faulted"
)

// CycleLog represents one finished job cycle
type CycleLog struct {
	ID           int64
	TraceID      string
	JobID        string
	GenerationID string // empty when submission failed
	Model        string
	Outcome      string
	Images       int
	Kudos        float64
	Error        string
	Duration     time.Duration
	CreatedAt    time.Time
}

// DB wraps the SQLite database
type DB struct {
	conn *sql.DB
}

// NewDB creates a new database connection and initializes the schema
func NewDB(dbPath string) (*DB, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory failed: %w", err)
	}

	// Use WAL mode for better concurrency
	conn, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database failed: %w", err)
	}

	// SQLite works best with limited connections
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn}

	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("init schema failed: %w", err)
	}

	return db, nil
}

func (db *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS cycle_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		trace_id TEXT NOT NULL,
		job_id TEXT NOT NULL,
		generation_id TEXT NOT NULL DEFAULT '',
		model TEXT NOT NULL,
		outcome TEXT NOT NULL,
		images INTEGER NOT NULL DEFAULT 0,
		kudos REAL NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT '',
		duration_ms INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_job_id ON cycle_logs(job_id);
	CREATE INDEX IF NOT EXISTS idx_created_at ON cycle_logs(created_at);
	`

	_, err := db.conn.Exec(schema)
	return err
}

// InsertCycleLog inserts a new cycle log entry
func (db *DB) InsertCycleLog(log *CycleLog) error {
	query := `
		INSERT INTO cycle_logs (trace_id, job_id, generation_id, model, outcome, images, kudos, error, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now()
	}

	result, err := db.conn.Exec(query, log.TraceID, log.JobID, log.GenerationID, log.Model, log.Outcome,
		log.Images, log.Kudos, log.Error, log.Duration.Milliseconds(), log.CreatedAt.UTC())
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}

	log.ID = id
	return nil
}

// RecentCycles returns the latest cycle logs, newest first
func (db *DB) RecentCycles(limit int) ([]CycleLog, error) {
	rows, err := db.conn.Query(`
		SELECT id, trace_id, job_id, generation_id, model, outcome, images, kudos, error, duration_ms, created_at
		FROM cycle_logs
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent cycles: %w", err)
	}
	defer rows.Close()

	var logs []CycleLog
	for rows.Next() {
		var l CycleLog
		var durationMS int64
		if err := rows.Scan(&l.ID, &l.TraceID, &l.JobID, &l.GenerationID, &l.Model, &l.Outcome,
			&l.Images, &l.Kudos, &l.Error, &durationMS, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan cycle: %w", err)
		}
		l.Duration = time.Duration(durationMS) * time.Millisecond
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// AggregateStats holds aggregate statistics from the database
type AggregateStats struct {
	TotalCycles    int
	Completed      int
	Failed         int
	TotalImages    int
	TotalKudos     float64
	TodayCycles    int
	TodayCompleted int
	TodayKudos     float64
}

// GetAggregateStats returns aggregate statistics from all cycle logs
func (db *DB) GetAggregateStats() (*AggregateStats, error) {
	stats := &AggregateStats{}

	err := db.conn.QueryRow(`
		SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN outcome = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(images), 0),
			COALESCE(SUM(kudos), 0)
		FROM cycle_logs
	`, OutcomeCompleted).Scan(&stats.TotalCycles, &stats.Completed, &stats.TotalImages, &stats.TotalKudos)
	if err != nil {
		return nil, fmt.Errorf("query total stats: %w", err)
	}
	stats.Failed = stats.TotalCycles - stats.Completed

	today := time.Now().UTC().Format("2006-01-02")
	err = db.conn.QueryRow(`
		SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN outcome = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(kudos), 0)
		FROM cycle_logs
		WHERE DATE(created_at) = ?
	`, OutcomeCompleted, today).Scan(&stats.TodayCycles, &stats.TodayCompleted, &stats.TodayKudos)
	if err != nil {
		return nil, fmt.Errorf("query today stats: %w", err)
	}

	return stats, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}
