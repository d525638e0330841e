// Package store persists jobs, health report history and the governance
// event journal.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// JobStatus represents asynchronous job state.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobDone      JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// Job represents an asynchronous task (validation pass, workflow trigger).
type Job struct {
	ID          string                 `json:"id"`
	Type        string                 `json:"type"`
	Status      JobStatus              `json:"status"`
	Progress    int                    `json:"progress,omitempty"`
	Message     string                 `json:"message,omitempty"`
	Payload     map[string]interface{} `json:"payload,omitempty"`
	Result      map[string]interface{} `json:"result,omitempty"`
	Error       string                 `json:"error,omitempty"`
	Attempts    int                    `json:"attempts,omitempty"`
	MaxAttempts int                    `json:"maxAttempts,omitempty"`
	CreatedAt   time.Time              `json:"createdAt"`
	UpdatedAt   time.Time              `json:"updatedAt"`
}

// HealthRecord stores one persisted validation report.
type HealthRecord struct {
	ID        string    `json:"id"`
	Group     string    `json:"group"`
	Score     int       `json:"score"`
	Status    string    `json:"status"`
	Issues    []byte    `json:"-"`
	CheckedAt time.Time `json:"checkedAt"`
}

// JournalEntry is one relayed governance event kept for replay/debugging.
type JournalEntry struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Source    string    `json:"source,omitempty"`
	Target    string    `json:"target,omitempty"`
	Payload   []byte    `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
}

// Store wraps the SQL database used for persistence.
type Store struct {
	db       *sql.DB
	postgres bool
}

// Open initializes the datastore using the supplied DSN and driver
// ("sqlite" or "postgres").
func Open(dsn string, driver string) (*Store, error) {
	if driver == "" {
		driver = "sqlite"
	}
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("datastore DSN is required")
	}

	var (
		db  *sql.DB
		err error
	)
	switch driver {
	case "sqlite":
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create datastore directory: %w", err)
		}
		conn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on", dsn)
		db, err = sql.Open("sqlite", conn)
	case "postgres":
		db, err = sql.Open("pgx", dsn)
	default:
		return nil, fmt.Errorf("unsupported datastore driver: %s", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s datastore: %w", driver, err)
	}

	s := &Store{db: db, postgres: driver == "postgres"}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS jobs (
			id TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			status TEXT NOT NULL,
			progress INTEGER DEFAULT 0,
			message TEXT,
			payload TEXT,
			result TEXT,
			error TEXT,
			attempts INTEGER DEFAULT 0,
			max_attempts INTEGER DEFAULT 0,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_type ON jobs(type);`,
		`CREATE TABLE IF NOT EXISTS health_reports (
			id TEXT PRIMARY KEY,
			service_group TEXT NOT NULL,
			score INTEGER NOT NULL,
			status TEXT NOT NULL,
			issues TEXT,
			checked_at TIMESTAMP NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_health_group ON health_reports(service_group);`,
		`CREATE TABLE IF NOT EXISTS event_journal (
			id TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			source TEXT,
			target TEXT,
			payload TEXT,
			created_at TIMESTAMP NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_journal_created ON event_journal(created_at);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("schema apply failed: %w", err)
		}
	}
	return nil
}

// rebind rewrites ? placeholders to $n for postgres.
func (s *Store) rebind(query string) string {
	if !s.postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Close shuts down the datastore.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// CreateJob persists a new job record.
func (s *Store) CreateJob(job *Job) error {
	if job.ID == "" {
		return errors.New("job id is required")
	}
	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	if job.Status == "" {
		job.Status = JobPending
	}

	payload, err := marshalMap(job.Payload)
	if err != nil {
		return fmt.Errorf("marshal job payload: %w", err)
	}
	result, err := marshalMap(job.Result)
	if err != nil {
		return fmt.Errorf("marshal job result: %w", err)
	}

	_, err = s.db.Exec(s.rebind(`INSERT INTO jobs
		(id, type, status, progress, message, payload, result, error, attempts, max_attempts, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		job.ID, job.Type, string(job.Status), job.Progress, job.Message, payload, result,
		job.Error, job.Attempts, job.MaxAttempts, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// UpdateJob replaces the mutable fields of a job record.
func (s *Store) UpdateJob(job *Job) error {
	job.UpdatedAt = time.Now().UTC()
	result, err := marshalMap(job.Result)
	if err != nil {
		return fmt.Errorf("marshal job result: %w", err)
	}
	_, err = s.db.Exec(s.rebind(`UPDATE jobs SET
		status = ?, progress = ?, message = ?, result = ?, error = ?, attempts = ?, updated_at = ?
		WHERE id = ?`),
		string(job.Status), job.Progress, job.Message, result, job.Error, job.Attempts, job.UpdatedAt, job.ID)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	return nil
}

// GetJob loads a job by ID. Returns nil when the job does not exist.
func (s *Store) GetJob(id string) (*Job, error) {
	row := s.db.QueryRow(s.rebind(`SELECT id, type, status, progress, message, payload, result, error, attempts, max_attempts, created_at, updated_at
		FROM jobs WHERE id = ?`), id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return job, err
}

// ListJobs returns the most recent jobs.
func (s *Store) ListJobs(limit int) ([]Job, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(s.rebind(`SELECT id, type, status, progress, message, payload, result, error, attempts, max_attempts, created_at, updated_at
		FROM jobs ORDER BY created_at DESC LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var out []Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *job)
	}
	return out, rows.Err()
}

// ListJobsByStatus returns jobs in the given state, oldest first, so a
// polling worker drains the backlog in arrival order.
func (s *Store) ListJobsByStatus(status JobStatus, limit int) ([]Job, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(s.rebind(`SELECT id, type, status, progress, message, payload, result, error, attempts, max_attempts, created_at, updated_at
		FROM jobs WHERE status = ? ORDER BY created_at ASC LIMIT ?`), string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs by status: %w", err)
	}
	defer rows.Close()

	var out []Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *job)
	}
	return out, rows.Err()
}

// SaveHealthReport appends one per-group validation result.
func (s *Store) SaveHealthReport(rec *HealthRecord) error {
	if rec.ID == "" {
		return errors.New("health record id is required")
	}
	if rec.CheckedAt.IsZero() {
		rec.CheckedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(s.rebind(`INSERT INTO health_reports
		(id, service_group, score, status, issues, checked_at) VALUES (?, ?, ?, ?, ?, ?)`),
		rec.ID, rec.Group, rec.Score, rec.Status, string(rec.Issues), rec.CheckedAt)
	if err != nil {
		return fmt.Errorf("insert health report: %w", err)
	}
	return nil
}

// ListHealthReports returns the most recent reports, optionally filtered
// by service group.
func (s *Store) ListHealthReports(group string, limit int) ([]HealthRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, service_group, score, status, issues, checked_at FROM health_reports`
	args := []interface{}{}
	if group != "" {
		query += ` WHERE service_group = ?`
		args = append(args, group)
	}
	query += ` ORDER BY checked_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list health reports: %w", err)
	}
	defer rows.Close()

	var out []HealthRecord
	for rows.Next() {
		var rec HealthRecord
		var issues sql.NullString
		if err := rows.Scan(&rec.ID, &rec.Group, &rec.Score, &rec.Status, &issues, &rec.CheckedAt); err != nil {
			return nil, fmt.Errorf("scan health report: %w", err)
		}
		if issues.Valid {
			rec.Issues = []byte(issues.String)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// AppendJournal records one relayed event. Redelivered events with an
// already-journaled ID are ignored so the append stays idempotent.
func (s *Store) AppendJournal(entry *JournalEntry) error {
	if entry.ID == "" {
		return errors.New("journal entry id is required")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(s.rebind(`INSERT INTO event_journal
		(id, type, source, target, payload, created_at) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`),
		entry.ID, entry.Type, entry.Source, entry.Target, string(entry.Payload), entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert journal entry: %w", err)
	}
	return nil
}

// ListJournal returns the most recent journal entries.
func (s *Store) ListJournal(limit int) ([]JournalEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(s.rebind(`SELECT id, type, source, target, payload, created_at
		FROM event_journal ORDER BY created_at DESC LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("list journal: %w", err)
	}
	defer rows.Close()

	var out []JournalEntry
	for rows.Next() {
		var entry JournalEntry
		var source, target, payload sql.NullString
		if err := rows.Scan(&entry.ID, &entry.Type, &source, &target, &payload, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan journal entry: %w", err)
		}
		entry.Source = source.String
		entry.Target = target.String
		if payload.Valid {
			entry.Payload = []byte(payload.String)
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

// PruneJournal keeps only the newest keep entries.
func (s *Store) PruneJournal(keep int) error {
	if keep <= 0 {
		return nil
	}
	_, err := s.db.Exec(s.rebind(`DELETE FROM event_journal WHERE id NOT IN (
		SELECT id FROM event_journal ORDER BY created_at DESC LIMIT ?)`), keep)
	if err != nil {
		return fmt.Errorf("prune journal: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row scanner) (*Job, error) {
	var job Job
	var status string
	var message, payload, result, jobErr sql.NullString
	if err := row.Scan(&job.ID, &job.Type, &status, &job.Progress, &message, &payload, &result,
		&jobErr, &job.Attempts, &job.MaxAttempts, &job.CreatedAt, &job.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan job: %w", err)
	}
	job.Status = JobStatus(status)
	job.Message = message.String
	job.Error = jobErr.String
	if payload.Valid && payload.String != "" {
		if err := json.Unmarshal([]byte(payload.String), &job.Payload); err != nil {
			return nil, fmt.Errorf("decode job payload: %w", err)
		}
	}
	if result.Valid && result.String != "" {
		if err := json.Unmarshal([]byte(result.String), &job.Result); err != nil {
			return nil, fmt.Errorf("decode job result: %w", err)
		}
	}
	return &job, nil
}

func marshalMap(m map[string]interface{}) (string, error) {
	if len(m) == 0 {
		return "", nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
