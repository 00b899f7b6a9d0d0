package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"alphapack/internal/config"
)

// ErrNotFound is returned when no job matches an identifier.
var ErrNotFound = errors.New("job not found")

// ErrAmbiguous is returned when an identifier prefix matches several jobs.
var ErrAmbiguous = errors.New("job id prefix is ambiguous")

// timeLayout keeps a fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const jobColumns = "id, kind, status, input_path, output_path, stage, progress_percent, frames_done, frames_total, output_bytes, error_message, created_at, updated_at, finished_at"

// Store manages the job ledger backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// Open initializes or connects to the ledger database at cfg.JobsDBPath.
func Open(cfg *config.Config) (*Store, error) {
	return OpenPath(cfg.JobsDBPath())
}

// OpenPath opens the ledger at an explicit location.
func OpenPath(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("ensure ledger directory: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath, now: time.Now}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

func (s *Store) timestamp() string {
	return s.now().UTC().Format(timeLayout)
}

// Create records a new pending job.
func (s *Store) Create(ctx context.Context, kind Kind, input, output string) (*Job, error) {
	id := uuid.NewString()
	ts := s.timestamp()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, kind, status, input_path, output_path, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, string(kind), string(StatusPending), input, output, ts, ts,
	)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	return s.Get(ctx, id)
}

// Start marks a job running.
func (s *Store) Start(ctx context.Context, id string) error {
	return s.exec(ctx, "start job",
		`UPDATE jobs SET status = ?, updated_at = ? WHERE id = ?`,
		string(StatusRunning), s.timestamp(), id)
}

// UpdateProgress records the current stage and frame counters.
func (s *Store) UpdateProgress(ctx context.Context, id, stage string, done, total int) error {
	percent := 0.0
	if total > 0 {
		percent = float64(done) * 100 / float64(total)
	}
	return s.exec(ctx, "update progress",
		`UPDATE jobs SET stage = ?, frames_done = ?, frames_total = ?, progress_percent = ?, updated_at = ? WHERE id = ?`,
		nullableString(stage), done, total, percent, s.timestamp(), id)
}

// Finish stores the terminal status derived from runErr.
func (s *Store) Finish(ctx context.Context, id string, outputBytes int64, runErr error) error {
	status := StatusForError(runErr)
	var message any
	if runErr != nil {
		message = runErr.Error()
	}
	ts := s.timestamp()
	query := `UPDATE jobs SET status = ?, error_message = ?, output_bytes = ?, updated_at = ?, finished_at = ? WHERE id = ?`
	if status == StatusSucceeded {
		query = `UPDATE jobs SET status = ?, error_message = ?, output_bytes = ?, progress_percent = 100, updated_at = ?, finished_at = ? WHERE id = ?`
	}
	return s.exec(ctx, "finish job", query, string(status), message, outputBytes, ts, ts, id)
}

func (s *Store) exec(ctx context.Context, op, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return nil
}

// Get fetches a job by full identifier or unique prefix.
func (s *Store) Get(ctx context.Context, id string) (*Job, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrNotFound
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+jobColumns+" FROM jobs WHERE id = ? OR id LIKE ? ORDER BY id = ? DESC LIMIT 2",
		id, escapeLike(id)+"%", id)
	if err != nil {
		return nil, fmt.Errorf("query job: %w", err)
	}
	defer rows.Close()

	var found []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		found = append(found, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	switch {
	case len(found) == 0:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	case found[0].ID == id, len(found) == 1:
		return found[0], nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrAmbiguous, id)
	}
}

// List returns the most recent jobs first, optionally filtered by status.
func (s *Store) List(ctx context.Context, limit int, statuses ...Status) ([]*Job, error) {
	query := "SELECT " + jobColumns + " FROM jobs"
	args := make([]any, 0, len(statuses)+1)
	if len(statuses) > 0 {
		placeholders := make([]string, len(statuses))
		for i, st := range statuses {
			placeholders[i] = "?"
			args = append(args, string(st))
		}
		query += " WHERE status IN (" + strings.Join(placeholders, ",") + ")"
	}
	query += " ORDER BY created_at DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var out []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

// AddEvent records a log event against a job.
func (s *Store) AddEvent(ctx context.Context, jobID, level, message, eventType string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO job_events (job_id, level, message, event_type, created_at) VALUES (?, ?, ?, ?, ?)`,
		jobID, level, message, nullableString(eventType), s.timestamp())
	if err != nil {
		return fmt.Errorf("insert job event: %w", err)
	}
	return nil
}

// Events lists the recorded events of a job in insertion order.
func (s *Store) Events(ctx context.Context, jobID string) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, job_id, level, message, event_type, created_at FROM job_events WHERE job_id = ? ORDER BY id`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list job events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			ev        Event
			eventType sql.NullString
			created   string
		)
		if err := rows.Scan(&ev.ID, &ev.JobID, &ev.Level, &ev.Message, &eventType, &created); err != nil {
			return nil, fmt.Errorf("scan job event: %w", err)
		}
		ev.EventType = eventType.String
		ev.CreatedAt = parseTime(created)
		out = append(out, ev)
	}
	return out, rows.Err()
}

// Prune deletes terminal jobs finished before cutoff and returns how many
// were removed.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM jobs WHERE finished_at IS NOT NULL AND finished_at < ?`,
		cutoff.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("prune jobs: %w", err)
	}
	return res.RowsAffected()
}

// MarkAbandoned fails jobs left running by a process that exited without
// finishing them.
func (s *Store) MarkAbandoned(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := s.now().Add(-olderThan).UTC().Format(timeLayout)
	ts := s.timestamp()
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, error_message = ?, updated_at = ?, finished_at = ?
         WHERE status IN (?, ?) AND updated_at < ?`,
		string(StatusFailed), "process exited before the job finished", ts, ts,
		string(StatusPending), string(StatusRunning), cutoff)
	if err != nil {
		return 0, fmt.Errorf("mark abandoned jobs: %w", err)
	}
	return res.RowsAffected()
}

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		job                    Job
		kind, status           string
		stage, errorMessage    sql.NullString
		createdRaw, updatedRaw string
		finishedRaw            sql.NullString
	)
	if err := scanner.Scan(
		&job.ID,
		&kind,
		&status,
		&job.InputPath,
		&job.OutputPath,
		&stage,
		&job.ProgressPercent,
		&job.FramesDone,
		&job.FramesTotal,
		&job.OutputBytes,
		&errorMessage,
		&createdRaw,
		&updatedRaw,
		&finishedRaw,
	); err != nil {
		return nil, err
	}
	job.Kind = Kind(kind)
	job.Status = Status(status)
	job.Stage = stage.String
	job.ErrorMessage = errorMessage.String
	job.CreatedAt = parseTime(createdRaw)
	job.UpdatedAt = parseTime(updatedRaw)
	if finishedRaw.Valid {
		job.FinishedAt = parseTime(finishedRaw.String)
	}
	return &job, nil
}

func parseTime(raw string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

func escapeLike(value string) string {
	r := strings.NewReplacer("%", "", "_", "")
	return r.Replace(value)
}
