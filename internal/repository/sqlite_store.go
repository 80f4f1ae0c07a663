package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"build-insight/internal/models"
)

// SQLiteStore implements JobStore on a local SQLite file
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the database at dbPath, creating the schema if needed
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// initSchema initializes the database schema
func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS jobs (
		job_id TEXT PRIMARY KEY,
		build_url TEXT,
		status TEXT NOT NULL DEFAULT 'pending',
		result_json TEXT,
		error TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
	CREATE INDEX IF NOT EXISTS idx_jobs_created_at ON jobs(created_at);

	CREATE TABLE IF NOT EXISTS html_reports (
		job_id TEXT PRIMARY KEY,
		html TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// CreateJob inserts a new job in the pending state
func (s *SQLiteStore) CreateJob(ctx context.Context, job *models.Job) error {
	now := time.Now()
	job.CreatedAt = now
	job.UpdatedAt = now
	if job.Status == "" {
		job.Status = models.StatusPending
	}

	query := `
		INSERT INTO jobs (job_id, build_url, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		job.ID,
		job.BuildURL,
		job.Status,
		now.Unix(),
		now.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	return nil
}

// GetJob retrieves a job with its result attached. A row whose stored
// result cannot be decoded is reported as not found rather than returned
// half-filled.
func (s *SQLiteStore) GetJob(ctx context.Context, id string) (*models.Job, error) {
	query := `
		SELECT job_id, build_url, status, result_json, error, created_at, updated_at
		FROM jobs
		WHERE job_id = ?
	`

	var job models.Job
	var buildURL, resultJSON, errText sql.NullString
	var createdAt, updatedAt int64

	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&job.ID,
		&buildURL,
		&job.Status,
		&resultJSON,
		&errText,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	job.BuildURL = buildURL.String
	job.Error = errText.String
	job.CreatedAt = time.Unix(createdAt, 0)
	job.UpdatedAt = time.Unix(updatedAt, 0)

	if resultJSON.Valid && resultJSON.String != "" {
		var result models.JobResult
		if err := json.Unmarshal([]byte(resultJSON.String), &result); err != nil {
			return nil, fmt.Errorf("%w: stored result for %s is unreadable", ErrJobNotFound, id)
		}
		job.Result = &result
	}

	return &job, nil
}

// ListJobs returns job summaries newest first. Zero or negative limits fall
// back to DefaultListLimit; anything above MaxListLimit is clamped.
func (s *SQLiteStore) ListJobs(ctx context.Context, limit, offset int) ([]models.JobSummary, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	query := `
		SELECT job_id, build_url, status, created_at
		FROM jobs
		ORDER BY created_at DESC, rowid DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	defer rows.Close()

	summaries := make([]models.JobSummary, 0, limit)
	for rows.Next() {
		var sum models.JobSummary
		var buildURL sql.NullString
		var createdAt int64

		if err := rows.Scan(&sum.ID, &buildURL, &sum.Status, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		sum.BuildURL = buildURL.String
		sum.CreatedAt = time.Unix(createdAt, 0)
		summaries = append(summaries, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate jobs: %w", err)
	}

	return summaries, nil
}

// Transition moves a job's status forward. Terminal transitions attach the
// result or error text in the same statement, so a reader never observes a
// terminal status without its payload. Jobs already terminal are left
// untouched and reported via ErrTerminalState.
func (s *SQLiteStore) Transition(ctx context.Context, id string, status models.JobStatus, result *models.JobResult, errText string) error {
	if status == models.StatusPending {
		return fmt.Errorf("%w: cannot move a job back to %s", ErrInvalidTransition, status)
	}
	if status == models.StatusFailed && errText == "" {
		errText = "unknown error"
	}

	var resultJSON interface{}
	if result != nil {
		data, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("failed to encode result: %w", err)
		}
		resultJSON = string(data)
	}
	var errVal interface{}
	if errText != "" {
		errVal = errText
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var current models.JobStatus
	err = tx.QueryRowContext(ctx, "SELECT status FROM jobs WHERE job_id = ?", id).Scan(&current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrJobNotFound
		}
		return fmt.Errorf("failed to read job status: %w", err)
	}
	if current.Terminal() {
		return fmt.Errorf("%w: %s is %s", ErrTerminalState, id, current)
	}

	query := `
		UPDATE jobs
		SET status = ?, result_json = ?, error = ?, updated_at = ?
		WHERE job_id = ? AND status NOT IN ('completed', 'failed')
	`
	res, err := tx.ExecContext(ctx, query, status, resultJSON, errVal, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to transition job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to transition job: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrTerminalState, id)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transition: %w", err)
	}

	return nil
}

// DeleteJob removes a job and its report
func (s *SQLiteStore) DeleteJob(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, "DELETE FROM jobs WHERE job_id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}
	if affected == 0 {
		return ErrJobNotFound
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM html_reports WHERE job_id = ?", id); err != nil {
		return fmt.Errorf("failed to delete report: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit delete: %w", err)
	}

	return nil
}

// DeleteTerminalBefore removes completed and failed jobs created before the
// cutoff, together with their reports, and returns how many were removed.
func (s *SQLiteStore) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	reportQuery := `
		DELETE FROM html_reports
		WHERE job_id IN (
			SELECT job_id FROM jobs
			WHERE status IN ('completed', 'failed') AND created_at < ?
		)
	`
	if _, err := tx.ExecContext(ctx, reportQuery, cutoff.Unix()); err != nil {
		return 0, fmt.Errorf("failed to delete expired reports: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		"DELETE FROM jobs WHERE status IN ('completed', 'failed') AND created_at < ?",
		cutoff.Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired jobs: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired jobs: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit expiry: %w", err)
	}

	return int(affected), nil
}

// SaveHTMLReport stores or replaces the rendered report for a job
func (s *SQLiteStore) SaveHTMLReport(ctx context.Context, jobID, html string) error {
	query := `
		INSERT INTO html_reports (job_id, html, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(job_id) DO UPDATE SET html = excluded.html, created_at = excluded.created_at
	`

	_, err := s.db.ExecContext(ctx, query, jobID, html, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to save html report: %w", err)
	}
	return nil
}

// GetHTMLReport returns the stored report for a job
func (s *SQLiteStore) GetHTMLReport(ctx context.Context, jobID string) (string, error) {
	var html string
	err := s.db.QueryRowContext(ctx, "SELECT html FROM html_reports WHERE job_id = ?", jobID).Scan(&html)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrReportNotFound
		}
		return "", fmt.Errorf("failed to get html report: %w", err)
	}
	return html, nil
}
