package repository

import (
	"context"
	"errors"
	"time"

	"build-insight/internal/models"
)

// ErrJobNotFound is returned when no readable job exists for an id
var ErrJobNotFound = errors.New("job not found")

// ErrReportNotFound is returned when a job has no stored HTML report
var ErrReportNotFound = errors.New("report not found")

// ErrTerminalState is returned when a transition targets a job that already
// reached completed or failed
var ErrTerminalState = errors.New("job already in terminal state")

// ErrInvalidTransition is returned for transitions the lifecycle never
// allows, such as moving a job back to pending
var ErrInvalidTransition = errors.New("invalid status transition")

// Listing bounds. Requests above MaxListLimit are clamped, not rejected.
const (
	DefaultListLimit = 50
	MaxListLimit     = 100
)

// JobStore defines the persistence contract for analysis jobs
type JobStore interface {
	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id string) (*models.Job, error)
	ListJobs(ctx context.Context, limit, offset int) ([]models.JobSummary, error)
	Transition(ctx context.Context, id string, status models.JobStatus, result *models.JobResult, errText string) error
	DeleteJob(ctx context.Context, id string) error
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int, error)
	SaveHTMLReport(ctx context.Context, jobID, html string) error
	GetHTMLReport(ctx context.Context, jobID string) (string, error)
	Close() error
}
