package models

import "time"

// JobStatus represents the lifecycle state of an analysis job
type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
)

// Terminal reports whether no further status transitions are allowed
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Job is one orchestration run over a batch of build failures
type Job struct {
	ID        string     `json:"job_id"`
	BuildURL  string     `json:"build_url,omitempty"`
	Status    JobStatus  `json:"status"`
	Error     string     `json:"error,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	Result    *JobResult `json:"result,omitempty"`
}

// JobSummary is the listing view of a job, without its result payload
type JobSummary struct {
	ID        string    `json:"job_id"`
	BuildURL  string    `json:"build_url,omitempty"`
	Status    JobStatus `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// AnalyzeBuildRequest represents a request to analyze one failed build
type AnalyzeBuildRequest struct {
	JobName         string            `json:"job_name"`
	BuildNumber     int               `json:"build_number"`
	TestsRepoURL    string            `json:"tests_repo_url,omitempty"`
	CallbackURL     string            `json:"callback_url,omitempty"`
	CallbackHeaders map[string]string `json:"callback_headers,omitempty"`
	Provider        string            `json:"ai_provider,omitempty"`
	Model           string            `json:"ai_model,omitempty"`
	HTMLReport      *bool             `json:"html_report,omitempty"`
}

// AnalyzeFailuresRequest represents a request to analyze raw failure records
// directly, without fetching anything from the build server
type AnalyzeFailuresRequest struct {
	Failures     []FailureRecord `json:"failures"`
	TestsRepoURL string          `json:"tests_repo_url,omitempty"`
	Provider     string          `json:"ai_provider,omitempty"`
	Model        string          `json:"ai_model,omitempty"`
}
