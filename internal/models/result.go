package models

// MessageKind identifies what a delivery message carries
type MessageKind string

const (
	MessageSummary       MessageKind = "summary"
	MessageFailureDetail MessageKind = "failure_detail"
	MessageChildJob      MessageKind = "child_job"
)

// Message is one pre-split, size-bounded chunk of the rendered result.
// Downstream renderers consume the sequence as-is and must not re-split
// or re-merge it.
type Message struct {
	Kind MessageKind `json:"kind"`
	Body string      `json:"body"`
}

// JobResult is the assembled outcome of one analysis job. It is constructed
// once and attached to the job together with the terminal status transition.
type JobResult struct {
	JobName       string             `json:"job_name,omitempty"`
	BuildNumber   int                `json:"build_number,omitempty"`
	BuildURL      string             `json:"build_url,omitempty"`
	Summary       string             `json:"summary"`
	Provider      string             `json:"ai_provider,omitempty"`
	Model         string             `json:"ai_model,omitempty"`
	Failures      []FailureAnalysis  `json:"failures"`
	ChildJobs     []ChildJobAnalysis `json:"child_job_analyses,omitempty"`
	Messages      []Message          `json:"messages"`
	HTMLReportURL string             `json:"html_report_url,omitempty"`
}
