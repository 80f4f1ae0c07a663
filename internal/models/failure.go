package models

// FailureRecord is one observed test failure as reported by the build server.
// Records are immutable once read from the source; they carry no identity
// beyond their content.
type FailureRecord struct {
	TestName     string  `json:"test_name"`
	ErrorMessage string  `json:"error_message"`
	StackTrace   string  `json:"stack_trace,omitempty"`
	Duration     float64 `json:"duration"`
	Status       string  `json:"status"`
}

// Classification tags the root cause category of a failure group
type Classification string

const (
	ClassCodeIssue  Classification = "code_issue"
	ClassProductBug Classification = "product_bug"
	ClassUnanalyzed Classification = "unanalyzed"
)

// CodeFix is a suggested source change accompanying a code_issue verdict
type CodeFix struct {
	File   string `json:"file"`
	Line   string `json:"line"`
	Change string `json:"change"`
}

// JiraMatch is an existing tracker issue that resembles a reported product bug
type JiraMatch struct {
	Key      string  `json:"key"`
	Summary  string  `json:"summary"`
	Status   string  `json:"status"`
	Priority string  `json:"priority"`
	URL      string  `json:"url"`
	Score    float64 `json:"score"`
}

// BugReport is a structured product bug description produced by analysis
type BugReport struct {
	Title              string      `json:"title"`
	Severity           string      `json:"severity"`
	Component          string      `json:"component"`
	Description        string      `json:"description"`
	Evidence           string      `json:"evidence"`
	JiraSearchKeywords []string    `json:"jira_search_keywords,omitempty"`
	JiraMatches        []JiraMatch `json:"jira_matches,omitempty"`
}

// Analysis is the verdict for one failure group. Every record in the group
// carries the same analysis content; CodeFix and BugReport are mutually
// exclusive and both may be absent.
type Analysis struct {
	Classification Classification `json:"classification"`
	AffectedTests  []string       `json:"affected_tests,omitempty"`
	Details        string         `json:"details"`
	CodeFix        *CodeFix       `json:"code_fix,omitempty"`
	BugReport      *BugReport     `json:"product_bug_report,omitempty"`
}

// FailureAnalysis pairs one failure record with its group's verdict
type FailureAnalysis struct {
	TestName string   `json:"test_name"`
	Error    string   `json:"error"`
	Analysis Analysis `json:"analysis"`
}

// ChildJobAnalysis is the analysis of a failed downstream build, possibly
// nesting further failed children
type ChildJobAnalysis struct {
	JobName        string             `json:"job_name"`
	BuildNumber    int                `json:"build_number"`
	BuildURL       string             `json:"build_url,omitempty"`
	Summary        string             `json:"summary,omitempty"`
	Failures       []FailureAnalysis  `json:"failures,omitempty"`
	FailedChildren []ChildJobAnalysis `json:"failed_children,omitempty"`
	Note           string             `json:"note,omitempty"`
}
