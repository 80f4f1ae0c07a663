package jenkins

import "build-insight/internal/models"

// TestReport is the subset of Jenkins' testReport/api/json the engine reads.
// Matrix and multijob builds nest per-child reports under childReports.
type TestReport struct {
	Suites       []Suite       `json:"suites"`
	ChildReports []ChildReport `json:"childReports"`
}

// ChildReport wraps a nested report from an aggregated build.
type ChildReport struct {
	Result *TestReport `json:"result"`
}

// Suite is one test suite in a report.
type Suite struct {
	Name  string `json:"name"`
	Cases []Case `json:"cases"`
}

// Case is one executed test case.
type Case struct {
	ClassName       string  `json:"className"`
	Name            string  `json:"name"`
	Status          string  `json:"status"`
	Duration        float64 `json:"duration"`
	ErrorDetails    string  `json:"errorDetails"`
	ErrorStackTrace string  `json:"errorStackTrace"`
}

// FullName joins class and method name the way Jenkins displays them
func (c Case) FullName() string {
	if c.ClassName == "" {
		return c.Name
	}
	return c.ClassName + "." + c.Name
}

// failed reports whether the case counts as a failure. REGRESSION is what
// Jenkins calls a newly failing test.
func (c Case) failed() bool {
	return c.Status == "FAILED" || c.Status == "REGRESSION"
}

// Failures flattens the report into failure records, descending into child
// reports. A nil report yields nothing.
func (r *TestReport) Failures() []models.FailureRecord {
	if r == nil {
		return nil
	}
	var records []models.FailureRecord
	for _, suite := range r.Suites {
		for _, c := range suite.Cases {
			if !c.failed() {
				continue
			}
			records = append(records, models.FailureRecord{
				TestName:     c.FullName(),
				ErrorMessage: c.ErrorDetails,
				StackTrace:   c.ErrorStackTrace,
				Duration:     c.Duration,
				Status:       c.Status,
			})
		}
	}
	for _, child := range r.ChildReports {
		records = append(records, child.Result.Failures()...)
	}
	return records
}
