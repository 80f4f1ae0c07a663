package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"strings"

	"build-insight/internal/models"
)

// maxChildRenderDepth bounds recursion through nested child job analyses.
const maxChildRenderDepth = 10

var tmplFuncs = template.FuncMap{
	"plural": func(n int) string {
		if n == 1 {
			return ""
		}
		return "s"
	},
}

var (
	reportTmpl = template.Must(template.New("report").Funcs(tmplFuncs).Parse(reportHTML))
	statusTmpl = template.Must(template.New("status").Parse(statusHTML))
)

// Render produces a self-contained HTML report for a finished analysis.
// All CSS is inlined so the document can be opened directly in a browser.
func Render(jobID string, result *models.JobResult) (string, error) {
	if result == nil {
		return "", errors.New("no result to render")
	}

	jobName := result.JobName
	if jobName == "" {
		jobName = "Unknown"
	}
	buildNumber := ""
	if result.BuildNumber != 0 {
		buildNumber = fmt.Sprintf("%d", result.BuildNumber)
	}

	groups := groupFailures(result.Failures)
	bugRefs := make(map[string]string, len(groups))
	for _, g := range groups {
		bugRefs[groupKey(g.analysis)] = g.BugID
	}

	rows := make([]failureRow, 0, len(result.Failures))
	for i, f := range result.Failures {
		cls := string(f.Analysis.Classification)
		if cls == "" {
			cls = "Unknown"
		}
		rows = append(rows, failureRow{
			Index:    i + 1,
			Test:     f.TestName,
			Error:    f.Error,
			Class:    classLabel(cls),
			ClassCSS: classCSS(cls),
			BugRef:   bugRefs[groupKey(f.Analysis)],
		})
	}

	data := reportPage{
		JobName:      jobName,
		BuildNumber:  buildNumber,
		BuildURL:     result.BuildURL,
		Provider:     formatProvider(result.Provider, result.Model),
		JobID:        jobID,
		Summary:      result.Summary,
		FailureCount: len(result.Failures),
		Groups:       groups,
		Children:     childViews(result.ChildJobs, 0),
		Failures:     rows,
	}
	data.Empty = data.FailureCount == 0 && len(data.Children) == 0

	var buf bytes.Buffer
	if err := reportTmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render report: %w", err)
	}
	return buf.String(), nil
}

// StatusPage produces an auto-refreshing placeholder page for a job that
// has not finished yet.
func StatusPage(job *models.Job) (string, error) {
	if job == nil {
		return "", errors.New("no job to render")
	}
	data := statusPage{
		JobID:    job.ID,
		Status:   string(job.Status),
		Running:  job.Status == models.StatusRunning,
		Created:  job.CreatedAt.UTC().Format("2006-01-02 15:04:05 MST"),
		BuildURL: job.BuildURL,
	}
	var buf bytes.Buffer
	if err := statusTmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render status page: %w", err)
	}
	return buf.String(), nil
}

type reportPage struct {
	JobName      string
	BuildNumber  string
	BuildURL     string
	Provider     string
	JobID        string
	Summary      string
	FailureCount int
	Empty        bool
	Groups       []rootCause
	Children     []childView
	Failures     []failureRow
}

type failureRow struct {
	Index    int
	Test     string
	Error    string
	Class    string
	ClassCSS string
	BugRef   string
}

// rootCause is one card in the Root Cause Analysis section: a set of
// failures that share the same underlying analysis.
type rootCause struct {
	BugID         string
	Title         string
	TestCount     int
	Class         string
	ClassCSS      string
	Severity      string
	SeverityLabel string
	Details       string
	CodeFix       *models.CodeFix
	Bug           *models.BugReport
	Tests         []string
	Error         string

	analysis models.Analysis
}

type childView struct {
	JobName      string
	BuildNumber  int
	BuildURL     string
	Summary      string
	Note         string
	FailureCount int
	Groups       []rootCause
	Children     []childView
}

func childViews(children []models.ChildJobAnalysis, depth int) []childView {
	if depth >= maxChildRenderDepth || len(children) == 0 {
		return nil
	}
	views := make([]childView, 0, len(children))
	for _, c := range children {
		views = append(views, childView{
			JobName:      c.JobName,
			BuildNumber:  c.BuildNumber,
			BuildURL:     c.BuildURL,
			Summary:      c.Summary,
			Note:         c.Note,
			FailureCount: len(c.Failures),
			Groups:       groupFailures(c.Failures),
			Children:     childViews(c.FailedChildren, depth+1),
		})
	}
	return views
}

// groupKey aggregates failures by root cause: classification plus the
// first four words of the bug title for product bugs, or classification
// plus file path for code issues. The four-word prefix tolerates minor
// phrasing differences between analysis calls for the same bug.
func groupKey(a models.Analysis) string {
	cls := strings.ToUpper(strings.TrimSpace(string(a.Classification)))
	if a.BugReport != nil && a.BugReport.Title != "" {
		words := strings.Fields(strings.ToLower(strings.TrimSpace(a.BugReport.Title)))
		if len(words) > 4 {
			words = words[:4]
		}
		return cls + "|title:" + strings.Join(words, " ")
	}
	if a.CodeFix != nil && a.CodeFix.File != "" {
		return cls + "|file:" + strings.TrimSpace(a.CodeFix.File)
	}
	raw, _ := json.Marshal(a)
	return string(raw)
}

// groupFailures buckets failures by groupKey, then merges singleton
// buckets into a dominant bucket (more than half of all failures) when
// they share its classification.
func groupFailures(failures []models.FailureAnalysis) []rootCause {
	if len(failures) == 0 {
		return nil
	}

	byKey := make(map[string][]models.FailureAnalysis)
	var order []string
	for _, f := range failures {
		k := groupKey(f.Analysis)
		if _, ok := byKey[k]; !ok {
			order = append(order, k)
		}
		byKey[k] = append(byKey[k], f)
	}

	if len(failures) > 2 && len(byKey) > 1 {
		dominant := order[0]
		for _, k := range order {
			if len(byKey[k]) > len(byKey[dominant]) {
				dominant = k
			}
		}
		if len(byKey[dominant])*2 > len(failures) {
			domClass := strings.ToUpper(strings.TrimSpace(string(byKey[dominant][0].Analysis.Classification)))
			kept := order[:0]
			for _, k := range order {
				if k != dominant && len(byKey[k]) == 1 &&
					strings.ToUpper(strings.TrimSpace(string(byKey[k][0].Analysis.Classification))) == domClass {
					byKey[dominant] = append(byKey[dominant], byKey[k][0])
					delete(byKey, k)
					continue
				}
				kept = append(kept, k)
			}
			order = kept
		}
	}

	groups := make([]rootCause, 0, len(order))
	for i, k := range order {
		groups = append(groups, newRootCause(fmt.Sprintf("BUG-%d", i+1), byKey[k]))
	}
	return groups
}

func newRootCause(bugID string, failures []models.FailureAnalysis) rootCause {
	detail := failures[0].Analysis
	cls := string(detail.Classification)
	if cls == "" {
		cls = "Unknown"
	}

	severity := "unknown"
	if detail.BugReport != nil {
		switch s := strings.ToLower(detail.BugReport.Severity); s {
		case "critical", "high", "medium", "low":
			severity = s
		}
	}

	title := ""
	if detail.BugReport != nil && detail.BugReport.Title != "" {
		title = detail.BugReport.Title
	} else if failures[0].Error != "" {
		title = failures[0].Error
	} else {
		title = failures[0].TestName
	}

	tests := make([]string, 0, len(failures))
	for _, f := range failures {
		tests = append(tests, f.TestName)
	}

	return rootCause{
		BugID:         bugID,
		Title:         title,
		TestCount:     len(failures),
		Class:         classLabel(cls),
		ClassCSS:      classCSS(cls),
		Severity:      severity,
		SeverityLabel: strings.ToUpper(severity),
		Details:       detail.Details,
		CodeFix:       detail.CodeFix,
		Bug:           detail.BugReport,
		Tests:         tests,
		Error:         failures[0].Error,
		analysis:      detail,
	}
}

func classCSS(classification string) string {
	lower := strings.ToLower(strings.TrimSpace(classification))
	switch {
	case strings.Contains(lower, "product") && strings.Contains(lower, "bug"):
		return "product-bug"
	case strings.Contains(lower, "code") && strings.Contains(lower, "issue"):
		return "code-issue"
	default:
		return "unknown"
	}
}

func classLabel(classification string) string {
	return strings.ReplaceAll(classification, "_", " ")
}

func formatProvider(provider, model string) string {
	if provider == "" {
		return "Unknown provider"
	}
	name := strings.ToUpper(provider[:1]) + provider[1:]
	if model != "" {
		return fmt.Sprintf("%s (%s)", name, model)
	}
	return name
}

type statusPage struct {
	JobID    string
	Status   string
	Running  bool
	Created  string
	BuildURL string
}

const reportHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>Build Analysis - {{.JobName}} #{{.BuildNumber}}</title>
<style>
:root {
    --bg-primary: #0d1117;
    --bg-secondary: #161b22;
    --bg-tertiary: #21262d;
    --bg-hover: #292e36;
    --border: #30363d;
    --text-primary: #e6edf3;
    --text-secondary: #8b949e;
    --text-muted: #6e7681;
    --accent-red: #f85149;
    --accent-red-bg: rgba(248, 81, 73, 0.12);
    --accent-green: #3fb950;
    --accent-blue: #58a6ff;
    --accent-blue-bg: rgba(88, 166, 255, 0.08);
    --accent-yellow: #d29922;
    --accent-orange: #f0883e;
    --accent-orange-bg: rgba(240, 136, 62, 0.12);
    --accent-purple: #bc8cff;
    --font-mono: 'SF Mono', 'Cascadia Code', 'Fira Code', 'JetBrains Mono', Consolas, monospace;
    --font-sans: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Oxygen, Ubuntu, Cantarell, sans-serif;
    --radius: 8px;
}
*,*::before,*::after { box-sizing: border-box; margin: 0; padding: 0; }
body {
    font-family: var(--font-sans);
    background: var(--bg-primary);
    color: var(--text-primary);
    line-height: 1.6;
    min-height: 100vh;
}
.container { max-width: 1200px; margin: 0 auto; padding: 0 24px 60px; }
.sticky-header {
    position: sticky;
    top: 0;
    z-index: 100;
    background: var(--bg-secondary);
    border-bottom: 1px solid var(--border);
    padding: 16px 24px;
    margin: 0 -24px 32px;
}
.header-content { max-width: 1200px; margin: 0 auto; display: flex; align-items: center; gap: 16px; flex-wrap: wrap; }
.header-content h1 { font-size: 20px; font-weight: 700; flex-shrink: 0; }
.failure-badge {
    display: inline-flex;
    align-items: center;
    gap: 6px;
    background: var(--accent-red-bg);
    color: var(--accent-red);
    font-size: 13px;
    font-weight: 700;
    padding: 4px 12px;
    border-radius: 12px;
    font-family: var(--font-mono);
}
.env-chips { display: flex; gap: 8px; flex-wrap: wrap; margin-left: auto; }
.env-chip {
    font-size: 12px;
    padding: 4px 10px;
    border-radius: 6px;
    background: var(--bg-tertiary);
    border: 1px solid var(--border);
    color: var(--text-secondary);
    text-decoration: none;
}
.env-chip a { color: var(--accent-blue); text-decoration: none; }
.env-chip a:hover { text-decoration: underline; }
.section-title {
    font-size: 14px;
    font-weight: 600;
    text-transform: uppercase;
    letter-spacing: 1px;
    color: var(--text-muted);
    margin: 32px 0 16px;
    padding-bottom: 8px;
    border-bottom: 1px solid var(--border);
}
.bug-card {
    background: var(--bg-secondary);
    border: 1px solid var(--border);
    border-radius: var(--radius);
    margin-bottom: 12px;
    overflow: hidden;
}
.bug-card[open] { border-color: var(--accent-blue); }
.bug-summary {
    padding: 16px 20px;
    cursor: pointer;
    display: flex;
    align-items: center;
    gap: 12px;
    flex-wrap: wrap;
    list-style: none;
}
.bug-summary::-webkit-details-marker { display: none; }
.bug-summary::before {
    content: "\25B6";
    font-size: 10px;
    color: var(--text-muted);
    transition: transform 0.2s;
}
.bug-card[open] .bug-summary::before { transform: rotate(90deg); }
.bug-title {
    flex: 1;
    font-weight: 600;
    font-size: 14px;
    overflow: hidden;
    text-overflow: ellipsis;
    white-space: nowrap;
}
.bug-id {
    font-family: var(--font-mono);
    font-size: 12px;
    font-weight: 700;
    color: var(--accent-blue);
    background: var(--accent-blue-bg);
    padding: 2px 8px;
    border-radius: 4px;
}
.bug-count { font-size: 12px; color: var(--text-muted); }
.bug-body {
    padding: 0 20px 20px;
    border-top: 1px solid var(--border);
}
.bug-body h4 {
    font-size: 13px;
    color: var(--text-muted);
    text-transform: uppercase;
    letter-spacing: 0.5px;
    margin: 16px 0 8px;
}
.bug-tests ul { list-style: none; padding: 0; }
.bug-tests li {
    padding: 4px 0;
    font-size: 13px;
    color: var(--text-secondary);
}
.bug-tests li::before { content: "\2192 "; color: var(--text-muted); }
.bug-tests code {
    font-family: var(--font-mono);
    font-size: 12px;
    color: var(--text-primary);
}
.classification-tag {
    font-size: 11px;
    font-weight: 600;
    padding: 2px 8px;
    border-radius: 4px;
    text-transform: uppercase;
}
.classification-tag.product-bug {
    background: var(--accent-orange-bg);
    color: var(--accent-orange);
}
.classification-tag.code-issue {
    background: var(--accent-blue-bg);
    color: var(--accent-blue);
}
.classification-tag.unknown {
    background: var(--bg-tertiary);
    color: var(--text-muted);
}
.severity-tag-inline {
    font-size: 11px;
    font-weight: 700;
    font-family: var(--font-mono);
    padding: 2px 8px;
    border-radius: 4px;
    text-transform: uppercase;
}
.severity-tag-inline.critical { background: rgba(248,81,73,0.15); color: #ff6b63; }
.severity-tag-inline.high { background: rgba(240,136,62,0.15); color: var(--accent-orange); }
.severity-tag-inline.medium { background: rgba(210,153,34,0.15); color: var(--accent-yellow); }
.severity-tag-inline.low { background: rgba(63,185,80,0.15); color: var(--accent-green); }
.severity-tag-inline.unknown { background: var(--bg-tertiary); color: var(--text-muted); }
.jira-matches { margin-top: 12px; }
.jira-match-link {
    display: inline-flex;
    align-items: center;
    gap: 6px;
    padding: 4px 10px;
    margin: 3px 4px 3px 0;
    border-radius: 4px;
    background: var(--bg-tertiary);
    border: 1px solid var(--border);
    color: var(--accent-blue);
    font-size: 12px;
    font-family: var(--font-mono);
    text-decoration: none;
    transition: background 0.15s;
}
.jira-match-link:hover { background: var(--bg-hover); text-decoration: underline; }
.jira-match-status { color: var(--text-muted); font-size: 11px; }
.analysis-pre, .error-pre {
    background: var(--bg-primary);
    border: 1px solid var(--border);
    border-radius: 4px;
    padding: 16px;
    font-family: var(--font-mono);
    font-size: 12px;
    line-height: 1.6;
    overflow-x: auto;
    white-space: pre-wrap;
    word-break: break-word;
    color: var(--text-secondary);
}
.error-pre {
    border-left: 3px solid var(--accent-red);
    color: var(--accent-red);
}
.detail-grid {
    display: grid;
    grid-template-columns: auto 1fr;
    gap: 4px 16px;
    font-size: 13px;
    margin-top: 8px;
}
.detail-label { color: var(--text-muted); font-weight: 600; }
.detail-value { color: var(--text-primary); font-family: var(--font-mono); font-size: 12px; }
.table-container {
    overflow-x: auto;
    background: var(--bg-secondary);
    border: 1px solid var(--border);
    border-radius: var(--radius);
    margin-bottom: 24px;
}
table {
    width: 100%;
    border-collapse: collapse;
    font-size: 13px;
}
thead { position: sticky; top: 0; z-index: 10; }
th {
    background: var(--bg-tertiary);
    padding: 12px 16px;
    text-align: left;
    font-size: 11px;
    text-transform: uppercase;
    letter-spacing: 0.5px;
    color: var(--text-muted);
    border-bottom: 1px solid var(--border);
    white-space: nowrap;
}
td {
    padding: 10px 16px;
    border-bottom: 1px solid var(--border);
    color: var(--text-secondary);
    vertical-align: top;
}
tr:hover td { background: var(--bg-hover); }
td.test-name { font-family: var(--font-mono); font-size: 12px; color: var(--text-primary); max-width: 300px; word-break: break-all; }
td.error-cell { font-family: var(--font-mono); font-size: 11px; max-width: 350px; word-break: break-word; color: var(--accent-red); }
.child-job {
    background: var(--bg-secondary);
    border: 1px solid var(--border);
    border-radius: var(--radius);
    margin-bottom: 12px;
    overflow: hidden;
}
.child-job[open] { border-color: var(--accent-purple); }
.child-job-summary {
    padding: 16px 20px;
    cursor: pointer;
    display: flex;
    align-items: center;
    gap: 12px;
    flex-wrap: wrap;
    list-style: none;
    font-weight: 600;
    font-size: 14px;
}
.child-job-summary::-webkit-details-marker { display: none; }
.child-job-summary::before {
    content: "\25B6";
    font-size: 10px;
    color: var(--text-muted);
    transition: transform 0.2s;
}
.child-job[open] .child-job-summary::before { transform: rotate(90deg); }
.child-job-body { padding: 0 20px 20px; border-top: 1px solid var(--border); }
.child-job-meta { display: flex; gap: 16px; flex-wrap: wrap; margin: 12px 0; font-size: 12px; color: var(--text-muted); }
.child-job-meta a { color: var(--accent-blue); text-decoration: none; }
.child-job-meta a:hover { text-decoration: underline; }
.child-note { font-size: 13px; color: var(--accent-yellow); font-style: italic; margin: 8px 0; }
.key-takeaway {
    background: var(--bg-secondary);
    border: 1px solid var(--accent-yellow);
    border-left: 4px solid var(--accent-yellow);
    border-radius: var(--radius);
    padding: 20px 24px;
    margin-bottom: 24px;
}
.key-takeaway-header { display: flex; align-items: center; gap: 10px; margin-bottom: 8px; }
.key-takeaway-header h3 { font-size: 14px; color: var(--accent-yellow); }
.key-takeaway p { font-size: 14px; color: var(--text-secondary); line-height: 1.7; }
.report-footer {
    margin-top: 48px;
    padding: 24px 0;
    border-top: 1px solid var(--border);
    font-size: 12px;
    color: var(--text-muted);
    display: flex;
    justify-content: space-between;
    flex-wrap: wrap;
    gap: 12px;
}
.report-footer a { color: var(--accent-blue); text-decoration: none; }
.report-footer a:hover { text-decoration: underline; }
.no-failures {
    text-align: center;
    padding: 60px 20px;
    color: var(--text-muted);
    font-size: 16px;
}
.no-failures svg { margin-bottom: 16px; }
@media (max-width: 768px) {
    .header-content { flex-direction: column; align-items: flex-start; }
    .env-chips { margin-left: 0; }
}
</style>
</head>
<body>
<div class="container">
<div class="sticky-header">
  <div class="header-content">
    <h1>{{.JobName}}</h1>
    <span class="failure-badge">{{.FailureCount}} failure{{plural .FailureCount}}</span>
    <div class="env-chips">
      <span class="env-chip">Build: #{{.BuildNumber}}</span>
      <span class="env-chip">AI: {{.Provider}}</span>
      {{if .BuildURL}}<span class="env-chip"><a href="{{.BuildURL}}" target="_blank" rel="noopener">Jenkins</a></span>{{end}}
    </div>
  </div>
</div>
{{if .Empty}}
<div class="no-failures">
  <svg width="48" height="48" viewBox="0 0 24 24" fill="none" stroke="var(--accent-green)" stroke-width="2">
    <circle cx="12" cy="12" r="10"/>
    <path d="M8 12l2.5 2.5L16 9"/>
  </svg>
  <p>No failures detected in this build.</p>
</div>
{{else}}
{{if .Groups}}
<h2 class="section-title">Root Cause Analysis</h2>
{{range .Groups}}{{template "rootcause" .}}{{end}}
{{end}}
{{if .Children}}
<h2 class="section-title">Child Job Analyses</h2>
{{template "children" .Children}}
{{end}}
{{if .Failures}}
<h2 class="section-title">All Failures</h2>
<div class="table-container">
<table>
<thead>
<tr>
  <th>#</th>
  <th>Test Name</th>
  <th>Error</th>
  <th>Classification</th>
  <th>Bug Ref</th>
</tr>
</thead>
<tbody>
{{range .Failures}}<tr>
  <td>{{.Index}}</td>
  <td class="test-name">{{.Test}}</td>
  <td class="error-cell" title="{{.Error}}">{{.Error}}</td>
  <td><span class="classification-tag {{.ClassCSS}}">{{.Class}}</span></td>
  <td><span class="bug-id">{{.BugRef}}</span></td>
</tr>
{{end}}</tbody>
</table>
</div>
{{end}}
{{end}}
<div class="key-takeaway">
  <div class="key-takeaway-header">
    <svg width="20" height="20" viewBox="0 0 24 24" fill="none" stroke="var(--accent-yellow)" stroke-width="2">
      <circle cx="12" cy="12" r="10"/>
      <line x1="12" y1="16" x2="12" y2="12"/>
      <line x1="12" y1="8" x2="12.01" y2="8"/>
    </svg>
    <h3>Key Takeaway</h3>
  </div>
  <p>{{.Summary}}</p>
</div>
<div class="report-footer">
  <span>{{.JobName}} #{{.BuildNumber}} | Job ID: {{.JobID}} | Analyzed by {{.Provider}}</span>
  {{if .BuildURL}}<a href="{{.BuildURL}}" target="_blank" rel="noopener">View in Jenkins</a>{{end}}
</div>
</div>
</body>
</html>
{{define "rootcause"}}
<details class="bug-card">
  <summary class="bug-summary">
    <span class="bug-id">{{.BugID}}</span>
    <span class="bug-title">{{.Title}}</span>
    <span class="bug-count">{{.TestCount}} test{{plural .TestCount}}</span>
    <span class="classification-tag {{.ClassCSS}}">{{.Class}}</span>
    <span class="severity-tag-inline {{.Severity}}">{{.SeverityLabel}}</span>
  </summary>
  <div class="bug-body">
    {{if .Details}}
    <h4>AI Analysis</h4>
    <pre class="analysis-pre">{{.Details}}</pre>
    {{end}}
    {{with .CodeFix}}
    <h4>Code Fix</h4>
    <div class="detail-grid">
      <span class="detail-label">File:</span><span class="detail-value">{{.File}}</span>
      <span class="detail-label">Line:</span><span class="detail-value">{{.Line}}</span>
      <span class="detail-label">Change:</span><span class="detail-value">{{.Change}}</span>
    </div>
    {{end}}
    {{with .Bug}}
    <h4>Product Bug Report</h4>
    <div class="detail-grid">
      <span class="detail-label">Title:</span><span class="detail-value">{{.Title}}</span>
      <span class="detail-label">Severity:</span><span class="detail-value">{{.Severity}}</span>
      <span class="detail-label">Component:</span><span class="detail-value">{{.Component}}</span>
      <span class="detail-label">Description:</span><span class="detail-value">{{.Description}}</span>
      <span class="detail-label">Evidence:</span><span class="detail-value">{{.Evidence}}</span>
    </div>
    {{if .JiraMatches}}
    <h4>Possible Jira Matches ({{len .JiraMatches}})</h4>
    <div class="jira-matches">
      {{range .JiraMatches}}<a class="jira-match-link" href="{{.URL}}" target="_blank" rel="noopener">{{.Key}}: {{.Summary}} <span class="jira-match-status">[{{.Status}}]</span></a>
      {{end}}
    </div>
    {{end}}
    {{end}}
    <div class="bug-tests">
      <h4>Affected Tests ({{.TestCount}})</h4>
      <ul>
        {{range .Tests}}<li><code>{{.}}</code></li>
        {{end}}
      </ul>
    </div>
    <div class="bug-error">
      <h4>Error</h4>
      <pre class="error-pre">{{.Error}}</pre>
    </div>
  </div>
</details>
{{end}}
{{define "children"}}
{{range .}}
<details class="child-job">
  <summary class="child-job-summary">
    <span style="color:var(--accent-purple)">{{.JobName}}</span>
    <span style="color:var(--text-muted)">#{{.BuildNumber}}</span>
    <span class="failure-badge" style="font-size:11px;padding:2px 8px">{{.FailureCount}} failure{{plural .FailureCount}}</span>
  </summary>
  <div class="child-job-body">
    <div class="child-job-meta">
      <span>Build: #{{.BuildNumber}}</span>
      {{if .BuildURL}}<a href="{{.BuildURL}}" target="_blank" rel="noopener">View in Jenkins</a>{{end}}
    </div>
    {{if .Note}}<div class="child-note">{{.Note}}</div>{{end}}
    {{if .Summary}}<p style="font-size:13px;color:var(--text-secondary);margin:8px 0">{{.Summary}}</p>{{end}}
    {{range .Groups}}{{template "rootcause" .}}{{end}}
    {{if .Children}}{{template "children" .Children}}{{end}}
  </div>
</details>
{{end}}
{{end}}`

const statusHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<meta http-equiv="refresh" content="10">
<title>Analysis {{if .Running}}Running{{else}}Queued{{end}} - {{.JobID}}</title>
<style>
:root {
    --bg-primary: #0d1117;
    --bg-secondary: #161b22;
    --border: #30363d;
    --text-primary: #e6edf3;
    --text-secondary: #8b949e;
    --text-muted: #6e7681;
    --accent-blue: #58a6ff;
    --accent-yellow: #d29922;
    --font-mono: 'SF Mono', 'Cascadia Code', Consolas, monospace;
    --font-sans: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
    --radius: 8px;
}
*, *::before, *::after { box-sizing: border-box; margin: 0; padding: 0; }
body {
    font-family: var(--font-sans);
    background: var(--bg-primary);
    color: var(--text-primary);
    line-height: 1.6;
    min-height: 100vh;
    display: flex;
    align-items: center;
    justify-content: center;
}
.status-container {
    max-width: 520px;
    width: 100%;
    padding: 40px;
    text-align: center;
}
.status-label {
    font-size: 24px;
    font-weight: 700;
    margin-bottom: 8px;
    color: var(--accent-yellow);
}
.status-detail {
    font-size: 14px;
    color: var(--text-secondary);
    margin-bottom: 32px;
}
.info-card {
    background: var(--bg-secondary);
    border: 1px solid var(--border);
    border-radius: var(--radius);
    padding: 20px;
    text-align: left;
}
.info-row {
    display: flex;
    justify-content: space-between;
    padding: 8px 0;
    font-size: 13px;
    border-bottom: 1px solid var(--border);
}
.info-row:last-child { border-bottom: none; }
.info-label { color: var(--text-muted); font-weight: 600; }
.info-value { color: var(--text-primary); font-family: var(--font-mono); font-size: 12px; }
.info-value a { color: var(--accent-blue); text-decoration: none; }
.info-value a:hover { text-decoration: underline; }
.spinner {
    display: inline-block;
    width: 16px;
    height: 16px;
    border: 2px solid var(--border);
    border-top-color: var(--accent-yellow);
    border-radius: 50%;
    animation: spin 1s linear infinite;
    vertical-align: middle;
    margin-right: 6px;
}
@keyframes spin {
    to { transform: rotate(360deg); }
}
.refresh-note {
    margin-top: 20px;
    font-size: 12px;
    color: var(--text-muted);
}
</style>
</head>
<body>
<div class="status-container">
    <div class="status-label"><span class="spinner"></span>{{if .Running}}Analyzing...{{else}}Queued{{end}}</div>
    <div class="status-detail">{{if .Running}}The build failures are being analyzed. This page will auto-refresh.{{else}}Job is queued and waiting to start. This page will auto-refresh.{{end}}</div>
    <div class="info-card">
        <div class="info-row">
            <span class="info-label">Job ID</span>
            <span class="info-value">{{.JobID}}</span>
        </div>
        <div class="info-row">
            <span class="info-label">Status</span>
            <span class="info-value">{{.Status}}</span>
        </div>
        <div class="info-row">
            <span class="info-label">Created</span>
            <span class="info-value">{{.Created}}</span>
        </div>
        {{if .BuildURL}}
        <div class="info-row">
            <span class="info-label">Jenkins</span>
            <span class="info-value"><a href="{{.BuildURL}}" target="_blank" rel="noopener">View Build</a></span>
        </div>
        {{end}}
    </div>
    <div class="refresh-note">Auto-refreshing every 10 seconds</div>
</div>
</body>
</html>`
