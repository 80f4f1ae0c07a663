package assemble

import (
	"fmt"
	"strings"

	"build-insight/internal/models"
)

// DefaultMaxMessageSize bounds one message body when no size is configured.
const DefaultMaxMessageSize = 4000

// Assembler renders finished analyses into the result envelope and its
// ordered message sequence. It is pure: no I/O, deterministic output for a
// given input.
type Assembler struct {
	maxMessageSize int
}

// New creates an assembler with the given message size bound
func New(maxMessageSize int) *Assembler {
	if maxMessageSize <= 0 {
		maxMessageSize = DefaultMaxMessageSize
	}
	return &Assembler{maxMessageSize: maxMessageSize}
}

// Meta carries build identity into the rendered result.
type Meta struct {
	JobName     string
	BuildNumber int
	BuildURL    string
	Provider    string
	Model       string
}

// Build renders the final result: summary, per-failure analyses, child job
// analyses, and the message sequence consumers deliver as-is.
func (a *Assembler) Build(meta Meta, failures []models.FailureAnalysis, children []models.ChildJobAnalysis, uniqueGroups int) *models.JobResult {
	result := &models.JobResult{
		JobName:     meta.JobName,
		BuildNumber: meta.BuildNumber,
		BuildURL:    meta.BuildURL,
		Summary:     Summary(failures, uniqueGroups, len(children)),
		Provider:    meta.Provider,
		Model:       meta.Model,
		Failures:    failures,
		ChildJobs:   children,
	}
	result.Messages = a.messages(result)
	return result
}

// Summarize renders a result that carries only a summary line, for outcomes
// with nothing to detail, such as a build that passed.
func (a *Assembler) Summarize(meta Meta, summary string) *models.JobResult {
	result := &models.JobResult{
		JobName:     meta.JobName,
		BuildNumber: meta.BuildNumber,
		BuildURL:    meta.BuildURL,
		Summary:     summary,
		Provider:    meta.Provider,
		Model:       meta.Model,
	}
	result.Messages = a.messages(result)
	return result
}

// Summary phrases the outcome: failure total, a note when grouping collapsed
// duplicates, per-classification counts, and the child job tally.
func Summary(failures []models.FailureAnalysis, uniqueGroups, childCount int) string {
	total := len(failures)
	if total == 0 && childCount > 0 {
		return fmt.Sprintf("Pipeline failed due to %d child job(s). See child analyses below.", childCount)
	}

	var b strings.Builder
	if uniqueGroups > 0 && uniqueGroups < total {
		fmt.Fprintf(&b, "%d failure(s) analyzed (%d unique error type(s))", total, uniqueGroups)
	} else {
		fmt.Fprintf(&b, "%d failure(s) analyzed", total)
	}
	if parts := classCounts(failures); len(parts) > 0 {
		fmt.Fprintf(&b, ": %s", strings.Join(parts, ", "))
	}
	if childCount > 0 {
		fmt.Fprintf(&b, ". Additionally, %d failed child job(s) were analyzed recursively.", childCount)
	}
	return b.String()
}

var countedClasses = []struct {
	cls   models.Classification
	label string
}{
	{models.ClassCodeIssue, "code issue(s)"},
	{models.ClassProductBug, "product bug(s)"},
	{models.ClassUnanalyzed, "unanalyzed"},
}

func classCounts(failures []models.FailureAnalysis) []string {
	counts := make(map[models.Classification]int, 3)
	for _, f := range failures {
		cls := f.Analysis.Classification
		if cls == "" {
			cls = models.ClassUnanalyzed
		}
		counts[cls]++
	}
	var parts []string
	for _, c := range countedClasses {
		if n := counts[c.cls]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, c.label))
		}
	}
	return parts
}

// messages derives the ordered sequence: one summary message first, the
// failure detail split into size-bounded chunks, then child job analyses.
func (a *Assembler) messages(result *models.JobResult) []models.Message {
	messages := []models.Message{{Kind: models.MessageSummary, Body: summaryBody(result)}}
	for _, body := range a.split(DetailBlock(result.Failures)) {
		messages = append(messages, models.Message{Kind: models.MessageFailureDetail, Body: body})
	}
	for _, child := range result.ChildJobs {
		for _, body := range a.split(childText(child)) {
			messages = append(messages, models.Message{Kind: models.MessageChildJob, Body: body})
		}
	}
	return messages
}

// DetailBlock renders all failure details as one text, blocks separated by a
// blank line. Joining the split failure_detail bodies with newlines
// reproduces this text exactly.
func DetailBlock(failures []models.FailureAnalysis) string {
	blocks := make([]string, 0, len(failures))
	for _, f := range failures {
		blocks = append(blocks, DetailText(f))
	}
	return strings.Join(blocks, "\n\n")
}

// DetailText renders one failure and its verdict as plain text.
func DetailText(f models.FailureAnalysis) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Test: %s\n", f.TestName)
	fmt.Fprintf(&b, "Classification: %s\n", label(f.Analysis.Classification))
	if f.Error != "" {
		fmt.Fprintf(&b, "Error: %s\n", f.Error)
	}
	if f.Analysis.Details != "" {
		fmt.Fprintf(&b, "Analysis: %s\n", f.Analysis.Details)
	}
	if fix := f.Analysis.CodeFix; fix != nil {
		b.WriteString("Suggested fix")
		if fix.File != "" {
			fmt.Fprintf(&b, " (%s", fix.File)
			if fix.Line != "" {
				fmt.Fprintf(&b, ":%s", fix.Line)
			}
			b.WriteString(")")
		}
		fmt.Fprintf(&b, ": %s\n", fix.Change)
	}
	if bug := f.Analysis.BugReport; bug != nil {
		fmt.Fprintf(&b, "Bug: %s", bug.Title)
		if bug.Severity != "" {
			fmt.Fprintf(&b, " [%s]", bug.Severity)
		}
		if bug.Component != "" {
			fmt.Fprintf(&b, " (%s)", bug.Component)
		}
		b.WriteString("\n")
		if bug.Description != "" {
			fmt.Fprintf(&b, "Description: %s\n", bug.Description)
		}
		if bug.Evidence != "" {
			fmt.Fprintf(&b, "Evidence: %s\n", bug.Evidence)
		}
		for _, m := range bug.JiraMatches {
			fmt.Fprintf(&b, "Related Jira: %s", m.Key)
			if m.Status != "" {
				fmt.Fprintf(&b, " [%s]", m.Status)
			}
			if m.Summary != "" {
				fmt.Fprintf(&b, " %s", m.Summary)
			}
			b.WriteString("\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// childText renders a child job analysis, nesting grandchildren indented.
func childText(child models.ChildJobAnalysis) string {
	var b strings.Builder
	writeChild(&b, child, 0)
	return strings.TrimRight(b.String(), "\n")
}

func writeChild(b *strings.Builder, child models.ChildJobAnalysis, depth int) {
	indent := strings.Repeat("  ", depth)
	fmt.Fprintf(b, "%sChild job %s #%d", indent, child.JobName, child.BuildNumber)
	if child.BuildURL != "" {
		fmt.Fprintf(b, " (%s)", child.BuildURL)
	}
	b.WriteString("\n")
	if child.Summary != "" {
		fmt.Fprintf(b, "%s%s\n", indent, child.Summary)
	}
	if child.Note != "" {
		fmt.Fprintf(b, "%sNote: %s\n", indent, child.Note)
	}
	for _, f := range child.Failures {
		b.WriteString("\n")
		for _, line := range strings.Split(DetailText(f), "\n") {
			fmt.Fprintf(b, "%s%s\n", indent, line)
		}
	}
	for _, gc := range child.FailedChildren {
		b.WriteString("\n")
		writeChild(b, gc, depth+1)
	}
}

// summaryBody is the first message: job identity, summary, build link.
func summaryBody(result *models.JobResult) string {
	var b strings.Builder
	if result.JobName != "" {
		fmt.Fprintf(&b, "%s #%d: ", result.JobName, result.BuildNumber)
	}
	b.WriteString(result.Summary)
	if result.BuildURL != "" {
		fmt.Fprintf(&b, "\n%s", result.BuildURL)
	}
	return b.String()
}

// split cuts text into chunks of whole lines, starting a new chunk when
// appending the next line would push the current chunk past the size bound.
// Lines are never split, so a single line longer than the bound becomes a
// chunk of its own.
func (a *Assembler) split(text string) []string {
	if text == "" {
		return nil
	}
	lines := strings.Split(text, "\n")
	var chunks []string
	var cur []string
	curLen := 0
	for _, line := range lines {
		if len(cur) > 0 && curLen+1+len(line) > a.maxMessageSize {
			chunks = append(chunks, strings.Join(cur, "\n"))
			cur = cur[:0]
			curLen = 0
		}
		if len(cur) > 0 {
			curLen++
		}
		cur = append(cur, line)
		curLen += len(line)
	}
	return append(chunks, strings.Join(cur, "\n"))
}

func label(cls models.Classification) string {
	if cls == "" {
		cls = models.ClassUnanalyzed
	}
	return strings.ReplaceAll(string(cls), "_", " ")
}
