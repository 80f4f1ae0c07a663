package analyzer

import (
	"fmt"
	"strings"

	"build-insight/internal/grouping"
)

const verdictSchema = `Respond with ONLY a JSON object, no markdown fences and no prose around it.

For a test code problem (broken assertion, stale locator, bad test data, flaky wait):
{
  "classification": "code_issue",
  "affected_tests": ["<test name>", ...],
  "details": "<root cause explanation>",
  "code_fix": {"file": "<path>", "line": "<line number>", "change": "<suggested change>"}
}

For a defect in the product under test:
{
  "classification": "product_bug",
  "affected_tests": ["<test name>", ...],
  "details": "<root cause explanation>",
  "product_bug_report": {
    "title": "<one line bug title>",
    "severity": "<critical|high|medium|low>",
    "component": "<affected component>",
    "description": "<what is broken and how to reproduce>",
    "evidence": "<log lines or assertion output backing the diagnosis>",
    "jira_search_keywords": ["<keyword>", ...]
  }
}`

// groupPrompt builds the analysis request for one failure group. The group's
// first record stands in for all of them; membership guarantees the error and
// stack prefix are identical.
func groupPrompt(group grouping.FailureGroup, consoleContext string) string {
	rep := group.Records[0]
	var b strings.Builder

	b.WriteString("Analyze this test failure from a CI build.\n\n")
	fmt.Fprintf(&b, "AFFECTED TESTS (%d with the same error):\n", len(group.Records))
	for _, rec := range group.Records {
		fmt.Fprintf(&b, "- %s\n", rec.TestName)
	}
	fmt.Fprintf(&b, "\nERROR:\n%s\n", rep.ErrorMessage)
	if rep.StackTrace != "" {
		fmt.Fprintf(&b, "\nSTACK TRACE:\n%s\n", rep.StackTrace)
	}
	if consoleContext != "" {
		fmt.Fprintf(&b, "\nCONSOLE CONTEXT:\n%s\n", consoleContext)
	}
	b.WriteString("\nYou are running inside a checkout of the test repository. Explore the code to pinpoint the cause.\n")
	if len(group.Records) > 1 {
		b.WriteString("Multiple tests failed with this exact error. Produce ONE analysis that covers all of them.\n")
	}
	b.WriteString("\n")
	b.WriteString(verdictSchema)
	return b.String()
}

// consolePrompt builds the fallback request for builds that failed without
// producing a structured test report.
func consolePrompt(jobName string, buildNumber int, consoleContext string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "A CI build failed without publishing a test report: %s #%d.\n", jobName, buildNumber)
	b.WriteString("Diagnose the failure from the console excerpt below.\n")
	fmt.Fprintf(&b, "\nCONSOLE OUTPUT:\n%s\n\n", consoleContext)
	b.WriteString(verdictSchema)
	return b.String()
}
