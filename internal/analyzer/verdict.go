package analyzer

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"build-insight/internal/models"
)

// verdictPayload mirrors the JSON object providers are asked to emit.
type verdictPayload struct {
	Classification string            `json:"classification"`
	AffectedTests  []string          `json:"affected_tests"`
	Details        string            `json:"details"`
	CodeFix        *models.CodeFix   `json:"code_fix"`
	BugReport      *models.BugReport `json:"product_bug_report"`
}

// ErrNoVerdict indicates the CLI output contained no JSON object at all.
var ErrNoVerdict = errors.New("no JSON verdict in analysis output")

// ParseVerdict extracts the structured verdict from raw CLI output.
// Providers tend to wrap the JSON in markdown fences or surround it with
// prose, so the parser strips fences and takes the outermost brace pair.
func ParseVerdict(raw string) (models.Analysis, error) {
	text := stripFences(strings.TrimSpace(raw))

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end <= start {
		return models.Analysis{}, ErrNoVerdict
	}

	var payload verdictPayload
	if err := json.Unmarshal([]byte(text[start:end+1]), &payload); err != nil {
		return models.Analysis{}, fmt.Errorf("decode analysis verdict: %w", err)
	}

	a := models.Analysis{
		Classification: normalizeClassification(payload.Classification),
		AffectedTests:  payload.AffectedTests,
		Details:        payload.Details,
		CodeFix:        payload.CodeFix,
		BugReport:      payload.BugReport,
	}
	// A verdict carries at most one of the two payloads; the classification
	// decides which one survives.
	switch a.Classification {
	case models.ClassCodeIssue:
		a.BugReport = nil
	case models.ClassProductBug:
		a.CodeFix = nil
	default:
		a.CodeFix = nil
		a.BugReport = nil
	}
	return a, nil
}

// stripFences unwraps the first markdown code fence, preferring a ```json one.
func stripFences(text string) string {
	for _, marker := range []string{"```json", "```"} {
		i := strings.Index(text, marker)
		if i == -1 {
			continue
		}
		rest := text[i+len(marker):]
		j := strings.Index(rest, "```")
		if j == -1 {
			continue
		}
		return strings.TrimSpace(rest[:j])
	}
	return text
}

// normalizeClassification maps provider spellings, including the older
// "CODE ISSUE" and "PRODUCT BUG" forms, onto the closed classification set.
// Anything unrecognized is treated as unanalyzed.
func normalizeClassification(raw string) models.Classification {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.ReplaceAll(s, "_", " ")
	switch s {
	case "code issue":
		return models.ClassCodeIssue
	case "product bug":
		return models.ClassProductBug
	default:
		return models.ClassUnanalyzed
	}
}
