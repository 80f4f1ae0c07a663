package analyzer

import (
	"regexp"
	"strings"
)

// Console excerpt limits. When nothing error-like matches, the last
// fallbackTailLines lines stand in for the whole log.
const (
	fallbackTailLines = 200
	preContextLines   = 2
)

var errorLinePattern = regexp.MustCompile(`(?i)\b(error|fail(ed|ure)?|exception|traceback|assert(ion)?|warn(ing)?|critical|fatal)\b`)

// ConsoleContext reduces a raw console log to the lines worth showing an
// analyzer: every error-like line with two lines of leading context, plus
// indented continuation lines (stack traces) that follow a hit.
func ConsoleContext(console string) string {
	if console == "" {
		return ""
	}
	lines := strings.Split(console, "\n")
	var relevant []string
	seen := make(map[int]bool, len(lines)/4)
	continuing := false

	for i, line := range lines {
		if errorLinePattern.MatchString(line) {
			for j := max(0, i-preContextLines); j <= i; j++ {
				if !seen[j] {
					relevant = append(relevant, lines[j])
					seen[j] = true
				}
			}
			continuing = true
			continue
		}
		if !continuing {
			continue
		}
		if strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t") || strings.TrimSpace(line) == "" {
			if !seen[i] {
				relevant = append(relevant, line)
				seen[i] = true
			}
		} else {
			continuing = false
		}
	}

	if len(relevant) > 0 {
		return strings.Join(relevant, "\n")
	}
	if len(lines) > fallbackTailLines {
		lines = lines[len(lines)-fallbackTailLines:]
	}
	return strings.Join(lines, "\n")
}
