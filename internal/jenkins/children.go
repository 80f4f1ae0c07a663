package jenkins

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// BuildInfo is the subset of a build's api/json the engine reads.
type BuildInfo struct {
	FullDisplayName string     `json:"fullDisplayName"`
	Result          string     `json:"result"`
	Building        bool       `json:"building"`
	URL             string     `json:"url"`
	SubBuilds       []SubBuild `json:"subBuilds"`
	Actions         []Action   `json:"actions"`
}

// SubBuild is a downstream build recorded by the multijob plugin.
type SubBuild struct {
	JobName     string `json:"jobName"`
	BuildNumber int    `json:"buildNumber"`
	Result      string `json:"result"`
}

// Action holds the trigger records some plugins attach to a build.
type Action struct {
	TriggeredBuilds []TriggeredBuild `json:"triggeredBuilds"`
}

// TriggeredBuild is a downstream build recorded by the parameterized
// trigger plugin.
type TriggeredBuild struct {
	Number int    `json:"number"`
	Result string `json:"result"`
	URL    string `json:"url"`
}

// ChildRef identifies a downstream build that failed.
type ChildRef struct {
	JobName     string
	BuildNumber int
}

// Console lines like "Build folder » app #42 completed: FAILURE" are the
// fallback when the build info carries no structured child records.
var childLinePattern = regexp.MustCompile(`Build\s+(.+?)\s+#(\d+)\s+completed:\s*(FAILURE|UNSTABLE)`)

// FailedChildren returns downstream builds that finished FAILURE or
// UNSTABLE, combining subBuilds with triggered-build actions and removing
// duplicates.
func (b *BuildInfo) FailedChildren() []ChildRef {
	var refs []ChildRef
	seen := make(map[string]bool)
	add := func(name string, number int) {
		if name == "" || number <= 0 {
			return
		}
		key := fmt.Sprintf("%s#%d", name, number)
		if seen[key] {
			return
		}
		seen[key] = true
		refs = append(refs, ChildRef{JobName: name, BuildNumber: number})
	}

	for _, sb := range b.SubBuilds {
		if failedResult(sb.Result) {
			add(normalizeJobName(sb.JobName), sb.BuildNumber)
		}
	}
	for _, action := range b.Actions {
		for _, tb := range action.TriggeredBuilds {
			if !failedResult(tb.Result) {
				continue
			}
			name, number, err := ParseBuildURL(tb.URL)
			if err != nil {
				continue
			}
			if tb.Number != 0 {
				number = tb.Number
			}
			add(name, number)
		}
	}
	return refs
}

// FailedChildrenFromConsole scans console output for downstream build
// completion lines.
func FailedChildrenFromConsole(console string) []ChildRef {
	var refs []ChildRef
	seen := make(map[string]bool)
	for _, m := range childLinePattern.FindAllStringSubmatch(console, -1) {
		name := normalizeJobName(m[1])
		number, err := strconv.Atoi(m[2])
		if err != nil || name == "" {
			continue
		}
		key := fmt.Sprintf("%s#%d", name, number)
		if seen[key] {
			continue
		}
		seen[key] = true
		refs = append(refs, ChildRef{JobName: name, BuildNumber: number})
	}
	return refs
}

func failedResult(result string) bool {
	return result == "FAILURE" || result == "UNSTABLE"
}

// normalizeJobName converts the display form "folder » app" to the path
// form "folder/app".
func normalizeJobName(name string) string {
	return strings.ReplaceAll(strings.TrimSpace(name), " » ", "/")
}
