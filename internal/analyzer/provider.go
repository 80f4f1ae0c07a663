package analyzer

import (
	"fmt"
	"sort"
	"strings"
)

// Provider describes how to invoke one analysis CLI. The set of providers
// is closed; supporting a new one means adding a table entry.
type Provider struct {
	Name       string
	Binary     string
	UsesOwnCwd bool // provider receives the workspace via args, not the process cwd
	buildArgs  func(model, workspace string) []string
}

// Args returns the argument vector (after the binary) for a call with the
// given model and optional workspace directory
func (p Provider) Args(model, workspace string) []string {
	return p.buildArgs(model, workspace)
}

var providers = map[string]Provider{
	"claude": {
		Name:   "claude",
		Binary: "claude",
		buildArgs: func(model, _ string) []string {
			return []string{"--model", model, "--dangerously-skip-permissions", "-p"}
		},
	},
	"gemini": {
		Name:   "gemini",
		Binary: "gemini",
		buildArgs: func(model, _ string) []string {
			return []string{"--model", model, "--yolo"}
		},
	},
	"cursor": {
		Name:       "cursor",
		Binary:     "agent",
		UsesOwnCwd: true,
		buildArgs: func(model, workspace string) []string {
			args := []string{"--force", "--model", model, "--print"}
			if workspace != "" {
				args = append(args, "--workspace", workspace)
			}
			return args
		},
	},
}

// UnknownProviderError reports a provider name with no table entry
type UnknownProviderError struct {
	Name string
}

func (e *UnknownProviderError) Error() string {
	return fmt.Sprintf("unknown AI provider %q, valid providers: %s", e.Name, strings.Join(ValidProviders(), ", "))
}

// LookupProvider resolves a provider name against the table
func LookupProvider(name string) (Provider, error) {
	p, ok := providers[name]
	if !ok {
		return Provider{}, &UnknownProviderError{Name: name}
	}
	return p, nil
}

// ValidProviders returns the supported provider names, sorted
func ValidProviders() []string {
	names := make([]string, 0, len(providers))
	for name := range providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
