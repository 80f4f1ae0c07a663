package jira

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"build-insight/internal/metrics"
	"build-insight/internal/models"
)

type fakeSearcher struct {
	mu      sync.Mutex
	queries [][]string
	respond func(keywords []string) ([]models.JiraMatch, error)
}

func (f *fakeSearcher) Search(_ context.Context, keywords []string) ([]models.JiraMatch, error) {
	f.mu.Lock()
	f.queries = append(f.queries, keywords)
	f.mu.Unlock()
	if f.respond != nil {
		return f.respond(keywords)
	}
	return []models.JiraMatch{{Key: "PRJ-1", Summary: strings.Join(keywords, " ")}}, nil
}

func (f *fakeSearcher) queryCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries)
}

func newEnricher(s Searcher) *Enricher {
	return NewEnricher(s, 4, testLogger(), metrics.New(prometheus.NewRegistry()))
}

func bugFailure(name string, keywords ...string) models.FailureAnalysis {
	return models.FailureAnalysis{
		TestName: name,
		Analysis: models.Analysis{
			Classification: models.ClassProductBug,
			BugReport:      &models.BugReport{Title: name + " bug", JiraSearchKeywords: keywords},
		},
	}
}

func TestEnrichDeduplicatesKeywordSets(t *testing.T) {
	t.Parallel()

	searcher := &fakeSearcher{}
	e := newEnricher(searcher)

	failures := []models.FailureAnalysis{
		bugFailure("TestA", "checkout", "500"),
		bugFailure("TestB", "500", "checkout"),
		bugFailure("TestC", "login"),
	}

	e.Enrich(context.Background(), failures, nil)

	assert.Equal(t, 2, searcher.queryCount(), "same keyword set searches once")
	require.NotNil(t, failures[0].Analysis.BugReport.JiraMatches)
	assert.Equal(t, failures[0].Analysis.BugReport.JiraMatches, failures[1].Analysis.BugReport.JiraMatches)
	require.Len(t, failures[2].Analysis.BugReport.JiraMatches, 1)
	assert.Equal(t, "login", failures[2].Analysis.BugReport.JiraMatches[0].Summary)
}

func TestEnrichAbsorbsSearchErrors(t *testing.T) {
	t.Parallel()

	searcher := &fakeSearcher{respond: func(keywords []string) ([]models.JiraMatch, error) {
		if keywords[0] == "boom" {
			return nil, errors.New("jira down")
		}
		return []models.JiraMatch{{Key: "PRJ-9"}}, nil
	}}
	e := newEnricher(searcher)

	failures := []models.FailureAnalysis{
		bugFailure("TestA", "boom"),
		bugFailure("TestB", "fine"),
	}

	e.Enrich(context.Background(), failures, nil)

	assert.Nil(t, failures[0].Analysis.BugReport.JiraMatches)
	require.Len(t, failures[1].Analysis.BugReport.JiraMatches, 1)
	assert.Equal(t, "PRJ-9", failures[1].Analysis.BugReport.JiraMatches[0].Key)
}

func TestEnrichIncludesChildFailures(t *testing.T) {
	t.Parallel()

	searcher := &fakeSearcher{}
	e := newEnricher(searcher)

	child := models.ChildJobAnalysis{
		JobName:  "folder/sub",
		Failures: []models.FailureAnalysis{bugFailure("TestChild", "cart")},
		FailedChildren: []models.ChildJobAnalysis{
			{JobName: "folder/subsub", Failures: []models.FailureAnalysis{bugFailure("TestGrand", "api")}},
		},
	}

	e.Enrich(context.Background(), nil, []models.ChildJobAnalysis{child})

	assert.Equal(t, 2, searcher.queryCount())
	require.Len(t, child.Failures[0].Analysis.BugReport.JiraMatches, 1)
	require.Len(t, child.FailedChildren[0].Failures[0].Analysis.BugReport.JiraMatches, 1)
}

func TestEnrichSkipsWithoutKeywordsOrReports(t *testing.T) {
	t.Parallel()

	searcher := &fakeSearcher{}
	e := newEnricher(searcher)

	noKeywords := bugFailure("TestA")
	codeIssue := models.FailureAnalysis{
		TestName: "TestB",
		Analysis: models.Analysis{Classification: models.ClassCodeIssue},
	}

	e.Enrich(context.Background(), []models.FailureAnalysis{noKeywords, codeIssue}, nil)
	assert.Equal(t, 0, searcher.queryCount())

	var disabled *Enricher
	disabled.Enrich(context.Background(), []models.FailureAnalysis{bugFailure("TestC", "kw")}, nil)
}
