package jira

import (
	"context"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"build-insight/internal/limiter"
	"build-insight/internal/metrics"
	"build-insight/internal/models"
)

// Searcher is the lookup the enricher needs; *Client satisfies it.
type Searcher interface {
	Search(ctx context.Context, keywords []string) ([]models.JiraMatch, error)
}

// Enricher attaches existing tracker issues to product bug reports before a
// result is assembled. It is best-effort: search failures are logged and the
// reports stay unenriched.
type Enricher struct {
	client  Searcher
	limit   int
	log     *logrus.Logger
	metrics *metrics.Metrics
}

// NewEnricher creates an enricher running at most limit searches at once
func NewEnricher(client Searcher, limit int, log *logrus.Logger, m *metrics.Metrics) *Enricher {
	return &Enricher{client: client, limit: limit, log: log, metrics: m}
}

// Enrich searches once per unique keyword set and attaches the matches to
// every report that produced that set. Reports inside child job analyses are
// included. Never fails.
func (e *Enricher) Enrich(ctx context.Context, failures []models.FailureAnalysis, children []models.ChildJobAnalysis) {
	if e == nil || e.client == nil {
		return
	}
	reports := collectBugReports(failures, children)
	if len(reports) == 0 {
		return
	}

	// Identical keyword sets mean one search, regardless of order.
	groups := make(map[string][]*models.BugReport)
	var order []string
	for _, report := range reports {
		if len(report.JiraSearchKeywords) == 0 {
			continue
		}
		sorted := append([]string(nil), report.JiraSearchKeywords...)
		sort.Strings(sorted)
		key := strings.Join(sorted, "\x00")
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], report)
	}
	if len(order) == 0 {
		return
	}

	e.log.WithFields(logrus.Fields{
		"keyword_sets": len(order),
		"bug_reports":  len(reports),
	}).Info("searching jira for existing issues")

	outcomes := limiter.Run(ctx, len(order), e.limit, func(ctx context.Context, i int) ([]models.JiraMatch, error) {
		e.metrics.JiraSearches.Inc()
		return e.client.Search(ctx, strings.Split(order[i], "\x00"))
	})

	total := 0
	for i, out := range outcomes {
		if out.Err != nil {
			e.metrics.JiraErrors.Inc()
			e.log.Warnf("jira search failed: %v", out.Err)
			continue
		}
		total += len(out.Value)
		for _, report := range groups[order[i]] {
			report.JiraMatches = out.Value
		}
	}
	e.log.WithField("matches", total).Info("jira search complete")
}

// collectBugReports gathers every product bug report pointer, descending
// into child job analyses.
func collectBugReports(failures []models.FailureAnalysis, children []models.ChildJobAnalysis) []*models.BugReport {
	var reports []*models.BugReport
	for _, f := range failures {
		if f.Analysis.BugReport != nil {
			reports = append(reports, f.Analysis.BugReport)
		}
	}
	for _, child := range children {
		reports = append(reports, collectBugReports(child.Failures, child.FailedChildren)...)
	}
	return reports
}
