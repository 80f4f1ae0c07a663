package jira

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"build-insight/internal/models"
)

const (
	defaultMaxResults = 5
	searchTimeout     = 30 * time.Second
)

// Options configures the tracker client.
type Options struct {
	URL        string
	ProjectKey string
	Email      string
	APIToken   string
	PAT        string
	SSLVerify  bool
	MaxResults int
}

// Client searches a Jira instance for existing issues. Cloud (email + API
// token, basic auth, REST v3) and Server/DC (PAT bearer, REST v2) are told
// apart by which credentials are set.
type Client struct {
	baseURL    string
	apiPath    string
	projectKey string
	email      string
	apiToken   string
	pat        string
	maxResults int
	http       *http.Client
	log        *logrus.Logger
}

// New creates a Jira client
func New(opts Options, log *logrus.Logger) *Client {
	transport := &http.Transport{}
	if !opts.SSLVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}

	c := &Client{
		baseURL:    strings.TrimRight(opts.URL, "/"),
		projectKey: opts.ProjectKey,
		email:      opts.Email,
		apiToken:   opts.APIToken,
		pat:        opts.PAT,
		maxResults: maxResults,
		http:       &http.Client{Timeout: searchTimeout, Transport: transport},
		log:        log,
	}
	if opts.Email != "" && opts.APIToken != "" {
		c.apiPath = "/rest/api/3"
	} else {
		c.apiPath = "/rest/api/2"
	}
	return c
}

type searchResponse struct {
	Issues []searchIssue `json:"issues"`
}

type searchIssue struct {
	Key    string `json:"key"`
	Fields struct {
		Summary  string     `json:"summary"`
		Status   namedField `json:"status"`
		Priority namedField `json:"priority"`
	} `json:"fields"`
}

type namedField struct {
	Name string `json:"name"`
}

// Search returns issues matching any of the keywords, most relevant first.
func (c *Client) Search(ctx context.Context, keywords []string) ([]models.JiraMatch, error) {
	if len(keywords) == 0 {
		return nil, nil
	}

	params := url.Values{}
	params.Set("jql", c.buildJQL(keywords))
	params.Set("maxResults", strconv.Itoa(c.maxResults))
	params.Set("fields", "summary,status,priority")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+c.apiPath+"/search?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	if c.email != "" && c.apiToken != "" {
		req.SetBasicAuth(c.email, c.apiToken)
	} else {
		req.Header.Set("Authorization", "Bearer "+c.pat)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("jira search failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("jira returned %d", resp.StatusCode)
	}

	var payload searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode jira response: %w", err)
	}

	matches := make([]models.JiraMatch, 0, len(payload.Issues))
	for _, issue := range payload.Issues {
		matches = append(matches, models.JiraMatch{
			Key:      issue.Key,
			Summary:  issue.Fields.Summary,
			Status:   issue.Fields.Status.Name,
			Priority: issue.Fields.Priority.Name,
			URL:      c.baseURL + "/browse/" + issue.Key,
			Score:    relevance(keywords, issue.Key, issue.Fields.Summary),
		})
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })

	return matches, nil
}

// buildJQL composes `(text ~ "kw" OR ...)`, project-scoped when configured,
// newest updates first. Double quotes inside keywords are dropped rather
// than escaped.
func (c *Client) buildJQL(keywords []string) string {
	clauses := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		clauses = append(clauses, fmt.Sprintf("text ~ %q", strings.ReplaceAll(kw, `"`, "")))
	}
	jql := "(" + strings.Join(clauses, " OR ") + ")"
	if c.projectKey != "" {
		jql = fmt.Sprintf("project = %q AND %s", c.projectKey, jql)
	}
	return jql + " ORDER BY updated DESC"
}

// relevance scores an issue by the share of keywords found in its key and
// summary, rounded to two decimals.
func relevance(keywords []string, key, summary string) float64 {
	if len(keywords) == 0 {
		return 0
	}
	searchable := strings.ToLower(key + " " + summary)
	hits := 0
	for _, kw := range keywords {
		if strings.Contains(searchable, strings.ToLower(kw)) {
			hits++
		}
	}
	return math.Round(float64(hits)/float64(len(keywords))*100) / 100
}
