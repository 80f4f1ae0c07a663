package jira

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

const issuesJSON = `{
	"issues": [
		{"key": "PAY-101", "fields": {"summary": "checkout endpoint 500", "status": {"name": "Open"}, "priority": {"name": "High"}}},
		{"key": "PAY-90", "fields": {"summary": "slow checkout page", "status": {"name": "Closed"}, "priority": null}}
	]
}`

func TestSearchCloudMode(t *testing.T) {
	t.Parallel()

	var gotPath, gotJQL string
	var gotAuth bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotJQL = r.URL.Query().Get("jql")
		user, pass, ok := r.BasicAuth()
		gotAuth = ok && user == "qa@example.com" && pass == "token123"
		w.Write([]byte(issuesJSON))
	}))
	defer srv.Close()

	c := New(Options{
		URL:        srv.URL,
		ProjectKey: "PAY",
		Email:      "qa@example.com",
		APIToken:   "token123",
		SSLVerify:  true,
		MaxResults: 5,
	}, testLogger())

	matches, err := c.Search(context.Background(), []string{"checkout", "500"})
	require.NoError(t, err)

	assert.Equal(t, "/rest/api/3/search", gotPath)
	assert.True(t, gotAuth)
	assert.Equal(t, `project = "PAY" AND (text ~ "checkout" OR text ~ "500") ORDER BY updated DESC`, gotJQL)

	require.Len(t, matches, 2)
	assert.Equal(t, "PAY-101", matches[0].Key, "both keywords hit, sorts first")
	assert.Equal(t, 1.0, matches[0].Score)
	assert.Equal(t, "Open", matches[0].Status)
	assert.Equal(t, "High", matches[0].Priority)
	assert.Equal(t, srv.URL+"/browse/PAY-101", matches[0].URL)
	assert.Equal(t, 0.5, matches[1].Score)
	assert.Empty(t, matches[1].Priority)
}

func TestSearchServerMode(t *testing.T) {
	t.Parallel()

	var gotPath, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{"issues": []}`))
	}))
	defer srv.Close()

	c := New(Options{URL: srv.URL, PAT: "pat-secret", SSLVerify: true}, testLogger())

	matches, err := c.Search(context.Background(), []string{"login"})
	require.NoError(t, err)
	assert.Empty(t, matches)
	assert.Equal(t, "/rest/api/2/search", gotPath)
	assert.Equal(t, "Bearer pat-secret", gotAuth)
}

func TestSearchNoKeywords(t *testing.T) {
	t.Parallel()

	c := New(Options{URL: "https://jira.example.com"}, testLogger())
	matches, err := c.Search(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, matches)
}

func TestSearchServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "denied", http.StatusForbidden)
	}))
	defer srv.Close()

	c := New(Options{URL: srv.URL, PAT: "x", SSLVerify: true}, testLogger())
	_, err := c.Search(context.Background(), []string{"login"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestBuildJQLStripsQuotes(t *testing.T) {
	t.Parallel()

	c := New(Options{URL: "https://jira.example.com"}, testLogger())
	jql := c.buildJQL([]string{`pay"ment`})
	assert.Equal(t, `(text ~ "payment") ORDER BY updated DESC`, jql)
}

func TestRelevanceRounding(t *testing.T) {
	t.Parallel()

	score := relevance([]string{"alpha", "beta", "gamma"}, "KEY-1", "alpha only here")
	assert.Equal(t, 0.33, score)
	assert.Equal(t, 0.0, relevance(nil, "KEY-1", "anything"))
}
