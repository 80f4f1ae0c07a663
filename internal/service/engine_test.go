package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"build-insight/internal/analyzer"
	"build-insight/internal/assemble"
	"build-insight/internal/config"
	"build-insight/internal/jenkins"
	"build-insight/internal/metrics"
	"build-insight/internal/models"
	"build-insight/internal/repository"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// stubRunner answers analysis prompts from a table instead of spawning
// provider processes.
type stubRunner struct {
	mu      sync.Mutex
	prompts []string
	respond func(prompt string) (string, error)
}

func (s *stubRunner) Run(_ context.Context, _ analyzer.Provider, _, prompt, _ string, _ time.Duration) (string, error) {
	s.mu.Lock()
	s.prompts = append(s.prompts, prompt)
	s.mu.Unlock()
	if s.respond != nil {
		return s.respond(prompt)
	}
	return `{"classification":"code_issue","details":"stale assertion"}`, nil
}

// analysisCalls counts prompts excluding the preflight sanity check.
func (s *stubRunner) analysisCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, p := range s.prompts {
		if p != "Hi" {
			n++
		}
	}
	return n
}

// jenkinsServer serves canned responses by URL path. JSON values are
// encoded, strings are served raw. Unknown paths return 404.
func jenkinsServer(t *testing.T, responses map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp, ok := responses[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		switch v := resp.(type) {
		case string:
			fmt.Fprint(w, v)
		default:
			require.NoError(t, json.NewEncoder(w).Encode(v))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testStore(t *testing.T) *repository.SQLiteStore {
	t.Helper()
	store, err := repository.NewSQLiteStore(filepath.Join(t.TempDir(), "jobs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

// faultyStore delegates to a real store but rejects transitions into one
// status, simulating a store fault at that point of the job lifecycle.
type faultyStore struct {
	repository.JobStore
	failOn models.JobStatus

	mu        sync.Mutex
	attempted []models.JobStatus
}

func (f *faultyStore) Transition(ctx context.Context, id string, status models.JobStatus, result *models.JobResult, errText string) error {
	f.mu.Lock()
	f.attempted = append(f.attempted, status)
	f.mu.Unlock()
	if status == f.failOn {
		return errors.New("database is locked")
	}
	return f.JobStore.Transition(ctx, id, status, result, errText)
}

func (f *faultyStore) transitions() []models.JobStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.JobStatus(nil), f.attempted...)
}

func newTestEngine(t *testing.T, jenkinsURL string, runner analyzer.Runner) *Engine {
	t.Helper()
	return newTestEngineWithStore(t, jenkinsURL, runner, testStore(t))
}

func newTestEngineWithStore(t *testing.T, jenkinsURL string, runner analyzer.Runner, store repository.JobStore) *Engine {
	t.Helper()
	cfg := config.Default()
	cfg.Jenkins.URL = jenkinsURL
	cfg.Analysis.Provider = "claude"
	cfg.Analysis.Model = "opus"
	cfg.Reports.HTML = false

	log := testLogger()
	m := metrics.New(prometheus.NewRegistry())
	return NewEngine(EngineOptions{
		Config:     cfg,
		Store:      store,
		Builds:     jenkins.New(jenkins.Options{URL: jenkinsURL, SSLVerify: true}, log),
		Dispatcher: analyzer.NewDispatcher(runner, time.Minute, 4, log, m),
		Assembler:  assemble.New(4000),
		Log:        log,
		Metrics:    m,
	})
}

func failedCase(class, name, errMsg string) map[string]any {
	return map[string]any{
		"className":       class,
		"name":            name,
		"status":          "FAILED",
		"errorDetails":    errMsg,
		"errorStackTrace": "at checkout_test.go:42",
	}
}

func testReportJSON(cases ...map[string]any) map[string]any {
	return map[string]any{
		"suites": []any{map[string]any{"name": "checkout", "cases": cases}},
	}
}

func buildRequest() *models.AnalyzeBuildRequest {
	return &models.AnalyzeBuildRequest{JobName: "checkout", BuildNumber: 7}
}

func TestAnalyzeBuildSyncOneCallPerGroup(t *testing.T) {
	t.Parallel()

	srv := jenkinsServer(t, map[string]any{
		"/job/checkout/7/api/json":            map[string]any{"result": "FAILURE", "fullDisplayName": "checkout #7"},
		"/job/checkout/7/consoleText":         "ERROR: payment service returned 503",
		"/job/checkout/7/testReport/api/json": testReportJSON(
			failedCase("cart.Test", "AddItem", "timeout waiting for grid"),
			failedCase("pay.Test", "Charge", "assert failed: got 502"),
			failedCase("cart.Test", "RemoveItem", "timeout waiting for grid"),
		),
	})
	runner := &stubRunner{respond: func(prompt string) (string, error) {
		if strings.Contains(prompt, "timeout waiting for grid") {
			return `{"classification":"code_issue","details":"grid wait too short"}`, nil
		}
		return `{"classification":"product_bug","details":"gateway crash","product_bug_report":{"title":"502 on charge"}}`, nil
	}}
	e := newTestEngine(t, srv.URL, runner)

	job, err := e.AnalyzeBuildSync(context.Background(), buildRequest())

	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, job.Status)
	require.NotNil(t, job.Result)
	require.Len(t, job.Result.Failures, 3)
	assert.Equal(t, 2, runner.analysisCalls())
	assert.Equal(t, job.Result.Failures[0].Analysis, job.Result.Failures[2].Analysis)
	assert.Equal(t, "gateway crash", job.Result.Failures[1].Analysis.Details)
	assert.Contains(t, job.Result.Summary, "3 failure(s) analyzed (2 unique error type(s))")
	require.NotEmpty(t, job.Result.Messages)
	assert.Equal(t, models.MessageSummary, job.Result.Messages[0].Kind)
}

func TestAnalyzeBuildSyncPassedBuild(t *testing.T) {
	t.Parallel()

	srv := jenkinsServer(t, map[string]any{
		"/job/checkout/7/api/json": map[string]any{"result": "SUCCESS"},
	})
	runner := &stubRunner{}
	e := newTestEngine(t, srv.URL, runner)

	job, err := e.AnalyzeBuildSync(context.Background(), buildRequest())

	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, job.Status)
	require.NotNil(t, job.Result)
	assert.Equal(t, "Build passed successfully. No failures to analyze.", job.Result.Summary)
	assert.Empty(t, runner.prompts)
	assert.Empty(t, job.Result.Failures)
}

func TestAnalyzeBuildSyncPreflightFailureCompletesUnanalyzed(t *testing.T) {
	t.Parallel()

	srv := jenkinsServer(t, map[string]any{
		"/job/checkout/7/api/json":            map[string]any{"result": "FAILURE"},
		"/job/checkout/7/consoleText":         "ERROR: tests failed",
		"/job/checkout/7/testReport/api/json": testReportJSON(
			failedCase("cart.Test", "AddItem", "timeout waiting for grid"),
			failedCase("pay.Test", "Charge", "assert failed: got 502"),
		),
	})
	runner := &stubRunner{respond: func(string) (string, error) {
		return "", errors.New("executable file not found in $PATH")
	}}
	e := newTestEngine(t, srv.URL, runner)

	job, err := e.AnalyzeBuildSync(context.Background(), buildRequest())

	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, job.Status)
	require.Len(t, job.Result.Failures, 2)
	for _, f := range job.Result.Failures {
		assert.Equal(t, models.ClassUnanalyzed, f.Analysis.Classification)
		assert.Contains(t, f.Analysis.Details, "sanity check failed")
	}
	assert.Equal(t, 0, runner.analysisCalls())
}

func TestAnalyzeBuildSyncConsoleFallback(t *testing.T) {
	t.Parallel()

	srv := jenkinsServer(t, map[string]any{
		"/job/checkout/7/api/json":    map[string]any{"result": "FAILURE"},
		"/job/checkout/7/consoleText": "FATAL: cannot allocate executor\nERROR: aborted",
	})
	runner := &stubRunner{respond: func(prompt string) (string, error) {
		if strings.Contains(prompt, "without publishing a test report") {
			return `{"classification":"code_issue","details":"executor starvation"}`, nil
		}
		return "hello", nil
	}}
	e := newTestEngine(t, srv.URL, runner)

	job, err := e.AnalyzeBuildSync(context.Background(), buildRequest())

	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, job.Status)
	require.Len(t, job.Result.Failures, 1)
	f := job.Result.Failures[0]
	assert.Equal(t, "checkout#7", f.TestName)
	assert.Equal(t, "Console-only analysis", f.Error)
	assert.Equal(t, "executor starvation", f.Analysis.Details)
}

func TestAnalyzeBuildSyncPipelineChildren(t *testing.T) {
	t.Parallel()

	srv := jenkinsServer(t, map[string]any{
		"/job/nightly/3/api/json": map[string]any{
			"result": "FAILURE",
			"subBuilds": []any{
				map[string]any{"jobName": "integration", "buildNumber": 21, "result": "FAILURE"},
				map[string]any{"jobName": "smoke", "buildNumber": 9, "result": "SUCCESS"},
			},
		},
		"/job/nightly/3/consoleText":             "starting downstream builds",
		"/job/nightly/3/testReport/api/json":     map[string]any{"suites": []any{}},
		"/job/integration/21/api/json":           map[string]any{"result": "FAILURE"},
		"/job/integration/21/consoleText":        "ERROR: db migration failed",
		"/job/integration/21/testReport/api/json": testReportJSON(
			failedCase("db.Test", "Migrate", "relation users does not exist"),
		),
	})
	runner := &stubRunner{}
	e := newTestEngine(t, srv.URL, runner)

	job, err := e.AnalyzeBuildSync(context.Background(), &models.AnalyzeBuildRequest{JobName: "nightly", BuildNumber: 3})

	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, job.Status)
	assert.Equal(t, "Pipeline failed due to 1 child job(s). See child analyses below.", job.Result.Summary)
	assert.Empty(t, job.Result.Failures)
	require.Len(t, job.Result.ChildJobs, 1)
	child := job.Result.ChildJobs[0]
	assert.Equal(t, "integration", child.JobName)
	assert.Equal(t, 21, child.BuildNumber)
	require.Len(t, child.Failures, 1)
	assert.Equal(t, "db.Test.Migrate", child.Failures[0].TestName)
	assert.Contains(t, child.Summary, "1 failure(s) analyzed")
}

func TestAnalyzeBuildSyncChildDepthLimit(t *testing.T) {
	t.Parallel()

	srv := jenkinsServer(t, map[string]any{
		"/job/nightly/3/api/json": map[string]any{
			"result":    "FAILURE",
			"subBuilds": []any{map[string]any{"jobName": "stage", "buildNumber": 5, "result": "FAILURE"}},
		},
		"/job/nightly/3/consoleText":         "downstream failed",
		"/job/nightly/3/testReport/api/json": map[string]any{"suites": []any{}},
		"/job/stage/5/api/json": map[string]any{
			"result":    "FAILURE",
			"subBuilds": []any{map[string]any{"jobName": "leaf", "buildNumber": 2, "result": "FAILURE"}},
		},
		"/job/stage/5/consoleText": "downstream failed",
	})
	runner := &stubRunner{}
	e := newTestEngine(t, srv.URL, runner)
	e.cfg.Analysis.MaxChildDepth = 1

	job, err := e.AnalyzeBuildSync(context.Background(), &models.AnalyzeBuildRequest{JobName: "nightly", BuildNumber: 3})

	require.NoError(t, err)
	require.Len(t, job.Result.ChildJobs, 1)
	require.Len(t, job.Result.ChildJobs[0].FailedChildren, 1)
	leaf := job.Result.ChildJobs[0].FailedChildren[0]
	assert.Equal(t, "leaf", leaf.JobName)
	assert.Contains(t, leaf.Note, "max recursion depth reached")
}

func TestAnalyzeBuildSyncChildFetchFailureIsolated(t *testing.T) {
	t.Parallel()

	srv := jenkinsServer(t, map[string]any{
		"/job/nightly/3/api/json": map[string]any{
			"result":    "FAILURE",
			"subBuilds": []any{map[string]any{"jobName": "gone", "buildNumber": 4, "result": "FAILURE"}},
		},
		"/job/nightly/3/consoleText":         "downstream failed",
		"/job/nightly/3/testReport/api/json": map[string]any{"suites": []any{}},
	})
	runner := &stubRunner{}
	e := newTestEngine(t, srv.URL, runner)

	job, err := e.AnalyzeBuildSync(context.Background(), &models.AnalyzeBuildRequest{JobName: "nightly", BuildNumber: 3})

	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, job.Status)
	require.Len(t, job.Result.ChildJobs, 1)
	assert.Contains(t, job.Result.ChildJobs[0].Note, "failed to get build info")
}

func TestAnalyzeBuildSyncBuildInfoErrorFailsJob(t *testing.T) {
	t.Parallel()

	srv := jenkinsServer(t, map[string]any{})
	runner := &stubRunner{}
	e := newTestEngine(t, srv.URL, runner)

	job, err := e.AnalyzeBuildSync(context.Background(), buildRequest())

	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, job.Status)
	assert.Contains(t, job.Error, "failed to get build info")
	assert.Nil(t, job.Result)
}

func TestAnalyzeBuildSyncCanceledRequestStillMarksJobFailed(t *testing.T) {
	t.Parallel()

	srv := jenkinsServer(t, map[string]any{
		"/job/checkout/7/api/json":    map[string]any{"result": "FAILURE"},
		"/job/checkout/7/consoleText": "ERROR: boom",
		"/job/checkout/7/testReport/api/json": testReportJSON(
			failedCase("cart.Test", "AddItem", "timeout waiting for grid"),
		),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runner := &stubRunner{respond: func(string) (string, error) {
		cancel() // caller disconnects mid-analysis
		return `{"classification":"code_issue","details":"stale assertion"}`, nil
	}}
	e := newTestEngine(t, srv.URL, runner)

	_, err := e.AnalyzeBuildSync(ctx, buildRequest())
	require.Error(t, err)

	jobs, err := e.ListJobs(context.Background(), 10, 0)
	require.NoError(t, err)
	require.Len(t, jobs, 1)

	final, err := e.GetJob(context.Background(), jobs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, final.Status)
	assert.Contains(t, final.Error, "context canceled")
}

func TestAnalyzeBuildSyncSavesReport(t *testing.T) {
	t.Parallel()

	srv := jenkinsServer(t, map[string]any{
		"/job/checkout/7/api/json":            map[string]any{"result": "FAILURE"},
		"/job/checkout/7/consoleText":         "ERROR: boom",
		"/job/checkout/7/testReport/api/json": testReportJSON(
			failedCase("cart.Test", "AddItem", "timeout waiting for grid"),
		),
	})
	runner := &stubRunner{}
	e := newTestEngine(t, srv.URL, runner)
	e.cfg.Reports.HTML = true

	job, err := e.AnalyzeBuildSync(context.Background(), buildRequest())

	require.NoError(t, err)
	assert.Equal(t, "/results/"+job.ID+".html", job.Result.HTMLReportURL)
	html, err := e.HTMLReport(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Contains(t, html, "checkout")
	assert.Contains(t, html, "cart.Test.AddItem")
}

func TestSubmitBuildRejectsBadInput(t *testing.T) {
	t.Parallel()

	srv := jenkinsServer(t, map[string]any{})
	e := newTestEngine(t, srv.URL, &stubRunner{})
	ctx := context.Background()

	_, err := e.SubmitBuild(ctx, &models.AnalyzeBuildRequest{BuildNumber: 7})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = e.SubmitBuild(ctx, &models.AnalyzeBuildRequest{JobName: "checkout"})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = e.SubmitBuild(ctx, &models.AnalyzeBuildRequest{JobName: "checkout", BuildNumber: 7, Provider: "clippy"})
	require.ErrorIs(t, err, ErrInvalidRequest)
	assert.Contains(t, err.Error(), "unknown AI provider")

	e.cfg.Analysis.Model = ""
	_, err = e.SubmitBuild(ctx, &models.AnalyzeBuildRequest{JobName: "checkout", BuildNumber: 7})
	require.ErrorIs(t, err, ErrInvalidRequest)
	assert.Contains(t, err.Error(), "no AI model configured")

	jobs, err := e.ListJobs(ctx, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestSubmitBuildMissingProviderNamesValidOnes(t *testing.T) {
	t.Parallel()

	srv := jenkinsServer(t, map[string]any{})
	e := newTestEngine(t, srv.URL, &stubRunner{})
	e.cfg.Analysis.Provider = ""

	_, err := e.SubmitBuild(context.Background(), buildRequest())
	require.ErrorIs(t, err, ErrInvalidRequest)
	assert.Contains(t, err.Error(), "no AI provider configured")
	assert.Contains(t, err.Error(), "claude")
}

func TestSubmitBuildRunsInBackground(t *testing.T) {
	t.Parallel()

	srv := jenkinsServer(t, map[string]any{
		"/job/checkout/7/api/json":            map[string]any{"result": "FAILURE"},
		"/job/checkout/7/consoleText":         "ERROR: boom",
		"/job/checkout/7/testReport/api/json": testReportJSON(
			failedCase("cart.Test", "AddItem", "timeout waiting for grid"),
		),
	})
	e := newTestEngine(t, srv.URL, &stubRunner{})
	ctx := context.Background()

	job, err := e.SubmitBuild(ctx, buildRequest())
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, job.Status)
	assert.NotEmpty(t, job.ID)

	require.Eventually(t, func() bool {
		j, err := e.GetJob(ctx, job.ID)
		return err == nil && j.Status == models.StatusCompleted
	}, 5*time.Second, 10*time.Millisecond)

	final, err := e.GetJob(ctx, job.ID)
	require.NoError(t, err)
	require.NotNil(t, final.Result)
	assert.Contains(t, final.Result.Summary, "1 failure(s) analyzed")
}

func TestSubmitBuildDeliversCallback(t *testing.T) {
	t.Parallel()

	srv := jenkinsServer(t, map[string]any{
		"/job/checkout/7/api/json": map[string]any{"result": "SUCCESS"},
	})

	var mu sync.Mutex
	var delivered []models.Job
	callback := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var job models.Job
		require.NoError(t, json.NewDecoder(r.Body).Decode(&job))
		mu.Lock()
		delivered = append(delivered, job)
		mu.Unlock()
	}))
	t.Cleanup(callback.Close)

	e := newTestEngine(t, srv.URL, &stubRunner{})
	req := buildRequest()
	req.CallbackURL = callback.URL

	job, err := e.SubmitBuild(context.Background(), req)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(delivered) == 1
	}, 5*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, job.ID, delivered[0].ID)
	assert.Equal(t, models.StatusCompleted, delivered[0].Status)
	require.NotNil(t, delivered[0].Result)
	assert.Equal(t, "Build passed successfully. No failures to analyze.", delivered[0].Result.Summary)
}

func TestSubmitBuildResultWriteFailureMarksJobFailed(t *testing.T) {
	t.Parallel()

	srv := jenkinsServer(t, map[string]any{
		"/job/checkout/7/api/json":    map[string]any{"result": "FAILURE"},
		"/job/checkout/7/consoleText": "ERROR: boom",
		"/job/checkout/7/testReport/api/json": testReportJSON(
			failedCase("cart.Test", "AddItem", "timeout waiting for grid"),
		),
	})

	var mu sync.Mutex
	var delivered []models.Job
	callback := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var job models.Job
		require.NoError(t, json.NewDecoder(r.Body).Decode(&job))
		mu.Lock()
		delivered = append(delivered, job)
		mu.Unlock()
	}))
	t.Cleanup(callback.Close)

	store := &faultyStore{JobStore: testStore(t), failOn: models.StatusCompleted}
	e := newTestEngineWithStore(t, srv.URL, &stubRunner{}, store)
	req := buildRequest()
	req.CallbackURL = callback.URL
	ctx := context.Background()

	job, err := e.SubmitBuild(ctx, req)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		j, err := e.GetJob(ctx, job.ID)
		return err == nil && j.Status == models.StatusFailed
	}, 5*time.Second, 10*time.Millisecond)

	final, err := e.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Contains(t, final.Error, "failed to record result")
	assert.Contains(t, final.Error, "database is locked")
	assert.Equal(t,
		[]models.JobStatus{models.StatusRunning, models.StatusCompleted, models.StatusFailed},
		store.transitions())

	// The assembled result still goes out even though the store refused it.
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(delivered) == 1
	}, 5*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, job.ID, delivered[0].ID)
	assert.Equal(t, models.StatusFailed, delivered[0].Status)
	require.NotNil(t, delivered[0].Result)
	assert.Contains(t, delivered[0].Result.Summary, "1 failure(s) analyzed")
}

func TestSubmitBuildRunningWriteFailureMarksJobFailed(t *testing.T) {
	t.Parallel()

	srv := jenkinsServer(t, map[string]any{
		"/job/checkout/7/api/json": map[string]any{"result": "FAILURE"},
	})
	runner := &stubRunner{}
	store := &faultyStore{JobStore: testStore(t), failOn: models.StatusRunning}
	e := newTestEngineWithStore(t, srv.URL, runner, store)
	ctx := context.Background()

	job, err := e.SubmitBuild(ctx, buildRequest())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		j, err := e.GetJob(ctx, job.ID)
		return err == nil && j.Status == models.StatusFailed
	}, 5*time.Second, 10*time.Millisecond)

	final, err := e.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Contains(t, final.Error, "failed to mark job running")
	assert.Nil(t, final.Result)
	assert.Equal(t, 0, runner.analysisCalls())
}

func TestAnalyzeFailuresDirect(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, "http://jenkins.invalid", &stubRunner{})
	ctx := context.Background()

	_, err := e.AnalyzeFailures(ctx, &models.AnalyzeFailuresRequest{})
	require.ErrorIs(t, err, ErrInvalidRequest)
	assert.Contains(t, err.Error(), "no failures provided")

	job, err := e.AnalyzeFailures(ctx, &models.AnalyzeFailuresRequest{
		Failures: []models.FailureRecord{
			{TestName: "TestA", ErrorMessage: "timeout waiting for grid", StackTrace: "at a.go:1", Status: "FAILED"},
			{TestName: "TestB", ErrorMessage: "timeout waiting for grid", StackTrace: "at a.go:1", Status: "FAILED"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, job.Status)
	require.Len(t, job.Result.Failures, 2)
	assert.Equal(t, job.Result.Failures[0].Analysis, job.Result.Failures[1].Analysis)
	assert.Contains(t, job.Result.Summary, "2 failure(s) analyzed (1 unique error type(s))")
}

func TestAnalyzeFailuresResultWriteFailureMarksJobFailed(t *testing.T) {
	t.Parallel()

	store := &faultyStore{JobStore: testStore(t), failOn: models.StatusCompleted}
	e := newTestEngineWithStore(t, "http://jenkins.invalid", &stubRunner{}, store)
	ctx := context.Background()

	_, err := e.AnalyzeFailures(ctx, &models.AnalyzeFailuresRequest{
		Failures: []models.FailureRecord{
			{TestName: "TestA", ErrorMessage: "timeout waiting for grid", StackTrace: "at a.go:1", Status: "FAILED"},
		},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to record result")

	jobs, err := e.ListJobs(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, jobs, 1)

	final, err := e.GetJob(ctx, jobs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, final.Status)
	assert.Contains(t, final.Error, "database is locked")
	assert.Equal(t,
		[]models.JobStatus{models.StatusRunning, models.StatusCompleted, models.StatusFailed},
		store.transitions())
}
