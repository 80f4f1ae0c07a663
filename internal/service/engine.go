package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"build-insight/internal/analyzer"
	"build-insight/internal/assemble"
	"build-insight/internal/config"
	"build-insight/internal/delivery"
	"build-insight/internal/gitrepo"
	"build-insight/internal/grouping"
	"build-insight/internal/jenkins"
	"build-insight/internal/jira"
	"build-insight/internal/limiter"
	"build-insight/internal/metrics"
	"build-insight/internal/models"
	"build-insight/internal/report"
	"build-insight/internal/repository"
)

// ErrInvalidRequest is wrapped by every request validation failure so the
// HTTP layer can map them to a 400 without inspecting individual causes.
// Validation runs before the job row is created; a rejected request leaves
// no trace in the store.
var ErrInvalidRequest = errors.New("invalid request")

// Engine runs the analysis pipeline end to end: fetch the build, group its
// failures, analyze one representative per group, enrich, assemble, persist,
// deliver. One Engine serves all jobs; each job runs in its own goroutine
// when submitted asynchronously.
type Engine struct {
	cfg        *config.Config
	store      repository.JobStore
	builds     *jenkins.Client
	repos      *gitrepo.Manager
	dispatcher *analyzer.Dispatcher
	assembler  *assemble.Assembler
	enricher   *jira.Enricher
	log        *logrus.Logger
	metrics    *metrics.Metrics
}

// EngineOptions collects the engine's dependencies. Enricher may be nil when
// Jira is not configured; Repos may be nil when no tests repository is used.
type EngineOptions struct {
	Config     *config.Config
	Store      repository.JobStore
	Builds     *jenkins.Client
	Repos      *gitrepo.Manager
	Dispatcher *analyzer.Dispatcher
	Assembler  *assemble.Assembler
	Enricher   *jira.Enricher
	Log        *logrus.Logger
	Metrics    *metrics.Metrics
}

// NewEngine creates an analysis engine from its dependencies
func NewEngine(opts EngineOptions) *Engine {
	return &Engine{
		cfg:        opts.Config,
		store:      opts.Store,
		builds:     opts.Builds,
		repos:      opts.Repos,
		dispatcher: opts.Dispatcher,
		assembler:  opts.Assembler,
		enricher:   opts.Enricher,
		log:        opts.Log,
		metrics:    opts.Metrics,
	}
}

// SubmitBuild validates the request, creates a pending job, and starts the
// analysis in the background. The returned job is the pending row; callers
// poll GetJob or receive the finished result through a callback.
func (e *Engine) SubmitBuild(ctx context.Context, req *models.AnalyzeBuildRequest) (*models.Job, error) {
	areq, err := e.resolveAnalysis(req.Provider, req.Model)
	if err != nil {
		return nil, err
	}
	if err := validateBuildRef(req); err != nil {
		return nil, err
	}

	job, err := e.createJob(ctx, e.builds.BuildURL(req.JobName, req.BuildNumber))
	if err != nil {
		return nil, err
	}
	e.log.WithFields(logrus.Fields{
		"job_id": job.ID,
		"job":    req.JobName,
		"build":  req.BuildNumber,
	}).Info("analysis job queued")

	go e.run(context.Background(), job, req, areq)
	return job, nil
}

// AnalyzeBuildSync runs the full analysis inline and returns the finished
// job, terminal status and result included.
func (e *Engine) AnalyzeBuildSync(ctx context.Context, req *models.AnalyzeBuildRequest) (*models.Job, error) {
	areq, err := e.resolveAnalysis(req.Provider, req.Model)
	if err != nil {
		return nil, err
	}
	if err := validateBuildRef(req); err != nil {
		return nil, err
	}

	job, err := e.createJob(ctx, e.builds.BuildURL(req.JobName, req.BuildNumber))
	if err != nil {
		return nil, err
	}
	e.run(ctx, job, req, areq)
	return e.store.GetJob(ctx, job.ID)
}

// AnalyzeFailures analyzes caller-supplied failure records without a build
// server round trip. It always runs synchronously.
func (e *Engine) AnalyzeFailures(ctx context.Context, req *models.AnalyzeFailuresRequest) (*models.Job, error) {
	areq, err := e.resolveAnalysis(req.Provider, req.Model)
	if err != nil {
		return nil, err
	}
	if len(req.Failures) == 0 {
		return nil, fmt.Errorf("%w: no failures provided", ErrInvalidRequest)
	}

	job, err := e.createJob(ctx, "")
	if err != nil {
		return nil, err
	}
	e.log.WithFields(logrus.Fields{
		"job_id":   job.ID,
		"failures": len(req.Failures),
	}).Info("direct failure analysis requested")

	if err := e.store.Transition(ctx, job.ID, models.StatusRunning, nil, ""); err != nil {
		err = fmt.Errorf("failed to mark job running: %w", err)
		e.fail(ctx, job, err)
		return nil, err
	}

	workspace, cleanup := e.checkout(ctx, req.TestsRepoURL)
	defer cleanup()
	areq.Workspace = workspace

	groups := grouping.Group(req.Failures)
	e.log.WithField("job_id", job.ID).Infof("grouped %d failures into %d unique error signatures", len(req.Failures), len(groups))

	verdicts := e.verdicts(ctx, groups, areq, e.dispatcher.Preflight(ctx, areq))
	failures := analyzer.Apply(req.Failures, verdicts)
	e.enricher.Enrich(ctx, failures, nil)

	meta := assemble.Meta{Provider: areq.Provider.Name, Model: areq.Model}
	result := e.assembler.Build(meta, failures, nil, len(groups))

	if err := e.complete(ctx, job, result); err != nil {
		e.fail(ctx, job, err)
		return nil, err
	}
	return e.store.GetJob(ctx, job.ID)
}

// GetJob returns one job by id
func (e *Engine) GetJob(ctx context.Context, id string) (*models.Job, error) {
	return e.store.GetJob(ctx, id)
}

// ListJobs returns recent job summaries, newest first
func (e *Engine) ListJobs(ctx context.Context, limit, offset int) ([]models.JobSummary, error) {
	return e.store.ListJobs(ctx, limit, offset)
}

// HTMLReport returns the stored HTML report for a job
func (e *Engine) HTMLReport(ctx context.Context, id string) (string, error) {
	return e.store.GetHTMLReport(ctx, id)
}

// run drives one job from running to its terminal status. Analysis errors
// mark the job failed, and so does a result the store refuses to record;
// the store error becomes the job's error summary. Once a result exists it
// is delivered whether or not the store accepted it.
func (e *Engine) run(ctx context.Context, job *models.Job, req *models.AnalyzeBuildRequest, areq analyzer.Request) {
	if err := e.store.Transition(ctx, job.ID, models.StatusRunning, nil, ""); err != nil {
		e.fail(ctx, job, fmt.Errorf("failed to mark job running: %w", err))
		return
	}

	result, err := e.analyzeBuild(ctx, job.ID, req, areq)
	if err != nil {
		e.fail(ctx, job, err)
		return
	}

	// The outcome exists now; a canceled caller context must not cut off
	// the remaining writes or the delivery.
	ctx = context.WithoutCancel(ctx)

	if e.htmlWanted(req) {
		e.saveReport(ctx, job.ID, result)
	}

	if err := e.complete(ctx, job, result); err != nil {
		job.Result = result
		e.fail(ctx, job, err)
	}
	e.deliver(ctx, job, req.CallbackURL, req.CallbackHeaders)
}

// analyzeBuild fetches the build and produces its result. It returns an
// error only for faults that should fail the job: unreachable build server
// or missing build. Analysis faults degrade to unanalyzed verdicts instead.
func (e *Engine) analyzeBuild(ctx context.Context, jobID string, req *models.AnalyzeBuildRequest, areq analyzer.Request) (*models.JobResult, error) {
	meta := assemble.Meta{
		JobName:     req.JobName,
		BuildNumber: req.BuildNumber,
		BuildURL:    e.builds.BuildURL(req.JobName, req.BuildNumber),
		Provider:    areq.Provider.Name,
		Model:       areq.Model,
	}
	log := e.log.WithField("job_id", jobID)

	info, err := e.builds.GetBuildInfo(ctx, req.JobName, req.BuildNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to get build info: %w", err)
	}
	if info.Result == "SUCCESS" {
		log.Info("build passed, nothing to analyze")
		return e.assembler.Summarize(meta, "Build passed successfully. No failures to analyze."), nil
	}

	console, err := e.builds.GetConsole(ctx, req.JobName, req.BuildNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to get console output: %w", err)
	}

	childRefs := info.FailedChildren()
	if len(childRefs) == 0 {
		childRefs = jenkins.FailedChildrenFromConsole(console)
	}
	if len(childRefs) > 0 {
		log.Infof("found %d failed child job(s)", len(childRefs))
	}

	repoURL := req.TestsRepoURL
	if repoURL == "" {
		repoURL = e.cfg.Git.TestsRepoURL
	}
	workspace, cleanup := e.checkout(ctx, repoURL)
	defer cleanup()
	areq.Workspace = workspace
	areq.ConsoleContext = analyzer.ConsoleContext(console)

	preflightErr := e.dispatcher.Preflight(ctx, areq)
	if preflightErr != nil {
		log.Warnf("provider preflight failed, verdicts will be unanalyzed: %v", preflightErr)
	}

	var children []models.ChildJobAnalysis
	if len(childRefs) > 0 {
		children = e.analyzeChildren(ctx, childRefs, areq, 0, preflightErr)
	}

	testReport, err := e.builds.GetTestReport(ctx, req.JobName, req.BuildNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to get test report: %w", err)
	}
	records := testReport.Failures()

	// A pipeline build whose own test report is clean failed because of its
	// children; the child analyses are the whole story.
	if len(records) == 0 && len(children) > 0 {
		return e.assembler.Build(meta, nil, children, 0), nil
	}

	var failures []models.FailureAnalysis
	uniqueGroups := 0
	if len(records) > 0 {
		groups := grouping.Group(records)
		uniqueGroups = len(groups)
		log.Infof("grouped %d failures into %d unique error signatures", len(records), uniqueGroups)
		failures = analyzer.Apply(records, e.verdicts(ctx, groups, areq, preflightErr))
	} else {
		log.Info("no test report, falling back to console analysis")
		failures = []models.FailureAnalysis{e.consoleOnly(ctx, req.JobName, req.BuildNumber, areq, preflightErr)}
	}

	e.enricher.Enrich(ctx, failures, children)
	return e.assembler.Build(meta, failures, children, uniqueGroups), nil
}

// analyzeChildren analyzes failed child builds in parallel under the same
// concurrency bound as group analysis. Results keep the input order.
func (e *Engine) analyzeChildren(ctx context.Context, refs []jenkins.ChildRef, areq analyzer.Request, depth int, preflightErr error) []models.ChildJobAnalysis {
	outcomes := limiter.Run(ctx, len(refs), e.cfg.Analysis.MaxConcurrent, func(ctx context.Context, i int) (models.ChildJobAnalysis, error) {
		return e.analyzeChild(ctx, refs[i], areq, depth, preflightErr), nil
	})
	children := make([]models.ChildJobAnalysis, 0, len(outcomes))
	for _, out := range outcomes {
		children = append(children, out.Value)
	}
	return children
}

// analyzeChild analyzes one failed child build. It never fails the parent:
// fetch problems become a note on the child entry.
func (e *Engine) analyzeChild(ctx context.Context, ref jenkins.ChildRef, areq analyzer.Request, depth int, preflightErr error) models.ChildJobAnalysis {
	child := models.ChildJobAnalysis{
		JobName:     ref.JobName,
		BuildNumber: ref.BuildNumber,
		BuildURL:    e.builds.BuildURL(ref.JobName, ref.BuildNumber),
	}
	if depth >= e.cfg.Analysis.MaxChildDepth {
		child.Note = "max recursion depth reached, analysis stopped"
		return child
	}

	info, err := e.builds.GetBuildInfo(ctx, ref.JobName, ref.BuildNumber)
	if err != nil {
		child.Note = fmt.Sprintf("failed to get build info: %v", err)
		return child
	}
	console, err := e.builds.GetConsole(ctx, ref.JobName, ref.BuildNumber)
	if err != nil {
		child.Note = fmt.Sprintf("failed to get console output: %v", err)
		return child
	}

	refs := info.FailedChildren()
	if len(refs) == 0 {
		refs = jenkins.FailedChildrenFromConsole(console)
	}
	if len(refs) > 0 {
		child.FailedChildren = e.analyzeChildren(ctx, refs, areq, depth+1, preflightErr)
		child.Summary = assemble.Summary(nil, 0, len(child.FailedChildren))
		return child
	}

	testReport, err := e.builds.GetTestReport(ctx, ref.JobName, ref.BuildNumber)
	if err != nil {
		child.Note = fmt.Sprintf("failed to get test report: %v", err)
		return child
	}
	records := testReport.Failures()

	creq := areq
	creq.ConsoleContext = analyzer.ConsoleContext(console)

	if len(records) == 0 {
		child.Failures = []models.FailureAnalysis{e.consoleOnly(ctx, ref.JobName, ref.BuildNumber, creq, preflightErr)}
		child.Summary = assemble.Summary(child.Failures, 0, 0)
		return child
	}

	groups := grouping.Group(records)
	child.Failures = analyzer.Apply(records, e.verdicts(ctx, groups, creq, preflightErr))
	child.Summary = assemble.Summary(child.Failures, len(groups), 0)
	return child
}

// verdicts dispatches group analysis, or maps every group to an unanalyzed
// verdict when the provider already failed its preflight.
func (e *Engine) verdicts(ctx context.Context, groups []grouping.FailureGroup, areq analyzer.Request, preflightErr error) map[string]models.Analysis {
	if preflightErr != nil {
		return analyzer.UnanalyzedAll(groups, preflightErr.Error())
	}
	return e.dispatcher.Dispatch(ctx, groups, areq)
}

// consoleOnly produces the single synthetic failure for a build that failed
// without publishing a test report.
func (e *Engine) consoleOnly(ctx context.Context, jobName string, buildNumber int, areq analyzer.Request, preflightErr error) models.FailureAnalysis {
	var analysis models.Analysis
	if preflightErr != nil {
		analysis = analyzer.Unanalyzed(preflightErr.Error())
	} else {
		analysis = e.dispatcher.AnalyzeConsole(ctx, jobName, buildNumber, areq)
	}
	return models.FailureAnalysis{
		TestName: fmt.Sprintf("%s#%d", jobName, buildNumber),
		Error:    "Console-only analysis",
		Analysis: analysis,
	}
}

// checkout clones the tests repository for code context. Clone failures are
// not fatal; analysis proceeds without a workspace.
func (e *Engine) checkout(ctx context.Context, repoURL string) (string, func()) {
	if repoURL == "" || e.repos == nil {
		return "", func() {}
	}
	dir, err := e.repos.Clone(ctx, repoURL)
	if err != nil {
		e.log.Warnf("failed to clone tests repository, analyzing without code context: %v", err)
		return "", func() {}
	}
	return dir, func() { e.repos.Cleanup(dir) }
}

func (e *Engine) createJob(ctx context.Context, buildURL string) (*models.Job, error) {
	job := &models.Job{
		ID:       uuid.New().String(),
		BuildURL: buildURL,
		Status:   models.StatusPending,
	}
	if err := e.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}
	e.metrics.JobsSubmitted.Inc()
	return job, nil
}

// complete and fail write the terminal status on a detached context: the
// write must land even when the request that started the job is gone.

func (e *Engine) complete(ctx context.Context, job *models.Job, result *models.JobResult) error {
	if err := e.store.Transition(context.WithoutCancel(ctx), job.ID, models.StatusCompleted, result, ""); err != nil {
		return fmt.Errorf("failed to record result: %w", err)
	}
	e.metrics.JobsCompleted.Inc()
	job.Status = models.StatusCompleted
	job.Result = result
	e.log.WithField("job_id", job.ID).Info("analysis completed")
	return nil
}

func (e *Engine) fail(ctx context.Context, job *models.Job, cause error) {
	e.metrics.JobsFailed.Inc()
	e.log.WithField("job_id", job.ID).Errorf("analysis failed: %v", cause)
	if err := e.store.Transition(context.WithoutCancel(ctx), job.ID, models.StatusFailed, nil, cause.Error()); err != nil {
		e.log.WithField("job_id", job.ID).Errorf("failed to mark job failed: %v", err)
	}
	job.Status = models.StatusFailed
	job.Error = cause.Error()
}

// htmlWanted resolves the per-request report flag against the configured
// default.
func (e *Engine) htmlWanted(req *models.AnalyzeBuildRequest) bool {
	if req.HTMLReport != nil {
		return *req.HTMLReport
	}
	return e.cfg.Reports.HTML
}

// saveReport renders and stores the HTML report, setting the result's report
// URL on success. Report problems never affect the job outcome.
func (e *Engine) saveReport(ctx context.Context, jobID string, result *models.JobResult) {
	html, err := report.Render(jobID, result)
	if err != nil {
		e.log.WithField("job_id", jobID).Warnf("failed to render report: %v", err)
		return
	}
	if err := e.store.SaveHTMLReport(ctx, jobID, html); err != nil {
		e.log.WithField("job_id", jobID).Warnf("failed to save report: %v", err)
		return
	}
	result.HTMLReportURL = fmt.Sprintf("/results/%s.html", jobID)
}

// deliver pushes the finished job through every configured sink. Delivery
// failures are logged by the dispatcher and never affect the job.
func (e *Engine) deliver(ctx context.Context, job *models.Job, callbackURL string, headers map[string]string) {
	sinks := e.sinks(callbackURL, headers)
	if len(sinks) == 0 {
		return
	}
	delivery.NewDispatcher(sinks, e.log, e.metrics).Deliver(ctx, job)
}

// sinks builds the per-job sink list: the request callback (or the configured
// default), then chat, email, and the result file directory when configured.
func (e *Engine) sinks(callbackURL string, headers map[string]string) []delivery.Sink {
	var sinks []delivery.Sink

	url := callbackURL
	hdrs := headers
	if url == "" {
		url = e.cfg.Callback.URL
		hdrs = e.cfg.Callback.Headers
	}
	if url != "" {
		sinks = append(sinks, delivery.NewCallbackSink(url, hdrs))
	}
	if e.cfg.Chat.WebhookURL != "" {
		sinks = append(sinks, delivery.NewChatSink(e.cfg.Chat.WebhookURL))
	}
	if e.cfg.Email.SMTPHost != "" && len(e.cfg.Email.To) > 0 {
		sinks = append(sinks, delivery.NewEmailSink(
			e.cfg.Email.SMTPHost, e.cfg.Email.SMTPPort,
			e.cfg.Email.Username, e.cfg.Email.Password,
			e.cfg.Email.From, e.cfg.Email.To, e.cfg.Email.SSL,
		))
	}
	if e.cfg.Reports.Dir != "" {
		sinks = append(sinks, delivery.NewFileSink(e.cfg.Reports.Dir))
	}
	return sinks
}

// resolveAnalysis merges request overrides with configured defaults and
// validates the provider and model before any job state exists.
func (e *Engine) resolveAnalysis(provider, model string) (analyzer.Request, error) {
	name := provider
	if name == "" {
		name = e.cfg.Analysis.Provider
	}
	if name == "" {
		return analyzer.Request{}, fmt.Errorf("%w: no AI provider configured, set analysis.provider or pass ai_provider (valid providers: %s)",
			ErrInvalidRequest, strings.Join(analyzer.ValidProviders(), ", "))
	}
	p, err := analyzer.LookupProvider(name)
	if err != nil {
		return analyzer.Request{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	m := model
	if m == "" {
		m = e.cfg.Analysis.Model
	}
	if m == "" {
		return analyzer.Request{}, fmt.Errorf("%w: %v", ErrInvalidRequest, analyzer.ErrNoModel)
	}
	return analyzer.Request{Provider: p, Model: m}, nil
}

func validateBuildRef(req *models.AnalyzeBuildRequest) error {
	if strings.TrimSpace(req.JobName) == "" {
		return fmt.Errorf("%w: job_name is required", ErrInvalidRequest)
	}
	if req.BuildNumber <= 0 {
		return fmt.Errorf("%w: build_number must be positive", ErrInvalidRequest)
	}
	return nil
}
