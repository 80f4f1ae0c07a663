package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"build-insight/internal/analyzer"
	"build-insight/internal/assemble"
	"build-insight/internal/config"
	"build-insight/internal/gitrepo"
	"build-insight/internal/jenkins"
	"build-insight/internal/jira"
	"build-insight/internal/metrics"
	"build-insight/internal/models"
	"build-insight/internal/report"
	"build-insight/internal/repository"
	"build-insight/internal/service"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	jobName := flag.String("job", "", "build job name, folder style (folder/app)")
	buildNumber := flag.Int("build", 0, "build number")
	failuresPath := flag.String("failures", "", "JSON file with failure records to analyze instead of a build")
	repoURL := flag.String("repo", "", "tests repository URL for code context")
	provider := flag.String("provider", "", "AI provider, overrides the config")
	model := flag.String("model", "", "AI model, overrides the config")
	outPath := flag.String("out", "", "write the full result JSON to this file")
	htmlPath := flag.String("html", "", "write the HTML report to this file")
	flag.Parse()

	log := logrus.New()
	log.SetOutput(os.Stderr)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatalf("invalid log level %q: %v", cfg.LogLevel, err)
	}
	log.SetLevel(level)

	if *failuresPath == "" && (*jobName == "" || *buildNumber <= 0) {
		log.Fatal("either -job and -build or -failures must be given")
	}

	store, err := repository.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		log.Fatalf("failed to open job store: %v", err)
	}
	defer store.Close()

	m := metrics.New(prometheus.NewRegistry())
	engine := service.NewEngine(service.EngineOptions{
		Config: cfg,
		Store:  store,
		Builds: jenkins.New(jenkins.Options{
			URL:       cfg.Jenkins.URL,
			User:      cfg.Jenkins.User,
			Password:  cfg.Jenkins.Password,
			SSLVerify: cfg.Jenkins.SSLVerify,
		}, log),
		Repos:      gitrepo.NewManager("", log),
		Dispatcher: analyzer.NewDispatcher(analyzer.NewCLIRunner(log), cfg.AnalysisTimeout(), cfg.Analysis.MaxConcurrent, log, m),
		Assembler:  assemble.New(cfg.Analysis.MaxMessageSize),
		Enricher:   newEnricher(cfg, log, m),
		Log:        log,
		Metrics:    m,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	job, err := runAnalysis(ctx, engine, *jobName, *buildNumber, *failuresPath, *repoURL, *provider, *model)
	if err != nil {
		log.Fatalf("analysis failed: %v", err)
	}

	printMessages(job)
	if *outPath != "" {
		writeJSON(log, *outPath, job)
	}
	if *htmlPath != "" {
		writeHTML(log, *htmlPath, job)
	}
	if job.Status == models.StatusFailed {
		log.Fatalf("analysis failed: %s", job.Error)
	}
}

// newEnricher builds the Jira enricher, or nil when Jira is not configured.
func newEnricher(cfg *config.Config, log *logrus.Logger, m *metrics.Metrics) *jira.Enricher {
	if !cfg.JiraEnabled() {
		return nil
	}
	client := jira.New(jira.Options{
		URL:        cfg.Jira.URL,
		ProjectKey: cfg.Jira.ProjectKey,
		Email:      cfg.Jira.Email,
		APIToken:   cfg.Jira.APIToken,
		PAT:        cfg.Jira.PAT,
		SSLVerify:  cfg.Jira.SSLVerify,
		MaxResults: cfg.Jira.MaxResults,
	}, log)
	return jira.NewEnricher(client, cfg.Jira.MaxResults, log, m)
}

func runAnalysis(ctx context.Context, engine *service.Engine, jobName string, buildNumber int, failuresPath, repoURL, provider, model string) (*models.Job, error) {
	if failuresPath != "" {
		data, err := os.ReadFile(failuresPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read failures file: %w", err)
		}
		var failures []models.FailureRecord
		if err := json.Unmarshal(data, &failures); err != nil {
			return nil, fmt.Errorf("failed to parse failures file: %w", err)
		}
		return engine.AnalyzeFailures(ctx, &models.AnalyzeFailuresRequest{
			Failures:     failures,
			TestsRepoURL: repoURL,
			Provider:     provider,
			Model:        model,
		})
	}
	return engine.AnalyzeBuildSync(ctx, &models.AnalyzeBuildRequest{
		JobName:      jobName,
		BuildNumber:  buildNumber,
		TestsRepoURL: repoURL,
		Provider:     provider,
		Model:        model,
	})
}

// printMessages writes the result's ordered message sequence to stdout, the
// same text a chat sink would deliver.
func printMessages(job *models.Job) {
	if job.Result == nil {
		return
	}
	for i, msg := range job.Result.Messages {
		if i > 0 {
			fmt.Println()
		}
		fmt.Println(msg.Body)
	}
}

func writeJSON(log *logrus.Logger, path string, job *models.Job) {
	data, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		log.Fatalf("failed to encode result: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		log.Fatalf("failed to write %s: %v", path, err)
	}
	log.Infof("result written to %s", path)
}

func writeHTML(log *logrus.Logger, path string, job *models.Job) {
	if job.Result == nil {
		log.Warn("no result to render, skipping HTML report")
		return
	}
	html, err := report.Render(job.ID, job.Result)
	if err != nil {
		log.Fatalf("failed to render report: %v", err)
	}
	if err := os.WriteFile(path, []byte(html), 0o644); err != nil {
		log.Fatalf("failed to write %s: %v", path, err)
	}
	log.Infof("report written to %s", path)
}
