package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"build-insight/internal/analyzer"
	"build-insight/internal/assemble"
	"build-insight/internal/config"
	"build-insight/internal/gitrepo"
	"build-insight/internal/handler"
	"build-insight/internal/jenkins"
	"build-insight/internal/jira"
	"build-insight/internal/metrics"
	"build-insight/internal/repository"
	"build-insight/internal/service"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	addr := flag.String("addr", "", "listen address, overrides the config")
	flag.Parse()

	log := logrus.New()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatalf("invalid log level %q: %v", cfg.LogLevel, err)
	}
	log.SetLevel(level)

	store, err := repository.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		log.Fatalf("failed to open job store: %v", err)
	}
	defer store.Close()

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

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

	sweeper := service.NewSweeper(store, cfg.RetentionAge(), cfg.Retention.Schedule, log)
	if err := sweeper.Start(); err != nil {
		log.Fatalf("failed to start retention sweeper: %v", err)
	}
	defer sweeper.Stop()

	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: handler.New(engine, log).Router(registry),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Infof("API server listening on %s", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorf("shutdown error: %v", err)
	}
	log.Info("server stopped")
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
