package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config holds all process-wide settings. It is constructed once at startup
// and passed by reference into component constructors; no component reads
// ambient global state.
type Config struct {
	Server struct {
		Addr string `yaml:"addr"` // listen address (default ":8080")
	} `yaml:"server"`

	Database struct {
		Path string `yaml:"path"` // SQLite file path
	} `yaml:"database"`

	LogLevel string `yaml:"log_level"` // logrus level name (default "info")

	Analysis struct {
		Provider       string `yaml:"provider"`         // claude, gemini or cursor
		Model          string `yaml:"model"`            // model identifier passed to the provider CLI
		TimeoutMinutes int    `yaml:"timeout_minutes"`  // per-call timeout (default 10)
		MaxConcurrent  int    `yaml:"max_concurrent"`   // bound on in-flight analysis calls (default 10)
		MaxMessageSize int    `yaml:"max_message_size"` // delivery message size bound in bytes (default 4000)
		MaxChildDepth  int    `yaml:"max_child_depth"`  // recursion bound for failed child builds (default 3)
	} `yaml:"analysis"`

	Jenkins struct {
		URL       string `yaml:"url"`
		User      string `yaml:"user"`
		Password  string `yaml:"password"` // password or API token
		SSLVerify bool   `yaml:"ssl_verify"`
	} `yaml:"jenkins"`

	Git struct {
		TestsRepoURL string `yaml:"tests_repo_url"` // default repo cloned for analysis context
	} `yaml:"git"`

	Callback struct {
		URL     string            `yaml:"url"`
		Headers map[string]string `yaml:"headers"`
	} `yaml:"callback"`

	Chat struct {
		WebhookURL string `yaml:"webhook_url"`
	} `yaml:"chat"`

	Email struct {
		SMTPHost string   `yaml:"smtp_host"`
		SMTPPort int      `yaml:"smtp_port"`
		Username string   `yaml:"username"`
		Password string   `yaml:"password"`
		From     string   `yaml:"from"`
		To       []string `yaml:"to"`
		SSL      bool     `yaml:"ssl"` // true = implicit TLS (465), false = STARTTLS (587)
	} `yaml:"email"`

	Jira struct {
		URL        string `yaml:"url"`
		ProjectKey string `yaml:"project_key"`
		Email      string `yaml:"email"`     // Cloud: email + api_token
		APIToken   string `yaml:"api_token"` // Cloud
		PAT        string `yaml:"pat"`       // Server/DC: personal access token
		SSLVerify  bool   `yaml:"ssl_verify"`
		MaxResults int    `yaml:"max_results"`
	} `yaml:"jira"`

	Reports struct {
		HTML bool   `yaml:"html"` // generate HTML reports (default true)
		Dir  string `yaml:"dir"`  // result-file sink directory; empty disables the sink
	} `yaml:"reports"`

	Retention struct {
		MaxAgeHours int    `yaml:"max_age_hours"` // 0 disables the sweeper
		Schedule    string `yaml:"schedule"`      // cron spec (default "@hourly")
	} `yaml:"retention"`
}

// Default returns a Config populated with defaults
func Default() *Config {
	cfg := &Config{}
	cfg.Server.Addr = ":8080"
	cfg.Database.Path = "build-insight.db"
	cfg.LogLevel = "info"
	cfg.Analysis.TimeoutMinutes = 10
	cfg.Analysis.MaxConcurrent = 10
	cfg.Analysis.MaxMessageSize = 4000
	cfg.Analysis.MaxChildDepth = 3
	cfg.Jenkins.SSLVerify = true
	cfg.Email.SMTPPort = 587
	cfg.Jira.SSLVerify = true
	cfg.Jira.MaxResults = 5
	cfg.Reports.HTML = true
	cfg.Retention.Schedule = "@hourly"
	return cfg
}

// Load reads the YAML config file at path (if non-empty), applies
// environment overrides, and validates the result. Absent file keys keep
// their defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays deploy-time environment variables onto the config.
// Secrets in particular are expected to arrive this way.
func (c *Config) applyEnv() {
	setIfPresent := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	setIfPresent(&c.Database.Path, "DB_PATH")
	setIfPresent(&c.LogLevel, "LOG_LEVEL")
	setIfPresent(&c.Analysis.Provider, "AI_PROVIDER")
	setIfPresent(&c.Analysis.Model, "AI_MODEL")
	setIfPresent(&c.Jenkins.URL, "JENKINS_URL")
	setIfPresent(&c.Jenkins.User, "JENKINS_USER")
	setIfPresent(&c.Jenkins.Password, "JENKINS_PASSWORD")
	setIfPresent(&c.Git.TestsRepoURL, "TESTS_REPO_URL")
	setIfPresent(&c.Callback.URL, "CALLBACK_URL")
	setIfPresent(&c.Jira.APIToken, "JIRA_API_TOKEN")
	setIfPresent(&c.Jira.PAT, "JIRA_PAT")
	setIfPresent(&c.Email.Password, "SMTP_PASSWORD")

	if raw := os.Getenv("AI_CLI_TIMEOUT"); raw != "" {
		minutes, err := strconv.Atoi(raw)
		if err != nil || minutes <= 0 {
			logrus.Warnf("invalid AI_CLI_TIMEOUT=%q, keeping %d minutes", raw, c.Analysis.TimeoutMinutes)
		} else {
			c.Analysis.TimeoutMinutes = minutes
		}
	}
}

// Validate checks structural invariants shared by all binaries
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr must not be empty")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path must not be empty")
	}
	if c.Analysis.TimeoutMinutes <= 0 {
		return fmt.Errorf("analysis.timeout_minutes must be positive, got %d", c.Analysis.TimeoutMinutes)
	}
	if c.Analysis.MaxConcurrent <= 0 {
		return fmt.Errorf("analysis.max_concurrent must be positive, got %d", c.Analysis.MaxConcurrent)
	}
	if c.Analysis.MaxMessageSize <= 0 {
		return fmt.Errorf("analysis.max_message_size must be positive, got %d", c.Analysis.MaxMessageSize)
	}
	if c.Analysis.MaxChildDepth < 0 {
		return fmt.Errorf("analysis.max_child_depth must not be negative, got %d", c.Analysis.MaxChildDepth)
	}
	if c.Retention.MaxAgeHours < 0 {
		return fmt.Errorf("retention.max_age_hours must not be negative, got %d", c.Retention.MaxAgeHours)
	}
	return nil
}

// AnalysisTimeout returns the per-call analysis timeout as a duration
func (c *Config) AnalysisTimeout() time.Duration {
	return time.Duration(c.Analysis.TimeoutMinutes) * time.Minute
}

// RetentionAge returns the job retention window; zero means retention is off
func (c *Config) RetentionAge() time.Duration {
	return time.Duration(c.Retention.MaxAgeHours) * time.Hour
}

// JiraEnabled reports whether enough Jira settings are present to search
func (c *Config) JiraEnabled() bool {
	if c.Jira.URL == "" {
		return false
	}
	return (c.Jira.Email != "" && c.Jira.APIToken != "") || c.Jira.PAT != ""
}
