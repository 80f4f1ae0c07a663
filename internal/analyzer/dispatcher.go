package analyzer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"build-insight/internal/grouping"
	"build-insight/internal/limiter"
	"build-insight/internal/metrics"
	"build-insight/internal/models"
)

// preflightTimeout bounds the trivial sanity prompt sent before fan-out.
const preflightTimeout = 60 * time.Second

// ErrNoModel indicates neither the request nor the configuration named a model.
var ErrNoModel = errors.New("no AI model configured: set analysis.model or pass ai_model in the request")

// Request carries the per-batch parameters shared by every group call.
type Request struct {
	Provider       Provider
	Model          string
	Workspace      string // cloned tests repo, may be empty
	ConsoleContext string
}

// Dispatcher turns failure groups into verdicts, one CLI call per unique
// group. Calls run in parallel under the configured concurrency limit, and a
// group whose call fails, times out, or returns garbage gets a synthetic
// unanalyzed verdict instead of sinking the batch.
type Dispatcher struct {
	runner  Runner
	timeout time.Duration
	limit   int
	log     *logrus.Logger
	metrics *metrics.Metrics
}

// NewDispatcher creates a dispatcher with the given per-call timeout and
// concurrency limit
func NewDispatcher(runner Runner, timeout time.Duration, limit int, log *logrus.Logger, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{
		runner:  runner,
		timeout: timeout,
		limit:   limit,
		log:     log,
		metrics: m,
	}
}

// Preflight sends a trivial prompt through the provider to catch a missing
// binary or bad model before any parallel work is spawned.
func (d *Dispatcher) Preflight(ctx context.Context, req Request) error {
	if req.Model == "" {
		return ErrNoModel
	}
	if _, err := d.runner.Run(ctx, req.Provider, req.Model, "Hi", "", preflightTimeout); err != nil {
		return fmt.Errorf("%s (%s) sanity check failed: %w", strings.ToUpper(req.Provider.Name), req.Model, err)
	}
	return nil
}

// Dispatch analyzes every group and returns a verdict per signature. The
// result always has an entry for every input group.
func (d *Dispatcher) Dispatch(ctx context.Context, groups []grouping.FailureGroup, req Request) map[string]models.Analysis {
	verdicts := make(map[string]models.Analysis, len(groups))
	outcomes := limiter.Run(ctx, len(groups), d.limit, func(ctx context.Context, i int) (models.Analysis, error) {
		return d.analyzeGroup(ctx, groups[i], req)
	})
	for i, out := range outcomes {
		if out.Err != nil {
			d.log.WithFields(logrus.Fields{
				"signature": groups[i].Signature,
				"tests":     len(groups[i].Records),
			}).Warnf("analysis failed: %v", out.Err)
			verdicts[groups[i].Signature] = Unanalyzed(out.Err.Error())
			continue
		}
		verdicts[groups[i].Signature] = out.Value
	}
	return verdicts
}

// AnalyzeConsole produces a single verdict from console output alone, for
// builds that failed without a test report. It never fails; problems become
// an unanalyzed verdict.
func (d *Dispatcher) AnalyzeConsole(ctx context.Context, jobName string, buildNumber int, req Request) models.Analysis {
	verdict, err := d.call(ctx, consolePrompt(jobName, buildNumber, req.ConsoleContext), req)
	if err != nil {
		d.log.WithField("job", jobName).Warnf("console analysis failed: %v", err)
		return Unanalyzed(err.Error())
	}
	return verdict
}

func (d *Dispatcher) analyzeGroup(ctx context.Context, group grouping.FailureGroup, req Request) (models.Analysis, error) {
	d.log.WithFields(logrus.Fields{
		"provider": req.Provider.Name,
		"model":    req.Model,
		"tests":    len(group.Records),
	}).Info("analyzing failure group")
	return d.call(ctx, groupPrompt(group, req.ConsoleContext), req)
}

func (d *Dispatcher) call(ctx context.Context, prompt string, req Request) (models.Analysis, error) {
	d.metrics.AnalysisCalls.Inc()
	start := time.Now()
	out, err := d.runner.Run(ctx, req.Provider, req.Model, prompt, req.Workspace, d.timeout)
	d.metrics.AnalysisSeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		d.metrics.AnalysisErrors.Inc()
		return models.Analysis{}, err
	}
	verdict, err := ParseVerdict(out)
	if err != nil {
		// The call itself succeeded; keep the raw output so nothing is lost.
		d.log.Warnf("unparseable verdict: %v", err)
		return Unanalyzed(strings.TrimSpace(out)), nil
	}
	return verdict, nil
}

// Unanalyzed builds the synthetic verdict for a group whose analysis could
// not be produced.
func Unanalyzed(detail string) models.Analysis {
	return models.Analysis{
		Classification: models.ClassUnanalyzed,
		Details:        detail,
	}
}

// UnanalyzedAll maps every group to the same synthetic verdict, used when the
// provider fails preflight and per-group calls would be pointless.
func UnanalyzedAll(groups []grouping.FailureGroup, detail string) map[string]models.Analysis {
	verdicts := make(map[string]models.Analysis, len(groups))
	for _, g := range groups {
		verdicts[g.Signature] = Unanalyzed(detail)
	}
	return verdicts
}

// Apply pairs every record with its group's verdict, preserving the order of
// the input batch.
func Apply(records []models.FailureRecord, verdicts map[string]models.Analysis) []models.FailureAnalysis {
	out := make([]models.FailureAnalysis, 0, len(records))
	for _, rec := range records {
		out = append(out, models.FailureAnalysis{
			TestName: rec.TestName,
			Error:    rec.ErrorMessage,
			Analysis: verdicts[grouping.Signature(rec)],
		})
	}
	return out
}
