package analyzer

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"build-insight/internal/grouping"
	"build-insight/internal/metrics"
	"build-insight/internal/models"
)

// fakeRunner answers prompts from a table instead of spawning processes.
type fakeRunner struct {
	mu      sync.Mutex
	prompts []string
	respond func(prompt string) (string, error)
}

func (f *fakeRunner) Run(_ context.Context, _ Provider, _, prompt, _ string, _ time.Duration) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()
	if f.respond != nil {
		return f.respond(prompt)
	}
	return `{"classification":"code_issue","details":"default"}`, nil
}

func (f *fakeRunner) promptCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

func newTestDispatcher(r Runner) *Dispatcher {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return NewDispatcher(r, time.Minute, 4, log, metrics.New(prometheus.NewRegistry()))
}

func testRequest() Request {
	p, _ := LookupProvider("claude")
	return Request{Provider: p, Model: "opus"}
}

func rec(name, errMsg string) models.FailureRecord {
	return models.FailureRecord{
		TestName:     name,
		ErrorMessage: errMsg,
		StackTrace:   "at handler.go:10\nat main.go:3",
		Status:       "FAILED",
	}
}

func TestDispatchOneCallPerGroup(t *testing.T) {
	t.Parallel()

	records := []models.FailureRecord{
		rec("TestA", "timeout waiting for page"),
		rec("TestB", "nil pointer dereference"),
		rec("TestC", "timeout waiting for page"),
	}
	groups := grouping.Group(records)
	require.Len(t, groups, 2)

	runner := &fakeRunner{respond: func(prompt string) (string, error) {
		if strings.Contains(prompt, "timeout waiting for page") {
			return `{"classification":"code_issue","details":"slow wait"}`, nil
		}
		return `{"classification":"product_bug","details":"server crash","product_bug_report":{"title":"crash"}}`, nil
	}}
	d := newTestDispatcher(runner)

	verdicts := d.Dispatch(context.Background(), groups, testRequest())

	assert.Equal(t, 2, runner.promptCount())
	require.Len(t, verdicts, 2)
	assert.Equal(t, "slow wait", verdicts[groups[0].Signature].Details)
	assert.Equal(t, models.ClassProductBug, verdicts[groups[1].Signature].Classification)
}

func TestDispatchIsolatesGroupFailures(t *testing.T) {
	t.Parallel()

	records := []models.FailureRecord{
		rec("TestA", "timeout waiting for page"),
		rec("TestB", "nil pointer dereference"),
	}
	groups := grouping.Group(records)

	runner := &fakeRunner{respond: func(prompt string) (string, error) {
		if strings.Contains(prompt, "nil pointer") {
			return "", errors.New("CLI exploded")
		}
		return `{"classification":"code_issue","details":"slow wait"}`, nil
	}}
	d := newTestDispatcher(runner)

	verdicts := d.Dispatch(context.Background(), groups, testRequest())

	require.Len(t, verdicts, 2)
	assert.Equal(t, models.ClassCodeIssue, verdicts[groups[0].Signature].Classification)
	bad := verdicts[groups[1].Signature]
	assert.Equal(t, models.ClassUnanalyzed, bad.Classification)
	assert.Contains(t, bad.Details, "CLI exploded")
}

func TestDispatchKeepsRawOutputWhenUnparseable(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{respond: func(string) (string, error) {
		return "I am not sure what went wrong here.\n", nil
	}}
	d := newTestDispatcher(runner)
	groups := grouping.Group([]models.FailureRecord{rec("TestA", "boom")})

	verdicts := d.Dispatch(context.Background(), groups, testRequest())

	v := verdicts[groups[0].Signature]
	assert.Equal(t, models.ClassUnanalyzed, v.Classification)
	assert.Equal(t, "I am not sure what went wrong here.", v.Details)
}

func TestPreflightRequiresModel(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{}
	d := newTestDispatcher(runner)

	req := testRequest()
	req.Model = ""
	err := d.Preflight(context.Background(), req)
	assert.ErrorIs(t, err, ErrNoModel)
	assert.Equal(t, 0, runner.promptCount())
}

func TestPreflightWrapsRunnerError(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{respond: func(string) (string, error) {
		return "", errors.New("executable file not found")
	}}
	d := newTestDispatcher(runner)

	err := d.Preflight(context.Background(), testRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sanity check failed")
	assert.Contains(t, err.Error(), "executable file not found")
}

func TestPreflightSendsTrivialPrompt(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{respond: func(string) (string, error) { return "hello", nil }}
	d := newTestDispatcher(runner)

	require.NoError(t, d.Preflight(context.Background(), testRequest()))
	require.Equal(t, 1, runner.promptCount())
	assert.Equal(t, "Hi", runner.prompts[0])
}

func TestAnalyzeConsoleNeverFails(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{respond: func(string) (string, error) {
		return "", errors.New("model overloaded")
	}}
	d := newTestDispatcher(runner)

	req := testRequest()
	req.ConsoleContext = "ERROR: out of disk"
	v := d.AnalyzeConsole(context.Background(), "web/deploy", 17, req)
	assert.Equal(t, models.ClassUnanalyzed, v.Classification)
	assert.Contains(t, v.Details, "model overloaded")
}

func TestUnanalyzedAllCoversEveryGroup(t *testing.T) {
	t.Parallel()

	groups := grouping.Group([]models.FailureRecord{
		rec("TestA", "x"),
		rec("TestB", "y"),
	})
	verdicts := UnanalyzedAll(groups, "CLAUDE (opus) sanity check failed")

	require.Len(t, verdicts, 2)
	for _, g := range groups {
		assert.Equal(t, models.ClassUnanalyzed, verdicts[g.Signature].Classification)
		assert.Contains(t, verdicts[g.Signature].Details, "sanity check failed")
	}
}

func TestApplyPreservesBatchOrder(t *testing.T) {
	t.Parallel()

	records := []models.FailureRecord{
		rec("TestA", "timeout waiting for page"),
		rec("TestB", "nil pointer dereference"),
		rec("TestC", "timeout waiting for page"),
	}
	groups := grouping.Group(records)
	verdicts := map[string]models.Analysis{
		groups[0].Signature: {Classification: models.ClassCodeIssue, Details: "slow wait"},
		groups[1].Signature: {Classification: models.ClassProductBug, Details: "crash"},
	}

	paired := Apply(records, verdicts)

	require.Len(t, paired, 3)
	assert.Equal(t, "TestA", paired[0].TestName)
	assert.Equal(t, "TestB", paired[1].TestName)
	assert.Equal(t, "TestC", paired[2].TestName)
	assert.Equal(t, "slow wait", paired[0].Analysis.Details)
	assert.Equal(t, "crash", paired[1].Analysis.Details)
	assert.Equal(t, paired[0].Analysis, paired[2].Analysis)
	assert.Equal(t, "nil pointer dereference", paired[1].Error)
}
