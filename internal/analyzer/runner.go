package analyzer

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// outputTailBytes bounds how much CLI output is carried into error messages.
const outputTailBytes = 2048

// Runner invokes an analysis CLI once, feeding the prompt on stdin and
// returning the captured stdout.
type Runner interface {
	Run(ctx context.Context, provider Provider, model, prompt, workspace string, timeout time.Duration) (string, error)
}

// CLIRunner executes providers as local subprocesses.
type CLIRunner struct {
	log *logrus.Logger
}

// NewCLIRunner creates a subprocess-backed runner
func NewCLIRunner(log *logrus.Logger) *CLIRunner {
	return &CLIRunner{log: log}
}

// Run executes one provider call. The call is killed when the timeout or the
// parent context expires.
func (r *CLIRunner) Run(ctx context.Context, provider Provider, model, prompt, workspace string, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, provider.Binary, provider.Args(model, workspace)...)
	if workspace != "" && !provider.UsesOwnCwd {
		cmd.Dir = workspace
	}
	cmd.Stdin = strings.NewReader(prompt)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.log.WithFields(logrus.Fields{
		"provider": provider.Name,
		"model":    model,
	}).Debug("invoking analysis CLI")

	err := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return "", fmt.Errorf("%s (%s) analysis timed out after %s", strings.ToUpper(provider.Name), model, timeout)
	}
	if err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = strings.TrimSpace(stdout.String())
		}
		if detail == "" {
			detail = "no output"
		}
		return "", fmt.Errorf("%s (%s) CLI failed: %v: %s", strings.ToUpper(provider.Name), model, err, tail(detail, outputTailBytes))
	}
	return stdout.String(), nil
}

// tail keeps the last n bytes of s, cutting at a line boundary when one is
// close enough.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	s = s[len(s)-n:]
	if i := strings.IndexByte(s, '\n'); i >= 0 && i < n/4 {
		s = s[i+1:]
	}
	return s
}
