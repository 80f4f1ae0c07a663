package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"build-insight/internal/models"
)

const (
	callbackTimeout     = 30 * time.Second
	callbackMaxRetries  = 3
	callbackMaxInterval = 5 * time.Second
)

// CallbackSink posts the finished job as JSON to a webhook URL.
// Transient failures (transport errors, 5xx responses) are retried with
// exponential backoff; 4xx responses are not.
type CallbackSink struct {
	url     string
	headers map[string]string
	client  *http.Client
}

func NewCallbackSink(url string, headers map[string]string) *CallbackSink {
	return &CallbackSink{
		url:     url,
		headers: headers,
		client:  &http.Client{Timeout: callbackTimeout},
	}
}

func (s *CallbackSink) Name() string { return "callback" }

func (s *CallbackSink) Send(ctx context.Context, job *models.Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode callback payload: %w", err)
	}

	post := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range s.headers {
			req.Header.Set(k, v)
		}

		resp, err := s.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode >= 500:
			return fmt.Errorf("callback returned %d", resp.StatusCode)
		case resp.StatusCode >= 400:
			return backoff.Permanent(fmt.Errorf("callback returned %d", resp.StatusCode))
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.MaxInterval = callbackMaxInterval
	if err := backoff.Retry(post, backoff.WithContext(backoff.WithMaxRetries(b, callbackMaxRetries), ctx)); err != nil {
		return fmt.Errorf("failed to deliver callback to %s: %w", s.url, err)
	}
	return nil
}
