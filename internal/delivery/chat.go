package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"build-insight/internal/models"
)

const chatTimeout = 15 * time.Second

// ChatSink posts each assembled result message to a chat webhook as a
// {"text": body} payload, preserving message order. A failed message does
// not stop the remaining messages from being sent.
type ChatSink struct {
	url    string
	client *http.Client
}

func NewChatSink(url string) *ChatSink {
	return &ChatSink{url: url, client: &http.Client{Timeout: chatTimeout}}
}

func (s *ChatSink) Name() string { return "chat" }

func (s *ChatSink) Send(ctx context.Context, job *models.Job) error {
	if job.Result == nil || len(job.Result.Messages) == 0 {
		return nil
	}
	var errs []error
	for i, msg := range job.Result.Messages {
		if err := s.post(ctx, msg.Body); err != nil {
			errs = append(errs, fmt.Errorf("message %d of %d: %w", i+1, len(job.Result.Messages), err))
		}
	}
	return errors.Join(errs...)
}

func (s *ChatSink) post(ctx context.Context, text string) error {
	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return fmt.Errorf("failed to encode chat message: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("chat webhook returned %d", resp.StatusCode)
	}
	return nil
}
