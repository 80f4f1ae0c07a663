package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"build-insight/internal/models"
)

// FileSink writes the finished job as <job_id>.json under a directory.
// The document goes to a temp file first and is renamed into place, so a
// reader never observes a partially written file.
type FileSink struct {
	dir string
}

func NewFileSink(dir string) *FileSink { return &FileSink{dir: dir} }

func (s *FileSink) Name() string { return "file" }

func (s *FileSink) Send(_ context.Context, job *models.Job) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create results dir: %w", err)
	}

	payload, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode job: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, job.ID+"-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write result file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close result file: %w", err)
	}

	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, job.ID+".json")); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to move result file: %w", err)
	}
	return nil
}
