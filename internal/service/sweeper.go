package service

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"build-insight/internal/repository"
)

const sweepTimeout = time.Minute

// Sweeper deletes terminal jobs older than the retention window on a cron
// schedule. Pending and running jobs are never touched. A zero retention
// age disables the sweeper entirely.
type Sweeper struct {
	store    repository.JobStore
	age      time.Duration
	schedule string
	log      *logrus.Logger
	cron     *cron.Cron
}

// NewSweeper creates a sweeper that removes terminal jobs once they are
// older than age, running on the given cron schedule
func NewSweeper(store repository.JobStore, age time.Duration, schedule string, log *logrus.Logger) *Sweeper {
	return &Sweeper{store: store, age: age, schedule: schedule, log: log}
}

// Start schedules the sweep. Overlapping runs are skipped, not queued.
func (s *Sweeper) Start() error {
	if s.age <= 0 {
		s.log.Info("job retention disabled")
		return nil
	}
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(s.schedule, s.sweep); err != nil {
		return fmt.Errorf("failed to schedule retention sweep %q: %w", s.schedule, err)
	}
	c.Start()
	s.cron = c
	s.log.Infof("retention sweep scheduled (%s, max age %s)", s.schedule, s.age)
	return nil
}

// Stop halts the schedule and waits for an in-flight sweep to finish
func (s *Sweeper) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
}

func (s *Sweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	n, err := s.store.DeleteTerminalBefore(ctx, time.Now().Add(-s.age))
	if err != nil {
		s.log.Errorf("retention sweep failed: %v", err)
		return
	}
	if n > 0 {
		s.log.Infof("retention sweep deleted %d job(s)", n)
	}
}
