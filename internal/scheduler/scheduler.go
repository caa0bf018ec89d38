// Package scheduler runs periodic maintenance jobs
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"classpulse/internal/logger"
)

// Reconciler closes sessions left active after their presentation ended
type Reconciler interface {
	Reconcile(ctx context.Context) (int, error)
}

// Scheduler wraps a cron runner. Overlapping runs of a job are skipped.
type Scheduler struct {
	cron    *cron.Cron
	timeout time.Duration
}

// New creates a scheduler whose jobs each get timeout to finish
func New(timeout time.Duration) *Scheduler {
	return &Scheduler{
		cron:    cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger), cron.SkipIfStillRunning(cron.DefaultLogger))),
		timeout: timeout,
	}
}

// AddReconcile schedules r on spec, e.g. "@every 1m"
func (s *Scheduler) AddReconcile(spec string, r Reconciler) error {
	_, err := s.cron.AddFunc(spec, func() { s.reconcile(r) })
	if err != nil {
		return fmt.Errorf("failed to schedule reconcile %q: %w", spec, err)
	}
	logger.Printf("Reconcile scheduled (%s)", spec)
	return nil
}

func (s *Scheduler) reconcile(r Reconciler) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	closed, err := r.Reconcile(ctx)
	if err != nil {
		logger.Error("reconcile failed", err, map[string]interface{}{"closed": closed})
	}
}

// Start runs the scheduler in the background
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops scheduling and waits for running jobs up to ctx
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		logger.Printf("Scheduler stop timed out, abandoning running jobs")
	}
}
