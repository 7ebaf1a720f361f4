// Package sweeper runs the scheduled expiry sweep that deactivates alerts
// whose 24-hour validity window has elapsed. The pipeline also sweeps after
// every run; this scheduler covers quiet periods with no ingestion.
package sweeper

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/alertflow/alertflow/internal/observability"
	"github.com/alertflow/alertflow/internal/repository"
)

const sweepTimeout = 30 * time.Second

type Sweeper struct {
	repo     repository.AlertRepository
	metrics  *observability.Metrics
	schedule string
	cron     *cron.Cron
}

// New creates a sweeper with a cron schedule expression, e.g. "@every 1h".
func New(repo repository.AlertRepository, metrics *observability.Metrics, schedule string) *Sweeper {
	return &Sweeper{
		repo:     repo,
		metrics:  metrics,
		schedule: schedule,
	}
}

func (s *Sweeper) Start() error {
	s.cron = cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger)))
	if _, err := s.cron.AddFunc(s.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
		defer cancel()
		s.RunOnce(ctx)
	}); err != nil {
		return err
	}
	s.cron.Start()
	slog.Info("expiry sweeper started", "schedule", s.schedule)
	return nil
}

// RunOnce performs a single sweep. Errors are logged, not returned; a
// failed sweep retries on the next tick.
func (s *Sweeper) RunOnce(ctx context.Context) {
	count, err := s.repo.SweepExpired(ctx)
	if err != nil {
		slog.Error("expiry sweep failed", "error", err)
		return
	}
	if count > 0 {
		s.metrics.SweepDeactivated.Add(float64(count))
		slog.Info("deactivated expired alerts", "count", count)
	}
}

// Stop halts the schedule and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	slog.Info("expiry sweeper stopped")
}
