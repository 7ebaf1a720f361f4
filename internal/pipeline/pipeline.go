package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/alertflow/alertflow/internal/dispatch"
	"github.com/alertflow/alertflow/internal/models"
	"github.com/alertflow/alertflow/internal/normalize"
	"github.com/alertflow/alertflow/internal/observability"
	"github.com/alertflow/alertflow/internal/repository"
)

// Stage names the pipeline's progress through one extraction payload.
type Stage string

const (
	StageReceived      Stage = "received"
	StageNormalized    Stage = "normalized"
	StageValidated     Stage = "validated"
	StageStored        Stage = "stored"
	StageDispatched    Stage = "dispatched"
	StageStatusUpdated Stage = "status_updated"
	StageSwept         Stage = "swept"
	StageCompleted     Stage = "completed"
	StageFailed        Stage = "failed"
)

// Counts summarizes one pipeline run.
type Counts struct {
	Total               int `json:"total"`
	Valid               int `json:"valid"`
	Stored              int `json:"stored"`
	NotificationsSent   int `json:"notificationsSent"`
	NotificationsFailed int `json:"notificationsFailed"`
}

type AlertSummary struct {
	ID       string          `json:"id"`
	Type     string          `json:"type"`
	Location string          `json:"location"`
	Severity models.Severity `json:"severity"`
}

// Result is returned for every run, including partial failures. Only a
// storage-level fault additionally surfaces as an error.
type Result struct {
	Success   bool           `json:"success"`
	Stage     Stage          `json:"stage"`
	Message   string         `json:"message,omitempty"`
	Processed Counts         `json:"processed"`
	Alerts    []AlertSummary `json:"alerts,omitempty"`
}

// Pipeline sequences normalize, validate, store, target, dispatch, status
// update and sweep for one raw extraction payload.
type Pipeline struct {
	normalizer  *normalize.Normalizer
	alerts      repository.AlertRepository
	subscribers repository.SubscriberRepository
	dispatcher  *dispatch.Dispatcher
	logger      *slog.Logger
	metrics     *observability.Metrics
}

func New(
	normalizer *normalize.Normalizer,
	alerts repository.AlertRepository,
	subscribers repository.SubscriberRepository,
	dispatcher *dispatch.Dispatcher,
	logger *slog.Logger,
	metrics *observability.Metrics,
) *Pipeline {
	return &Pipeline{
		normalizer:  normalizer,
		alerts:      alerts,
		subscribers: subscribers,
		dispatcher:  dispatcher,
		logger:      logger,
		metrics:     metrics,
	}
}

// ProcessExtraction runs one pipeline pass. Failures before storage abort
// the run; once alerts are stored, notification and maintenance failures
// only degrade the counts. The returned Result is always populated, even
// alongside a non-nil error.
func (p *Pipeline) ProcessExtraction(ctx context.Context, raw string) (*Result, error) {
	start := time.Now()
	result := &Result{Stage: StageReceived}

	defer func() {
		p.metrics.PipelineDuration.Observe(time.Since(start).Seconds())
		p.metrics.PipelineRuns.WithLabelValues(outcome(result)).Inc()
	}()

	candidates, skipped := p.normalizer.Normalize(raw)
	result.Stage = StageNormalized
	result.Processed.Total = len(candidates)
	p.metrics.AlertsNormalized.Add(float64(len(candidates)))
	p.metrics.ParseFailures.Add(float64(skipped))
	p.logger.Info("normalized extraction payload", "candidates", len(candidates), "skipped_fragments", skipped)

	valid := make([]*models.Alert, 0, len(candidates))
	for _, a := range candidates {
		if err := normalize.ValidateAlert(a); err != nil {
			p.metrics.ValidationFailures.Inc()
			p.logger.Warn("invalid alert skipped", "alert_id", a.ID, "error", err)
			continue
		}
		valid = append(valid, a)
	}
	result.Stage = StageValidated
	result.Processed.Valid = len(valid)

	if len(valid) == 0 {
		result.Stage = StageFailed
		result.Message = "no valid alerts found"
		p.logger.Warn("no valid alerts to process", "total", result.Processed.Total)
		return result, nil
	}

	ids, err := p.alerts.StoreBatch(ctx, valid)
	if err != nil {
		result.Stage = StageFailed
		result.Message = err.Error()
		p.logger.Error("storing alerts failed", "error", err)
		return result, err
	}
	result.Stage = StageStored
	result.Processed.Stored = len(ids)
	p.metrics.AlertsStored.Add(float64(len(ids)))
	for _, a := range valid {
		result.Alerts = append(result.Alerts, AlertSummary{
			ID:       a.ID,
			Type:     a.DisasterType,
			Location: a.Location,
			Severity: a.Severity,
		})
	}

	// Storage is the durability guarantee; from here on, failures degrade
	// the counts but never fail the run.
	sent, failed := p.notify(ctx, valid)
	result.Stage = StageDispatched
	result.Processed.NotificationsSent = sent
	result.Processed.NotificationsFailed = failed
	p.metrics.NotificationsSent.Add(float64(sent))
	p.metrics.NotificationsFailed.Add(float64(failed))

	p.updateStatuses(ctx, valid, sent > 0)
	result.Stage = StageStatusUpdated

	if count, err := p.alerts.SweepExpired(ctx); err != nil {
		p.logger.Warn("expiry sweep failed", "error", err)
	} else if count > 0 {
		p.metrics.SweepDeactivated.Add(float64(count))
		p.logger.Info("deactivated expired alerts", "count", count)
	}
	result.Stage = StageSwept

	result.Stage = StageCompleted
	result.Success = true
	p.logger.Info("pipeline run completed", "processed", result.Processed)
	return result, nil
}

// notify targets and dispatches every stored alert, aggregating the
// per-recipient totals across alerts.
func (p *Pipeline) notify(ctx context.Context, alerts []*models.Alert) (sent, failed int) {
	targets, err := p.subscribers.ListPushTargets(ctx)
	if err != nil {
		p.logger.Error("listing push targets failed", "error", err)
		return 0, 0
	}
	if len(targets) == 0 {
		p.logger.Warn("no pushable subscribers registered")
	}

	for _, a := range alerts {
		matched := dispatch.Target(targets, a)
		p.logger.Info("dispatching alert",
			"alert_id", a.ID, "type", a.TypeKey(), "severity", a.Severity,
			"targeted", len(matched), "pushable", len(targets))

		res, err := p.dispatcher.Dispatch(ctx, a, matched)
		sent += res.TotalSent
		failed += res.TotalFailed
		if err != nil {
			// Setup-level transport failure: everyone targeted for this
			// alert missed out, but later alerts still get their chance.
			var derr *dispatch.DispatchError
			if errors.As(err, &derr) {
				failed += len(matched) - res.TotalSent - res.TotalFailed
			}
			p.logger.Error("dispatch failed", "alert_id", a.ID, "error", err)
			continue
		}
		if a.Severity == models.SeverityHigh || a.Severity == models.SeverityCritical {
			p.metrics.TopicBroadcasts.WithLabelValues(string(a.Severity)).Inc()
		}
	}
	return sent, failed
}

func (p *Pipeline) updateStatuses(ctx context.Context, alerts []*models.Alert, sent bool) {
	for _, a := range alerts {
		if err := p.alerts.MarkNotified(ctx, a.ID, sent); err != nil {
			p.logger.Warn("updating notification status failed", "alert_id", a.ID, "error", err)
		}
	}
}

func outcome(r *Result) string {
	if r.Success {
		return "completed"
	}
	return "failed"
}
