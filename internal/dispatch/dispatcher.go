package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alertflow/alertflow/internal/models"
	"github.com/alertflow/alertflow/internal/push"
	"github.com/alertflow/alertflow/internal/worker"
)

// DispatchError reports a failed transport call. Chunk and topic failures
// are counted and logged, never propagated; only a setup-level transport
// failure surfaces as an error from Dispatch.
type DispatchError struct {
	Stage string
	Err   error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch %s failed: %v", e.Stage, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// Result aggregates per-recipient outcomes across all chunks. Topic
// broadcasts are not counted here.
type Result struct {
	TotalSent   int
	TotalFailed int
}

// Dispatcher fans an alert out to targeted subscribers in chunks bounded by
// the transport's per-call recipient ceiling.
type Dispatcher struct {
	transport   push.Transport
	chunkSize   int
	workers     int
	topicPrefix string
}

func NewDispatcher(transport push.Transport, chunkSize, workers int, topicPrefix string) *Dispatcher {
	if chunkSize <= 0 || chunkSize > push.MaxTokensPerSend {
		chunkSize = push.MaxTokensPerSend
	}
	if workers <= 0 {
		workers = 1
	}
	return &Dispatcher{
		transport:   transport,
		chunkSize:   chunkSize,
		workers:     workers,
		topicPrefix: topicPrefix,
	}
}

type chunkJob struct {
	index  int
	tokens []string
}

type chunkOutcome struct {
	sent   int
	failed int
	err    error
}

// Dispatch sends the alert to every targeted subscriber and, for high and
// critical severities, additionally to the severity-named broadcast topic.
// A failed chunk counts all of its recipients as failures and does not stop
// the remaining chunks. Only a setup-level transport failure
// (push.ErrUnavailable) is returned as an error.
func (d *Dispatcher) Dispatch(ctx context.Context, alert *models.Alert, targets []models.PushTarget) (Result, error) {
	msg := push.NewAlertMessage(alert)

	tokens := make([]string, 0, len(targets))
	for _, t := range targets {
		tokens = append(tokens, t.Token)
	}

	chunks := chunkTokens(tokens, d.chunkSize)
	outcomes := make([]chunkOutcome, len(chunks))

	if len(chunks) > 0 {
		// One outcome slot per chunk; results merge after the pool drains,
		// so no counter is shared between workers.
		pool := worker.NewPool(min(d.workers, len(chunks)), len(chunks), func(ctx context.Context, job chunkJob) error {
			outcomes[job.index] = d.sendChunk(ctx, job, msg)
			return outcomes[job.index].err
		})
		pool.Start(ctx)
		for i, c := range chunks {
			pool.Submit(chunkJob{index: i, tokens: c})
		}
		pool.Stop()
	}

	var result Result
	var setupErr error
	for i, o := range outcomes {
		result.TotalSent += o.sent
		result.TotalFailed += o.failed
		if o.err != nil && errors.Is(o.err, push.ErrUnavailable) && setupErr == nil {
			setupErr = &DispatchError{Stage: fmt.Sprintf("chunk %d", i), Err: o.err}
		}
	}
	if setupErr != nil {
		return result, setupErr
	}

	d.broadcastTopic(ctx, alert, msg)

	slog.Info("dispatch complete", "alert_id", alert.ID,
		"sent", result.TotalSent, "failed", result.TotalFailed, "chunks", len(chunks))
	return result, nil
}

func (d *Dispatcher) sendChunk(ctx context.Context, job chunkJob, msg push.Message) chunkOutcome {
	results, err := d.transport.SendMulticast(ctx, job.tokens, msg)
	if err != nil {
		// Chunk-level failure: every recipient in the chunk counts as
		// failed, later chunks still run.
		derr := &DispatchError{Stage: fmt.Sprintf("chunk %d", job.index), Err: err}
		slog.Warn("chunk send failed", "error", derr, "recipients", len(job.tokens))
		return chunkOutcome{failed: len(job.tokens), err: err}
	}

	var out chunkOutcome
	for _, r := range results {
		if r.Err != nil {
			out.failed++
		} else {
			out.sent++
		}
	}
	return out
}

// broadcastTopic issues the extra severity-topic send for high and critical
// alerts. Topic failures are logged, not counted and not propagated.
func (d *Dispatcher) broadcastTopic(ctx context.Context, alert *models.Alert, msg push.Message) {
	if alert.Severity != models.SeverityHigh && alert.Severity != models.SeverityCritical {
		return
	}

	topic := d.topicPrefix + string(alert.Severity)
	if _, err := d.transport.SendToTopic(ctx, topic, msg); err != nil {
		slog.Warn("topic broadcast failed", "error", &DispatchError{Stage: "topic " + topic, Err: err})
		return
	}
	slog.Info("topic broadcast sent", "topic", topic, "alert_id", alert.ID)
}

func chunkTokens(tokens []string, size int) [][]string {
	var chunks [][]string
	for start := 0; start < len(tokens); start += size {
		end := min(start+size, len(tokens))
		chunks = append(chunks, tokens[start:end])
	}
	return chunks
}
