package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alertflow/alertflow/internal/dispatch"
	"github.com/alertflow/alertflow/internal/models"
	"github.com/alertflow/alertflow/internal/normalize"
	"github.com/alertflow/alertflow/internal/observability"
	"github.com/alertflow/alertflow/internal/push"
	"github.com/alertflow/alertflow/internal/repository"
)

const extractionPayload = `[{"disasterType":"earthquake","latitude":"37.77","longitude":"-122.41","location":"SF","date":"2025-06-04","time":"14:30:00","magnitude":"7.2"}]`

// fakeTransport counts sends and records topic broadcasts.
type fakeTransport struct {
	mu         sync.Mutex
	multicasts int
	recipients int
	topics     []string
	chunkErr   error
}

func (f *fakeTransport) Send(ctx context.Context, token string, msg push.Message) (string, error) {
	return "msg-1", nil
}

func (f *fakeTransport) SendMulticast(ctx context.Context, tokens []string, msg push.Message) ([]push.SendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.multicasts++
	f.recipients += len(tokens)
	if f.chunkErr != nil {
		return nil, f.chunkErr
	}
	results := make([]push.SendResult, len(tokens))
	for i, tok := range tokens {
		results[i] = push.SendResult{Token: tok}
	}
	return results, nil
}

func (f *fakeTransport) SendToTopic(ctx context.Context, topic string, msg push.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.topics = append(f.topics, topic)
	return "topic-msg-1", nil
}

type testEnv struct {
	pipeline  *Pipeline
	db        *repository.SQLiteDB
	transport *fakeTransport
	clock     *clockwork.FakeClock
}

func setupPipeline(t *testing.T) *testEnv {
	t.Helper()

	clock := clockwork.NewFakeClockAt(time.Date(2025, 6, 4, 14, 30, 0, 0, time.UTC))
	db, err := repository.NewSQLiteDBWithClock(":memory:", clock)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	transport := &fakeTransport{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	p := New(
		normalize.NewNormalizer(clock),
		db,
		db,
		dispatch.NewDispatcher(transport, 500, 2, "alerts_"),
		logger,
		observability.NewMetricsForTesting(),
	)

	return &testEnv{pipeline: p, db: db, transport: transport, clock: clock}
}

func registerSubscriber(t *testing.T, env *testEnv, userID, token string, prefs *models.Preferences) {
	t.Helper()
	_, err := env.db.UpsertSubscriber(context.Background(), repository.UpsertSubscriberParams{
		UserID:      userID,
		PushToken:   token,
		Preferences: prefs,
	})
	require.NoError(t, err)
}

func TestProcessExtraction_EndToEnd(t *testing.T) {
	env := setupPipeline(t)
	ctx := context.Background()

	registerSubscriber(t, env, "u1", "tok1", &models.Preferences{
		DisasterTypes:        []string{"earthquake"},
		SeverityLevels:       []string{"critical"},
		NotificationsEnabled: true,
	})

	result, err := env.pipeline.ProcessExtraction(ctx, extractionPayload)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, StageCompleted, result.Stage)
	assert.Equal(t, Counts{Total: 1, Valid: 1, Stored: 1, NotificationsSent: 1}, result.Processed)
	require.Len(t, result.Alerts, 1)
	assert.Equal(t, models.SeverityCritical, result.Alerts[0].Severity)

	// Exactly one dispatch attempt plus one critical topic broadcast.
	assert.Equal(t, 1, env.transport.multicasts)
	assert.Equal(t, 1, env.transport.recipients)
	assert.Equal(t, []string{"alerts_critical"}, env.transport.topics)

	stored, err := env.db.ListActive(ctx, 10)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, models.SeverityCritical, stored[0].Severity)
	assert.True(t, stored[0].IsActive)
	assert.True(t, stored[0].NotificationSent)
	require.NotNil(t, stored[0].NotificationSentAt)
}

func TestProcessExtraction_NonMatchingPreferencesSkipDispatch(t *testing.T) {
	env := setupPipeline(t)

	registerSubscriber(t, env, "u1", "tok1", &models.Preferences{
		DisasterTypes:        []string{"flood"},
		NotificationsEnabled: true,
	})

	result, err := env.pipeline.ProcessExtraction(context.Background(), extractionPayload)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Zero(t, result.Processed.NotificationsSent)
	assert.Zero(t, env.transport.multicasts)
	// Topic broadcast is independent of targeting.
	assert.Equal(t, []string{"alerts_critical"}, env.transport.topics)
}

func TestProcessExtraction_BackToBackObjects(t *testing.T) {
	env := setupPipeline(t)

	payload := `{"disasterType":"earthquake","location":"Nepal","magnitude":"6.4"}
{"disasterType":"flood","location":"Kerala","magnitude":"2.0"}`

	result, err := env.pipeline.ProcessExtraction(context.Background(), payload)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 2, result.Processed.Total)
	assert.Equal(t, 2, result.Processed.Stored)
}

func TestProcessExtraction_NoValidAlerts(t *testing.T) {
	env := setupPipeline(t)

	result, err := env.pipeline.ProcessExtraction(context.Background(), "no json here")
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, StageFailed, result.Stage)
	assert.Equal(t, "no valid alerts found", result.Message)
	assert.Zero(t, result.Processed.Stored)
}

func TestProcessExtraction_InvalidCandidatesSkipped(t *testing.T) {
	env := setupPipeline(t)

	// Second candidate has an out-of-range latitude; it is skipped, the
	// first is processed.
	payload := `[
		{"disasterType":"earthquake","location":"Nepal","magnitude":"6.4"},
		{"disasterType":"flood","latitude":"91","location":"Nowhere","magnitude":"3"}
	]`

	result, err := env.pipeline.ProcessExtraction(context.Background(), payload)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 2, result.Processed.Total)
	assert.Equal(t, 1, result.Processed.Valid)
	assert.Equal(t, 1, result.Processed.Stored)
}

// failingAlertRepo wraps the real repo and fails StoreBatch.
type failingAlertRepo struct {
	repository.AlertRepository
}

func (f *failingAlertRepo) StoreBatch(ctx context.Context, alerts []*models.Alert) ([]string, error) {
	return nil, &repository.StorageError{Op: "store batch", Err: errors.New("disk full")}
}

func TestProcessExtraction_StorageFailureIsFatal(t *testing.T) {
	env := setupPipeline(t)
	env.pipeline.alerts = &failingAlertRepo{AlertRepository: env.db}

	result, err := env.pipeline.ProcessExtraction(context.Background(), extractionPayload)
	require.Error(t, err)

	var serr *repository.StorageError
	assert.True(t, errors.As(err, &serr))
	assert.False(t, result.Success)
	assert.Equal(t, StageFailed, result.Stage)
	assert.Equal(t, 1, result.Processed.Valid)
	assert.Zero(t, result.Processed.Stored)
	// Nothing dispatched after a storage failure.
	assert.Zero(t, env.transport.multicasts)
}

func TestProcessExtraction_DispatchFailureIsNotFatal(t *testing.T) {
	env := setupPipeline(t)
	env.transport.chunkErr = errors.New("backend hiccup")

	registerSubscriber(t, env, "u1", "tok1", nil)

	result, err := env.pipeline.ProcessExtraction(context.Background(), extractionPayload)
	require.NoError(t, err)

	// Alerts stay stored and the run still succeeds; delivery just failed.
	assert.True(t, result.Success)
	assert.Equal(t, 1, result.Processed.Stored)
	assert.Zero(t, result.Processed.NotificationsSent)
	assert.Equal(t, 1, result.Processed.NotificationsFailed)

	stored, err := env.db.ListActive(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.False(t, stored[0].NotificationSent)
}

func TestProcessExtraction_TransportUnavailableIsNotFatalToRun(t *testing.T) {
	env := setupPipeline(t)
	env.transport.chunkErr = push.ErrUnavailable

	registerSubscriber(t, env, "u1", "tok1", nil)
	registerSubscriber(t, env, "u2", "tok2", nil)

	result, err := env.pipeline.ProcessExtraction(context.Background(), extractionPayload)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 2, result.Processed.NotificationsFailed)
	assert.Zero(t, result.Processed.NotificationsSent)
}

func TestProcessExtraction_SweepRunsWithinPipeline(t *testing.T) {
	env := setupPipeline(t)
	ctx := context.Background()

	// Store an alert, expire it, then run a fresh extraction: the run's
	// sweep stage must deactivate the stale alert.
	first, err := env.pipeline.ProcessExtraction(ctx, extractionPayload)
	require.NoError(t, err)
	require.True(t, first.Success)

	env.clock.Advance(25 * time.Hour)

	second, err := env.pipeline.ProcessExtraction(ctx, extractionPayload)
	require.NoError(t, err)
	require.True(t, second.Success)

	active, err := env.db.ListActive(ctx, 10)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, second.Alerts[0].ID, active[0].ID)
}
