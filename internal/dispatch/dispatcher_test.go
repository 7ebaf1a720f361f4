package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/alertflow/alertflow/internal/models"
	"github.com/alertflow/alertflow/internal/push"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeTransport records every transport call and fails recipients or whole
// chunks on demand.
type fakeTransport struct {
	mu         sync.Mutex
	multicasts [][]string
	topics     []string
	failTokens map[string]bool
	chunkErr   error // returned by every SendMulticast call
	topicErr   error
}

func (f *fakeTransport) Send(ctx context.Context, token string, msg push.Message) (string, error) {
	return "msg-1", nil
}

func (f *fakeTransport) SendMulticast(ctx context.Context, tokens []string, msg push.Message) ([]push.SendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.multicasts = append(f.multicasts, tokens)
	if f.chunkErr != nil {
		return nil, f.chunkErr
	}

	results := make([]push.SendResult, len(tokens))
	for i, tok := range tokens {
		results[i] = push.SendResult{Token: tok}
		if f.failTokens[tok] {
			results[i].Err = errors.New("invalid token")
		}
	}
	return results, nil
}

func (f *fakeTransport) SendToTopic(ctx context.Context, topic string, msg push.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.topicErr != nil {
		return "", f.topicErr
	}
	f.topics = append(f.topics, topic)
	return "topic-msg-1", nil
}

func criticalAlert() *models.Alert {
	now := time.Date(2025, 6, 4, 14, 30, 0, 0, time.UTC)
	return &models.Alert{
		ID:           "a1",
		DisasterType: "Earthquake",
		Location:     "SF",
		Magnitude:    "7.2",
		Severity:     models.SeverityCritical,
		CreatedAt:    now,
		ExpiresAt:    now.Add(24 * time.Hour),
		IsActive:     true,
		Source:       "USGS",
	}
}

func targetsN(n int) []models.PushTarget {
	targets := make([]models.PushTarget, n)
	for i := range targets {
		targets[i] = models.PushTarget{
			Token:       fmt.Sprintf("tok-%04d", i),
			UserID:      fmt.Sprintf("u%04d", i),
			Preferences: models.DefaultPreferences(),
		}
	}
	return targets
}

func TestDispatch_Chunking(t *testing.T) {
	transport := &fakeTransport{}
	d := NewDispatcher(transport, 500, 4, "alerts_")

	result, err := d.Dispatch(context.Background(), criticalAlert(), targetsN(1200))
	require.NoError(t, err)

	require.Len(t, transport.multicasts, 3)
	sizes := map[int]int{}
	for _, chunk := range transport.multicasts {
		sizes[len(chunk)]++
	}
	assert.Equal(t, 2, sizes[500])
	assert.Equal(t, 1, sizes[200])

	assert.Equal(t, 1200, result.TotalSent+result.TotalFailed)
	assert.Equal(t, 1200, result.TotalSent)
	assert.Zero(t, result.TotalFailed)
}

func TestDispatch_PerRecipientFailures(t *testing.T) {
	transport := &fakeTransport{failTokens: map[string]bool{"tok-0001": true, "tok-0003": true}}
	d := NewDispatcher(transport, 500, 2, "alerts_")

	result, err := d.Dispatch(context.Background(), criticalAlert(), targetsN(5))
	require.NoError(t, err)

	assert.Equal(t, 3, result.TotalSent)
	assert.Equal(t, 2, result.TotalFailed)
}

func TestDispatch_ChunkFailureDoesNotStopOthers(t *testing.T) {
	transport := &fakeTransport{chunkErr: errors.New("backend hiccup")}
	d := NewDispatcher(transport, 100, 1, "alerts_")

	result, err := d.Dispatch(context.Background(), criticalAlert(), targetsN(250))
	require.NoError(t, err)

	// All three chunks attempted, every recipient counted as failed.
	assert.Len(t, transport.multicasts, 3)
	assert.Zero(t, result.TotalSent)
	assert.Equal(t, 250, result.TotalFailed)
}

func TestDispatch_SetupFailureIsHard(t *testing.T) {
	transport := &fakeTransport{chunkErr: push.ErrUnavailable}
	d := NewDispatcher(transport, 100, 1, "alerts_")

	_, err := d.Dispatch(context.Background(), criticalAlert(), targetsN(10))
	require.Error(t, err)

	var derr *DispatchError
	require.True(t, errors.As(err, &derr))
	assert.ErrorIs(t, err, push.ErrUnavailable)
}

func TestDispatch_TopicBroadcastForCritical(t *testing.T) {
	transport := &fakeTransport{}
	d := NewDispatcher(transport, 500, 1, "alerts_")

	result, err := d.Dispatch(context.Background(), criticalAlert(), targetsN(2))
	require.NoError(t, err)

	require.Len(t, transport.topics, 1)
	assert.Equal(t, "alerts_critical", transport.topics[0])
	// Topic send is not counted in the per-recipient totals.
	assert.Equal(t, 2, result.TotalSent)
}

func TestDispatch_NoTopicBroadcastForMedium(t *testing.T) {
	transport := &fakeTransport{}
	d := NewDispatcher(transport, 500, 1, "alerts_")

	alert := criticalAlert()
	alert.Severity = models.SeverityMedium

	_, err := d.Dispatch(context.Background(), alert, targetsN(2))
	require.NoError(t, err)
	assert.Empty(t, transport.topics)
}

func TestDispatch_TopicBroadcastEvenWithNoTargets(t *testing.T) {
	transport := &fakeTransport{}
	d := NewDispatcher(transport, 500, 1, "alerts_")

	result, err := d.Dispatch(context.Background(), criticalAlert(), nil)
	require.NoError(t, err)
	assert.Zero(t, result.TotalSent)
	assert.Zero(t, result.TotalFailed)
	assert.Equal(t, []string{"alerts_critical"}, transport.topics)
}

func TestDispatch_TopicFailureIsSoft(t *testing.T) {
	transport := &fakeTransport{topicErr: errors.New("topic quota exceeded")}
	d := NewDispatcher(transport, 500, 1, "alerts_")

	result, err := d.Dispatch(context.Background(), criticalAlert(), targetsN(3))
	require.NoError(t, err)
	assert.Equal(t, 3, result.TotalSent)
}
