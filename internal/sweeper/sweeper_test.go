package sweeper

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/goleak"

	"github.com/alertflow/alertflow/internal/models"
	"github.com/alertflow/alertflow/internal/observability"
	"github.com/alertflow/alertflow/internal/repository"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestSweeper_RunOnce(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2025, 6, 4, 14, 30, 0, 0, time.UTC))
	db, err := repository.NewSQLiteDBWithClock(":memory:", clock)
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	now := clock.Now()
	alert := &models.Alert{
		ID: "a1", DisasterType: "flood", Location: "Kerala",
		Date: "2025-06-04", Time: "14:30:00", Magnitude: "3",
		Severity: models.SeverityMedium,
		CreatedAt: now, ExpiresAt: now.Add(24 * time.Hour),
		IsActive: true, Source: "USGS",
	}
	if _, err := db.StoreBatch(ctx, []*models.Alert{alert}); err != nil {
		t.Fatalf("StoreBatch failed: %v", err)
	}

	clock.Advance(25 * time.Hour)

	s := New(db, observability.NewMetricsForTesting(), "@every 1h")
	s.RunOnce(ctx)

	active, err := db.ListActive(ctx, 10)
	if err != nil {
		t.Fatalf("ListActive failed: %v", err)
	}
	if len(active) != 0 {
		t.Errorf("expected 0 active alerts after sweep, got %d", len(active))
	}
}

func TestSweeper_StartStop(t *testing.T) {
	clock := clockwork.NewFakeClock()
	db, err := repository.NewSQLiteDBWithClock(":memory:", clock)
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	defer db.Close()

	s := New(db, observability.NewMetricsForTesting(), "@every 1h")
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	s.Stop()
}

func TestSweeper_BadSchedule(t *testing.T) {
	s := New(nil, observability.NewMetricsForTesting(), "not a schedule")
	if err := s.Start(); err == nil {
		t.Error("expected error for invalid schedule")
		s.Stop()
	}
}
