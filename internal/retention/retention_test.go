package retention

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/goleak"

	"raicompanion/internal/config"
	"raicompanion/internal/domain"
	"raicompanion/internal/storage/sqlite"
)

func TestPruneOnce(t *testing.T) {
	db, err := sqlite.InitDB(filepath.Join(t.TempDir(), "retention.db"))
	if err != nil {
		t.Fatalf("InitDB: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	now := time.Date(2025, 6, 1, 3, 0, 0, 0, time.UTC)
	for i, age := range []time.Duration{time.Hour, 29 * 24 * time.Hour, 31 * 24 * time.Hour, 90 * 24 * time.Hour} {
		rec := domain.AnalysisRecord{
			RequestID:  "req-" + string(rune('a'+i)),
			InputText:  "text",
			Mode:       domain.ModeGuided,
			ModelAlias: "claude",
			Status:     "ok",
			CreatedAt:  now.Add(-age),
		}
		if _, err := sqlite.InsertAnalysis(db, rec); err != nil {
			t.Fatalf("InsertAnalysis: %v", err)
		}
	}

	n, err := PruneOnce(db, 30*24*time.Hour, now)
	if err != nil {
		t.Fatalf("PruneOnce: %v", err)
	}
	if n != 2 {
		t.Fatalf("pruned %d rows, want 2", n)
	}
	rows, _ := sqlite.RecentAnalyses(db, 10)
	if len(rows) != 2 {
		t.Fatalf("expected 2 remaining rows, got %d", len(rows))
	}
}

func TestStartDisabledReturnsImmediately(t *testing.T) {
	defer goleak.VerifyNone(t)
	cfg := config.Config{HistoryPruneSchedule: config.PruneDisabled, HistoryRetentionDays: 30}
	done := make(chan error, 1)
	go func() { done <- Start(context.Background(), cfg, nil) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Start: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("disabled scheduler should return immediately")
	}
}

func TestStartStopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)
	cfg := config.Config{HistoryPruneSchedule: "0 3 * * *", HistoryRetentionDays: 30}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Start(ctx, cfg, nil) }()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Start: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}
}
