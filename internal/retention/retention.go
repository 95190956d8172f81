package retention

import (
	"context"
	"database/sql"
	"log"
	"strings"
	"time"

	"raicompanion/internal/config"
	"raicompanion/internal/storage/sqlite"
)

// Start prunes analysis history on the configured cron schedule and blocks
// until ctx is cancelled. A disabled or unparsable schedule returns at once.
func Start(ctx context.Context, cfg config.Config, db *sql.DB) error {
	schedule := strings.TrimSpace(cfg.HistoryPruneSchedule)
	if !cfg.PruneEnabled() || schedule == "" {
		log.Println("History pruning disabled (history_prune_schedule=off)")
		return nil
	}
	sched, err := config.ParseSchedule(schedule)
	if err != nil {
		log.Printf("Invalid history_prune_schedule '%s': %v, pruning disabled", schedule, err)
		return nil
	}
	retention := cfg.HistoryRetention()
	log.Printf("History pruning scheduled (cron: %s) retention=%s", schedule, retention)

	for {
		now := time.Now()
		next := sched.Next(now)
		wait := next.Sub(now)
		log.Printf("Next history prune at %s (in %s)", next.Format("Mon Jan 2 15:04"), wait.Round(time.Minute))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}

		if _, err := PruneOnce(db, retention, time.Now()); err != nil {
			log.Printf("History prune error: %v", err)
		}
	}
}

// PruneOnce deletes history rows older than retention as of now.
func PruneOnce(db *sql.DB, retention time.Duration, now time.Time) (int64, error) {
	cutoff := now.Add(-retention)
	n, err := sqlite.PruneBefore(db, cutoff)
	if err != nil {
		return 0, err
	}
	log.Printf("History prune removed=%d cutoff=%s", n, cutoff.Format(time.RFC3339))
	return n, nil
}
