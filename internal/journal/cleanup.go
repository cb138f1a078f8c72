package journal

import (
	"context"
	"time"

	"xpstore/internal/logger"
)

const (
	cleanupHour       = 2 // 2 AM
	maxDeletionPerRun = 500
)

// StartCleanupRoutine prunes attempts older than retention every night at
// cleanupHour until ctx is cancelled.
func (j *Journal) StartCleanupRoutine(ctx context.Context, retention time.Duration) {
	go func() {
		logger.LogInfo("Journal cleanup routine started - will run daily at %d:00 AM", cleanupHour)

		for {
			next := nextRun(time.Now())
			logger.LogInfo("Next journal cleanup scheduled for %v", next.Format("2006-01-02 15:04:05"))

			timer := time.NewTimer(time.Until(next))
			select {
			case <-ctx.Done():
				timer.Stop()
				logger.LogInfo("Journal cleanup routine stopped")
				return
			case <-timer.C:
			}

			j.RunCleanup(ctx, time.Now().Add(-retention))
		}
	}()
}

// RunCleanup deletes attempts older than cutoff in batches and returns the total.
func (j *Journal) RunCleanup(ctx context.Context, cutoff time.Time) int {
	logger.LogInfo("Cleaning journal entries before %v", cutoff.Format("2006-01-02 15:04:05"))

	total := 0
	for {
		n, err := j.Prune(ctx, cutoff, maxDeletionPerRun)
		if err != nil {
			logger.LogError("Failed to prune purchase journal: %v", err)
			break
		}
		total += n
		if n < maxDeletionPerRun {
			break
		}
	}

	if total == 0 {
		logger.LogInfo("Journal cleanup completed - no old attempts found")
	} else {
		logger.LogInfo("Journal cleanup completed - %d attempts removed", total)
	}
	return total
}

func nextRun(now time.Time) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), cleanupHour, 0, 0, 0, now.Location())
	if !now.Before(next) {
		next = next.Add(24 * time.Hour)
	}
	return next
}
