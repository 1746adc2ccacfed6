package cron

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// CleanupJobName is the name of the expired-row purge job.
const CleanupJobName = "kv-cleanup"

// ExpiredCleaner deletes expired key-value rows.
type ExpiredCleaner interface {
	KVCleanExpired(ctx context.Context) (int64, error)
}

// NewCleanupJob builds the job purging expired saved code.
func NewCleanupJob(schedule string, store ExpiredCleaner, logger zerolog.Logger) Job {
	return Job{
		Name:     CleanupJobName,
		Schedule: schedule,
		Timeout:  time.Minute,
		Run: func(ctx context.Context) error {
			n, err := store.KVCleanExpired(ctx)
			if err != nil {
				return err
			}
			if n > 0 {
				logger.Info().Int64("rows", n).Msg("purged expired progress entries")
			}
			return nil
		},
	}
}
