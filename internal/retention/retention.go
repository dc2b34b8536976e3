// Package retention removes uploaded photos that never became submissions.
package retention

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aliuyar1234/holidaytree/internal/blob"
	"github.com/aliuyar1234/holidaytree/internal/metrics"
	"github.com/aliuyar1234/holidaytree/internal/submissions"
	"github.com/rs/zerolog/log"
)

// KeyChecker reports whether a blob key is referenced. store.Store satisfies it.
type KeyChecker interface {
	ImageKeyInUse(ctx context.Context, key string) (bool, error)
}

// SweepOrphanUploads deletes submission uploads older than grace that no submission references.
// Uploads younger than grace are left alone because their submission may still be being written.
// The function is idempotent - safe to run repeatedly.
//
// Returns the number of blobs deleted.
func SweepOrphanUploads(ctx context.Context, blobs blob.Store, refs KeyChecker, grace time.Duration, now time.Time) (int64, error) {
	objects, err := blobs.List(ctx, submissions.KeyPrefix)
	if err != nil {
		return 0, fmt.Errorf("failed to list uploads: %w", err)
	}

	cutoff := now.Add(-grace)
	var deleted int64
	for _, obj := range objects {
		if !obj.ModTime.Before(cutoff) {
			continue
		}

		inUse, err := refs.ImageKeyInUse(ctx, obj.Key)
		if err != nil {
			return deleted, fmt.Errorf("failed to check upload %s: %w", obj.Key, err)
		}
		if inUse {
			continue
		}

		if err := blobs.Delete(ctx, obj.Key); err != nil && !errors.Is(err, blob.ErrNotFound) {
			return deleted, fmt.Errorf("failed to delete upload %s: %w", obj.Key, err)
		}
		log.Debug().Str("key", obj.Key).Time("mod_time", obj.ModTime).Msg("Deleted orphan upload")
		deleted++
	}

	metrics.OrphanBlobsDeleted.Add(float64(deleted))
	return deleted, nil
}

// RunRetentionJob sweeps orphan uploads and logs the results.
// This is the main entry point called by the cron scheduler.
func RunRetentionJob(ctx context.Context, blobs blob.Store, refs KeyChecker, graceHours int) error {
	log.Info().
		Int("orphan_grace_hours", graceHours).
		Msg("Starting retention job")

	startTime := time.Now()

	deleted, err := SweepOrphanUploads(ctx, blobs, refs, time.Duration(graceHours)*time.Hour, startTime)
	if err != nil {
		log.Error().Err(err).Int64("orphan_uploads_deleted", deleted).Msg("Failed to sweep orphan uploads")
		return fmt.Errorf("orphan upload cleanup failed: %w", err)
	}

	log.Info().
		Int64("orphan_uploads_deleted", deleted).
		Dur("duration", time.Since(startTime)).
		Msg("Retention job completed")

	return nil
}
