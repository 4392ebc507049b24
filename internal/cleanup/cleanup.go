package cleanup

import (
	"context"
	"os"
	"time"

	"github.com/mediastash/offline_downloader/internal/logctx"
	"github.com/mediastash/offline_downloader/internal/storage"
	"golang.org/x/sync/errgroup"
)

const maxConcurrentDeletes = 4

// DeleteExpiredUnits removes completed downloads older than keepDuration: the file
// on disk and the catalog record. Partial (resumable) files are never touched.
func DeleteExpiredUnits(ctx context.Context, catalog storage.CatalogWriteRepository, records []storage.UnitRecord, keepDuration time.Duration) error {
	logger := logctx.LoggerFromContext(ctx)
	now := time.Now()

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentDeletes)

	for _, rec := range records {
		if rec.Status != "completed" {
			continue
		}

		completedAt, err := time.Parse(time.RFC3339, rec.UpdatedAt)
		if err != nil {
			// fallback: use file mod time
			info, statErr := os.Stat(rec.TargetPath)
			if statErr != nil {
				continue
			}

			logger.Warn("failed to parse completion time, using file mod time", "file", rec.TargetPath, "err", err)

			completedAt = info.ModTime()
		}

		if now.Sub(completedAt) <= keepDuration {
			continue
		}

		g.Go(func() error {
			if err := os.Remove(rec.TargetPath); err != nil && !os.IsNotExist(err) {
				logger.Error("failed to delete expired file", "file", rec.TargetPath, "err", err)

				return err
			}

			if err := catalog.DeleteUnitState(rec.UnitID); err != nil {
				logger.Error("failed to delete expired unit state", "unit_id", rec.UnitID, "err", err)

				return err
			}

			logger.Info("deleted expired download", "file", rec.TargetPath)

			return nil
		})
	}

	return g.Wait()
}
