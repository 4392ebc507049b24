package cleanup

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mediastash/offline_downloader/internal/storage"
	"github.com/mediastash/offline_downloader/internal/storage/inmem"
	"github.com/stretchr/testify/require"
)

func TestDeleteExpiredUnits(t *testing.T) {
	dir := t.TempDir()
	catalog := inmem.NewCatalog()

	expiredTarget := filepath.Join(dir, "expired.flac")
	freshTarget := filepath.Join(dir, "fresh.flac")
	partialTarget := filepath.Join(dir, "partial.flac")

	for _, target := range []string{expiredTarget, freshTarget, partialTarget} {
		require.NoError(t, os.WriteFile(target, []byte("audio"), 0o644))
	}

	records := []storage.UnitRecord{
		{
			UnitID:     "u-expired",
			ItemID:     "album-1",
			TargetPath: expiredTarget,
			Status:     "completed",
			UpdatedAt:  time.Now().Add(-2 * time.Hour).Format(time.RFC3339),
		},
		{
			UnitID:     "u-fresh",
			ItemID:     "album-1",
			TargetPath: freshTarget,
			Status:     "completed",
			UpdatedAt:  time.Now().Add(-10 * time.Minute).Format(time.RFC3339),
		},
		{
			// Old but resumable, must never be touched.
			UnitID:     "u-partial",
			ItemID:     "album-2",
			TargetPath: partialTarget,
			Status:     "stopped",
			UpdatedAt:  time.Now().Add(-2 * time.Hour).Format(time.RFC3339),
		},
	}

	for _, rec := range records {
		require.NoError(t, catalog.TrackUnit(rec))
		require.NoError(t, catalog.PersistUnitState(rec.UnitID, rec.Status, rec.BytesDone))
	}

	err := DeleteExpiredUnits(context.Background(), catalog, records, time.Hour)
	require.NoError(t, err)

	_, err = os.Stat(expiredTarget)
	require.True(t, os.IsNotExist(err), "expired completed file should be deleted")

	_, err = os.Stat(freshTarget)
	require.NoError(t, err, "recently completed file should survive")

	_, err = os.Stat(partialTarget)
	require.NoError(t, err, "partial file should survive")
}

func TestDeleteExpiredUnits_FallsBackToFileModTime(t *testing.T) {
	dir := t.TempDir()
	catalog := inmem.NewCatalog()

	target := filepath.Join(dir, "old.flac")
	require.NoError(t, os.WriteFile(target, []byte("audio"), 0o644))
	require.NoError(t, os.Chtimes(target, time.Now().Add(-3*time.Hour), time.Now().Add(-3*time.Hour)))

	rec := storage.UnitRecord{
		UnitID:     "u1",
		ItemID:     "album-1",
		TargetPath: target,
		Status:     "completed",
		UpdatedAt:  "not-a-timestamp",
	}
	require.NoError(t, catalog.TrackUnit(rec))

	err := DeleteExpiredUnits(context.Background(), catalog, []storage.UnitRecord{rec}, time.Hour)
	require.NoError(t, err)

	_, err = os.Stat(target)
	require.True(t, os.IsNotExist(err), "file older than retention by mod time should be deleted")
}
