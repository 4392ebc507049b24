package sqlite

import (
	"context"
	"database/sql"

	"github.com/mediastash/offline_downloader/internal/storage"
	"github.com/mediastash/offline_downloader/internal/telemetry"
)

// InstrumentedCatalogRepository wraps CatalogRepository with telemetry.
type InstrumentedCatalogRepository struct {
	repo      *CatalogRepository
	telemetry *telemetry.Telemetry
}

// NewInstrumentedCatalogRepository creates a new instrumented catalog repository.
func NewInstrumentedCatalogRepository(dbConn *sql.DB, tel *telemetry.Telemetry) *InstrumentedCatalogRepository {
	return &InstrumentedCatalogRepository{
		repo:      NewCatalogRepository(dbConn),
		telemetry: tel,
	}
}

func (r *InstrumentedCatalogRepository) TrackUnit(record storage.UnitRecord) error {
	return r.telemetry.InstrumentDBOperation(context.Background(), "track_unit", func(ctx context.Context) error {
		return r.repo.TrackUnit(record)
	})
}

func (r *InstrumentedCatalogRepository) PersistUnitState(unitID, status string, bytesDone int64) error {
	return r.telemetry.InstrumentDBOperation(context.Background(), "persist_unit_state", func(ctx context.Context) error {
		return r.repo.PersistUnitState(unitID, status, bytesDone)
	})
}

func (r *InstrumentedCatalogRepository) DeleteUnitState(unitID string) error {
	return r.telemetry.InstrumentDBOperation(context.Background(), "delete_unit_state", func(ctx context.Context) error {
		return r.repo.DeleteUnitState(unitID)
	})
}

func (r *InstrumentedCatalogRepository) DeleteItem(itemID string) error {
	return r.telemetry.InstrumentDBOperation(context.Background(), "delete_item", func(ctx context.Context) error {
		return r.repo.DeleteItem(itemID)
	})
}

func (r *InstrumentedCatalogRepository) LoadPendingUnits(itemID string) ([]storage.UnitRecord, error) {
	var result []storage.UnitRecord

	var err error

	instrumentedErr := r.telemetry.InstrumentDBOperation(context.Background(), "load_pending_units", func(ctx context.Context) error {
		result, err = r.repo.LoadPendingUnits(itemID)

		return err
	})

	if instrumentedErr != nil {
		return nil, instrumentedErr
	}

	return result, nil
}

func (r *InstrumentedCatalogRepository) LoadUnits(itemID string) ([]storage.UnitRecord, error) {
	var result []storage.UnitRecord

	var err error

	instrumentedErr := r.telemetry.InstrumentDBOperation(context.Background(), "load_units", func(ctx context.Context) error {
		result, err = r.repo.LoadUnits(itemID)

		return err
	})

	if instrumentedErr != nil {
		return nil, instrumentedErr
	}

	return result, nil
}

func (r *InstrumentedCatalogRepository) LoadCompletedUnits() ([]storage.UnitRecord, error) {
	var result []storage.UnitRecord

	var err error

	instrumentedErr := r.telemetry.InstrumentDBOperation(context.Background(), "load_completed_units", func(ctx context.Context) error {
		result, err = r.repo.LoadCompletedUnits()

		return err
	})

	if instrumentedErr != nil {
		return nil, instrumentedErr
	}

	return result, nil
}

func (r *InstrumentedCatalogRepository) LoadItems() ([]string, error) {
	var result []string

	var err error

	instrumentedErr := r.telemetry.InstrumentDBOperation(context.Background(), "load_items", func(ctx context.Context) error {
		result, err = r.repo.LoadItems()

		return err
	})

	if instrumentedErr != nil {
		return nil, instrumentedErr
	}

	return result, nil
}
