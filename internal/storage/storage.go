package storage

import "errors"

// ErrNotFound is returned when a unit or item has no catalog state.
var ErrNotFound = errors.New("storage: not found")

// UnitRecord is the durable state of one transfer unit. The catalog is the sole
// source of truth for reconstructing pending work after a process restart, so a
// record carries everything needed to rebuild the unit: identity, location and the
// last known byte offset.
type UnitRecord struct {
	UnitID     string
	ItemID     string
	TrackRef   string
	SourceURL  string
	TargetPath string
	BytesDone  int64
	Status     string
	UpdatedAt  string
}

// CatalogReadRepository reads unit state back out of the catalog.
type CatalogReadRepository interface {
	// LoadPendingUnits returns all non-completed units for the item, with their
	// last known byte offsets.
	LoadPendingUnits(itemID string) ([]UnitRecord, error)
	// LoadItems returns the ids of all items that still have pending units.
	LoadItems() ([]string, error)
	// LoadUnits returns every unit of the item regardless of status.
	LoadUnits(itemID string) ([]UnitRecord, error)
	// LoadCompletedUnits returns every completed unit across all items.
	LoadCompletedUnits() ([]UnitRecord, error)
}

// CatalogWriteRepository records unit state into the catalog.
type CatalogWriteRepository interface {
	// TrackUnit inserts or refreshes a unit record. Re-tracking an existing unit
	// keeps its byte offset, making enqueue idempotent.
	TrackUnit(record UnitRecord) error
	// PersistUnitState updates a unit's status and cumulative byte count.
	PersistUnitState(unitID, status string, bytesDone int64) error
	// DeleteUnitState removes a single unit record.
	DeleteUnitState(unitID string) error
	// DeleteItem removes every unit record belonging to the item.
	DeleteItem(itemID string) error
}

// CatalogRepository is the full contract the engine needs from the catalog.
type CatalogRepository interface {
	CatalogReadRepository
	CatalogWriteRepository
}
