package sqlite

import (
	"database/sql"
	"time"

	"github.com/mediastash/offline_downloader/internal/storage"
)

// CatalogRepository stores unit records in SQLite.
type CatalogRepository struct {
	db *sql.DB
}

func NewCatalogRepository(dbConn *sql.DB) *CatalogRepository {
	return &CatalogRepository{db: dbConn}
}

// TrackUnit inserts a unit record, or refreshes its source and item binding while
// keeping the byte offset if the unit already exists.
func (r *CatalogRepository) TrackUnit(record storage.UnitRecord) error {
	_, err := r.db.Exec(`
		INSERT INTO units (unit_id, item_id, track_ref, source_url, target_path, bytes_done, status, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(unit_id) DO UPDATE SET
			item_id = excluded.item_id,
			track_ref = excluded.track_ref,
			source_url = excluded.source_url,
			updated_at = excluded.updated_at
	`, record.UnitID, record.ItemID, record.TrackRef, record.SourceURL, record.TargetPath,
		record.BytesDone, record.Status, time.Now().Format(time.RFC3339))

	return err
}

// PersistUnitState updates a unit's status and cumulative byte count.
func (r *CatalogRepository) PersistUnitState(unitID, status string, bytesDone int64) error {
	res, err := r.db.Exec(
		`UPDATE units SET status = ?, bytes_done = ?, updated_at = ? WHERE unit_id = ?`,
		status, bytesDone, time.Now().Format(time.RFC3339), unitID,
	)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}

	if affected == 0 {
		return storage.ErrNotFound
	}

	return nil
}

// DeleteUnitState removes a single unit record.
func (r *CatalogRepository) DeleteUnitState(unitID string) error {
	_, err := r.db.Exec(`DELETE FROM units WHERE unit_id = ?`, unitID)

	return err
}

// DeleteItem removes every unit record belonging to the item.
func (r *CatalogRepository) DeleteItem(itemID string) error {
	_, err := r.db.Exec(`DELETE FROM units WHERE item_id = ?`, itemID)

	return err
}

// LoadPendingUnits returns all non-completed units for the item.
func (r *CatalogRepository) LoadPendingUnits(itemID string) ([]storage.UnitRecord, error) {
	return r.queryUnits(`
		SELECT unit_id, item_id, track_ref, source_url, target_path, bytes_done, status, updated_at
		FROM units
		WHERE item_id = ? AND status != 'completed'
		ORDER BY rowid`, itemID)
}

// LoadUnits returns every unit of the item regardless of status.
func (r *CatalogRepository) LoadUnits(itemID string) ([]storage.UnitRecord, error) {
	return r.queryUnits(`
		SELECT unit_id, item_id, track_ref, source_url, target_path, bytes_done, status, updated_at
		FROM units
		WHERE item_id = ?
		ORDER BY rowid`, itemID)
}

// LoadCompletedUnits returns every completed unit across all items.
func (r *CatalogRepository) LoadCompletedUnits() ([]storage.UnitRecord, error) {
	return r.queryUnits(`
		SELECT unit_id, item_id, track_ref, source_url, target_path, bytes_done, status, updated_at
		FROM units
		WHERE status = 'completed'
		ORDER BY rowid`)
}

// LoadItems returns the ids of all items that still have pending units.
func (r *CatalogRepository) LoadItems() ([]string, error) {
	rows, err := r.db.Query(`SELECT item_id FROM units WHERE status != 'completed' GROUP BY item_id ORDER BY MIN(rowid)`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []string

	for rows.Next() {
		var itemID string
		if err := rows.Scan(&itemID); err != nil {
			return nil, err
		}

		items = append(items, itemID)
	}

	return items, rows.Err()
}

func (r *CatalogRepository) queryUnits(query string, args ...any) ([]storage.UnitRecord, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var units []storage.UnitRecord

	for rows.Next() {
		var record storage.UnitRecord

		var trackRef, updatedAt sql.NullString

		if err := rows.Scan(&record.UnitID, &record.ItemID, &trackRef, &record.SourceURL,
			&record.TargetPath, &record.BytesDone, &record.Status, &updatedAt); err != nil {
			return nil, err
		}

		record.TrackRef = trackRef.String
		record.UpdatedAt = updatedAt.String

		units = append(units, record)
	}

	return units, rows.Err()
}
