package inmem

import (
	"sync"
	"time"

	"github.com/mediastash/offline_downloader/internal/storage"
)

// Catalog is an in-memory storage.CatalogRepository. It backs tests and DB-less
// runs; state does not survive a restart.
type Catalog struct {
	mu    sync.RWMutex
	units []storage.UnitRecord
}

func NewCatalog() *Catalog {
	return &Catalog{}
}

func (c *Catalog) TrackUnit(record storage.UnitRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	record.UpdatedAt = time.Now().Format(time.RFC3339)

	for i := range c.units {
		if c.units[i].UnitID == record.UnitID {
			// Keep the byte offset; refresh the binding.
			c.units[i].ItemID = record.ItemID
			c.units[i].TrackRef = record.TrackRef
			c.units[i].SourceURL = record.SourceURL
			c.units[i].UpdatedAt = record.UpdatedAt

			return nil
		}
	}

	c.units = append(c.units, record)

	return nil
}

func (c *Catalog) PersistUnitState(unitID, status string, bytesDone int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.units {
		if c.units[i].UnitID == unitID {
			c.units[i].Status = status
			c.units[i].BytesDone = bytesDone
			c.units[i].UpdatedAt = time.Now().Format(time.RFC3339)

			return nil
		}
	}

	return storage.ErrNotFound
}

func (c *Catalog) DeleteUnitState(unitID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.units {
		if c.units[i].UnitID == unitID {
			c.units = append(c.units[:i], c.units[i+1:]...)

			return nil
		}
	}

	return nil
}

func (c *Catalog) DeleteItem(itemID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	kept := c.units[:0]

	for _, u := range c.units {
		if u.ItemID != itemID {
			kept = append(kept, u)
		}
	}

	c.units = kept

	return nil
}

func (c *Catalog) LoadPendingUnits(itemID string) ([]storage.UnitRecord, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var pending []storage.UnitRecord

	for _, u := range c.units {
		if u.ItemID == itemID && u.Status != "completed" {
			pending = append(pending, u)
		}
	}

	return pending, nil
}

func (c *Catalog) LoadUnits(itemID string) ([]storage.UnitRecord, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var units []storage.UnitRecord

	for _, u := range c.units {
		if u.ItemID == itemID {
			units = append(units, u)
		}
	}

	return units, nil
}

func (c *Catalog) LoadCompletedUnits() ([]storage.UnitRecord, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var completed []storage.UnitRecord

	for _, u := range c.units {
		if u.Status == "completed" {
			completed = append(completed, u)
		}
	}

	return completed, nil
}

func (c *Catalog) LoadItems() ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	seen := make(map[string]bool)

	var items []string

	for _, u := range c.units {
		if u.Status != "completed" && !seen[u.ItemID] {
			seen[u.ItemID] = true

			items = append(items, u.ItemID)
		}
	}

	return items, nil
}
