package sqlite

import (
	"database/sql"

	// Import the SQLite driver.
	_ "github.com/mattn/go-sqlite3"
)

// InitDB opens the SQLite database at dbPath and creates the units table if it
// doesn't exist.
func InitDB(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS units (
		unit_id TEXT PRIMARY KEY,
		item_id TEXT NOT NULL,
		track_ref TEXT,
		source_url TEXT NOT NULL,
		target_path TEXT NOT NULL,
		bytes_done INTEGER DEFAULT 0,
		status TEXT DEFAULT 'idle',
		updated_at DATETIME
	)`)

	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_units_item ON units (item_id)`)
	if err != nil {
		return nil, err
	}

	return db, nil
}
