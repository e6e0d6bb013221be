package storage

import (
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Migrate runs all database migrations
func Migrate(db *sqlx.DB) error {
	migrations := []string{
		createRelaysTable,
		createConnectionsTable,
		createIndexes,
	}

	for i, migration := range migrations {
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}

const createRelaysTable = `
CREATE TABLE IF NOT EXISTS relays (
    id TEXT PRIMARY KEY,
    source_network TEXT NOT NULL,
    source_channel TEXT NOT NULL,
    destination_network TEXT NOT NULL,
    destination_channel TEXT NOT NULL,
    nick TEXT NOT NULL DEFAULT '',
    kinds TEXT NOT NULL DEFAULT '',
    content TEXT NOT NULL DEFAULT '',
    response TEXT NOT NULL DEFAULT '',
    timestamp TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

const createConnectionsTable = `
CREATE TABLE IF NOT EXISTS connections (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    network TEXT NOT NULL,
    server TEXT NOT NULL DEFAULT '',
    event TEXT NOT NULL,
    detail TEXT NOT NULL DEFAULT '',
    timestamp TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

const createIndexes = `
CREATE INDEX IF NOT EXISTS idx_relays_source_time ON relays(source_network, timestamp);
CREATE INDEX IF NOT EXISTS idx_relays_destination_time ON relays(destination_network, timestamp);
CREATE INDEX IF NOT EXISTS idx_connections_network_time ON connections(network, timestamp);
`
