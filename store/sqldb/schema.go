package sqldb

import "strings"

// Schema renders the DDL with the engine's auto-increment primary key clause,
// e.g. "INTEGER PRIMARY KEY AUTOINCREMENT" or "BIGSERIAL PRIMARY KEY".
func Schema(primaryKey string) []string {
	stmts := make([]string, len(schema))
	for i, s := range schema {
		stmts[i] = strings.ReplaceAll(s, "{{pk}}", primaryKey)
	}
	return stmts
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS counties (
		id {{pk}},
		name TEXT NOT NULL UNIQUE,
		created_at TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS wards (
		id {{pk}},
		county_id BIGINT NOT NULL REFERENCES counties(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		created_at TEXT NOT NULL,
		UNIQUE (county_id, name)
	)`,

	`CREATE TABLE IF NOT EXISTS localities (
		id {{pk}},
		ward_id BIGINT NOT NULL REFERENCES wards(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		created_at TEXT NOT NULL,
		UNIQUE (ward_id, name)
	)`,

	`CREATE TABLE IF NOT EXISTS farmers (
		id {{pk}},
		username TEXT NOT NULL UNIQUE,
		email TEXT,
		contact_number TEXT,
		created_at TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS farms (
		id {{pk}},
		farmer_id BIGINT NOT NULL REFERENCES farmers(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		locality_id BIGINT REFERENCES localities(id) ON DELETE SET NULL,
		created_at TEXT NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_farms_locality ON farms(locality_id)`,

	`CREATE TABLE IF NOT EXISTS cig_groups (
		id {{pk}},
		locality_id BIGINT NOT NULL REFERENCES localities(id) ON DELETE CASCADE,
		commodity TEXT NOT NULL,
		seq INTEGER NOT NULL CHECK (seq > 0),
		member_count INTEGER NOT NULL DEFAULT 0 CHECK (member_count >= 0),
		created_at TEXT NOT NULL,
		UNIQUE (locality_id, commodity, seq)
	)`,

	`CREATE TABLE IF NOT EXISTS produce (
		id {{pk}},
		farm_id BIGINT NOT NULL REFERENCES farms(id) ON DELETE CASCADE,
		locality_id BIGINT REFERENCES localities(id) ON DELETE SET NULL,
		commodity TEXT NOT NULL,
		quantity TEXT NOT NULL,
		group_id BIGINT REFERENCES cig_groups(id) ON DELETE SET NULL,
		assigned_at TEXT,
		created_at TEXT NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_produce_group ON produce(group_id, assigned_at)`,
	`CREATE INDEX IF NOT EXISTS idx_produce_farm ON produce(farm_id)`,
	`CREATE INDEX IF NOT EXISTS idx_produce_locality ON produce(locality_id, commodity)`,

	`CREATE TABLE IF NOT EXISTS cycles (
		id TEXT PRIMARY KEY,
		group_id BIGINT NOT NULL REFERENCES cig_groups(id) ON DELETE CASCADE,
		period_start TEXT NOT NULL,
		period_end TEXT NOT NULL,
		total_units TEXT NOT NULL,
		status TEXT NOT NULL,
		closed_at TEXT,
		created_at TEXT NOT NULL,
		UNIQUE (group_id, period_start)
	)`,

	// At most one open cycle per group.
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_cycles_open ON cycles(group_id) WHERE status = 'open'`,
}
