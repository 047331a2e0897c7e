package sqlite

// schema is applied in order by Migrate. Every statement is idempotent.
// Timestamps are stored as fixed-width UTC text so they order lexically.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS datasets (
		id          TEXT PRIMARY KEY,
		name        TEXT NOT NULL DEFAULT '',
		title       TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		user_ref    TEXT NOT NULL DEFAULT '',
		sheet_index INTEGER NOT NULL DEFAULT 0,
		options     TEXT NOT NULL DEFAULT '{}',
		imports     TEXT NOT NULL DEFAULT '[]',
		created_at  TEXT NOT NULL,
		updated_at  TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS datasets_name_sheet_idx ON datasets (name, sheet_index)`,
	`CREATE INDEX IF NOT EXISTS datasets_created_at_idx ON datasets (created_at)`,
	`CREATE TABLE IF NOT EXISTS data_rows (
		id         TEXT PRIMARY KEY,
		dataset_id TEXT NOT NULL,
		import_id  TEXT NOT NULL,
		data       TEXT NOT NULL DEFAULT '{}'
	)`,
	`CREATE INDEX IF NOT EXISTS data_rows_dataset_import_idx ON data_rows (dataset_id, import_id)`,
}
