package postgres

// schema is applied in order by Migrate. Every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS datasets (
		id          uuid PRIMARY KEY,
		name        text NOT NULL DEFAULT '',
		title       text NOT NULL DEFAULT '',
		description text NOT NULL DEFAULT '',
		user_ref    text NOT NULL DEFAULT '',
		sheet_index integer NOT NULL DEFAULT 0,
		options     jsonb NOT NULL DEFAULT '{}'::jsonb,
		imports     jsonb NOT NULL DEFAULT '[]'::jsonb,
		created_at  timestamptz NOT NULL,
		updated_at  timestamptz NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS datasets_name_sheet_idx ON datasets (name, sheet_index)`,
	`CREATE INDEX IF NOT EXISTS datasets_created_at_idx ON datasets (created_at)`,
	`CREATE TABLE IF NOT EXISTS data_rows (
		id         uuid PRIMARY KEY,
		dataset_id uuid NOT NULL,
		import_id  uuid NOT NULL,
		data       jsonb NOT NULL DEFAULT '{}'::jsonb
	)`,
	`CREATE INDEX IF NOT EXISTS data_rows_dataset_import_idx ON data_rows (dataset_id, import_id)`,
}
