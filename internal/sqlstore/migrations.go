package sqlstore

func (s Storage) RunMigrations() error {
	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return err
		}
	}
	return nil
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS events (
		id VARCHAR(255) NOT NULL PRIMARY KEY,
		owner_key VARCHAR(255) NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		start_iso VARCHAR(64) NOT NULL,
		end_iso VARCHAR(64) NOT NULL,
		start_ms BIGINT NOT NULL,
		end_ms BIGINT NOT NULL,
		all_day BOOLEAN NOT NULL DEFAULT FALSE,
		time_zone VARCHAR(64) NOT NULL DEFAULT '',
		color VARCHAR(64) NOT NULL DEFAULT '',
		CHECK (end_ms > start_ms)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_events_owner_start ON events (owner_key, start_ms)`,
	`CREATE TABLE IF NOT EXISTS linkages (
		owner_key VARCHAR(255) NOT NULL PRIMARY KEY,
		provider VARCHAR(64) NOT NULL,
		remote_account VARCHAR(255) NOT NULL DEFAULT '',
		access_token TEXT NOT NULL DEFAULT '',
		refresh_token TEXT NOT NULL DEFAULT '',
		token_expiry BIGINT NOT NULL DEFAULT 0,
		sync_cursor TEXT NOT NULL DEFAULT '',
		watch_channel_id VARCHAR(255) NULL DEFAULT NULL,
		watch_resource_id VARCHAR(255) NOT NULL DEFAULT '',
		watch_expiry BIGINT NOT NULL DEFAULT 0,
		updated_at BIGINT NOT NULL DEFAULT 0
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_linkages_channel ON linkages (watch_channel_id)`,
}
