package store

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS group_configs (
  group_id TEXT PRIMARY KEY,
  group_name TEXT NOT NULL DEFAULT '',
  group_link TEXT NOT NULL DEFAULT '',
  is_watched INTEGER NOT NULL DEFAULT 0,
  configurable INTEGER NOT NULL DEFAULT 0
);`,
	`CREATE TABLE IF NOT EXISTS user_profiles (
  user_id TEXT PRIMARY KEY,
  username TEXT NOT NULL DEFAULT '',
  nickname TEXT NOT NULL DEFAULT '',
  is_operator INTEGER NOT NULL DEFAULT 0
);`,
	`CREATE INDEX IF NOT EXISTS group_configs_watched ON group_configs(is_watched);`,
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(ctx context.Context, path string) (Store, error) {
	if path == "" {
		path = "groupwatch.db"
	}
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	if err := migrateSQLite(ctx, db.DB); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "migrate sqlite")
	}
	for _, stmt := range sqliteSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, errors.Wrap(err, "apply schema")
		}
	}
	if _, err := db.ExecContext(ctx, `PRAGMA journal_mode=wal;`); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "set WAL")
	}
	ApplySQLitePragmas(ctx, db.DB)
	return &sqlStore{db: db, kind: KindSQLite}, nil
}
