package store

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
)

const sqliteSchemaVersion = 1

type sqliteColumn struct {
	Name        string
	Type        string
	NotNull     bool
	DefaultText string
}

// migrateSQLite upgrades tables created before the operator flag and the
// configurable column existed. Fresh databases are left to the schema.
func migrateSQLite(ctx context.Context, db *sql.DB) error {
	userVersion, err := sqliteUserVersion(ctx, db)
	if err != nil {
		return fmt.Errorf("sqlite: user_version: %w", err)
	}
	log.Printf("store: sqlite: path=%s user_version=%d", sqlitePath(ctx, db), userVersion)
	if userVersion >= sqliteSchemaVersion {
		return nil
	}

	adds := []struct {
		table  string
		column string
		ddl    string
	}{
		{"user_profiles", "is_operator", `ALTER TABLE user_profiles ADD COLUMN is_operator INTEGER NOT NULL DEFAULT 0;`},
		{"group_configs", "configurable", `ALTER TABLE group_configs ADD COLUMN configurable INTEGER NOT NULL DEFAULT 0;`},
		{"group_configs", "group_link", `ALTER TABLE group_configs ADD COLUMN group_link TEXT NOT NULL DEFAULT '';`},
	}
	for _, add := range adds {
		columns, err := sqliteTableInfo(ctx, db, add.table)
		if err != nil {
			return fmt.Errorf("sqlite: describe %s: %w", add.table, err)
		}
		if len(columns) == 0 {
			continue
		}
		if _, ok := columns[add.column]; ok {
			continue
		}
		if _, err := db.ExecContext(ctx, add.ddl); err != nil {
			return fmt.Errorf("sqlite: add %s.%s: %w", add.table, add.column, err)
		}
		log.Printf("store: sqlite: added %s column to %s", add.column, add.table)
	}

	normalize := []struct {
		table string
		query string
		label string
	}{
		{"user_profiles", `UPDATE user_profiles SET username='' WHERE username IS NULL;`, "username"},
		{"user_profiles", `UPDATE user_profiles SET nickname='' WHERE nickname IS NULL;`, "nickname"},
		{"group_configs", `UPDATE group_configs SET group_name='' WHERE group_name IS NULL;`, "group_name"},
		{"group_configs", `UPDATE group_configs SET group_id=TRIM(group_id) WHERE group_id != TRIM(group_id);`, "group_id"},
	}
	for _, step := range normalize {
		columns, err := sqliteTableInfo(ctx, db, step.table)
		if err != nil {
			return fmt.Errorf("sqlite: describe %s: %w", step.table, err)
		}
		if len(columns) == 0 {
			continue
		}
		res, err := db.ExecContext(ctx, step.query)
		if err != nil {
			return fmt.Errorf("sqlite: normalize %s: %w", step.label, err)
		}
		if n, err := res.RowsAffected(); err == nil && n > 0 {
			log.Printf("store: sqlite: normalized %s rows=%d", step.label, n)
		}
	}

	if _, err := db.ExecContext(ctx, fmt.Sprintf(`PRAGMA user_version=%d;`, sqliteSchemaVersion)); err != nil {
		return fmt.Errorf("sqlite: set user_version: %w", err)
	}
	return nil
}

func sqlitePath(ctx context.Context, db *sql.DB) string {
	rows, err := db.QueryContext(ctx, `PRAGMA database_list;`)
	if err != nil {
		return "(unknown)"
	}
	defer rows.Close()

	for rows.Next() {
		var (
			seq  int
			name string
			file sql.NullString
		)
		if err := rows.Scan(&seq, &name, &file); err != nil {
			return "(unknown)"
		}
		if strings.EqualFold(strings.TrimSpace(name), "main") {
			if file.Valid && strings.TrimSpace(file.String) != "" {
				return file.String
			}
			return "(memory)"
		}
	}
	return "(unknown)"
}

func sqliteUserVersion(ctx context.Context, db *sql.DB) (int, error) {
	var v int
	if err := db.QueryRowContext(ctx, `PRAGMA user_version;`).Scan(&v); err != nil {
		return 0, err
	}
	return v, nil
}

func sqliteTableInfo(ctx context.Context, db *sql.DB, table string) (map[string]sqliteColumn, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info(%s);`, table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]sqliteColumn)
	for rows.Next() {
		var (
			cid        int
			name       string
			colType    string
			notNull    int
			defaultVal sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &defaultVal, &pk); err != nil {
			return nil, err
		}
		out[strings.ToLower(name)] = sqliteColumn{
			Name:        name,
			Type:        colType,
			NotNull:     notNull != 0,
			DefaultText: defaultVal.String,
		}
	}
	return out, rows.Err()
}
