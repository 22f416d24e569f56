package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/you/groupwatch/internal/core"
)

// sqlStore implements Store over any sqlx connection. Queries are written
// with ? placeholders and rebound for the driver.
type sqlStore struct {
	db   *sqlx.DB
	kind string
}

func (s *sqlStore) Kind() string { return s.kind }

func (s *sqlStore) Close() error { return s.db.Close() }

func (s *sqlStore) Ping(ctx context.Context) error {
	return errors.Wrap(s.db.PingContext(ctx), "ping")
}

func (s *sqlStore) String() string {
	return fmt.Sprintf("%sStore{%p}", s.kind, s.db)
}

func (s *sqlStore) WatchedGroupIDs(ctx context.Context) ([]string, error) {
	var ids []string
	q := s.db.Rebind(`SELECT group_id FROM group_configs WHERE is_watched = ?`)
	if err := s.db.SelectContext(ctx, &ids, q, true); err != nil {
		return nil, errors.Wrap(err, "select watched groups")
	}
	return ids, nil
}

func (s *sqlStore) ProfileByUserID(ctx context.Context, userID string) (core.Profile, bool, error) {
	var p core.Profile
	q := s.db.Rebind(`SELECT user_id,
  COALESCE(username, '') AS username,
  COALESCE(nickname, '') AS nickname,
  is_operator
FROM user_profiles WHERE user_id = ?`)
	err := s.db.GetContext(ctx, &p, q, strings.TrimSpace(userID))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Profile{}, false, nil
	}
	if err != nil {
		return core.Profile{}, false, errors.Wrap(err, "select profile")
	}
	return p, true, nil
}

func (s *sqlStore) ListGroups(ctx context.Context) ([]core.GroupConfig, error) {
	var groups []core.GroupConfig
	const q = `SELECT group_id,
  COALESCE(group_name, '') AS group_name,
  COALESCE(group_link, '') AS group_link,
  is_watched,
  configurable
FROM group_configs ORDER BY group_id`
	if err := s.db.SelectContext(ctx, &groups, q); err != nil {
		return nil, errors.Wrap(err, "list groups")
	}
	return groups, nil
}

func (s *sqlStore) UpsertGroup(ctx context.Context, g core.GroupConfig) error {
	if err := validateGroup(g); err != nil {
		return err
	}
	q := s.db.Rebind(`INSERT INTO group_configs (group_id, group_name, group_link, is_watched, configurable)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (group_id) DO UPDATE SET
  group_name = excluded.group_name,
  group_link = excluded.group_link,
  is_watched = excluded.is_watched,
  configurable = excluded.configurable`)
	_, err := s.db.ExecContext(ctx, q, strings.TrimSpace(g.GroupID), g.GroupName, g.GroupLink, g.IsWatched, g.Configurable)
	return errors.Wrap(err, "upsert group")
}

func (s *sqlStore) UpsertProfile(ctx context.Context, p core.Profile) error {
	if err := validateProfile(p); err != nil {
		return err
	}
	q := s.db.Rebind(`INSERT INTO user_profiles (user_id, username, nickname, is_operator)
VALUES (?, ?, ?, ?)
ON CONFLICT (user_id) DO UPDATE SET
  username = excluded.username,
  nickname = excluded.nickname,
  is_operator = excluded.is_operator`)
	_, err := s.db.ExecContext(ctx, q, strings.TrimSpace(p.UserID), p.Username, p.Nickname, p.IsOperator)
	return errors.Wrap(err, "upsert profile")
}
