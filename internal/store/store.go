// Package store provides the config store (watched groups) and the profile
// store (operator-managed identities) behind one interface.
package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/you/groupwatch/internal/core"
)

// ErrReadOnly is returned by writes against a backend that cannot persist.
var ErrReadOnly = errors.New("store: read-only backend")

type Store interface {
	// WatchedGroupIDs returns the ids of every group flagged watched.
	WatchedGroupIDs(ctx context.Context) ([]string, error)
	// ProfileByUserID returns the profile for userID, if any.
	ProfileByUserID(ctx context.Context, userID string) (core.Profile, bool, error)
	ListGroups(ctx context.Context) ([]core.GroupConfig, error)
	UpsertGroup(ctx context.Context, group core.GroupConfig) error
	UpsertProfile(ctx context.Context, p core.Profile) error
	Ping(ctx context.Context) error
	Kind() string
	Close() error
}

const (
	KindSQLite   = "sqlite"
	KindPostgres = "postgres"
	KindFile     = "file"
)

type Options struct {
	Kind        string
	SQLitePath  string
	PostgresURL string
	FilePath    string
}

// Open connects the backend named by opts.Kind and ensures its schema.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Kind)) {
	case "", KindSQLite:
		return OpenSQLite(ctx, opts.SQLitePath)
	case KindPostgres:
		return OpenPostgres(ctx, opts.PostgresURL)
	case KindFile:
		fs, err := OpenFile(opts.FilePath)
		if err != nil {
			return nil, err
		}
		return fs, nil
	default:
		return nil, fmt.Errorf("store: unknown kind %q", opts.Kind)
	}
}

func validateGroup(g core.GroupConfig) error {
	if strings.TrimSpace(g.GroupID) == "" {
		return errors.New("store: group id is required")
	}
	return nil
}

func validateProfile(p core.Profile) error {
	if strings.TrimSpace(p.UserID) == "" {
		return errors.New("store: user id is required")
	}
	return nil
}
