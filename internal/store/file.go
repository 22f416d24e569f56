package store

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/you/groupwatch/internal/core"
)

type fileDoc struct {
	Groups   []core.GroupConfig `yaml:"groups"`
	Profiles []core.Profile     `yaml:"profiles"`
}

// FileStore serves groups and profiles from a YAML document. The file is
// re-read whenever its size or modification time changes. Writes return
// ErrReadOnly.
type FileStore struct {
	path string

	mu       sync.RWMutex
	modTime  time.Time
	size     int64
	groups   []core.GroupConfig
	profiles map[string]core.Profile
}

func OpenFile(path string) (*FileStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("store: file path is required")
	}
	s := &FileStore{path: path}
	if err := s.reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the backing file, for change watching.
func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Kind() string { return KindFile }

func (s *FileStore) Close() error { return nil }

func (s *FileStore) Ping(context.Context) error {
	_, err := os.Stat(s.path)
	return errors.Wrap(err, "stat store file")
}

func (s *FileStore) String() string {
	return fmt.Sprintf("FileStore{%s}", s.path)
}

func (s *FileStore) reload() error {
	info, err := os.Stat(s.path)
	if err != nil {
		return errors.Wrap(err, "stat store file")
	}

	s.mu.RLock()
	fresh := info.ModTime().Equal(s.modTime) && info.Size() == s.size && s.profiles != nil
	s.mu.RUnlock()
	if fresh {
		return nil
	}

	raw, err := os.ReadFile(s.path)
	if err != nil {
		return errors.Wrap(err, "read store file")
	}
	var doc fileDoc
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return errors.Wrapf(err, "parse %s", s.path)
	}

	profiles := make(map[string]core.Profile, len(doc.Profiles))
	for _, p := range doc.Profiles {
		p.UserID = strings.TrimSpace(p.UserID)
		if p.UserID == "" {
			continue
		}
		profiles[p.UserID] = p
	}
	groups := make([]core.GroupConfig, 0, len(doc.Groups))
	for _, g := range doc.Groups {
		g.GroupID = strings.TrimSpace(g.GroupID)
		if g.GroupID == "" {
			continue
		}
		groups = append(groups, g)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].GroupID < groups[j].GroupID })

	s.mu.Lock()
	s.modTime = info.ModTime()
	s.size = info.Size()
	s.groups = groups
	s.profiles = profiles
	s.mu.Unlock()
	return nil
}

func (s *FileStore) WatchedGroupIDs(context.Context) ([]string, error) {
	if err := s.reload(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.groups))
	for _, g := range s.groups {
		if g.IsWatched {
			ids = append(ids, g.GroupID)
		}
	}
	return ids, nil
}

func (s *FileStore) ProfileByUserID(_ context.Context, userID string) (core.Profile, bool, error) {
	if err := s.reload(); err != nil {
		return core.Profile{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[strings.TrimSpace(userID)]
	return p, ok, nil
}

func (s *FileStore) ListGroups(context.Context) ([]core.GroupConfig, error) {
	if err := s.reload(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]core.GroupConfig(nil), s.groups...), nil
}

func (s *FileStore) UpsertGroup(context.Context, core.GroupConfig) error { return ErrReadOnly }

func (s *FileStore) UpsertProfile(context.Context, core.Profile) error { return ErrReadOnly }
