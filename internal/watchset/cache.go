package watchset

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const DefaultInterval = 60 * time.Second

// Source fetches every conversation id currently flagged as watched.
type Source interface {
	WatchedGroupIDs(ctx context.Context) ([]string, error)
}

// Observer receives refresh outcomes; metrics implement it.
type Observer interface {
	ObserveWatchRefresh(size int, err error)
}

type snapshot struct {
	ids      map[string]struct{}
	loadedAt time.Time
}

func (s *snapshot) Contains(id string) bool {
	if s == nil {
		return false
	}
	_, ok := s.ids[id]
	return ok
}

// Snapshot describes the installed set.
type Snapshot struct {
	Size     int       `json:"size"`
	LoadedAt time.Time `json:"loaded_at"`
}

// Cache holds the current watched set. Readers never lock; the set is
// replaced wholesale by a single pointer swap.
type Cache struct {
	source   Source
	interval time.Duration
	observer Observer

	current atomic.Pointer[snapshot]

	// serializes fetch-and-swap between the loop, admin and file triggers
	refreshMu sync.Mutex
}

type Options struct {
	Interval time.Duration
	Observer Observer
}

func New(source Source, opts Options) *Cache {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Cache{source: source, interval: interval, observer: opts.Observer}
}

// Load blocks until the full set is fetched and installed.
func (c *Cache) Load(ctx context.Context) error {
	n, err := c.Refresh(ctx)
	if err != nil {
		return fmt.Errorf("watchset: initial load: %w", err)
	}
	log.Printf("watchset: loaded %d watched conversations", n)
	return nil
}

// Refresh runs one fetch-and-swap cycle. On error the previous set stays
// installed.
func (c *Cache) Refresh(ctx context.Context) (int, error) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	ids, err := c.source.WatchedGroupIDs(ctx)
	if err != nil {
		if c.observer != nil {
			c.observer.ObserveWatchRefresh(c.Size(), err)
		}
		return 0, err
	}

	next := &snapshot{
		ids:      make(map[string]struct{}, len(ids)),
		loadedAt: time.Now().UTC(),
	}
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		next.ids[id] = struct{}{}
	}
	c.current.Store(next)

	if c.observer != nil {
		c.observer.ObserveWatchRefresh(len(next.ids), nil)
	}
	return len(next.ids), nil
}

// RefreshLoop refreshes every interval until ctx ends.
func (c *Cache) RefreshLoop(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := c.Refresh(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Printf("watchset: refresh failed, keeping %d ids: %v", c.Size(), err)
				continue
			}
			log.Printf("watchset: refreshed, %d watched conversations", n)
		}
	}
}

// Contains reports whether id is in the installed set.
func (c *Cache) Contains(id string) bool {
	return c.current.Load().Contains(id)
}

// IsWatched applies the encoding-agnostic lookup against the installed set.
// The snapshot is taken once so all encodings are tested against the same set.
func (c *Cache) IsWatched(raw int64) bool {
	s := c.current.Load()
	if s == nil {
		return false
	}
	return IsWatched(s, raw)
}

func (c *Cache) Size() int {
	s := c.current.Load()
	if s == nil {
		return 0
	}
	return len(s.ids)
}

func (c *Cache) Snapshot() Snapshot {
	s := c.current.Load()
	if s == nil {
		return Snapshot{}
	}
	return Snapshot{Size: len(s.ids), LoadedAt: s.loadedAt}
}
