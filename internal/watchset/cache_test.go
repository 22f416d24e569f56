package watchset

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type stubSource struct {
	mu    sync.Mutex
	ids   []string
	err   error
	calls int
}

func (s *stubSource) WatchedGroupIDs(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return append([]string(nil), s.ids...), nil
}

func (s *stubSource) set(ids []string, err error) {
	s.mu.Lock()
	s.ids = ids
	s.err = err
	s.mu.Unlock()
}

func (s *stubSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type recordingObserver struct {
	mu     sync.Mutex
	sizes  []int
	errors int
}

func (r *recordingObserver) ObserveWatchRefresh(size int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sizes = append(r.sizes, size)
	if err != nil {
		r.errors++
	}
}

func TestLoadInstallsSet(t *testing.T) {
	src := &stubSource{ids: []string{"-100123456789", " 42 ", ""}}
	obs := &recordingObserver{}
	c := New(src, Options{Observer: obs})

	if c.IsWatched(123456789) {
		t.Fatalf("expected empty cache before Load")
	}
	if err := c.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Size() != 2 {
		t.Fatalf("expected 2 ids, got %d", c.Size())
	}
	if !c.IsWatched(123456789) {
		t.Fatalf("expected supergroup encoding to match")
	}
	if !c.Contains("42") {
		t.Fatalf("expected trimmed id to be stored")
	}
	if snap := c.Snapshot(); snap.Size != 2 || snap.LoadedAt.IsZero() {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if len(obs.sizes) != 1 || obs.sizes[0] != 2 {
		t.Fatalf("unexpected observer sizes %v", obs.sizes)
	}
}

func TestLoadFailureIsReported(t *testing.T) {
	src := &stubSource{err: errors.New("store down")}
	c := New(src, Options{})
	err := c.Load(context.Background())
	if err == nil || !strings.Contains(err.Error(), "store down") {
		t.Fatalf("expected wrapped store error, got %v", err)
	}
}

func TestRefreshFailureKeepsPreviousSet(t *testing.T) {
	src := &stubSource{ids: []string{"1", "2"}}
	obs := &recordingObserver{}
	c := New(src, Options{Observer: obs})
	if err := c.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	src.set(nil, errors.New("timeout"))
	if _, err := c.Refresh(context.Background()); err == nil {
		t.Fatalf("expected refresh error")
	}
	if !c.Contains("1") || !c.Contains("2") {
		t.Fatalf("expected stale set to remain installed")
	}
	if obs.errors != 1 {
		t.Fatalf("expected one observed error, got %d", obs.errors)
	}

	src.set([]string{"3"}, nil)
	if _, err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if c.Contains("1") || !c.Contains("3") {
		t.Fatalf("expected wholesale replacement")
	}
}

func TestRefreshLoopRunsOnInterval(t *testing.T) {
	src := &stubSource{ids: []string{"1"}}
	c := New(src, Options{Interval: 10 * time.Millisecond})
	if err := c.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.RefreshLoop(ctx)
		close(done)
	}()

	src.set([]string{"2"}, nil)
	deadline := time.Now().Add(2 * time.Second)
	for !c.Contains("2") {
		if time.Now().After(deadline) {
			t.Fatalf("refresh loop never installed the new set")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("refresh loop did not exit on cancel")
	}
}

// Each generation contains only ids tagged with its own generation number,
// so a reader that saw a mixed set would find two different tags.
type generationSource struct {
	gen atomic.Int64
}

func (g *generationSource) WatchedGroupIDs(context.Context) ([]string, error) {
	n := g.gen.Add(1)
	ids := make([]string, 50)
	for i := range ids {
		ids[i] = fmt.Sprintf("%d:%d", n, i)
	}
	return ids, nil
}

func TestReadersNeverSeeMixedGenerations(t *testing.T) {
	c := New(&generationSource{}, Options{})
	if err := c.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for ctx.Err() == nil {
			_, _ = c.Refresh(ctx)
		}
	}()

	for i := 0; i < 2000; i++ {
		s := c.current.Load()
		gens := make(map[string]struct{})
		for id := range s.ids {
			gens[strings.SplitN(id, ":", 2)[0]] = struct{}{}
		}
		if len(gens) != 1 || len(s.ids) != 50 {
			cancel()
			wg.Wait()
			t.Fatalf("observed mixed or partial set: generations=%d size=%d", len(gens), len(s.ids))
		}
	}
	cancel()
	wg.Wait()
}

func TestWatchFilesTriggersRefresh(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "watch.yaml")
	if err := os.WriteFile(path, []byte("watched: []\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	src := &stubSource{ids: []string{"1"}}
	c := New(src, Options{})
	if err := c.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := c.WatchFiles(ctx, path); err != nil {
		t.Fatalf("WatchFiles: %v", err)
	}

	src.set([]string{"9"}, nil)
	if err := os.WriteFile(path, []byte("watched: [\"9\"]\n"), 0o600); err != nil {
		t.Fatalf("rewrite: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for !c.Contains("9") {
		if time.Now().After(deadline) {
			t.Fatalf("file change did not trigger refresh (calls=%d)", src.Calls())
		}
		time.Sleep(10 * time.Millisecond)
	}
}
