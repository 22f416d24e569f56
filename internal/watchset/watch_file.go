package watchset

import (
	"context"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"
)

const fileDebounce = 250 * time.Millisecond

// WatchFiles triggers a Refresh whenever one of paths changes on disk.
// Bursts of events are debounced into a single refresh.
func (c *Cache) WatchFiles(ctx context.Context, paths ...string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	added := false
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := w.Add(p); err != nil {
			slog.Error("watchset: watch add", "path", p, "err", err)
			continue
		}
		added = true
	}
	if !added {
		w.Close()
		return nil
	}

	go func() {
		defer w.Close()
		debounce := time.NewTimer(0)
		if !debounce.Stop() {
			<-debounce.C
		}
		for {
			select {
			case <-ctx.Done():
				debounce.Stop()
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				// editors replace files by rename; re-arm the watch on the new inode
				if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
					if err := w.Add(ev.Name); err != nil {
						slog.Error("watchset: watch re-add", "path", ev.Name, "err", err)
					}
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
					if !debounce.Stop() {
						select {
						case <-debounce.C:
						default:
						}
					}
					debounce.Reset(fileDebounce)
				}
			case <-debounce.C:
				n, err := c.Refresh(ctx)
				if err != nil {
					slog.Error("watchset: file-triggered refresh failed", "err", err)
					continue
				}
				slog.Info("watchset: file changed, refreshed", "size", n)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				slog.Error("watchset: watch error", "err", err)
			}
		}
	}()
	return nil
}
