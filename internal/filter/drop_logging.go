package filter

import (
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/you/groupwatch/internal/core"
)

const (
	dropSummaryInterval = 30 * time.Second
	dropSampleMaxLen    = 48
)

var longTokenRe = regexp.MustCompile(`[A-Za-z0-9+/_=\-]{32,}`)

type dropReasonSummary struct {
	total     int
	byGroup   map[string]int
	sampleFor map[string]string
}

// dropLogger batches drop notices into periodic per-reason summaries so a
// busy group does not flood the log.
type dropLogger struct {
	mu       sync.Mutex
	verbose  bool
	interval time.Duration
	nextEmit time.Time
	reasons  map[Reason]*dropReasonSummary
}

func newDropLogger(now time.Time, verbose bool, interval time.Duration) *dropLogger {
	if interval <= 0 {
		interval = dropSummaryInterval
	}
	return &dropLogger{
		verbose:  verbose,
		interval: interval,
		nextEmit: now.Add(interval),
		reasons:  make(map[Reason]*dropReasonSummary),
	}
}

func (d *dropLogger) note(now time.Time, reason Reason, ev core.InboundEvent) {
	if d == nil {
		return
	}
	group := ev.GroupID()
	sample := sanitizeAndTruncate(ev.Text, dropSampleMaxLen)
	if d.verbose {
		slog.Debug("filter: dropped message",
			"reason", string(reason),
			"account", ev.Account,
			"group_id", group,
			"sender_id", ev.SenderID,
			"sample", sample,
		)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	entry := d.reasons[reason]
	if entry == nil {
		entry = &dropReasonSummary{
			byGroup:   make(map[string]int),
			sampleFor: make(map[string]string),
		}
		d.reasons[reason] = entry
	}
	entry.total++
	entry.byGroup[group]++
	if _, ok := entry.sampleFor[group]; !ok {
		entry.sampleFor[group] = sample
	}

	if !now.Before(d.nextEmit) {
		d.flushLocked(now)
	}
}

func (d *dropLogger) flush(now time.Time) {
	if d == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.flushLocked(now)
}

func (d *dropLogger) flushLocked(now time.Time) {
	defer func() { d.nextEmit = now.Add(d.interval) }()
	if len(d.reasons) == 0 {
		return
	}
	for _, reason := range sortedKeys(d.reasons) {
		rs := d.reasons[reason]
		if rs == nil || rs.total == 0 {
			continue
		}
		slog.Info("filter: dropped_"+string(reason),
			"total", rs.total,
			"groups", formatGroupCounts(rs.byGroup),
			"samples", formatGroupSamples(rs.sampleFor),
		)
	}
	clear(d.reasons)
}

func (d *dropLogger) pending(reason Reason) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if rs := d.reasons[reason]; rs != nil {
		return rs.total
	}
	return 0
}

func sanitizeAndTruncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	s = strings.Join(strings.Fields(s), " ")
	s = longTokenRe.ReplaceAllString(s, "[REDACTED]")

	runes := []rune(s)
	if max <= 0 || len(runes) <= max {
		return s
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}

func formatGroupCounts(counts map[string]int) string {
	if len(counts) == 0 {
		return "{}"
	}
	parts := make([]string, 0, len(counts))
	for _, group := range sortedKeys(counts) {
		parts = append(parts, fmt.Sprintf("%s:%d", group, counts[group]))
	}
	return "{" + strings.Join(parts, " ") + "}"
}

func formatGroupSamples(samples map[string]string) string {
	if len(samples) == 0 {
		return "{}"
	}
	parts := make([]string, 0, len(samples))
	for _, group := range sortedKeys(samples) {
		parts = append(parts, group+":'"+samples[group]+"'")
	}
	return "{" + strings.Join(parts, " ") + "}"
}

func sortedKeys[K ~string, V any](m map[K]V) []K {
	out := make([]K, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
