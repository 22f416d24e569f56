package ingesttrace

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/you/groupwatch/internal/core"
)

// Stage names a point an inbound event reached in the filter pipeline.
type Stage string

const (
	StageSeen      Stage = "seen"
	StageForwarded Stage = "forwarded"

	StageDroppedPrefix = "dropped_"
)

const snippetRunes = 24

// StageDropped creates a Stage for an event dropped with the given reason.
func StageDropped(reason string) Stage {
	return Stage(fmt.Sprintf("%s%s", StageDroppedPrefix, reason))
}

// EventTrace follows one inbound event. The id ignores the receiving
// account, so the same message delivered to several accounts shares it.
type EventTrace struct {
	Account  string
	GroupID  string
	SenderID int64
	Snippet  string
	TraceID  string

	mu       sync.Mutex
	counters map[Stage]int64
}

// FromEvent builds a trace for ev and seeds the seen counter.
func FromEvent(ev core.InboundEvent) *EventTrace {
	group := ev.GroupID()
	trace := &EventTrace{
		Account:  ev.Account,
		GroupID:  group,
		SenderID: ev.SenderID,
		Snippet:  snippet(ev.Text),
		TraceID:  computeTraceID(group, ev.SenderID, ev.Date.Unix(), ev.Text),
		counters: make(map[Stage]int64),
	}
	trace.counters[StageSeen] = 1
	return trace
}

// IncCounter increments the counter for stage and returns the new value.
func (t *EventTrace) IncCounter(stage Stage) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.counters[stage]++
	return t.counters[stage]
}

// LogTrace writes the trace at debug level.
func (t *EventTrace) LogTrace(logger *slog.Logger, msg string) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Debug(msg,
		"trace_id", t.TraceID,
		"account", t.Account,
		"group_id", t.GroupID,
		"sender_id", t.SenderID,
		"snippet", t.Snippet,
		"counters", t.snapshotCounters(),
	)
}

func (t *EventTrace) snapshotCounters() map[Stage]int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[Stage]int64, len(t.counters))
	for stage, count := range t.counters {
		out[stage] = count
	}
	return out
}

func snippet(text string) string {
	r := []rune(text)
	if len(r) <= snippetRunes {
		return text
	}
	return string(r[:snippetRunes]) + "…"
}

func computeTraceID(group string, sender, unix int64, text string) string {
	digest := sha256.Sum256([]byte(group + "\x1f" + strconv.FormatInt(sender, 10) + "\x1f" + strconv.FormatInt(unix, 10) + "\x1f" + text))
	return hex.EncodeToString(digest[:8])
}
